package handlers

import (
	"bytes"
	"log"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dataset-service/internal/extraction"
	"dataset-service/internal/models"
	"dataset-service/internal/services"
	"dataset-service/internal/upload"
)

// UploadHandler defines handlers for the chunked archive upload flow.
type UploadHandler struct {
	Sessions *upload.Manager
	Ingest   *services.IngestService
	MaxSize  int64
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(sessions *upload.Manager, ingest *services.IngestService, maxSize int64) *UploadHandler {
	return &UploadHandler{Sessions: sessions, Ingest: ingest, MaxSize: maxSize}
}

// StartUpload handles POST /upload/start to open a chunked upload session.
// @Summary Start a chunked archive upload
// @Description Opens an upload session for a dataset archive split into chunks
// @Tags upload
// @Accept x-www-form-urlencoded
// @Produce json
// @Param filename formData string true "Archive filename"
// @Param total_size formData int true "Total archive size in bytes"
// @Param total_chunks formData int true "Number of chunks"
// @Param chunk_size formData int true "Chunk size in bytes"
// @Success 201 {object} map[string]interface{} "Session created"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 413 {object} map[string]interface{} "Archive too large"
// @Router /upload/start [post]
func (h *UploadHandler) StartUpload(c *fiber.Ctx) error {
	filename := c.FormValue("filename")
	totalSize, err := strconv.ParseInt(c.FormValue("total_size"), 10, 64)
	if err != nil || totalSize <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "total_size must be a positive integer",
		})
	}
	totalChunks, err := strconv.Atoi(c.FormValue("total_chunks"))
	if err != nil || totalChunks <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "total_chunks must be a positive integer",
		})
	}
	chunkSize, err := strconv.ParseInt(c.FormValue("chunk_size"), 10, 64)
	if err != nil || chunkSize <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "chunk_size must be a positive integer",
		})
	}
	if filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "filename is required",
		})
	}
	if totalSize > h.MaxSize {
		log.Printf("Rejected upload of %s: declared size %d exceeds limit %d", filename, totalSize, h.MaxSize)
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": true, "message": "archive exceeds the maximum upload size",
		})
	}

	session, err := h.Sessions.Start(filename, totalSize, chunkSize, totalChunks)
	if err != nil {
		log.Printf("Failed to start upload session for %s: %v", filename, err)
		return respondError(c, err)
	}
	log.Printf("Upload session started: ID=%s, file=%s, chunks=%d", session.ID, filename, totalChunks)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id":   session.ID,
		"filename":     session.Filename,
		"total_chunks": session.TotalChunks,
		"chunk_size":   session.ChunkSize,
		"expires_at":   session.ExpiresAt,
	})
}

// UploadChunk handles POST /upload/chunk/:id/:index to receive one chunk.
// @Summary Upload one archive chunk
// @Description Receives one chunk of an open upload session; re-sending a chunk overwrites it
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Zero-based chunk index"
// @Param chunk formData file false "Chunk bytes (raw request body is accepted as well)"
// @Success 200 {object} map[string]interface{} "Chunk stored"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /upload/chunk/{id}/{index} [post]
func (h *UploadHandler) UploadChunk(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "chunk index must be an integer",
		})
	}

	if fileHeader, ferr := c.FormFile("chunk"); ferr == nil {
		f, err := fileHeader.Open()
		if err != nil {
			log.Printf("Failed to open chunk %d of session %s: %v", index, sessionID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": true, "message": "failed to read chunk: " + err.Error(),
			})
		}
		defer f.Close()
		if err := h.Sessions.ReceiveChunk(sessionID, index, f); err != nil {
			log.Printf("Failed to store chunk %d of session %s: %v", index, sessionID, err)
			return respondError(c, err)
		}
	} else {
		if err := h.Sessions.ReceiveChunk(sessionID, index, bytes.NewReader(c.Body())); err != nil {
			log.Printf("Failed to store chunk %d of session %s: %v", index, sessionID, err)
			return respondError(c, err)
		}
	}

	session, err := h.Sessions.Get(sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"received":   session.ReceivedCount(),
		"total":      session.TotalChunks,
	})
}

// CompleteUpload handles POST /upload/complete/:id to assemble the archive
// and ingest the dataset it contains.
// @Summary Complete an upload and ingest the dataset
// @Description Assembles all chunks, extracts the archive and ingests the YOLO dataset
// @Tags upload
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body handlers.CompleteUploadRequest true "Dataset metadata"
// @Success 201 {object} services.IngestResult "Dataset ingested"
// @Failure 400 {object} map[string]interface{} "Missing chunks or invalid dataset"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Failure 409 {object} map[string]interface{} "Dataset name already taken"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /upload/complete/{id} [post]
func (h *UploadHandler) CompleteUpload(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}

	var req CompleteUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "invalid request body: " + err.Error(),
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "name is required",
		})
	}
	if req.DatasetType != "" && !models.SupportedAnnotationType(models.AnnotationType(req.DatasetType)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "unsupported dataset_type: " + req.DatasetType,
		})
	}

	archivePath, err := h.Sessions.Complete(sessionID)
	if err != nil {
		log.Printf("Failed to complete upload session %s: %v", sessionID, err)
		return respondError(c, err)
	}

	log.Printf("Extracting archive %s for session %s", archivePath, sessionID)
	_, destDir, err := extraction.ExtractArchive(c.Context(), archivePath)
	if err != nil {
		log.Printf("Failed to extract archive for session %s: %v", sessionID, err)
		h.Sessions.Remove(sessionID)
		return respondError(c, err)
	}
	defer func() {
		if err := os.RemoveAll(destDir); err != nil {
			log.Printf("Failed to clean up extraction dir %s: %v", destDir, err)
		}
		h.Sessions.Remove(sessionID)
	}()

	root := extraction.DatasetRoot(destDir)
	result, err := h.Ingest.IngestDataset(c.Context(), root, services.IngestRequest{
		Name:         req.Name,
		Description:  req.Description,
		DeclaredType: models.AnnotationType(req.DatasetType),
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		log.Printf("Ingestion failed for session %s: %v", sessionID, err)
		return respondError(c, err)
	}

	log.Printf("Dataset ingested: ID=%s, images=%d", result.DatasetID, result.NumImages)
	return c.Status(fiber.StatusCreated).JSON(result)
}

// CompleteUploadRequest is the metadata body for CompleteUpload.
type CompleteUploadRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DatasetType string `json:"dataset_type"`
	CreatedBy   string `json:"created_by"`
}

// CancelUpload handles DELETE /upload/:id to discard an open session.
// @Summary Cancel an upload session
// @Description Discards an open upload session and its chunk fragments
// @Tags upload
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 "Session discarded"
// @Failure 400 {object} map[string]interface{} "Invalid UUID"
// @Router /upload/{id} [delete]
func (h *UploadHandler) CancelUpload(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	h.Sessions.Remove(sessionID)
	log.Printf("Upload session cancelled: ID=%s", sessionID)
	return c.SendStatus(fiber.StatusNoContent)
}
