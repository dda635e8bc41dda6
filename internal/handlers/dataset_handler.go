package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dataset-service/internal/models"
	"dataset-service/internal/services"
)

// DatasetHandler defines handlers for the dataset and image read surface.
type DatasetHandler struct {
	Service *services.DatasetService
}

// NewDatasetHandler creates a new DatasetHandler with the given DatasetService.
func NewDatasetHandler(service *services.DatasetService) *DatasetHandler {
	return &DatasetHandler{Service: service}
}

func pagination(c *fiber.Ctx) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	limit, _ = strconv.Atoi(c.Query("limit", "50"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return offset, limit
}

// ListDatasets handles GET /datasets to retrieve datasets, newest first.
// @Summary List datasets
// @Description Gets all datasets with pagination, newest first
// @Tags datasets
// @Produce json
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Page size (max 500)"
// @Success 200 {array} models.Dataset "List of datasets"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /datasets [get]
func (h *DatasetHandler) ListDatasets(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	datasets, err := h.Service.ListDatasets(offset, limit)
	if err != nil {
		log.Printf("Error listing datasets: %v", err)
		return respondError(c, err)
	}
	return c.JSON(datasets)
}

// GetDataset handles GET /datasets/:id.
// @Summary Get a dataset by ID
// @Tags datasets
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 200 {object} models.Dataset "Dataset found"
// @Failure 400 {object} map[string]interface{} "Invalid UUID"
// @Failure 404 {object} map[string]interface{} "Dataset not found"
// @Router /datasets/{id} [get]
func (h *DatasetHandler) GetDataset(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	dataset, err := h.Service.GetDataset(id)
	if err != nil {
		log.Printf("Error fetching dataset %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(dataset)
}

// DeleteDataset handles DELETE /datasets/:id.
// @Summary Delete a dataset
// @Description Removes the stored objects, image records and the dataset record
// @Tags datasets
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 204 "Dataset deleted"
// @Failure 400 {object} map[string]interface{} "Invalid UUID"
// @Failure 404 {object} map[string]interface{} "Dataset not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /datasets/{id} [delete]
func (h *DatasetHandler) DeleteDataset(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	if err := h.Service.DeleteDataset(c.Context(), id); err != nil {
		log.Printf("Error deleting dataset %s: %v", id, err)
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListImages handles GET /datasets/:id/images.
// @Summary List images of a dataset
// @Tags images
// @Produce json
// @Param id path string true "Dataset ID"
// @Param split query string false "Filter by split (train/val/test)"
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Page size (max 500)"
// @Success 200 {object} map[string]interface{} "Images plus total count"
// @Failure 400 {object} map[string]interface{} "Invalid UUID or split"
// @Failure 404 {object} map[string]interface{} "Dataset not found"
// @Router /datasets/{id}/images [get]
func (h *DatasetHandler) ListImages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	offset, limit := pagination(c)
	images, total, err := h.Service.ListImages(id, c.Query("split"), offset, limit)
	if err != nil {
		log.Printf("Error listing images of dataset %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"images": images,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// GetImage handles GET /images/:id.
// @Summary Get an image record by ID
// @Tags images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} models.Image "Image found"
// @Failure 400 {object} map[string]interface{} "Invalid UUID"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Router /images/{id} [get]
func (h *DatasetHandler) GetImage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	image, err := h.Service.GetImage(id)
	if err != nil {
		log.Printf("Error fetching image %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(image)
}

// GetImageURL handles GET /images/:id/url.
// @Summary Get a presigned download link for an image
// @Tags images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} map[string]interface{} "Presigned URL"
// @Failure 400 {object} map[string]interface{} "Invalid UUID"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /images/{id}/url [get]
func (h *DatasetHandler) GetImageURL(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	link, err := h.Service.ImageURL(c.Context(), id)
	if err != nil {
		log.Printf("Error presigning image %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": link, "expires_in": services.DefaultURLExpiry.Seconds()})
}

// BatchImageURLs handles POST /datasets/:id/urls.
// @Summary Get presigned download links for all images of a dataset
// @Description Fetches links through a bounded worker pool; per-key failures are reported, not retried
// @Tags images
// @Produce json
// @Param id path string true "Dataset ID"
// @Param split query string false "Restrict to one split"
// @Success 200 {object} uploader.URLSummary "Per-key results"
// @Failure 400 {object} map[string]interface{} "Invalid UUID or split"
// @Failure 404 {object} map[string]interface{} "Dataset not found"
// @Router /datasets/{id}/urls [post]
func (h *DatasetHandler) BatchImageURLs(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	summary, err := h.Service.BatchImageURLs(c.Context(), id, c.Query("split"))
	if err != nil {
		log.Printf("Error presigning images of dataset %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// AddAnnotation handles POST /images/:id/annotations.
// @Summary Append an annotation to an image
// @Tags annotations
// @Accept json
// @Produce json
// @Param id path string true "Image ID"
// @Param annotation body models.Annotation true "Annotation payload"
// @Success 200 {object} models.Image "Updated image"
// @Failure 400 {object} map[string]interface{} "Invalid payload"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Router /images/{id}/annotations [post]
func (h *DatasetHandler) AddAnnotation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	var annotation models.Annotation
	if err := c.BodyParser(&annotation); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "invalid annotation body: " + err.Error(),
		})
	}
	image, err := h.Service.AddAnnotation(id, annotation)
	if err != nil {
		log.Printf("Error adding annotation to image %s: %v", id, err)
		return respondError(c, err)
	}
	return c.JSON(image)
}

// RemoveAnnotation handles DELETE /images/:id/annotations/:index.
// @Summary Remove an annotation from an image
// @Tags annotations
// @Produce json
// @Param id path string true "Image ID"
// @Param index path int true "Annotation index"
// @Success 200 {object} models.Image "Updated image"
// @Failure 400 {object} map[string]interface{} "Invalid index"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Router /images/{id}/annotations/{index} [delete]
func (h *DatasetHandler) RemoveAnnotation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": InvalidUuidError,
		})
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "annotation index must be an integer",
		})
	}
	image, err := h.Service.RemoveAnnotation(id, index)
	if err != nil {
		log.Printf("Error removing annotation %d from image %s: %v", index, id, err)
		return respondError(c, err)
	}
	return c.JSON(image)
}
