package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"dataset-service/internal/apperr"
	"dataset-service/internal/metrics"
	"dataset-service/internal/models"
	"dataset-service/internal/uploader"
	"dataset-service/internal/yolo"
)

// DatasetStore is the slice of the dataset repository the ingestion needs.
type DatasetStore interface {
	CreateDataset(dataset *models.Dataset) error
	SetClasses(id uuid.UUID, datasetType models.AnnotationType, classNames []string) error
	UpdateStats(id uuid.UUID, breakdown models.SplitBreakdown) error
	SetError(id uuid.UUID, message string) error
}

// ImageStore is the slice of the image repository the ingestion needs.
type ImageStore interface {
	BulkCreate(images []models.Image) (int, error)
}

// ObjectUploader pushes staged files to the object store in batches.
type ObjectUploader interface {
	UploadBatch(ctx context.Context, items []uploader.Item) *uploader.Summary
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// IngestRequest carries the caller-supplied dataset metadata.
type IngestRequest struct {
	Name         string
	Description  string
	DeclaredType models.AnnotationType
	CreatedBy    string
}

// IngestResult summarizes one finished ingestion.
type IngestResult struct {
	DatasetID   uuid.UUID             `json:"dataset_id"`
	DatasetType models.AnnotationType `json:"dataset_type"`
	NumImages   int                   `json:"num_images"`
	Splits      models.SplitBreakdown `json:"splits"`
}

// IngestService turns an extracted YOLO dataset directory into stored
// objects plus database records. Object writes always precede metadata
// inserts; an image record is only created for keys the store confirmed.
type IngestService struct {
	datasets DatasetStore
	images   ImageStore
	uploader ObjectUploader
	checker  yolo.IntegrityChecker
	metrics  *metrics.Metrics
	owner    string
}

// NewIngestService creates an IngestService. metrics may be nil.
func NewIngestService(datasets DatasetStore, images ImageStore, up ObjectUploader, checker yolo.IntegrityChecker, m *metrics.Metrics, owner string) *IngestService {
	if checker == nil {
		checker = yolo.StructureChecker{}
	}
	return &IngestService{
		datasets: datasets,
		images:   images,
		uploader: up,
		checker:  checker,
		metrics:  m,
		owner:    owner,
	}
}

// IngestDataset registers a dataset record, inspects the extracted archive
// root and processes every split. The record is created before inspection so
// descriptor and validation failures leave a visible error row. On success
// the dataset transitions to active with its aggregated stats.
func (s *IngestService) IngestDataset(ctx context.Context, root string, req IngestRequest) (*IngestResult, error) {
	start := time.Now()

	dataset := &models.Dataset{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		DatasetType: req.DeclaredType,
		Status:      models.StatusProcessing,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		Version:     1,
	}
	if dataset.DatasetType == "" {
		dataset.DatasetType = models.AnnotationDetect
	}
	if err := s.datasets.CreateDataset(dataset); err != nil {
		return nil, err
	}

	result, err := s.process(ctx, root, dataset, req)
	if err != nil {
		s.fail(dataset.ID, err)
		s.metrics.ObserveIngest(models.StatusError, time.Since(start))
		return nil, err
	}
	s.metrics.ObserveIngest(models.StatusActive, time.Since(start))
	return result, nil
}

func (s *IngestService) process(ctx context.Context, root string, dataset *models.Dataset, req IngestRequest) (*IngestResult, error) {
	descriptorPath, err := yolo.FindDescriptor(root)
	if err != nil {
		return nil, err
	}
	descriptor, err := yolo.ParseDescriptor(descriptorPath)
	if err != nil {
		return nil, err
	}

	datasetType := req.DeclaredType
	if datasetType == "" {
		datasetType = yolo.InferType(root)
	}

	if ok, message := yolo.Validate(root, datasetType, s.checker); !ok {
		return nil, errors.Wrap(apperr.ErrValidationFailed, message)
	}

	if err := s.datasets.SetClasses(dataset.ID, datasetType, descriptor.ClassNames); err != nil {
		return nil, err
	}

	slog.Info("ingesting dataset",
		"dataset_id", dataset.ID, "name", dataset.Name,
		"type", datasetType, "classes", len(descriptor.ClassNames))

	breakdown := models.SplitBreakdown{}
	totalImages := 0
	for _, split := range models.Splits {
		stats, err := s.processSplit(ctx, root, split, dataset.ID, datasetType, descriptor.ClassNames)
		if err != nil {
			return nil, errors.Wrapf(err, "split %s", split)
		}
		breakdown[split] = stats
		totalImages += stats.Images
	}

	if err := s.datasets.UpdateStats(dataset.ID, breakdown); err != nil {
		return nil, err
	}

	return &IngestResult{
		DatasetID:   dataset.ID,
		DatasetType: datasetType,
		NumImages:   totalImages,
		Splits:      breakdown,
	}, nil
}

// processSplit stages every image of one split, uploads them in a single
// batch and inserts records only for keys the object store confirmed. Byte
// totals count everything staged, image and annotation totals only what was
// actually inserted.
func (s *IngestService) processSplit(ctx context.Context, root, split string, datasetID uuid.UUID, datasetType models.AnnotationType, classNames []string) (models.SplitStats, error) {
	var stats models.SplitStats

	imagesDir := filepath.Join(root, "images", split)
	if info, err := os.Stat(imagesDir); err != nil || !info.IsDir() {
		return stats, nil
	}
	labelsDir := filepath.Join(root, "labels", split)

	files, err := listImageFiles(imagesDir)
	if err != nil {
		return stats, err
	}

	items := make([]uploader.Item, 0, len(files))
	candidates := make([]models.Image, 0, len(files))
	for _, filename := range files {
		path := filepath.Join(imagesDir, filename)
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("skipping unreadable image", "path", path, "error", err)
			continue
		}

		hash, err := hashFile(path)
		if err != nil {
			slog.Warn("skipping unhashable image", "path", path, "error", err)
			continue
		}
		width, height := imageDimensions(path)

		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		annotations := yolo.DecodeFile(filepath.Join(labelsDir, stem+".txt"), datasetType, classNames)

		now := time.Now().UTC()
		img := models.Image{
			ID:              uuid.New(),
			DatasetID:       datasetID,
			Filename:        filename,
			StorageKey:      fmt.Sprintf("%s/%s/images/%s/%s", s.owner, datasetID, split, filename),
			FileSize:        info.Size(),
			FileHash:        hash,
			Width:           width,
			Height:          height,
			Format:          strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
			Split:           split,
			Annotations:     annotations,
			IsAnnotated:     len(annotations) > 0,
			AnnotationCount: len(annotations),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		candidates = append(candidates, img)
		items = append(items, uploader.Item{
			LocalPath:   path,
			Key:         img.StorageKey,
			ContentType: imageExtensions[strings.ToLower(filepath.Ext(filename))],
		})
		stats.SizeBytes += info.Size()
	}

	if len(items) == 0 {
		return stats, nil
	}

	summary := s.uploader.UploadBatch(ctx, items)
	s.metrics.AddUploaded(summary.Succeeded)
	s.metrics.AddFailed(summary.Failed)
	s.metrics.AddRetryRounds(len(summary.Retries))
	for _, failed := range summary.FailedItems {
		slog.Error("image upload failed", "key", failed.Key, "error", failed.LastError)
	}

	confirmed := make(map[string]struct{}, len(summary.SuccessKeys))
	for _, key := range summary.SuccessKeys {
		confirmed[key] = struct{}{}
	}
	records := make([]models.Image, 0, len(candidates))
	for _, img := range candidates {
		if _, ok := confirmed[img.StorageKey]; ok {
			records = append(records, img)
			stats.Annotations += img.AnnotationCount
		}
	}

	inserted, err := s.images.BulkCreate(records)
	if err != nil {
		return stats, errors.Wrap(apperr.ErrStorageFailure, err.Error())
	}
	stats.Images = inserted

	slog.Info("split processed",
		"split", split, "staged", len(items),
		"uploaded", summary.Succeeded, "failed", summary.Failed,
		"inserted", inserted)
	return stats, nil
}

func (s *IngestService) fail(id uuid.UUID, cause error) {
	if err := s.datasets.SetError(id, cause.Error()); err != nil {
		slog.Error("could not record dataset error", "dataset_id", id, "error", err)
	}
}

// listImageFiles returns supported image filenames in dir, sorted.
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// imageDimensions probes pixel dimensions without decoding the full image.
// Formats the probe cannot read report zero dimensions.
func imageDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		slog.Debug("could not probe image dimensions", "path", path, "error", err)
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
