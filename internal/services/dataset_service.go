package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
	"dataset-service/internal/repository"
	"dataset-service/internal/uploader"
)

// DefaultURLExpiry is how long presigned download links stay valid.
const DefaultURLExpiry = time.Hour

// DatasetService serves the read, delete and download-link surface over
// ingested datasets.
type DatasetService struct {
	datasets *repository.DatasetRepository
	images   *repository.ImageRepository
	store    *minio.Client
	signer   *uploader.BatchUploader
	bucket   string
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(datasets *repository.DatasetRepository, images *repository.ImageRepository, store *minio.Client, signer *uploader.BatchUploader, bucket string) *DatasetService {
	return &DatasetService{
		datasets: datasets,
		images:   images,
		store:    store,
		signer:   signer,
		bucket:   bucket,
	}
}

// ListDatasets returns datasets newest first.
func (s *DatasetService) ListDatasets(offset, limit int) ([]models.Dataset, error) {
	return s.datasets.ListDatasets(offset, limit)
}

// GetDataset returns one dataset by id.
func (s *DatasetService) GetDataset(id uuid.UUID) (*models.Dataset, error) {
	return s.datasets.GetDataset(id)
}

// DeleteDataset removes the stored objects, the image records and the
// dataset record. Object removals are best effort; a failed removal is
// logged and does not block deleting the metadata.
func (s *DatasetService) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if _, err := s.datasets.GetDataset(id); err != nil {
		return err
	}

	keys, err := s.images.StorageKeysByDataset(id)
	if err != nil {
		return err
	}
	removed := 0
	for _, key := range keys {
		if err := s.store.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			slog.Warn("could not remove object", "key", key, "error", err)
			continue
		}
		removed++
	}

	if err := s.images.DeleteByDataset(id); err != nil {
		return err
	}
	if err := s.datasets.DeleteDataset(id); err != nil {
		return err
	}
	slog.Info("dataset deleted", "dataset_id", id, "objects_removed", removed, "objects_total", len(keys))
	return nil
}

// ListImages returns images of a dataset, optionally filtered by split.
func (s *DatasetService) ListImages(datasetID uuid.UUID, split string, offset, limit int) ([]models.Image, int64, error) {
	if split != "" && !validSplit(split) {
		return nil, 0, errors.Wrapf(apperr.ErrInvalidArgument, "unknown split %q", split)
	}
	if _, err := s.datasets.GetDataset(datasetID); err != nil {
		return nil, 0, err
	}
	images, err := s.images.ListByDataset(datasetID, split, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.images.CountByDataset(datasetID, split)
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// GetImage returns one image record by id.
func (s *DatasetService) GetImage(id uuid.UUID) (*models.Image, error) {
	return s.images.GetImage(id)
}

// ImageURL returns a presigned download link for one image.
func (s *DatasetService) ImageURL(ctx context.Context, id uuid.UUID) (string, error) {
	img, err := s.images.GetImage(id)
	if err != nil {
		return "", err
	}
	link, err := s.store.PresignedGetObject(ctx, s.bucket, img.StorageKey, DefaultURLExpiry, nil)
	if err != nil {
		return "", errors.Wrap(apperr.ErrStorageFailure, err.Error())
	}
	return link.String(), nil
}

// BatchImageURLs returns presigned download links for all images of a
// dataset, optionally restricted to one split. Fetches run through the
// bounded pool without retry.
func (s *DatasetService) BatchImageURLs(ctx context.Context, datasetID uuid.UUID, split string) (*uploader.URLSummary, error) {
	if split != "" && !validSplit(split) {
		return nil, errors.Wrapf(apperr.ErrInvalidArgument, "unknown split %q", split)
	}
	if _, err := s.datasets.GetDataset(datasetID); err != nil {
		return nil, err
	}
	images, err := s.images.ListByDataset(datasetID, split, 0, -1)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(images))
	for _, img := range images {
		keys = append(keys, img.StorageKey)
	}
	return s.signer.PresignBatch(ctx, keys, DefaultURLExpiry), nil
}

// AddAnnotation appends one annotation to an image and updates the dataset
// totals for the image's split.
func (s *DatasetService) AddAnnotation(id uuid.UUID, annotation models.Annotation) (*models.Image, error) {
	if err := annotation.Validate(); err != nil {
		return nil, errors.Wrap(apperr.ErrInvalidArgument, err.Error())
	}
	img, err := s.images.GetImage(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	annotation.CreatedAt = now
	annotation.UpdatedAt = now
	img.Annotations = append(img.Annotations, annotation)
	img.AnnotationCount = len(img.Annotations)
	img.IsAnnotated = img.AnnotationCount > 0
	img.UpdatedAt = now
	if err := s.images.UpdateImage(img); err != nil {
		return nil, err
	}

	if err := s.adjustAnnotationTotal(img.DatasetID, img.Split, 1); err != nil {
		slog.Warn("could not refresh dataset totals", "dataset_id", img.DatasetID, "error", err)
	}
	return img, nil
}

// RemoveAnnotation deletes the annotation at index from an image and updates
// the dataset totals for the image's split.
func (s *DatasetService) RemoveAnnotation(id uuid.UUID, index int) (*models.Image, error) {
	img, err := s.images.GetImage(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(img.Annotations) {
		return nil, errors.Wrapf(apperr.ErrInvalidArgument, "annotation index %d out of range [0,%d)", index, len(img.Annotations))
	}

	img.Annotations = append(img.Annotations[:index], img.Annotations[index+1:]...)
	img.AnnotationCount = len(img.Annotations)
	img.IsAnnotated = img.AnnotationCount > 0
	img.UpdatedAt = time.Now().UTC()
	if err := s.images.UpdateImage(img); err != nil {
		return nil, err
	}

	if err := s.adjustAnnotationTotal(img.DatasetID, img.Split, -1); err != nil {
		slog.Warn("could not refresh dataset totals", "dataset_id", img.DatasetID, "error", err)
	}
	return img, nil
}

// adjustAnnotationTotal rewrites the split breakdown with the annotation
// delta applied, which also recomputes the summed totals.
func (s *DatasetService) adjustAnnotationTotal(datasetID uuid.UUID, split string, delta int) error {
	dataset, err := s.datasets.GetDataset(datasetID)
	if err != nil {
		return err
	}
	breakdown := dataset.SplitCounts.Data()
	if breakdown == nil {
		breakdown = models.SplitBreakdown{}
	}
	stats := breakdown[split]
	stats.Annotations += delta
	if stats.Annotations < 0 {
		stats.Annotations = 0
	}
	breakdown[split] = stats
	return s.datasets.UpdateStats(datasetID, breakdown)
}

func validSplit(split string) bool {
	for _, s := range models.Splits {
		if s == split {
			return true
		}
	}
	return false
}
