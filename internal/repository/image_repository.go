package repository

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
)

// ImageRepository provides methods to interact with Image records.
type ImageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository with the provided GORM database connection.
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// BulkCreate inserts image records in batches and returns the inserted count.
func (r *ImageRepository) BulkCreate(images []models.Image) (int, error) {
	if len(images) == 0 {
		return 0, nil
	}
	res := r.db.CreateInBatches(images, 100)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// GetImage retrieves an image by its ID.
func (r *ImageRepository) GetImage(id uuid.UUID) (*models.Image, error) {
	var image models.Image
	err := r.db.First(&image, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "image %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// ListByDataset retrieves images for a dataset with pagination and an
// optional split filter.
func (r *ImageRepository) ListByDataset(datasetID uuid.UUID, split string, offset, limit int) ([]models.Image, error) {
	var images []models.Image
	q := r.db.Where("dataset_id = ?", datasetID)
	if split != "" {
		q = q.Where("split = ?", split)
	}
	err := q.Offset(offset).Limit(limit).Find(&images).Error
	return images, err
}

// CountByDataset counts images in a dataset, optionally per split.
func (r *ImageRepository) CountByDataset(datasetID uuid.UUID, split string) (int64, error) {
	var count int64
	q := r.db.Model(&models.Image{}).Where("dataset_id = ?", datasetID)
	if split != "" {
		q = q.Where("split = ?", split)
	}
	err := q.Count(&count).Error
	return count, err
}

// StorageKeysByDataset returns the storage keys of all images in a dataset.
func (r *ImageRepository) StorageKeysByDataset(datasetID uuid.UUID) ([]string, error) {
	var keys []string
	err := r.db.Model(&models.Image{}).Where("dataset_id = ?", datasetID).Pluck("storage_key", &keys).Error
	return keys, err
}

// UpdateImage persists changes to an existing image record.
func (r *ImageRepository) UpdateImage(image *models.Image) error {
	return r.db.Save(image).Error
}

// DeleteByDataset removes all images belonging to a dataset.
func (r *ImageRepository) DeleteByDataset(datasetID uuid.UUID) error {
	return r.db.Delete(&models.Image{}, "dataset_id = ?", datasetID).Error
}

// DeleteImage removes a single image record.
func (r *ImageRepository) DeleteImage(id uuid.UUID) error {
	res := r.db.Delete(&models.Image{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "image %s", id)
	}
	return nil
}
