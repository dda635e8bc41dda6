package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
)

// DatasetRepository provides methods to interact with Dataset records.
type DatasetRepository struct {
	db *gorm.DB
}

// NewDatasetRepository creates a new DatasetRepository with the provided GORM database connection.
func NewDatasetRepository(db *gorm.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// CreateDataset inserts a new dataset. A duplicate name yields ErrConflict.
func (r *DatasetRepository) CreateDataset(dataset *models.Dataset) error {
	err := r.db.Create(dataset).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(apperr.ErrConflict, "dataset name %q", dataset.Name)
	}
	return err
}

// GetDataset retrieves a dataset by its ID.
func (r *DatasetRepository) GetDataset(id uuid.UUID) (*models.Dataset, error) {
	var dataset models.Dataset
	err := r.db.First(&dataset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "dataset %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &dataset, nil
}

// ListDatasets retrieves datasets with pagination, newest first.
func (r *DatasetRepository) ListDatasets(offset, limit int) ([]models.Dataset, error) {
	var datasets []models.Dataset
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&datasets).Error
	return datasets, err
}

// SetClasses fills the class names and resolved type once the descriptor
// has been parsed.
func (r *DatasetRepository) SetClasses(id uuid.UUID, datasetType models.AnnotationType, classNames []string) error {
	return r.db.Model(&models.Dataset{}).Where("id = ?", id).Updates(map[string]interface{}{
		"dataset_type": datasetType,
		"class_names":  datatypes.NewJSONSlice(classNames),
		"updated_at":   time.Now().UTC(),
	}).Error
}

// UpdateStats writes summed totals plus the per-split breakdown in one
// atomic update, transitions the dataset to active and bumps updated_at
// and version. Re-running with the same breakdown stores the same totals.
func (r *DatasetRepository) UpdateStats(id uuid.UUID, breakdown models.SplitBreakdown) error {
	var numImages, numAnnotations int
	var fileSize int64
	for _, stats := range breakdown {
		numImages += stats.Images
		numAnnotations += stats.Annotations
		fileSize += stats.SizeBytes
	}

	res := r.db.Model(&models.Dataset{}).Where("id = ?", id).Updates(map[string]interface{}{
		"num_images":      numImages,
		"num_annotations": numAnnotations,
		"file_size":       fileSize,
		"splits":          datatypes.NewJSONType(breakdown),
		"status":          models.StatusActive,
		"error_message":   "",
		"updated_at":      time.Now().UTC(),
		"version":         gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "dataset %s", id)
	}
	return nil
}

// SetError transitions a dataset to error status with a captured message.
func (r *DatasetRepository) SetError(id uuid.UUID, message string) error {
	return r.db.Model(&models.Dataset{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.StatusError,
		"error_message": message,
		"updated_at":    time.Now().UTC(),
		"version":       gorm.Expr("version + 1"),
	}).Error
}

// DeleteDataset removes a dataset record.
func (r *DatasetRepository) DeleteDataset(id uuid.UUID) error {
	res := r.db.Delete(&models.Dataset{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "dataset %s", id)
	}
	return nil
}
