package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Image is the metadata record for one stored image, with its annotations
// embedded. A row is only ever created after the object store has confirmed
// the image bytes under StorageKey.
type Image struct {
	ID              uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID       uuid.UUID                       `gorm:"type:uuid;index" json:"dataset_id"`
	Filename        string                          `gorm:"size:255" json:"filename"`
	StorageKey      string                          `gorm:"size:512" json:"storage_key"`
	FileSize        int64                           `json:"file_size"`
	FileHash        string                          `gorm:"size:32" json:"file_hash"`
	Width           int                             `json:"width"`
	Height          int                             `json:"height"`
	Format          string                          `gorm:"size:8" json:"format"`
	Split           string                          `gorm:"size:8;index" json:"split"`
	Annotations     datatypes.JSONSlice[Annotation] `json:"annotations"`
	IsAnnotated     bool                            `json:"is_annotated"`
	AnnotationCount int                             `json:"annotation_count"`
	CreatedAt       time.Time                       `json:"created_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
}
