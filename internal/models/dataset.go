package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Dataset lifecycle statuses.
const (
	StatusProcessing = "processing"
	StatusActive     = "active"
	StatusError      = "error"
)

// SplitStats holds the counters for one split.
type SplitStats struct {
	Images      int   `json:"images"`
	Annotations int   `json:"annotations"`
	SizeBytes   int64 `json:"size_bytes"`
}

// SplitBreakdown maps split name (train/val/test) to its counters.
type SplitBreakdown map[string]SplitStats

// Splits is the fixed processing order for dataset splits.
var Splits = []string{"train", "val", "test"}

// Dataset is the metadata record for one ingested dataset.
// num_images and num_annotations always equal the sum over the splits
// breakdown; both are written in a single update by the stats aggregator.
type Dataset struct {
	ID             uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string                             `gorm:"size:100;uniqueIndex" json:"name"`
	Description    string                             `gorm:"size:500" json:"description"`
	DatasetType    AnnotationType                     `gorm:"size:16" json:"dataset_type"`
	ClassNames     datatypes.JSONSlice[string]        `json:"class_names"`
	NumImages      int                                `json:"num_images"`
	NumAnnotations int                                `json:"num_annotations"`
	FileSize       int64                              `json:"file_size"`
	SplitCounts    datatypes.JSONType[SplitBreakdown] `gorm:"column:splits" json:"splits"`
	Status         string                             `gorm:"size:16;index" json:"status"`
	ErrorMessage   string                             `json:"error_message,omitempty"`
	CreatedBy      string                             `gorm:"size:64" json:"created_by"`
	CreatedAt      time.Time                          `json:"created_at"`
	UpdatedAt      time.Time                          `json:"updated_at"`
	Version        int                                `json:"version"`
}
