package models

import (
	"fmt"
	"time"
)

// AnnotationType discriminates the five label payload shapes.
type AnnotationType string

const (
	AnnotationDetect   AnnotationType = "detect"
	AnnotationOBB      AnnotationType = "obb"
	AnnotationSegment  AnnotationType = "segment"
	AnnotationPose     AnnotationType = "pose"
	AnnotationClassify AnnotationType = "classify"
)

// SupportedAnnotationType reports whether t is one of the five dataset types.
func SupportedAnnotationType(t AnnotationType) bool {
	switch t {
	case AnnotationDetect, AnnotationOBB, AnnotationSegment, AnnotationPose, AnnotationClassify:
		return true
	}
	return false
}

// BBox is a normalized axis-aligned bounding box in YOLO format.
type BBox struct {
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Annotation is a tagged union over the five payload shapes. Exactly one of
// the geometry fields is populated, matching Type. All coordinates are
// normalized to [0,1] as read from the label file.
type Annotation struct {
	Type       AnnotationType    `json:"annotation_type"`
	ClassID    int               `json:"class_id"`
	ClassName  string            `json:"class_name"`
	Confidence *float64          `json:"confidence,omitempty"`
	IsCrowd    bool              `json:"is_crowd"`
	Area       *float64          `json:"area,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// detect
	BBox *BBox `json:"bbox,omitempty"`
	// obb: exactly 8 values; segment: >= 6 values (3 polygon points)
	Points []float64 `json:"points,omitempty"`
	// pose: flat (x, y, visibility) triples
	Keypoints    []float64 `json:"keypoints,omitempty"`
	NumKeypoints int       `json:"num_keypoints,omitempty"`
	Skeleton     []int     `json:"skeleton,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the populated payload shape matches Type.
func (a *Annotation) Validate() error {
	switch a.Type {
	case AnnotationDetect:
		if a.BBox == nil {
			return fmt.Errorf("detect annotation requires a bbox")
		}
	case AnnotationOBB:
		if len(a.Points) != 8 {
			return fmt.Errorf("obb annotation requires exactly 8 values, got %d", len(a.Points))
		}
	case AnnotationSegment:
		if len(a.Points) < 6 || len(a.Points)%2 != 0 {
			return fmt.Errorf("segment annotation requires at least 3 x,y points, got %d values", len(a.Points))
		}
	case AnnotationPose:
		if len(a.Keypoints) == 0 || len(a.Keypoints)%3 != 0 {
			return fmt.Errorf("pose keypoints must be x,y,v triples, got %d values", len(a.Keypoints))
		}
		if a.NumKeypoints != len(a.Keypoints)/3 {
			return fmt.Errorf("num_keypoints %d does not match %d keypoint values", a.NumKeypoints, len(a.Keypoints))
		}
	case AnnotationClassify:
		if a.BBox != nil || len(a.Points) > 0 || len(a.Keypoints) > 0 {
			return fmt.Errorf("classify annotation carries no geometry")
		}
	default:
		return fmt.Errorf("unknown annotation type %q", a.Type)
	}
	return nil
}
