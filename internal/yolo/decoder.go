package yolo

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"dataset-service/internal/models"
)

// DecodeLine parses one whitespace-separated label line into an annotation.
// A blank line returns (nil, nil) and is not an error. Malformed lines
// return an error; callers decide whether to log and skip.
//
// Coordinates are stored normalized exactly as read. For detect lines the
// four values must lie in [0,1] with positive width/height, matching what
// the stored record is allowed to hold.
func DecodeLine(line string, datasetType models.AnnotationType, classNames []string) (*models.Annotation, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, nil
	}

	classID, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid class id %q: %v", parts[0], err)
	}
	className := fmt.Sprintf("class_%d", classID)
	if classID >= 0 && classID < len(classNames) {
		className = classNames[classID]
	}

	now := time.Now().UTC()
	ann := &models.Annotation{
		Type:      datasetType,
		ClassID:   classID,
		ClassName: className,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch datasetType {
	case models.AnnotationDetect:
		if len(parts) < 5 {
			return nil, fmt.Errorf("detect line needs 5 tokens, got %d", len(parts))
		}
		coords, err := parseFloats(parts[1:5])
		if err != nil {
			return nil, err
		}
		bbox := models.BBox{XCenter: coords[0], YCenter: coords[1], Width: coords[2], Height: coords[3]}
		for _, v := range coords {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("detect coordinate %v outside [0,1]", v)
			}
		}
		if bbox.Width <= 0 || bbox.Height <= 0 {
			return nil, fmt.Errorf("detect box has non-positive size %vx%v", bbox.Width, bbox.Height)
		}
		area := bbox.Width * bbox.Height
		ann.BBox = &bbox
		ann.Area = &area

	case models.AnnotationOBB:
		if len(parts) < 9 {
			return nil, fmt.Errorf("obb line needs 9 tokens, got %d", len(parts))
		}
		coords, err := parseFloats(parts[1:9])
		if err != nil {
			return nil, err
		}
		ann.Points = coords

	case models.AnnotationSegment:
		if len(parts) < 2 {
			return nil, fmt.Errorf("segment line has no points")
		}
		coords, err := parseFloats(parts[1:])
		if err != nil {
			return nil, err
		}
		if len(coords) < 6 || len(coords)%2 != 0 {
			return nil, fmt.Errorf("segment polygon needs at least 3 x,y points, got %d values", len(coords))
		}
		ann.Points = coords

	case models.AnnotationPose:
		if len(parts) < 2 {
			return nil, fmt.Errorf("pose line has no keypoints")
		}
		coords, err := parseFloats(parts[1:])
		if err != nil {
			return nil, err
		}
		if len(coords)%3 != 0 {
			return nil, fmt.Errorf("pose keypoints must be x,y,v triples, got %d values", len(coords))
		}
		ann.Keypoints = coords
		ann.NumKeypoints = len(coords) / 3

	case models.AnnotationClassify:
		// class id only, no geometry

	default:
		return nil, fmt.Errorf("unknown dataset type %q", datasetType)
	}

	return ann, nil
}

// DecodeFile decodes every non-blank line of a label file. Malformed lines
// are logged and skipped; one corrupt label never aborts the batch. A
// missing label file yields an empty list (unannotated image).
func DecodeFile(path string, datasetType models.AnnotationType, classNames []string) []models.Annotation {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cannot read label file", "path", path, "error", err)
		}
		return nil
	}
	defer f.Close()

	var annotations []models.Annotation
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		ann, err := DecodeLine(scanner.Text(), datasetType, classNames)
		if err != nil {
			slog.Warn("skipping label line", "path", path, "line", lineNo, "error", err)
			continue
		}
		if ann == nil {
			continue
		}
		annotations = append(annotations, *ann)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("label file read aborted", "path", path, "error", err)
	}
	return annotations
}

func parseFloats(tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q: %v", tok, err)
		}
		out[i] = v
	}
	return out, nil
}
