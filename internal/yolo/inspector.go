package yolo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
)

// Descriptor is the parsed dataset descriptor (data.yaml).
type Descriptor struct {
	Path string
	// ClassNames ordered by numeric class id.
	ClassNames []string
	// SplitPaths maps split name to the relative path declared in the
	// descriptor, when present.
	SplitPaths map[string]string
	// Raw holds all descriptor fields as parsed.
	Raw map[string]interface{}
}

// descriptorCandidates are checked by exact name before falling back to the
// first *.yaml / *.yml file in the root.
var descriptorCandidates = []string{"data.yaml", "dataset.yaml", "data.yml", "dataset.yml"}

// FindDescriptor locates the dataset descriptor inside an extracted root.
func FindDescriptor(root string) (string, error) {
	for _, name := range descriptorCandidates {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err == nil && len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", errors.Wrapf(apperr.ErrNotFound, "no dataset descriptor in %s", root)
}

// yaml `names` is either a map of id to name or a plain list.
type descriptorNames struct {
	byID map[int]string
	list []string
}

func (n *descriptorNames) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		n.byID = map[int]string{}
		return node.Decode(&n.byID)
	case yaml.SequenceNode:
		return node.Decode(&n.list)
	default:
		return fmt.Errorf("unsupported names node kind %d", node.Kind)
	}
}

func (n *descriptorNames) ordered() []string {
	if n.list != nil {
		return n.list
	}
	ids := make([]int, 0, len(n.byID))
	for id := range n.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.byID[id])
	}
	return out
}

// ParseDescriptor reads and parses a descriptor file.
func ParseDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read descriptor")
	}

	var fields struct {
		Names descriptorNames `yaml:"names"`
		Train string          `yaml:"train"`
		Val   string          `yaml:"val"`
		Test  string          `yaml:"test"`
	}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(apperr.ErrInvalidArgument, "malformed descriptor %s: %v", path, err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(apperr.ErrInvalidArgument, "malformed descriptor %s: %v", path, err)
	}

	splitPaths := map[string]string{}
	if fields.Train != "" {
		splitPaths["train"] = fields.Train
	}
	if fields.Val != "" {
		splitPaths["val"] = fields.Val
	}
	if fields.Test != "" {
		splitPaths["test"] = fields.Test
	}

	return &Descriptor{
		Path:       path,
		ClassNames: fields.Names.ordered(),
		SplitPaths: splitPaths,
		Raw:        raw,
	}, nil
}

// InferType detects the dataset type from directory structure. The checks
// are ordered; the first match wins: obb markers, then classification
// markers, then segmentation directories, then pose markers, defaulting to
// detect.
func InferType(root string) models.AnnotationType {
	entries, err := os.ReadDir(root)
	if err != nil {
		return models.AnnotationDetect
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.ToLower(e.Name()))
	}

	hasMarker := func(markers ...string) bool {
		for _, n := range names {
			for _, m := range markers {
				if strings.Contains(n, m) {
					return true
				}
			}
		}
		return false
	}

	if hasMarker("obb", "rotated", "rbox") {
		return models.AnnotationOBB
	}
	if hasMarker("classify", "classification") {
		return models.AnnotationClassify
	}
	for _, dir := range []string{"segments", "masks", "polygons"} {
		if info, err := os.Stat(filepath.Join(root, dir)); err == nil && info.IsDir() {
			return models.AnnotationSegment
		}
	}
	if hasMarker("keypoints", "pose", "skeleton") {
		return models.AnnotationPose
	}
	return models.AnnotationDetect
}

// IntegrityChecker verifies that an extracted dataset is structurally sound
// for the declared type.
type IntegrityChecker interface {
	Check(root string, datasetType models.AnnotationType) error
}

// StructureChecker is the default integrity checker: the type must be
// supported and at least one images/<split> directory must exist.
type StructureChecker struct{}

func (StructureChecker) Check(root string, datasetType models.AnnotationType) error {
	if !models.SupportedAnnotationType(datasetType) {
		return errors.Wrapf(apperr.ErrInvalidArgument, "unsupported dataset type %q", datasetType)
	}
	for _, split := range models.Splits {
		if info, err := os.Stat(filepath.Join(root, "images", split)); err == nil && info.IsDir() {
			return nil
		}
	}
	return fmt.Errorf("no images/<split> directory under %s", root)
}

// Validate runs the integrity checker over the dataset. A panicking checker
// is reported as a validation failure, never a crash.
func Validate(root string, datasetType models.AnnotationType, checker IntegrityChecker) (ok bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			message = fmt.Sprintf("validation error: %v", r)
		}
	}()
	if err := checker.Check(root, datasetType); err != nil {
		return false, err.Error()
	}
	return true, "dataset validation successful"
}
