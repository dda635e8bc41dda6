package yolo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
)

func writeDescriptor(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFindDescriptorPrefersCanonicalNames(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "aaa.yaml", "names: [x]")
	want := writeDescriptor(t, dir, "data.yaml", "names: [x]")

	got, err := FindDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindDescriptorFallsBackToAnyYaml(t *testing.T) {
	dir := t.TempDir()
	want := writeDescriptor(t, dir, "custom.yaml", "names: [x]")

	got, err := FindDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindDescriptorMissing(t *testing.T) {
	_, err := FindDescriptor(t.TempDir())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestParseDescriptorNamesList(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "data.yaml", `
train: images/train
val: images/val
names:
  - cat
  - dog
`)
	d, err := ParseDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, d.ClassNames)
	assert.Equal(t, "images/train", d.SplitPaths["train"])
	assert.Equal(t, "images/val", d.SplitPaths["val"])
	assert.NotContains(t, d.SplitPaths, "test")
}

func TestParseDescriptorNamesMapOrderedByID(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "data.yaml", `
names:
  2: bird
  0: cat
  1: dog
`)
	d, err := ParseDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "bird"}, d.ClassNames)
}

func TestParseDescriptorMalformed(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "data.yaml", "names: [unclosed")
	_, err := ParseDescriptor(path)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestInferTypeOrdering(t *testing.T) {
	mk := func(t *testing.T, dirs ...string) string {
		root := t.TempDir()
		for _, d := range dirs {
			require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
		}
		return root
	}

	// obb marker wins even when segment directories exist
	root := mk(t, "obb_labels", "masks")
	assert.Equal(t, models.AnnotationOBB, InferType(root))

	root = mk(t, "classification", "masks")
	assert.Equal(t, models.AnnotationClassify, InferType(root))

	root = mk(t, "masks", "keypoints")
	assert.Equal(t, models.AnnotationSegment, InferType(root))

	root = mk(t, "keypoints")
	assert.Equal(t, models.AnnotationPose, InferType(root))

	root = mk(t, "images", "labels")
	assert.Equal(t, models.AnnotationDetect, InferType(root))
}

func TestStructureChecker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images", "train"), 0o755))

	ok, msg := Validate(root, models.AnnotationDetect, StructureChecker{})
	assert.True(t, ok, msg)

	ok, _ = Validate(t.TempDir(), models.AnnotationDetect, StructureChecker{})
	assert.False(t, ok)

	ok, _ = Validate(root, models.AnnotationType("panoptic"), StructureChecker{})
	assert.False(t, ok)
}

type panickyChecker struct{}

func (panickyChecker) Check(string, models.AnnotationType) error {
	panic("checker exploded")
}

func TestValidateRecoversFromPanic(t *testing.T) {
	ok, msg := Validate(t.TempDir(), models.AnnotationDetect, panickyChecker{})
	assert.False(t, ok)
	assert.Contains(t, msg, "checker exploded")
}
