package services

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-service/internal/apperr"
	"dataset-service/internal/models"
	"dataset-service/internal/uploader"
	"dataset-service/internal/yolo"
)

type fakeDatasetStore struct {
	created    []*models.Dataset
	classNames []string
	breakdown  models.SplitBreakdown
	errorMsg   string
	createErr  error
}

func (f *fakeDatasetStore) CreateDataset(d *models.Dataset) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDatasetStore) SetClasses(_ uuid.UUID, _ models.AnnotationType, names []string) error {
	f.classNames = names
	return nil
}

func (f *fakeDatasetStore) UpdateStats(_ uuid.UUID, breakdown models.SplitBreakdown) error {
	f.breakdown = breakdown
	return nil
}

func (f *fakeDatasetStore) SetError(_ uuid.UUID, message string) error {
	f.errorMsg = message
	return nil
}

type fakeImageStore struct {
	inserted []models.Image
}

func (f *fakeImageStore) BulkCreate(images []models.Image) (int, error) {
	f.inserted = append(f.inserted, images...)
	return len(images), nil
}

// fakeUploader confirms every key except those whose filename is listed in
// reject.
type fakeUploader struct {
	reject  map[string]bool
	batches [][]uploader.Item
}

func (f *fakeUploader) UploadBatch(_ context.Context, items []uploader.Item) *uploader.Summary {
	f.batches = append(f.batches, items)
	summary := &uploader.Summary{Total: len(items)}
	for _, it := range items {
		base := filepath.Base(it.Key)
		if f.reject[base] {
			summary.FailedItems = append(summary.FailedItems, uploader.FailedItem{Item: it, LastError: "rejected"})
		} else {
			summary.SuccessKeys = append(summary.SuccessKeys, it.Key)
		}
	}
	summary.Succeeded = len(summary.SuccessKeys)
	summary.Failed = len(summary.FailedItems)
	return summary
}

func writePNG(t *testing.T, path string, w, h int) int64 {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	info, err := f.Stat()
	require.NoError(t, err)
	return info.Size()
}

func writeFixtureDataset(t *testing.T) (root string, totalBytes int64) {
	t.Helper()
	root = t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "data.yaml"), []byte(`
train: images/train
names:
  - cat
  - dog
`), 0o644))

	imagesDir := filepath.Join(root, "images", "train")
	labelsDir := filepath.Join(root, "labels", "train")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	require.NoError(t, os.MkdirAll(labelsDir, 0o755))

	totalBytes += writePNG(t, filepath.Join(imagesDir, "a.png"), 8, 6)
	totalBytes += writePNG(t, filepath.Join(imagesDir, "b.png"), 4, 4)
	totalBytes += writePNG(t, filepath.Join(imagesDir, "c.png"), 2, 2)

	require.NoError(t, os.WriteFile(filepath.Join(labelsDir, "a.txt"),
		[]byte("0 0.5 0.5 0.3 0.4\n1 0.2 0.2 0.1 0.1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(labelsDir, "b.txt"),
		[]byte("0 0.5 0.5 0.3 0.4\n"), 0o644))
	return root, totalBytes
}

func newTestIngest(datasets *fakeDatasetStore, images *fakeImageStore, up ObjectUploader) *IngestService {
	return NewIngestService(datasets, images, up, yolo.StructureChecker{}, nil, "admin")
}

func TestIngestDatasetRecordsOnlyConfirmedUploads(t *testing.T) {
	root, totalBytes := writeFixtureDataset(t)
	datasets := &fakeDatasetStore{}
	images := &fakeImageStore{}
	up := &fakeUploader{reject: map[string]bool{"b.png": true}}

	svc := newTestIngest(datasets, images, up)
	result, err := svc.IngestDataset(context.Background(), root, IngestRequest{
		Name: "traffic", DeclaredType: models.AnnotationDetect, CreatedBy: "tester",
	})
	require.NoError(t, err)

	require.Len(t, datasets.created, 1)
	assert.Equal(t, models.StatusProcessing, datasets.created[0].Status)
	assert.Equal(t, []string{"cat", "dog"}, datasets.classNames)

	// one batch call for the only populated split
	require.Len(t, up.batches, 1)
	assert.Len(t, up.batches[0], 3)

	// only confirmed keys become records
	require.Len(t, images.inserted, 2)
	names := []string{images.inserted[0].Filename, images.inserted[1].Filename}
	assert.ElementsMatch(t, []string{"a.png", "c.png"}, names)

	train := datasets.breakdown["train"]
	assert.Equal(t, 2, train.Images)
	// annotations counted only for inserted images: a.png has 2, c.png none
	assert.Equal(t, 2, train.Annotations)
	// bytes counted for everything staged, including the failed upload
	assert.Equal(t, totalBytes, train.SizeBytes)
	assert.Equal(t, models.SplitStats{}, datasets.breakdown["val"])
	assert.Equal(t, models.SplitStats{}, datasets.breakdown["test"])

	assert.Equal(t, 2, result.NumImages)
	assert.Equal(t, models.AnnotationDetect, result.DatasetType)
}

func TestIngestDatasetImageMetadata(t *testing.T) {
	root, _ := writeFixtureDataset(t)
	datasets := &fakeDatasetStore{}
	images := &fakeImageStore{}
	up := &fakeUploader{}

	svc := newTestIngest(datasets, images, up)
	result, err := svc.IngestDataset(context.Background(), root, IngestRequest{
		Name: "traffic", DeclaredType: models.AnnotationDetect,
	})
	require.NoError(t, err)
	require.Len(t, images.inserted, 3)

	var a models.Image
	for _, img := range images.inserted {
		if img.Filename == "a.png" {
			a = img
		}
	}
	assert.Equal(t, result.DatasetID, a.DatasetID)
	assert.Equal(t, "admin/"+result.DatasetID.String()+"/images/train/a.png", a.StorageKey)
	assert.Equal(t, 8, a.Width)
	assert.Equal(t, 6, a.Height)
	assert.Equal(t, "png", a.Format)
	assert.Equal(t, "train", a.Split)
	assert.Len(t, a.FileHash, 32)
	assert.True(t, a.IsAnnotated)
	assert.Equal(t, 2, a.AnnotationCount)
	assert.Equal(t, "cat", a.Annotations[0].ClassName)
}

func TestIngestDatasetMissingDescriptor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images", "train"), 0o755))

	datasets := &fakeDatasetStore{}
	svc := newTestIngest(datasets, &fakeImageStore{}, &fakeUploader{})

	_, err := svc.IngestDataset(context.Background(), root, IngestRequest{Name: "broken"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	// the dataset row exists and carries the failure
	require.Len(t, datasets.created, 1)
	assert.Contains(t, datasets.errorMsg, "descriptor")
}

func TestIngestDatasetValidationFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.yaml"), []byte("names: [cat]"), 0o644))

	datasets := &fakeDatasetStore{}
	svc := newTestIngest(datasets, &fakeImageStore{}, &fakeUploader{})

	_, err := svc.IngestDataset(context.Background(), root, IngestRequest{Name: "empty"})
	assert.True(t, errors.Is(err, apperr.ErrValidationFailed))
	assert.Contains(t, datasets.errorMsg, "images")
}

func TestIngestDatasetDuplicateName(t *testing.T) {
	datasets := &fakeDatasetStore{createErr: errors.Wrap(apperr.ErrConflict, "dataset name taken")}
	svc := newTestIngest(datasets, &fakeImageStore{}, &fakeUploader{})

	_, err := svc.IngestDataset(context.Background(), t.TempDir(), IngestRequest{Name: "dup"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Empty(t, datasets.errorMsg)
}

func TestIngestDatasetSkipsNonImageFiles(t *testing.T) {
	root, _ := writeFixtureDataset(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "train", "notes.txt"), []byte("x"), 0o644))

	datasets := &fakeDatasetStore{}
	images := &fakeImageStore{}
	up := &fakeUploader{}
	svc := newTestIngest(datasets, images, up)

	_, err := svc.IngestDataset(context.Background(), root, IngestRequest{
		Name: "traffic", DeclaredType: models.AnnotationDetect,
	})
	require.NoError(t, err)
	require.Len(t, up.batches, 1)
	for _, it := range up.batches[0] {
		assert.False(t, strings.HasSuffix(it.Key, ".txt"))
	}
	assert.Len(t, images.inserted, 3)
}
