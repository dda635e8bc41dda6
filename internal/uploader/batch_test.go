package uploader

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore fails each key the configured number of times before accepting it.
type fakeStore struct {
	mu        sync.Mutex
	failures  map[string]int
	putCalls  map[string]int
	signCalls int
	badKeys   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failures: map[string]int{},
		putCalls: map[string]int{},
		badKeys:  map[string]bool{},
	}
}

func (f *fakeStore) FPutObject(_ context.Context, _, objectName, _ string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls[objectName]++
	if f.failures[objectName] > 0 {
		f.failures[objectName]--
		return minio.UploadInfo{}, fmt.Errorf("transient failure for %s", objectName)
	}
	return minio.UploadInfo{Key: objectName}, nil
}

func (f *fakeStore) PresignedGetObject(_ context.Context, _, objectName string, _ time.Duration, _ url.Values) (*url.URL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signCalls++
	if f.badKeys[objectName] {
		return nil, fmt.Errorf("no such key %s", objectName)
	}
	return url.Parse("https://store.local/" + objectName)
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{Key: fmt.Sprintf("key-%d", i), LocalPath: "/tmp/x", ContentType: "image/jpeg"}
	}
	return out
}

func TestUploadBatchAllSucceed(t *testing.T) {
	store := newFakeStore()
	u := New(store, "bucket", 4, 3, time.Millisecond)

	summary := u.UploadBatch(context.Background(), items(10))
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 10, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.SuccessKeys, 10)
	assert.Empty(t, summary.FailedItems)
	assert.Empty(t, summary.Retries)
}

func TestUploadBatchRetriesTransientFailures(t *testing.T) {
	store := newFakeStore()
	store.failures["key-1"] = 2
	u := New(store, "bucket", 4, 3, time.Millisecond)

	summary := u.UploadBatch(context.Background(), items(3))
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, summary.Retries, 2)
	assert.Equal(t, 1, summary.Retries[0].Attempt)
	assert.Equal(t, 1, summary.Retries[0].Retried)
	assert.Equal(t, 0, summary.Retries[0].Recovered)
	assert.Equal(t, 1, summary.Retries[1].Recovered)

	for _, out := range summary.Outcomes {
		if out.Key == "key-1" {
			assert.Equal(t, 3, out.Attempts)
			assert.True(t, out.Success)
		}
	}
}

func TestUploadBatchPermanentFailure(t *testing.T) {
	store := newFakeStore()
	store.failures["key-0"] = 100
	u := New(store, "bucket", 2, 3, time.Millisecond)

	summary := u.UploadBatch(context.Background(), items(4))
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, summary.Total, len(summary.SuccessKeys)+len(summary.FailedItems))

	require.Len(t, summary.FailedItems, 1)
	assert.Equal(t, "key-0", summary.FailedItems[0].Key)
	assert.Contains(t, summary.FailedItems[0].LastError, "transient failure")
	assert.NotContains(t, summary.SuccessKeys, "key-0")

	// initial pass + 3 retry rounds
	assert.Equal(t, 4, store.putCalls["key-0"])
}

func TestUploadBatchEmpty(t *testing.T) {
	u := New(newFakeStore(), "bucket", 4, 3, time.Millisecond)
	summary := u.UploadBatch(context.Background(), nil)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.Outcomes)
}

func TestUploadBatchCancelledContext(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := New(store, "bucket", 2, 3, time.Minute)
	summary := u.UploadBatch(ctx, items(5))
	assert.Equal(t, 5, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)
}

func TestPresignBatch(t *testing.T) {
	store := newFakeStore()
	store.badKeys["key-1"] = true
	u := New(store, "bucket", 4, 3, time.Millisecond)

	summary := u.PresignBatch(context.Background(), []string{"key-0", "key-1", "key-2"}, time.Hour)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	byKey := map[string]URLResult{}
	for _, res := range summary.Results {
		byKey[res.Key] = res
	}
	assert.Equal(t, "https://store.local/key-0", byKey["key-0"].URL)
	assert.NotEmpty(t, byKey["key-1"].Error)

	// presigning never retries
	assert.Equal(t, 3, store.signCalls)
}
