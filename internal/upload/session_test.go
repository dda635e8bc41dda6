package upload

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-service/internal/apperr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), 1<<20, time.Hour)
	t.Cleanup(m.Close)
	return m
}

func TestSessionReassemblesOutOfOrder(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("dataset.zip", 9, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusUploading, s.Status())

	require.NoError(t, m.ReceiveChunk(s.ID, 2, bytes.NewReader([]byte("ghi"))))
	require.NoError(t, m.ReceiveChunk(s.ID, 0, bytes.NewReader([]byte("abc"))))
	require.NoError(t, m.ReceiveChunk(s.ID, 1, bytes.NewReader([]byte("def"))))

	path, err := m.Complete(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, s.Status())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(data))

	// fragments are gone after assembly
	for i := 0; i < 3; i++ {
		_, err := os.Stat(s.chunkPath(i))
		assert.True(t, os.IsNotExist(err))
	}
}

func TestCompleteWithMissingChunks(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("dataset.zip", 6, 3, 2)
	require.NoError(t, err)
	require.NoError(t, m.ReceiveChunk(s.ID, 0, bytes.NewReader([]byte("abc"))))

	_, err = m.Complete(s.ID)
	assert.True(t, errors.Is(err, apperr.ErrIncomplete))
	assert.Equal(t, StatusUploading, s.Status())

	// the missing chunk can still arrive and completion then succeeds
	require.NoError(t, m.ReceiveChunk(s.ID, 1, bytes.NewReader([]byte("def"))))
	_, err = m.Complete(s.ID)
	assert.NoError(t, err)
}

func TestReceiveChunkIdempotent(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("dataset.zip", 6, 3, 2)
	require.NoError(t, err)

	require.NoError(t, m.ReceiveChunk(s.ID, 0, bytes.NewReader([]byte("old"))))
	require.NoError(t, m.ReceiveChunk(s.ID, 0, bytes.NewReader([]byte("new"))))
	assert.Equal(t, 1, s.ReceivedCount())

	require.NoError(t, m.ReceiveChunk(s.ID, 1, bytes.NewReader([]byte("def"))))
	path, err := m.Complete(s.ID)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "newdef", string(data))
}

func TestReceiveChunkBadIndex(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("dataset.zip", 6, 3, 2)
	require.NoError(t, err)

	err = m.ReceiveChunk(s.ID, 2, bytes.NewReader([]byte("x")))
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	err = m.ReceiveChunk(s.ID, -1, bytes.NewReader([]byte("x")))
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestUnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.ReceiveChunk(uuid.New(), 0, bytes.NewReader([]byte("x")))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = m.Complete(uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStartRejectsOversizedArchive(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start("huge.zip", 2<<20, 1024, 2048)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestStartSanitizesFilename(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("../../etc/passwd", 3, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "passwd", s.Filename)
}

func TestConcurrentChunks(t *testing.T) {
	m := newTestManager(t)
	const chunks = 20
	s, err := m.Start("dataset.zip", chunks, 1, chunks)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.ReceiveChunk(s.ID, i, bytes.NewReader([]byte{byte('a' + i%26)})))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, chunks, s.ReceivedCount())
	path, err := m.Complete(s.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, chunks)
}

func TestRemoveDeletesTempDir(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("dataset.zip", 3, 3, 1)
	require.NoError(t, err)
	require.NoError(t, m.ReceiveChunk(s.ID, 0, bytes.NewReader([]byte("abc"))))

	m.Remove(s.ID)
	assert.Equal(t, 0, m.Len())
	_, err = os.Stat(s.TempDir)
	assert.True(t, os.IsNotExist(err))
	_, err = m.Get(s.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestEvictExpired(t *testing.T) {
	m := newTestManager(t)
	fresh, err := m.Start("fresh.zip", 3, 3, 1)
	require.NoError(t, err)
	stale, err := m.Start("stale.zip", 3, 3, 1)
	require.NoError(t, err)

	stale.ExpiresAt = time.Now().Add(-time.Minute)
	m.evictExpired(time.Now())

	assert.Equal(t, 1, m.Len())
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
	_, err = m.Get(stale.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
