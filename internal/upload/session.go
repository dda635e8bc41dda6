package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"dataset-service/internal/apperr"
)

// Status is the lifecycle state of an upload session.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusAssembling Status = "assembling"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Session tracks one in-progress chunked upload. Chunks may arrive in any
// order and concurrently; the received-index set is guarded by mu.
type Session struct {
	ID          uuid.UUID
	Filename    string
	TotalSize   int64
	ChunkSize   int64
	TotalChunks int
	TempDir     string
	ExpiresAt   time.Time

	mu        sync.Mutex
	status    Status
	received  map[int]struct{}
	assembled string
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReceivedCount returns how many distinct chunk indices have arrived.
func (s *Session) ReceivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *Session) chunkPath(index int) string {
	return filepath.Join(s.TempDir, fmt.Sprintf("%s.part%d", s.Filename, index))
}

// Manager is the process-wide registry of upload sessions. Abandoned
// sessions are evicted by a background sweep once their expiry passes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	tempRoot string
	maxSize  int64
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager rooted at tempRoot and starts the
// eviction sweeper.
func NewManager(tempRoot string, maxSize int64, ttl time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[uuid.UUID]*Session),
		tempRoot: tempRoot,
		maxSize:  maxSize,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go m.sweepExpired()
	return m
}

// Start opens a new upload session and allocates its temporary directory.
func (m *Manager) Start(filename string, totalSize, chunkSize int64, totalChunks int) (*Session, error) {
	if totalSize <= 0 || totalSize > m.maxSize {
		return nil, errors.Wrapf(apperr.ErrInvalidArgument,
			"declared size %d exceeds maximum %d", totalSize, m.maxSize)
	}
	if totalChunks <= 0 || chunkSize <= 0 {
		return nil, errors.Wrap(apperr.ErrInvalidArgument, "chunk parameters must be positive")
	}

	id := uuid.New()
	tempDir := filepath.Join(m.tempRoot, id.String())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create session directory")
	}

	s := &Session{
		ID:          id,
		Filename:    filepath.Base(filename),
		TotalSize:   totalSize,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		TempDir:     tempDir,
		ExpiresAt:   time.Now().Add(m.ttl),
		status:      StatusUploading,
		received:    make(map[int]struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(apperr.ErrNotFound, "upload session %s", id)
	}
	return s, nil
}

// ReceiveChunk stores one chunk. Re-receiving an index overwrites the chunk
// file and does not double-count.
func (m *Manager) ReceiveChunk(id uuid.UUID, index int, r io.Reader) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= s.TotalChunks {
		return errors.Wrapf(apperr.ErrInvalidArgument,
			"chunk index %d outside [0,%d)", index, s.TotalChunks)
	}

	f, err := os.Create(s.chunkPath(index))
	if err != nil {
		return errors.Wrap(err, "could not create chunk file")
	}
	_, err = io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(s.chunkPath(index))
		return errors.Wrap(err, "failed to write chunk")
	}

	s.mu.Lock()
	s.received[index] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Complete assembles the chunks into a single file, strictly in index
// order, and deletes the fragments. If any chunk is missing the session
// stays in uploading and ErrIncomplete is returned. Any I/O failure during
// assembly destroys the whole session and its temporary files.
func (m *Manager) Complete(id uuid.UUID) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if len(s.received) != s.TotalChunks {
		got := len(s.received)
		s.mu.Unlock()
		return "", errors.Wrapf(apperr.ErrIncomplete,
			"received %d of %d chunks", got, s.TotalChunks)
	}
	s.status = StatusAssembling
	s.mu.Unlock()

	assembled := filepath.Join(s.TempDir, s.Filename)
	if err := m.assemble(s, assembled); err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.mu.Unlock()
		m.Remove(id)
		return "", errors.Wrapf(apperr.ErrStorageFailure, "assembly failed: %v", err)
	}

	s.mu.Lock()
	s.status = StatusComplete
	s.assembled = assembled
	s.mu.Unlock()
	return assembled, nil
}

func (m *Manager) assemble(s *Session, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	for i := 0; i < s.TotalChunks; i++ {
		chunk, err := os.Open(s.chunkPath(i))
		if err != nil {
			out.Close()
			return err
		}
		_, err = io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			out.Close()
			return err
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	for i := 0; i < s.TotalChunks; i++ {
		os.Remove(s.chunkPath(i))
	}
	return nil
}

// Remove deletes a session and its temporary directory.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		os.RemoveAll(s.TempDir)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the eviction sweeper.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) sweepExpired() {
	interval := m.ttl / 2
	if interval > time.Minute || interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

func (m *Manager) evictExpired(now time.Time) {
	m.mu.RLock()
	var expired []uuid.UUID
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Remove(id)
	}
	if len(expired) > 0 {
		slog.Info("evicted expired upload sessions", "count", len(expired))
	}
}
