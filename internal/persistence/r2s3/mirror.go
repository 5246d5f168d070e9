package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	EnqueuedTotal      uint64
	CoalescedTotal     uint64
	DroppedTotal       uint64
	UploadSuccessTotal uint64
	UploadFailTotal    uint64
	LastSuccessUnix    int64
	LastErrorUnix      int64
}

type putter interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

// ChunkMirror copies chunk files to a bucket after the world writes them.
// It is a world.ChunkLedger: every recorded save schedules an upload of that
// chunk's file. Saves of a chunk already waiting for upload are coalesced.
type ChunkMirror struct {
	client  putter
	dataDir string
	prefix  string
	pathOf  func(x, y int) string
	logger  *log.Logger

	jobs chan string
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool

	enqueuedTotal      atomic.Uint64
	coalescedTotal     atomic.Uint64
	droppedTotal       atomic.Uint64
	uploadSuccessTotal atomic.Uint64
	uploadFailTotal    atomic.Uint64
	lastSuccessUnix    atomic.Int64
	lastErrorUnix      atomic.Int64
}

// NewChunkMirror uploads files under dataDir; pathOf maps a chunk coordinate
// to its file. Object keys are the path relative to dataDir under prefix.
func NewChunkMirror(client putter, dataDir, prefix string, pathOf func(x, y int) string, workers, queueCapacity int, logger *log.Logger) *ChunkMirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 2048
	}
	m := &ChunkMirror{
		client:  client,
		dataDir: dataDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		pathOf:  pathOf,
		logger:  logger,
		jobs:    make(chan string, queueCapacity),
		pending: map[string]bool{},
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.mu.Lock()
				delete(m.pending, p)
				m.mu.Unlock()
				m.uploadOne(p)
			}
		}()
	}
	return m
}

func (m *ChunkMirror) RecordSave(x, y int, phase int8, bytes int64) {
	m.Enqueue(m.pathOf(x, y))
}

// RecordCorruption is a no-op; corrupt files are not mirrored.
func (m *ChunkMirror) RecordCorruption(x, y int, reason string) {}

// Enqueue schedules localPath for upload without blocking. A full queue drops
// the request.
func (m *ChunkMirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	m.enqueuedTotal.Add(1)
	m.mu.Lock()
	if m.pending[localPath] {
		m.mu.Unlock()
		m.coalescedTotal.Add(1)
		return
	}
	m.pending[localPath] = true
	m.mu.Unlock()

	select {
	case m.jobs <- localPath:
	default:
		m.mu.Lock()
		delete(m.pending, localPath)
		m.mu.Unlock()
		dropped := m.droppedTotal.Add(1)
		m.printf("mirror drop local=%s reason=queue_full dropped_total=%d", localPath, dropped)
	}
}

func (m *ChunkMirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *ChunkMirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(m.jobs),
		QueueCapacity:      cap(m.jobs),
		EnqueuedTotal:      m.enqueuedTotal.Load(),
		CoalescedTotal:     m.coalescedTotal.Load(),
		DroppedTotal:       m.droppedTotal.Load(),
		UploadSuccessTotal: m.uploadSuccessTotal.Load(),
		UploadFailTotal:    m.uploadFailTotal.Load(),
		LastSuccessUnix:    m.lastSuccessUnix.Load(),
		LastErrorUnix:      m.lastErrorUnix.Load(),
	}
}

func (m *ChunkMirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.printf("mirror skip local=%s err=%v", localPath, err)
		return
	}
	if err := m.uploadWithRetry(key, localPath); err != nil {
		m.uploadFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.printf("mirror upload failed key=%s err=%v", key, err)
		return
	}
	m.uploadSuccessTotal.Add(1)
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
}

func (m *ChunkMirror) uploadWithRetry(key, localPath string) error {
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := m.client.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
		}
	}
	return lastErr
}

func (m *ChunkMirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	absBase, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside data dir %s", absLocal, absBase)
	}
	if m.prefix != "" {
		return path.Join(m.prefix, rel), nil
	}
	return rel, nil
}

func (m *ChunkMirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
