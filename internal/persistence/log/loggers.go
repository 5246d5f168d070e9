package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"pixelcraft.ai/internal/sim/world"
)

// JSONLZstdWriter appends JSON lines to zstd files rotated per UTC hour:
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst. Each hour is a separate zstd frame
// so a crash loses at most the unflushed tail.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	hour  string
	file  *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	lines uint64
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

// Write encodes v as one line and flushes it through the encoder.
func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if hour := w.now().UTC().Format("2006-01-02-15"); hour != w.hour {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}
	b = append(b, '\n')
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	w.lines++
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// Lines is the number of lines written since the writer was created.
func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Path(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *JSONLZstdWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file, w.enc, w.hour = f, enc, hour
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file, w.enc, w.buf, w.hour = nil, nil, nil, ""
	return err
}

// TickLogger writes every Nth frame's stats to <worldDir>/ticks/.
type TickLogger struct {
	w     *JSONLZstdWriter
	every uint64
}

func NewTickLogger(worldDir string, every int) *TickLogger {
	if every <= 0 {
		every = 1
	}
	return &TickLogger{
		w:     NewJSONLZstdWriter(filepath.Join(worldDir, "ticks"), "ticks"),
		every: uint64(every),
	}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error {
	if e.Tick%l.every != 0 {
		return nil
	}
	return l.w.Write(e)
}

func (l *TickLogger) Close() error { return l.w.Close() }

type ChunkEvent struct {
	Kind   string `json:"kind"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Phase  int8   `json:"phase,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Reason string `json:"reason,omitempty"`
	At     int64  `json:"at"`
}

// ChunkLogger is a world.ChunkLedger that appends chunk events to
// <worldDir>/chunk_events/. Write errors go to onErr when set.
type ChunkLogger struct {
	w     *JSONLZstdWriter
	onErr func(error)
}

func NewChunkLogger(worldDir string, onErr func(error)) *ChunkLogger {
	return &ChunkLogger{
		w:     NewJSONLZstdWriter(filepath.Join(worldDir, "chunk_events"), "chunks"),
		onErr: onErr,
	}
}

func (l *ChunkLogger) RecordSave(x, y int, phase int8, bytes int64) {
	l.write(ChunkEvent{Kind: "save", X: x, Y: y, Phase: phase, Bytes: bytes})
}

func (l *ChunkLogger) RecordCorruption(x, y int, reason string) {
	l.write(ChunkEvent{Kind: "corruption", X: x, Y: y, Reason: reason})
}

func (l *ChunkLogger) Close() error { return l.w.Close() }

func (l *ChunkLogger) write(ev ChunkEvent) {
	ev.At = l.w.now().UTC().UnixMilli()
	if err := l.w.Write(ev); err != nil && l.onErr != nil {
		l.onErr(err)
	}
}
