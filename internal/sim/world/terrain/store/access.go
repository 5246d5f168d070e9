package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"pixelcraft.ai/internal/sim/materials"
)

var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore maps chunk coordinates to one file each under Dir.
type ChunkStore struct {
	Dir string
}

func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ChunkStore{Dir: dir}, nil
}

func (s *ChunkStore) Path(k ChunkKey) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d_%d.chunk", k.X, k.Y))
}

// Exists is a file-presence check; it does not validate contents.
func (s *ChunkStore) Exists(k ChunkKey) bool {
	_, err := os.Stat(s.Path(k))
	return err == nil
}

// Save writes ch and returns the file size.
func (s *ChunkStore) Save(ch *Chunk) (int64, error) {
	path := s.Path(ch.Key())
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := ch.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write chunk %v: %w", ch.Key(), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return n, nil
}

// Load reads chunk k. A *CorruptionError is returned together with the
// partially restored chunk.
func (s *ChunkStore) Load(k ChunkKey, reg *materials.Registry) (*Chunk, error) {
	f, err := os.Open(s.Path(k))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", ErrChunkNotFound, k)
		}
		return nil, err
	}
	defer f.Close()

	ch := NewPlaceholder(k.X, k.Y)
	if err := ch.ReadFrom(f, reg); err != nil {
		var ce *CorruptionError
		if errors.As(err, &ce) {
			return ch, err
		}
		return nil, err
	}
	return ch, nil
}

func (s *ChunkStore) Remove(k ChunkKey) error {
	err := os.Remove(s.Path(k))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists every persisted chunk, sorted by (X, Y).
func (s *ChunkStore) Keys() ([]ChunkKey, error) {
	ents, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var keys []ChunkKey
	for _, e := range ents {
		name, ok := strings.CutSuffix(e.Name(), ".chunk")
		if !ok || e.IsDir() {
			continue
		}
		xs, ys, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		x, err1 := strconv.Atoi(xs)
		y, err2 := strconv.Atoi(ys)
		if err1 != nil || err2 != nil {
			continue
		}
		keys = append(keys, ChunkKey{X: x, Y: y})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys, nil
}
