package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world/terrain/gen"
)

// Version is written to world.json whenever a world is opened.
const Version = "pixelcraft/0.4.0"

type Config struct {
	Tuning tuning.Tuning

	// Dir holds world.json and chunks/. Required.
	Dir string

	Registry *materials.Registry

	// Optional; selected from Tuning.World.Generator when nil.
	Generator gen.Generator
	// Optional; a Headless engine with Tuning gravity when nil.
	Physics physics.Engine

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	Ledger     ChunkLedger
	TickLogger TickLogger

	Logger *log.Logger
}

// ChunkLedger records chunk writes and corruption for offline inspection.
type ChunkLedger interface {
	RecordSave(x, y int, phase int8, bytes int64)
	RecordCorruption(x, y int, reason string)
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick  uint64     `json:"tick"`
	Stats FrameStats `json:"stats"`
}

// Meta is the content of world.json. Absent fields decode as zero values.
type Meta struct {
	Name              string `json:"name"`
	LastOpenedVersion string `json:"lastOpenedVersion"`
	LastOpenedTime    int64  `json:"lastOpenedTime"`
}

func metaPath(dir string) string { return filepath.Join(dir, "world.json") }

// ReadMeta returns the zero Meta when world.json does not exist.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(metaPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("world.json: %w", err)
	}
	return m, nil
}

func WriteMeta(dir string, m Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := metaPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, metaPath(dir))
}

// touchMeta stamps the open time and version, keeping an existing name.
func touchMeta(dir, name string, now time.Time) (Meta, error) {
	m, err := ReadMeta(dir)
	if err != nil {
		return m, err
	}
	if m.Name == "" {
		m.Name = name
	}
	m.LastOpenedVersion = Version
	m.LastOpenedTime = now.Unix()
	return m, WriteMeta(dir, m)
}
