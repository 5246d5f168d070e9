package store

import (
	"fmt"

	"pixelcraft.ai/internal/sim/geom"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
)

const (
	Width  = 128
	Height = 128
	Area   = Width * Height

	// PhasePlaceholder marks a chunk that has been referenced but holds no tiles.
	PhasePlaceholder int8 = -1
)

type ChunkKey struct {
	X int
	Y int
}

func (k ChunkKey) String() string { return fmt.Sprintf("(%d,%d)", k.X, k.Y) }

type Chunk struct {
	X, Y int

	// Phase counts completed generation passes; -1 for placeholders.
	Phase int8

	Tiles      []materials.Tile
	Background []materials.Tile
	BGColor    []uint32
	Biome      []uint8

	// Static collision geometry, in chunk-local pixels.
	Triangles []geom.Triangle
	Body      physics.BodyID
	HasBody   bool
	MeshDirty bool
}

func NewPlaceholder(x, y int) *Chunk {
	return &Chunk{X: x, Y: y, Phase: PhasePlaceholder}
}

func (c *Chunk) Key() ChunkKey { return ChunkKey{X: c.X, Y: c.Y} }

// HasTileCache reports whether tile data is present (loaded or generated).
func (c *Chunk) HasTileCache() bool { return c.Tiles != nil }

// Allocate fills every layer with air. Existing buffers are reused.
func (c *Chunk) Allocate() {
	if c.Tiles == nil {
		c.Tiles = make([]materials.Tile, Area)
		c.Background = make([]materials.Tile, Area)
		c.BGColor = make([]uint32, Area)
		c.Biome = make([]uint8, Area)
	}
	if len(c.Tiles) != Area || len(c.Background) != Area || len(c.BGColor) != Area || len(c.Biome) != Area {
		panic(fmt.Sprintf("store: chunk %v has malformed buffers", c.Key()))
	}
	for i := range c.Tiles {
		c.Tiles[i] = materials.AirTile()
		c.Background[i] = materials.AirTile()
		c.BGColor[i] = 0
		c.Biome[i] = 0
	}
}

// Release drops tile data, turning the chunk back into a placeholder shell.
func (c *Chunk) Release() {
	c.Tiles, c.Background, c.BGColor, c.Biome = nil, nil, nil, nil
	c.Triangles = nil
}

func Index(lx, ly int) int { return lx + ly*Width }

func (c *Chunk) Get(lx, ly int) materials.Tile { return c.Tiles[Index(lx, ly)] }

func (c *Chunk) Set(lx, ly int, t materials.Tile) { c.Tiles[Index(lx, ly)] = t }
