// Package gen holds the procedural terrain generators.
//
// A generator fills a chunk's layers in one pass (phase 0) and may declare
// populators, later passes that run once the chunk's 8 neighbors have caught
// up and can therefore be read and written.
package gen

import (
	"fmt"
	"image"
	"strings"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

// Generator must be safe for concurrent GenerateChunk calls; the world runs
// them on its load pool.
type Generator interface {
	Name() string
	GenerateChunk(ch *store.Chunk)
	// Populators are returned sorted by phase, phases starting at 1.
	Populators() []Populator
}

// Populators run on the world goroutine only.
type Populator interface {
	Phase() int
	Apply(tiles []materials.Tile, nb *Neighborhood, ch *store.Chunk) []PlacedStructure
}

// PlacedStructure reports a feature stamped by a populator, in global pixels.
// Bounds may extend into neighbor chunks.
type PlacedStructure struct {
	Name   string
	Bounds image.Rectangle
}

// MaxPhase is the last phase a chunk can reach under g.
func MaxPhase(g Generator) int8 {
	var m int
	for _, p := range g.Populators() {
		m = max(m, p.Phase())
	}
	return int8(m)
}

// PopulatorsFor returns the populators tagged with phase.
func PopulatorsFor(g Generator, phase int) []Populator {
	var out []Populator
	for _, p := range g.Populators() {
		if p.Phase() == phase {
			out = append(out, p)
		}
	}
	return out
}

// New selects a generator variant by name.
func New(name string, seed int64, reg *materials.Registry) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return NewDefault(seed, reg)
	case "material_test", "materialtest":
		return NewMaterialTest(reg)
	default:
		return nil, fmt.Errorf("unknown generator %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
}

func Names() []string { return []string{"default", "material_test"} }

// Neighborhood is the 3x3 block of chunks centered on (CX, CY), addressed in
// global pixel coordinates.
type Neighborhood struct {
	CX, CY int
	chunks [9]*store.Chunk
}

func NewNeighborhood(cx, cy int, get func(store.ChunkKey) *store.Chunk) *Neighborhood {
	n := &Neighborhood{CX: cx, CY: cy}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			n.chunks[(dy+1)*3+dx+1] = get(store.ChunkKey{X: cx + dx, Y: cy + dy})
		}
	}
	return n
}

// Chunk returns the neighbor at offset (dx, dy) in [-1,1], or nil.
func (n *Neighborhood) Chunk(dx, dy int) *store.Chunk {
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
		return nil
	}
	return n.chunks[(dy+1)*3+dx+1]
}

func (n *Neighborhood) locate(gx, gy int) (*store.Chunk, int) {
	cx := mathx.FloorDiv(gx, store.Width)
	cy := mathx.FloorDiv(gy, store.Height)
	ch := n.Chunk(cx-n.CX, cy-n.CY)
	if ch == nil || !ch.HasTileCache() {
		return nil, 0
	}
	return ch, store.Index(mathx.Mod(gx, store.Width), mathx.Mod(gy, store.Height))
}

func (n *Neighborhood) Get(gx, gy int) (materials.Tile, bool) {
	ch, i := n.locate(gx, gy)
	if ch == nil {
		return materials.Tile{}, false
	}
	return ch.Tiles[i], true
}

// Set reports false when (gx, gy) falls outside the loaded neighborhood.
func (n *Neighborhood) Set(gx, gy int, t materials.Tile) bool {
	ch, i := n.locate(gx, gy)
	if ch == nil {
		return false
	}
	ch.Tiles[i] = t
	return true
}
