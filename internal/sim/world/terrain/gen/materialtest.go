package gen

import (
	"math/rand/v2"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

const (
	testFloorY    = 64
	testColumnW   = 8
	testColumnGap = 4
	testColumnY0  = 16
)

// MaterialTest lays a flat stone floor with one column of every non-air
// material above it, starting at x = 0.
type MaterialTest struct {
	reg   *materials.Registry
	stone uint16
}

func NewMaterialTest(reg *materials.Registry) (*MaterialTest, error) {
	return &MaterialTest{reg: reg, stone: reg.MustID("STONE")}, nil
}

func (g *MaterialTest) Name() string { return "material_test" }

func (g *MaterialTest) Populators() []Populator { return nil }

// ColumnMaterial returns the material stacked at column x, or 0.
func (g *MaterialTest) ColumnMaterial(x int) uint16 {
	stride := testColumnW + testColumnGap
	if x < 0 || x%stride >= testColumnW {
		return 0
	}
	id := 1 + x/stride
	if id >= g.reg.Len() {
		return 0
	}
	return uint16(id)
}

func (g *MaterialTest) GenerateChunk(ch *store.Chunk) {
	ch.Allocate()
	rng := rand.New(rand.NewPCG(uint64(ch.X), uint64(ch.Y)))
	x0, y0 := ch.X*store.Width, ch.Y*store.Height
	for ly := 0; ly < store.Height; ly++ {
		gy := y0 + ly
		for lx := 0; lx < store.Width; lx++ {
			gx := x0 + lx
			i := store.Index(lx, ly)
			switch {
			case gy >= testFloorY:
				ch.Tiles[i] = g.reg.NewTile(g.stone, rng)
			case gy >= testColumnY0:
				if id := g.ColumnMaterial(gx); id != 0 {
					ch.Tiles[i] = g.reg.NewTile(id, rng)
				}
			}
		}
	}
	ch.Phase = 0
}
