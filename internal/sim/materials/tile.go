package materials

import (
	"math/rand/v2"
	"sync/atomic"
)

var nextTileID atomic.Uint32

// NextTileID hands out tile identities. Identities are never persisted.
func NextTileID() uint32 { return nextTileID.Add(1) }

// Tile is one cell's material instance.
type Tile struct {
	Mat   uint16
	Color uint32
	Temp  int32
	ID    uint32

	// Moved is the settling state of granular tiles.
	Moved bool

	Fluid      float32
	FluidDelta float32
	Settle     uint8
}

// Same compares identity.
func (t Tile) Same(o Tile) bool { return t.ID == o.ID }

// SameContent compares the persisted fields only.
func (t Tile) SameContent(o Tile) bool {
	return t.Mat == o.Mat && t.Color == o.Color && t.Temp == o.Temp
}

// AirTile returns a fresh air tile. Air is id 0 in every registry.
func AirTile() Tile { return Tile{ID: NextTileID()} }

// NewTile builds a tile of material id with a jittered color. rng may be nil.
func (r *Registry) NewTile(id uint16, rng *rand.Rand) Tile {
	m := r.Get(id)
	t := Tile{
		Mat:   id,
		Color: m.Color,
		Temp:  m.DefaultTemp,
		ID:    NextTileID(),
		Moved: true,
	}
	if m.ColorJitter > 0 && rng != nil {
		t.Color = Jitter(m.Color, int(m.ColorJitter), rng)
	}
	if m.IsFluid() {
		t.Fluid = 1
	}
	return t
}

// Restore rebuilds a tile from persisted fields, assigning a new identity.
func (r *Registry) Restore(id uint16, color uint32, temp int32) Tile {
	t := Tile{Mat: id, Color: color, Temp: temp, ID: NextTileID()}
	if r.Get(id).IsFluid() {
		t.Fluid = 1
	}
	return t
}

func RGBA(r, g, b, a uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

func Unpack(c uint32) (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Jitter shifts each color channel by up to ±amount, keeping alpha.
func Jitter(c uint32, amount int, rng *rand.Rand) uint32 {
	r, g, b, a := Unpack(c)
	d := rng.IntN(amount*2+1) - amount
	return RGBA(clamp8(int(r)+d), clamp8(int(g)+d), clamp8(int(b)+d), a)
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
