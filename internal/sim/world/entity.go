package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
)

// maxStepUp is how far an entity climbs onto a ledge while moving sideways.
const maxStepUp = 2

// Entity is an axis-aligned box in global pixels. Pos is the top-left corner.
type Entity struct {
	Pos    mgl32.Vec2
	Vel    mgl32.Vec2
	W, H   int
	Ground bool
}

func (w *World) AddEntity(e *Entity) { w.entities = append(w.entities, e) }

func (w *World) Entities() []*Entity { return w.entities }

// blocked reports whether global cell (gx, gy) stops an entity. Cells outside
// the live array block.
func (w *World) blocked(gx, gy int) bool {
	x, y := w.ToArray(gx, gy)
	if !w.inArray(x, y) {
		return true
	}
	i := w.index(x, y)
	if w.objMask[i] {
		return true
	}
	t := w.tiles[i]
	if t.Mat == 0 {
		return false
	}
	switch w.reg.Get(t.Mat).Class {
	case materials.Solid, materials.Sand, materials.Object:
		return true
	}
	return false
}

// boxFree reports whether the entity box at integer top-left (x, y) overlaps
// no blocking cell.
func (w *World) boxFree(x, y, bw, bh int) bool {
	for yy := y; yy < y+bh; yy++ {
		for xx := x; xx < x+bw; xx++ {
			if w.blocked(xx, yy) {
				return false
			}
		}
	}
	return true
}

// MoveEntity applies gravity and sweeps e by its velocity, first along X and
// then along Y, one pixel at a time.
func (w *World) MoveEntity(e *Entity) {
	e.Vel[1] += w.cfg.Sim.Gravity
	x, y := int(math.Floor(float64(e.Pos[0]))), int(math.Floor(float64(e.Pos[1])))
	tx := int(math.Round(float64(e.Pos[0] + e.Vel[0])))
	ty := int(math.Round(float64(e.Pos[1] + e.Vel[1])))

	for x != tx {
		sx := 1
		if tx < x {
			sx = -1
		}
		if w.boxFree(x+sx, y, e.W, e.H) {
			x += sx
			continue
		}
		stepped := false
		if e.Ground {
			for up := 1; up <= maxStepUp; up++ {
				if w.boxFree(x+sx, y-up, e.W, e.H) {
					x += sx
					y -= up
					ty -= up
					stepped = true
					break
				}
			}
		}
		if !stepped {
			e.Vel[0] = 0
			break
		}
	}

	e.Ground = false
	for y != ty {
		sy := 1
		if ty < y {
			sy = -1
		}
		if !w.boxFree(x, y+sy, e.W, e.H) {
			if sy > 0 {
				e.Ground = true
			}
			e.Vel[1] = 0
			break
		}
		y += sy
	}
	if !e.Ground && !w.boxFree(x, y+1, e.W, e.H) {
		e.Ground = true
	}
	if e.Ground && e.Vel[1] > 0 {
		e.Vel[1] = 0
	}
	e.Pos = mgl32.Vec2{float32(x), float32(y)}
}
