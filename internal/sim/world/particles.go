package world

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
)

// Particle is a tile flying free of the grid, in global pixel coordinates.
type Particle struct {
	Tile materials.Tile
	Pos  mgl32.Vec2
	Vel  mgl32.Vec2
	Acc  mgl32.Vec2

	// Lifetime counts down to removal; 0 means the particle lives until it
	// lands. The last FadeTime ticks fade its alpha.
	Lifetime int
	FadeTime int

	// Phase lets the particle pass through solids while it is inside a
	// rigid body's pixels.
	Phase bool

	// Target pulls the particle with TargetForce per tick.
	Target      *mgl32.Vec2
	TargetForce float32
}

func (w *World) arrayOffset() mgl32.Vec2 {
	return mgl32.Vec2{float32(w.loadZone.X), float32(w.loadZone.Y)}
}

func (w *World) arrayCell(p mgl32.Vec2) (int, int) {
	a := p.Add(w.arrayOffset())
	return int(math.Floor(float64(a[0]))), int(math.Floor(float64(a[1])))
}

// SpawnParticle adds p; a zero Acc gets world gravity.
func (w *World) SpawnParticle(p *Particle) {
	if p.Acc == (mgl32.Vec2{}) {
		p.Acc = mgl32.Vec2{0, w.cfg.Sim.Gravity}
	}
	w.particles = append(w.particles, p)
}

func (w *World) Particles() []*Particle { return w.particles }

// updateParticles integrates every particle inside the tick zone. Particles
// outside it stay frozen.
func (w *World) updateParticles() {
	zone := w.TickZone()
	kept := w.particles[:0]
	for _, p := range w.particles {
		x, y := w.arrayCell(p.Pos)
		if !image.Pt(x, y).In(zone) {
			kept = append(kept, p)
			continue
		}
		if w.stepParticle(p) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(w.particles); i++ {
		w.particles[i] = nil
	}
	w.particles = kept
}

// stepParticle reports whether p is still alive.
func (w *World) stepParticle(p *Particle) bool {
	if p.Lifetime > 0 {
		p.Lifetime--
		if p.Lifetime == 0 {
			return false
		}
		if p.FadeTime > 0 && p.Lifetime < p.FadeTime {
			r, g, b, a := materials.Unpack(p.Tile.Color)
			a = uint8(int(a) * p.Lifetime / p.FadeTime)
			p.Tile.Color = materials.RGBA(r, g, b, a)
		}
	}
	p.Vel = p.Vel.Add(p.Acc)
	if p.Target != nil {
		d := p.Target.Sub(p.Pos)
		if l := d.Len(); l > 0.5 {
			p.Vel = p.Vel.Add(d.Mul(p.TargetForce / l))
		}
	}

	// Never skip more than one cell per sub-step.
	speed := max(abs32(p.Vel[0]), abs32(p.Vel[1]))
	steps := max(1, int(math.Ceil(float64(speed))))
	step := p.Vel.Mul(1 / float32(steps))
	for s := 0; s < steps; s++ {
		next := p.Pos.Add(step)
		x, y := w.arrayCell(next)
		if !w.inArray(x, y) {
			return false
		}
		i := w.index(x, y)
		if w.objMask[i] {
			p.Pos = next
			continue
		}
		if w.tiles[i].Mat == 0 {
			p.Pos = next
			continue
		}
		if p.Phase {
			if cx, cy := w.arrayCell(p.Pos); w.inArray(cx, cy) && w.objMask[w.index(cx, cy)] {
				p.Pos = next
				continue
			}
		}
		if w.deposit(p) {
			return false
		}
		p.Vel = mgl32.Vec2{p.Vel[0] * 0.5, -abs32(p.Vel[1])*0.5 - 1}
		return true
	}
	return true
}

// deposit settles p into the grid at its current cell or, failing that, the
// nearest free or same-fluid cell within the search radius.
func (w *World) deposit(p *Particle) bool {
	x, y := w.arrayCell(p.Pos)
	if w.absorbInto(p, x, y) {
		return true
	}
	r := w.cfg.Sim.ParticleSearchRadius
	for d := 1; d <= r; d++ {
		// Walk the ring at Chebyshev distance d, top row first.
		for k := -d; k <= d; k++ {
			for _, c := range [4][2]int{{x + k, y - d}, {x + k, y + d}, {x - d, y + k}, {x + d, y + k}} {
				if w.absorbInto(p, c[0], c[1]) {
					return true
				}
			}
		}
	}
	return false
}

func (w *World) absorbInto(p *Particle, x, y int) bool {
	if !w.inArray(x, y) {
		return false
	}
	i := w.index(x, y)
	if w.objMask[i] {
		return false
	}
	t := &w.tiles[i]
	switch {
	case t.Mat == 0:
		nt := p.Tile
		nt.Moved = true
		nt.FluidDelta = 0
		if w.reg.Get(nt.Mat).IsFluid() {
			switch {
			case nt.Fluid <= 0:
				nt.Fluid = 1
			case nt.Fluid < w.cfg.Sim.FluidMinValue:
				// Too little to become a cell; the particle is consumed.
				w.despawnedFluid += float64(nt.Fluid)
				return true
			}
		}
		w.tiles[i] = nt
	case t.Mat == p.Tile.Mat && w.reg.Get(t.Mat).IsFluid():
		t.Fluid += p.Tile.Fluid
	default:
		return false
	}
	w.dirty[i] = true
	w.markMeshDirty(x, y)
	return true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
