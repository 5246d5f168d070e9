package world

import (
	"context"
	"image"
	"math/rand/v2"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

// Interaction effects reach at most this far from the acting tile, which keeps
// them inside the neighboring block of a checkerboard pass.
const maxEffectReach = 4

type block struct {
	Key  store.ChunkKey
	Rect image.Rectangle
}

// blocks splits zone into chunk-aligned blocks grouped by checkerboard pass.
func (w *World) blocks(zone image.Rectangle) [4][]block {
	var out [4][]block
	if zone.Empty() {
		return out
	}
	g0x, g0y := w.ToGlobal(zone.Min.X, zone.Min.Y)
	g1x, g1y := w.ToGlobal(zone.Max.X-1, zone.Max.Y-1)
	for cy := mathx.FloorDiv(g0y, store.Height); cy <= mathx.FloorDiv(g1y, store.Height); cy++ {
		for cx := mathx.FloorDiv(g0x, store.Width); cx <= mathx.FloorDiv(g1x, store.Width); cx++ {
			r := w.footprint(cx, cy).Intersect(zone)
			if r.Empty() {
				continue
			}
			pass := mathx.Mod(cx, 2) + 2*mathx.Mod(cy, 2)
			out[pass] = append(out[pass], block{Key: store.ChunkKey{X: cx, Y: cy}, Rect: r})
		}
	}
	return out
}

// Tick advances the tick zone by one simulation step: Iterations rounds of
// four checkerboard passes, fluid deltas applied after each round, then
// particles and flow decay.
func (w *World) Tick() {
	w.tick++
	// A cell moves at most once per tick across all iterations.
	vis := w.visited
	clear(vis)

	zone := w.TickZone()
	passes := w.blocks(zone)
	fm := NewFluidModel(w.cfg.Sim)
	ctx := context.Background()
	for iter := 0; iter < w.cfg.Sim.Iterations; iter++ {
		for pass := 0; pass < 4; pass++ {
			bs := passes[pass]
			cells := make([]*cellCtx, len(bs))
			_ = w.simPool.Run(ctx, len(bs), func(_ context.Context, k int) error {
				c := w.newCellCtx(iter, pass, bs[k], vis, fm)
				c.run()
				cells[k] = c
				return nil
			})
			for _, c := range cells {
				w.absorbCell(c)
			}
		}
		w.applyFluidDeltas(zone.Inset(-1).Intersect(image.Rect(0, 0, w.W, w.H)), fm)
	}
	w.updateParticles()
	w.decayFlow()
}

// cellCtx is the per-block state of one pass. Everything it collects is
// folded into the World after the pass joins.
type cellCtx struct {
	w    *World
	rng  *rand.Rand
	iter int
	blk  block
	vis  []bool
	fm   FluidModel

	spawned   []*Particle
	despawned float64
	touched   [3][3]bool
}

func (w *World) newCellCtx(iter, pass int, b block, vis []bool, fm FluidModel) *cellCtx {
	s1 := uint64(w.cfg.World.Seed) ^ (w.tick * 0x9e3779b97f4a7c15)
	s2 := mathx.Hash3(w.cfg.World.Seed, b.Key.X, b.Key.Y, iter*4+pass)
	return &cellCtx{
		w:    w,
		rng:  rand.New(rand.NewPCG(s1, s2)),
		iter: iter,
		blk:  b,
		vis:  vis,
		fm:   fm,
	}
}

func (w *World) absorbCell(c *cellCtx) {
	w.particles = append(w.particles, c.spawned...)
	w.despawnedFluid += c.despawned
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if !c.touched[dy+1][dx+1] {
				continue
			}
			if ch, ok := w.chunks[store.ChunkKey{X: c.blk.Key.X + dx, Y: c.blk.Key.Y + dy}]; ok {
				ch.MeshDirty = true
			}
		}
	}
}

func (c *cellCtx) run() {
	r := c.blk.Rect
	ltr := true
	if c.w.cfg.Sim.AlternateDirection {
		ltr = (c.w.tick+uint64(c.iter))%2 == 0
	}
	for y := r.Max.Y - 1; y >= r.Min.Y; y-- {
		if ltr {
			for x := r.Min.X; x < r.Max.X; x++ {
				c.cell(x, y)
			}
		} else {
			for x := r.Max.X - 1; x >= r.Min.X; x-- {
				c.cell(x, y)
			}
		}
	}
}

func (c *cellCtx) touch(x, y int) {
	r := c.blk.Rect
	dx, dy := 1, 1
	if x < r.Min.X {
		dx = 0
	} else if x >= r.Max.X {
		dx = 2
	}
	if y < r.Min.Y {
		dy = 0
	} else if y >= r.Max.Y {
		dy = 2
	}
	c.touched[dy][dx] = true
}

func (c *cellCtx) set(x, y int, t materials.Tile) {
	i := c.w.index(x, y)
	c.w.tiles[i] = t
	c.w.dirty[i] = true
	c.touch(x, y)
}

func (c *cellCtx) swap(x0, y0, x1, y1 int) {
	w := c.w
	i, j := w.index(x0, y0), w.index(x1, y1)
	w.tiles[i], w.tiles[j] = w.tiles[j], w.tiles[i]
	w.dirty[i], w.dirty[j] = true, true
	c.vis[j] = true
	if w.tiles[i].Mat != 0 {
		c.vis[i] = true
	}
	w.flowX[j] += float32(x1 - x0)
	w.flowY[j] += float32(y1 - y0)
	c.touch(x0, y0)
	c.touch(x1, y1)
}

// open reports whether (x, y) is inside the array and not covered by a body.
func (c *cellCtx) open(x, y int) bool {
	return c.w.inArray(x, y) && !c.w.objMask[c.w.index(x, y)]
}

func (c *cellCtx) mat(x, y int) *materials.Material {
	return c.w.reg.Get(c.w.tiles[c.w.index(x, y)].Mat)
}

func (c *cellCtx) cell(x, y int) {
	w := c.w
	i := w.index(x, y)
	t := &w.tiles[i]
	if t.Mat == 0 || c.vis[i] {
		return
	}
	m := w.reg.Get(t.Mat)
	if c.iter >= m.Iterations {
		return
	}
	if c.iter == 0 {
		if c.react(x, y, m) {
			m = w.reg.Get(w.tiles[i].Mat)
			if m.Class == materials.Air {
				return
			}
		}
		c.conduct(x, y, m)
	}
	if w.reg.HasInteractions(m.ID) && c.interact(x, y, m) {
		c.vis[i] = true
		return
	}
	switch m.Class {
	case materials.Sand:
		c.granular(x, y, m, 1)
	case materials.Gas:
		c.granular(x, y, m, -1)
	case materials.Soup:
		c.fluid(x, y, m)
	case materials.Passable:
		if m.ID == w.ids.fire {
			c.fire(x, y, m)
		}
	}
}

// morph replaces the tile at (x, y) with a new tile of material to, keeping
// its temperature and, between fluids, its fluid amount.
func (c *cellCtx) morph(x, y int, to uint16) {
	w := c.w
	old := w.tiles[w.index(x, y)]
	nt := w.reg.NewTile(to, c.rng)
	nt.Temp = old.Temp
	if to == 0 {
		nt = materials.AirTile()
	} else if w.reg.Get(to).IsFluid() && w.reg.Get(old.Mat).IsFluid() {
		nt.Fluid = old.Fluid
	}
	c.set(x, y, nt)
}

func (c *cellCtx) react(x, y int, m *materials.Material) bool {
	t := c.w.tiles[c.w.index(x, y)]
	for _, re := range c.w.reg.Reactions(m.ID) {
		if re.Triggered(t.Temp) {
			c.morph(x, y, re.To)
			return true
		}
	}
	return false
}

var dirs4 = [4][2]int{{0, 1}, {-1, 0}, {1, 0}, {0, -1}}

// interact fires the first neighbor's interaction effects.
func (c *cellCtx) interact(x, y int, m *materials.Material) bool {
	w := c.w
	for _, d := range dirs4 {
		nx, ny := x+d[0], y+d[1]
		if !c.open(nx, ny) {
			continue
		}
		b := w.tiles[w.index(nx, ny)].Mat
		effects := w.reg.Interactions(m.ID, b)
		if len(effects) == 0 {
			continue
		}
		for _, e := range effects {
			switch e.Kind {
			case materials.EffectTransform:
				r := min(e.Radius, maxEffectReach-1)
				for ry := -r; ry <= r; ry++ {
					for rx := -r; rx <= r; rx++ {
						tx, ty := nx+rx, ny+ry
						if c.open(tx, ty) && w.tiles[w.index(tx, ty)].Mat == b {
							c.morph(tx, ty, e.To)
						}
					}
				}
			case materials.EffectSpawn:
				sx := x + mathx.Clamp(e.OffX, -maxEffectReach, maxEffectReach)
				sy := y + mathx.Clamp(e.OffY, -maxEffectReach, maxEffectReach)
				if c.open(sx, sy) && w.tiles[w.index(sx, sy)].Mat == 0 {
					nt := w.reg.NewTile(e.Spawn, c.rng)
					c.set(sx, sy, nt)
					c.vis[w.index(sx, sy)] = true
				}
			}
		}
		return true
	}
	return false
}

// conduct exchanges heat with one random neighbor. The exchange is symmetric,
// so total temperature is preserved up to rounding.
func (c *cellCtx) conduct(x, y int, m *materials.Material) {
	w := c.w
	if w.cfg.Sim.ConductionChance <= 0 || c.rng.Float32() >= w.cfg.Sim.ConductionChance {
		return
	}
	d := dirs4[c.rng.IntN(4)]
	nx, ny := x+d[0], y+d[1]
	if !w.inArray(nx, ny) {
		return
	}
	t := &w.tiles[w.index(x, y)]
	n := &w.tiles[w.index(nx, ny)]
	if n.Mat == 0 {
		return
	}
	k := m.ConductionSelf
	if n.Mat != t.Mat {
		k = (m.ConductionOther + w.reg.Get(n.Mat).ConductionOther) / 2
	}
	delta := int32(float32(n.Temp-t.Temp) * k / 2)
	t.Temp += delta
	n.Temp -= delta
}

func (w *World) decayFlow() {
	k := w.cfg.Sim.FlowDecay
	_ = w.maintPool.Rows(context.Background(), w.H, func(y0, y1 int) {
		for i := y0 * w.W; i < y1*w.W; i++ {
			w.flowX[i] *= k
			w.flowY[i] *= k
		}
	})
}
