package world

import "pixelcraft.ai/internal/sim/materials"

// Settled sand resumes sliding only when at least this many grains (scaled
// by 1-slipperiness) are stacked on top of it.
const pillarScale = 6

// canDisplace reports whether a granular tile of material m moving in
// direction dir (1 falls, -1 rises) may swap into (x, y).
func (c *cellCtx) canDisplace(x, y int, m *materials.Material, dir int) bool {
	if !c.open(x, y) {
		return false
	}
	o := c.mat(x, y)
	switch o.Class {
	case materials.Air:
		return true
	case materials.Soup, materials.Gas:
		if dir > 0 {
			return o.Density < m.Density
		}
		return o.Class == materials.Gas && o.Density > m.Density
	}
	return false
}

// granular moves sand down (dir=1) or gas up (dir=-1): straight first, then
// diagonally, choosing the side at random.
func (c *cellCtx) granular(x, y int, m *materials.Material, dir int) {
	w := c.w
	i := w.index(x, y)
	ny := y + dir
	if c.canDisplace(x, ny, m, dir) {
		w.tiles[i].Moved = true
		c.swap(x, y, x, ny)
		c.wake(x, y)
		return
	}
	if dir > 0 && !w.tiles[i].Moved && !c.unstable(x, y, m) {
		return
	}
	side := 1
	if c.rng.IntN(2) == 0 {
		side = -1
	}
	for _, sx := range [2]int{side, -side} {
		if c.canDisplace(x+sx, ny, m, dir) && c.canDisplace(x+sx, y, m, dir) {
			w.tiles[i].Moved = true
			c.swap(x, y, x+sx, ny)
			c.wake(x, y)
			return
		}
	}
	if dir < 0 {
		// Gas drifts sideways under a ceiling.
		if c.canDisplace(x+side, y, m, dir) {
			c.swap(x, y, x+side, y)
			return
		}
	}
	w.tiles[i].Moved = false
}

// unstable decides whether a settled grain starts sliding again.
func (c *cellCtx) unstable(x, y int, m *materials.Material) bool {
	threshold := 1 + int((1-m.Slipperiness)*pillarScale)
	pillar := 0
	for k := 1; k <= threshold; k++ {
		if !c.w.inArray(x, y-k) {
			break
		}
		if c.mat(x, y-k).Class != materials.Sand {
			break
		}
		pillar++
	}
	return pillar >= threshold && c.rng.Float32() < m.Slipperiness
}

// wake flags the grains above a vacated cell so they re-check their support.
func (c *cellCtx) wake(x, y int) {
	w := c.w
	for dx := -1; dx <= 1; dx++ {
		if !w.inArray(x+dx, y-1) {
			continue
		}
		t := &w.tiles[w.index(x+dx, y-1)]
		if t.Mat != 0 && w.reg.Get(t.Mat).Class == materials.Sand {
			t.Moved = true
		}
	}
}
