package world

import (
	"context"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
)

// FluidModel holds the compressible-fluid constants. Amounts are per cell;
// 1 is a full cell, compression lets lower cells hold slightly more.
type FluidModel struct {
	MaxValue       float32
	MinValue       float32
	MaxCompression float32
	MinFlow        float32
	MaxFlow        float32
	FlowSpeed      float32
}

func NewFluidModel(s tuning.Sim) FluidModel {
	return FluidModel{
		MaxValue:       s.FluidMaxValue,
		MinValue:       s.FluidMinValue,
		MaxCompression: s.FluidMaxCompression,
		MinFlow:        s.FluidMinFlow,
		MaxFlow:        s.FluidMaxFlow,
		FlowSpeed:      s.FluidFlowSpeed,
	}
}

// CalculateVerticalFlowValue returns the amount the lower of two stacked
// cells should hold when together they contain remaining+dest.
func (f FluidModel) CalculateVerticalFlowValue(remaining, dest float32) float32 {
	sum := remaining + dest
	switch {
	case sum <= f.MaxValue:
		return f.MaxValue
	case sum < 2*f.MaxValue+f.MaxCompression:
		return (f.MaxValue*f.MaxValue + sum*f.MaxCompression) / (f.MaxValue + f.MaxCompression)
	default:
		return (sum + f.MaxCompression) / 2
	}
}

func (f FluidModel) clamp(flow, remaining float32) float32 {
	if flow < 0 {
		return 0
	}
	return min(flow, f.MaxFlow, remaining)
}

func (f FluidModel) speed(flow float32) float32 {
	if flow > f.MinFlow {
		return flow * f.FlowSpeed
	}
	return flow
}

// acceptsFluid reports whether fluid of material mat can flow into (x, y).
func (c *cellCtx) acceptsFluid(x, y int, mat uint16) bool {
	if !c.open(x, y) {
		return false
	}
	m := c.w.tiles[c.w.index(x, y)].Mat
	return m == 0 || m == mat
}

// transfer moves flow from cell i to (x, y), turning air into an empty cell
// of the source material first.
func (c *cellCtx) transfer(i, x, y int, flow float32) {
	w := c.w
	src := &w.tiles[i]
	j := w.index(x, y)
	dst := &w.tiles[j]
	if dst.Mat == 0 {
		nt := w.reg.NewTile(src.Mat, c.rng)
		nt.Color = src.Color
		nt.Temp = src.Temp
		nt.Fluid = 0
		*dst = nt
		c.touch(x, y)
	}
	src.FluidDelta -= flow
	dst.FluidDelta += flow
	w.dirty[j] = true
}

func (c *cellCtx) fluid(x, y int, m *materials.Material) {
	w := c.w
	fm := c.fm
	i := w.index(x, y)
	t := &w.tiles[i]
	if t.Fluid <= 0 {
		return
	}

	// Sink through lighter fluids and gases.
	if c.open(x, y+1) {
		o := c.mat(x, y+1)
		if (o.Class == materials.Soup && o.ID != m.ID || o.Class == materials.Gas) && o.Density < m.Density {
			c.swap(x, y, x, y+1)
			return
		}
	}

	if c.falls(x, y) {
		return
	}

	remaining := t.Fluid
	flowed := false

	if c.acceptsFluid(x, y+1, m.ID) {
		below := w.tiles[w.index(x, y+1)].Fluid
		flow := fm.CalculateVerticalFlowValue(remaining, below) - below
		if below > 0 {
			flow = fm.speed(flow)
		}
		if flow = fm.clamp(flow, remaining); flow > 0 {
			c.transfer(i, x, y+1, flow)
			w.flowY[i] += flow
			remaining -= flow
			flowed = true
		}
	}
	if remaining < fm.MinValue {
		c.settle(t, flowed)
		return
	}

	for _, sx := range [2]int{-1, 1} {
		if !c.acceptsFluid(x+sx, y, m.ID) {
			continue
		}
		side := w.tiles[w.index(x+sx, y)].Fluid
		flow := fm.clamp(fm.speed((remaining-side)/4), remaining)
		if flow > 0 {
			c.transfer(i, x+sx, y, flow)
			w.flowX[i] += float32(sx) * flow
			remaining -= flow
			flowed = true
		}
		if remaining < fm.MinValue {
			c.settle(t, flowed)
			return
		}
	}

	if remaining > fm.MaxValue && c.acceptsFluid(x, y-1, m.ID) {
		above := w.tiles[w.index(x, y-1)].Fluid
		flow := fm.clamp(fm.speed(remaining-fm.CalculateVerticalFlowValue(remaining, above)), remaining)
		if flow > 0 {
			c.transfer(i, x, y-1, flow)
			w.flowY[i] -= flow
			flowed = true
		}
	}
	c.settle(t, flowed)
}

func (c *cellCtx) settle(t *materials.Tile, flowed bool) {
	if flowed {
		t.Settle = 0
	} else if t.Settle < 255 {
		t.Settle++
	}
}

// falls turns a lone fluid cell over a tall air column into a particle.
func (c *cellCtx) falls(x, y int) bool {
	w := c.w
	s := w.cfg.Sim
	t := w.tiles[w.index(x, y)]
	if s.FluidFallChance <= 0 || t.Fluid > c.fm.MaxValue {
		return false
	}
	for k := 1; k <= s.FluidFallColumn; k++ {
		if !c.open(x, y+k) || w.tiles[w.index(x, y+k)].Mat != 0 {
			return false
		}
	}
	if c.rng.Float32() >= s.FluidFallChance {
		return false
	}
	t.Moved = true
	t.Fluid += t.FluidDelta
	t.FluidDelta = 0
	c.spawned = append(c.spawned, &Particle{
		Tile: t,
		Pos:  mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}.Sub(w.arrayOffset()),
		Vel:  mgl32.Vec2{0, 1},
		Acc:  mgl32.Vec2{0, s.Gravity},
	})
	c.set(x, y, materials.AirTile())
	return true
}

// applyFluidDeltas commits the pending flow of one iteration and despawns
// cells left below MinValue.
func (w *World) applyFluidDeltas(r image.Rectangle, fm FluidModel) {
	if r.Empty() {
		return
	}
	bands := make([]float64, max(1, w.simPool.Size))
	h := r.Dy()
	step := (h + len(bands) - 1) / len(bands)
	_ = w.simPool.Run(context.Background(), len(bands), func(_ context.Context, b int) error {
		y0 := r.Min.Y + b*step
		y1 := min(r.Max.Y, y0+step)
		for y := y0; y < y1; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				i := w.index(x, y)
				t := &w.tiles[i]
				if t.FluidDelta == 0 {
					continue
				}
				t.Fluid += t.FluidDelta
				t.FluidDelta = 0
				w.dirty[i] = true
				if t.Fluid < fm.MinValue {
					if t.Fluid > 0 {
						bands[b] += float64(t.Fluid)
					}
					w.tiles[i] = materials.AirTile()
				}
			}
		}
		return nil
	})
	for _, d := range bands {
		w.despawnedFluid += d
	}
}
