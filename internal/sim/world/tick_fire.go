package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
)

// fire flickers, may throw an ember, may burn out into smoke and may ignite
// flammable neighbors.
func (c *cellCtx) fire(x, y int, m *materials.Material) {
	w := c.w
	s := w.cfg.Sim
	i := w.index(x, y)
	t := &w.tiles[i]

	r, g, b, a := materials.Unpack(t.Color)
	g = uint8(mathx.Clamp(int(g)+c.rng.IntN(41)-20, 60, 200))
	t.Color = materials.RGBA(r, g, b, a)
	w.dirty[i] = true

	if c.rng.Float32() < s.FireExtinguishChance {
		if w.ids.smoke != 0 {
			c.morph(x, y, w.ids.smoke)
		} else {
			c.set(x, y, materials.AirTile())
		}
		return
	}

	if c.rng.Float32() < s.FireEmberChance && c.open(x, y-1) && w.tiles[w.index(x, y-1)].Mat == 0 {
		ember := w.reg.NewTile(m.ID, c.rng)
		ember.Temp = t.Temp
		c.spawned = append(c.spawned, &Particle{
			Tile:     ember,
			Pos:      mgl32.Vec2{float32(x) + 0.5, float32(y) - 0.5}.Sub(w.arrayOffset()),
			Vel:      mgl32.Vec2{c.rng.Float32() - 0.5, -1 - c.rng.Float32()},
			Acc:      mgl32.Vec2{0, s.Gravity / 4},
			Lifetime: 20 + c.rng.IntN(20),
			FadeTime: 10,
		})
	}

	for _, d := range dirs4 {
		nx, ny := x+d[0], y+d[1]
		if !c.open(nx, ny) {
			continue
		}
		n := w.tiles[w.index(nx, ny)]
		if n.Mat == 0 || !w.reg.Get(n.Mat).Flammable {
			continue
		}
		if c.rng.Float32() < s.FireIgniteChance {
			c.morph(nx, ny, m.ID)
			j := w.index(nx, ny)
			w.tiles[j].Temp = max(n.Temp, m.DefaultTemp)
			c.vis[j] = true
		}
	}
}
