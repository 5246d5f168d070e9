package world

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
)

// carvable reports whether the live tile at array (x, y) can be cut loose.
func (w *World) carvable(x, y int) bool {
	if !w.inArray(x, y) {
		return false
	}
	t := w.tiles[w.index(x, y)]
	if t.Mat == 0 || t.Mat == w.ids.bedrock {
		return false
	}
	return w.reg.Get(t.Mat).Class == materials.Solid
}

// floodSolid collects the 4-connected solid blob containing array (x, y).
// It gives up once the blob exceeds limit pixels.
func (w *World) floodSolid(x, y, limit int) ([]image.Point, bool) {
	seen := map[image.Point]bool{{X: x, Y: y}: true}
	stack := []image.Point{{X: x, Y: y}}
	var out []image.Point
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, p)
		if len(out) > limit {
			return nil, false
		}
		for _, d := range dirs4 {
			q := image.Pt(p.X+d[0], p.Y+d[1])
			if seen[q] || !w.carvable(q.X, q.Y) {
				continue
			}
			seen[q] = true
			stack = append(stack, q)
		}
	}
	return out, true
}

// CarveBody detaches the solid blob containing global (gx, gy) into a rigid
// body. Blobs larger than FloodCap pixels stay in the grid.
func (w *World) CarveBody(gx, gy int) (*RigidBody, bool) {
	x, y := w.ToArray(gx, gy)
	if !w.carvable(x, y) {
		return nil, false
	}
	pts, ok := w.floodSolid(x, y, w.cfg.Mesh.FloodCap)
	if !ok {
		return nil, false
	}
	r := image.Rectangle{}
	for _, p := range pts {
		r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	}
	tiles := make([]materials.Tile, r.Dx()*r.Dy())
	for i := range tiles {
		tiles[i] = materials.AirTile()
	}
	for _, p := range pts {
		i := w.index(p.X, p.Y)
		tiles[(p.X-r.Min.X)+(p.Y-r.Min.Y)*r.Dx()] = w.tiles[i]
		w.tiles[i] = materials.AirTile()
		w.dirty[i] = true
		w.markMeshDirty(p.X, p.Y)
	}
	ox, oy := w.ToGlobal(r.Min.X, r.Min.Y)
	b := w.AddRigidBody(tiles, r.Dx(), r.Dy(), physics.BodyDef{
		Position: mgl32.Vec2{float32(ox), float32(oy)},
	}, nil)
	out := w.updateHitbox(b, 0)
	if len(out) == 0 {
		return nil, false
	}
	return out[0], true
}

// Explode clears a disc of the given radius around global (gx, gy), throwing
// part of the debris as particles and cutting bodies out of the rim. It
// returns the number of grid cells cleared.
func (w *World) Explode(gx, gy int, radius int) int {
	rng := rand.New(rand.NewPCG(uint64(w.cfg.World.Seed), w.tick^uint64(gx)<<20^uint64(gy)))
	cx, cy := w.ToArray(gx, gy)
	r2 := radius * radius
	center := mgl32.Vec2{float32(gx) + 0.5, float32(gy) + 0.5}
	cleared := 0
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r2 || !w.inArray(x, y) {
				continue
			}
			i := w.index(x, y)
			t := w.tiles[i]
			if t.Mat == 0 || t.Mat == w.ids.bedrock {
				continue
			}
			w.tiles[i] = materials.AirTile()
			w.dirty[i] = true
			w.markMeshDirty(x, y)
			cleared++
			if rng.IntN(3) != 0 {
				continue
			}
			px, py := w.ToGlobal(x, y)
			pos := mgl32.Vec2{float32(px) + 0.5, float32(py) + 0.5}
			dir := pos.Sub(center)
			if dir.Len() > 0 {
				dir = dir.Normalize()
			}
			w.SpawnParticle(&Particle{
				Tile: t,
				Pos:  pos,
				Vel:  dir.Mul(1 + 2*rng.Float32()).Add(mgl32.Vec2{0, -1}),
			})
		}
	}

	for _, b := range append([]*RigidBody(nil), w.bodies...) {
		w.blast(b, center, float32(radius))
	}

	for a := 0; a < 8*radius; a++ {
		ang := float32(a) / float32(8*radius) * 2 * math.Pi
		rim := mgl32.Rotate2D(ang).Mul2x1(mgl32.Vec2{float32(radius + 1), 0})
		w.CarveBody(gx+int(rim[0]), gy+int(rim[1]))
	}
	return cleared
}

// blast clears the body pixels within radius of center (global coordinates).
func (w *World) blast(b *RigidBody, center mgl32.Vec2, radius float32) {
	def := w.Pose(b)
	rot := mgl32.Rotate2D(def.Angle)
	hit := false
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			i := x + y*b.W
			if b.Tiles[i].Mat == 0 {
				continue
			}
			p := def.Position.Add(rot.Mul2x1(mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}))
			if p.Sub(center).Len() <= radius {
				b.Tiles[i] = materials.AirTile()
				hit = true
			}
		}
	}
	if hit {
		b.HitboxDirty = true
		b.SurfaceDirty = true
	}
}
