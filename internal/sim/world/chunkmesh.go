package world

import (
	"context"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/geom"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/physics"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

// markMeshDirty flags the chunk under array cell (x, y) for remeshing.
func (w *World) markMeshDirty(x, y int) {
	gx, gy := w.ToGlobal(x, y)
	k := store.ChunkKey{X: mathx.FloorDiv(gx, store.Width), Y: mathx.FloorDiv(gy, store.Height)}
	if ch, ok := w.chunks[k]; ok {
		ch.MeshDirty = true
	}
}

// static reports whether a tile belongs to the terrain collision mesh.
func (w *World) static(t materials.Tile) bool {
	if t.Mat == 0 {
		return false
	}
	c := w.reg.Get(t.Mat).Class
	return c == materials.Solid || c == materials.Object
}

type meshJob struct {
	ch   *store.Chunk
	tris []geom.Triangle
}

// RemeshChunks rebuilds the static body of every dirty live chunk inside the
// mesh zone and drops the bodies of chunks that left it.
func (w *World) RemeshChunks() {
	zone := w.MeshZone()
	var jobs []*meshJob
	for _, k := range w.sortedKeys() {
		ch := w.chunks[k]
		inZone := w.live[k] && w.footprint(k.X, k.Y).Overlaps(zone)
		if !inZone {
			if ch.HasBody {
				w.phys.DestroyBody(ch.Body)
				ch.HasBody = false
				ch.MeshDirty = true
			}
			continue
		}
		if ch.MeshDirty {
			jobs = append(jobs, &meshJob{ch: ch})
		}
	}
	if len(jobs) == 0 {
		return
	}

	_ = w.meshPool.Run(context.Background(), len(jobs), func(_ context.Context, i int) error {
		j := jobs[i]
		j.tris = w.chunkTriangles(j.ch)
		return nil
	})

	for _, j := range jobs {
		ch := j.ch
		if ch.HasBody {
			w.phys.DestroyBody(ch.Body)
			ch.HasBody = false
		}
		ch.Triangles = j.tris
		ch.MeshDirty = false
		if len(j.tris) == 0 {
			continue
		}
		shapes := make([]physics.Shape, len(j.tris))
		for i, t := range j.tris {
			shapes[i] = physics.Shape{Vertices: []mgl32.Vec2{t[0], t[1], t[2]}}
		}
		ch.Body = w.phys.CreateBody(physics.BodyDef{
			Type:     physics.Static,
			Position: mgl32.Vec2{float32(ch.X * store.Width), float32(ch.Y * store.Height)},
		}, physics.Fixture{
			Shapes:   shapes,
			Friction: w.cfg.Mesh.Friction,
			Category: physics.CategoryTerrain,
			Mask:     physics.MaskAll,
		})
		ch.HasBody = true
	}
}

// chunkTriangles meshes the visible part of a chunk from the live array, in
// chunk-local coordinates. Read only; runs on the mesh pool.
func (w *World) chunkTriangles(ch *store.Chunk) []geom.Triangle {
	fp := w.footprint(ch.X, ch.Y)
	vis := fp.Intersect(image.Rect(0, 0, w.W, w.H))
	m := geom.NewMask(store.Width, store.Height)
	for y := vis.Min.Y; y < vis.Max.Y; y++ {
		for x := vis.Min.X; x < vis.Max.X; x++ {
			if w.static(w.tiles[w.index(x, y)]) {
				m.Set(x-fp.Min.X, y-fp.Min.Y, true)
			}
		}
	}
	res := geom.Build(m, w.cfg.Mesh.SimplifyEpsilon)
	var tris []geom.Triangle
	for _, p := range res.Polygons {
		tris = append(tris, p.Triangles...)
	}
	return tris
}
