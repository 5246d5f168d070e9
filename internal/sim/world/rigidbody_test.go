package world

import (
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
	"pixelcraft.ai/internal/sim/tuning"
)

// raster builds a w×h body raster of material id where set(x, y) is true.
func raster(w *World, id uint16, bw, bh int, set func(x, y int) bool) []materials.Tile {
	tiles := make([]materials.Tile, bw*bh)
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			if set(x, y) {
				tiles[x+y*bw] = w.reg.NewTile(id, nil)
			} else {
				tiles[x+y*bw] = materials.AirTile()
			}
		}
	}
	return tiles
}

func twoBlobs(x, y int) bool { return y < 10 || y >= 15 }

func TestUpdateRigidBodies_SplitsDisjointBlobs(t *testing.T) {
	for _, parallel := range []int{1, 64} {
		w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.Mesh.SplitParallelWidth = parallel })
		stone := w.reg.MustID("STONE")
		vel := mgl32.Vec2{3, -1}
		w.AddRigidBody(raster(w, stone, 10, 25, twoBlobs), 10, 25, physics.BodyDef{
			Position:        mgl32.Vec2{50, 50},
			LinearVelocity:  vel,
			AngularVelocity: 0.5,
		}, nil)
		w.UpdateRigidBodies()

		bodies := w.Bodies()
		if len(bodies) != 2 {
			t.Fatalf("split width %d: got %d bodies want 2", parallel, len(bodies))
		}
		total := 0
		var ys []float32
		for _, b := range bodies {
			total += b.PixelCount()
			st, ok := w.phys.Body(b.Body)
			if !b.HasBody || !ok {
				t.Fatalf("successor %d has no physics body", b.ID)
			}
			if st.LinearVelocity != vel || st.AngularVelocity != 0.5 {
				t.Fatalf("velocity not preserved: %v %v", st.LinearVelocity, st.AngularVelocity)
			}
			if st.Fixture.Density != w.cfg.Mesh.Density {
				t.Fatalf("density %v want %v", st.Fixture.Density, w.cfg.Mesh.Density)
			}
			if b.W != 10 || b.H != 10 || b.HitboxDirty {
				t.Fatalf("successor raster %dx%d dirty=%v", b.W, b.H, b.HitboxDirty)
			}
			ys = append(ys, st.Position[1])
		}
		if total != 200 {
			t.Fatalf("pixels after split: %d want 200", total)
		}
		if !(ys[0] == 50 && ys[1] == 65 || ys[0] == 65 && ys[1] == 50) {
			t.Fatalf("successor origins %v, want 50 and 65", ys)
		}
		if w.Counters().Splits != 1 {
			t.Fatalf("splits: %d", w.Counters().Splits)
		}
	}
}

func TestUpdateRigidBodies_ThinPieceSurvivesSplit(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	blobAndLine := func(x, y int) bool { return x < 10 || x == 14 && y < 8 }
	w.AddRigidBody(raster(w, w.reg.MustID("STONE"), 15, 10, blobAndLine), 15, 10, physics.BodyDef{}, nil)
	w.UpdateRigidBodies()

	bodies := w.Bodies()
	if len(bodies) != 2 {
		t.Fatalf("got %d bodies want 2", len(bodies))
	}
	total := 0
	for _, b := range bodies {
		total += b.PixelCount()
		if !b.HasBody {
			t.Fatalf("body %d has no physics body", b.ID)
		}
	}
	if total != 108 {
		t.Fatalf("pixels after split: %d want 108", total)
	}
}

func TestUpdateRigidBodies_CutBodySplits(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	stone := w.reg.MustID("STONE")
	b := w.AddRigidBody(raster(w, stone, 10, 25, func(x, y int) bool { return true }), 10, 25,
		physics.BodyDef{Position: mgl32.Vec2{20, 20}}, nil)
	w.UpdateRigidBodies()
	if len(w.Bodies()) != 1 || len(b.Triangles) == 0 {
		t.Fatalf("solid raster: %d bodies, %d triangles", len(w.Bodies()), len(b.Triangles))
	}

	for y := 10; y < 15; y++ {
		for x := 0; x < 10; x++ {
			b.Tiles[x+y*10] = materials.AirTile()
		}
	}
	b.HitboxDirty = true
	w.UpdateRigidBodies()
	if len(w.Bodies()) != 2 {
		t.Fatalf("cut body: %d bodies want 2", len(w.Bodies()))
	}
	if _, ok := w.phys.Body(b.Body); ok {
		t.Fatalf("original physics body still alive")
	}
}

func TestUpdateHitbox_DepthGuardKeepsOneBody(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	b := w.AddRigidBody(raster(w, w.reg.MustID("STONE"), 10, 25, twoBlobs), 10, 25, physics.BodyDef{}, nil)
	out := w.updateHitbox(b, w.cfg.Mesh.MaxSplitDepth)
	if len(out) != 1 || out[0] != b || len(w.Bodies()) != 1 {
		t.Fatalf("depth guard: %d bodies", len(w.Bodies()))
	}
	if b.PixelCount() != 200 {
		t.Fatalf("pixels dropped: %d", b.PixelCount())
	}
}

// Two right-triangle staircases, each simplifying to a single triangle.
func staircases(x, y int) bool {
	if x < 20 {
		return x <= y
	}
	if x >= 30 {
		return x-30 <= y
	}
	return false
}

func TestUpdateHitbox_TwoTriangleShortCircuit(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.Mesh.SimplifyEpsilon = 2 })
	stone := w.reg.MustID("STONE")

	nested := w.AddRigidBody(raster(w, stone, 50, 20, staircases), 50, 20, physics.BodyDef{}, nil)
	out := w.updateHitbox(nested, 1)
	if len(out) != 1 || len(out[0].Triangles) != 2 {
		t.Fatalf("nested two-triangle body: %d bodies", len(out))
	}
	if out[0].PixelCount() != 420 {
		t.Fatalf("pixels: %d want 420", out[0].PixelCount())
	}

	top := w.AddRigidBody(raster(w, stone, 50, 20, staircases), 50, 20, physics.BodyDef{}, nil)
	if out := w.updateHitbox(top, 0); len(out) != 2 {
		t.Fatalf("top-level two-triangle body: %d bodies want 2", len(out))
	}
}

func TestUpdateRigidBodies_WeldFollowsItsPiece(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	h := w.phys.(*physics.Headless)
	weld := image.Pt(2, 2)
	w.AddRigidBody(raster(w, w.reg.MustID("STONE"), 10, 25, twoBlobs), 10, 25, physics.BodyDef{}, &weld)
	w.UpdateRigidBodies()

	welded := 0
	for _, b := range w.Bodies() {
		st, _ := w.phys.Body(b.Body)
		if b.Weld != nil {
			welded++
			if st.Fixture.Category != physics.CategoryWelded || st.Fixture.Mask&physics.CategoryBody != 0 {
				t.Fatalf("welded filter: category %b mask %b", st.Fixture.Category, st.Fixture.Mask)
			}
		} else if st.Fixture.Category != physics.CategoryBody {
			t.Fatalf("free body category %b", st.Fixture.Category)
		}
	}
	if welded != 1 || h.Joints() != 1 {
		t.Fatalf("welded bodies %d, joints %d", welded, h.Joints())
	}
}

func TestRasterizeBodies_MarksObjectMask(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	w.AddRigidBody(raster(w, w.reg.MustID("STONE"), 4, 4, func(x, y int) bool { return true }), 4, 4,
		physics.BodyDef{Position: mgl32.Vec2{20, 20}}, nil)
	w.UpdateRigidBodies()
	w.RasterizeBodies()
	for y := 18; y < 26; y++ {
		for x := 18; x < 26; x++ {
			want := x >= 20 && x < 24 && y >= 20 && y < 24
			if w.objMask[w.index(x, y)] != want {
				t.Fatalf("objMask(%d,%d)=%v want %v", x, y, !want, want)
			}
		}
	}
}

func TestCarveBody(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.Mesh.FloodCap = 100 })
	stone := w.reg.MustID("STONE")
	fillRect(w, image.Rect(100, 100, 106, 106), stone)

	b, ok := w.CarveBody(102, 102)
	if !ok {
		t.Fatalf("CarveBody failed")
	}
	if b.PixelCount() != 36 || !b.HasBody {
		t.Fatalf("carved body: %d pixels, body=%v", b.PixelCount(), b.HasBody)
	}
	if tl, _ := w.Tile(103, 103); tl.Mat != 0 {
		t.Fatalf("carved cell not cleared")
	}

	fillRect(w, image.Rect(0, 200, 200, 210), stone)
	if _, ok := w.CarveBody(50, 205); ok {
		t.Fatalf("carved a blob larger than the flood cap")
	}
	if tl, _ := w.Tile(50, 205); tl.Mat != stone {
		t.Fatalf("oversized blob modified")
	}

	w.Place(10, 10, w.reg.MustID("BEDROCK"))
	if _, ok := w.CarveBody(10, 10); ok {
		t.Fatalf("carved bedrock")
	}
}

func TestExplode(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.Mesh.FloodCap = 500 })
	fillRect(w, image.Rect(100, 100, 160, 160), w.reg.MustID("STONE"))
	if n := w.Explode(130, 130, 5); n != 81 {
		t.Fatalf("cleared %d cells want 81", n)
	}
	if tl, _ := w.Tile(130, 130); tl.Mat != 0 {
		t.Fatalf("center not cleared")
	}
	if n := len(w.Particles()); n == 0 || n >= 81 {
		t.Fatalf("debris particles: %d", n)
	}
	if len(w.Bodies()) != 0 {
		t.Fatalf("rim of an anchored block became a body")
	}
}
