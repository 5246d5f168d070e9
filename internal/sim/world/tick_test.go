package world

import (
	"image"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

func TestTick_SandFallsOneRowPerTick(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	sand := w.reg.MustID("SAND")
	fillRect(w, image.Rect(0, 200, 256, 201), w.reg.MustID("STONE"))
	w.Place(100, 10, sand)

	for i := 1; i <= 5; i++ {
		w.Tick()
		if tl, _ := w.Tile(100, 10+i); tl.Mat != sand {
			t.Fatalf("tick %d: sand not at row %d", i, 10+i)
		}
		if tl, _ := w.Tile(100, 10+i-1); tl.Mat != 0 {
			t.Fatalf("tick %d: row %d not vacated", i, 10+i-1)
		}
	}
}

func TestTick_SandRestsOnFloor(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	sand := w.reg.MustID("SAND")
	fillRect(w, image.Rect(0, 30, 256, 31), w.reg.MustID("STONE"))
	w.Place(100, 25, sand)

	landed := -1
	for i := 0; i < 20; i++ {
		w.Tick()
		tl, _ := w.Tile(100, 29)
		if tl.Mat != sand {
			continue
		}
		if landed < 0 {
			landed = i
			continue
		}
		if tl.Moved {
			t.Fatalf("tick %d: sand still moving %d ticks after landing", i, i-landed)
		}
	}
	if landed < 0 {
		t.Fatalf("sand did not land on the floor")
	}
}

func TestTick_SandFallsOneRowAfterLoadZoneMove(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	w.MoveLoadZone(store.Width, 0)
	sand := w.reg.MustID("SAND")
	fillRect(w, image.Rect(-store.Width, 200, store.Width, 201), w.reg.MustID("STONE"))
	w.Place(-20, 10, sand)

	for i := 1; i <= 3; i++ {
		w.Tick()
		if tl, _ := w.Tile(-20, 10+i); tl.Mat != sand {
			t.Fatalf("tick %d: sand not at row %d", i, 10+i)
		}
	}
}

func fluidTotal(w *World, id uint16) float64 {
	var sum float64
	for _, tl := range w.tiles {
		if tl.Mat == id {
			sum += float64(tl.Fluid + tl.FluidDelta)
		}
	}
	for _, p := range w.particles {
		if p.Tile.Mat == id {
			sum += float64(p.Tile.Fluid)
		}
	}
	return sum
}

func TestTick_FluidConservedInClosedBox(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.Sim.FluidFallChance = 0 })
	stone := w.reg.MustID("STONE")
	water := w.reg.MustID("WATER")
	fillRect(w, image.Rect(40, 40, 41, 81), stone)
	fillRect(w, image.Rect(80, 40, 81, 81), stone)
	fillRect(w, image.Rect(40, 80, 81, 81), stone)
	fillRect(w, image.Rect(41, 50, 60, 80), water)

	before := fluidTotal(w, water)
	for i := 0; i < 100; i++ {
		w.Tick()
	}
	after := fluidTotal(w, water) + w.DespawnedFluid()
	if math.Abs(after-before) > before*0.005 {
		t.Fatalf("fluid not conserved: before %.4f after %.4f (despawned %.4f)", before, after, w.DespawnedFluid())
	}
	if tl, _ := w.Tile(66, 79); tl.Mat != water {
		t.Fatalf("water did not spread across the box floor")
	}
	for _, tl := range w.tiles {
		if tl.Mat == water && tl.Fluid < 0 {
			t.Fatalf("negative fluid amount %v", tl.Fluid)
		}
	}
}

func TestFluidModel_CalculateVerticalFlowValue(t *testing.T) {
	fm := NewFluidModel(tuning.Defaults().Sim)
	cases := []struct{ remaining, dest, want float32 }{
		{0.2, 0.3, 1},
		{1, 0.5, 1.1},
		{2, 1, 1.625},
	}
	for _, c := range cases {
		got := fm.CalculateVerticalFlowValue(c.remaining, c.dest)
		if math.Abs(float64(got-c.want)) > 1e-5 {
			t.Fatalf("CalculateVerticalFlowValue(%v, %v) = %v want %v", c.remaining, c.dest, got, c.want)
		}
	}
}

func TestTick_WaterQuenchesLava(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	fillRect(w, image.Rect(40, 51, 70, 52), w.reg.MustID("STONE"))
	w.Place(50, 50, w.reg.MustID("WATER"))
	w.Place(51, 50, w.reg.MustID("LAVA"))
	w.Tick()
	if tl, _ := w.Tile(51, 50); tl.Mat != w.reg.MustID("OBSIDIAN") {
		t.Fatalf("lava not turned to obsidian: %s", w.reg.Get(tl.Mat).Name)
	}
}

func TestTick_HotWaterBoils(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	water, steam := w.reg.MustID("WATER"), w.reg.MustID("STEAM")
	tl := w.reg.NewTile(water, nil)
	tl.Temp = 150
	w.SetTile(100, 100, tl)
	w.Tick()
	found := false
	for y := 98; y <= 101; y++ {
		for x := 98; x <= 102; x++ {
			got, _ := w.Tile(x, y)
			if got.Mat == water {
				t.Fatalf("water left at (%d,%d)", x, y)
			}
			found = found || got.Mat == steam
		}
	}
	if !found {
		t.Fatalf("no steam produced")
	}
}

func TestTick_FireIgnitesWood(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) {
		tn.Sim.FireIgniteChance = 1
		tn.Sim.FireExtinguishChance = 0
		tn.Sim.FireEmberChance = 0
	})
	fire := w.reg.MustID("FIRE")
	w.Place(60, 60, fire)
	w.Place(61, 60, w.reg.MustID("WOOD"))
	w.Tick()
	if tl, _ := w.Tile(61, 60); tl.Mat != fire {
		t.Fatalf("wood did not ignite: %s", w.reg.Get(tl.Mat).Name)
	}
}

func TestParticles_LandAndRejoinGrid(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	sand := w.reg.MustID("SAND")
	fillRect(w, image.Rect(0, 50, 256, 51), w.reg.MustID("STONE"))
	w.SpawnParticle(&Particle{Tile: w.reg.NewTile(sand, nil), Pos: mgl32.Vec2{100.5, 10.5}})
	for i := 0; i < 40; i++ {
		w.Tick()
	}
	if n := len(w.Particles()); n != 0 {
		t.Fatalf("%d particles still flying", n)
	}
	if tl, _ := w.Tile(100, 49); tl.Mat != sand {
		t.Fatalf("particle did not land on the floor: %+v", tl)
	}
}

func TestParticles_FrozenOutsideTickZone(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.World.TickZoneW, tn.World.TickZoneH = 64, 64 })
	p := &Particle{Tile: w.reg.NewTile(w.reg.MustID("SAND"), nil), Pos: mgl32.Vec2{10.5, 10.5}, Vel: mgl32.Vec2{1, 0}}
	w.SpawnParticle(p)
	w.Tick()
	if p.Pos != (mgl32.Vec2{10.5, 10.5}) || len(w.Particles()) != 1 {
		t.Fatalf("particle outside the tick zone moved: %v", p.Pos)
	}
}

func TestParticles_FluidMergesIntoSameFluid(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	water := w.reg.MustID("WATER")
	tl := w.reg.NewTile(water, nil)
	tl.Fluid = 0.5
	p := &Particle{Tile: tl}
	w.Place(20, 20, water)
	x, y := w.ToArray(20, 20)
	if !w.absorbInto(p, x, y) {
		t.Fatalf("absorbInto refused same fluid")
	}
	if got, _ := w.Tile(20, 20); got.Fluid != 1.5 {
		t.Fatalf("fluid amount %v want 1.5", got.Fluid)
	}
	if w.absorbInto(&Particle{Tile: w.reg.NewTile(w.reg.MustID("SAND"), nil)}, x, y) {
		t.Fatalf("sand absorbed into water cell")
	}
}

func TestParticles_TraceFluidDespawnsOnDeposit(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	tl := w.reg.NewTile(w.reg.MustID("WATER"), nil)
	tl.Fluid = w.cfg.Sim.FluidMinValue / 2
	x, y := w.ToArray(30, 30)
	if !w.absorbInto(&Particle{Tile: tl}, x, y) {
		t.Fatalf("trace fluid particle was not consumed")
	}
	if got, _ := w.Tile(30, 30); got.Mat != 0 {
		t.Fatalf("trace fluid became a cell: %+v", got)
	}
	if got := w.DespawnedFluid(); got != float64(tl.Fluid) {
		t.Fatalf("despawned %v want %v", got, tl.Fluid)
	}
}

func TestRasterizeDirty(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	img := image.NewRGBA(image.Rect(0, 0, w.W, w.H))
	w.RasterizeDirty(img)

	w.Place(3, 3, w.reg.MustID("STONE"))
	if n := w.RasterizeDirty(img); n != 1 {
		t.Fatalf("redrew %d pixels, want 1", n)
	}
	tl, _ := w.Tile(3, 3)
	r, g, b, a := materials.Unpack(tl.Color)
	if c := img.RGBAAt(3, 3); c.R != r || c.G != g || c.B != b || c.A != a {
		t.Fatalf("pixel %v, tile color %x", c, tl.Color)
	}
	if n := w.RasterizeDirty(img); n != 0 {
		t.Fatalf("second pass redrew %d pixels", n)
	}
}
