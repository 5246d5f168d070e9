package world

import (
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestMoveEntity_StepsUpLowLedge(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	stone := w.reg.MustID("STONE")
	fillRect(w, image.Rect(0, 100, 256, 101), stone)
	fillRect(w, image.Rect(56, 98, 256, 100), stone)

	e := &Entity{Pos: mgl32.Vec2{50, 92}, Vel: mgl32.Vec2{10, 0}, W: 4, H: 8, Ground: true}
	w.AddEntity(e)
	w.MoveEntity(e)
	if e.Pos != (mgl32.Vec2{60, 90}) || !e.Ground {
		t.Fatalf("pos %v ground %v, want (60,90) on ground", e.Pos, e.Ground)
	}
}

func TestMoveEntity_StopsAtWall(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	stone := w.reg.MustID("STONE")
	fillRect(w, image.Rect(0, 100, 256, 101), stone)
	fillRect(w, image.Rect(56, 97, 256, 100), stone)

	e := &Entity{Pos: mgl32.Vec2{50, 92}, Vel: mgl32.Vec2{10, 0}, W: 4, H: 8, Ground: true}
	w.MoveEntity(e)
	if e.Pos != (mgl32.Vec2{52, 92}) || e.Vel[0] != 0 {
		t.Fatalf("pos %v vel %v, want stop at x=52", e.Pos, e.Vel)
	}
}

func TestMoveEntity_FallsAndLands(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	fillRect(w, image.Rect(0, 100, 256, 101), w.reg.MustID("STONE"))
	e := &Entity{Pos: mgl32.Vec2{20, 80}, W: 2, H: 4}
	for i := 0; i < 60; i++ {
		w.MoveEntity(e)
	}
	if e.Pos[1] != 96 || !e.Ground || e.Vel[1] != 0 {
		t.Fatalf("pos %v vel %v ground %v", e.Pos, e.Vel, e.Ground)
	}
}

func TestStep_MovesEntities(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	fillRect(w, image.Rect(0, 100, 256, 101), w.reg.MustID("STONE"))
	e := &Entity{Pos: mgl32.Vec2{20, 80}, W: 2, H: 4}
	w.AddEntity(e)
	for i := 0; i < 60; i++ {
		w.Step()
	}
	if e.Pos[1] != 96 || !e.Ground {
		t.Fatalf("pos %v ground %v, want resting on the floor", e.Pos, e.Ground)
	}
}
