package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func square(s float32) Shape {
	return Shape{Vertices: []mgl32.Vec2{{0, 0}, {s, 0}, {s, s}, {0, s}}}
}

func TestHeadless_MassFromShapes(t *testing.T) {
	h := NewHeadless(mgl32.Vec2{0, 10})
	id := h.CreateBody(BodyDef{Type: Dynamic}, Fixture{Shapes: []Shape{square(2), square(1)}, Density: 2})
	b, ok := h.Body(id)
	if !ok {
		t.Fatalf("missing body")
	}
	if b.Mass != 10 {
		t.Fatalf("mass: got %v want 10", b.Mass)
	}
	if b.Fixture.Mask != MaskAll {
		t.Fatalf("default mask: got %x", b.Fixture.Mask)
	}
}

func TestHeadless_StepIntegratesDynamicOnly(t *testing.T) {
	h := NewHeadless(mgl32.Vec2{0, 10})
	dyn := h.CreateBody(BodyDef{Type: Dynamic, LinearVelocity: mgl32.Vec2{1, 0}}, Fixture{Shapes: []Shape{square(1)}, Density: 1})
	st := h.CreateBody(BodyDef{Type: Static}, Fixture{Shapes: []Shape{square(1)}, Density: 1})
	h.Step(1)

	d, _ := h.Body(dyn)
	if d.Position != (mgl32.Vec2{1, 10}) {
		t.Fatalf("dynamic position: got %v", d.Position)
	}
	s, _ := h.Body(st)
	if s.Position != (mgl32.Vec2{}) {
		t.Fatalf("static body moved: %v", s.Position)
	}
}

func TestHeadless_WeldPinsBodyAndDestroyDropsJoint(t *testing.T) {
	h := NewHeadless(mgl32.Vec2{0, 10})
	anchor := h.CreateBody(BodyDef{Type: Static}, Fixture{})
	dyn := h.CreateBody(BodyDef{Type: Dynamic, LinearVelocity: mgl32.Vec2{3, 3}}, Fixture{Shapes: []Shape{square(1)}, Density: 1})
	h.CreateWeldJoint(anchor, dyn, mgl32.Vec2{})
	h.Step(1)
	d, _ := h.Body(dyn)
	if d.Position != (mgl32.Vec2{}) || !d.Welded {
		t.Fatalf("welded body moved: %+v", d)
	}
	h.DestroyBody(dyn)
	if h.Joints() != 0 {
		t.Fatalf("joint survived body destruction")
	}
	if h.Created != 2 || h.Destroyed != 1 {
		t.Fatalf("counters: created=%d destroyed=%d", h.Created, h.Destroyed)
	}
}
