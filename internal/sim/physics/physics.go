// Package physics is the boundary to the rigid-body engine. The simulation
// only creates, moves and destroys bodies through Engine; the engine itself is
// mutated from the controller goroutine only.
package physics

import "github.com/go-gl/mathgl/mgl32"

type BodyID uint32

type JointID uint32

type BodyType uint8

const (
	Static BodyType = iota
	Dynamic
	Kinematic
)

// Collision categories.
const (
	CategoryTerrain uint16 = 1 << iota
	CategoryBody
	CategoryWelded

	MaskAll uint16 = 0xFFFF
)

type BodyDef struct {
	Type            BodyType
	Position        mgl32.Vec2
	Angle           float32
	LinearVelocity  mgl32.Vec2
	AngularVelocity float32
}

// Shape is a convex polygon in body-local coordinates.
type Shape struct {
	Vertices []mgl32.Vec2
}

type Fixture struct {
	Shapes   []Shape
	Density  float32
	Friction float32
	Category uint16
	Mask     uint16
}

type BodyState struct {
	BodyDef
	Fixture Fixture
	Mass    float32
	Welded  bool
}

type Engine interface {
	CreateBody(def BodyDef, fix Fixture) BodyID
	DestroyBody(id BodyID)
	Body(id BodyID) (BodyState, bool)
	SetTransform(id BodyID, pos mgl32.Vec2, angle float32)
	SetVelocity(id BodyID, lin mgl32.Vec2, ang float32)
	SetFilter(id BodyID, category, mask uint16)
	CreateWeldJoint(a, b BodyID, anchor mgl32.Vec2) JointID
	Step(dt float32)
}

// Area returns the unsigned area of a polygon.
func Area(vs []mgl32.Vec2) float32 {
	var a float32
	for i := range vs {
		j := (i + 1) % len(vs)
		a += vs[i][0]*vs[j][1] - vs[j][0]*vs[i][1]
	}
	if a < 0 {
		a = -a
	}
	return a / 2
}
