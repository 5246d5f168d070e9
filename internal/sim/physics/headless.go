package physics

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Headless is an in-memory Engine: dynamic bodies integrate gravity and
// velocity, welded and static bodies stay put. There is no contact solver.
type Headless struct {
	Gravity mgl32.Vec2

	bodies map[BodyID]*BodyState
	joints map[JointID][2]BodyID
	nextB  BodyID
	nextJ  JointID

	Created   int
	Destroyed int
}

func NewHeadless(gravity mgl32.Vec2) *Headless {
	return &Headless{
		Gravity: gravity,
		bodies:  map[BodyID]*BodyState{},
		joints:  map[JointID][2]BodyID{},
	}
}

func (h *Headless) CreateBody(def BodyDef, fix Fixture) BodyID {
	h.nextB++
	id := h.nextB
	if fix.Mask == 0 {
		fix.Mask = MaskAll
	}
	var mass float32
	for _, s := range fix.Shapes {
		mass += Area(s.Vertices) * fix.Density
	}
	h.bodies[id] = &BodyState{BodyDef: def, Fixture: fix, Mass: mass}
	h.Created++
	return id
}

func (h *Headless) DestroyBody(id BodyID) {
	if _, ok := h.bodies[id]; !ok {
		return
	}
	delete(h.bodies, id)
	for jid, pair := range h.joints {
		if pair[0] == id || pair[1] == id {
			delete(h.joints, jid)
		}
	}
	h.Destroyed++
}

func (h *Headless) Body(id BodyID) (BodyState, bool) {
	b, ok := h.bodies[id]
	if !ok {
		return BodyState{}, false
	}
	return *b, true
}

func (h *Headless) SetTransform(id BodyID, pos mgl32.Vec2, angle float32) {
	if b, ok := h.bodies[id]; ok {
		b.Position = pos
		b.Angle = angle
	}
}

func (h *Headless) SetVelocity(id BodyID, lin mgl32.Vec2, ang float32) {
	if b, ok := h.bodies[id]; ok {
		b.LinearVelocity = lin
		b.AngularVelocity = ang
	}
}

func (h *Headless) SetFilter(id BodyID, category, mask uint16) {
	if b, ok := h.bodies[id]; ok {
		b.Fixture.Category = category
		b.Fixture.Mask = mask
	}
}

func (h *Headless) CreateWeldJoint(a, b BodyID, anchor mgl32.Vec2) JointID {
	h.nextJ++
	h.joints[h.nextJ] = [2]BodyID{a, b}
	for _, id := range []BodyID{a, b} {
		if s, ok := h.bodies[id]; ok && s.Type == Dynamic {
			s.Welded = true
			s.LinearVelocity = mgl32.Vec2{}
			s.AngularVelocity = 0
		}
	}
	return h.nextJ
}

func (h *Headless) Step(dt float32) {
	for _, b := range h.bodies {
		if b.Type != Dynamic || b.Welded {
			continue
		}
		b.LinearVelocity = b.LinearVelocity.Add(h.Gravity.Mul(dt))
		b.Position = b.Position.Add(b.LinearVelocity.Mul(dt))
		b.Angle += b.AngularVelocity * dt
	}
}

// Bodies lists live body ids in creation order.
func (h *Headless) Bodies() []BodyID {
	ids := make([]BodyID, 0, len(h.bodies))
	for id := range h.bodies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Headless) Joints() int { return len(h.joints) }
