package materials

import "fmt"

type EffectKind uint8

const (
	// EffectTransform turns every tile of the neighbor's material within
	// Radius of the neighbor into To.
	EffectTransform EffectKind = iota + 1
	// EffectSpawn places Spawn at (OffX, OffY) relative to the acting tile
	// when that cell is air.
	EffectSpawn
)

type Effect struct {
	Kind   EffectKind
	To     uint16
	Radius int

	Spawn      uint16
	OffX, OffY int
}

type ReactionKind uint8

const (
	ReactBelow ReactionKind = iota + 1
	ReactAbove
)

// Reaction morphs a tile into To when its temperature crosses Threshold.
// Temperature is preserved.
type Reaction struct {
	Kind      ReactionKind
	Threshold int32
	To        uint16
}

func (r Reaction) Triggered(temp int32) bool {
	switch r.Kind {
	case ReactBelow:
		return temp < r.Threshold
	case ReactAbove:
		return temp > r.Threshold
	}
	return false
}

func (r *Registry) checkMutable(a uint16) {
	if !r.sealed {
		panic("materials: tables are built after Seal")
	}
	if r.frozen {
		panic("materials: registry is frozen")
	}
	if int(a) >= len(r.mats) {
		panic(fmt.Sprintf("materials: id %d out of registry bounds (%d)", a, len(r.mats)))
	}
}

// AddInteraction registers e to fire when a tile of a is adjacent to a tile of b.
func (r *Registry) AddInteraction(a, b uint16, e Effect) {
	r.checkMutable(a)
	r.checkMutable(b)
	switch e.Kind {
	case EffectTransform:
		r.checkMutable(e.To)
	case EffectSpawn:
		r.checkMutable(e.Spawn)
	default:
		panic(fmt.Sprintf("materials: unknown effect kind %d", e.Kind))
	}
	row := r.interactions[a]
	if row == nil {
		row = make([][]Effect, len(r.mats))
		r.interactions[a] = row
	}
	row[b] = append(row[b], e)
}

func (r *Registry) AddReaction(a uint16, re Reaction) {
	r.checkMutable(a)
	r.checkMutable(re.To)
	r.reactions[a] = append(r.reactions[a], re)
}

// Interactions returns the effects for a next to b, or nil.
func (r *Registry) Interactions(a, b uint16) []Effect {
	row := r.interactions[a]
	if row == nil {
		return nil
	}
	return row[b]
}

// HasInteractions reports whether a has any neighbor-triggered effect.
func (r *Registry) HasInteractions(a uint16) bool { return r.interactions[a] != nil }

func (r *Registry) Reactions(a uint16) []Reaction { return r.reactions[a] }
