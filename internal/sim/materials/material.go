// Package materials holds the material registry and the per-cell tile model.
//
// Materials are registered once at startup in a fixed order; the registration
// index is the material id, used both to index the registry and as the
// on-disk code in chunk files.
package materials

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type PhysicsClass uint8

const (
	Air PhysicsClass = iota
	Solid
	Sand
	Soup
	Gas
	Object
	Passable
)

var classNames = [...]string{"AIR", "SOLID", "SAND", "SOUP", "GAS", "OBJECT", "PASSABLE"}

func (c PhysicsClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("CLASS(%d)", uint8(c))
}

// ParseClass maps a class name (as written in catalogs) to its value.
func ParseClass(s string) (PhysicsClass, error) {
	for i, n := range classNames {
		if n == s {
			return PhysicsClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown physics class %q", s)
}

// Material is immutable once registered.
type Material struct {
	ID    uint16
	Name  string
	Class PhysicsClass

	Color       uint32 // 0xRRGGBBAA
	Alpha       uint8
	ColorJitter uint8
	Emit        uint32

	Density      float32
	Iterations   int
	Slipperiness float32

	ConductionSelf  float32
	ConductionOther float32
	DefaultTemp     int32
	Flammable       bool
}

// IsFluid reports whether tiles of this material carry a fluid amount.
func (m *Material) IsFluid() bool { return m.Class == Soup }

type Registry struct {
	mats   []Material
	byName map[string]uint16

	sealed bool
	frozen bool

	interactions [][][]Effect
	reactions    [][]Reaction
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]uint16{}}
}

// Register appends m and returns its id. Names must be unique.
func (r *Registry) Register(m Material) uint16 {
	if r.sealed {
		panic("materials: Register after Seal")
	}
	if m.Name == "" {
		panic("materials: empty material name")
	}
	if _, dup := r.byName[m.Name]; dup {
		panic(fmt.Sprintf("materials: duplicate material %q", m.Name))
	}
	if len(r.mats) >= 1<<16 {
		panic("materials: registry full")
	}
	if m.Iterations <= 0 {
		m.Iterations = 1
	}
	if m.Alpha == 0 && m.Class != Air {
		m.Alpha = uint8(m.Color & 0xFF)
	}
	id := uint16(len(r.mats))
	m.ID = id
	r.mats = append(r.mats, m)
	r.byName[m.Name] = id
	return id
}

// Seal ends registration and allocates the interaction and reaction tables.
func (r *Registry) Seal() {
	if r.sealed {
		return
	}
	if len(r.mats) == 0 || r.mats[0].Class != Air {
		panic("materials: id 0 must be an AIR material")
	}
	r.sealed = true
	r.interactions = make([][][]Effect, len(r.mats))
	r.reactions = make([][]Reaction, len(r.mats))
}

// Freeze makes the tables read-only. Simulation code calls it before the first tick.
func (r *Registry) Freeze() {
	r.Seal()
	r.frozen = true
}

func (r *Registry) Len() int { return len(r.mats) }

// Get returns the material for id. An id outside the registry is a programming error.
func (r *Registry) Get(id uint16) *Material {
	if int(id) >= len(r.mats) {
		panic(fmt.Sprintf("materials: id %d out of registry bounds (%d)", id, len(r.mats)))
	}
	return &r.mats[id]
}

func (r *Registry) Valid(id uint16) bool { return int(id) < len(r.mats) }

func (r *Registry) ByName(name string) (uint16, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// MustID is ByName for names registered by DefaultRegistry.
func (r *Registry) MustID(name string) uint16 {
	id, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("materials: unknown material %q", name))
	}
	return id
}

// Digest hashes the ordered palette. Chunk files are only portable between
// registries with equal digests.
func (r *Registry) Digest() string {
	names := make([]string, len(r.mats))
	for i, m := range r.mats {
		names[i] = m.Name
	}
	b, _ := json.Marshal(names)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
