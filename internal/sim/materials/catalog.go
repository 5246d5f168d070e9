package materials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CatalogDef is one entry of materials.json.
type CatalogDef struct {
	Name         string  `json:"name"`
	Class        string  `json:"class"`
	Color        string  `json:"color"` // #RRGGBBAA
	ColorJitter  uint8   `json:"color_jitter,omitempty"`
	Density      float32 `json:"density"`
	Iterations   int     `json:"iterations,omitempty"`
	Slipperiness float32 `json:"slipperiness,omitempty"`
	Conduction   float32 `json:"conduction,omitempty"`
	DefaultTemp  int32   `json:"default_temp,omitempty"`
	Flammable    bool    `json:"flammable,omitempty"`

	Interactions []CatalogInteraction `json:"interactions,omitempty"`
	Reactions    []CatalogReaction    `json:"reactions,omitempty"`
}

type CatalogInteraction struct {
	With   string `json:"with"`
	Kind   string `json:"kind"` // TRANSFORM | SPAWN
	To     string `json:"to"`
	Radius int    `json:"radius,omitempty"`
	OffX   int    `json:"off_x,omitempty"`
	OffY   int    `json:"off_y,omitempty"`
}

type CatalogReaction struct {
	Kind      string `json:"kind"` // BELOW | ABOVE
	Threshold int32  `json:"threshold"`
	To        string `json:"to"`
}

// LoadRegistry builds the default registry extended by the catalog at
// catalogPath, validated against the JSON schema at schemaPath. An empty
// catalogPath yields DefaultRegistry.
func LoadRegistry(catalogPath, schemaPath string) (*Registry, error) {
	if strings.TrimSpace(catalogPath) == "" {
		return DefaultRegistry(), nil
	}
	defs, err := readCatalog(catalogPath, schemaPath)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	registerDefaults(r)
	for _, d := range defs {
		m, err := d.material()
		if err != nil {
			return nil, fmt.Errorf("materials.json: %s: %w", d.Name, err)
		}
		if _, dup := r.ByName(m.Name); dup {
			return nil, fmt.Errorf("materials.json: duplicate material %q", m.Name)
		}
		r.Register(m)
	}
	r.Seal()
	addDefaultTables(r)
	for _, d := range defs {
		if err := d.addTables(r); err != nil {
			return nil, fmt.Errorf("materials.json: %s: %w", d.Name, err)
		}
	}
	return r, nil
}

func readCatalog(path, schemaPath string) ([]CatalogDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if schemaPath != "" {
		schema, err := jsonschema.Compile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", schemaPath, err)
		}
		var doc any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("materials.json: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("materials.json: %w", err)
		}
	}
	var defs []CatalogDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}
	return defs, nil
}

func (d CatalogDef) material() (Material, error) {
	class, err := ParseClass(d.Class)
	if err != nil {
		return Material{}, err
	}
	color, err := ParseColor(d.Color)
	if err != nil {
		return Material{}, err
	}
	return Material{
		Name:            d.Name,
		Class:           class,
		Color:           color,
		ColorJitter:     d.ColorJitter,
		Density:         d.Density,
		Iterations:      d.Iterations,
		Slipperiness:    d.Slipperiness,
		ConductionSelf:  d.Conduction,
		ConductionOther: d.Conduction,
		DefaultTemp:     d.DefaultTemp,
		Flammable:       d.Flammable,
	}, nil
}

func (d CatalogDef) addTables(r *Registry) error {
	self := r.MustID(d.Name)
	lookup := func(name string) (uint16, error) {
		id, ok := r.ByName(name)
		if !ok {
			return 0, fmt.Errorf("unknown material %q", name)
		}
		return id, nil
	}
	for _, in := range d.Interactions {
		with, err := lookup(in.With)
		if err != nil {
			return err
		}
		to, err := lookup(in.To)
		if err != nil {
			return err
		}
		switch in.Kind {
		case "TRANSFORM":
			r.AddInteraction(self, with, Effect{Kind: EffectTransform, To: to, Radius: in.Radius})
		case "SPAWN":
			r.AddInteraction(self, with, Effect{Kind: EffectSpawn, Spawn: to, OffX: in.OffX, OffY: in.OffY})
		default:
			return fmt.Errorf("unknown interaction kind %q", in.Kind)
		}
	}
	for _, re := range d.Reactions {
		to, err := lookup(re.To)
		if err != nil {
			return err
		}
		kind := ReactBelow
		if re.Kind == "ABOVE" {
			kind = ReactAbove
		}
		r.AddReaction(self, Reaction{Kind: kind, Threshold: re.Threshold, To: to})
	}
	return nil
}

// ParseColor parses #RRGGBB or #RRGGBBAA.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 6:
		s += "ff"
	case 8:
	default:
		return 0, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad color %q: %w", s, err)
	}
	return uint32(v), nil
}
