package materials

// DefaultRegistry registers the built-in palette and its interaction tables.
// The returned registry is sealed but not frozen, so callers may still add
// catalog interactions before the world starts ticking.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerDefaults(r)
	r.Seal()
	addDefaultTables(r)
	return r
}

func registerDefaults(r *Registry) {
	r.Register(Material{Name: "AIR", Class: Air, Density: 0, Color: RGBA(0, 0, 0, 0)})
	r.Register(Material{Name: "STONE", Class: Solid, Density: 5, Color: RGBA(124, 124, 124, 255), ColorJitter: 8, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20})
	r.Register(Material{Name: "DIRT", Class: Solid, Density: 4, Color: RGBA(96, 64, 40, 255), ColorJitter: 10, ConductionSelf: 0.2, ConductionOther: 0.2, DefaultTemp: 20})
	r.Register(Material{Name: "SAND", Class: Sand, Density: 3, Iterations: 2, Slipperiness: 0.4, Color: RGBA(226, 200, 128, 255), ColorJitter: 12, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20})
	r.Register(Material{Name: "GRAVEL", Class: Sand, Density: 4, Iterations: 2, Slipperiness: 0.15, Color: RGBA(110, 104, 100, 255), ColorJitter: 20, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20})
	r.Register(Material{Name: "WATER", Class: Soup, Density: 1.5, Iterations: 6, Color: RGBA(40, 90, 200, 170), ColorJitter: 4, ConductionSelf: 0.5, ConductionOther: 0.5, DefaultTemp: 20})
	r.Register(Material{Name: "OIL", Class: Soup, Density: 1.2, Iterations: 4, Color: RGBA(50, 40, 20, 220), ColorJitter: 4, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20, Flammable: true})
	r.Register(Material{Name: "ACID", Class: Soup, Density: 1.6, Iterations: 5, Color: RGBA(120, 230, 60, 190), ColorJitter: 6, ConductionSelf: 0.4, ConductionOther: 0.4, DefaultTemp: 20})
	r.Register(Material{Name: "LAVA", Class: Soup, Density: 3.5, Iterations: 2, Color: RGBA(255, 96, 16, 255), ColorJitter: 16, Emit: RGBA(255, 120, 40, 255), ConductionSelf: 0.6, ConductionOther: 0.6, DefaultTemp: 1200})
	r.Register(Material{Name: "STEAM", Class: Gas, Density: 0.2, Iterations: 1, Color: RGBA(220, 220, 230, 110), ColorJitter: 10, ConductionSelf: 0.2, ConductionOther: 0.2, DefaultTemp: 110})
	r.Register(Material{Name: "SMOKE", Class: Gas, Density: 0.1, Iterations: 1, Color: RGBA(60, 60, 60, 140), ColorJitter: 10, DefaultTemp: 40})
	r.Register(Material{Name: "FIRE", Class: Passable, Density: 0, Iterations: 1, Color: RGBA(255, 140, 20, 230), Emit: RGBA(255, 160, 60, 255), ConductionSelf: 0.8, ConductionOther: 0.8, DefaultTemp: 600})
	r.Register(Material{Name: "WOOD", Class: Solid, Density: 2, Color: RGBA(120, 80, 45, 255), ColorJitter: 8, ConductionSelf: 0.1, ConductionOther: 0.1, DefaultTemp: 20, Flammable: true})
	r.Register(Material{Name: "OBSIDIAN", Class: Solid, Density: 5, Color: RGBA(40, 20, 60, 255), ColorJitter: 6, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20})
	r.Register(Material{Name: "ICE", Class: Solid, Density: 1.4, Color: RGBA(170, 210, 240, 220), ColorJitter: 6, ConductionSelf: 0.4, ConductionOther: 0.4, DefaultTemp: -10})
	r.Register(Material{Name: "GRASS", Class: Solid, Density: 3, Color: RGBA(60, 150, 40, 255), ColorJitter: 14, ConductionSelf: 0.2, ConductionOther: 0.2, DefaultTemp: 20, Flammable: true})
	r.Register(Material{Name: "BEDROCK", Class: Solid, Density: 100, Color: RGBA(30, 30, 30, 255), ColorJitter: 4})
	r.Register(Material{Name: "COAL_ORE", Class: Solid, Density: 5, Color: RGBA(40, 40, 44, 255), ColorJitter: 10, ConductionSelf: 0.3, ConductionOther: 0.3, DefaultTemp: 20, Flammable: true})
	r.Register(Material{Name: "IRON_ORE", Class: Solid, Density: 6, Color: RGBA(150, 110, 90, 255), ColorJitter: 10, ConductionSelf: 0.5, ConductionOther: 0.5, DefaultTemp: 20})
}

func addDefaultTables(r *Registry) {
	id := r.MustID

	r.AddInteraction(id("WATER"), id("LAVA"), Effect{Kind: EffectTransform, To: id("OBSIDIAN"), Radius: 0})
	r.AddInteraction(id("WATER"), id("LAVA"), Effect{Kind: EffectSpawn, Spawn: id("STEAM"), OffX: 0, OffY: -1})
	r.AddInteraction(id("ACID"), id("STONE"), Effect{Kind: EffectTransform, To: id("AIR"), Radius: 0})
	r.AddInteraction(id("ACID"), id("DIRT"), Effect{Kind: EffectTransform, To: id("AIR"), Radius: 0})
	r.AddInteraction(id("ACID"), id("WOOD"), Effect{Kind: EffectTransform, To: id("AIR"), Radius: 0})
	r.AddInteraction(id("LAVA"), id("ICE"), Effect{Kind: EffectTransform, To: id("WATER"), Radius: 1})
	r.AddInteraction(id("LAVA"), id("WOOD"), Effect{Kind: EffectTransform, To: id("FIRE"), Radius: 0})

	r.AddReaction(id("WATER"), Reaction{Kind: ReactAbove, Threshold: 100, To: id("STEAM")})
	r.AddReaction(id("STEAM"), Reaction{Kind: ReactBelow, Threshold: 95, To: id("WATER")})
	r.AddReaction(id("LAVA"), Reaction{Kind: ReactBelow, Threshold: 700, To: id("OBSIDIAN")})
	r.AddReaction(id("ICE"), Reaction{Kind: ReactAbove, Threshold: 0, To: id("WATER")})
	r.AddReaction(id("WATER"), Reaction{Kind: ReactBelow, Threshold: -5, To: id("ICE")})
}
