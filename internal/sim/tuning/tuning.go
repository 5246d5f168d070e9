package tuning

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	World       World       `yaml:"world"`
	Sim         Sim         `yaml:"sim"`
	Mesh        Mesh        `yaml:"mesh"`
	Workers     Workers     `yaml:"workers"`
	Persistence Persistence `yaml:"persistence"`
}

type World struct {
	Name      string `yaml:"name"`
	Generator string `yaml:"generator"`
	Seed      int64  `yaml:"seed"`

	// Live array extent, in chunks.
	WidthChunks  int `yaml:"width_chunks"`
	HeightChunks int `yaml:"height_chunks"`

	// Tick and mesh zones, in pixels, centered on the camera.
	TickZoneW int `yaml:"tick_zone_w"`
	TickZoneH int `yaml:"tick_zone_h"`
	MeshZoneW int `yaml:"mesh_zone_w"`
	MeshZoneH int `yaml:"mesh_zone_h"`

	UnloadDist int `yaml:"chunk_unload_dist"`
	MergeBatch int `yaml:"merge_batch"`
}

type Sim struct {
	Iterations         int  `yaml:"iterations"`
	AlternateDirection bool `yaml:"alternate_direction"`

	FluidMaxValue       float32 `yaml:"fluid_max_value"`
	FluidMinValue       float32 `yaml:"fluid_min_value"`
	FluidMaxCompression float32 `yaml:"fluid_max_compression"`
	FluidMinFlow        float32 `yaml:"fluid_min_flow"`
	FluidMaxFlow        float32 `yaml:"fluid_max_flow"`
	FluidFlowSpeed      float32 `yaml:"fluid_flow_speed"`
	FluidFallColumn     int     `yaml:"fluid_fall_column"`
	FluidFallChance     float32 `yaml:"fluid_fall_chance"`

	FireEmberChance      float32 `yaml:"fire_ember_chance"`
	FireExtinguishChance float32 `yaml:"fire_extinguish_chance"`
	FireIgniteChance     float32 `yaml:"fire_ignite_chance"`

	ConductionChance float32 `yaml:"conduction_chance"`
	FlowDecay        float32 `yaml:"flow_decay"`

	ParticleSearchRadius int     `yaml:"particle_search_radius"`
	Gravity              float32 `yaml:"gravity"`
}

type Mesh struct {
	SimplifyEpsilon    float32 `yaml:"simplify_epsilon"`
	SplitParallelWidth int     `yaml:"split_parallel_width"`
	MaxSplitDepth      int     `yaml:"max_split_depth"`
	FloodCap           int     `yaml:"flood_cap"`
	Density            float32 `yaml:"density"`
	Friction           float32 `yaml:"friction"`
}

type Workers struct {
	Sim         int `yaml:"sim"`
	Load        int `yaml:"load"`
	Mesh        int `yaml:"mesh"`
	Maintenance int `yaml:"maintenance"`
}

type Persistence struct {
	RegenerateCorrupt bool `yaml:"regenerate_corrupt"`
	TickLog           bool `yaml:"tick_log"`
	TickLogEvery      int  `yaml:"tick_log_every"`
	ChunkLedger       bool `yaml:"chunk_ledger"`
	ChunkEventLog     bool `yaml:"chunk_event_log"`

	// Periodic full saves and backups, in ticks. Zero disables.
	SaveEveryTicks   int `yaml:"save_every_ticks"`
	BackupEveryTicks int `yaml:"backup_every_ticks"`
	BackupKeep       int `yaml:"backup_keep"`
}

func Defaults() Tuning {
	n := runtime.NumCPU()
	return Tuning{
		TickRateHz: 30,
		World: World{
			Name:         "world",
			Generator:    "default",
			Seed:         1337,
			WidthChunks:  8,
			HeightChunks: 6,
			TickZoneW:    640,
			TickZoneH:    512,
			MeshZoneW:    512,
			MeshZoneH:    384,
			UnloadDist:   8,
			MergeBatch:   16,
		},
		Sim: Sim{
			Iterations:           6,
			FluidMaxValue:        1.0,
			FluidMinValue:        0.005,
			FluidMaxCompression:  0.25,
			FluidMinFlow:         0.005,
			FluidMaxFlow:         4,
			FluidFlowSpeed:       1,
			FluidFallColumn:      6,
			FluidFallChance:      0.02,
			FireEmberChance:      0.02,
			FireExtinguishChance: 0.01,
			FireIgniteChance:     0.05,
			ConductionChance:     0.25,
			FlowDecay:            0.5,
			ParticleSearchRadius: 6,
			Gravity:              0.2,
		},
		Mesh: Mesh{
			SimplifyEpsilon:    1.0,
			SplitParallelWidth: 64,
			MaxSplitDepth:      4,
			FloodCap:           4000,
			Density:            1,
			Friction:           0.3,
		},
		Workers: Workers{
			Sim:         n,
			Load:        max(1, n/2),
			Mesh:        max(1, n/2),
			Maintenance: n,
		},
		Persistence: Persistence{
			RegenerateCorrupt: true,
			TickLog:           false,
			TickLogEvery:      30,
			ChunkLedger:       true,
			SaveEveryTicks:    1800,
			BackupEveryTicks:  0,
			BackupKeep:        4,
		},
	}
}

// Load reads a tuning file over Defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize replaces non-positive sizes with their defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	w := &t.World
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		w.Name = d.World.Name
	}
	w.Generator = strings.ToLower(strings.TrimSpace(w.Generator))
	if w.Generator == "" {
		w.Generator = d.World.Generator
	}
	if w.WidthChunks <= 0 {
		w.WidthChunks = d.World.WidthChunks
	}
	if w.HeightChunks <= 0 {
		w.HeightChunks = d.World.HeightChunks
	}
	if w.TickZoneW <= 0 {
		w.TickZoneW = d.World.TickZoneW
	}
	if w.TickZoneH <= 0 {
		w.TickZoneH = d.World.TickZoneH
	}
	if w.MeshZoneW <= 0 {
		w.MeshZoneW = d.World.MeshZoneW
	}
	if w.MeshZoneH <= 0 {
		w.MeshZoneH = d.World.MeshZoneH
	}
	if w.UnloadDist <= 0 {
		w.UnloadDist = d.World.UnloadDist
	}
	if w.MergeBatch <= 0 {
		w.MergeBatch = d.World.MergeBatch
	}

	s := &t.Sim
	if s.Iterations <= 0 {
		s.Iterations = d.Sim.Iterations
	}
	if s.FluidMaxValue <= 0 {
		s.FluidMaxValue = d.Sim.FluidMaxValue
	}
	if s.FluidMinValue <= 0 {
		s.FluidMinValue = d.Sim.FluidMinValue
	}
	if s.FluidMaxCompression <= 0 {
		s.FluidMaxCompression = d.Sim.FluidMaxCompression
	}
	if s.FluidMinFlow <= 0 {
		s.FluidMinFlow = d.Sim.FluidMinFlow
	}
	if s.FluidMaxFlow <= 0 {
		s.FluidMaxFlow = d.Sim.FluidMaxFlow
	}
	if s.FluidFlowSpeed <= 0 {
		s.FluidFlowSpeed = d.Sim.FluidFlowSpeed
	}
	if s.FluidFallColumn <= 0 {
		s.FluidFallColumn = d.Sim.FluidFallColumn
	}
	if s.ParticleSearchRadius <= 0 {
		s.ParticleSearchRadius = d.Sim.ParticleSearchRadius
	}

	m := &t.Mesh
	if m.SimplifyEpsilon <= 0 {
		m.SimplifyEpsilon = d.Mesh.SimplifyEpsilon
	}
	if m.SplitParallelWidth <= 0 {
		m.SplitParallelWidth = d.Mesh.SplitParallelWidth
	}
	if m.MaxSplitDepth <= 0 {
		m.MaxSplitDepth = d.Mesh.MaxSplitDepth
	}
	if m.FloodCap <= 0 {
		m.FloodCap = d.Mesh.FloodCap
	}
	if m.Density <= 0 {
		m.Density = d.Mesh.Density
	}

	wk := &t.Workers
	if wk.Sim <= 0 {
		wk.Sim = d.Workers.Sim
	}
	if wk.Load <= 0 {
		wk.Load = d.Workers.Load
	}
	if wk.Mesh <= 0 {
		wk.Mesh = d.Workers.Mesh
	}
	if wk.Maintenance <= 0 {
		wk.Maintenance = d.Workers.Maintenance
	}

	p := &t.Persistence
	if p.TickLogEvery <= 0 {
		p.TickLogEvery = d.Persistence.TickLogEvery
	}
	if p.SaveEveryTicks < 0 {
		p.SaveEveryTicks = 0
	}
	if p.BackupEveryTicks < 0 {
		p.BackupEveryTicks = 0
	}
	if p.BackupKeep < 0 {
		p.BackupKeep = 0
	}
}

func (t Tuning) Validate() error {
	if t.Sim.FluidMinValue >= t.Sim.FluidMaxValue {
		return fmt.Errorf("sim.fluid_min_value (%v) must be below fluid_max_value (%v)", t.Sim.FluidMinValue, t.Sim.FluidMaxValue)
	}
	// Visible edge chunks pull in neighbors one chunk further out.
	if need := max(t.World.WidthChunks, t.World.HeightChunks)/2 + 1; t.World.UnloadDist < need {
		return fmt.Errorf("world.chunk_unload_dist %d must be at least %d for the load zone", t.World.UnloadDist, need)
	}
	for name, p := range map[string]float32{
		"fire_ember_chance":      t.Sim.FireEmberChance,
		"fire_extinguish_chance": t.Sim.FireExtinguishChance,
		"fire_ignite_chance":     t.Sim.FireIgniteChance,
		"fluid_fall_chance":      t.Sim.FluidFallChance,
		"conduction_chance":      t.Sim.ConductionChance,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("sim.%s must be within [0,1], got %v", name, p)
		}
	}
	return nil
}
