package world

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/workers"
	"pixelcraft.ai/internal/sim/world/terrain/gen"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

// World owns the live pixel arrays and everything derived from them.
// All state must be accessed only from the goroutine driving Step; worker
// pools touch the arrays only inside a joined batch.
type World struct {
	cfg  tuning.Tuning
	reg  *materials.Registry
	gen  gen.Generator
	phys physics.Engine
	log  *log.Logger

	ledger     ChunkLedger
	tickLogger TickLogger
	statsSink  func(FrameStats)

	dir   string
	meta  Meta
	store *store.ChunkStore

	// Live arrays, W*H, row-major.
	W, H     int
	tiles    []materials.Tile
	bg       []materials.Tile
	bgColor  []uint32
	dirty    []bool
	bgDirty  []bool
	flowX    []float32
	flowY    []float32
	visited  []bool
	objMask  []bool
	loadZone image.Point

	// Chunk bookkeeping. Mutated only from the controller goroutine.
	chunks   map[store.ChunkKey]*store.Chunk
	live     map[store.ChunkKey]bool
	populate map[store.ChunkKey]bool
	render   map[store.ChunkKey]bool
	loading  map[store.ChunkKey]bool
	queued   []store.ChunkKey
	ready    []store.ChunkKey
	inReady  map[store.ChunkKey]bool
	loader   *workers.Loader[loadJob, loadResult]
	maxPhase int8

	simPool   *workers.Pool
	meshPool  *workers.Pool
	maintPool *workers.Pool

	tick      uint64
	particles []*Particle
	bodies    []*RigidBody
	nextBody  int
	anchor    physics.BodyID
	hasAnchor bool
	entities  []*Entity

	despawnedFluid float64
	counters       Counters
	closed         bool

	ids struct {
		air, fire, smoke, bedrock uint16
	}
}

// Counters accumulate over the lifetime of a World.
type Counters struct {
	Generated   int
	Loaded      int
	Corrupt     int
	Evicted     int
	ChunkWrites int
	Merged      int
	PhaseSteps  int
	Structures  int
	Splits      int
}

// FrameStats is published after every Step.
type FrameStats struct {
	Tick           uint64  `json:"tick"`
	LoadedChunks   int     `json:"loaded_chunks"`
	LiveChunks     int     `json:"live_chunks"`
	ReadyChunks    int     `json:"ready_chunks"`
	PendingLoads   int     `json:"pending_loads"`
	Particles      int     `json:"particles"`
	Bodies         int     `json:"bodies"`
	DespawnedFluid float64 `json:"despawned_fluid"`
	StepMillis     float64 `json:"step_ms"`
	LoadZone       [2]int  `json:"load_zone"`
}

func New(c Config) (*World, error) {
	if c.Registry == nil {
		return nil, errors.New("world: nil registry")
	}
	if c.Dir == "" {
		return nil, errors.New("world: empty directory")
	}
	t := c.Tuning
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, err
	}
	cs, err := store.NewChunkStore(filepath.Join(c.Dir, "chunks"))
	if err != nil {
		return nil, err
	}
	meta, err := touchMeta(c.Dir, t.World.Name, time.Now())
	if err != nil {
		return nil, err
	}
	g := c.Generator
	if g == nil {
		g, err = gen.New(t.World.Generator, t.World.Seed, c.Registry)
		if err != nil {
			return nil, err
		}
	}
	ph := c.Physics
	if ph == nil {
		ph = physics.NewHeadless(mgl32.Vec2{0, t.Sim.Gravity})
	}
	lg := c.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	c.Registry.Freeze()

	w := &World{
		cfg:        t,
		reg:        c.Registry,
		gen:        g,
		phys:       ph,
		log:        lg,
		ledger:     c.Ledger,
		tickLogger: c.TickLogger,
		dir:        c.Dir,
		meta:       meta,
		store:      cs,
		W:          t.World.WidthChunks * store.Width,
		H:          t.World.HeightChunks * store.Height,
		chunks:     map[store.ChunkKey]*store.Chunk{},
		live:       map[store.ChunkKey]bool{},
		populate:   map[store.ChunkKey]bool{},
		render:     map[store.ChunkKey]bool{},
		loading:    map[store.ChunkKey]bool{},
		inReady:    map[store.ChunkKey]bool{},
		maxPhase:   gen.MaxPhase(g),
		simPool:    workers.NewPool(t.Workers.Sim),
		meshPool:   workers.NewPool(t.Workers.Mesh),
		maintPool:  workers.NewPool(t.Workers.Maintenance),
	}
	n := w.W * w.H
	w.tiles = make([]materials.Tile, n)
	w.bg = make([]materials.Tile, n)
	w.bgColor = make([]uint32, n)
	w.dirty = make([]bool, n)
	w.bgDirty = make([]bool, n)
	w.flowX = make([]float32, n)
	w.flowY = make([]float32, n)
	w.visited = make([]bool, n)
	w.objMask = make([]bool, n)
	for i := range w.tiles {
		w.tiles[i] = materials.AirTile()
		w.bg[i] = materials.AirTile()
	}
	w.ids.air = 0
	w.ids.fire, _ = c.Registry.ByName("FIRE")
	w.ids.smoke, _ = c.Registry.ByName("SMOKE")
	w.ids.bedrock, _ = c.Registry.ByName("BEDROCK")

	w.loader = workers.NewLoader(t.Workers.Load, 0, w.loadOrGenerate)
	return w, nil
}

func (w *World) SetStatsSink(fn func(FrameStats)) { w.statsSink = fn }
func (w *World) SetTickLogger(l TickLogger)       { w.tickLogger = l }

func (w *World) Registry() *materials.Registry { return w.reg }
func (w *World) Physics() physics.Engine       { return w.phys }
func (w *World) Meta() Meta                    { return w.meta }
func (w *World) Dir() string                   { return w.dir }
func (w *World) Tuning() tuning.Tuning         { return w.cfg }
func (w *World) CurrentTick() uint64           { return w.tick }
func (w *World) Counters() Counters            { return w.counters }
func (w *World) LoadZone() image.Point         { return w.loadZone }

// DespawnedFluid is the total fluid amount removed below the minimum value.
func (w *World) DespawnedFluid() float64 { return w.despawnedFluid }

func (w *World) index(x, y int) int { return x + y*w.W }

func (w *World) inArray(x, y int) bool { return x >= 0 && y >= 0 && x < w.W && y < w.H }

// ToArray converts global pixel coordinates to live-array coordinates.
func (w *World) ToArray(gx, gy int) (int, int) { return gx + w.loadZone.X, gy + w.loadZone.Y }

func (w *World) ToGlobal(x, y int) (int, int) { return x - w.loadZone.X, y - w.loadZone.Y }

// Tile returns the live tile at global (gx, gy). ok is false outside the array.
func (w *World) Tile(gx, gy int) (materials.Tile, bool) {
	x, y := w.ToArray(gx, gy)
	if !w.inArray(x, y) {
		return materials.Tile{}, false
	}
	return w.tiles[w.index(x, y)], true
}

// SetTile writes the live tile at global (gx, gy) and marks it dirty.
func (w *World) SetTile(gx, gy int, t materials.Tile) bool {
	x, y := w.ToArray(gx, gy)
	if !w.inArray(x, y) {
		return false
	}
	i := w.index(x, y)
	w.tiles[i] = t
	w.dirty[i] = true
	w.markMeshDirty(x, y)
	return true
}

// Place creates a fresh tile of material id at global (gx, gy).
func (w *World) Place(gx, gy int, id uint16) bool {
	return w.SetTile(gx, gy, w.reg.NewTile(id, nil))
}

// Center is the global pixel at the middle of the live array.
func (w *World) Center() image.Point {
	return image.Pt(w.W/2-w.loadZone.X, w.H/2-w.loadZone.Y)
}

func (w *World) centerChunk() store.ChunkKey {
	c := w.Center()
	return store.ChunkKey{X: mathx.FloorDiv(c.X, store.Width), Y: mathx.FloorDiv(c.Y, store.Height)}
}

func (w *World) zone(zw, zh int) image.Rectangle {
	cx, cy := w.W/2, w.H/2
	r := image.Rect(cx-zw/2, cy-zh/2, cx-zw/2+zw, cy-zh/2+zh)
	return r.Intersect(image.Rect(0, 0, w.W, w.H))
}

// TickZone is the simulated region, in array coordinates.
func (w *World) TickZone() image.Rectangle { return w.zone(w.cfg.World.TickZoneW, w.cfg.World.TickZoneH) }

// MeshZone is the region whose chunks keep static collision meshes.
func (w *World) MeshZone() image.Rectangle { return w.zone(w.cfg.World.MeshZoneW, w.cfg.World.MeshZoneH) }

// Chunk returns the cached chunk at (cx, cy), if any.
func (w *World) Chunk(cx, cy int) (*store.Chunk, bool) {
	ch, ok := w.chunks[store.ChunkKey{X: cx, Y: cy}]
	return ch, ok
}

func (w *World) ChunkKeys() []store.ChunkKey {
	keys := make([]store.ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	return keys
}

// Step runs one frame: streaming, generation, the CA tick, bodies, physics
// and entity movement.
func (w *World) Step() {
	start := time.Now()
	w.Frame()
	w.TickChunkGeneration()
	w.Tick()
	w.UpdateRigidBodies()
	w.phys.Step(1)
	w.RasterizeBodies()
	for _, e := range w.entities {
		w.MoveEntity(e)
	}
	w.RemeshChunks()

	st := w.Stats()
	st.StepMillis = float64(time.Since(start).Microseconds()) / 1000
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: w.tick, Stats: st}); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
	if w.statsSink != nil {
		w.statsSink(st)
	}
}

func (w *World) Stats() FrameStats {
	return FrameStats{
		Tick:           w.tick,
		LoadedChunks:   len(w.chunks),
		LiveChunks:     len(w.live),
		ReadyChunks:    len(w.ready),
		PendingLoads:   w.loader.Pending() + len(w.queued),
		Particles:      len(w.particles),
		Bodies:         len(w.bodies),
		DespawnedFluid: w.despawnedFluid,
		LoadZone:       [2]int{w.loadZone.X, w.loadZone.Y},
	}
}

// Save writes every cached chunk, pulling live ones from the arrays first,
// and world.json. The world keeps running.
func (w *World) Save() error {
	var firstErr error
	for _, k := range w.sortedKeys() {
		ch := w.chunks[k]
		if !ch.HasTileCache() {
			continue
		}
		if w.live[k] {
			w.pullChunk(ch)
		}
		if err := w.saveChunk(ch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.meta.LastOpenedVersion = Version
	if err := WriteMeta(w.dir, w.meta); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("save world: %w", firstErr)
	}
	return nil
}

// Close waits for outstanding loads and saves the world.
func (w *World) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.absorbLoads(w.loader.Drain())
	w.loader.Close()
	return w.Save()
}
