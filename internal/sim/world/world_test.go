package world

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

type fakeLedger struct {
	saves   map[store.ChunkKey]int
	corrupt int
}

func (l *fakeLedger) RecordSave(x, y int, phase int8, bytes int64) {
	if l.saves == nil {
		l.saves = map[store.ChunkKey]int{}
	}
	l.saves[store.ChunkKey{X: x, Y: y}]++
}

func (l *fakeLedger) RecordCorruption(x, y int, reason string) { l.corrupt++ }

// newTestWorld opens a 2x2-chunk world whose tick and mesh zones cover the
// whole array, so array and global coordinates coincide.
func newTestWorld(t *testing.T, mod func(*tuning.Tuning)) (*World, *fakeLedger) {
	t.Helper()
	tn := tuning.Defaults()
	tn.World.WidthChunks, tn.World.HeightChunks = 2, 2
	tn.World.TickZoneW, tn.World.TickZoneH = 256, 256
	tn.World.MeshZoneW, tn.World.MeshZoneH = 256, 256
	tn.Workers = tuning.Workers{Sim: 2, Load: 2, Mesh: 2, Maintenance: 2}
	if mod != nil {
		mod(&tn)
	}
	led := &fakeLedger{}
	w, err := New(Config{
		Tuning:   tn,
		Dir:      t.TempDir(),
		Registry: materials.DefaultRegistry(),
		Ledger:   led,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, led
}

func fillRect(w *World, r image.Rectangle, id uint16) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			w.Place(x, y, id)
		}
	}
}

func TestNew_WritesMetaMatchingSchema(t *testing.T) {
	w, _ := newTestWorld(t, func(tn *tuning.Tuning) { tn.World.Name = "meadow" })
	m, err := ReadMeta(w.dir)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if m.Name != "meadow" || m.LastOpenedVersion != Version || m.LastOpenedTime == 0 {
		t.Fatalf("meta: %+v", m)
	}

	s, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "world_meta.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	f, err := os.Open(metaPath(w.dir))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var doc any
	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("world.json does not match schema: %v", err)
	}
}

func TestReadMeta_MissingIsZero(t *testing.T) {
	m, err := ReadMeta(t.TempDir())
	if err != nil || m != (Meta{}) {
		t.Fatalf("got %+v, %v", m, err)
	}
}

func TestMergeChunk_Idempotent(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	ch := store.NewPlaceholder(0, 0)
	w.gen.GenerateChunk(ch)
	w.chunks[ch.Key()] = ch

	w.MergeChunk(ch)
	first := append([]materials.Tile(nil), w.tiles...)
	w.MergeChunk(ch)
	for i := range first {
		if first[i] != w.tiles[i] {
			t.Fatalf("tile %d changed on second merge", i)
		}
	}
	if got := w.tiles[w.index(5, 100)]; got != ch.Get(5, 100) {
		t.Fatalf("merged tile mismatch: %+v vs %+v", got, ch.Get(5, 100))
	}
	if !w.live[ch.Key()] {
		t.Fatalf("merged chunk not live")
	}
}

func TestMoveLoadZone_KeepsGlobalTiles(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	stone := w.reg.MustID("STONE")
	w.Place(10, 10, stone)

	w.MoveLoadZone(store.Width, 0)
	if got := w.LoadZone(); got != image.Pt(store.Width, 0) {
		t.Fatalf("load zone: %v", got)
	}
	if tl, ok := w.Tile(10, 10); !ok || tl.Mat != stone {
		t.Fatalf("tile moved: %+v ok=%v", tl, ok)
	}
	if x, y := w.ToArray(10, 10); x != 10+store.Width || y != 10 {
		t.Fatalf("ToArray: %d,%d", x, y)
	}
	if tl := w.tiles[w.index(10, 10)]; tl.Mat != 0 {
		t.Fatalf("exposed cell not cleared: %+v", tl)
	}
}

func TestTickChunkGeneration_EvictsOnceWithOneWrite(t *testing.T) {
	w, led := newTestWorld(t, nil)
	w.QueueLoadChunk(0, 0, false, false)
	w.AwaitLoads()
	ch, ok := w.Chunk(0, 0)
	if !ok || !ch.HasTileCache() {
		t.Fatalf("chunk (0,0) not loaded")
	}

	w.MoveLoadZone(-20*store.Width, 0)
	w.TickChunkGeneration()
	w.TickChunkGeneration()

	if _, ok := w.Chunk(0, 0); ok {
		t.Fatalf("chunk (0,0) still cached")
	}
	c := w.Counters()
	if c.Evicted != 1 || c.ChunkWrites != 1 {
		t.Fatalf("counters: %+v", c)
	}
	if led.saves[store.ChunkKey{}] != 1 {
		t.Fatalf("ledger saves: %v", led.saves)
	}
	if !w.store.Exists(store.ChunkKey{}) {
		t.Fatalf("evicted chunk not on disk")
	}
}

func TestTickChunkGeneration_PhaseOrdering(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	w.QueueLoadChunk(0, 0, true, true)

	check := func() {
		for k, ch := range w.chunks {
			if !ch.HasTileCache() || ch.Phase <= 0 {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n, ok := w.chunks[store.ChunkKey{X: k.X + dx, Y: k.Y + dy}]
					if !ok || !n.HasTileCache() {
						t.Fatalf("chunk %v at phase %d has missing neighbor", k, ch.Phase)
					}
					if ch.Phase > n.Phase+1 {
						t.Fatalf("chunk %v phase %d exceeds neighbor phase %d by more than 1", k, ch.Phase, n.Phase)
					}
				}
			}
		}
	}
	for i := 0; i < 8; i++ {
		w.Frame()
		w.AwaitLoads()
		w.TickChunkGeneration()
		check()
	}
	ch, _ := w.Chunk(0, 0)
	if ch.Phase < 1 {
		t.Fatalf("chunk (0,0) never advanced: phase %d", ch.Phase)
	}
	if w.Counters().PhaseSteps == 0 {
		t.Fatalf("no phase steps counted")
	}
}

func TestTickChunkGeneration_SteadyCameraSettles(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	// Tighter than Validate allows, so edge chunks have neighbors past the
	// unload distance.
	w.cfg.World.UnloadDist = 1
	w.QueueVisible()

	run := func(n int) Counters {
		for i := 0; i < n; i++ {
			w.Frame()
			w.AwaitLoads()
			w.TickChunkGeneration()
		}
		return w.Counters()
	}
	first := run(40)
	keys := len(w.ChunkKeys())
	second := run(40)
	if second.Evicted != first.Evicted || second.ChunkWrites != first.ChunkWrites || second.Loaded+second.Generated != first.Loaded+first.Generated {
		t.Fatalf("streaming keeps churning: %+v then %+v", first, second)
	}
	if second.Evicted != 0 {
		t.Fatalf("evicted %d chunks under a fixed camera", second.Evicted)
	}
	if len(w.ChunkKeys()) != keys {
		t.Fatalf("cached chunks changed: %d then %d", keys, len(w.ChunkKeys()))
	}
}

func TestClose_SavesCachedChunks(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	w.QueueLoadChunk(1, 1, false, true)
	w.AwaitLoads()
	w.Frame()
	stone := w.reg.MustID("STONE")
	w.Place(store.Width+3, store.Height+3, stone)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ch, err := w.store.Load(store.ChunkKey{X: 1, Y: 1}, w.reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ch.Get(3, 3).Mat != stone {
		t.Fatalf("live edit not persisted: %+v", ch.Get(3, 3))
	}
}

func TestStep_PublishesStats(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	var got []FrameStats
	w.SetStatsSink(func(s FrameStats) { got = append(got, s) })
	for i := 0; i < 3; i++ {
		w.Step()
	}
	if len(got) != 3 || got[2].Tick != 3 {
		t.Fatalf("stats: %+v", got)
	}
}
