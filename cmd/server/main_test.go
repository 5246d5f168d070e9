package main

import (
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world"
)

func TestShippedConfigsLoad(t *testing.T) {
	tune, err := tuning.Load("../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	if tune.TickRateHz != 30 || tune.Persistence.BackupKeep != 4 {
		t.Fatalf("tuning: %+v", tune)
	}
	reg, err := loadRegistry("../../configs", "", "../../schemas/materials.schema.json")
	if err != nil {
		t.Fatalf("materials: %v", err)
	}
	for _, name := range []string{"WATER", "SALT", "BRINE", "GUNPOWDER"} {
		if _, ok := reg.ByName(name); !ok {
			t.Fatalf("material %s missing", name)
		}
	}
}

func TestLoadRegistry_FallsBackToDefaults(t *testing.T) {
	reg, err := loadRegistry(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if reg.Len() != materials.DefaultRegistry().Len() {
		t.Fatalf("len=%d", reg.Len())
	}
}

func TestOpenSinks_RejectsUnknownBackend(t *testing.T) {
	env := func(k string) string {
		if k == "PC_LEDGER_BACKEND" {
			return "postgres"
		}
		return ""
	}
	if _, err := openSinks(t.TempDir(), "w", tuning.Defaults(), materials.DefaultRegistry(), env, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRuntime_SavesAndBacksUp(t *testing.T) {
	dir := t.TempDir()
	tn := tuning.Defaults()
	tn.World.Name = "w1"
	tn.World.WidthChunks, tn.World.HeightChunks = 2, 2
	tn.World.TickZoneW, tn.World.TickZoneH = 256, 256
	tn.World.MeshZoneW, tn.World.MeshZoneH = 256, 256
	tn.Workers = tuning.Workers{Sim: 2, Load: 2, Mesh: 2, Maintenance: 2}
	tn.Persistence.SaveEveryTicks = 2
	tn.Persistence.BackupEveryTicks = 4
	tn.Persistence.BackupKeep = 1
	tn.Persistence.ChunkEventLog = true

	logger := log.New(io.Discard, "", 0)
	reg := materials.DefaultRegistry()
	sk, err := openSinks(dir, "w1", tn, reg, func(string) string { return "" }, logger)
	if err != nil {
		t.Fatalf("openSinks: %v", err)
	}
	defer sk.Close()
	if sk.sqlite == nil || sk.chunkLog == nil || sk.mirror != nil {
		t.Fatalf("unexpected sinks: %+v", sk)
	}

	w, err := world.New(world.Config{Tuning: tn, Dir: dir, Registry: reg, Ledger: sk.ledger(), Logger: logger})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	defer w.Close()

	rt := newRuntime(w, nil, sk, logger)
	for i := 0; i < 8; i++ {
		rt.step()
	}
	if rt.saves.Load() != 4 || rt.backups.Load() != 2 || rt.lastBackupT.Load() != 8 {
		t.Fatalf("saves=%d backups=%d last=%d", rt.saves.Load(), rt.backups.Load(), rt.lastBackupT.Load())
	}
	// BackupKeep=1 prunes the tick 4 backup.
	if _, err := os.Stat(filepath.Join(dir, "archives", "backup_000000000004")); !os.IsNotExist(err) {
		t.Fatalf("old backup kept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "archives", "backup_000000000008", "world.json")); err != nil {
		t.Fatalf("backup world.json: %v", err)
	}

	rec := httptest.NewRecorder()
	rt.metricsHandler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"pixelcraft_tick 8", "pixelcraft_backups_total 2", "pixelcraft_ledger_queue_depth"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
