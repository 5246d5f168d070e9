package indexdb

import (
	"path/filepath"
	"testing"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
)

func TestSQLiteLedger_RecordsSavesAndCorruption(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "ledger.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = s.Close() }()

	s.RecordSave(1, -2, 0, 100)
	s.RecordSave(1, -2, 2, 140)
	s.RecordSave(3, 3, 1, 90)
	s.RecordCorruption(1, -2, "tiles: truncated")
	s.Flush()

	p, ok, err := s.LastPhase(1, -2)
	if err != nil || !ok || p != 2 {
		t.Fatalf("LastPhase(1,-2) = %d,%v,%v want 2", p, ok, err)
	}
	if _, ok, err := s.LastPhase(9, 9); err != nil || ok {
		t.Fatalf("LastPhase of unknown chunk: ok=%v err=%v", ok, err)
	}
	if n, err := s.CorruptionCount(); err != nil || n != 1 {
		t.Fatalf("CorruptionCount = %d,%v", n, err)
	}
}

func TestSQLiteLedger_UpsertCatalogs(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = s.Close() }()

	reg := materials.DefaultRegistry()
	if err := s.UpsertCatalogs(reg, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	d, err := s.CatalogDigest("materials")
	if err != nil || d != reg.Digest() {
		t.Fatalf("materials digest %q,%v want %q", d, err, reg.Digest())
	}
	if d, err := s.CatalogDigest("tuning"); err != nil || len(d) != 64 {
		t.Fatalf("tuning digest %q,%v", d, err)
	}
}

func TestSQLiteLedger_QueueDropStats(t *testing.T) {
	s := &SQLiteLedger{ch: make(chan req, 1)}
	s.ch <- req{kind: reqSave}

	s.RecordSave(0, 0, 0, 1)
	s.RecordCorruption(0, 0, "x")

	st := s.Stats()
	if st.DropSaveTotal != 1 || st.DropCorruptionTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteLedger_CloseIsIdempotent(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s.RecordSave(0, 0, 0, 1)
}
