package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeWorld(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "chunks"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range map[string]string{
		"world.json":      `{"name":"w1"}`,
		"chunks/0_0.chunk": "aaaa",
		"chunks/1_0.chunk": "bb",
		"chunks/notes.txt": "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestBackupWorld_CopiesChunksAndMeta(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir)

	dst, files, err := BackupWorld(dir, "w1", 300)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if filepath.Base(dst) != "backup_000000000300" {
		t.Fatalf("dst=%s", dst)
	}
	// world.json, two chunks and meta.json.
	if len(files) != 4 {
		t.Fatalf("files=%v", files)
	}
	got, err := os.ReadFile(filepath.Join(dst, "chunks", "0_0.chunk"))
	if err != nil || string(got) != "aaaa" {
		t.Fatalf("chunk copy: %q %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "chunks", "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("non-chunk file copied: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dst, "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var m BackupMeta
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if m.World != "w1" || m.Tick != 300 || m.Chunks != 2 || m.Bytes != int64(len(`{"name":"w1"}`)+6) {
		t.Fatalf("meta: %+v", m)
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir)
	for _, tick := range []uint64{100, 200, 1000} {
		if _, _, err := BackupWorld(dir, "w1", tick); err != nil {
			t.Fatalf("backup %d: %v", tick, err)
		}
	}
	removed, err := Prune(dir, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 1 || filepath.Base(removed[0]) != "backup_000000000100" {
		t.Fatalf("removed=%v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "archives", "backup_000000001000")); err != nil {
		t.Fatalf("newest backup gone: %v", err)
	}
}

func TestDue(t *testing.T) {
	if Due(0, 10) || !Due(20, 10) || Due(21, 10) || Due(20, 0) {
		t.Fatalf("unexpected Due result")
	}
}
