package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"pixelcraft.ai/internal/sim/world"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesPerHour(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ev")
	at := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readLines(t, w.Path("2024-03-01-10"))
	second := readLines(t, w.Path("2024-03-01-11"))
	if len(first) != 2 || len(second) != 1 || second[0] != `{"n":3}` {
		t.Fatalf("first=%v second=%v", first, second)
	}
	if w.Lines() != 3 {
		t.Fatalf("lines=%d", w.Lines())
	}
}

func TestTickLogger_Samples(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, 10)
	for tick := uint64(1); tick <= 30; tick++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: tick, Stats: world.FrameStats{Tick: tick}}); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := Files(filepath.Join(dir, "ticks"), "ticks")
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var ticks []uint64
	for _, f := range files {
		err := ReadJSONL(f, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			ticks = append(ticks, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 3 || ticks[0] != 10 || ticks[2] != 30 {
		t.Fatalf("sampled ticks=%v", ticks)
	}
}

func TestChunkLogger_RecordsEvents(t *testing.T) {
	dir := t.TempDir()
	l := NewChunkLogger(dir, func(err error) { t.Errorf("chunk log: %v", err) })
	l.w.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	var ledger world.ChunkLedger = l
	ledger.RecordSave(1, -2, 3, 4096)
	ledger.RecordCorruption(5, 6, "bad magic")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, l.w.Path("2024-03-01-00"))
	if len(lines) != 2 {
		t.Fatalf("lines=%v", lines)
	}
	var save, bad ChunkEvent
	if err := json.Unmarshal([]byte(lines[0]), &save); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &bad); err != nil {
		t.Fatal(err)
	}
	if save.Kind != "save" || save.X != 1 || save.Y != -2 || save.Phase != 3 || save.Bytes != 4096 {
		t.Fatalf("save event: %+v", save)
	}
	if bad.Kind != "corruption" || bad.Reason != "bad magic" {
		t.Fatalf("corruption event: %+v", bad)
	}
}
