package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pixelcraft.ai/internal/persistence/indexdb"
	persistlog "pixelcraft.ai/internal/persistence/log"
	"pixelcraft.ai/internal/sim/encoding"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/world"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "chunk":
			chunkCmd(os.Args[2:])
			return
		case "ledger":
			ledgerCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func fatal(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}

func worldDirFlags(fs *flag.FlagSet) func() string {
	dataDir := fs.String("data", "./data", "runtime data directory")
	name := fs.String("world", "", "world name")
	return func() string {
		if strings.TrimSpace(*name) == "" {
			fatal(2, "missing -world")
		}
		return filepath.Join(*dataDir, "worlds", *name)
	}
}

func registryFlags(fs *flag.FlagSet) func() *materials.Registry {
	catalog := fs.String("materials", "", "materials.json used by the world (default: built-in palette)")
	schema := fs.String("schema", "", "materials JSON schema (optional)")
	return func() *materials.Registry {
		reg, err := materials.LoadRegistry(*catalog, *schema)
		if err != nil {
			fatal(1, "materials: %v", err)
		}
		return reg
	}
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fatal(1, "read: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := world.ReadMeta(filepath.Join(*dataDir, "worlds", e.Name()))
		if err != nil {
			fmt.Printf("%s\terror=%v\n", e.Name(), err)
			continue
		}
		n, size := chunkUsage(filepath.Join(*dataDir, "worlds", e.Name(), "chunks"))
		fmt.Printf("%s\tname=%s\tversion=%s\topened=%s\tchunks=%d\tsize=%s\n",
			e.Name(), m.Name, m.LastOpenedVersion, humanize.Time(time.Unix(m.LastOpenedTime, 0)), n, humanize.Bytes(size))
	}
}

// chunkUsage counts chunk files and their total size.
func chunkUsage(dir string) (int, uint64) {
	files, _ := filepath.Glob(filepath.Join(dir, "*.chunk"))
	var total uint64
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil {
			total += uint64(fi.Size())
		}
	}
	return len(files), total
}

type verifyReport struct {
	Chunks  int                 `json:"chunks"`
	Phases  map[int8]int        `json:"phases"`
	Corrupt map[string][]string `json:"corrupt,omitempty"`
}

// verifyWorld decodes every chunk file in worldDir.
func verifyWorld(worldDir string, reg *materials.Registry) (verifyReport, error) {
	rep := verifyReport{Phases: map[int8]int{}, Corrupt: map[string][]string{}}
	cs := &store.ChunkStore{Dir: filepath.Join(worldDir, "chunks")}
	keys, err := cs.Keys()
	if err != nil {
		return rep, err
	}
	for _, k := range keys {
		rep.Chunks++
		ch, err := cs.Load(k, reg)
		var ce *store.CorruptionError
		switch {
		case errors.As(err, &ce):
			rep.Corrupt[k.String()] = ce.Reasons
		case err != nil:
			rep.Corrupt[k.String()] = []string{err.Error()}
		default:
			rep.Phases[ch.Phase]++
		}
	}
	return rep, nil
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dir := worldDirFlags(fs)
	reg := registryFlags(fs)
	_ = fs.Parse(args)

	rep, err := verifyWorld(dir(), reg())
	if err != nil {
		fatal(1, "verify: %v", err)
	}
	writeJSON(os.Stdout, rep)
	if len(rep.Corrupt) > 0 {
		os.Exit(3)
	}
}

type chunkInfo struct {
	Key       string         `json:"key"`
	Phase     int8           `json:"phase"`
	Materials map[string]int `json:"materials"`
	RLE       string         `json:"materials_rle"`
	Problems  []string       `json:"problems,omitempty"`
}

func inspectChunk(worldDir string, x, y int, reg *materials.Registry) (chunkInfo, error) {
	cs := &store.ChunkStore{Dir: filepath.Join(worldDir, "chunks")}
	k := store.ChunkKey{X: x, Y: y}
	ch, err := cs.Load(k, reg)
	info := chunkInfo{Key: k.String(), Materials: map[string]int{}}
	var ce *store.CorruptionError
	if errors.As(err, &ce) {
		info.Problems = ce.Reasons
	} else if err != nil {
		return info, err
	}
	info.Phase = ch.Phase
	for _, t := range ch.Tiles {
		info.Materials[reg.Get(t.Mat).Name]++
	}
	info.RLE = encoding.EncodeMaterials(ch.Tiles)
	return info, nil
}

func chunkCmd(args []string) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	dir := worldDirFlags(fs)
	reg := registryFlags(fs)
	x := fs.Int("x", 0, "chunk x")
	y := fs.Int("y", 0, "chunk y")
	_ = fs.Parse(args)

	info, err := inspectChunk(dir(), *x, *y, reg())
	if err != nil {
		fatal(1, "chunk: %v", err)
	}
	writeJSON(os.Stdout, info)
}

func ledgerCmd(args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	dir := worldDirFlags(fs)
	x := fs.Int("x", 0, "chunk x")
	y := fs.Int("y", 0, "chunk y")
	_ = fs.Parse(args)

	db, err := indexdb.OpenSQLite(filepath.Join(dir(), "index", "world.sqlite"))
	if err != nil {
		fatal(1, "open ledger: %v", err)
	}
	defer db.Close()

	phase, ok, err := db.LastPhase(*x, *y)
	if err != nil {
		fatal(1, "last phase: %v", err)
	}
	corrupt, err := db.CorruptionCount()
	if err != nil {
		fatal(1, "corruptions: %v", err)
	}
	digest, _ := db.CatalogDigest("materials")
	out := map[string]any{"chunk": store.ChunkKey{X: *x, Y: *y}.String(), "saved": ok, "corruptions": corrupt, "materials_digest": digest}
	if ok {
		out["last_phase"] = phase
	}
	writeJSON(os.Stdout, out)
}

type tickSummary struct {
	Entries   int     `json:"entries"`
	FirstTick uint64  `json:"first_tick"`
	LastTick  uint64  `json:"last_tick"`
	MaxStepMS float64 `json:"max_step_ms"`
	AvgStepMS float64 `json:"avg_step_ms"`
	MaxBodies int     `json:"max_bodies"`
	MaxLive   int     `json:"max_live_chunks"`
}

func summarizeTicks(worldDir string) (tickSummary, error) {
	var sum tickSummary
	files, err := persistlog.Files(filepath.Join(worldDir, "ticks"), "ticks")
	if err != nil {
		return sum, err
	}
	var total float64
	for _, f := range files {
		err := persistlog.ReadJSONL(f, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if sum.Entries == 0 {
				sum.FirstTick = e.Tick
			}
			sum.Entries++
			sum.LastTick = e.Tick
			total += e.Stats.StepMillis
			sum.MaxStepMS = max(sum.MaxStepMS, e.Stats.StepMillis)
			sum.MaxBodies = max(sum.MaxBodies, e.Stats.Bodies)
			sum.MaxLive = max(sum.MaxLive, e.Stats.LiveChunks)
			return nil
		})
		if err != nil {
			return sum, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	if sum.Entries > 0 {
		sum.AvgStepMS = total / float64(sum.Entries)
	}
	return sum, nil
}

func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dir := worldDirFlags(fs)
	_ = fs.Parse(args)

	sum, err := summarizeTicks(dir())
	if err != nil {
		fatal(1, "ticks: %v", err)
	}
	writeJSON(os.Stdout, sum)
}

// restoreBackup replaces the chunk files and world.json of worldDir with
// the contents of a backup directory. The server must be stopped.
func restoreBackup(worldDir, backupDir string) (int, error) {
	src, err := filepath.Glob(filepath.Join(backupDir, "chunks", "*.chunk"))
	if err != nil {
		return 0, err
	}
	if len(src) == 0 {
		return 0, fmt.Errorf("%s holds no chunks", backupDir)
	}
	sort.Strings(src)

	chunks := filepath.Join(worldDir, "chunks")
	old, err := filepath.Glob(filepath.Join(chunks, "*.chunk"))
	if err != nil {
		return 0, err
	}
	for _, p := range old {
		if err := os.Remove(p); err != nil {
			return 0, err
		}
	}
	if err := os.MkdirAll(chunks, 0o755); err != nil {
		return 0, err
	}
	for _, p := range src {
		if err := copyFile(p, filepath.Join(chunks, filepath.Base(p))); err != nil {
			return 0, err
		}
	}
	meta := filepath.Join(backupDir, "world.json")
	if _, err := os.Stat(meta); err == nil {
		if err := copyFile(meta, filepath.Join(worldDir, "world.json")); err != nil {
			return 0, err
		}
	}
	return len(src), nil
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dir := worldDirFlags(fs)
	backup := fs.String("backup", "", "backup directory name under archives/, e.g. backup_000000054000 (default: newest)")
	_ = fs.Parse(args)

	worldDir := dir()
	name := strings.TrimSpace(*backup)
	if name == "" {
		all, _ := filepath.Glob(filepath.Join(worldDir, "archives", "backup_*"))
		if len(all) == 0 {
			fatal(1, "no backups under %s", worldDir)
		}
		sort.Strings(all)
		name = filepath.Base(all[len(all)-1])
	}
	n, err := restoreBackup(worldDir, filepath.Join(worldDir, "archives", name))
	if err != nil {
		fatal(1, "restore: %v", err)
	}
	fmt.Printf("restored %d chunks from %s\n", n, name)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
