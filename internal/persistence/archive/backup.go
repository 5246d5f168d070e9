package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type BackupMeta struct {
	World     string `json:"world"`
	Tick      uint64 `json:"tick"`
	Chunks    int    `json:"chunks"`
	Bytes     int64  `json:"bytes"`
	CreatedAt string `json:"created_at"`
}

// Due reports whether tick falls on a backup boundary. A non-positive every
// disables backups.
func Due(tick uint64, every int) bool {
	return every > 0 && tick > 0 && tick%uint64(every) == 0
}

// BackupWorld copies world.json and every chunk file of worldDir into
// worldDir/archives/backup_<tick>/. The world must have been saved first.
// It returns the backup directory and the copied files.
func BackupWorld(worldDir, name string, tick uint64) (string, []string, error) {
	dst := filepath.Join(worldDir, "archives", fmt.Sprintf("backup_%012d", tick))
	if err := os.MkdirAll(filepath.Join(dst, "chunks"), 0o755); err != nil {
		return "", nil, err
	}

	chunkFiles, err := filepath.Glob(filepath.Join(worldDir, "chunks", "*.chunk"))
	if err != nil {
		return "", nil, err
	}
	sort.Strings(chunkFiles)

	var (
		files []string
		total int64
	)
	meta := filepath.Join(worldDir, "world.json")
	if _, err := os.Stat(meta); err == nil {
		out := filepath.Join(dst, "world.json")
		n, err := copyFile(meta, out)
		if err != nil {
			return "", nil, err
		}
		files = append(files, out)
		total += n
	}
	for _, src := range chunkFiles {
		out := filepath.Join(dst, "chunks", filepath.Base(src))
		n, err := copyFile(src, out)
		if err != nil {
			return "", nil, fmt.Errorf("backup %s: %w", filepath.Base(src), err)
		}
		files = append(files, out)
		total += n
	}

	b, err := json.MarshalIndent(BackupMeta{
		World:     name,
		Tick:      tick,
		Chunks:    len(chunkFiles),
		Bytes:     total,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return "", nil, err
	}
	metaOut := filepath.Join(dst, "meta.json")
	if err := os.WriteFile(metaOut, b, 0o644); err != nil {
		return "", nil, err
	}
	files = append(files, metaOut)
	return dst, files, nil
}

// Prune removes all but the newest keep backups.
func Prune(worldDir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(worldDir, "archives"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "backup_") {
			dirs = append(dirs, e.Name())
		}
	}
	// Zero-padded ticks sort lexically.
	sort.Strings(dirs)
	if len(dirs) <= keep {
		return nil, nil
	}
	var removed []string
	for _, d := range dirs[:len(dirs)-keep] {
		p := filepath.Join(worldDir, "archives", d)
		if err := os.RemoveAll(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, err
	}
	return n, out.Close()
}
