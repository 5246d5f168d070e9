package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixelcraft.ai/internal/persistence/indexdb"
	persistlog "pixelcraft.ai/internal/persistence/log"
	"pixelcraft.ai/internal/persistence/r2s3"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

// sinks holds the optional persistence side channels of one world. Every
// field may be nil.
type sinks struct {
	sqlite   *indexdb.SQLiteLedger
	remote   *indexdb.RemoteLedger
	mirror   *r2s3.ChunkMirror
	chunkLog *persistlog.ChunkLogger
	tickLog  *persistlog.TickLogger
}

// openSinks wires ledgers from tuning and the PC_* environment:
//
//	PC_LEDGER_BACKEND   sqlite (default) | remote | none
//	PC_LEDGER_URL       remote ingest endpoint
//	PC_LEDGER_TOKEN     remote ingest token
//	PC_S3_ENDPOINT, PC_S3_BUCKET, PC_S3_ACCESS_KEY_ID, PC_S3_SECRET_ACCESS_KEY, PC_S3_PREFIX
func openSinks(worldDir, worldName string, tune tuning.Tuning, reg *materials.Registry, getenv func(string) string, logger *log.Logger) (*sinks, error) {
	s := &sinks{}
	p := tune.Persistence

	if p.ChunkLedger {
		switch backend := strings.ToLower(strings.TrimSpace(getenv("PC_LEDGER_BACKEND"))); backend {
		case "", "sqlite":
			db, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
			if err != nil {
				return nil, fmt.Errorf("open sqlite ledger: %w", err)
			}
			s.sqlite = db
			if err := db.UpsertCatalogs(reg, tune); err != nil {
				logger.Printf("ledger: upsert catalogs: %v", err)
			}
		case "remote":
			r, err := indexdb.OpenRemote(indexdb.RemoteConfig{
				Endpoint:      getenv("PC_LEDGER_URL"),
				Token:         getenv("PC_LEDGER_TOKEN"),
				WorldID:       worldName,
				FlushInterval: time.Second,
				Logger:        logger,
			})
			if err != nil {
				return nil, fmt.Errorf("open remote ledger: %w", err)
			}
			s.remote = r
		case "none", "off":
		default:
			return nil, fmt.Errorf("unknown PC_LEDGER_BACKEND %q", backend)
		}
	}

	if p.ChunkEventLog {
		s.chunkLog = persistlog.NewChunkLogger(worldDir, func(err error) { logger.Printf("chunk event log: %v", err) })
	}
	if p.TickLog {
		s.tickLog = persistlog.NewTickLogger(worldDir, p.TickLogEvery)
	}

	if endpoint := strings.TrimSpace(getenv("PC_S3_ENDPOINT")); endpoint != "" {
		client, err := r2s3.New(endpoint, getenv("PC_S3_BUCKET"), getenv("PC_S3_ACCESS_KEY_ID"), getenv("PC_S3_SECRET_ACCESS_KEY"))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("s3 mirror: %w", err)
		}
		chunks := &store.ChunkStore{Dir: filepath.Join(worldDir, "chunks")}
		pathOf := func(x, y int) string { return chunks.Path(store.ChunkKey{X: x, Y: y}) }
		prefix := strings.Trim(getenv("PC_S3_PREFIX")+"/"+worldName, "/")
		s.mirror = r2s3.NewChunkMirror(client, worldDir, prefix, pathOf, 4, 4096, logger)
	}
	return s, nil
}

// ledger combines every chunk ledger. Nil pointers are filtered here so the
// world never sees a typed-nil interface.
func (s *sinks) ledger() world.ChunkLedger {
	var ls []world.ChunkLedger
	if s.sqlite != nil {
		ls = append(ls, s.sqlite)
	}
	if s.remote != nil {
		ls = append(ls, s.remote)
	}
	if s.mirror != nil {
		ls = append(ls, s.mirror)
	}
	if s.chunkLog != nil {
		ls = append(ls, s.chunkLog)
	}
	return indexdb.Tee(ls...)
}

func (s *sinks) tickLogger() world.TickLogger {
	if s.tickLog == nil {
		return nil
	}
	return s.tickLog
}

// mirrorFiles schedules extra files, such as backups, for upload.
func (s *sinks) mirrorFiles(paths []string) {
	if s.mirror == nil {
		return
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			s.mirror.Enqueue(p)
		}
	}
}

// Close flushes in dependency order: the mirror last so files written by
// the final save still upload.
func (s *sinks) Close() {
	if s.tickLog != nil {
		_ = s.tickLog.Close()
	}
	if s.chunkLog != nil {
		_ = s.chunkLog.Close()
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
	if s.remote != nil {
		_ = s.remote.Close()
	}
	if s.mirror != nil {
		s.mirror.Close()
	}
}
