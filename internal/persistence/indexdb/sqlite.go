package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
)

// SQLiteLedger is a secondary index of chunk writes and corruption events.
// Records are queued and written by a single goroutine; when the queue is
// full they are dropped and counted.
type SQLiteLedger struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSave       atomic.Uint64
	dropCorruption atomic.Uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqCorruption
	reqFlush
)

type req struct {
	kind reqKind

	save       saveRow
	corruption corruptionRow
	done       chan struct{}
}

type saveRow struct {
	X, Y    int
	Phase   int8
	Bytes   int64
	SavedAt string
}

type corruptionRow struct {
	X, Y   int
	Reason string
	At     string
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	DropSaveTotal       uint64 `json:"drop_save_total"`
	DropCorruptionTotal uint64 `json:"drop_corruption_total"`
}

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteLedger{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			phase INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_saves_pos ON chunk_saves(cx, cy, id);`,
		`CREATE TABLE IF NOT EXISTS corruptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			reason TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteLedger) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *SQLiteLedger) RecordSave(x, y int, phase int8, bytes int64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSave, save: saveRow{X: x, Y: y, Phase: phase, Bytes: bytes, SavedAt: now()}}:
	default:
		s.dropSave.Add(1)
	}
}

func (s *SQLiteLedger) RecordCorruption(x, y int, reason string) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCorruption, corruption: corruptionRow{X: x, Y: y, Reason: reason, At: now()}}:
	default:
		s.dropCorruption.Add(1)
	}
}

// Flush blocks until every record queued before the call is committed.
func (s *SQLiteLedger) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}

func (s *SQLiteLedger) Stats() Stats {
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropSaveTotal:       s.dropSave.Load(),
		DropCorruptionTotal: s.dropCorruption.Load(),
	}
}

// LastPhase returns the phase of the most recent recorded write of (cx, cy).
func (s *SQLiteLedger) LastPhase(cx, cy int) (int8, bool, error) {
	var p int64
	err := s.db.QueryRow(`SELECT phase FROM chunk_saves WHERE cx=? AND cy=? ORDER BY id DESC LIMIT 1`, cx, cy).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int8(p), true, nil
}

func (s *SQLiteLedger) CorruptionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM corruptions`).Scan(&n)
	return n, err
}

// UpsertCatalogs stores the material table and the applied tuning with their
// digests, so a ledger can be matched to the configuration that produced it.
func (s *SQLiteLedger) UpsertCatalogs(reg *materials.Registry, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	mats := make([]materials.Material, 0, reg.Len())
	for i := 0; i < reg.Len(); i++ {
		mats = append(mats, *reg.Get(uint16(i)))
	}
	mb, err := json.Marshal(mats)
	if err != nil {
		return err
	}
	tb, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(tb)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	ts := now()
	if _, err := stmt.Exec("materials", reg.Digest(), string(mb), ts); err != nil {
		return err
	}
	if _, err := stmt.Exec("tuning", hex.EncodeToString(sum[:]), string(tb), ts); err != nil {
		return err
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest of a catalog row.
func (s *SQLiteLedger) CatalogDigest(name string) (string, error) {
	var d string
	err := s.db.QueryRow(`SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	return d, err
}

func (s *SQLiteLedger) loop() {
	ctx := context.Background()

	insertSave, _ := s.db.Prepare(`INSERT INTO chunk_saves(cx,cy,phase,bytes,saved_at) VALUES(?,?,?,?,?)`)
	insertCorruption, _ := s.db.Prepare(`INSERT INTO corruptions(cx,cy,reason,at) VALUES(?,?,?,?)`)
	defer func() {
		if insertSave != nil {
			_ = insertSave.Close()
		}
		if insertCorruption != nil {
			_ = insertCorruption.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSave:
			sv := r.save
			if insertSave != nil {
				if _, err := tx.Stmt(insertSave).Exec(sv.X, sv.Y, int64(sv.Phase), sv.Bytes, sv.SavedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqCorruption:
			c := r.corruption
			if insertCorruption != nil {
				if _, err := tx.Stmt(insertCorruption).Exec(c.X, c.Y, c.Reason, c.At); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
