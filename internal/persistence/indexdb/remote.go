package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RemoteConfig points a RemoteLedger at an HTTP ingest endpoint that accepts
// POST {"events":[...]}.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained caps events kept across failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

// RemoteLedger ships chunk events in batches. A batch that fails to send is
// kept and retried with the next flush.
type RemoteLedger struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushFail  atomic.Uint64
	queueDrop  atomic.Uint64
	retainDrop atomic.Uint64
	sentTotal  atomic.Uint64
}

// remoteEvent carries a stable id so the ingest side can drop duplicates
// delivered by a retried batch.
type remoteEvent struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type savePayload struct {
	X       int    `json:"cx"`
	Y       int    `json:"cy"`
	Phase   int8   `json:"phase"`
	Bytes   int64  `json:"bytes"`
	SavedAt string `json:"saved_at"`
}

type corruptionPayload struct {
	X      int    `json:"cx"`
	Y      int    `json:"cy"`
	Reason string `json:"reason"`
	At     string `json:"at"`
}

type RemoteStats struct {
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	RetainDropTotal   uint64 `json:"retain_drop_total"`
	SentTotal         uint64 `json:"sent_total"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteLedger, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ledger ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &RemoteLedger{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteLedger) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteLedger) RecordSave(x, y int, phase int8, bytes int64) {
	d.enqueue(remoteEvent{Kind: "chunk_save", Payload: savePayload{X: x, Y: y, Phase: phase, Bytes: bytes, SavedAt: now()}})
}

func (d *RemoteLedger) RecordCorruption(x, y int, reason string) {
	d.enqueue(remoteEvent{Kind: "chunk_corruption", Payload: corruptionPayload{X: x, Y: y, Reason: reason, At: now()}})
}

func (d *RemoteLedger) Stats() RemoteStats {
	return RemoteStats{
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDrop.Load(),
		RetainDropTotal:   d.retainDrop.Load(),
		SentTotal:         d.sentTotal.Load(),
	}
}

func (d *RemoteLedger) enqueue(ev remoteEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	ev.WorldID = d.cfg.WorldID
	ev.ID = uuid.NewString()
	select {
	case d.ch <- ev:
	default:
		d.queueDrop.Add(1)
		d.printf("ledger queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
	}
}

func (d *RemoteLedger) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("ledger flush failed batch=%d err=%v", len(batch), err)
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDrop.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.sentTotal.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteLedger) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-pc-ledger-token", d.cfg.Token)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (d *RemoteLedger) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
