package indexdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestRemoteLedger_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	var kinds []string
	ids := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Events []remoteEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		reqCount++
		thisReq := reqCount
		for _, ev := range body.Events {
			ids[ev.ID]++
		}
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}

		mu.Lock()
		for _, ev := range body.Events {
			kinds = append(kinds, ev.Kind)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l, err := OpenRemote(RemoteConfig{
		Endpoint:      srv.URL,
		WorldID:       "world_1",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}
	defer func() { _ = l.Close() }()

	l.RecordSave(4, 5, 1, 1234)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(kinds) >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	got := append([]string(nil), kinds...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "chunk_save" {
		t.Fatalf("delivered kinds %v, want [chunk_save]", got)
	}
	mu.Lock()
	if len(ids) != 1 || ids[""] != 0 {
		t.Fatalf("retried event ids %v, want one stable id", ids)
	}
	mu.Unlock()
	st := l.Stats()
	if st.FlushFailTotal == 0 {
		t.Fatalf("expected flush failures to be recorded, got 0")
	}
	if st.QueueDroppedTotal != 0 || st.SentTotal != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestOpenRemote_RequiresEndpointAndWorld(t *testing.T) {
	if _, err := OpenRemote(RemoteConfig{WorldID: "w"}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := OpenRemote(RemoteConfig{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for empty world id")
	}
}

type countLedger struct{ saves, corrupt int }

func (c *countLedger) RecordSave(x, y int, phase int8, bytes int64) { c.saves++ }
func (c *countLedger) RecordCorruption(x, y int, reason string)     { c.corrupt++ }

func TestTee(t *testing.T) {
	if Tee(nil, nil) != nil {
		t.Fatalf("Tee of nothing should be nil")
	}
	a, b := &countLedger{}, &countLedger{}
	l := Tee(a, nil, b)
	l.RecordSave(0, 0, 0, 1)
	l.RecordCorruption(0, 0, "bad")
	if a.saves != 1 || b.saves != 1 || a.corrupt != 1 || b.corrupt != 1 {
		t.Fatalf("fan-out: %+v %+v", a, b)
	}
	if Tee(a) != a {
		t.Fatalf("single ledger should pass through")
	}
}
