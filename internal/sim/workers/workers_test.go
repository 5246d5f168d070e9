package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunVisitsEveryIndexOnce(t *testing.T) {
	p := NewPool(4)
	seen := make([]atomic.Int32, 100)
	if err := p.Run(context.Background(), len(seen), func(_ context.Context, i int) error {
		seen[i].Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range seen {
		if n := seen[i].Load(); n != 1 {
			t.Fatalf("index %d ran %d times", i, n)
		}
	}
}

func TestPool_RunReturnsFirstError(t *testing.T) {
	p := NewPool(2)
	boom := errors.New("boom")
	err := p.Run(context.Background(), 10, func(_ context.Context, i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err: got %v want boom", err)
	}
}

func TestPool_RowsCoverRange(t *testing.T) {
	p := NewPool(3)
	var covered [10]atomic.Int32
	if err := p.Rows(context.Background(), len(covered), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			covered[y].Add(1)
		}
	}); err != nil {
		t.Fatal(err)
	}
	for y := range covered {
		if covered[y].Load() != 1 {
			t.Fatalf("row %d covered %d times", y, covered[y].Load())
		}
	}
}

func TestLoader_PollNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	l := NewLoader(1, 8, func(j int) int {
		<-release
		return j * 2
	})
	defer l.Close()

	l.Submit(21)
	if rs := l.Poll(); len(rs) != 0 {
		t.Fatalf("expected no results before release, got %v", rs)
	}
	if l.Pending() != 1 {
		t.Fatalf("pending: got %d want 1", l.Pending())
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rs := l.Poll(); len(rs) == 1 {
			if rs[0] != 42 {
				t.Fatalf("result: got %d want 42", rs[0])
			}
			if l.Pending() != 0 {
				t.Fatalf("pending after poll: %d", l.Pending())
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("result never arrived")
}

func TestLoader_Drain(t *testing.T) {
	l := NewLoader(2, 8, func(j int) int { return j + 1 })
	for i := 0; i < 5; i++ {
		l.Submit(i)
	}
	rs := l.Drain()
	l.Close()
	if len(rs) != 5 {
		t.Fatalf("drained %d results want 5", len(rs))
	}
}
