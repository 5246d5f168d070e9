package workers

import "sync"

// Loader is a fixed set of goroutines draining a job queue. Results are
// collected with Poll, which never blocks.
type Loader[J any, R any] struct {
	fn   func(J) R
	jobs chan J
	out  chan R
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending int
	closed  bool
}

func NewLoader[J any, R any](size, queue int, fn func(J) R) *Loader[J, R] {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	l := &Loader[J, R]{
		fn:   fn,
		jobs: make(chan J, queue),
		out:  make(chan R, queue),
	}
	l.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer l.wg.Done()
			for j := range l.jobs {
				l.out <- l.fn(j)
			}
		}()
	}
	return l
}

// Submit enqueues j. It blocks only when the queue is full.
func (l *Loader[J, R]) Submit(j J) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending++
	l.mu.Unlock()
	l.jobs <- j
}

// Poll returns every finished result without waiting for running jobs.
func (l *Loader[J, R]) Poll() []R {
	var rs []R
	for {
		select {
		case r := <-l.out:
			rs = append(rs, r)
		default:
			l.mu.Lock()
			l.pending -= len(rs)
			l.mu.Unlock()
			return rs
		}
	}
}

// Pending counts submitted jobs whose results have not been polled.
func (l *Loader[J, R]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Drain blocks until every submitted job finished and returns their results.
func (l *Loader[J, R]) Drain() []R {
	var rs []R
	for l.Pending() > 0 {
		r := <-l.out
		l.mu.Lock()
		l.pending--
		l.mu.Unlock()
		rs = append(rs, r)
	}
	return rs
}

// Close stops the workers after the queued jobs ran.
func (l *Loader[J, R]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.jobs)
	l.wg.Wait()
}
