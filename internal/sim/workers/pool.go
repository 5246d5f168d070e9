// Package workers provides the fixed-size pools the simulation fans work out
// to. Batches are joined before the caller continues; no worker state
// survives between batches.
package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs batches of at most Size concurrent tasks.
type Pool struct {
	Size int
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{Size: size}
}

// Run calls fn(i) for i in [0,n) and blocks until all calls return. The first
// error cancels ctx for tasks that have not started yet.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if p.Size == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Size)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// Rows splits [0,h) into at most Size contiguous bands and runs fn per band.
func (p *Pool) Rows(ctx context.Context, h int, fn func(y0, y1 int)) error {
	bands := min(p.Size, h)
	if bands <= 0 {
		return nil
	}
	step := (h + bands - 1) / bands
	return p.Run(ctx, bands, func(_ context.Context, i int) error {
		y0 := i * step
		y1 := min(h, y0+step)
		if y0 < y1 {
			fn(y0, y1)
		}
		return nil
	})
}
