// Package worker provides bounded fan-out for the pipeline's periodic ticks.
//
// Go Pattern: Goroutines are cheap, but the things they talk to are not.
// Every tick (scheduler, poller, sweeper) processes a batch of independent
// items; each item may call an LLM, a render API or YouTube. We run the items
// concurrently but never more than N at a time.
//
// errgroup.Group with SetLimit does the bookkeeping a hand-written pool would
// need (a semaphore channel plus a WaitGroup): Go blocks once N goroutines are
// in flight and Wait returns when all of them have finished.
package worker

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// Pool carries the concurrency limit shared by all ticks.
type Pool struct {
	workers int
}

// NewPool creates a pool that runs at most workers items at once.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// WorkerCount returns the concurrency limit.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// Each calls fn for every item, at most p.WorkerCount() at a time, and
// returns once all started calls have finished. Items not yet started when
// ctx is cancelled are skipped. fn owns its own error reporting: one item
// failing never stops the others.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T)) {
	if len(items) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(p.WorkerCount())

	for i, item := range items {
		if ctx.Err() != nil {
			log.Printf("⏹️  Tick cancelled, skipping %d remaining items", len(items)-i)
			break
		}
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}

	_ = g.Wait()
}
