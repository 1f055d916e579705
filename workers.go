package lightbake

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives progress for a stage. Calls are serialized but may
// come from worker goroutines.
type ProgressFunc func(stage string, done, total int)

// stageProgress counts finished items of one stage and forwards them to a
// ProgressFunc.
type stageProgress struct {
	fn    ProgressFunc
	stage string
	total int
	mu    sync.Mutex
	done  int
}

func newStageProgress(fn ProgressFunc, stage string, total int) *stageProgress {
	p := &stageProgress{fn: fn, stage: stage, total: total}
	if fn != nil {
		fn(stage, 0, total)
	}
	return p
}

func (p *stageProgress) add(n int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	p.done += n
	p.fn(p.stage, p.done, p.total)
	p.mu.Unlock()
}

func workerCount(cfg Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// parallelBatches runs fn over [0,n) split into batches of batchSize on a
// bounded pool. Each batch owns the index range it is given, so fn writes
// into pre-sized output slices without locking. Cancellation is checked
// before every batch; the first error cancels the remaining batches.
func parallelBatches(ctx context.Context, workers, batchSize, n int, fn func(ctx context.Context, lo, hi int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += batchSize {
		if gctx.Err() != nil {
			break
		}
		lo, hi := lo, min(lo+batchSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
