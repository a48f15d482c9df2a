package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool runs a fixed number of worker goroutines and waits for them on
// shutdown.
type WorkerPool struct {
	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	logger *slog.Logger
}

// NewWorkerPool creates a pool of workerCount workers. Non-positive counts
// fall back to 1.
func NewWorkerPool(workerCount int, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", workerCount,
			"default_count", 1)
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start launches the workers. Each runs work(ctx, workerID) until it returns.
func (p *WorkerPool) Start(ctx context.Context, work func(ctx context.Context, workerID int)) {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		i := i
		p.Go(func() {
			p.logger.Debug("starting worker", "worker_id", i)
			work(ctx, i)
			p.logger.Debug("worker stopped", "worker_id", i)
		})
	}
}

// Go runs fn on a goroutine tracked by the pool.
func (p *WorkerPool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Wait blocks until every tracked goroutine has returned or ctx is done.
// It reports whether the pool drained.
func (p *WorkerPool) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
