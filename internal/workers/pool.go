// Package workers provides deterministic parallel evaluation.
// Results are addressed by input index and folded in index order, so
// output never depends on goroutine scheduling.
package workers

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool bounds the number of goroutines used for data-parallel
// evaluation. It holds no per-call state; a single pool can serve
// concurrent callers.
type Pool struct {
	logger  *zap.Logger
	workers int

	// Metrics
	tasksProcessed atomic.Int64
	batchesRun     atomic.Int64
}

// NewPool creates a pool running at most workers goroutines per batch.
// A non-positive workers count defaults to the CPU count.
func NewPool(logger *zap.Logger, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		logger:  logger,
		workers: workers,
	}
}

// Workers returns the configured parallelism.
func (p *Pool) Workers() int {
	return p.workers
}

// TasksProcessed returns the total number of evaluated items.
func (p *Pool) TasksProcessed() int64 {
	return p.tasksProcessed.Load()
}

// BatchesRun returns the total number of Map batches executed.
func (p *Pool) BatchesRun() int64 {
	return p.batchesRun.Load()
}

// Map evaluates fn for every index in [0, n) and returns the results
// indexed by input position. fn must be safe for concurrent use and
// must not depend on evaluation order. Small batches run inline to
// avoid goroutine overhead.
func Map[T any](p *Pool, n int, fn func(i int) T) []T {
	if n <= 0 {
		return nil
	}

	results := make([]T, n)
	p.batchesRun.Add(1)
	p.tasksProcessed.Add(int64(n))

	if n == 1 || p.workers == 1 {
		for i := 0; i < n; i++ {
			results[i] = fn(i)
		}
		return results
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(i)
		}(i)
	}
	wg.Wait()

	return results
}

// Fold combines indexed results in index order. It exists to keep
// reductions partition-order-independent at call sites.
func Fold[T, A any](results []T, initial A, combine func(acc A, i int, item T) A) A {
	acc := initial
	for i, item := range results {
		acc = combine(acc, i, item)
	}
	return acc
}
