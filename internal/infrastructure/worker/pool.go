// Package worker runs background tasks with bounded concurrency and per-task cancellation.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolClosed   = errors.New("worker pool is shut down")
	ErrDuplicateKey = errors.New("task with this key is already queued or running")
)

type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a pool running at most size tasks at once. A zero timeout disables the per-task deadline.
func New(size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:        semaphore.NewWeighted(int64(size)),
		timeout:    timeout,
		cancels:    make(map[string]context.CancelFunc),
		base:       base,
		cancelBase: cancel,
	}
}

// Submit queues task under key and returns immediately. The task's context is
// cancelled by Cancel(key), by Shutdown, or when the pool timeout elapses.
func (p *Pool) Submit(key string, task func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.cancels[key]; ok {
		return ErrDuplicateKey
	}

	ctx, cancel := context.WithCancel(p.base)
	p.cancels[key] = cancel
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.forget(key)
		defer cancel()

		// Acquire fails only when ctx is cancelled; the task still runs so it can finalize its record.
		acquired := p.sem.Acquire(ctx, 1) == nil
		if acquired {
			defer p.sem.Release(1)
		}

		runCtx := ctx
		if p.timeout > 0 {
			var stop context.CancelFunc
			runCtx, stop = context.WithTimeout(ctx, p.timeout)
			defer stop()
		}
		task(runCtx)
	}()

	return nil
}

// Cancel cancels a queued or running task. It reports whether the key was known.
func (p *Pool) Cancel(key string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[key]
	p.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Running reports the number of queued or running tasks.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects new tasks, cancels the in-flight ones and waits for them
// or for ctx, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancelBase()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) forget(key string) {
	p.mu.Lock()
	delete(p.cancels, key)
	p.mu.Unlock()
}
