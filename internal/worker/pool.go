package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/lolmarket/topup-backend/internal/metrics"
)

var ErrStopped = errors.New("worker pool stopped")

type task func()

type Pool struct {
	wg   sync.WaitGroup
	mu   sync.RWMutex
	done bool
	jobs chan task
}

func NewPool(n, queue int) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan task, queue)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				job()
			}
		}()
	}
	return p
}

// Submit queues f, blocking while the queue is full until ctx is done.
func (p *Pool) Submit(ctx context.Context, f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrStopped
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
