package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEveryJob(t *testing.T) {
	p := NewPool(3, 8)
	var n int64
	for i := 0; i < 50; i++ {
		if err := p.Submit(context.Background(), func() { atomic.AddInt64(&n, 1) }); err != nil {
			t.Fatal(err)
		}
	}
	p.Stop()
	if got := atomic.LoadInt64(&n); got != 50 {
		t.Fatalf("ran %d jobs, want 50", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1, 1)
	p.Stop()
	p.Stop()
	if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit(context.Background(), func() { close(started); <-release })
	<-started
	_ = p.Submit(context.Background(), func() {}) // fills the queue

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	close(release)
	p.Stop()
}
