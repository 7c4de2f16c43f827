package view

import (
	"context"
	"sync"
)

// progress tracks the seq of the last change the view finished handling.
type progress struct {
	mu      sync.Mutex
	seq     int64
	changed chan struct{}
}

func newProgress() *progress {
	return &progress{changed: make(chan struct{})}
}

func (p *progress) advance(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq = seq
	close(p.changed)
	p.changed = make(chan struct{})
}

// wait blocks until seq >= target, the context ends or done is closed.
func (p *progress) wait(ctx context.Context, target int64, done <-chan struct{}) error {
	for {
		p.mu.Lock()
		if p.seq >= target {
			p.mu.Unlock()
			return nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return ErrClosed
		case <-ch:
		}
	}
}
