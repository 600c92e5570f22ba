package location

import (
	"context"
	"sync"
)

// PushSource is a Source fed from outside, e.g. by device updates posted
// over HTTP.
type PushSource struct {
	mu      sync.Mutex
	fixes   chan Fix
	errs    chan error
	waiters []chan Fix
}

func NewPushSource() *PushSource {
	return &PushSource{
		fixes: make(chan Fix, 16),
		errs:  make(chan error, 4),
	}
}

// Push delivers a fix to the subscription and to any pending one-shot request.
func (p *PushSource) Push(fix Fix) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w <- fix
	}

	select {
	case p.fixes <- fix:
	default:
		// Full: drop the oldest so the newest fix is never lost.
		select {
		case <-p.fixes:
		default:
		}
		select {
		case p.fixes <- fix:
		default:
		}
	}
}

func (p *PushSource) PushError(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

func (p *PushSource) Watch(ctx context.Context) (<-chan Fix, <-chan error) {
	return p.fixes, p.errs
}

// Current waits for the next pushed fix until ctx is done.
func (p *PushSource) Current(ctx context.Context) (Fix, error) {
	w := make(chan Fix, 1)

	p.mu.Lock()
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case fix := <-w:
		return fix, nil
	case <-ctx.Done():
		p.removeWaiter(w)
		return Fix{}, ErrTimeout
	}
}

func (p *PushSource) removeWaiter(w chan Fix) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.waiters {
		if x == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}
