// Package pool bounds how many warmup sessions may hold a browser at
// once. It wraps a weighted semaphore and tracks live browser instances
// so they can be force-reclaimed after a fatal error or timeout.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/anvita/facebook-warmup/logger"
)

// Closer is anything a pool can force-close, typically a browser.
type Closer interface {
	Close() error
}

// Pool limits concurrent browser sessions.
type Pool struct {
	sem    *semaphore.Weighted
	logger *logger.Logger

	mu     sync.Mutex
	active map[Closer]struct{}
}

// New creates a pool allowing at most max concurrent holders.
func New(max int, log *logger.Logger) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(max)),
		logger: log.WithModule("pool"),
		active: make(map[Closer]struct{}),
	}
}

// Acquire blocks until a slot is free or ctx ends.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("browser slot acquire: %w", err)
	}
	return nil
}

// Release frees one slot.
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Track registers a browser for force-cleanup. Untrack must be called when
// the browser is closed normally.
func (p *Pool) Track(c Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[c] = struct{}{}
}

// Untrack removes a browser from the force-cleanup set.
func (p *Pool) Untrack(c Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, c)
}

// ForceCleanupAll closes every tracked browser. Called after a fatal error
// or hard timeout, when orderly shutdown is no longer possible.
func (p *Pool) ForceCleanupAll() {
	p.mu.Lock()
	tracked := make([]Closer, 0, len(p.active))
	for c := range p.active {
		tracked = append(tracked, c)
	}
	p.active = make(map[Closer]struct{})
	p.mu.Unlock()

	if len(tracked) == 0 {
		return
	}

	p.logger.Warnf("Force-closing %d tracked browser(s)", len(tracked))
	for _, c := range tracked {
		if err := c.Close(); err != nil {
			p.logger.WithError(err).Warn("Force close failed")
		}
	}
}
