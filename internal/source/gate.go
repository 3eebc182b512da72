package source

import (
	"context"
	"errors"
	"sync"
)

// ErrGateClosed is returned by AwaitIfPaused once the gate has been closed.
var ErrGateClosed = errors.New("flow gate closed")

// Gate holds delivery while paused. Every waiter is released together on Resume.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	closed  bool
	resumed chan struct{}
}

func NewGate() *Gate {
	return &Gate{}
}

// Pause makes subsequent AwaitIfPaused calls block. Pausing a paused gate is a no-op.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.closed {
		return
	}
	g.paused = true
	g.resumed = make(chan struct{})
}

// Resume releases all blocked callers. Resuming a running gate is a no-op.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

// Close releases all blocked callers with ErrGateClosed and makes the gate
// reject every later call.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.releaseLocked()
}

// Paused reports whether the gate is currently paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// AwaitIfPaused returns immediately while running and blocks while paused
// until Resume, Close or ctx cancellation.
func (g *Gate) AwaitIfPaused(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	resumed := g.resumed
	g.mu.Unlock()

	select {
	case <-resumed:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGateClosed
	}
	return nil
}

func (g *Gate) releaseLocked() {
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumed)
	g.resumed = nil
}
