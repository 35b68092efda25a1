package msh

import (
	"context"
	"sync"
	"time"
)

// ReplayGuard remembers inbound message ids for a window so that a
// message delivered twice is processed once.
type ReplayGuard struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewReplayGuard creates a guard remembering ids for window
func NewReplayGuard(window time.Duration) *ReplayGuard {
	return &ReplayGuard{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Seen records id and reports whether it was already recorded within the window
func (g *ReplayGuard) Seen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if at, ok := g.seen[id]; ok && now.Sub(at) < g.window {
		return true
	}
	g.seen[id] = now
	return false
}

// Len returns the number of remembered ids
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Prune forgets ids older than the window
func (g *ReplayGuard) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, at := range g.seen {
		if now.Sub(at) >= g.window {
			delete(g.seen, id)
		}
	}
}

// Run prunes the guard every interval until ctx is done
func (g *ReplayGuard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Prune()
		}
	}
}
