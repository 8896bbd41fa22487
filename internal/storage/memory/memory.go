// Package memory is an in-process store. It backs tests and serves as the
// fallback medium when the durable store is unavailable.
package memory

import (
	"context"
	"sync"

	"github.com/gcsplan/planner/pkg/core"
)

// Backend stores the waypoint collection in memory
type Backend struct {
	mu        sync.RWMutex
	waypoints []core.Waypoint
	saves     int
}

// New creates a new memory backend
func New(initial ...core.Waypoint) *Backend {
	return &Backend{waypoints: clone(initial)}
}

// Name identifies the backend in logs.
func (b *Backend) Name() string { return "memory" }

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Load returns a copy of the stored collection.
func (b *Backend) Load(_ context.Context) ([]core.Waypoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.waypoints), nil
}

// Save replaces the stored collection.
func (b *Backend) Save(_ context.Context, ws []core.Waypoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waypoints = clone(ws)
	b.saves++
	return nil
}

// Saves returns how many times Save was called.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

func clone(ws []core.Waypoint) []core.Waypoint {
	out := make([]core.Waypoint, len(ws))
	for i, w := range ws {
		out[i] = w.Clone()
	}
	return out
}
