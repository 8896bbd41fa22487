// Package storage defines the durable waypoint store and the fallback
// wrapper that keeps the engine running when the primary medium fails.
package storage

import (
	"context"

	"github.com/gcsplan/planner/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Load returns the stored collection in insertion order. A missing or
	// malformed store yields an empty collection, not an error.
	Load(ctx context.Context) ([]core.Waypoint, error)

	// Save replaces the stored collection wholesale.
	Save(ctx context.Context, ws []core.Waypoint) error
}

// Named is an optional interface for backends that report a display name in logs.
type Named interface {
	Name() string
}

// NameOf returns the backend's name, or "unknown".
func NameOf(b Backend) string {
	if n, ok := b.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
