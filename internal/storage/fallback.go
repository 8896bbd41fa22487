package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gcsplan/planner/pkg/core"
)

// Fallback routes calls to a primary backend until it fails, then switches
// to the fallback for the rest of the session. The switch is one-way. The
// fallback is seeded with the last collection the primary loaded or saved,
// so switching never loses what the primary held.
type Fallback struct {
	primary  Backend
	fallback Backend
	log      *slog.Logger

	mu       sync.Mutex
	degraded bool
	last     []core.Waypoint // nil until the primary succeeds once
}

// NewFallback wraps primary with fallback. A nil logger uses slog.Default.
func NewFallback(primary, fallback Backend, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, log: log}
}

// Name reports the currently active backend.
func (f *Fallback) Name() string {
	return "fallback(" + NameOf(f.active()) + ")"
}

// Degraded reports whether the fallback is in use.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *Fallback) active() Backend {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.fallback
	}
	return f.primary
}

// degrade switches to the fallback. It reports false if already degraded.
func (f *Fallback) degrade(ctx context.Context, op string, cause error) bool {
	f.mu.Lock()
	if f.degraded {
		f.mu.Unlock()
		return false
	}
	f.degraded = true
	last := f.last
	f.last = nil
	f.mu.Unlock()

	f.log.Warn("Primary store failed, switching to fallback",
		"op", op,
		"primary", NameOf(f.primary),
		"fallback", NameOf(f.fallback),
		"seeded", len(last),
		"error", cause)
	if last != nil {
		if err := f.fallback.Save(ctx, last); err != nil {
			f.log.Error("Failed to seed fallback store", "error", err)
		}
	}
	return true
}

// remember keeps a copy of what the primary last held.
func (f *Fallback) remember(ws []core.Waypoint) {
	snap := make([]core.Waypoint, len(ws))
	for i, w := range ws {
		snap[i] = w.Clone()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		f.last = snap
	}
}

// Init initializes the primary, and the fallback either way so a later
// switch doesn't need to.
func (f *Fallback) Init() error {
	if err := f.fallback.Init(); err != nil {
		return fmt.Errorf("failed to init fallback store: %w", err)
	}
	if err := f.primary.Init(); err != nil {
		f.degrade(context.Background(), "init", err)
	}
	return nil
}

// Close closes both backends.
func (f *Fallback) Close() error {
	perr := f.primary.Close()
	ferr := f.fallback.Close()
	if perr != nil {
		return perr
	}
	return ferr
}

// Load reads from the active backend.
func (f *Fallback) Load(ctx context.Context) ([]core.Waypoint, error) {
	ws, err := f.active().Load(ctx)
	if err == nil {
		f.remember(ws)
		return ws, nil
	}
	if !f.degrade(ctx, "load", err) {
		return nil, err
	}
	return f.fallback.Load(ctx)
}

// Save writes to the active backend.
func (f *Fallback) Save(ctx context.Context, ws []core.Waypoint) error {
	err := f.active().Save(ctx, ws)
	if err == nil {
		f.remember(ws)
		return nil
	}
	if !f.degrade(ctx, "save", err) {
		return err
	}
	return f.fallback.Save(ctx, ws)
}
