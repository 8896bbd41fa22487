// Package monitor periodically re-converges the repository, the durable
// store and the scene. Drift detection is count-based: a store holding a
// different number of waypoints than memory wins, and a scene showing a
// different number of waypoint entities is restored from memory.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/gcsplan/planner/internal/monitor"

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 10 * time.Second

// Repository is the part of repository.Repository the monitor drives.
type Repository interface {
	Flush(ctx context.Context) error
	Revision() uint64
	Len() int
	List() []core.Waypoint
	Replace(revision uint64, ws []core.Waypoint) bool
	AttachEntity(id, entityID string) error
}

// Scene is the part of scene.Bridge the monitor drives.
type Scene interface {
	RenderedCount() int
	RestoreAll(ws []core.Waypoint) ([]core.Waypoint, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Repo     Repository
	Store    storage.Backend
	Scene    Scene
	Logger   *slog.Logger
	Interval time.Duration
	Meter    metric.Meter // nil uses the global provider

	// OnRefresh is called after memory was replaced from the store.
	OnRefresh func(ws []core.Waypoint)
	// OnTick is called after every tick with its report.
	OnTick func(TickReport)
}

// TickReport describes what one tick saw and did.
type TickReport struct {
	Time          time.Time
	Duration      time.Duration
	MemoryCount   int
	StoreCount    int
	RenderedCount int
	Replaced      bool // memory replaced from the store
	Superseded    bool // store drift seen but a concurrent mutation won
	Restored      bool // scene restored from memory
	Err           error
}

// Service runs the reconciliation loop
type Service struct {
	deps Dependencies
	log  *slog.Logger

	ticks  metric.Int64Counter
	drift  metric.Int64Counter
	errors metric.Int64Counter

	tickMu sync.Mutex // one tick at a time

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
	force     chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) (*Service, error) {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := deps.Meter
	if m == nil {
		m = otel.Meter(instrumentationName)
	}

	s := &Service{
		deps:  deps,
		log:   deps.Logger,
		force: make(chan struct{}, 1),
	}

	var err error
	s.ticks, err = m.Int64Counter("sync.ticks",
		metric.WithDescription("Synchronization ticks run"))
	if err != nil {
		return nil, fmt.Errorf("create ticks counter: %w", err)
	}
	s.drift, err = m.Int64Counter("sync.drift",
		metric.WithDescription("Drift corrections by target"))
	if err != nil {
		return nil, fmt.Errorf("create drift counter: %w", err)
	}
	s.errors, err = m.Int64Counter("sync.errors",
		metric.WithDescription("Ticks that ended with an error"))
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	return s, nil
}

// IsRunning returns whether the loop is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Tick runs one reconciliation pass.
func (s *Service) Tick(ctx context.Context) (TickReport, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	rep := TickReport{Time: start}
	rep.Err = s.tick(ctx, &rep)
	rep.Duration = time.Since(start)

	s.ticks.Add(ctx, 1)
	if rep.Err != nil {
		s.errors.Add(ctx, 1)
	}
	if s.deps.OnTick != nil {
		s.deps.OnTick(rep)
	}
	return rep, rep.Err
}

func (s *Service) tick(ctx context.Context, rep *TickReport) error {
	// let queued saves land so the store reflects our own latest mutations
	if err := s.deps.Repo.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	revision := s.deps.Repo.Revision()
	rep.MemoryCount = s.deps.Repo.Len()

	stored, err := s.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	rep.StoreCount = len(stored)

	if rep.StoreCount != rep.MemoryCount {
		if s.deps.Repo.Replace(revision, stored) {
			rep.Replaced = true
			s.drift.Add(ctx, 1, metric.WithAttributes(attribute.String("target", "memory")))
			s.log.Info("Store drift corrected, memory replaced from store",
				"memory", rep.MemoryCount, "store", rep.StoreCount)
			if s.deps.OnRefresh != nil {
				s.deps.OnRefresh(s.deps.Repo.List())
			}
		} else {
			rep.Superseded = true
			s.log.Debug("Store drift ignored, repository changed during tick")
		}
	}

	current := s.deps.Repo.List()
	rep.RenderedCount = s.deps.Scene.RenderedCount()
	if rep.RenderedCount == len(current) {
		return nil
	}

	rep.Restored = true
	s.drift.Add(ctx, 1, metric.WithAttributes(attribute.String("target", "scene")))
	s.log.Info("Scene drift corrected, restoring waypoints",
		"rendered", rep.RenderedCount, "memory", len(current))

	restored, restoreErr := s.deps.Scene.RestoreAll(current)
	var errs []error
	if restoreErr != nil {
		errs = append(errs, fmt.Errorf("restore scene: %w", restoreErr))
	}
	for i, w := range restored {
		if w.SceneEntityID == "" || w.SceneEntityID == current[i].SceneEntityID {
			continue
		}
		// a concurrent delete is fine, the next tick sees it
		if err := s.deps.Repo.AttachEntity(w.ID, w.SceneEntityID); err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForceSync requests an immediate tick from the running loop. It reports
// false if the loop isn't running.
func (s *Service) ForceSync() bool {
	if !s.IsRunning() {
		return false
	}
	select {
	case s.force <- struct{}{}:
	default:
	}
	return true
}

// Start starts the reconciliation goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.log.Debug("Starting sync monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			case <-s.force:
			}
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Sync tick failed", "error", err)
			}
		}
	}()

	return nil
}

// Stop stops the loop and waits for an in-flight tick to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}
