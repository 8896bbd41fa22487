// Package engine is the context object built once at startup. It owns every
// component and exposes the operations the UI layer and the command
// dispatcher call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gcsplan/planner/internal/api"
	"github.com/gcsplan/planner/internal/itemfile"
	"github.com/gcsplan/planner/internal/monitor"
	"github.com/gcsplan/planner/internal/repository"
	"github.com/gcsplan/planner/internal/scene"
	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/pkg/core"
)

// MissionClient is the part of api.Client the engine uses.
type MissionClient interface {
	SendCommand(ctx context.Context, text string, selected []core.Waypoint, contextNames []string) api.Result
	SendWaypointBatch(ctx context.Context, missionName string, ws []core.Waypoint, contextNames []string) api.Result
	Healthcheck(ctx context.Context) error
}

// Dependencies holds everything the engine wires together. Monitor settings
// are taken from SyncInterval/SyncEnabled; the monitor itself is built here.
type Dependencies struct {
	Store  storage.Backend
	Items  *itemfile.Store // optional
	Scene  scene.Scene
	API    MissionClient // optional
	Logger *slog.Logger

	SceneOptions scene.Options
	Sync         monitor.Dependencies // Repo, Store and Scene are filled in
	SyncEnabled  bool
}

// Engine is safe for concurrent use.
type Engine struct {
	deps Dependencies
	log  *slog.Logger

	Repo    *repository.Repository
	Bridge  *scene.Bridge
	Monitor *monitor.Service

	mu      sync.Mutex
	started bool
}

// New builds the engine. Nothing touches the store until Start.
func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Scene == nil {
		deps.Scene = scene.NewMemoryScene()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{deps: deps, log: deps.Logger}

	repoDeps := repository.Dependencies{Store: deps.Store, Logger: deps.Logger.With("component", "repository")}
	if deps.Items != nil {
		repoDeps.Items = deps.Items
	}
	e.Repo = repository.New(repoDeps)
	e.Bridge = scene.NewBridge(deps.Scene, deps.SceneOptions, deps.Logger.With("component", "scene"))

	e.Repo.OnPersist(func(o repository.PersistOutcome) {
		if o.Err != nil {
			e.log.Error("Persistence failed", "op", o.Op, "name", o.Name, "revision", o.Revision, "error", o.Err)
		}
	})

	syncDeps := deps.Sync
	syncDeps.Repo = e.Repo
	syncDeps.Store = deps.Store
	syncDeps.Scene = e.Bridge
	if syncDeps.Logger == nil {
		syncDeps.Logger = deps.Logger.With("component", "monitor")
	}
	mon, err := monitor.NewService(syncDeps)
	if err != nil {
		return nil, fmt.Errorf("create monitor: %w", err)
	}
	e.Monitor = mon

	return e, nil
}

// Start initializes the store, loads waypoints, prunes orphan item files,
// renders everything and starts the monitor when enabled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if err := e.deps.Store.Init(); err != nil {
		return fmt.Errorf("init store %s: %w", storage.NameOf(e.deps.Store), err)
	}
	if err := e.Repo.Load(ctx); err != nil {
		return err
	}

	if _, err := e.Reconcile(); err != nil {
		e.log.Warn("Item file reconcile failed", "error", err)
	}

	if err := e.restoreScene(); err != nil {
		e.log.Warn("Initial scene restore incomplete", "error", err)
	}

	if e.deps.SyncEnabled {
		if err := e.Monitor.Start(); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
	}
	e.started = true
	e.log.Info("Engine started", "waypoints", e.Repo.Len(), "store", storage.NameOf(e.deps.Store))
	return nil
}

// Close stops the monitor, drains pending persistence and closes the store.
func (e *Engine) Close() error {
	e.Monitor.Stop()
	var errs []error
	if err := e.Repo.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.deps.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	return errors.Join(errs...)
}

// Flush waits for queued persistence to finish.
func (e *Engine) Flush(ctx context.Context) error {
	return e.Repo.Flush(ctx)
}

// Reconcile deletes item files that no longer belong to a waypoint.
func (e *Engine) Reconcile() ([]string, error) {
	if e.deps.Items == nil {
		return nil, nil
	}
	removed, err := e.deps.Items.Reconcile(e.Repo.Names())
	if len(removed) > 0 {
		e.log.Info("Removed orphan item files", "files", removed)
	}
	return removed, err
}

// BeginCapture starts an interactive capture on the scene.
func (e *Engine) BeginCapture(kind core.Kind) (*scene.CaptureSession, error) {
	return e.Bridge.BeginCapture(kind)
}

// NewCapture returns a capture session that is not the interactive one.
func (e *Engine) NewCapture(kind core.Kind) (*scene.CaptureSession, error) {
	return e.Bridge.NewCapture(kind)
}

// CreateWaypointFromCapture creates a waypoint from the captured points and
// closes session. If the waypoint is rejected the session stays open.
func (e *Engine) CreateWaypointFromCapture(session *scene.CaptureSession, name string, opts ...repository.CreateOption) (core.Waypoint, error) {
	coords, err := session.Geometry()
	if err != nil {
		return core.Waypoint{}, err
	}
	w, err := e.CreateWaypoint(session.Kind(), coords, name, opts...)
	if err != nil {
		return core.Waypoint{}, err
	}
	session.Close()
	return w, nil
}

// CreateWaypoint creates and renders a waypoint from finished geometry.
// A render failure is logged; the monitor restores the scene later.
func (e *Engine) CreateWaypoint(kind core.Kind, coords []core.Coordinate, name string, opts ...repository.CreateOption) (core.Waypoint, error) {
	opts = append([]repository.CreateOption{repository.WithSceneEntityID(scene.NewEntityID())}, opts...)
	w, err := e.Repo.Create(kind, coords, name, opts...)
	if err != nil {
		return core.Waypoint{}, err
	}
	if _, err := e.Bridge.Render(w); err != nil {
		e.log.Warn("Failed to render new waypoint", "id", w.ID, "error", err)
	}
	return w, nil
}

// RenameWaypoint renames a waypoint and updates its label. On failure the
// label is redrawn from the unchanged record.
func (e *Engine) RenameWaypoint(id, newName string) (core.Waypoint, error) {
	w, err := e.Repo.Rename(id, newName)
	if err != nil {
		if cur, ok := e.Repo.Get(id); ok {
			e.render(cur)
		}
		return core.Waypoint{}, err
	}
	e.render(w)
	return w, nil
}

// DeleteWaypoint removes a waypoint and its entity.
func (e *Engine) DeleteWaypoint(id string) (core.Waypoint, error) {
	w, err := e.Repo.Delete(id)
	if err != nil {
		return core.Waypoint{}, err
	}
	if err := e.Bridge.Remove(w.SceneEntityID); err != nil {
		e.log.Warn("Failed to remove waypoint entity", "id", id, "entity", w.SceneEntityID, "error", err)
	}
	return w, nil
}

// ClearAll removes every waypoint and entity.
func (e *Engine) ClearAll() int {
	removed := e.Repo.ClearAll()
	for _, w := range removed {
		if err := e.Bridge.Remove(w.SceneEntityID); err != nil {
			e.log.Warn("Failed to remove waypoint entity", "id", w.ID, "error", err)
		}
	}
	return len(removed)
}

// ListWaypoints returns all waypoints in insertion order.
func (e *Engine) ListWaypoints() []core.Waypoint {
	return e.Repo.List()
}

// Select marks waypoints as selected.
func (e *Engine) Select(ids ...string) error {
	var errs []error
	for _, id := range ids {
		errs = append(errs, e.Repo.Select(id))
	}
	return errors.Join(errs...)
}

// Deselect unmarks waypoints. No ids clears the whole selection.
func (e *Engine) Deselect(ids ...string) {
	if len(ids) == 0 {
		e.Repo.ClearSelection()
		return
	}
	for _, id := range ids {
		e.Repo.Deselect(id)
	}
}

// SelectedWaypoints returns the selection in collection order.
func (e *Engine) SelectedWaypoints() []core.Waypoint {
	return e.Repo.SelectedWaypoints()
}

// Resolve finds a waypoint by id, falling back to name.
func (e *Engine) Resolve(ref string) (core.Waypoint, error) {
	if w, ok := e.Repo.Get(ref); ok {
		return w, nil
	}
	if w, ok := e.Repo.GetByName(ref); ok {
		return w, nil
	}
	return core.Waypoint{}, fmt.Errorf("%w: %s", core.ErrNotFound, ref)
}

// SendCommand posts text with the current selection and any @name references
// and draws a returned mission onto the scene.
func (e *Engine) SendCommand(ctx context.Context, text string) (api.Result, error) {
	if e.deps.API == nil {
		return api.Result{}, fmt.Errorf("%w: mission backend not configured", core.ErrNetwork)
	}
	refs := api.ParseContextRefs(text, func(name string) bool {
		_, ok := e.Repo.GetByName(name)
		return ok
	})
	res := e.deps.API.SendCommand(ctx, text, e.Repo.SelectedWaypoints(), refs)
	if !res.OK() {
		return res, res.Err
	}
	api.RenderMissionResponse(res.Body, e.Bridge, e.log)
	return res, nil
}

// SendBatch posts the selected waypoints as a named mission batch.
func (e *Engine) SendBatch(ctx context.Context, missionName string) (api.Result, error) {
	if e.deps.API == nil {
		return api.Result{}, fmt.Errorf("%w: mission backend not configured", core.ErrNetwork)
	}
	selected := e.Repo.SelectedWaypoints()
	if len(selected) == 0 {
		return api.Result{}, fmt.Errorf("%w: no waypoints selected", core.ErrNotFound)
	}
	names := make([]string, len(selected))
	for i, w := range selected {
		names[i] = w.Name
	}
	res := e.deps.API.SendWaypointBatch(ctx, missionName, selected, names)
	return res, res.Err
}

// Healthcheck probes the mission backend.
func (e *Engine) Healthcheck(ctx context.Context) error {
	if e.deps.API == nil {
		return fmt.Errorf("%w: mission backend not configured", core.ErrNetwork)
	}
	return e.deps.API.Healthcheck(ctx)
}

// ForceSync requests an immediate reconciliation. When the monitor loop is
// not running the tick runs inline.
func (e *Engine) ForceSync(ctx context.Context) (monitor.TickReport, error) {
	if e.Monitor.IsRunning() && e.Monitor.ForceSync() {
		return monitor.TickReport{}, nil
	}
	return e.Monitor.Tick(ctx)
}

// UpdateDrone moves the drone marker.
func (e *Engine) UpdateDrone(status core.DroneStatus) error {
	return e.Bridge.UpdateDrone(status)
}

// LogAttrs are evaluated on every log record by the context handler.
func (e *Engine) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int("waypoints", e.Repo.Count()),
		slog.Bool("syncing", e.Monitor.IsRunning()),
	}
}

func (e *Engine) render(w core.Waypoint) {
	if _, err := e.Bridge.Render(w); err != nil {
		e.log.Warn("Failed to render waypoint", "id", w.ID, "error", err)
	}
}

func (e *Engine) restoreScene() error {
	restored, err := e.Bridge.RestoreAll(e.Repo.List())
	for _, w := range restored {
		if w.SceneEntityID == "" {
			continue
		}
		if aerr := e.Repo.AttachEntity(w.ID, w.SceneEntityID); aerr != nil {
			err = errors.Join(err, aerr)
		}
	}
	return err
}
