// Package repository owns the canonical, ordered waypoint collection.
// Mutations apply to memory synchronously; persistence to the durable store
// and per-item files runs on a single background worker in call order and
// never rolls memory back.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gcsplan/planner/internal/geo"
	"github.com/gcsplan/planner/internal/queue"
	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/pkg/core"
	"github.com/oklog/ulid/v2"
)

// AutoNamePrefix is the stem of generated names: Waypoint#1, Waypoint#2, ...
const AutoNamePrefix = "Waypoint#"

// ItemStore is the per-item file follower.
type ItemStore interface {
	Write(w core.Waypoint) error
	Remove(name string) error
	Rename(oldName, newName string, w core.Waypoint) error
}

// Dependencies holds all dependencies for the repository.
type Dependencies struct {
	Store  storage.Backend
	Items  ItemStore // optional
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Repository is safe for concurrent use.
type Repository struct {
	deps Dependencies
	log  *slog.Logger

	mu        sync.RWMutex
	waypoints []core.Waypoint
	selected  map[string]struct{}
	revision  uint64
	count     atomic.Int64 // len(waypoints), readable without mu

	jobs    *queue.Queue[job]
	stopped chan struct{}

	hookMu sync.RWMutex
	hooks  []func(PersistOutcome)
}

// New creates a repository and starts its persistence worker.
func New(deps Dependencies) *Repository {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return ulid.Make().String() }
	}
	r := &Repository{
		deps:     deps,
		log:      deps.Logger,
		selected: make(map[string]struct{}),
		jobs:     queue.New[job](),
		stopped:  make(chan struct{}),
	}
	go r.run()
	return r
}

// CreateOption customizes a new waypoint.
type CreateOption func(*core.Waypoint)

// WithSceneEntityID records the rendered entity and suffixes the id with it.
func WithSceneEntityID(id string) CreateOption {
	return func(w *core.Waypoint) {
		w.SceneEntityID = id
	}
}

// WithDescription sets the free-text description.
func WithDescription(d string) CreateOption {
	return func(w *core.Waypoint) {
		w.Description = d
	}
}

// WithTags sets the tags.
func WithTags(tags ...string) CreateOption {
	return func(w *core.Waypoint) {
		w.Tags = slices.Clone(tags)
	}
}

// Create validates and appends a new waypoint. A blank proposedName gets the
// lowest unused Waypoint#N.
func (r *Repository) Create(kind core.Kind, coords []core.Coordinate, proposedName string, opts ...CreateOption) (core.Waypoint, error) {
	if !kind.Valid() {
		return core.Waypoint{}, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	if len(coords) < kind.MinPoints() {
		return core.Waypoint{}, fmt.Errorf("%w: %s needs %d, got %d",
			core.ErrInsufficientPoints, kind, kind.MinPoints(), len(coords))
	}
	if kind == core.KindPoint {
		coords = coords[:1]
	}

	w := core.Waypoint{
		Kind:        kind,
		Coordinates: slices.Clone(coords),
		CreatedAt:   r.deps.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&w)
	}
	w.ID = "wp_" + r.deps.NewID()
	if w.SceneEntityID != "" {
		w.ID += "_" + w.SceneEntityID
	}
	w.Metadata = geo.Measure(kind, w.Coordinates)

	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.TrimSpace(proposedName)
	if name == "" {
		name = r.nextAutoNameLocked()
	} else if r.indexByNameLocked(name) >= 0 {
		return core.Waypoint{}, fmt.Errorf("%w: %q", core.ErrDuplicateName, name)
	}
	w.Name = name

	r.waypoints = append(r.waypoints, w)
	r.count.Store(int64(len(r.waypoints)))
	r.revision++
	r.enqueue(r.saveJob(), job{op: OpWriteItem, revision: r.revision, waypoint: w.Clone()})

	r.log.Info("Waypoint created", "id", w.ID, "name", w.Name, "kind", w.Kind, "points", len(w.Coordinates))
	return w.Clone(), nil
}

// Rename changes a waypoint's name. Renaming to the current name succeeds
// without persisting anything.
func (r *Repository) Rename(id, newName string) (core.Waypoint, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return core.Waypoint{}, fmt.Errorf("%w: name must not be blank", core.ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return core.Waypoint{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	old := r.waypoints[i].Name
	if old == newName {
		return r.waypoints[i].Clone(), nil
	}
	if j := r.indexByNameLocked(newName); j >= 0 && j != i {
		return core.Waypoint{}, fmt.Errorf("%w: %q", core.ErrDuplicateName, newName)
	}

	r.waypoints[i].Name = newName
	r.revision++
	w := r.waypoints[i].Clone()
	r.enqueue(
		job{op: OpRenameItem, revision: r.revision, waypoint: w.Clone(), oldName: old},
		r.saveJob(),
	)

	r.log.Info("Waypoint renamed", "id", id, "from", old, "to", newName)
	return w, nil
}

// Delete removes a waypoint and its selection. Removing the rendered entity
// is the caller's job.
func (r *Repository) Delete(id string) (core.Waypoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return core.Waypoint{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	w := r.waypoints[i]
	r.waypoints = slices.Delete(r.waypoints, i, i+1)
	r.count.Store(int64(len(r.waypoints)))
	delete(r.selected, id)
	r.revision++
	r.enqueue(job{op: OpRemoveItem, revision: r.revision, waypoint: w.Clone()}, r.saveJob())

	r.log.Info("Waypoint deleted", "id", id, "name", w.Name)
	return w.Clone(), nil
}

// ClearAll empties the collection and selection and persists the empty state.
// It returns the removed waypoints so callers can remove their entities.
func (r *Repository) ClearAll() []core.Waypoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.waypoints
	r.waypoints = nil
	r.count.Store(0)
	clear(r.selected)
	r.revision++

	jobs := make([]job, 0, len(removed)+1)
	for _, w := range removed {
		jobs = append(jobs, job{op: OpRemoveItem, revision: r.revision, waypoint: w})
	}
	jobs = append(jobs, r.saveJob())
	r.enqueue(jobs...)

	r.log.Info("All waypoints cleared", "count", len(removed))
	return removed
}

// AttachEntity records the scene entity rendered for a waypoint.
func (r *Repository) AttachEntity(id, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if r.waypoints[i].SceneEntityID == entityID {
		return nil
	}
	r.waypoints[i].SceneEntityID = entityID
	r.revision++
	r.enqueue(r.saveJob())
	return nil
}

// List returns the collection in insertion order.
func (r *Repository) List() []core.Waypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Names returns the current names in insertion order.
func (r *Repository) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.waypoints))
	for i, w := range r.waypoints {
		names[i] = w.Name
	}
	return names
}

// Get looks a waypoint up by id.
func (r *Repository) Get(id string) (core.Waypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.waypoints[i].Clone(), true
	}
	return core.Waypoint{}, false
}

// GetByName looks a waypoint up by exact name.
func (r *Repository) GetByName(name string) (core.Waypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexByNameLocked(name); i >= 0 {
		return r.waypoints[i].Clone(), true
	}
	return core.Waypoint{}, false
}

// Len returns the collection size.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.waypoints)
}

// Count is Len without taking the lock, for use from log handlers that may
// run while the repository is mid-mutation.
func (r *Repository) Count() int {
	return int(r.count.Load())
}

// Revision increases on every in-memory mutation.
func (r *Repository) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// Select adds a waypoint to the selection set.
func (r *Repository) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	r.selected[id] = struct{}{}
	return nil
}

// Deselect removes a waypoint from the selection set.
func (r *Repository) Deselect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selected, id)
}

// ClearSelection empties the selection set.
func (r *Repository) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.selected)
}

// IsSelected reports whether id is selected.
func (r *Repository) IsSelected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.selected[id]
	return ok
}

// SelectedWaypoints returns the selected waypoints in collection order.
func (r *Repository) SelectedWaypoints() []core.Waypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Waypoint, 0, len(r.selected))
	for _, w := range r.waypoints {
		if _, ok := r.selected[w.ID]; ok {
			out = append(out, w.Clone())
		}
	}
	return out
}

// Load replaces memory with the durable store's content. It does not persist.
func (r *Repository) Load(ctx context.Context) error {
	ws, err := r.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load waypoints: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLocked(ws)
	r.log.Info("Waypoints loaded", "count", len(r.waypoints), "store", storage.NameOf(r.deps.Store))
	return nil
}

// Replace swaps memory for ws wholesale, but only if no mutation happened
// since revision was read. It reports whether the swap happened.
func (r *Repository) Replace(revision uint64, ws []core.Waypoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revision != revision {
		return false
	}
	r.setLocked(ws)
	return true
}

func (r *Repository) setLocked(ws []core.Waypoint) {
	r.waypoints = make([]core.Waypoint, 0, len(ws))
	seen := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		// the store is not trusted to uphold name uniqueness
		if _, dup := seen[w.Name]; dup {
			r.log.Warn("Skipping waypoint with duplicate name", "id", w.ID, "name", w.Name)
			continue
		}
		seen[w.Name] = struct{}{}
		r.waypoints = append(r.waypoints, w.Clone())
	}
	r.count.Store(int64(len(r.waypoints)))
	for id := range r.selected {
		if r.indexLocked(id) < 0 {
			delete(r.selected, id)
		}
	}
	r.revision++
}

func (r *Repository) snapshotLocked() []core.Waypoint {
	out := make([]core.Waypoint, len(r.waypoints))
	for i, w := range r.waypoints {
		out[i] = w.Clone()
	}
	return out
}

func (r *Repository) indexLocked(id string) int {
	return slices.IndexFunc(r.waypoints, func(w core.Waypoint) bool { return w.ID == id })
}

func (r *Repository) indexByNameLocked(name string) int {
	return slices.IndexFunc(r.waypoints, func(w core.Waypoint) bool { return w.Name == name })
}

func (r *Repository) nextAutoNameLocked() string {
	used := make(map[string]struct{}, len(r.waypoints))
	for _, w := range r.waypoints {
		used[w.Name] = struct{}{}
	}
	for n := 1; ; n++ {
		name := AutoNamePrefix + strconv.Itoa(n)
		if _, ok := used[name]; !ok {
			return name
		}
	}
}
