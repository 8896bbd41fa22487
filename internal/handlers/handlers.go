// Package handlers binds collaborator commands to engine operations.
// Arguments arrive as strings; structured arguments are JSON.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gcsplan/planner/internal/api"
	"github.com/gcsplan/planner/internal/dispatcher"
	"github.com/gcsplan/planner/internal/geo"
	"github.com/gcsplan/planner/internal/monitor"
	"github.com/gcsplan/planner/internal/repository"
	"github.com/gcsplan/planner/internal/scene"
	"github.com/gcsplan/planner/pkg/core"
)

// Engine is the set of engine operations the handlers call.
type Engine interface {
	BeginCapture(kind core.Kind) (*scene.CaptureSession, error)
	NewCapture(kind core.Kind) (*scene.CaptureSession, error)
	CreateWaypointFromCapture(session *scene.CaptureSession, name string, opts ...repository.CreateOption) (core.Waypoint, error)
	RenameWaypoint(id, newName string) (core.Waypoint, error)
	DeleteWaypoint(id string) (core.Waypoint, error)
	ClearAll() int
	ListWaypoints() []core.Waypoint
	Select(ids ...string) error
	Deselect(ids ...string)
	SelectedWaypoints() []core.Waypoint
	Resolve(ref string) (core.Waypoint, error)
	SendCommand(ctx context.Context, text string) (api.Result, error)
	SendBatch(ctx context.Context, missionName string) (api.Result, error)
	ForceSync(ctx context.Context) (monitor.TickReport, error)
	Healthcheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine          Engine
	Logger          *slog.Logger
	DefaultAltitude float64
	// RequestTimeout bounds backend calls made by a single command.
	RequestTimeout time.Duration
}

// CreateRequest is the JSON argument of :WAYPOINT:CREATE:. Points are raw
// capture points as [lat, lon(, alt)]: rectangle takes two corners and
// circle takes center then edge.
type CreateRequest struct {
	Kind        core.Kind       `json:"kind"`
	Name        string          `json:"name"`
	Points      json.RawMessage `json:"points"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// CommandResponse is returned by the mission commands.
type CommandResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// SyncResponse summarizes a forced tick.
type SyncResponse struct {
	Queued        bool `json:"queued"`
	MemoryCount   int  `json:"memoryCount"`
	StoreCount    int  `json:"storeCount"`
	RenderedCount int  `json:"renderedCount"`
	Replaced      bool `json:"replaced"`
	Restored      bool `json:"restored"`
}

// Service provides handler methods for the collaborator commands
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu      sync.Mutex
	capture *scene.CaptureSession
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 90 * time.Second
	}
	return &Service{deps: deps, log: deps.Logger.With("component", "handlers")}
}

// Register binds every command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(":WAYPOINT:CREATE:", s.CreateWaypoint, dispatcher.Logged())
	d.Register(":WAYPOINT:RENAME:", s.RenameWaypoint, dispatcher.Logged())
	d.Register(":WAYPOINT:DELETE:", s.DeleteWaypoint, dispatcher.Logged())
	d.Register(":WAYPOINT:LIST:", s.ListWaypoints)
	d.Register(":WAYPOINT:CLEAR:", s.ClearWaypoints, dispatcher.Logged())
	d.Register(":WAYPOINT:SELECT:", s.SelectWaypoints)
	d.Register(":WAYPOINT:DESELECT:", s.DeselectWaypoints)
	d.Register(":WAYPOINT:SELECTED:", s.SelectedWaypoints)

	d.Register(":CAPTURE:BEGIN:", s.BeginCapture, dispatcher.Logged())
	d.Register(":CAPTURE:POINT:", s.CapturePoint)
	d.Register(":CAPTURE:PREVIEW:", s.CapturePreview)
	d.Register(":CAPTURE:FINISH:", s.FinishCapture, dispatcher.Logged())
	d.Register(":CAPTURE:CANCEL:", s.CancelCapture)

	d.Register(":MISSION:COMMAND:", s.SendCommand, dispatcher.Logged())
	// batches are fire-and-forget; the outcome goes to the dispatcher's result hook
	d.Register(":MISSION:BATCH:", s.SendBatch, dispatcher.Buffered(8), dispatcher.Logged())
	d.Register(":MISSION:HEALTH:", s.Healthcheck)

	d.Register(":SYNC:FORCE:", s.ForceSync, dispatcher.Logged())
}

// CreateWaypoint runs the points of a CreateRequest through a detached
// capture session so shapes are derived exactly as interactive capture
// derives them, without disturbing a capture in progress.
func (s *Service) CreateWaypoint(e dispatcher.Event) (any, error) {
	var req CreateRequest
	if err := decodeArg(e, 0, &req); err != nil {
		return nil, err
	}
	points, err := geo.ParsePolyline(string(req.Points), s.deps.DefaultAltitude)
	if err != nil {
		return nil, err
	}

	session, err := s.deps.Engine.NewCapture(req.Kind)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if err := session.AddPoint(p); err != nil {
			session.Cancel()
			return nil, err
		}
	}

	w, err := s.deps.Engine.CreateWaypointFromCapture(session, req.Name, createOptions(req)...)
	if err != nil {
		session.Cancel()
		return nil, err
	}
	return w, nil
}

func createOptions(req CreateRequest) []repository.CreateOption {
	var opts []repository.CreateOption
	if req.Description != "" {
		opts = append(opts, repository.WithDescription(req.Description))
	}
	if len(req.Tags) > 0 {
		opts = append(opts, repository.WithTags(req.Tags...))
	}
	return opts
}

// RenameWaypoint takes a waypoint reference (id or name) and the new name.
func (s *Service) RenameWaypoint(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("%s: expected reference and new name", e.Command)
	}
	w, err := s.deps.Engine.Resolve(e.Arg(0))
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.RenameWaypoint(w.ID, e.Arg(1))
}

// DeleteWaypoint takes a waypoint reference.
func (s *Service) DeleteWaypoint(e dispatcher.Event) (any, error) {
	w, err := s.deps.Engine.Resolve(e.Arg(0))
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.DeleteWaypoint(w.ID)
}

func (s *Service) ListWaypoints(dispatcher.Event) (any, error) {
	return s.deps.Engine.ListWaypoints(), nil
}

func (s *Service) ClearWaypoints(dispatcher.Event) (any, error) {
	return map[string]int{"removed": s.deps.Engine.ClearAll()}, nil
}

// SelectWaypoints selects every referenced waypoint.
func (s *Service) SelectWaypoints(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return nil, fmt.Errorf("%s: expected at least one reference", e.Command)
	}
	ids, err := s.resolveAll(e.Args)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Engine.Select(ids...); err != nil {
		return nil, err
	}
	return s.deps.Engine.SelectedWaypoints(), nil
}

// DeselectWaypoints deselects the referenced waypoints, or all of them.
func (s *Service) DeselectWaypoints(e dispatcher.Event) (any, error) {
	ids, err := s.resolveAll(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.Engine.Deselect(ids...)
	return s.deps.Engine.SelectedWaypoints(), nil
}

func (s *Service) SelectedWaypoints(dispatcher.Event) (any, error) {
	return s.deps.Engine.SelectedWaypoints(), nil
}

// BeginCapture starts an interactive capture, cancelling any previous one.
func (s *Service) BeginCapture(e dispatcher.Event) (any, error) {
	session, err := s.deps.Engine.BeginCapture(core.Kind(strings.TrimSpace(e.Arg(0))))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.capture = session
	s.mu.Unlock()
	return "capturing", nil
}

// CapturePoint commits one point, "lat, lon(, alt)" with or without brackets.
func (s *Service) CapturePoint(e dispatcher.Event) (any, error) {
	session, err := s.session()
	if err != nil {
		return nil, err
	}
	c, err := s.pointArg(e)
	if err != nil {
		return nil, err
	}
	if err := session.AddPoint(c); err != nil {
		return nil, err
	}
	return len(session.Points()), nil
}

// CapturePreview shows the shape with the cursor as the next point.
func (s *Service) CapturePreview(e dispatcher.Event) (any, error) {
	session, err := s.session()
	if err != nil {
		return nil, err
	}
	c, err := s.pointArg(e)
	if err != nil {
		return nil, err
	}
	return nil, session.Preview(c)
}

// FinishCapture creates the waypoint; the optional argument is its name.
// A rejected waypoint leaves the capture open for another attempt.
func (s *Service) FinishCapture(e dispatcher.Event) (any, error) {
	session, err := s.session()
	if err != nil {
		return nil, err
	}
	w, err := s.deps.Engine.CreateWaypointFromCapture(session, e.Arg(0))
	if err != nil {
		if errors.Is(err, scene.ErrCaptureClosed) {
			s.dropSession(session)
		}
		return nil, err
	}
	s.dropSession(session)
	return w, nil
}

func (s *Service) CancelCapture(dispatcher.Event) (any, error) {
	s.mu.Lock()
	session := s.capture
	s.capture = nil
	s.mu.Unlock()
	if session != nil {
		session.Cancel()
	}
	return "cancelled", nil
}

// SendCommand posts free text with the selection and @name references.
func (s *Service) SendCommand(e dispatcher.Event) (any, error) {
	text := strings.TrimSpace(strings.Join(e.Args, " "))
	if text == "" {
		return nil, fmt.Errorf("%s: empty command", e.Command)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.RequestTimeout)
	defer cancel()
	res, err := s.deps.Engine.SendCommand(ctx, text)
	if err != nil {
		return nil, err
	}
	return commandResponse(res), nil
}

// SendBatch posts the selection under the mission name in the first argument.
func (s *Service) SendBatch(e dispatcher.Event) (any, error) {
	name := strings.TrimSpace(e.Arg(0))
	if name == "" {
		return nil, fmt.Errorf("%w: mission name must not be blank", core.ErrInvalidName)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.RequestTimeout)
	defer cancel()
	res, err := s.deps.Engine.SendBatch(ctx, name)
	if err != nil {
		return nil, err
	}
	return commandResponse(res), nil
}

func (s *Service) Healthcheck(dispatcher.Event) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.RequestTimeout)
	defer cancel()
	if err := s.deps.Engine.Healthcheck(ctx); err != nil {
		return nil, err
	}
	return "ok", nil
}

// ForceSync triggers reconciliation; when the monitor loop is running the
// tick is only queued.
func (s *Service) ForceSync(dispatcher.Event) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.RequestTimeout)
	defer cancel()
	rep, err := s.deps.Engine.ForceSync(ctx)
	if err != nil {
		return nil, err
	}
	if rep.Time.IsZero() {
		return SyncResponse{Queued: true}, nil
	}
	return SyncResponse{
		MemoryCount:   rep.MemoryCount,
		StoreCount:    rep.StoreCount,
		RenderedCount: rep.RenderedCount,
		Replaced:      rep.Replaced,
		Restored:      rep.Restored,
	}, nil
}

func (s *Service) session() (*scene.CaptureSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil, scene.ErrCaptureClosed
	}
	return s.capture, nil
}

func (s *Service) dropSession(session *scene.CaptureSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == session {
		s.capture = nil
	}
}

func (s *Service) pointArg(e dispatcher.Event) (core.Coordinate, error) {
	arg := strings.TrimSpace(e.Arg(0))
	if !strings.HasPrefix(arg, "[") {
		return geo.CoordinateFromString(arg, s.deps.DefaultAltitude)
	}
	pts, err := geo.ParsePolyline("["+arg+"]", s.deps.DefaultAltitude)
	if err != nil {
		return core.Coordinate{}, err
	}
	if len(pts) != 1 {
		return core.Coordinate{}, fmt.Errorf("%s: expected one point", e.Command)
	}
	return pts[0], nil
}

func (s *Service) resolveAll(refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		w, err := s.deps.Engine.Resolve(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, w.ID)
	}
	return ids, nil
}

func decodeArg(e dispatcher.Event, i int, v any) error {
	raw := e.Arg(i)
	if raw == "" {
		return fmt.Errorf("%s: missing argument %d", e.Command, i)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%s: decode argument %d: %w", e.Command, i, err)
	}
	return nil
}

func commandResponse(res api.Result) CommandResponse {
	out := CommandResponse{Status: res.Status}
	if json.Valid(res.Body) {
		out.Body = json.RawMessage(res.Body)
	}
	return out
}
