package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gcsplan/planner/internal/geo"
	"github.com/gcsplan/planner/pkg/core"
)

const droneEntityID = "drone"

// Options tunes capture geometry.
type Options struct {
	CircleSegments int
}

// Bridge converts waypoints to scene entities and back.
type Bridge struct {
	scene Scene
	opts  Options
	log   *slog.Logger

	mu      sync.Mutex
	capture *CaptureSession
}

// NewBridge creates a Bridge. A nil logger uses slog.Default.
func NewBridge(s Scene, opts Options, log *slog.Logger) *Bridge {
	if opts.CircleSegments <= 0 {
		opts.CircleSegments = geo.DefaultCircleSegments
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{scene: s, opts: opts, log: log}
}

// Render draws w and returns its entity id. Rendering again with the same
// SceneEntityID replaces the entity.
func (b *Bridge) Render(w core.Waypoint) (string, error) {
	id := w.SceneEntityID
	if id == "" {
		id = NewEntityID()
	}

	var e Entity
	switch w.Kind {
	case core.KindPolygon:
		e = renderPolygon(w)
	case core.KindRectangle:
		e = renderRectangle(w)
	case core.KindCircle:
		e = renderCircle(w)
	case core.KindPoint:
		e = renderPoint(w)
	default:
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, w.Kind)
	}
	e.ID = id
	e.Layer = LayerWaypoints
	e.Label = w.Name
	e.WaypointID = w.ID

	if err := b.scene.Upsert(e); err != nil {
		return "", fmt.Errorf("render %s: %w", w.Name, err)
	}
	return id, nil
}

func renderPolygon(w core.Waypoint) Entity {
	return Entity{Shape: ShapePolygon, Positions: w.Coordinates, Style: Style{Color: "#FFA500", Alpha: 0.3, Outline: true}}
}

func renderRectangle(w core.Waypoint) Entity {
	return Entity{Shape: ShapePolygon, Positions: w.Coordinates, Style: Style{Color: "#00FF00", Alpha: 0.3, Outline: true}}
}

func renderCircle(w core.Waypoint) Entity {
	return Entity{Shape: ShapePolygon, Positions: w.Coordinates, Style: Style{Color: "#1E90FF", Alpha: 0.3, Outline: true}}
}

func renderPoint(w core.Waypoint) Entity {
	return Entity{Shape: ShapePoint, Positions: w.Coordinates[:min(1, len(w.Coordinates))], Style: Style{Color: "#FF0000", Alpha: 1}}
}

// Remove deletes a rendered entity.
func (b *Bridge) Remove(entityID string) error {
	if entityID == "" {
		return nil
	}
	return b.scene.Remove(entityID)
}

// RestoreAll renders every waypoint, assigns ids to those without one and
// drops waypoint-layer entities that no longer belong to any waypoint.
// The returned slice carries the assigned ids. Individual render failures
// are logged and joined into the returned error.
func (b *Bridge) RestoreAll(ws []core.Waypoint) ([]core.Waypoint, error) {
	out := make([]core.Waypoint, len(ws))
	keep := make(map[string]struct{}, len(ws))
	var errs []error

	for i, w := range ws {
		out[i] = w
		id, err := b.Render(w)
		if err != nil {
			b.log.Warn("Failed to restore waypoint", "id", w.ID, "name", w.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		out[i].SceneEntityID = id
		keep[id] = struct{}{}
	}

	for _, e := range b.scene.Entities(LayerWaypoints) {
		if _, ok := keep[e.ID]; ok {
			continue
		}
		if err := b.scene.Remove(e.ID); err != nil {
			errs = append(errs, err)
		}
	}

	b.log.Debug("Restored waypoints onto scene", "count", len(keep))
	return out, errors.Join(errs...)
}

// RenderedCount is the number of waypoint entities on the scene.
func (b *Bridge) RenderedCount() int {
	return len(b.scene.Entities(LayerWaypoints))
}

// ClearMission removes previously rendered mission artifacts.
func (b *Bridge) ClearMission() error {
	var errs []error
	for _, e := range b.scene.Entities(LayerMission) {
		errs = append(errs, b.scene.Remove(e.ID))
	}
	return errors.Join(errs...)
}

// RenderMission replaces the mission layer with a translucent area polygon
// and the path polyline with start and end markers.
func (b *Bridge) RenderMission(area, path []core.Coordinate) error {
	if err := b.ClearMission(); err != nil {
		return err
	}

	var entities []Entity
	if len(area) >= 3 {
		entities = append(entities, Entity{
			Shape: ShapePolygon, Positions: area, Label: "Mission area",
			Style: Style{Color: "#00BFFF", Alpha: 0.25, Outline: true},
		})
	}
	if len(path) >= 2 {
		entities = append(entities, Entity{
			Shape: ShapePolyline, Positions: path, Label: "Mission path",
			Style: Style{Color: "#FFFF00", Alpha: 1},
		})
	}
	if len(path) >= 1 {
		entities = append(entities, Entity{
			Shape: ShapePoint, Positions: path[:1], Label: "Start",
			Style: Style{Color: "#00FF00", Alpha: 1},
		})
	}
	if len(path) >= 2 {
		entities = append(entities, Entity{
			Shape: ShapePoint, Positions: path[len(path)-1:], Label: "End",
			Style: Style{Color: "#FF0000", Alpha: 1},
		})
	}

	for _, e := range entities {
		e.ID = NewEntityID()
		e.Layer = LayerMission
		if err := b.scene.Upsert(e); err != nil {
			return fmt.Errorf("render mission: %w", err)
		}
	}
	b.log.Info("Mission rendered", "areaPoints", len(area), "pathPoints", len(path))
	return nil
}

// UpdateDrone moves the drone marker.
func (b *Bridge) UpdateDrone(status core.DroneStatus) error {
	return b.scene.Upsert(Entity{
		ID:        droneEntityID,
		Layer:     LayerDrone,
		Shape:     ShapePoint,
		Positions: []core.Coordinate{status.Position},
		Label:     status.Mode,
		Style:     Style{Color: "#FFFFFF", Alpha: 1, Outline: true},
	})
}
