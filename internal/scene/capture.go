package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gcsplan/planner/internal/geo"
	"github.com/gcsplan/planner/pkg/core"
)

// ErrCaptureClosed is returned when using a finished or cancelled session.
var ErrCaptureClosed = errors.New("capture session closed")

// CaptureSession collects points for one shape. Rectangles and circles take
// two points (corner+corner, center+edge); a third point replaces the second.
type CaptureSession struct {
	kind     core.Kind
	bridge   *Bridge
	segments int
	log      *slog.Logger

	mu        sync.Mutex
	points    []core.Coordinate
	previewID string
	closed    bool
}

// BeginCapture starts the interactive capture for kind. Any capture still
// in progress is cancelled first.
func (b *Bridge) BeginCapture(kind core.Kind) (*CaptureSession, error) {
	s, err := b.NewCapture(kind)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	prev := b.capture
	b.capture = s
	b.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	return s, nil
}

// NewCapture returns a session that derives geometry the way interactive
// capture does but leaves the active capture alone.
func (b *Bridge) NewCapture(kind core.Kind) (*CaptureSession, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	return &CaptureSession{
		kind:     kind,
		bridge:   b,
		segments: b.opts.CircleSegments,
		log:      b.log.With("capture", kind),
	}, nil
}

// Kind returns the shape being captured.
func (s *CaptureSession) Kind() core.Kind {
	return s.kind
}

// Points returns the captured points so far.
func (s *CaptureSession) Points() []core.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.points)
}

// AddPoint records a committed point.
func (s *CaptureSession) AddPoint(c core.Coordinate) error {
	if err := core.ValidatePosition(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrCaptureClosed
	}
	if s.twoPoint() && len(s.points) == 2 {
		s.points[1] = c
	} else {
		s.points = append(s.points, c)
	}
	return nil
}

// Preview shows the shape as it would look with cursor as the next point.
// Nothing is committed.
func (s *CaptureSession) Preview(cursor core.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrCaptureClosed
	}

	pts := slices.Clone(s.points)
	if s.twoPoint() && len(pts) == 2 {
		pts[1] = cursor
	} else {
		pts = append(pts, cursor)
	}

	e := Entity{Layer: LayerPreview, Style: Style{Color: "#FFFFFF", Alpha: 0.2, Outline: true}}
	switch {
	case s.kind == core.KindPoint || len(pts) == 1:
		e.Shape, e.Positions = ShapePoint, pts[:1]
	case s.kind == core.KindRectangle:
		e.Shape, e.Positions = ShapePolygon, geo.SquareFromCorners(pts[0], pts[1])
	case s.kind == core.KindCircle:
		e.Shape, e.Positions = ShapePolygon, geo.CircleRing(pts[0], pts[1], s.segments)
	case len(pts) == 2:
		e.Shape, e.Positions = ShapePolyline, pts
	default:
		e.Shape, e.Positions = ShapePolygon, pts
	}

	if s.previewID == "" {
		s.previewID = NewEntityID()
	}
	e.ID = s.previewID
	return s.bridge.scene.Upsert(e)
}

// Geometry turns the captured points into stored coordinates. The session
// stays open, so a rejected waypoint can be retried.
func (s *CaptureSession) Geometry() ([]core.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrCaptureClosed
	}

	var out []core.Coordinate
	switch s.kind {
	case core.KindPolygon:
		if len(s.points) < 3 {
			return nil, s.insufficient(3)
		}
		out = slices.Clone(s.points)
	case core.KindRectangle:
		if len(s.points) < 2 {
			return nil, s.insufficient(2)
		}
		out = geo.SquareFromCorners(s.points[0], s.points[1])
	case core.KindCircle:
		if len(s.points) < 2 {
			return nil, s.insufficient(2)
		}
		out = geo.CircleRing(s.points[0], s.points[1], s.segments)
	case core.KindPoint:
		if len(s.points) < 1 {
			return nil, s.insufficient(1)
		}
		out = slices.Clone(s.points[:1])
	}

	// coincident corners or a zero radius collapse the shape
	if s.twoPoint() && !geo.ValidRing(out) {
		return nil, fmt.Errorf("%w: %s capture has no extent", core.ErrInsufficientPoints, s.kind)
	}
	return out, nil
}

// Close ends a completed session and removes its preview.
func (s *CaptureSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	n := len(s.points)
	s.closeLocked()
	s.log.Debug("Capture finished", "points", n)
}

// Cancel discards the captured points and any preview.
func (s *CaptureSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
	s.log.Debug("Capture cancelled")
}

func (s *CaptureSession) closeLocked() {
	s.closed = true
	s.points = nil
	if s.previewID != "" {
		if err := s.bridge.scene.Remove(s.previewID); err != nil {
			s.log.Warn("Failed to remove capture preview", "error", err)
		}
		s.previewID = ""
	}

	s.bridge.mu.Lock()
	if s.bridge.capture == s {
		s.bridge.capture = nil
	}
	s.bridge.mu.Unlock()
}

func (s *CaptureSession) insufficient(need int) error {
	return fmt.Errorf("%w: %s capture needs %d, got %d", core.ErrInsufficientPoints, s.kind, need, len(s.points))
}

func (s *CaptureSession) twoPoint() bool {
	return s.kind == core.KindRectangle || s.kind == core.KindCircle
}
