// Package scene projects waypoints onto the map scene and captures new
// geometry from it. The scene itself is an external collaborator reached
// through the Scene interface; MemoryScene is the headless implementation.
package scene

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/google/uuid"
)

// Layer groups entities so callers can count and clear them independently.
type Layer string

const (
	LayerWaypoints Layer = "waypoints"
	LayerPreview   Layer = "preview"
	LayerMission   Layer = "mission"
	LayerDrone     Layer = "drone"
)

// Shape is the geometric primitive a scene draws.
type Shape string

const (
	ShapePolygon  Shape = "polygon"
	ShapePolyline Shape = "polyline"
	ShapePoint    Shape = "point"
)

// Style is the minimal presentation hint passed to the scene.
type Style struct {
	Color   string
	Alpha   float64
	Outline bool
}

// Entity is one drawable object.
type Entity struct {
	ID         string
	Layer      Layer
	Shape      Shape
	Positions  []core.Coordinate
	Label      string
	Style      Style
	WaypointID string // set for waypoint-layer entities
}

// Scene is the map surface. Upsert with an existing ID replaces that entity.
type Scene interface {
	Upsert(e Entity) error
	Remove(id string) error
	Entities(layer Layer) []Entity
}

// NewEntityID returns a fresh scene entity id.
func NewEntityID() string {
	return uuid.NewString()
}

// MemoryScene keeps entities in memory in insertion order.
type MemoryScene struct {
	mu       sync.RWMutex
	order    []string
	entities map[string]Entity
}

// NewMemoryScene creates an empty scene.
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{entities: make(map[string]Entity)}
}

// Upsert adds or replaces an entity.
func (s *MemoryScene) Upsert(e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity id must not be empty")
	}
	e.Positions = slices.Clone(e.Positions)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entities[e.ID] = e
	return nil
}

// Remove deletes an entity. Unknown ids are ignored.
func (s *MemoryScene) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; !ok {
		return nil
	}
	delete(s.entities, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return nil
}

// Entities lists a layer's entities in insertion order.
func (s *MemoryScene) Entities(layer Layer) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entity
	for _, id := range s.order {
		if e := s.entities[id]; e.Layer == layer {
			e.Positions = slices.Clone(e.Positions)
			out = append(out, e)
		}
	}
	return out
}

// Get returns a single entity.
func (s *MemoryScene) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}
