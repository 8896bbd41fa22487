package scene

import (
	"testing"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge() (*Bridge, *MemoryScene) {
	s := NewMemoryScene()
	return NewBridge(s, Options{}, nil), s
}

func triangle() []core.Coordinate {
	return []core.Coordinate{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 1}, {Latitude: 1, Longitude: 1}}
}

func TestRenderPerKind(t *testing.T) {
	b, s := newTestBridge()
	ws := []core.Waypoint{
		{ID: "wp_1", Name: "Poly", Kind: core.KindPolygon, Coordinates: triangle()},
		{ID: "wp_2", Name: "Rect", Kind: core.KindRectangle, Coordinates: triangle()},
		{ID: "wp_3", Name: "Circ", Kind: core.KindCircle, Coordinates: triangle()},
		{ID: "wp_4", Name: "Pt", Kind: core.KindPoint, Coordinates: triangle()[:1]},
	}
	for _, w := range ws {
		id, err := b.Render(w)
		require.NoError(t, err)
		e, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, w.Name, e.Label)
		assert.Equal(t, w.ID, e.WaypointID)
		assert.Equal(t, LayerWaypoints, e.Layer)
		if w.Kind == core.KindPoint {
			assert.Equal(t, ShapePoint, e.Shape)
		} else {
			assert.Equal(t, ShapePolygon, e.Shape)
		}
	}
	assert.Equal(t, 4, b.RenderedCount())

	_, err := b.Render(core.Waypoint{Kind: "blob"})
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}

func TestRenderIsIdempotentPerEntity(t *testing.T) {
	b, _ := newTestBridge()
	w := core.Waypoint{ID: "wp_1", Name: "Poly", Kind: core.KindPolygon, Coordinates: triangle(), SceneEntityID: "ent-1"}

	for range 3 {
		id, err := b.Render(w)
		require.NoError(t, err)
		assert.Equal(t, "ent-1", id)
	}
	assert.Equal(t, 1, b.RenderedCount())
}

func TestRestoreAllAssignsIDsAndPrunes(t *testing.T) {
	b, s := newTestBridge()
	require.NoError(t, s.Upsert(Entity{ID: "stale", Layer: LayerWaypoints}))
	require.NoError(t, s.Upsert(Entity{ID: "drone", Layer: LayerDrone}))

	ws := []core.Waypoint{
		{ID: "wp_1", Name: "A", Kind: core.KindPoint, Coordinates: triangle()[:1], SceneEntityID: "ent-a"},
		{ID: "wp_2", Name: "B", Kind: core.KindPolygon, Coordinates: triangle()},
	}
	out, err := b.RestoreAll(ws)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ent-a", out[0].SceneEntityID)
	assert.NotEmpty(t, out[1].SceneEntityID)
	assert.Empty(t, ws[1].SceneEntityID, "input must not be mutated")

	assert.Equal(t, 2, b.RenderedCount())
	_, ok := s.Get("stale")
	assert.False(t, ok)
	assert.Len(t, s.Entities(LayerDrone), 1)
}

func TestRestoreAllReportsBadKinds(t *testing.T) {
	b, _ := newTestBridge()
	out, err := b.RestoreAll([]core.Waypoint{
		{ID: "wp_1", Name: "A", Kind: core.KindPoint, Coordinates: triangle()[:1]},
		{ID: "wp_2", Name: "B", Kind: "blob"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidKind)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, b.RenderedCount())
}

func TestRemove(t *testing.T) {
	b, _ := newTestBridge()
	id, err := b.Render(core.Waypoint{ID: "wp_1", Name: "A", Kind: core.KindPoint, Coordinates: triangle()[:1]})
	require.NoError(t, err)
	require.NoError(t, b.Remove(id))
	require.NoError(t, b.Remove(""))
	assert.Zero(t, b.RenderedCount())
}

func TestRenderMissionReplacesPrevious(t *testing.T) {
	b, s := newTestBridge()
	path := []core.Coordinate{{Latitude: 0, Longitude: 0}, {Latitude: 0.5, Longitude: 0.5}, {Latitude: 1, Longitude: 1}}

	require.NoError(t, b.RenderMission(triangle(), path))
	mission := s.Entities(LayerMission)
	require.Len(t, mission, 4)
	assert.Equal(t, ShapePolygon, mission[0].Shape)
	assert.Equal(t, ShapePolyline, mission[1].Shape)
	assert.Equal(t, "Start", mission[2].Label)
	assert.Equal(t, path[0], mission[2].Positions[0])
	assert.Equal(t, "End", mission[3].Label)
	assert.Equal(t, path[2], mission[3].Positions[0])

	require.NoError(t, b.RenderMission(nil, path[:1]))
	mission = s.Entities(LayerMission)
	require.Len(t, mission, 1)
	assert.Equal(t, "Start", mission[0].Label)

	require.NoError(t, b.RenderMission(nil, nil))
	assert.Empty(t, s.Entities(LayerMission))
}

func TestUpdateDrone(t *testing.T) {
	b, s := newTestBridge()
	require.NoError(t, b.UpdateDrone(core.DroneStatus{Position: core.Coordinate{Latitude: 1, Longitude: 2, Altitude: 3}, Mode: "GUIDED"}))
	require.NoError(t, b.UpdateDrone(core.DroneStatus{Position: core.Coordinate{Latitude: 4, Longitude: 5}, Mode: "AUTO"}))

	drone := s.Entities(LayerDrone)
	require.Len(t, drone, 1)
	assert.Equal(t, "AUTO", drone[0].Label)
	assert.Equal(t, 4.0, drone[0].Positions[0].Latitude)
}
