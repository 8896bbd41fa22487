package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMissionResponse_Full(t *testing.T) {
	body := `{
		"waypoints": [{
			"name": "Survey area",
			"coordinates": [
				{"latitude": 1, "longitude": 2, "altitude": 30},
				{"lat": 1.5, "lon": 2.5},
				{"lat": 1.2, "lng": 2.9, "alt": 10}
			]
		}],
		"executed_functions": [
			["generate_path", {"waypoints": [
				{"position": {"lat": 1.1, "lon": 2.1, "alt": 40}},
				{"position": {"lat": 1.3, "lon": 2.3, "alt": 40}}
			]}]
		]
	}`

	resp, err := ParseMissionResponse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, []core.Coordinate{
		{Latitude: 1, Longitude: 2, Altitude: 30},
		{Latitude: 1.5, Longitude: 2.5},
		{Latitude: 1.2, Longitude: 2.9, Altitude: 10},
	}, resp.Area)
	assert.Equal(t, []core.Coordinate{
		{Latitude: 1.1, Longitude: 2.1, Altitude: 40},
		{Latitude: 1.3, Longitude: 2.3, Altitude: 40},
	}, resp.Path)
	assert.False(t, resp.Empty())
}

func TestParseMissionResponse_EmptyOrMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"empty arrays", `{"waypoints": [], "executed_functions": []}`},
		{"wrong types", `{"waypoints": "nope", "executed_functions": {"a": 1}}`},
		{"call without args", `{"executed_functions": [["generate_path"]]}`},
		{"area without coordinates", `{"waypoints": [{"name": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseMissionResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.True(t, resp.Empty())
		})
	}
}

func TestParseMissionResponse_SkipsBadPoints(t *testing.T) {
	body := `{"executed_functions": [["f", {"waypoints": [
		{"position": {"lat": 1, "lon": 2}},
		{"position": {"lat": null, "lon": 2}},
		{"nothing": true}
	]}]]}`

	resp, err := ParseMissionResponse([]byte(body))
	require.NoError(t, err)
	assert.Len(t, resp.Path, 1)
}

func TestParseMissionResponse_NotJSON(t *testing.T) {
	_, err := ParseMissionResponse([]byte("<html>502</html>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedResponse))
}

func TestBatchRequest_FieldNames(t *testing.T) {
	req := BatchRequest{
		Name:      "Mission A",
		Waypoints: Flatten([]core.Waypoint{{Coordinates: []core.Coordinate{{Latitude: 1, Longitude: 2, Altitude: 3}}}}),
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"waypoints name": "Mission A", "waypoints": [{"lat": 1, "lon": 2, "alt": 3}]}`, string(data))
}

func TestFlatten_AcrossWaypoints(t *testing.T) {
	ws := []core.Waypoint{
		{Coordinates: []core.Coordinate{{Latitude: 1}, {Latitude: 2}, {Latitude: 3}}},
		{Coordinates: []core.Coordinate{{Latitude: 4}}},
	}
	points := Flatten(ws)
	require.Len(t, points, 4)
	assert.Equal(t, 4.0, points[3].Lat)
}
