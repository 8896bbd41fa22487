package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTelemetry_Valid(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	status, err := DecodeTelemetry([]byte(`{"drone_status": {"current_position": {"lat": 47.1, "lon": 8.5, "alt": 120}, "mode": "AUTO"}}`), now)
	require.NoError(t, err)

	assert.Equal(t, 47.1, status.Position.Latitude)
	assert.Equal(t, 8.5, status.Position.Longitude)
	assert.Equal(t, 120.0, status.Position.Altitude)
	assert.Equal(t, "AUTO", status.Mode)
	assert.Equal(t, now, status.ReceivedAt)
}

func TestDecodeTelemetry_Rejects(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"not json", `hello`},
		{"non-finite literal", `{"drone_status": {"current_position": {"lat": NaN, "lon": 1, "alt": 1}}}`},
		{"missing status", `{"battery": 80}`},
		{"missing position", `{"drone_status": {"mode": "HOLD"}}`},
		{"missing lon", `{"drone_status": {"current_position": {"lat": 1}}}`},
		{"latitude out of range", `{"drone_status": {"current_position": {"lat": 91, "lon": 1}}}`},
		{"longitude out of range", `{"drone_status": {"current_position": {"lat": 1, "lon": -181}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTelemetry([]byte(tt.msg), time.Now())
			assert.Error(t, err)
		})
	}
}
