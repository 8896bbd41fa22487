package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	statuses []core.DroneStatus
	err      error
}

func (s *recordingSink) UpdateDrone(st core.DroneStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.statuses = append(s.statuses, st)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

type recordingRecorder struct {
	mu sync.Mutex
	n  int
}

func (r *recordingRecorder) RecordDroneStatus(core.DroneStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return nil
}

// feedServer sends each batch of messages on its own connection, then
// closes it. Once batches run out the last connection is held open.
func feedServer(t *testing.T, batches ...[]string) *httptest.Server {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var mu sync.Mutex
	conns := 0

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		mu.Lock()
		i := conns
		conns++
		mu.Unlock()

		if i < len(batches) {
			for _, m := range batches[i] {
				if err := c.WriteMessage(ws.TextMessage, []byte(m)); err != nil {
					return
				}
			}
			if i < len(batches)-1 {
				return
			}
		}
		// hold until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

const (
	good    = `{"drone_status":{"current_position":{"lat":47.1,"lon":8.2,"alt":120},"mode":"AUTO"}}`
	badLat  = `{"drone_status":{"current_position":{"lat":147.1,"lon":8.2,"alt":120},"mode":"AUTO"}}`
	missing = `{"drone_status":{"mode":"AUTO"}}`
	garbage = `not json`
)

func TestHandle(t *testing.T) {
	sink := &recordingSink{}
	rec := &recordingRecorder{}
	f := New(Dependencies{Sink: sink, Recorder: rec})

	f.Handle([]byte(good))
	f.Handle([]byte(badLat))
	f.Handle([]byte(missing))
	f.Handle([]byte(garbage))

	assert.Equal(t, int64(1), f.Received())
	assert.Equal(t, int64(3), f.Dropped())
	assert.Equal(t, 1, rec.n)

	last, ok := f.Last()
	require.True(t, ok)
	assert.Equal(t, "AUTO", last.Mode)
	assert.Equal(t, 120.0, last.Position.Altitude)
}

func TestHandleSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("scene gone")}
	f := New(Dependencies{Sink: sink})
	f.Handle([]byte(good))
	assert.Zero(t, f.Received())
	_, ok := f.Last()
	assert.False(t, ok)
}

func TestRunReadsAndReconnects(t *testing.T) {
	srv := feedServer(t, []string{good, badLat}, []string{good})
	defer srv.Close()

	sink := &recordingSink{}
	f := New(Dependencies{
		URL:            wsURL(srv),
		Sink:           sink,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), f.Dropped())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRetriesDial(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	f := New(Dependencies{URL: url, Sink: &recordingSink{}, InitialBackoff: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, f.Run(ctx))
}
