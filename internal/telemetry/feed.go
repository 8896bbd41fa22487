// Package telemetry reads the live drone status feed over WebSocket and
// applies validated samples to the scene.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
	ws "github.com/gorilla/websocket"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	readLimit      = 1 << 20
)

// Sink receives validated samples. scene.Bridge implements it.
type Sink interface {
	UpdateDrone(status core.DroneStatus) error
}

// Recorder optionally stores samples. influx.Manager implements it.
type Recorder interface {
	RecordDroneStatus(status core.DroneStatus) error
}

// Dependencies holds all dependencies for the feed.
type Dependencies struct {
	URL      string
	Sink     Sink
	Recorder Recorder // optional
	Logger   *slog.Logger

	// InitialBackoff and MaxBackoff bound reconnect delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Feed maintains the WebSocket connection and dispatches samples.
type Feed struct {
	deps   Dependencies
	log    *slog.Logger
	dialer *ws.Dialer
	now    func() time.Time

	received atomic.Int64
	dropped  atomic.Int64

	mu   sync.RWMutex
	last core.DroneStatus
	seen bool
}

// New creates a feed.
func New(deps Dependencies) *Feed {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.InitialBackoff <= 0 {
		deps.InitialBackoff = initialBackoff
	}
	if deps.MaxBackoff <= 0 {
		deps.MaxBackoff = maxBackoff
	}
	return &Feed{
		deps:   deps,
		log:    deps.Logger.With("component", "telemetry"),
		dialer: &ws.Dialer{HandshakeTimeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Received counts applied samples.
func (f *Feed) Received() int64 { return f.received.Load() }

// Dropped counts rejected messages.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

// Last returns the most recent applied sample.
func (f *Feed) Last() (core.DroneStatus, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.seen
}

// Run connects and reads until ctx is done, reconnecting with exponential
// backoff. It returns nil on cancellation.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.deps.InitialBackoff
	for attempt := 1; ; attempt++ {
		conn, _, err := f.dialer.DialContext(ctx, f.deps.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warn("Telemetry dial failed", "attempt", attempt, "backoff", backoff, "error", err)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, f.deps.MaxBackoff)
			continue
		}

		f.log.Info("Telemetry connected", "url", f.deps.URL)
		attempt, backoff = 0, f.deps.InitialBackoff

		err = f.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("Telemetry connection lost", "error", err)
		if !sleep(ctx, backoff) {
			return nil
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *ws.Conn) error {
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.Handle(message)
	}
}

// Handle decodes, validates and applies one message. Bad messages are
// dropped with a warning.
func (f *Feed) Handle(message []byte) {
	status, err := protocol.DecodeTelemetry(message, f.now())
	if err != nil {
		f.dropped.Add(1)
		f.log.Warn("Dropping telemetry message", "error", err)
		return
	}

	if err := f.deps.Sink.UpdateDrone(status); err != nil {
		f.log.Warn("Failed to apply telemetry", "error", err)
		return
	}
	f.received.Add(1)

	f.mu.Lock()
	f.last, f.seen = status, true
	f.mu.Unlock()

	if f.deps.Recorder != nil {
		if err := f.deps.Recorder.RecordDroneStatus(status); err != nil {
			f.log.Debug("Failed to record telemetry", "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// String describes the feed for logs.
func (f *Feed) String() string {
	return fmt.Sprintf("telemetry(%s)", f.deps.URL)
}
