package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(Dependencies{Logger: logger})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":WAYPOINT:RENAME:", func(e Event) (any, error) {
		got = e
		return "renamed", nil
	})

	result, err := d.Dispatch(Event{Command: ":WAYPOINT:RENAME:", Args: []string{"Waypoint#1", "Home"}})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got.Arg(1) != "Home" {
		t.Errorf("expected second arg 'Home', got %q", got.Arg(1))
	}
	if got.Arg(5) != "" {
		t.Errorf("expected empty arg out of range, got %q", got.Arg(5))
	}
	if got.Timestamp.IsZero() {
		t.Error("expected dispatch to stamp the event")
	}
	if result != "renamed" {
		t.Errorf("expected 'renamed', got %v", result)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})

	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(":MISSION:BATCH:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":MISSION:BATCH:"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Block the handler so queue fills up
	block := make(chan struct{})
	d.Register(":FULL:", func(e Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(2))

	d.Dispatch(Event{Command: ":FULL:"}) // being processed
	d.Dispatch(Event{Command: ":FULL:"}) // queued
	d.Dispatch(Event{Command: ":FULL:"}) // queued

	_, err := d.Dispatch(Event{Command: ":FULL:"})

	if err == nil {
		t.Error("expected error when queue is full")
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	d.Register(":BLOCKING:", func(e Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":BLOCKING:"})
	d.Dispatch(Event{Command: ":BLOCKING:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":BLOCKING:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
}

func TestDispatcher_BufferedResultCallback(t *testing.T) {
	var mu sync.Mutex
	var results []string

	d, err := New(Dependencies{OnResult: func(e Event, result any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results = append(results, e.Arg(0)+":"+err.Error())
			return
		}
		results = append(results, fmt.Sprintf("%s:%v", e.Arg(0), result))
	}})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	d.Register(":MISSION:COMMAND:", func(e Event) (any, error) {
		if e.Arg(0) == "bad" {
			return nil, errors.New("rejected")
		}
		return "sent", nil
	}, Buffered(4))

	d.Dispatch(Event{Command: ":MISSION:COMMAND:", Args: []string{"survey"}})
	d.Dispatch(Event{Command: ":MISSION:COMMAND:", Args: []string{"bad"}})

	// Close drains the queue before returning.
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 || results[0] != "survey:sent" || results[1] != "bad:rejected" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestDispatcher_CloseRejectsNewEvents(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(":WAYPOINT:LIST:", func(e Event) (any, error) { return nil, nil })

	d.Close()
	d.Close()

	if _, err := d.Dispatch(Event{Command: ":WAYPOINT:LIST:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":LOGGED:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Event{Command: ":LOGGED:", Args: []string{"a", "b"}, Source: "cli"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":ERROR:", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(Event{Command: ":ERROR:"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if len(msg) >= 5 && msg[:5] == "ERROR" {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":WAYPOINT:DELETE:", func(e Event) (any, error) { return nil, nil })
	d.Register(":SYNC:FORCE:", func(e Event) (any, error) { return nil, nil })

	if !d.HasHandler(":SYNC:FORCE:") {
		t.Error("expected handler to exist")
	}
	if d.HasHandler(":NOT_EXISTS:") {
		t.Error("expected handler to not exist")
	}

	cmds := d.Commands()
	if len(cmds) != 2 || cmds[0] != ":SYNC:FORCE:" || cmds[1] != ":WAYPOINT:DELETE:" {
		t.Errorf("unexpected commands: %v", cmds)
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register(":COMBINED:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: ":COMBINED:"})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "queued" {
		t.Errorf("expected 'queued', got %v", result)
	}

	wg.Wait()

	if processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", processed.Load())
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	d, err := New(Dependencies{Meter: provider.Meter("test")})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	d.Register(":OK:", func(e Event) (any, error) { return nil, nil })
	d.Register(":FAIL:", func(e Event) (any, error) { return nil, errors.New("no") })

	d.Dispatch(Event{Command: ":OK:"})
	d.Dispatch(Event{Command: ":OK:"})
	d.Dispatch(Event{Command: ":FAIL:"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	if sums["dispatcher.commands.processed"] != 3 {
		t.Errorf("expected 3 processed, got %d", sums["dispatcher.commands.processed"])
	}
	if sums["dispatcher.commands.failed"] != 1 {
		t.Errorf("expected 1 failed, got %d", sums["dispatcher.commands.failed"])
	}
}
