// Package api talks to the remote mission-planning backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
)

// ErrBusy is returned when a request is started while another is in flight.
var ErrBusy = errors.New("another request is in flight")

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// State is the per-request lifecycle: Idle, Sending, then Succeeded or
// Failed, then back to Idle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is the outcome of one request.
type Result struct {
	Status int    // HTTP status, 0 if no response
	Body   []byte // raw response body
	Err    error  // wraps core.ErrNetwork or core.ErrMalformedResponse
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Client handles communication with the mission backend.
type Client struct {
	baseURL    string
	cfg        config.APIConfig
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	state State
	hooks []func(State)
}

// New creates a new API client.
func New(cfg config.APIConfig, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.ServerURL, "/"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// State returns the current request state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnState registers a callback for every state transition.
func (c *Client) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) transition(from, to State) bool {
	c.mu.Lock()
	if from != to && c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	hooks := c.hooks
	c.mu.Unlock()

	for _, h := range hooks {
		h(to)
	}
	return true
}

// Healthcheck checks if the mission backend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.cfg.HealthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: healthcheck request failed: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthcheck returned status %d", core.ErrNetwork, resp.StatusCode)
	}
	return nil
}

// SendCommand posts free text with the selected waypoints' full geometry and
// the bare names of context waypoints.
func (c *Client) SendCommand(ctx context.Context, text string, selected []core.Waypoint, contextNames []string) Result {
	if selected == nil {
		selected = []core.Waypoint{}
	}
	return c.post(ctx, c.cfg.CommandPath, protocol.CommandRequest{
		Command:          text,
		Waypoints:        selected,
		ContextWaypoints: contextNames,
	})
}

// SendWaypointBatch posts a named batch of flattened points. contextNames
// lists the waypoints the points were taken from.
func (c *Client) SendWaypointBatch(ctx context.Context, missionName string, ws []core.Waypoint, contextNames []string) Result {
	return c.post(ctx, c.cfg.BatchPath, protocol.BatchRequest{
		Name:             missionName,
		Waypoints:        protocol.Flatten(ws),
		ContextWaypoints: contextNames,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) Result {
	if !c.transition(StateIdle, StateSending) {
		return Result{Err: ErrBusy}
	}

	res := c.do(ctx, path, payload)

	final := StateSucceeded
	if res.Err != nil {
		final = StateFailed
		c.log.Warn("Mission backend request failed", "path", path, "status", res.Status, "error", res.Err)
	} else {
		c.log.Info("Mission backend request succeeded", "path", path, "status", res.Status, "bytes", len(res.Body))
	}
	c.transition(StateSending, final)
	c.transition(final, StateIdle)
	return res
}

func (c *Client) do(ctx context.Context, path string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", core.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	res := Result{Status: resp.StatusCode, Body: data}
	if err != nil {
		res.Err = fmt.Errorf("%w: reading response: %v", core.ErrNetwork, err)
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("%w: status %d", core.ErrNetwork, resp.StatusCode)
		return res
	}
	if len(bytes.TrimSpace(data)) > 0 && !json.Valid(data) {
		res.Err = fmt.Errorf("%w: response is not JSON", core.ErrMalformedResponse)
	}
	return res
}
