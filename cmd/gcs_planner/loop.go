package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/gcsplan/planner/internal/dispatcher"
)

// commandLine is one JSON line on the command stream.
type commandLine struct {
	ID      string   `json:"id,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// replyLine answers one commandLine. Async replies come from buffered
// handlers after the "queued" reply.
type replyLine struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Async   bool   `json:"async,omitempty"`
}

// responder serializes replies from the loop and from dispatcher workers.
type responder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newResponder(w io.Writer) *responder {
	return &responder{enc: json.NewEncoder(w)}
}

func (r *responder) write(line replyLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(line); err != nil {
		Logger.Warn("Failed to write reply", "command", line.Command, "error", err)
	}
}

// asyncResult is the dispatcher's ResultFunc.
func (r *responder) asyncResult(e dispatcher.Event, result any, err error) {
	line := replyLine{ID: e.Source, Command: e.Command, Result: result, Async: true}
	if err != nil {
		line.Error = err.Error()
		line.Result = nil
	}
	r.write(line)
}

// serveCommands dispatches JSON lines from in until EOF or ctx is done.
// The event Source carries the line id so async replies can be matched.
func serveCommands(ctx context.Context, in io.Reader, out *responder, d *dispatcher.Dispatcher) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 4<<20)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case raw := <-lines:
			handleLine(raw, out, d)
		}
	}
}

func handleLine(raw []byte, out *responder, d *dispatcher.Dispatcher) {
	if len(raw) == 0 {
		return
	}
	var cmd commandLine
	if err := json.Unmarshal(raw, &cmd); err != nil {
		out.write(replyLine{Error: "invalid command line: " + err.Error()})
		return
	}
	result, err := d.Dispatch(dispatcher.Event{Command: cmd.Command, Args: cmd.Args, Source: cmd.ID})
	reply := replyLine{ID: cmd.ID, Command: cmd.Command, Result: result}
	if err != nil {
		reply.Error = err.Error()
		reply.Result = nil
	}
	out.write(reply)
}
