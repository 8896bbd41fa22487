package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gcsplan/planner/internal/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeReplies(t *testing.T, out string) []replyLine {
	t.Helper()
	var replies []replyLine
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r replyLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		replies = append(replies, r)
	}
	return replies
}

func TestServeCommands(t *testing.T) {
	var buf bytes.Buffer
	out := newResponder(&buf)
	d, err := dispatcher.New(dispatcher.Dependencies{OnResult: out.asyncResult})
	require.NoError(t, err)

	d.Register(":ECHO:", func(e dispatcher.Event) (any, error) {
		return strings.Join(e.Args, ","), nil
	})
	d.Register(":FAIL:", func(e dispatcher.Event) (any, error) {
		return nil, errors.New("boom")
	})
	d.Register(":LATER:", func(e dispatcher.Event) (any, error) {
		return "done", nil
	}, dispatcher.Buffered(1))

	in := strings.NewReader(strings.Join([]string{
		`{"id":"1","command":":ECHO:","args":["a","b"]}`,
		``,
		`not json`,
		`{"id":"2","command":":FAIL:"}`,
		`{"id":"3","command":":NOPE:"}`,
		`{"id":"4","command":":LATER:"}`,
	}, "\n"))

	require.NoError(t, serveCommands(context.Background(), in, out, d))
	d.Close()

	replies := decodeReplies(t, buf.String())
	require.Len(t, replies, 6)
	assert.Equal(t, replyLine{ID: "1", Command: ":ECHO:", Result: "a,b"}, replies[0])
	assert.Contains(t, replies[1].Error, "invalid command line")
	assert.Equal(t, "boom", replies[2].Error)
	assert.Contains(t, replies[3].Error, "unknown command")
	// the async reply may overtake the "queued" one
	assert.ElementsMatch(t, []replyLine{
		{ID: "4", Command: ":LATER:", Result: "queued"},
		{ID: "4", Command: ":LATER:", Result: "done", Async: true},
	}, replies[4:])
}

type blockingReader struct{ release chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.release
	return 0, errors.New("released")
}

func TestServeCommandsStopsOnCancel(t *testing.T) {
	d, err := dispatcher.New(dispatcher.Dependencies{})
	require.NoError(t, err)
	defer d.Close()

	r := blockingReader{release: make(chan struct{})}
	defer close(r.release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveCommands(ctx, r, newResponder(&bytes.Buffer{}), d) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serveCommands did not return after cancel")
	}
}
