package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"escoresheet/match-relay/internal/clock"
)

var testStart = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

// fakeClient records every frame it is sent.
type fakeClient struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFakeClient(id string) *fakeClient { return &fakeClient{id: id} }

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.fail {
		return ErrSlowClient
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) setFail(v bool) {
	c.mu.Lock()
	c.fail = v
	c.mu.Unlock()
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages decodes every recorded frame.
func (c *fakeClient) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

// ofType returns the recorded messages with the given type.
func (c *fakeClient) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newTestRelay(t *testing.T) (*Relay, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(testStart)
	r := New(Options{
		BridgeTimeout: 5 * time.Second,
		Clock:         clk,
		Location:      time.UTC,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(r.Close)
	return r, clk
}

// connect registers a client and discards its greeting.
func connect(r *Relay, id string) *fakeClient {
	c := newFakeClient(id)
	r.Register(c)
	c.reset()
	return c
}

func send(r *Relay, c Client, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	r.HandleMessage(c, b)
}

func matchData(id any, extra map[string]any) map[string]any {
	match := map[string]any{
		"id":          id,
		"status":      "live",
		"scheduledAt": "2026-03-14T18:00:00Z",
		"gameNumber":  "101",
		"refereePin":  "123456",
		"homeTeamPin": "222222",
		"awayTeamPin": "333333",
	}
	for k, v := range extra {
		match[k] = v
	}
	return map[string]any{
		"match":       match,
		"homeTeam":    map[string]any{"name": "Volley Lions"},
		"awayTeam":    map[string]any{"name": "Spike Hawks"},
		"homePlayers": []any{},
		"awayPlayers": []any{},
		"sets":        []any{},
		"events":      []any{},
	}
}

func publish(t *testing.T, r *Relay, id MatchID, data map[string]any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	snap, err := NewSnapshot(id, raw, "writer", testStart)
	require.NoError(t, err)
	r.Publish(snap, nil)
}
