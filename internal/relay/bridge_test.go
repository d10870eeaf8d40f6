package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bridgeResult struct {
	res *Response
	err error
}

func startBridge(ctx context.Context, r *Relay, kind RequestKind, fields map[string]any) <-chan bridgeResult {
	out := make(chan bridgeResult, 1)
	go func() {
		res, err := r.Bridge(ctx, kind, fields)
		out <- bridgeResult{res, err}
	}()
	return out
}

func awaitResult(t *testing.T, ch <-chan bridgeResult) bridgeResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("bridge call did not return")
		return bridgeResult{}
	}
}

// lastRequest returns the bridge request c most recently received.
func lastRequest(t *testing.T, c *fakeClient, kind RequestKind) map[string]any {
	t.Helper()
	reqs := c.ofType(t, kind.RequestType())
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1]
}

func TestBridgeAnswered(t *testing.T) {
	r, clk := newTestRelay(t)
	writer := connect(r, "writer")
	viewer := connect(r, "viewer")

	done := startBridge(context.Background(), r, RequestPinValidation, map[string]any{"pin": "123456", "pinType": "referee"})
	clk.WaitForTimers(1)

	req := lastRequest(t, writer, RequestPinValidation)
	assert.Equal(t, "123456", req["pin"])
	assert.Equal(t, "referee", req["pinType"])
	assert.Len(t, viewer.ofType(t, RequestPinValidation.RequestType()), 1, "request goes to every connection")

	send(r, writer, map[string]any{
		"type":      RequestPinValidation.ResponseType(),
		"requestId": req["requestId"],
		"success":   true,
		"match":     map[string]any{"id": 42, "refereePin": "123456", "status": "live"},
		"fullData":  matchData(42, nil),
	})

	got := awaitResult(t, done)
	require.NoError(t, got.err)
	assert.True(t, got.res.Success)
	assert.JSONEq(t, `{"id":42,"refereePin":"123456","status":"live"}`, string(got.res.Match))

	// The answer is cached for the next lookup.
	s, ok := r.FindByPin(PinReferee, "123456")
	require.True(t, ok)
	assert.Equal(t, MatchID("42"), s.MatchID)

	// Advancing past the deadline must not produce a second outcome.
	assert.Zero(t, clk.PendingCount())
	clk.Advance(time.Minute)
	assert.Zero(t, r.Stats().PendingRequests)
}

func TestBridgeTimeout(t *testing.T) {
	r, clk := newTestRelay(t)
	writer := connect(r, "writer")

	done := startBridge(context.Background(), r, RequestMatchData, map[string]any{"matchId": 42})
	clk.WaitForTimers(1)
	req := lastRequest(t, writer, RequestMatchData)

	clk.Advance(4 * time.Second)
	select {
	case <-done:
		t.Fatal("resolved before the deadline")
	default:
	}

	clk.Advance(time.Second)
	got := awaitResult(t, done)
	assert.ErrorIs(t, got.err, ErrBridgeTimeout)
	assert.Nil(t, got.res)

	// A late answer is dropped and not cached.
	send(r, writer, map[string]any{
		"type":      RequestMatchData.ResponseType(),
		"requestId": req["requestId"],
		"success":   true,
		"matchId":   42,
		"data":      matchData(42, nil),
	})
	_, ok := r.Snapshot("42")
	assert.False(t, ok)
	assert.Zero(t, r.Stats().PendingRequests)
}

func TestBridgeContextCancel(t *testing.T) {
	r, clk := newTestRelay(t)
	connect(r, "writer")

	ctx, cancel := context.WithCancel(context.Background())
	done := startBridge(ctx, r, RequestGameNumber, map[string]any{"gameNumber": "7"})
	clk.WaitForTimers(1)
	cancel()

	got := awaitResult(t, done)
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Zero(t, clk.PendingCount(), "timer is stopped")
	assert.Zero(t, r.Stats().PendingRequests)
}

func TestBridgeIgnoresMismatchedKind(t *testing.T) {
	r, clk := newTestRelay(t)
	writer := connect(r, "writer")

	done := startBridge(context.Background(), r, RequestMatchUpdate, map[string]any{"matchId": 42})
	clk.WaitForTimers(1)
	req := lastRequest(t, writer, RequestMatchUpdate)

	send(r, writer, map[string]any{
		"type":      RequestPinValidation.ResponseType(),
		"requestId": req["requestId"],
		"success":   true,
	})
	assert.Equal(t, 1, r.Stats().PendingRequests)

	send(r, writer, map[string]any{
		"type":      RequestMatchUpdate.ResponseType(),
		"requestId": req["requestId"],
		"success":   false,
		"error":     "Match is final",
	})
	got := awaitResult(t, done)
	require.NoError(t, got.err)
	assert.False(t, got.res.Success)
	assert.Equal(t, "Match is final", got.res.Error)
}

func TestBridgeCloseFailsPending(t *testing.T) {
	r, clk := newTestRelay(t)
	writer := connect(r, "writer")

	done := startBridge(context.Background(), r, RequestMatchData, map[string]any{"matchId": 1})
	clk.WaitForTimers(1)
	r.Close()

	got := awaitResult(t, done)
	assert.ErrorIs(t, got.err, ErrRelayClosed)
	assert.True(t, writer.isClosed())

	_, err := r.Bridge(context.Background(), RequestMatchData, nil)
	assert.ErrorIs(t, err, ErrRelayClosed)
}

func TestBridgeRequestIDsAreUnique(t *testing.T) {
	r, clk := newTestRelay(t)
	writer := connect(r, "writer")

	startBridge(context.Background(), r, RequestMatchData, nil)
	startBridge(context.Background(), r, RequestMatchData, nil)
	clk.WaitForTimers(2)

	reqs := writer.ofType(t, RequestMatchData.RequestType())
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0]["requestId"], reqs[1]["requestId"])

	clk.Advance(5 * time.Second)
}

// requestSink hands every frame it is sent to a channel.
type requestSink struct {
	frames chan []byte
}

func (s *requestSink) ID() string { return "writer" }

func (s *requestSink) Send(frame []byte) error {
	select {
	case s.frames <- append([]byte(nil), frame...):
		return nil
	default:
		return ErrSlowClient
	}
}

func (s *requestSink) Close() {}

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

// A real timer and duplicated peer answers race for every request; each
// call must still resolve exactly once.
func TestBridgeRealTimerRacesResponses(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(Options{BridgeTimeout: 2 * time.Millisecond, Registerer: reg, Logger: zerolog.Nop()})
	t.Cleanup(r.Close)

	sink := &requestSink{frames: make(chan []byte, 16)}
	r.Register(sink)
	<-sink.frames // greeting

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			var frame []byte
			select {
			case <-stop:
				return
			case frame = <-sink.frames:
			}
			var req struct {
				Type      string `json:"type"`
				RequestID string `json:"requestId"`
			}
			if json.Unmarshal(frame, &req) != nil || req.Type != RequestMatchData.RequestType() {
				continue
			}
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			answer, _ := json.Marshal(map[string]any{
				"type":      RequestMatchData.ResponseType(),
				"requestId": req.RequestID,
				"success":   true,
			})
			r.HandleMessage(sink, answer)
			r.HandleMessage(sink, answer)
		}
	}()

	const calls = 300
	answered, timedOut := 0, 0
	for i := 0; i < calls; i++ {
		res, err := r.Bridge(context.Background(), RequestMatchData, map[string]any{"matchId": "race"})
		switch {
		case err == nil:
			require.True(t, res.Success)
			answered++
		case errors.Is(err, ErrBridgeTimeout):
			require.Nil(t, res)
			timedOut++
		default:
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, calls, answered+timedOut)
	assert.Zero(t, r.Stats().PendingRequests)
	assert.Equal(t, float64(calls), counterSum(t, reg, "relay_bridge_requests_total"))
	t.Logf("answered %d, timed out %d", answered, timedOut)
}
