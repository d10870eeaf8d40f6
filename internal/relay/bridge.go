package relay

import (
	"context"
	"errors"
	"fmt"

	"escoresheet/match-relay/pkg/uid"
)

var (
	// ErrBridgeTimeout means no connection answered a bridged request
	// before its deadline.
	ErrBridgeTimeout = errors.New("relay: no response from the main scoresheet")
	// ErrRelayClosed is returned once the relay has shut down.
	ErrRelayClosed = errors.New("relay: closed")
)

// Bridge broadcasts a kind request carrying fields to every connection
// and waits for the correlated response. It is only used when the relay
// has no cached answer. The returned error is ErrBridgeTimeout when no
// answer arrives within the bridge timeout, or ctx's error when the
// caller gives up first.
func (r *Relay) Bridge(ctx context.Context, kind RequestKind, fields map[string]any) (*Response, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRelayClosed
	}

	now := r.clock.Now()
	p := newPendingRequest(uid.RequestID(kind.RequestType(), now), kind, now)
	r.pending.add(p)
	r.metrics.pending.Set(float64(r.pending.len()))

	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = kind.RequestType()
	msg["requestId"] = p.ID
	sent := r.broadcastLocked(r.encode(msg), nil)

	id := p.ID
	p.timer = r.clock.AfterFunc(r.opts.BridgeTimeout, func() {
		r.finish(id, outcome{err: ErrBridgeTimeout})
	})
	r.mu.Unlock()

	r.logger.Debug().
		Str("request_id", id).
		Str("kind", string(kind)).
		Int("connections", sent).
		Msg("bridge request broadcast")

	select {
	case o := <-p.reply:
		return o.res, o.err
	case <-ctx.Done():
		r.finish(id, outcome{err: fmt.Errorf("bridge %s: %w", kind, ctx.Err())})
		// Exactly one outcome is ever sent, whoever won.
		o := <-p.reply
		return o.res, o.err
	}
}

// finish resolves a pending request from the timer or the caller side.
// It is a no-op when the request already resolved.
func (r *Relay) finish(id string, o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending.get(id)
	if !ok || !p.resolve(o) {
		return
	}
	r.pending.remove(id)
	p.timer.Stop()
	r.metrics.pending.Set(float64(r.pending.len()))

	result := "abandoned"
	if errors.Is(o.err, ErrBridgeTimeout) {
		result = "timeout"
		r.logger.Warn().
			Str("request_id", id).
			Str("kind", string(p.Kind)).
			Dur("timeout", r.opts.BridgeTimeout).
			Msg("bridge request timed out")
	}
	r.metrics.observeBridge(p, result, r.clock.Now())
}

// resolveLocked delivers a peer response to its pending request. Late,
// duplicate and unknown responses are dropped silently.
func (r *Relay) resolveLocked(kind RequestKind, res *Response) bool {
	p, ok := r.pending.get(res.RequestID)
	if !ok {
		r.logger.Debug().
			Str("request_id", res.RequestID).
			Str("kind", string(kind)).
			Msg("response for unknown or expired request dropped")
		return false
	}
	if p.Kind != kind {
		r.logger.Warn().
			Str("request_id", res.RequestID).
			Str("expected", string(p.Kind)).
			Str("got", string(kind)).
			Msg("response kind does not match request")
		return false
	}
	if !p.resolve(outcome{res: res}) {
		return false
	}
	r.pending.remove(p.ID)
	p.timer.Stop()
	r.metrics.pending.Set(float64(r.pending.len()))

	result := "answered"
	if !res.Success {
		result = "rejected"
	}
	r.metrics.observeBridge(p, result, r.clock.Now())
	return true
}
