package relay

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"escoresheet/match-relay/internal/clock"
)

// RequestKind names one kind of question the bridge can put to the
// authoritative writer.
type RequestKind string

const (
	RequestPinValidation RequestKind = "pin-validation"
	RequestMatchData     RequestKind = "match-data"
	RequestGameNumber    RequestKind = "game-number"
	RequestMatchUpdate   RequestKind = "match-update"
)

func (k RequestKind) RequestType() string  { return string(k) + "-request" }
func (k RequestKind) ResponseType() string { return string(k) + "-response" }

// kindForResponse maps an inbound response type back to its kind.
func kindForResponse(typ string) (RequestKind, bool) {
	for _, k := range []RequestKind{RequestPinValidation, RequestMatchData, RequestGameNumber, RequestMatchUpdate} {
		if k.ResponseType() == typ {
			return k, true
		}
	}
	return "", false
}

// Response is what the writer sent back for one bridged request. Success
// false with Error set is an application-level rejection and is passed
// to the caller as is.
type Response struct {
	RequestID string
	Success   bool
	Error     string
	MatchID   MatchID
	Match     json.RawMessage
	Data      json.RawMessage
	FullData  json.RawMessage
}

type outcome struct {
	res *Response
	err error
}

// PendingRequest is one in-flight bridged call. It resolves exactly
// once: the first of peer response, timeout, caller cancellation or
// relay shutdown wins the compare-and-swap and every later attempt is a
// no-op.
type PendingRequest struct {
	ID      string
	Kind    RequestKind
	Started time.Time

	resolved atomic.Bool
	reply    chan outcome
	timer    *clock.Timer
}

func newPendingRequest(id string, kind RequestKind, started time.Time) *PendingRequest {
	return &PendingRequest{
		ID:      id,
		Kind:    kind,
		Started: started,
		reply:   make(chan outcome, 1),
	}
}

func (p *PendingRequest) resolve(o outcome) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	p.reply <- o
	return true
}

// pendingTable indexes in-flight requests by correlation id.
type pendingTable struct {
	requests map[string]*PendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{requests: make(map[string]*PendingRequest)}
}

func (t *pendingTable) add(p *PendingRequest) { t.requests[p.ID] = p }

func (t *pendingTable) get(id string) (*PendingRequest, bool) {
	p, ok := t.requests[id]
	return p, ok
}

func (t *pendingTable) remove(id string) { delete(t.requests, id) }

// drain empties the table and returns what was in it.
func (t *pendingTable) drain() []*PendingRequest {
	out := make([]*PendingRequest, 0, len(t.requests))
	for id, p := range t.requests {
		out = append(out, p)
		delete(t.requests, id)
	}
	return out
}

func (t *pendingTable) len() int { return len(t.requests) }
