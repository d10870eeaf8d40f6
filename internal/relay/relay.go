// Package relay keeps live match state in memory and moves it between
// the authoritative scoring session and the dashboards watching it.
//
// One Relay owns the connection registry, the per-match subscription
// sets, the snapshot store, the pending bridge requests and the
// main-instance slot. Connection goroutines, HTTP handlers and timer
// callbacks all go through a single mutex, and every inbound frame is
// handled to completion under it, so a read-modify-write of any table
// is never interleaved with another. Client sends made under the lock
// only enqueue, they never wait on the network.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"escoresheet/match-relay/internal/clock"
)

// Options configures a Relay. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	// BridgeTimeout bounds how long a bridged request waits for an
	// answer. Default 5s.
	BridgeTimeout time.Duration
	// Mode is reported to clients in the connect greeting. Default "local".
	Mode string
	// Clock drives timestamps and bridge timers. Default clock.Real().
	Clock clock.Clock
	// Location formats discovery date/times. Default time.Local.
	Location *time.Location
	Logger   zerolog.Logger

	// Registerer receives the relay's metrics. Nil keeps them
	// unregistered.
	Registerer prometheus.Registerer
}

// Relay is the match-state synchronization relay. Create it with New.
type Relay struct {
	opts    Options
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *relayMetrics

	mu        sync.Mutex
	clients   *registry
	subs      *subscriptions
	snapshots map[MatchID]*Snapshot
	pending   *pendingTable
	main      mainSlot
	closed    bool
	startedAt time.Time
}

func New(opts Options) *Relay {
	if opts.BridgeTimeout <= 0 {
		opts.BridgeTimeout = 5 * time.Second
	}
	if opts.Mode == "" {
		opts.Mode = "local"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Relay{
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger.With().Str("component", "relay").Logger(),
		metrics:   newRelayMetrics(opts.Registerer),
		clients:   newRegistry(),
		subs:      newSubscriptions(),
		snapshots: make(map[MatchID]*Snapshot),
		pending:   newPendingTable(),
		startedAt: opts.Clock.Now(),
	}
}

// Mode returns the deployment mode reported to clients.
func (r *Relay) Mode() string { return r.opts.Mode }

// Now returns the relay clock's current time.
func (r *Relay) Now() time.Time { return r.clock.Now() }

// Register adds c to the registry and greets it. A closed relay closes c
// straight away.
func (r *Relay) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		c.Close()
		return
	}
	if !r.clients.add(c) {
		return
	}
	r.metrics.connections.Set(float64(r.clients.len()))
	r.logger.Info().Str("client_id", c.ID()).Int("total", r.clients.len()).Msg("client connected")

	r.sendLocked(c, r.encode(connectedMessage{
		Type:      TypeConnected,
		ClientID:  c.ID(),
		Message:   "Connected to eScoresheet WebSocket server",
		Mode:      r.opts.Mode,
		Timestamp: r.clock.Now().UnixMilli(),
	}))
}

// Unregister removes c from the registry and from every subscription
// set. It is safe to call more than once.
func (r *Relay) Unregister(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unregisterLocked(c) {
		r.logger.Info().Str("client_id", c.ID()).Int("total", r.clients.len()).Msg("client disconnected")
	}
}

func (r *Relay) unregisterLocked(c Client) bool {
	r.subs.removeAll(c)
	if !r.clients.remove(c) {
		return false
	}
	r.metrics.connections.Set(float64(r.clients.len()))
	return true
}

// sendLocked delivers frame to c. A failed send counts as a disconnect:
// c is unregistered and closed, and the failure goes no further.
func (r *Relay) sendLocked(c Client, frame []byte) bool {
	if frame == nil {
		return false
	}
	if err := c.Send(frame); err != nil {
		r.metrics.sendFailures.Inc()
		r.logger.Warn().Err(err).Str("client_id", c.ID()).Msg("send failed, dropping client")
		r.unregisterLocked(c)
		c.Close()
		return false
	}
	return true
}

// Broadcast sends msg to every connection except exclude (which may be
// nil) and returns how many accepted it.
func (r *Relay) Broadcast(msg any, exclude Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(r.encode(msg), exclude)
}

func (r *Relay) broadcastLocked(frame []byte, exclude Client) int {
	sent := 0
	for _, c := range r.clients.snapshot() {
		if c == exclude {
			continue
		}
		if r.sendLocked(c, frame) {
			sent++
		}
	}
	return sent
}

// fanoutLocked sends frame to id's subscribers other than exclude. No
// subscribers is a normal state, not an error.
func (r *Relay) fanoutLocked(id MatchID, frame []byte, exclude Client) int {
	sent := 0
	for _, c := range r.subs.members(id) {
		if c == exclude {
			continue
		}
		if r.sendLocked(c, frame) {
			sent++
		}
	}
	return sent
}

// Subscribe adds c to id's subscribers. If a snapshot is stored for id,
// c immediately gets it as a match-full-data catch-up; otherwise it gets
// nothing until the writer next publishes. Subscribe reports whether a
// catch-up was sent.
func (r *Relay) Subscribe(id MatchID, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeLocked(id, c)
}

func (r *Relay) subscribeLocked(id MatchID, c Client) bool {
	if !r.clients.has(c) {
		return false
	}
	r.subs.add(id, c)
	r.logger.Debug().Str("client_id", c.ID()).Str("match_id", string(id)).Msg("client subscribed")

	snap, ok := r.snapshots[id]
	if !ok {
		return false
	}
	return r.sendLocked(c, r.encode(snapshotMessage{
		Type:    TypeMatchFullData,
		MatchID: id,
		Data:    snap.Data,
	}))
}

// RelayAction fans an incremental match event out to id's subscribers
// other than from. Actions are never stored: with nobody subscribed the
// action is simply dropped. A missing timestamp is stamped with the
// relay clock.
func (r *Relay) RelayAction(id MatchID, action, payload, timestamp json.RawMessage, from Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayActionLocked(id, action, payload, timestamp, from)
}

func (r *Relay) relayActionLocked(id MatchID, action, payload, timestamp json.RawMessage, from Client) int {
	if !present(timestamp) {
		timestamp = r.encode(r.clock.Now().UnixMilli())
	}
	if !present(payload) {
		payload = nil
	}
	return r.fanoutLocked(id, r.encode(actionMessage{
		Type:      TypeMatchAction,
		MatchID:   id,
		Action:    action,
		Data:      payload,
		Timestamp: timestamp,
		From:      clientID(from),
	}), from)
}

// Stats is a point-in-time view of the relay's tables.
type Stats struct {
	Connections     int
	Matches         int
	Rooms           int
	Subscriptions   map[MatchID]int
	PendingRequests int
	MainInstance    string
	StartedAt       time.Time
}

func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Connections:     r.clients.len(),
		Matches:         len(r.snapshots),
		Rooms:           r.subs.len(),
		Subscriptions:   r.subs.counts(),
		PendingRequests: r.pending.len(),
		MainInstance:    r.main.holder,
		StartedAt:       r.startedAt,
	}
}

// MatchIDs lists the stored matches in id order.
func (r *Relay) MatchIDs() []MatchID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedIDs(r.snapshots)
}

// Close fails every pending request with ErrRelayClosed and closes every
// connection. Later calls to Register close the new client immediately.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for _, p := range r.pending.drain() {
		if p.resolve(outcome{err: ErrRelayClosed}) {
			p.timer.Stop()
			r.metrics.observeBridge(p, "closed", r.clock.Now())
		}
	}
	r.metrics.pending.Set(float64(r.pending.len()))

	for _, c := range r.clients.snapshot() {
		r.unregisterLocked(c)
		c.Close()
	}
	r.logger.Info().Msg("relay closed")
}

func (r *Relay) encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode outbound message")
		return nil
	}
	return b
}

func clientID(c Client) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
