package relay

import (
	"encoding/json"
)

// HandleMessage processes one frame received from c. The whole frame is
// handled under the relay lock, so frames from different connections
// never interleave their table updates. Frames from a single connection
// must be passed in the order they were received.
func (r *Relay) HandleMessage(c Client, frame []byte) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil || in.Type == "" {
		r.metrics.inbound.WithLabelValues("invalid").Inc()
		r.logger.Debug().Err(err).Str("client_id", clientID(c)).Msg("unparseable frame")
		r.replyError(c, "Invalid message format")
		return
	}
	r.metrics.inbound.WithLabelValues(messageLabel(in.Type)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.clients.has(c) {
		// Already dropped; its late frames must not touch the tables.
		return
	}

	switch in.Type {
	case TypeSyncMatchData:
		r.handleSyncLocked(c, &in)
	case TypeDeleteMatch:
		if in.MatchID == "" {
			r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: "Match ID required"}))
			return
		}
		r.deleteLocked(in.MatchID)
	case TypeClearAllMatches:
		r.clearAllLocked(in.KeepMatchID)
	case TypeSubscribeMatch:
		if in.MatchID == "" {
			r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: "Match ID required"}))
			return
		}
		r.subscribeLocked(in.MatchID, c)
	case TypeMatchAction:
		if in.MatchID == "" || !present(in.Action) {
			return
		}
		payload := in.ActionData
		if !present(payload) {
			payload = in.Payload
		}
		if !present(payload) {
			payload = in.Data
		}
		r.relayActionLocked(in.MatchID, in.Action, payload, in.Timestamp, c)
	case TypePing:
		r.sendLocked(c, r.encode(pongMessage{Type: TypePong, Timestamp: r.clock.Now().UnixMilli()}))
	default:
		if kind, ok := kindForResponse(in.Type); ok {
			r.handleResponseLocked(c, kind, &in)
			return
		}
		// Anything else is passed through to every other connection.
		r.broadcastLocked(frame, c)
	}
}

func (r *Relay) replyError(c Client, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients.has(c) {
		r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: message}))
	}
}

// handleSyncLocked publishes a full snapshot. Writers send it either
// nested under matchData or flat, with the lists beside the match.
func (r *Relay) handleSyncLocked(c Client, in *inbound) {
	if in.MatchID == "" {
		r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: "Match ID required"}))
		return
	}

	var data json.RawMessage
	switch {
	case present(in.MatchData):
		data = in.MatchData
	case present(in.Match):
		flat := map[string]json.RawMessage{
			"match":       in.Match,
			"homePlayers": orEmptyList(in.HomePlayers),
			"awayPlayers": orEmptyList(in.AwayPlayers),
			"sets":        orEmptyList(in.Sets),
			"events":      orEmptyList(in.Events),
		}
		if present(in.HomeTeam) {
			flat["homeTeam"] = in.HomeTeam
		}
		if present(in.AwayTeam) {
			flat["awayTeam"] = in.AwayTeam
		}
		data = r.encode(flat)
	default:
		r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: "Match data required"}))
		return
	}

	snap, err := NewSnapshot(in.MatchID, data, clientID(c), r.clock.Now())
	if err != nil {
		r.sendLocked(c, r.encode(errorMessage{Type: TypeError, Message: "Invalid match data"}))
		return
	}
	r.publishLocked(snap, c)
}

func orEmptyList(raw json.RawMessage) json.RawMessage {
	if present(raw) {
		return raw
	}
	return json.RawMessage("[]")
}

// handleResponseLocked routes a writer's answer to its pending request
// and caches any authoritative match data it carries.
func (r *Relay) handleResponseLocked(c Client, kind RequestKind, in *inbound) {
	res := &Response{
		RequestID: in.RequestID,
		Success:   in.Success,
		Error:     in.Error,
		MatchID:   in.MatchID,
		Match:     in.Match,
		Data:      in.Data,
		FullData:  in.FullData,
	}
	if res.RequestID == "" || !r.resolveLocked(kind, res) {
		return
	}
	if !res.Success {
		return
	}

	switch kind {
	case RequestPinValidation:
		if !present(res.Match) {
			return
		}
		var rec struct {
			ID MatchID `json:"id"`
		}
		if json.Unmarshal(res.Match, &rec) != nil || rec.ID == "" {
			return
		}
		if present(res.FullData) {
			r.cacheLocked(rec.ID, res.FullData, c)
		} else if _, ok := r.snapshots[rec.ID]; !ok {
			r.cacheLocked(rec.ID, r.encode(map[string]json.RawMessage{"match": res.Match}), c)
		}
	case RequestMatchData, RequestMatchUpdate:
		r.cacheLocked(res.MatchID, res.Data, c)
	}
}
