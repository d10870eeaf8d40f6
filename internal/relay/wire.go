package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound message types sent by connections.
const (
	TypeSyncMatchData   = "sync-match-data"
	TypeDeleteMatch     = "delete-match"
	TypeClearAllMatches = "clear-all-matches"
	TypeSubscribeMatch  = "subscribe-match"
	TypeMatchAction     = "match-action"
	TypePing            = "ping"
)

// Outbound message types produced by the relay.
const (
	TypeConnected       = "connected"
	TypeMatchFullData   = "match-full-data"
	TypeMatchDataUpdate = "match-data-update"
	TypeMatchDeleted    = "match-deleted"
	TypePong            = "pong"
	TypeError           = "error"
)

// MatchID is the external identifier of a match. Writers send it either
// as a JSON number or a string; 42 and "42" name the same match.
type MatchID string

func (id *MatchID) UnmarshalJSON(b []byte) error {
	s, err := looseString(b)
	if err != nil {
		return err
	}
	*id = MatchID(s)
	return nil
}

// Value returns the id as it appears in API payloads: a JSON number when
// the id is numeric, a string otherwise.
func (id MatchID) Value() any {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return string(id)
}

// FlexString decodes a JSON string, number or boolean into its textual
// form. PINs and game numbers arrive as either.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s, err := looseString(b)
	if err != nil {
		return err
	}
	*f = FlexString(s)
	return nil
}

func looseString(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return "", nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return "", err
		}
		return strconv.FormatBool(v), nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", fmt.Errorf("relay: expected string or number, got %.32s", b)
	}
	return n.String(), nil
}

// present reports whether raw carries a value other than null.
func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// MergeJSON returns the JSON object base with extra's keys laid over it.
// A missing or non-object base is treated as an empty object.
func MergeJSON(base json.RawMessage, extra map[string]any) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if present(base) {
		if err := json.Unmarshal(base, &fields); err != nil {
			fields = map[string]json.RawMessage{}
		}
	}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", k, err)
		}
		fields[k] = b
	}
	return json.Marshal(fields)
}

// inbound is the union of every field an inbound frame may carry.
type inbound struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"requestId"`
	MatchID     MatchID         `json:"matchId"`
	KeepMatchID MatchID         `json:"keepMatchId"`
	MatchData   json.RawMessage `json:"matchData"`
	Match       json.RawMessage `json:"match"`
	HomeTeam    json.RawMessage `json:"homeTeam"`
	AwayTeam    json.RawMessage `json:"awayTeam"`
	HomePlayers json.RawMessage `json:"homePlayers"`
	AwayPlayers json.RawMessage `json:"awayPlayers"`
	Sets        json.RawMessage `json:"sets"`
	Events      json.RawMessage `json:"events"`
	Action      json.RawMessage `json:"action"`
	ActionData  json.RawMessage `json:"actionData"`
	Payload     json.RawMessage `json:"payload"`
	Data        json.RawMessage `json:"data"`
	FullData    json.RawMessage `json:"fullData"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Success     bool            `json:"success"`
	Error       string          `json:"error"`
}

type connectedMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
}

type snapshotMessage struct {
	Type    string          `json:"type"`
	MatchID MatchID         `json:"matchId"`
	Data    json.RawMessage `json:"data"`
}

type deletedMessage struct {
	Type    string  `json:"type"`
	MatchID MatchID `json:"matchId"`
}

type actionMessage struct {
	Type      string          `json:"type"`
	MatchID   MatchID         `json:"matchId"`
	Action    json.RawMessage `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp json.RawMessage `json:"timestamp"`
	From      string          `json:"from,omitempty"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
