package relay

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotObject is returned by NewSnapshot when the published data is not
// a JSON object.
var ErrNotObject = errors.New("relay: match data must be a JSON object")

// PinType selects which of a match's PINs a lookup compares against.
type PinType string

const (
	PinReferee  PinType = "referee"
	PinHomeTeam PinType = "homeTeam"
	PinAwayTeam PinType = "awayTeam"
)

func (t PinType) Valid() bool {
	switch t {
	case PinReferee, PinHomeTeam, PinAwayTeam:
		return true
	}
	return false
}

// MatchView is the handful of match-record fields the relay reads to
// answer lookups. Everything else in a snapshot is opaque.
type MatchView struct {
	ID          FlexString `json:"id"`
	Status      string     `json:"status"`
	ScheduledAt FlexString `json:"scheduledAt"`
	GameNumber  FlexString `json:"gameNumber"`
	GameNSnake  FlexString `json:"game_n"`
	GameN       FlexString `json:"gameN"`

	RefereePin  FlexString `json:"refereePin"`
	HomeTeamPin FlexString `json:"homeTeamPin"`
	AwayTeamPin FlexString `json:"awayTeamPin"`

	RefereeConnectionEnabled  *bool `json:"refereeConnectionEnabled"`
	HomeTeamConnectionEnabled *bool `json:"homeTeamConnectionEnabled"`
	AwayTeamConnectionEnabled *bool `json:"awayTeamConnectionEnabled"`

	HomeTeamName string `json:"homeTeamName"`
	AwayTeamName string `json:"awayTeamName"`
}

func (v MatchView) pin(t PinType) string {
	switch t {
	case PinReferee:
		return string(v.RefereePin)
	case PinHomeTeam:
		return string(v.HomeTeamPin)
	case PinAwayTeam:
		return string(v.AwayTeamPin)
	}
	return ""
}

// ConnectionEnabled reports the per-type connection flag. Only an
// explicit false disables a connection.
func (v MatchView) ConnectionEnabled(t PinType) bool {
	var flag *bool
	switch t {
	case PinReferee:
		flag = v.RefereeConnectionEnabled
	case PinHomeTeam:
		flag = v.HomeTeamConnectionEnabled
	case PinAwayTeam:
		flag = v.AwayTeamConnectionEnabled
	default:
		return false
	}
	return flag == nil || *flag
}

func (v MatchView) Final() bool { return v.Status == "final" }

func (v MatchView) gameNumber() string {
	for _, s := range []FlexString{v.GameNumber, v.GameNSnake, v.GameN} {
		if s != "" {
			return string(s)
		}
	}
	return ""
}

// Snapshot is the full replicated state of one match as last published
// by the authoritative writer. A Snapshot is never modified after
// NewSnapshot returns; a publish replaces it with a new value.
type Snapshot struct {
	MatchID   MatchID
	Data      json.RawMessage // exactly as published
	Match     json.RawMessage // the match record inside Data
	View      MatchView
	HomeTeam  string
	AwayTeam  string
	UpdatedAt time.Time
	UpdatedBy string
}

// NewSnapshot wraps published match data. Data may either carry the
// match record under "match" alongside the team, player, set and event
// lists, or be the bare match record itself.
func NewSnapshot(id MatchID, data json.RawMessage, updatedBy string, at time.Time) (*Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}

	s := &Snapshot{
		MatchID:   id,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: at,
		UpdatedBy: updatedBy,
	}
	s.Match = s.Data
	if m, ok := fields["match"]; ok && present(m) {
		s.Match = m
	}

	// A record with unexpected field types still replicates; it just
	// never matches a lookup.
	_ = json.Unmarshal(s.Match, &s.View)

	s.HomeTeam = firstNonEmpty(teamName(fields["homeTeam"]), s.View.HomeTeamName, teamNameIn(s.Match, "homeTeam"), "Home")
	s.AwayTeam = firstNonEmpty(teamName(fields["awayTeam"]), s.View.AwayTeamName, teamNameIn(s.Match, "awayTeam"), "Away")
	return s, nil
}

// MatchWithID returns the match record with "id" set to the match id,
// which is the shape PIN and discovery callers expect.
func (s *Snapshot) MatchWithID() (json.RawMessage, error) {
	return MergeJSON(s.Match, map[string]any{"id": s.MatchID.Value()})
}

func teamName(raw json.RawMessage) string {
	var team struct {
		Name string `json:"name"`
	}
	if present(raw) && json.Unmarshal(raw, &team) == nil {
		return team.Name
	}
	return ""
}

func teamNameIn(record json.RawMessage, key string) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(record, &fields) != nil {
		return ""
	}
	return teamName(fields[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sortedIDs gives lookups a deterministic scan order.
func sortedIDs(m map[MatchID]*Snapshot) []MatchID {
	ids := make([]MatchID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Publish stores snap as the match's state, replacing whatever was there,
// and pushes it to the match's subscribers other than from.
//
// There is no version check. The relay trusts a single authoritative
// writer per match; if two writers ever publish for the same match the
// last one to arrive wins, whatever its age.
func (r *Relay) Publish(snap *Snapshot, from Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishLocked(snap, from)
}

func (r *Relay) publishLocked(snap *Snapshot, from Client) {
	r.snapshots[snap.MatchID] = snap
	r.metrics.snapshots.Set(float64(len(r.snapshots)))

	sent := r.fanoutLocked(snap.MatchID, r.encode(snapshotMessage{
		Type:    TypeMatchDataUpdate,
		MatchID: snap.MatchID,
		Data:    snap.Data,
	}), from)

	r.logger.Debug().
		Str("match_id", string(snap.MatchID)).
		Int("subscribers", sent).
		Msg("match snapshot published")
}

// cacheLocked stores authoritative data that arrived as a bridge answer.
// It does not fan out; the writer publishes separately.
func (r *Relay) cacheLocked(id MatchID, data json.RawMessage, from Client) {
	if id == "" || !present(data) {
		return
	}
	snap, err := NewSnapshot(id, data, clientID(from), r.clock.Now())
	if err != nil {
		r.logger.Debug().Err(err).Str("match_id", string(id)).Msg("bridge answer not cached")
		return
	}
	r.snapshots[id] = snap
	r.metrics.snapshots.Set(float64(len(r.snapshots)))
}

// Snapshot returns the last published state of a match.
func (r *Relay) Snapshot(id MatchID) (*Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[id]
	return s, ok
}

// Delete drops a match's snapshot and subscription set and tells every
// connection subscribed at that moment. It reports whether there was
// anything to delete.
func (r *Relay) Delete(id MatchID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(id)
}

func (r *Relay) deleteLocked(id MatchID) bool {
	_, had := r.snapshots[id]
	// Capture subscribers before the set is cleared, or the notice has
	// nobody to go to.
	subscribers := r.subs.take(id)
	if !had && len(subscribers) == 0 {
		return false
	}
	delete(r.snapshots, id)
	r.metrics.snapshots.Set(float64(len(r.snapshots)))

	frame := r.encode(deletedMessage{Type: TypeMatchDeleted, MatchID: id})
	for _, c := range subscribers {
		r.sendLocked(c, frame)
	}
	r.logger.Info().
		Str("match_id", string(id)).
		Int("notified", len(subscribers)).
		Msg("match deleted")
	return true
}

// ClearAll deletes every stored match except keep (which may be empty),
// notifying each match's subscribers. It returns how many were deleted.
func (r *Relay) ClearAll(keep MatchID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearAllLocked(keep)
}

func (r *Relay) clearAllLocked(keep MatchID) int {
	n := 0
	for _, id := range sortedIDs(r.snapshots) {
		if keep != "" && id == keep {
			continue
		}
		if r.deleteLocked(id) {
			n++
		}
	}
	r.logger.Info().Int("deleted", n).Str("kept", string(keep)).Msg("matches cleared")
	return n
}

// FindByPin returns the first stored match whose PIN of type t equals
// pin, whose connection of that type is enabled and which is not final.
func (r *Relay) FindByPin(t PinType, pin string) (*Snapshot, bool) {
	pin = strings.TrimSpace(pin)
	if pin == "" || !t.Valid() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedIDs(r.snapshots) {
		s := r.snapshots[id]
		if s.View.pin(t) != pin {
			continue
		}
		if s.View.ConnectionEnabled(t) && !s.View.Final() {
			return s, true
		}
	}
	return nil, false
}

// FindByGameNumber returns the first stored match whose game number (or
// record id) equals n.
func (r *Relay) FindByGameNumber(n string) (*Snapshot, bool) {
	n = strings.TrimSpace(n)
	if n == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedIDs(r.snapshots) {
		s := r.snapshots[id]
		v := s.View
		if string(v.GameNumber) == n || string(v.GameNSnake) == n || string(v.GameN) == n || string(v.ID) == n {
			return s, true
		}
	}
	return nil, false
}
