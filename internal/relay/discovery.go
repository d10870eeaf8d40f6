package relay

import (
	"sort"
	"strconv"
	"time"
)

// MatchSummary is the public listing of a match that dashboards may
// offer for connection. PINs are deliberately not part of it.
type MatchSummary struct {
	ID                       any    `json:"id"`
	GameNumber               string `json:"gameNumber"`
	HomeTeam                 string `json:"homeTeam"`
	AwayTeam                 string `json:"awayTeam"`
	ScheduledAt              string `json:"scheduledAt,omitempty"`
	DateTime                 string `json:"dateTime"`
	Status                   string `json:"status"`
	RefereeConnectionEnabled bool   `json:"refereeConnectionEnabled"`
}

var scheduledLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseScheduled accepts the timestamp shapes writers have been seen to
// send, including epoch milliseconds. Timestamps without a zone are wall
// clock times in loc.
func parseScheduled(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range scheduledLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// Discoverable lists the matches a referee panel may connect to: referee
// connection enabled, scheduled or live, and of those only the one
// scheduled most recently. The result has at most one element.
func (r *Relay) Discoverable() []MatchSummary {
	type candidate struct {
		summary MatchSummary
		at      time.Time
	}

	r.mu.Lock()
	var candidates []candidate
	for _, id := range sortedIDs(r.snapshots) {
		s := r.snapshots[id]
		v := s.View
		if !v.ConnectionEnabled(PinReferee) || v.Final() {
			continue
		}
		if v.Status != "scheduled" && v.Status != "live" {
			continue
		}

		at, ok := parseScheduled(string(v.ScheduledAt), r.opts.Location)
		dateTime := "TBD"
		if ok {
			dateTime = at.In(r.opts.Location).Format("Jan 2, 2006 15:04")
		}
		gameNumber := v.gameNumber()
		if gameNumber == "" {
			gameNumber = string(id)
		}
		candidates = append(candidates, candidate{
			summary: MatchSummary{
				ID:                       id.Value(),
				GameNumber:               gameNumber,
				HomeTeam:                 s.HomeTeam,
				AwayTeam:                 s.AwayTeam,
				ScheduledAt:              string(v.ScheduledAt),
				DateTime:                 dateTime,
				Status:                   v.Status,
				RefereeConnectionEnabled: true,
			},
			at: at,
		})
	}
	r.mu.Unlock()

	if len(candidates) == 0 {
		return []MatchSummary{}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].at.After(candidates[j].at)
	})
	return []MatchSummary{candidates[0].summary}
}
