package relay

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverable(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r, _ := newTestRelay(t)
		assert.Equal(t, []MatchSummary{}, r.Discoverable())
	})

	t.Run("only the most recently scheduled eligible match", func(t *testing.T) {
		r, _ := newTestRelay(t)
		publish(t, r, "1", matchData(1, map[string]any{"scheduledAt": "2026-03-10T10:00:00Z"}))
		publish(t, r, "2", matchData(2, map[string]any{"status": "scheduled", "scheduledAt": "2026-03-12T19:15:00Z", "gameNumber": 12}))
		publish(t, r, "3", matchData(3, map[string]any{"status": "final", "scheduledAt": "2026-03-20T10:00:00Z"}))
		publish(t, r, "4", matchData(4, map[string]any{"scheduledAt": "2026-03-21T10:00:00Z", "refereeConnectionEnabled": false}))
		publish(t, r, "5", matchData(5, map[string]any{"status": "setup", "scheduledAt": "2026-03-22T10:00:00Z"}))

		got := r.Discoverable()
		require.Len(t, got, 1)
		assert.Equal(t, MatchSummary{
			ID:                       int64(2),
			GameNumber:               "12",
			HomeTeam:                 "Volley Lions",
			AwayTeam:                 "Spike Hawks",
			ScheduledAt:              "2026-03-12T19:15:00Z",
			DateTime:                 "Mar 12, 2026 19:15",
			Status:                   "scheduled",
			RefereeConnectionEnabled: true,
		}, got[0])
	})

	t.Run("unparseable schedule shows TBD", func(t *testing.T) {
		r, _ := newTestRelay(t)
		publish(t, r, "x", matchData("x", map[string]any{"scheduledAt": "soon", "gameNumber": nil}))

		got := r.Discoverable()
		require.Len(t, got, 1)
		assert.Equal(t, "TBD", got[0].DateTime)
		assert.Equal(t, "x", got[0].ID)
		assert.Equal(t, "x", got[0].GameNumber)
	})
}

func TestParseScheduled(t *testing.T) {
	for _, s := range []string{"2026-03-12T19:15:00Z", "2026-03-12T19:15:00", "2026-03-12 19:15", "2026-03-12", "1773342900000"} {
		_, ok := parseScheduled(s, time.UTC)
		assert.True(t, ok, s)
	}
	_, ok := parseScheduled("", time.UTC)
	assert.False(t, ok)

	t.Run("zone-less times are local to the relay", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		got, ok := parseScheduled("2026-03-14T18:00", ny)
		require.True(t, ok)
		assert.Equal(t, "2026-03-14 18:00", got.In(ny).Format("2006-01-02 15:04"))

		got, ok = parseScheduled("2026-03-14T18:00:00Z", ny)
		require.True(t, ok)
		assert.Equal(t, "2026-03-14 14:00", got.In(ny).Format("2006-01-02 15:04"))
	})
}

func TestDiscoverableLocalSchedule(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	r := New(Options{Location: ny, Logger: zerolog.Nop()})
	t.Cleanup(r.Close)

	publish(t, r, "7", matchData(7, map[string]any{"scheduledAt": "2026-03-14T18:00"}))

	got := r.Discoverable()
	require.Len(t, got, 1)
	assert.Equal(t, "Mar 14, 2026 18:00", got[0].DateTime)
}
