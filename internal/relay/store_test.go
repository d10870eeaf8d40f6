package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	t.Run("nested match record", func(t *testing.T) {
		raw, _ := json.Marshal(matchData(42, nil))
		s, err := NewSnapshot("42", raw, "w", testStart)
		require.NoError(t, err)
		assert.Equal(t, "Volley Lions", s.HomeTeam)
		assert.Equal(t, "Spike Hawks", s.AwayTeam)
		assert.Equal(t, "123456", string(s.View.RefereePin))
		assert.Equal(t, "live", s.View.Status)
		assert.JSONEq(t, string(raw), string(s.Data))
	})

	t.Run("bare match record", func(t *testing.T) {
		s, err := NewSnapshot("7", json.RawMessage(`{"status":"scheduled","refereePin":654321}`), "w", testStart)
		require.NoError(t, err)
		assert.Equal(t, "654321", string(s.View.RefereePin))
		assert.Equal(t, "Home", s.HomeTeam)
		assert.Equal(t, "Away", s.AwayTeam)
	})

	t.Run("rejects non-objects", func(t *testing.T) {
		for _, raw := range []string{`[]`, `"x"`, `null`, `{`} {
			_, err := NewSnapshot("1", json.RawMessage(raw), "w", testStart)
			assert.ErrorIs(t, err, ErrNotObject, raw)
		}
	})

	t.Run("match with id", func(t *testing.T) {
		s, err := NewSnapshot("42", json.RawMessage(`{"match":{"status":"live"}}`), "w", testStart)
		require.NoError(t, err)
		m, err := s.MatchWithID()
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"live","id":42}`, string(m))
	})
}

func TestPublishOverwritesAndFansOut(t *testing.T) {
	r, _ := newTestRelay(t)
	writer := connect(r, "writer")
	viewer := connect(r, "viewer")
	other := connect(r, "other")
	r.Subscribe("42", viewer)
	r.Subscribe("42", writer)

	send(r, writer, map[string]any{"type": TypeSyncMatchData, "matchId": 42, "matchData": matchData(42, nil)})
	send(r, writer, map[string]any{"type": TypeSyncMatchData, "matchId": "42", "matchData": matchData(42, map[string]any{"status": "final"})})

	s, ok := r.Snapshot("42")
	require.True(t, ok)
	assert.True(t, s.View.Final())
	assert.Equal(t, "writer", s.UpdatedBy)

	updates := viewer.ofType(t, TypeMatchDataUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, "42", updates[1]["matchId"])
	assert.Empty(t, writer.ofType(t, TypeMatchDataUpdate), "publisher must not get its own update")
	assert.Empty(t, other.messages(t), "non-subscribers get nothing")
}

func TestDeleteNotifiesSubscribersOnce(t *testing.T) {
	r, _ := newTestRelay(t)
	a := connect(r, "a")
	b := connect(r, "b")
	publish(t, r, "42", matchData(42, nil))
	r.Subscribe("42", a)
	r.Subscribe("42", b)
	a.reset()
	b.reset()

	assert.True(t, r.Delete("42"))
	assert.False(t, r.Delete("42"))

	for _, c := range []*fakeClient{a, b} {
		msgs := c.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, TypeMatchDeleted, msgs[0]["type"])
		assert.Equal(t, "42", msgs[0]["matchId"])
	}
	_, ok := r.Snapshot("42")
	assert.False(t, ok)
	assert.Zero(t, r.Stats().Rooms)
}

func TestDeleteWithSubscribersButNoSnapshot(t *testing.T) {
	r, _ := newTestRelay(t)
	a := connect(r, "a")
	r.Subscribe("9", a)

	assert.True(t, r.Delete("9"))
	assert.Len(t, a.ofType(t, TypeMatchDeleted), 1)
}

func TestClearAllKeepsOne(t *testing.T) {
	r, _ := newTestRelay(t)
	a := connect(r, "a")
	for _, id := range []MatchID{"1", "2", "3"} {
		publish(t, r, id, matchData(id, nil))
		r.Subscribe(id, a)
	}
	a.reset()

	send(r, a, map[string]any{"type": TypeClearAllMatches, "keepMatchId": 2})

	assert.Equal(t, []MatchID{"2"}, r.MatchIDs())
	deleted := a.ofType(t, TypeMatchDeleted)
	require.Len(t, deleted, 2)
	assert.Equal(t, "1", deleted[0]["matchId"])
	assert.Equal(t, "3", deleted[1]["matchId"])
}

func TestFindByPin(t *testing.T) {
	r, _ := newTestRelay(t)
	publish(t, r, "1", matchData(1, map[string]any{"status": "final", "refereePin": "111111"}))
	publish(t, r, "2", matchData(2, map[string]any{"refereePin": "222222", "refereeConnectionEnabled": false}))
	publish(t, r, "3", matchData(3, map[string]any{"refereePin": 333333}))

	tests := []struct {
		name    string
		pinType PinType
		pin     string
		want    MatchID
	}{
		{"final match ignored", PinReferee, "111111", ""},
		{"disabled connection ignored", PinReferee, "222222", ""},
		{"numeric pin matches", PinReferee, "333333", "3"},
		{"team pin", PinHomeTeam, "222222", "2"},
		{"unknown type", PinType("scorer"), "333333", ""},
		{"blank pin", PinReferee, "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := r.FindByPin(tt.pinType, tt.pin)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, s.MatchID)
		})
	}
}

func TestFindByGameNumber(t *testing.T) {
	r, _ := newTestRelay(t)
	publish(t, r, "1", matchData(1, map[string]any{"gameNumber": nil, "game_n": 17}))
	publish(t, r, "2", matchData(2, map[string]any{"gameNumber": "A-5"}))

	s, ok := r.FindByGameNumber("17")
	require.True(t, ok)
	assert.Equal(t, MatchID("1"), s.MatchID)

	s, ok = r.FindByGameNumber("A-5")
	require.True(t, ok)
	assert.Equal(t, MatchID("2"), s.MatchID)

	s, ok = r.FindByGameNumber("2")
	require.True(t, ok, "record id also matches")
	assert.Equal(t, MatchID("2"), s.MatchID)

	_, ok = r.FindByGameNumber("99")
	assert.False(t, ok)
}
