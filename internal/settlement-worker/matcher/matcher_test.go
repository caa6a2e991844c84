package matcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/matcher"
)

var now = time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)

func leg(start *time.Time) domain.Leg {
	return domain.Leg{
		ID:           "leg-1",
		EventID:      "evt-1",
		HomeTeam:     "Kansas City Chiefs",
		AwayTeam:     "Buffalo Bills",
		CommenceTime: start,
	}
}

func at(t time.Time) *time.Time { return &t }

func TestMatch_NullStartTimeIsForfeit(t *testing.T) {
	completed := []domain.GameRecord{{ID: "evt-1", HomeTeam: "Kansas City Chiefs", AwayTeam: "Buffalo Bills"}}

	res := matcher.Match(leg(nil), completed, nil, now)
	assert.Equal(t, matcher.Forfeit, res.Outcome)
	assert.Nil(t, res.Game)
}

func TestMatch_FutureStartIsNotStarted(t *testing.T) {
	res := matcher.Match(leg(at(now.Add(time.Hour))), nil, nil, now)
	assert.Equal(t, matcher.NotStarted, res.Outcome)
}

func TestMatch_ByNormalizedTeams(t *testing.T) {
	start := now.Add(-4 * time.Hour)
	completed := []domain.GameRecord{
		{ID: "other", HomeTeam: "Dallas Cowboys", AwayTeam: "New York Giants", CommenceTime: start},
		{ID: "provider-id", HomeTeam: " kansas city chiefs", AwayTeam: "BUFFALO BILLS ", CommenceTime: start},
	}
	l := leg(at(start))
	l.EventID = "stale-id"

	res := matcher.Match(l, completed, nil, now)
	require.Equal(t, matcher.Matched, res.Outcome)
	assert.Equal(t, "provider-id", res.Game.ID)
	assert.False(t, res.StartTimeDrift)
}

func TestMatch_ByEventID(t *testing.T) {
	start := now.Add(-4 * time.Hour)
	completed := []domain.GameRecord{{ID: "evt-1", HomeTeam: "KC Chiefs", AwayTeam: "Bills", CommenceTime: start.Add(30 * time.Minute)}}

	res := matcher.Match(leg(at(start)), completed, nil, now)
	require.Equal(t, matcher.Matched, res.Outcome)
	assert.True(t, res.StartTimeDrift)
}

func TestMatch_NoFuzzyMatching(t *testing.T) {
	start := now.Add(-4 * time.Hour)
	completed := []domain.GameRecord{{ID: "x", HomeTeam: "Kansas City Chief", AwayTeam: "Buffalo Bills"}}

	res := matcher.Match(leg(at(start)), completed, nil, now)
	assert.Equal(t, matcher.AwaitingResult, res.Outcome)
}

func TestMatch_StillLive(t *testing.T) {
	start := now.Add(-time.Hour)
	active := []domain.GameRecord{{ID: "x", HomeTeam: "Kansas City Chiefs", AwayTeam: "Buffalo Bills"}}

	res := matcher.Match(leg(at(start)), nil, active, now)
	assert.Equal(t, matcher.StillLive, res.Outcome)
}

func TestMatch_AwaitingResult(t *testing.T) {
	res := matcher.Match(leg(at(now.Add(-5*time.Hour))), nil, nil, now)
	assert.Equal(t, matcher.AwaitingResult, res.Outcome)
	assert.Equal(t, "awaiting_result", res.Outcome.String())
}
