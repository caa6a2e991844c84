package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/processor"
)

func decidedLeg(id string, s domain.Status) domain.Leg {
	l := nbaLeg(id, "Boston Celtics", "Miami Heat", "h2h", "Boston Celtics", nil, at(now.Add(-30*time.Hour)))
	l.Status = s
	return l
}

func TestRunOverdue(t *testing.T) {
	old := now.Add(-25 * time.Hour)
	store := newMemStore(
		// seleções decididas e aposta ainda pending: forçada a lost
		parlay("mixed", old, decidedLeg("a1", domain.StatusWon), decidedLeg("a2", domain.StatusLost)),
		// ainda há seleção pending: não é tocada
		parlay("open", old, decidedLeg("b1", domain.StatusWon), decidedLeg("b2", domain.StatusPending)),
		// recente demais
		parlay("young", now.Add(-2*time.Hour), decidedLeg("c1", domain.StatusLost)),
		parlay("allwon", old, decidedLeg("d1", domain.StatusWon), decidedLeg("d2", domain.StatusWon)),
	)
	pub := &capturePublisher{}

	var sources []string
	p := newProcessor(store, newFakeProvider(), pub)
	p.OnWagerSettled = func(source string, _ domain.Status) { sources = append(sources, source) }

	forced, err := p.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, forced)

	assert.Equal(t, domain.StatusLost, store.wager("mixed").Status)
	assert.True(t, store.wager("mixed").ActualPayout.IsZero())
	assert.Equal(t, domain.StatusWon, store.wager("allwon").Status)
	assert.Equal(t, "36.1", store.wager("allwon").ActualPayout.String())

	open := store.wager("open")
	assert.Equal(t, domain.StatusPending, open.Status)
	assert.Equal(t, domain.StatusPending, open.Legs[1].Status)
	assert.Equal(t, domain.StatusPending, store.wager("young").Status)

	assert.Equal(t, []string{processor.SourceOverdue, processor.SourceOverdue}, sources)
	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		assert.Equal(t, processor.SourceOverdue, e.Source)
	}
}

func TestRunOverdue_SecondRunIsNoop(t *testing.T) {
	store := newMemStore(parlay("w", now.Add(-48*time.Hour),
		decidedLeg("l1", domain.StatusVoid), decidedLeg("l2", domain.StatusWon)))
	p := newProcessor(store, newFakeProvider(), nil)

	forced, err := p.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, forced)
	assert.Equal(t, domain.StatusVoid, store.wager("w").Status)

	forced, err = p.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, forced)
	assert.Equal(t, 1, store.wagerWrites)
}

func TestRunOverdue_LoadFailureIsIsolated(t *testing.T) {
	old := now.Add(-30 * time.Hour)
	store := newMemStore(
		parlay("o1", old.Add(-2*time.Hour), decidedLeg("a1", domain.StatusLost)),
		parlay("o2", old.Add(-time.Hour), decidedLeg("b1", domain.StatusWon)),
		parlay("o3", old, decidedLeg("c1", domain.StatusVoid)),
	)
	store.failGet["o2"] = errors.New("connection reset")

	var stages []string
	p := newProcessor(store, newFakeProvider(), nil)
	p.OnError = func(stage string) { stages = append(stages, stage) }

	forced, err := p.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, forced)

	assert.Equal(t, domain.StatusLost, store.wager("o1").Status)
	assert.Equal(t, domain.StatusPending, store.wager("o2").Status)
	assert.Equal(t, domain.StatusVoid, store.wager("o3").Status)
	assert.Equal(t, []string{"overdue"}, stages)
}
