package processor_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/repo"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/sportkey"
	"github.com/radieske/parlay-settlement/pkg/contracts/events"
)

// memStore imita as garantias do repo Postgres: escritas só alteram registros pending
type memStore struct {
	mu          sync.Mutex
	wagers      map[string]*domain.Wager
	failGet     map[string]error
	legWrites   int
	wagerWrites int
	startFixes  map[string]time.Time
	panicOn     string
}

func newMemStore(ws ...domain.Wager) *memStore {
	s := &memStore{
		wagers:     make(map[string]*domain.Wager),
		failGet:    make(map[string]error),
		startFixes: make(map[string]time.Time),
	}
	for i := range ws {
		w := ws[i]
		for j := range w.Legs {
			w.Legs[j].WagerID = w.ID
			w.Legs[j].Position = j
		}
		s.wagers[w.ID] = &w
	}
	return s
}

func (s *memStore) sorted() []*domain.Wager {
	out := make([]*domain.Wager, 0, len(s.wagers))
	for _, w := range s.wagers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

func (s *memStore) ListPendingLegs(context.Context) ([]domain.Leg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var legs []domain.Leg
	for _, w := range s.sorted() {
		if w.Status != domain.StatusPending {
			continue
		}
		for _, l := range w.Legs {
			if l.Status == domain.StatusPending {
				legs = append(legs, l)
			}
		}
	}
	return legs, nil
}

func (s *memStore) GetWager(_ context.Context, id string) (*domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.panicOn {
		panic("boom")
	}
	if err := s.failGet[id]; err != nil {
		return nil, err
	}
	w, ok := s.wagers[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *w
	cp.Legs = append([]domain.Leg(nil), w.Legs...)
	return &cp, nil
}

func (s *memStore) UpdateLegStatus(_ context.Context, legID string, status domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wagers {
		for i := range w.Legs {
			if w.Legs[i].ID == legID && w.Legs[i].Status == domain.StatusPending {
				w.Legs[i].Status = status
				s.legWrites++
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memStore) UpdateLegStartTime(_ context.Context, legID string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wagers {
		for i := range w.Legs {
			if w.Legs[i].ID == legID {
				t := start
				w.Legs[i].CommenceTime = &t
				s.startFixes[legID] = start
			}
		}
	}
	return nil
}

func (s *memStore) SettleWager(_ context.Context, id string, status domain.Status, payout decimal.Decimal, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wagers[id]
	if !ok || w.Status != domain.StatusPending {
		return false, nil
	}
	w.Status = status
	w.ActualPayout = payout.Round(2)
	w.SettledAt = &at
	s.wagerWrites++
	return true, nil
}

func (s *memStore) ListOverdueWagerIDs(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, w := range s.sorted() {
		if w.Status == domain.StatusPending && w.PlacedAt.Before(before) {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

func (s *memStore) wager(id string) domain.Wager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.wagers[id]
}

type fakeProvider struct {
	mu          sync.Mutex
	completed   map[string][]domain.GameRecord
	active      map[string][]domain.GameRecord
	failKeys    map[string]bool
	catalogErr  error
	catalog     []sportkey.Sport
	fetchCalls  map[string]int
	catalogCall int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		completed:  make(map[string][]domain.GameRecord),
		active:     make(map[string][]domain.GameRecord),
		failKeys:   make(map[string]bool),
		fetchCalls: make(map[string]int),
	}
}

func (f *fakeProvider) FetchSportsCatalog(context.Context) ([]sportkey.Sport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogCall++
	return f.catalog, f.catalogErr
}

func (f *fakeProvider) FetchCompletedGames(_ context.Context, key string, _ int) ([]domain.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls[key]++
	if f.failKeys[key] {
		return nil, errors.New("HTTP 503: upstream unavailable")
	}
	return f.completed[key], nil
}

func (f *fakeProvider) FetchActiveGames(_ context.Context, key string) ([]domain.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[key] {
		return nil, errors.New("HTTP 503: upstream unavailable")
	}
	return f.active[key], nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.BetSettled
	err    error
}

func (c *capturePublisher) PublishBetSettled(_ context.Context, e events.BetSettled) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}
