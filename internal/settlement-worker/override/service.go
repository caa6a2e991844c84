package override

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/aggregator"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/repo"
	"github.com/radieske/parlay-settlement/pkg/contracts/events"
)

const SourceManual = "manual"

var (
	ErrInvalidStatus = errors.New("override status must be won, lost or void")
	ErrMissingActor  = errors.New("override actor is required")
	ErrNoChange      = errors.New("leg already has this status")
	ErrWouldReopen   = errors.New("override would reopen a settled wager")
)

type Store interface {
	WagerIDForLeg(ctx context.Context, legID string) (string, error)
	GetWager(ctx context.Context, wagerID string) (*domain.Wager, error)
	ApplyOverride(ctx context.Context, o repo.Override) (domain.AuditEntry, error)
}

type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

type Request struct {
	LegID  string
	Status string
	Actor  string
	Note   string
}

// Service aplica correções manuais de seleção. A aposta é reagregada com as
// mesmas regras da liquidação automática e toda alteração gera registro de auditoria.
type Service struct {
	log       *zap.Logger
	store     Store
	publisher Publisher // opcional

	OnOverride func(status domain.Status) // métricas
}

func NewService(log *zap.Logger, store Store, pub Publisher) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, store: store, publisher: pub}
}

func (s *Service) Apply(ctx context.Context, req Request) (domain.AuditEntry, error) {
	status, ok := domain.ParseStatus(req.Status)
	if !ok || !status.Terminal() {
		return domain.AuditEntry{}, ErrInvalidStatus
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return domain.AuditEntry{}, ErrMissingActor
	}

	wagerID, err := s.store.WagerIDForLeg(ctx, req.LegID)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	w, err := s.store.GetWager(ctx, wagerID)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	idx := -1
	for i := range w.Legs {
		if w.Legs[i].ID == req.LegID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.AuditEntry{}, fmt.Errorf("leg %s on wager %s: %w", req.LegID, wagerID, repo.ErrNotFound)
	}
	before := w.Legs[idx].Status
	if before == status {
		return domain.AuditEntry{}, ErrNoChange
	}

	statuses := aggregator.LegStatuses(w.Legs)
	statuses[idx] = status
	out := aggregator.Aggregate(*w, statuses)

	wagerAfter := w.Status
	switch {
	case out.Final():
		wagerAfter = out.Status
	case w.Status.Terminal():
		return domain.AuditEntry{}, ErrWouldReopen
	}

	entry, err := s.store.ApplyOverride(ctx, repo.Override{
		LegID:           req.LegID,
		WagerID:         wagerID,
		Actor:           actor,
		Note:            req.Note,
		LegStatusBefore: before,
		LegStatusAfter:  status,
		WagerBefore:     w.Status,
		WagerAfter:      wagerAfter,
		Payout:          out.Payout,
	})
	if err != nil {
		return domain.AuditEntry{}, err
	}

	s.log.Info("leg overridden",
		zap.String("legId", req.LegID),
		zap.String("wagerId", wagerID),
		zap.String("actor", actor),
		zap.String("legBefore", string(before)),
		zap.String("legAfter", string(status)),
		zap.String("wagerBefore", string(w.Status)),
		zap.String("wagerAfter", string(wagerAfter)),
	)
	if s.OnOverride != nil {
		s.OnOverride(status)
	}

	if wagerAfter != w.Status && s.publisher != nil {
		ev := events.BetSettled{
			BetID:        w.ID,
			HouseID:      w.HouseID,
			TicketNumber: w.TicketNumber,
			Status:       string(wagerAfter),
			Payout:       out.Payout.Round(2).StringFixed(2),
			Source:       SourceManual,
			SettledAt:    settledAt(entry),
		}
		if err := s.publisher.PublishBetSettled(ctx, ev); err != nil {
			s.log.Warn("publish bet_settled failed", zap.String("wagerId", w.ID), zap.Error(err))
		}
	}
	return entry, nil
}

// settledAt usa o horário da auditoria; sem ele, o horário atual
func settledAt(e domain.AuditEntry) time.Time {
	if e.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return e.CreatedAt
}
