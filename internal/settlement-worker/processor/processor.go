package processor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/evaluator"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/sportkey"
	"github.com/radieske/parlay-settlement/pkg/contracts/events"
)

// OverdueAge: apostas pending há mais tempo que isso entram na passada de resolução forçada
const OverdueAge = 24 * time.Hour

const DefaultDaysBack = 3

// Origem da liquidação, publicada no evento bet_settled
const (
	SourceAuto    = "auto"
	SourceOverdue = "overdue"
)

// Store é a persistência de apostas e seleções consumida pela liquidação
type Store interface {
	ListPendingLegs(ctx context.Context) ([]domain.Leg, error)
	GetWager(ctx context.Context, wagerID string) (*domain.Wager, error)
	UpdateLegStatus(ctx context.Context, legID string, status domain.Status) (bool, error)
	UpdateLegStartTime(ctx context.Context, legID string, start time.Time) error
	SettleWager(ctx context.Context, wagerID string, status domain.Status, payout decimal.Decimal, settledAt time.Time) (bool, error)
	ListOverdueWagerIDs(ctx context.Context, placedBefore time.Time) ([]string, error)
}

// Provider é o provedor de resultados (placares e catálogo de esportes)
type Provider interface {
	sportkey.CatalogFetcher
	FetchCompletedGames(ctx context.Context, sportKey string, daysBack int) ([]domain.GameRecord, error)
	FetchActiveGames(ctx context.Context, sportKey string) ([]domain.GameRecord, error)
}

// Publisher publica o evento de aposta liquidada
type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Result são as contagens de uma passada
type Result struct {
	Processed int `json:"processed"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
}

// Processor executa a passada de liquidação e a passada de resolução forçada.
// Callbacks de métricas são opcionais.
type Processor struct {
	Log       *zap.Logger
	Store     Store
	Provider  Provider
	Resolver  *sportkey.Resolver
	Evaluator *evaluator.Evaluator
	Publisher Publisher // opcional
	DaysBack  int
	Now       func() time.Time

	OnLegSettled   func(status domain.Status)                // métricas
	OnWagerSettled func(source string, status domain.Status) // métricas
	OnError        func(stage string)                        // métricas por fase
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Processor) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *Processor) daysBack() int {
	if p.DaysBack > 0 {
		return p.DaysBack
	}
	return DefaultDaysBack
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// finalize grava o veredito final e publica o evento.
// Retorna false quando a aposta já tinha sido liquidada por outra passada.
func (p *Processor) finalize(ctx context.Context, w *domain.Wager, status domain.Status, payout decimal.Decimal, source string, now time.Time) (bool, error) {
	changed, err := p.Store.SettleWager(ctx, w.ID, status, payout, now)
	if err != nil {
		return false, err
	}
	if !changed {
		p.log().Debug("wager already settled", zap.String("wagerId", w.ID))
		return false, nil
	}

	p.log().Info("wager settled",
		zap.String("wagerId", w.ID),
		zap.String("ticket", w.TicketNumber),
		zap.String("status", string(status)),
		zap.String("payout", payout.Round(2).StringFixed(2)),
		zap.String("source", source),
	)
	if p.OnWagerSettled != nil {
		p.OnWagerSettled(source, status)
	}

	if p.Publisher != nil {
		ev := events.BetSettled{
			BetID:        w.ID,
			HouseID:      w.HouseID,
			TicketNumber: w.TicketNumber,
			Status:       string(status),
			Payout:       payout.Round(2).StringFixed(2),
			Source:       source,
			SettledAt:    now.UTC(),
		}
		// a liquidação já está gravada; falha aqui não desfaz nada
		if err := p.Publisher.PublishBetSettled(ctx, ev); err != nil {
			p.log().Warn("publish bet_settled failed", zap.String("wagerId", w.ID), zap.Error(err))
			p.onError("publish")
		}
	}
	return true, nil
}
