package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/aggregator"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

// RunOverdue finaliza apostas pending há mais de OverdueAge cujas seleções já
// estão todas decididas. Apostas com alguma seleção pending não são tocadas;
// nenhum resultado de seleção é inventado aqui.
func (p *Processor) RunOverdue(ctx context.Context) (int, error) {
	now := p.now()
	cutoff := now.Add(-OverdueAge)

	ids, err := p.Store.ListOverdueWagerIDs(ctx, cutoff)
	if err != nil {
		p.onError("list_overdue")
		return 0, fmt.Errorf("list overdue wagers: %w", err)
	}

	forced := 0
	for _, id := range ids {
		w, err := p.Store.GetWager(ctx, id)
		if err != nil {
			// falha isolada: as demais apostas atrasadas seguem
			p.onError("overdue")
			p.log().Error("load overdue wager failed", zap.String("wagerId", id), zap.Error(err))
			continue
		}
		if !allDecided(w.Legs) {
			continue
		}

		out := aggregator.Aggregate(*w, aggregator.LegStatuses(w.Legs))
		if !out.Final() {
			continue
		}

		ok, err := p.finalize(ctx, w, out.Status, out.Payout, SourceOverdue, now)
		if err != nil {
			p.onError("overdue")
			p.log().Error("force-finalize wager failed", zap.String("wagerId", w.ID), zap.Error(err))
			continue
		}
		if ok {
			forced++
		}
	}

	p.log().Info("overdue pass complete",
		zap.Int("overdue", len(ids)), zap.Int("forced", forced), zap.Time("cutoff", cutoff))
	return forced, nil
}

func allDecided(legs []domain.Leg) bool {
	if len(legs) == 0 {
		return false
	}
	for _, l := range legs {
		if !l.Status.Terminal() {
			return false
		}
	}
	return true
}
