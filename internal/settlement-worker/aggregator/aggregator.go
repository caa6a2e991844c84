package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

// Outcome é o veredito da aposta inteira
type Outcome struct {
	Status domain.Status
	Payout decimal.Decimal
}

// Final indica se o veredito deve ser gravado
func (o Outcome) Final() bool { return o.Status.Terminal() }

// Aggregate combina os status das seleções no status da aposta.
// É recalculado do zero em toda passada a partir dos status atuais:
//   - qualquer lost: lost, payout 0
//   - alguma pending: pending (nada é gravado)
//   - todas won: won, payout = potential payout ou stake × odds
//   - mistura de won/void: void, payout 0
func Aggregate(w domain.Wager, statuses []domain.Status) Outcome {
	if len(statuses) == 0 {
		return Outcome{Status: domain.StatusPending, Payout: decimal.Zero}
	}

	pending, won := 0, 0
	for _, s := range statuses {
		switch s {
		case domain.StatusLost:
			return Outcome{Status: domain.StatusLost, Payout: decimal.Zero}
		case domain.StatusWon:
			won++
		case domain.StatusVoid:
		default:
			pending++
		}
	}

	switch {
	case pending > 0:
		return Outcome{Status: domain.StatusPending, Payout: decimal.Zero}
	case won == len(statuses):
		return Outcome{Status: domain.StatusWon, Payout: Payout(w)}
	default:
		return Outcome{Status: domain.StatusVoid, Payout: decimal.Zero}
	}
}

// LegStatuses extrai os status na ordem das seleções
func LegStatuses(legs []domain.Leg) []domain.Status {
	out := make([]domain.Status, len(legs))
	for i, l := range legs {
		out[i] = l.Status
	}
	return out
}

// Payout do bilhete vencedor, sem arredondamento (isso fica para a persistência)
func Payout(w domain.Wager) decimal.Decimal {
	if w.PotentialPayout.Valid && w.PotentialPayout.Decimal.IsPositive() {
		return w.PotentialPayout.Decimal
	}
	return w.Stake.Mul(w.CombinedOdds)
}
