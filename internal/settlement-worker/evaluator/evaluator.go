package evaluator

import (
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

// Evaluator decide o resultado de uma seleção a partir de um jogo finalizado.
// Não faz I/O; só registra avisos para mercados que não sabe liquidar.
type Evaluator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{log: log}
}

// Evaluate retorna (status, true) quando a seleção pode ser decidida.
// ok=false significa "não dá para avaliar": a seleção continua pending.
func (e *Evaluator) Evaluate(leg domain.Leg, game domain.GameRecord) (domain.Status, bool) {
	mkt, err := domain.ParseMarket(leg)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedMarket) {
			e.log.Warn("unsupported market, leg left pending",
				zap.String("legId", leg.ID), zap.String("market", leg.MarketKey))
		} else {
			e.log.Warn("leg cannot be evaluated", zap.String("legId", leg.ID), zap.Error(err))
		}
		return "", false
	}

	home, away, ok := teamScores(game)
	if !ok {
		e.log.Warn("malformed score data",
			zap.String("legId", leg.ID), zap.String("gameId", game.ID), zap.Int("scores", len(game.Scores)))
		return "", false
	}

	switch m := mkt.(type) {
	case domain.Moneyline:
		return moneyline(m, game, home, away), true
	case domain.Spread:
		return spread(m, game, home, away, e.log, leg.ID)
	case domain.Total:
		return total(m, home, away), true
	default:
		e.log.Warn("unsupported market variant", zap.String("legId", leg.ID), zap.String("market", mkt.Key()))
		return "", false
	}
}

func moneyline(m domain.Moneyline, game domain.GameRecord, home, away float64) domain.Status {
	if home == away {
		return domain.StatusVoid
	}
	winner := game.AwayTeam
	if home > away {
		winner = game.HomeTeam
	}
	if domain.Normalize(m.Selection) == domain.Normalize(winner) {
		return domain.StatusWon
	}
	return domain.StatusLost
}

func spread(m domain.Spread, game domain.GameRecord, home, away float64, log *zap.Logger, legID string) (domain.Status, bool) {
	var selected, opposing float64
	switch domain.Normalize(m.Selection) {
	case domain.Normalize(game.HomeTeam):
		selected, opposing = home, away
	case domain.Normalize(game.AwayTeam):
		selected, opposing = away, home
	default:
		log.Warn("spread selection matches neither team",
			zap.String("legId", legID), zap.String("selection", m.Selection))
		return "", false
	}
	if selected+m.Point > opposing {
		return domain.StatusWon, true
	}
	return domain.StatusLost, true
}

func total(m domain.Total, home, away float64) domain.Status {
	sum := home + away
	if (m.Over && sum > m.Line) || (m.Under && sum < m.Line) {
		return domain.StatusWon
	}
	return domain.StatusLost
}

// teamScores extrai o placar de cada time; entradas ausentes ou ilegíveis valem 0.
// Menos de dois placares no registro é considerado dado malformado.
func teamScores(game domain.GameRecord) (home, away float64, ok bool) {
	if len(game.Scores) < 2 {
		return 0, 0, false
	}
	h, a := domain.Normalize(game.HomeTeam), domain.Normalize(game.AwayTeam)
	for _, s := range game.Scores {
		switch domain.Normalize(s.Name) {
		case h:
			home = parseScore(s.Score)
		case a:
			away = parseScore(s.Score)
		}
	}
	return home, away, true
}

func parseScore(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
