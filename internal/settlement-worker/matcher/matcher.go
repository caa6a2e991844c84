package matcher

import (
	"time"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
)

// Outcome descreve o que a busca encontrou para uma seleção
type Outcome int

const (
	// Forfeit: seleção sem horário de início; é perdida de imediato
	Forfeit Outcome = iota
	// NotStarted: o jogo ainda não começou
	NotStarted
	// Matched: jogo finalizado encontrado, com placar
	Matched
	// StillLive: o jogo aparece entre os jogos em andamento
	StillLive
	// AwaitingResult: jogo provavelmente terminou mas o provedor ainda não publicou
	AwaitingResult
)

func (o Outcome) String() string {
	switch o {
	case Forfeit:
		return "forfeit"
	case NotStarted:
		return "not_started"
	case Matched:
		return "matched"
	case StillLive:
		return "still_live"
	case AwaitingResult:
		return "awaiting_result"
	default:
		return "unknown"
	}
}

// Result é o retorno de Match. Game só é preenchido quando Outcome == Matched.
// StartTimeDrift indica que o horário do provedor difere do persistido.
type Result struct {
	Outcome        Outcome
	Game           *domain.GameRecord
	StartTimeDrift bool
}

// Match associa a seleção a um jogo do provedor, comparando o par de times
// normalizado ou o id externo. Não há comparação aproximada.
func Match(leg domain.Leg, completed, active []domain.GameRecord, now time.Time) Result {
	if leg.CommenceTime == nil {
		return Result{Outcome: Forfeit}
	}
	if leg.CommenceTime.After(now) {
		return Result{Outcome: NotStarted}
	}

	for i := range completed {
		g := &completed[i]
		if sameGame(leg, *g) {
			return Result{
				Outcome:        Matched,
				Game:           g,
				StartTimeDrift: !g.CommenceTime.IsZero() && !g.CommenceTime.Equal(*leg.CommenceTime),
			}
		}
	}

	for _, g := range active {
		if sameGame(leg, g) {
			return Result{Outcome: StillLive}
		}
	}
	return Result{Outcome: AwaitingResult}
}

func sameGame(leg domain.Leg, g domain.GameRecord) bool {
	if leg.EventID != "" && leg.EventID == g.ID {
		return true
	}
	return domain.Normalize(leg.HomeTeam) == domain.Normalize(g.HomeTeam) &&
		domain.Normalize(leg.AwayTeam) == domain.Normalize(g.AwayTeam)
}
