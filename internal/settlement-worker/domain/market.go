package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrMissingReference  = errors.New("market requires a reference number")
)

// Market é o conjunto fechado de mercados liquidáveis: Moneyline, Spread e Total.
// Só ParseMarket constrói valores, então um novo mercado precisa passar por lá.
type Market interface {
	Key() string
	market()
}

// Moneyline (h2h): vence quem fizer mais pontos
type Moneyline struct {
	Selection string
}

// Spread aplica o handicap (Point, com sinal) ao lado escolhido
type Spread struct {
	Selection string
	Point     float64
}

// Total compara a soma dos placares com a linha
type Total struct {
	Line  float64
	Over  bool
	Under bool
}

func (Moneyline) Key() string { return "h2h" }
func (Spread) Key() string    { return "spreads" }
func (Total) Key() string     { return "totals" }

func (Moneyline) market() {}
func (Spread) market()    {}
func (Total) market()     {}

// ParseMarket monta o mercado da seleção a partir do market key persistido
func ParseMarket(l Leg) (Market, error) {
	switch Normalize(l.MarketKey) {
	case "h2h":
		return Moneyline{Selection: l.Outcome}, nil
	case "spreads":
		if l.Point == nil {
			return nil, fmt.Errorf("%w: spreads leg %s", ErrMissingReference, l.ID)
		}
		return Spread{Selection: l.Outcome, Point: *l.Point}, nil
	case "totals":
		if l.Point == nil {
			return nil, fmt.Errorf("%w: totals leg %s", ErrMissingReference, l.ID)
		}
		label := strings.ToLower(l.Outcome)
		return Total{
			Line:  *l.Point,
			Over:  strings.Contains(label, "over"),
			Under: strings.Contains(label, "under"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMarket, l.MarketKey)
	}
}
