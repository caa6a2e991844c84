package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status é o estado de liquidação de uma aposta ou de uma seleção (leg)
type Status string

const (
	StatusPending Status = "pending"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
	StatusVoid    Status = "void"
)

// Terminal indica se o status é final (won, lost ou void)
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusVoid
}

// ParseStatus converte o texto persistido; valores desconhecidos retornam false
func ParseStatus(v string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusPending, StatusWon, StatusLost, StatusVoid:
		return s, true
	default:
		return "", false
	}
}

// WagerType: single, parlay ou system
type WagerType string

const (
	WagerSingle WagerType = "single"
	WagerParlay WagerType = "parlay"
	WagerSystem WagerType = "system"
)

// Wager é a aposta de uma casa, com suas seleções em ordem
type Wager struct {
	ID              string
	HouseID         string
	TicketNumber    string
	Type            WagerType
	Stake           decimal.Decimal
	CombinedOdds    decimal.Decimal
	PotentialPayout decimal.NullDecimal
	Status          Status
	ActualPayout    decimal.Decimal
	PlacedAt        time.Time
	SettledAt       *time.Time
	Legs            []Leg
}

// Leg é uma seleção dentro da aposta, ligada a um jogo e a um mercado
type Leg struct {
	ID           string
	WagerID      string
	Position     int
	EventID      string
	League       string
	HomeTeam     string
	AwayTeam     string
	MarketKey    string
	Outcome      string
	Price        decimal.Decimal
	Point        *float64
	Bookmaker    *string
	CommenceTime *time.Time
	Status       Status
}

// Score é um par (time, placar) tal como o provedor devolve
type Score struct {
	Name  string
	Score string
}

// GameRecord é um jogo vindo do provedor de resultados; nunca é persistido
type GameRecord struct {
	ID           string
	SportKey     string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Completed    bool
	Scores       []Score
}

// AuditEntry registra uma alteração manual de seleção/aposta (append-only)
type AuditEntry struct {
	ID              string
	LegID           string
	WagerID         string
	Actor           string
	Note            string
	LegStatusBefore Status
	LegStatusAfter  Status
	WagerBefore     Status
	WagerAfter      Status
	CreatedAt       time.Time
}

// Normalize aplica a normalização usada em todas as comparações de nomes
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
