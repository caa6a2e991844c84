package events

import "time"

// Evento publicado no tópico "bet_settled" quando uma aposta recebe o veredito final.
// Payout vai como texto com 2 casas para não perder precisão.
type BetSettled struct {
	BetID        string    `json:"bet_id"`
	HouseID      string    `json:"house_id"`
	TicketNumber string    `json:"ticket_number"`
	Status       string    `json:"status"` // "won" | "lost" | "void"
	Payout       string    `json:"payout"`
	Source       string    `json:"source"` // "auto" | "overdue" | "manual"
	SettledAt    time.Time `json:"settled_at"`
	TsUnixMs     int64     `json:"ts_unix_ms"`
}
