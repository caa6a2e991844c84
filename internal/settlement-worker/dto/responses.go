package dto

import "time"

type RunResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Settled   int  `json:"settled"`
	Failed    int  `json:"failed"`
}

type OverdueResponse struct {
	Success bool `json:"success"`
	Forced  int  `json:"forced"`
}

// ErrorResponse só carrega a mensagem do erro
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type AuditEntry struct {
	ID                 string    `json:"id"`
	LegID              string    `json:"leg_id"`
	WagerID            string    `json:"wager_id"`
	Actor              string    `json:"actor"`
	Note               string    `json:"note,omitempty"`
	OldSelectionStatus string    `json:"old_selection_status"`
	NewSelectionStatus string    `json:"new_selection_status"`
	OldBetStatus       string    `json:"old_bet_status"`
	NewBetStatus       string    `json:"new_bet_status"`
	CreatedAt          time.Time `json:"created_at"`
}

type OverrideResponse struct {
	Success bool       `json:"success"`
	Audit   AuditEntry `json:"audit"`
}
