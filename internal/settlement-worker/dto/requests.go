package dto

type OverrideRequest struct {
	Status string `json:"status"` // "won" | "lost" | "void"
	Actor  string `json:"actor"`
	Note   string `json:"note,omitempty"`
}
