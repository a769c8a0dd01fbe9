package request

// IssueTokenRequest is the request body for issuing a player token
type IssueTokenRequest struct {
	PlayerID   string         `json:"player_id"`
	Role       string         `json:"role,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// TerminateSessionRequest is the optional request body for ending a session
type TerminateSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}
