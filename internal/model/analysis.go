package model

import "time"

// Analysis is the advisory verdict returned by the analysis collaborator
type Analysis struct {
	PlayerID       PlayerID  `json:"playerId"`
	SessionID      SessionID `json:"sessionId"`
	RiskScore      float64   `json:"riskScore"`
	Recommendation string    `json:"recommendation"`
	AnalyzedAt     time.Time `json:"analyzedAt"`
}
