package model

import (
	"encoding/json"
	"time"
)

// ActionType names a game-specific move ("move", "attack", "tap"...)
type ActionType string

// Action is a single player move submitted to a session.
// Actions are immutable once created and are consumed exactly once.
type Action struct {
	PlayerID    PlayerID        `json:"playerId"`
	SessionID   SessionID       `json:"sessionId"`
	Type        ActionType      `json:"actionType"`
	Payload     json.RawMessage `json:"data,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
}
