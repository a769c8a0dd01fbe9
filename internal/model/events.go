package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Session lifecycle events
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerLeft     EventType = "player_left"
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"

	// Gameplay events, emitted by rule sets
	EventActionApplied EventType = "action_applied"
	EventScoreChanged  EventType = "score_changed"
	EventPlayerMoved   EventType = "player_moved"
	EventPlayerHit     EventType = "player_hit"
	EventGameOver      EventType = "game_over"
)

// Event is the base structure for all session events
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID SessionID `json:"sessionId"`
	PlayerID  PlayerID  `json:"playerId,omitempty"` // The player who triggered or is affected
	Payload   any       `json:"payload,omitempty"` // Type-specific data
}

// ScoreChangedPayload adjusts a player's roster score by Delta
type ScoreChangedPayload struct {
	PlayerID PlayerID `json:"playerId"`
	Delta    int64    `json:"delta"`
}

// PlayerMovedPayload contains data for player moved events
type PlayerMovedPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlayerHitPayload contains data for player hit events
type PlayerHitPayload struct {
	Target    PlayerID `json:"target"`
	Damage    int      `json:"damage"`
	Remaining int      `json:"remaining"`
}

// GameOverPayload signals that the rule set has reached a natural end
type GameOverPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SessionEndedPayload contains data for session ended events
type SessionEndedPayload struct {
	Reason EndReason `json:"reason"`
}
