package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionID uniquely identifies a game session
type SessionID string

// GameType names a registered rule set (e.g. "duel")
type GameType string

// SessionStatus represents the lifecycle phase of a session
type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"   // Accepting players
	SessionStatusActive    SessionStatus = "active"    // Game in progress
	SessionStatusCompleted SessionStatus = "completed" // Ended normally or by timeout
	SessionStatusAborted   SessionStatus = "aborted"   // Ended without a normal outcome
)

// IsTerminal returns true for completed and aborted
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusAborted
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Transitions are monotonic: nothing ever returns to waiting, and terminal
// states are final.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusWaiting:
		return next == SessionStatusActive || next == SessionStatusAborted
	case SessionStatusActive:
		return next == SessionStatusCompleted || next == SessionStatusAborted
	default:
		return false
	}
}

// SessionConfig holds the per-session tunables agreed at creation
type SessionConfig struct {
	MaxPlayers  int           `json:"maxPlayers"`
	MinPlayers  int           `json:"minPlayers"`
	MaxDuration time.Duration `json:"maxDuration"`
	MinStake    int64         `json:"minStake"`
	MaxStake    int64         `json:"maxStake"`
}

// DefaultSessionConfig returns the configuration used when a client does not supply one
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxPlayers:  2,
		MinPlayers:  2,
		MaxDuration: 300 * time.Second,
		MinStake:    0,
		MaxStake:    1000,
	}
}

// Validate checks the configuration is internally consistent
func (c SessionConfig) Validate() error {
	switch {
	case c.MaxPlayers < 1:
		return fmt.Errorf("%w: max players must be at least 1", ErrInvalidConfig)
	case c.MinPlayers < 1 || c.MinPlayers > c.MaxPlayers:
		return fmt.Errorf("%w: min players must be between 1 and %d", ErrInvalidConfig, c.MaxPlayers)
	case c.MaxDuration <= 0:
		return fmt.Errorf("%w: max duration must be positive", ErrInvalidConfig)
	case c.MinStake < 0 || c.MaxStake < c.MinStake:
		return fmt.Errorf("%w: stake bounds are invalid", ErrInvalidConfig)
	}
	return nil
}

// AcceptsStake returns true if the stake lies within the configured bounds
func (c SessionConfig) AcceptsStake(stake int64) bool {
	return stake >= c.MinStake && stake <= c.MaxStake
}

// Participant is one roster entry of a session
type Participant struct {
	PlayerID PlayerID  `json:"playerId"`
	Stake    int64     `json:"stake"`
	Score    int64     `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// SessionSnapshot is a point-in-time copy of a session, safe to hand outside its lock
type SessionSnapshot struct {
	ID        SessionID       `json:"id"`
	GameType  GameType        `json:"gameType"`
	Status    SessionStatus   `json:"status"`
	Config    SessionConfig   `json:"config"`
	Roster    []Participant   `json:"roster"`
	State     json.RawMessage `json:"state,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Events    []Event         `json:"events,omitempty"`
}
