package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcoot/arenaengine/internal/model"
)

// AutoSession asks the engine to pick (or create) a joinable session
const AutoSession = "auto"

// Inbound is the tagged union of client messages
type Inbound interface {
	MessageType() MessageType
}

// Authenticate carries the player's bearer token
type Authenticate struct {
	Token string `json:"token"`
}

// JoinGame asks to join a specific session or, with "auto", any joinable one
type JoinGame struct {
	GameType  model.GameType `json:"gameType"`
	SessionID string         `json:"sessionId"`
	Stake     int64          `json:"stake"`
	Config    *SessionConfig `json:"config,omitempty"`
}

// IsAuto returns true if the engine should pick the session
func (j JoinGame) IsAuto() bool {
	return j.SessionID == "" || j.SessionID == AutoSession
}

// GameAction submits a move to a session
type GameAction struct {
	SessionID  model.SessionID  `json:"sessionId"`
	ActionType model.ActionType `json:"actionType"`
	Data       json.RawMessage  `json:"data,omitempty"`
}

// LeaveGame removes the player from a session
type LeaveGame struct {
	SessionID model.SessionID `json:"sessionId"`
}

// Heartbeat keeps an idle connection alive
type Heartbeat struct{}

func (Authenticate) MessageType() MessageType { return TypeAuthenticate }
func (JoinGame) MessageType() MessageType     { return TypeJoinGame }
func (GameAction) MessageType() MessageType   { return TypeGameAction }
func (LeaveGame) MessageType() MessageType    { return TypeLeaveGame }
func (Heartbeat) MessageType() MessageType    { return TypeHeartbeat }

// SessionConfig is the wire form of model.SessionConfig.
// Zero fields fall back to the defaults.
type SessionConfig struct {
	MaxPlayers         int   `json:"maxPlayers,omitempty"`
	MinPlayers         int   `json:"minPlayers,omitempty"`
	MaxDurationSeconds int   `json:"maxDurationSeconds,omitempty"`
	MinStake           int64 `json:"minStake,omitempty"`
	MaxStake           int64 `json:"maxStake,omitempty"`
}

// Resolve overlays the wire config on top of defaults
func (c *SessionConfig) Resolve(defaults model.SessionConfig) model.SessionConfig {
	cfg := defaults
	if c == nil {
		return cfg
	}
	if c.MaxPlayers > 0 {
		cfg.MaxPlayers = c.MaxPlayers
		if cfg.MinPlayers > cfg.MaxPlayers {
			cfg.MinPlayers = cfg.MaxPlayers
		}
	}
	if c.MinPlayers > 0 {
		cfg.MinPlayers = c.MinPlayers
	}
	if c.MaxDurationSeconds > 0 {
		cfg.MaxDuration = time.Duration(c.MaxDurationSeconds) * time.Second
	}
	if c.MinStake > 0 {
		cfg.MinStake = c.MinStake
	}
	if c.MaxStake > 0 {
		cfg.MaxStake = c.MaxStake
	}
	return cfg
}

// Decode parses a raw frame into its typed inbound message.
// Every failure wraps model.ErrMalformedMessage or model.ErrUnknownMessage.
func Decode(data []byte) (Inbound, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeAuthenticate:
		var msg Authenticate
		if err := env.DecodePayload(&msg); err != nil {
			return nil, err
		}
		if msg.Token == "" {
			return nil, fmt.Errorf("%w: authenticate requires a token", model.ErrMalformedMessage)
		}
		return msg, nil

	case TypeJoinGame:
		var msg JoinGame
		if err := env.DecodePayload(&msg); err != nil {
			return nil, err
		}
		if msg.GameType == "" {
			return nil, fmt.Errorf("%w: join_game requires a gameType", model.ErrMalformedMessage)
		}
		if msg.Stake < 0 {
			return nil, fmt.Errorf("%w: stake must not be negative", model.ErrMalformedMessage)
		}
		return msg, nil

	case TypeGameAction:
		var msg GameAction
		if err := env.DecodePayload(&msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.ActionType == "" {
			return nil, fmt.Errorf("%w: game_action requires sessionId and actionType", model.ErrMalformedMessage)
		}
		return msg, nil

	case TypeLeaveGame:
		var msg LeaveGame
		if err := env.DecodePayload(&msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%w: leave_game requires a sessionId", model.ErrMalformedMessage)
		}
		return msg, nil

	case TypeHeartbeat:
		return Heartbeat{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownMessage, env.Type)
	}
}

// Encode builds the envelope for an inbound message, used by clients
func Encode(msg Inbound, now time.Time) ([]byte, error) {
	env, err := NewEnvelope(msg.MessageType(), msg, now)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
