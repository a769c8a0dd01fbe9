package protocol

import (
	"encoding/json"
	"time"

	"github.com/mcoot/arenaengine/internal/model"
)

// WelcomePayload is the first message on every connection
type WelcomePayload struct {
	ConnectionID string `json:"connectionId"`
	AuthDeadline int64  `json:"authDeadline"`
}

// AuthenticationResultPayload answers an authenticate message
type AuthenticationResultPayload struct {
	OK       bool           `json:"ok"`
	PlayerID model.PlayerID `json:"playerId,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// GameJoinedPayload is sent to the joining player only
type GameJoinedPayload struct {
	SessionID model.SessionID     `json:"sessionId"`
	GameType  model.GameType      `json:"gameType"`
	Status    model.SessionStatus `json:"status"`
	Config    SessionConfig       `json:"config"`
	Roster    []model.Participant `json:"roster"`
	State     json.RawMessage     `json:"state,omitempty"`
}

// RosterChangePayload is used for player_joined and player_left
type RosterChangePayload struct {
	SessionID  model.SessionID `json:"sessionId"`
	PlayerID   model.PlayerID  `json:"playerId"`
	RosterSize int             `json:"rosterSize"`
}

// GameStartedPayload announces the session went active
type GameStartedPayload struct {
	SessionID model.SessionID     `json:"sessionId"`
	Roster    []model.Participant `json:"roster"`
	State     json.RawMessage     `json:"state"`
}

// GameUpdatePayload carries the state after an applied action
type GameUpdatePayload struct {
	SessionID  model.SessionID     `json:"sessionId"`
	State      json.RawMessage     `json:"state"`
	Roster     []model.Participant `json:"roster"`
	LastAction model.Action        `json:"lastAction"`
	Events     []model.Event       `json:"events,omitempty"`
}

// GameEndedPayload carries the session's single result
type GameEndedPayload struct {
	SessionID model.SessionID     `json:"sessionId"`
	Reason    model.EndReason     `json:"reason"`
	Result    model.SessionResult `json:"result"`
}

// HeartbeatAckPayload answers a heartbeat
type HeartbeatAckPayload struct {
	ServerTime int64 `json:"serverTime"`
}

// ErrorPayload is sent for any connection- or action-scoped failure
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// build wraps NewEnvelope for payloads that are always encodable; an encoding
// failure degrades to an internal error envelope rather than a lost message.
func build(t MessageType, payload any, now time.Time) Envelope {
	env, err := NewEnvelope(t, payload, now)
	if err != nil {
		return ErrorMessage(model.ErrInternal.Code, err.Error(), now)
	}
	return env
}

// Welcome builds the welcome message
func Welcome(connectionID string, authDeadline, now time.Time) Envelope {
	return build(TypeWelcome, WelcomePayload{ConnectionID: connectionID, AuthDeadline: authDeadline.UnixMilli()}, now)
}

// AuthenticationOK builds a successful authentication_result
func AuthenticationOK(playerID model.PlayerID, now time.Time) Envelope {
	return build(TypeAuthenticationResult, AuthenticationResultPayload{OK: true, PlayerID: playerID}, now)
}

// AuthenticationFailed builds a failed authentication_result
func AuthenticationFailed(reason string, now time.Time) Envelope {
	return build(TypeAuthenticationResult, AuthenticationResultPayload{OK: false, Reason: reason}, now)
}

// GameJoined builds the game_joined message
func GameJoined(snap model.SessionSnapshot, now time.Time) Envelope {
	return build(TypeGameJoined, GameJoinedPayload{
		SessionID: snap.ID,
		GameType:  snap.GameType,
		Status:    snap.Status,
		Config:    WireConfig(snap.Config),
		Roster:    snap.Roster,
		State:     snap.State,
	}, now)
}

// PlayerJoined builds the player_joined broadcast
func PlayerJoined(sessionID model.SessionID, playerID model.PlayerID, rosterSize int, now time.Time) Envelope {
	return build(TypePlayerJoined, RosterChangePayload{SessionID: sessionID, PlayerID: playerID, RosterSize: rosterSize}, now)
}

// PlayerLeft builds the player_left broadcast
func PlayerLeft(sessionID model.SessionID, playerID model.PlayerID, rosterSize int, now time.Time) Envelope {
	return build(TypePlayerLeft, RosterChangePayload{SessionID: sessionID, PlayerID: playerID, RosterSize: rosterSize}, now)
}

// GameStarted builds the game_started broadcast
func GameStarted(snap model.SessionSnapshot, now time.Time) Envelope {
	return build(TypeGameStarted, GameStartedPayload{SessionID: snap.ID, Roster: snap.Roster, State: snap.State}, now)
}

// GameUpdate builds the game_update broadcast
func GameUpdate(snap model.SessionSnapshot, action model.Action, events []model.Event, now time.Time) Envelope {
	return build(TypeGameUpdate, GameUpdatePayload{
		SessionID:  snap.ID,
		State:      snap.State,
		Roster:     snap.Roster,
		LastAction: action,
		Events:     events,
	}, now)
}

// GameEnded builds the game_ended broadcast
func GameEnded(result model.SessionResult, now time.Time) Envelope {
	return build(TypeGameEnded, GameEndedPayload{SessionID: result.SessionID, Reason: result.Reason, Result: result}, now)
}

// HeartbeatAck builds the heartbeat_ack message
func HeartbeatAck(now time.Time) Envelope {
	return build(TypeHeartbeatAck, HeartbeatAckPayload{ServerTime: now.UnixMilli()}, now)
}

// ErrorMessage builds an error message with an explicit code
func ErrorMessage(code, message string, now time.Time) Envelope {
	data, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{Type: TypeError, Payload: data, Timestamp: now.UnixMilli()}
}

// ErrorFrom builds an error message whose code is derived from err
func ErrorFrom(err error, now time.Time) Envelope {
	if model.KindOf(err) == model.KindInternal {
		return ErrorMessage(model.ErrInternal.Code, model.ErrInternal.Message, now)
	}
	return ErrorMessage(model.CodeOf(err), err.Error(), now)
}

// WireConfig converts a model config into its wire form
func WireConfig(cfg model.SessionConfig) SessionConfig {
	return SessionConfig{
		MaxPlayers:         cfg.MaxPlayers,
		MinPlayers:         cfg.MinPlayers,
		MaxDurationSeconds: int(cfg.MaxDuration / time.Second),
		MinStake:           cfg.MinStake,
		MaxStake:           cfg.MaxStake,
	}
}
