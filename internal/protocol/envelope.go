// Package protocol defines the JSON envelope spoken over game connections and
// the typed messages carried inside it.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcoot/arenaengine/internal/model"
)

// MessageType is the envelope discriminator
type MessageType string

// Inbound message types
const (
	TypeAuthenticate MessageType = "authenticate"
	TypeJoinGame     MessageType = "join_game"
	TypeGameAction   MessageType = "game_action"
	TypeLeaveGame    MessageType = "leave_game"
	TypeHeartbeat    MessageType = "heartbeat"
)

// Outbound message types
const (
	TypeWelcome              MessageType = "welcome"
	TypeAuthenticationResult MessageType = "authentication_result"
	TypeGameJoined           MessageType = "game_joined"
	TypePlayerJoined         MessageType = "player_joined"
	TypeGameStarted          MessageType = "game_started"
	TypeGameUpdate           MessageType = "game_update"
	TypePlayerLeft           MessageType = "player_left"
	TypeGameEnded            MessageType = "game_ended"
	TypeHeartbeatAck         MessageType = "heartbeat_ack"
	TypeError                MessageType = "error"
)

// Envelope wraps every message on the wire.
// Timestamp is milliseconds since the Unix epoch.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope marshals payload into an envelope of the given type
func NewEnvelope(t MessageType, payload any, now time.Time) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: now.UnixMilli()}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	env.Payload = data
	return env, nil
}

// Encode serialises the envelope for the wire
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses raw bytes into an envelope without interpreting the payload
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", model.ErrMalformedMessage)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", model.ErrMalformedMessage, e.Type, err)
	}
	return nil
}
