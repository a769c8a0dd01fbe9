package testutil

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
)

// ErrFakeConnClosed is returned by Send after Close
var ErrFakeConnClosed = errors.New("fake connection closed")

// FakeConn records everything sent to it. It satisfies registry.Conn and
// the engine's client interface.
type FakeConn struct {
	id string

	mu            sync.Mutex
	sent          []protocol.Envelope
	closed        bool
	closeReason   string
	authenticated bool
	authExpired   bool
	playerID      model.PlayerID
}

// NewFakeConn creates a recording connection with the given id
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) ID() string {
	return c.id
}

func (c *FakeConn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrFakeConnClosed
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *FakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
	}
}

// Authenticate binds the player unless ExpireAuth was called first
func (c *FakeConn) Authenticate(playerID model.PlayerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authExpired {
		return false
	}
	c.authenticated = true
	c.playerID = playerID
	return true
}

func (c *FakeConn) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *FakeConn) PlayerID() model.PlayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// ExpireAuth simulates the authentication grace window running out
func (c *FakeConn) ExpireAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authExpired = true
}

// Sent returns a copy of every envelope sent so far
func (c *FakeConn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.sent...)
}

// SentTypes returns the message types sent so far, in order
func (c *FakeConn) SentTypes() []protocol.MessageType {
	sent := c.Sent()
	types := make([]protocol.MessageType, len(sent))
	for i, env := range sent {
		types[i] = env.Type
	}
	return types
}

// LastOfType returns the most recent envelope of the given type
func (c *FakeConn) LastOfType(t protocol.MessageType) (protocol.Envelope, bool) {
	sent := c.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Type == t {
			return sent[i], true
		}
	}
	return protocol.Envelope{}, false
}

// ErrorCodes returns the codes of every error envelope sent so far
func (c *FakeConn) ErrorCodes() []string {
	var codes []string
	for _, env := range c.Sent() {
		if env.Type != protocol.TypeError {
			continue
		}
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(env.Payload, &payload); err == nil {
			codes = append(codes, payload.Code)
		}
	}
	return codes
}

// DecodeLast unmarshals the payload of the most recent envelope of type t into v
func (c *FakeConn) DecodeLast(t protocol.MessageType, v any) bool {
	env, ok := c.LastOfType(t)
	if !ok {
		return false
	}
	return json.Unmarshal(env.Payload, v) == nil
}

// Closed reports whether Close was called and with what reason
func (c *FakeConn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

// Reset forgets everything sent so far
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
