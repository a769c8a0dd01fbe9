package model

import "errors"

// Kind classifies an error by how far its effects reach
type Kind string

const (
	// KindProtocol errors are scoped to one connection
	KindProtocol Kind = "protocol"
	// KindAuthentication errors close the connection once the grace window passes
	KindAuthentication Kind = "authentication"
	// KindSession errors are returned to the requesting player only
	KindSession Kind = "session"
	// KindAction errors are returned to the requesting player only
	KindAction Kind = "action"
	// KindInternal errors abort the offending session
	KindInternal Kind = "internal"
)

// Error is a classified error carrying the code sent to clients
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Common errors used across the application
var (
	// Protocol errors
	ErrMalformedMessage = newError(KindProtocol, "protocol-error", "malformed message")
	ErrUnknownMessage   = newError(KindProtocol, "protocol-error", "unknown message type")
	ErrRateLimited      = newError(KindProtocol, "rate-limited", "too many messages")

	// Authentication errors
	ErrAuthenticationFailed  = newError(KindAuthentication, "authentication-failed", "invalid or expired token")
	ErrNotAuthenticated      = newError(KindAuthentication, "not-authenticated", "connection is not authenticated")
	ErrAlreadyAuthenticated  = newError(KindAuthentication, "already-authenticated", "connection is already authenticated")
	ErrAuthenticationTimeout = newError(KindAuthentication, "authentication-timeout", "authentication timeout")
	ErrSessionReplaced       = newError(KindAuthentication, "session-replaced", "player connected from another client")

	// Session errors
	ErrSessionNotFound  = newError(KindSession, "session-not-found", "session not found")
	ErrSessionFull      = newError(KindSession, "session-full", "session is full")
	ErrWrongStatus      = newError(KindSession, "wrong-status", "session is not accepting players")
	ErrStakeOutOfBounds = newError(KindSession, "stake-out-of-bounds", "stake is outside the session bounds")
	ErrAlreadyInSession = newError(KindSession, "already-in-session", "player is already in a session")
	ErrUnknownGameType  = newError(KindSession, "unknown-game-type", "unknown game type")
	ErrInvalidConfig    = newError(KindSession, "invalid-config", "invalid session config")
	ErrGameTypeMismatch = newError(KindSession, "game-type-mismatch", "session is for a different game type")

	// Action errors
	ErrSessionNotActive   = newError(KindAction, "session-not-active", "session is not active")
	ErrPlayerNotInSession = newError(KindAction, "player-not-in-session", "player is not in this session")
	ErrInvalidAction      = newError(KindAction, "invalid-action", "action type is not valid for this game")
	ErrActionRejected     = newError(KindAction, "action-rejected", "action rejected by game rules")

	// Internal errors
	ErrInternal = newError(KindInternal, "internal-error", "internal error")

	// Storage errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrResultNotFound = errors.New("result not found")
)

// CodeOf returns the client-facing code for err, defaulting to internal-error
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// KindOf returns the taxonomy kind for err, defaulting to internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
