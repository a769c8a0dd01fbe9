package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes. Engine errors use their own code, upper-cased.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodeResultNotFound    = "RESULT_NOT_FOUND"
	CodeShuttingDown      = "SHUTTING_DOWN"
	CodeTokensUnavailable = "TOKENS_UNAVAILABLE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// statusByKind is the HTTP status for each engine error kind
var statusByKind = map[model.Kind]int{
	model.KindProtocol:       http.StatusBadRequest,
	model.KindAuthentication: http.StatusUnauthorized,
	model.KindSession:        http.StatusConflict,
	model.KindAction:         http.StatusUnprocessableEntity,
	model.KindInternal:       http.StatusInternalServerError,
}

// statusByCode narrows statusByKind for individual codes
var statusByCode = map[string]int{
	model.ErrSessionNotFound.Code:  http.StatusNotFound,
	model.ErrInvalidConfig.Code:    http.StatusBadRequest,
	model.ErrUnknownGameType.Code:  http.StatusBadRequest,
	model.ErrStakeOutOfBounds.Code: http.StatusBadRequest,
	model.ErrGameTypeMismatch.Code: http.StatusBadRequest,
}

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrResultNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeResultNotFound, "Result not found"}}
	case errors.Is(err, auth.ErrNotConfigured) && !errors.Is(err, model.ErrAuthenticationFailed):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeTokensUnavailable, "Token signing is not configured"}}
	}

	var me *model.Error
	if !errors.As(err, &me) || me.Kind == model.KindInternal {
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
	if me.Kind == model.KindAuthentication {
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, me.Message}}
	}

	status, ok := statusByCode[me.Code]
	if !ok {
		status = statusByKind[me.Kind]
	}
	return &httpError{status, APIError{codeOf(me), err.Error()}}
}

// codeOf turns an engine code like session-not-found into SESSION_NOT_FOUND
func codeOf(me *model.Error) string {
	return strings.ToUpper(strings.ReplaceAll(me.Code, "-", "_"))
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError() error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Admin role required"}}
}

// NewShuttingDownError reports that the server no longer accepts work
func NewShuttingDownError() error {
	return &httpError{http.StatusServiceUnavailable, APIError{CodeShuttingDown, "Server is shutting down"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
