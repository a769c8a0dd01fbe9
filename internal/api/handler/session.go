package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/arenaengine/internal/api/apierr"
	"github.com/mcoot/arenaengine/internal/api/request"
	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/engine"
	"github.com/mcoot/arenaengine/internal/storage"
)

// SessionHandler handles session endpoints
type SessionHandler struct {
	engine  *engine.Engine
	storage storage.Storage
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(engine *engine.Engine, storage storage.Storage) *SessionHandler {
	return &SessionHandler{
		engine:  engine,
		storage: storage,
	}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.engine.Sessions()
	status := model.SessionStatus(r.URL.Query().Get("status"))

	list := response.SessionList{Sessions: make([]response.Session, 0, len(snaps))}
	for _, snap := range snaps {
		if status != "" && snap.Status != status {
			continue
		}
		list.Sessions = append(list.Sessions, response.SessionFromSnapshot(snap))
	}
	response.JSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/sessions/{id}
// A finished session is answered from the settled results.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := model.SessionID(mux.Vars(r)["id"])

	snap, err := h.engine.Session(id)
	if err == nil {
		session := response.SessionFromSnapshot(snap)
		response.JSON(w, http.StatusOK, response.SessionLookup{Session: &session})
		return
	}
	if !errors.Is(err, model.ErrSessionNotFound) {
		writeError(w, err)
		return
	}

	result, err := h.storage.GetResult(r.Context(), id)
	if errors.Is(err, model.ErrResultNotFound) {
		writeError(w, model.ErrSessionNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	converted := response.ResultFromModel(result)
	response.JSON(w, http.StatusOK, response.SessionLookup{Result: &converted})
}

// Start handles POST /api/v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.engine.Closing() {
		writeError(w, apierr.NewShuttingDownError())
		return
	}
	id := model.SessionID(mux.Vars(r)["id"])

	snap, err := h.engine.StartSession(id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.SessionFromSnapshot(snap))
}

// Terminate handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := model.SessionID(mux.Vars(r)["id"])

	var req request.TerminateSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	reason := model.EndReason(req.Reason)
	switch reason {
	case "":
		reason = model.EndReasonShutdown
	case model.EndReasonTimeout, model.EndReasonInsufficientPlayers, model.EndReasonShutdown:
	default:
		writeError(w, badRequest("reason must be timeout, insufficient_players or shutdown"))
		return
	}

	result, err := h.engine.Terminate(id, reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.ResultFromModel(result))
}
