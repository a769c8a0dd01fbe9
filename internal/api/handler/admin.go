package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/arenaengine/internal/api/middleware"
	"github.com/mcoot/arenaengine/internal/api/request"
	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/auth"
)

// AdminHandler handles operator endpoints
type AdminHandler struct {
	authService *auth.Service
	shutdown    func()
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler. shutdown is invoked at most
// once per request and must not block.
func NewAdminHandler(authService *auth.Service, shutdown func(), logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		shutdown:    shutdown,
		logger:      logger,
	}
}

// IssueToken handles POST /api/v1/admin/tokens
func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req request.IssueTokenRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, badRequest("player_id is required"))
		return
	}

	token, err := h.authService.Issue(model.PlayerID(req.PlayerID), req.Role, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("token issued",
		slog.String("player_id", req.PlayerID),
		slog.String("role", req.Role),
		slog.String("issued_by", string(middleware.MustGetIdentity(r.Context()).PlayerID)))
	response.JSON(w, http.StatusCreated, response.TokenFromAuth(token))
}

// Shutdown handles POST /api/v1/admin/shutdown
func (h *AdminHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("shutdown requested",
		slog.String("requested_by", string(middleware.MustGetIdentity(r.Context()).PlayerID)))

	if h.shutdown != nil {
		h.shutdown()
	}
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
}
