package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/storage"
)

// PlayerHandler handles player-related endpoints
type PlayerHandler struct {
	storage storage.Storage
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(storage storage.Storage) *PlayerHandler {
	return &PlayerHandler{
		storage: storage,
	}
}

// Stats handles GET /api/v1/players/{id}/stats
// A player who never finished a session has zero stats.
func (h *PlayerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := model.PlayerID(mux.Vars(r)["id"])

	stats, err := h.storage.GetPlayerStats(r.Context(), id)
	if errors.Is(err, model.ErrPlayerNotFound) {
		stats, err = &model.PlayerStats{PlayerID: id}, nil
	}
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.PlayerStatsFromModel(stats))
}

// Analyses handles GET /api/v1/players/{id}/analyses
func (h *PlayerHandler) Analyses(w http.ResponseWriter, r *http.Request) {
	id := model.PlayerID(mux.Vars(r)["id"])

	analyses, err := h.storage.GetAnalyses(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.AnalysisListFromModel(id, analyses))
}
