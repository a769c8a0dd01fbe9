package handler

import (
	"net/http"
	"strconv"

	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/storage"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// ResultHandler handles settled session results
type ResultHandler struct {
	storage storage.Storage
}

// NewResultHandler creates a new result handler
func NewResultHandler(storage storage.Storage) *ResultHandler {
	return &ResultHandler{
		storage: storage,
	}
}

// List handles GET /api/v1/results?limit=N, newest first
func (h *ResultHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, maxResultLimit)
	}

	results, err := h.storage.ListResults(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	list := response.ResultList{Results: make([]response.Result, len(results))}
	for i, result := range results {
		list.Results[i] = response.ResultFromModel(result)
	}
	response.JSON(w, http.StatusOK, list)
}
