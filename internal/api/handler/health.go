package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/services/engine"
	"github.com/mcoot/arenaengine/internal/services/liveness"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/storage"
)

const storagePingTimeout = 2 * time.Second

// HealthHandler reports liveness and a summary of the engine's state
type HealthHandler struct {
	engine     *engine.Engine
	storage    storage.Storage
	gateway    *gateway.Gateway
	supervisor *liveness.Supervisor
	rules      *rules.Registry
}

// NewHealthHandler creates a new health handler. gateway and supervisor may be nil.
func NewHealthHandler(engine *engine.Engine, storage storage.Storage, gateway *gateway.Gateway, supervisor *liveness.Supervisor, rules *rules.Registry) *HealthHandler {
	return &HealthHandler{
		engine:     engine,
		storage:    storage,
		gateway:    gateway,
		supervisor: supervisor,
		rules:      rules,
	}
}

// Get handles GET /api/v1/health
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	counts := h.engine.Counts()
	health := response.Health{
		Status:    "ok",
		Storage:   "ok",
		Sessions:  counts.Sessions,
		Players:   counts.Players,
		Connected: counts.Connected,
		Workers:   counts.Workers,
		GameTypes: h.rules.Types(),
	}
	if h.gateway != nil {
		health.Connections = h.gateway.Len()
	}
	if h.supervisor != nil {
		last := h.supervisor.Last()
		health.LastSweep = &last
	}

	status := http.StatusOK
	ctx, cancel := context.WithTimeout(r.Context(), storagePingTimeout)
	defer cancel()
	if err := h.storage.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.Storage = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.engine.Closing() {
		health.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, health)
}
