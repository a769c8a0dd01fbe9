package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/arenaengine/internal/api/apierr"
	"github.com/mcoot/arenaengine/internal/middleware"
)

// Recovery answers handler panics with the API's INTERNAL_ERROR body
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		apierr.WriteError(w, apierr.NewInternalError())
	})
}
