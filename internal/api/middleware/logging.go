package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/middleware"
)

// Logging creates request logging middleware for the API; requests are also
// timed into the collector, which may be nil
func Logging(logger *slog.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	if collector == nil {
		return middleware.Logging(logger, nil)
	}
	return middleware.Logging(logger, collector)
}

// RequestID tags each API request with an id echoed in the X-Request-ID header
func RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}
