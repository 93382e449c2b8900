package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chatwarden/telemetry"
)

// withCorrelation assigns every request a correlation id (honoring an
// incoming X-Request-ID), echoes it back, and logs the request.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Request-ID")
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", corr)
		ctx := telemetry.WithCorrelation(r.Context(), corr)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		telemetry.LoggerWithCorr(ctx).Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}
