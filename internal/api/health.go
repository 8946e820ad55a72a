package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vulcanlabs/vulcan/internal/log"
)

// health is a liveness probe. Returns 200 while the process is up.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the service can do useful work: the database
// must answer a ping (when a pool is configured) and no circuit breaker
// may be open. Returns 503 otherwise so load balancers drain traffic.
func readiness(pool *pgxpool.Pool, svc CommandProcessor, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ready"}
		status := http.StatusOK

		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := pool.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("readiness database ping failed", "error", err)
				body["status"] = "unavailable"
				body["database"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				stats := pool.Stat()
				body["database"] = map[string]any{
					"total_conns": stats.TotalConns(),
					"idle_conns":  stats.IdleConns(),
				}
			}
		}

		if svc != nil {
			sys := svc.Status()
			body["backends"] = sys
			if !sys.Healthy {
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, status, body, logger)
	}
}
