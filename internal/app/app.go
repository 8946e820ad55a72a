// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the assistant: Genkit with the
// Google AI plugin, the PostgreSQL pool (with migrations), the session
// store on its configured backend, the three backends behind the
// orchestrator, and the HTTP server.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vulcanlabs/vulcan/internal/api"
	"github.com/vulcanlabs/vulcan/internal/backend/knowledge"
	"github.com/vulcanlabs/vulcan/internal/config"
	"github.com/vulcanlabs/vulcan/internal/integration"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Service   *integration.Service
	Server    *api.Server

	redis       *redis.Client
	otelCleanup func()
}

// Close releases resources in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

// shutdownTimeout bounds trace flushing during Close.
const shutdownTimeout = 5 * time.Second

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
