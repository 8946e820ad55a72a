package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vulcanlabs/vulcan/db"
	"github.com/vulcanlabs/vulcan/internal/api"
	"github.com/vulcanlabs/vulcan/internal/auth"
	"github.com/vulcanlabs/vulcan/internal/backend/agent"
	"github.com/vulcanlabs/vulcan/internal/backend/chat"
	"github.com/vulcanlabs/vulcan/internal/backend/knowledge"
	"github.com/vulcanlabs/vulcan/internal/breaker"
	"github.com/vulcanlabs/vulcan/internal/config"
	"github.com/vulcanlabs/vulcan/internal/integration"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/observability"
	"github.com/vulcanlabs/vulcan/internal/session"
	sessionpg "github.com/vulcanlabs/vulcan/internal/session/postgres"
	sessionredis "github.com/vulcanlabs/vulcan/internal/session/redis"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so Genkit's TracerProvider carries the exporter.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	a.Knowledge, err = knowledge.NewStore(pool, a.Embedder, logger.With("component", "knowledge"))
	if err != nil {
		return nil, err
	}

	a.Sessions, a.redis, err = provideSessions(cfg, pool, logger)
	if err != nil {
		return nil, err
	}

	svc, err := provideOrchestrator(a, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Service = svc

	a.Server, err = provideServer(a, cfg, logger)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization,
// so the TracerProvider is ready when Genkit starts instrumenting.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger.With("component", "observability"),
	})
	if err != nil {
		logger.Warn("tracing setup failed, continuing without", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := timeoutCtx()
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}
	logger.Info("initialized Genkit", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideDBPool runs migrations and creates the PostgreSQL pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideSessions builds the session store on the configured backend.
// The returned redis client is non-nil only for the redis backend, so
// Close can release it.
func provideSessions(cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (*session.Store, *redis.Client, error) {
	sessionLogger := logger.With("component", "session")

	var backend session.Backend
	var client *redis.Client

	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		backend = session.NewMemory()
	case config.SessionBackendRedis:
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b, err := sessionredis.New(client, cfg.SessionExpiry, sessionLogger)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("creating redis session backend: %w", err)
		}
		backend = b
	default: // postgres
		b, err := sessionpg.New(pool, sessionLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres session backend: %w", err)
		}
		backend = b
	}

	store, err := session.NewStore(session.Config{
		Backend:    backend,
		Logger:     sessionLogger,
		Expiry:     cfg.SessionExpiry,
		HistoryCap: cfg.HistoryCap,
	})
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, fmt.Errorf("creating session store: %w", err)
	}

	return store, client, nil
}

// provideOrchestrator assembles the three backends and the command
// orchestrator over them.
func provideOrchestrator(a *App, cfg *config.Config, logger log.Logger) (*integration.Service, error) {
	chatAdapter, err := chat.New(chat.Config{
		Genkit:      a.Genkit,
		Logger:      logger.With("component", "chat"),
		ModelName:   cfg.FullModelName(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat backend: %w", err)
	}

	kbAdapter, err := knowledge.New(knowledge.Config{
		Genkit:      a.Genkit,
		Logger:      logger.With("component", "knowledge"),
		Retriever:   a.Knowledge,
		ModelName:   cfg.FullModelName(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating knowledge backend: %w", err)
	}

	toolAgent, err := agent.New(agent.Config{
		Logger:        logger.With("component", "agent"),
		Location:      cfg.AgentLocation,
		Timezone:      cfg.AgentTimezone,
		WeatherAPIKey: cfg.WeatherAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tool agent: %w", err)
	}

	return integration.New(integration.Config{
		Logger:    logger.With("component", "integration"),
		Sessions:  a.Sessions,
		Chat:      chatAdapter,
		Knowledge: kbAdapter,
		Catalog:   a.Knowledge,
		Agent:     toolAgent,
		AgentBreaker: breaker.Config{
			FailureThreshold: cfg.AgentBreakerThreshold,
			RecoveryTimeout:  cfg.AgentBreakerCooldown,
		},
		ChatBreaker: breaker.Config{
			FailureThreshold: cfg.ModelBreakerThreshold,
			RecoveryTimeout:  cfg.ModelBreakerCooldown,
		},
		KBBreaker: breaker.Config{
			FailureThreshold: cfg.ModelBreakerThreshold,
			RecoveryTimeout:  cfg.ModelBreakerCooldown,
		},
	})
}

// provideServer builds the HTTP surface over the orchestrator.
func provideServer(a *App, cfg *config.Config, logger log.Logger) (*api.Server, error) {
	var validator *auth.Validator
	if cfg.JWTSecret != "" {
		v, err := auth.NewValidator(auth.Config{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   30 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("creating token validator: %w", err)
		}
		validator = v
	}

	srv, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Service:     a.Service,
		Sessions:    a.Sessions,
		Catalog:     a.Knowledge,
		Auth:        validator,
		Pool:        a.DBPool,
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.IsDev,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}

	return srv, nil
}
