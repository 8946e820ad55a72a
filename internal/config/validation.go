package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Sentinel validation errors, checkable with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidMaxResults indicates the retrieval bound is out of range.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrInvalidServerPort indicates the HTTP port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidSessionBackend indicates an unknown session backend.
	ErrInvalidSessionBackend = errors.New("invalid session backend")

	// ErrInvalidSessionExpiry indicates a non-positive session expiry.
	ErrInvalidSessionExpiry = errors.New("invalid session expiry")

	// ErrInvalidBreaker indicates circuit breaker tuning is out of range.
	ErrInvalidBreaker = errors.New("invalid circuit breaker configuration")

	// ErrInvalidJWTSecret indicates the JWT secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrInvalidTimezone indicates the agent timezone does not resolve.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Validate validates configuration values, fail-fast at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key (required for all AI operations; read directly by Genkit)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Retrieval configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.MaxResults < 1 || c.MaxResults > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidMaxResults, c.MaxResults)
	}

	// Server configuration
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidServerPort, c.Port)
	}

	// JWT configuration: empty secret is open mode, anything else must
	// carry enough entropy to sign with.
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 bytes, got %d", ErrInvalidJWTSecret, len(c.JWTSecret))
	}
	if c.JWTSecret == "" {
		slog.Warn("JWT secret not set, API runs in open mode",
			"hint", "set VULCAN_JWT_SECRET unless behind an authenticating gateway")
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: password must be set", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "vulcan_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	// Session configuration
	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("%w: %q (want memory, postgres, or redis)", ErrInvalidSessionBackend, c.SessionBackend)
	}
	if c.SessionExpiry <= 0 {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidSessionExpiry, c.SessionExpiry)
	}
	if c.HistoryCap < 1 {
		return fmt.Errorf("%w: history_cap must be positive, got %d", ErrInvalidSessionExpiry, c.HistoryCap)
	}

	// Breaker configuration
	if err := validateBreaker("agent", c.AgentBreakerThreshold, c.AgentBreakerCooldown); err != nil {
		return err
	}
	if err := validateBreaker("model", c.ModelBreakerThreshold, c.ModelBreakerCooldown); err != nil {
		return err
	}

	// Agent configuration
	if c.AgentTimezone != "" {
		if _, err := time.LoadLocation(c.AgentTimezone); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, c.AgentTimezone, err)
		}
	}

	return nil
}

func validateBreaker(name string, threshold int, cooldown time.Duration) error {
	if threshold < 1 || threshold > 100 {
		return fmt.Errorf("%w: %s threshold must be between 1 and 100, got %d", ErrInvalidBreaker, name, threshold)
	}
	if cooldown < time.Second || cooldown > time.Hour {
		return fmt.Errorf("%w: %s cooldown must be between 1s and 1h, got %s", ErrInvalidBreaker, name, cooldown)
	}
	return nil
}
