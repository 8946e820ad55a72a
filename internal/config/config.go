// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.vulcan/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model selection, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (see storage.go), Redis for sessions
//   - Agent: tool-agent location, timezone, weather API key
//   - Auth: JWT validation parameters
//   - Breakers: per-backend circuit breaker tuning
//   - Observability: OTLP trace export (see observability.go)
//
// Security: sensitive values (passwords, secrets, API keys) are masked in
// MarshalJSON and String. Validation lives in validation.go and returns
// sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Session backend identifiers used in Config.SessionBackend.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality; the pgvector schema uses
	// 768-dimension columns.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the generation model used by the chat and
	// knowledge backends when not overridden.
	DefaultModelName = "gemini-2.5-flash"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	MaxResults    int    `mapstructure:"max_results" json:"max_results"`

	// HTTP server configuration
	Host        string   `mapstructure:"host" json:"host"`
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
	IsDev       bool     `mapstructure:"is_dev" json:"is_dev"`

	// Auth configuration. An empty secret disables token validation and
	// runs the API in open mode (behind an authenticating gateway only).
	JWTSecret   string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE: masked in MarshalJSON
	JWTIssuer   string `mapstructure:"jwt_issuer" json:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" json:"jwt_audience"`

	// Storage configuration (see storage.go for DSN assembly)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Session configuration
	SessionBackend string        `mapstructure:"session_backend" json:"session_backend"`
	SessionExpiry  time.Duration `mapstructure:"session_expiry" json:"session_expiry"`
	HistoryCap     int           `mapstructure:"history_cap" json:"history_cap"`

	// Redis configuration (only used when session_backend is "redis")
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Agent configuration
	AgentLocation string `mapstructure:"agent_location" json:"agent_location"`
	AgentTimezone string `mapstructure:"agent_timezone" json:"agent_timezone"`
	WeatherAPIKey string `mapstructure:"weather_api_key" json:"weather_api_key"` // SENSITIVE: masked in MarshalJSON

	// Circuit breaker tuning
	AgentBreakerThreshold int           `mapstructure:"agent_breaker_threshold" json:"agent_breaker_threshold"`
	AgentBreakerCooldown  time.Duration `mapstructure:"agent_breaker_cooldown" json:"agent_breaker_cooldown"`
	ModelBreakerThreshold int           `mapstructure:"model_breaker_threshold" json:"model_breaker_threshold"`
	ModelBreakerCooldown  time.Duration `mapstructure:"model_breaker_cooldown" json:"model_breaker_cooldown"`

	// Observability configuration (see observability.go)
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".vulcan")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("max_results", 5)

	// Server defaults
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8080)
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("is_dev", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "vulcan")
	viper.SetDefault("postgres_password", "vulcan_dev_password")
	viper.SetDefault("postgres_db_name", "vulcan")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Session defaults
	viper.SetDefault("session_backend", SessionBackendPostgres)
	viper.SetDefault("session_expiry", "24h")
	viper.SetDefault("history_cap", 100)
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)

	// Agent defaults
	viper.SetDefault("agent_location", "Birmingham, Alabama")
	viper.SetDefault("agent_timezone", "America/Chicago")

	// Breaker defaults: the external agent gets a wider window than the
	// model-backed backends.
	viper.SetDefault("agent_breaker_threshold", 5)
	viper.SetDefault("agent_breaker_cooldown", "60s")
	viper.SetDefault("model_breaker_threshold", 3)
	viper.SetDefault("model_breaker_cooldown", "30s")

	// Telemetry defaults
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "vulcan")
}

// bindEnvVariables binds environment variables explicitly. Secrets only
// enter through the environment, never the config file checked into a
// deployment repo:
//   - GEMINI_API_KEY is read directly by Genkit, validated in Validate()
//   - DATABASE_URL is parsed in parseDatabaseURL()
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("jwt_secret", "VULCAN_JWT_SECRET")
	mustBind("jwt_issuer", "VULCAN_JWT_ISSUER")
	mustBind("jwt_audience", "VULCAN_JWT_AUDIENCE")

	mustBind("postgres_password", "VULCAN_POSTGRES_PASSWORD")
	mustBind("redis_password", "VULCAN_REDIS_PASSWORD")
	mustBind("weather_api_key", "OPENWEATHER_API_KEY")

	mustBind("cors_origins", "VULCAN_CORS_ORIGINS")
	mustBind("trust_proxy", "VULCAN_TRUST_PROXY")
	mustBind("is_dev", "VULCAN_DEV")

	mustBind("provider", "VULCAN_PROVIDER")
	mustBind("model_name", "VULCAN_MODEL_NAME")
	mustBind("session_backend", "VULCAN_SESSION_BACKEND")

	mustBind("telemetry.enabled", "VULCAN_TELEMETRY_ENABLED")
	mustBind("telemetry.endpoint", "VULCAN_TELEMETRY_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes
// or fewer are fully masked; longer ones show the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.JWTSecret = maskSecret(a.JWTSecret)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	a.WeatherAPIKey = maskSecret(a.WeatherAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A ModelName already containing "/"
// is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	return ProviderGoogleAI + "/" + c.EmbedderModel
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
