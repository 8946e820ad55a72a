package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Provider:      ProviderGemini,
		ModelName:     DefaultModelName,
		Temperature:   0.7,
		MaxTokens:     2048,
		EmbedderModel: DefaultEmbedderModel,
		MaxResults:    5,

		Host:      "0.0.0.0",
		Port:      8080,
		RateBurst: 60,

		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "vulcan",
		PostgresPassword: "test_password_long_enough",
		PostgresDBName:   "vulcan",
		PostgresSSLMode:  "disable",

		SessionBackend: SessionBackendPostgres,
		SessionExpiry:  24 * time.Hour,
		HistoryCap:     100,

		AgentLocation: "Birmingham, Alabama",
		AgentTimezone: "America/Chicago",

		AgentBreakerThreshold: 5,
		AgentBreakerCooldown:  60 * time.Second,
		ModelBreakerThreshold: 3,
		ModelBreakerCooldown:  30 * time.Second,
	}
}

func TestValidate_OK(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"max results zero", func(c *Config) { c.MaxResults = 0 }, ErrInvalidMaxResults},
		{"max results too high", func(c *Config) { c.MaxResults = 21 }, ErrInvalidMaxResults},
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidServerPort},
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }, ErrInvalidJWTSecret},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgres},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgres},
		{"empty postgres password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgres},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "etcd" }, ErrInvalidSessionBackend},
		{"zero session expiry", func(c *Config) { c.SessionExpiry = 0 }, ErrInvalidSessionExpiry},
		{"zero history cap", func(c *Config) { c.HistoryCap = 0 }, ErrInvalidSessionExpiry},
		{"breaker threshold zero", func(c *Config) { c.AgentBreakerThreshold = 0 }, ErrInvalidBreaker},
		{"breaker cooldown too short", func(c *Config) { c.ModelBreakerCooldown = time.Millisecond }, ErrInvalidBreaker},
		{"bad timezone", func(c *Config) { c.AgentTimezone = "Mars/Olympus_Mons" }, ErrInvalidTimezone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if err := validConfig().Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() error = %v, want %v", err, ErrMissingAPIKey)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil = %v, want %v", err, ErrConfigNil)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short fully masked", "abc123", maskedValue},
		{"exactly eight", "12345678", maskedValue},
		{"long shows edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "super-secret-signing-key-value-32b"
	cfg.RedisPassword = "redis-password-value"
	cfg.WeatherAPIKey = "openweather-api-key-value"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	out := string(data)
	for _, secret := range []string{
		cfg.PostgresPassword[2 : len(cfg.PostgresPassword)-2],
		"secret-signing-key",
		"redis-password",
		"openweather-api-key",
	} {
		if strings.Contains(out, secret) {
			t.Errorf("marshaled config leaks secret fragment %q", secret)
		}
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("marshaled config should contain the mask placeholder")
	}
}

func TestString_NoSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "super-secret-signing-key-value-32b"

	if s := cfg.String(); strings.Contains(s, "secret-signing-key") {
		t.Error("String() leaks the JWT secret")
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"bare name gets prefixed", "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"qualified name untouched", "googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.ModelName = tt.model
			if got := cfg.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFullEmbedderName(t *testing.T) {
	cfg := validConfig()
	if got := cfg.FullEmbedderName(); got != "googleai/"+DefaultEmbedderModel {
		t.Errorf("FullEmbedderName() = %q", got)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ListenAddr(); got != "0.0.0.0:8080" {
		t.Errorf("ListenAddr() = %q, want %q", got, "0.0.0.0:8080")
	}
}
