// Package chat adapts the hosted LLM behind the uniform streaming
// backend contract. It owns the prompt assembly (system prompt, trailing
// history window, current message), per-attempt rate limiting, and retry
// with exponential backoff for transient upstream failures.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/vulcanlabs/vulcan/internal/backend"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// HistoryWindow is the number of trailing conversation turns sent as
// context with each request, chronological order preserved.
const HistoryWindow = 10

// Defaults for model parameters.
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

// RetryConfig configures the retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Config contains all required parameters for the chat adapter.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger

	// ModelName is the provider-qualified model name
	// (e.g., "googleai/gemini-2.5-flash").
	ModelName string

	// SystemPrompt is prepended to every request. Optional.
	SystemPrompt string

	// Generation parameters. Zero values use the defaults above.
	MaxTokens   int
	Temperature float32
	TopP        float32

	// RetryConfig controls retries for transient failures
	// (zero-value uses defaults).
	RetryConfig RetryConfig

	// RateLimiter applies proactive rate limiting per attempt
	// (nil = use default: 10 req/s sustained, burst 30).
	RateLimiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Adapter streams chat-model completions.
//
// Adapter is stateless and safe for concurrent use. All configuration
// is captured immutably at construction time.
type Adapter struct {
	g            *genkit.Genkit
	logger       log.Logger
	modelName    string
	systemPrompt string
	maxTokens    int
	temperature  float32
	topP         float32
	retryConfig  RetryConfig
	rateLimiter  *rate.Limiter
}

// New creates a chat adapter.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.TopP <= 0 {
		cfg.TopP = DefaultTopP
	}
	if cfg.RetryConfig.MaxRetries == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = rate.NewLimiter(10, 30)
	}

	a := &Adapter{
		g:            cfg.Genkit,
		logger:       cfg.Logger,
		modelName:    cfg.ModelName,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		topP:         cfg.TopP,
		retryConfig:  cfg.RetryConfig,
		rateLimiter:  cfg.RateLimiter,
	}

	a.logger.Info("chat adapter initialized",
		"model", a.modelName,
		"max_tokens", a.maxTokens,
	)
	return a, nil
}

// Metadata returns the model parameters recorded on persisted
// assistant messages.
func (a *Adapter) Metadata() map[string]any {
	return map[string]any{
		"model_id":    a.modelName,
		"temperature": a.temperature,
		"max_tokens":  a.maxTokens,
	}
}

// Stream generates a completion for message, forwarding each text delta
// to fn as it arrives. history carries up to HistoryWindow prior turns in
// chronological order; turns beyond the window are dropped here.
//
// Errors are normalized into the backend taxonomy. An fn error aborts the
// stream and is returned unclassified so cancellation stays
// distinguishable from upstream failure.
func (a *Adapter) Stream(ctx context.Context, message string, history []session.Message, fn backend.StreamFunc) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty message", backend.ErrInvalidRequest)
	}

	messages := a.buildMessages(message, history)

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithMessages(messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(a.temperature),
			TopP:            genai.Ptr(a.topP),
			MaxOutputTokens: int32(a.maxTokens),
		}),
	}
	if a.systemPrompt != "" {
		opts = append(opts, ai.WithSystem(a.systemPrompt))
	}

	var aborted error
	var delivered bool
	if fn != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			delivered = true
			if err := fn(ctx, text); err != nil {
				aborted = err
				return err
			}
			return nil
		}))
	}

	_, err := a.generateWithRetry(ctx, opts, &delivered)
	if err != nil {
		if aborted != nil {
			return aborted
		}
		return backend.Classify(err)
	}
	return nil
}

// buildMessages assembles the history window plus the current message.
func (a *Adapter) buildMessages(message string, history []session.Message) []*ai.Message {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Type {
		case session.TypeUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case session.TypeAssistant, session.TypeAgent:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			// System messages are carried via the system prompt, not history.
		}
	}
	return append(messages, ai.NewUserMessage(ai.NewTextPart(message)))
}

// retryablePatterns groups error substrings that warrant a retry.
// Matched case-insensitively against err.Error(); see backend.Classify
// for why string matching is used here.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(msg, sub) {
				return true
			}
		}
	}
	return false
}

// generateWithRetry executes the generation with exponential backoff.
// Each attempt is rate limited individually so retries cannot stampede
// a recovering upstream. Once any chunk has reached the caller the
// stream is no longer restartable: a retry would re-deliver prior text,
// so failures after first delivery are returned as-is.
func (a *Adapter) generateWithRetry(ctx context.Context, opts []ai.GenerateOption, delivered *bool) (*ai.ModelResponse, error) {
	var lastErr error
	delay := a.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= a.retryConfig.MaxRetries; attempt++ {
		if err := a.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, a.g, opts...)
		if err == nil {
			a.logger.Debug("chat generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		if *delivered || !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == a.retryConfig.MaxRetries {
			break
		}

		a.logger.Debug("retrying chat generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, a.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		a.retryConfig.MaxRetries, time.Since(start), lastErr)
}
