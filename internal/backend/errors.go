package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the adapter failure taxonomy.
// Adapters return these (wrapped); the orchestrator maps them to
// user-facing error fragments with errors.Is().
var (
	// ErrInvalidRequest indicates bad input (empty query, oversized
	// payload). Caller's fault; never retried, never trips the breaker.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited indicates the upstream throttled the call. Surfaced
	// to the caller as retryable; the core does not auto-retry.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the upstream is down, unreachable, or not
	// ready. Counts toward the circuit breaker.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrUpstream indicates an uncategorized upstream failure. Logged
	// with full detail server-side, surfaced generically.
	ErrUpstream = errors.New("upstream error")
)

// errorPatterns maps error substrings to taxonomy sentinels.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because Genkit and LLM provider SDKs
// do not expose typed/sentinel errors for transient failures.
// This is a documented exception to the project rule against
// strings.Contains(err.Error(), ...).
// Re-evaluate if Genkit adds structured error types in a future version.
var errorPatterns = []struct {
	sentinel error
	substrs  []string
}{
	{ErrInvalidRequest, []string{"validation", "invalid argument", "400"}},
	{ErrRateLimited, []string{"rate limit", "quota exceeded", "throttl", "429"}},
	{ErrUnavailable, []string{"model not ready", "unavailable", "connection reset", "connection refused", "timeout", "temporary", "500", "502", "503", "504"}},
}

// Classify normalizes an arbitrary adapter error into the taxonomy.
// Errors already carrying a sentinel pass through unchanged; everything
// unrecognized is wrapped as ErrUpstream.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	for _, s := range []error{ErrInvalidRequest, ErrRateLimited, ErrUnavailable, ErrUpstream} {
		if errors.Is(err, s) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		for _, sub := range p.substrs {
			if strings.Contains(msg, sub) {
				return fmt.Errorf("%w: %v", p.sentinel, err)
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

// TripsBreaker reports whether the error should count as a circuit
// breaker failure. Validation and throttling do not: the backend itself
// is healthy, it rejected this particular call.
func TripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidRequest) && !errors.Is(err, ErrRateLimited)
}
