// Package metrics tracks per-backend request outcomes for health reporting.
//
// The registry is process-wide shared mutable state. All methods are safe
// for concurrent use; callers hold a reference injected at startup rather
// than reaching for a global.
package metrics

import (
	"sync"
	"time"
)

// windowSize bounds the recent response-time window per backend.
// The oldest sample is evicted once the window is full.
const windowSize = 100

// Health thresholds. A backend is reported unhealthy when any of these
// is violated.
const (
	maxAvgResponseTime = 10 * time.Second
	minSuccessRate     = 0.90
	recentErrorWindow  = 5 * time.Minute
	inactivityWindow   = 30 * time.Minute
)

// stats holds the mutable counters for one backend.
type stats struct {
	total         int64
	succeeded     int64
	failed        int64
	responseTimes []time.Duration // bounded ring, oldest first
	lastError     string
	lastErrorAt   time.Time
	lastRequestAt time.Time
}

// Snapshot is a point-in-time copy of one backend's metrics.
type Snapshot struct {
	BackendID          string        `json:"backend_id"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	SuccessRate        float64       `json:"success_rate"`
	AvgResponseTime    time.Duration `json:"avg_response_time_ns"`
	LastError          string        `json:"last_error,omitempty"`
	LastErrorAt        time.Time     `json:"last_error_at,omitzero"`
	LastRequestAt      time.Time     `json:"last_request_at,omitzero"`
	Healthy            bool          `json:"healthy"`
}

// Registry records request outcomes keyed by backend identity.
// The zero value is not useful; use NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*stats
	now      func() time.Time // injectable clock for tests
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]*stats),
		now:      time.Now,
	}
}

// RecordSuccess records a successful call and its latency.
func (r *Registry) RecordSuccess(backendID string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.get(backendID)
	s.total++
	s.succeeded++
	s.lastRequestAt = r.now()
	s.pushLatency(latency)
}

// RecordFailure records a failed call, its latency, and the error.
// Short-circuited calls (circuit open) are recorded here too; err may be
// the breaker's own error.
func (r *Registry) RecordFailure(backendID string, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.get(backendID)
	s.total++
	s.failed++
	s.lastRequestAt = r.now()
	s.pushLatency(latency)
	if err != nil {
		s.lastError = err.Error()
		s.lastErrorAt = r.now()
	}
}

// Snapshot returns a copy of one backend's metrics.
// The second return value is false when the backend has never been seen.
func (r *Registry) Snapshot(backendID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.backends[backendID]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(backendID, s), true
}

// SnapshotAll returns a snapshot of every backend seen so far.
func (r *Registry) SnapshotAll() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.backends))
	for id, s := range r.backends {
		out[id] = r.snapshot(id, s)
	}
	return out
}

// get returns the stats for a backend, creating them on first use.
// Caller must hold r.mu.
func (r *Registry) get(backendID string) *stats {
	s, ok := r.backends[backendID]
	if !ok {
		s = &stats{}
		r.backends[backendID] = s
	}
	return s
}

func (s *stats) pushLatency(d time.Duration) {
	if len(s.responseTimes) >= windowSize {
		s.responseTimes = s.responseTimes[1:]
	}
	s.responseTimes = append(s.responseTimes, d)
}

// snapshot builds a Snapshot. Caller must hold r.mu at least for reading.
func (r *Registry) snapshot(id string, s *stats) Snapshot {
	snap := Snapshot{
		BackendID:          id,
		TotalRequests:      s.total,
		SuccessfulRequests: s.succeeded,
		FailedRequests:     s.failed,
		LastError:          s.lastError,
		LastErrorAt:        s.lastErrorAt,
		LastRequestAt:      s.lastRequestAt,
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.succeeded) / float64(s.total)
	}
	if n := len(s.responseTimes); n > 0 {
		var sum time.Duration
		for _, d := range s.responseTimes {
			sum += d
		}
		snap.AvgResponseTime = sum / time.Duration(n)
	}
	snap.Healthy = r.healthy(s, snap)
	return snap
}

// healthy applies the health thresholds to one backend's state.
func (r *Registry) healthy(s *stats, snap Snapshot) bool {
	now := r.now()

	if snap.AvgResponseTime > maxAvgResponseTime {
		return false
	}
	if snap.TotalRequests > 0 && snap.SuccessRate < minSuccessRate {
		return false
	}
	if !s.lastErrorAt.IsZero() && now.Sub(s.lastErrorAt) < recentErrorWindow {
		return false
	}
	if !s.lastRequestAt.IsZero() && now.Sub(s.lastRequestAt) > inactivityWindow {
		return false
	}
	return true
}
