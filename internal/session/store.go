package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vulcanlabs/vulcan/internal/log"
)

// Config configures a Store.
type Config struct {
	// Backend is the durable storage driver. Required.
	Backend Backend

	// Logger for storage failures. nil = Nop logger.
	Logger log.Logger

	// Expiry is the inactivity window before a session lazily expires on
	// read. Zero = DefaultExpiry.
	Expiry time.Duration

	// HistoryCap bounds messages retained per session. Zero = DefaultHistoryCap.
	HistoryCap int
}

// Store is the session facade the orchestrator talks to.
//
// Failure policy: storage-backend errors are logged here and surfaced to
// callers as "operation failed" — nil for lookups, false for mutations.
// Nothing storage-specific propagates past this layer, so callers must
// treat nil/false as authoritative and not infer a more specific cause.
//
// Known limitation: AppendMessage is a read-modify-write without
// optimistic locking. Two concurrent appends to the same session can
// race, and the last write wins. See the concurrency notes in the
// integration package.
type Store struct {
	backend    Backend
	logger     log.Logger
	expiry     time.Duration
	historyCap int
}

// NewStore creates a session store facade.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}

	return &Store{
		backend:    cfg.Backend,
		logger:     cfg.Logger,
		expiry:     cfg.Expiry,
		historyCap: cfg.HistoryCap,
	}, nil
}

// HistoryCap returns the configured per-session message cap.
func (s *Store) HistoryCap() int {
	return s.historyCap
}

// Create persists a fresh active session for the user.
// Returns nil when the write fails.
func (s *Store) Create(ctx context.Context, userID, kbID string) *Session {
	sess := New(userID, kbID)
	if err := s.backend.Put(ctx, sess); err != nil {
		s.logger.Error("failed to create session", "user_id", userID, "error", err)
		return nil
	}

	s.logger.Debug("created session", "session_id", sess.ID, "user_id", userID)
	return sess
}

// Get loads a session by ID for the given owner.
//
// Returns nil when the session does not exist, is archived, belongs to a
// different user, or has exceeded the inactivity window. In the last
// case the expired status is written back before returning (lazy expiry);
// a write-back failure is logged and the session is still withheld.
func (s *Store) Get(ctx context.Context, id, userID string) *Session {
	sess, err := s.backend.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to load session", "session_id", id, "error", err)
		}
		return nil
	}

	if sess.UserID != userID {
		s.logger.Warn("session ownership mismatch", "session_id", id, "user_id", userID)
		return nil
	}
	if sess.Status == StatusArchived || sess.Status == StatusExpired {
		return nil
	}

	if sess.ExpiredAfter(s.expiry) {
		sess.Status = StatusExpired
		if err := s.backend.Put(ctx, sess); err != nil {
			s.logger.Error("failed to persist session expiry", "session_id", id, "error", err)
		}
		s.logger.Debug("session expired", "session_id", id, "last_activity", sess.LastActivity)
		return nil
	}

	return sess
}

// GetOrCreate resolves a session for a command: the existing session if
// it is live and owned by the user, otherwise a fresh one. id may be
// empty. Returns nil only when creation itself fails.
func (s *Store) GetOrCreate(ctx context.Context, id, userID, kbID string) *Session {
	if id != "" {
		if sess := s.Get(ctx, id, userID); sess != nil {
			return sess
		}
	}
	return s.Create(ctx, userID, kbID)
}

// Update persists the session's current state, bumping last activity.
func (s *Store) Update(ctx context.Context, sess *Session) bool {
	sess.Touch()
	if err := s.backend.Put(ctx, sess); err != nil {
		s.logger.Error("failed to update session", "session_id", sess.ID, "error", err)
		return false
	}
	return true
}

// AppendMessage loads the session, validates ownership, appends the
// message, trims history to the cap, and persists — one logical unit,
// though the backend gives no transaction to make it atomic.
func (s *Store) AppendMessage(ctx context.Context, id, userID string, msg Message) bool {
	sess := s.Get(ctx, id, userID)
	if sess == nil {
		return false
	}

	msg.SessionID = sess.ID
	sess.Append(msg, s.historyCap)

	if err := s.backend.Put(ctx, sess); err != nil {
		s.logger.Error("failed to append message", "session_id", id, "message_id", msg.ID, "error", err)
		return false
	}

	s.logger.Debug("appended message",
		"session_id", id, "message_id", msg.ID, "type", msg.Type, "total", len(sess.Messages))
	return true
}

// List returns the user's sessions ordered by last activity descending.
// Sessions past the inactivity window are lazily expired (with write-back)
// and excluded. With activeOnly set, only active sessions are returned;
// otherwise inactive and archived sessions are included too.
func (s *Store) List(ctx context.Context, userID string, activeOnly bool) []*Session {
	records, err := s.backend.ScanByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list sessions", "user_id", userID, "error", err)
		return nil
	}

	out := make([]*Session, 0, len(records))
	for _, sess := range records {
		if sess.Status == StatusActive && sess.ExpiredAfter(s.expiry) {
			sess.Status = StatusExpired
			if err := s.backend.Put(ctx, sess); err != nil {
				s.logger.Error("failed to persist session expiry", "session_id", sess.ID, "error", err)
			}
		}
		if sess.Status == StatusExpired {
			continue
		}
		if activeOnly && sess.Status != StatusActive {
			continue
		}
		out = append(out, sess)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Archive marks the session archived. Archived sessions no longer
// resolve through Get and only show in List without activeOnly.
func (s *Store) Archive(ctx context.Context, id, userID string) bool {
	sess := s.Get(ctx, id, userID)
	if sess == nil {
		return false
	}

	sess.Status = StatusArchived
	if err := s.backend.Put(ctx, sess); err != nil {
		s.logger.Error("failed to archive session", "session_id", id, "error", err)
		return false
	}

	s.logger.Debug("archived session", "session_id", id)
	return true
}

// CleanupExpired eagerly expires all of the user's sessions that have
// exceeded the inactivity window and returns how many were expired.
func (s *Store) CleanupExpired(ctx context.Context, userID string) int {
	records, err := s.backend.ScanByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to scan sessions for cleanup", "user_id", userID, "error", err)
		return 0
	}

	expired := 0
	for _, sess := range records {
		if sess.Status != StatusActive || !sess.ExpiredAfter(s.expiry) {
			continue
		}
		sess.Status = StatusExpired
		if err := s.backend.Put(ctx, sess); err != nil {
			s.logger.Error("failed to persist session expiry", "session_id", sess.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("expired stale sessions", "user_id", userID, "count", expired)
	}
	return expired
}
