// Package postgres implements session.Backend on PostgreSQL.
//
// Sessions are stored as whole JSONB records keyed by session ID, with
// the owner denormalized into its own column for scanning. Schema is
// managed by the embedded migrations in the db package.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// Backend stores session records in PostgreSQL.
// Safe for concurrent use; pgxpool handles connection management.
type Backend struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a PostgreSQL session backend.
func New(pool *pgxpool.Pool, logger log.Logger) (*Backend, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres: pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Backend{pool: pool, logger: logger}, nil
}

// Put implements session.Backend.
func (b *Backend) Put(ctx context.Context, sess *session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	const q = `
		INSERT INTO sessions (id, user_id, record, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, record = EXCLUDED.record, updated_at = now()`

	if _, err := b.pool.Exec(ctx, q, sess.ID, sess.UserID, record); err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}

	b.logger.Debug("stored session record", "session_id", sess.ID)
	return nil
}

// Get implements session.Backend.
func (b *Backend) Get(ctx context.Context, id string) (*session.Session, error) {
	const q = `SELECT record FROM sessions WHERE id = $1`

	var record []byte
	if err := b.pool.QueryRow(ctx, q, id).Scan(&record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(record, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// ScanByUser implements session.Backend.
func (b *Backend) ScanByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	const q = `SELECT record FROM sessions WHERE user_id = $1`

	rows, err := b.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("scan sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var sess session.Session
		if err := json.Unmarshal(record, &sess); err != nil {
			// Skip malformed records rather than failing the whole scan.
			b.logger.Warn("skipping malformed session record", "user_id", userID, "error", err)
			continue
		}
		out = append(out, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}
