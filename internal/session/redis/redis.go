// Package redis implements session.Backend on Redis.
//
// Each session is one JSON value under "session:<id>"; a per-user set
// under "user_sessions:<user_id>" indexes ownership for scans. Stale
// index entries (value expired or deleted out of band) are pruned
// opportunistically during scans.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// Backend stores session records in Redis.
type Backend struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

// New creates a Redis session backend. ttl bounds how long a record
// lives without being rewritten; zero means no Redis-side expiry (the
// Store's own lazy expiry still applies).
func New(client *redis.Client, ttl time.Duration, logger log.Logger) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis: client is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Backend{client: client, ttl: ttl, logger: logger}, nil
}

func sessionKey(id string) string  { return "session:" + id }
func userKey(userID string) string { return "user_sessions:" + userID }

// Put implements session.Backend.
func (b *Backend) Put(ctx context.Context, sess *session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), record, b.ttl)
	pipe.SAdd(ctx, userKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}

	b.logger.Debug("stored session record", "session_id", sess.ID)
	return nil
}

// Get implements session.Backend.
func (b *Backend) Get(ctx context.Context, id string) (*session.Session, error) {
	record, err := b.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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
	ids, err := b.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("scan sessions for user %s: %w", userID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions for user %s: %w", userID, err)
	}

	var out []*session.Session
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Record expired or deleted; prune the index entry.
			stale = append(stale, ids[i])
			continue
		}
		var sess session.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			b.logger.Warn("skipping malformed session record", "session_id", ids[i], "error", err)
			continue
		}
		out = append(out, &sess)
	}

	if len(stale) > 0 {
		if err := b.client.SRem(ctx, userKey(userID), stale...).Err(); err != nil {
			b.logger.Warn("failed to prune stale session index entries", "user_id", userID, "error", err)
		}
	}
	return out, nil
}
