package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Backend for tests and local development.
// Records are deep-copied through JSON on the way in and out so callers
// never share mutable state with the store.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]json.RawMessage
	byUser   map[string][]string
	failPut  error // test hook: force Put failures
	failGet  error // test hook: force Get failures
	failScan error // test hook: force ScanByUser failures
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]json.RawMessage),
		byUser:  make(map[string][]string),
	}
}

// FailWith forces subsequent operations to fail. Passing nil errors
// restores normal behavior. Test hook only.
func (m *Memory) FailWith(put, get, scan error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut, m.failGet, m.failScan = put, get, scan
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPut != nil {
		return m.failPut
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if _, exists := m.records[sess.ID]; !exists {
		m.byUser[sess.UserID] = append(m.byUser[sess.UserID], sess.ID)
	}
	m.records[sess.ID] = raw
	return nil
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failGet != nil {
		return nil, m.failGet
	}

	raw, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// ScanByUser implements Backend.
func (m *Memory) ScanByUser(_ context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failScan != nil {
		return nil, m.failScan
	}

	ids := m.byUser[userID]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		raw, ok := m.records[id]
		if !ok {
			continue
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
		}
		out = append(out, &sess)
	}
	return out, nil
}
