package session

import "context"

// Backend is the durable storage contract the Store depends on.
// Records are whole sessions, written and read as a unit; the backend has
// no native transactions and no partial updates.
//
// Following Go best practices: the interface is defined by the consumer
// (the Store), not the storage drivers implementing it.
type Backend interface {
	// Put writes or replaces the record for sess.ID.
	Put(ctx context.Context, sess *Session) error

	// Get returns the record for id, or an error wrapping ErrNotFound
	// when no record exists.
	Get(ctx context.Context, id string) (*Session, error)

	// ScanByUser returns all records owned by userID, in no particular
	// order.
	ScanByUser(ctx context.Context, userID string) ([]*Session, error)
}
