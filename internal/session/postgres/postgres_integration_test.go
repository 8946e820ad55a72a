//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
	"github.com/vulcanlabs/vulcan/internal/testutil"
)

func TestBackend_RoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	backend, err := New(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	sess := session.New("user-1", "kb-1")
	msg, err := session.NewMessage(sess.ID, session.TypeUser, "hello there", nil)
	if err != nil {
		t.Fatalf("NewMessage() error: %v", err)
	}
	sess.Append(msg, session.DefaultHistoryCap)

	if err := backend.Put(ctx, sess); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := backend.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.UserID != "user-1" || got.KnowledgeBaseID != "kb-1" {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello there" {
		t.Errorf("messages not round-tripped: %+v", got.Messages)
	}

	// Upsert replaces the record.
	sess.Status = session.StatusArchived
	if err := backend.Put(ctx, sess); err != nil {
		t.Fatalf("Put() upsert error: %v", err)
	}
	got, err = backend.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() after upsert error: %v", err)
	}
	if got.Status != session.StatusArchived {
		t.Errorf("Status = %q, want archived", got.Status)
	}
}

func TestBackend_GetMissing(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	backend, err := New(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := backend.Get(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want session.ErrNotFound", err)
	}
}

func TestBackend_ScanByUser(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	backend, err := New(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	for range 3 {
		if err := backend.Put(ctx, session.New("user-1", "")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}
	if err := backend.Put(ctx, session.New("user-2", "")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	sessions, err := backend.ScanByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ScanByUser() error: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("ScanByUser(user-1) returned %d sessions, want 3", len(sessions))
	}

	none, err := backend.ScanByUser(ctx, "user-3")
	if err != nil {
		t.Fatalf("ScanByUser(user-3) error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ScanByUser(user-3) returned %d sessions, want 0", len(none))
	}
}
