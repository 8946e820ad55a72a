package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vulcanlabs/vulcan/internal/log"
)

func newTestStore(t *testing.T, backend Backend, opts ...func(*Config)) *Store {
	t.Helper()

	cfg := Config{Backend: backend, Logger: log.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

func TestNewStore_RequiresBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(Config{}); err == nil {
		t.Error("NewStore() without backend succeeded, want error")
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, NewMemory())

	sess := store.Create(ctx, "u-1", "kb-9")
	if sess == nil {
		t.Fatal("Create() returned nil")
	}
	if sess.Status != StatusActive {
		t.Errorf("Status = %q, want %q", sess.Status, StatusActive)
	}
	if sess.KnowledgeBaseID != "kb-9" {
		t.Errorf("KnowledgeBaseID = %q, want %q", sess.KnowledgeBaseID, "kb-9")
	}

	got := store.Get(ctx, sess.ID, "u-1")
	if got == nil {
		t.Fatal("Get() returned nil for live session")
	}
	if got.ID != sess.ID {
		t.Errorf("Get() ID = %q, want %q", got.ID, sess.ID)
	}
}

func TestStore_GetOwnershipMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, NewMemory())
	sess := store.Create(ctx, "u-1", "")

	if got := store.Get(ctx, sess.ID, "u-2"); got != nil {
		t.Error("Get() returned another user's session")
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, NewMemory())
	if got := store.Get(context.Background(), "nope", "u-1"); got != nil {
		t.Error("Get() returned a session for unknown ID")
	}
}

func TestStore_LazyExpiryWriteBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend, func(c *Config) { c.Expiry = time.Hour })

	sess := store.Create(ctx, "u-1", "")

	// Age the session past the inactivity window via the raw backend.
	sess.LastActivity = time.Now().Add(-2 * time.Hour)
	if err := backend.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if got := store.Get(ctx, sess.ID, "u-1"); got != nil {
		t.Fatal("Get() returned an expired session")
	}

	// Lazy expiry must have been written back.
	raw, err := backend.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Status != StatusExpired {
		t.Errorf("raw status = %q, want %q", raw.Status, StatusExpired)
	}
}

func TestStore_AppendMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend)
	sess := store.Create(ctx, "u-1", "")

	msg, err := NewMessage(sess.ID, TypeUser, "hello", map[string]any{"user_id": "u-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !store.AppendMessage(ctx, sess.ID, "u-1", msg) {
		t.Fatal("AppendMessage() = false, want true")
	}

	got := store.Get(ctx, sess.ID, "u-1")
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if len(got.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(got.Messages))
	}
	if got.Messages[0].Content != "hello" {
		t.Errorf("content = %q, want %q", got.Messages[0].Content, "hello")
	}
}

func TestStore_AppendMessageTrimsAtCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend, func(c *Config) { c.HistoryCap = 100 })
	sess := store.Create(ctx, "u-1", "")

	// Fill to exactly the cap.
	for i := range 100 {
		msg, _ := NewMessage(sess.ID, TypeUser, fmt.Sprintf("msg-%d", i), nil)
		if !store.AppendMessage(ctx, sess.ID, "u-1", msg) {
			t.Fatalf("append %d failed", i)
		}
	}

	msg, _ := NewMessage(sess.ID, TypeUser, "msg-100", nil)
	if !store.AppendMessage(ctx, sess.ID, "u-1", msg) {
		t.Fatal("append past cap failed")
	}

	got := store.Get(ctx, sess.ID, "u-1")
	if len(got.Messages) != 100 {
		t.Fatalf("len(Messages) = %d, want exactly 100", len(got.Messages))
	}
	if got.Messages[0].Content != "msg-1" {
		t.Errorf("oldest retained = %q, want %q (msg-0 evicted)", got.Messages[0].Content, "msg-1")
	}
	if got.Messages[99].Content != "msg-100" {
		t.Errorf("newest = %q, want %q", got.Messages[99].Content, "msg-100")
	}
}

func TestStore_AppendMessageWrongOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, NewMemory())
	sess := store.Create(ctx, "u-1", "")

	msg, _ := NewMessage(sess.ID, TypeUser, "hi", nil)
	if store.AppendMessage(ctx, sess.ID, "intruder", msg) {
		t.Error("AppendMessage() succeeded for non-owner")
	}
}

func TestStore_FailurePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend)
	sess := store.Create(ctx, "u-1", "")

	boom := errors.New("storage down")
	backend.FailWith(boom, boom, boom)

	// Every operation degrades to nil/false/zero, never an error or panic.
	if store.Create(ctx, "u-1", "") != nil {
		t.Error("Create() returned session despite backend failure")
	}
	if store.Get(ctx, sess.ID, "u-1") != nil {
		t.Error("Get() returned session despite backend failure")
	}
	if store.Update(ctx, sess) {
		t.Error("Update() = true despite backend failure")
	}
	msg, _ := NewMessage(sess.ID, TypeUser, "hi", nil)
	if store.AppendMessage(ctx, sess.ID, "u-1", msg) {
		t.Error("AppendMessage() = true despite backend failure")
	}
	if got := store.List(ctx, "u-1", false); got != nil {
		t.Error("List() returned sessions despite backend failure")
	}
	if store.Archive(ctx, sess.ID, "u-1") {
		t.Error("Archive() = true despite backend failure")
	}
	if got := store.CleanupExpired(ctx, "u-1"); got != 0 {
		t.Errorf("CleanupExpired() = %d despite backend failure", got)
	}
}

func TestStore_ListOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend)

	old := store.Create(ctx, "u-1", "")
	mid := store.Create(ctx, "u-1", "")
	recent := store.Create(ctx, "u-1", "")
	_ = store.Create(ctx, "u-2", "") // other user, excluded

	now := time.Now()
	old.LastActivity = now.Add(-3 * time.Hour)
	mid.LastActivity = now.Add(-2 * time.Hour)
	recent.LastActivity = now.Add(-1 * time.Hour)
	for _, s := range []*Session{old, mid, recent} {
		if err := backend.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got := store.List(ctx, "u-1", false)
	if len(got) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(got))
	}
	wantOrder := []string{recent.ID, mid.ID, old.ID}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestStore_ListActiveOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend)

	active := store.Create(ctx, "u-1", "")
	inactive := store.Create(ctx, "u-1", "")
	inactive.Status = StatusInactive
	if err := backend.Put(ctx, inactive); err != nil {
		t.Fatal(err)
	}
	archived := store.Create(ctx, "u-1", "")
	if !store.Archive(ctx, archived.ID, "u-1") {
		t.Fatal("Archive() failed")
	}

	got := store.List(ctx, "u-1", true)
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("List(activeOnly) = %d sessions, want just the active one", len(got))
	}

	all := store.List(ctx, "u-1", false)
	if len(all) != 2 {
		t.Errorf("List(all) = %d sessions, want 2 (archived excluded)", len(all))
	}
}

func TestStore_Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend)
	sess := store.Create(ctx, "u-1", "")

	if !store.Archive(ctx, sess.ID, "u-1") {
		t.Fatal("Archive() = false")
	}
	if got := store.Get(ctx, sess.ID, "u-1"); got != nil {
		t.Error("Get() returned archived session")
	}

	raw, err := backend.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Status != StatusArchived {
		t.Errorf("raw status = %q, want %q", raw.Status, StatusArchived)
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewMemory()
	store := newTestStore(t, backend, func(c *Config) { c.Expiry = time.Hour })

	fresh := store.Create(ctx, "u-1", "")
	stale1 := store.Create(ctx, "u-1", "")
	stale2 := store.Create(ctx, "u-1", "")
	for _, s := range []*Session{stale1, stale2} {
		s.LastActivity = time.Now().Add(-2 * time.Hour)
		if err := backend.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	if got := store.CleanupExpired(ctx, "u-1"); got != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", got)
	}
	if store.Get(ctx, fresh.ID, "u-1") == nil {
		t.Error("fresh session was expired by cleanup")
	}
}

func TestStore_GetOrCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, NewMemory())

	// Empty ID creates.
	created := store.GetOrCreate(ctx, "", "u-1", "kb-1")
	if created == nil {
		t.Fatal("GetOrCreate() returned nil")
	}

	// Existing ID resolves.
	got := store.GetOrCreate(ctx, created.ID, "u-1", "")
	if got == nil || got.ID != created.ID {
		t.Error("GetOrCreate() did not resolve existing session")
	}

	// Unknown ID falls back to creating.
	fresh := store.GetOrCreate(ctx, "missing", "u-1", "")
	if fresh == nil || fresh.ID == "missing" {
		t.Error("GetOrCreate() did not create replacement session")
	}
}
