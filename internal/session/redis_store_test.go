package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}

	user, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession() error = %v", err)
	}
	if user.ID != "usr_1" {
		t.Fatalf("user ID = %q, want usr_1", user.ID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-short", "usr_1", time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	s.FastForward(2 * time.Millisecond)

	if _, err := store.LookupRefreshSession(ctx, "hash-short"); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestSaveRejectsExpiredDeadline(t *testing.T) {
	store := setupTestRedis(t)

	err := store.SaveRefreshSession(context.Background(), "hash-late", "usr_1", time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for already-expired deadline")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-2", "usr_2", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "hash-2"); err != nil {
		t.Fatalf("RevokeRefreshSession() error = %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-2"); err == nil {
		t.Fatal("expected error after revocation")
	}

	// Revoking an unknown token is not an error.
	if err := store.RevokeRefreshSession(ctx, "hash-unknown"); err != nil {
		t.Fatalf("RevokeRefreshSession() unknown token error = %v", err)
	}
}
