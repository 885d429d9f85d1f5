package runstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunLockRejectsConcurrentRun(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	release, err := store.AcquireRunLock(ctx, "o/FIPs", time.Minute)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}

	if _, err := store.AcquireRunLock(ctx, "o/FIPs", time.Minute); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	other, err := store.AcquireRunLock(ctx, "o/FRCs", time.Minute)
	if err != nil {
		t.Fatalf("lock for another repository failed: %v", err)
	}
	_ = other(ctx)

	if err := release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if s.Exists("fipsync:lock:o/FIPs") {
		t.Fatal("expected lock key to be deleted")
	}

	if _, err := store.AcquireRunLock(ctx, "o/FIPs", time.Minute); err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
}

func TestRunLockExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	stale, err := store.AcquireRunLock(ctx, "o/FIPs", time.Minute)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.AcquireRunLock(ctx, "o/FIPs", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be free, got %v", err)
	}

	// releasing the stale holder must not drop the new holder's lock
	if err := stale(ctx); err != nil {
		t.Fatalf("stale release failed: %v", err)
	}
	if !s.Exists("fipsync:lock:o/FIPs") {
		t.Fatal("stale release removed the current lock")
	}
}

func TestNotifiedLedger(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := store.MarkNotified(ctx, "o/FIPs", 12)
	if err != nil || !first {
		t.Fatalf("MarkNotified() = %v, %v; want true", first, err)
	}
	again, err := store.MarkNotified(ctx, "o/FIPs", 12)
	if err != nil || again {
		t.Fatalf("second MarkNotified() = %v, %v; want false", again, err)
	}

	if err := store.ClearNotified(ctx, "o/FIPs", 12); err != nil {
		t.Fatalf("ClearNotified failed: %v", err)
	}
	retry, err := store.MarkNotified(ctx, "o/FIPs", 12)
	if err != nil || !retry {
		t.Fatalf("MarkNotified() after clear = %v, %v; want true", retry, err)
	}
}

func TestMemoryRunState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	release, err := m.AcquireRunLock(ctx, "o/FIPs", 0)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	if _, err := m.AcquireRunLock(ctx, "o/FIPs", 0); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	_ = release(ctx)
	_ = release(ctx)
	if _, err := m.AcquireRunLock(ctx, "o/FIPs", 0); err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}

	if first, _ := m.MarkNotified(ctx, "o/FIPs", 1); !first {
		t.Fatal("expected first notification")
	}
	if again, _ := m.MarkNotified(ctx, "o/FIPs", 1); again {
		t.Fatal("expected duplicate notification to be rejected")
	}
	_ = m.ClearNotified(ctx, "o/FIPs", 1)
	if retry, _ := m.MarkNotified(ctx, "o/FIPs", 1); !retry {
		t.Fatal("expected notification after clear")
	}
}
