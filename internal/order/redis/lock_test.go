package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"

	orderredis "ms-reconcile/internal/order/redis"
)

func setupRedis(t *testing.T) (*orderredis.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return orderredis.NewRedis(client, 30*time.Second), mr
}

func TestLockFinalize(t *testing.T) {
	lock, _ := setupRedis(t)

	ok, err := lock.LockFinalize("ord-1001")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !ok {
		t.Fatal("Expected first acquisition to succeed")
	}

	// Second acquisition for the same order is refused while held.
	ok, err = lock.LockFinalize("ord-1001")
	if err != nil {
		t.Fatalf("Second acquisition errored: %v", err)
	}
	if ok {
		t.Error("Expected second acquisition to be refused")
	}

	// A different order is independent.
	ok, err = lock.LockFinalize("ord-2001")
	if err != nil {
		t.Fatalf("Failed to acquire lock for other order: %v", err)
	}
	if !ok {
		t.Error("Expected lock for a different order to succeed")
	}
}

func TestUnlockFinalize(t *testing.T) {
	lock, _ := setupRedis(t)

	if _, err := lock.LockFinalize("ord-1001"); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.UnlockFinalize("ord-1001"); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	ok, err := lock.LockFinalize("ord-1001")
	if err != nil {
		t.Fatalf("Reacquisition errored: %v", err)
	}
	if !ok {
		t.Error("Expected reacquisition after release to succeed")
	}
}

func TestUnlockFinalizeExpired(t *testing.T) {
	lock, mr := setupRedis(t)

	if _, err := lock.LockFinalize("ord-1001"); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	// TTL elapses while the holder is still working: unlock must be a no-op,
	// not an error, and the lock must be free for the next caller.
	mr.FastForward(time.Minute)

	if err := lock.UnlockFinalize("ord-1001"); err != nil {
		t.Fatalf("Unlock after expiry errored: %v", err)
	}

	ok, err := lock.LockFinalize("ord-1001")
	if err != nil {
		t.Fatalf("Reacquisition errored: %v", err)
	}
	if !ok {
		t.Error("Expected lock to be free after TTL expiry")
	}
}
