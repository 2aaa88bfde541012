package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

const ingestLock = "ingest:alice:https://example.com/refunds"

func TestLock_OwnerID_Unique(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	if lock1.OwnerID() == "" {
		t.Fatal("expected non-empty owner ID")
	}
	if lock1.OwnerID() == lock2.OwnerID() {
		t.Errorf("expected unique owner IDs, got same: %s", lock1.OwnerID())
	}
}

func TestLock_AcquireRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	acquired, err := lock.Acquire(ctx, ingestLock, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire lock")
	}

	val, err := mr.Get(lockPrefix + ingestLock)
	if err != nil || val != lock.OwnerID() {
		t.Errorf("expected key to hold owner ID, got %q (%v)", val, err)
	}

	if err := lock.Release(ctx, ingestLock); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(lockPrefix + ingestLock) {
		t.Error("expected key to be deleted")
	}
}

func TestLock_SecondWorkerBlocked(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	worker1 := NewLock(client)
	worker2 := NewLock(client)

	if ok, _ := worker1.Acquire(ctx, ingestLock, time.Minute); !ok {
		t.Fatal("worker1 should acquire")
	}
	if ok, _ := worker2.Acquire(ctx, ingestLock, time.Minute); ok {
		t.Error("worker2 must not acquire a held lock")
	}

	// worker2 cannot release worker1's lock
	if err := worker2.Release(ctx, ingestLock); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := worker2.Acquire(ctx, ingestLock, time.Minute); ok {
		t.Error("lock should still be held by worker1")
	}

	_ = worker1.Release(ctx, ingestLock)
	if ok, _ := worker2.Acquire(ctx, ingestLock, time.Minute); !ok {
		t.Error("worker2 should acquire after release")
	}
}

func TestLock_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	if ok, _ := lock.Acquire(ctx, ingestLock, time.Second); !ok {
		t.Fatal("expected to acquire")
	}
	mr.FastForward(2 * time.Second)

	other := NewLock(client)
	if ok, _ := other.Acquire(ctx, ingestLock, time.Second); !ok {
		t.Error("expired lock should be acquirable")
	}
}

func TestLock_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	if ok, _ := lock.Acquire(ctx, ingestLock, 10*time.Second); !ok {
		t.Fatal("expected to acquire")
	}
	if err := lock.Extend(ctx, ingestLock, time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ttl := mr.TTL(lockPrefix + ingestLock); ttl <= 10*time.Second {
		t.Errorf("expected TTL to grow, got %v", ttl)
	}

	other := NewLock(client)
	err := other.Extend(ctx, ingestLock, time.Minute)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign lock, got %v", err)
	}
}

func TestLockKey_HashesLongNames(t *testing.T) {
	long := "ingest:alice:https://example.com/" + strings.Repeat("a", 300)

	key := lockKey(long)
	if len(key) > len(lockPrefix)+maxPlainLockName {
		t.Errorf("expected hashed key, got length %d", len(key))
	}
	if key != lockKey(long) {
		t.Error("hashed key should be stable")
	}
	if lockKey("short") != lockPrefix+"short" {
		t.Error("short names should be kept verbatim")
	}
}

func TestLock_Ping(t *testing.T) {
	client, _ := setupTestRedis(t)

	if err := NewLock(client).Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed, got %v", err)
	}
}
