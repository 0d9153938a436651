package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, KeyFollowupDispatch, time.Minute)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if !ok {
		t.Fatal("Acquire() = false, want true")
	}

	// A second lock on the same key must be contended.
	other := NewRedisLock(client, KeyFollowupDispatch, time.Minute)
	ok, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if ok {
		t.Error("second Acquire() = true, want contended")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	ok, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	if !ok {
		t.Error("Acquire() after release = false, want true")
	}
}

func TestRedisLock_ReleaseNotOwned(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, KeyChainTick, time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("holder failed to acquire")
	}

	// Releasing a lock we never acquired must not free the holder's lock.
	intruder := NewRedisLock(client, KeyChainTick, time.Minute)
	if err := intruder.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	ok, _ := intruder.Acquire(ctx)
	if ok {
		t.Error("lock was released by a non-owner")
	}
}

func TestWithTickLock_SkipsWhenContended(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, KeyAutoBroadcast, time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("holder failed to acquire")
	}

	ran := false
	other := NewRedisLock(client, KeyAutoBroadcast, time.Minute)
	ok, err := WithTickLock(ctx, other, func(context.Context) { ran = true })
	if err != nil {
		t.Fatalf("WithTickLock() error: %v", err)
	}
	if ok || ran {
		t.Error("WithTickLock() ran under contention")
	}

	holder.Release(ctx)
	ok, err = WithTickLock(ctx, other, func(context.Context) { ran = true })
	if err != nil {
		t.Fatalf("WithTickLock() error: %v", err)
	}
	if !ok || !ran {
		t.Error("WithTickLock() did not run after release")
	}
}
