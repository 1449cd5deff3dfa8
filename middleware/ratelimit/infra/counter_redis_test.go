package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCounterStore_GetMissingReturnsErrNoCounter(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	if _, err := s.Get(context.Background(), "rate_limit:api:10.0.0.1"); !errors.Is(err, domain.ErrNoCounter) {
		t.Fatalf("expected ErrNoCounter, got %v", err)
	}
}

func TestRedisCounterStore_CreateIsSetNX(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()
	key := "rate_limit:auth:10.0.0.1"

	ok, err := s.Create(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first create to win, got %v err=%v", ok, err)
	}
	if _, err := s.Increment(ctx, key); err != nil {
		t.Fatalf("incr: %v", err)
	}

	ok, err = s.Create(ctx, key, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second create to lose, got %v err=%v", ok, err)
	}
	if got, _ := mr.Get(key); got != "2" {
		t.Fatalf("expected losing create to keep the counter at 2, got %q", got)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %s", ttl)
	}
}

func TestRedisCounterStore_IncrementKeepsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()
	key := "rate_limit:auth:10.0.0.1"

	if err := s.SetWithTTL(ctx, key, 1, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(20 * time.Second)

	n, err := s.Increment(ctx, key)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}

	ttl, err := s.TTL(ctx, key)
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl != 40*time.Second {
		t.Fatalf("expected INCR to keep the remaining TTL (40s), got %s", ttl)
	}

	got, err := s.Get(ctx, key)
	if err != nil || got != 2 {
		t.Fatalf("expected get=2, got %d err=%v", got, err)
	}
}

func TestRedisCounterStore_ExpiresWithWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()
	key := "rate_limit:default:10.0.0.1"

	_ = s.SetWithTTL(ctx, key, 7, time.Minute)
	mr.FastForward(61 * time.Second)

	if _, err := s.Get(ctx, key); !errors.Is(err, domain.ErrNoCounter) {
		t.Fatalf("expected counter to expire, got %v", err)
	}
	if ttl, err := s.TTL(ctx, key); err != nil || ttl != 0 {
		t.Fatalf("expected ttl 0 for missing key, got %s err=%v", ttl, err)
	}
}

func TestRedisCounterStore_TTLWithoutExpiryIsZero(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)

	if err := mr.Set("k", "3"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ttl, err := s.TTL(context.Background(), "k"); err != nil || ttl != 0 {
		t.Fatalf("expected ttl 0 for key without expiry, got %s err=%v", ttl, err)
	}
}

func TestRedisCounterStore_Delete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	_ = s.SetWithTTL(ctx, "k", 1, time.Minute)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected key to be deleted")
	}
}

func TestRedisCounterStore_ErrorsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisCounterStore(rdb)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, domain.ErrNoCounter) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail")
	}
}
