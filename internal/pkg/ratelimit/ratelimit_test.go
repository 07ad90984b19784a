package ratelimit

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiter_AllowReducesTokens(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, "test:ratelimit", 10, 2)
	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should pass")
	}

	tokensStr, err := rdb.HGet(context.Background(), "test:ratelimit:1.2.3.4", "tokens").Result()
	if err != nil {
		t.Fatalf("hget tokens: %v", err)
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		t.Fatalf("parse tokens: %v", err)
	}
	if tokens > 1.1 {
		t.Fatalf("expected tokens to decrease, got %.2f", tokens)
	}
}

func TestRateLimiter_DeniesWhenDrained(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, "test:ratelimit", 1, 2)
	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("allow #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("allow #%d should pass within burst", i+1)
		}
	}

	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow #3: %v", err)
	}
	if ok {
		t.Fatal("expected denial once the bucket is drained")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, "test:ratelimit", 1, 1)
	if ok, _ := limiter.Allow(context.Background(), "1.1.1.1"); !ok {
		t.Fatal("first key should pass")
	}
	if ok, _ := limiter.Allow(context.Background(), "1.1.1.1"); ok {
		t.Fatal("first key should be drained")
	}
	if ok, _ := limiter.Allow(context.Background(), "2.2.2.2"); !ok {
		t.Fatal("second key should have its own bucket")
	}
}

func TestRateLimiter_DisabledAlwaysAllows(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, "test:ratelimit", 0, 0)
	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(context.Background(), "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("disabled limiter should always allow, got ok=%v err=%v", ok, err)
		}
	}

	var nilLimiter *RateLimiter
	if ok, err := nilLimiter.Allow(context.Background(), "x"); err != nil || !ok {
		t.Fatalf("nil limiter should allow, got ok=%v err=%v", ok, err)
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func closeRedis(t *testing.T, rdb *redis.Client) {
	t.Helper()
	if err := rdb.Close(); err != nil {
		t.Fatalf("close redis: %v", err)
	}
}
