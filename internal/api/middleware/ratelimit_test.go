package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/metrics"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/ratelimit"
)

func newLimitedRouter(t *testing.T, limiter *ratelimit.RateLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	r.Use(RateLimit(limiter, logger))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func TestRateLimit_AllowsThenDenies(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := ratelimit.NewRedisRateLimiter(rdb, "test:ratelimit", 1, 2)
	r := newLimitedRouter(t, limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst of 2 should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %v", codes)
	}
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := ratelimit.NewRedisRateLimiter(rdb, "test:ratelimit", 1, 1)
	r := newLimitedRouter(t, limiter)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:1111"); code != http.StatusOK {
		t.Fatalf("first client should pass, got %d", code)
	}
	if code := send("10.0.0.1:1111"); code != http.StatusTooManyRequests {
		t.Fatalf("first client should now be limited, got %d", code)
	}
	if code := send("10.0.0.2:2222"); code != http.StatusOK {
		t.Fatalf("second client must not share the bucket, got %d", code)
	}
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	r := newLimitedRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("nil limiter must not block, got %d", w.Code)
	}
}

func TestRateLimit_FailsOpenOnRedisError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close() // 连接指向一个已经挂掉的 redis

	limiter := ratelimit.NewRedisRateLimiter(rdb, "test:ratelimit", 1, 1)
	r := newLimitedRouter(t, limiter)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("redis outage must not take the API down, got %d", w.Code)
	}
}
