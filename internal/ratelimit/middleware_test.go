package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/paybridge/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareEnforcesLimitPerClient(t *testing.T) {
	lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 1})
	handler := ratelimit.Handler{Limiter: lim}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/process_custom_payment_response", nil)
	req.RemoteAddr = "203.0.113.9:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))

	other := req.Clone(req.Context())
	other.RemoteAddr = "203.0.113.10:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code)
}

func TestRedisLimiterSharesBudget(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := ratelimit.NewRedisLimiter(client, "paybridge:rl", "2-M")
	require.NoError(t, err)
	handler := ratelimit.Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewRedisLimiterRejectsBadRate(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	_, err := ratelimit.NewRedisLimiter(client, "p", "lots")
	require.Error(t, err)
}

func TestMiddlewareFailsOpenOnStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	lim, err := ratelimit.NewRedisLimiter(client, "paybridge:rl", "1-M")
	require.NoError(t, err)
	mr.Close()

	var reported error
	handler := ratelimit.Handler{Limiter: lim, OnError: func(err error) { reported = err }}.Middleware(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, reported)
}
