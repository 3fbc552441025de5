package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compliancehub/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterStore(t *testing.T) {
	store := NewMemoryLimiterStore(10, time.Hour)
	rule := config.RateLimitRule{Window: 15 * time.Minute, Max: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := store.Take(ctx, "login:ip:1", rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3, d.Limit)
	}
	d, err := store.Take(ctx, "login:ip:1", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = store.Take(ctx, "login:ip:2", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "keys are independent")
}

func TestRedisLimiterStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisLimiterStore(client, "rl")
	rule := config.RateLimitRule{Window: time.Minute, Max: 2}
	ctx := context.Background()

	d, err := store.Take(ctx, "strict:ip:1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Minute, mr.TTL("rl:strict:ip:1"))

	d, _ = store.Take(ctx, "strict:ip:1", rule)
	assert.True(t, d.Allowed)
	d, _ = store.Take(ctx, "strict:ip:1", rule)
	assert.False(t, d.Allowed)

	mr.FastForward(2 * time.Minute)
	d, err = store.Take(ctx, "strict:ip:1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window restarts after expiry")
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, config.RateLimitRule) (Decision, error) {
	return Decision{}, errors.New("down")
}

func limitedRouter(store LimiterStore, rule config.RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	rl := NewRateLimiter(store, map[string]config.RateLimitRule{config.LimitLogin: rule}, log, nil)
	r := gin.New()
	r.POST("/login", rl.Limit(config.LimitLogin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_RejectsOverCap(t *testing.T) {
	r := limitedRouter(NewMemoryLimiterStore(10, time.Hour), config.RateLimitRule{Window: time.Minute, Max: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
			assert.JSONEq(t, `{"error":"Too many requests, please try again later"}`, w.Body.String())
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	r := limitedRouter(failingStore{}, config.RateLimitRule{Window: time.Minute, Max: 1})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRedisLimiterStore_PrefixSeparator(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err = NewRedisLimiterStore(client, "compliancehub:ratelimit:").Take(context.Background(), "login:ip:1",
		config.RateLimitRule{Window: time.Minute, Max: 5})
	require.NoError(t, err)
	assert.True(t, mr.Exists("compliancehub:ratelimit:login:ip:1"))
	assert.False(t, mr.Exists("compliancehub:ratelimit::login:ip:1"))
}
