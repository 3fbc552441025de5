package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/config"
	"compliancehub/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var errTooManyRequests = &apperror.Error{Kind: apperror.KindRateLimit, Message: "Too many requests, please try again later"}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// LimiterStore counts requests per key against a rule
type LimiterStore interface {
	Take(ctx context.Context, key string, rule config.RateLimitRule) (Decision, error)
}

// MemoryLimiterStore keeps one token bucket per key: burst Max, refilled at Max per Window.
// Buckets idle longer than ttl are dropped; ttl must be at least the longest window so a
// dropped bucket would have been full anyway.
type MemoryLimiterStore struct {
	mu      sync.Mutex
	buckets *lru.LRU[string, *rate.Limiter]
}

func NewMemoryLimiterStore(maxKeys int, ttl time.Duration) *MemoryLimiterStore {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	return &MemoryLimiterStore{buckets: lru.NewLRU[string, *rate.Limiter](maxKeys, nil, ttl)}
}

func (s *MemoryLimiterStore) Take(_ context.Context, key string, rule config.RateLimitRule) (Decision, error) {
	every := rule.Window / time.Duration(rule.Max)

	s.mu.Lock()
	lim, ok := s.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Every(every), rule.Max)
		s.buckets.Add(key, lim)
	}
	s.mu.Unlock()

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Limit: rule.Max, Remaining: remaining, ResetIn: every}, nil
}

// RedisLimiterStore is a fixed window shared by every API instance: INCR, and start the
// window on the first hit
type RedisLimiterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiterStore(client *redis.Client, prefix string) *RedisLimiterStore {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiterStore{client: client, prefix: prefix}
}

func (s *RedisLimiterStore) Take(ctx context.Context, key string, rule config.RateLimitRule) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max}, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		if err := s.client.PExpire(ctx, redisKey, rule.Window).Err(); err != nil {
			return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max}, fmt.Errorf("redis error: %w", err)
		}
		reset = rule.Window
	}

	count := int(incr.Val())
	remaining := rule.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= rule.Max, Limit: rule.Max, Remaining: remaining, ResetIn: reset}, nil
}

// RateLimiter applies per-category rules. The caller key is the user id when the request
// is authenticated and the client IP otherwise.
type RateLimiter struct {
	store   LimiterStore
	rules   map[string]config.RateLimitRule
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewRateLimiter(store LimiterStore, rules map[string]config.RateLimitRule, log *logrus.Logger, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{store: store, rules: rules, log: log, metrics: m}
}

// Limit rejects requests over the category's cap with 429; they are never queued.
// A store failure lets the request through.
func (l *RateLimiter) Limit(category string) gin.HandlerFunc {
	rule, ok := l.rules[category]
	if !ok {
		rule = l.rules[config.LimitGeneral]
	}
	return func(c *gin.Context) {
		if rule.Max <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		d, err := l.store.Take(c.Request.Context(), category+":"+callerKey(c), rule)
		if err != nil {
			l.log.WithError(err).WithField("category", category).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.ResetIn).Unix(), 10))

		if !d.Allowed {
			l.metrics.RateLimited(category)
			c.Header("Retry-After", strconv.Itoa(int(d.ResetIn.Round(time.Second).Seconds())))
			Abort(c, errTooManyRequests)
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return "user:" + id.ID.String()
	}
	return "ip:" + c.ClientIP()
}
