package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tourly-backend/internal/database"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/response"
)

// RateLimiter caps requests per participant in a fixed window. Counters live
// in Redis; while Redis is degraded or unreachable an in-process window is
// used instead.
type RateLimiter struct {
	redis    *database.RedisClient
	fallback *memoryWindow
	scope    string
	requests int
	window   time.Duration
	logger   *zap.Logger
}

// NewRateLimiter creates a limiter allowing requests per window for scope.
// A nil redis client means in-process counting only.
func NewRateLimiter(redis *database.RedisClient, scope string, requests int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		fallback: newMemoryWindow(),
		scope:    scope,
		requests: requests,
		window:   window,
		logger:   logger.OrNop(log),
	}
}

// Middleware returns a Gin middleware for rate limiting.
// It must run after AuthMiddleware.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if id, _, ok := Participant(c); ok {
			identifier = "participant:" + id.String()
		}

		count := rl.count(c.Request.Context(), identifier)

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > rl.requests {
			response.Error(c, 429, "RATE_LIMITED", "Too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) count(ctx context.Context, identifier string) int {
	if rl.redis == nil || rl.redis.IsDegraded() {
		return rl.fallback.incr(identifier, rl.window, time.Now())
	}

	key := fmt.Sprintf("ratelimit:%s:%s", rl.scope, identifier)
	pipe := rl.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("Rate limit counter unavailable, counting in process",
			zap.String("scope", rl.scope),
			zap.Error(err))
		return rl.fallback.incr(identifier, rl.window, time.Now())
	}

	return int(incr.Val())
}

// memoryWindow is a fixed-window counter per identifier
type memoryWindow struct {
	mu      sync.Mutex
	windows map[string]*windowCount
}

type windowCount struct {
	count int
	start time.Time
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{windows: make(map[string]*windowCount)}
}

func (m *memoryWindow) incr(identifier string, window time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[identifier]
	if !ok || now.Sub(w.start) >= window {
		m.windows[identifier] = &windowCount{count: 1, start: now}
		m.sweep(window, now)
		return 1
	}
	w.count++
	return w.count
}

// sweep drops expired windows
func (m *memoryWindow) sweep(window time.Duration, now time.Time) {
	for id, w := range m.windows {
		if now.Sub(w.start) >= window {
			delete(m.windows, id)
		}
	}
}
