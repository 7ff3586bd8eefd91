package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"contactrelay/internal/utils"
	"contactrelay/internal/utils/logger"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

var log = logger.New("middleware")

// Limiter decides whether a client may make another request.
type Limiter interface {
	// Allow counts one hit for key. retryAfter is how long the caller should
	// wait when the hit was refused.
	Allow(ctx context.Context, key string) (allowed bool, remaining int, retryAfter time.Duration, err error)
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Limiter Limiter

	// Max is reported in the X-RateLimit-Limit header.
	Max int

	// EndpointKey namespaces counters so endpoints do not share a budget.
	EndpointKey string

	// OnLimit renders the 429 response. Defaults to a JSON error.
	OnLimit func(c echo.Context, retryAfter time.Duration) error
}

// RateLimiter creates a new rate limiting middleware. Limiter errors let the
// request through.
func RateLimiter(config RateLimitConfig) echo.MiddlewareFunc {
	if config.OnLimit == nil {
		config.OnLimit = func(c echo.Context, retryAfter time.Duration) error {
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":       "rate_limit_exceeded",
				"message":     "Rate limit exceeded. Try again later.",
				"retry_after": int(retryAfter.Seconds()),
			})
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := utils.GetRateLimitKey("ip:"+getClientIP(c), config.EndpointKey)

			allowed, remaining, retryAfter, err := config.Limiter.Allow(c.Request().Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing request: %v", err)
				return next(c)
			}

			setRateLimitHeaders(c, config.Max, remaining)

			if !allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				return config.OnLimit(c, retryAfter)
			}

			return next(c)
		}
	}
}

// getClientIP returns the client's IP address
func getClientIP(c echo.Context) string {
	if forwardedFor := c.Request().Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if realIP := c.Request().Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return c.RealIP()
}

// ClientIP is exported for handlers that record the submitter's address.
func ClientIP(c echo.Context) string {
	return getClientIP(c)
}

func setRateLimitHeaders(c echo.Context, limit, remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

// RedisLimiter is a fixed-window counter shared by every instance using the
// same Redis.
type RedisLimiter struct {
	client *utils.RedisClient
	max    int
	window time.Duration
}

func NewRedisLimiter(client *utils.RedisClient, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Duration, error) {
	count, ttl, err := l.client.IncrementRateLimit(ctx, key, l.window)
	if err != nil {
		return false, 0, 0, err
	}
	if count > l.max {
		return false, 0, ttl, nil
	}
	return true, l.max - count, 0, nil
}

// LocalLimiter keeps a token bucket per key in process memory. Counters are
// not shared between instances.
type LocalLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	window   time.Duration
	visitors map[string]*visitor
	swept    time.Time
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows max requests per window per key, refilled evenly.
func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	if max < 1 {
		max = 1
	}
	return &LocalLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		window:   window,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay, nil
	}
	return true, int(v.limiter.TokensAt(now)), 0, nil
}

// sweep forgets keys idle for longer than a window; their buckets are full again.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	l.swept = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.window {
			delete(l.visitors, key)
		}
	}
}
