package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"lawfirm-server/internal/utils"
)

// RateLimiter is a fixed-window counter per client key kept in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	bucket := r.now().UTC().Truncate(r.window).Unix()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", r.prefix, key, bucket)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		_ = r.client.Expire(ctx, redisKey, r.window+time.Second).Err()
	}
	return count <= int64(r.limit), count, nil
}

// RateLimit limits requests by client IP. A nil limiter passes everything
// through; Redis errors fail open and are logged.
func RateLimit(limiter *RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ok, count, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limiter unavailable",
				"module", "middleware.ratelimit", "operation", "allow", "outcome", "failure", "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			utils.Error(c, http.StatusTooManyRequests, "Too many requests, please retry later")
			c.Abort()
			return
		}
		remaining := int64(limiter.limit) - count
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Next()
	}
}
