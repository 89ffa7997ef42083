package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter middleware implements sliding window rate limiting using Redis
type RateLimiter struct {
	client *redis.Client
	rps    int
	burst  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, rps, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		rps:    rps,
		burst:  burst,
		window: time.Second,
	}
}

// Middleware limits per authenticated user, falling back to the client IP.
// Redis errors fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if identity, ok := GetIdentity(c); ok {
			key = "user:" + strconv.FormatInt(identity.UserID, 10)
		}

		allowed, remaining, err := rl.checkLimit(c.Request.Context(), key)
		if err != nil {
			Logger(c).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rps))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		c.Next()
	}
}

// checkLimit runs the sliding window log in one pipeline.
func (rl *RateLimiter) checkLimit(ctx context.Context, subject string) (allowed bool, remaining int, err error) {
	now := time.Now().UnixMilli()
	windowStart := now - rl.window.Milliseconds()
	key := "ratelimit:" + subject

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d-%s", now, uuid.NewString()),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*rl.window)

	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(countCmd.Val())
	remaining = rl.burst - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.burst, remaining, nil
}
