package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window per-subject request cap backed by
// redis, so the cap holds across replicas. Redis being down never takes the
// service down with it: limiter failures are logged and the request passes.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *log.Logger
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, logger *log.Logger) *RateLimiter {
	if logger == nil {
		logger = log.New(log.Writer(), "[RATE] ", log.LstdFlags)
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Middleware counts requests per authenticated subject, falling back to the
// client IP for unauthenticated routes.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl == nil || rl.rdb == nil || rl.limit <= 0 {
				return next(c)
			}
			subject, _ := c.Get("user_id").(string)
			if subject == "" {
				subject = c.RealIP()
			}
			key := fmt.Sprintf("ratelimit:%s:%d", subject, time.Now().Unix()/int64(rl.window.Seconds()))

			ctx := c.Request().Context()
			count, err := rl.rdb.Incr(ctx, key).Result()
			if err != nil {
				rl.logger.Printf("redis unavailable, skipping limit for %s: %v", subject, err)
				return next(c)
			}
			if count == 1 {
				if err := rl.rdb.Expire(ctx, key, rl.window).Err(); err != nil {
					rl.logger.Printf("expire %s: %v", key, err)
				}
			}

			remaining := int64(rl.limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
			c.Response().Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			if count > int64(rl.limit) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
