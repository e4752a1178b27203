// loginlimit.go provides a Redis-backed rate limit for the login endpoint.
// Unlike the in-memory token bucket in ratelimit.go, the Redis limiter is
// shared across replicas, so an attacker cannot multiply their attempt budget
// by spraying requests across instances.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/estatedesk/estatedesk/internal/telemetry"
)

// loginAttemptsPerMinute is the per-IP budget for POST /api/auth/login.
const loginAttemptsPerMinute = 10

// LoginRateLimitMiddleware limits login attempts per client IP using the
// shared Redis instance. When Redis is unreachable the request is allowed
// through: losing rate limiting briefly is preferable to locking everyone out
// of login during a cache outage.
func LoginRateLimitMiddleware(rdb *redis.Client) gin.HandlerFunc {
	limiter := redis_rate.NewLimiter(rdb)

	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), "login:"+c.ClientIP(), redis_rate.PerMinute(loginAttemptsPerMinute))
		if err != nil {
			slog.Warn("login rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		if res.Allowed == 0 {
			telemetry.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many login attempts",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
