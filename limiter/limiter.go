// Package limiter throttles the sensitive endpoints with a Redis fixed
// window per client IP. It sits in front of the handlers; the auth core
// itself never counts requests.
package limiter

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Limiter { return &Limiter{rdb: rdb} }

// Allow 就地实现固定窗口：INCR，首次命中设置过期
func (l *Limiter) Allow(c *gin.Context, name string, max int64, window time.Duration) (bool, error) {
	key := "ratelimit:" + name + ":" + c.ClientIP()
	count, err := l.rdb.Incr(c.Request.Context(), key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(c.Request.Context(), key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= max, nil
}

// Middleware は上限超過で 429 を返す。Redis 障害時は通す（認証は別で守られる）。
func (l *Limiter) Middleware(name string, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c, name, max, window)
		if err != nil {
			log.Printf("rate limiter unavailable: %v", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
