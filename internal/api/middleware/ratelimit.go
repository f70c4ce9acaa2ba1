package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/qs3c/codeforge_server/internal/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按用户的令牌桶限流
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow 消耗用户的一个令牌
func (l *RateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now

	// 顺带清理长时间不活跃的用户
	for id, other := range l.limiters {
		if now.Sub(other.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}

	return ul.limiter.AllowN(now, 1)
}

// Middleware 需要放在 Auth 之后
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if !l.Allow(userID) {
			response.RateLimitError(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}
