package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"maildash/backend/internal/cache"
	"maildash/backend/internal/monitoring"
)

// limiterIdleTTL 客户端空闲多久后丢弃其令牌桶
const limiterIdleTTL = 10 * time.Minute

// RateLimiter 按客户端 IP 的令牌桶限流
type RateLimiter struct {
	limiters *cache.LocalCache[*rate.Limiter]
	limit    rate.Limit
	burst    int
	metrics  *monitoring.Metrics
}

// NewRateLimiter 创建限流器
//
// 参数:
//   - perSecond: 每秒允许的请求数，<=0 时不限流
//   - burst: 突发请求数
//   - metrics: 监控指标，可为 nil
func NewRateLimiter(perSecond float64, burst int, metrics *monitoring.Metrics) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.NewLocalCache[*rate.Limiter](limiterIdleTTL, time.Minute),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		metrics:  metrics,
	}
}

// Middleware 返回 gin 中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		limiter := rl.limiters.GetOrSet(c.ClientIP(), func() *rate.Limiter {
			return rate.NewLimiter(rl.limit, rl.burst)
		})
		if !limiter.Allow() {
			rl.metrics.RecordRateLimitBlock("http")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(1/float64(rl.limit)))))
			abort(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}
		c.Next()
	}
}

// Close 停止后台清理
func (rl *RateLimiter) Close() {
	rl.limiters.Close()
}
