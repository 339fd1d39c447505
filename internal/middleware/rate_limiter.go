package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter 按 key 判断是否放行
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 进程内令牌桶，每个客户端一个 rate.Limiter
type LocalLimiter struct {
	perMinute int
	mu        sync.Mutex
	clients   map[string]*localClient
	lastSweep time.Time
}

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter 创建进程内限流器
func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &LocalLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*localClient),
		lastSweep: time.Now(),
	}
}

// Allow 检查是否允许请求
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > 5*time.Minute {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > 10*time.Minute {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		burst := l.perMinute / 6
		if burst < 1 {
			burst = 1
		}
		c = &localClient{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.Allow(), nil
}

// RedisLimiter 基于 Redis 的固定窗口计数，多实例共享配额
type RedisLimiter struct {
	client    *redis.Client
	perMinute int
	prefix    string
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RedisLimiter{client: client, perMinute: perMinute, prefix: "careassist:ratelimit:"}
}

// Allow 检查是否允许请求
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis 限流计数失败: %w", err)
	}
	return incr.Val() <= int64(l.perMinute), nil
}

// RateLimitMiddleware 限流中间件，按客户端 IP 计数
// 限流存储不可用时放行，避免 Redis 故障拖垮上传与检索
func RateLimitMiddleware(limiter Limiter, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn("限流检查失败，放行请求", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(60))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please retry later",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			return
		}
		c.Next()
	}
}
