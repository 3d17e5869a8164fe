// Package middleware 提供HTTP中间件链
// 恢复、结构化日志、安全头、CORS、限流与请求ID追踪
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config 中间件配置
type Config struct {
	Logger    *zap.Logger
	RateLimit *RateLimitConfig
	CORS      *CORSConfig
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RequestsPerSecond int // 每秒请求数限制
	Burst             int // 突发请求数
}

// CORSConfig CORS配置
type CORSConfig struct {
	AllowOrigins []string // 允许的源
	AllowMethods []string // 允许的HTTP方法
	AllowHeaders []string // 允许的请求头
	MaxAge       int      // 预检请求缓存时间（秒）
}

// DefaultConfig 默认中间件配置
// 查询管道的瓶颈在LLM调用，限流阈值设得保守
func DefaultConfig(logger *zap.Logger) *Config {
	return &Config{
		Logger: logger,
		RateLimit: &RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		CORS: &CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
			MaxAge:       86400,
		},
	}
}

// Setup 按固定顺序装配中间件链
// 恢复必须最先注册，保证后续任何panic都能被捕获
func Setup(r *gin.Engine, config *Config) {
	r.Use(Recovery(config.Logger))
	r.Use(StructuredLogger(config.Logger))
	r.Use(SecurityHeaders())
	r.Use(CORS(config.CORS))
	r.Use(RateLimit(config.RateLimit))
	r.Use(RequestID())
}

// Recovery 恢复中间件
// 捕获panic并记录详细错误日志，防止单个请求拖垮服务
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		if logger != nil {
			logger.Error("请求处理panic已恢复",
				zap.Any("panic", recovered),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"code":      "INTERNAL_ERROR",
			"message":   "伺服器內部錯誤",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}

// StructuredLogger 结构化日志中间件
func StructuredLogger(logger *zap.Logger) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			if logger != nil {
				logger.Info("HTTP请求",
					zap.String("method", param.Method),
					zap.String("path", param.Path),
					zap.Int("status", param.StatusCode),
					zap.Duration("latency", param.Latency),
					zap.String("remote_addr", param.ClientIP),
					zap.Int("body_size", param.BodySize),
				)
			}
			return ""
		},
		Output: nil, // 只记录到zap，不写标准输出
	})
}

// SecurityHeaders 安全头中间件
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}

// CORS 跨域中间件，处理预检请求与实际请求
func CORS(config *CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if len(config.AllowOrigins) > 0 {
			if config.AllowOrigins[0] == "*" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if containsString(config.AllowOrigins, origin) {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		if len(config.AllowMethods) > 0 {
			c.Header("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
		}

		if len(config.AllowHeaders) > 0 {
			c.Header("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
		}

		if config.MaxAge > 0 {
			c.Header("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimiter 按客户端IP维护独立令牌桶
type rateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

func newRateLimiter(config *RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		rate:  rate.Limit(config.RequestsPerSecond),
		burst: config.Burst,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	value, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return value.(*rate.Limiter).Allow()
}

// RateLimit 请求限流中间件
// 以客户端IP为键限流，防止单一来源耗尽LLM调用配额
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	limiter := newRateLimiter(config)

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":        "RATE_LIMIT_EXCEEDED",
				"message":     "請求頻率超過限制，請稍後重試",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestID 请求ID中间件
// 每个请求绑定唯一ID，贯穿日志与响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func generateRequestID() string {
	return "req_" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
