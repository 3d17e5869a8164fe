package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"text2sql-go/internal/metrics"
	"text2sql-go/internal/middleware"
)

// RouterConfig 路由配置结构
type RouterConfig struct {
	QueryHandler *QueryHandler
	Metrics      *metrics.PipelineMetrics
	Middleware   *middleware.Config
}

// SetupRoutes 配置所有API路由
func SetupRoutes(r *gin.Engine, config *RouterConfig) {
	if config.Middleware != nil {
		middleware.Setup(r, config.Middleware)
	}
	if config.Metrics != nil {
		r.Use(config.Metrics.HTTPMetricsMiddleware())
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/query", config.QueryHandler.Query)
		v1.GET("/history", config.QueryHandler.History)
	}

	setupSystemRoutes(r, config)
}

// setupSystemRoutes 配置系统级路由
func setupSystemRoutes(r *gin.Engine, config *RouterConfig) {
	r.GET("/health", healthCheck)

	if config.Metrics != nil {
		r.GET("/metrics", config.Metrics.GetMetricsHandler())
	}
}

// healthCheck 健康检查处理器
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "text2sql-api",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
