// Package metrics 提供Prometheus指标收集
// 收集HTTP请求与查询管道各阶段的关键业务指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PipelineMetrics 查询管道指标收集器
type PipelineMetrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 管道指标
	pipelineRequestsTotal *prometheus.CounterVec // 按终态分类的请求总数
	stageRejectionsTotal  *prometheus.CounterVec // 各阶段拒绝次数
	llmRequestDuration    *prometheus.HistogramVec
	sqlExecutionDuration  prometheus.Histogram
	rowsReturned          prometheus.Histogram

	registry *prometheus.Registry
	logger   *zap.Logger
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Namespace string
}

// DefaultMetricsConfig 默认指标配置
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace: "text2sql",
	}
}

// NewPipelineMetrics 创建管道指标收集器
func NewPipelineMetrics(config *MetricsConfig, logger *zap.Logger) *PipelineMetrics {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}

	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	pm.pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total pipeline requests by terminal outcome",
		},
		[]string{"outcome"}, // success / security_violation / rejected / gateway_error / execution_error
	)

	pm.stageRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "pipeline",
			Name:      "stage_rejections_total",
			Help:      "Candidate queries rejected, by reason",
		},
		[]string{"reason"},
	)

	pm.llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM completion call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"call"}, // generation / description
	)

	pm.sqlExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "sql",
			Name:      "execution_duration_seconds",
			Help:      "SQL execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	pm.rowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "sql",
			Name:      "rows_returned",
			Help:      "Number of rows returned per query",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)

	pm.registry.MustRegister(
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.pipelineRequestsTotal,
		pm.stageRejectionsTotal,
		pm.llmRequestDuration,
		pm.sqlExecutionDuration,
		pm.rowsReturned,
	)

	return pm
}

// RecordOutcome 记录一次管道请求的终态
func (pm *PipelineMetrics) RecordOutcome(outcome string) {
	pm.pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection 记录一次候选SQL拒绝
func (pm *PipelineMetrics) RecordRejection(reason string) {
	pm.stageRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordLLMDuration 记录一次LLM调用耗时
func (pm *PipelineMetrics) RecordLLMDuration(call string, duration time.Duration) {
	pm.llmRequestDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// RecordSQLExecution 记录一次SQL执行
func (pm *PipelineMetrics) RecordSQLExecution(duration time.Duration, rows int) {
	pm.sqlExecutionDuration.Observe(duration.Seconds())
	pm.rowsReturned.Observe(float64(rows))
}

// HTTPMetricsMiddleware HTTP指标中间件
func (pm *PipelineMetrics) HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		pm.httpRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}

// GetMetricsHandler 返回/metrics端点处理函数
func (pm *PipelineMetrics) GetMetricsHandler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Registry 返回底层注册器，供测试收集指标
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}
