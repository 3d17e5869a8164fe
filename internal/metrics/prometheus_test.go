package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// PipelineMetricsTestSuite 管道指标测试套件
type PipelineMetricsTestSuite struct {
	suite.Suite
	metrics *PipelineMetrics
}

// SetupTest 每个测试使用独立的注册器
func (suite *PipelineMetricsTestSuite) SetupTest() {
	suite.metrics = NewPipelineMetrics(nil, zap.NewNop())
	gin.SetMode(gin.TestMode)
}

// TestPipelineMetrics_RecordOutcome 测试终态计数
func (suite *PipelineMetricsTestSuite) TestPipelineMetrics_RecordOutcome() {
	t := suite.T()

	suite.metrics.RecordOutcome("success")
	suite.metrics.RecordOutcome("success")
	suite.metrics.RecordOutcome("rejected")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(suite.metrics.pipelineRequestsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(suite.metrics.pipelineRequestsTotal.WithLabelValues("rejected")))
}

// TestPipelineMetrics_RecordRejection 测试拒绝原因计数
func (suite *PipelineMetricsTestSuite) TestPipelineMetrics_RecordRejection() {
	t := suite.T()

	suite.metrics.RecordRejection("destructive_statement")
	suite.metrics.RecordRejection("field_not_found")
	suite.metrics.RecordRejection("destructive_statement")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(suite.metrics.stageRejectionsTotal.WithLabelValues("destructive_statement")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(suite.metrics.stageRejectionsTotal.WithLabelValues("field_not_found")))
}

// TestPipelineMetrics_Histograms 测试耗时直方图可被采集
func (suite *PipelineMetricsTestSuite) TestPipelineMetrics_Histograms() {
	t := suite.T()

	suite.metrics.RecordLLMDuration("generation", 800*time.Millisecond)
	suite.metrics.RecordLLMDuration("description", 1200*time.Millisecond)
	suite.metrics.RecordSQLExecution(5*time.Millisecond, 42)

	families, err := suite.metrics.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["text2sql_llm_request_duration_seconds"])
	assert.True(t, names["text2sql_sql_execution_duration_seconds"])
	assert.True(t, names["text2sql_sql_rows_returned"])
}

// TestPipelineMetrics_HTTPMiddleware 测试HTTP指标中间件
func (suite *PipelineMetricsTestSuite) TestPipelineMetrics_HTTPMiddleware() {
	t := suite.T()

	router := gin.New()
	router.Use(suite.metrics.HTTPMetricsMiddleware())
	router.GET("/api/v1/query", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		suite.metrics.httpRequestsTotal.WithLabelValues("GET", "/api/v1/query", "200")))
}

// TestPipelineMetrics_MetricsEndpoint 测试/metrics端点输出
func (suite *PipelineMetricsTestSuite) TestPipelineMetrics_MetricsEndpoint() {
	t := suite.T()

	suite.metrics.RecordOutcome("success")

	router := gin.New()
	router.GET("/metrics", suite.metrics.GetMetricsHandler())

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "text2sql_pipeline_requests_total")
}

// TestPipelineMetricsTestSuite 运行管道指标测试套件
func TestPipelineMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineMetricsTestSuite))
}
