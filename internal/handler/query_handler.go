// Package handler 提供查询服务的HTTP API处理器
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"text2sql-go/internal/ai"
	"text2sql-go/internal/service"
)

// QueryPipeline 查询管道接口定义
type QueryPipeline interface {
	Process(ctx context.Context, question string) (*service.PipelineResult, error)
}

// QueryHandler 自然语言查询HTTP处理器
type QueryHandler struct {
	pipeline QueryPipeline
	history  *ConversationHistory
	logger   *zap.Logger

	requestTimeout time.Duration
}

// NewQueryHandler 创建查询处理器实例
func NewQueryHandler(pipeline QueryPipeline, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		pipeline:       pipeline,
		history:        NewConversationHistory(defaultHistoryLimit),
		logger:         logger,
		requestTimeout: 90 * time.Second,
	}
}

// QueryRequest 自然语言查询请求结构
type QueryRequest struct {
	Question string `json:"question" binding:"required,min=1,max=1000"`
}

// QueryResponse 自然语言查询响应结构
// 只返回口语化描述与元信息，永远不回传SQL与租户金钥
type QueryResponse struct {
	Answer         string `json:"answer"`
	RowCount       int    `json:"row_count"`
	ProcessingTime int64  `json:"processing_time_ms"`
	Timestamp      string `json:"timestamp"`
}

// ErrorResponse 统一错误响应结构
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Query 处理自然语言查询请求
// 四类管道失败各自映射到固定的HTTP状态码与错误码，
// 错误响应中不包含SQL文本与租户金钥
func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("请求参数验证失败", zap.Error(err))
		h.respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "請求參數無效", "")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.pipeline.Process(ctx, req.Question)
	if err != nil {
		h.respondWithPipelineError(c, err)
		return
	}

	h.history.Append(ConversationTurn{
		Question:  req.Question,
		Answer:    result.Description,
		RowCount:  result.RowCount,
		Timestamp: time.Now(),
	})

	c.JSON(http.StatusOK, QueryResponse{
		Answer:         result.Description,
		RowCount:       result.RowCount,
		ProcessingTime: result.Elapsed.Milliseconds(),
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}

// History 返回最近的问答记录，最新的在前
func (h *QueryHandler) History(c *gin.Context) {
	turns := h.history.List()

	c.JSON(http.StatusOK, gin.H{
		"turns": turns,
		"count": len(turns),
	})
}

// respondWithPipelineError 把管道错误映射为HTTP响应
func (h *QueryHandler) respondWithPipelineError(c *gin.Context, err error) {
	var violation *service.SecurityViolation
	var rejected *service.RejectedQuery
	var gatewayErr *ai.GatewayError
	var execErr *service.ExecutionError

	switch {
	case errors.As(err, &violation):
		h.logger.Warn("请求被输入防护拦截", zap.String("token", violation.Token))
		h.respondWithError(c, http.StatusBadRequest, "SECURITY_VIOLATION",
			"偵測到不允許的查詢內容", "")

	case errors.As(err, &rejected):
		h.logger.Info("候选SQL被拒绝",
			zap.String("reason", string(rejected.Reason)))
		h.respondWithError(c, http.StatusUnprocessableEntity, "QUERY_REJECTED",
			rejected.Message, rejected.Suggestion)

	case errors.As(err, &gatewayErr):
		h.logger.Error("LLM网关调用失败", zap.Error(err))
		h.respondWithError(c, http.StatusBadGateway, "GATEWAY_ERROR",
			"語言模型服務暫時無法使用，請稍後重試", "")

	case errors.As(err, &execErr):
		h.logger.Error("SQL执行失败", zap.Error(err))
		h.respondWithError(c, http.StatusInternalServerError, "EXECUTION_ERROR",
			fmt.Sprintf("查詢執行失敗: %v", execErr.Unwrap()), "")

	default:
		h.logger.Error("未分类的管道错误", zap.Error(err))
		h.respondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR",
			"伺服器內部錯誤", "")
	}
}

// respondWithError 统一错误响应
func (h *QueryHandler) respondWithError(c *gin.Context, status int, code, message, suggestion string) {
	c.JSON(status, ErrorResponse{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}
