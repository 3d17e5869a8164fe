package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"text2sql-go/internal/ai"
)

// ResultSummarizer 结果摘要器
// 渲染描述提示词并发起第二次LLM调用，输出直接展示给使用者
// 摘要文本永远不会把SQL语句回显给调用方
type ResultSummarizer struct {
	renderer  *ai.PromptRenderer
	completer ai.Completer
	logger    *zap.Logger
}

// NewResultSummarizer 创建结果摘要器
func NewResultSummarizer(renderer *ai.PromptRenderer, completer ai.Completer, logger *zap.Logger) *ResultSummarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultSummarizer{
		renderer:  renderer,
		completer: completer,
		logger:    logger,
	}
}

// Summarize 为查询结果生成口语化描述
// 结果为空时提示词要求模型推测原因但不得提及租户隔离机制
func (s *ResultSummarizer) Summarize(ctx context.Context, question string, result *QueryResult, now time.Time) (string, error) {
	var rows [][]string
	if result != nil {
		rows = result.Rows
	}

	prompt, err := s.renderer.RenderDescriptionPrompt(question, rows, now)
	if err != nil {
		return "", &ai.GatewayError{Message: "渲染描述提示词失败", Err: err}
	}

	description, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	s.logger.Debug("结果描述生成成功",
		zap.Int("rows", len(rows)),
		zap.Int("description_length", len(description)))

	return description, nil
}
