package service

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"text2sql-go/internal/ai"
	"text2sql-go/internal/metrics"
)

// QueryPipeline 单次请求的同步查询管道
// 防护 → 提示词渲染 → LLM → 后处理 → 执行 → 摘要，单趟、无重试、无缓存
// 管道自身不持有跨请求的可变状态，宿主可以并发发起互不相干的调用
type QueryPipeline struct {
	guard      *InputGuard
	renderer   *ai.PromptRenderer
	completer  ai.Completer
	post       *PostProcessor
	executor   *SQLExecutor
	summarizer *ResultSummarizer
	metrics    *metrics.PipelineMetrics
	logger     *zap.Logger

	// 审计文件路径，为空时不落盘
	auditFile string

	// 可注入时钟，测试用
	now func() time.Time
}

// PipelineConfig 管道装配配置
type PipelineConfig struct {
	Renderer  *ai.PromptRenderer
	Completer ai.Completer
	Executor  *SQLExecutor
	TenantKey string
	AuditFile string
	Metrics   *metrics.PipelineMetrics
	Logger    *zap.Logger
}

// PipelineResult 管道成功执行的结果
// FinalSQL仅用于审计与日志，调用方不应将其展示给使用者
type PipelineResult struct {
	Description string
	RowCount    int
	FinalSQL    string
	Elapsed     time.Duration
}

// NewQueryPipeline 装配查询管道
func NewQueryPipeline(config *PipelineConfig) *QueryPipeline {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueryPipeline{
		guard:      NewInputGuard(logger),
		renderer:   config.Renderer,
		completer:  config.Completer,
		post:       NewPostProcessor(config.TenantKey, logger),
		executor:   config.Executor,
		summarizer: NewResultSummarizer(config.Renderer, config.Completer, logger),
		metrics:    config.Metrics,
		logger:     logger,
		auditFile:  config.AuditFile,
		now:        time.Now,
	}
}

// Process 处理一条自然语言查询
// 四类失败（SecurityViolation/GatewayError/RejectedQuery/ExecutionError）
// 全部在请求边界恢复，不会中断进程
func (p *QueryPipeline) Process(ctx context.Context, question string) (*PipelineResult, error) {
	start := p.now()

	// 1. 输入防护：命中禁用词时不会有任何内容发送给LLM
	if err := p.guard.Check(question); err != nil {
		p.recordOutcome("security_violation")
		return nil, err
	}

	// 2. 渲染SQL生成提示词
	sqlPrompt, err := p.renderer.RenderSQLPrompt(question, start)
	if err != nil {
		p.recordOutcome("gateway_error")
		return nil, &ai.GatewayError{Message: "渲染SQL提示词失败", Err: err}
	}

	// 3. 第一次LLM调用：生成候选SQL
	llmStart := p.now()
	rawOutput, err := p.completer.Complete(ctx, sqlPrompt)
	p.recordLLMDuration("generation", p.now().Sub(llmStart))
	if err != nil {
		p.recordOutcome("gateway_error")
		return nil, err
	}

	// 4. 后处理：规范化、租户隔离、只读约束
	finalSQL, err := p.post.Finalize(rawOutput, question)
	if err != nil {
		var rejected *RejectedQuery
		if errors.As(err, &rejected) {
			p.recordRejection(string(rejected.Reason))
		}
		p.recordOutcome("rejected")
		return nil, err
	}

	// 审计：覆盖写入最近一次最终SQL，尽力而为
	p.writeAudit(finalSQL)

	// 5. 执行
	execStart := p.now()
	result, err := p.executor.ExecuteQuery(ctx, finalSQL)
	if err != nil {
		p.recordOutcome("execution_error")
		return nil, err
	}
	p.recordSQLExecution(p.now().Sub(execStart), result.RowCount)

	// 6. 第二次LLM调用：生成口语化描述
	llmStart = p.now()
	description, err := p.summarizer.Summarize(ctx, question, result, start)
	p.recordLLMDuration("description", p.now().Sub(llmStart))
	if err != nil {
		p.recordOutcome("gateway_error")
		return nil, err
	}

	p.recordOutcome("success")

	elapsed := p.now().Sub(start)
	p.logger.Info("查询管道执行完成",
		zap.Int("row_count", result.RowCount),
		zap.Duration("elapsed", elapsed))

	return &PipelineResult{
		Description: description,
		RowCount:    result.RowCount,
		FinalSQL:    finalSQL,
		Elapsed:     elapsed,
	}, nil
}

// writeAudit 把最终SQL覆盖写入审计文件
// 写入失败只记录警告，不影响请求
func (p *QueryPipeline) writeAudit(finalSQL string) {
	if p.auditFile == "" {
		return
	}
	if err := os.WriteFile(p.auditFile, []byte(finalSQL+"\n"), 0o644); err != nil {
		p.logger.Warn("审计文件写入失败",
			zap.String("path", p.auditFile),
			zap.Error(err))
	}
}

func (p *QueryPipeline) recordOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordOutcome(outcome)
	}
}

func (p *QueryPipeline) recordRejection(reason string) {
	if p.metrics != nil {
		p.metrics.RecordRejection(reason)
	}
}

func (p *QueryPipeline) recordLLMDuration(call string, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordLLMDuration(call, duration)
	}
}

func (p *QueryPipeline) recordSQLExecution(duration time.Duration, rows int) {
	if p.metrics != nil {
		p.metrics.RecordSQLExecution(duration, rows)
	}
}
