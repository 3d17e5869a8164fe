// Package ai 提供LLM网关与提示词渲染
// 基于LangChainGo的统一接口，支持OpenAI、Anthropic、Ollama多种提供商
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"text2sql-go/internal/config"
)

// Completer 同步补全接口
// 管道对LLM提供商的唯一依赖，失败时返回*GatewayError
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GatewayError LLM调用失败
// 提供商错误、空响应、内容安全拦截统一折叠为该类型，调用方一律视为同一种失败
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM网关错误: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("LLM网关错误: %s", e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// LLMGateway LLM完成调用的薄封装
// 单次尝试、快速失败，温度固定为0保证两个调用点的可复现性
type LLMGateway struct {
	model  llms.Model
	config *config.AIConfig
	logger *zap.Logger
}

// NewLLMGateway 创建LLM网关
func NewLLMGateway(aiConfig *config.AIConfig, logger *zap.Logger) (*LLMGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := newHTTPClient(aiConfig.Timeout)

	model, err := createLLMProvider(aiConfig.Model, httpClient)
	if err != nil {
		return nil, fmt.Errorf("创建LLM提供商%s失败: %w", aiConfig.Model.Provider, err)
	}

	logger.Info("LLM网关初始化成功",
		zap.String("provider", aiConfig.Model.Provider),
		zap.String("model", aiConfig.Model.ModelName))

	return &LLMGateway{
		model:  model,
		config: aiConfig,
		logger: logger,
	}, nil
}

// createLLMProvider 创建特定提供商的LLM实例
func createLLMProvider(modelConfig config.ModelConfig, httpClient *http.Client) (llms.Model, error) {
	switch modelConfig.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(modelConfig.APIKey),
			openai.WithModel(modelConfig.ModelName),
			openai.WithHTTPClient(httpClient),
		}
		if modelConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(modelConfig.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		return anthropic.New(
			anthropic.WithToken(modelConfig.APIKey),
			anthropic.WithModel(modelConfig.ModelName),
			anthropic.WithHTTPClient(httpClient),
		)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(modelConfig.ModelName),
			ollama.WithHTTPClient(httpClient),
		}
		if modelConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(modelConfig.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("不支持的模型提供商: %s", modelConfig.Provider)
	}
}

// newHTTPClient 创建优化的HTTP客户端
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Timeout: timeout,
	}
}

// Complete 执行一次完成调用
// 不重试：任何失败都折叠为*GatewayError交由请求边界处理
func (g *LLMGateway) Complete(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	response, err := g.model.GenerateContent(reqCtx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithTemperature(g.config.Model.Temperature),
		llms.WithMaxTokens(g.config.Model.MaxTokens),
	)
	if err != nil {
		g.logger.Error("LLM调用失败",
			zap.String("provider", g.config.Model.Provider),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", &GatewayError{Message: "提供商调用失败", Err: err}
	}

	if len(response.Choices) == 0 {
		return "", &GatewayError{Message: "提供商返回空响应"}
	}

	content := response.Choices[0].Content
	if strings.TrimSpace(content) == "" {
		return "", &GatewayError{Message: "提供商返回空白内容"}
	}

	g.logger.Debug("LLM调用成功",
		zap.String("provider", g.config.Model.Provider),
		zap.Int("response_length", len(content)),
		zap.Duration("elapsed", time.Since(start)))

	return content, nil
}
