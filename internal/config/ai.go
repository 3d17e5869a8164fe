package config

import (
	"fmt"
	"os"
	"time"
)

// AIConfig AI服务配置
// 两次LLM调用（SQL生成与结果描述）共用同一模型配置
type AIConfig struct {
	Model ModelConfig

	// 单次调用超时
	Timeout time.Duration
}

// ModelConfig 单个模型配置
type ModelConfig struct {
	Provider    string        // "openai"、"anthropic" 或 "ollama"
	ModelName   string        // 模型名称
	APIKey      string        // API密钥
	BaseURL     string        // 自定义服务地址（代理、Ollama等）
	Temperature float64       // 温度参数，为保证可复现固定为0
	MaxTokens   int           // 最大令牌数
	Timeout     time.Duration // 请求超时
}

// DefaultAIConfig 创建默认AI配置
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		Model: ModelConfig{
			Provider:    "openai",
			ModelName:   "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
}

// LoadAIConfigFromEnv 从环境变量加载AI配置
func LoadAIConfigFromEnv() (*AIConfig, error) {
	config := DefaultAIConfig()

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.Model.Provider = provider
	}

	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.Model.ModelName = model
	}

	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.Model.BaseURL = baseURL
	}

	config.Model.APIKey = os.Getenv("LLM_API_KEY")

	if llmTimeout := os.Getenv("LLM_TIMEOUT"); llmTimeout != "" {
		if duration, err := time.ParseDuration(llmTimeout); err == nil {
			config.Timeout = duration
			config.Model.Timeout = duration
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 验证AI配置的有效性
func (c *AIConfig) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("%s提供商需要LLM_API_KEY", c.Model.Provider)
		}
	case "ollama":
		// 本地模型不需要API密钥
	default:
		return fmt.Errorf("不支持的模型提供商: %s", c.Model.Provider)
	}

	if c.Model.ModelName == "" {
		return fmt.Errorf("模型名称不能为空")
	}

	if c.Model.Temperature != 0 {
		return fmt.Errorf("温度参数必须为0以保证可复现性，实际: %v", c.Model.Temperature)
	}

	return nil
}
