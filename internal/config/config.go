// Package config 提供进程级配置加载
// 租户金钥属于受信任的外部配置，绝不从请求内容推导
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 应用配置
type AppConfig struct {
	// 监听地址
	ListenAddr string

	// 租户金钥，进程启动后只读，所有查询都会被限定到该值
	TenantKey string

	// SQLite数据库文件路径
	DatabaseFile string

	// 表结构描述文件路径，为空时使用内置默认描述
	SchemaFile string

	// 最近一次最终SQL的审计文件路径，尽力写入
	AuditFile string

	// HTTP服务器超时
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultAppConfig 创建默认应用配置
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ListenAddr:   ":8080",
		TenantKey:    "6224",
		DatabaseFile: "data.db",
		SchemaFile:   "",
		AuditFile:    "output.txt",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// LoadEnv 加载.env文件中的环境变量
// 文件不存在时回退到系统环境变量，不视为错误
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("加载%s失败: %w", path, err)
	}
	return nil
}

// LoadAppConfigFromEnv 从环境变量加载应用配置
func LoadAppConfigFromEnv() (*AppConfig, error) {
	config := DefaultAppConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}

	if key := os.Getenv("COMPANY_KEY"); key != "" {
		config.TenantKey = key
	}

	if dbFile := os.Getenv("DATABASE_FILE"); dbFile != "" {
		config.DatabaseFile = dbFile
	}

	if schemaFile := os.Getenv("SCHEMA_FILE"); schemaFile != "" {
		config.SchemaFile = schemaFile
	}

	if auditFile := os.Getenv("AUDIT_FILE"); auditFile != "" {
		config.AuditFile = auditFile
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 验证应用配置的有效性
func (c *AppConfig) Validate() error {
	if c.TenantKey == "" {
		return fmt.Errorf("租户金钥不能为空")
	}
	if c.DatabaseFile == "" {
		return fmt.Errorf("数据库文件路径不能为空")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("监听地址不能为空")
	}
	return nil
}
