package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"text2sql-go/internal/ai"
	"text2sql-go/internal/config"
	"text2sql-go/internal/handler"
	"text2sql-go/internal/metrics"
	"text2sql-go/internal/middleware"
	"text2sql-go/internal/schema"
	"text2sql-go/internal/service"
)

func main() {
	// 初始化日志
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	logger.Info("启动text2sql服务",
		zap.String("version", "0.1.0"),
		zap.String("go_version", runtime.Version()))

	// 加载环境变量
	if err := config.LoadEnv(".env"); err != nil {
		logger.Warn("加载.env文件失败", zap.Error(err))
	}

	// 加载配置
	appConfig, err := config.LoadAppConfigFromEnv()
	if err != nil {
		logger.Fatal("应用配置无效", zap.Error(err))
	}
	aiConfig, err := config.LoadAIConfigFromEnv()
	if err != nil {
		logger.Fatal("AI配置无效", zap.Error(err))
	}

	// 加载数据库结构描述
	descriptor, err := loadDescriptor(appConfig, logger)
	if err != nil {
		logger.Fatal("加载数据库结构描述失败", zap.Error(err))
	}

	// 初始化LLM网关
	gateway, err := ai.NewLLMGateway(aiConfig, logger)
	if err != nil {
		logger.Fatal("初始化LLM网关失败", zap.Error(err))
	}

	// 初始化Prometheus指标
	pipelineMetrics := metrics.NewPipelineMetrics(metrics.DefaultMetricsConfig(), logger)

	// 装配查询管道
	pipeline := service.NewQueryPipeline(&service.PipelineConfig{
		Renderer:  ai.NewPromptRenderer(descriptor, appConfig.TenantKey),
		Completer: gateway,
		Executor:  service.NewSQLExecutor(appConfig.DatabaseFile, logger),
		TenantKey: appConfig.TenantKey,
		AuditFile: appConfig.AuditFile,
		Metrics:   pipelineMetrics,
		Logger:    logger,
	})

	// 初始化Gin路由器
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	handler.SetupRoutes(r, &handler.RouterConfig{
		QueryHandler: handler.NewQueryHandler(pipeline, logger),
		Metrics:      pipelineMetrics,
		Middleware:   middleware.DefaultConfig(logger),
	})

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:           appConfig.ListenAddr,
		Handler:        r,
		ReadTimeout:    appConfig.ReadTimeout,
		WriteTimeout:   appConfig.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("HTTP服务启动",
			zap.String("addr", srv.Addr),
			zap.String("mode", gin.Mode()))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("启动HTTP服务失败", zap.Error(err))
		}
	}()

	// 优雅关闭处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", zap.Error(err))
	}

	logger.Info("服务已退出")
}

// loadDescriptor 加载数据库结构描述
// 未配置描述文件时回退到内置的默认结构
func loadDescriptor(appConfig *config.AppConfig, logger *zap.Logger) (*schema.Descriptor, error) {
	if appConfig.SchemaFile == "" {
		logger.Info("使用内置数据库结构描述")
		return schema.Default(), nil
	}

	descriptor, err := schema.LoadFile(appConfig.SchemaFile)
	if err != nil {
		return nil, err
	}

	logger.Info("数据库结构描述加载成功",
		zap.String("path", appConfig.SchemaFile),
		zap.Strings("tables", descriptor.TableNames()))
	return descriptor, nil
}
