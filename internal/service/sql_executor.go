package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLExecutor SQL执行器
// 每次调用打开一条作用域内的SQLite连接，调用结束必定释放，
// 不做连接池、不跨请求持有任何状态
type SQLExecutor struct {
	databaseFile string
	logger       *zap.Logger

	queryTimeout time.Duration
	maxRows      int
}

// SQLExecutorConfig SQL执行器配置
type SQLExecutorConfig struct {
	QueryTimeout time.Duration // 查询超时，默认30秒
	MaxRows      int           // 最大返回行数，默认1000行
}

// QueryResult SQL查询结果
// 所有值统一强制转为文本表示，避免下游编码歧义
// 空结果是有效结果，与查询失败是两种不同的终态
type QueryResult struct {
	Columns       []string   `json:"columns"`
	Rows          [][]string `json:"rows"`
	RowCount      int        `json:"row_count"`
	ExecutionTime int64      `json:"execution_time"` // 毫秒
	Warnings      []string   `json:"warnings,omitempty"`
}

// NewSQLExecutor 创建SQL执行器
func NewSQLExecutor(databaseFile string, logger *zap.Logger) *SQLExecutor {
	return NewSQLExecutorWithConfig(databaseFile, nil, logger)
}

// NewSQLExecutorWithConfig 使用自定义配置创建SQL执行器
func NewSQLExecutorWithConfig(databaseFile string, config *SQLExecutorConfig, logger *zap.Logger) *SQLExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &SQLExecutorConfig{}
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.MaxRows <= 0 {
		config.MaxRows = 1000
	}

	return &SQLExecutor{
		databaseFile: databaseFile,
		logger:       logger,
		queryTimeout: config.QueryTimeout,
		maxRows:      config.MaxRows,
	}
}

// ExecuteQuery 执行最终SQL
// 失败时返回*ExecutionError包装引擎诊断信息，对请求是终态，不重试
func (e *SQLExecutor) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	db, err := sql.Open("sqlite3", e.databaseFile)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("打开数据库失败: %w", err)}
	}
	defer db.Close()

	rows, err := db.QueryContext(queryCtx, query)
	if err != nil {
		e.logger.Error("SQL查询执行失败",
			zap.String("sql", query),
			zap.Error(err))
		return nil, &ExecutionError{Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("读取列信息失败: %w", err)}
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    [][]string{},
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if result.RowCount >= e.maxRows {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("查询结果超过最大行数限制(%d行)，已截断", e.maxRows))
			break
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, &ExecutionError{Err: fmt.Errorf("读取查询结果失败: %w", err)}
		}

		row := make([]string, len(columns))
		for i, value := range values {
			row[i] = coerceToText(value)
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}

	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Err: err}
	}

	result.ExecutionTime = time.Since(start).Milliseconds()

	e.logger.Info("SQL查询执行成功",
		zap.Int("row_count", result.RowCount),
		zap.Int64("execution_time_ms", result.ExecutionTime))

	return result, nil
}

// coerceToText 把数据库值强制转为文本表示
func coerceToText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
