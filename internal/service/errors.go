// Package service 实现查询生成与租户隔离后处理管道
package service

import "fmt"

// RejectReason 候选SQL被拒绝的原因分类
type RejectReason string

const (
	// RejectDestructive 破坏性语句（DELETE/UPDATE/DROP/ALTER/INSERT）
	RejectDestructive RejectReason = "destructive_statement"
	// RejectFieldNotFound 模型返回欄位不存在约定前缀
	RejectFieldNotFound RejectReason = "field_not_found"
	// RejectEmpty 规范化后没有剩下任何语句
	RejectEmpty RejectReason = "empty_statement"
)

// SecurityViolation 输入防护拒绝
// 在任何提示词渲染之前触发，管道立即终止，不会有内容发送给LLM
type SecurityViolation struct {
	Token string // 命中的禁用词
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("输入包含禁用词: %s", e.Token)
}

// RejectedQuery 后处理器判定候选SQL不安全、格式异常或引用不存在的欄位
// 语句不会被执行；欄位不存在时Suggestion携带模型的改写建议
type RejectedQuery struct {
	Reason     RejectReason
	Message    string
	Suggestion string
}

func (e *RejectedQuery) Error() string {
	return fmt.Sprintf("查询被拒绝 [%s]: %s", e.Reason, e.Message)
}

// ExecutionError 数据库引擎执行失败
// 包含引擎诊断信息，对单个请求是终态，不重试、不中断进程
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("查询执行失败: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
