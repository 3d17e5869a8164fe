package service

import (
	"strings"

	"go.uber.org/zap"
)

// InputGuard 自然语言输入的前置防护
// 固定的多语言禁用词表，命中即终止请求，属于纵深防御而非严格的安全边界
type InputGuard struct {
	denylist []string
	logger   *zap.Logger
}

// 默认禁用词表，覆盖提示注入与越权意图的中英文常见表达
var defaultDenylist = []string{
	"ignore",
	"delete",
	"drop",
	"truncate",
	"other companies",
	"忽略",
	"無視",
	"无视",
	"刪除",
	"删除",
	"其他公司",
	"所有公司",
	"其它公司",
}

// NewInputGuard 创建输入防护
func NewInputGuard(logger *zap.Logger) *InputGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InputGuard{
		denylist: defaultDenylist,
		logger:   logger,
	}
}

// Check 校验自然语言输入
// 命中禁用词返回*SecurityViolation，对当前请求是致命的
func (g *InputGuard) Check(query string) error {
	lowered := strings.ToLower(query)

	for _, token := range g.denylist {
		if strings.Contains(lowered, token) {
			g.logger.Warn("输入命中禁用词",
				zap.String("token", token),
				zap.Int("query_length", len(query)))
			return &SecurityViolation{Token: token}
		}
	}

	return nil
}
