package service

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"text2sql-go/internal/ai"
	"text2sql-go/internal/schema"
)

// PostProcessor SQL后处理器
// 将LLM原始输出规范化为可执行SQL，并强制租户隔离与只读约束
// 各阶段为纯函数，按固定顺序组合，后面的阶段假定前面的规范化已完成
type PostProcessor struct {
	tenantKey string
	logger    *zap.Logger
}

// candidate 在后处理管道中流转的候选查询
// statement保存未被子查询包裹的内层语句，供破坏性语句检查使用
type candidate struct {
	raw       string // LLM原始输出
	sql       string // 当前候选文本
	statement string // 规范化后、包裹前的语句
	question  string // 原始自然语言问题
}

// stage 单个重写阶段：成功时就地修改候选，失败时返回*RejectedQuery
type stage struct {
	name  string
	apply func(*candidate) error
}

var (
	// 代码围栏标记，模型习惯性用markdown包裹SQL
	fenceOpenPattern  = regexp.MustCompile("(?i)^```(?:sql)?")
	fenceClosePattern = regexp.MustCompile("```$")

	// 连续空白折叠
	whitespacePattern = regexp.MustCompile(`\s+`)

	// SQL关键词，多词关键词在前保证最长匹配
	keywordPattern = regexp.MustCompile(`(?i)\b(` +
		`GROUP\s+BY|ORDER\s+BY|` +
		`LEFT\s+OUTER\s+JOIN|RIGHT\s+OUTER\s+JOIN|FULL\s+OUTER\s+JOIN|` +
		`INNER\s+JOIN|LEFT\s+JOIN|RIGHT\s+JOIN|CROSS\s+JOIN|JOIN|` +
		`SELECT|FROM|WHERE|HAVING|BETWEEN|LIKE|LIMIT|UPDATE|DELETE|INSERT|INTO|VALUES|AND|OR|NOT|IN` +
		`)\b`)

	// 破坏性语句的前导动词
	destructivePattern = regexp.MustCompile(`(?i)^\s*(DELETE|UPDATE|DROP|ALTER|INSERT)\b`)

	// 自然语言问题中的编号实体（員工<N>）
	entityNumberPattern = regexp.MustCompile(`員工\s*(\d+)`)

	// WHERE子句与其后置子句
	wherePattern          = regexp.MustCompile(`(?i)\bWHERE\b`)
	trailingClausePattern = regexp.MustCompile(`(?i)\s+(GROUP\s+BY|HAVING|ORDER\s+BY|LIMIT)\b`)
	orPattern             = regexp.MustCompile(`(?i)\bOR\b`)
)

// tenantPredicatePattern 租户键列上的等值谓词
// 非等值（IN等）或带别名的谓词不在识别范围内，是已记录的局限
var tenantPredicatePattern = regexp.MustCompile(
	regexp.QuoteMeta(schema.TenantKeyColumn) + `\s*=\s*('[^']*'|"[^"]*"|\d+)`)

// NewPostProcessor 创建SQL后处理器
func NewPostProcessor(tenantKey string, logger *zap.Logger) *PostProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostProcessor{
		tenantKey: tenantKey,
		logger:    logger,
	}
}

// Finalize 把LLM原始输出转换为可执行SQL
// 不变量：返回的语句必然带有绑定到受信任租户金钥的等值约束，
// 无论模型输出里出现过什么值
func (p *PostProcessor) Finalize(raw, question string) (string, error) {
	c := &candidate{
		raw:      raw,
		sql:      raw,
		question: question,
	}

	stages := []stage{
		{"sentinel", p.checkFieldSentinel},
		{"fence_strip", p.stripFences},
		{"keyword_spacing", p.normalizeKeywordSpacing},
		{"tenant_enforce", p.enforceTenantPredicate},
		{"destructive_reject", p.rejectDestructive},
		{"entity_substitute", p.substituteEntityLiteral},
	}

	for _, s := range stages {
		if err := s.apply(c); err != nil {
			p.logger.Info("候选SQL被拒绝",
				zap.String("stage", s.name),
				zap.Error(err))
			return "", err
		}
	}

	p.logger.Debug("候选SQL通过全部重写阶段",
		zap.String("final_sql", c.sql))

	return c.sql, nil
}

// checkFieldSentinel 欄位不存在短路
// 模型按提示词契约返回约定前缀时，携带其改写建议直接拒绝，跳过后续阶段
func (p *PostProcessor) checkFieldSentinel(c *candidate) error {
	trimmed := strings.TrimSpace(c.raw)
	trimmed = strings.TrimSpace(fenceOpenPattern.ReplaceAllString(trimmed, ""))

	if !strings.HasPrefix(trimmed, ai.FieldNotFoundSentinel) {
		return nil
	}

	suggestion := strings.TrimSpace(strings.TrimPrefix(trimmed, ai.FieldNotFoundSentinel))
	suggestion = strings.TrimLeft(suggestion, "，,。:：;；")
	suggestion = strings.TrimSpace(fenceClosePattern.ReplaceAllString(suggestion, ""))

	return &RejectedQuery{
		Reason:     RejectFieldNotFound,
		Message:    "請求的欄位不存在於資料庫結構中",
		Suggestion: suggestion,
	}
}

// stripFences 去除围栏标记并把换行折叠为空格
func (p *PostProcessor) stripFences(c *candidate) error {
	sql := strings.TrimSpace(c.sql)
	sql = fenceOpenPattern.ReplaceAllString(sql, "")
	sql = fenceClosePattern.ReplaceAllString(sql, "")
	sql = strings.ReplaceAll(sql, "\n", " ")
	sql = strings.TrimSpace(whitespacePattern.ReplaceAllString(sql, " "))

	if sql == "" {
		return &RejectedQuery{
			Reason:  RejectEmpty,
			Message: "模型輸出中沒有可執行的SQL語句",
		}
	}

	c.sql = sql
	return nil
}

// normalizeKeywordSpacing 保证每个SQL关键词前后都有空白
// 对已规范化的语句再执行一次必须产生相同结果
func (p *PostProcessor) normalizeKeywordSpacing(c *candidate) error {
	sql := keywordPattern.ReplaceAllString(c.sql, " $1 ")
	sql = strings.TrimSpace(whitespacePattern.ReplaceAllString(sql, " "))

	c.sql = sql
	c.statement = sql
	return nil
}

// enforceTenantPredicate 租户隔离强制（核心不变量）
// 已有租户键等值谓词时，无条件把字面值改写为受信任金钥，
// 防御模型照抄用户文本里出现的租户值；有WHERE但缺少谓词时
// 在WHERE条件末尾追加；完全没有WHERE时把整条语句包裹为
// 子查询并追加外层WHERE过滤
func (p *PostProcessor) enforceTenantPredicate(c *candidate) error {
	predicate := fmt.Sprintf("%s = '%s'", schema.TenantKeyColumn, p.tenantKey)

	if tenantPredicatePattern.MatchString(c.sql) {
		c.sql = tenantPredicatePattern.ReplaceAllString(c.sql, predicate)
		return nil
	}

	whereLoc := wherePattern.FindStringIndex(c.sql)
	if whereLoc == nil {
		c.sql = fmt.Sprintf("SELECT * FROM (%s) WHERE %s", c.sql, predicate)
		return nil
	}

	// 条件段边界：只认括号深度0的GROUP BY/HAVING/ORDER BY/LIMIT，
	// 子查询内部的后置子句不算
	rest := c.sql[whereLoc[1]:]
	condEnd := findConditionEnd(rest)
	condition := strings.TrimSpace(rest[:condEnd])

	// 顶层OR会让追加的AND只约束最后一个分支（SQL里AND优先级更高），
	// 必须先把原条件整体括起来
	if hasTopLevelOr(condition) {
		condition = "(" + condition + ")"
	}

	c.sql = c.sql[:whereLoc[1]] + " " + condition + " AND " + predicate + rest[condEnd:]
	return nil
}

// findConditionEnd 返回WHERE条件段在s中的结束位置
func findConditionEnd(s string) int {
	for _, loc := range trailingClausePattern.FindAllStringIndex(s, -1) {
		if parenDepthAt(s, loc[0]) == 0 {
			return loc[0]
		}
	}
	return len(s)
}

// hasTopLevelOr 判断条件在括号深度0处是否出现OR
func hasTopLevelOr(condition string) bool {
	for _, loc := range orPattern.FindAllStringIndex(condition, -1) {
		if parenDepthAt(condition, loc[0]) == 0 {
			return true
		}
	}
	return false
}

// parenDepthAt 计算位置pos处的括号深度，字符串字面值内的括号不计
func parenDepthAt(s string, pos int) int {
	depth := 0
	var quote byte
	for i := 0; i < pos && i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		}
	}
	return depth
}

// rejectDestructive 破坏性语句拒绝
// 检查的是包裹前的内层语句，子查询包裹不能洗白破坏性动词
func (p *PostProcessor) rejectDestructive(c *candidate) error {
	if match := destructivePattern.FindStringSubmatch(c.statement); match != nil {
		return &RejectedQuery{
			Reason:  RejectDestructive,
			Message: fmt.Sprintf("禁止執行破壞性語句: %s", strings.ToUpper(match[1])),
		}
	}
	return nil
}

// substituteEntityLiteral 编号实体字面值替换
// 问题中出现「員工<N>」而候选SQL保留了占位姓名字面值时，
// 用编号推导出的正确字面值替换，补偿模型臆造姓名的倾向
func (p *PostProcessor) substituteEntityLiteral(c *candidate) error {
	match := entityNumberPattern.FindStringSubmatch(c.question)
	if match == nil {
		return nil
	}

	entityName := fmt.Sprintf("員工 %s", match[1])
	c.sql = strings.ReplaceAll(c.sql, "'員工姓名'", fmt.Sprintf("'%s'", entityName))
	return nil
}
