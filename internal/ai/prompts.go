package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"text2sql-go/internal/schema"
)

// FieldNotFoundSentinel 模型对不存在欄位的约定回覆前缀
// 提示词契约：请求的欄位不在schema中时，模型以该前缀开头回覆建议而不是SQL
const FieldNotFoundSentinel = "欄位不存在"

// NoResultsSentinel 空查询结果在描述提示词中的占位文本
const NoResultsSentinel = "查詢沒有返回任何結果。"

// SQL生成提示词模板
// 生成规则以自然语言约束表达：强制租户过滤、禁止破坏性语句、欄位缺失时返回约定前缀
const sqlGenerationTemplate = `你是一個SQL生成助手，永遠使用繁體中文回應，必須遵守：
1. 所有查詢必須包含 WHERE {{.tenant_column}}='{{.tenant_key}}'
2. 禁止生成DELETE/UPDATE/INSERT/DROP語句
3. 如果使用者請求的欄位不存在於schema中，返回以「{{.sentinel}}」開頭的訊息，並根據使用者的意圖建議其他詢問方式
4. 僅返回單一完全有效的SQL查詢語句，不要包含任何額外文字、警告訊息或程式碼圍欄
5. 涉及相對日期（例如本月、今年）時以目前時間換算

目前時間：{{.current_time}}

資料庫結構：
{{.database_schema}}

根據以下問題生成SQL查詢：
{{.question}}`

// 结果描述提示词模板
// 空结果时要求模型推测原因，但不得提及租户过滤列的名称或数值
const descriptionTemplate = `你是一個樂於助人的助理，永遠使用繁體中文回應。

請針對以下問題與查詢結果，生成一段口語化的說明：

問題：{{.question}}

目前時間：{{.current_time}}

查詢結果：
{{.results}}

如果查詢沒有返回任何結果，請推測可能沒有資料的原因。若原因可能與資料歸屬範圍有關，請提醒使用者可能在嘗試查詢不屬於其組織的資料，但絕對不要提及任何過濾欄位的名稱或數值。不要在回應中重複SQL語句。`

// PromptRenderer 提示词渲染器
// 纯字符串构造，无副作用；schema文本与租户金钥在创建时固定
type PromptRenderer struct {
	sqlTemplate  prompts.PromptTemplate
	descTemplate prompts.PromptTemplate
	schemaText   string
	tenantKey    string
}

// NewPromptRenderer 创建提示词渲染器
func NewPromptRenderer(descriptor *schema.Descriptor, tenantKey string) *PromptRenderer {
	return &PromptRenderer{
		sqlTemplate: prompts.NewPromptTemplate(
			sqlGenerationTemplate,
			[]string{"tenant_column", "tenant_key", "sentinel", "current_time", "database_schema", "question"},
		),
		descTemplate: prompts.NewPromptTemplate(
			descriptionTemplate,
			[]string{"question", "current_time", "results"},
		),
		schemaText: descriptor.Format(),
		tenantKey:  tenantKey,
	}
}

// RenderSQLPrompt 渲染SQL生成提示词
// 确定性嵌入完整schema、受信任的租户金钥与固定生成规则
func (r *PromptRenderer) RenderSQLPrompt(question string, now time.Time) (string, error) {
	prompt, err := r.sqlTemplate.Format(map[string]any{
		"tenant_column":   schema.TenantKeyColumn,
		"tenant_key":      r.tenantKey,
		"sentinel":        FieldNotFoundSentinel,
		"current_time":    now.Format("2006-01-02 15:04:05"),
		"database_schema": r.schemaText,
		"question":        question,
	})
	if err != nil {
		return "", fmt.Errorf("渲染SQL提示词失败: %w", err)
	}
	return prompt, nil
}

// RenderDescriptionPrompt 渲染结果描述提示词
// rows为空时嵌入占位文本，让模型解释为何没有数据
func (r *PromptRenderer) RenderDescriptionPrompt(question string, rows [][]string, now time.Time) (string, error) {
	prompt, err := r.descTemplate.Format(map[string]any{
		"question":     question,
		"current_time": now.Format("2006-01-02 15:04:05"),
		"results":      FormatRows(rows),
	})
	if err != nil {
		return "", fmt.Errorf("渲染描述提示词失败: %w", err)
	}
	return prompt, nil
}

// FormatRows 将查询结果行渲染为嵌入提示词的文本
func FormatRows(rows [][]string) string {
	if len(rows) == 0 {
		return NoResultsSentinel
	}

	var builder strings.Builder
	for _, row := range rows {
		builder.WriteString("(")
		builder.WriteString(strings.Join(row, ", "))
		builder.WriteString(")\n")
	}
	return builder.String()
}
