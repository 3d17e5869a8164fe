package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2sql-go/internal/schema"
)

var testTime = time.Date(2024, 4, 18, 10, 30, 0, 0, time.UTC)

// TestRenderSQLPrompt SQL提示词必须嵌入schema、租户金钥与全部生成规则
func TestRenderSQLPrompt(t *testing.T) {
	renderer := NewPromptRenderer(schema.Default(), "6224")

	prompt, err := renderer.RenderSQLPrompt("銷售部門平均薪資", testTime)
	require.NoError(t, err)

	// 完整schema
	assert.Contains(t, prompt, "Table: 員工薪資")
	assert.Contains(t, prompt, "Table: 部門資訊")
	assert.Contains(t, prompt, "員工的薪資 (REAL, Example: 50000)")

	// 租户金钥与租户列
	assert.Contains(t, prompt, "WHERE 公司金鑰='6224'")

	// 固定生成规则
	assert.Contains(t, prompt, "禁止生成DELETE/UPDATE/INSERT/DROP語句")
	assert.Contains(t, prompt, FieldNotFoundSentinel)
	assert.Contains(t, prompt, "程式碼圍欄")

	// 时间与问题
	assert.Contains(t, prompt, "2024-04-18 10:30:00")
	assert.Contains(t, prompt, "銷售部門平均薪資")
}

// TestRenderSQLPrompt_Deterministic 相同输入必须渲染出相同提示词
func TestRenderSQLPrompt_Deterministic(t *testing.T) {
	renderer := NewPromptRenderer(schema.Default(), "6224")

	first, err := renderer.RenderSQLPrompt("員工3的薪資是多少", testTime)
	require.NoError(t, err)
	second, err := renderer.RenderSQLPrompt("員工3的薪資是多少", testTime)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestRenderDescriptionPrompt 描述提示词嵌入问题、结果与时间
func TestRenderDescriptionPrompt(t *testing.T) {
	renderer := NewPromptRenderer(schema.Default(), "6224")

	rows := [][]string{
		{"1", "員工 1", "85000.5", "Sales"},
		{"2", "員工 2", "92000", "Sales"},
	}

	prompt, err := renderer.RenderDescriptionPrompt("銷售部門的員工有哪些", rows, testTime)
	require.NoError(t, err)

	assert.Contains(t, prompt, "銷售部門的員工有哪些")
	assert.Contains(t, prompt, "(1, 員工 1, 85000.5, Sales)")
	assert.Contains(t, prompt, "(2, 員工 2, 92000, Sales)")
	assert.Contains(t, prompt, "2024-04-18 10:30:00")
	assert.NotContains(t, prompt, NoResultsSentinel)
}

// TestRenderDescriptionPrompt_Empty 空结果嵌入占位文本且不泄露租户金钥数值
func TestRenderDescriptionPrompt_Empty(t *testing.T) {
	renderer := NewPromptRenderer(schema.Default(), "6224")

	prompt, err := renderer.RenderDescriptionPrompt("我們公司去年的薪資總額", nil, testTime)
	require.NoError(t, err)

	assert.Contains(t, prompt, NoResultsSentinel)
	assert.Contains(t, prompt, "不要提及任何過濾欄位的名稱或數值")
	assert.NotContains(t, prompt, "6224", "描述提示词不应包含租户金钥数值")
	assert.NotContains(t, prompt, FieldNotFoundSentinel)
}

// TestFormatRows 结果行渲染
func TestFormatRows(t *testing.T) {
	assert.Equal(t, NoResultsSentinel, FormatRows(nil))
	assert.Equal(t, NoResultsSentinel, FormatRows([][]string{}))
	assert.Equal(t, "(a, b)\n", FormatRows([][]string{{"a", "b"}}))
}
