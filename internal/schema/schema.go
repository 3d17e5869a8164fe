// Package schema 提供查询范围内数据表结构的静态描述
// 描述信息在进程启动时加载一次，之后只读，直接嵌入LLM提示词
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// 约定的租户隔离列名，所有多租户表必须包含该列
const TenantKeyColumn = "公司金鑰"

// ColumnType 列的声明类型
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
)

// ColumnSpec 单个列的描述
// Description会原样出现在提示词中，供模型理解字段语义
type ColumnSpec struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description"`
}

// Table 一张表的有序列定义
type Table struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// Descriptor 整个可查询范围的表结构描述
// 表和列均保持声明顺序，保证提示词渲染的确定性
// Notes为附加给模型的结构说明，例如表之间的外键关系
type Descriptor struct {
	Tables []Table `json:"tables"`
	Notes  string  `json:"notes,omitempty"`
}

// Default 内置的默认表结构，与种子数据保持一致
func Default() *Descriptor {
	return &Descriptor{
		Tables: []Table{
			{
				Name: "員工薪資",
				Columns: []ColumnSpec{
					{Name: "員工編號", Type: TypeInteger, Description: "員工的唯一識別碼 (INTEGER, PRIMARY KEY, Example: 123)"},
					{Name: "員工姓名", Type: TypeText, Description: "員工的姓名 (TEXT, Example: 王小明)"},
					{Name: "薪資", Type: TypeReal, Description: "員工的薪資 (REAL, Example: 50000)"},
					{Name: "部門", Type: TypeText, Description: "員工所屬的部門 (TEXT, Example: Sales)"},
					{Name: TenantKeyColumn, Type: TypeText, Description: "公司的識別碼 (TEXT, Example: 6224)"},
					{Name: "薪資日期", Type: TypeText, Description: "薪資的日期 (TEXT, YYYY-MM-DD, Example: 2024-04-18)"},
				},
			},
			{
				Name: "部門資訊",
				Columns: []ColumnSpec{
					{Name: "部門編號", Type: TypeInteger, Description: "部門的唯一識別碼 (INTEGER, PRIMARY KEY, Example: 1)"},
					{Name: "部門名稱", Type: TypeText, Description: "部門的名稱 (TEXT, Example: Sales)"},
					{Name: "地點", Type: TypeText, Description: "部門的地點 (TEXT, Example: New York)"},
					{Name: TenantKeyColumn, Type: TypeText, Description: "公司的識別碼 (TEXT, Example: 6224)"},
				},
			},
		},
		Notes: "員工薪資表透過部門欄位與部門資訊表存在外鍵關聯",
	}
}

// LoadFile 从JSON文件加载表结构描述
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取表结构文件失败: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("解析表结构文件失败: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Validate 校验描述的基本不变量
// 每张多租户表必须恰好包含一个租户键列
func (d *Descriptor) Validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("表结构描述不能为空")
	}

	for _, table := range d.Tables {
		if table.Name == "" {
			return fmt.Errorf("存在未命名的表")
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("表 %s 没有任何列定义", table.Name)
		}

		tenantColumns := 0
		seen := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			if col.Name == "" {
				return fmt.Errorf("表 %s 存在未命名的列", table.Name)
			}
			if seen[col.Name] {
				return fmt.Errorf("表 %s 的列 %s 重复定义", table.Name, col.Name)
			}
			seen[col.Name] = true

			if col.Name == TenantKeyColumn {
				tenantColumns++
			}

			switch col.Type {
			case TypeInteger, TypeReal, TypeText:
			default:
				return fmt.Errorf("表 %s 的列 %s 类型无效: %s", table.Name, col.Name, col.Type)
			}
		}

		if tenantColumns != 1 {
			return fmt.Errorf("表 %s 必须恰好包含一个 %s 列，实际 %d 个", table.Name, TenantKeyColumn, tenantColumns)
		}
	}

	return nil
}

// HasColumn 判断指定列是否存在于任意一张表
func (d *Descriptor) HasColumn(name string) bool {
	for _, table := range d.Tables {
		for _, col := range table.Columns {
			if col.Name == name {
				return true
			}
		}
	}
	return false
}

// TableNames 返回所有表名，保持声明顺序
func (d *Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Format 将表结构渲染为嵌入提示词的文本
// 输出确定性排序，相同描述总是产生相同文本
func (d *Descriptor) Format() string {
	var builder strings.Builder
	for _, table := range d.Tables {
		builder.WriteString(fmt.Sprintf("Table: %s\n", table.Name))
		for _, col := range table.Columns {
			builder.WriteString(fmt.Sprintf("  Column: %s (%s) - %s\n", col.Name, col.Type, col.Description))
		}
	}
	if d.Notes != "" {
		builder.WriteString(fmt.Sprintf("Notes: %s\n", d.Notes))
	}
	return builder.String()
}
