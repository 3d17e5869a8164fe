// 种子数据工具：重建SQLite数据库并填充示例数据
// 生成的表结构与internal/schema的默认描述保持一致
package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	departments = []string{"Sales", "Marketing", "Engineering", "HR"}
	locations   = []string{"New York", "London", "Tokyo", "Sydney"}
	companyKeys = []string{"6224", "6225", "6226"}
)

func main() {
	databaseFile := flag.String("db", "data.db", "SQLite数据库文件路径")
	salaryRecords := flag.Int("salaries", 5, "員工薪資表的记录数")
	departmentRecords := flag.Int("departments", 2, "部門資訊表的记录数")
	exportCSV := flag.Bool("csv", true, "是否导出CSV文件")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	if err := run(*databaseFile, *salaryRecords, *departmentRecords, *exportCSV, logger); err != nil {
		logger.Fatal("种子数据生成失败", zap.Error(err))
	}
}

func run(databaseFile string, salaryRecords, departmentRecords int, exportCSV bool, logger *zap.Logger) error {
	db, err := sql.Open("sqlite3", databaseFile)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	defer db.Close()

	if err := recreateTables(db); err != nil {
		return err
	}

	if err := populateSalaries(db, salaryRecords); err != nil {
		return err
	}
	logger.Info("員工薪資表填充完成", zap.Int("records", salaryRecords))

	if err := populateDepartments(db, departmentRecords); err != nil {
		return err
	}
	logger.Info("部門資訊表填充完成", zap.Int("records", departmentRecords))

	if exportCSV {
		for _, table := range []string{"員工薪資", "部門資訊"} {
			filename := table + ".csv"
			if err := exportTableToCSV(db, table, filename); err != nil {
				return err
			}
			logger.Info("CSV导出完成",
				zap.String("table", table),
				zap.String("file", filename))
		}
	}

	logger.Info("种子数据生成完成", zap.String("database", databaseFile))
	return nil
}

// recreateTables 删除旧表并重建
func recreateTables(db *sql.DB) error {
	statements := []string{
		`DROP TABLE IF EXISTS 員工薪資`,
		`DROP TABLE IF EXISTS 部門資訊`,
		`CREATE TABLE 員工薪資 (
			員工編號 INTEGER PRIMARY KEY,
			員工姓名 TEXT,
			薪資 REAL,
			部門 TEXT,
			公司金鑰 TEXT,
			薪資日期 TEXT
		)`,
		`CREATE TABLE 部門資訊 (
			部門編號 INTEGER PRIMARY KEY,
			部門名稱 TEXT,
			地點 TEXT,
			公司金鑰 TEXT
		)`,
	}

	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return fmt.Errorf("重建表失败: %w", err)
		}
	}
	return nil
}

// populateSalaries 生成薪资示例数据
func populateSalaries(db *sql.DB, records int) error {
	stmt, err := db.Prepare(
		`INSERT INTO 員工薪資 (員工編號, 員工姓名, 薪資, 部門, 公司金鑰, 薪資日期) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < records; i++ {
		salary := 50000 + rand.Float64()*100000
		salaryDate := fmt.Sprintf("2024-%02d-%02d", rand.Intn(12)+1, rand.Intn(28)+1)

		_, err := stmt.Exec(
			i+1,
			fmt.Sprintf("員工 %d", i+1),
			float64(int(salary*100))/100,
			departments[rand.Intn(len(departments))],
			companyKeys[rand.Intn(len(companyKeys))],
			salaryDate,
		)
		if err != nil {
			return fmt.Errorf("插入薪资记录失败: %w", err)
		}
	}
	return nil
}

// populateDepartments 生成部门示例数据
func populateDepartments(db *sql.DB, records int) error {
	stmt, err := db.Prepare(
		`INSERT INTO 部門資訊 (部門編號, 部門名稱, 地點, 公司金鑰) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < records; i++ {
		name := "Other"
		if i < len(departments) {
			name = departments[i]
		}

		_, err := stmt.Exec(
			i+1,
			name,
			locations[rand.Intn(len(locations))],
			companyKeys[rand.Intn(len(companyKeys))],
		)
		if err != nil {
			return fmt.Errorf("插入部门记录失败: %w", err)
		}
	}
	return nil
}

// exportTableToCSV 把整张表导出为UTF-8编码的CSV文件
func exportTableToCSV(db *sql.DB, table, filename string) error {
	rows, err := db.Query("SELECT * FROM " + table)
	if err != nil {
		return fmt.Errorf("查询表%s失败: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("读取列信息失败: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return fmt.Errorf("读取行数据失败: %w", err)
		}

		record := make([]string, len(columns))
		for i, value := range values {
			switch v := value.(type) {
			case nil:
				record[i] = ""
			case []byte:
				record[i] = string(v)
			default:
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入CSV行失败: %w", err)
		}
	}

	return rows.Err()
}
