// Package xlsx превращает лист Excel в локальный CSV датасет со схемой.
package xlsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/export"
	"github.com/ruslano69/semlayer/pkg/security"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// DataFileName имя CSV файла датасета
const DataFileName = "data.csv"

// datetimeLayouts форматы, по которым колонка считается datetime
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// Read - прочитать лист XLSX как таблицу строк
//
// Первая строка листа - заголовки. Пустое имя листа означает первый лист.
// Короткие строки дополняются пустыми значениями.
func Read(path, sheet string) (*adapters.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s must have header and at least one data row", sheet)
	}

	t := &adapters.Table{Name: sheet, Columns: rows[0]}
	for _, row := range rows[1:] {
		values := make([]any, len(t.Columns))
		for col := range t.Columns {
			if col < len(row) && row[col] != "" {
				values[col] = row[col]
			}
		}
		t.Rows = append(t.Rows, values)
	}
	return t, nil
}

// Ingest - загрузить лист XLSX как локальный датасет
//
// Пишет в outDir файл data.csv и schema.yaml с безопасными именами колонок,
// CSV источником и выведенными типами колонок.
//
// Example:
//
//	schema, err := xlsx.Ingest("orders.xlsx", "", "datasets/acme/orders", "orders")
func Ingest(xlsxPath, sheet, outDir, datasetName string) (*semantic.Schema, error) {
	t, err := Read(xlsxPath, sheet)
	if err != nil {
		return nil, err
	}

	name := security.NormalizeIdentifier(datasetName)
	if name == "" {
		name = security.SanitizeFileName(xlsxPath)
	}

	columns := make([]semantic.Column, len(t.Columns))
	names := make([]string, len(t.Columns))
	used := make(map[string]int, len(t.Columns))
	for i, header := range t.Columns {
		colName, declared := parseHeader(header)
		colName = uniqueName(security.SafeColumnName(colName), i, used)
		names[i] = colName

		colType := declared
		if colType == "" {
			colType = inferType(t, i)
		}
		columns[i] = semantic.Column{Name: colName, Type: colType}
		normalizeColumn(t, i, colType)
	}
	t.Columns = names

	schema := &semantic.Schema{
		Name:    name,
		Source:  &semantic.Source{Type: semantic.SourceCSV, Path: DataFileName},
		Columns: columns,
	}
	schema.SetDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	if err := export.WriteFile(filepath.Join(outDir, DataFileName), export.FormatCSV, t); err != nil {
		return nil, err
	}
	if err := semantic.SaveSchema(filepath.Join(outDir, semantic.SchemaFileName), schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// uniqueName - имя колонки без повторов: col, col_2, col_3
func uniqueName(name string, idx int, used map[string]int) string {
	if name == "" {
		name = "column_" + strconv.Itoa(idx+1)
	}
	used[name]++
	if n := used[name]; n > 1 {
		name = name + "_" + strconv.Itoa(n)
		used[name]++
	}
	return name
}

// parseHeader - разобрать заголовок "field_name (TYPE)" или "field_name (TYPE) *"
func parseHeader(header string) (name, colType string) {
	name = strings.TrimSpace(strings.TrimSuffix(header, " *"))

	if idx := strings.LastIndex(name, "("); idx > 0 {
		if endIdx := strings.LastIndex(name, ")"); endIdx > idx {
			if t := declaredType(name[idx+1 : endIdx]); t != "" {
				return strings.TrimSpace(name[:idx]), t
			}
		}
	}
	return name, ""
}

// declaredType - логический тип по подсказке в заголовке
func declaredType(hint string) string {
	switch strings.ToUpper(strings.TrimSpace(hint)) {
	case "INTEGER", "INT", "BIGINT":
		return "integer"
	case "REAL", "FLOAT", "DOUBLE", "DECIMAL", "NUMBER":
		return "float"
	case "DATE", "DATETIME", "TIMESTAMP":
		return "datetime"
	case "BOOLEAN", "BOOL":
		return "boolean"
	case "UUID":
		return "uuid"
	case "TEXT", "STRING", "VARCHAR":
		return "string"
	default:
		return ""
	}
}

// inferType - самый узкий тип, которому соответствуют все непустые значения
func inferType(t *adapters.Table, col int) string {
	candidates := []struct {
		name string
		ok   func(string) bool
	}{
		{"integer", isInteger},
		{"float", isFloat},
		{"boolean", isBoolean},
		{"datetime", isDatetime},
	}

	seen := false
	for _, c := range candidates {
		match := true
		for _, row := range t.Rows {
			v, _ := row[col].(string)
			if v == "" {
				continue
			}
			seen = true
			if !c.ok(v) {
				match = false
				break
			}
		}
		if !seen {
			return "string"
		}
		if match {
			return c.name
		}
	}
	return "string"
}

// normalizeColumn - привести значения колонки к виду, который читает CSV движок
func normalizeColumn(t *adapters.Table, col int, colType string) {
	if colType != "boolean" {
		return
	}
	for _, row := range t.Rows {
		if v, ok := row[col].(string); ok {
			row[col] = strings.ToLower(v)
		}
	}
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isBoolean(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isDatetime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
