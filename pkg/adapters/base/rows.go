// Package base содержит общие для database/sql адаптеров помощники:
// чтение *sql.Rows в adapters.Table и нормализацию значений драйверов.
package base

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ruslano69/semlayer/pkg/adapters"
)

// ValueNormalizer приводит значение драйвера к нормализованному виду.
// dbType - имя типа колонки в СУБД (ColumnType.DatabaseTypeName), в верхнем регистре.
type ValueNormalizer func(dbType string, value any) any

// ScanRows читает все строки результата в таблицу.
// normalize может быть nil, тогда применяется NormalizeValue.
func ScanRows(rows *sql.Rows, normalize ValueNormalizer) (*adapters.Table, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	typeNames := make([]string, len(types))
	for i, ct := range types {
		typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	table := &adapters.Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if normalize != nil {
				v = normalize(typeNames[i], v)
			}
			values[i] = NormalizeValue(v)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return table, nil
}

// NormalizeValue приводит значения драйверов к string, int64, float64, bool, time.Time или nil
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case uint:
		return int64(v)
	case float32:
		return float64(v)
	case string, int64, float64, bool:
		return v
	case time.Time:
		return v.UTC()
	case fmt.Stringer:
		return v.String()
	default:
		return value
	}
}
