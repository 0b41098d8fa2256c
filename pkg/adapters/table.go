package adapters

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout формат времени при строковом представлении значений
const TimeLayout = "2006-01-02 15:04:05"

// Table результат запроса: имена колонок и строки значений.
// Значения нормализованы адаптером: строки, int64, float64, bool, time.Time или nil.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Len количество строк
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex индекс колонки без учета регистра, -1 если не найдена
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Column значения одной колонки
func (t *Table) Column(name string) ([]any, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column '%s' not found (available: %v)", name, t.Columns)
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Records строки в строковом представлении, NULL дает пустую строку
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = ValueString(v)
		}
		out[i] = rec
	}
	return out
}

// ValueString строковое представление нормализованного значения
func ValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(TimeLayout)
	default:
		return fmt.Sprintf("%v", val)
	}
}
