package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/semlayer/pkg/adapters"
)

// Встроенные форматы чисел Excel
const (
	numFmtInteger  = 1
	numFmtDateTime = 22
)

// WriteXLSX - выгрузить таблицу в XLSX файл
//
// Заголовки выделяются стилем, значения пишутся с типом: числа,
// даты и логические значения остаются числами и датами Excel.
// Пустое имя листа заменяется именем таблицы или "Sheet1".
//
// Example:
//
//	err := export.WriteXLSX("out/orders.xlsx", table, "Orders")
func WriteXLSX(path string, t *adapters.Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = t.Name
		if sheet == "" {
			sheet = "Sheet1"
		}
	}

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	styles, err := newValueStyles(f)
	if err != nil {
		return err
	}

	for col, name := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for rowIdx, row := range t.Rows {
		for col, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, excelValue(v)); err != nil {
				return fmt.Errorf("failed to write %s: %w", cell, err)
			}
			if style, ok := styles.of(v); ok {
				if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
					return fmt.Errorf("failed to style %s: %w", cell, err)
				}
			}
		}
	}

	for col := range t.Columns {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, 15); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return f.SaveAs(path)
}

// valueStyles стили ячеек по типу значения
type valueStyles struct {
	integer, datetime int
}

func newValueStyles(f *excelize.File) (*valueStyles, error) {
	var s valueStyles
	for _, st := range []struct {
		id     *int
		numFmt int
	}{
		{&s.integer, numFmtInteger},
		{&s.datetime, numFmtDateTime},
	} {
		id, err := f.NewStyle(&excelize.Style{NumFmt: st.numFmt})
		if err != nil {
			return nil, fmt.Errorf("failed to create cell style: %w", err)
		}
		*st.id = id
	}
	return &s, nil
}

func (s *valueStyles) of(v any) (int, bool) {
	switch v.(type) {
	case int64, int32, int:
		return s.integer, true
	case time.Time:
		return s.datetime, true
	default:
		return 0, false
	}
}

// excelValue значение таблицы в виде, который excelize пишет с типом
func excelValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64, int32, int, float64, float32, bool, string, time.Time:
		return val
	default:
		return adapters.ValueString(val)
	}
}
