// Package export выгружает результат запроса в CSV, CSV со сжатием zstd и XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ruslano69/semlayer/pkg/adapters"
)

// Форматы выгрузки
const (
	FormatCSV     = "csv"
	FormatCSVZstd = "csv.zst"
	FormatXLSX    = "xlsx"
)

// DefaultZstdLevel уровень сжатия по умолчанию
const DefaultZstdLevel = 3

// FormatOf формат по расширению файла
func FormatOf(path string) (string, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv.zst"):
		return FormatCSVZstd, nil
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", filepath.Ext(path))
	}
}

// WriteCSV пишет заголовок и строки таблицы
func WriteCSV(w io.Writer, t *adapters.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteCSVZstd пишет CSV, сжатый zstd.
// level: 1 (самый быстрый) - 22 (лучшее сжатие), 0 означает DefaultZstdLevel.
func WriteCSVZstd(w io.Writer, t *adapters.Table, level int) error {
	if level == 0 {
		level = DefaultZstdLevel
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := WriteCSV(enc, t); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return nil
}

// ReadCSVZstd распаковывает и читает CSV, записанный WriteCSVZstd
func ReadCSVZstd(r io.Reader) ([][]string, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	records, err := csv.NewReader(dec).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

// WriteFile выгружает таблицу в файл; формат берется из расширения,
// если не задан явно
func WriteFile(path, format string, t *adapters.Table) error {
	if format == "" {
		var err error
		if format, err = FormatOf(path); err != nil {
			return err
		}
	}

	if format == FormatXLSX {
		return WriteXLSX(path, t, "")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	switch format {
	case FormatCSV:
		err = WriteCSV(f, t)
	case FormatCSVZstd:
		err = WriteCSVZstd(f, t, DefaultZstdLevel)
	default:
		err = fmt.Errorf("unsupported export format: %s", format)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
