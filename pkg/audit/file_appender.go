package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
)

// FileAppenderConfig - конфигурация file appender
type FileAppenderConfig struct {
	FilePath string
	// MaxSize - в мегабайтах, по умолчанию 100
	MaxSize int64
	// MaxBytes - точный предел в байтах, имеет приоритет над MaxSize
	MaxBytes   int64
	MaxBackups int
	Level      Level
	// FormatJSON - JSON lines вместо текстовой строки Entry.String
	FormatJSON bool
}

// FileAppender пишет записи в файл через буфер.
// При превышении размера файл переименовывается в audit.log.1, старые копии сдвигаются.
type FileAppender struct {
	cfg FileAppenderConfig

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	size    int64
	maxSize int64
}

// NewFileAppender - создать file appender, каталог создается при необходимости
func NewFileAppender(config FileAppenderConfig) (*FileAppender, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = defaultMaxBackups
	}

	maxSize := config.MaxBytes
	if maxSize <= 0 {
		mb := config.MaxSize
		if mb <= 0 {
			mb = defaultMaxSizeMB
		}
		maxSize = mb * 1024 * 1024
	}

	fa := &FileAppender{cfg: config, maxSize: maxSize}
	if err := fa.open(); err != nil {
		return nil, err
	}
	return fa, nil
}

func (fa *FileAppender) open() error {
	file, err := os.OpenFile(fa.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}
	fa.file = file
	fa.buf = bufio.NewWriter(file)
	fa.size = info.Size()
	return nil
}

func (fa *FileAppender) encode(entry *Entry) ([]byte, error) {
	filtered := entry.FilterByLevel(fa.cfg.Level)
	if !fa.cfg.FormatJSON {
		return []byte(filtered.String() + "\n"), nil
	}
	data, err := filtered.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	return append(data, '\n'), nil
}

// Append - записать entry
func (fa *FileAppender) Append(ctx context.Context, entry *Entry) error {
	line, err := fa.encode(entry)
	if err != nil {
		return err
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file == nil {
		return fmt.Errorf("audit file %s is closed", fa.cfg.FilePath)
	}
	if fa.size > 0 && fa.size+int64(len(line)) > fa.maxSize {
		if err := fa.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit file: %w", err)
		}
	}

	n, err := fa.buf.Write(line)
	fa.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// rotate: audit.log -> audit.log.1 -> ... -> audit.log.N, самая старая копия удаляется
func (fa *FileAppender) rotate() error {
	if err := fa.closeFile(); err != nil {
		return err
	}

	backup := func(i int) string { return fmt.Sprintf("%s.%d", fa.cfg.FilePath, i) }

	os.Remove(backup(fa.cfg.MaxBackups))
	for i := fa.cfg.MaxBackups - 1; i > 0; i-- {
		if _, err := os.Stat(backup(i)); err == nil {
			os.Rename(backup(i), backup(i+1))
		}
	}
	if err := os.Rename(fa.cfg.FilePath, backup(1)); err != nil {
		return err
	}
	return fa.open()
}

func (fa *FileAppender) closeFile() error {
	if fa.file == nil {
		return nil
	}
	flushErr := fa.buf.Flush()
	closeErr := fa.file.Close()
	fa.file, fa.buf = nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Flush сбрасывает буфер и синхронизирует файл
func (fa *FileAppender) Flush() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file == nil {
		return nil
	}
	if err := fa.buf.Flush(); err != nil {
		return err
	}
	return fa.file.Sync()
}

// Close - сбросить буфер и закрыть файл
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.closeFile()
}

// CurrentSize - размер текущего файла с учетом буфера
func (fa *FileAppender) CurrentSize() int64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.size
}

// FilePath - путь к файлу
func (fa *FileAppender) FilePath() string {
	return fa.cfg.FilePath
}
