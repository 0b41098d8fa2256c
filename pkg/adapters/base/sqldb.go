package base

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ruslano69/semlayer/pkg/adapters"
)

// SQLDB общая часть адаптеров поверх database/sql
type SQLDB struct {
	db        *sql.DB
	timeout   time.Duration
	normalize ValueNormalizer
}

// Open открывает и проверяет подключение драйвера
func (s *SQLDB) Open(ctx context.Context, driver string, cfg adapters.Config, normalize ValueNormalizer) error {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	s.timeout = cfg.Timeout
	s.normalize = normalize
	return nil
}

// DB возвращает *sql.DB для прямого доступа
func (s *SQLDB) DB() *sql.DB {
	return s.db
}

// Close закрывает соединение с БД
func (s *SQLDB) Close(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (s *SQLDB) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return s.db.PingContext(ctx)
}

// Query выполняет запрос и читает результат в таблицу
func (s *SQLDB) Query(ctx context.Context, query string, args ...any) (*adapters.Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("adapter not connected")
	}
	ctx, cancel := adapters.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ScanRows(rows, s.normalize)
}

// Exec выполняет команду без результата
func (s *SQLDB) Exec(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	ctx, cancel := adapters.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// QueryString выполняет запрос, возвращающий одно строковое значение
func (s *SQLDB) QueryString(ctx context.Context, query string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("adapter not connected")
	}
	var value string
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}
