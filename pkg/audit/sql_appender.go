package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
)

// tsLayout фиксированной ширины, строки сортируются как время
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// auditColumns колонки таблицы аудита в порядке вставки и чтения
var auditColumns = []string{
	"id", "ts", "operation", "status", "user_name", "dataset", "source", "target",
	"fingerprint", "query_text", "rows_count", "duration_ms", "error_kind", "error_message", "metadata",
}

// SQLAppender - запись аудита в таблицу SQL базы
type SQLAppender struct {
	mu         sync.Mutex
	db         *sql.DB
	dialect    sqlast.Dialect
	tableName  string
	level      Level
	batchSize  int
	batchQueue []*Entry
	insertSQL  string
}

// SQLAppenderConfig - конфигурация SQL appender
type SQLAppenderConfig struct {
	// DB - подключение к базе данных
	DB *sql.DB

	// Dialect - диалект базы, по умолчанию SQLite
	Dialect sqlast.Dialect

	// TableName - имя таблицы для аудита
	TableName string

	Level Level

	// BatchSize - размер batch для группового insert (0 = без batching)
	BatchSize int

	// AutoCreateTable - создать таблицу если не существует
	AutoCreateTable bool
}

// QueryFilter - фильтр чтения аудита
type QueryFilter struct {
	Operation Operation
	Status    Status
	Dataset   string
	ErrorKind qerrors.Kind
	Since     time.Time
	Limit     int
}

// NewSQLAppender - создать SQL appender
func NewSQLAppender(ctx context.Context, config SQLAppenderConfig) (*SQLAppender, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.TableName == "" {
		config.TableName = "audit_log"
	}
	if config.Dialect.Name == "" {
		config.Dialect = sqlast.SQLite
	}
	if config.Level == 0 {
		config.Level = LevelStandard
	}

	sa := &SQLAppender{
		db:         config.DB,
		dialect:    config.Dialect,
		tableName:  config.TableName,
		level:      config.Level,
		batchSize:  config.BatchSize,
		batchQueue: make([]*Entry, 0, config.BatchSize),
	}

	if config.AutoCreateTable {
		if err := sa.createTable(ctx); err != nil {
			return nil, fmt.Errorf("failed to create audit table: %w", err)
		}
	}

	markers := strings.TrimSuffix(strings.Repeat(sqlast.CanonicalMarker+", ", len(auditColumns)), ", ")
	cols := make([]string, len(auditColumns))
	for i, c := range auditColumns {
		cols[i] = sa.dialect.Quote(c)
	}
	sa.insertSQL = sa.dialect.BindParams(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sa.dialect.Quote(sa.tableName), strings.Join(cols, ", "), markers))

	return sa, nil
}

func (sa *SQLAppender) createTable(ctx context.Context) error {
	q := sa.dialect.Quote
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s VARCHAR(64) PRIMARY KEY,
	%s VARCHAR(40) NOT NULL,
	%s VARCHAR(20) NOT NULL,
	%s VARCHAR(20) NOT NULL,
	%s VARCHAR(255),
	%s VARCHAR(255),
	%s VARCHAR(50),
	%s VARCHAR(255),
	%s VARCHAR(16),
	%s TEXT,
	%s BIGINT,
	%s BIGINT,
	%s VARCHAR(40),
	%s TEXT,
	%s TEXT
)`, q(sa.tableName), q("id"), q("ts"), q("operation"), q("status"), q("user_name"), q("dataset"),
		q("source"), q("target"), q("fingerprint"), q("query_text"), q("rows_count"), q("duration_ms"),
		q("error_kind"), q("error_message"), q("metadata"))

	if _, err := sa.db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	// Индексы поддерживаются не всеми бэкендами одинаково
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		q("idx_"+sa.tableName+"_ts"), q(sa.tableName), q("ts"))
	_, _ = sa.db.ExecContext(ctx, index)
	return nil
}

// Append - записать entry в базу
func (sa *SQLAppender) Append(ctx context.Context, entry *Entry) error {
	filtered := entry.FilterByLevel(sa.level)

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.batchSize > 0 {
		sa.batchQueue = append(sa.batchQueue, filtered)
		if len(sa.batchQueue) >= sa.batchSize {
			return sa.flushBatch(ctx)
		}
		return nil
	}

	_, err := sa.db.ExecContext(ctx, sa.insertSQL, sa.values(filtered)...)
	return err
}

func (sa *SQLAppender) values(e *Entry) []any {
	metadata := ""
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			metadata = string(data)
		}
	}
	return []any{
		e.ID,
		e.Timestamp.UTC().Format(tsLayout),
		string(e.Operation),
		string(e.Status),
		e.User,
		e.Dataset,
		e.Source,
		e.Target,
		e.Fingerprint,
		e.Query,
		e.Rows,
		e.Duration.Milliseconds(),
		string(e.ErrorKind),
		e.ErrorMessage,
		metadata,
	}
}

// flushBatch записывает очередь одной транзакцией, вызывается под mu
func (sa *SQLAppender) flushBatch(ctx context.Context) error {
	if len(sa.batchQueue) == 0 {
		return nil
	}

	tx, err := sa.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, entry := range sa.batchQueue {
		if _, err := tx.ExecContext(ctx, sa.insertSQL, sa.values(entry)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	sa.batchQueue = sa.batchQueue[:0]
	return nil
}

// Flush - сбросить batch queue
func (sa *SQLAppender) Flush() error {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.flushBatch(context.Background())
}

// Close - сбросить очередь; подключение закрывает владелец
func (sa *SQLAppender) Close() error {
	return sa.Flush()
}

// Query - прочитать записи аудита, новые первыми
func (sa *SQLAppender) Query(ctx context.Context, filter QueryFilter) ([]*Entry, error) {
	var preds []sqlast.Expr
	var args []any
	eq := func(column string, value any) {
		preds = append(preds, &sqlast.Binary{Left: sqlast.Col(column), Op: "=", Right: &sqlast.Param{}})
		args = append(args, value)
	}

	if filter.Operation != "" {
		eq("operation", string(filter.Operation))
	}
	if filter.Status != "" {
		eq("status", string(filter.Status))
	}
	if filter.Dataset != "" {
		eq("dataset", filter.Dataset)
	}
	if filter.ErrorKind != "" {
		eq("error_kind", string(filter.ErrorKind))
	}
	if !filter.Since.IsZero() {
		preds = append(preds, &sqlast.Binary{Left: sqlast.Col("ts"), Op: ">=", Right: &sqlast.Param{}})
		args = append(args, filter.Since.UTC().Format(tsLayout))
	}

	items := make([]sqlast.SelectItem, len(auditColumns))
	for i, c := range auditColumns {
		items[i] = sqlast.SelectItem{Expr: sqlast.Col(c)}
	}
	sel := &sqlast.Select{
		Items:   items,
		From:    sqlast.TableNamed(sa.tableName),
		Where:   sqlast.And(preds...),
		OrderBy: []sqlast.OrderItem{{Expr: sqlast.Col("ts"), Direction: "DESC"}},
	}
	if filter.Limit > 0 {
		sel.Limit = sqlast.Int(filter.Limit)
	}

	query := sa.dialect.BindParams(sqlast.Render(sel, sa.dialect, false))
	rows, err := sa.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var ts, operation, status, kind string
		var user, dataset, source, target, fingerprint, queryText, errMsg, metadata sql.NullString
		var rowsCount, durationMs sql.NullInt64

		if err := rows.Scan(&entry.ID, &ts, &operation, &status, &user, &dataset, &source, &target,
			&fingerprint, &queryText, &rowsCount, &durationMs, &kind, &errMsg, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		entry.Timestamp, _ = time.Parse(tsLayout, ts)
		entry.Operation = Operation(operation)
		entry.Status = Status(status)
		entry.User = user.String
		entry.Dataset = dataset.String
		entry.Source = source.String
		entry.Target = target.String
		entry.Fingerprint = fingerprint.String
		entry.Query = queryText.String
		entry.Rows = rowsCount.Int64
		entry.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		entry.ErrorKind = qerrors.Kind(kind)
		entry.ErrorMessage = errMsg.String
		if metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &entry.Metadata)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}
