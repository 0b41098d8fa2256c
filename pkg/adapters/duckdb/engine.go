// Package duckdb встроенный аналитический движок для локальных датасетов.
//
// Engine читает CSV и Parquet через READ_CSV/READ_PARQUET и хранит
// именованные view датасетов, на которые ссылается SQL агента.
// Соединение одно, выражения сериализуются мьютексом.
package duckdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/adapters/base"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
)

// AdapterType идентификатор движка
const AdapterType = "duckdb"

var (
	_ adapters.Adapter       = (*Engine)(nil)
	_ adapters.ViewRegistrar = (*Engine)(nil)
)

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Engine{}
	})
}

// Engine встроенный DuckDB.
// Пустой path открывает базу в памяти.
type Engine struct {
	base.SQLDB
	mu    sync.Mutex
	path  string
	views map[string]string
}

// Open создает и подключает движок
func Open(ctx context.Context, path string) (*Engine, error) {
	e := &Engine{}
	if err := e.Connect(ctx, adapters.Config{Type: AdapterType, DSN: path}); err != nil {
		return nil, err
	}
	return e, nil
}

// Connect открывает базу с единственным соединением
func (e *Engine) Connect(ctx context.Context, cfg adapters.Config) error {
	cfg.MaxConns = 1
	cfg.MinConns = 1
	if err := e.Open(ctx, "duckdb", cfg, normalize); err != nil {
		return err
	}
	e.path = cfg.DSN
	e.views = make(map[string]string)
	return nil
}

// Path путь к файлу базы, пустой для базы в памяти
func (e *Engine) Path() string {
	return e.path
}

// Query выполняет запрос под мьютексом движка
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*adapters.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.SQLDB.Query(ctx, query, args...)
}

// RegisterView создает или заменяет view с именем датасета
func (e *Engine) RegisterView(ctx context.Context, name, query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.views[name] == query {
		return nil
	}
	stmt := "CREATE OR REPLACE VIEW " + sqlast.DuckDB.Quote(name) + " AS " + query
	if err := e.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register view %s: %w", name, err)
	}
	e.views[name] = query
	return nil
}

// Views имена зарегистрированных view
func (e *Engine) Views() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.views))
	for name := range e.views {
		out = append(out, name)
	}
	return out
}

// Dialect возвращает диалект DuckDB
func (e *Engine) Dialect() sqlast.Dialect {
	return sqlast.DuckDB
}

// GetDatabaseType возвращает тип движка
func (e *Engine) GetDatabaseType() string {
	return AdapterType
}

// GetDatabaseVersion возвращает версию DuckDB
func (e *Engine) GetDatabaseVersion(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	version, err := e.QueryString(ctx, "SELECT version()")
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// normalize приводит UUID и DECIMAL значения драйвера
func normalize(dbType string, value any) any {
	switch v := value.(type) {
	case []byte:
		if dbType == "UUID" && len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
	case goduckdb.Decimal:
		return v.Float64()
	}
	return value
}
