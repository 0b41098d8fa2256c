package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/adapters/base"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

const driverSqlite = "sqlite"

// AdapterType идентификатор SQLite адаптера
const AdapterType = "sqlite"

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
	adapters.RegisterDSN(AdapterType, BuildDSN)
}

// Adapter адаптер SQLite (modernc.org/sqlite, без cgo)
type Adapter struct {
	base.SQLDB
}

// BuildDSN путь к файлу БД берется из database подключения
func BuildDSN(conn *semantic.Connection) (string, error) {
	if conn.Database == "" {
		return "", fmt.Errorf("database file is required")
	}
	return conn.Database, nil
}

// Connect открывает файл БД.
// База в памяти живет в одном соединении, поэтому пул ограничивается одним.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if strings.Contains(cfg.DSN, ":memory:") {
		cfg.MaxConns = 1
	}
	return a.Open(ctx, driverSqlite, cfg, normalize)
}

// normalize SQLite хранит BOOLEAN как целое число
func normalize(dbType string, value any) any {
	if dbType == "BOOLEAN" || dbType == "BOOL" {
		if n, ok := value.(int64); ok {
			return n != 0
		}
	}
	return value
}

// Dialect возвращает диалект SQLite
func (a *Adapter) Dialect() sqlast.Dialect {
	return sqlast.SQLite
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetDatabaseVersion возвращает версию SQLite
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	version, err := a.QueryString(ctx, "SELECT sqlite_version()")
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
