package mysql

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/adapters/base"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// AdapterType идентификатор MySQL адаптера
const AdapterType = "mysql"

// DefaultPort порт MySQL по умолчанию
const DefaultPort = 3306

var _ adapters.Adapter = (*Adapter)(nil)

// Adapter реализует adapters.Adapter для MySQL
type Adapter struct {
	base.SQLDB
}

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
	adapters.RegisterDSN(AdapterType, BuildDSN)
}

// BuildDSN строит DSN драйвера go-sql-driver/mysql.
// parseTime включен, чтобы DATETIME приходили как time.Time.
func BuildDSN(conn *semantic.Connection) (string, error) {
	if conn.Database == "" {
		return "", fmt.Errorf("database is required")
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = adapters.HostPort(conn, DefaultPort)
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Connect подключается к MySQL базе данных
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	return a.Open(ctx, "mysql", cfg, nil)
}

// Dialect возвращает диалект MySQL
func (a *Adapter) Dialect() sqlast.Dialect {
	return sqlast.MySQL
}

// GetDatabaseType возвращает тип адаптера
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetDatabaseVersion возвращает версию MySQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	version, err := a.QueryString(ctx, "SELECT VERSION()")
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
