package adapters

import (
	"fmt"
	"sync"

	"github.com/ruslano69/semlayer/pkg/semantic"
)

// DSNBuilder строит строку подключения из параметров схемы
type DSNBuilder func(conn *semantic.Connection) (string, error)

var (
	dsnMu       sync.RWMutex
	dsnBuilders = make(map[string]DSNBuilder)
)

// RegisterDSN регистрирует построитель DSN для типа СУБД.
// Вызывается из init() подпакетов рядом с Register.
func RegisterDSN(dbType string, builder DSNBuilder) {
	dsnMu.Lock()
	defer dsnMu.Unlock()
	dsnBuilders[dbType] = builder
}

// ConfigFor конфигурация адаптера для удаленного источника схемы.
// Явный DSN подключения имеет приоритет над host/port/user.
func ConfigFor(source *semantic.Source) (Config, error) {
	if source == nil {
		return Config{}, fmt.Errorf("source is not defined")
	}
	cfg := Config{Type: source.Type}
	conn := source.Connection
	if conn == nil {
		return Config{}, fmt.Errorf("source %s has no connection", source.Type)
	}
	if conn.DSN != "" {
		cfg.DSN = conn.DSN
		return cfg, nil
	}

	dsnMu.RLock()
	builder, ok := dsnBuilders[source.Type]
	dsnMu.RUnlock()
	if !ok {
		return Config{}, fmt.Errorf("no DSN builder registered for %s (import its adapter package)", source.Type)
	}
	dsn, err := builder(conn)
	if err != nil {
		return Config{}, fmt.Errorf("failed to build %s DSN: %w", source.Type, err)
	}
	cfg.DSN = dsn
	return cfg, nil
}

// HostPort адрес host:port; port 0 заменяется значением по умолчанию
func HostPort(conn *semantic.Connection, defaultPort int) string {
	host := conn.Host
	if host == "" {
		host = "localhost"
	}
	port := conn.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
