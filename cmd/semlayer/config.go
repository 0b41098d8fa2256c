package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/semlayer/pkg/objstore"
	"github.com/ruslano69/semlayer/pkg/retry"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// Config represents the main configuration structure
type Config struct {
	// DatasetsDir - каталог <org>/<dataset>/schema.yaml
	DatasetsDir string `yaml:"datasets_dir"`
	// EnginePath - файл встроенного DuckDB, пустой для базы в памяти
	EnginePath string `yaml:"engine_path,omitempty"`
	// ChartsDir - каталог временных графиков для clean
	ChartsDir string `yaml:"charts_dir,omitempty"`
	// Timeout - таймаут подключения к удаленным источникам, секунды
	Timeout     int                            `yaml:"timeout,omitempty"`
	Connections map[string]semantic.Connection `yaml:"connections,omitempty"`
	ObjectStore objstore.Config                `yaml:"object_store,omitempty"`
	// Retry - повторы подключений и скачивания s3://
	Retry retry.Config `yaml:"retry,omitempty"`
	Audit AuditConfig  `yaml:"audit,omitempty"`
}

// AuditConfig for audit logging settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // minimal, standard, full
	Async   bool   `yaml:"async,omitempty"`
	User    string `yaml:"user,omitempty"`
	File    string `yaml:"file,omitempty"`
	MaxSize int    `yaml:"max_size_mb,omitempty"` // Max file size in MB
	Console bool   `yaml:"console,omitempty"`     // Log to console
	// Database - SQLite файл таблицы аудита, читается командой audit
	Database string        `yaml:"database,omitempty"`
	Redis    RedisConfig   `yaml:"redis,omitempty"`
	Metrics  MetricsConfig `yaml:"metrics,omitempty"`
}

// RedisConfig - публикация аудита в Redis
type RedisConfig struct {
	Address  string `yaml:"address,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	TTL      int    `yaml:"ttl_seconds,omitempty"`
}

// MetricsConfig - метрики Prometheus, отправляемые в Pushgateway по завершении команды
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pushgateway string `yaml:"pushgateway,omitempty"`
	Job         string `yaml:"job,omitempty"`
}

// DefaultConfig - конфигурация без файла
func DefaultConfig() *Config {
	return &Config{
		DatasetsDir: "datasets",
		ChartsDir:   "exports/charts",
		Timeout:     30,
		Retry:       retry.DefaultConfig(),
		Audit: AuditConfig{
			Level: "standard",
		},
	}
}

// LoadConfig loads configuration from YAML file.
// Переменные окружения ${VAR} подставляются до разбора.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to YAML file
func SaveConfig(filename string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateSampleConfig creates sample configuration with one named connection
func CreateSampleConfig(dbType string) *Config {
	config := DefaultConfig()
	config.Audit = AuditConfig{
		Enabled:  true,
		Level:    "standard",
		File:     "logs/audit.log",
		MaxSize:  100,
		Database: "logs/audit.db",
	}

	conn := semantic.Connection{}
	switch dbType {
	case "postgres", "postgresql":
		conn.Host = "localhost"
		conn.Port = 5432
		conn.Database = "mydb"
		conn.User = "postgres"
		conn.Password = "${POSTGRES_PASSWORD}"
		conn.SSLMode = "disable"

	case "mssql", "sqlserver":
		conn.Host = "localhost"
		conn.Port = 1433
		conn.Database = "mydb"
		conn.User = "sa"
		conn.Password = "${MSSQL_PASSWORD}"

	case "sqlite":
		conn.Database = "database.db"

	case "mysql":
		conn.Host = "localhost"
		conn.Port = 3306
		conn.Database = "mydb"
		conn.User = "root"
		conn.Password = "${MYSQL_PASSWORD}"

	default:
		return config
	}

	config.Connections = map[string]semantic.Connection{"main": conn}
	return config
}

// timeout таймаут подключения
func (c *Config) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
