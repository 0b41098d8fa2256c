package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ruslano69/semlayer/pkg/adapters/duckdb"
	_ "github.com/ruslano69/semlayer/pkg/adapters/mssql"
	_ "github.com/ruslano69/semlayer/pkg/adapters/mysql"
	_ "github.com/ruslano69/semlayer/pkg/adapters/postgres"
	_ "github.com/ruslano69/semlayer/pkg/adapters/sqlite"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/loader"
	"github.com/ruslano69/semlayer/pkg/objstore"
	"github.com/ruslano69/semlayer/pkg/retry"
	"github.com/ruslano69/semlayer/pkg/security"
)

// App holds the wired components of one command run
type App struct {
	Config *Config
	Log    *slog.Logger
	Audit  audit.Logger

	engine   *duckdb.Engine
	pool     *loader.Pool
	fetcher  *objstore.Fetcher
	auditDB  *sql.DB
	auditSQL *audit.SQLAppender
	registry *prometheus.Registry
}

// NewApp initializes audit and connection pool from config.
// Встроенный движок открывается лениво при первом локальном датасете.
func NewApp(ctx context.Context, config *Config, log *slog.Logger) (*App, error) {
	app := &App{Config: config, Log: log, Audit: audit.NewNullLogger()}

	if config.Audit.Enabled {
		logger, err := app.initAuditLogger(ctx, config.Audit)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		app.Audit = logger
	}

	retryConfig := config.Retry
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	retryer, err := retry.NewRetryer(retryConfig)
	if err != nil {
		return nil, err
	}

	app.pool = loader.NewPool(config.Connections, config.timeout(), app.Audit).WithRetry(retryer)
	app.fetcher = objstore.New(config.ObjectStore).WithRetry(retryer)
	return app, nil
}

// initAuditLogger initializes audit logger from config
func (a *App) initAuditLogger(ctx context.Context, cfg AuditConfig) (*audit.AuditLogger, error) {
	level, err := audit.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var appenders []audit.Appender

	if cfg.Console {
		appenders = append(appenders, audit.NewConsoleAppender(a.Log, level))
	}

	if cfg.File != "" {
		fileAppender, err := audit.NewFileAppender(audit.FileAppenderConfig{
			FilePath:   cfg.File,
			MaxSize:    int64(cfg.MaxSize),
			MaxBackups: 5,
			Level:      level,
			FormatJSON: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create file appender: %w", err)
		}
		appenders = append(appenders, fileAppender)
	}

	if cfg.Database != "" {
		sqlAppender, err := a.openAuditDatabase(ctx, cfg.Database, level)
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, sqlAppender)
	}

	if cfg.Redis.Address != "" {
		appenders = append(appenders, audit.NewRedisAppender(audit.RedisAppenderConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.Redis.TTL) * time.Second,
			Level:    level,
		}))
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		metrics, err := audit.NewMetricsAppender(a.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		appenders = append(appenders, metrics)
	}

	// If no appenders configured, use console by default
	if len(appenders) == 0 {
		appenders = append(appenders, audit.NewConsoleAppender(a.Log, level))
	}

	config := audit.SyncConfig()
	if cfg.Async {
		config = audit.DefaultConfig()
	}
	config.DefaultUser = cfg.User
	if config.DefaultUser == "" {
		config.DefaultUser = security.CurrentUser()
	}
	config.OnError = func(err error) {
		a.Log.Warn("audit write failed", "error", err)
	}
	return audit.NewLogger(config, appenders...), nil
}

func (a *App) openAuditDatabase(ctx context.Context, path string, level audit.Level) (*audit.SQLAppender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	appender, err := audit.NewSQLAppender(ctx, audit.SQLAppenderConfig{
		DB:              db,
		Level:           level,
		AutoCreateTable: true,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	a.auditDB = db
	a.auditSQL = appender
	return appender, nil
}

// Env окружение загрузчиков
func (a *App) Env(ctx context.Context) (*loader.Env, error) {
	if a.engine == nil {
		engine, err := duckdb.Open(ctx, a.Config.EnginePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded engine: %w", err)
		}
		a.engine = engine
	}
	return &loader.Env{
		Engine:      a.engine,
		Connections: a.pool,
		DatasetsDir: a.Config.DatasetsDir,
		Fetcher:     a.fetcher,
		Audit:       a.Audit,
	}, nil
}

// Load загружает датасет по пути org/dataset
func (a *App) Load(ctx context.Context, path string) (loader.Loader, error) {
	env, err := a.Env(ctx)
	if err != nil {
		return nil, err
	}
	return loader.LoadFromPath(ctx, path, env)
}

// AuditTable таблица аудита для чтения, nil если не настроена
func (a *App) AuditTable() *audit.SQLAppender {
	return a.auditSQL
}

// Close закрывает пул, движок и аудит, затем отправляет метрики
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(a.pool.Close(ctx))
	if a.engine != nil {
		keep(a.engine.Close(ctx))
	}
	keep(a.Audit.Close())
	if a.auditDB != nil {
		keep(a.auditDB.Close())
	}

	if a.registry != nil && a.Config.Audit.Metrics.Pushgateway != "" {
		job := a.Config.Audit.Metrics.Job
		if job == "" {
			job = "semlayer"
		}
		err := push.New(a.Config.Audit.Metrics.Pushgateway, job).Gatherer(a.registry).PushContext(ctx)
		if err != nil {
			a.Log.Warn("failed to push metrics", "error", err)
		}
	}
	return firstErr
}
