package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/adapters/duckdb"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/retry"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// ConnectionResolver выдает подключенный адаптер для удаленного источника
type ConnectionResolver interface {
	Resolve(ctx context.Context, source *semantic.Source) (adapters.Adapter, error)
}

// SchemaResolver находит схему датасета по пути org/dataset
type SchemaResolver interface {
	ResolveSchema(ctx context.Context, datasetPath string) (*semantic.Schema, error)
}

// Fetcher скачивает удаленный файл источника и возвращает локальный путь
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Env окружение загрузчиков: движок, подключения, каталог датасетов и аудит.
// Движок один на процесс и принадлежит вызывающему коду.
type Env struct {
	Engine      *duckdb.Engine
	Connections ConnectionResolver
	DatasetsDir string
	// Schemas по умолчанию читает schema.yaml из DatasetsDir
	Schemas SchemaResolver
	Fetcher Fetcher
	Audit   audit.Logger
}

func (e *Env) schemas() SchemaResolver {
	if e.Schemas != nil {
		return e.Schemas
	}
	return DirSchemas{Dir: e.DatasetsDir}
}

// DirSchemas читает схемы из <Dir>/<org>/<dataset>/schema.yaml
type DirSchemas struct {
	Dir string
}

// ResolveSchema загружает схему датасета
func (d DirSchemas) ResolveSchema(ctx context.Context, datasetPath string) (*semantic.Schema, error) {
	return semantic.LoadSchema(semantic.SchemaPath(d.Dir, datasetPath))
}

// Pool кэш адаптеров по типу и DSN.
// Именованные подключения конфигурации подставляются вместо ссылок connection.name.
type Pool struct {
	mu       sync.Mutex
	named    map[string]semantic.Connection
	adapters map[string]adapters.Adapter
	timeout  time.Duration
	audit    audit.Logger
	retryer  *retry.Retryer
}

// NewPool создает пул с именованными подключениями
func NewPool(named map[string]semantic.Connection, timeout time.Duration, logger audit.Logger) *Pool {
	if named == nil {
		named = make(map[string]semantic.Connection)
	}
	return &Pool{
		named:    named,
		adapters: make(map[string]adapters.Adapter),
		timeout:  timeout,
		audit:    logger,
	}
}

// WithRetry включает повторы подключения при временных сбоях
func (p *Pool) WithRetry(r *retry.Retryer) *Pool {
	p.retryer = r
	return p
}

// Resolve возвращает адаптер источника, создавая его при первом обращении
func (p *Pool) Resolve(ctx context.Context, source *semantic.Source) (adapters.Adapter, error) {
	src, err := p.expand(source)
	if err != nil {
		return nil, err
	}
	cfg, err := adapters.ConfigFor(src)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = p.timeout

	key := cfg.Type + "|" + cfg.DSN

	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.adapters[key]; ok {
		return a, nil
	}

	span := audit.Start(p.audit, audit.OpConnect)
	span.Entry().WithSource(cfg.Type)
	var a adapters.Adapter
	err = p.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		a, err = adapters.New(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, span.Finish(ctx, err)
	}
	p.adapters[key] = a
	span.Finish(ctx, nil)
	return a, nil
}

// expand подставляет именованное подключение, поля схемы имеют приоритет
func (p *Pool) expand(source *semantic.Source) (*semantic.Source, error) {
	if source == nil || source.Connection == nil || source.Connection.Name == "" {
		return source, nil
	}
	named, ok := p.named[source.Connection.Name]
	if !ok {
		return nil, fmt.Errorf("connection '%s' is not configured", source.Connection.Name)
	}

	conn := named
	own := source.Connection
	if own.DSN != "" {
		conn.DSN = own.DSN
	}
	if own.Host != "" {
		conn.Host = own.Host
	}
	if own.Port != 0 {
		conn.Port = own.Port
	}
	if own.User != "" {
		conn.User = own.User
	}
	if own.Password != "" {
		conn.Password = own.Password
	}
	if own.Database != "" {
		conn.Database = own.Database
	}
	if own.SSLMode != "" {
		conn.SSLMode = own.SSLMode
	}

	expanded := *source
	expanded.Connection = &conn
	return &expanded, nil
}

// Close закрывает все адаптеры пула
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, a := range p.adapters {
		if err := a.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.adapters, key)
	}
	return firstErr
}
