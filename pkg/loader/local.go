package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/querybuilder"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// LocalLoader датасет из CSV или Parquet файла во встроенном движке
type LocalLoader struct {
	base
}

func newLocal(ctx context.Context, schema *semantic.Schema, path string, env *Env) (*LocalLoader, error) {
	if env.Engine == nil {
		return nil, fmt.Errorf("dataset %s needs the embedded engine", schema.Name)
	}

	if strings.HasPrefix(schema.Source.Path, "s3://") {
		fetched, err := fetch(ctx, env, schema)
		if err != nil {
			return nil, err
		}
		schema = fetched
	}

	dir := ""
	if path != "" && env.DatasetsDir != "" {
		dir = filepath.Join(env.DatasetsDir, filepath.FromSlash(path))
	}

	return &LocalLoader{base: base{
		schema:  schema,
		path:    path,
		builder: querybuilder.NewLocal(schema, dir, querybuilder.WithDialect(sqlast.DuckDB)),
		env:     env,
	}}, nil
}

// fetch скачивает файл источника и возвращает копию схемы с локальным путем
func fetch(ctx context.Context, env *Env, schema *semantic.Schema) (*semantic.Schema, error) {
	if env.Fetcher == nil {
		return nil, fmt.Errorf("dataset %s reads %s but no object store is configured", schema.Name, schema.Source.Path)
	}

	span := audit.Start(env.Audit, audit.OpFetch)
	span.Entry().WithDataset(schema.Name).WithSource(schema.Source.Type).WithTarget(schema.Source.Path)
	local, err := env.Fetcher.Fetch(ctx, schema.Source.Path)
	if err := span.Finish(ctx, err); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", schema.Source.Path, err)
	}

	copied := *schema
	src := *schema.Source
	src.Path = local
	copied.Source = &src
	return &copied, nil
}

// ExecuteQuery выполняет запрос во встроенном движке
func (l *LocalLoader) ExecuteQuery(ctx context.Context, query string, params ...any) (*adapters.Table, error) {
	return l.run(ctx, semantic.SourceCSV, query, params, sanitizeLocal, l.execute)
}

func (l *LocalLoader) execute(ctx context.Context, query string, params []any) (*adapters.Table, error) {
	return l.env.Engine.Query(ctx, sqlast.DuckDB.BindParams(query), params...)
}

// Load строит и выполняет основной запрос
func (l *LocalLoader) Load(ctx context.Context) (*Dataset, error) {
	return load(ctx, l, l.env)
}

// Register регистрирует датасет в движке как view с именем схемы
func (l *LocalLoader) Register(ctx context.Context) error {
	query, err := l.builder.BuildQuery()
	if err != nil {
		return err
	}
	if err := sanitizeLocal(query); err != nil {
		return err
	}
	return l.env.Engine.RegisterView(ctx, l.schema.Name, query)
}
