// Package loader выполняет датасеты семантического слоя.
//
// Схема датасета один раз отображается на вариант загрузчика: локальный
// файл (встроенный DuckDB), удаленная SQL таблица или view над другими
// датасетами. Любой SQL перед выполнением проходит проверку безопасности.
package loader

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/querybuilder"
	"github.com/ruslano69/semlayer/pkg/security"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// Loader загрузчик одного датасета
type Loader interface {
	Schema() *semantic.Schema
	Builder() querybuilder.Builder
	// DatasetPath путь org/dataset, пустой для схем вне каталога
	DatasetPath() string
	Dialect() sqlast.Dialect
	// ExecuteQuery проверяет и выполняет SQL с каноническими маркерами %s
	ExecuteQuery(ctx context.Context, query string, params ...any) (*adapters.Table, error)
	Load(ctx context.Context) (*Dataset, error)
}

// Dataset результат загрузки, помеченный схемой
type Dataset struct {
	Schema *semantic.Schema
	Path   string
	*adapters.Table
}

// fileReads блоки чтения файлов, которые заменяются на dummy_table при проверке
var fileReads = regexp.MustCompile(`(?i)\bREAD_(CSV|PARQUET)\s*\(\s*'(?:[^']|'')*'\s*\)`)

// DummyTable имя подстановки для проверки локальных запросов
const DummyTable = "dummy_table"

// New выбирает вариант загрузчика по форме схемы
func New(ctx context.Context, schema *semantic.Schema, path string, env *Env) (Loader, error) {
	return newLoader(ctx, schema, path, env, make(map[string]bool))
}

// LoadFromPath читает schema.yaml датасета и создает загрузчик.
// Подчеркивания в пути заменяются дефисами.
func LoadFromPath(ctx context.Context, path string, env *Env) (Loader, error) {
	path = semantic.UnderscoreToDash(path)
	if _, _, err := semantic.ValidateDatasetPath(path); err != nil {
		return nil, err
	}
	schema, err := env.schemas().ResolveSchema(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
	}
	return New(ctx, schema, path, env)
}

func newLoader(ctx context.Context, schema *semantic.Schema, path string, env *Env, visiting map[string]bool) (Loader, error) {
	if schema == nil {
		return nil, qerrors.Constructionf("schema is not defined")
	}
	if env == nil {
		env = &Env{}
	}
	if path != "" {
		if _, _, err := semantic.ValidateDatasetPath(path); err != nil {
			return nil, err
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	var (
		l   Loader
		err error
	)
	switch {
	case schema.View:
		l, err = newView(ctx, schema, path, env, visiting)
	case schema.Source.IsLocal():
		l, err = newLocal(ctx, schema, path, env)
	case schema.Source.IsRemote():
		l, err = newSQL(schema, path, env)
	default:
		return nil, qerrors.Constructionf("dataset %s has no supported source", schema.Name)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Builder().Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// base общие поля вариантов
type base struct {
	schema  *semantic.Schema
	path    string
	builder querybuilder.Builder
	env     *Env
}

func (b *base) Schema() *semantic.Schema { return b.schema }

func (b *base) Builder() querybuilder.Builder { return b.builder }

func (b *base) DatasetPath() string { return b.path }

func (b *base) Dialect() sqlast.Dialect { return b.builder.Dialect() }

func (b *base) dataset() string { return datasetLabel(b.path, b.schema) }

// datasetLabel путь датасета для аудита, имя схемы если пути нет
func datasetLabel(path string, s *semantic.Schema) string {
	if path != "" {
		return path
	}
	return s.Name
}

// executor выполняет уже проверенный запрос
type executor func(ctx context.Context, query string, params []any) (*adapters.Table, error)

// run проверяет запрос, выполняет его и пишет запись аудита
func (b *base) run(ctx context.Context, family, query string, params []any, check func(string) error, exec executor) (*adapters.Table, error) {
	span := audit.Start(b.env.Audit, audit.OpQuery)
	span.Entry().WithDataset(b.dataset()).WithSource(family).WithQuery(query)

	if err := check(query); err != nil {
		return nil, span.Finish(ctx, err)
	}

	table, err := exec(ctx, query, params)
	if err != nil {
		return nil, span.Finish(ctx, qerrors.Execution(err))
	}
	table.Name = b.schema.Name
	span.Entry().WithRows(int64(table.Len()))
	return table, span.Finish(ctx, nil)
}

// load строит основной запрос датасета и выполняет его
func load(ctx context.Context, l Loader, env *Env) (*Dataset, error) {
	span := audit.Start(env.Audit, audit.OpBuild)
	span.Entry().WithDataset(datasetLabel(l.DatasetPath(), l.Schema()))
	query, err := l.Builder().BuildQuery()
	if err := span.Finish(ctx, err); err != nil {
		return nil, err
	}

	table, err := l.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Dataset{Schema: l.Schema(), Path: l.DatasetPath(), Table: table}, nil
}

// sanitize отклоняет все, кроме одного безопасного SELECT
func sanitize(query, dialect string) error {
	if !security.IsSafeSelect(query, dialect) {
		return qerrors.Malicious("", query)
	}
	return nil
}

// sanitizeLocal проверяет локальный запрос, подменяя чтение файлов на dummy_table
func sanitizeLocal(query string) error {
	return sanitize(fileReads.ReplaceAllString(query, DummyTable), sqlast.DuckDB.Name)
}
