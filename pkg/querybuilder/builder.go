// Package querybuilder строит SELECT запросы по схеме датасета.
//
// Base строит запрос к таблице с именем схемы, Local к файлу через табличную
// функцию встроенного движка, SQL к таблице удаленного источника, View
// соединяет подзапросы зависимых датасетов.
package querybuilder

import (
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/semantic"
	"github.com/ruslano69/semlayer/pkg/sqlparse"
	"github.com/ruslano69/semlayer/pkg/transform"
)

// DefaultHeadRows размер выборки HeadQuery по умолчанию
const DefaultHeadRows = 5

// Builder генерирует SQL для одной схемы
type Builder interface {
	// BuildQuery полный запрос с сортировкой и лимитом схемы
	BuildQuery() (string, error)
	// HeadQuery первые n строк без сортировки
	HeadQuery(n int) (string, error)
	// RowCountQuery SELECT COUNT(*) по источнику
	RowCountQuery() (string, error)
	// Validate проверяет, что BuildQuery дает разбираемый SQL
	Validate() error
	// Schema схема, по которой строится запрос
	Schema() *semantic.Schema
	// Dialect диалект сгенерированного SQL
	Dialect() sqlast.Dialect
}

// Option настраивает построитель
type Option func(*Base)

// WithDialect задает диалект рендеринга
func WithDialect(d sqlast.Dialect) Option {
	return func(b *Base) {
		b.dialect = d
	}
}

// WithRegistry задает реестр трансформаций
func WithRegistry(r *transform.Registry) Option {
	return func(b *Base) {
		b.registry = r
	}
}

// Base построитель запроса к таблице с именем схемы
type Base struct {
	schema   *semantic.Schema
	dialect  sqlast.Dialect
	registry *transform.Registry
	from     func() (sqlast.TableExpr, error)
}

// NewBase создает построитель; по умолчанию диалект DuckDB
func NewBase(schema *semantic.Schema, opts ...Option) *Base {
	b := &Base{
		schema:   schema,
		dialect:  sqlast.DuckDB,
		registry: transform.NewRegistry(),
	}
	b.from = func() (sqlast.TableExpr, error) {
		return sqlast.TableNamed(b.schema.Name), nil
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema возвращает схему
func (b *Base) Schema() *semantic.Schema { return b.schema }

// Dialect возвращает диалект
func (b *Base) Dialect() sqlast.Dialect { return b.dialect }

// BuildQuery строит SELECT с группировкой, DISTINCT, сортировкой и лимитом схемы
func (b *Base) BuildQuery() (string, error) {
	sel, err := b.selectStmt()
	if err != nil {
		return "", err
	}
	if sel.OrderBy, err = orderBy(b.schema.OrderBy); err != nil {
		return "", err
	}
	if b.schema.Limit != nil && *b.schema.Limit > 0 {
		sel.Limit = sqlast.Int(*b.schema.Limit)
	}
	return sqlast.Render(sel, b.dialect, true), nil
}

// HeadQuery строит запрос первых n строк без ORDER BY
func (b *Base) HeadQuery(n int) (string, error) {
	sel, err := b.selectStmt()
	if err != nil {
		return "", err
	}
	sel.Limit = sqlast.Int(n)
	return sqlast.Render(sel, b.dialect, true), nil
}

// RowCountQuery строит SELECT COUNT(*) по источнику
func (b *Base) RowCountQuery() (string, error) {
	from, err := b.from()
	if err != nil {
		return "", err
	}
	return rowCount(from, b.dialect), nil
}

// Validate проверяет, что сгенерированный запрос разбирается парсером
func (b *Base) Validate() error {
	return validate(b)
}

func (b *Base) selectStmt() (*sqlast.Select, error) {
	items, err := b.columns()
	if err != nil {
		return nil, err
	}
	from, err := b.from()
	if err != nil {
		return nil, err
	}
	sel := &sqlast.Select{
		Distinct: transform.HasDistinct(b.schema.Transformations),
		Items:    items,
		From:     from,
	}
	for _, g := range b.schema.GroupBy {
		sel.GroupBy = append(sel.GroupBy, sqlast.Col(g))
	}
	return sel, nil
}

// columns список SELECT: выражение колонки (или ее имя в кавычках) с трансформациями.
// Если в схеме есть трансформации, каждая колонка получает псевдоним.
func (b *Base) columns() ([]sqlast.SelectItem, error) {
	if len(b.schema.Columns) == 0 {
		return []sqlast.SelectItem{{Expr: &sqlast.Star{}}}, nil
	}

	hasTransformations := len(b.schema.Transformations) > 0
	items := make([]sqlast.SelectItem, 0, len(b.schema.Columns))
	for _, col := range b.schema.Columns {
		expr := col.Expression
		if expr == "" {
			expr = sqlast.RenderExpr(sqlast.Col(col.Name), b.dialect)
		}
		alias := col.Alias
		if hasTransformations {
			var err error
			expr, err = b.registry.ApplyColumn(expr, col.Name, b.schema.Transformations)
			if err != nil {
				return nil, err
			}
			if alias == "" {
				alias = col.Name
			}
		}
		items = append(items, sqlast.SelectItem{Expr: &sqlast.Raw{SQL: expr}, Alias: alias})
	}
	return items, nil
}

func orderBy(entries []string) ([]sqlast.OrderItem, error) {
	var out []sqlast.OrderItem
	for _, entry := range entries {
		item, err := sqlast.ParseOrderBy(entry)
		if err != nil {
			return nil, qerrors.WrapConstruction("invalid order_by", err)
		}
		out = append(out, item)
	}
	return out, nil
}

func rowCount(from sqlast.TableExpr, d sqlast.Dialect) string {
	sel := &sqlast.Select{
		Items: []sqlast.SelectItem{{Expr: &sqlast.Raw{SQL: "COUNT(*)"}}},
		From:  from,
	}
	return sqlast.Render(sel, d, true)
}

func validate(b Builder) error {
	query, err := b.BuildQuery()
	if err != nil {
		return err
	}
	if err := sqlparse.Validate(query, b.Dialect().Name); err != nil {
		return qerrors.Constructionf("Failed to generate a valid SQL query from the provided schema: %v", err)
	}
	return nil
}
