package querybuilder

import (
	"regexp"
	"strings"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/security"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

var (
	hyphenRef = regexp.MustCompile(`([a-zA-Z0-9_]+)-([a-zA-Z0-9_]+)`)
	dottedRef = regexp.MustCompile(`([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)`)
)

// View построитель для view: соединяет подзапросы зависимых датасетов
// и проецирует колонки "dataset.column" в псевдонимы dataset_column
type View struct {
	*Base
	deps map[string]Builder
}

// NewView создает построитель view; deps ключуется именем датасета
func NewView(schema *semantic.Schema, deps map[string]Builder, opts ...Option) *View {
	v := &View{Base: NewBase(schema, opts...), deps: deps}
	v.from = v.tableExpr
	return v
}

// ColumnAlias псевдоним колонки view: "parents.id" -> parents_id
func ColumnAlias(name string) string {
	return strings.ReplaceAll(security.SanitizeViewColumnName(name), ".", "_")
}

func columnRef(name string) *sqlast.Ident {
	return sqlast.Qualified(strings.Split(security.SanitizeViewColumnName(name), ".")...)
}

// BuildQuery выбирает псевдонимы колонок из соединения зависимостей
func (v *View) BuildQuery() (string, error) {
	sel, err := v.outer()
	if err != nil {
		return "", err
	}
	if sel.OrderBy, err = orderBy(v.schema.OrderBy); err != nil {
		return "", err
	}
	if v.schema.Limit != nil && *v.schema.Limit > 0 {
		sel.Limit = sqlast.Int(*v.schema.Limit)
	}
	return sqlast.Render(sel, v.dialect, true), nil
}

// HeadQuery первые n строк view
func (v *View) HeadQuery(n int) (string, error) {
	sel, err := v.outer()
	if err != nil {
		return "", err
	}
	sel.Limit = sqlast.Int(n)
	return sqlast.Render(sel, v.dialect, true), nil
}

// Validate проверяет BuildQuery самой view
func (v *View) Validate() error {
	return validate(v)
}

func (v *View) aliases() []string {
	out := make([]string, len(v.schema.Columns))
	for i, col := range v.schema.Columns {
		if col.Alias != "" {
			out[i] = col.Alias
		} else {
			out[i] = ColumnAlias(col.Name)
		}
	}
	return out
}

func (v *View) outer() (*sqlast.Select, error) {
	from, err := v.tableExpr()
	if err != nil {
		return nil, err
	}
	sel := &sqlast.Select{
		Distinct: v.distinct(),
		From:     from,
	}
	for _, alias := range v.aliases() {
		sel.Items = append(sel.Items, sqlast.SelectItem{Expr: sqlast.Col(alias)})
	}
	return sel, nil
}

func (v *View) distinct() bool {
	return v.schema.HasTransformation("remove_duplicates")
}

// projection средний слой: выражения и трансформации над псевдонимами
func (v *View) projection() ([]sqlast.SelectItem, error) {
	aliases := v.aliases()
	items := make([]sqlast.SelectItem, 0, len(v.schema.Columns))
	for i, col := range v.schema.Columns {
		var expr string
		if col.Expression != "" {
			expr = hyphenRef.ReplaceAllString(col.Expression, "${1}_${2}")
			expr = dottedRef.ReplaceAllString(expr, "${1}_${2}")
		} else {
			expr = sqlast.RenderExpr(sqlast.Col(ColumnAlias(col.Name)), v.dialect)
		}
		expr, err := v.registry.ApplyColumn(expr, col.Name, v.schema.Transformations)
		if err != nil {
			return nil, err
		}
		items = append(items, sqlast.SelectItem{Expr: &sqlast.Raw{SQL: expr}, Alias: aliases[i]})
	}
	return items, nil
}

func (v *View) dependency(name string) (*sqlast.Subquery, error) {
	dep, ok := v.deps[name]
	if !ok {
		return nil, &qerrors.MissingDependencyError{Dataset: name}
	}
	query, err := dep.BuildQuery()
	if err != nil {
		return nil, err
	}
	return &sqlast.Subquery{Query: &sqlast.RawQuery{SQL: query}, Alias: dep.Schema().Name}, nil
}

// tableExpr трехслойная конструкция:
// соединение подзапросов зависимостей, проекция с трансформациями и GROUP BY,
// подзапрос с именем view
func (v *View) tableExpr() (sqlast.TableExpr, error) {
	if len(v.schema.Columns) == 0 {
		return nil, qerrors.Constructionf("view %s has no columns", v.schema.Name)
	}

	var first string
	if len(v.schema.Relations) > 0 {
		first = semantic.DatasetOf(v.schema.Relations[0].From)
	} else {
		first = semantic.DatasetOf(v.schema.Columns[0].Name)
	}
	firstQuery, err := v.dependency(first)
	if err != nil {
		return nil, err
	}

	join := &sqlast.Select{From: firstQuery}
	for _, col := range v.schema.Columns {
		join.Items = append(join.Items, sqlast.SelectItem{Expr: columnRef(col.Name), Alias: ColumnAlias(col.Name)})
	}

	// условия к одному датасету объединяются через AND
	var targets []string
	conditions := make(map[string][]sqlast.Expr)
	for _, rel := range v.schema.Relations {
		to := semantic.DatasetOf(rel.To)
		if _, ok := conditions[to]; !ok {
			targets = append(targets, to)
		}
		conditions[to] = append(conditions[to], &sqlast.Binary{Left: columnRef(rel.From), Op: "=", Right: columnRef(rel.To)})
	}
	for _, to := range targets {
		sub, err := v.dependency(to)
		if err != nil {
			return nil, err
		}
		join.Joins = append(join.Joins, sqlast.Join{Table: sub, On: sqlast.And(conditions[to]...)})
	}

	items, err := v.projection()
	if err != nil {
		return nil, err
	}
	projection := &sqlast.Select{
		Items: items,
		From:  &sqlast.Subquery{Query: join},
	}
	for _, g := range v.schema.GroupBy {
		projection.GroupBy = append(projection.GroupBy, sqlast.Col(ColumnAlias(g)))
	}

	return &sqlast.Subquery{Query: projection, Alias: v.schema.Name}, nil
}
