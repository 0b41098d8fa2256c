package loader

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/paginator"
	"github.com/ruslano69/semlayer/pkg/querybuilder"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// ColumnsOf колонки результата основного запроса датасета.
// Для view имена совпадают с плоскими псевдонимами dataset_column.
func ColumnsOf(schema *semantic.Schema) []paginator.Column {
	out := make([]paginator.Column, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		name := c.Alias
		if name == "" {
			if schema.View {
				name = querybuilder.ColumnAlias(c.Name)
			} else {
				name = sqlast.NormalizeName(c.Name)
			}
		}
		out = append(out, paginator.Column{Name: name, Type: c.Type})
	}
	return out
}

// Page строит запрос датасета, оборачивает его пагинатором и выполняет.
// nil columns берутся из схемы.
func Page(ctx context.Context, l Loader, columns []paginator.Column, p *paginator.Params) (*adapters.Table, error) {
	env := envOf(l)
	span := audit.Start(env.Audit, audit.OpPaginate)
	span.Entry().WithDataset(datasetLabel(l.DatasetPath(), l.Schema()))
	if p != nil {
		span.Entry().WithMetadata("page", p.Page).WithMetadata("page_size", p.PageSize)
	}

	query, err := l.Builder().BuildQuery()
	if err != nil {
		return nil, span.Finish(ctx, err)
	}
	if columns == nil {
		columns = ColumnsOf(l.Schema())
	}

	paged, params, err := paginator.Apply(query, columns, p, l.Dialect())
	if err != nil {
		return nil, span.Finish(ctx, err)
	}

	table, err := l.ExecuteQuery(ctx, paged, params...)
	if err == nil {
		span.Entry().WithRows(int64(table.Len()))
	}
	return table, span.Finish(ctx, err)
}

// RowCount количество строк датасета
func RowCount(ctx context.Context, l Loader) (int64, error) {
	query, err := l.Builder().RowCountQuery()
	if err != nil {
		return 0, err
	}
	table, err := l.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	if table.Len() == 0 || len(table.Rows[0]) == 0 {
		return 0, fmt.Errorf("row count query returned no rows")
	}

	switch v := table.Rows[0][0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected row count value %v (%T)", v, v)
	}
}

// Head первые n строк датасета
func Head(ctx context.Context, l Loader, n int) (*adapters.Table, error) {
	if n <= 0 {
		n = querybuilder.DefaultHeadRows
	}
	query, err := l.Builder().HeadQuery(n)
	if err != nil {
		return nil, err
	}
	return l.ExecuteQuery(ctx, query)
}

// envOf окружение загрузчика из этого пакета, пустое для сторонних реализаций
func envOf(l Loader) *Env {
	switch v := l.(type) {
	case *LocalLoader:
		return v.env
	case *SQLLoader:
		return v.env
	case *ViewLoader:
		return v.env
	}
	return &Env{}
}
