package paginator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
)

// Alias псевдоним подзапроса, который оборачивает исходный запрос
const Alias = "filtered_data"

// Column описание колонки результата: имя и логический тип
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Apply оборачивает запрос в SELECT * FROM (query) AS filtered_data и добавляет
// поиск, фильтры, сортировку и постраничность.
//
// Маркеры параметров канонические (%s); порядок params совпадает с порядком
// маркеров в тексте. В диалекте с OFFSET/FETCH смещение идет перед лимитом.
// Без параметров запрос возвращается как есть.
func Apply(query string, columns []Column, p *Params, d sqlast.Dialect) (string, []any, error) {
	params := []any{}
	if p == nil || query == "" {
		return query, params, nil
	}
	if err := p.Validate(); err != nil {
		return "", nil, err
	}

	sel := &sqlast.Select{
		Items: []sqlast.SelectItem{{Expr: &sqlast.Star{}}},
		From: &sqlast.Subquery{
			Query:     &sqlast.RawQuery{SQL: query},
			Alias:     Alias,
			BareAlias: true,
		},
	}

	var conditions []sqlast.Expr

	if p.Search != "" {
		var search []sqlast.Expr
		for _, col := range columns {
			cond, value, ok := searchPredicate(col, p.Search)
			if !ok {
				continue
			}
			search = append(search, cond)
			params = append(params, value)
		}
		if or := sqlast.Or(search...); or != nil {
			conditions = append(conditions, or)
		}
	}

	if p.Filters != "" {
		filters, err := parseFilters(p.Filters)
		if err != nil {
			return "", nil, qerrors.Validation("filters", "", fmt.Sprintf("Invalid filters format: %v", err))
		}
		for _, f := range filters {
			in := &sqlast.In{Expr: column(f.column)}
			for _, v := range f.values {
				in.Items = append(in.Items, &sqlast.Param{})
				params = append(params, v)
			}
			conditions = append(conditions, in)
		}
	}

	sel.Where = sqlast.And(conditions...)

	if p.SortBy != "" && p.SortOrder != "" {
		if !hasColumn(columns, p.SortBy) {
			return "", nil, qerrors.Validation("sort_by", p.SortBy,
				fmt.Sprintf("Sort column '%s' not found in available columns", p.SortBy))
		}
		sel.OrderBy = []sqlast.OrderItem{{Expr: column(p.SortBy), Direction: p.direction()}}
	}

	sel.Limit = &sqlast.Param{}
	sel.Offset = &sqlast.Param{}
	if d.OffsetFetch {
		params = append(params, p.Offset(), p.PageSize)
	} else {
		params = append(params, p.PageSize, p.Offset())
	}

	return sqlast.Render(sel, d, false), params, nil
}

// column ссылка на колонку результата одним идентификатором
func column(name string) *sqlast.Ident {
	return &sqlast.Ident{Parts: []sqlast.Name{{Value: name}}}
}

func hasColumn(columns []Column, name string) bool {
	for _, c := range columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// searchPredicate условие поиска для колонки; ok=false, если тип колонки
// не принимает строку поиска
func searchPredicate(col Column, term string) (sqlast.Expr, any, bool) {
	ref := column(col.Name)
	eq := &sqlast.Binary{Left: ref, Op: "=", Right: &sqlast.Param{}}

	switch col.Type {
	case "string":
		return &sqlast.Like{Expr: ref, Pattern: &sqlast.Param{}, CaseInsensitive: true}, "%" + term + "%", true
	case "float":
		if f, err := strconv.ParseFloat(strings.TrimSpace(term), 64); err == nil {
			return eq, f, true
		}
	case "number", "integer":
		if IsNumeric(term) {
			if n, err := strconv.ParseInt(term, 10, 64); err == nil {
				return eq, n, true
			}
		}
	case "datetime":
		if t, err := time.Parse(DatetimeLayout, term); err == nil {
			return eq, t, true
		}
	case "boolean":
		if IsValidBoolean(term) {
			return eq, strings.EqualFold(term, "true"), true
		}
	case "uuid":
		if IsValidUUID(term) {
			cast := &sqlast.Binary{Left: &sqlast.Cast{Expr: ref, Type: "TEXT"}, Op: "=", Right: &sqlast.Param{}}
			return cast, term, true
		}
	}
	return nil, nil, false
}

type filter struct {
	column string
	values []any
}

// parseFilters читает JSON объект с сохранением порядка ключей
func parseFilters(raw string) ([]filter, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("filters must be a JSON object")
	}

	var out []filter
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		values, err := filterValues(key, value)
		if err != nil {
			return nil, err
		}
		out = append(out, filter{column: key, values: values})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after filters object")
	}
	return out, nil
}

func filterValues(column string, value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok {
		list = []any{value}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("filter '%s' has no values", column)
	}
	out := make([]any, len(list))
	for i, v := range list {
		switch val := v.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				out[i] = n
			} else if f, err := val.Float64(); err == nil {
				out[i] = f
			} else {
				return nil, fmt.Errorf("filter '%s': bad number %s", column, val)
			}
		case string, bool, nil:
			out[i] = val
		default:
			return nil, fmt.Errorf("filter '%s': unsupported value %v", column, val)
		}
	}
	return out, nil
}
