package sqlast

import (
	"strings"
)

const indentUnit = "  "

// Render рендерит запрос в SQL заданного диалекта.
// При pretty=true каждая секция с новой строки, элементы списков с отступом в два пробела.
func Render(q Query, d Dialect, pretty bool) string {
	r := &renderer{d: d, pretty: pretty}
	return r.query(q)
}

// RenderExpr рендерит отдельное выражение
func RenderExpr(e Expr, d Dialect) string {
	r := &renderer{d: d}
	return r.expr(e)
}

type renderer struct {
	d      Dialect
	pretty bool
}

func (r *renderer) query(q Query) string {
	switch n := q.(type) {
	case *Select:
		return r.selectStmt(n)
	case *RawQuery:
		return strings.TrimSpace(n.SQL)
	}
	return ""
}

func (r *renderer) selectStmt(s *Select) string {
	var sections []string

	head := "SELECT"
	if s.Distinct {
		head += " DISTINCT"
	}
	items := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, r.selectItem(it))
	}
	if len(items) == 0 {
		items = append(items, "*")
	}
	sections = append(sections, r.list(head, items))

	if s.From != nil {
		sections = append(sections, "FROM "+r.table(s.From))
	}
	for _, j := range s.Joins {
		join := "JOIN " + r.table(j.Table)
		if j.On != nil {
			if r.pretty {
				join += "\n" + indentUnit + "ON " + r.expr(j.On)
			} else {
				join += " ON " + r.expr(j.On)
			}
		}
		sections = append(sections, join)
	}
	if s.Where != nil {
		sections = append(sections, r.list("WHERE", []string{r.expr(s.Where)}))
	}
	if len(s.GroupBy) > 0 {
		groups := make([]string, 0, len(s.GroupBy))
		for _, g := range s.GroupBy {
			groups = append(groups, r.expr(g))
		}
		sections = append(sections, r.list("GROUP BY", groups))
	}

	orderBy := s.OrderBy
	if r.d.OffsetFetch && s.Limit != nil && len(orderBy) == 0 {
		// OFFSET ... FETCH требует ORDER BY
		orderBy = []OrderItem{{Expr: &Raw{SQL: "(SELECT NULL)"}}}
	}
	if len(orderBy) > 0 {
		orders := make([]string, 0, len(orderBy))
		for _, o := range orderBy {
			orders = append(orders, r.orderItem(o))
		}
		sections = append(sections, r.list("ORDER BY", orders))
	}

	if r.d.OffsetFetch {
		if s.Limit != nil || s.Offset != nil {
			offset := s.Offset
			if offset == nil {
				offset = Int(0)
			}
			paging := "OFFSET " + r.expr(offset) + " ROWS"
			if s.Limit != nil {
				paging += " FETCH NEXT " + r.expr(s.Limit) + " ROWS ONLY"
			}
			sections = append(sections, paging)
		}
	} else {
		if s.Limit != nil {
			sections = append(sections, "LIMIT "+r.expr(s.Limit))
		}
		if s.Offset != nil {
			sections = append(sections, "OFFSET "+r.expr(s.Offset))
		}
	}

	if r.pretty {
		return strings.Join(sections, "\n")
	}
	return strings.Join(sections, " ")
}

// list секция с заголовком и списком элементов
func (r *renderer) list(head string, items []string) string {
	if r.pretty {
		return head + "\n" + indent(strings.Join(items, ",\n"))
	}
	return head + " " + strings.Join(items, ", ")
}

func (r *renderer) selectItem(it SelectItem) string {
	s := r.expr(it.Expr)
	if it.Alias != "" {
		s += " AS " + r.d.Identifier(it.Alias)
	}
	return s
}

func (r *renderer) orderItem(o OrderItem) string {
	s := r.expr(o.Expr)
	if o.Direction != "" {
		s += " " + o.Direction
	}
	if o.Nulls != "" {
		s += " NULLS " + o.Nulls
	}
	return s
}

func (r *renderer) table(t TableExpr) string {
	switch n := t.(type) {
	case *Table:
		return r.ident(&n.Name)
	case *FuncTable:
		return n.Name + "(" + r.exprs(n.Args) + ")"
	case *Subquery:
		var s string
		if r.pretty {
			s = "(\n" + indent(r.query(n.Query)) + "\n)"
		} else {
			s = "(" + r.query(n.Query) + ")"
		}
		if n.Alias != "" {
			if n.BareAlias {
				s += " AS " + n.Alias
			} else {
				s += " AS " + r.d.Identifier(n.Alias)
			}
		}
		return s
	}
	return ""
}

func (r *renderer) ident(id *Ident) string {
	parts := make([]string, len(id.Parts))
	for i, p := range id.Parts {
		if p.Exact {
			parts[i] = r.d.Quote(p.Value)
		} else {
			parts[i] = r.d.Identifier(p.Value)
		}
	}
	return strings.Join(parts, ".")
}

func (r *renderer) exprs(list []Expr) string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = r.expr(e)
	}
	return strings.Join(out, ", ")
}

func (r *renderer) expr(e Expr) string {
	switch n := e.(type) {
	case *Ident:
		return r.ident(n)
	case *Raw:
		return n.SQL
	case *Star:
		return "*"
	case *Param:
		return CanonicalMarker
	case *Binary:
		return r.expr(n.Left) + " " + n.Op + " " + r.expr(n.Right)
	case *Logical:
		parts := make([]string, len(n.Items))
		for i, it := range n.Items {
			s := r.expr(it)
			if inner, ok := it.(*Logical); ok && inner.Op != n.Op {
				s = "(" + s + ")"
			}
			parts[i] = s
		}
		return strings.Join(parts, " "+n.Op+" ")
	case *In:
		return r.expr(n.Expr) + " IN (" + r.exprs(n.Items) + ")"
	case *Like:
		if !n.CaseInsensitive {
			return r.expr(n.Expr) + " LIKE " + r.expr(n.Pattern)
		}
		if r.d.ILike {
			return r.expr(n.Expr) + " ILIKE " + r.expr(n.Pattern)
		}
		return "LOWER(" + r.expr(n.Expr) + ") LIKE LOWER(" + r.expr(n.Pattern) + ")"
	case *Cast:
		return "CAST(" + r.expr(n.Expr) + " AS " + n.Type + ")"
	case *Func:
		return n.Name + "(" + r.exprs(n.Args) + ")"
	}
	return ""
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indentUnit + l
		}
	}
	return strings.Join(lines, "\n")
}
