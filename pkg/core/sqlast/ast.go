// Package sqlast небольшое AST для SELECT запросов и его рендеринг
// в текст SQL с учетом диалекта.
//
// Дерево строится снизу вверх и рендерится один раз, промежуточные
// строки SQL повторно не разбираются.
package sqlast

import (
	"regexp"
	"strconv"
	"strings"
)

// Node базовый интерфейс для всех узлов AST
type Node interface {
	node()
}

// Expr выражение в списке SELECT, условии или сортировке
type Expr interface {
	Node
	expr()
}

// TableExpr источник строк в FROM или JOIN
type TableExpr interface {
	Node
	table()
}

// Query запрос, который можно вложить как подзапрос
type Query interface {
	Node
	query()
}

// Name часть составного идентификатора.
// Exact означает, что имя не нормализуется (было в кавычках в исходном тексте).
type Name struct {
	Value string
	Exact bool
}

// Ident ссылка на колонку или таблицу: "dataset"."column"
type Ident struct {
	Parts []Name
}

// Raw фрагмент SQL, вставляемый как есть
type Raw struct {
	SQL string
}

// Star *
type Star struct{}

// Param канонический маркер параметра %s
type Param struct{}

// Binary бинарный оператор: a = b, a >= b
type Binary struct {
	Left  Expr
	Op    string
	Right Expr
}

// Logical цепочка AND/OR
type Logical struct {
	Op    string
	Items []Expr
}

// In выражение x IN (a, b, c)
type In struct {
	Expr  Expr
	Items []Expr
}

// Like сравнение по шаблону; CaseInsensitive рендерится как ILIKE,
// либо как LOWER(x) LIKE LOWER(p) в диалектах без ILIKE
type Like struct {
	Expr            Expr
	Pattern         Expr
	CaseInsensitive bool
}

// Cast приведение типа
type Cast struct {
	Expr Expr
	Type string
}

// Func вызов функции
type Func struct {
	Name string
	Args []Expr
}

// Table таблица по имени
type Table struct {
	Name Ident
}

// FuncTable табличная функция: READ_CSV('path')
type FuncTable struct {
	Name string
	Args []Expr
}

// Subquery вложенный запрос с необязательным псевдонимом
type Subquery struct {
	Query Query
	Alias string
	// BareAlias псевдоним выводится без кавычек
	BareAlias bool
}

// RawQuery готовый текст запроса, вложенный как есть
type RawQuery struct {
	SQL string
}

// SelectItem элемент списка SELECT
type SelectItem struct {
	Expr  Expr
	Alias string
}

// Join соединение
type Join struct {
	Table TableExpr
	On    Expr
}

// OrderItem элемент ORDER BY; Direction пустой, "ASC" или "DESC"
type OrderItem struct {
	Expr      Expr
	Direction string
	Nulls     string
}

// Select запрос SELECT
type Select struct {
	Distinct bool
	Items    []SelectItem
	From     TableExpr
	Joins    []Join
	Where    Expr
	GroupBy  []Expr
	OrderBy  []OrderItem
	Limit    Expr
	Offset   Expr
}

func (*Ident) node()     {}
func (*Raw) node()       {}
func (*Star) node()      {}
func (*Param) node()     {}
func (*Binary) node()    {}
func (*Logical) node()   {}
func (*In) node()        {}
func (*Like) node()      {}
func (*Cast) node()      {}
func (*Func) node()      {}
func (*Table) node()     {}
func (*FuncTable) node() {}
func (*Subquery) node()  {}
func (*RawQuery) node()  {}
func (*Select) node()    {}

func (*Ident) expr()   {}
func (*Raw) expr()     {}
func (*Star) expr()    {}
func (*Param) expr()   {}
func (*Binary) expr()  {}
func (*Logical) expr() {}
func (*In) expr()      {}
func (*Like) expr()    {}
func (*Cast) expr()    {}
func (*Func) expr()    {}

func (*Table) table()     {}
func (*FuncTable) table() {}
func (*Subquery) table()  {}

func (*RawQuery) query() {}
func (*Select) query()   {}

var dottedName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)+$`)

// Col ссылка на колонку по имени; "a.b" из простых частей разбивается на части
func Col(name string) *Ident {
	if dottedName.MatchString(name) {
		parts := strings.Split(name, ".")
		id := &Ident{Parts: make([]Name, len(parts))}
		for i, p := range parts {
			id.Parts[i] = Name{Value: p}
		}
		return id
	}
	return &Ident{Parts: []Name{{Value: name}}}
}

// Qualified ссылка "table"."column" из готовых частей
func Qualified(parts ...string) *Ident {
	id := &Ident{Parts: make([]Name, len(parts))}
	for i, p := range parts {
		id.Parts[i] = Name{Value: p}
	}
	return id
}

// TableNamed таблица по имени
func TableNamed(name string) *Table {
	return &Table{Name: Ident{Parts: []Name{{Value: name}}}}
}

// Int целочисленный литерал
func Int(n int) Expr {
	return &Raw{SQL: strconv.Itoa(n)}
}

// String строковый литерал в одинарных кавычках
func String(s string) Expr {
	return &Raw{SQL: QuoteLiteral(s)}
}

// And объединяет условия через AND, пропуская nil
func And(items ...Expr) Expr {
	return logical("AND", items)
}

// Or объединяет условия через OR, пропуская nil
func Or(items ...Expr) Expr {
	return logical("OR", items)
}

func logical(op string, items []Expr) Expr {
	var out []Expr
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &Logical{Op: op, Items: out}
}
