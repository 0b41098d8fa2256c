// Package sqlparse разбирает SQL через парсер PostgreSQL (libpg_query)
// и дает обход дерева: проверка SELECT, подзапросы, имена таблиц.
package sqlparse

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
)

// Placeholder инертный идентификатор, которым заменяются маркеры параметров
const Placeholder = "___PLACEHOLDER___"

// plainQuotes строки и идентификаторы в двойных кавычках
const plainQuotes = `'"`

var (
	dollarParam = regexp.MustCompile(`\$\d+`)
	atParam     = regexp.MustCompile(`@p\d+`)
)

// Statement разобранный SQL запрос
type Statement struct {
	text   string
	result *pg_query.ParseResult
}

// Text возвращает текст, который был передан парсеру (после подготовки)
func (s *Statement) Text() string { return s.text }

// Len количество операторов в тексте
func (s *Statement) Len() int { return len(s.result.Stmts) }

// Prepare приводит запрос к грамматике парсера: маркеры параметров
// (%s, ?, $n, @pN) заменяются на Placeholder, идентификаторы в обратных
// кавычках (MySQL) и квадратных скобках (MS SQL) переводятся в двойные кавычки.
// Маркеры %s и ? внутри строк и имен в кавычках остаются как есть.
func Prepare(query, dialect string) string {
	out := query
	switch dialect {
	case "mysql":
		out = requote(out, '`', '`')
	case "mssql", "tsql":
		out = requote(out, '[', ']')
		out = atParam.ReplaceAllString(out, Placeholder)
	}
	out = sqlast.ReplaceOutside(out, "%s", Placeholder, plainQuotes)
	out = sqlast.ReplaceOutside(out, "?", Placeholder, plainQuotes)
	out = dollarParam.ReplaceAllString(out, Placeholder)
	return out
}

// Parse разбирает подготовленный запрос
func Parse(query, dialect string) (*Statement, error) {
	text := Prepare(query, dialect)
	result, err := pg_query.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(result.Stmts) == 0 {
		return nil, fmt.Errorf("failed to parse SQL: empty statement")
	}
	return &Statement{text: text, result: result}, nil
}

// IsSelect проверяет, что текст содержит ровно один оператор и это SELECT
func (s *Statement) IsSelect() bool {
	if len(s.result.Stmts) != 1 {
		return false
	}
	root := s.result.Stmts[0].GetStmt()
	return root != nil && root.GetSelectStmt() != nil
}

// Subqueries возвращает SQL текст каждого вложенного SELECT
// (подзапросы в FROM, IN/EXISTS/скалярные подзапросы, CTE)
func (s *Statement) Subqueries() ([]string, error) {
	var out []string
	for _, raw := range s.result.Stmts {
		root := raw.GetStmt()
		var deparseErr error
		Walk(root, func(n *pg_query.Node) bool {
			if n == root || n.GetSelectStmt() == nil {
				return true
			}
			sql, err := pg_query.Deparse(&pg_query.ParseResult{
				Stmts: []*pg_query.RawStmt{{Stmt: n}},
			})
			if err != nil {
				deparseErr = fmt.Errorf("failed to render subquery: %w", err)
				return false
			}
			out = append(out, sql)
			return true
		})
		if deparseErr != nil {
			return nil, deparseErr
		}
	}
	return out, nil
}

// TableNames возвращает имена таблиц в порядке появления, без имен CTE.
// Имя берется из исходного текста, поэтому регистр сохраняется;
// у имени в двойных кавычках кавычки снимаются. Составное имя
// (schema.table, catalog.schema.table) возвращается целиком через точку.
func (s *Statement) TableNames() []string {
	cteNames := make(map[string]bool)
	for _, raw := range s.result.Stmts {
		Walk(raw.GetStmt(), func(n *pg_query.Node) bool {
			if cte := n.GetCommonTableExpr(); cte != nil {
				cteNames[strings.ToLower(cte.GetCtename())] = true
			}
			return true
		})
	}

	var names []string
	for _, raw := range s.result.Stmts {
		Walk(raw.GetStmt(), func(n *pg_query.Node) bool {
			rv := n.GetRangeVar()
			if rv == nil {
				return true
			}
			if rv.GetSchemaname() == "" && cteNames[strings.ToLower(rv.GetRelname())] {
				return true
			}
			parts := identifierAt(s.text, int(rv.GetLocation()))
			if fallback := qualifiedParts(rv); len(parts) != len(fallback) {
				parts = fallback
			}
			names = append(names, strings.Join(parts, "."))
			return true
		})
	}
	return names
}

// ExtractTableNames разбирает запрос и возвращает имена таблиц
func ExtractTableNames(query, dialect string) ([]string, error) {
	stmt, err := Parse(query, dialect)
	if err != nil {
		return nil, err
	}
	return stmt.TableNames(), nil
}

// Validate проверяет, что запрос разбирается парсером
func Validate(query, dialect string) error {
	_, err := Parse(query, dialect)
	return err
}

// Walk обходит все узлы Node в дереве в порядке объявления полей.
// fn возвращает false, чтобы остановить обход.
func Walk(root *pg_query.Node, fn func(*pg_query.Node) bool) {
	if root == nil {
		return
	}
	walkMessage(root.ProtoReflect(), fn)
}

func walkMessage(m protoreflect.Message, fn func(*pg_query.Node) bool) bool {
	if !m.IsValid() {
		return true
	}
	if n, ok := m.Interface().(*pg_query.Node); ok {
		if !fn(n) {
			return false
		}
	}

	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() != protoreflect.MessageKind || fd.IsMap() || !m.Has(fd) {
			continue
		}
		v := m.Get(fd)
		if fd.IsList() {
			list := v.List()
			for j := 0; j < list.Len(); j++ {
				if !walkMessage(list.Get(j).Message(), fn) {
					return false
				}
			}
			continue
		}
		if !walkMessage(v.Message(), fn) {
			return false
		}
	}
	return true
}

// qualifiedParts части имени из дерева разбора (имена без кавычек приведены к нижнему регистру)
func qualifiedParts(rv *pg_query.RangeVar) []string {
	var parts []string
	for _, p := range []string{rv.GetCatalogname(), rv.GetSchemaname(), rv.GetRelname()} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// identifierAt читает (возможно составное) имя с позиции pos и возвращает его части
func identifierAt(text string, pos int) []string {
	if pos < 0 || pos >= len(text) {
		return nil
	}
	var parts []string
	i := pos
	for i < len(text) {
		var part string
		if text[i] == '"' {
			j := i + 1
			var b strings.Builder
			for j < len(text) {
				if text[j] == '"' {
					if j+1 < len(text) && text[j+1] == '"' {
						b.WriteByte('"')
						j += 2
						continue
					}
					break
				}
				b.WriteByte(text[j])
				j++
			}
			part = b.String()
			i = j + 1
		} else {
			j := i
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			if j == i {
				break
			}
			part = text[i:j]
			i = j
		}
		parts = append(parts, part)
		if i < len(text) && text[i] == '.' {
			i++
			continue
		}
		break
	}
	return parts
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// requote переводит идентификаторы в кавычках диалекта (`a`, [a]) в двойные
// кавычки. Удвоенная закрывающая кавычка внутри имени означает один символ,
// двойная кавычка внутри имени удваивается.
func requote(s string, open, close byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if end := sqlast.QuotedEnd(s, i, plainQuotes); end >= 0 {
			b.WriteString(s[i : end+1])
			i = end
			continue
		}
		c := s[i]
		if c != open {
			b.WriteByte(c)
			continue
		}
		var name strings.Builder
		j := i + 1
		closed := false
		for j < len(s) {
			if s[j] == close {
				if j+1 < len(s) && s[j+1] == close {
					name.WriteByte(close)
					j += 2
					continue
				}
				closed = true
				break
			}
			name.WriteByte(s[j])
			j++
		}
		if !closed {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(`"` + strings.ReplaceAll(name.String(), `"`, `""`) + `"`)
		i = j
	}
	return b.String()
}
