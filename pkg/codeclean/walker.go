package codeclean

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// walker собирает правки дерева разбора
type walker struct {
	src     []byte
	cleaner *Cleaner
	allowed map[string]string
	edits   []edit
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) walk(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "function_definition":
			if w.isSQLFunction(child) {
				w.remove(child)
				continue
			}
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil && w.isSQLFunction(def) {
				w.remove(child)
				continue
			}
		case "assignment":
			left := child.ChildByFieldName("left")
			right := child.ChildByFieldName("right")
			if left != nil && right != nil && left.Type() == "identifier" && queryVars[w.text(left)] {
				if err := w.rewrite(right); err != nil {
					return err
				}
			}
		case "call":
			if arg := w.sqlArgument(child); arg != nil {
				if err := w.rewrite(arg); err != nil {
					return err
				}
			}
		}

		if err := w.walk(child); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) isSQLFunction(n *sitter.Node) bool {
	if n.Type() != "function_definition" {
		return false
	}
	name := n.ChildByFieldName("name")
	return name != nil && w.text(name) == SQLFunction
}

// sqlArgument единственный позиционный аргумент вызова execute_sql_query
func (w *walker) sqlArgument(call *sitter.Node) *sitter.Node {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || w.text(fn) != SQLFunction {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() != "argument_list" {
		return nil
	}

	var arg *sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		if arg != nil {
			return nil
		}
		arg = child
	}
	return arg
}

// remove удаляет узел вместе с переводом строки за ним
func (w *walker) remove(n *sitter.Node) {
	end := n.EndByte()
	if int(end) < len(w.src) && w.src[end] == '\n' {
		end++
	}
	w.edits = append(w.edits, edit{start: n.StartByte(), end: end})
}

// rewrite чистит строковый литерал SQL; прочие выражения не трогаются
func (w *walker) rewrite(n *sitter.Node) error {
	for n.Type() == "parenthesized_expression" && n.NamedChildCount() == 1 {
		n = n.NamedChild(0)
	}

	var nodes []*sitter.Node
	switch n.Type() {
	case "string":
		nodes = []*sitter.Node{n}
	case "concatenated_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if part := n.NamedChild(i); part != nil && part.Type() == "string" {
				nodes = append(nodes, part)
			}
		}
	default:
		return nil
	}

	parts := make([]literal, 0, len(nodes))
	for _, node := range nodes {
		lit, ok := parseLiteral(w.text(node))
		if !ok {
			return nil
		}
		parts = append(parts, lit)
	}
	if len(parts) == 0 {
		return nil
	}

	bodies, err := w.cleanParts(parts)
	if err != nil {
		return err
	}
	for i, node := range nodes {
		text := parts[i].with(bodies[i])
		if text != w.text(node) {
			w.edits = append(w.edits, edit{start: node.StartByte(), end: node.EndByte(), text: text})
		}
	}
	return nil
}

// cleanParts проверяет склеенный SQL и заменяет таблицы в каждой части
func (w *walker) cleanParts(parts []literal) ([]string, error) {
	bodies := make([]string, len(parts))
	var sql strings.Builder
	for i, p := range parts {
		body := p.body
		if i == len(parts)-1 {
			body = strings.TrimRight(body, ";")
		}
		bodies[i] = body
		sql.WriteString(p.decode(body))
	}

	query := sql.String()
	names, err := w.cleaner.tableNames(query)
	if err != nil {
		return nil, err
	}
	if err := checkTables(query, names, w.allowed); err != nil {
		return nil, err
	}
	for i := range bodies {
		if bodies[i], err = ReplaceTableNames(bodies[i], names, w.allowed); err != nil {
			return nil, err
		}
	}
	return bodies, nil
}
