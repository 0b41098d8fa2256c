package codeclean

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ruslano69/semlayer/pkg/qerrors"
)

// RequireSQLCall проверяет, что код хотя бы раз вызывает execute_sql_query.
// Вызов метода с тем же именем (obj.execute_sql_query) не засчитывается.
func RequireSQLCall(ctx context.Context, code string) error {
	calls, err := FunctionCalls(ctx, code)
	if err != nil {
		return err
	}
	for _, name := range calls {
		if name == SQLFunction {
			return nil
		}
	}
	return &qerrors.SQLNotUsedError{}
}

// FunctionCalls возвращает имена вызываемых функций в порядке обхода:
// f для f(...) и obj.attr для obj.attr(...). Прочие вызовы пропускаются.
func FunctionCalls(ctx context.Context, code string) ([]string, error) {
	src := []byte(code)
	tree, err := parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var calls []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "call" {
			if name := callName(n.ChildByFieldName("function"), src); name != "" {
				calls = append(calls, name)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				visit(child)
			}
		}
	}
	visit(tree.RootNode())
	return calls, nil
}

func callName(fn *sitter.Node, src []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(src)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return ""
		}
		return obj.Content(src) + "." + attr.Content(src)
	}
	return ""
}
