// Package transform компилирует трансформации схемы в SQL выражения.
//
// Каждая трансформация оборачивает предыдущее выражение, порядок
// применения совпадает с порядком в схеме.
package transform

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// RuleFunc переписывает выражение колонки
type RuleFunc func(expr string, params semantic.Params) (string, error)

// Registry реестр правил переписывания по типу трансформации
type Registry struct {
	mu    sync.RWMutex
	rules map[string]RuleFunc
}

// NewRegistry создает реестр со всеми встроенными правилами
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]RuleFunc)}
	for name, rule := range builtinRules {
		r.rules[name] = rule
	}
	return r
}

// Register регистрирует правило
func (r *Registry) Register(kind string, rule RuleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[kind] = rule
}

// Rule возвращает правило по типу
func (r *Registry) Rule(kind string) (RuleFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[kind]
	return rule, ok
}

// Apply применяет трансформации слева направо
func (r *Registry) Apply(expr string, transformations []semantic.Transformation) (string, error) {
	out := expr
	for _, t := range transformations {
		rule, ok := r.Rule(t.Type)
		if !ok {
			return "", qerrors.Constructionf("Unsupported transformation type: %s", t.Type)
		}
		next, err := rule(out, t.Params)
		if err != nil {
			return "", qerrors.WrapConstruction(fmt.Sprintf("transformation %s failed", t.Type), err)
		}
		out = next
	}
	return out, nil
}

// ApplyColumn применяет к выражению трансформации данной колонки
func (r *Registry) ApplyColumn(expr, column string, transformations []semantic.Transformation) (string, error) {
	return r.Apply(expr, ForColumn(column, transformations))
}

// Validate проверяет, что все трансформации компилируются
func (r *Registry) Validate(transformations []semantic.Transformation) error {
	for _, t := range transformations {
		if _, err := r.Apply("x", []semantic.Transformation{t}); err != nil {
			return err
		}
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Apply применяет трансформации через реестр по умолчанию
func Apply(expr string, transformations []semantic.Transformation) (string, error) {
	return defaultRegistry.Apply(expr, transformations)
}

// ApplyColumn применяет трансформации колонки через реестр по умолчанию
func ApplyColumn(expr, column string, transformations []semantic.Transformation) (string, error) {
	return defaultRegistry.ApplyColumn(expr, column, transformations)
}

// Validate проверяет трансформации через реестр по умолчанию
func Validate(transformations []semantic.Transformation) error {
	return defaultRegistry.Validate(transformations)
}

// ForColumn отбирает трансформации, у которых params.column совпадает
// с именем колонки без учета регистра
func ForColumn(column string, transformations []semantic.Transformation) []semantic.Transformation {
	var out []semantic.Transformation
	for _, t := range transformations {
		if t.Params.Column != "" && strings.EqualFold(t.Params.Column, column) {
			out = append(out, t)
		}
	}
	return out
}

// HasDistinct в схеме есть remove_duplicates
func HasDistinct(transformations []semantic.Transformation) bool {
	for _, t := range transformations {
		if t.Type == "remove_duplicates" {
			return true
		}
	}
	return false
}
