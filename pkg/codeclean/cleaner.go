// Package codeclean проверяет сгенерированный Python код перед выполнением.
//
// Cleaner удаляет переопределение execute_sql_query, пропускает SQL
// литералы через allow-list таблиц загруженных датасетов, переносит
// пути графиков во временные файлы каталога графиков и убирает plt.show().
package codeclean

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/sqlparse"
)

// DefaultChartsDir каталог временных графиков по умолчанию
const DefaultChartsDir = "exports/charts"

// SQLFunction примитив выполнения SQL в песочнице
const SQLFunction = "execute_sql_query"

var (
	pngLiteral = regexp.MustCompile(`'[^'"]*\.png'|"[^'"]*\.png"`)
	showLine   = regexp.MustCompile(`(?m)^[ \t]*plt\.show\(\)[ \t]*(#[^\n]*)?\r?\n?`)
	showCall   = regexp.MustCompile(`plt\.show\(\)`)
)

// queryVars переменные, значения которых считаются SQL
var queryVars = map[string]bool{
	"sql_query": true,
	"query":     true,
}

// Cleaner очиститель кода для текущего набора датасетов
type Cleaner struct {
	// Datasets имена схем загруженных датасетов
	Datasets  []string
	ChartsDir string
	// Dialect грамматика для извлечения таблиц, по умолчанию duckdb
	Dialect string
	Audit   audit.Logger
}

// New создает очиститель с каталогом графиков по умолчанию
func New(datasets []string) *Cleaner {
	return &Cleaner{Datasets: datasets, ChartsDir: DefaultChartsDir}
}

func (c *Cleaner) dialect() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	return sqlast.DuckDB.Name
}

func (c *Cleaner) chartsDir() string {
	if c.ChartsDir != "" {
		return c.ChartsDir
	}
	return DefaultChartsDir
}

// allowed отображение имен таблиц в имена схем, в том числе в кавычках
func (c *Cleaner) allowed() map[string]string {
	out := make(map[string]string, 2*len(c.Datasets))
	for _, name := range c.Datasets {
		out[name] = name
		out[`"`+name+`"`] = name
	}
	return out
}

// ValidateAndClean проверяет, что код обращается к данным через
// execute_sql_query, и затем очищает его
func (c *Cleaner) ValidateAndClean(ctx context.Context, code string) (string, error) {
	if err := RequireSQLCall(ctx, code); err != nil {
		span := audit.Start(c.Audit, audit.OpClean)
		return "", span.Finish(ctx, err)
	}
	return c.Clean(ctx, code)
}

// Clean возвращает очищенный код или MaliciousQueryError
func (c *Cleaner) Clean(ctx context.Context, code string) (string, error) {
	span := audit.Start(c.Audit, audit.OpClean)
	out, err := c.clean(ctx, code)
	if err != nil {
		var mqe *qerrors.MaliciousQueryError
		if errors.As(err, &mqe) {
			span.Entry().WithQuery(mqe.Query)
		}
		return "", span.Finish(ctx, err)
	}
	span.Entry().WithMetadata("datasets", len(c.Datasets))
	return out, span.Finish(ctx, nil)
}

func (c *Cleaner) clean(ctx context.Context, code string) (string, error) {
	code = c.ReplaceOutputFilenames(code)
	code = RemovePlotShow(code)

	src := []byte(code)
	tree, err := parse(ctx, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	w := &walker{src: src, cleaner: c, allowed: c.allowed()}
	if err := w.walk(tree.RootNode()); err != nil {
		return "", err
	}
	return strings.TrimSpace(applyEdits(src, w.edits)), nil
}

// CleanSQL убирает завершающие ';' и заменяет имена таблиц по allow-list
func (c *Cleaner) CleanSQL(query string) (string, error) {
	query = strings.TrimRight(query, ";")
	names, err := c.tableNames(query)
	if err != nil {
		return "", err
	}
	return ReplaceTableNames(query, names, c.allowed())
}

// tableNames извлекает таблицы; неразбираемый SQL дает ConstructionError
// и тоже не пропускается
func (c *Cleaner) tableNames(query string) ([]string, error) {
	names, err := sqlparse.ExtractTableNames(query, c.dialect())
	if err != nil {
		return nil, qerrors.WrapConstruction("Query could not be checked", err)
	}
	return names, nil
}

// ReplaceTableNames заменяет каждое имя таблицы именем из allowed.
// Имя вне allow-list, в том числе составное (schema.table), дает MaliciousQueryError.
func ReplaceTableNames(query string, names []string, allowed map[string]string) (string, error) {
	if err := checkTables(query, names, allowed); err != nil {
		return "", err
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		query = re.ReplaceAllLiteralString(query, allowed[name])
	}
	return query, nil
}

func checkTables(query string, names []string, allowed map[string]string) error {
	for _, name := range names {
		if _, ok := allowed[name]; !ok {
			return qerrors.Malicious(fmt.Sprintf("Query uses unauthorized table: %s.", name), query)
		}
	}
	return nil
}

// ReplaceOutputFilenames подменяет литералы *.png путем temp_chart_<uuid>.png
// в каталоге графиков. Один вызов дает один путь.
func (c *Cleaner) ReplaceOutputFilenames(code string) string {
	path := filepath.Join(c.chartsDir(), "temp_chart_"+uuid.NewString()+".png")
	path = strings.ReplaceAll(path, `\`, `\\`)
	return pngLiteral.ReplaceAllStringFunc(code, func(m string) string {
		q := m[:1]
		return q + path + q
	})
}

// RemovePlotShow удаляет вызовы plt.show()
func RemovePlotShow(code string) string {
	code = showLine.ReplaceAllString(code, "")
	return showCall.ReplaceAllString(code, "None")
}

// parse разбирает Python код; синтаксическая ошибка возвращается с номером строки
func parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated code: %w", err)
	}
	if root := tree.RootNode(); root.HasError() {
		line := errorLine(root)
		tree.Close()
		return nil, fmt.Errorf("failed to parse generated code: syntax error at line %d", line)
	}
	return tree, nil
}

func errorLine(n *sitter.Node) uint32 {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n.StartPoint().Row + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && child.HasError() {
			return errorLine(child)
		}
	}
	return n.StartPoint().Row + 1
}

// edit замена диапазона байт исходника
type edit struct {
	start, end uint32
	text       string
}

func applyEdits(src []byte, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := src
	for _, e := range edits {
		next := make([]byte, 0, len(out)-int(e.end-e.start)+len(e.text))
		next = append(next, out[:e.start]...)
		next = append(next, e.text...)
		next = append(next, out[e.end:]...)
		out = next
	}
	return string(out)
}
