package sqlast

import (
	"fmt"
	"strconv"
	"strings"
)

// BindStyle стиль маркеров параметров драйвера
type BindStyle int

const (
	// BindQuestion маркеры ? (duckdb, mysql, sqlite)
	BindQuestion BindStyle = iota
	// BindDollar маркеры $1, $2 (pgx)
	BindDollar
	// BindAtP маркеры @p1, @p2 (go-mssqldb)
	BindAtP
)

// CanonicalMarker канонический маркер параметра в сгенерированном SQL
const CanonicalMarker = "%s"

// Dialect описывает различия SQL диалектов, которые учитывает генератор
type Dialect struct {
	Name       string
	QuoteOpen  string
	QuoteClose string
	// ILike диалект поддерживает ILIKE
	ILike bool
	// OffsetFetch постраничность через OFFSET ... FETCH NEXT (MS SQL)
	OffsetFetch bool
	Bind        BindStyle
}

var (
	DuckDB   = Dialect{Name: "duckdb", QuoteOpen: `"`, QuoteClose: `"`, ILike: true, Bind: BindQuestion}
	Postgres = Dialect{Name: "postgres", QuoteOpen: `"`, QuoteClose: `"`, ILike: true, Bind: BindDollar}
	MySQL    = Dialect{Name: "mysql", QuoteOpen: "`", QuoteClose: "`", Bind: BindQuestion}
	SQLite   = Dialect{Name: "sqlite", QuoteOpen: `"`, QuoteClose: `"`, Bind: BindQuestion}
	MSSQL    = Dialect{Name: "mssql", QuoteOpen: "[", QuoteClose: "]", OffsetFetch: true, Bind: BindAtP}
)

var dialects = map[string]Dialect{
	"duckdb":     DuckDB,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"mysql":      MySQL,
	"sqlite":     SQLite,
	"mssql":      MSSQL,
	"sqlserver":  MSSQL,
}

// DialectByName возвращает диалект по имени
func DialectByName(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported SQL dialect: %s", name)
	}
	return d, nil
}

// Quote заключает имя в кавычки диалекта, экранируя закрывающую кавычку удвоением
func (d Dialect) Quote(name string) string {
	escaped := strings.ReplaceAll(name, d.QuoteClose, d.QuoteClose+d.QuoteClose)
	return d.QuoteOpen + escaped + d.QuoteClose
}

// Identifier нормализует и заключает в кавычки имя таблицы или колонки
func (d Dialect) Identifier(name string) string {
	return d.Quote(NormalizeName(name))
}

// BindParams переводит канонические маркеры %s в стиль драйвера.
// Маркеры внутри строковых литералов и идентификаторов в кавычках не трогаются.
func (d Dialect) BindParams(sql string) string {
	if !strings.Contains(sql, CanonicalMarker) {
		return sql
	}
	quotes := d.Quotes()
	var b strings.Builder
	n := 0
	for i := 0; i < len(sql); i++ {
		if end := QuotedEnd(sql, i, quotes); end >= 0 {
			b.WriteString(sql[i : end+1])
			i = end
			continue
		}
		c := sql[i]
		if c == '%' && i+1 < len(sql) && sql[i+1] == 's' {
			n++
			switch d.Bind {
			case BindDollar:
				b.WriteString("$" + strconv.Itoa(n))
			case BindAtP:
				b.WriteString("@p" + strconv.Itoa(n))
			default:
				b.WriteByte('?')
			}
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CountParams количество канонических маркеров вне строк и идентификаторов в кавычках
func CountParams(sql string) int {
	n := 0
	for i := 0; i < len(sql); i++ {
		if end := QuotedEnd(sql, i, AllQuotes); end >= 0 {
			i = end
			continue
		}
		if sql[i] == '%' && i+1 < len(sql) && sql[i+1] == 's' {
			n++
			i++
		}
	}
	return n
}
