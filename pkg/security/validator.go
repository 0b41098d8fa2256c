package security

import (
	"fmt"
	"regexp"

	"github.com/ruslano69/semlayer/pkg/sqlparse"
)

// forbiddenPatterns запрещенные ключевые слова и комментарии.
// Проверяются без учета регистра по границам слов на сыром тексте запроса
// и на тексте каждого подзапроса.
//
// REPLACE запрещен только в форме REPLACE INTO: функция REPLACE(x, a, b)
// генерируется трансформацией replace и сама по себе ничего не изменяет.
var forbiddenPatterns = []string{
	`\bINSERT\b`,
	`\bUPDATE\b`,
	`\bDELETE\b`,
	`\bDROP\b`,
	`\bEXEC\b`,
	`\bALTER\b`,
	`\bCREATE\b`,
	`\bMERGE\b`,
	`\bREPLACE\s+INTO\b`,
	`\bTRUNCATE\b`,
	`\bLOAD\b`,
	`\bGRANT\b`,
	`\bREVOKE\b`,
	`\bCALL\b`,
	`\bEXECUTE\b`,
	`\bSHOW\b`,
	`\bDESCRIBE\b`,
	`\bEXPLAIN\b`,
	`\bUSE\b`,
	`\bSET\b`,
	`\bDECLARE\b`,
	`\bOPEN\b`,
	`\bFETCH\b`,
	`\bCLOSE\b`,
	`\bSLEEP\b`,
	`\bBENCHMARK\b`,
	`\bDATABASE\b`,
	`\bUSER\b`,
	`\bCURRENT_USER\b`,
	`\bSESSION_USER\b`,
	`\bSYSTEM_USER\b`,
	`\bVERSION\b`,
	`@@VERSION\b`,
	`\bPRAGMA\b`,
	`\bATTACH\b`,
	`\bDETACH\b`,
	`\bCOPY\b`,
	`--`,
	`(?s)/\*.*\*/`,
}

var forbiddenRegexes = compileForbidden()

// mssqlPaging постраничность OFFSET/FETCH, которую генерирует диалект MS SQL,
// в том числе внутри подзапросов. Допускаются только числа и маркеры параметров.
var mssqlPaging = regexp.MustCompile(`(?i)\bOFFSET\s+` + pagingOperand + `\s+ROWS?\s+FETCH\s+(NEXT|FIRST)\s+` +
	pagingOperand + `\s+ROWS?\s+ONLY\b`)

const pagingOperand = `(\d+|%s|\?|@p\d+|` + sqlparse.Placeholder + `)`

func compileForbidden() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(forbiddenPatterns))
	for i, p := range forbiddenPatterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// SQLValidator проверяет, что SQL запрос является безопасным SELECT
// для заданного диалекта.
type SQLValidator struct {
	dialect string
}

// NewSQLValidator создает валидатор для диалекта (duckdb, postgres, mysql, sqlite, mssql)
func NewSQLValidator(dialect string) *SQLValidator {
	return &SQLValidator{dialect: dialect}
}

// Validate проверяет запрос и возвращает причину отказа.
//
// Проверки:
//   - запрос разбирается парсером (ошибка разбора означает отказ)
//   - корневой оператор один и это SELECT
//   - в тексте нет запрещенных ключевых слов и комментариев
//   - в тексте каждого подзапроса нет запрещенных ключевых слов
func (v *SQLValidator) Validate(query string) error {
	stmt, err := sqlparse.Parse(query, v.dialect)
	if err != nil {
		return err
	}

	if !stmt.IsSelect() {
		return fmt.Errorf("only a single SELECT statement is allowed")
	}

	if kw := findForbidden(v.stripPaging(query)); kw != "" {
		return fmt.Errorf("forbidden keyword '%s' found", kw)
	}

	subqueries, err := stmt.Subqueries()
	if err != nil {
		return err
	}
	for _, sub := range subqueries {
		if kw := findForbidden(v.stripPaging(sub)); kw != "" {
			return fmt.Errorf("forbidden keyword '%s' found in subquery", kw)
		}
	}

	return nil
}

// stripPaging убирает из текста OFFSET/FETCH диалекта MS SQL
func (v *SQLValidator) stripPaging(sql string) string {
	if v.dialect != "mssql" {
		return sql
	}
	return mssqlPaging.ReplaceAllString(sql, " ")
}

// IsSafe возвращает true, если Validate не нашел нарушений
func (v *SQLValidator) IsSafe(query string) bool {
	return v.Validate(query) == nil
}

// IsSafeSelect единая точка проверки динамического SQL перед выполнением
func IsSafeSelect(query, dialect string) bool {
	return NewSQLValidator(dialect).IsSafe(query)
}

func findForbidden(sql string) string {
	for _, re := range forbiddenRegexes {
		if m := re.FindString(sql); m != "" {
			return m
		}
	}
	return ""
}

// sqlLikePatterns пары ключевое слово + контекст, по которым текст
// считается SQL запросом
var sqlLikeRegex = regexp.MustCompile(`(?is)` +
	`\bSELECT\b.*\bFROM\b|` +
	`\bINSERT\b.*\bINTO\b|` +
	`\bUPDATE\b.*\bSET\b|` +
	`\bDELETE\b.*\bFROM\b|` +
	`\bDROP\b.*\b(TABLE|DATABASE)\b|` +
	`\bCREATE\b.*\b(DATABASE|TABLE)\b|` +
	`\bALTER\b.*\bTABLE\b|` +
	`\bJOIN\b.*\bON\b|` +
	`\bWHERE\b`)

// IsProbablySQL эвристика для пользовательских параметров:
// true, если текст похож на SQL запрос
func IsProbablySQL(text string) bool {
	return sqlLikeRegex.MatchString(text)
}
