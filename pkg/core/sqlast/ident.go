package sqlast

import (
	"regexp"
	"strings"
)

// simpleName простой идентификатор с необязательным хвостовым комментарием "--"
var simpleName = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(--.*)?$`)

// NormalizeName нормализует имя идентификатора.
//
// Простое имя (буквы, цифры, '_') приводится к нижнему регистру, хвостовой
// комментарий "--" отбрасывается. Любое другое имя сохраняется как есть и
// после Quote становится одним непрозрачным идентификатором.
func NormalizeName(name string) string {
	if m := simpleName.FindStringSubmatch(name); m != nil {
		return strings.ToLower(m[1])
	}
	return name
}

// IsSimpleName имя является простым идентификатором
func IsSimpleName(name string) bool {
	m := simpleName.FindStringSubmatch(name)
	return m != nil && m[2] == ""
}

// QuoteLiteral заключает строку в одинарные кавычки, удваивая кавычки внутри
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
