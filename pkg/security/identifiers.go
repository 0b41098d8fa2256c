package security

import (
	"path/filepath"
	"regexp"
	"strings"
)

// MaxIdentifierLength предел длины имени таблицы или колонки
const MaxIdentifierLength = 64

var (
	nonWordChars      = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	nonLowerWordChars = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRuns    = regexp.MustCompile(`_+`)
)

// reservedReplacements похожие на ключевые слова SQL имена и их замены
var reservedReplacements = []struct {
	word        *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\bdesc\b`), "description"},
	{regexp.MustCompile(`\bcontrol\b`), "ctrl"},
	{regexp.MustCompile(`\bcode\b`), "id"},
	{regexp.MustCompile(`\boriginal\b`), "source"},
	{regexp.MustCompile(`\bstatus\b`), "state"},
	{regexp.MustCompile(`\bcount\b`), "quantity"},
	{regexp.MustCompile(`\bnumber\b`), "num"},
}

// SanitizeSQLTableName заменяет недопустимые символы на '_' и обрезает до 64 символов
func SanitizeSQLTableName(name string) string {
	sanitized := nonWordChars.ReplaceAllString(name, "_")
	if len(sanitized) > MaxIdentifierLength {
		sanitized = sanitized[:MaxIdentifierLength]
	}
	return sanitized
}

// SanitizeFileName имя файла без расширения как имя таблицы в нижнем регистре
func SanitizeFileName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(SanitizeSQLTableName(base))
}

// SanitizeViewColumnName применяет SanitizeSQLTableName к каждой части "dataset.column"
func SanitizeViewColumnName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = SanitizeSQLTableName(p)
	}
	return strings.Join(parts, ".")
}

// NormalizeIdentifier нижний регистр, недопустимые символы в '_',
// схлопывание повторных '_', без '_' по краям, не длиннее 64 символов
func NormalizeIdentifier(name string) string {
	s := strings.ToLower(name)
	s = nonLowerWordChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxIdentifierLength {
		s = strings.TrimRight(s[:MaxIdentifierLength], "_")
	}
	return s
}

// SafeColumnName NormalizeIdentifier плюс замена похожих на ключевые слова имен
// (desc -> description, status -> state, ...). Гигиена имен, не граница безопасности.
func SafeColumnName(name string) string {
	s := NormalizeIdentifier(name)
	for _, r := range reservedReplacements {
		s = r.word.ReplaceAllString(s, r.replacement)
	}
	return s
}
