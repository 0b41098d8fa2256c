package sqlast

import "strings"

// AllQuotes открывающие символы строк и идентификаторов всех диалектов
const AllQuotes = "'\"`["

// Quotes открывающие символы, которые диалект не трогает при замене маркеров:
// строки, идентификаторы в двойных кавычках и кавычки самого диалекта
func (d Dialect) Quotes() string {
	q := `'"`
	if d.QuoteOpen != "" && !strings.Contains(q, d.QuoteOpen) {
		q += d.QuoteOpen
	}
	return q
}

// QuotedEnd возвращает позицию закрывающей кавычки для строки или
// идентификатора, который открывается в s[i], либо -1, если s[i] не
// входит в quotes. Удвоенная закрывающая кавычка остается внутри.
// Для незакрытого фрагмента возвращается последний индекс s.
func QuotedEnd(s string, i int, quotes string) int {
	if i >= len(s) || strings.IndexByte(quotes, s[i]) < 0 {
		return -1
	}
	closing := s[i]
	if closing == '[' {
		closing = ']'
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] != closing {
			continue
		}
		if j+1 < len(s) && s[j+1] == closing {
			j++
			continue
		}
		return j
	}
	return len(s) - 1
}

// ReplaceOutside заменяет old на repl вне строк и идентификаторов в кавычках
func ReplaceOutside(s, old, repl, quotes string) string {
	if !strings.Contains(s, old) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if end := QuotedEnd(s, i, quotes); end >= 0 {
			b.WriteString(s[i : end+1])
			i = end
			continue
		}
		if strings.HasPrefix(s[i:], old) {
			b.WriteString(repl)
			i += len(old) - 1
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
