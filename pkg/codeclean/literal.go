package codeclean

import "strings"

// literal строковый литерал Python: префикс, кавычки и тело как в исходнике
type literal struct {
	prefix string
	quote  string
	body   string
}

// parseLiteral разбирает литерал. f- и b-строки не считаются SQL.
func parseLiteral(text string) (literal, bool) {
	i := 0
	for i < len(text) && strings.IndexByte("rRuUbBfF", text[i]) >= 0 {
		i++
	}
	prefix := text[:i]
	if strings.ContainsAny(prefix, "bBfF") {
		return literal{}, false
	}

	rest := text[i:]
	var quote string
	switch {
	case strings.HasPrefix(rest, `"""`), strings.HasPrefix(rest, `'''`):
		quote = rest[:3]
	case strings.HasPrefix(rest, `"`), strings.HasPrefix(rest, `'`):
		quote = rest[:1]
	default:
		return literal{}, false
	}
	if len(rest) < 2*len(quote) || !strings.HasSuffix(rest, quote) {
		return literal{}, false
	}
	return literal{
		prefix: prefix,
		quote:  quote,
		body:   rest[len(quote) : len(rest)-len(quote)],
	}, true
}

func (l literal) raw() bool {
	return strings.ContainsAny(l.prefix, "rR")
}

// with собирает литерал с новым телом
func (l literal) with(body string) string {
	return l.prefix + l.quote + body + l.quote
}

// decode значение тела для разбора SQL
func (l literal) decode(body string) string {
	if l.raw() || !strings.Contains(body, `\`) {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		case '\n':
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
