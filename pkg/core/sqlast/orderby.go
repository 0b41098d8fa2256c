package sqlast

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenType тип токена выражения сортировки
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIllegal
	tokenIdent  // имя колонки
	tokenQuoted // "имя в кавычках"
	tokenDot
	tokenAsc
	tokenDesc
	tokenNulls
	tokenFirst
	tokenLast
)

type token struct {
	typ     tokenType
	literal string
	pos     int
}

// orderLexer лексический анализатор выражения ORDER BY
type orderLexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newOrderLexer(input string) *orderLexer {
	l := &orderLexer{input: input}
	l.readChar()
	return l
}

func (l *orderLexer) next() token {
	l.skipWhitespace()
	tok := token{pos: l.pos}

	switch {
	case l.ch == 0:
		tok.typ = tokenEOF
		return tok
	case l.ch == '.':
		tok.typ = tokenDot
		tok.literal = "."
	case l.ch == '"':
		lit, ok := l.readQuoted()
		if !ok {
			tok.typ = tokenIllegal
			tok.literal = l.input[tok.pos:]
			return tok
		}
		tok.typ = tokenQuoted
		tok.literal = lit
		return tok
	case isLetter(l.ch) || l.ch == '_':
		tok.literal = l.readIdentifier()
		tok.typ = lookupOrderKeyword(tok.literal)
		return tok
	default:
		tok.typ = tokenIllegal
		tok.literal = string(l.ch)
	}

	l.readChar()
	return tok
}

func (l *orderLexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *orderLexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *orderLexer) readIdentifier() string {
	position := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.pos]
}

// readQuoted читает идентификатор в двойных кавычках, "" внутри означает одну кавычку
func (l *orderLexer) readQuoted() (string, bool) {
	var b strings.Builder
	l.readChar() // открывающая кавычка
	for {
		switch {
		case l.ch == 0:
			return "", false
		case l.ch == '"' && l.peekChar() == '"':
			b.WriteByte('"')
			l.readChar()
			l.readChar()
		case l.ch == '"':
			l.readChar()
			return b.String(), true
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func (l *orderLexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return ch < 0x80 && unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func lookupOrderKeyword(ident string) tokenType {
	switch strings.ToUpper(ident) {
	case "ASC":
		return tokenAsc
	case "DESC":
		return tokenDesc
	case "NULLS":
		return tokenNulls
	case "FIRST":
		return tokenFirst
	case "LAST":
		return tokenLast
	}
	return tokenIdent
}

// ParseOrderBy разбирает элемент сортировки вида
// column [ASC|DESC] [NULLS FIRST|LAST], где column может быть
// составным ("dataset"."column"). Все остальное считается ошибкой.
func ParseOrderBy(input string) (OrderItem, error) {
	l := newOrderLexer(input)
	tok := l.next()

	id := &Ident{}
	for {
		switch tok.typ {
		case tokenIdent:
			id.Parts = append(id.Parts, Name{Value: tok.literal})
		case tokenQuoted:
			id.Parts = append(id.Parts, Name{Value: tok.literal, Exact: true})
		default:
			return OrderItem{}, orderError(input, tok)
		}
		tok = l.next()
		if tok.typ != tokenDot {
			break
		}
		tok = l.next()
	}

	item := OrderItem{Expr: id}
	if tok.typ == tokenAsc || tok.typ == tokenDesc {
		item.Direction = strings.ToUpper(tok.literal)
		tok = l.next()
	}
	if tok.typ == tokenNulls {
		tok = l.next()
		if tok.typ != tokenFirst && tok.typ != tokenLast {
			return OrderItem{}, orderError(input, tok)
		}
		item.Nulls = strings.ToUpper(tok.literal)
		tok = l.next()
	}
	if tok.typ != tokenEOF {
		return OrderItem{}, orderError(input, tok)
	}
	return item, nil
}

func orderError(input string, tok token) error {
	if tok.typ == tokenEOF {
		return fmt.Errorf("invalid ORDER BY expression %q: unexpected end of input", input)
	}
	return fmt.Errorf("invalid ORDER BY expression %q: unexpected %q at position %d", input, tok.literal, tok.pos)
}
