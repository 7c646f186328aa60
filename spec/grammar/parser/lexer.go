package parser

import (
	"io"
	"strings"
	"unicode/utf8"

	verr "github.com/nihei9/sapling/error"
)

type tokenKind string

const (
	tokenKindKWFragment          = tokenKind("fragment")
	tokenKindID                  = tokenKind("id")
	tokenKindTerminalPattern     = tokenKind("terminal pattern")
	tokenKindStringLiteral       = tokenKind("string")
	tokenKindColon               = tokenKind(":")
	tokenKindOr                  = tokenKind("|")
	tokenKindSemicolon           = tokenKind(";")
	tokenKindLabelMarker         = tokenKind("@")
	tokenKindDirectiveMarker     = tokenKind("#")
	tokenKindOrderedSymbolMarker = tokenKind("$")
	tokenKindLParen              = tokenKind("(")
	tokenKindRParen              = tokenKind(")")
	tokenKindEOF                 = tokenKind("eof")
	tokenKindInvalid             = tokenKind("invalid")
)

var symbolKinds = map[byte]tokenKind{
	':': tokenKindColon,
	'|': tokenKindOr,
	';': tokenKindSemicolon,
	'@': tokenKindLabelMarker,
	'#': tokenKindDirectiveMarker,
	'$': tokenKindOrderedSymbolMarker,
	'(': tokenKindLParen,
	')': tokenKindRParen,
}

type token struct {
	kind tokenKind
	text string
	pos  Position
}

func newSymbolToken(kind tokenKind, pos Position) *token {
	return &token{
		kind: kind,
		pos:  pos,
	}
}

func newIDToken(text string, pos Position) *token {
	return &token{
		kind: tokenKindID,
		text: text,
		pos:  pos,
	}
}

func newTerminalPatternToken(text string, pos Position) *token {
	return &token{
		kind: tokenKindTerminalPattern,
		text: text,
		pos:  pos,
	}
}

func newStringLiteralToken(text string, pos Position) *token {
	return &token{
		kind: tokenKindStringLiteral,
		text: text,
		pos:  pos,
	}
}

func newEOFToken() *token {
	return &token{
		kind: tokenKindEOF,
	}
}

func newInvalidToken(text string, pos Position) *token {
	return &token{
		kind: tokenKindInvalid,
		text: text,
		pos:  pos,
	}
}

type lexer struct {
	src []byte
	off int
	row int
	col int
}

func newLexer(src io.Reader) (*lexer, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return &lexer{
		src: b,
		row: 1,
		col: 1,
	}, nil
}

func (l *lexer) next() (*token, error) {
	l.skipSpacesAndComments()

	pos := newPosition(l.row, l.col)
	c, ok := l.peek()
	if !ok {
		return newEOFToken(), nil
	}

	if kind, ok := symbolKinds[c]; ok {
		l.read()
		return newSymbolToken(kind, pos), nil
	}

	switch {
	case isIDChar(c):
		return l.lexID(pos)
	case c == '"':
		return l.lexPattern(pos)
	case c == '\'':
		return l.lexString(pos)
	}

	var b strings.Builder
	b.WriteRune(l.read())
	for {
		c, ok := l.peek()
		if !ok || isTokenHead(c) || isSpace(c) {
			break
		}
		b.WriteRune(l.read())
	}
	return newInvalidToken(b.String(), pos), nil
}

func (l *lexer) lexID(pos Position) (*token, error) {
	var b strings.Builder
	for {
		c, ok := l.peek()
		if !ok || !isIDChar(c) {
			break
		}
		l.read()
		b.WriteByte(c)
	}
	id := b.String()

	if id == "fragment" {
		return newSymbolToken(tokenKindKWFragment, pos), nil
	}

	var cause *SyntaxError
	switch {
	case strings.IndexFunc(id, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0:
		cause = synErrIDInvalidChar
	case id[0] >= '0' && id[0] <= '9':
		cause = synErrIDInvalidDigitsPos
	case id[0] == '_' || id[len(id)-1] == '_':
		cause = synErrIDInvalidUnderscorePos
	case strings.Contains(id, "__"):
		cause = synErrIDConsecutiveUnderscores
	}
	if cause != nil {
		return nil, &verr.SpecError{
			Cause:  cause,
			Detail: id,
			Row:    pos.Row,
			Col:    pos.Col,
		}
	}

	return newIDToken(id, pos), nil
}

// lexPattern reads a regular expression enclosed in double quotes. The escape
// sequences are interpreted by the lexical compiler, except for the \" that
// terminates the pattern.
func (l *lexer) lexPattern(pos Position) (*token, error) {
	l.read()
	var b strings.Builder
	for {
		c, ok := l.peek()
		if !ok {
			return nil, l.errorAt(synErrUnclosedTerminal)
		}
		r := l.read()
		switch c {
		case '\\':
			if _, ok := l.peek(); !ok {
				return nil, l.errorAt(synErrIncompletedEscSeq)
			}
			n := l.read()
			if n != '"' {
				b.WriteByte('\\')
			}
			b.WriteRune(n)
		case '"':
			pat := b.String()
			if pat == "" {
				return nil, l.errorAt(synErrEmptyPattern)
			}
			return newTerminalPatternToken(pat, pos), nil
		default:
			b.WriteRune(r)
		}
	}
}

// lexString reads a string literal enclosed in single quotes. A string has no
// escape sequences; every character stands for itself.
func (l *lexer) lexString(pos Position) (*token, error) {
	l.read()
	var b strings.Builder
	for {
		c, ok := l.peek()
		if !ok {
			return nil, l.errorAt(synErrUnclosedString)
		}
		r := l.read()
		if c == '\'' {
			str := b.String()
			if str == "" {
				return nil, l.errorAt(synErrEmptyString)
			}
			return newStringLiteralToken(str, pos), nil
		}
		b.WriteRune(r)
	}
}

func (l *lexer) skipSpacesAndComments() {
	for {
		c, ok := l.peek()
		if !ok {
			return
		}
		switch {
		case isSpace(c):
			l.read()
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '/':
			for {
				c, ok := l.peek()
				if !ok || c == '\n' {
					break
				}
				l.read()
			}
		default:
			return
		}
	}
}

func (l *lexer) peek() (byte, bool) {
	if l.off >= len(l.src) {
		return 0, false
	}
	return l.src[l.off], true
}

func (l *lexer) read() rune {
	r, size := utf8.DecodeRune(l.src[l.off:])
	l.off += size
	switch r {
	case '\n':
		l.row++
		l.col = 1
	case '\r':
		if l.off >= len(l.src) || l.src[l.off] != '\n' {
			l.row++
			l.col = 1
		}
	default:
		l.col++
	}
	return r
}

func (l *lexer) errorAt(cause *SyntaxError) error {
	return &verr.SpecError{
		Cause: cause,
		Row:   l.row,
		Col:   l.col,
	}
}

func isIDChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isTokenHead(c byte) bool {
	if _, ok := symbolKinds[c]; ok {
		return true
	}
	return isIDChar(c) || c == '"' || c == '\'' || c == '/'
}
