package test

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

type TestCase struct {
	Description string
	Source      []byte
	Output      *Tree
}

func ParseTestCase(r io.Reader) (*TestCase, error) {
	parts, err := splitIntoParts(r)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("too many or too few part delimiters: a test case consists of just tree parts: %v parts found", len(parts))
	}

	tp := &treeParser{
		lineOffset: parts[0].lineCount + parts[1].lineCount + 2,
	}
	tree, err := tp.parseTree(parts[2].buf)
	if err != nil {
		return nil, err
	}

	return &TestCase{
		Description: string(parts[0].buf),
		Source:      parts[1].buf,
		Output:      tree,
	}, nil
}

type testCasePart struct {
	buf       []byte
	lineCount int
}

func splitIntoParts(r io.Reader) ([]*testCasePart, error) {
	var bufs []*testCasePart
	s := bufio.NewScanner(r)
	for {
		buf, lineCount, err := readPart(s)
		if err != nil {
			return nil, err
		}
		if buf == nil {
			break
		}
		bufs = append(bufs, &testCasePart{
			buf:       buf,
			lineCount: lineCount,
		})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return bufs, nil
}

var reDelim = regexp.MustCompile(`^\s*---+\s*$`)

func readPart(s *bufio.Scanner) ([]byte, int, error) {
	if !s.Scan() {
		return nil, 0, s.Err()
	}
	buf := &bytes.Buffer{}
	line := s.Bytes()
	if reDelim.Match(line) {
		// Return an empty slice because (*bytes.Buffer).Bytes() returns nil if we have never written data.
		return []byte{}, 0, nil
	}
	_, err := buf.Write(line)
	if err != nil {
		return nil, 0, err
	}
	lineCount := 1
	for s.Scan() {
		line := s.Bytes()
		if reDelim.Match(line) {
			return buf.Bytes(), lineCount, nil
		}
		_, err := buf.Write([]byte("\n"))
		if err != nil {
			return nil, 0, err
		}
		_, err = buf.Write(line)
		if err != nil {
			return nil, 0, err
		}
		lineCount++
	}
	if err := s.Err(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), lineCount, nil
}

type treeTokenKind string

const (
	treeTokenKindLParen = treeTokenKind("(")
	treeTokenKindRParen = treeTokenKind(")")
	treeTokenKindColon  = treeTokenKind(":")
	treeTokenKindID     = treeTokenKind("id")
	treeTokenKindString = treeTokenKind("string")
	treeTokenKindEOF    = treeTokenKind("eof")
)

type treeToken struct {
	kind treeTokenKind
	text string
	row  int
	col  int
}

// treeParser reads a tree written as an S-expression:
//
//	tree: [field ':'] '(' kind [string | tree...] ')'
//
// A string is either 'raw' or "interpreted", and an interpreted string accepts
// \\, \", \n, \t and \u{XXXX}.
type treeParser struct {
	lineOffset int

	src  []byte
	pos  int
	row  int
	col  int
	peek *treeToken
}

func (tp *treeParser) parseTree(src []byte) (t *Tree, retErr error) {
	tp.src = src
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		if perr, ok := err.(*treeParseError); ok {
			retErr = perr
			return
		}
		panic(err)
	}()

	t = tp.tree()
	if tok := tp.next(); tok.kind != treeTokenKindEOF {
		tp.fail(tok, "unexpected token after a tree: %v", tok.kind)
	}
	return t.Fill(), nil
}

type treeParseError struct {
	row int
	col int
	msg string
}

func (e *treeParseError) Error() string {
	return fmt.Sprintf("%v:%v: %v", e.row, e.col, e.msg)
}

func (tp *treeParser) fail(tok *treeToken, format string, args ...any) {
	panic(&treeParseError{
		row: tp.lineOffset + tok.row + 1,
		col: tok.col + 1,
		msg: fmt.Sprintf(format, args...),
	})
}

func (tp *treeParser) tree() *Tree {
	var field string
	tok := tp.next()
	if tok.kind == treeTokenKindID {
		field = tok.text
		if c := tp.next(); c.kind != treeTokenKindColon {
			tp.fail(c, "a field name must be followed by ':'")
		}
		tok = tp.next()
	}
	if tok.kind != treeTokenKindLParen {
		tp.fail(tok, "a tree must start with '('")
	}
	kind := tp.next()
	if kind.kind != treeTokenKindID {
		tp.fail(kind, "a tree needs a kind")
	}

	t := &Tree{
		Kind:  kind.text,
		Field: field,
	}
	if tp.lookAhead().kind == treeTokenKindString {
		t.Lexeme = tp.next().text
	} else {
		for tp.lookAhead().kind != treeTokenKindRParen {
			if tp.lookAhead().kind == treeTokenKindEOF {
				tp.fail(tp.lookAhead(), "unclosed tree")
			}
			t.Children = append(t.Children, tp.tree())
		}
	}
	if tok := tp.next(); tok.kind != treeTokenKindRParen {
		tp.fail(tok, "a tree must end with ')'")
	}
	return t
}

func (tp *treeParser) lookAhead() *treeToken {
	if tp.peek == nil {
		tp.peek = tp.lex()
	}
	return tp.peek
}

func (tp *treeParser) next() *treeToken {
	tok := tp.lookAhead()
	tp.peek = nil
	return tok
}

func (tp *treeParser) lex() *treeToken {
	for tp.pos < len(tp.src) {
		c := tp.src[tp.pos]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			break
		}
		tp.advance()
	}
	tok := &treeToken{
		row: tp.row,
		col: tp.col,
	}
	if tp.pos >= len(tp.src) {
		tok.kind = treeTokenKindEOF
		return tok
	}

	switch c := tp.src[tp.pos]; {
	case c == '(':
		tp.advance()
		tok.kind = treeTokenKindLParen
	case c == ')':
		tp.advance()
		tok.kind = treeTokenKindRParen
	case c == ':':
		tp.advance()
		tok.kind = treeTokenKindColon
	case c == '\'':
		tp.advance()
		tok.kind = treeTokenKindString
		tok.text = tp.rawString(tok)
	case c == '"':
		tp.advance()
		tok.kind = treeTokenKindString
		tok.text = tp.interpretedString(tok)
	case isIDChar(c):
		start := tp.pos
		for tp.pos < len(tp.src) && isIDChar(tp.src[tp.pos]) {
			tp.advance()
		}
		tok.kind = treeTokenKindID
		tok.text = string(tp.src[start:tp.pos])
	default:
		r, _ := utf8.DecodeRune(tp.src[tp.pos:])
		tp.fail(tok, "invalid character: %q", r)
	}
	return tok
}

func isIDChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func (tp *treeParser) advance() {
	if tp.src[tp.pos] == '\n' {
		tp.row++
		tp.col = 0
	} else {
		tp.col++
	}
	tp.pos++
}

func (tp *treeParser) rawString(tok *treeToken) string {
	start := tp.pos
	for tp.pos < len(tp.src) && tp.src[tp.pos] != '\'' {
		tp.advance()
	}
	if tp.pos >= len(tp.src) {
		tp.fail(tok, "unclosed string")
	}
	s := string(tp.src[start:tp.pos])
	tp.advance()
	return s
}

func (tp *treeParser) interpretedString(tok *treeToken) string {
	var b strings.Builder
	for {
		if tp.pos >= len(tp.src) {
			tp.fail(tok, "unclosed string")
		}
		c := tp.src[tp.pos]
		tp.advance()
		switch c {
		case '"':
			return b.String()
		case '\\':
			if tp.pos >= len(tp.src) {
				tp.fail(tok, "incomplete escape sequence")
			}
			e := tp.src[tp.pos]
			tp.advance()
			switch e {
			case '\\', '"':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'u':
				b.WriteRune(tp.codePoint(tok))
			default:
				tp.fail(tok, "invalid escape sequence: \\%c", e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (tp *treeParser) codePoint(tok *treeToken) rune {
	if tp.pos >= len(tp.src) || tp.src[tp.pos] != '{' {
		tp.fail(tok, "a code point must be enclosed in '{' and '}'")
	}
	tp.advance()
	start := tp.pos
	for tp.pos < len(tp.src) && tp.src[tp.pos] != '}' {
		tp.advance()
	}
	if tp.pos >= len(tp.src) {
		tp.fail(tok, "unclosed code point")
	}
	hex := string(tp.src[start:tp.pos])
	tp.advance()
	n, err := strconv.ParseInt(hex, 16, 64)
	if err != nil {
		tp.fail(tok, "invalid code point: %v", hex)
	}
	if !utf8.ValidRune(rune(n)) {
		tp.fail(tok, "invalid code point: %v", hex)
	}
	return rune(n)
}
