// Package lexer reads tokens from an arbitrary offset of a source using the DFAs of
// a compiled grammar. The parser picks the lex mode of each token from its current
// state, so the same text can be read as different tokens in different contexts.
package lexer

import (
	"unicode/utf8"

	"github.com/nihei9/sapling/language"
	spec "github.com/nihei9/sapling/spec/grammar"
)

type ModeID int

func (id ModeID) Int() int {
	return int(id)
}

const ModeIDDefault = ModeID(spec.LexModeIDDefault)

type StateID int

func (id StateID) Int() int {
	return int(id)
}

type KindID int

func (id KindID) Int() int {
	return int(id)
}

type ModeKindID int

func (id ModeKindID) Int() int {
	return int(id)
}

// Source is a random-access view of the text being lexed.
type Source interface {
	Len() int
	ByteAt(offset int) byte
}

// Token represents a token.
type Token struct {
	// Mode is the lex mode in which the token was read. It differs from the requested
	// mode when the lexer fell back to the default mode.
	Mode ModeID

	// KindID is an ID of a lexical kind. This is unique among all modes.
	KindID KindID

	// Terminal is the terminal symbol the kind stands for.
	Terminal language.Symbol

	// Start and End are the byte range of the lexeme.
	Start int
	End   int

	// LookaheadEnd is one past the last byte the lexer examined to decide the token.
	// A change anywhere before it can change the token.
	LookaheadEnd int

	// When this field is true, it means the token is the EOF token.
	EOF bool

	// When this field is true, it means the token is an error token covering one code point.
	Invalid bool

	// When this field is true, it means the token is a skip token.
	Skip bool
}

func (t *Token) Len() int {
	return t.End - t.Start
}

func (t *Token) Lexeme(src Source) []byte {
	b := make([]byte, 0, t.Len())
	for i := t.Start; i < t.End; i++ {
		b = append(b, src.ByteAt(i))
	}
	return b
}

type Lexer struct {
	lang *language.Language
	spec *lexSpec
	src  Source
}

// NewLexer returns a new lexer.
func NewLexer(lang *language.Language, src Source) *Lexer {
	return &Lexer{
		lang: lang,
		spec: newLexSpec(lang.LexSpec()),
		src:  src,
	}
}

// Next returns the first token that is not a skip token at or after offset, along
// with the skip tokens preceding it.
func (l *Lexer) Next(offset int, mode ModeID) (*Token, []*Token) {
	var extras []*Token
	for {
		tok := l.Read(offset, mode)
		if !tok.Skip {
			return tok, extras
		}
		extras = append(extras, tok)
		offset = tok.End
	}
}

// Read returns one token at offset. The longest lexeme wins, and the kind declared
// first wins among lexemes of the same length. When no kind of the mode matches, the
// default mode is tried. When that also fails, the lexer returns an invalid token
// covering one code point.
func (l *Lexer) Read(offset int, mode ModeID) *Token {
	if offset >= l.src.Len() {
		return &Token{
			Mode:         mode,
			Terminal:     l.lang.EOF(),
			Start:        offset,
			End:          offset,
			LookaheadEnd: offset + 1,
			EOF:          true,
		}
	}

	if mode <= 0 || mode.Int() >= l.spec.modeCount() {
		mode = ModeIDDefault
	}
	tok, lookahead := l.lex(offset, mode)
	if tok == nil && mode != ModeIDDefault {
		var la int
		tok, la = l.lex(offset, ModeIDDefault)
		if la > lookahead {
			lookahead = la
		}
	}
	if tok == nil {
		end := offset + l.codePointLen(offset)
		if end > lookahead {
			lookahead = end
		}
		return &Token{
			Mode:         mode,
			Terminal:     l.lang.Error(),
			Start:        offset,
			End:          end,
			LookaheadEnd: lookahead,
			Invalid:      true,
		}
	}
	tok.LookaheadEnd = lookahead
	return tok
}

// lex runs the DFA of a mode from offset. It returns the longest accepted token, or
// nil, and one past the last byte it examined. Reaching the end of the source counts
// as examining one more byte.
func (l *Lexer) lex(offset int, mode ModeID) (*Token, int) {
	state := l.spec.initialState(mode)
	var tok *Token
	p := offset
	for {
		if p >= l.src.Len() {
			return tok, l.src.Len() + 1
		}
		next, ok := l.spec.nextState(mode, state, int(l.src.ByteAt(p)))
		p++
		if !ok {
			return tok, p
		}
		state = next
		if modeKindID, ok := l.spec.accept(mode, state); ok {
			kindID := l.spec.kindID(mode, modeKindID)
			term := l.lang.KindToTerminal(kindID.Int())
			tok = &Token{
				Mode:     mode,
				KindID:   kindID,
				Terminal: term,
				Start:    offset,
				End:      p,
				Skip:     l.lang.IsSkip(term),
			}
		}
	}
}

func (l *Lexer) codePointLen(offset int) int {
	var buf [utf8.UTFMax]byte
	n := 0
	for n < utf8.UTFMax && offset+n < l.src.Len() {
		buf[n] = l.src.ByteAt(offset + n)
		n++
	}
	_, size := utf8.DecodeRune(buf[:n])
	if size < 1 {
		return 1
	}
	return size
}

// ModeName returns the name of a lex mode.
func (l *Lexer) ModeName(mode ModeID) string {
	return l.spec.modeName(mode)
}
