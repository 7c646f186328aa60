package parser

import (
	"github.com/nihei9/sapling/language"
)

// ExternalScanner reads tokens a regular lexer cannot, such as indentation. The parser
// calls Scan before running the DFA whenever the current state accepts an external
// terminal.
type ExternalScanner interface {
	// Scan reads a token from the cursor. valid[i] reports whether the parser accepts
	// the i-th terminal of Language.ExternalTokens in the current state. Scan returns
	// false when it doesn't recognize a token, and the parser then runs the DFA.
	Scan(state any, c *ScanCursor, valid []bool) (language.Symbol, bool)

	// CreateState returns the scanner state of one parse.
	CreateState() any

	// DestroyState releases a state CreateState returned.
	DestroyState(state any)
}

// ScanCursor is a read head an external scanner moves over the input.
type ScanCursor struct {
	in     Input
	start  int
	pos    int
	end    int
	marked bool

	// examined is one past the last byte the scanner looked at.
	examined int
}

func newScanCursor(in Input, offset int) *ScanCursor {
	return &ScanCursor{
		in:       in,
		start:    offset,
		pos:      offset,
		examined: offset,
	}
}

// Lookahead returns the code point under the cursor, or 0 at the end of the input.
func (c *ScanCursor) Lookahead() rune {
	r, w := c.in.ReadAt(c.pos)
	if w == 0 {
		w = 1
	}
	c.touch(c.pos + w)
	return r
}

// Advance moves the cursor to the next code point.
func (c *ScanCursor) Advance() {
	_, w := c.in.ReadAt(c.pos)
	if w == 0 {
		return
	}
	c.pos += w
	c.touch(c.pos)
}

// MarkEnd fixes the end of the token at the cursor. Without MarkEnd, the token ends
// where the cursor stops.
func (c *ScanCursor) MarkEnd() {
	c.end = c.pos
	c.marked = true
}

func (c *ScanCursor) EOF() bool {
	c.touch(c.pos + 1)
	return c.pos >= c.in.Len()
}

// Offset returns the byte offset of the cursor.
func (c *ScanCursor) Offset() int {
	return c.pos
}

// Column returns the column of the cursor in bytes.
func (c *ScanCursor) Column() int {
	return c.in.Point(c.pos).Column
}

func (c *ScanCursor) touch(end int) {
	if end > c.examined {
		c.examined = end
	}
}

func (c *ScanCursor) tokenEnd() int {
	if c.marked {
		return c.end
	}
	return c.pos
}
