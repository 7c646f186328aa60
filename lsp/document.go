package lsp

import (
	"fmt"
	"unicode/utf8"

	"github.com/nihei9/sapling/driver/parser"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// document is an open text document and its latest syntax tree.
type document struct {
	uri     protocol.DocumentUri
	version protocol.Integer
	src     []byte
	in      parser.Input
	tree    *parser.Tree
}

func newDocument(uri protocol.DocumentUri, version protocol.Integer, text string) *document {
	src := []byte(text)
	return &document{
		uri:     uri,
		version: version,
		src:     src,
		in:      parser.NewInput(src),
	}
}

// applyChange applies one content change to the text and returns the edit it makes.
// A change without a range replaces the whole text.
func (d *document) applyChange(change any) (parser.Edit, error) {
	var start, end int
	var text string
	switch c := change.(type) {
	case protocol.TextDocumentContentChangeEvent:
		text = c.Text
		if c.Range == nil {
			start, end = 0, len(d.src)
			break
		}
		start = positionToOffset(d.in, c.Range.Start)
		end = positionToOffset(d.in, c.Range.End)
		if end < start {
			return parser.Edit{}, fmt.Errorf("invalid range: %v:%v-%v:%v",
				c.Range.Start.Line, c.Range.Start.Character, c.Range.End.Line, c.Range.End.Character)
		}
	case protocol.TextDocumentContentChangeEventWhole:
		text = c.Text
		start, end = 0, len(d.src)
	default:
		return parser.Edit{}, fmt.Errorf("unsupported content change: %T", change)
	}

	e := parser.NewEdit(d.in, start, end, []byte(text))
	d.src = parser.ApplyEdit(d.src, start, end, []byte(text))
	d.in = parser.NewInput(d.src)
	return e, nil
}

// positionToOffset converts an LSP position, whose character is counted in UTF-16
// code units, into a byte offset. A position past the end of a line is clamped to it.
func positionToOffset(in parser.Input, pos protocol.Position) int {
	offset := in.Offset(parser.Point{
		Row: int(pos.Line),
	})
	units := 0
	for units < int(pos.Character) {
		r, w := in.ReadAt(offset)
		if w == 0 || r == '\n' {
			break
		}
		units += utf16Len(r)
		offset += w
	}
	return offset
}

// offsetToPosition converts a byte offset into an LSP position.
func offsetToPosition(in parser.Input, offset int) protocol.Position {
	p := in.Point(offset)
	lineStart := offset - p.Column
	units := 0
	for o := lineStart; o < offset; {
		r, w := in.ReadAt(o)
		if w == 0 {
			break
		}
		units += utf16Len(r)
		o += w
	}
	return protocol.Position{
		Line:      protocol.UInteger(p.Row),
		Character: protocol.UInteger(units),
	}
}

func utf16Len(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}
