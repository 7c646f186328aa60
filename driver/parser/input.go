package parser

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Point is a position in a text. Row and Column are zero-based, and Column is counted
// in bytes.
type Point struct {
	Row    int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("%v:%v", p.Row, p.Column)
}

func (p Point) less(q Point) bool {
	return p.Row < q.Row || (p.Row == q.Row && p.Column < q.Column)
}

// Length is a size of text measured both in bytes and in rows and columns. An absolute
// position is a Length from the beginning of a text.
type Length struct {
	Bytes  int
	Extent Point
}

func (l Length) add(m Length) Length {
	if m.Extent.Row > 0 {
		return Length{
			Bytes: l.Bytes + m.Bytes,
			Extent: Point{
				Row:    l.Extent.Row + m.Extent.Row,
				Column: m.Extent.Column,
			},
		}
	}
	return Length{
		Bytes: l.Bytes + m.Bytes,
		Extent: Point{
			Row:    l.Extent.Row,
			Column: l.Extent.Column + m.Extent.Column,
		},
	}
}

// sub returns the length from m to l. m must not be after l.
func (l Length) sub(m Length) Length {
	if l.Extent.Row > m.Extent.Row {
		return Length{
			Bytes: l.Bytes - m.Bytes,
			Extent: Point{
				Row:    l.Extent.Row - m.Extent.Row,
				Column: l.Extent.Column,
			},
		}
	}
	return Length{
		Bytes: l.Bytes - m.Bytes,
		Extent: Point{
			Column: l.Extent.Column - m.Extent.Column,
		},
	}
}

// Input is a random-access text a parser reads.
type Input interface {
	// Len returns the size of the text in bytes.
	Len() int

	// ByteAt returns the byte at an offset.
	ByteAt(offset int) byte

	// ReadAt decodes a UTF-8 code point at an offset. It returns a width of 0 at the
	// end of the text.
	ReadAt(offset int) (rune, int)

	// Point converts a byte offset into a point.
	Point(offset int) Point

	// Offset converts a point into a byte offset.
	Offset(p Point) int
}

type bytesInput struct {
	src []byte
	// lineStarts[i] is the offset of the first byte of row i.
	lineStarts []int
}

// NewInput returns an Input reading a byte slice. The slice must not be modified
// while the Input is in use.
func NewInput(src []byte) Input {
	lineStarts := []int{0}
	for i, b := range src {
		if b == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return &bytesInput{
		src:        src,
		lineStarts: lineStarts,
	}
}

func (in *bytesInput) Len() int {
	return len(in.src)
}

func (in *bytesInput) ByteAt(offset int) byte {
	return in.src[offset]
}

func (in *bytesInput) ReadAt(offset int) (rune, int) {
	if offset < 0 || offset >= len(in.src) {
		return 0, 0
	}
	return utf8.DecodeRune(in.src[offset:])
}

func (in *bytesInput) Point(offset int) Point {
	if offset < 0 {
		offset = 0
	}
	if offset > len(in.src) {
		offset = len(in.src)
	}
	row := sort.Search(len(in.lineStarts), func(i int) bool {
		return in.lineStarts[i] > offset
	}) - 1
	return Point{
		Row:    row,
		Column: offset - in.lineStarts[row],
	}
}

func (in *bytesInput) Offset(p Point) int {
	if p.Row < 0 {
		return 0
	}
	if p.Row >= len(in.lineStarts) {
		return len(in.src)
	}
	lineEnd := len(in.src)
	if p.Row+1 < len(in.lineStarts) {
		lineEnd = in.lineStarts[p.Row+1]
	}
	offset := in.lineStarts[p.Row] + p.Column
	if offset > lineEnd {
		return lineEnd
	}
	return offset
}

func (in *bytesInput) Bytes() []byte {
	return in.src
}

// position returns an absolute position of an offset.
func position(in Input, offset int) Length {
	return Length{
		Bytes:  offset,
		Extent: in.Point(offset),
	}
}

// Edit describes a replacement of the text between StartByte and OldEndByte with new
// text ending at NewEndByte.
type Edit struct {
	StartByte   int
	OldEndByte  int
	NewEndByte  int
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

// NewEdit returns an Edit replacing [start, oldEnd) of old with text.
func NewEdit(old Input, start, oldEnd int, text []byte) Edit {
	startPoint := old.Point(start)
	newEnd := Length{
		Bytes:  start,
		Extent: startPoint,
	}.add(textLength(text))
	return Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  newEnd.Bytes,
		StartPoint:  startPoint,
		OldEndPoint: old.Point(oldEnd),
		NewEndPoint: newEnd.Extent,
	}
}

// ApplyEdit returns a copy of src with an edit applied.
func ApplyEdit(src []byte, start, oldEnd int, text []byte) []byte {
	b := make([]byte, 0, len(src)-(oldEnd-start)+len(text))
	b = append(b, src[:start]...)
	b = append(b, text...)
	b = append(b, src[oldEnd:]...)
	return b
}

func textLength(text []byte) Length {
	l := Length{
		Bytes: len(text),
	}
	for _, b := range text {
		if b == '\n' {
			l.Extent.Row++
			l.Extent.Column = 0
		} else {
			l.Extent.Column++
		}
	}
	return l
}

func (e Edit) start() Length {
	return Length{Bytes: e.StartByte, Extent: e.StartPoint}
}

func (e Edit) oldEnd() Length {
	return Length{Bytes: e.OldEndByte, Extent: e.OldEndPoint}
}

func (e Edit) newEnd() Length {
	return Length{Bytes: e.NewEndByte, Extent: e.NewEndPoint}
}

// translate maps a position in the text before the edit to the text after it. A
// position inside the replaced range moves to the end of the new text.
func (e Edit) translate(pos Length) Length {
	switch {
	case pos.Bytes <= e.StartByte:
		return pos
	case pos.Bytes < e.OldEndByte:
		return e.newEnd()
	}
	return e.newEnd().add(pos.sub(e.oldEnd()))
}
