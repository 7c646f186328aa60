package parser

import (
	"github.com/nihei9/sapling/language"
)

// subtree is an immutable node of a syntax tree. A subtree holds its length but not its
// position, so a subtree following an edit stays valid as it is and can be shared by
// the trees before and after the edit.
type subtree struct {
	symbol     language.Symbol
	production int
	length     Length
	children   []*subtree

	// parseState is the state of the parser when the subtree was pushed, and lexMode is
	// the lex mode its first token was read in.
	parseState int
	lexMode    int

	// lookahead is the number of bytes past the end of the subtree that its tokens and
	// reductions depended on.
	lookahead int

	// extra means a skip token. An extra or an error floats: the parser puts it on its
	// stack without a state transition, and a reduction doesn't count it.
	extra    bool
	isError  bool
	named    bool
	visible  bool
	external bool

	// fragile means the subtree was built while several stack versions were alive.
	fragile bool

	// stale means an edit touched the subtree or the bytes it depended on. orig is the
	// leaf of the tree before the edit a stale leaf was copied from.
	stale bool
	orig  *subtree

	errorCount int
	leafCount  int
}

func (s *subtree) floating() bool {
	return s.extra || s.isError
}

func (s *subtree) isLeaf() bool {
	return len(s.children) == 0 && !s.isError
}

func newLeaf(lang *language.Language, sym language.Symbol, length Length, parseState, lexMode, lookahead int) *subtree {
	md := lang.SymbolMetadata(sym)
	isError := sym == lang.Error()
	errorCount := 0
	if isError {
		errorCount = 1
	}
	return &subtree{
		symbol:     sym,
		length:     length,
		parseState: parseState,
		lexMode:    lexMode,
		lookahead:  lookahead,
		extra:      lang.IsSkip(sym),
		isError:    isError,
		named:      md.Named,
		visible:    md.Visible,
		errorCount: errorCount,
		leafCount:  1,
	}
}

// newBranch builds a subtree from children, summarizing their lengths, lookaheads and
// errors.
func newBranch(lang *language.Language, sym language.Symbol, prod int, children []*subtree, parseState int) *subtree {
	md := lang.SymbolMetadata(sym)
	s := &subtree{
		symbol:     sym,
		production: prod,
		children:   children,
		parseState: parseState,
		isError:    sym == lang.Error(),
		named:      md.Named,
		visible:    md.Visible,
	}
	if s.isError {
		s.errorCount = 1
	}
	s.summarize()
	return s
}

func newError(lang *language.Language, children []*subtree, parseState int) *subtree {
	return newBranch(lang, lang.Error(), 0, children, parseState)
}

func (s *subtree) summarize() {
	var l Length
	lookaheadEnd := 0
	for i, c := range s.children {
		if i == 0 {
			s.lexMode = c.lexMode
		}
		l = l.add(c.length)
		if end := l.Bytes + c.lookahead; end > lookaheadEnd {
			lookaheadEnd = end
		}
		s.errorCount += c.errorCount
		s.leafCount += c.leafCount
		if c.external {
			s.external = true
		}
		if c.fragile {
			s.fragile = true
		}
		if c.stale {
			s.stale = true
		}
	}
	s.length = l
	if lookaheadEnd > l.Bytes {
		s.lookahead = lookaheadEnd - l.Bytes
	}
}

// extendLookahead returns the lookahead bytes of a subtree whose end is end after the
// parser has looked at bytes up to lookaheadEnd.
func extendLookahead(current, end, lookaheadEnd int) int {
	if la := lookaheadEnd - end; la > current {
		return la
	}
	return current
}

// edit returns a subtree reflecting an edit. start is the position of s before the edit.
// Subtrees the edit doesn't reach are returned as they are, so only the spine over the
// edited range is copied.
func (s *subtree) edit(start Length, e Edit) *subtree {
	end := start.add(s.length)
	if end.Bytes+s.lookahead <= e.StartByte {
		return s
	}
	// A subtree right after a replaced range still reads the same bytes. A subtree right
	// after an insertion point absorbs the inserted text.
	if start.Bytes > e.OldEndByte || (start.Bytes == e.OldEndByte && e.OldEndByte > e.StartByte) {
		return s
	}

	c := *s
	c.stale = true
	if len(s.children) == 0 {
		c.length = e.translate(end).sub(e.translate(start))
		if s.orig == nil {
			c.orig = s
		}
		return &c
	}

	children := make([]*subtree, len(s.children))
	pos := start
	for i, child := range s.children {
		children[i] = child.edit(pos, e)
		pos = pos.add(child.length)
	}
	c.children = children
	var l Length
	for _, child := range children {
		l = l.add(child.length)
	}
	c.length = l
	return &c
}

// fieldIDs returns the field ID of each child. Floating children have no field.
func (s *subtree) fieldIDs(lang *language.Language) []int {
	if s.production <= 0 {
		return nil
	}
	fields := lang.ProductionFields(s.production)
	if fields == nil {
		return nil
	}
	ids := make([]int, len(s.children))
	i := 0
	for j, c := range s.children {
		if c.floating() {
			continue
		}
		if i < len(fields) {
			ids[j] = fields[i]
		}
		i++
	}
	return ids
}
