package parser

type Position struct {
	Row int
	Col int
}

func newPosition(row, col int) Position {
	return Position{
		Row: row,
		Col: col,
	}
}

type RootNode struct {
	Directives     []*DirectiveNode
	Productions    []*ProductionNode
	LexProductions []*ProductionNode
	Fragments      []*FragmentNode
}

type ProductionNode struct {
	Directives []*DirectiveNode
	LHS        string
	RHS        []*AlternativeNode
	Pos        Position
}

// isLexical reports whether the production defines a terminal symbol, that is,
// it has exactly one alternative consisting of exactly one pattern or string.
func (n *ProductionNode) isLexical() bool {
	if len(n.RHS) != 1 {
		return false
	}
	elems := n.RHS[0].Elements
	return len(elems) == 1 && elems[0].Pattern != "" && elems[0].Label == nil
}

type AlternativeNode struct {
	Elements   []*ElementNode
	Directives []*DirectiveNode
	Pos        Position
}

type ElementNode struct {
	ID        string
	Pattern   string
	Literally bool
	Label     *LabelNode
	Pos       Position
}

type LabelNode struct {
	Name string
	Pos  Position
}

type DirectiveNode struct {
	Name       string
	Parameters []*ParameterNode
	Pos        Position
}

type ParameterNode struct {
	ID            string
	String        string
	OrderedSymbol string
	Group         []*DirectiveNode
	Pos           Position
}

type FragmentNode struct {
	LHS string
	RHS string
	Pos Position
}
