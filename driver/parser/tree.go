package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nihei9/sapling/language"
)

// Tree is a syntax tree. A Tree is immutable and safe for concurrent reads.
type Tree struct {
	lang    *language.Language
	root    *subtree
	input   Input
	partial bool
	fatal   bool
}

func (t *Tree) Root() *Node {
	return &Node{
		tree: t,
		s:    t.root,
	}
}

func (t *Tree) Language() *language.Language {
	return t.lang
}

// Input returns the input the tree was parsed from. It returns nil for a tree made by
// Edit, since such a tree describes a text no parser has read yet.
func (t *Tree) Input() Input {
	return t.input
}

// Partial reports whether the parse was cancelled before it reached the end of the
// input.
func (t *Tree) Partial() bool {
	return t.partial
}

// Fatal reports whether the parser gave up recovering from errors. The root of such a
// tree is an error node.
func (t *Tree) Fatal() bool {
	return t.fatal
}

// ErrorCount returns the number of error nodes in the tree.
func (t *Tree) ErrorCount() int {
	return t.root.errorCount
}

// Edit returns a tree whose nodes are moved or marked as changed according to edits.
// The receiver is not modified. Pass the returned tree to Parser.Parse to reparse the
// edited text incrementally.
func (t *Tree) Edit(edits ...Edit) *Tree {
	root := t.root
	for _, e := range edits {
		root = root.edit(Length{}, e)
	}
	return &Tree{
		lang:    t.lang,
		root:    root,
		partial: t.partial,
		fatal:   t.fatal,
	}
}

// Walk visits nodes in document order. When f returns false, Walk skips the children
// of the node.
func (t *Tree) Walk(f func(n *Node, depth int) bool) {
	walk(t.Root(), 0, f)
}

func walk(n *Node, depth int, f func(n *Node, depth int) bool) {
	if !f(n, depth) {
		return
	}
	for _, c := range n.Children() {
		walk(c, depth+1, f)
	}
}

func (t *Tree) String() string {
	return t.Root().String()
}

// Node is a subtree with its position in a tree.
type Node struct {
	tree   *Tree
	s      *subtree
	start  Length
	parent *Node
	field  int
}

func (n *Node) Symbol() language.Symbol {
	return n.s.symbol
}

// Type returns the name of the symbol of the node. An error node is named ERROR.
func (n *Node) Type() string {
	if n.s.isError {
		return "ERROR"
	}
	return n.tree.lang.SymbolName(n.s.symbol)
}

// Production returns the production the node was reduced by, or 0 for a token or an
// error node.
func (n *Node) Production() int {
	return n.s.production
}

func (n *Node) IsError() bool {
	return n.s.isError
}

func (n *Node) IsNamed() bool {
	return n.s.named || n.s.isError
}

func (n *Node) IsVisible() bool {
	return n.s.visible || n.s.isError
}

// IsExtra reports whether the node is a skip token.
func (n *Node) IsExtra() bool {
	return n.s.extra
}

// HasChanges reports whether an edit touched the node.
func (n *Node) HasChanges() bool {
	return n.s.stale
}

// HasError reports whether the node is or contains an error node.
func (n *Node) HasError() bool {
	return n.s.errorCount > 0
}

// Identical reports whether two nodes share one subtree. Subtrees reused by an
// incremental parse are identical to the ones in the old tree.
func (n *Node) Identical(m *Node) bool {
	return m != nil && n.s == m.s
}

func (n *Node) StartByte() int {
	return n.start.Bytes
}

func (n *Node) EndByte() int {
	return n.start.Bytes + n.s.length.Bytes
}

func (n *Node) StartPoint() Point {
	return n.start.Extent
}

func (n *Node) EndPoint() Point {
	return n.start.add(n.s.length).Extent
}

func (n *Node) Parent() *Node {
	return n.parent
}

// FieldName returns the name of the field the node is in its parent.
func (n *Node) FieldName() string {
	return n.tree.lang.FieldName(n.field)
}

func (n *Node) ChildCount() int {
	return len(n.s.children)
}

func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.s.children) {
		return nil
	}
	return n.Children()[i]
}

func (n *Node) Children() []*Node {
	if len(n.s.children) == 0 {
		return nil
	}
	fields := n.s.fieldIDs(n.tree.lang)
	children := make([]*Node, len(n.s.children))
	pos := n.start
	for i, c := range n.s.children {
		children[i] = &Node{
			tree:   n.tree,
			s:      c,
			start:  pos,
			parent: n,
		}
		if fields != nil {
			children[i].field = fields[i]
		}
		pos = pos.add(c.length)
	}
	return children
}

// VisibleChildren returns the children replacing hidden nodes with their visible
// children.
func (n *Node) VisibleChildren() []*Node {
	var children []*Node
	for _, c := range n.Children() {
		if c.IsVisible() {
			children = append(children, c)
			continue
		}
		children = append(children, c.VisibleChildren()...)
	}
	return children
}

// NamedChildren returns the visible children that are named.
func (n *Node) NamedChildren() []*Node {
	var children []*Node
	for _, c := range n.VisibleChildren() {
		if c.IsNamed() {
			children = append(children, c)
		}
	}
	return children
}

// ChildByField returns the first child in a field. Fields of hidden children are
// searched too.
func (n *Node) ChildByField(name string) *Node {
	id, ok := n.tree.lang.FieldID(name)
	if !ok {
		return nil
	}
	for _, c := range n.Children() {
		if c.field == id {
			return c
		}
		if !c.IsVisible() && c.ChildCount() > 0 {
			if d := c.ChildByField(name); d != nil {
				return d
			}
		}
	}
	return nil
}

// Text returns the text the node covers.
func (n *Node) Text(in Input) string {
	var b strings.Builder
	for i := n.StartByte(); i < n.EndByte() && i < in.Len(); i++ {
		b.WriteByte(in.ByteAt(i))
	}
	return b.String()
}

// String returns the node as an S-expression of its named nodes.
func (n *Node) String() string {
	var b strings.Builder
	n.writeSExpr(&b)
	return b.String()
}

func (n *Node) writeSExpr(b *strings.Builder) {
	fmt.Fprintf(b, "(%v", n.Type())
	for _, c := range n.sExprChildren() {
		b.WriteString(" ")
		if name := c.FieldName(); name != "" {
			fmt.Fprintf(b, "%v: ", name)
		}
		c.writeSExpr(b)
	}
	b.WriteString(")")
}

func (n *Node) sExprChildren() []*Node {
	var children []*Node
	for _, c := range n.VisibleChildren() {
		if c.IsNamed() && !c.IsExtra() {
			children = append(children, c)
		}
	}
	return children
}

type pointJSON struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type nodeJSON struct {
	Type       string      `json:"type"`
	Named      bool        `json:"named"`
	Field      string      `json:"field,omitempty"`
	Error      bool        `json:"error,omitempty"`
	Extra      bool        `json:"extra,omitempty"`
	StartByte  int         `json:"start_byte"`
	EndByte    int         `json:"end_byte"`
	StartPoint pointJSON   `json:"start_point"`
	EndPoint   pointJSON   `json:"end_point"`
	Text       string      `json:"text,omitempty"`
	Children   []*nodeJSON `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

func (n *Node) toJSON() *nodeJSON {
	sp := n.StartPoint()
	ep := n.EndPoint()
	j := &nodeJSON{
		Type:       n.Type(),
		Named:      n.IsNamed(),
		Field:      n.FieldName(),
		Error:      n.IsError(),
		Extra:      n.IsExtra(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: pointJSON{Row: sp.Row, Column: sp.Column},
		EndPoint:   pointJSON{Row: ep.Row, Column: ep.Column},
	}
	if n.ChildCount() == 0 && n.tree.input != nil {
		j.Text = n.Text(n.tree.input)
	}
	for _, c := range n.VisibleChildren() {
		j.Children = append(j.Children, c.toJSON())
	}
	return j
}

// PrintTree prints a syntax tree whose root is `node`.
func PrintTree(w io.Writer, node *Node) {
	printTree(w, node, "", "")
}

func printTree(w io.Writer, node *Node, ruledLine string, childRuledLinePrefix string) {
	if node == nil {
		return
	}

	switch {
	case node.ChildCount() == 0 && node.tree.input != nil:
		fmt.Fprintf(w, "%v%v %v\n", ruledLine, node.Type(), strconv.Quote(node.Text(node.tree.input)))
	default:
		fmt.Fprintf(w, "%v%v\n", ruledLine, node.Type())
	}

	children := node.VisibleChildren()
	num := len(children)
	for i, child := range children {
		var line string
		if num > 1 && i < num-1 {
			line = "├─ "
		} else {
			line = "└─ "
		}

		var prefix string
		if i >= num-1 {
			prefix = "   "
		} else {
			prefix = "│  "
		}

		printTree(w, child, childRuledLinePrefix+line, childRuledLinePrefix+prefix)
	}
}
