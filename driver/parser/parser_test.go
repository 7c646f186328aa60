package parser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/nihei9/sapling/grammar"
	"github.com/nihei9/sapling/language"
	"github.com/nihei9/sapling/spec/grammar/parser"
)

const exprGrammar = `
#name expr;

#prec (
    #left '+'
);

expr
    : expr '+' expr
    | num
    ;

num
    : "[0-9]+";
ws
    : "[\u{0020}\u{000A}]+" #skip;
`

func newLanguage(t *testing.T, src string) *language.Language {
	t.Helper()

	ast, err := parser.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	b := grammar.GrammarBuilder{
		AST: ast,
	}
	gram, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	cg, _, err := grammar.Compile(gram)
	if err != nil {
		t.Fatal(err)
	}
	lang, err := language.New(cg)
	if err != nil {
		t.Fatal(err)
	}
	return lang
}

func newParser(t *testing.T, lang *language.Language, opts ...ParserOption) *Parser {
	t.Helper()

	p, err := NewParser(lang, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func parseString(t *testing.T, p *Parser, src string, old *Tree) (*Tree, Input) {
	t.Helper()

	in := NewInput([]byte(src))
	tree, err := p.Parse(context.Background(), in, old)
	if err != nil {
		t.Fatal(err)
	}
	return tree, in
}

// checkStructure checks every child lies in its parent and after its preceding
// sibling, and positions agree with the input.
func checkStructure(t *testing.T, tree *Tree) {
	t.Helper()

	in := tree.Input()
	root := tree.Root()
	if !tree.Partial() && root.EndByte() != in.Len() {
		t.Fatalf("a root must cover the whole input; want: %v, got: %v", in.Len(), root.EndByte())
	}
	tree.Walk(func(n *Node, depth int) bool {
		if n.StartPoint() != in.Point(n.StartByte()) || n.EndPoint() != in.Point(n.EndByte()) {
			t.Fatalf("points of a node disagree with its offsets; node: %v [%v, %v), points: %v-%v",
				n.Type(), n.StartByte(), n.EndByte(), n.StartPoint(), n.EndPoint())
		}
		pos := n.StartByte()
		for _, c := range n.Children() {
			if c.StartByte() < pos {
				t.Fatalf("children must not overlap; parent: %v, child: %v [%v, %v), previous end: %v",
					n.Type(), c.Type(), c.StartByte(), c.EndByte(), pos)
			}
			if c.EndByte() > n.EndByte() {
				t.Fatalf("a child must lie in its parent; parent: %v [%v, %v), child: %v [%v, %v)",
					n.Type(), n.StartByte(), n.EndByte(), c.Type(), c.StartByte(), c.EndByte())
			}
			if c.Parent() != n {
				t.Fatalf("a child must point to its parent")
			}
			pos = c.EndByte()
		}
		return true
	})
}

func collectErrors(tree *Tree) []*Node {
	var errs []*Node
	tree.Walk(func(n *Node, depth int) bool {
		if n.IsError() {
			errs = append(errs, n)
		}
		return true
	})
	return errs
}

func TestParser_Parse(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)

	tests := []struct {
		src        string
		tree       string
		errorCount int
	}{
		{
			src:  "1+2+3",
			tree: "(expr (expr (expr (num)) (expr (num))) (expr (num)))",
		},
		{
			src:  " 1 +\n 2 ",
			tree: "(expr (expr (num)) (expr (num)))",
		},
		{
			src:        "1+",
			tree:       "(expr (num) (ERROR))",
			errorCount: 1,
		},
		{
			src:        "1++2",
			tree:       "(expr (expr (num)) (ERROR) (expr (num)))",
			errorCount: 1,
		},
		{
			src:        "+",
			tree:       "(ERROR)",
			errorCount: 1,
		},
		{
			src:        "",
			tree:       "(ERROR)",
			errorCount: 1,
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			tree, _ := parseString(t, p, tt.src, nil)
			if tree.String() != tt.tree {
				t.Fatalf("unexpected tree; want: %v, got: %v", tt.tree, tree)
			}
			if tree.ErrorCount() != tt.errorCount {
				t.Fatalf("unexpected error count; want: %v, got: %v", tt.errorCount, tree.ErrorCount())
			}
			if tree.Partial() || tree.Fatal() {
				t.Fatalf("a tree must be complete; partial: %v, fatal: %v", tree.Partial(), tree.Fatal())
			}
			checkStructure(t, tree)
		})
	}
}

func TestParser_LeftAssociativeSum(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	tree, in := parseString(t, newParser(t, lang), "1+2+3", nil)

	root := tree.Root()
	if root.ChildCount() != 3 {
		t.Fatalf("unexpected child count; want: 3, got: %v", root.ChildCount())
	}
	if text := root.Child(0).Text(in); text != "1+2" {
		t.Fatalf("a sum must lean to the left; want: %q, got: %q", "1+2", text)
	}
	if text := root.Child(2).Text(in); text != "3" {
		t.Fatalf("unexpected right operand; want: %q, got: %q", "3", text)
	}

	// Numbers and sums count as the nodes of the expression.
	num, _ := lang.SymbolForName("num", true)
	count := 0
	tree.Walk(func(n *Node, depth int) bool {
		if n.Symbol() == num || n.ChildCount() == 3 {
			count++
		}
		return true
	})
	if count != 5 {
		t.Fatalf("unexpected node count; want: 5, got: %v", count)
	}
	if len(collectErrors(tree)) != 0 {
		t.Fatalf("a tree must not contain any error nodes")
	}
}

func TestParser_TruncatedInput(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	tree, in := parseString(t, newParser(t, lang), "1+", nil)

	errs := collectErrors(tree)
	if len(errs) != 1 {
		t.Fatalf("unexpected error node count; want: 1, got: %v", len(errs))
	}
	if errs[0].StartByte() != 1 || errs[0].EndByte() != 2 || errs[0].Text(in) != "+" {
		t.Fatalf("an error node must cover the trailing operator; got: [%v, %v)", errs[0].StartByte(), errs[0].EndByte())
	}

	num, _ := lang.SymbolForName("num", true)
	var nums []*Node
	tree.Walk(func(n *Node, depth int) bool {
		if n.Symbol() == num {
			nums = append(nums, n)
		}
		return true
	})
	if len(nums) != 1 {
		t.Fatalf("unexpected number count; want: 1, got: %v", len(nums))
	}
	if nums[0].IsError() || nums[0].HasError() || nums[0].Text(in) != "1" {
		t.Fatalf("a number must be intact; error: %v, text: %q", nums[0].IsError(), nums[0].Text(in))
	}
}

func TestParser_Incremental(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)

	oldTree, oldIn := parseString(t, p, "1+2+3", nil)
	e := NewEdit(oldIn, 2, 3, []byte("22"))
	src := ApplyEdit([]byte("1+2+3"), 2, 3, []byte("22"))
	if string(src) != "1+22+3" {
		t.Fatalf("unexpected source: %q", src)
	}

	edited := oldTree.Edit(e)
	if !edited.Root().HasChanges() {
		t.Fatalf("an edited root must have changes")
	}
	if oldTree.Root().HasChanges() {
		t.Fatalf("an edit must not modify the old tree")
	}

	newTree, in := parseString(t, p, string(src), edited)
	const expected = "(expr (expr (expr (num)) (expr (num))) (expr (num)))"
	if newTree.String() != expected {
		t.Fatalf("unexpected tree; want: %v, got: %v", expected, newTree)
	}
	if text := newTree.Root().Child(0).Text(in); text != "1+22" {
		t.Fatalf("unexpected left operand; want: %q, got: %q", "1+22", text)
	}
	checkStructure(t, newTree)

	oldRoot := oldTree.Root()
	newRoot := newTree.Root()
	tests := []struct {
		caption string
		old     *Node
		new     *Node
	}{
		{
			caption: "the first number",
			old:     oldRoot.Child(0).Child(0).Child(0),
			new:     newRoot.Child(0).Child(0).Child(0),
		},
		{
			caption: "the second operator",
			old:     oldRoot.Child(1),
			new:     newRoot.Child(1),
		},
		{
			caption: "the last operand",
			old:     oldRoot.Child(2),
			new:     newRoot.Child(2),
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			if !tt.new.Identical(tt.old) {
				t.Fatalf("a node must be reused; old: %v [%v, %v), new: %v [%v, %v)",
					tt.old.Type(), tt.old.StartByte(), tt.old.EndByte(), tt.new.Type(), tt.new.StartByte(), tt.new.EndByte())
			}
		})
	}

	if newRoot.Child(0).Child(2).Identical(oldRoot.Child(0).Child(2)) {
		t.Fatalf("an edited number must not be reused")
	}
	if text := newRoot.Child(2).Text(in); text != "3" {
		t.Fatalf("a reused node must be placed at the new position; want: %q, got: %q", "3", text)
	}
}

func TestParser_NullEdit(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)

	for i, src := range []string{"1+2+3", " 1 +\n 22 + 3\n", "1++2", "1+"} {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			fresh, _ := parseString(t, p, src, nil)
			reparsed, _ := parseString(t, p, src, fresh)
			compareTrees(t, fresh, reparsed)
			if fresh.ErrorCount() == 0 && !reparsed.Root().Identical(fresh.Root()) {
				t.Fatalf("a reparse without edits must reuse the root")
			}
		})
	}
}

// compareTrees checks two trees have the same shape and ranges.
func compareTrees(t *testing.T, expected, actual *Tree) {
	t.Helper()

	if actual.String() != expected.String() {
		t.Fatalf("unexpected tree; want: %v, got: %v", expected, actual)
	}
	var want []string
	expected.Walk(func(n *Node, depth int) bool {
		want = append(want, fmt.Sprintf("%v %v [%v, %v)", depth, n.Type(), n.StartByte(), n.EndByte()))
		return true
	})
	var got []string
	actual.Walk(func(n *Node, depth int) bool {
		got = append(got, fmt.Sprintf("%v %v [%v, %v)", depth, n.Type(), n.StartByte(), n.EndByte()))
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("unexpected node count; want: %v, got: %v", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected node; want: %v, got: %v", want[i], got[i])
		}
	}
}

func TestParser_IncrementalEqualsFull(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)

	tests := []struct {
		src    string
		start  int
		oldEnd int
		text   string
	}{
		{src: "1+2+3", start: 2, oldEnd: 3, text: "22"},
		{src: "1+2+3", start: 5, oldEnd: 5, text: "+4"},
		{src: "1+2+3", start: 0, oldEnd: 0, text: "7+"},
		{src: "1+2+3", start: 1, oldEnd: 3, text: ""},
		{src: "1+2+3", start: 0, oldEnd: 5, text: "9"},
		{src: "1+2+3", start: 1, oldEnd: 1, text: " "},
		{src: "1+2+3", start: 3, oldEnd: 5, text: ""},
		{src: "1+", start: 2, oldEnd: 2, text: "2"},
		{src: "1++2", start: 1, oldEnd: 2, text: ""},
		{src: "1 +\n2 +\n3", start: 4, oldEnd: 5, text: "45"},
		{src: "1 +\n2 +\n3", start: 3, oldEnd: 4, text: ""},
		{src: "1 +\n2 +\n3", start: 9, oldEnd: 9, text: "\n+ 4"},
		{src: "12+34", start: 1, oldEnd: 1, text: "+"},
		{src: "12+34", start: 2, oldEnd: 3, text: "?"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			oldTree, oldIn := parseString(t, p, tt.src, nil)
			e := NewEdit(oldIn, tt.start, tt.oldEnd, []byte(tt.text))
			src := string(ApplyEdit([]byte(tt.src), tt.start, tt.oldEnd, []byte(tt.text)))

			full, _ := parseString(t, p, src, nil)
			incremental, _ := parseString(t, p, src, oldTree.Edit(e))
			compareTrees(t, full, incremental)
			checkStructure(t, incremental)
		})
	}
}

const operatorGrammar = `
#name operator;

#prec (
    #left '*'
    #left '+'
);

expr
    : expr '+' expr
    | expr '*' expr
    | '(' expr ')'
    | num
    | id
    ;

num
    : "[0-9]+";
id
    : "[a-z][a-z0-9]*";
ws
    : "[\u{0020}\u{000A}]+" #skip;
`

func TestParser_IncrementalEqualsFull_Recovery(t *testing.T) {
	lang := newLanguage(t, operatorGrammar)
	p := newParser(t, lang)

	tests := []struct {
		src    string
		start  int
		oldEnd int
		text   string
	}{
		// An operand reduced after its operator was popped into an error.
		{src: "b+b*\n)1(\n2)+", start: 7, oldEnd: 9},
		{src: "aa1+a*)+22)2 ", start: 9, oldEnd: 11},
		{src: "1*)2", start: 3, oldEnd: 4, text: "(3)"},
		{src: "(1+2))+3", start: 5, oldEnd: 6},
		{src: "a+(b*)", start: 5, oldEnd: 5, text: "c"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			oldTree, oldIn := parseString(t, p, tt.src, nil)
			e := NewEdit(oldIn, tt.start, tt.oldEnd, []byte(tt.text))
			src := string(ApplyEdit([]byte(tt.src), tt.start, tt.oldEnd, []byte(tt.text)))

			full, _ := parseString(t, p, src, nil)
			incremental, _ := parseString(t, p, src, oldTree.Edit(e))
			compareTrees(t, full, incremental)
			if incremental.ErrorCount() != full.ErrorCount() {
				t.Fatalf("unexpected error count; want: %v, got: %v", full.ErrorCount(), incremental.ErrorCount())
			}
			checkStructure(t, incremental)
		})
	}
}

func TestParser_IncrementalEqualsFull_RandomEdits(t *testing.T) {
	lang := newLanguage(t, operatorGrammar)
	p := newParser(t, lang)

	fragments := []string{"1", "22", "a", "b1", "+", "*", "(", ")", "?", " ", "\n"}
	randomText := func(r *rand.Rand, maxCount int) string {
		var b strings.Builder
		for n := r.Intn(maxCount + 1); n > 0; n-- {
			b.WriteString(fragments[r.Intn(len(fragments))])
		}
		return b.String()
	}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		initial := randomText(r, 12)
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			src := initial
			tree, _ := parseString(t, p, src, nil)
			for step := 0; step < 4; step++ {
				// Each edit is relative to the text the preceding edits made.
				var edits []Edit
				var applied []string
				for n := 1 + r.Intn(3); n > 0; n-- {
					in := NewInput([]byte(src))
					start := r.Intn(len(src) + 1)
					oldEnd := start + r.Intn(len(src)-start+1)
					if oldEnd > start+3 {
						oldEnd = start + 3
					}
					text := randomText(r, 2)
					edits = append(edits, NewEdit(in, start, oldEnd, []byte(text)))
					applied = append(applied, fmt.Sprintf("[%v, %v) -> %q", start, oldEnd, text))
					src = string(ApplyEdit([]byte(src), start, oldEnd, []byte(text)))
				}

				full, _ := parseString(t, p, src, nil)
				incremental, _ := parseString(t, p, src, tree.Edit(edits...))
				if incremental.String() != full.String() {
					t.Fatalf("unexpected tree of %q after %v (initial text: %q); want: %v, got: %v",
						src, strings.Join(applied, ", "), initial, full, incremental)
				}
				compareTrees(t, full, incremental)
				checkStructure(t, incremental)
				tree = incremental
			}
		})
	}
}

func TestParser_GLR(t *testing.T) {
	lang := newLanguage(t, `
#name test;

#glr expr;

expr
    : expr '+' expr
    | num
    ;

num
    : "[0-9]+";
`)
	tree, in := parseString(t, newParser(t, lang), "1+2+3", nil)
	if tree.ErrorCount() != 0 {
		t.Fatalf("unexpected error count; want: 0, got: %v\n%v", tree.ErrorCount(), tree)
	}
	const expected = "(expr (expr (num)) (expr (expr (num)) (expr (num))))"
	if tree.String() != expected {
		t.Fatalf("unexpected tree; want: %v, got: %v", expected, tree)
	}
	if text := tree.Root().Child(2).Text(in); text != "2+3" {
		t.Fatalf("the version shifting first must win; want: %q, got: %q", "2+3", text)
	}
	checkStructure(t, tree)

	tree, _ = parseString(t, newParser(t, lang), "1+", nil)
	if tree.ErrorCount() != 1 {
		t.Fatalf("unexpected error count; want: 1, got: %v", tree.ErrorCount())
	}
	checkStructure(t, tree)
}

func TestParser_OperationLimit(t *testing.T) {
	lang := newLanguage(t, exprGrammar)

	tree, _ := parseString(t, newParser(t, lang, WithOperationLimit(3)), "1+2+3", nil)
	if !tree.Partial() {
		t.Fatalf("a tree must be partial")
	}
	if !tree.Root().IsError() {
		t.Fatalf("the root of a partial tree must be an error node")
	}
	if tree.Root().EndByte() >= 5 {
		t.Fatalf("a partial tree must not cover the whole input; got: %v", tree.Root().EndByte())
	}
	checkStructure(t, tree)

	tree, _ = parseString(t, newParser(t, lang, WithOperationLimit(1000)), "1+2+3", nil)
	if tree.Partial() {
		t.Fatalf("a tree must be complete")
	}

	_, err := NewParser(lang, WithOperationLimit(0))
	if err == nil {
		t.Fatalf("a zero operation limit must be rejected")
	}
}

func TestParser_Cancel(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree, err := p.Parse(ctx, NewInput([]byte("1+2+3")), nil)
	if err != nil {
		t.Fatalf("cancellation must not be an error; got: %v", err)
	}
	if !tree.Partial() {
		t.Fatalf("a tree must be partial")
	}
	if tree.Root().EndByte() != 0 {
		t.Fatalf("a parse cancelled before any step must be empty; got: %v", tree.Root().EndByte())
	}
}

func TestParser_InvalidArguments(t *testing.T) {
	_, err := NewParser(nil)
	if err == nil {
		t.Fatalf("a nil language must be rejected")
	}

	lang := newLanguage(t, exprGrammar)
	p := newParser(t, lang)
	_, err = p.Parse(context.Background(), nil, nil)
	if err == nil {
		t.Fatalf("a nil input must be rejected")
	}

	other := newLanguage(t, exprGrammar)
	old, _ := parseString(t, newParser(t, other), "1", nil)
	_, err = p.Parse(context.Background(), NewInput([]byte("1")), old)
	if err == nil {
		t.Fatalf("a tree of another language must be rejected")
	}
}

func TestParser_Fatal(t *testing.T) {
	lang := newLanguage(t, exprGrammar)
	src := "1" + strings.Repeat("?", 300)
	tree, _ := parseString(t, newParser(t, lang), src, nil)
	if !tree.Fatal() {
		t.Fatalf("a parse must give up")
	}
	if !tree.Root().IsError() {
		t.Fatalf("the root of a fatal tree must be an error node")
	}
	if tree.Root().StartByte() != 0 || tree.Root().EndByte() != len(src) {
		t.Fatalf("the root of a fatal tree must cover the whole input; got: [%v, %v)", tree.Root().StartByte(), tree.Root().EndByte())
	}
	checkStructure(t, tree)
}

func TestParser_Fields(t *testing.T) {
	lang := newLanguage(t, `
#name test;

#prec (
    #left '+'
);

expr
    : expr@lhs '+' expr@rhs
    | num
    ;

num
    : "[0-9]+";
ws
    : "[\u{0020}]+" #skip;
`)
	tree, in := parseString(t, newParser(t, lang), " 1 + 2 ", nil)
	root := tree.Root()
	lhs := root.ChildByField("lhs")
	if lhs == nil || lhs.Text(in) != "1" {
		t.Fatalf("unexpected lhs: %v", lhs)
	}
	rhs := root.ChildByField("rhs")
	if rhs == nil || rhs.Text(in) != "2" {
		t.Fatalf("unexpected rhs: %v", rhs)
	}
	if rhs.FieldName() != "rhs" {
		t.Fatalf("unexpected field name; want: rhs, got: %v", rhs.FieldName())
	}
	if root.ChildByField("foo") != nil {
		t.Fatalf("an unknown field must have no child")
	}

	const expected = "(expr lhs: (expr (num)) rhs: (expr (num)))"
	if tree.String() != expected {
		t.Fatalf("unexpected tree; want: %v, got: %v", expected, tree)
	}

	extras := 0
	for _, c := range root.VisibleChildren() {
		if c.IsExtra() {
			extras++
		}
	}
	if extras != 4 {
		t.Fatalf("unexpected extra count; want: 4, got: %v", extras)
	}
	checkStructure(t, tree)
}

type markerScanner struct {
	marker    language.Symbol
	created   int
	destroyed int
	valid     [][]bool
}

type markerState struct {
	scans int
}

func (s *markerScanner) CreateState() any {
	s.created++
	return &markerState{}
}

func (s *markerScanner) DestroyState(state any) {
	if _, ok := state.(*markerState); ok {
		s.destroyed++
	}
}

func (s *markerScanner) Scan(state any, c *ScanCursor, valid []bool) (language.Symbol, bool) {
	state.(*markerState).scans++
	s.valid = append(s.valid, valid)
	if c.EOF() || c.Lookahead() != '!' {
		return 0, false
	}
	c.Advance()
	c.MarkEnd()
	return s.marker, true
}

func TestParser_ExternalScanner(t *testing.T) {
	lang := newLanguage(t, `
#name test;

#external marker;

s
    : s item
    | item
    ;
item
    : marker word
    | word
    ;

word
    : "[a-z]+";
ws
    : "[\u{0020}]+" #skip;
`)
	marker, ok := lang.SymbolForName("marker", true)
	if !ok || !lang.IsExternal(marker) {
		t.Fatalf("an external terminal was not found")
	}

	scanner := &markerScanner{
		marker: marker,
	}
	tree, in := parseString(t, newParser(t, lang, WithExternalScanner(scanner)), "!ab cd", nil)
	if tree.ErrorCount() != 0 {
		t.Fatalf("unexpected error count; want: 0, got: %v\n%v", tree.ErrorCount(), tree)
	}
	const expected = "(s (s (item (marker) (word))) (item (word)))"
	if tree.String() != expected {
		t.Fatalf("unexpected tree; want: %v, got: %v", expected, tree)
	}
	if scanner.created != 1 || scanner.destroyed != 1 {
		t.Fatalf("a parse must create and destroy one state; created: %v, destroyed: %v", scanner.created, scanner.destroyed)
	}
	for _, valid := range scanner.valid {
		if len(valid) != 1 || !valid[0] {
			t.Fatalf("a scanner must be called only when its terminal is valid; got: %v", valid)
		}
	}
	item := tree.Root().Child(0).Child(0)
	if item.Child(0).Text(in) != "!" {
		t.Fatalf("unexpected marker text: %q", item.Child(0).Text(in))
	}
	checkStructure(t, tree)

	tree, _ = parseString(t, newParser(t, lang), "!ab", nil)
	if tree.ErrorCount() == 0 {
		t.Fatalf("a marker must be an error without a scanner")
	}
}
