package parser

import (
	"strings"
	"testing"

	verr "github.com/nihei9/sapling/error"
)

func TestParse(t *testing.T) {
	name := func(param *ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       "name",
			Parameters: []*ParameterNode{param},
		}
	}
	prec := func(param *ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       "prec",
			Parameters: []*ParameterNode{param},
		}
	}
	leftAssoc := func(params ...*ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       "left",
			Parameters: params,
		}
	}
	rightAssoc := func(params ...*ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       "right",
			Parameters: params,
		}
	}
	assign := func(params ...*ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       "assign",
			Parameters: params,
		}
	}
	prod := func(lhs string, alts ...*AlternativeNode) *ProductionNode {
		return &ProductionNode{
			LHS: lhs,
			RHS: alts,
		}
	}
	withProdPos := func(prod *ProductionNode, pos Position) *ProductionNode {
		prod.Pos = pos
		return prod
	}
	withProdDir := func(prod *ProductionNode, dirs ...*DirectiveNode) *ProductionNode {
		prod.Directives = dirs
		return prod
	}
	alt := func(elems ...*ElementNode) *AlternativeNode {
		return &AlternativeNode{
			Elements: elems,
		}
	}
	withAltPos := func(alt *AlternativeNode, pos Position) *AlternativeNode {
		alt.Pos = pos
		return alt
	}
	withAltDir := func(alt *AlternativeNode, dirs ...*DirectiveNode) *AlternativeNode {
		alt.Directives = dirs
		return alt
	}
	dir := func(name string, params ...*ParameterNode) *DirectiveNode {
		return &DirectiveNode{
			Name:       name,
			Parameters: params,
		}
	}
	withDirPos := func(dir *DirectiveNode, pos Position) *DirectiveNode {
		dir.Pos = pos
		return dir
	}
	idParam := func(id string) *ParameterNode {
		return &ParameterNode{
			ID: id,
		}
	}
	strParam := func(s string) *ParameterNode {
		return &ParameterNode{
			String: s,
		}
	}
	ordSymParam := func(id string) *ParameterNode {
		return &ParameterNode{
			OrderedSymbol: id,
		}
	}
	group := func(dirs ...*DirectiveNode) *ParameterNode {
		return &ParameterNode{
			Group: dirs,
		}
	}
	withParamPos := func(param *ParameterNode, pos Position) *ParameterNode {
		param.Pos = pos
		return param
	}
	id := func(id string) *ElementNode {
		return &ElementNode{
			ID: id,
		}
	}
	pat := func(p string) *ElementNode {
		return &ElementNode{
			Pattern: p,
		}
	}
	str := func(p string) *ElementNode {
		return &ElementNode{
			Pattern:   p,
			Literally: true,
		}
	}
	label := func(name string) *LabelNode {
		return &LabelNode{
			Name: name,
		}
	}
	withLabel := func(elem *ElementNode, label *LabelNode) *ElementNode {
		elem.Label = label
		return elem
	}
	withElemPos := func(elem *ElementNode, pos Position) *ElementNode {
		elem.Pos = pos
		return elem
	}
	frag := func(lhs string, rhs string) *FragmentNode {
		return &FragmentNode{
			LHS: lhs,
			RHS: rhs,
		}
	}
	withFragmentPos := func(frag *FragmentNode, pos Position) *FragmentNode {
		frag.Pos = pos
		return frag
	}
	newPos := func(row int) Position {
		return Position{
			Row: row,
			Col: 0,
		}
	}

	tests := []struct {
		caption       string
		src           string
		checkPosition bool
		ast           *RootNode
		synErr        *SyntaxError
	}{
		{
			caption: "a grammar can contain top-level directives",
			src: `
#name test;

#prec (
    #left a '+' $x1
    #right c
    #assign e
);

#glr expr stmt;
`,
			checkPosition: true,
			ast: &RootNode{
				Directives: []*DirectiveNode{
					withDirPos(
						name(withParamPos(idParam("test"), newPos(2))),
						newPos(2),
					),
					withDirPos(
						prec(
							withParamPos(
								group(
									withDirPos(
										leftAssoc(
											withParamPos(idParam("a"), newPos(5)),
											withParamPos(strParam("+"), newPos(5)),
											withParamPos(ordSymParam("x1"), newPos(5)),
										),
										newPos(5),
									),
									withDirPos(
										rightAssoc(withParamPos(idParam("c"), newPos(6))),
										newPos(6),
									),
									withDirPos(
										assign(withParamPos(idParam("e"), newPos(7))),
										newPos(7),
									),
								),
								newPos(4),
							),
						),
						newPos(4),
					),
					withDirPos(
						dir("glr",
							withParamPos(idParam("expr"), newPos(10)),
							withParamPos(idParam("stmt"), newPos(10)),
						),
						newPos(10),
					),
				},
			},
		},
		{
			caption: "a top-level directive must be followed by ';'",
			src: `
#name test
`,
			synErr: synErrTopLevelDirNoSemicolon,
		},
		{
			caption: "a directive group must be closed by ')'",
			src: `
#prec (
    #left a b
;
`,
			synErr: synErrUnclosedDirGroup,
		},
		{
			caption: "an ordered symbol marker '$' must be followed by an ID",
			src: `
#prec (
    #assign $
);
`,
			synErr: synErrNoOrderedSymbolName,
		},
		{
			caption: "a directive needs a name",
			src: `
#;
`,
			synErr: synErrNoDirectiveName,
		},
		{
			caption: "single production is a valid grammar",
			src:     `a: "a";`,
			ast: &RootNode{
				LexProductions: []*ProductionNode{
					prod("a", alt(pat("a"))),
				},
			},
		},
		{
			caption: "multiple productions are a valid grammar",
			src: `
e
    : e add t
    | e sub t
    | t
    ;
t
    : t mul f
    | f
    ;
f
    : l_paren e r_paren
    | id
    ;
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("e",
						alt(id("e"), id("add"), id("t")),
						alt(id("e"), id("sub"), id("t")),
						alt(id("t")),
					),
					prod("t",
						alt(id("t"), id("mul"), id("f")),
						alt(id("f")),
					),
					prod("f",
						alt(id("l_paren"), id("e"), id("r_paren")),
						alt(id("id")),
					),
				},
			},
		},
		{
			caption: "productions can contain the empty alternative",
			src: `
a
    : foo
    |
    ;
b
    :
    | bar
    ;
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("a",
						alt(id("foo")),
						alt(),
					),
					prod("b",
						alt(),
						alt(id("bar")),
					),
				},
			},
		},
		{
			caption: "an alternative can contain a string literal without a terminal symbol",
			src: `
s
    : 'foo' bar
    ;
bar
    : 'bar';
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("s",
						alt(str("foo"), id("bar")),
					),
				},
				LexProductions: []*ProductionNode{
					prod("bar",
						alt(str("bar")),
					),
				},
			},
		},
		{
			caption: "an alternative cannot contain a pattern directly",
			src: `
s
    : "foo" bar
    ;
`,
			synErr: synErrPatternInAlt,
		},
		{
			caption: "`fragment` is a reserved word",
			src:     `fragment: 'fragment';`,
			synErr:  synErrNoFragmentName,
		},
		{
			caption: "when a source contains an unknown token, the parser raises a syntax error",
			src:     `a: !;`,
			synErr:  synErrInvalidToken,
		},
		{
			caption: "a production must have its name as the first element",
			src:     `: "a";`,
			synErr:  synErrNoProductionName,
		},
		{
			caption: "':' must precede an alternative",
			src:     `a "a";`,
			synErr:  synErrNoColon,
		},
		{
			caption: "';' must follow a production",
			src:     `a: "a"`,
			synErr:  synErrNoSemicolon,
		},
		{
			caption: "';' can only appear at the end of a production",
			src:     `;`,
			synErr:  synErrNoProductionName,
		},
		{
			caption: "a grammar can contain fragments",
			src: `
s
    : tagline
    ;
tagline: "\f{words} IS OUT THERE.";
fragment words: "[A-Za-z\u{0020}]+";
fragment dot: '.';
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("s",
						alt(id("tagline")),
					),
				},
				LexProductions: []*ProductionNode{
					prod("tagline",
						alt(pat(`\f{words} IS OUT THERE.`)),
					),
				},
				Fragments: []*FragmentNode{
					frag("words", `[A-Za-z\u{0020}]+`),
					frag("dot", `\.`),
				},
			},
		},
		{
			caption: "a fragment needs one pattern element",
			src: `
fragment words: foo;
`,
			synErr: synErrFragmentNoPattern,
		},
		{
			caption: "a grammar can contain production directives and alternative directives",
			src: `
expr
    : expr '+' expr
    | '-' expr #prec neg
    | num
    ;
ws #skip
    : "[\u{0020}]+";
comment: "//[^\n]*" #skip;
arrow: '->' #alias 'arrow';
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("expr",
						alt(id("expr"), str("+"), id("expr")),
						withAltDir(
							alt(str("-"), id("expr")),
							dir("prec", idParam("neg")),
						),
						alt(id("num")),
					),
				},
				LexProductions: []*ProductionNode{
					withProdDir(
						prod("ws",
							alt(pat(`[\u{0020}]+`)),
						),
						dir("skip"),
					),
					withProdDir(
						prod("comment",
							alt(pat(`//[^\n]*`)),
						),
						dir("skip"),
					),
					withProdDir(
						prod("arrow",
							alt(str(`->`)),
						),
						dir("alias", strParam("arrow")),
					),
				},
			},
		},
		{
			caption: "an alternative of a production can have multiple alternative directives",
			src: `
s
    : foo bar #prec baz #foo
    ;
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("s",
						withAltDir(
							alt(id("foo"), id("bar")),
							dir("prec", idParam("baz")),
							dir("foo"),
						),
					),
				},
			},
		},
		{
			caption: "an element cannot follow directives of an alternative",
			src: `
s
    : foo #prec baz "bar"
    ;
`,
			synErr: synErrElemAfterDirective,
		},
		{
			caption: "an AST has node positions",
			src: `
exp
    : exp '+' id
    | id
    ;

whitespace #skip
    : "\u{0020}+";
id
    : "\f{letter}(\f{letter}|\f{number})*";
fragment letter
    : "[A-Za-z_]";
fragment number
    : "[0-9]";
`,
			checkPosition: true,
			ast: &RootNode{
				Productions: []*ProductionNode{
					withProdPos(
						prod("exp",
							withAltPos(
								alt(
									withElemPos(id("exp"), newPos(3)),
									withElemPos(str(`+`), newPos(3)),
									withElemPos(id("id"), newPos(3)),
								),
								newPos(3),
							),
							withAltPos(
								alt(
									withElemPos(id("id"), newPos(4)),
								),
								newPos(4),
							),
						),
						newPos(2),
					),
				},
				LexProductions: []*ProductionNode{
					withProdPos(
						withProdDir(
							prod("whitespace",
								withAltPos(
									alt(
										withElemPos(pat(`\u{0020}+`), newPos(8)),
									),
									newPos(8),
								),
							),
							withDirPos(dir("skip"), newPos(7)),
						),
						newPos(7),
					),
					withProdPos(
						prod("id",
							withAltPos(
								alt(
									withElemPos(pat(`\f{letter}(\f{letter}|\f{number})*`), newPos(10)),
								),
								newPos(10),
							),
						),
						newPos(9),
					),
				},
				Fragments: []*FragmentNode{
					withFragmentPos(frag("letter", "[A-Za-z_]"), newPos(11)),
					withFragmentPos(frag("number", "[0-9]"), newPos(13)),
				},
			},
		},
		{
			caption: "a symbol can have a label",
			src: `
expr
    : term@lhs add term@rhs
    ;
`,
			ast: &RootNode{
				Productions: []*ProductionNode{
					prod("expr",
						alt(
							withLabel(id("term"), label("lhs")),
							id("add"),
							withLabel(id("term"), label("rhs")),
						),
					),
				},
			},
		},
		{
			caption: "a label must be an identifier, not a string",
			src: `
foo
    : bar@'baz'
    ;
`,
			synErr: synErrNoLabel,
		},
		{
			caption: "the symbol marker @ must be followed by an identifier",
			src: `
foo
    : bar@
    ;
`,
			synErr: synErrNoLabel,
		},
		{
			caption: "a symbol cannot have more than or equal to two labels",
			src: `
foo
    : bar@baz@bra
    ;
`,
			synErr: synErrLabelWithNoSymbol,
		},
		{
			caption: "a label must follow a symbol",
			src: `
foo
    : @baz
    ;
`,
			synErr: synErrLabelWithNoSymbol,
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			ast, err := Parse(strings.NewReader(tt.src))
			if tt.synErr != nil {
				synErrs, ok := err.(verr.SpecErrors)
				if !ok {
					t.Fatalf("unexpected error; want: %v, got: %v", tt.synErr, err)
				}
				synErr := synErrs[0]
				if tt.synErr != synErr.Cause {
					t.Fatalf("unexpected error; want: %v, got: %v", tt.synErr, synErr.Cause)
				}
				if ast != nil {
					t.Fatalf("AST must be nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if ast == nil {
					t.Fatalf("AST must be non-nil")
				}
				testRootNode(t, ast, tt.ast, tt.checkPosition)
			}
		})
	}
}

func testRootNode(t *testing.T, root, expected *RootNode, checkPosition bool) {
	t.Helper()
	if len(root.Productions) != len(expected.Productions) {
		t.Fatalf("unexpected length of productions; want: %v, got: %v", len(expected.Productions), len(root.Productions))
	}
	if len(root.LexProductions) != len(expected.LexProductions) {
		t.Fatalf("unexpected length of lexical productions; want: %v, got: %v", len(expected.LexProductions), len(root.LexProductions))
	}
	if len(root.Fragments) != len(expected.Fragments) {
		t.Fatalf("unexpected length of fragments; want: %v, got: %v", len(expected.Fragments), len(root.Fragments))
	}
	if len(root.Directives) != len(expected.Directives) {
		t.Fatalf("unexpected length of top-level directives; want: %v, got: %v", len(expected.Directives), len(root.Directives))
	}
	testDirectives(t, root.Directives, expected.Directives, checkPosition)
	for i, prod := range root.Productions {
		testProductionNode(t, prod, expected.Productions[i], checkPosition)
	}
	for i, prod := range root.LexProductions {
		testProductionNode(t, prod, expected.LexProductions[i], checkPosition)
	}
	for i, frag := range root.Fragments {
		testFragmentNode(t, frag, expected.Fragments[i], checkPosition)
	}
}

func testProductionNode(t *testing.T, prod, expected *ProductionNode, checkPosition bool) {
	t.Helper()
	if len(expected.Directives) != len(prod.Directives) {
		t.Fatalf("unexpected directive count; want: %v directives, got: %v directives", len(expected.Directives), len(prod.Directives))
	}
	testDirectives(t, prod.Directives, expected.Directives, checkPosition)
	if prod.LHS != expected.LHS {
		t.Fatalf("unexpected LHS; want: %v, got: %v", expected.LHS, prod.LHS)
	}
	if len(prod.RHS) != len(expected.RHS) {
		t.Fatalf("unexpected length of an RHS; want: %v, got: %v", len(expected.RHS), len(prod.RHS))
	}
	for i, alt := range prod.RHS {
		testAlternativeNode(t, alt, expected.RHS[i], checkPosition)
	}
	if checkPosition {
		testPosition(t, prod.Pos, expected.Pos)
	}
}

func testFragmentNode(t *testing.T, frag, expected *FragmentNode, checkPosition bool) {
	t.Helper()
	if frag.LHS != expected.LHS {
		t.Fatalf("unexpected LHS; want: %v, got: %v", expected.LHS, frag.LHS)
	}
	if frag.RHS != expected.RHS {
		t.Fatalf("unexpected RHS; want: %v, got: %v", expected.RHS, frag.RHS)
	}
	if checkPosition {
		testPosition(t, frag.Pos, expected.Pos)
	}
}

func testAlternativeNode(t *testing.T, alt, expected *AlternativeNode, checkPosition bool) {
	t.Helper()
	if len(alt.Elements) != len(expected.Elements) {
		t.Fatalf("unexpected length of elements; want: %v, got: %v", len(expected.Elements), len(alt.Elements))
	}
	for i, elem := range alt.Elements {
		testElementNode(t, elem, expected.Elements[i], checkPosition)
	}
	if len(alt.Directives) != len(expected.Directives) {
		t.Fatalf("unexpected alternative directive count; want: %v directive, got: %v directive", len(expected.Directives), len(alt.Directives))
	}
	testDirectives(t, alt.Directives, expected.Directives, checkPosition)
	if checkPosition {
		testPosition(t, alt.Pos, expected.Pos)
	}
}

func testElementNode(t *testing.T, elem, expected *ElementNode, checkPosition bool) {
	t.Helper()
	if elem.ID != expected.ID {
		t.Fatalf("unexpected ID; want: %v, got: %v", expected.ID, elem.ID)
	}
	if elem.Pattern != expected.Pattern {
		t.Fatalf("unexpected pattern; want: %v, got: %v", expected.Pattern, elem.Pattern)
	}
	if elem.Literally != expected.Literally {
		t.Fatalf("unexpected literal flag; want: %v, got: %v", expected.Literally, elem.Literally)
	}
	if expected.Label == nil && elem.Label != nil || expected.Label != nil && elem.Label == nil {
		t.Fatalf("unexpected label; want: %+v, got: %+v", expected.Label, elem.Label)
	}
	if expected.Label != nil && elem.Label.Name != expected.Label.Name {
		t.Fatalf("unexpected label name; want: %v, got: %v", expected.Label.Name, elem.Label.Name)
	}
	if checkPosition {
		testPosition(t, elem.Pos, expected.Pos)
	}
}

func testDirectives(t *testing.T, dirs, expected []*DirectiveNode, checkPosition bool) {
	t.Helper()
	for i, exp := range expected {
		dir := dirs[i]

		if exp.Name != dir.Name {
			t.Fatalf("unexpected directive name; want: %+v, got: %+v", exp.Name, dir.Name)
		}
		if len(exp.Parameters) != len(dir.Parameters) {
			t.Fatalf("unexpected directive parameter; want: %+v, got: %+v", exp.Parameters, dir.Parameters)
		}
		for j, expParam := range exp.Parameters {
			testParameter(t, dir.Parameters[j], expParam, checkPosition)
		}
		if checkPosition {
			testPosition(t, dir.Pos, exp.Pos)
		}
	}
}

func testParameter(t *testing.T, param, expected *ParameterNode, checkPosition bool) {
	t.Helper()
	if param.ID != expected.ID {
		t.Fatalf("unexpected ID parameter; want: %v, got: %v", expected.ID, param.ID)
	}
	if param.String != expected.String {
		t.Fatalf("unexpected string parameter; want: %v, got: %v", expected.String, param.String)
	}
	if param.OrderedSymbol != expected.OrderedSymbol {
		t.Fatalf("unexpected ordered symbol; want: %v, got: %v", expected.OrderedSymbol, param.OrderedSymbol)
	}
	if len(param.Group) != len(expected.Group) {
		t.Fatalf("unexpected directive group; want: %v directives, got: %v directives", len(expected.Group), len(param.Group))
	}
	testDirectives(t, param.Group, expected.Group, checkPosition)
	if checkPosition {
		testPosition(t, param.Pos, expected.Pos)
	}
}

func testPosition(t *testing.T, pos, expected Position) {
	t.Helper()
	if pos.Row != expected.Row {
		t.Fatalf("unexpected position want: %+v, got: %+v", expected, pos)
	}
}
