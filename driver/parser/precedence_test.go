package parser

import (
	"fmt"
	"testing"
)

const idExpr = "(expr (id))"

func binExpr(lhs, op, rhs string) string {
	return fmt.Sprintf("(expr %v (%v) %v)", lhs, op, rhs)
}

func TestParser_Precedence(t *testing.T) {
	tests := []struct {
		caption string
		specSrc string
		src     string
		tree    string
	}{
		{
			caption: "left associativities defined earlier in the grammar have higher precedence",
			specSrc: `
#name test;

#prec (
    #left mul
    #left add
);

expr
    : expr add expr
    | expr mul expr
    | id
    ;

id
    : "[A-Za-z0-9_]+";
add
    : '+';
mul
    : '*';
`,
			src: `a+b*c*d+e`,
			tree: binExpr(
				binExpr(
					idExpr,
					"add",
					binExpr(
						binExpr(idExpr, "mul", idExpr),
						"mul",
						idExpr,
					),
				),
				"add",
				idExpr,
			),
		},
		{
			caption: "left associativities defined in the same line have the same precedence",
			specSrc: `
#name test;

#prec (
    #left add sub
);

expr
    : expr add expr
    | expr sub expr
    | id
    ;

id
    : "[A-Za-z0-9_]+";
add
    : '+';
sub
    : '-';
`,
			src: `a-b+c+d-e`,
			tree: binExpr(
				binExpr(
					binExpr(
						binExpr(idExpr, "sub", idExpr),
						"add",
						idExpr,
					),
					"add",
					idExpr,
				),
				"sub",
				idExpr,
			),
		},
		{
			caption: "right associativities defined earlier in the grammar have higher precedence",
			specSrc: `
#name test;

#prec (
    #right r1
    #right r2
);

expr
    : expr r2 expr
    | expr r1 expr
    | id
    ;

whitespaces
    : "[\u{0009}\u{0020}]+" #skip;
r1
    : 'r1';
r2
    : 'r2';
id
    : "[A-Za-z0-9_]+";
`,
			src: `a r2 b r1 c r1 d r2 e`,
			tree: binExpr(
				idExpr,
				"r2",
				binExpr(
					binExpr(
						idExpr,
						"r1",
						binExpr(idExpr, "r1", idExpr),
					),
					"r2",
					idExpr,
				),
			),
		},
		{
			caption: "right associativities defined in the same line have the same precedence",
			specSrc: `
#name test;

#prec (
    #right r1 r2
);

expr
    : expr r2 expr
    | expr r1 expr
    | id
    ;

whitespaces
    : "[\u{0009}\u{0020}]+" #skip;
r1
    : 'r1';
r2
    : 'r2';
id
    : "[A-Za-z0-9_]+";
`,
			src: `a r2 b r1 c r1 d r2 e`,
			tree: binExpr(
				idExpr,
				"r2",
				binExpr(
					idExpr,
					"r1",
					binExpr(
						idExpr,
						"r1",
						binExpr(idExpr, "r2", idExpr),
					),
				),
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			lang := newLanguage(t, tt.specSrc)
			tree, _ := parseString(t, newParser(t, lang), tt.src, nil)
			if tree.ErrorCount() != 0 {
				t.Fatalf("unexpected error count; want: 0, got: %v\n%v", tree.ErrorCount(), tree)
			}
			if tree.String() != tt.tree {
				t.Fatalf("unexpected tree; want: %v, got: %v", tt.tree, tree)
			}
			checkStructure(t, tree)
		})
	}
}
