package test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestDiffTree(t *testing.T) {
	tests := []struct {
		t1        *Tree
		t2        *Tree
		different bool
	}{
		{
			t1: NewTree("a"),
			t2: NewTree("a"),
		},
		{
			t1: NewTree("a",
				NewTree("b"),
			),
			t2: NewTree("a",
				NewTree("b"),
			),
		},
		{
			t1: NewTree("a",
				NewTree("b"),
				NewTree("c"),
				NewTree("d"),
			),
			t2: NewTree("a",
				NewTree("b"),
				NewTree("c"),
				NewTree("d"),
			),
		},
		{
			t1: NewTree("a",
				NewTree("b",
					NewTree("c"),
				),
				NewTree("d",
					NewTree("d"),
				),
			),
			t2: NewTree("a",
				NewTree("b",
					NewTree("c"),
				),
				NewTree("d",
					NewTree("d"),
				),
			),
		},
		{
			t1:        NewTree("a"),
			t2:        NewTree("b"),
			different: true,
		},
		{
			t1: NewTree("a",
				NewTree("b"),
			),
			t2:        NewTree("a"),
			different: true,
		},
		{
			t1: NewTree("a"),
			t2: NewTree("a",
				NewTree("b"),
			),
			different: true,
		},
		{
			t1: NewTree("a",
				NewTree("b"),
			),
			t2: NewTree("a",
				NewTree("c"),
			),
			different: true,
		},
		{
			t1: NewTree("a",
				NewTree("b"),
				NewTree("c"),
				NewTree("d"),
			),
			t2: NewTree("a",
				NewTree("b"),
				NewTree("c"),
			),
			different: true,
		},
		{
			t1: NewTree("a",
				NewTree("b"),
				NewTree("c"),
			),
			t2: NewTree("a",
				NewTree("b"),
				NewTree("c"),
				NewTree("d"),
			),
			different: true,
		},
		{
			t1: NewTree("a",
				NewTree("b",
					NewTree("c"),
				),
			),
			t2: NewTree("a",
				NewTree("b",
					NewTree("d"),
				),
			),
			different: true,
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			diffs := DiffTree(tt.t1, tt.t2)
			if tt.different && len(diffs) == 0 {
				t.Fatalf("unexpected result")
			} else if !tt.different && len(diffs) > 0 {
				t.Fatalf("unexpected result")
			}
		})
	}
}

func TestParseTestCase(t *testing.T) {
	tests := []struct {
		src      string
		tc       *TestCase
		parseErr bool
	}{
		{
			src: `test
---
foo
---
(foo)
`,
			tc: &TestCase{
				Description: "test",
				Source:      []byte("foo"),
				Output:      NewTree("foo").Fill(),
			},
		},
		{
			src: `
test

---

foo

---

(foo)

`,
			tc: &TestCase{
				Description: "\ntest\n",
				Source:      []byte("\nfoo\n"),
				Output:      NewTree("foo").Fill(),
			},
		},
		// The length of a part delimiter may be greater than 3.
		{
			src: `
test
----
foo
----
(foo)
`,
			tc: &TestCase{
				Description: "\ntest",
				Source:      []byte("foo"),
				Output:      NewTree("foo").Fill(),
			},
		},
		// The description part may be empty.
		{
			src: `----
foo
----
(foo)
`,
			tc: &TestCase{
				Description: "",
				Source:      []byte("foo"),
				Output:      NewTree("foo").Fill(),
			},
		},
		// The source part may be empty.
		{
			src: `test
---
---
(foo)
`,
			tc: &TestCase{
				Description: "test",
				Source:      []byte{},
				Output:      NewTree("foo").Fill(),
			},
		},
		// NOTE: If there is a delimiter at the end of a test case, we really want to make it a syntax error,
		// but we allow it to simplify the implementation of the parser.
		{
			src: `test
----
foo
----
(foo)
---
`,
			tc: &TestCase{
				Description: "test",
				Source:      []byte("foo"),
				Output:      NewTree("foo").Fill(),
			},
		},
		{
			src:      ``,
			parseErr: true,
		},
		{
			src: `test
---
`,
			parseErr: true,
		},
		{
			src: `test
---
foo
`,
			parseErr: true,
		},
		{
			src: `test
---
foo
---
`,
			parseErr: true,
		},
		{
			src: `test
--
foo
--
(foo)
`,
			parseErr: true,
		},
		{
			src: `test
---
foo
---
?
`,
			parseErr: true,
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			tc, err := ParseTestCase(strings.NewReader(tt.src))
			if tt.parseErr {
				if err == nil {
					t.Fatalf("an expected error didn't occur")
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
				testTestCase(t, tt.tc, tc)
			}
		})
	}
}

func testTestCase(t *testing.T, expected, actual *TestCase) {
	t.Helper()

	if expected.Description != actual.Description ||
		!reflect.DeepEqual(expected.Source, actual.Source) ||
		len(DiffTree(expected.Output, actual.Output)) > 0 {
		t.Fatalf("unexpected test case: want: %#v, got: %#v", expected, actual)
	}
}

func TestParseTree(t *testing.T) {
	tests := []struct {
		src      string
		tree     *Tree
		parseErr bool
	}{
		{
			src: `(expr (expr (num)) (expr (num)))`,
			tree: NewTree("expr",
				NewTree("expr",
					NewTree("num"),
				),
				NewTree("expr",
					NewTree("num"),
				),
			),
		},
		{
			src: `(expr lhs: (num '1') rhs: (num "2"))`,
			tree: NewTree("expr",
				NewTerminalTree("num", "1").WithField("lhs"),
				NewTerminalTree("num", "2").WithField("rhs"),
			),
		},
		{
			src: `(str "a\"b\\c\n\t\u{3042}")`,
			tree: NewTerminalTree("str", "a\"b\\c\n\tあ"),
		},
		{
			src:  `(str 'a\n')`,
			tree: NewTerminalTree("str", `a\n`),
		},
		{
			src: `(_ (ERROR) (_))`,
			tree: NewTree("_",
				NewTree("ERROR"),
				NewTree("_"),
			),
		},
		{
			src:      `(a`,
			parseErr: true,
		},
		{
			src:      `(a) (b)`,
			parseErr: true,
		},
		{
			src:      `lhs (a)`,
			parseErr: true,
		},
		{
			src:      `(a "\u{110000}")`,
			parseErr: true,
		},
		{
			src:      `(a "\q")`,
			parseErr: true,
		},
		{
			src:      `(a 'b)`,
			parseErr: true,
		},
		{
			src:      `()`,
			parseErr: true,
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			tp := &treeParser{}
			tree, err := tp.parseTree([]byte(tt.src))
			if tt.parseErr {
				if err == nil {
					t.Fatalf("an expected error didn't occur")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diffs := DiffTree(tt.tree.Fill(), tree); len(diffs) > 0 {
				t.Fatalf("unexpected tree; want: %s, got: %s", tt.tree.Format(), tree.Format())
			}
			if tree.Children != nil && tt.tree.Children != nil {
				for i, c := range tree.Children {
					if c.Field != tt.tree.Children[i].Field {
						t.Fatalf("unexpected field; want: %v, got: %v", tt.tree.Children[i].Field, c.Field)
					}
				}
			}
		})
	}
}

func TestDiffTree_Optional(t *testing.T) {
	actual := NewTree("expr",
		NewTerminalTree("num", "1").WithField("lhs"),
		NewTree("ERROR",
			NewTerminalTree("plus", "+"),
		),
	).Fill()

	tests := []struct {
		caption   string
		expected  *Tree
		different bool
	}{
		{
			caption: "an expected tree may omit lexemes and fields",
			expected: NewTree("expr",
				NewTree("num"),
				NewTree("ERROR"),
			),
		},
		{
			caption: "an expected lexeme must match",
			expected: NewTree("expr",
				NewTerminalTree("num", "2"),
				NewTree("ERROR"),
			),
			different: true,
		},
		{
			caption: "an expected field must match",
			expected: NewTree("expr",
				NewTree("num").WithField("rhs"),
				NewTree("ERROR"),
			),
			different: true,
		},
		{
			caption: "children of an error node are compared when they are written",
			expected: NewTree("expr",
				NewTree("num"),
				NewTree("ERROR",
					NewTree("minus"),
				),
			),
			different: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			diffs := DiffTree(tt.expected.Fill(), actual)
			if tt.different && len(diffs) == 0 {
				t.Fatalf("unexpected result")
			} else if !tt.different && len(diffs) > 0 {
				t.Fatalf("unexpected result: %v", diffs[0].Message)
			}
		})
	}
}
