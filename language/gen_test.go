package language

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"testing"

	spec "github.com/nihei9/sapling/spec/grammar"
)

func TestGenAccessor(t *testing.T) {
	cg := compileGrammar(t, exprGrammar)
	src, err := GenAccessor(cg, "expr")
	if err != nil {
		t.Fatal(err)
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "expr_language.go", src, 0)
	if err != nil {
		t.Fatalf("generated code is broken: %v\n%s", err, src)
	}
	if f.Name.Name != "expr" {
		t.Fatalf("unexpected package name; want: %v, got: %v", "expr", f.Name.Name)
	}

	var accessorFound bool
	var embedded string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name.Name == "Language" && d.Recv == nil && len(d.Type.Params.List) == 0 {
				accessorFound = true
			}
		case *ast.GenDecl:
			for _, s := range d.Specs {
				vs, ok := s.(*ast.ValueSpec)
				if !ok || len(vs.Names) != 1 || vs.Names[0].Name != "compiledGrammar" {
					continue
				}
				lit, ok := vs.Values[0].(*ast.BasicLit)
				if !ok {
					t.Fatalf("compiledGrammar must be a string literal")
				}
				embedded, err = strconv.Unquote(lit.Value)
				if err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	if !accessorFound {
		t.Fatalf("func Language() was not generated:\n%s", src)
	}

	// The embedded grammar must load into the same language.
	g := &spec.CompiledGrammar{}
	err = json.Unmarshal([]byte(embedded), g)
	if err != nil {
		t.Fatal(err)
	}
	lang, err := New(g)
	if err != nil {
		t.Fatal(err)
	}
	if lang.Name() != "expr" || lang.StateCount() != newLanguage(t, exprGrammar).StateCount() {
		t.Fatalf("unexpected embedded language: %v (%v states)", lang.Name(), lang.StateCount())
	}
}

func TestGenAccessor_InvalidGrammar(t *testing.T) {
	_, err := GenAccessor(&spec.CompiledGrammar{Name: "broken"}, "broken")
	if err == nil {
		t.Fatal("a broken grammar must be rejected")
	}
}
