package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nihei9/sapling/grammar"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/nihei9/sapling/spec/grammar/parser"
)

const testGrammar = `
#name test;

s
    : foo
    ;

foo
    : 'foo';
`

func compileGrammar(src []byte) (*spec.CompiledGrammar, error) {
	ast, err := parser.Parse(strings.NewReader(string(src)))
	if err != nil {
		return nil, err
	}
	b := grammar.GrammarBuilder{
		AST: ast,
	}
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	cg, _, err := grammar.Compile(g)
	return cg, err
}

func openTestCache(t *testing.T, path string) *Cache {
	t.Helper()
	c, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open a cache: %v", err)
	}
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "grammars.db")
	src := []byte(testGrammar)

	c := openTestCache(t, path)
	_, err := c.Get(src)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected error; want: %v, got: %v", ErrNotFound, err)
	}

	compiled := 0
	compile := func(src []byte) (*spec.CompiledGrammar, error) {
		compiled++
		return compileGrammar(src)
	}
	g1, err := c.Load(src, compile)
	if err != nil {
		t.Fatal(err)
	}
	if g1.Name != "test" {
		t.Fatalf("unexpected grammar name; want: %v, got: %v", "test", g1.Name)
	}
	err = c.Close()
	if err != nil {
		t.Fatal(err)
	}

	c = openTestCache(t, path)
	defer c.Close()
	g2, err := c.Load(src, compile)
	if err != nil {
		t.Fatal(err)
	}
	if compiled != 1 {
		t.Fatalf("a cached grammar must not be recompiled; want: 1, got: %v", compiled)
	}
	if g2.Name != g1.Name || g2.Syntactic.StateCount != g1.Syntactic.StateCount {
		t.Fatalf("unexpected cached grammar; want: %v (%v states), got: %v (%v states)",
			g1.Name, g1.Syntactic.StateCount, g2.Name, g2.Syntactic.StateCount)
	}

	es, err := c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 1 || es[0].Digest != Digest(src) || es[0].Name != "test" {
		t.Fatalf("unexpected entries: %+v", es)
	}

	err = c.Delete(src)
	if err != nil {
		t.Fatal(err)
	}
	err = c.Delete(src)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected error; want: %v, got: %v", ErrNotFound, err)
	}
}

func TestCache_CompileError(t *testing.T) {
	c := openTestCache(t, ":memory:")
	defer c.Close()

	src := []byte("#name test; s: undefined_symbol;")
	_, err := c.Load(src, compileGrammar)
	if err == nil {
		t.Fatal("a compile error must be returned")
	}
	_, err = c.Get(src)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("a failed compilation must not be stored; got: %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	c := openTestCache(t, ":memory:")
	defer c.Close()

	g, err := compileGrammar([]byte(testGrammar))
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{"a", "b"} {
		err := c.Put([]byte(src), g)
		if err != nil {
			t.Fatal(err)
		}
	}
	es, err := c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 2 {
		t.Fatalf("unexpected entry count; want: 2, got: %v", len(es))
	}
	err = c.Clear()
	if err != nil {
		t.Fatal(err)
	}
	es, err = c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 0 {
		t.Fatalf("unexpected entry count; want: 0, got: %v", len(es))
	}
}

func TestDigest(t *testing.T) {
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Fatal("different sources must have different digests")
	}
	if d := Digest([]byte("a")); len(d) != 64 {
		t.Fatalf("unexpected digest length; want: 64, got: %v", len(d))
	}
}
