package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nihei9/sapling/cache"
	verr "github.com/nihei9/sapling/error"
	"github.com/nihei9/sapling/grammar"
	"github.com/nihei9/sapling/language"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/nihei9/sapling/spec/grammar/parser"
)

// readSource reads a file, or the standard input when path is empty.
func readSource(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot open the file %s: %w", path, err)
	}
	return src, nil
}

func buildGrammar(src []byte) (*grammar.Grammar, error) {
	ast, err := parser.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	b := grammar.GrammarBuilder{
		AST: ast,
	}
	return b.Build()
}

// withSourceName sets the file path and the source name of errors found in a grammar so
// that they print the offending line.
func withSourceName(err error, path string) error {
	var specErrs verr.SpecErrors
	if !errors.As(err, &specErrs) {
		return err
	}
	for _, e := range specErrs {
		e.FilePath = path
		if path != "" {
			e.SourceName = path
		} else {
			e.SourceName = "stdin"
		}
	}
	return err
}

// compiler returns a function compiling a grammar source read from path.
func compiler(path string) func(src []byte) (*spec.CompiledGrammar, error) {
	return func(src []byte) (*spec.CompiledGrammar, error) {
		g, err := buildGrammar(src)
		if err != nil {
			return nil, withSourceName(err, path)
		}
		cg, _, err := grammar.Compile(g)
		if err != nil {
			return nil, err
		}
		return cg, nil
	}
}

// loadCompiledGrammar reads a compiled grammar when path has the .json extension.
// Otherwise it reads a grammar source and compiles it through the cache.
func loadCompiledGrammar(path string) (*spec.CompiledGrammar, error) {
	if filepath.Ext(path) == ".json" {
		return readCompiledGrammar(path)
	}

	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	if *rootFlags.noCache {
		return compiler(path)(src)
	}

	cachePath := *rootFlags.cache
	if cachePath == "" {
		cachePath, err = cache.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("Cannot locate the cache directory: %w", err)
		}
	}
	c, err := cache.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Load(src, compiler(path))
}

func loadLanguage(path string) (*language.Language, error) {
	cg, err := loadCompiledGrammar(path)
	if err != nil {
		return nil, err
	}
	return language.New(cg)
}

func readCompiledGrammar(path string) (*spec.CompiledGrammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cgram := &spec.CompiledGrammar{}
	err = json.Unmarshal(data, cgram)
	if err != nil {
		return nil, err
	}
	return cgram, nil
}
