package language

import (
	"bytes"
	"encoding/json"
	"go/format"
	"text/template"

	spec "github.com/nihei9/sapling/spec/grammar"
)

const accessorTemplate = `// Code generated by sapling-go. DO NOT EDIT.

package {{ .PackageName }}

import (
	"encoding/json"

	"github.com/nihei9/sapling/language"
	spec "github.com/nihei9/sapling/spec/grammar"
)

const compiledGrammar = {{ printf "%q" .CompiledGrammar }}

var languageAccessor = language.NewAccessor(func() (*spec.CompiledGrammar, error) {
	g := &spec.CompiledGrammar{}
	err := json.Unmarshal([]byte(compiledGrammar), g)
	if err != nil {
		return nil, err
	}
	return g, nil
})

// Language returns the descriptor of the {{ .Name }} language. Every call returns the
// same value, and it is safe to call from multiple goroutines.
func Language() *language.Language {
	return languageAccessor()
}
`

var accessorTmpl = template.Must(template.New("accessor").Parse(accessorTemplate))

// GenAccessor generates the source code of a Go package embedding a compiled grammar
// and exposing it through a function named Language.
func GenAccessor(g *spec.CompiledGrammar, pkgName string) ([]byte, error) {
	// New rejects a broken grammar here instead of in the generated code.
	if _, err := New(g); err != nil {
		return nil, err
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}

	var src bytes.Buffer
	err = accessorTmpl.Execute(&src, struct {
		PackageName     string
		Name            string
		CompiledGrammar string
	}{
		PackageName:     pkgName,
		Name:            g.Name,
		CompiledGrammar: string(b),
	})
	if err != nil {
		return nil, err
	}

	return format.Source(src.Bytes())
}
