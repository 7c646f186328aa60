package grammar

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	mlcompiler "github.com/nihei9/maleeni/compiler"
	mlspec "github.com/nihei9/maleeni/spec"
	"github.com/nihei9/sapling/grammar/symbol"
	spec "github.com/nihei9/sapling/spec/grammar"
)

// lexModes is a set of terminals the lexer recognizes in each parser state. A state
// recognizes only the terminals having an action in the state and the skip terminals,
// so a string can be lexed differently depending on the context.
type lexModes struct {
	// modes[i] is the terminals of mode i+1. modes[0] is the default mode holding every
	// terminal defined by lexical entries.
	modes      [][]symbol.Symbol
	stateModes map[stateNum]int
}

func (m *lexModes) name(id int) string {
	if id == spec.LexModeIDDefault.Int() {
		return spec.LexModeNameDefault.String()
	}
	return fmt.Sprintf("mode_%v", id)
}

func (m *lexModes) modesOf(sym symbol.Symbol) []int {
	var ids []int
	for i, terms := range m.modes[1:] {
		for _, t := range terms {
			if t == sym {
				ids = append(ids, i+2)
				break
			}
		}
	}
	return ids
}

func genLexModes(gram *Grammar, automaton *lr0Automaton, tab *ParsingTable) *lexModes {
	external := map[symbol.Symbol]struct{}{}
	for _, sym := range gram.externalSymbols {
		external[sym] = struct{}{}
	}

	var lexed []symbol.Symbol
	var skip []symbol.Symbol
	for _, sym := range gram.symbolTable.TerminalSymbols() {
		if sym.IsEOF() || sym.IsError() {
			continue
		}
		if _, ok := external[sym]; ok {
			continue
		}
		lexed = append(lexed, sym)
		if _, ok := gram.skipSymbols[sym]; ok {
			skip = append(skip, sym)
		}
	}

	modes := &lexModes{
		modes:      [][]symbol.Symbol{lexed},
		stateModes: map[stateNum]int{},
	}
	key2Mode := map[string]int{
		describeTerminalSet(lexed): spec.LexModeIDDefault.Int(),
	}
	for _, state := range automaton.orderedStates() {
		var terms []symbol.Symbol
		for _, sym := range lexed {
			if _, ok := gram.skipSymbols[sym]; ok {
				continue
			}
			if len(tab.getActions(state.num, sym.Num())) == 0 {
				continue
			}
			terms = append(terms, sym)
		}
		if len(terms) == 0 {
			modes.stateModes[state.num] = spec.LexModeIDDefault.Int()
			continue
		}

		terms = append(terms, skip...)
		sort.Slice(terms, func(i, j int) bool {
			return terms[i] < terms[j]
		})
		key := describeTerminalSet(terms)
		id, ok := key2Mode[key]
		if !ok {
			modes.modes = append(modes.modes, terms)
			id = len(modes.modes)
			key2Mode[key] = id
		}
		modes.stateModes[state.num] = id
	}

	return modes
}

func describeTerminalSet(syms []symbol.Symbol) string {
	var b strings.Builder
	for _, sym := range syms {
		fmt.Fprintf(&b, "%v,", sym.Num())
	}
	return b.String()
}

// genLexSpec assigns lex modes to the lexical entries. Every entry belongs to the
// default mode, so the default mode is usable when the parser has no state to
// consult, for instance while recovering from an error.
func genLexSpec(gram *Grammar, modes *lexModes) (*mlspec.LexSpec, error) {
	entries := make([]*mlspec.LexEntry, 0, len(gram.lexEntries))
	for _, e := range gram.lexEntries {
		if e.Fragment {
			entries = append(entries, &mlspec.LexEntry{
				Kind:     e.Kind,
				Pattern:  e.Pattern,
				Fragment: true,
			})
			continue
		}

		sym, ok := gram.symbolTable.ToSymbol(e.Kind.String())
		if !ok {
			return nil, fmt.Errorf("terminal symbol '%v' was not found in a symbol table", e.Kind)
		}
		entryModes := []mlspec.LexModeName{
			mlspec.LexModeName(modes.name(spec.LexModeIDDefault.Int())),
		}
		for _, id := range modes.modesOf(sym) {
			entryModes = append(entryModes, mlspec.LexModeName(modes.name(id)))
		}
		entries = append(entries, &mlspec.LexEntry{
			Modes:   entryModes,
			Kind:    e.Kind,
			Pattern: e.Pattern,
		})
	}

	return &mlspec.LexSpec{
		Name:    gram.name,
		Entries: entries,
	}, nil
}

// compileLexSpec compiles lex entries into DFAs and returns them with a mapping from
// lexical kinds to terminal numbers.
func compileLexSpec(gram *Grammar, lexSpec *mlspec.LexSpec) (*spec.LexicalSpec, []int, error) {
	compiled, err, cErrs := mlcompiler.Compile(lexSpec, mlcompiler.CompressionLevel(mlcompiler.CompressionLevelMax))
	if err != nil {
		if len(cErrs) > 0 {
			var b strings.Builder
			writeCompileError(&b, cErrs[0])
			for _, cerr := range cErrs[1:] {
				fmt.Fprintf(&b, "\n")
				writeCompileError(&b, cerr)
			}
			return nil, nil, fmt.Errorf("%v", b.String())
		}
		return nil, nil, err
	}

	src, err := json.Marshal(compiled)
	if err != nil {
		return nil, nil, err
	}
	var lex spec.LexicalSpec
	err = json.Unmarshal(src, &lex)
	if err != nil {
		return nil, nil, err
	}

	kind2Term := make([]int, len(lex.KindNames))
	for i, k := range lex.KindNames {
		if k == spec.LexKindNameNil {
			kind2Term[spec.LexKindIDNil] = symbol.SymbolNil.Num().Int()
			continue
		}

		sym, ok := gram.symbolTable.ToSymbol(k.String())
		if !ok {
			return nil, nil, fmt.Errorf("terminal symbol '%v' was not found in a symbol table", k)
		}
		kind2Term[i] = sym.Num().Int()
	}

	return &lex, kind2Term, nil
}

func writeCompileError(w io.Writer, cErr *mlcompiler.CompileError) {
	if cErr.Fragment {
		fmt.Fprintf(w, "fragment ")
	}
	fmt.Fprintf(w, "%v: %v", cErr.Kind, cErr.Cause)
	if cErr.Detail != "" {
		fmt.Fprintf(w, ": %v", cErr.Detail)
	}
}
