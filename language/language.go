// Package language provides the runtime view of a compiled grammar. A Language is
// immutable once built, so one value can be shared by any number of parsers.
package language

import (
	"errors"
	"fmt"
	"sync"

	spec "github.com/nihei9/sapling/spec/grammar"
)

// Symbol identifies a terminal or a non-terminal. Terminals occupy
// [0, TerminalCount) and non-terminals follow them, so the IDs are dense.
type Symbol int

const SymbolNil = Symbol(0)

type ActionType int

const (
	ActionTypeError ActionType = iota
	ActionTypeShift
	ActionTypeReduce
	ActionTypeAccept
)

func (t ActionType) String() string {
	switch t {
	case ActionTypeShift:
		return "shift"
	case ActionTypeReduce:
		return "reduce"
	case ActionTypeAccept:
		return "accept"
	}
	return "error"
}

// Action is a decoded entry of the action table. State is valid only for a shift,
// and Production only for a reduction.
type Action struct {
	Type       ActionType
	State      int
	Production int
}

func (a Action) String() string {
	switch a.Type {
	case ActionTypeShift:
		return fmt.Sprintf("shift %v", a.State)
	case ActionTypeReduce:
		return fmt.Sprintf("reduce %v", a.Production)
	}
	return a.Type.String()
}

type SymbolMetadata struct {
	Visible   bool
	Named     bool
	Supertype bool
	Terminal  bool
	// Auxiliary symbols are generated by the compiler, such as the augmented start
	// symbol and the EOF symbol.
	Auxiliary bool
}

type cellKey struct {
	state    int
	terminal int
}

type Language struct {
	g   *spec.CompiledGrammar
	syn *spec.SyntacticSpec

	names      []string
	metadata   []SymbolMetadata
	fieldIDs   map[string]int
	splitCells map[cellKey][]Action
	externals  []Symbol
}

// New validates a compiled grammar and builds a Language from it.
func New(g *spec.CompiledGrammar) (*Language, error) {
	if g == nil {
		return nil, errors.New("a compiled grammar is nil")
	}
	if err := validate(g); err != nil {
		return nil, fmt.Errorf("%v: invalid compiled grammar: %w", g.Name, err)
	}
	syn := g.Syntactic

	count := syn.TerminalCount + syn.NonTerminalCount
	names := make([]string, count)
	metadata := make([]SymbolMetadata, count)
	for t := 0; t < syn.TerminalCount; t++ {
		name := syn.Terminals[t]
		if syn.TerminalAliases[t] != "" {
			name = syn.TerminalAliases[t]
		}
		names[t] = name
		md := SymbolMetadata{
			Terminal: true,
			Visible:  true,
			Named:    syn.TerminalAnonymous[t] == 0,
		}
		if t == 0 || t == syn.EOFSymbol {
			md.Visible = false
			md.Named = false
			md.Auxiliary = true
		}
		metadata[t] = md
	}
	for n := 0; n < syn.NonTerminalCount; n++ {
		names[syn.TerminalCount+n] = syn.NonTerminals[n]
		metadata[syn.TerminalCount+n] = SymbolMetadata{
			Visible:   syn.NonTerminalHidden[n] == 0,
			Named:     true,
			Supertype: syn.NonTerminalSupertype[n] != 0,
			Auxiliary: n <= 1,
		}
	}

	fieldIDs := map[string]int{}
	for id, f := range syn.Fields {
		if f == "" {
			continue
		}
		fieldIDs[f] = id
	}

	splitCells := map[cellKey][]Action{}
	for _, c := range syn.SplitCells {
		acts := make([]Action, len(c.Actions))
		for i, e := range c.Actions {
			acts[i] = decodeAction(syn, c.Terminal, e)
		}
		splitCells[cellKey{state: c.State, terminal: c.Terminal}] = acts
	}

	externals := make([]Symbol, len(syn.ExternalTerminals))
	for i, t := range syn.ExternalTerminals {
		externals[i] = Symbol(t)
	}

	return &Language{
		g:          g,
		syn:        syn,
		names:      names,
		metadata:   metadata,
		fieldIDs:   fieldIDs,
		splitCells: splitCells,
		externals:  externals,
	}, nil
}

// NewAccessor returns a function that builds a Language on its first call and returns
// the same value on every call after that. The function is safe for concurrent use.
// It panics when load fails, because an accessor wraps a grammar embedded at build
// time and such a failure means the embedded grammar is corrupt.
func NewAccessor(load func() (*spec.CompiledGrammar, error)) func() *Language {
	var once sync.Once
	var lang *Language
	return func() *Language {
		once.Do(func() {
			g, err := load()
			if err != nil {
				panic(fmt.Errorf("failed to load a compiled grammar: %w", err))
			}
			lang, err = New(g)
			if err != nil {
				panic(err)
			}
		})
		return lang
	}
}

func validate(g *spec.CompiledGrammar) error {
	syn := g.Syntactic
	if syn == nil {
		return errors.New("syntactic specification is missing")
	}
	if g.Lexical == nil {
		return errors.New("lexical specification is missing")
	}
	if syn.TerminalCount <= 0 || syn.NonTerminalCount <= 0 || syn.StateCount <= 0 {
		return fmt.Errorf("symbol or state counts must be positive: terminals: %v, non-terminals: %v, states: %v",
			syn.TerminalCount, syn.NonTerminalCount, syn.StateCount)
	}
	if err := validateTable("action", syn.Action, syn.StateCount, syn.TerminalCount); err != nil {
		return err
	}
	if err := validateTable("goto", syn.GoTo, syn.StateCount, syn.NonTerminalCount); err != nil {
		return err
	}
	for _, l := range []struct {
		name string
		n    int
		want int
	}{
		{"terminals", len(syn.Terminals), syn.TerminalCount},
		{"terminal aliases", len(syn.TerminalAliases), syn.TerminalCount},
		{"terminal skip flags", len(syn.TerminalSkip), syn.TerminalCount},
		{"terminal anonymous flags", len(syn.TerminalAnonymous), syn.TerminalCount},
		{"non-terminals", len(syn.NonTerminals), syn.NonTerminalCount},
		{"non-terminal hidden flags", len(syn.NonTerminalHidden), syn.NonTerminalCount},
		{"non-terminal supertype flags", len(syn.NonTerminalSupertype), syn.NonTerminalCount},
		{"state lex modes", len(syn.StateLexModes), syn.StateCount},
		{"alternative symbol counts", len(syn.LHSSymbols), len(syn.AlternativeSymbolCounts)},
		{"production fields", len(syn.ProductionFields), len(syn.LHSSymbols)},
	} {
		if l.n != l.want {
			return fmt.Errorf("unexpected length of %v; want: %v, got: %v", l.name, l.want, l.n)
		}
	}
	if syn.InitialState < 0 || syn.InitialState >= syn.StateCount {
		return fmt.Errorf("initial state is out of range: %v", syn.InitialState)
	}
	for _, t := range syn.KindToTerminal {
		if t < 0 || t >= syn.TerminalCount {
			return fmt.Errorf("a lexical kind is mapped to an invalid terminal: %v", t)
		}
	}
	for _, c := range syn.SplitCells {
		if c.State < 0 || c.State >= syn.StateCount || c.Terminal < 0 || c.Terminal >= syn.TerminalCount {
			return fmt.Errorf("split cell is out of range: (%v, %v)", c.State, c.Terminal)
		}
	}
	return nil
}

func validateTable(name string, tab *spec.CompressedTable, rowCount, colCount int) error {
	if tab == nil {
		return fmt.Errorf("%v table is missing", name)
	}
	if tab.OriginalRowCount != rowCount || tab.OriginalColCount != colCount || len(tab.RowNums) != rowCount {
		return fmt.Errorf("unexpected size of %v table; want: %vx%v, got: %vx%v", name, rowCount, colCount, tab.OriginalRowCount, tab.OriginalColCount)
	}
	if len(tab.RowDisplacement) != tab.UniqueRowCount || len(tab.Entries) != len(tab.Bounds) {
		return fmt.Errorf("%v table is broken", name)
	}
	for _, r := range tab.RowNums {
		if r < 0 || r >= tab.UniqueRowCount || tab.RowDisplacement[r]+colCount > len(tab.Entries) {
			return fmt.Errorf("%v table is broken", name)
		}
	}
	return nil
}

func lookUp(tab *spec.CompressedTable, row, col int) int {
	if row < 0 || row >= tab.OriginalRowCount || col < 0 || col >= tab.OriginalColCount {
		return tab.EmptyValue
	}
	r := tab.RowNums[row]
	d := tab.RowDisplacement[r]
	if tab.Bounds[d+col] != r {
		return tab.EmptyValue
	}
	return tab.Entries[d+col]
}

func decodeAction(syn *spec.SyntacticSpec, terminal, e int) Action {
	switch {
	case e < 0:
		return Action{Type: ActionTypeShift, State: -e}
	case e > 0:
		if e == syn.StartProduction && terminal == syn.EOFSymbol {
			return Action{Type: ActionTypeAccept, Production: e}
		}
		return Action{Type: ActionTypeReduce, Production: e}
	}
	return Action{Type: ActionTypeError}
}

// Grammar returns the compiled grammar the Language was built from. Callers must not
// modify it.
func (l *Language) Grammar() *spec.CompiledGrammar {
	return l.g
}

func (l *Language) Name() string {
	return l.g.Name
}

func (l *Language) SymbolCount() int {
	return len(l.names)
}

func (l *Language) TerminalCount() int {
	return l.syn.TerminalCount
}

// SymbolName returns the display name of a symbol. An anonymous terminal is named by
// its literal text.
func (l *Language) SymbolName(sym Symbol) string {
	if sym < 0 || int(sym) >= len(l.names) {
		return ""
	}
	return l.names[sym]
}

func (l *Language) SymbolMetadata(sym Symbol) SymbolMetadata {
	if sym < 0 || int(sym) >= len(l.metadata) {
		return SymbolMetadata{}
	}
	return l.metadata[sym]
}

// SymbolForName finds a symbol by its display name. When a name is shared by a named
// and an anonymous symbol, named selects which one is returned.
func (l *Language) SymbolForName(name string, named bool) (Symbol, bool) {
	for sym, n := range l.names {
		if n == name && l.metadata[sym].Named == named && !l.metadata[sym].Auxiliary {
			return Symbol(sym), true
		}
	}
	return SymbolNil, false
}

func (l *Language) IsTerminal(sym Symbol) bool {
	return sym >= 0 && int(sym) < l.syn.TerminalCount
}

// TerminalSymbol and NonTerminalSymbol convert terminal and non-terminal numbers used
// by the tables into symbols.
func (l *Language) TerminalSymbol(terminal int) Symbol {
	return Symbol(terminal)
}

func (l *Language) NonTerminalSymbol(nonTerminal int) Symbol {
	return Symbol(l.syn.TerminalCount + nonTerminal)
}

func (l *Language) IsSkip(sym Symbol) bool {
	return l.IsTerminal(sym) && l.syn.TerminalSkip[sym] != 0
}

// FieldName returns the name of a field ID. The ID 0 means no field and has no name.
func (l *Language) FieldName(id int) string {
	if id <= 0 || id >= len(l.syn.Fields) {
		return ""
	}
	return l.syn.Fields[id]
}

func (l *Language) FieldID(name string) (int, bool) {
	id, ok := l.fieldIDs[name]
	return id, ok
}

func (l *Language) FieldCount() int {
	return len(l.syn.Fields)
}

// Actions returns the candidate actions of a cell. A cell has one action unless the
// grammar opted the involved rules into GLR splitting. An empty cell yields one
// error action.
func (l *Language) Actions(state int, terminal Symbol) []Action {
	if acts, ok := l.splitCells[cellKey{state: state, terminal: int(terminal)}]; ok {
		return acts
	}
	return []Action{l.Action(state, terminal)}
}

// Action returns the primary action of a cell.
func (l *Language) Action(state int, terminal Symbol) Action {
	return decodeAction(l.syn, int(terminal), lookUp(l.syn.Action, state, int(terminal)))
}

// IsSplit reports whether a cell holds more than one action.
func (l *Language) IsSplit(state int, terminal Symbol) bool {
	_, ok := l.splitCells[cellKey{state: state, terminal: int(terminal)}]
	return ok
}

// GoTo returns the next state after reducing to a non-terminal. The second result is
// false when the state has no transition on it.
func (l *Language) GoTo(state int, nonTerminal Symbol) (int, bool) {
	next := lookUp(l.syn.GoTo, state, int(nonTerminal)-l.syn.TerminalCount)
	return next, next != l.syn.GoTo.EmptyValue
}

func (l *Language) StateCount() int {
	return l.syn.StateCount
}

func (l *Language) InitialState() int {
	return l.syn.InitialState
}

// ProductionLHS returns the symbol a production reduces to.
func (l *Language) ProductionLHS(prod int) Symbol {
	return l.NonTerminalSymbol(l.syn.LHSSymbols[prod])
}

func (l *Language) ProductionLen(prod int) int {
	return l.syn.AlternativeSymbolCounts[prod]
}

// ProductionFields returns the field IDs of the elements of a production. It returns
// nil when the production has no labels.
func (l *Language) ProductionFields(prod int) []int {
	return l.syn.ProductionFields[prod]
}

// LexMode returns the lex mode in which the lexer reads a token in a state.
func (l *Language) LexMode(state int) int {
	if state < 0 || state >= len(l.syn.StateLexModes) {
		return spec.LexModeIDDefault.Int()
	}
	return l.syn.StateLexModes[state]
}

func (l *Language) LexSpec() *spec.LexicalSpec {
	return l.g.Lexical
}

// KindToTerminal returns the terminal a lexical kind stands for.
func (l *Language) KindToTerminal(kind int) Symbol {
	if kind < 0 || kind >= len(l.syn.KindToTerminal) {
		return SymbolNil
	}
	return Symbol(l.syn.KindToTerminal[kind])
}

// ExternalTokens returns the terminals an external scanner produces.
func (l *Language) ExternalTokens() []Symbol {
	return l.externals
}

func (l *Language) IsExternal(sym Symbol) bool {
	for _, e := range l.externals {
		if e == sym {
			return true
		}
	}
	return false
}

func (l *Language) EOF() Symbol {
	return Symbol(l.syn.EOFSymbol)
}

func (l *Language) Error() Symbol {
	return Symbol(l.syn.ErrorSymbol)
}
