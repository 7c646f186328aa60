package grammar

import (
	"fmt"
	"sort"

	"github.com/nihei9/sapling/compressor"
	"github.com/nihei9/sapling/grammar/symbol"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sapling.grammar")

type compileConfig struct {
	isReportingEnabled bool
}

type CompileOption func(config *compileConfig)

// EnableReporting makes Compile return a report describing the automaton and the conflicts.
func EnableReporting() CompileOption {
	return func(config *compileConfig) {
		config.isReportingEnabled = true
	}
}

// Compile generates the parsing table and the lexer of a grammar. When the grammar has
// conflicts that cannot be resolved, Compile returns a *ConflictError. The report is
// returned with the error when reporting is enabled, so conflicts can be inspected.
func Compile(gram *Grammar, opts ...CompileOption) (*spec.CompiledGrammar, *spec.Report, error) {
	config := &compileConfig{}
	for _, opt := range opts {
		opt(config)
	}

	firstSet, err := genFirstSet(gram.productionSet)
	if err != nil {
		return nil, nil, err
	}

	lr0, err := genLR0Automaton(gram.productionSet, gram.augmentedStartSymbol)
	if err != nil {
		return nil, nil, err
	}

	lalr1, err := genLALR1Automaton(lr0, gram.productionSet, firstSet)
	if err != nil {
		return nil, nil, err
	}

	b := &lrTableBuilder{
		automaton:    lalr1.lr0Automaton,
		prods:        gram.productionSet,
		termCount:    gram.symbolTable.TerminalCount(),
		nonTermCount: gram.symbolTable.NonTerminalCount(),
		symTab:       gram.symbolTable,
		precAndAssoc: gram.precAndAssoc,
		glrSymbols:   gram.glrSymbols,
		aliases:      gram.aliases,
		anonymous:    gram.anonymousSymbols,
	}
	tab, err := b.build()
	if err != nil {
		return nil, nil, err
	}
	log.Infof("%v: %v states, %v conflicts, %v split cells", gram.name, tab.stateCount, len(b.conflicts), len(tab.splitKeys))

	modes := genLexModes(gram, lalr1.lr0Automaton, tab)

	var report *spec.Report
	if config.isReportingEnabled {
		report, err = b.genReport(tab, gram, modes)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(b.unresolved) > 0 {
		log.Infof("%v: %v conflicts were not resolved", gram.name, len(b.unresolved))
		return nil, report, &ConflictError{
			Conflicts: b.unresolved,
		}
	}

	lexSpec, err := genLexSpec(gram, modes)
	if err != nil {
		return nil, nil, err
	}
	lex, kind2Term, err := compileLexSpec(gram, lexSpec)
	if err != nil {
		return nil, nil, err
	}

	syn, err := genSyntacticSpec(gram, tab, modes, lex)
	if err != nil {
		return nil, nil, err
	}
	syn.KindToTerminal = kind2Term

	return &spec.CompiledGrammar{
		Name:      gram.name,
		Lexical:   lex,
		Syntactic: syn,
	}, report, nil
}

func genSyntacticSpec(gram *Grammar, tab *ParsingTable, modes *lexModes, lex *spec.LexicalSpec) (*spec.SyntacticSpec, error) {
	action := make([]int, len(tab.actionTable))
	for i, e := range tab.actionTable {
		action[i] = int(e)
	}
	compAction, err := compressTable(action, tab.terminalCount, int(actionEntryEmpty))
	if err != nil {
		return nil, fmt.Errorf("failed to compress the action table: %w", err)
	}

	goTo := make([]int, len(tab.goToTable))
	for i, e := range tab.goToTable {
		goTo[i] = int(e)
	}
	compGoTo, err := compressTable(goTo, tab.nonTerminalCount, int(goToEntryEmpty))
	if err != nil {
		return nil, fmt.Errorf("failed to compress the goto table: %w", err)
	}

	keys := make([]cellKey, len(tab.splitKeys))
	copy(keys, tab.splitKeys)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].state != keys[j].state {
			return keys[i].state < keys[j].state
		}
		return keys[i].sym < keys[j].sym
	})
	splitCells := make([]*spec.SplitCell, 0, len(keys))
	for _, k := range keys {
		acts := tab.splitCells[k]
		entries := make([]int, len(acts))
		for i, a := range acts {
			entries[i] = int(a)
		}
		splitCells = append(splitCells, &spec.SplitCell{
			State:    k.state.Int(),
			Terminal: k.sym.Int(),
			Actions:  entries,
		})
	}

	prods := gram.productionSet.getAllProductions()
	prodCount := gram.productionSet.count()
	lhsSyms := make([]int, prodCount)
	altSymCounts := make([]int, prodCount)
	prodFields := make([][]int, prodCount)
	for _, p := range prods {
		lhsSyms[p.num] = p.lhs.Num().Int()
		altSymCounts[p.num] = p.rhsLen
		if fs, ok := gram.prodFields[p.num]; ok {
			prodFields[p.num] = fs
		}
	}

	terms, err := gram.symbolTable.TerminalTexts()
	if err != nil {
		return nil, err
	}
	termCount := gram.symbolTable.TerminalCount()
	aliases := make([]string, termCount)
	skip := make([]int, termCount)
	anonymous := make([]int, termCount)
	for _, sym := range gram.symbolTable.TerminalSymbols() {
		aliases[sym.Num()] = gram.aliases[sym]
		if _, ok := gram.skipSymbols[sym]; ok {
			skip[sym.Num()] = 1
		}
		if _, ok := gram.anonymousSymbols[sym]; ok {
			anonymous[sym.Num()] = 1
		}
	}
	externals := make([]int, len(gram.externalSymbols))
	for i, sym := range gram.externalSymbols {
		externals[i] = sym.Num().Int()
	}

	nonTerms, err := gram.symbolTable.NonTerminalTexts()
	if err != nil {
		return nil, err
	}
	nonTermCount := gram.symbolTable.NonTerminalCount()
	hidden := make([]int, nonTermCount)
	supertype := make([]int, nonTermCount)
	for _, sym := range gram.symbolTable.NonTerminalSymbols() {
		if _, ok := gram.hiddenSymbols[sym]; ok || sym.IsStart() {
			hidden[sym.Num()] = 1
		}
		if _, ok := gram.supertypeSymbols[sym]; ok {
			supertype[sym.Num()] = 1
		}
	}

	// The lexer compiler numbers modes on its own, so states refer to modes of the
	// compiled lexical specification by name.
	modeIDs := map[string]int{}
	for id, name := range lex.ModeNames {
		if name == spec.LexModeNameNil {
			continue
		}
		modeIDs[name.String()] = id
	}
	stateModes := make([]int, tab.stateCount)
	for state, mode := range modes.stateModes {
		id, ok := modeIDs[modes.name(mode)]
		if !ok {
			return nil, fmt.Errorf("lex mode '%v' was not found in the lexical specification", modes.name(mode))
		}
		stateModes[state] = id
	}

	return &spec.SyntacticSpec{
		Action:                  compAction,
		GoTo:                    compGoTo,
		SplitCells:              splitCells,
		StateCount:              tab.stateCount,
		InitialState:            tab.InitialState.Int(),
		StartProduction:         productionNumStart.Int(),
		LHSSymbols:              lhsSyms,
		AlternativeSymbolCounts: altSymCounts,
		ProductionFields:        prodFields,
		Fields:                  gram.fields,
		Terminals:               terms,
		TerminalAliases:         aliases,
		TerminalCount:           termCount,
		TerminalSkip:            skip,
		TerminalAnonymous:       anonymous,
		ExternalTerminals:       externals,
		NonTerminals:            nonTerms,
		NonTerminalCount:        nonTermCount,
		NonTerminalHidden:       hidden,
		NonTerminalSupertype:    supertype,
		EOFSymbol:               symbol.SymbolEOF.Num().Int(),
		ErrorSymbol:             symbol.SymbolError.Num().Int(),
		StateLexModes:           stateModes,
	}, nil
}

func compressTable(entries []int, colCount int, emptyValue int) (*spec.CompressedTable, error) {
	orig, err := compressor.NewOriginalTable(entries, colCount)
	if err != nil {
		return nil, err
	}
	tab := compressor.NewTwoStageTable(emptyValue)
	err = tab.Compress(orig)
	if err != nil {
		return nil, err
	}
	return &spec.CompressedTable{
		RowNums:          tab.RowNums,
		UniqueRowCount:   tab.UniqueRowCount,
		OriginalRowCount: tab.OriginalRowCount,
		OriginalColCount: tab.OriginalColCount,
		EmptyValue:       tab.EmptyValue,
		Entries:          tab.Entries,
		Bounds:           tab.Bounds,
		RowDisplacement:  tab.RowDisplacement,
	}, nil
}
