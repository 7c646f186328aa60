package grammar

import (
	"fmt"
	"sort"
	"strings"

	mlspec "github.com/nihei9/maleeni/spec"
	verr "github.com/nihei9/sapling/error"
	"github.com/nihei9/sapling/grammar/symbol"
	"github.com/nihei9/sapling/spec/grammar/parser"
)

type assocType string

const (
	assocTypeNil   = assocType("")
	assocTypeLeft  = assocType("left")
	assocTypeRight = assocType("right")
)

const (
	precNil = 0
	precMin = 1
)

// precAndAssoc represents precedence and associativities of terminal symbols and productions.
// We use the priority of the production to resolve shift/reduce conflicts.
type precAndAssoc struct {
	// termPrec and termAssoc represent the precedence of the terminal symbols.
	termPrec  map[symbol.SymbolNum]int
	termAssoc map[symbol.SymbolNum]assocType

	// prodPrec and prodAssoc represent the precedence and the associativities of the production.
	// These values are inherited from the right-most terminal symbols in the RHS of the productions
	// unless the productions have the #prec directive.
	prodPrec  map[productionNum]int
	prodAssoc map[productionNum]assocType
}

func (pa *precAndAssoc) terminalPrecedence(sym symbol.SymbolNum) int {
	prec, ok := pa.termPrec[sym]
	if !ok {
		return precNil
	}

	return prec
}

func (pa *precAndAssoc) terminalAssociativity(sym symbol.SymbolNum) assocType {
	assoc, ok := pa.termAssoc[sym]
	if !ok {
		return assocTypeNil
	}

	return assoc
}

func (pa *precAndAssoc) productionPredence(prod productionNum) int {
	prec, ok := pa.prodPrec[prod]
	if !ok {
		return precNil
	}

	return prec
}

func (pa *precAndAssoc) productionAssociativity(prod productionNum) assocType {
	assoc, ok := pa.prodAssoc[prod]
	if !ok {
		return assocTypeNil
	}

	return assoc
}

// Grammar is a validated grammar. Compile turns it into a CompiledGrammar.
type Grammar struct {
	name                 string
	lexEntries           []*mlspec.LexEntry
	skipSymbols          map[symbol.Symbol]struct{}
	aliases              map[symbol.Symbol]string
	anonymousSymbols     map[symbol.Symbol]struct{}
	sym2Pattern          map[symbol.Symbol]string
	externalSymbols      []symbol.Symbol
	productionSet        *productionSet
	augmentedStartSymbol symbol.Symbol
	symbolTable          *symbol.SymbolTableReader
	precAndAssoc         *precAndAssoc

	// glrSymbols is a set of non-terminals whose conflicts become split cells.
	glrSymbols       map[symbol.Symbol]struct{}
	hiddenSymbols    map[symbol.Symbol]struct{}
	supertypeSymbols map[symbol.Symbol]struct{}

	// fields[0] is an empty string meaning no field. prodFields maps each element of a
	// production to an index of fields.
	fields     []string
	prodFields map[productionNum][]int
}

// Name returns the name given by the #name directive.
func (g *Grammar) Name() string {
	return g.name
}

type GrammarBuilder struct {
	AST *parser.RootNode

	errs verr.SpecErrors
}

// Build validates the AST and returns a Grammar. When the AST has errors, Build
// returns all of them as verr.SpecErrors sorted by their positions.
func (b *GrammarBuilder) Build() (*Grammar, error) {
	gram, err := b.build()
	if err != nil {
		return nil, err
	}
	if len(b.errs) > 0 {
		b.errs.Sort()
		return nil, b.errs
	}
	return gram, nil
}

func (b *GrammarBuilder) build() (*Grammar, error) {
	dirs := b.checkTopLevelDirectives(b.AST)

	var specName string
	{
		errOccurred := false
		if dir, ok := dirs["name"]; ok {
			if len(dir.Parameters) != 1 || dir.Parameters[0].ID == "" {
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDirInvalidParam,
					Detail: "'name' takes just one ID parameter",
					Row:    dir.Pos.Row,
					Col:    dir.Pos.Col,
				})
				errOccurred = true
			} else {
				specName = dir.Parameters[0].ID
			}
		}

		if specName == "" && !errOccurred {
			b.errs = append(b.errs, &verr.SpecError{
				Cause: semErrNoGrammarName,
			})
		}
	}

	b.checkSpellingInconsistenciesOfUserDefinedIDs(b.AST)
	if len(b.errs) > 0 {
		return nil, nil
	}

	symTabAndLexSpec, err := b.genSymbolTableAndLexSpec(b.AST, dirs["external"])
	if err != nil {
		return nil, err
	}

	prods, err := b.genProductions(b.AST, symTabAndLexSpec)
	if err != nil {
		return nil, err
	}
	if prods == nil {
		return nil, nil
	}

	pa := b.genPrecAndAssoc(dirs["prec"], symTabAndLexSpec, prods)

	glrSyms := b.genNonTerminalSet(dirs["glr"], symTabAndLexSpec.symTab)
	hiddenSyms := b.genNonTerminalSet(dirs["hidden"], symTabAndLexSpec.symTab)
	supertypeSyms := b.genNonTerminalSet(dirs["supertype"], symTabAndLexSpec.symTab)

	if len(b.errs) > 0 {
		return nil, nil
	}

	syms := findUsedAndUnusedSymbols(b.AST, symTabAndLexSpec.externalDefs)

	// When a terminal symbol that cannot be reached from the start symbol has the skip directive,
	// the compiler treats its terminal as a used symbol, not unused.
	for _, sym := range symTabAndLexSpec.skipSyms {
		if _, ok := syms.unusedTerminals[sym]; !ok {
			pos := syms.usedTerminals[sym]

			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrTermCannotBeSkipped,
				Detail: sym,
				Row:    pos.Row,
				Col:    pos.Col,
			})
			continue
		}

		delete(syms.unusedTerminals, sym)
	}

	for sym, pos := range syms.unusedProductions {
		b.errs = append(b.errs, &verr.SpecError{
			Cause:  semErrUnusedProduction,
			Detail: sym,
			Row:    pos.Row,
			Col:    pos.Col,
		})
	}

	for sym, pos := range syms.unusedTerminals {
		b.errs = append(b.errs, &verr.SpecError{
			Cause:  semErrUnusedTerminal,
			Detail: sym,
			Row:    pos.Row,
			Col:    pos.Col,
		})
	}

	b.checkProductivity(b.AST, prods.prods, symTabAndLexSpec.symTab)

	if len(b.errs) > 0 {
		return nil, nil
	}

	return &Grammar{
		name:                 specName,
		lexEntries:           symTabAndLexSpec.entries,
		skipSymbols:          symTabAndLexSpec.skip,
		aliases:              symTabAndLexSpec.aliases,
		anonymousSymbols:     symTabAndLexSpec.anonymous,
		sym2Pattern:          symTabAndLexSpec.sym2Pattern,
		externalSymbols:      symTabAndLexSpec.externals,
		productionSet:        prods.prods,
		augmentedStartSymbol: prods.augStartSym,
		symbolTable:          symTabAndLexSpec.symTab,
		precAndAssoc:         pa,
		glrSymbols:           glrSyms,
		hiddenSymbols:        hiddenSyms,
		supertypeSymbols:     supertypeSyms,
		fields:               prods.fields,
		prodFields:           prods.prodFields,
	}, nil
}

var topLevelDirectiveNames = map[string]struct{}{
	"name":      {},
	"prec":      {},
	"glr":       {},
	"external":  {},
	"supertype": {},
	"hidden":    {},
}

// checkTopLevelDirectives returns the top-level directives by name. Each directive
// can appear only once.
func (b *GrammarBuilder) checkTopLevelDirectives(root *parser.RootNode) map[string]*parser.DirectiveNode {
	dirs := map[string]*parser.DirectiveNode{}
	for _, dir := range root.Directives {
		if _, ok := topLevelDirectiveNames[dir.Name]; !ok {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDirInvalidName,
				Detail: dir.Name,
				Row:    dir.Pos.Row,
				Col:    dir.Pos.Col,
			})
			continue
		}
		if _, dup := dirs[dir.Name]; dup {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDuplicateDir,
				Detail: dir.Name,
				Row:    dir.Pos.Row,
				Col:    dir.Pos.Col,
			})
			continue
		}
		dirs[dir.Name] = dir
	}
	return dirs
}

type usedAndUnusedSymbols struct {
	unusedProductions map[string]parser.Position
	unusedTerminals   map[string]parser.Position
	usedTerminals     map[string]parser.Position
}

// findUsedAndUnusedSymbols marks the symbols reachable from the start symbol.
func findUsedAndUnusedSymbols(root *parser.RootNode, externalDefs map[string]parser.Position) *usedAndUnusedSymbols {
	prods := map[string]*parser.ProductionNode{}
	for _, p := range root.Productions {
		prods[p.LHS] = p
	}
	termDefs := map[string]parser.Position{}
	for _, p := range root.LexProductions {
		termDefs[p.LHS] = p.Pos
	}
	for name, pos := range externalDefs {
		termDefs[name] = pos
	}

	used := map[string]parser.Position{}
	start := root.Productions[0]
	used[start.LHS] = start.Pos
	queue := []*parser.ProductionNode{start}
	for len(queue) > 0 {
		prod := queue[0]
		queue = queue[1:]
		for _, alt := range prod.RHS {
			for _, e := range alt.Elements {
				if e.ID == "" {
					continue
				}
				if _, marked := used[e.ID]; marked {
					continue
				}
				used[e.ID] = e.Pos
				if p, ok := prods[e.ID]; ok {
					queue = append(queue, p)
				}
			}
		}
	}

	syms := &usedAndUnusedSymbols{
		unusedProductions: map[string]parser.Position{},
		unusedTerminals:   map[string]parser.Position{},
		usedTerminals:     map[string]parser.Position{},
	}
	for name, p := range prods {
		if _, ok := used[name]; !ok {
			syms.unusedProductions[name] = p.Pos
		}
	}
	for name, pos := range termDefs {
		if usePos, ok := used[name]; ok {
			syms.usedTerminals[name] = usePos
		} else {
			syms.unusedTerminals[name] = pos
		}
	}

	// A fragment name appearing on the right-hand side of a production is reported as an
	// undefined symbol by genProductions, so we don't have to care about it here.

	return syms
}

func (b *GrammarBuilder) checkSpellingInconsistenciesOfUserDefinedIDs(root *parser.RootNode) {
	var ids []string
	{
		for _, prod := range root.Productions {
			ids = append(ids, prod.LHS)
			for _, alt := range prod.RHS {
				for _, elem := range alt.Elements {
					if elem.Label != nil {
						ids = append(ids, elem.Label.Name)
					}
				}
			}
		}
		for _, prod := range root.LexProductions {
			ids = append(ids, prod.LHS)
		}
		for _, dir := range root.Directives {
			dirIDs := collectUserDefinedIDsFromDirective(dir)
			if len(dirIDs) > 0 {
				ids = append(ids, dirIDs...)
			}
		}
	}

	duplicated := mlspec.FindSpellingInconsistencies(ids)
	if len(duplicated) == 0 {
		return
	}

	for _, dup := range duplicated {
		b.errs = append(b.errs, &verr.SpecError{
			Cause:  semErrSpellingInconsistency,
			Detail: strings.Join(dup, ", "),
		})
	}
}

func collectUserDefinedIDsFromDirective(dir *parser.DirectiveNode) []string {
	var ids []string
	for _, param := range dir.Parameters {
		if param.Group != nil {
			for _, d := range param.Group {
				dIDs := collectUserDefinedIDsFromDirective(d)
				if len(dIDs) > 0 {
					ids = append(ids, dIDs...)
				}
			}
		}
		if param.OrderedSymbol != "" {
			ids = append(ids, param.OrderedSymbol)
		}
	}
	return ids
}

type symbolTableAndLexSpec struct {
	symTab       *symbol.SymbolTableReader
	writer       *symbol.SymbolTableWriter
	literal2Sym  map[string]symbol.Symbol
	sym2Pattern  map[symbol.Symbol]string
	entries      []*mlspec.LexEntry
	anonymous    map[symbol.Symbol]struct{}
	skip         map[symbol.Symbol]struct{}
	skipSyms     []string
	aliases      map[symbol.Symbol]string
	externals    []symbol.Symbol
	externalDefs map[string]parser.Position
}

// genSymbolTableAndLexSpec registers the terminal symbols and generates lex entries for them.
// Anonymous terminals, string literals appearing in alternatives, take precedence over
// the terminals defined by lexical productions, so they are registered first. A string
// literal equal to the string of a lexical production refers to the terminal of the
// lexical production instead of an anonymous one.
func (b *GrammarBuilder) genSymbolTableAndLexSpec(root *parser.RootNode, externalDir *parser.DirectiveNode) (*symbolTableAndLexSpec, error) {
	symTab := symbol.NewSymbolTable()
	w := symTab.Writer()
	r := symTab.Reader()

	namedLiterals := map[string]string{}
	for _, prod := range root.LexProductions {
		elem := prod.RHS[0].Elements[0]
		if !elem.Literally {
			continue
		}
		if _, ok := namedLiterals[elem.Pattern]; ok {
			continue
		}
		namedLiterals[elem.Pattern] = prod.LHS
	}

	entries := []*mlspec.LexEntry{}
	literal2Sym := map[string]symbol.Symbol{}
	sym2Pattern := map[symbol.Symbol]string{}
	anonymous := map[symbol.Symbol]struct{}{}
	aliases := map[symbol.Symbol]string{}
	{
		anonLits := []string{}
		knownLits := map[string]struct{}{}
		for _, prod := range root.Productions {
			for _, alt := range prod.RHS {
				for _, elem := range alt.Elements {
					if elem.Pattern == "" {
						continue
					}
					if _, ok := namedLiterals[elem.Pattern]; ok {
						continue
					}
					if _, ok := knownLits[elem.Pattern]; ok {
						continue
					}
					knownLits[elem.Pattern] = struct{}{}
					anonLits = append(anonLits, elem.Pattern)
				}
			}
		}

		for i, lit := range anonLits {
			kind := fmt.Sprintf("x_%v", i+1)

			sym, err := w.RegisterTerminalSymbol(kind)
			if err != nil {
				return nil, err
			}

			pattern := mlspec.EscapePattern(lit)
			literal2Sym[lit] = sym
			sym2Pattern[sym] = pattern
			anonymous[sym] = struct{}{}
			aliases[sym] = lit

			entries = append(entries, &mlspec.LexEntry{
				Kind:    mlspec.LexKindName(kind),
				Pattern: mlspec.LexPattern(pattern),
			})
		}
	}

	skip := map[symbol.Symbol]struct{}{}
	skipSyms := []string{}
	for _, prod := range root.LexProductions {
		if sym, exist := r.ToSymbol(prod.LHS); exist {
			if sym == symbol.SymbolError {
				b.errs = append(b.errs, &verr.SpecError{
					Cause: semErrErrSymIsReserved,
					Row:   prod.Pos.Row,
					Col:   prod.Pos.Col,
				})
			} else {
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDuplicateTerminal,
					Detail: prod.LHS,
					Row:    prod.Pos.Row,
					Col:    prod.Pos.Col,
				})
			}

			continue
		}

		lhsSym, err := w.RegisterTerminalSymbol(prod.LHS)
		if err != nil {
			return nil, err
		}

		elem := prod.RHS[0].Elements[0]
		if elem.Literally && namedLiterals[elem.Pattern] == prod.LHS {
			literal2Sym[elem.Pattern] = lhsSym
		}

		entry, isSkip, alias, specErr := genLexEntry(prod)
		if specErr != nil {
			b.errs = append(b.errs, specErr)
			continue
		}
		if isSkip {
			skip[lhsSym] = struct{}{}
			skipSyms = append(skipSyms, prod.LHS)
		}
		if alias != "" {
			aliases[lhsSym] = alias
		}
		sym2Pattern[lhsSym] = string(entry.Pattern)
		entries = append(entries, entry)
	}

	var externals []symbol.Symbol
	externalDefs := map[string]parser.Position{}
	if externalDir != nil {
		if len(externalDir.Parameters) == 0 {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDirInvalidParam,
				Detail: "'external' needs at least one ID parameter",
				Row:    externalDir.Pos.Row,
				Col:    externalDir.Pos.Col,
			})
		}
		for _, param := range externalDir.Parameters {
			if param.ID == "" {
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDirInvalidParam,
					Detail: "'external' can take only ID parameters",
					Row:    param.Pos.Row,
					Col:    param.Pos.Col,
				})
				continue
			}
			if sym, exist := r.ToSymbol(param.ID); exist {
				cause := semErrDuplicateTerminal
				if sym == symbol.SymbolError {
					cause = semErrErrSymIsReserved
				}
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  cause,
					Detail: param.ID,
					Row:    param.Pos.Row,
					Col:    param.Pos.Col,
				})
				continue
			}
			sym, err := w.RegisterTerminalSymbol(param.ID)
			if err != nil {
				return nil, err
			}
			externals = append(externals, sym)
			externalDefs[param.ID] = param.Pos
		}
	}

	checkedFragments := map[string]struct{}{}
	for _, fragment := range root.Fragments {
		if _, exist := checkedFragments[fragment.LHS]; exist {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDuplicateFragment,
				Detail: fragment.LHS,
				Row:    fragment.Pos.Row,
				Col:    fragment.Pos.Col,
			})
			continue
		}
		checkedFragments[fragment.LHS] = struct{}{}

		entries = append(entries, &mlspec.LexEntry{
			Fragment: true,
			Kind:     mlspec.LexKindName(fragment.LHS),
			Pattern:  mlspec.LexPattern(fragment.RHS),
		})
	}

	return &symbolTableAndLexSpec{
		symTab:       r,
		writer:       w,
		literal2Sym:  literal2Sym,
		sym2Pattern:  sym2Pattern,
		entries:      entries,
		anonymous:    anonymous,
		skip:         skip,
		skipSyms:     skipSyms,
		aliases:      aliases,
		externals:    externals,
		externalDefs: externalDefs,
	}, nil
}

func genLexEntry(prod *parser.ProductionNode) (*mlspec.LexEntry, bool, string, *verr.SpecError) {
	alt := prod.RHS[0]
	elem := alt.Elements[0]

	// A named terminal keeps its name even when a literal defines it. Only #alias
	// renames it.
	var pattern string
	var alias string
	if elem.Literally {
		pattern = mlspec.EscapePattern(elem.Pattern)
	} else {
		pattern = elem.Pattern
	}

	var skip bool
	dirConsumed := map[string]struct{}{}
	for _, dir := range prod.Directives {
		if _, consumed := dirConsumed[dir.Name]; consumed {
			return nil, false, "", &verr.SpecError{
				Cause:  semErrDuplicateDir,
				Detail: dir.Name,
				Row:    dir.Pos.Row,
				Col:    dir.Pos.Col,
			}
		}
		dirConsumed[dir.Name] = struct{}{}

		switch dir.Name {
		case "skip":
			if len(dir.Parameters) > 0 {
				return nil, false, "", &verr.SpecError{
					Cause:  semErrDirInvalidParam,
					Detail: "'skip' directive needs no parameter",
					Row:    dir.Pos.Row,
					Col:    dir.Pos.Col,
				}
			}
			skip = true
		case "alias":
			if len(dir.Parameters) != 1 || dir.Parameters[0].String == "" {
				return nil, false, "", &verr.SpecError{
					Cause:  semErrDirInvalidParam,
					Detail: "'alias' directive needs a string parameter",
					Row:    dir.Pos.Row,
					Col:    dir.Pos.Col,
				}
			}
			alias = dir.Parameters[0].String
		default:
			return nil, false, "", &verr.SpecError{
				Cause:  semErrDirInvalidName,
				Detail: dir.Name,
				Row:    dir.Pos.Row,
				Col:    dir.Pos.Col,
			}
		}
	}

	return &mlspec.LexEntry{
		Kind:    mlspec.LexKindName(prod.LHS),
		Pattern: mlspec.LexPattern(pattern),
	}, skip, alias, nil
}

type productions struct {
	prods           *productionSet
	augStartSym     symbol.Symbol
	prodPrecsTerm   map[productionID]symbol.Symbol
	prodPrecsOrdSym map[productionID]string
	prodPrecPoss    map[productionID]parser.Position
	fields          []string
	prodFields      map[productionNum][]int
}

func (b *GrammarBuilder) genProductions(root *parser.RootNode, symTabAndLexSpec *symbolTableAndLexSpec) (*productions, error) {
	w := symTabAndLexSpec.writer
	r := symTabAndLexSpec.symTab

	if len(root.Productions) == 0 {
		b.errs = append(b.errs, &verr.SpecError{
			Cause: semErrNoProduction,
		})
		return nil, nil
	}

	startProd := root.Productions[0]
	augStartSym, err := w.RegisterStartSymbol(fmt.Sprintf("%s'", startProd.LHS))
	if err != nil {
		return nil, err
	}

	errOccurred := false
	for _, prod := range root.Productions {
		if prod.LHS == symbol.SymbolNameError {
			b.errs = append(b.errs, &verr.SpecError{
				Cause: semErrErrSymIsReserved,
				Row:   prod.Pos.Row,
				Col:   prod.Pos.Col,
			})
			errOccurred = true
			continue
		}
		if sym, ok := r.ToSymbol(prod.LHS); ok && sym.IsTerminal() {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDuplicateName,
				Detail: prod.LHS,
				Row:    prod.Pos.Row,
				Col:    prod.Pos.Col,
			})
			errOccurred = true
			continue
		}
		if _, err := w.RegisterNonTerminalSymbol(prod.LHS); err != nil {
			return nil, err
		}
	}
	if errOccurred {
		return nil, nil
	}

	prods := newProductionSet()
	startSym, _ := r.ToSymbol(startProd.LHS)
	p, err := newProduction(augStartSym, []symbol.Symbol{
		startSym,
	})
	if err != nil {
		return nil, err
	}
	prods.append(p)

	prodPrecsTerm := map[productionID]symbol.Symbol{}
	prodPrecsOrdSym := map[productionID]string{}
	prodPrecPoss := map[productionID]parser.Position{}
	prodLabels := map[productionID][]string{}
	labelSet := map[string]struct{}{}

	for _, prod := range root.Productions {
		lhsSym, ok := r.ToSymbol(prod.LHS)
		if !ok {
			// All symbols are assumed to be pre-detected, so it's a bug if we cannot find them here.
			return nil, fmt.Errorf("symbol '%v' is undefined", prod.LHS)
		}

		if len(prod.Directives) > 0 {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrInvalidProdDir,
				Detail: "a production cannot have production directives",
				Row:    prod.Directives[0].Pos.Row,
				Col:    prod.Directives[0].Pos.Col,
			})
			continue
		}

	LOOP_RHS:
		for _, alt := range prod.RHS {
			altSyms := make([]symbol.Symbol, len(alt.Elements))
			labels := make([]string, len(alt.Elements))
			hasLabel := false
			for i, elem := range alt.Elements {
				var sym symbol.Symbol
				if elem.Pattern != "" {
					var ok bool
					sym, ok = symTabAndLexSpec.literal2Sym[elem.Pattern]
					if !ok {
						// All literals are assumed to be pre-detected, so it's a bug if we cannot find them here.
						return nil, fmt.Errorf("literal '%v' is undefined", elem.Pattern)
					}
				} else {
					var ok bool
					sym, ok = r.ToSymbol(elem.ID)
					if !ok {
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrUndefinedSym,
							Detail: elem.ID,
							Row:    elem.Pos.Row,
							Col:    elem.Pos.Col,
						})
						continue LOOP_RHS
					}
					if sym == symbol.SymbolError || sym == symbol.SymbolEOF {
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrErrSymIsReserved,
							Detail: elem.ID,
							Row:    elem.Pos.Row,
							Col:    elem.Pos.Col,
						})
						continue LOOP_RHS
					}
				}
				altSyms[i] = sym

				if elem.Label != nil {
					for _, l := range labels[:i] {
						if l == elem.Label.Name {
							b.errs = append(b.errs, &verr.SpecError{
								Cause:  semErrDuplicateLabel,
								Detail: elem.Label.Name,
								Row:    elem.Label.Pos.Row,
								Col:    elem.Label.Pos.Col,
							})
							continue LOOP_RHS
						}
					}
					if _, found := r.ToSymbol(elem.Label.Name); found {
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrInvalidLabel,
							Detail: elem.Label.Name,
							Row:    elem.Label.Pos.Row,
							Col:    elem.Label.Pos.Col,
						})
						continue LOOP_RHS
					}
					labels[i] = elem.Label.Name
					hasLabel = true
				}
			}

			p, err := newProduction(lhsSym, altSyms)
			if err != nil {
				return nil, err
			}
			if _, exist := prods.findByID(p.id); exist {
				// Report the line number of a duplicate alternative.
				// When the alternative is empty, we report the position of its LHS.
				pos := prod.Pos
				if len(alt.Elements) > 0 {
					pos = alt.Elements[0].Pos
				}

				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDuplicateProduction,
					Detail: describeAlternative(prod.LHS, alt),
					Row:    pos.Row,
					Col:    pos.Col,
				})
				continue LOOP_RHS
			}
			prods.append(p)

			if hasLabel {
				prodLabels[p.id] = labels
				for _, l := range labels {
					if l != "" {
						labelSet[l] = struct{}{}
					}
				}
			}

			dirConsumed := map[string]struct{}{}
			for _, dir := range alt.Directives {
				if _, consumed := dirConsumed[dir.Name]; consumed {
					b.errs = append(b.errs, &verr.SpecError{
						Cause:  semErrDuplicateDir,
						Detail: dir.Name,
						Row:    dir.Pos.Row,
						Col:    dir.Pos.Col,
					})
					continue
				}
				dirConsumed[dir.Name] = struct{}{}

				switch dir.Name {
				case "prec":
					if len(dir.Parameters) != 1 {
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrDirInvalidParam,
							Detail: "'prec' directive needs just one terminal symbol or ordered symbol",
							Row:    dir.Pos.Row,
							Col:    dir.Pos.Col,
						})
						continue LOOP_RHS
					}
					param := dir.Parameters[0]
					switch {
					case param.ID != "" || param.String != "":
						sym, ok := symTabAndLexSpec.lookUpTerminal(param)
						if !ok {
							b.errs = append(b.errs, &verr.SpecError{
								Cause:  semErrDirInvalidParam,
								Detail: fmt.Sprintf("unknown terminal symbol: %v", describeParameter(param)),
								Row:    param.Pos.Row,
								Col:    param.Pos.Col,
							})
							continue LOOP_RHS
						}
						prodPrecsTerm[p.id] = sym
						prodPrecPoss[p.id] = param.Pos
					case param.OrderedSymbol != "":
						prodPrecsOrdSym[p.id] = param.OrderedSymbol
						prodPrecPoss[p.id] = param.Pos
					default:
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrDirInvalidParam,
							Detail: "'prec' directive needs just one terminal symbol or ordered symbol",
							Row:    param.Pos.Row,
							Col:    param.Pos.Col,
						})
						continue LOOP_RHS
					}
				default:
					b.errs = append(b.errs, &verr.SpecError{
						Cause:  semErrDirInvalidName,
						Detail: fmt.Sprintf("invalid directive name '%v'", dir.Name),
						Row:    dir.Pos.Row,
						Col:    dir.Pos.Col,
					})
					continue LOOP_RHS
				}
			}
		}
	}

	fields := []string{""}
	{
		sorted := make([]string, 0, len(labelSet))
		for l := range labelSet {
			sorted = append(sorted, l)
		}
		sort.Strings(sorted)
		fields = append(fields, sorted...)
	}
	fieldIDs := map[string]int{}
	for i, f := range fields {
		fieldIDs[f] = i
	}
	prodFields := map[productionNum][]int{}
	for id, labels := range prodLabels {
		p, _ := prods.findByID(id)
		ids := make([]int, len(labels))
		for i, l := range labels {
			ids[i] = fieldIDs[l]
		}
		prodFields[p.num] = ids
	}

	return &productions{
		prods:           prods,
		augStartSym:     augStartSym,
		prodPrecsTerm:   prodPrecsTerm,
		prodPrecsOrdSym: prodPrecsOrdSym,
		prodPrecPoss:    prodPrecPoss,
		fields:          fields,
		prodFields:      prodFields,
	}, nil
}

// lookUpTerminal finds a terminal symbol by an ID or a string literal parameter.
func (s *symbolTableAndLexSpec) lookUpTerminal(param *parser.ParameterNode) (symbol.Symbol, bool) {
	if param.String != "" {
		sym, ok := s.literal2Sym[param.String]
		return sym, ok
	}
	sym, ok := s.symTab.ToSymbol(param.ID)
	if !ok || !sym.IsTerminal() || sym == symbol.SymbolError || sym == symbol.SymbolEOF {
		return symbol.SymbolNil, false
	}
	return sym, true
}

func describeAlternative(lhs string, alt *parser.AlternativeNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v →", lhs)
	for _, elem := range alt.Elements {
		switch {
		case elem.ID != "":
			fmt.Fprintf(&b, " %v", elem.ID)
		case elem.Pattern != "":
			fmt.Fprintf(&b, " '%v'", elem.Pattern)
		}
	}
	if len(alt.Elements) == 0 {
		fmt.Fprintf(&b, " ε")
	}
	return b.String()
}

func describeParameter(param *parser.ParameterNode) string {
	switch {
	case param.ID != "":
		return param.ID
	case param.String != "":
		return fmt.Sprintf("'%v'", param.String)
	case param.OrderedSymbol != "":
		return fmt.Sprintf("$%v", param.OrderedSymbol)
	}
	return ""
}

func (b *GrammarBuilder) genPrecAndAssoc(precDir *parser.DirectiveNode, symTabAndLexSpec *symbolTableAndLexSpec, prods *productions) *precAndAssoc {
	termPrec := map[symbol.SymbolNum]int{}
	termAssoc := map[symbol.SymbolNum]assocType{}
	ordSymPrec := map[string]int{}
	ordSymAssoc := map[string]assocType{}
	if precDir != nil {
		if len(precDir.Parameters) != 1 || precDir.Parameters[0].Group == nil {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDirInvalidParam,
				Detail: "'prec' needs just one directive group",
				Row:    precDir.Pos.Row,
				Col:    precDir.Pos.Col,
			})
			return nil
		}

		precN := precMin
		for _, dir := range precDir.Parameters[0].Group {
			var assocTy assocType
			switch dir.Name {
			case "left":
				assocTy = assocTypeLeft
			case "right":
				assocTy = assocTypeRight
			case "assign":
				assocTy = assocTypeNil
			default:
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDirInvalidName,
					Detail: dir.Name,
					Row:    dir.Pos.Row,
					Col:    dir.Pos.Col,
				})
				return nil
			}

			if len(dir.Parameters) == 0 {
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrDirInvalidParam,
					Detail: "associativity needs at least one symbol",
					Row:    dir.Pos.Row,
					Col:    dir.Pos.Col,
				})
				return nil
			}
		ASSOC_PARAM_LOOP:
			for _, p := range dir.Parameters {
				switch {
				case p.ID != "" || p.String != "":
					sym, ok := symTabAndLexSpec.lookUpTerminal(p)
					if !ok {
						detail := fmt.Sprintf("'%v' is undefined", describeParameter(p))
						if s, found := symTabAndLexSpec.symTab.ToSymbol(p.ID); found && s.IsNonTerminal() {
							detail = fmt.Sprintf("associativity can take only terminal symbol ('%v' is a non-terminal)", p.ID)
						}
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrDirInvalidParam,
							Detail: detail,
							Row:    p.Pos.Row,
							Col:    p.Pos.Col,
						})
						return nil
					}
					if prec, alreadySet := termPrec[sym.Num()]; alreadySet {
						var detail string
						switch {
						case prec == precN:
							detail = fmt.Sprintf("'%v' already has the same associativity and precedence", describeParameter(p))
						case termAssoc[sym.Num()] == assocTy:
							detail = fmt.Sprintf("'%v' already has different precedence", describeParameter(p))
						default:
							detail = fmt.Sprintf("'%v' already has different associativity and precedence", describeParameter(p))
						}
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrDuplicateAssoc,
							Detail: detail,
							Row:    p.Pos.Row,
							Col:    p.Pos.Col,
						})
						break ASSOC_PARAM_LOOP
					}

					termPrec[sym.Num()] = precN
					termAssoc[sym.Num()] = assocTy
				case p.OrderedSymbol != "":
					if prec, alreadySet := ordSymPrec[p.OrderedSymbol]; alreadySet {
						detail := fmt.Sprintf("'$%v' already has different precedence", p.OrderedSymbol)
						if prec == precN {
							detail = fmt.Sprintf("'$%v' already has the same precedence", p.OrderedSymbol)
						}
						b.errs = append(b.errs, &verr.SpecError{
							Cause:  semErrDuplicateAssoc,
							Detail: detail,
							Row:    p.Pos.Row,
							Col:    p.Pos.Col,
						})
						break ASSOC_PARAM_LOOP
					}

					ordSymPrec[p.OrderedSymbol] = precN
					ordSymAssoc[p.OrderedSymbol] = assocTy
				default:
					b.errs = append(b.errs, &verr.SpecError{
						Cause:  semErrDirInvalidParam,
						Detail: "a parameter must be a terminal symbol or an ordered symbol",
						Row:    p.Pos.Row,
						Col:    p.Pos.Col,
					})
					return nil
				}
			}

			precN++
		}
	}

	prodPrec := map[productionNum]int{}
	prodAssoc := map[productionNum]assocType{}
	for _, prod := range prods.prods.getAllProductions() {
		if term, ok := prods.prodPrecsTerm[prod.id]; ok {
			prec, ok := termPrec[term.Num()]
			if !ok {
				text, _ := symTabAndLexSpec.symTab.ToText(term)
				if alias, ok := symTabAndLexSpec.aliases[term]; ok && symTabAndLexSpec.isAnonymous(term) {
					text = fmt.Sprintf("'%v'", alias)
				}
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrUndefinedPrec,
					Detail: text,
					Row:    prods.prodPrecPoss[prod.id].Row,
					Col:    prods.prodPrecPoss[prod.id].Col,
				})
				continue
			}
			prodPrec[prod.num] = prec
			prodAssoc[prod.num] = termAssoc[term.Num()]
		} else if ordSym, ok := prods.prodPrecsOrdSym[prod.id]; ok {
			prec, ok := ordSymPrec[ordSym]
			if !ok {
				b.errs = append(b.errs, &verr.SpecError{
					Cause:  semErrUndefinedOrdSym,
					Detail: fmt.Sprintf("$%v", ordSym),
					Row:    prods.prodPrecPoss[prod.id].Row,
					Col:    prods.prodPrecPoss[prod.id].Col,
				})
				continue
			}
			prodPrec[prod.num] = prec
			prodAssoc[prod.num] = ordSymAssoc[ordSym]
		} else {
			// A production inherits precedence and associativity from the right-most terminal symbol.
			mostrightTerm := symbol.SymbolNil
			for _, sym := range prod.rhs {
				if !sym.IsTerminal() {
					continue
				}
				mostrightTerm = sym
			}
			if prec, ok := termPrec[mostrightTerm.Num()]; ok && !mostrightTerm.IsNil() {
				prodPrec[prod.num] = prec
				prodAssoc[prod.num] = termAssoc[mostrightTerm.Num()]
			}
		}
	}

	return &precAndAssoc{
		termPrec:  termPrec,
		termAssoc: termAssoc,
		prodPrec:  prodPrec,
		prodAssoc: prodAssoc,
	}
}

func (s *symbolTableAndLexSpec) isAnonymous(sym symbol.Symbol) bool {
	_, ok := s.anonymous[sym]
	return ok
}

// genNonTerminalSet collects the parameters of #glr, #hidden, or #supertype. They
// must be non-terminal symbols.
func (b *GrammarBuilder) genNonTerminalSet(dir *parser.DirectiveNode, symTab *symbol.SymbolTableReader) map[symbol.Symbol]struct{} {
	syms := map[symbol.Symbol]struct{}{}
	if dir == nil {
		return syms
	}
	if len(dir.Parameters) == 0 {
		b.errs = append(b.errs, &verr.SpecError{
			Cause:  semErrDirInvalidParam,
			Detail: fmt.Sprintf("'%v' needs at least one non-terminal symbol", dir.Name),
			Row:    dir.Pos.Row,
			Col:    dir.Pos.Col,
		})
		return syms
	}
	for _, param := range dir.Parameters {
		if param.ID == "" {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDirInvalidParam,
				Detail: fmt.Sprintf("'%v' can take only ID parameters", dir.Name),
				Row:    param.Pos.Row,
				Col:    param.Pos.Col,
			})
			continue
		}
		sym, ok := symTab.ToSymbol(param.ID)
		if !ok {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrUndefinedSym,
				Detail: param.ID,
				Row:    param.Pos.Row,
				Col:    param.Pos.Col,
			})
			continue
		}
		if !sym.IsNonTerminal() || sym.IsStart() {
			b.errs = append(b.errs, &verr.SpecError{
				Cause:  semErrDirInvalidParam,
				Detail: fmt.Sprintf("'%v' can take only non-terminal symbols ('%v' is a terminal)", dir.Name, param.ID),
				Row:    param.Pos.Row,
				Col:    param.Pos.Col,
			})
			continue
		}
		syms[sym] = struct{}{}
	}
	return syms
}

// checkProductivity reports the non-terminals that derive no finite terminal string.
// When every alternative of such a non-terminal begins with the non-terminal itself,
// the cause is a left recursion lacking a base case.
func (b *GrammarBuilder) checkProductivity(root *parser.RootNode, prods *productionSet, symTab *symbol.SymbolTableReader) {
	productive := map[symbol.Symbol]struct{}{}
	for {
		changed := false
		for _, prod := range prods.getAllProductions() {
			if _, ok := productive[prod.lhs]; ok {
				continue
			}
			allProductive := true
			for _, sym := range prod.rhs {
				if sym.IsTerminal() {
					continue
				}
				if _, ok := productive[sym]; !ok {
					allProductive = false
					break
				}
			}
			if allProductive {
				productive[prod.lhs] = struct{}{}
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, prod := range root.Productions {
		sym, ok := symTab.ToSymbol(prod.LHS)
		if !ok {
			continue
		}
		if _, ok := productive[sym]; ok {
			continue
		}

		cause := semErrUnproductive
		ps, _ := prods.findByLHS(sym)
		if len(ps) > 0 {
			leftRecursive := true
			for _, p := range ps {
				if p.isEmpty() || p.rhs[0] != sym {
					leftRecursive = false
					break
				}
			}
			if leftRecursive {
				cause = semErrLeftRecursion
			}
		}
		b.errs = append(b.errs, &verr.SpecError{
			Cause:  cause,
			Detail: prod.LHS,
			Row:    prod.Pos.Row,
			Col:    prod.Pos.Col,
		})
	}
}
