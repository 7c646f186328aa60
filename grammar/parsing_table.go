package grammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nihei9/sapling/grammar/symbol"
	spec "github.com/nihei9/sapling/spec/grammar"
)

type ActionType string

const (
	ActionTypeShift  = ActionType("shift")
	ActionTypeReduce = ActionType("reduce")
	ActionTypeError  = ActionType("error")
)

type actionEntry int

const actionEntryEmpty = actionEntry(0)

func newShiftActionEntry(state stateNum) actionEntry {
	return actionEntry(state * -1)
}

func newReduceActionEntry(prod productionNum) actionEntry {
	return actionEntry(prod)
}

func (e actionEntry) isEmpty() bool {
	return e == actionEntryEmpty
}

func (e actionEntry) describe() (ActionType, stateNum, productionNum) {
	if e == actionEntryEmpty {
		return ActionTypeError, stateNumInitial, productionNumNil
	}
	if e < 0 {
		return ActionTypeShift, stateNum(e * -1), productionNumNil
	}
	return ActionTypeReduce, stateNumInitial, productionNum(e)
}

type GoToType string

const (
	GoToTypeRegistered = GoToType("registered")
	GoToTypeError      = GoToType("error")
)

type goToEntry uint

const goToEntryEmpty = goToEntry(0)

func newGoToEntry(state stateNum) goToEntry {
	return goToEntry(state)
}

func (e goToEntry) describe() (GoToType, stateNum) {
	if e == goToEntryEmpty {
		return GoToTypeError, stateNumInitial
	}
	return GoToTypeRegistered, stateNum(e)
}

type conflictResolutionMethod int

func (m conflictResolutionMethod) Int() int {
	return int(m)
}

const (
	resolvedByNone      conflictResolutionMethod = 0
	ResolvedByPrec      conflictResolutionMethod = 1
	ResolvedByAssoc     conflictResolutionMethod = 2
	ResolvedByProdOrder conflictResolutionMethod = 3
	ResolvedBySplit     conflictResolutionMethod = 4
)

type conflict interface {
	conflict()
}

type shiftReduceConflict struct {
	state      stateNum
	sym        symbol.Symbol
	nextState  stateNum
	prodNum    productionNum
	resolvedBy conflictResolutionMethod
}

func (c *shiftReduceConflict) conflict() {
}

type reduceReduceConflict struct {
	state      stateNum
	sym        symbol.Symbol
	prodNum1   productionNum
	prodNum2   productionNum
	resolvedBy conflictResolutionMethod
}

func (c *reduceReduceConflict) conflict() {
}

var (
	_ conflict = &shiftReduceConflict{}
	_ conflict = &reduceReduceConflict{}
)

// ConflictKind tells the kinds of actions in a conflict.
type ConflictKind string

const (
	ConflictKindShiftReduce  = ConflictKind("shift/reduce")
	ConflictKindReduceReduce = ConflictKind("reduce/reduce")
)

// Conflict is a conflict that neither precedence, associativity, nor declaration
// order resolves. For a shift/reduce conflict, Rules[0] is a rule whose item shifts
// the symbol, and Rules[1] is the rule to be reduced.
type Conflict struct {
	State       int
	Symbol      string
	Kind        ConflictKind
	ShiftState  int
	Rules       [2]string
	Productions [2]int
}

func (c *Conflict) String() string {
	if c.Kind == ConflictKindShiftReduce {
		return fmt.Sprintf("state %v, symbol %v: %v conflict between `%v` (shift to state %v) and `%v` (reduce)", c.State, c.Symbol, c.Kind, c.Rules[0], c.ShiftState, c.Rules[1])
	}
	return fmt.Sprintf("state %v, symbol %v: %v conflict between `%v` and `%v`", c.State, c.Symbol, c.Kind, c.Rules[0], c.Rules[1])
}

// ConflictError reports the conflicts remaining in a grammar that doesn't opt
// their rules into GLR parsing with the #glr directive.
type ConflictError struct {
	Conflicts []*Conflict
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	if len(e.Conflicts) == 1 {
		fmt.Fprintf(&b, "1 conflict was not resolved:")
	} else {
		fmt.Fprintf(&b, "%v conflicts were not resolved:", len(e.Conflicts))
	}
	for _, c := range e.Conflicts {
		fmt.Fprintf(&b, "\n    %v", c)
	}
	return b.String()
}

type cellKey struct {
	state stateNum
	sym   symbol.SymbolNum
}

type ParsingTable struct {
	actionTable      []actionEntry
	goToTable        []goToEntry
	stateCount       int
	terminalCount    int
	nonTerminalCount int

	// splitCells holds the cells having multiple actions. The action table holds the
	// first action of such a cell.
	splitCells map[cellKey][]actionEntry
	splitKeys  []cellKey

	InitialState stateNum
}

func (t *ParsingTable) getAction(state stateNum, sym symbol.SymbolNum) (ActionType, stateNum, productionNum) {
	pos := state.Int()*t.terminalCount + sym.Int()
	return t.actionTable[pos].describe()
}

// getActions returns all actions of a cell including the ones of a split cell.
func (t *ParsingTable) getActions(state stateNum, sym symbol.SymbolNum) []actionEntry {
	if acts, ok := t.splitCells[cellKey{state: state, sym: sym}]; ok {
		return acts
	}
	act := t.readAction(state.Int(), sym.Int())
	if act.isEmpty() {
		return nil
	}
	return []actionEntry{act}
}

func (t *ParsingTable) getGoTo(state stateNum, sym symbol.SymbolNum) (GoToType, stateNum) {
	pos := state.Int()*t.nonTerminalCount + sym.Int()
	return t.goToTable[pos].describe()
}

func (t *ParsingTable) readAction(row int, col int) actionEntry {
	return t.actionTable[row*t.terminalCount+col]
}

func (t *ParsingTable) writeAction(row int, col int, act actionEntry) {
	t.actionTable[row*t.terminalCount+col] = act
}

func (t *ParsingTable) writeGoTo(state stateNum, sym symbol.Symbol, nextState stateNum) {
	pos := state.Int()*t.nonTerminalCount + sym.Num().Int()
	t.goToTable[pos] = newGoToEntry(nextState)
}

func (t *ParsingTable) writeSplitCell(state stateNum, sym symbol.Symbol, acts []actionEntry) {
	key := cellKey{state: state, sym: sym.Num()}
	t.splitCells[key] = acts
	t.splitKeys = append(t.splitKeys, key)
	t.writeAction(state.Int(), sym.Num().Int(), acts[0])
}

type lrTableBuilder struct {
	automaton    *lr0Automaton
	prods        *productionSet
	termCount    int
	nonTermCount int
	symTab       *symbol.SymbolTableReader
	precAndAssoc *precAndAssoc
	glrSymbols   map[symbol.Symbol]struct{}
	aliases      map[symbol.Symbol]string
	anonymous    map[symbol.Symbol]struct{}

	conflicts  []conflict
	unresolved []*Conflict
}

type actionCell struct {
	hasShift  bool
	nextState stateNum
	reduces   []productionNum
}

func (b *lrTableBuilder) build() (*ParsingTable, error) {
	var ptab *ParsingTable
	{
		initialState := b.automaton.states[b.automaton.initialState]
		ptab = &ParsingTable{
			actionTable:      make([]actionEntry, len(b.automaton.states)*b.termCount),
			goToTable:        make([]goToEntry, len(b.automaton.states)*b.nonTermCount),
			stateCount:       len(b.automaton.states),
			terminalCount:    b.termCount,
			nonTerminalCount: b.nonTermCount,
			splitCells:       map[cellKey][]actionEntry{},
			InitialState:     initialState.num,
		}
	}

	for _, state := range b.automaton.orderedStates() {
		cells := map[symbol.Symbol]*actionCell{}
		cellOf := func(sym symbol.Symbol) *actionCell {
			c, ok := cells[sym]
			if !ok {
				c = &actionCell{}
				cells[sym] = c
			}
			return c
		}

		for sym, kID := range state.next {
			nextState := b.automaton.states[kID]
			if sym.IsTerminal() {
				c := cellOf(sym)
				c.hasShift = true
				c.nextState = nextState.num
			} else {
				ptab.writeGoTo(state.num, sym, nextState.num)
			}
		}

		for prodID := range state.reducible {
			reducibleProd, ok := b.prods.findByID(prodID)
			if !ok {
				return nil, fmt.Errorf("reducible production not found: %v", prodID)
			}

			reducibleItem := state.reducibleItem(prodID)
			if reducibleItem == nil {
				return nil, fmt.Errorf("reducible item not found; state: %v, production: %v", state.num, reducibleProd.num)
			}

			for a := range reducibleItem.lookAhead.symbols {
				c := cellOf(a)
				c.reduces = append(c.reduces, reducibleProd.num)
			}
		}

		syms := make([]symbol.Symbol, 0, len(cells))
		for sym := range cells {
			syms = append(syms, sym)
		}
		sort.Slice(syms, func(i, j int) bool {
			return syms[i] < syms[j]
		})
		for _, sym := range syms {
			c := cells[sym]
			sort.Slice(c.reduces, func(i, j int) bool {
				return c.reduces[i] < c.reduces[j]
			})
			err := b.writeCell(ptab, state, sym, c)
			if err != nil {
				return nil, err
			}
		}
	}

	return ptab, nil
}

// writeCell resolves the conflicts of a cell and writes its action. Precedence comes
// first, then associativity, then declaration order. When actions still remain, the
// cell becomes a split cell if every rule involved belongs to a #glr non-terminal.
// Otherwise the remaining conflicts are recorded as unresolved.
func (b *lrTableBuilder) writeCell(tab *ParsingTable, state *lrState, sym symbol.Symbol, c *actionCell) error {
	if !c.hasShift && len(c.reduces) == 1 {
		tab.writeAction(state.num.Int(), sym.Num().Int(), newReduceActionEntry(c.reduces[0]))
		return nil
	}
	if c.hasShift && len(c.reduces) == 0 {
		tab.writeAction(state.num.Int(), sym.Num().Int(), newShiftActionEntry(c.nextState))
		return nil
	}

	shiftAlive := c.hasShift
	var shiftDroppedBy conflictResolutionMethod
	reduceAlive := make([]bool, len(c.reduces))
	reduceDroppedBy := make([]conflictResolutionMethod, len(c.reduces))
	for i := range reduceAlive {
		reduceAlive[i] = true
	}

	var srs []*shiftReduceConflict
	var srIdx []int
	if c.hasShift {
		for i, p := range c.reduces {
			act, method := b.resolveSRConflict(sym.Num(), p)
			con := &shiftReduceConflict{
				state:      state.num,
				sym:        sym,
				nextState:  c.nextState,
				prodNum:    p,
				resolvedBy: method,
			}
			b.conflicts = append(b.conflicts, con)
			srs = append(srs, con)
			srIdx = append(srIdx, i)
			switch act {
			case ActionTypeShift:
				reduceAlive[i] = false
				reduceDroppedBy[i] = method
			case ActionTypeReduce:
				if shiftAlive {
					shiftAlive = false
					shiftDroppedBy = method
				}
			}
		}
	}

	var rrs []*reduceReduceConflict
	var rrIdx [][2]int
	for i := 0; i < len(c.reduces); i++ {
		for j := i + 1; j < len(c.reduces); j++ {
			if !reduceAlive[i] || !reduceAlive[j] {
				continue
			}
			winner, method := b.resolveRRConflict(c.reduces[i], c.reduces[j])
			con := &reduceReduceConflict{
				state:      state.num,
				sym:        sym,
				prodNum1:   c.reduces[i],
				prodNum2:   c.reduces[j],
				resolvedBy: method,
			}
			b.conflicts = append(b.conflicts, con)
			rrs = append(rrs, con)
			rrIdx = append(rrIdx, [2]int{i, j})
			switch winner {
			case c.reduces[i]:
				reduceAlive[j] = false
				reduceDroppedBy[j] = method
			case c.reduces[j]:
				reduceAlive[i] = false
				reduceDroppedBy[i] = method
			}
		}
	}

	var survivors []actionEntry
	var survivorProds []productionNum
	if shiftAlive {
		survivors = append(survivors, newShiftActionEntry(c.nextState))
	}
	for i, p := range c.reduces {
		if reduceAlive[i] {
			survivors = append(survivors, newReduceActionEntry(p))
			survivorProds = append(survivorProds, p)
		}
	}

	if len(survivors) == 1 {
		// A conflict left unresolved by itself has been settled by another conflict
		// dropping one of its actions.
		for k, con := range srs {
			if con.resolvedBy != resolvedByNone {
				continue
			}
			if !shiftAlive {
				con.resolvedBy = shiftDroppedBy
			} else {
				con.resolvedBy = reduceDroppedBy[srIdx[k]]
			}
		}
		for k, con := range rrs {
			if con.resolvedBy != resolvedByNone {
				continue
			}
			if !reduceAlive[rrIdx[k][0]] {
				con.resolvedBy = reduceDroppedBy[rrIdx[k][0]]
			} else {
				con.resolvedBy = reduceDroppedBy[rrIdx[k][1]]
			}
		}
		tab.writeAction(state.num.Int(), sym.Num().Int(), survivors[0])
		return nil
	}

	glr, err := b.isGLRCell(state, sym, shiftAlive, survivorProds)
	if err != nil {
		return err
	}
	if glr {
		for _, con := range srs {
			if con.resolvedBy == resolvedByNone {
				con.resolvedBy = ResolvedBySplit
			}
		}
		for _, con := range rrs {
			if con.resolvedBy == resolvedByNone {
				con.resolvedBy = ResolvedBySplit
			}
		}
		tab.writeSplitCell(state.num, sym, survivors)
		return nil
	}

	for _, con := range srs {
		if con.resolvedBy != resolvedByNone {
			continue
		}
		desc, err := b.describeSRConflict(state, con)
		if err != nil {
			return err
		}
		b.unresolved = append(b.unresolved, desc)
	}
	for _, con := range rrs {
		if con.resolvedBy != resolvedByNone {
			continue
		}
		b.unresolved = append(b.unresolved, b.describeRRConflict(con))
	}
	tab.writeAction(state.num.Int(), sym.Num().Int(), survivors[0])
	return nil
}

// resolveSRConflict compares the precedence of a look-ahead terminal with the one of
// a production. A smaller number means a higher precedence. ActionTypeError means the
// conflict is not resolved.
func (b *lrTableBuilder) resolveSRConflict(sym symbol.SymbolNum, prod productionNum) (ActionType, conflictResolutionMethod) {
	symPrec := b.precAndAssoc.terminalPrecedence(sym)
	prodPrec := b.precAndAssoc.productionPredence(prod)
	if symPrec == precNil || prodPrec == precNil {
		return ActionTypeError, resolvedByNone
	}
	if symPrec == prodPrec {
		switch b.precAndAssoc.productionAssociativity(prod) {
		case assocTypeLeft:
			return ActionTypeReduce, ResolvedByAssoc
		case assocTypeRight:
			return ActionTypeShift, ResolvedByAssoc
		}
		return ActionTypeError, resolvedByNone
	}
	if symPrec < prodPrec {
		return ActionTypeShift, ResolvedByPrec
	}
	return ActionTypeReduce, ResolvedByPrec
}

// resolveRRConflict returns the production to be reduced. When both productions have
// the same precedence, the one defined earlier wins. productionNumNil means the
// conflict is not resolved.
func (b *lrTableBuilder) resolveRRConflict(prod1, prod2 productionNum) (productionNum, conflictResolutionMethod) {
	prec1 := b.precAndAssoc.productionPredence(prod1)
	prec2 := b.precAndAssoc.productionPredence(prod2)
	if prec1 == precNil || prec2 == precNil {
		return productionNumNil, resolvedByNone
	}
	if prec1 == prec2 {
		if prod1 < prod2 {
			return prod1, ResolvedByProdOrder
		}
		return prod2, ResolvedByProdOrder
	}
	if prec1 < prec2 {
		return prod1, ResolvedByPrec
	}
	return prod2, ResolvedByPrec
}

// isGLRCell reports whether the LHS of every production involved in a cell has the #glr directive.
func (b *lrTableBuilder) isGLRCell(state *lrState, sym symbol.Symbol, shift bool, reduces []productionNum) (bool, error) {
	if len(b.glrSymbols) == 0 {
		return false, nil
	}
	var lhss []symbol.Symbol
	if shift {
		prods, err := b.findShiftProductions(state, sym)
		if err != nil {
			return false, err
		}
		for _, p := range prods {
			lhss = append(lhss, p.lhs)
		}
	}
	for _, num := range reduces {
		for _, p := range b.prods.getAllProductions() {
			if p.num == num {
				lhss = append(lhss, p.lhs)
				break
			}
		}
	}
	for _, lhs := range lhss {
		if _, ok := b.glrSymbols[lhs]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// findShiftProductions returns the productions of the items in a state whose dotted
// symbol is sym, in ascending order of their numbers.
func (b *lrTableBuilder) findShiftProductions(state *lrState, sym symbol.Symbol) ([]*production, error) {
	items, err := genLR0Closure(state.kernel, b.prods)
	if err != nil {
		return nil, err
	}
	var prods []*production
	known := map[productionNum]struct{}{}
	for _, item := range items {
		if item.dottedSymbol != sym {
			continue
		}
		p, ok := b.prods.findByID(item.prod)
		if !ok {
			return nil, fmt.Errorf("production not found: %v", item.prod)
		}
		if _, ok := known[p.num]; ok {
			continue
		}
		known[p.num] = struct{}{}
		prods = append(prods, p)
	}
	sort.Slice(prods, func(i, j int) bool {
		return prods[i].num < prods[j].num
	})
	return prods, nil
}

func (b *lrTableBuilder) describeSRConflict(state *lrState, con *shiftReduceConflict) (*Conflict, error) {
	shiftProds, err := b.findShiftProductions(state, con.sym)
	if err != nil {
		return nil, err
	}
	var shiftRule string
	var shiftNum int
	if len(shiftProds) > 0 {
		shiftRule = b.describeProduction(shiftProds[0])
		shiftNum = shiftProds[0].num.Int()
	}
	return &Conflict{
		State:       state.num.Int(),
		Symbol:      b.describeSymbol(con.sym),
		Kind:        ConflictKindShiftReduce,
		ShiftState:  con.nextState.Int(),
		Rules:       [2]string{shiftRule, b.describeProductionNum(con.prodNum)},
		Productions: [2]int{shiftNum, con.prodNum.Int()},
	}, nil
}

func (b *lrTableBuilder) describeRRConflict(con *reduceReduceConflict) *Conflict {
	return &Conflict{
		State:       con.state.Int(),
		Symbol:      b.describeSymbol(con.sym),
		Kind:        ConflictKindReduceReduce,
		Rules:       [2]string{b.describeProductionNum(con.prodNum1), b.describeProductionNum(con.prodNum2)},
		Productions: [2]int{con.prodNum1.Int(), con.prodNum2.Int()},
	}
}

func (b *lrTableBuilder) describeSymbol(sym symbol.Symbol) string {
	if _, ok := b.anonymous[sym]; ok {
		return fmt.Sprintf("'%v'", b.aliases[sym])
	}
	text, _ := b.symTab.ToText(sym)
	return text
}

func (b *lrTableBuilder) describeProductionNum(num productionNum) string {
	for _, p := range b.prods.getAllProductions() {
		if p.num == num {
			return b.describeProduction(p)
		}
	}
	return ""
}

func (b *lrTableBuilder) describeProduction(p *production) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%v →", b.describeSymbol(p.lhs))
	for _, sym := range p.rhs {
		fmt.Fprintf(&s, " %v", b.describeSymbol(sym))
	}
	if p.isEmpty() {
		fmt.Fprintf(&s, " ε")
	}
	return s.String()
}

func (b *lrTableBuilder) genReport(tab *ParsingTable, gram *Grammar, modes *lexModes) (*spec.Report, error) {
	var terms []*spec.Terminal
	{
		termSyms := b.symTab.TerminalSymbols()
		terms = make([]*spec.Terminal, len(termSyms)+1)

		external := map[symbol.Symbol]struct{}{}
		for _, sym := range gram.externalSymbols {
			external[sym] = struct{}{}
		}

		for _, sym := range termSyms {
			name, ok := b.symTab.ToText(sym)
			if !ok {
				return nil, fmt.Errorf("failed to generate terminals: symbol not found: %v", sym)
			}

			term := &spec.Terminal{
				Number:  sym.Num().Int(),
				Name:    name,
				Alias:   gram.aliases[sym],
				Pattern: gram.sym2Pattern[sym],
			}
			if _, ok := gram.anonymousSymbols[sym]; ok {
				term.Anonymous = true
			}
			if _, ok := gram.skipSymbols[sym]; ok {
				term.Skip = true
			}
			if _, ok := external[sym]; ok {
				term.External = true
			}

			prec := b.precAndAssoc.terminalPrecedence(sym.Num())
			if prec != precNil {
				term.Precedence = prec
			}

			switch b.precAndAssoc.terminalAssociativity(sym.Num()) {
			case assocTypeLeft:
				term.Associativity = "l"
			case assocTypeRight:
				term.Associativity = "r"
			}

			terms[sym.Num()] = term
		}
	}

	var nonTerms []*spec.NonTerminal
	{
		nonTermSyms := b.symTab.NonTerminalSymbols()
		nonTerms = make([]*spec.NonTerminal, len(nonTermSyms)+1)
		for _, sym := range nonTermSyms {
			name, ok := b.symTab.ToText(sym)
			if !ok {
				return nil, fmt.Errorf("failed to generate non-terminals: symbol not found: %v", sym)
			}

			nonTerm := &spec.NonTerminal{
				Number: sym.Num().Int(),
				Name:   name,
			}
			if _, ok := gram.hiddenSymbols[sym]; ok || sym.IsStart() {
				nonTerm.Hidden = true
			}
			if _, ok := gram.supertypeSymbols[sym]; ok {
				nonTerm.Supertype = true
			}
			if _, ok := gram.glrSymbols[sym]; ok {
				nonTerm.GLR = true
			}
			nonTerms[sym.Num()] = nonTerm
		}
	}

	var prods []*spec.Production
	{
		ps := gram.productionSet.getAllProductions()
		prods = make([]*spec.Production, len(ps)+1)
		for _, p := range ps {
			rhs := make([]int, len(p.rhs))
			for i, e := range p.rhs {
				if e.IsTerminal() {
					rhs[i] = e.Num().Int()
				} else {
					rhs[i] = e.Num().Int() * -1
				}
			}

			prod := &spec.Production{
				Number: p.num.Int(),
				LHS:    p.lhs.Num().Int(),
				RHS:    rhs,
			}

			prec := b.precAndAssoc.productionPredence(p.num)
			if prec != precNil {
				prod.Precedence = prec
			}

			switch b.precAndAssoc.productionAssociativity(p.num) {
			case assocTypeLeft:
				prod.Associativity = "l"
			case assocTypeRight:
				prod.Associativity = "r"
			}

			prods[p.num.Int()] = prod
		}
	}

	var lexModeReport []*spec.LexMode
	for i, m := range modes.modes {
		ts := make([]int, len(m))
		for j, sym := range m {
			ts[j] = sym.Num().Int()
		}
		lexModeReport = append(lexModeReport, &spec.LexMode{
			Number:    i + 1,
			Name:      modes.name(i + 1),
			Terminals: ts,
		})
	}

	var states []*spec.State
	{
		srConflicts := map[stateNum][]*shiftReduceConflict{}
		rrConflicts := map[stateNum][]*reduceReduceConflict{}
		for _, con := range b.conflicts {
			switch c := con.(type) {
			case *shiftReduceConflict:
				srConflicts[c.state] = append(srConflicts[c.state], c)
			case *reduceReduceConflict:
				rrConflicts[c.state] = append(rrConflicts[c.state], c)
			}
		}

		states = make([]*spec.State, len(b.automaton.states))
		for _, s := range b.automaton.orderedStates() {
			kernel := make([]*spec.Item, len(s.items))
			for i, item := range s.items {
				kernel[i] = &spec.Item{
					Production: item.prodNum.Int(),
					Dot:        item.dot,
				}
			}

			var shift []*spec.Transition
			var reduce []*spec.Reduce
			var goTo []*spec.Transition
			{
				for _, t := range b.symTab.TerminalSymbols() {
				ACTIONS_LOOP:
					for _, act := range tab.getActions(s.num, t.Num()) {
						ty, next, prod := act.describe()
						switch ty {
						case ActionTypeShift:
							shift = append(shift, &spec.Transition{
								Symbol: t.Num().Int(),
								State:  next.Int(),
							})
						case ActionTypeReduce:
							for _, r := range reduce {
								if r.Production == prod.Int() {
									r.LookAhead = append(r.LookAhead, t.Num().Int())
									continue ACTIONS_LOOP
								}
							}
							reduce = append(reduce, &spec.Reduce{
								LookAhead:  []int{t.Num().Int()},
								Production: prod.Int(),
							})
						}
					}
				}

				for _, n := range b.symTab.NonTerminalSymbols() {
					ty, next := tab.getGoTo(s.num, n.Num())
					if ty == GoToTypeRegistered {
						goTo = append(goTo, &spec.Transition{
							Symbol: n.Num().Int(),
							State:  next.Int(),
						})
					}
				}

				sort.Slice(shift, func(i, j int) bool {
					return shift[i].State < shift[j].State
				})
				sort.Slice(reduce, func(i, j int) bool {
					return reduce[i].Production < reduce[j].Production
				})
				sort.Slice(goTo, func(i, j int) bool {
					return goTo[i].State < goTo[j].State
				})
			}

			sr := []*spec.SRConflict{}
			rr := []*spec.RRConflict{}
			{
				for _, c := range srConflicts[s.num] {
					conflict := &spec.SRConflict{
						Symbol:     c.sym.Num().Int(),
						State:      c.nextState.Int(),
						Production: c.prodNum.Int(),
						ResolvedBy: c.resolvedBy.Int(),
					}

					if c.resolvedBy != ResolvedBySplit {
						ty, s, p := tab.getAction(s.num, c.sym.Num())
						switch ty {
						case ActionTypeShift:
							n := s.Int()
							conflict.AdoptedState = &n
						case ActionTypeReduce:
							n := p.Int()
							conflict.AdoptedProduction = &n
						}
					}

					sr = append(sr, conflict)
				}

				sort.SliceStable(sr, func(i, j int) bool {
					return sr[i].Symbol < sr[j].Symbol
				})

				for _, c := range rrConflicts[s.num] {
					conflict := &spec.RRConflict{
						Symbol:      c.sym.Num().Int(),
						Production1: c.prodNum1.Int(),
						Production2: c.prodNum2.Int(),
						ResolvedBy:  c.resolvedBy.Int(),
					}

					if c.resolvedBy != ResolvedBySplit {
						_, _, p := tab.getAction(s.num, c.sym.Num())
						conflict.AdoptedProduction = p.Int()
					}

					rr = append(rr, conflict)
				}

				sort.SliceStable(rr, func(i, j int) bool {
					return rr[i].Symbol < rr[j].Symbol
				})
			}

			states[s.num.Int()] = &spec.State{
				Number:     s.num.Int(),
				Kernel:     kernel,
				LexMode:    modes.stateModes[s.num],
				Shift:      shift,
				Reduce:     reduce,
				GoTo:       goTo,
				SRConflict: sr,
				RRConflict: rr,
			}
		}
	}

	return &spec.Report{
		Name:         gram.name,
		Terminals:    terms,
		NonTerminals: nonTerms,
		Productions:  prods,
		LexModes:     lexModeReport,
		States:       states,
	}, nil
}
