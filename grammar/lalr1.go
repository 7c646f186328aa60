package grammar

import (
	"fmt"

	"github.com/nihei9/sapling/grammar/symbol"
)

type stateAndLRItem struct {
	kernelID kernelID
	itemID   lrItemID
}

type propagation struct {
	src  *stateAndLRItem
	dest []*stateAndLRItem
}

type lalr1Automaton struct {
	*lr0Automaton
}

// genLALR1Automaton attaches look-ahead symbols to the LR(0) automaton. For each
// kernel item, a closure seeded with a dummy propagation marker tells which
// look-ahead symbols are generated spontaneously and which are propagated from the
// kernel item. The propagated ones are then spread until nothing changes.
func genLALR1Automaton(lr0 *lr0Automaton, prods *productionSet, first *firstSet) (*lalr1Automaton, error) {
	// [S' →・S, <eof>]
	iniState := lr0.states[lr0.initialState]
	iniState.items[0].lookAhead.add(symbol.SymbolEOF)

	var props []*propagation
	for _, state := range lr0.orderedStates() {
		for _, kItem := range state.items {
			kItem.lookAhead.propagation = true

			items, err := genLALR1Closure(kItem, prods, first)
			if err != nil {
				return nil, err
			}

			var propDests []*stateAndLRItem
			for _, item := range items {
				if item.reducible {
					p, ok := prods.findByID(item.prod)
					if !ok {
						return nil, fmt.Errorf("production not found: %v", item.prod)
					}
					if !p.isEmpty() {
						continue
					}

					var reducibleItem *lrItem
					for _, it := range state.emptyProdItems {
						if it.id == item.id {
							reducibleItem = it
							break
						}
					}
					if reducibleItem == nil {
						return nil, fmt.Errorf("reducible item not found: %v", item.id)
					}
					for a := range item.lookAhead.symbols {
						reducibleItem.lookAhead.add(a)
					}

					if item.lookAhead.propagation {
						propDests = append(propDests, &stateAndLRItem{
							kernelID: state.id,
							itemID:   item.id,
						})
					}
					continue
				}

				nextKID := state.next[item.dottedSymbol]
				var nextItemID lrItemID
				{
					p, ok := prods.findByID(item.prod)
					if !ok {
						return nil, fmt.Errorf("production not found: %v", item.prod)
					}
					it, err := newLR0Item(p, item.dot+1)
					if err != nil {
						return nil, fmt.Errorf("failed to generate an item ID: %v", err)
					}
					nextItemID = it.id
				}

				if item.lookAhead.propagation {
					propDests = append(propDests, &stateAndLRItem{
						kernelID: nextKID,
						itemID:   nextItemID,
					})
					continue
				}

				nextItem := lr0.states[nextKID].kernel.findItem(nextItemID)
				if nextItem == nil {
					return nil, fmt.Errorf("item not found: %v", nextItemID)
				}
				for a := range item.lookAhead.symbols {
					nextItem.lookAhead.add(a)
				}
			}
			if len(propDests) == 0 {
				continue
			}

			props = append(props, &propagation{
				src: &stateAndLRItem{
					kernelID: state.id,
					itemID:   kItem.id,
				},
				dest: propDests,
			})
		}
	}

	err := propagateLookAhead(lr0, props)
	if err != nil {
		return nil, fmt.Errorf("failed to propagate look-ahead symbols: %v", err)
	}

	return &lalr1Automaton{
		lr0Automaton: lr0,
	}, nil
}

// genLALR1Closure returns the LR(1) closure of srcItem. The items carrying the
// propagation flag are the ones whose look-ahead symbols come from srcItem.
func genLALR1Closure(srcItem *lrItem, prods *productionSet, first *firstSet) ([]*lrItem, error) {
	items := []*lrItem{srcItem}
	knownItems := map[lrItemID]map[symbol.Symbol]struct{}{}
	knownItemsProp := map[lrItemID]struct{}{}
	uncheckedItems := []*lrItem{srcItem}
	for len(uncheckedItems) > 0 {
		nextUncheckedItems := []*lrItem{}
		for _, item := range uncheckedItems {
			if !item.dottedSymbol.IsNonTerminal() {
				continue
			}

			p, ok := prods.findByID(item.prod)
			if !ok {
				return nil, fmt.Errorf("production not found: %v", item.prod)
			}

			fst, err := first.find(p, item.dot+1)
			if err != nil {
				return nil, err
			}
			lookAheadSyms := make([]symbol.Symbol, 0, len(fst.symbols)+len(item.lookAhead.symbols))
			for s := range fst.symbols {
				lookAheadSyms = append(lookAheadSyms, s)
			}
			if fst.empty {
				for a := range item.lookAhead.symbols {
					lookAheadSyms = append(lookAheadSyms, a)
				}
			}
			propagates := fst.empty && item.lookAhead.propagation

			ps, _ := prods.findByLHS(item.dottedSymbol)
			for _, prod := range ps {
				for _, a := range lookAheadSyms {
					newItem, err := newLR0Item(prod, 0)
					if err != nil {
						return nil, err
					}
					if known, exist := knownItems[newItem.id]; exist {
						if _, exist := known[a]; exist {
							continue
						}
					}

					newItem.lookAhead.add(a)

					items = append(items, newItem)
					if knownItems[newItem.id] == nil {
						knownItems[newItem.id] = map[symbol.Symbol]struct{}{}
					}
					knownItems[newItem.id][a] = struct{}{}
					nextUncheckedItems = append(nextUncheckedItems, newItem)
				}

				if propagates {
					newItem, err := newLR0Item(prod, 0)
					if err != nil {
						return nil, err
					}
					if _, exist := knownItemsProp[newItem.id]; exist {
						continue
					}

					newItem.lookAhead.propagation = true

					items = append(items, newItem)
					knownItemsProp[newItem.id] = struct{}{}
					nextUncheckedItems = append(nextUncheckedItems, newItem)
				}
			}
		}
		uncheckedItems = nextUncheckedItems
	}

	return items, nil
}

func propagateLookAhead(lr0 *lr0Automaton, props []*propagation) error {
	for {
		changed := false
		for _, prop := range props {
			srcState, ok := lr0.states[prop.src.kernelID]
			if !ok {
				return fmt.Errorf("source state not found: %v", prop.src.kernelID)
			}
			srcItem := srcState.kernel.findItem(prop.src.itemID)
			if srcItem == nil {
				return fmt.Errorf("source item not found: %v", prop.src.itemID)
			}

			for _, dest := range prop.dest {
				destState, ok := lr0.states[dest.kernelID]
				if !ok {
					return fmt.Errorf("destination state not found: %v", dest.kernelID)
				}
				destItem := destState.findItem(dest.itemID)
				if destItem == nil {
					return fmt.Errorf("destination item not found: %v", dest.itemID)
				}

				for a := range srcItem.lookAhead.symbols {
					if destItem.lookAhead.add(a) {
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	return nil
}
