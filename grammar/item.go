package grammar

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/nihei9/sapling/grammar/symbol"
)

type lrItemID [32]byte

func (id lrItemID) String() string {
	return fmt.Sprintf("%x", id.num())
}

func (id lrItemID) num() uint32 {
	return binary.LittleEndian.Uint32(id[:])
}

type lookAhead struct {
	symbols map[symbol.Symbol]struct{}

	// When propagation is true, the item passes its look-ahead symbols on to the
	// items derived from it.
	propagation bool
}

func (la *lookAhead) add(sym symbol.Symbol) bool {
	if la.symbols == nil {
		la.symbols = map[symbol.Symbol]struct{}{}
	}
	if _, ok := la.symbols[sym]; ok {
		return false
	}
	la.symbols[sym] = struct{}{}
	return true
}

// sorted returns the look-ahead symbols in ascending order.
func (la *lookAhead) sorted() []symbol.Symbol {
	syms := make([]symbol.Symbol, 0, len(la.symbols))
	for sym := range la.symbols {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool {
		return syms[i] < syms[j]
	})
	return syms
}

type lrItem struct {
	id      lrItemID
	prod    productionID
	prodNum productionNum

	// expr → expr + term
	//
	// Dot | Dotted Symbol | Item
	// ----+---------------+--------------------
	// 0   | expr          | expr →・expr + term
	// 1   | +             | expr → expr・+ term
	// 2   | term          | expr → expr +・term
	// 3   | Nil           | expr → expr + term・
	dot          int
	dottedSymbol symbol.Symbol

	// initial is true for the item S' →・S.
	initial bool

	// reducible is true when the dot is at the end of the production.
	reducible bool

	// kernel is true for the initial item and the items whose dot is not at the head.
	kernel bool

	lookAhead lookAhead
}

func newLR0Item(prod *production, dot int) (*lrItem, error) {
	if prod == nil {
		return nil, fmt.Errorf("production must be non-nil")
	}

	if dot < 0 || dot > prod.rhsLen {
		return nil, fmt.Errorf("dot must be between 0 and %v", prod.rhsLen)
	}

	var id lrItemID
	{
		b := make([]byte, 0, len(prod.id)+8)
		b = append(b, prod.id[:]...)
		b = binary.LittleEndian.AppendUint64(b, uint64(dot))
		id = sha256.Sum256(b)
	}

	dottedSymbol := symbol.SymbolNil
	if dot < prod.rhsLen {
		dottedSymbol = prod.rhs[dot]
	}

	initial := prod.lhs.IsStart() && dot == 0

	return &lrItem{
		id:           id,
		prod:         prod.id,
		prodNum:      prod.num,
		dot:          dot,
		dottedSymbol: dottedSymbol,
		initial:      initial,
		reducible:    dot == prod.rhsLen,
		kernel:       initial || dot > 0,
	}, nil
}

type kernelID [32]byte

func (id kernelID) String() string {
	return fmt.Sprintf("%x", binary.LittleEndian.Uint32(id[:]))
}

type kernel struct {
	id    kernelID
	items []*lrItem
}

// newKernel removes duplicate items. The ID depends only on the set of the items, and
// the items are kept in order of production number and dot position.
func newKernel(items []*lrItem) (*kernel, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("a kernel need at least one item")
	}

	m := map[lrItemID]*lrItem{}
	for _, item := range items {
		if !item.kernel {
			return nil, fmt.Errorf("not a kernel item: %v", item.id)
		}
		m[item.id] = item
	}
	sortedItems := make([]*lrItem, 0, len(m))
	for _, item := range m {
		sortedItems = append(sortedItems, item)
	}

	var id kernelID
	{
		sort.Slice(sortedItems, func(i, j int) bool {
			return bytes.Compare(sortedItems[i].id[:], sortedItems[j].id[:]) < 0
		})
		b := make([]byte, 0, len(sortedItems)*len(lrItemID{}))
		for _, item := range sortedItems {
			b = append(b, item.id[:]...)
		}
		id = sha256.Sum256(b)
	}

	sort.SliceStable(sortedItems, func(i, j int) bool {
		if sortedItems[i].prodNum != sortedItems[j].prodNum {
			return sortedItems[i].prodNum < sortedItems[j].prodNum
		}
		return sortedItems[i].dot < sortedItems[j].dot
	})

	return &kernel{
		id:    id,
		items: sortedItems,
	}, nil
}

func (k *kernel) findItem(id lrItemID) *lrItem {
	for _, item := range k.items {
		if item.id == id {
			return item
		}
	}
	return nil
}

type stateNum int

const stateNumInitial = stateNum(0)

func (n stateNum) Int() int {
	return int(n)
}

func (n stateNum) String() string {
	return strconv.Itoa(int(n))
}

func (n stateNum) next() stateNum {
	return stateNum(n + 1)
}

type lrState struct {
	*kernel
	num       stateNum
	next      map[symbol.Symbol]kernelID
	reducible map[productionID]struct{}

	// emptyProdItems holds the reducible items of empty productions like `p →・ε`.
	// They are not kernel items, but their look-ahead symbols are needed to write
	// reduce actions. For instance, given the following productions, CLOSURE({s' →・s})
	// contains `s →・ε`, but the kernel doesn't.
	//
	// s' → s
	// s → a | ε
	emptyProdItems []*lrItem
}

// findItem finds an item in the kernel or in emptyProdItems.
func (s *lrState) findItem(id lrItemID) *lrItem {
	if item := s.kernel.findItem(id); item != nil {
		return item
	}
	for _, item := range s.emptyProdItems {
		if item.id == id {
			return item
		}
	}
	return nil
}

// reducibleItem returns the item that reduces prod in the state.
func (s *lrState) reducibleItem(prod productionID) *lrItem {
	for _, item := range s.items {
		if item.prod == prod && item.reducible {
			return item
		}
	}
	for _, item := range s.emptyProdItems {
		if item.prod == prod {
			return item
		}
	}
	return nil
}
