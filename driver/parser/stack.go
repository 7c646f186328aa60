package parser

// stackEntry is an element of a persistent linked stack. Versions forked from one
// another share the entries below the fork point.
type stackEntry struct {
	state int
	node  *subtree
	prev  *stackEntry

	// pos is the position right after node.
	pos Length
}

func newStack(state int) *stackEntry {
	return &stackEntry{
		state: state,
	}
}

func (e *stackEntry) push(state int, node *subtree) *stackEntry {
	return &stackEntry{
		state: state,
		node:  node,
		prev:  e,
		pos:   e.pos.add(node.length),
	}
}

func (e *stackEntry) isBottom() bool {
	return e.prev == nil
}

// nodes returns the nodes from the bottom of the stack to e.
func (e *stackEntry) nodes() []*subtree {
	var nodes []*subtree
	for ; !e.isBottom(); e = e.prev {
		nodes = append(nodes, e.node)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}

type versionStatus int

const (
	versionActive versionStatus = iota
	versionAccepted
	versionDiscarded
)

func (s versionStatus) String() string {
	switch s {
	case versionActive:
		return "active"
	case versionAccepted:
		return "accepted"
	}
	return "discarded"
}

// version is one candidate of a GLR parse.
type version struct {
	id     int
	top    *stackEntry
	status versionStatus
	result *subtree

	// skipped is the number of tokens skipped since the last shift, and skipError is the
	// error node the last skip pushed.
	skipped   int
	skipError *subtree

	// recoveries is the number of pops done at offset recoveredAt.
	recoveries  int
	recoveredAt int
}

func (v *version) fork(id int) *version {
	return &version{
		id:          id,
		top:         v.top,
		status:      versionActive,
		skipped:     v.skipped,
		skipError:   v.skipError,
		recoveries:  v.recoveries,
		recoveredAt: v.recoveredAt,
	}
}

func (v *version) pos() Length {
	return v.top.pos
}

func (v *version) state() int {
	return v.top.state
}
