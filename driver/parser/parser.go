// Package parser is an incremental GLR parser driven by the tables of a Language.
//
// A parse keeps a set of stack versions. A version forks at a cell holding several
// actions, versions reaching the same state at the same position are merged, and a
// version hitting an error while others are alive is dropped. The last version
// recovers from errors by wrapping the offending nodes into ERROR nodes, so a parse
// always yields a tree.
//
// Given the edited tree of a previous parse, the parser pushes the subtrees the edits
// didn't touch as they are, so the new tree shares them with the old one.
package parser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nihei9/sapling/driver/lexer"
	"github.com/nihei9/sapling/language"
	"github.com/tliron/commonlog"
)

const (
	maxVersionCount = 32

	// maxSkippedTokens is the number of tokens a version can skip in a row before the
	// parser gives up.
	maxSkippedTokens = 256

	// maxRecoveriesAt is the number of pops a version can do at one position before it
	// falls back to skipping the token.
	maxRecoveriesAt = 3
)

type ParserOption func(p *Parser) error

// WithDeadline stops a parse at t. The tree of a stopped parse is partial.
func WithDeadline(t time.Time) ParserOption {
	return func(p *Parser) error {
		p.deadline = t
		return nil
	}
}

// WithOperationLimit stops a parse after n shifts and reductions. The tree of a
// stopped parse is partial.
func WithOperationLimit(n int) ParserOption {
	return func(p *Parser) error {
		if n <= 0 {
			return fmt.Errorf("an operation limit must be positive: %v", n)
		}
		p.opLimit = n
		return nil
	}
}

// WithLogger makes the parser log forks, merges and recoveries at debug level.
func WithLogger(log commonlog.Logger) ParserOption {
	return func(p *Parser) error {
		p.log = log
		return nil
	}
}

func WithExternalScanner(s ExternalScanner) ParserOption {
	return func(p *Parser) error {
		if s == nil {
			return errors.New("an external scanner must not be nil")
		}
		p.scanner = s
		return nil
	}
}

// Parser parses inputs of one language. A Parser is not safe for concurrent use, but
// parsers of one language can run concurrently.
type Parser struct {
	lang     *language.Language
	deadline time.Time
	opLimit  int
	log      commonlog.Logger
	scanner  ExternalScanner
}

func NewParser(lang *language.Language, opts ...ParserOption) (*Parser, error) {
	if lang == nil {
		return nil, errors.New("a language must not be nil")
	}
	p := &Parser{
		lang: lang,
	}
	for _, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Parse parses an input. When old is not nil, it must be the tree of the previous
// version of the input, with the edits made since then applied by Tree.Edit.
//
// Syntax errors don't make Parse fail; they become ERROR nodes. Parse returns an error
// only for invalid arguments.
func (p *Parser) Parse(ctx context.Context, in Input, old *Tree) (*Tree, error) {
	if in == nil {
		return nil, errors.New("an input must not be nil")
	}
	if old != nil && old.lang != p.lang {
		return nil, fmt.Errorf("the old tree belongs to another language: %v", old.lang.Name())
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &parse{
		Parser: p,
		in:     in,
		lex:    lexer.NewLexer(p.lang, in),
		reuse:  newReuseCursor(old),
		tokens: map[tokenKey]*token{},
	}
	if p.scanner != nil {
		s.scanState = p.scanner.CreateState()
		defer p.scanner.DestroyState(s.scanState)
	}

	root, partial := s.run(ctx)
	return &Tree{
		lang:    p.lang,
		root:    root,
		input:   in,
		partial: partial,
		fatal:   s.fatal,
	}, nil
}

type tokenKey struct {
	offset int
	mode   int
	// state is -1 unless an external scanner read the token.
	state int
}

// token is a lookahead token. leaf is set when a subtree of the old tree stands for
// the token.
type token struct {
	symbol       language.Symbol
	start        int
	end          int
	length       Length
	lookaheadEnd int
	mode         int
	eof          bool
	invalid      bool
	extra        bool
	external     bool
	leaf         *subtree
}

// parse holds the state of one call of Parse.
type parse struct {
	*Parser
	in        Input
	lex       *lexer.Lexer
	reuse     *reuseCursor
	scanState any

	versions []*version
	nextID   int
	ops      int
	fatal    bool

	tokens     map[tokenKey]*token
	tokenFloor int
}

func (s *parse) debugf(format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Debugf(format, args...)
}

func (s *parse) run(ctx context.Context) (*subtree, bool) {
	s.versions = []*version{
		{
			id:     s.newID(),
			top:    newStack(s.lang.InitialState()),
			status: versionActive,
		},
	}
	for {
		v := s.nextVersion()
		if v == nil {
			break
		}
		if s.cancelled(ctx) {
			s.debugf("parse cancelled after %v operations at %v", s.ops, v.pos().Extent)
			return s.partialResult(), true
		}
		s.dropTokensBefore(v.pos().Bytes)
		s.advance(v)
		s.merge()
	}
	return s.result(), false
}

func (s *parse) newID() int {
	id := s.nextID
	s.nextID++
	return id
}

// nextVersion returns the active version with the smallest position.
func (s *parse) nextVersion() *version {
	var next *version
	for _, v := range s.versions {
		if v.status != versionActive {
			continue
		}
		if next == nil || v.pos().Bytes < next.pos().Bytes {
			next = v
		}
	}
	return next
}

func (s *parse) liveCount() int {
	n := 0
	for _, v := range s.versions {
		if v.status != versionDiscarded {
			n++
		}
	}
	return n
}

func (s *parse) activeCount() int {
	n := 0
	for _, v := range s.versions {
		if v.status == versionActive {
			n++
		}
	}
	return n
}

func (s *parse) cancelled(ctx context.Context) bool {
	if s.opLimit > 0 && s.ops >= s.opLimit {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *parse) dropTokensBefore(offset int) {
	if offset <= s.tokenFloor {
		return
	}
	for k := range s.tokens {
		if k.offset < offset {
			delete(s.tokens, k)
		}
	}
	s.tokenFloor = offset
}

// advance performs one step of a version.
func (s *parse) advance(v *version) {
	state := v.state()
	if s.reuse != nil && s.activeCount() == 1 && s.reuseNode(v) {
		return
	}

	tok := s.lookahead(v)
	if tok.extra {
		v.top = v.top.push(state, s.leafOf(tok, state))
		return
	}

	var acts []language.Action
	if !tok.invalid {
		acts = s.lang.Actions(state, tok.symbol)
	}
	if len(acts) == 0 || acts[0].Type == language.ActionTypeError {
		s.handleError(v, tok)
		return
	}
	for _, act := range acts[1:] {
		if len(s.versions) >= maxVersionCount {
			s.debugf("version limit reached; drop %v at state %v", act, state)
			break
		}
		f := v.fork(s.newID())
		s.versions = append(s.versions, f)
		s.debugf("fork version %v into %v at %v: %v", v.id, f.id, v.pos().Extent, act)
		s.apply(f, act, tok)
	}
	s.apply(v, acts[0], tok)
}

func (s *parse) apply(v *version, act language.Action, tok *token) {
	s.ops++
	switch act.Type {
	case language.ActionTypeShift:
		s.shift(v, act.State, tok)
	case language.ActionTypeReduce:
		if !s.reduce(v, act.Production, tok) {
			s.handleError(v, tok)
		}
	case language.ActionTypeAccept:
		s.accept(v)
	default:
		s.handleError(v, tok)
	}
}

func (s *parse) shift(v *version, next int, tok *token) {
	v.top = v.top.push(next, s.leafOf(tok, v.state()))
	v.skipped = 0
	v.skipError = nil
}

// reduce pops the children of a production, skipping floating nodes, and pushes the
// node made of them. Floating nodes above the last child stay above the new node.
func (s *parse) reduce(v *version, prod int, tok *token) bool {
	n := s.lang.ProductionLen(prod)
	e := v.top
	var trailing []*subtree
	var children []*subtree
	if n > 0 {
		for !e.isBottom() && e.node.floating() {
			trailing = append(trailing, e.node)
			e = e.prev
		}
		count := 0
		for count < n {
			if e.isBottom() {
				return false
			}
			children = append(children, e.node)
			if !e.node.floating() {
				count++
			}
			e = e.prev
		}
	}
	reverse(trailing)
	reverse(children)

	lhs := s.lang.ProductionLHS(prod)
	next, ok := s.lang.GoTo(e.state, lhs)
	if !ok {
		return false
	}
	node := newBranch(s.lang, lhs, prod, children, e.state)
	// An error above the children means a recovery popped the tokens that followed
	// them, so a parse without that recovery may never build this node.
	node.fragile = node.fragile || s.liveCount() > 1 || hasError(trailing)
	node.lookahead = extendLookahead(node.lookahead, e.pos.Bytes+node.length.Bytes, tok.lookaheadEnd)
	top := e.push(next, node)
	for _, f := range trailing {
		top = top.push(next, f)
	}
	v.top = top
	return true
}

func hasError(nodes []*subtree) bool {
	for _, n := range nodes {
		if n.isError {
			return true
		}
	}
	return false
}

func reverse(nodes []*subtree) {
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
}

// accept finishes a version. Floating nodes around the start node become children of
// the root.
func (s *parse) accept(v *version) {
	nodes := v.top.nodes()
	idx := -1
	for i, n := range nodes {
		if !n.floating() {
			idx = i
			break
		}
	}

	var root *subtree
	switch {
	case idx < 0:
		root = s.errorRoot(nodes)
	case len(nodes) == 1:
		root = nodes[0]
	default:
		start := nodes[idx]
		children := make([]*subtree, 0, len(nodes)-1+len(start.children))
		children = append(children, nodes[:idx]...)
		children = append(children, start.children...)
		children = append(children, nodes[idx+1:]...)
		root = newBranch(s.lang, start.symbol, start.production, children, start.parseState)
		root.fragile = root.fragile || start.fragile
		root.lookahead = extendLookahead(root.lookahead, root.length.Bytes, s.in.Len()+1)
	}
	v.status = versionAccepted
	v.result = root
	s.debugf("version %v accepted with %v errors", v.id, root.errorCount)
}

func (s *parse) errorRoot(nodes []*subtree) *subtree {
	if len(nodes) == 1 && nodes[0].isError && len(nodes[0].children) > 0 {
		return nodes[0]
	}
	root := newError(s.lang, nodes, s.lang.InitialState())
	root.lookahead = extendLookahead(root.lookahead, root.length.Bytes, s.in.Len()+1)
	return root
}

// reuseNode pushes a subtree of the old tree starting at the position of a version
// when the version's state can take it.
func (s *parse) reuseNode(v *version) bool {
	state := v.state()
	for _, c := range s.reuse.candidates(v.pos().Bytes) {
		if !reusableAsNode(c) || c.parseState != state {
			continue
		}
		var next int
		if s.lang.IsTerminal(c.symbol) {
			if s.lang.IsSplit(state, c.symbol) {
				continue
			}
			act := s.lang.Action(state, c.symbol)
			if act.Type != language.ActionTypeShift {
				continue
			}
			next = act.State
		} else {
			var ok bool
			next, ok = s.lang.GoTo(state, c.symbol)
			if !ok {
				continue
			}
		}
		s.ops++
		v.top = v.top.push(next, c)
		v.skipped = 0
		v.skipError = nil
		s.debugf("reuse %v at %v", s.lang.SymbolName(c.symbol), v.top.prev.pos.Extent)
		return true
	}
	return false
}

// leafOf returns the leaf a token is shifted as in a state.
func (s *parse) leafOf(tok *token, state int) *subtree {
	if tok.leaf != nil {
		if tok.leaf.parseState == state {
			return tok.leaf
		}
		c := *tok.leaf
		c.parseState = state
		return &c
	}
	leaf := newLeaf(s.lang, tok.symbol, tok.length, state, tok.mode, tok.lookaheadEnd-tok.end)
	leaf.external = tok.external
	leaf.fragile = s.liveCount() > 1
	return leaf
}

// lookahead returns the token at the position of a version, read in the lex mode of
// the version's state.
func (s *parse) lookahead(v *version) *token {
	state := v.state()
	pos := v.pos()
	mode := s.lang.LexMode(state)
	valid := s.validExternals(state)
	key := tokenKey{
		offset: pos.Bytes,
		mode:   mode,
		state:  -1,
	}
	if valid != nil {
		key.state = state
	}
	if tok, ok := s.tokens[key]; ok {
		return tok
	}
	tok := s.readToken(pos, mode, valid)
	s.tokens[key] = tok
	return tok
}

func (s *parse) validExternals(state int) []bool {
	exts := s.lang.ExternalTokens()
	if s.scanner == nil || len(exts) == 0 {
		return nil
	}
	valid := make([]bool, len(exts))
	found := false
	for i, sym := range exts {
		if s.lang.Action(state, sym).Type != language.ActionTypeError {
			valid[i] = true
			found = true
		}
	}
	if !found {
		return nil
	}
	return valid
}

func (s *parse) readToken(pos Length, mode int, valid []bool) *token {
	if valid != nil {
		if tok := s.scanExternal(pos, mode, valid); tok != nil {
			return tok
		}
	}

	var orig *subtree
	if s.reuse != nil {
		if cands := s.reuse.candidates(pos.Bytes); len(cands) > 0 {
			leaf := cands[len(cands)-1]
			if len(leaf.children) == 0 {
				if reusableAsToken(leaf, mode) {
					return s.tokenOfLeaf(pos, leaf)
				}
				if leaf.stale && leaf.orig != nil && leaf.orig.length == leaf.length {
					orig = leaf.orig
				}
			}
		}
	}

	t := s.lex.Read(pos.Bytes, lexer.ModeID(mode))
	tok := &token{
		symbol:       t.Terminal,
		start:        t.Start,
		end:          t.End,
		length:       position(s.in, t.End).sub(pos),
		lookaheadEnd: t.LookaheadEnd,
		mode:         mode,
		eof:          t.EOF,
		invalid:      t.Invalid,
		extra:        t.Skip,
	}
	if orig != nil && relexedAs(orig, tok) {
		tok.leaf = orig
	}
	return tok
}

// relexedAs reports whether a token read from the new input is the same as a leaf of
// the tree before an edit.
func relexedAs(orig *subtree, tok *token) bool {
	return !tok.eof &&
		orig.symbol == tok.symbol &&
		orig.length == tok.length &&
		orig.lookahead == tok.lookaheadEnd-tok.end &&
		orig.lexMode == tok.mode &&
		orig.errorCount == 0 &&
		!orig.external
}

func (s *parse) tokenOfLeaf(pos Length, leaf *subtree) *token {
	end := pos.Bytes + leaf.length.Bytes
	return &token{
		symbol:       leaf.symbol,
		start:        pos.Bytes,
		end:          end,
		length:       leaf.length,
		lookaheadEnd: end + leaf.lookahead,
		mode:         leaf.lexMode,
		extra:        leaf.extra,
		leaf:         leaf,
	}
}

func (s *parse) scanExternal(pos Length, mode int, valid []bool) *token {
	c := newScanCursor(s.in, pos.Bytes)
	sym, ok := s.scanner.Scan(s.scanState, c, valid)
	if !ok || !s.lang.IsExternal(sym) {
		return nil
	}
	end := c.tokenEnd()
	lookaheadEnd := c.examined
	if lookaheadEnd < end {
		lookaheadEnd = end
	}
	return &token{
		symbol:       sym,
		start:        pos.Bytes,
		end:          end,
		length:       position(s.in, end).sub(pos),
		lookaheadEnd: lookaheadEnd,
		mode:         mode,
		external:     true,
	}
}

func (s *parse) handleError(v *version, tok *token) {
	if s.liveCount() > 1 {
		v.status = versionDiscarded
		s.debugf("discard version %v at %v", v.id, v.pos().Extent)
		return
	}
	s.recover(v, tok)
}

// recover first pops the stack to a state that can take the token. When no such
// state exists, it skips the token.
func (s *parse) recover(v *version, tok *token) {
	pos := v.pos().Bytes
	if !tok.invalid {
		if v.recoveredAt != pos {
			v.recoveredAt = pos
			v.recoveries = 0
		}
		if v.recoveries < maxRecoveriesAt && s.popToRecover(v, tok) {
			v.recoveries++
			return
		}
	}
	if tok.eof {
		nodes := v.top.nodes()
		v.status = versionAccepted
		v.result = s.errorRoot(nodes)
		s.debugf("wrap %v nodes into an error at the end of the input", len(nodes))
		return
	}
	s.skip(v, tok)
}

func (s *parse) popToRecover(v *version, tok *token) bool {
	var popped []*subtree
	for e := v.top; !e.isBottom(); e = e.prev {
		popped = append(popped, e.node)
		below := e.prev
		if s.lang.Action(below.state, tok.symbol).Type == language.ActionTypeError {
			continue
		}
		reverse(popped)
		v.top = below.push(below.state, newError(s.lang, flattenErrors(popped), below.state))
		s.debugf("recover by popping %v nodes to state %v at %v", len(popped), below.state, v.pos().Extent)
		return true
	}
	return false
}

// flattenErrors replaces error branches with their children.
func flattenErrors(nodes []*subtree) []*subtree {
	var flat []*subtree
	for _, n := range nodes {
		if n.isError && len(n.children) > 0 {
			flat = append(flat, n.children...)
			continue
		}
		flat = append(flat, n)
	}
	return flat
}

// skip wraps a token into an error node. Tokens skipped in a row share one error
// node.
func (s *parse) skip(v *version, tok *token) {
	state := v.state()
	leaf := s.leafOf(tok, state)
	v.skipped++
	if v.skipped > maxSkippedTokens {
		s.fail(v, leaf)
		return
	}

	var extras []*subtree
	e := v.top
	for !e.isBottom() && e.node.extra {
		extras = append(extras, e.node)
		e = e.prev
	}
	if v.skipError != nil && !e.isBottom() && e.node == v.skipError {
		reverse(extras)
		var children []*subtree
		if len(v.skipError.children) > 0 {
			children = append(children, v.skipError.children...)
		} else {
			children = append(children, v.skipError)
		}
		children = append(children, extras...)
		children = append(children, leaf)
		errNode := newError(s.lang, children, state)
		v.top = e.prev.push(state, errNode)
		v.skipError = errNode
		return
	}

	errNode := leaf
	if !leaf.isError {
		errNode = newError(s.lang, []*subtree{leaf}, state)
	}
	v.top = v.top.push(state, errNode)
	v.skipError = errNode
	s.debugf("skip %v at %v", s.lang.SymbolName(tok.symbol), v.top.prev.pos.Extent)
}

// fail gives up the parse. The root becomes an error node holding the nodes of the
// stack and the tokens of the rest of the input.
func (s *parse) fail(v *version, leaf *subtree) {
	nodes := append(v.top.nodes(), leaf)
	pos := v.pos().add(leaf.length)
	for {
		t := s.lex.Read(pos.Bytes, lexer.ModeIDDefault)
		if t.EOF {
			break
		}
		end := position(s.in, t.End)
		nodes = append(nodes, newLeaf(s.lang, t.Terminal, end.sub(pos), v.state(), lexer.ModeIDDefault.Int(), t.LookaheadEnd-t.End))
		pos = end
	}
	root := newError(s.lang, nodes, s.lang.InitialState())
	root.lookahead = extendLookahead(root.lookahead, root.length.Bytes, s.in.Len()+1)
	v.status = versionAccepted
	v.result = root
	s.fatal = true
	s.debugf("give up recovering after %v skipped tokens at %v", maxSkippedTokens, pos.Extent)
}

// merge drops discarded versions and active versions that reached the state and the
// position of a preceding version.
func (s *parse) merge() {
	kept := make([]*version, 0, len(s.versions))
	for _, v := range s.versions {
		if v.status == versionDiscarded {
			continue
		}
		if v.status == versionActive {
			var dup *version
			for _, w := range kept {
				if w.status == versionActive && w.state() == v.state() && w.pos().Bytes == v.pos().Bytes {
					dup = w
					break
				}
			}
			if dup != nil {
				s.debugf("merge version %v into %v at %v", v.id, dup.id, v.pos().Extent)
				continue
			}
		}
		kept = append(kept, v)
	}
	s.versions = kept
}

// result returns the tree of the accepted version with the fewest errors.
func (s *parse) result() *subtree {
	var best *version
	for _, v := range s.versions {
		if v.status != versionAccepted {
			continue
		}
		if best == nil || v.result.errorCount < best.result.errorCount {
			best = v
		}
	}
	if best == nil {
		return newError(s.lang, nil, s.lang.InitialState())
	}
	return best.result
}

func (s *parse) partialResult() *subtree {
	for _, v := range s.versions {
		switch v.status {
		case versionActive:
			return newError(s.lang, v.top.nodes(), s.lang.InitialState())
		case versionAccepted:
			return newError(s.lang, []*subtree{v.result}, s.lang.InitialState())
		}
	}
	return newError(s.lang, nil, s.lang.InitialState())
}
