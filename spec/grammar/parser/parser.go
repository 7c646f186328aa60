package parser

import (
	"io"

	mlspec "github.com/nihei9/maleeni/spec"
	verr "github.com/nihei9/sapling/error"
)

func raiseSyntaxError(row int, synErr *SyntaxError) {
	panic(&verr.SpecError{
		Cause: synErr,
		Row:   row,
	})
}

func raiseSyntaxErrorWithDetail(row int, synErr *SyntaxError, detail string) {
	panic(&verr.SpecError{
		Cause:  synErr,
		Detail: detail,
		Row:    row,
	})
}

// Parse reads a grammar source and returns its AST. Parsing stops at the first
// syntax error; the returned error is a verr.SpecErrors holding it.
func Parse(src io.Reader) (*RootNode, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}

	return p.parse()
}

type parser struct {
	lex       *lexer
	peekedTok *token
	lastTok   *token
}

func newParser(src io.Reader) (*parser, error) {
	lex, err := newLexer(src)
	if err != nil {
		return nil, err
	}
	return &parser{
		lex: lex,
	}, nil
}

func (p *parser) parse() (root *RootNode, retErr error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		specErr, ok := err.(*verr.SpecError)
		if !ok {
			panic(err)
		}
		root = nil
		retErr = verr.SpecErrors{specErr}
	}()

	return p.parseRoot(), nil
}

func (p *parser) parseRoot() *RootNode {
	var dirs []*DirectiveNode
	var prods []*ProductionNode
	var lexProds []*ProductionNode
	var frags []*FragmentNode
	for {
		if p.consume(tokenKindEOF) {
			break
		}

		if dir := p.parseTopLevelDirective(); dir != nil {
			dirs = append(dirs, dir)
			continue
		}

		if frag := p.parseFragment(); frag != nil {
			frags = append(frags, frag)
			continue
		}

		prod := p.parseProduction()
		if prod.isLexical() {
			lexProds = append(lexProds, prod)
		} else {
			for _, alt := range prod.RHS {
				for _, elem := range alt.Elements {
					if elem.Pattern != "" && !elem.Literally {
						raiseSyntaxError(elem.Pos.Row, synErrPatternInAlt)
					}
				}
			}
			prods = append(prods, prod)
		}
	}

	return &RootNode{
		Directives:     dirs,
		Productions:    prods,
		LexProductions: lexProds,
		Fragments:      frags,
	}
}

func (p *parser) parseTopLevelDirective() *DirectiveNode {
	if !p.consume(tokenKindDirectiveMarker) {
		return nil
	}
	dir := p.parseDirectiveBody(p.lastTok.pos)
	if !p.consume(tokenKindSemicolon) {
		raiseSyntaxError(p.row(), synErrTopLevelDirNoSemicolon)
	}
	return dir
}

func (p *parser) parseFragment() *FragmentNode {
	if !p.consume(tokenKindKWFragment) {
		return nil
	}
	pos := p.lastTok.pos

	if !p.consume(tokenKindID) {
		raiseSyntaxError(p.row(), synErrNoFragmentName)
	}
	lhs := p.lastTok.text

	if !p.consume(tokenKindColon) {
		raiseSyntaxError(p.row(), synErrNoColon)
	}

	var rhs string
	switch {
	case p.consume(tokenKindTerminalPattern):
		rhs = p.lastTok.text
	case p.consume(tokenKindStringLiteral):
		rhs = mlspec.EscapePattern(p.lastTok.text)
	default:
		raiseSyntaxError(p.row(), synErrFragmentNoPattern)
	}

	if !p.consume(tokenKindSemicolon) {
		raiseSyntaxError(p.row(), synErrNoSemicolon)
	}

	return &FragmentNode{
		LHS: lhs,
		RHS: rhs,
		Pos: pos,
	}
}

func (p *parser) parseProduction() *ProductionNode {
	if !p.consume(tokenKindID) {
		raiseSyntaxError(p.row(), synErrNoProductionName)
	}
	lhs := p.lastTok.text
	lhsPos := p.lastTok.pos

	var dirs []*DirectiveNode
	for p.consume(tokenKindDirectiveMarker) {
		dirs = append(dirs, p.parseDirectiveBody(p.lastTok.pos))
	}

	if !p.consume(tokenKindColon) {
		raiseSyntaxError(p.row(), synErrNoColon)
	}

	alt := p.parseAlternative()
	rhs := []*AlternativeNode{alt}
	for p.consume(tokenKindOr) {
		alt := p.parseAlternative()
		rhs = append(rhs, alt)
	}

	if !p.consume(tokenKindSemicolon) {
		raiseSyntaxError(p.row(), synErrNoSemicolon)
	}

	prod := &ProductionNode{
		Directives: dirs,
		LHS:        lhs,
		RHS:        rhs,
		Pos:        lhsPos,
	}

	// The directives of a lexical production may follow its pattern, like `ws: " +" #skip;`.
	// They belong to the production, not to the alternative.
	if prod.isLexical() && len(rhs[0].Directives) > 0 {
		prod.Directives = append(prod.Directives, rhs[0].Directives...)
		rhs[0].Directives = nil
	}

	return prod
}

func (p *parser) parseAlternative() *AlternativeNode {
	alt := &AlternativeNode{
		Pos: p.peekPos(),
	}
	for {
		elem := p.parseElement()
		if elem == nil {
			break
		}
		alt.Elements = append(alt.Elements, elem)
	}
	for p.consume(tokenKindDirectiveMarker) {
		alt.Directives = append(alt.Directives, p.parseDirectiveBody(p.lastTok.pos))
	}
	if len(alt.Directives) > 0 {
		if elem := p.parseElement(); elem != nil {
			raiseSyntaxError(elem.Pos.Row, synErrElemAfterDirective)
		}
	}
	return alt
}

func (p *parser) parseElement() *ElementNode {
	var elem *ElementNode
	switch {
	case p.consume(tokenKindID):
		elem = &ElementNode{
			ID:  p.lastTok.text,
			Pos: p.lastTok.pos,
		}
	case p.consume(tokenKindTerminalPattern):
		elem = &ElementNode{
			Pattern: p.lastTok.text,
			Pos:     p.lastTok.pos,
		}
	case p.consume(tokenKindStringLiteral):
		elem = &ElementNode{
			Pattern:   p.lastTok.text,
			Literally: true,
			Pos:       p.lastTok.pos,
		}
	default:
		if p.consume(tokenKindLabelMarker) {
			raiseSyntaxError(p.lastTok.pos.Row, synErrLabelWithNoSymbol)
		}
		return nil
	}
	if p.consume(tokenKindLabelMarker) {
		if !p.consume(tokenKindID) {
			raiseSyntaxError(p.row(), synErrNoLabel)
		}
		elem.Label = &LabelNode{
			Name: p.lastTok.text,
			Pos:  p.lastTok.pos,
		}
		if p.consume(tokenKindLabelMarker) {
			raiseSyntaxError(p.lastTok.pos.Row, synErrLabelWithNoSymbol)
		}
	}
	return elem
}

// parseDirectiveBody parses a directive name and its parameters. The directive
// marker # has already been consumed.
func (p *parser) parseDirectiveBody(pos Position) *DirectiveNode {
	if !p.consume(tokenKindID) {
		raiseSyntaxError(p.row(), synErrNoDirectiveName)
	}
	name := p.lastTok.text

	var params []*ParameterNode
	for {
		param := p.parseParameter()
		if param == nil {
			break
		}
		params = append(params, param)
	}

	return &DirectiveNode{
		Name:       name,
		Parameters: params,
		Pos:        pos,
	}
}

func (p *parser) parseParameter() *ParameterNode {
	switch {
	case p.consume(tokenKindID):
		return &ParameterNode{
			ID:  p.lastTok.text,
			Pos: p.lastTok.pos,
		}
	case p.consume(tokenKindStringLiteral):
		return &ParameterNode{
			String: p.lastTok.text,
			Pos:    p.lastTok.pos,
		}
	case p.consume(tokenKindOrderedSymbolMarker):
		pos := p.lastTok.pos
		if !p.consume(tokenKindID) {
			raiseSyntaxError(p.row(), synErrNoOrderedSymbolName)
		}
		return &ParameterNode{
			OrderedSymbol: p.lastTok.text,
			Pos:           pos,
		}
	case p.consume(tokenKindLParen):
		pos := p.lastTok.pos
		var g []*DirectiveNode
		for p.consume(tokenKindDirectiveMarker) {
			g = append(g, p.parseDirectiveBody(p.lastTok.pos))
		}
		if !p.consume(tokenKindRParen) {
			raiseSyntaxError(p.row(), synErrUnclosedDirGroup)
		}
		return &ParameterNode{
			Group: g,
			Pos:   pos,
		}
	}
	return nil
}

func (p *parser) peekPos() Position {
	tok := p.peek()
	return tok.pos
}

// row returns the row of the token the parser is looking at.
func (p *parser) row() int {
	tok := p.peek()
	if tok.kind == tokenKindEOF {
		return p.lex.row
	}
	return tok.pos.Row
}

func (p *parser) peek() *token {
	if p.peekedTok == nil {
		p.peekedTok = p.fetch()
	}
	return p.peekedTok
}

func (p *parser) fetch() *token {
	tok, err := p.lex.next()
	if err != nil {
		panic(err)
	}
	if tok.kind == tokenKindInvalid {
		raiseSyntaxErrorWithDetail(tok.pos.Row, synErrInvalidToken, tok.text)
	}
	return tok
}

func (p *parser) consume(expected tokenKind) bool {
	tok := p.peek()
	if tok.kind == expected {
		p.peekedTok = nil
		p.lastTok = tok
		return true
	}
	return false
}
