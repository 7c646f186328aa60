// Package lsp implements a language server for any compiled grammar. It keeps one
// syntax tree per open document, reparses it incrementally on every change and
// publishes error nodes as diagnostics.
package lsp

import (
	"context"
	"fmt"
	"sync"

	"github.com/nihei9/sapling/driver/parser"
	"github.com/nihei9/sapling/language"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
)

const lsName = "sapling"

var version = "0.1.0"

type Server struct {
	lang    *language.Language
	opts    []parser.ParserOption
	handler protocol.Handler
	log     commonlog.Logger

	mu   sync.Mutex
	docs map[protocol.DocumentUri]*document
}

// NewServer returns a server parsing documents with lang. opts are passed to the
// parser of every reparse.
func NewServer(lang *language.Language, opts ...parser.ParserOption) *Server {
	s := &Server{
		lang: lang,
		opts: opts,
		log:  commonlog.GetLogger("sapling.lsp"),
		docs: map[protocol.DocumentUri]*document{},
	}
	s.handler = protocol.Handler{
		Initialize:            s.initialize,
		Initialized:           s.initialized,
		Shutdown:              s.shutdown,
		SetTrace:              s.setTrace,
		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,
	}
	return s
}

// RunStdio serves requests on the standard input and output until the client exits.
func (s *Server) RunStdio() error {
	return server.NewServer(&s.handler, lsName, false).RunStdio()
}

func (s *Server) initialize(context *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

func (s *Server) initialized(context *glsp.Context, params *protocol.InitializedParams) error {
	s.log.Infof("initialized: %v", s.lang.Name())
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	s.log.Infof("shutting down")
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) textDocumentDidOpen(context *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.log.Debugf("didOpen: %v", params.TextDocument.URI)
	d, err := s.open(params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)
	if err != nil {
		return err
	}
	publishDiagnostics(context, d)
	return nil
}

func (s *Server) textDocumentDidChange(context *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.log.Debugf("didChange: %v (version %v, %v changes)", params.TextDocument.URI, params.TextDocument.Version, len(params.ContentChanges))
	d, err := s.change(params.TextDocument.URI, params.TextDocument.Version, params.ContentChanges)
	if err != nil {
		return err
	}
	publishDiagnostics(context, d)
	return nil
}

func (s *Server) textDocumentDidClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.log.Debugf("didClose: %v", params.TextDocument.URI)
	s.close(params.TextDocument.URI)
	// Clear the diagnostics of the closed document.
	context.Notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *Server) open(uri protocol.DocumentUri, version protocol.Integer, text string) (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := newDocument(uri, version, text)
	if err := s.parse(d, nil); err != nil {
		return nil, err
	}
	s.docs[uri] = d
	return d, nil
}

func (s *Server) change(uri protocol.DocumentUri, version protocol.Integer, changes []any) (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[uri]
	if !ok {
		return nil, fmt.Errorf("document is not open: %v", uri)
	}
	var edits []parser.Edit
	for _, c := range changes {
		e, err := d.applyChange(c)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	d.version = version

	var old *parser.Tree
	if d.tree != nil {
		old = d.tree.Edit(edits...)
	}
	if err := s.parse(d, old); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Server) close(uri protocol.DocumentUri) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, uri)
}

func (s *Server) parse(d *document, old *parser.Tree) error {
	p, err := parser.NewParser(s.lang, s.opts...)
	if err != nil {
		return err
	}
	tree, err := p.Parse(context.Background(), d.in, old)
	if err != nil {
		return fmt.Errorf("failed to parse %v: %w", d.uri, err)
	}
	if tree.Partial() {
		s.log.Warningf("the parse of %v was stopped before the end", d.uri)
	}
	d.tree = tree
	return nil
}

func publishDiagnostics(context *glsp.Context, d *document) {
	context.Notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         d.uri,
		Diagnostics: diagnostics(d),
	})
}

// diagnostics reports the outermost error nodes of a document's tree.
func diagnostics(d *document) []protocol.Diagnostic {
	ds := []protocol.Diagnostic{}
	if d.tree == nil {
		return ds
	}
	severity := protocol.DiagnosticSeverityError
	source := lsName
	d.tree.Walk(func(n *parser.Node, depth int) bool {
		if !n.IsError() {
			return n.HasError()
		}
		ds = append(ds, protocol.Diagnostic{
			Range: protocol.Range{
				Start: offsetToPosition(d.in, n.StartByte()),
				End:   offsetToPosition(d.in, n.EndByte()),
			},
			Severity: &severity,
			Source:   &source,
			Message:  errorMessage(n, d.in),
		})
		return false
	})
	return ds
}

const maxQuotedLen = 32

func errorMessage(n *parser.Node, in parser.Input) string {
	text := n.Text(in)
	switch {
	case text == "":
		return "syntax error: unexpected end of input"
	case len(text) > maxQuotedLen:
		return "syntax error"
	default:
		return fmt.Sprintf("syntax error: unexpected %q", text)
	}
}
