// Package lsp implements the editor-facing half of the domain-stack
// expansion: running compiler.Compile over a document on every
// open/change and publishing its diagnostics. A document with no
// source errors goes through the whole pipeline, optimizer and code
// generator included; the generated assembly is discarded.
//
// Grounded on kanso/internal/lsp/handler.go's Handler struct and
// didOpen/didChange wiring, generalized from Kanso's AST-cache-plus-
// semantic-tokens handler down to this language's narrower scope:
// diagnostics only, no completion or semantic tokens (the surface
// grammar has no identifiers worth highlighting beyond what any editor
// already colors via syntax rules).
package lsp

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"lcc/internal/compiler"
	"lcc/internal/diag"
)

// Handler implements the glsp protocol methods this server supports.
type Handler struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewHandler creates a Handler with no open documents.
func NewHandler() *Handler {
	return &Handler{content: make(map[string]string)}
}

// Initialize advertises the server's (narrow) capabilities: full-text
// sync on open/change/close, nothing else.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	return nil
}

func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	h.publish(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

// TextDocumentDidChange re-reads the document from disk rather than
// reassembling it from incremental ContentChanges: full-document sync
// (advertised in Initialize) always re-sends the whole buffer, and the
// client is expected to have saved by the time it asks for
// diagnostics -- the same disk-truth assumption updateAST makes in the
// teacher's handler.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	path, err := uriToPath(string(params.TextDocument.URI))
	if err != nil {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	h.publish(ctx, params.TextDocument.URI, string(content))
	return nil
}

func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(string(params.TextDocument.URI))
	if err != nil {
		return nil
	}
	h.mu.Lock()
	delete(h.content, path)
	h.mu.Unlock()
	return nil
}

// publish runs compiler.Compile over text and sends a fresh, complete
// diagnostics set for uri (an empty set clears previously published
// diagnostics, per the LSP publishDiagnostics contract).
func (h *Handler) publish(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	path, err := uriToPath(string(uri))
	if err != nil {
		path = string(uri)
	}

	h.mu.Lock()
	h.content[path] = text
	h.mu.Unlock()

	result := compiler.Compile(path, text)
	diagnostics := toLSPDiagnostics(result.Reporter, text)

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// toLSPDiagnostics translates the <line, code> wire form into LSP
// ranges: the whole of the offending line, since diag.Diagnostic
// carries no column.
func toLSPDiagnostics(rep *diag.Reporter, text string) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	severity := protocol.DiagnosticSeverityError

	var out []protocol.Diagnostic
	for _, d := range rep.Diagnostics() {
		lineIdx := d.Line - 1
		endChar := uint32(0)
		if lineIdx >= 0 && lineIdx < len(lines) {
			endChar = uint32(len(lines[lineIdx]))
		}
		if lineIdx < 0 {
			lineIdx = 0
		}
		msg := d.Message
		if msg == "" {
			msg = diag.Describe(d.Code)
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: uint32(lineIdx), Character: 0},
				End:   protocol.Position{Line: uint32(lineIdx), Character: endChar},
			},
			Severity: &severity,
			Source:   strPtr("lcc"),
			Message:  msg,
		})
	}
	return out
}

func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", err
	}
	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func ptrBool(b bool) *bool                                           { return &b }
func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }
func strPtr(s string) *string                                        { return &s }
