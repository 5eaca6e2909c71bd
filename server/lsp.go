package server

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/imagewriter"
	"github.com/chazu/pig/manifest"
)

const lspName = "pig-lsp"

// manifestKeys documents the keys of pig.toml by table.
var manifestKeys = map[string]map[string]string{
	"": {
		"project":    "Project metadata.",
		"machine":    "Target processor.",
		"program":    "One program of the corpus.",
		"image":      "Image output.",
		"compressor": "Instruction compressor.",
		"data":       "Data memory images.",
		"store":      "Image store.",
	},
	"project": {
		"name":    "Project name.",
		"version": "Project version.",
	},
	"machine": {
		"encoding": "Encoding description (TOML), or a CBOR snapshot ending in `.cbor`. Required.",
	},
	"program": {
		"name": "Program name. Defaults to the name in the program file.",
		"path": "Program file. Required.",
	},
	"image": {
		"format":         "Image format.",
		"maus-per-line":  "MAUs per image row. 0 writes one MAU per row.",
		"output":         "Output directory. Default `build`.",
		"entity":         "Prefix of generated VHDL names. Default `tta0`.",
		"imem-mau-width": "Instruction memory MAU width. 0 stores one instruction per MAU.",
	},
	"compressor": {
		"name":                   "Compressor name. Default `identity`.",
		"ensure-programmability": "Seed the dictionaries with every encodable move so any program can be loaded later.",
		"parameters":             "Compressor parameters.",
	},
	"data": {
		"mau-width":      "Data MAU width in bits. Default 8.",
		"maus-per-line":  "Data MAUs per image row. Default 1.",
		"address-spaces": "Address spaces to write images for. Default all.",
	},
	"store": {
		"path": "Image store database. Default `.pig/store.db`.",
	},
}

// LspServer offers diagnostics, completion and hover for pig.toml files.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new manifest language server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("pig LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"\"", "."},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return complete(text, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(tableAt(text, int(params.Position.Line)), word), nil
}

// complete offers the keys of the current table, or the allowed values of
// format and compressor name.
func complete(text string, pos protocol.Position) []protocol.CompletionItem {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))
	prefix := extractPrefix(text, pos)
	table := tableAt(text, int(pos.Line))

	var items []protocol.CompletionItem
	if key, _, isValue := strings.Cut(line[:col], "="); isValue {
		var values []string
		switch {
		case table == "image" && strings.TrimSpace(key) == "format":
			values = imagewriter.Formats()
		case table == "compressor" && strings.TrimSpace(key) == "name":
			for _, info := range compressor.Available() {
				values = append(values, info.Name)
			}
		}
		kind := protocol.CompletionItemKindEnumMember
		for _, v := range values {
			if strings.HasPrefix(v, prefix) {
				items = append(items, protocol.CompletionItem{Label: v, Kind: &kind})
			}
		}
		return items
	}

	keys := manifestKeys[table]
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	kind := protocol.CompletionItemKindProperty
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			detail := keys[name]
			items = append(items, protocol.CompletionItem{
				Label:  name,
				Kind:   &kind,
				Detail: &detail,
			})
		}
	}
	return items
}

// hover documents a key of the table, a compressor or an image format.
func hover(table, word string) *protocol.Hover {
	var value string
	if doc, ok := manifestKeys[table][word]; ok {
		value = fmt.Sprintf("**%s**\n\n%s", word, doc)
	} else if doc, ok := manifestKeys[""][word]; ok {
		value = fmt.Sprintf("**[%s]**\n\n%s", word, doc)
	} else {
		for _, info := range compressor.Available() {
			if info.Name == word {
				value = fmt.Sprintf("**%s** compressor\n\n%s", info.Name, info.Description)
			}
		}
		for _, f := range imagewriter.Formats() {
			if f == word {
				value = fmt.Sprintf("**%s** image format", f)
			}
		}
	}
	if value == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnose(uriPath(uri), text),
	})
}

// diagnose validates a manifest and reports each problem on the line of the
// offending key.
func diagnose(path, text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	err := manifest.Validate([]byte(text), path)
	if err == nil {
		return diagnostics
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	add := func(line int, msg string) {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
				End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(lineLength(text, line))},
			},
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}

	var se *manifest.SchemaError
	var pe toml.ParseError
	switch {
	case errors.As(err, &se):
		for _, p := range se.Problems {
			msg := p.Message
			if len(p.Path) > 0 {
				msg = strings.Join(p.Path, ".") + ": " + msg
			}
			add(keyLine(text, p.Path), msg)
		}
	case errors.As(err, &pe):
		add(max(0, pe.Position.Line-1), pe.Message)
	default:
		add(0, err.Error())
	}
	return diagnostics
}

func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Path == "" {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}

// --- Text extraction helpers ---

// tableAt returns the name of the TOML table the line belongs to, with
// array-of-tables brackets stripped.
func tableAt(text string, line int) string {
	lines := strings.Split(text, "\n")
	for i := min(line, len(lines)-1); i >= 0; i-- {
		if name, ok := tableHeader(lines[i]); ok {
			return name
		}
	}
	return ""
}

func tableHeader(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return "", false
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(line[:end]), "[ "), true
}

// keyLine finds the line defining a key path. It falls back to the table
// header, then to the first line.
func keyLine(text string, path []string) int {
	if len(path) == 0 {
		return 0
	}
	lines := strings.Split(text, "\n")
	table := strings.Join(path[:len(path)-1], ".")
	key := path[len(path)-1]
	current := ""
	tableLine := -1
	for i, line := range lines {
		if name, ok := tableHeader(line); ok {
			current = name
			if name == table && tableLine < 0 {
				tableLine = i
			}
			if len(path) == 1 && name == key {
				return i
			}
			continue
		}
		if current != table {
			continue
		}
		k, _, ok := strings.Cut(line, "=")
		if ok && strings.Trim(strings.TrimSpace(k), `"`) == key {
			return i
		}
	}
	return max(0, tableLine)
}

func lineLength(text string, line int) int {
	lines := strings.Split(text, "\n")
	if line >= len(lines) {
		return 0
	}
	return len(lines[line])
}

func isKeyChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '-'
}

// extractPrefix returns the key fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isKeyChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full key or value under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isKeyChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isKeyChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
