package checker

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/zeebo/xxh3"

	"github.com/jward/tsuparser/internal/diagnostic"
)

var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func grammarFor(path string) *sitter.Language {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".jsx":
		return grammars["tsx"]
	}
	return grammars["typescript"]
}

// nodeKey identifies a node within one tree independently of the wrapper
// pointer tree-sitter hands out.
type nodeKey struct {
	start, end uint32
	kind       string
}

func keyOf(n *sitter.Node) nodeKey {
	return nodeKey{start: n.StartByte(), end: n.EndByte(), kind: n.Type()}
}

// SourceFile is a parsed and bound file. It is immutable once built and may
// be shared by successive programs while its version is unchanged.
type SourceFile struct {
	Path    string
	Text    []byte
	Hash    uint64
	Version string
	// IsDeclaration is set for .d.ts files.
	IsDeclaration bool

	tree  *sitter.Tree
	root  *sitter.Node
	lines *diagnostic.LineMap

	// isModule is set when the file has a top-level import or export.
	isModule bool
	locals   *SymbolTable
	exports  *SymbolTable
	// globals holds contributions to the global scope: every top-level
	// declaration of a script file, plus "declare global" blocks.
	globals *SymbolTable
	// ambientModules are "declare module 'x'" blocks.
	ambientModules map[string]*Symbol
	exportStars    []string
	// specifiers lists every module specifier the file imports from.
	specifiers     []string
	referencePaths []string
	referenceTypes []string

	scopeMu sync.Mutex
	scopes  map[nodeKey]*SymbolTable
	declSym map[nodeKey]*Symbol
}

// parseSourceFile parses and binds text.
func parseSourceFile(ctx context.Context, path string, text []byte, version string) (*SourceFile, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(grammarFor(path))
	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f := &SourceFile{
		Path:          path,
		Text:          text,
		Hash:          xxh3.Hash(text),
		Version:       version,
		IsDeclaration: strings.HasSuffix(path, ".d.ts"),
		tree:          tree,
		root:          tree.RootNode(),
		lines:         diagnostic.NewLineMap(text),
		scopes:        make(map[nodeKey]*SymbolTable),
		declSym:       make(map[nodeKey]*Symbol),
	}
	bindFile(f)
	return f, nil
}

// Root returns the root syntax node.
func (f *SourceFile) Root() *sitter.Node { return f.root }

// Language is the grammar f was parsed with.
func (f *SourceFile) Language() *sitter.Language { return grammarFor(f.Path) }

// NodeText returns the source text of n.
func (f *SourceFile) NodeText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.Text)
}

// Position returns the 0-based line and character of byte offset.
func (f *SourceFile) Position(offset int) (line, character int) {
	return f.lines.Position(offset)
}

// DiagnosticAt builds an error diagnostic at the start of n.
func (f *SourceFile) DiagnosticAt(n *sitter.Node, code int, format string, args ...any) diagnostic.Diagnostic {
	return f.lines.At(f.Path, int(n.StartByte()), code, format, args...)
}

// IsModule reports whether the file is an ES module.
func (f *SourceFile) IsModule() bool { return f.isModule }

// Specifiers returns the module specifiers the file imports from.
func (f *SourceFile) Specifiers() []string { return f.specifiers }

// Exports returns the symbols the file exports directly.
func (f *SourceFile) Exports() *SymbolTable { return f.exports }

// Statements returns the top-level statements.
func (f *SourceFile) Statements() []*sitter.Node { return namedChildren(f.root) }

// StartWithComments returns the offset of n including an immediately
// preceding JSDoc comment.
func (f *SourceFile) StartWithComments(n *sitter.Node) int {
	start := int(n.StartByte())
	if prev := n.PrevSibling(); prev != nil && prev.Type() == "comment" {
		if strings.HasPrefix(f.NodeText(prev), "/**") && onlySpace(f.Text[prev.EndByte():start]) {
			return int(prev.StartByte())
		}
	}
	return start
}

func onlySpace(b []byte) bool {
	return strings.TrimSpace(string(b)) == ""
}

var referenceDirective = regexp.MustCompile(`^///\s*<reference\s+(path|types)\s*=\s*["']([^"']+)["']`)

func (f *SourceFile) collectReferences() {
	for _, n := range namedChildren(f.root) {
		if n.Type() != "comment" {
			break
		}
		m := referenceDirective.FindStringSubmatch(f.NodeText(n))
		if m == nil {
			continue
		}
		if m[1] == "path" {
			f.referencePaths = append(f.referencePaths, filepath.Join(filepath.Dir(f.Path), m[2]))
		} else {
			f.referenceTypes = append(f.referenceTypes, m[2])
		}
	}
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// hasToken reports whether n has a direct anonymous child of the given kind.
func hasToken(n *sitter.Node, kind string) bool {
	for _, c := range children(n) {
		if c.Type() == kind {
			return true
		}
	}
	return false
}

func childOfType(n *sitter.Node, kinds ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, k := range kinds {
			if c.Type() == k {
				return c
			}
		}
	}
	return nil
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return keyOf(a) == keyOf(b)
}

// stringValue strips the quotes from a string literal node.
func stringValue(f *SourceFile, n *sitter.Node) string {
	text := f.NodeText(n)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

// enumMember returns the name and initializer of an enum body entry.
func enumMember(m *sitter.Node) (name, value *sitter.Node) {
	if m.Type() != "enum_assignment" {
		return m, nil
	}
	name = m.ChildByFieldName("name")
	if name == nil && m.NamedChildCount() > 0 {
		name = m.NamedChild(0)
	}
	return name, m.ChildByFieldName("value")
}
