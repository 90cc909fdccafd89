// Package checker is a declaration-level TypeScript checker built on
// tree-sitter. It parses and binds files, resolves modules, computes types
// of declarations and expressions, reports the diagnostics the analysis
// service relies on, and emits type-stripped JavaScript.
//
// A Program is an immutable snapshot of a set of files. NewProgram reuses
// parsed files from a previous program when their version and content hash
// are unchanged, so rebuilding after a single edit only re-parses that file.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/jward/tsuparser/internal/diagnostic"
	"github.com/jward/tsuparser/internal/tsconfig"
)

// Diagnostic is re-exported for callers that only import the checker.
type Diagnostic = diagnostic.Diagnostic

// CompilerHost supplies files and settings to NewProgram.
type CompilerHost interface {
	// RootFileNames lists the files the program must contain.
	RootFileNames() []string
	// ScriptVersion returns the opaque version token of path.
	ScriptVersion(path string) string
	// ScriptSource returns the content of path. A missing file reports an
	// error matching fs.ErrNotExist.
	ScriptSource(path string) ([]byte, error)
	FileExists(path string) bool
	ReadFile(path string) ([]byte, error)
	// ReadDirectory lists the names of the subdirectories of dir.
	ReadDirectory(dir string) ([]string, error)
	CurrentDirectory() string
	Options() *tsconfig.CompilerOptions
	DefaultLibFileName() string
}

// Stats counts the work done building a program.
type Stats struct {
	Parsed int
	Reused int
}

// Program is a set of parsed files plus the merged global scope.
type Program struct {
	options *tsconfig.CompilerOptions
	cwd     string
	libPath string
	roots   []string

	files    []*SourceFile
	byPath   map[string]*SourceFile
	resolved map[string]map[string]string

	globals *SymbolTable
	ambient *SymbolTable

	stats   Stats
	checker *Checker
}

// NewProgram builds a program from host, reusing unchanged files of old.
func NewProgram(ctx context.Context, host CompilerHost, old *Program) (*Program, error) {
	opts := host.Options()
	if opts == nil {
		opts = &tsconfig.CompilerOptions{}
	}
	p := &Program{
		options:  opts,
		cwd:      host.CurrentDirectory(),
		libPath:  host.DefaultLibFileName(),
		roots:    append([]string(nil), host.RootFileNames()...),
		byPath:   make(map[string]*SourceFile),
		resolved: make(map[string]map[string]string),
	}
	b := &programBuilder{
		ctx:     ctx,
		host:    host,
		program: p,
		old:     old,
		seen:    make(map[string]bool),
	}

	if !opts.NoLib && p.libPath != "" {
		if _, err := b.addFile(p.libPath); err != nil {
			return nil, err
		}
	}
	for _, root := range p.roots {
		if _, err := b.addFile(root); err != nil {
			return nil, err
		}
	}
	for _, path := range b.automaticTypes() {
		if _, err := b.addFile(path); err != nil {
			return nil, err
		}
	}

	// Files discovered while processing are appended, so this loop also
	// walks them.
	for i := 0; i < len(p.files); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.processFile(p.files[i]); err != nil {
			return nil, err
		}
	}

	m := newMerger()
	p.globals = NewSymbolTable()
	p.ambient = NewSymbolTable()
	for _, f := range p.files {
		m.mergeInto(p.globals, f.globals)
		specs := make([]string, 0, len(f.ambientModules))
		for spec := range f.ambientModules {
			specs = append(specs, spec)
		}
		sort.Strings(specs)
		t := NewSymbolTable()
		for _, spec := range specs {
			t.set(spec, f.ambientModules[spec])
		}
		m.mergeInto(p.ambient, t)
	}
	return p, nil
}

type programBuilder struct {
	ctx     context.Context
	host    CompilerHost
	program *Program
	old     *Program
	seen    map[string]bool
}

// addFile loads path into the program. It returns nil without error when
// the file does not exist.
func (b *programBuilder) addFile(path string) (*SourceFile, error) {
	p := b.program
	if f, ok := p.byPath[path]; ok {
		return f, nil
	}
	if b.seen[path] {
		return nil, nil
	}
	b.seen[path] = true

	text, err := b.host.ScriptSource(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	version := b.host.ScriptVersion(path)

	var f *SourceFile
	if b.old != nil {
		if prev := b.old.byPath[path]; prev != nil && prev.Version == version && prev.Hash == xxh3.Hash(text) {
			f = prev
			p.stats.Reused++
		}
	}
	if f == nil {
		f, err = parseSourceFile(b.ctx, path, text, version)
		if err != nil {
			return nil, err
		}
		p.stats.Parsed++
	}
	p.files = append(p.files, f)
	p.byPath[path] = f
	return f, nil
}

func (b *programBuilder) processFile(f *SourceFile) error {
	for _, ref := range f.referencePaths {
		if _, err := b.addFile(ref); err != nil {
			return err
		}
	}
	for _, name := range f.referenceTypes {
		if path := b.resolveTypeReference(name, f.Path); path != "" {
			if _, err := b.addFile(path); err != nil {
				return err
			}
		}
	}
	table := make(map[string]string, len(f.specifiers))
	for _, spec := range f.specifiers {
		if _, ok := table[spec]; ok {
			continue
		}
		path := b.resolveModule(spec, f.Path)
		if path != "" {
			target, err := b.addFile(path)
			if err != nil {
				return err
			}
			if target == nil {
				path = ""
			}
		}
		table[spec] = path
	}
	b.program.resolved[f.Path] = table
	return nil
}

// Options returns the compiler options the program was built with.
func (p *Program) Options() *tsconfig.CompilerOptions { return p.options }

// RootFileNames returns the requested root files.
func (p *Program) RootFileNames() []string { return p.roots }

// Files returns every file in load order.
func (p *Program) Files() []*SourceFile { return p.files }

// SourceFile returns the file at path, or nil.
func (p *Program) SourceFile(path string) *SourceFile { return p.byPath[path] }

// Stats reports how many files were parsed and reused.
func (p *Program) Stats() Stats { return p.stats }

// Checker returns the program's type checker, creating it on first use.
func (p *Program) Checker() *Checker {
	if p.checker == nil {
		p.checker = newChecker(p)
	}
	return p.checker
}

// ResolvedModule returns the file a specifier in from resolved to.
func (p *Program) ResolvedModule(from, spec string) string {
	return p.resolved[from][spec]
}

// IsLibFile reports whether f is the default library.
func (p *Program) IsLibFile(f *SourceFile) bool { return f.Path == p.libPath }
