// Package session keeps one incrementally rebuilt program over the files
// the service has been asked about.
//
// A Session is driven by a Host that answers the questions a language
// service asks: which files are roots, what version each file is at, and
// what its content is. Rebuilds reuse every parsed file whose version token
// and content hash are unchanged.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jward/tsuparser/internal/checker"
	"github.com/jward/tsuparser/internal/logger"
	"github.com/jward/tsuparser/internal/snapshot"
	"github.com/jward/tsuparser/internal/tsconfig"
)

var (
	// ErrProgramUnavailable means the program could not be built.
	ErrProgramUnavailable = errors.New("failed to get program")

	// ErrSourceFileMissing means the requested path is not part of the
	// program.
	ErrSourceFileMissing = errors.New("failed to get source file")

	// ErrEmitSkipped means the options or file kind produced no output.
	ErrEmitSkipped = errors.New("emit skipped")

	// ErrUnexpectedOutputCount means emit produced other than one file.
	ErrUnexpectedOutputCount = errors.New("unexpected number of output files")
)

// Host supplies files and settings to the session.
type Host interface {
	// ScriptFileNames lists the root files of the program.
	ScriptFileNames() []string
	// ScriptVersion returns the opaque version token of path.
	ScriptVersion(path string) string
	// ScriptSnapshot returns the content of path, or nil when it cannot be
	// read.
	ScriptSnapshot(path string) (*snapshot.Snapshot, error)
	CurrentDirectory() string
	CompilationSettings() *tsconfig.CompilerOptions
	DefaultLibFileName() string
	FileExists(path string) bool
	ReadFile(path string) ([]byte, error)
	// ReadDirectory lists the names of the subdirectories of dir.
	ReadDirectory(dir string) ([]string, error)
}

// Engine builds programs. The previous program is passed so unchanged files
// can be reused.
type Engine interface {
	Build(ctx context.Context, host checker.CompilerHost, old *checker.Program) (*checker.Program, error)
}

// CheckerEngine builds programs with the tree-sitter checker.
type CheckerEngine struct{}

// Build implements Engine.
func (CheckerEngine) Build(ctx context.Context, host checker.CompilerHost, old *checker.Program) (*checker.Program, error) {
	return checker.NewProgram(ctx, host, old)
}

// Output is the single file produced by Emit.
type Output struct {
	Name string
	Text string
}

// Session owns the current program. It is not safe for concurrent use.
type Session struct {
	host    Host
	engine  Engine
	log     logger.Logger
	program *checker.Program
	// fingerprint identifies the roots and versions the program was built
	// from.
	fingerprint string
	builds      int
}

// Option configures a Session.
type Option func(*Session)

// WithEngine replaces the checker engine.
func WithEngine(e Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithLogger sets the logger used for rebuild messages.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New creates a session over host. No program is built until one is asked
// for.
func New(host Host, opts ...Option) *Session {
	s := &Session{
		host:   host,
		engine: CheckerEngine{},
		log:    logger.NewSilent(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentProgram returns the program for the host's current roots and
// versions, rebuilding it when either changed.
func (s *Session) CurrentProgram(ctx context.Context) (*checker.Program, error) {
	fp := s.currentFingerprint()
	if s.program != nil && fp == s.fingerprint {
		return s.program, nil
	}
	p, err := s.engine.Build(ctx, &compilerHost{host: s.host}, s.program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramUnavailable, err)
	}
	if p == nil {
		return nil, ErrProgramUnavailable
	}
	s.program = p
	// Building reads snapshots, which may bump versions.
	s.fingerprint = s.currentFingerprint()
	s.builds++
	stats := p.Stats()
	s.log.Debug("program rebuilt",
		logger.F("files", len(p.Files())),
		logger.F("parsed", stats.Parsed),
		logger.F("reused", stats.Reused))
	return p, nil
}

func (s *Session) currentFingerprint() string {
	var sb strings.Builder
	roots := s.host.ScriptFileNames()
	for _, r := range roots {
		sb.WriteString(r)
		sb.WriteByte('@')
		sb.WriteString(s.host.ScriptVersion(r))
		sb.WriteByte(';')
	}
	sb.WriteByte('|')
	if s.program != nil {
		for _, f := range s.program.Files() {
			sb.WriteString(f.Path)
			sb.WriteByte('@')
			sb.WriteString(s.host.ScriptVersion(f.Path))
			sb.WriteByte(';')
		}
	}
	return sb.String()
}

// SourceFile returns path's syntax tree in the current program.
func (s *Session) SourceFile(ctx context.Context, path string) (*checker.SourceFile, error) {
	p, err := s.CurrentProgram(ctx)
	if err != nil {
		return nil, err
	}
	f := p.SourceFile(path)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceFileMissing, path)
	}
	return f, nil
}

// PreEmitDiagnostics returns the option, syntactic and semantic diagnostics
// for f.
func (s *Session) PreEmitDiagnostics(p *checker.Program, f *checker.SourceFile) []checker.Diagnostic {
	return p.PreEmitDiagnostics(f)
}

// Emit transpiles path. The session is configured for one output per input,
// so any other count is an error.
func (s *Session) Emit(ctx context.Context, path string) (*Output, error) {
	p, err := s.CurrentProgram(ctx)
	if err != nil {
		return nil, err
	}
	f := p.SourceFile(path)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceFileMissing, path)
	}
	res, err := p.Emit(f)
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		return nil, ErrEmitSkipped
	}
	if n := len(res.Files); n != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedOutputCount, n)
	}
	return &Output{Name: res.Files[0].Name, Text: res.Files[0].Text}, nil
}

// Stats reports the parse counters of the last build and how many builds
// ran.
func (s *Session) Stats() Stats {
	st := Stats{Builds: s.builds}
	if s.program != nil {
		ps := s.program.Stats()
		st.Parsed = ps.Parsed
		st.Reused = ps.Reused
	}
	return st
}

// Stats counts session work.
type Stats struct {
	Builds int
	Parsed int
	Reused int
}

// compilerHost adapts a Host to the checker, serving the embedded default
// library itself.
type compilerHost struct {
	host Host
}

func (h *compilerHost) RootFileNames() []string { return h.host.ScriptFileNames() }

func (h *compilerHost) ScriptVersion(path string) string {
	if path == checker.DefaultLibPath {
		return "0"
	}
	return h.host.ScriptVersion(path)
}

func (h *compilerHost) ScriptSource(path string) ([]byte, error) {
	if path == checker.DefaultLibPath {
		return checker.DefaultLib(), nil
	}
	snap, err := h.host.ScriptSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return snap.Text(), nil
}

func (h *compilerHost) FileExists(path string) bool {
	return path == checker.DefaultLibPath || h.host.FileExists(path)
}

func (h *compilerHost) ReadFile(path string) ([]byte, error) { return h.host.ReadFile(path) }

func (h *compilerHost) ReadDirectory(dir string) ([]string, error) { return h.host.ReadDirectory(dir) }

func (h *compilerHost) CurrentDirectory() string { return h.host.CurrentDirectory() }

func (h *compilerHost) Options() *tsconfig.CompilerOptions { return h.host.CompilationSettings() }

func (h *compilerHost) DefaultLibFileName() string { return h.host.DefaultLibFileName() }
