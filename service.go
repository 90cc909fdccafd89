package tsuparser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/checker"
	"github.com/jward/tsuparser/internal/diagnostic"
	"github.com/jward/tsuparser/internal/logger"
	"github.com/jward/tsuparser/internal/runtime"
	"github.com/jward/tsuparser/internal/session"
	"github.com/jward/tsuparser/internal/snapshot"
	"github.com/jward/tsuparser/internal/store"
	"github.com/jward/tsuparser/internal/tsconfig"
)

// Service analyses TypeScript files of one project. It owns the version
// store, the incremental session and the response cache; all of them are
// touched from a single control flow only.
type Service struct {
	config   *tsconfig.Config
	versions *snapshot.Store
	session  *session.Session
	store    *store.Store
	rules    *runtime.Runtime
	log      logger.Logger

	hostBase    string
	rulesScript string
	dbPath      string
	immutable   []string
	fsys        snapshot.FS
	engine      session.Engine
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithHostBaseType sets the name of the host object root type that
// dependency discovery looks for. Defaults to DefaultHostBaseType.
func WithHostBaseType(name string) Option {
	return func(s *Service) {
		s.hostBase = name
	}
}

// WithImmutablePatterns sets the doublestar patterns of files whose
// snapshots are cached for the life of the process.
func WithImmutablePatterns(patterns ...string) Option {
	return func(s *Service) {
		s.immutable = patterns
	}
}

// WithRulesScript runs the Risor script at path against every analysed
// file. Each message it reports becomes an error and fails the file.
func WithRulesScript(path string) Option {
	return func(s *Service) {
		s.rulesScript = path
	}
}

// WithDatabase backs the response cache with the SQLite file at path
// instead of an in-memory database. The cache is still emptied on open.
func WithDatabase(path string) Option {
	return func(s *Service) {
		s.dbPath = path
	}
}

// WithFS reads project files through fsys.
func WithFS(fsys snapshot.FS) Option {
	return func(s *Service) {
		s.fsys = fsys
	}
}

// WithEngine replaces the checker engine used by the session.
func WithEngine(e session.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// New loads the project configuration found from projectDir and prepares
// an empty service. Configuration problems are returned before anything
// else is set up.
func New(projectDir string, opts ...Option) (*Service, error) {
	s := &Service{
		log:       logger.NewSilent(),
		hostBase:  DefaultHostBaseType,
		dbPath:    store.InMemory,
		immutable: snapshot.DefaultImmutablePatterns,
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := tsconfig.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("tsuparser: %w", err)
	}
	s.config = cfg

	snapOpts := []snapshot.Option{snapshot.WithImmutablePatterns(s.immutable...)}
	if s.fsys != nil {
		snapOpts = append(snapOpts, snapshot.WithFS(s.fsys))
	}
	s.versions = snapshot.NewStore(snapOpts...)

	sessOpts := []session.Option{session.WithLogger(s.log)}
	if s.engine != nil {
		sessOpts = append(sessOpts, session.WithEngine(s.engine))
	}
	s.session = session.New(session.NewStoreHost(s.versions, cfg), sessOpts...)

	st, err := store.NewStore(s.dbPath)
	if err != nil {
		return nil, fmt.Errorf("tsuparser: create store: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("tsuparser: migrate: %w", err)
	}
	if err := st.Reset(); err != nil {
		st.Close()
		return nil, fmt.Errorf("tsuparser: reset store: %w", err)
	}
	s.store = st

	if s.rulesScript != "" {
		if s.rulesScript, err = filepath.Abs(s.rulesScript); err != nil {
			st.Close()
			return nil, fmt.Errorf("tsuparser: rules script: %w", err)
		}
		s.rules = runtime.NewRuntime(filepath.Dir(s.rulesScript), runtime.WithLogger(s.log))
	}

	s.log.Debug("service ready",
		logger.F("config", cfg.Path),
		logger.F("hostBase", s.hostBase))
	return s, nil
}

// Close releases the response store.
func (s *Service) Close() error {
	return s.store.Close()
}

// Config returns the project configuration.
func (s *Service) Config() *tsconfig.Config { return s.config }

// Store returns the response store.
func (s *Service) Store() *store.Store { return s.store }

// Session returns the incremental analysis session.
func (s *Service) Session() *session.Session { return s.session }

// ResolvePath makes a requested path absolute against the project
// directory.
func (s *Service) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.config.Dir, path)
}

// Respond returns the serialized result for path. A path answered before
// is served from the cache without analysing it again, even if it failed.
func (s *Service) Respond(ctx context.Context, path string) (payload string, cached bool, err error) {
	path = s.ResolvePath(path)
	log := s.log.WithFields(logger.F("request", uuid.NewString()), logger.F("path", path))

	hit, err := s.store.Response(path)
	if err != nil {
		return "", false, fmt.Errorf("tsuparser: %w", err)
	}
	if hit != nil {
		log.Debug("cache hit", logger.F("failure", hit.IsFailure))
		return hit.Payload, true, nil
	}

	res, err := s.analyze(ctx, log, path)
	if err != nil {
		return "", false, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "", false, fmt.Errorf("tsuparser: encode result: %w", err)
	}
	if err := s.store.PutResponse(&store.Response{
		Path:      path,
		Payload:   string(data),
		IsFailure: res.Failed(),
	}); err != nil {
		return "", false, fmt.Errorf("tsuparser: %w", err)
	}
	return string(data), false, nil
}

// Analyze runs the full pipeline over path without consulting the cache.
func (s *Service) Analyze(ctx context.Context, path string) (*Result, error) {
	path = s.ResolvePath(path)
	return s.analyze(ctx, s.log.WithFields(logger.F("path", path)), path)
}

func (s *Service) analyze(ctx context.Context, log logger.Logger, path string) (*Result, error) {
	start := time.Now()
	modTime, err := s.versions.MarkAnalyzed(path)
	if err != nil {
		return nil, err
	}

	program, err := s.session.CurrentProgram(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.session.SourceFile(ctx, path)
	if err != nil {
		return nil, err
	}

	if diags := s.session.PreEmitDiagnostics(program, f); len(diags) > 0 {
		res := Failure(diagnostic.Strings(diags))
		s.record(log, f, start, res)
		return res, nil
	}

	out, err := s.session.Emit(ctx, path)
	if err != nil {
		return nil, err
	}
	s.versions.Settle(path, modTime)

	c := program.Checker()
	exports, errs := extractExports(c, f)
	deps := findDependencies(c, f, s.hostBase)

	fileName := filepath.Base(path)
	res := &Result{
		FileName:     fileName,
		Name:         strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		Path:         path,
		Source:       out.Text,
		Errors:       errs,
		Exports:      exports,
		Dependencies: deps,
	}

	if s.rules != nil {
		reports, err := s.rules.RunRules(ctx, s.rulesScript, ruleContext(res, c, f))
		if err != nil {
			return nil, fmt.Errorf("tsuparser: rules: %w", err)
		}
		if len(reports) > 0 {
			for _, msg := range reports {
				errs = append(errs, fmt.Sprintf("[TSU] %s: %s", fileName, msg))
			}
			res = Failure(errs)
		}
	}

	s.record(log, f, start, res)
	return res, nil
}

// record stores one analysis pass and logs it. A failure to record is
// logged and otherwise ignored.
func (s *Service) record(log logger.Logger, f *checker.SourceFile, start time.Time, res *Result) {
	a := &store.Analysis{
		Path:            f.Path,
		Version:         f.Version,
		ContentHash:     fmt.Sprintf("%016x", f.Hash),
		Duration:        time.Since(start),
		ExportCount:     len(res.Exports),
		DependencyCount: len(res.Dependencies),
		ErrorCount:      len(res.Errors),
	}
	if _, err := s.store.RecordAnalysis(a); err != nil {
		log.Warn("record analysis", logger.F("error", err))
	}
	log.Info("analyzed",
		logger.F("version", a.Version),
		logger.F("exports", a.ExportCount),
		logger.F("dependencies", a.DependencyCount),
		logger.F("errors", a.ErrorCount),
		logger.F("failed", res.Failed()),
		logger.F("duration", a.Duration.Round(time.Microsecond)))
}

// ruleContext exposes a result to rule scripts using the wire keys, along
// with the checked tree of f.
func ruleContext(res *Result, c *checker.Checker, f *checker.SourceFile) runtime.FileContext {
	exports := make([]map[string]any, 0, len(res.Exports))
	for _, e := range res.Exports {
		params := make([]any, 0, len(e.Parameters))
		for _, p := range e.Parameters {
			params = append(params, map[string]any{
				"name":     p.Name,
				"types":    descriptorMaps(p.Types),
				"optional": p.Optional,
			})
		}
		exports = append(exports, map[string]any{
			"name":        e.Name,
			"parameters":  params,
			"returnTypes": descriptorMaps(e.ReturnTypes),
			"line":        e.Line,
			"character":   e.Character,
		})
	}
	return runtime.FileContext{
		Path:         res.Path,
		Source:       string(f.Text),
		Exports:      exports,
		Dependencies: res.Dependencies,
		Root:         f.Root(),
		Language:     f.Language(),
		TypeAt: func(n *sitter.Node) (string, error) {
			t, err := c.TypeAtLocation(f, n)
			if err != nil {
				return "", err
			}
			return c.TypeToString(t), nil
		},
	}
}

func descriptorMaps(ts []TypeDescriptor) []any {
	out := make([]any, 0, len(ts))
	for _, t := range ts {
		out = append(out, map[string]any{"name": t.Name, "dimensions": t.Dimensions})
	}
	return out
}
