package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/logger"
)

// Runtime embeds a Risor VM and runs per-file rule scripts against the
// metadata extracted for a TypeScript source file.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        logger.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger routes the script-facing log object to l.
func WithLogger(l logger.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime that resolves scripts and imports relative
// to scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		log:        logger.NewSilent(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FileContext is what a rule script sees of one analysed file.
type FileContext struct {
	Path         string
	Source       string
	Exports      []map[string]any
	Dependencies []string

	// Root is the checked syntax tree of Source, parsed with Language.
	// Rules see it as the root global; without it the node functions fail.
	Root     *sitter.Node
	Language *sitter.Language
	// TypeAt renders the type the checker gives a node of Root.
	TypeAt func(*sitter.Node) (string, error)
}

// RunRules loads the script at scriptPath and runs it against fc. It
// returns the messages the script passed to report, in call order.
func (r *Runtime) RunRules(ctx context.Context, scriptPath string, fc FileContext) ([]string, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, src, scriptPath, fc)
}

// RunSource runs Risor source directly against fc. Useful for testing
// without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, fc FileContext) ([]string, error) {
	return r.run(ctx, source, "<inline>", fc)
}

func (r *Runtime) run(ctx context.Context, source, label string, fc FileContext) ([]string, error) {
	var reports []string
	globals := r.buildGlobals(label, fc, &reports)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return reports, nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		// fs.FS paths are unrooted ("/rules/main.risor" -> "rules/main.risor").
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(label string, fc FileContext, reports *[]string) map[string]any {
	exports := make([]any, len(fc.Exports))
	for i, e := range fc.Exports {
		exports[i] = e
	}
	deps := make([]any, len(fc.Dependencies))
	for i, d := range fc.Dependencies {
		deps[i] = d
	}

	var root object.Object = object.Nil
	if fc.Root != nil {
		root = mustProxy(fc.Root)
	}
	ft := newFileTree(fc)

	return map[string]any{
		"file_path":    object.NewString(fc.Path),
		"source":       object.NewString(fc.Source),
		"exports":      toObject(exports),
		"dependencies": toObject(deps),
		"root":         root,
		"node_text":    makeNodeTextFn(ft),
		"type_at":      makeTypeAtFn(ft),
		"query":        makeQueryFn(ft),
		"report":       makeReportFn(reports),
		"log":          mustProxy(&logObject{log: r.log, script: label}),
	}
}

// makeReportFn creates the "report" host function. Each call appends one
// message to reports.
//
// report(message)
func makeReportFn(reports *[]string) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("report", 1, len(args))
		}
		msg, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("report: message must be a string, got %s", args[0].Type())
		}
		*reports = append(*reports, msg.Value())
		return object.Nil
	})
}

// toObject converts the plain values used in FileContext into Risor objects.
func toObject(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(v)
	case bool:
		return object.NewBool(v)
	case int:
		return object.NewInt(int64(v))
	case int64:
		return object.NewInt(v)
	case []string:
		items := make([]object.Object, len(v))
		for i, s := range v {
			items[i] = object.NewString(s)
		}
		return object.NewList(items)
	case []any:
		items := make([]object.Object, len(v))
		for i, item := range v {
			items[i] = toObject(item)
		}
		return object.NewList(items)
	case []map[string]any:
		items := make([]object.Object, len(v))
		for i, item := range v {
			items[i] = toObject(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(v))
		for k, item := range v {
			m[k] = toObject(item)
		}
		return object.NewMap(m)
	default:
		return object.NewString(fmt.Sprint(v))
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
