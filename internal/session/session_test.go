package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tsuparser/internal/checker"
	"github.com/jward/tsuparser/internal/snapshot"
	"github.com/jward/tsuparser/internal/tsconfig"
)

type fixture struct {
	dir   string
	store *snapshot.Store
	cfg   *tsconfig.Config
	sess  *Session
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	store := snapshot.NewStore()
	cfg := &tsconfig.Config{Dir: dir, Path: filepath.Join(dir, tsconfig.FileName)}
	return &fixture{
		dir:   dir,
		store: store,
		cfg:   cfg,
		sess:  New(NewStoreHost(store, cfg)),
	}
}

func (fx *fixture) path(name string) string { return filepath.Join(fx.dir, name) }

func (fx *fixture) request(t *testing.T, name string) string {
	t.Helper()
	path := fx.path(name)
	_, err := fx.store.MarkAnalyzed(path)
	require.NoError(t, err)
	return path
}

func TestCurrentProgram_ReusesUntilVersionsChange(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"main.ts":   `import { helper } from "./helper"; export function f(): number { return helper(); }`,
		"helper.ts": `export function helper(): number { return 1; }`,
	})
	ctx := context.Background()
	main := fx.request(t, "main.ts")

	first, err := fx.sess.CurrentProgram(ctx)
	require.NoError(t, err)
	require.NotNil(t, first.SourceFile(main))
	require.NotNil(t, first.SourceFile(fx.path("helper.ts")))

	again, err := fx.sess.CurrentProgram(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, fx.sess.Stats().Builds)

	fx.request(t, "main.ts")
	rebuilt, err := fx.sess.CurrentProgram(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)

	stats := fx.sess.Stats()
	assert.Equal(t, 2, stats.Builds)
	assert.Equal(t, 1, stats.Parsed, "only the bumped root is parsed again")
	assert.Equal(t, 2, stats.Reused, "helper and the default library are reused")
}

func TestSourceFile_Missing(t *testing.T) {
	fx := newFixture(t, map[string]string{"main.ts": `export const a = 1;`})
	fx.request(t, "main.ts")

	_, err := fx.sess.SourceFile(context.Background(), fx.path("other.ts"))
	assert.ErrorIs(t, err, ErrSourceFileMissing)
}

func TestCurrentProgram_EngineFailure(t *testing.T) {
	fx := newFixture(t, map[string]string{"main.ts": `export const a = 1;`})
	sess := New(NewStoreHost(fx.store, fx.cfg), WithEngine(failingEngine{}))

	_, err := sess.CurrentProgram(context.Background())
	assert.ErrorIs(t, err, ErrProgramUnavailable)
	assert.Contains(t, err.Error(), "boom")
}

type failingEngine struct{}

func (failingEngine) Build(context.Context, checker.CompilerHost, *checker.Program) (*checker.Program, error) {
	return nil, errors.New("boom")
}

func TestPreEmitDiagnostics(t *testing.T) {
	fx := newFixture(t, map[string]string{"main.ts": "export const a = missing;\n"})
	ctx := context.Background()
	main := fx.request(t, "main.ts")

	p, err := fx.sess.CurrentProgram(ctx)
	require.NoError(t, err)
	f, err := fx.sess.SourceFile(ctx, main)
	require.NoError(t, err)

	diags := fx.sess.PreEmitDiagnostics(p, f)
	require.Len(t, diags, 1)
	assert.Equal(t, "[TS]: main.ts(1,18): error TS2304: Cannot find name 'missing'.", diags[0].String())
}

func TestEmit(t *testing.T) {
	fx := newFixture(t, map[string]string{"main.ts": "export const a: number = 1;\n"})
	main := fx.request(t, "main.ts")

	out, err := fx.sess.Emit(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, fx.path("main.js"), out.Name)
	assert.Contains(t, out.Text, "const a = 1;")
	assert.Contains(t, out.Text, "module.exports")
}

func TestEmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		options tsconfig.CompilerOptions
		want    error
	}{
		{"no emit", tsconfig.CompilerOptions{NoEmit: true}, ErrEmitSkipped},
		{"external source map", tsconfig.CompilerOptions{SourceMap: true}, ErrUnexpectedOutputCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, map[string]string{"main.ts": "export const a = 1;\n"})
			fx.cfg.Options = tt.options
			main := fx.request(t, "main.ts")

			_, err := fx.sess.Emit(context.Background(), main)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmit_DeletedFile(t *testing.T) {
	fx := newFixture(t, map[string]string{"main.ts": "export const a = 1;\n"})
	main := fx.request(t, "main.ts")
	require.NoError(t, os.Remove(main))

	_, err := fx.sess.Emit(context.Background(), main)
	assert.ErrorIs(t, err, ErrSourceFileMissing)
}

func TestStoreHost(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"main.ts":                    "",
		"node_modules/@types/x/a.ts": "",
	})
	h := NewStoreHost(fx.store, fx.cfg)

	assert.True(t, h.FileExists(fx.path("main.ts")))
	assert.False(t, h.FileExists(fx.path("node_modules")))
	assert.Equal(t, fx.dir, h.CurrentDirectory())
	assert.Equal(t, checker.DefaultLibPath, h.DefaultLibFileName())

	dirs, err := h.ReadDirectory(fx.path("node_modules/@types"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, dirs)

	assert.Empty(t, h.ScriptFileNames())
	fx.request(t, "main.ts")
	assert.Equal(t, []string{fx.path("main.ts")}, h.ScriptFileNames())
}

func TestStoreHost_DeclarationRoots(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"main.ts":   "export const a: Actor = new Actor();\n",
		"other.ts":  "export {};\n",
		"host.d.ts": "declare class Actor {}\n",
	})
	fx.cfg.RootFiles = []string{fx.path("host.d.ts"), fx.path("main.ts"), fx.path("other.ts")}
	h := NewStoreHost(fx.store, fx.cfg)

	assert.Equal(t, []string{fx.path("host.d.ts")}, h.ScriptFileNames())

	main := fx.request(t, "main.ts")
	assert.Equal(t, []string{main, fx.path("host.d.ts")}, h.ScriptFileNames())

	p, err := fx.sess.CurrentProgram(context.Background())
	require.NoError(t, err)
	f := p.SourceFile(main)
	require.NotNil(t, f)
	assert.Empty(t, fx.sess.PreEmitDiagnostics(p, f), "the global declaration resolves")
}
