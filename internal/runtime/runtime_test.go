package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tsuparser/internal/logger"
)

const tsTestSource = `import { UObject } from "./engine";

export function greet(name: string): string {
	return "Hello, " + name;
}

export function add(a: number, b: number): number {
	return a + b;
}

class Server {
	host = "localhost";
	address(): string {
		return this.host;
	}
}
`

// parsedFile parses src with the TypeScript grammar into a FileContext.
// typeAt stands in for the checker.
func parsedFile(t *testing.T, src string, typeAt func(*sitter.Node) (string, error)) FileContext {
	t.Helper()

	lang := ts.GetLanguage()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	return FileContext{
		Path:     "/proj/Foo.ts",
		Source:   src,
		Root:     tree.RootNode(),
		Language: lang,
		TypeAt:   typeAt,
	}
}

// nodeKinds types every expression as its node kind.
func nodeKinds(n *sitter.Node) (string, error) {
	if n.Type() == "program" {
		return "", errors.New("no type")
	}
	return n.Type(), nil
}

// --- File tree tests ---

func TestFileTree_RootNodeType(t *testing.T) {
	fc := parsedFile(t, tsTestSource, nil)
	assert.Equal(t, "program", fc.Root.Type())
}

func TestFileTree_InvalidSourceStillParses(t *testing.T) {
	fc := parsedFile(t, "export function (: {", nil)
	require.NotNil(t, fc.Root)
	assert.True(t, fc.Root.HasError())
}

func TestFileTree_NodeOfThisFile(t *testing.T) {
	fc := parsedFile(t, tsTestSource, nil)
	ft := newFileTree(fc)

	fn := fc.Root.NamedChild(1).NamedChild(0)
	require.Equal(t, "function_declaration", fn.Type())
	node, errObj := ft.node("node_text", mustProxy(fn.ChildByFieldName("name")))
	require.Nil(t, errObj)
	assert.Equal(t, "greet", node.Content(ft.src))
}

func TestFileTree_RejectsForeignNodes(t *testing.T) {
	ft := newFileTree(parsedFile(t, tsTestSource, nil))
	other := parsedFile(t, "const x = 1;", nil)

	_, errObj := ft.node("node_text", mustProxy(other.Root))
	require.NotNil(t, errObj)
	assert.Contains(t, errObj.Error(), "not part of this file")

	_, errObj = ft.node("node_text", object.NewString("x"))
	require.NotNil(t, errObj)
	assert.Contains(t, errObj.Error(), "expected proxy")
}

func TestFileTree_NoTree(t *testing.T) {
	_, errObj := newFileTree(FileContext{}).node("query", object.Nil)
	require.NotNil(t, errObj)
	assert.Contains(t, errObj.Error(), "no syntax tree")
}

// --- Risor integration tests (via RunSource) ---

func TestRunSource_FileGlobals(t *testing.T) {
	rt := NewRuntime("")

	script := `
assert(file_path == "/proj/Foo.ts", 'unexpected path {file_path}')
assert(len(exports) == 1, 'expected 1 export, got {len(exports)}')
first := exports[0]
assert(first["name"] == "doThing", 'unexpected name {first["name"]}')
assert(first["line"] == 3, 'unexpected line {first["line"]}')
params := first["parameters"]
assert(params[0]["optional"] == true, "expected optional parameter")
assert(params[0]["types"][0]["dimensions"] == 1, "expected array parameter")
assert(len(dependencies) == 2, 'expected 2 dependencies')
assert(dependencies[1] == "Bar", 'unexpected dependency {dependencies[1]}')
assert(len(source) > 0, "expected source text")
`
	reports, err := rt.RunSource(context.Background(), script, FileContext{
		Path:   "/proj/Foo.ts",
		Source: tsTestSource,
		Exports: []map[string]any{{
			"name": "doThing",
			"parameters": []any{map[string]any{
				"name":     "items",
				"types":    []any{map[string]any{"name": "string", "dimensions": 1}},
				"optional": true,
			}},
			"returnTypes": []any{map[string]any{"name": "void", "dimensions": 0}},
			"line":        3,
			"character":   1,
		}},
		Dependencies: []string{"Actor", "Bar"},
	})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRunSource_ReportCollectsMessages(t *testing.T) {
	rt := NewRuntime("")

	script := `
for i := 0; i < len(exports); i++ {
	name := exports[i]["name"]
	if len(name) < 4 {
		report('{file_path}: export name {name} is too short')
	}
}
report("done")
`
	reports, err := rt.RunSource(context.Background(), script, FileContext{
		Path: "Foo.ts",
		Exports: []map[string]any{
			{"name": "go"},
			{"name": "longEnough"},
			{"name": "f"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Foo.ts: export name go is too short",
		"Foo.ts: export name f is too short",
		"done",
	}, reports)
}

func TestRunSource_ReportRequiresString(t *testing.T) {
	rt := NewRuntime("")
	_, err := rt.RunSource(context.Background(), `report(42)`, FileContext{})
	require.Error(t, err)
}

func TestRunSource_QueryAndNodeText(t *testing.T) {
	rt := NewRuntime("")

	script := `
assert(root.Type() == "program", "expected program")

matches := query("(function_declaration name: (identifier) @name)", root)
assert(len(matches) == 2, 'expected 2 matches, got {len(matches)}')
assert(node_text(matches[0]["name"]) == "greet", "expected greet")
assert(node_text(matches[1]["name"]) == "add", "expected add")

methods := query("(method_definition name: (property_identifier) @name)", root)
assert(len(methods) == 1, 'expected 1 method, got {len(methods)}')
report(node_text(methods[0]["name"]))
`
	reports, err := rt.RunSource(context.Background(), script, parsedFile(t, tsTestSource, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"address"}, reports)
}

func TestRunSource_QueryNoMatches(t *testing.T) {
	rt := NewRuntime("")

	script := `
matches := query("(function_declaration name: (identifier) @name)", root)
assert(len(matches) == 0, 'expected 0 matches, got {len(matches)}')
`
	_, err := rt.RunSource(context.Background(), script, parsedFile(t, "const x = 1;", nil))
	require.NoError(t, err)
}

func TestRunSource_QueryInvalidPattern(t *testing.T) {
	rt := NewRuntime("")
	_, err := rt.RunSource(context.Background(), `query("(not_a_real_node_type @x)", root)`,
		parsedFile(t, tsTestSource, nil))
	require.Error(t, err)
}

func TestRunSource_TypeAt(t *testing.T) {
	rt := NewRuntime("")

	script := `
assert(type_at(root) == nil, "the root has no type")
matches := query("(return_statement (_) @value)", root)
for i := 0; i < len(matches); i++ {
	v := matches[i]["value"]
	text := node_text(v)
	typ := type_at(v)
	report('{text}: {typ}')
}
`
	reports, err := rt.RunSource(context.Background(), script, parsedFile(t, tsTestSource, nodeKinds))
	require.NoError(t, err)
	assert.Equal(t, []string{
		`"Hello, " + name: binary_expression`,
		"a + b: binary_expression",
		"this.host: member_expression",
	}, reports)
}

func TestRunSource_TypeAtWithoutChecker(t *testing.T) {
	rt := NewRuntime("")
	_, err := rt.RunSource(context.Background(), `type_at(root)`, parsedFile(t, tsTestSource, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no type information")
}

func TestRunSource_NoTree(t *testing.T) {
	rt := NewRuntime("")
	_, err := rt.RunSource(context.Background(), `node_text(root)`, FileContext{Source: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no syntax tree")
}

func TestRunSource_LogUsesLogger(t *testing.T) {
	var buf bytes.Buffer
	rt := NewRuntime("", WithLogger(logger.New(logger.LevelDebug, &buf)))

	_, err := rt.RunSource(context.Background(), `log.Warn("hello from rule")`, FileContext{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from rule")
	assert.Contains(t, buf.String(), "script=<inline>")
}

func TestRunRules_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.risor"),
		[]byte(`report('checked {file_path}')`), 0644))

	rt := NewRuntime(dir)
	reports, err := rt.RunRules(context.Background(), "rules.risor", FileContext{Path: "/p/Foo.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"checked /p/Foo.ts"}, reports)
}

func TestRunRules_MissingFile(t *testing.T) {
	rt := NewRuntime(t.TempDir())
	_, err := rt.RunRules(context.Background(), "nonexistent.risor", FileContext{})
	require.Error(t, err)
}

func TestRunRules_ScriptError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.risor"), []byte(`x := `), 0644))

	rt := NewRuntime(dir)
	_, err := rt.RunRules(context.Background(), "bad.risor", FileContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.risor")
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"rules/main.risor": &fstest.MapFile{Data: []byte(`z := 7`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/rules/main.risor")
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

func TestLoadScript_AbsolutePath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.risor")
	require.NoError(t, os.WriteFile(path, []byte(`x := 42`), 0644))

	rt := NewRuntime("/elsewhere")
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)
}

// --- Importer wiring tests ---

func TestImport_FSImporter(t *testing.T) {
	mapFS := fstest.MapFS{
		"naming.risor": &fstest.MapFile{Data: []byte(`
func too_short(name) {
	return len(name) < 4
}
`)},
		"rules.risor": &fstest.MapFile{Data: []byte(`
import naming

for i := 0; i < len(exports); i++ {
	name := exports[i]["name"]
	if naming.too_short(name) {
		report('export {name} is too short')
	}
}
`)},
	}

	rt := NewRuntime("", WithRuntimeFS(mapFS))
	reports, err := rt.RunRules(context.Background(), "rules.risor", FileContext{
		Exports: []map[string]any{{"name": "run"}, {"name": "doThing"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"export run is too short"}, reports)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.risor"), []byte(`
func flag(msg) {
	report(msg)
}
`), 0644))

	rt := NewRuntime(dir)
	reports, err := rt.RunSource(context.Background(), `
import helper
helper.flag("from module")
`, FileContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"from module"}, reports)
}

func TestToObject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", toObject("hello").Interface())
	assert.Equal(t, int64(3), toObject(3).Interface())
	assert.Equal(t, true, toObject(true).Interface())
	assert.Equal(t, []any{"a", "b"}, toObject([]string{"a", "b"}).Interface())
	assert.Equal(t,
		map[string]any{"name": "x", "dimensions": int64(2)},
		toObject(map[string]any{"name": "x", "dimensions": 2}).Interface(),
	)
}
