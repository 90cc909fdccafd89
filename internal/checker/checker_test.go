package checker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io/fs"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tsuparser/internal/tsconfig"
)

// memHost serves files from a map. Versions default to "0".
type memHost struct {
	files    map[string]string
	versions map[string]string
	roots    []string
	opts     *tsconfig.CompilerOptions
	reads    int
}

func newMemHost(files map[string]string, roots ...string) *memHost {
	return &memHost{
		files:    files,
		versions: make(map[string]string),
		roots:    roots,
		opts:     &tsconfig.CompilerOptions{},
	}
}

func (h *memHost) RootFileNames() []string { return h.roots }

func (h *memHost) ScriptVersion(path string) string {
	if v, ok := h.versions[path]; ok {
		return v
	}
	return "0"
}

func (h *memHost) ScriptSource(path string) ([]byte, error) {
	if path == DefaultLibPath {
		return DefaultLib(), nil
	}
	text, ok := h.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	h.reads++
	return []byte(text), nil
}

func (h *memHost) FileExists(path string) bool {
	_, ok := h.files[path]
	return ok || path == DefaultLibPath
}

func (h *memHost) ReadFile(path string) ([]byte, error) { return h.ScriptSource(path) }

func (h *memHost) ReadDirectory(string) ([]string, error) { return nil, nil }

func (h *memHost) CurrentDirectory() string { return "/proj" }

func (h *memHost) Options() *tsconfig.CompilerOptions { return h.opts }

func (h *memHost) DefaultLibFileName() string { return DefaultLibPath }

func buildProgram(t *testing.T, h *memHost) *Program {
	t.Helper()
	p, err := NewProgram(context.Background(), h, nil)
	require.NoError(t, err)
	return p
}

func singleFile(t *testing.T, src string) (*Program, *SourceFile) {
	t.Helper()
	h := newMemHost(map[string]string{"/proj/main.ts": src}, "/proj/main.ts")
	p := buildProgram(t, h)
	f := p.SourceFile("/proj/main.ts")
	require.NotNil(t, f)
	return p, f
}

// findDecl returns the first top-level function, class or variable
// declarator named name, looking through export statements.
func findDecl(t *testing.T, f *SourceFile, name string) *sitter.Node {
	t.Helper()
	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found != nil {
			return
		}
		if id := n.ChildByFieldName("name"); id != nil && f.NodeText(id) == name {
			switch n.Type() {
			case "function_declaration", "class_declaration", "variable_declarator", "interface_declaration",
				"enum_declaration", "type_alias_declaration":
				found = n
				return
			}
		}
		for _, c := range namedChildren(n) {
			walk(c)
		}
	}
	walk(f.Root())
	require.NotNil(t, found, "declaration %s", name)
	return found
}

func returnTypeString(t *testing.T, p *Program, f *SourceFile, fn string) string {
	t.Helper()
	c := p.Checker()
	sig := c.SignatureOf(f, findDecl(t, f, fn))
	require.NotNil(t, sig)
	return c.TypeToString(c.ReturnTypeOfSignature(sig))
}

func TestNewProgram_LoadsLibAndImports(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts":  `import { Actor } from "./actor"; export const a = new Actor();`,
		"/proj/actor.ts": `export class Actor {}`,
	}, "/proj/main.ts")
	p := buildProgram(t, h)

	require.NotNil(t, p.SourceFile("/proj/actor.ts"))
	require.NotNil(t, p.SourceFile(DefaultLibPath))
	assert.True(t, p.IsLibFile(p.SourceFile(DefaultLibPath)))
	assert.Equal(t, "/proj/actor.ts", p.ResolvedModule("/proj/main.ts", "./actor"))
	assert.Equal(t, 3, p.Stats().Parsed)
}

func TestNewProgram_ReusesUnchangedFiles(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts": `import { b } from "./b"; export const a = b;`,
		"/proj/b.ts":    `export const b = 1;`,
	}, "/proj/main.ts")
	first := buildProgram(t, h)

	h.files["/proj/main.ts"] = `import { b } from "./b"; export const a = b + 1;`
	h.versions["/proj/main.ts"] = "1"
	second, err := NewProgram(context.Background(), h, first)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Stats().Parsed)
	assert.Equal(t, 2, second.Stats().Reused)
	assert.Same(t, first.SourceFile("/proj/b.ts"), second.SourceFile("/proj/b.ts"))
	assert.NotSame(t, first.SourceFile("/proj/main.ts"), second.SourceFile("/proj/main.ts"))
}

func TestNewProgram_MissingRootIsSkipped(t *testing.T) {
	h := newMemHost(map[string]string{}, "/proj/gone.ts")
	p := buildProgram(t, h)
	assert.Nil(t, p.SourceFile("/proj/gone.ts"))
}

func TestTypeToString_ReturnTypes(t *testing.T) {
	p, f := singleFile(t, `
export function flag(x: number): boolean { return x > 0; }
export function names(): string[][] { return []; }
export function either(a: boolean): string | number { return a ? 1 : "s"; }
export function nothing() {}
export function text() { return "a" + 1; }
export async function later(): Promise<number> { return 1; }
export function maybe(): string | undefined { return undefined; }
`)
	tests := []struct {
		fn   string
		want string
	}{
		{"flag", "boolean"},
		{"names", "string[][]"},
		{"either", "string | number"},
		{"nothing", "void"},
		{"text", "string"},
		{"later", "Promise<number>"},
		{"maybe", "string"},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			assert.Equal(t, tt.want, returnTypeString(t, p, f, tt.fn))
		})
	}
}

func TestTypeToString_StrictNullsKeepUndefined(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts": `export function maybe(): string | undefined { return undefined; }`,
	}, "/proj/main.ts")
	h.opts.Strict = true
	p := buildProgram(t, h)
	f := p.SourceFile("/proj/main.ts")
	assert.Equal(t, "string | undefined", returnTypeString(t, p, f, "maybe"))
}

func TestTypeToString_ClassesAndAliases(t *testing.T) {
	p, f := singleFile(t, `
class Box<T> { value: T; }
type Id = string;
export function box(): Box<number> { return new Box<number>(); }
export function id(): Id { return ""; }
export function make() { return new Box<string>(); }
`)
	assert.Equal(t, "Box<number>", returnTypeString(t, p, f, "box"))
	assert.Equal(t, "string", returnTypeString(t, p, f, "id"))
	assert.Equal(t, "Box<string>", returnTypeString(t, p, f, "make"))
}

func TestIsOptionalParameter(t *testing.T) {
	p, f := singleFile(t, `
export function a(x: number, y?: string) {}
export function b(x = 1, y: number) {}
export function c(x: number, y = 2) {}
`)
	c := p.Checker()
	params := func(fn string) []*sitter.Node {
		return namedChildren(findDecl(t, f, fn).ChildByFieldName("parameters"))
	}

	pa := params("a")
	assert.False(t, c.IsOptionalParameter(f, pa[0]))
	assert.True(t, c.IsOptionalParameter(f, pa[1]))

	pb := params("b")
	assert.False(t, c.IsOptionalParameter(f, pb[0]), "initializer before a required parameter")

	pc := params("c")
	assert.True(t, c.IsOptionalParameter(f, pc[1]), "trailing initializer")
}

func TestBaseTypes_WalksExtends(t *testing.T) {
	p, f := singleFile(t, `
class UObject {}
class Actor extends UObject {}
class Pawn extends Actor {}
`)
	c := p.Checker()
	pawn, err := c.TypeAtLocation(f, findDecl(t, f, "Pawn"))
	require.NoError(t, err)

	bases := c.BaseTypes(pawn)
	require.Len(t, bases, 1)
	assert.Equal(t, "Actor", bases[0].Name)

	next := c.BaseTypes(bases[0])
	require.Len(t, next, 1)
	assert.Equal(t, "UObject", next[0].Name)
	assert.Empty(t, c.BaseTypes(next[0]))
}

func TestTypeAtLocation_ClassReferenceHasConstructSignature(t *testing.T) {
	p, f := singleFile(t, `
class Actor { constructor(public name: string) {} }
const k = Actor;
`)
	c := p.Checker()
	typ, err := c.TypeAtLocation(f, findDecl(t, f, "k"))
	require.NoError(t, err)

	sigs := c.ConstructSignatures(typ)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Actor", c.TypeToString(c.ReturnTypeOfSignature(sigs[0])))
	assert.Equal(t, "typeof Actor", c.TypeToString(typ))
}

func TestTypeAtLocation_Punctuation(t *testing.T) {
	p, f := singleFile(t, `export function f() {}`)
	_, err := p.Checker().TypeAtLocation(f, f.Root())
	assert.ErrorIs(t, err, ErrNoType)
}

func TestPreEmitDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code int
		msg  string
	}{
		{"unknown name", `export const a = missing;`, 2304, "Cannot find name 'missing'."},
		{"unknown type", `export let a: Missing;`, 2304, "Cannot find name 'Missing'."},
		{"missing module", `import { x } from "./nowhere"; export const a = x;`, 2307,
			"Cannot find module './nowhere' or its corresponding type declarations."},
		{"argument count", `function f(a: number) {} f(1, 2);`, 2554, "Expected 1 arguments, but got 2."},
		{"argument type", `function g(a: number) { return a; } export function f() { return g("x"); }`, 2345,
			"Argument of type 'string' is not assignable to parameter of type 'number'."},
		{"argument type to literal union", `function g(m: "a" | "b") {} g("c");`, 2345,
			"Argument of type '\"c\"' is not assignable to parameter of type '\"a\" | \"b\"'."},
		{"constructor argument type", `class P { constructor(n: number) {} } new P(true);`, 2345,
			"Argument of type 'boolean' is not assignable to parameter of type 'number'."},
		{"member of primitive", `export function f(a: number) { return a.toUpperCase(); }`, 2339,
			"Property 'toUpperCase' does not exist on type 'number'."},
		{"missing return", `export function f(): number { }`, 2355,
			"A function whose declared type is neither 'undefined', 'void', nor 'any' must return a value."},
		{"syntax", `export function (`, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := singleFile(t, tt.src)
			diags := p.PreEmitDiagnostics(f)
			require.NotEmpty(t, diags)
			if tt.code == 0 {
				return
			}
			assert.Equal(t, tt.code, diags[0].Code)
			assert.Equal(t, tt.msg, diags[0].Message)
		})
	}
}

func TestPreEmitDiagnostics_CleanFile(t *testing.T) {
	p, f := singleFile(t, `
class UObject { name: string = ""; }
export function greet(o: UObject, times = 1): string {
    let out = "";
    for (let i = 0; i < times; i++) {
        out += o.name;
    }
    return out;
}
`)
	assert.Empty(t, p.PreEmitDiagnostics(f))
}

func TestPreEmitDiagnostics_Positions(t *testing.T) {
	p, f := singleFile(t, "function g(a: number) {}\ng(1, \"x\" as any);\ng(\"x\");\nexport function f(): string {\n}\n")
	diags := p.PreEmitDiagnostics(f)

	var got []string
	for _, d := range diags {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{
		"[TS]: main.ts(2,6): error TS2554: Expected 1 arguments, but got 2.",
		"[TS]: main.ts(3,3): error TS2345: Argument of type 'string' is not assignable to parameter of type 'number'.",
		"[TS]: main.ts(4,22): error TS2355: A function whose declared type is neither 'undefined', 'void', nor 'any' must return a value.",
	}, got)
}

func TestPreEmitDiagnostics_ValidCallsMembersAndReturns(t *testing.T) {
	h := newMemHost(map[string]string{"/proj/main.ts": `
enum Color { Red, Green }
function opt(a: number, b?: string): number { return a; }
export function strings(s: string): string {
    return s.padStart(4).replaceAll("a", "b").trimEnd() + "x".at(0) + s.length;
}
export function numbers(n: number): string {
    opt(n, undefined);
    opt(Color.Red);
    return n.toFixed(2) + (1).toString() + true.valueOf() + n.toLocaleString();
}
export function fails(): number {
    throw new Error("no");
}
export function loops(): number {
    while (true) {}
}
export function branches(x: boolean): number {
    if (x) {
        return 1;
    }
    return 2;
}
export function nothing(): void {}
export function anything(): any {}
export function nested(): number {
    const inner = function (): number { return 1; };
    return inner();
}
`}, "/proj/main.ts")
	h.opts.Strict = true
	p := buildProgram(t, h)
	assert.Empty(t, p.PreEmitDiagnostics(p.SourceFile("/proj/main.ts")))
}

func TestPreEmitDiagnostics_AssignabilityAndImplicitAny(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts": "const n: number = \"a\";\nexport function f(x) { return x; }\n",
	}, "/proj/main.ts")
	h.opts.Strict = true
	p := buildProgram(t, h)
	diags := p.PreEmitDiagnostics(p.SourceFile("/proj/main.ts"))

	var codes []int
	for _, d := range diags {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, 2322)
	assert.Contains(t, codes, 7006)
	assert.Equal(t, "[TS]: main.ts(2,19): error TS7006: Parameter 'x' implicitly has an 'any' type.",
		diags[len(diags)-1].String())
}

func TestOptionsDiagnostics(t *testing.T) {
	h := newMemHost(map[string]string{"/proj/main.ts": ``}, "/proj/main.ts")
	h.opts.SourceMap = true
	h.opts.InlineSourceMap = true
	p := buildProgram(t, h)

	diags := p.OptionsDiagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "[TS]: Option 'sourceMap' cannot be specified with option 'inlineSourceMap'.", diags[0].String())
}

func emitText(t *testing.T, h *memHost, path string) string {
	t.Helper()
	p := buildProgram(t, h)
	res, err := p.Emit(p.SourceFile(path))
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Len(t, res.Files, 1)
	return res.Files[0].Text
}

func TestEmit_CommonJSStripsTypes(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts": "export function f(a: number): number { return a; }\ninterface I { x: number }\nexport const v = f(1) as number;\n",
	}, "/proj/main.ts")
	js := emitText(t, h, "/proj/main.ts")

	assert.Contains(t, js, "module.exports")
	assert.Contains(t, js, "function f(a) {")
	assert.Contains(t, js, "const v = f(1);")
	assert.NotContains(t, js, ": number")
	assert.NotContains(t, js, "interface")
}

func TestEmit_ScriptHasNoModuleWrapper(t *testing.T) {
	h := newMemHost(map[string]string{"/proj/main.ts": "const a: number = 1;\n"}, "/proj/main.ts")
	js := emitText(t, h, "/proj/main.ts")

	assert.Contains(t, js, "const a = 1;")
	assert.NotContains(t, js, "module.exports")
}

func TestEmit_ImportsElideTypeOnlyUses(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts":  "import { Actor, Shape } from \"./actor\";\nexport function f(s: Shape) { return new Actor(); }\n",
		"/proj/actor.ts": "export class Actor {}\nexport interface Shape {}\n",
	}, "/proj/main.ts")
	js := emitText(t, h, "/proj/main.ts")

	assert.Contains(t, js, `require("./actor")`)
	assert.NotContains(t, js, "Shape")
}

func TestEmit_EnumAndParameterProperties(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts": "enum Color { Red, Green = 5, Blue }\nclass P { constructor(private readonly x: number) {} }\n",
	}, "/proj/main.ts")
	js := emitText(t, h, "/proj/main.ts")

	assert.Contains(t, js, `["Red"] = 0] = "Red"`)
	assert.Contains(t, js, `["Green"] = 5] = "Green"`)
	assert.Contains(t, js, `["Blue"] = 6] = "Blue"`)
	assert.Contains(t, js, "this.x = x")
	assert.NotContains(t, js, "readonly")
}

func TestEmit_SourceMaps(t *testing.T) {
	files := map[string]string{"/proj/main.ts": "export const a: number = 1;\n"}

	inline := newMemHost(files, "/proj/main.ts")
	inline.opts.InlineSourceMap = true
	inline.opts.InlineSources = true
	js := emitText(t, inline, "/proj/main.ts")
	const prefix = "//# sourceMappingURL=data:application/json;base64,"
	idx := strings.Index(js, prefix)
	require.GreaterOrEqual(t, idx, 0)
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(js[idx+len(prefix):]))
	require.NoError(t, err)
	var m struct {
		Sources        []string `json:"sources"`
		SourcesContent []string `json:"sourcesContent"`
	}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, []string{"main.ts"}, m.Sources)
	assert.Equal(t, []string{files["/proj/main.ts"]}, m.SourcesContent)

	external := newMemHost(files, "/proj/main.ts")
	external.opts.SourceMap = true
	p := buildProgram(t, external)
	res, err := p.Emit(p.SourceFile("/proj/main.ts"))
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "/proj/main.js", res.Files[0].Name)
	assert.Equal(t, "/proj/main.js.map", res.Files[1].Name)
	assert.Contains(t, res.Files[0].Text, "//# sourceMappingURL=main.js.map")
	assert.Contains(t, res.Files[1].Text, `"mappings"`)
	assert.NotContains(t, res.Files[1].Text, "sourcesContent")
}

func TestEmit_Skipped(t *testing.T) {
	h := newMemHost(map[string]string{
		"/proj/main.ts":    "export const a = 1;\n",
		"/proj/types.d.ts": "declare const b: number;\n",
	}, "/proj/main.ts", "/proj/types.d.ts")
	p := buildProgram(t, h)
	res, err := p.Emit(p.SourceFile("/proj/types.d.ts"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	h.opts.NoEmit = true
	p = buildProgram(t, h)
	res, err = p.Emit(p.SourceFile("/proj/main.ts"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestEmit_OutDir(t *testing.T) {
	h := newMemHost(map[string]string{"/proj/src/main.ts": "export const a = 1;\n"}, "/proj/src/main.ts")
	h.opts.OutDir = "/proj/out"
	h.opts.RootDir = "/proj/src"
	p := buildProgram(t, h)
	res, err := p.Emit(p.SourceFile("/proj/src/main.ts"))
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/proj/out/main.js", res.Files[0].Name)
}
