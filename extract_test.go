package tsuparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		rendered string
		want     []TypeDescriptor
	}{
		{"number", []TypeDescriptor{{Name: "number"}}},
		{"string[]", []TypeDescriptor{{Name: "string", Dimensions: 1}}},
		{"Actor[][]", []TypeDescriptor{{Name: "Actor", Dimensions: 2}}},
		{"string | number[]", []TypeDescriptor{{Name: "string"}, {Name: "number", Dimensions: 1}}},
		{"Map<string, Actor[]>", []TypeDescriptor{{Name: "Map<string, Actor>", Dimensions: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.rendered, func(t *testing.T) {
			assert.Equal(t, tt.want, parseType(tt.rendered))
		})
	}
}

func findExport(t *testing.T, res *Result, name string) ExportedFunction {
	t.Helper()
	for _, e := range res.Exports {
		if e.Name == name {
			return e
		}
	}
	require.Failf(t, "export not found", "%s", name)
	return ExportedFunction{}
}

func TestExtract_UnionReturnRejected(t *testing.T) {
	res := analyzeSource(t, `export function either(a: boolean): string | number { return a ? 1 : "s"; }
export function fine(): number { return 1; }
`)

	require.False(t, res.Failed())
	assert.Equal(t, []string{"[TSU] Foo.ts(1,1): Disallowed union return type (string | number)"}, res.Errors)
	require.Len(t, res.Exports, 1)
	assert.Equal(t, "fine", res.Exports[0].Name)
}

func TestExtract_Parameters(t *testing.T) {
	res := analyzeSource(t, "export function g(a: number, b = 2, c?: string, d: string[][] = [], e?): void {}\n")

	g := findExport(t, res, "g")
	assert.Equal(t, []Parameter{
		{Name: "a", Types: []TypeDescriptor{{Name: "number"}}, Optional: false},
		{Name: "b", Types: []TypeDescriptor{{Name: "any"}}, Optional: false},
		{Name: "c", Types: []TypeDescriptor{{Name: "string"}}, Optional: true},
		{Name: "d", Types: []TypeDescriptor{{Name: "string", Dimensions: 2}}, Optional: false},
		{Name: "e", Types: []TypeDescriptor{{Name: "any"}}, Optional: true},
	}, g.Parameters)
	assert.Equal(t, []TypeDescriptor{{Name: "void"}}, g.ReturnTypes)
}

func TestExtract_UnionParameterKept(t *testing.T) {
	res := analyzeSource(t, "export function h(v: string | number): void {}\n")

	h := findExport(t, res, "h")
	require.Len(t, h.Parameters, 1)
	assert.Equal(t, []TypeDescriptor{{Name: "string"}, {Name: "number"}}, h.Parameters[0].Types)
}

func TestExtract_Positions(t *testing.T) {
	res := analyzeSource(t, `const unused = 1;

/** Documented. */
export function first(): void {}
  export function second(): void {}
`)

	assert.Equal(t, 3, findExport(t, res, "first").Line, "a JSDoc comment moves the start")
	assert.Equal(t, 1, findExport(t, res, "first").Character)
	second := findExport(t, res, "second")
	assert.Equal(t, 5, second.Line)
	assert.Equal(t, 3, second.Character)
}

func TestExtract_SkipsNonFunctionsAndUnexported(t *testing.T) {
	res := analyzeSource(t, `function hidden(): void {}
export const value = 1;
export class Thing {}
export interface Shape { x: number }
export function shown(): void { hidden(); }
`)

	require.Len(t, res.Exports, 1)
	assert.Equal(t, "shown", res.Exports[0].Name)
}
