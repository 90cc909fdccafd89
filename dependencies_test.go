package tsuparser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostTypes = `export class UObject {}
export class Actor extends UObject {}
export class Pawn extends Actor {}
export class Vector { x: number = 0; }
`

func analyzeWithHost(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	svc, _ := newProject(t, map[string]string{
		"Scripts/host.ts": hostTypes,
		"Scripts/Foo.ts":  src,
	}, opts...)
	res, err := svc.Analyze(context.Background(), "Scripts/Foo.ts")
	require.NoError(t, err)
	require.False(t, res.Failed(), "%v", res.Errors)
	return res
}

func TestDependencies_DerivedHostType(t *testing.T) {
	res := analyzeWithHost(t, `import { Actor } from "./host";
export function spawn(a: Actor): void {}
`)
	assert.Equal(t, []string{"Actor"}, res.Dependencies)
}

func TestDependencies_Distinct(t *testing.T) {
	res := analyzeWithHost(t, `import { Actor, Pawn, Vector } from "./host";
export function spawn(a: Pawn, b: Actor, c: Pawn, v: Vector): void {}
`)
	assert.ElementsMatch(t, []string{"Pawn", "Actor"}, res.Dependencies)
}

func TestDependencies_ConstructorReference(t *testing.T) {
	res := analyzeWithHost(t, `import { Pawn } from "./host";
export function make(): void { const p = new Pawn(); }
`)
	assert.Equal(t, []string{"Pawn"}, res.Dependencies)
}

func TestDependencies_NoHostTypes(t *testing.T) {
	res := analyzeWithHost(t, `import { Vector } from "./host";
export function length(v: Vector): number { return v.x; }
`)
	assert.Empty(t, res.Dependencies)
}

func TestDependencies_CustomBaseType(t *testing.T) {
	res := analyzeWithHost(t, `import { Actor, Vector } from "./host";
export function spawn(a: Actor, v: Vector): void {}
`, WithHostBaseType("Vector"))
	assert.Equal(t, []string{"Vector"}, res.Dependencies)
}

func TestDependencies_GlobalDeclarationFile(t *testing.T) {
	svc, _ := newProject(t, map[string]string{
		"Typings/host.d.ts": "declare class UObject {}\ndeclare class Actor extends UObject {}\n",
		"Scripts/Foo.ts":    "export function spawn(a: Actor): void {}\n",
	})
	res, err := svc.Analyze(context.Background(), "Scripts/Foo.ts")
	require.NoError(t, err)
	require.False(t, res.Failed(), "%v", res.Errors)
	assert.Equal(t, []string{"Actor"}, res.Dependencies)
}
