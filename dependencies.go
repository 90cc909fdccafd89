package tsuparser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/checker"
)

// DefaultHostBaseType is the root of the host application's object
// hierarchy.
const DefaultHostBaseType = "UObject"

// dependencyWalker finds the host-object types a file refers to.
type dependencyWalker struct {
	c    *checker.Checker
	f    *checker.SourceFile
	base string

	// isHost memoizes host-object membership per type for one walk.
	isHost map[*checker.Type]bool
	seen   map[string]bool
	found  []string
}

// findDependencies walks f children first and returns the distinct names of
// every resolved type that is, or derives from, the host base type. Names
// are in discovery order.
func findDependencies(c *checker.Checker, f *checker.SourceFile, base string) []string {
	w := &dependencyWalker{
		c:      c,
		f:      f,
		base:   base,
		isHost: make(map[*checker.Type]bool),
		seen:   make(map[string]bool),
	}
	w.walk(f.Root())
	return w.found
}

func (w *dependencyWalker) walk(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
	w.visit(n)
}

func (w *dependencyWalker) visit(n *sitter.Node) {
	t, err := w.c.TypeAtLocation(w.f, n)
	if err != nil || t == nil {
		return
	}
	if t.IsLiteral() || len(w.c.CallSignatures(t)) > 0 {
		return
	}
	if ctors := w.c.ConstructSignatures(t); len(ctors) > 0 {
		t = w.c.ReturnTypeOfSignature(ctors[0])
	}
	if !w.hostObject(t) {
		return
	}
	name := w.c.TypeToString(t)
	if !w.seen[name] {
		w.seen[name] = true
		w.found = append(w.found, name)
	}
}

// hostObject reports whether t is the host base type or derives from it
// through its declared base types.
func (w *dependencyWalker) hostObject(t *checker.Type) bool {
	if v, ok := w.isHost[t]; ok {
		return v
	}
	// Cyclic heritage resolves to false.
	w.isHost[t] = false
	result := w.c.TypeToString(t) == w.base
	if !result {
		for _, b := range w.c.BaseTypes(t) {
			if w.hostObject(b) {
				result = true
				break
			}
		}
	}
	w.isHost[t] = result
	return result
}
