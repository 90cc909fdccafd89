package tsuparser

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/checker"
)

// unionSeparator splits a rendered type into its members.
const unionSeparator = " | "

// extractExports collects the exported top-level functions of f that have a
// body. A function whose return type is a union is left out and reported in
// the returned errors instead.
func extractExports(c *checker.Checker, f *checker.SourceFile) ([]ExportedFunction, []string) {
	var exports []ExportedFunction
	var errs []string
	for _, stmt := range f.Statements() {
		if stmt.Type() != "export_statement" {
			continue
		}
		decl := stmt.ChildByFieldName("declaration")
		if decl == nil || decl.Type() != "function_declaration" {
			continue
		}
		if decl.ChildByFieldName("body") == nil || decl.ChildByFieldName("name") == nil {
			continue
		}
		fn, rejection := extractFunction(c, f, stmt, decl)
		if rejection != "" {
			errs = append(errs, rejection)
			continue
		}
		exports = append(exports, fn)
	}
	return exports, errs
}

// extractFunction describes decl, positioned at stmt (the export statement
// that carries the export keyword). A non-empty rejection is the
// diagnostic for a function that cannot be exported.
func extractFunction(c *checker.Checker, f *checker.SourceFile, stmt, decl *sitter.Node) (fn ExportedFunction, rejection string) {
	sig := c.SignatureOf(f, decl)
	rendered := c.TypeToString(c.ReturnTypeOfSignature(sig))
	returnTypes := parseType(rendered)

	line, character := f.Position(f.StartWithComments(stmt))
	line, character = line+1, character+1

	if len(returnTypes) > 1 {
		return ExportedFunction{}, fmt.Sprintf("[TSU] %s(%d,%d): Disallowed union return type (%s)",
			filepath.Base(f.Path), line, character, rendered)
	}

	params := []Parameter{}
	for _, p := range parameterNodes(decl) {
		params = append(params, extractParameter(c, f, p))
	}
	return ExportedFunction{
		Name:        f.NodeText(decl.ChildByFieldName("name")),
		Parameters:  params,
		ReturnTypes: returnTypes,
		Line:        line,
		Character:   character,
	}, ""
}

func parameterNodes(decl *sitter.Node) []*sitter.Node {
	list := decl.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(list.NamedChildCount()); i++ {
		switch p := list.NamedChild(i); p.Type() {
		case "required_parameter", "optional_parameter":
			out = append(out, p)
		}
	}
	return out
}

// extractParameter types p from its annotation; an unannotated parameter
// is any. A parameter with an initializer is never optional.
func extractParameter(c *checker.Checker, f *checker.SourceFile, p *sitter.Node) Parameter {
	t := c.AnyType()
	if ann := p.ChildByFieldName("type"); ann != nil {
		if at, err := c.TypeAtLocation(f, ann); err == nil {
			t = at
		}
	}
	optional := false
	if p.ChildByFieldName("value") == nil {
		optional = c.IsOptionalParameter(f, p)
	}
	return Parameter{
		Name:     f.NodeText(p.ChildByFieldName("pattern")),
		Types:    parseType(c.TypeToString(t)),
		Optional: optional,
	}
}

// parseType splits a rendered type on the union separator and strips the
// array suffixes of each member.
func parseType(rendered string) []TypeDescriptor {
	parts := strings.Split(rendered, unionSeparator)
	out := make([]TypeDescriptor, 0, len(parts))
	for _, part := range parts {
		out = append(out, TypeDescriptor{
			Name:       strings.ReplaceAll(part, "[]", ""),
			Dimensions: strings.Count(part, "[]"),
		})
	}
	return out
}
