package checker

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/diagnostic"
)

// OptionsDiagnostics reports conflicting compiler options.
func (p *Program) OptionsDiagnostics() []Diagnostic {
	o := p.options
	var out []Diagnostic
	conflict := func(a, b string) {
		out = append(out, diagnostic.Global(5053, "Option '%s' cannot be specified with option '%s'.", a, b))
	}
	if o.SourceMap && o.InlineSourceMap {
		conflict("sourceMap", "inlineSourceMap")
	}
	if o.NoEmit && o.EmitDeclarationOnly {
		conflict("emitDeclarationOnly", "noEmit")
	}
	if o.InlineSources && !o.SourceMap && !o.InlineSourceMap {
		out = append(out, diagnostic.Global(5051,
			"Option 'inlineSources' can only be used when either option '--inlineSourceMap' or option '--sourceMap' is provided."))
	}
	if o.SourceRoot != "" && !o.SourceMap && !o.InlineSourceMap {
		out = append(out, diagnostic.Global(5051,
			"Option 'sourceRoot' can only be used when either option '--inlineSourceMap' or option '--sourceMap' is provided."))
	}
	return out
}

// SyntacticDiagnostics reports parse errors: one per error node and one per
// token the parser had to insert.
func (p *Program) SyntacticDiagnostics(f *SourceFile) []Diagnostic {
	var out []Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			out = append(out, f.DiagnosticAt(n, 1005, "'%s' expected.", n.Type()))
			return
		case n.Type() == "ERROR":
			out = append(out, f.DiagnosticAt(n, 1128, "Declaration or statement expected."))
			return
		}
		for _, c := range children(n) {
			walk(c)
		}
	}
	if f.root.HasError() {
		walk(f.root)
	}
	sortDiagnostics(out)
	return out
}

// SemanticDiagnostics type-checks f. Declaration files are not checked.
func (c *Checker) SemanticDiagnostics(f *SourceFile) []Diagnostic {
	if f.IsDeclaration || c.program.IsLibFile(f) {
		return nil
	}
	v := &semanticVisitor{c: c, f: f}
	v.walk(f.root)
	sortDiagnostics(v.out)
	return v.out
}

// PreEmitDiagnostics returns option, syntactic and semantic diagnostics
// for f, in that order.
func (p *Program) PreEmitDiagnostics(f *SourceFile) []Diagnostic {
	out := p.OptionsDiagnostics()
	syntax := p.SyntacticDiagnostics(f)
	out = append(out, syntax...)
	if len(syntax) == 0 {
		out = append(out, p.Checker().SemanticDiagnostics(f)...)
	}
	return out
}

func sortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Line != ds[j].Line {
			return ds[i].Line < ds[j].Line
		}
		return ds[i].Character < ds[j].Character
	})
}

type semanticVisitor struct {
	c   *Checker
	f   *SourceFile
	out []Diagnostic
}

func (v *semanticVisitor) report(n *sitter.Node, code int, format string, args ...any) {
	v.out = append(v.out, v.f.DiagnosticAt(n, code, format, args...))
}

func (v *semanticVisitor) walk(n *sitter.Node) {
	switch n.Type() {
	case "ERROR":
		return
	case "import_statement":
		v.checkImport(n)
		return
	case "export_statement":
		if source := n.ChildByFieldName("source"); source != nil {
			v.checkModuleSpecifier(source)
			return
		}
	case "identifier", "shorthand_property_identifier":
		v.checkValueReference(n)
	case "type_identifier":
		v.checkTypeReference(n)
	case "nested_type_identifier":
		v.checkQualifiedType(n)
		return
	case "conditional_type":
		// Names introduced by infer clauses are not tracked.
		return
	case "variable_declarator":
		v.checkInitializer(n)
	case "return_statement":
		v.checkReturn(n)
	case "call_expression", "new_expression":
		v.checkArgumentCount(n)
	case "member_expression":
		v.checkProperty(n)
	case "function_declaration", "generator_function_declaration", "method_definition",
		"function_expression", "function", "generator_function", "arrow_function":
		v.checkImplicitAny(n)
		v.checkMissingReturn(n)
	}
	for _, child := range namedChildren(n) {
		v.walk(child)
	}
}

func (v *semanticVisitor) checkModuleSpecifier(source *sitter.Node) *Symbol {
	spec := stringValue(v.f, source)
	mod := v.c.resolveModuleSymbol(v.f, spec)
	if mod == nil {
		v.report(source, 2307, "Cannot find module '%s' or its corresponding type declarations.", spec)
	}
	return mod
}

func (v *semanticVisitor) checkImport(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if req := childOfType(n, "import_require_clause"); req != nil {
		if s := req.ChildByFieldName("source"); s != nil {
			v.checkModuleSpecifier(s)
		}
		return
	}
	if source == nil {
		return
	}
	mod := v.checkModuleSpecifier(source)
	if mod == nil || mod.Exports == nil {
		return
	}
	exports := v.c.exportsOfModule(mod)
	if exports.Get("export=") != nil {
		return
	}
	spec := stringValue(v.f, source)
	clause := childOfType(n, "import_clause")
	for _, part := range namedChildren(clause) {
		switch part.Type() {
		case "identifier":
			if exports.Get("default") == nil {
				v.report(part, 1192, "Module '\"%s\"' has no default export.", spec)
			}
		case "named_imports":
			for _, s := range namedChildren(part) {
				name := s.ChildByFieldName("name")
				if s.Type() != "import_specifier" || name == nil {
					continue
				}
				imported := v.f.NodeText(name)
				if name.Type() == "string" {
					imported = stringValue(v.f, name)
				}
				if exports.Get(imported) == nil {
					v.report(name, 2305, "Module '\"%s\"' has no exported member '%s'.", spec, imported)
				}
			}
		}
	}
}

// valueReferenceParents lists where an identifier reads a value.
var valueReferenceParents = map[string]string{
	"call_expression":                 "function",
	"new_expression":                  "constructor",
	"member_expression":               "object",
	"subscript_expression":            "",
	"arguments":                       "",
	"binary_expression":               "",
	"unary_expression":                "",
	"update_expression":               "",
	"ternary_expression":              "",
	"assignment_expression":           "",
	"augmented_assignment_expression": "",
	"return_statement":                "",
	"expression_statement":            "",
	"array":                           "",
	"spread_element":                  "",
	"parenthesized_expression":        "",
	"await_expression":                "",
	"template_substitution":           "",
	"as_expression":                   "",
	"satisfies_expression":            "",
	"non_null_expression":             "",
	"pair":                            "value",
	"variable_declarator":             "value",
	"throw_statement":                 "",
	"sequence_expression":             "",
	"arrow_function":                  "body",
	"extends_clause":                  "value",
	"computed_property_name":          "",
	"switch_statement":                "value",
	"switch_case":                     "value",
	"object":                          "",
	"type_query":                      "",
	"yield_expression":                "",
	"required_parameter":              "value",
	"optional_parameter":              "value",
	"public_field_definition":         "value",
}

func (v *semanticVisitor) checkValueReference(n *sitter.Node) {
	parent := n.Parent()
	if parent == nil {
		return
	}
	field, ok := valueReferenceParents[parent.Type()]
	if !ok {
		return
	}
	if field != "" && !sameNode(parent.ChildByFieldName(field), n) {
		return
	}
	if parent.Type() == "object" && n.Type() != "shorthand_property_identifier" {
		return
	}
	name := v.f.NodeText(n)
	switch name {
	case "undefined", "arguments", "globalThis":
		return
	}
	if v.c.resolveName(v.f, n, name, MeaningValue) == nil {
		v.report(n, 2304, "Cannot find name '%s'.", name)
	}
}

func (v *semanticVisitor) checkTypeReference(n *sitter.Node) {
	parent := n.Parent()
	if parent == nil {
		return
	}
	switch parent.Type() {
	case "class_declaration", "abstract_class_declaration", "class", "interface_declaration",
		"type_alias_declaration", "type_parameter":
		if sameNode(parent.ChildByFieldName("name"), n) {
			return
		}
	case "infer_type", "nested_type_identifier", "mapped_type_clause", "type_predicate":
		return
	}
	for p := parent; p != nil; p = p.Parent() {
		if p.Type() == "index_signature" && childOfType(p, "mapped_type_clause") != nil {
			return
		}
	}
	name := v.f.NodeText(n)
	if v.c.resolveName(v.f, n, name, MeaningType) == nil {
		v.report(n, 2304, "Cannot find name '%s'.", name)
	}
}

func (v *semanticVisitor) checkQualifiedType(n *sitter.Node) {
	left := n.ChildByFieldName("module")
	right := n.ChildByFieldName("name")
	if left == nil || right == nil {
		return
	}
	ns := v.c.resolveQualified(v.f, left, MeaningNamespace)
	if ns == nil {
		root := left
		for root.Type() == "nested_identifier" || root.Type() == "member_expression" {
			named := namedChildren(root)
			if len(named) == 0 {
				break
			}
			root = named[0]
		}
		v.report(root, 2503, "Cannot find namespace '%s'.", v.f.NodeText(root))
		return
	}
	if ns.Exports == nil {
		return
	}
	if v.c.exportsOfModule(ns).Get(v.f.NodeText(right)) == nil {
		v.report(right, 2694, "Namespace '%s' has no exported member '%s'.", v.f.NodeText(left), v.f.NodeText(right))
	}
}

// isPrimitiveOnly reports whether every member of t is a primitive.
func isPrimitiveOnly(t *Type) bool {
	for _, m := range members(t) {
		if m.Flags&typePrimitive == 0 {
			return false
		}
	}
	return true
}

func hasLiteralMember(t *Type) bool {
	for _, m := range members(t) {
		if m.Flags&(TypeStringLiteral|TypeNumberLiteral|TypeBooleanLiteral|TypeBigIntLiteral|TypeEnumLiteral) != 0 {
			return true
		}
	}
	return false
}

// unassignable returns the source type to show when primitive source is
// not assignable to primitive target, or nil when it is. Object types are
// not compared.
func (v *semanticVisitor) unassignable(source, target *Type) *Type {
	if !isPrimitiveOnly(source) || !isPrimitiveOnly(target) {
		return nil
	}
	if v.c.isAssignableTo(source, target) {
		return nil
	}
	if hasLiteralMember(target) {
		return source
	}
	return v.c.widen(source)
}

func (v *semanticVisitor) checkAssignable(at *sitter.Node, source, target *Type) {
	if shown := v.unassignable(source, target); shown != nil {
		v.report(at, 2322, "Type '%s' is not assignable to type '%s'.", v.c.TypeToString(shown), v.c.TypeToString(target))
	}
}

func (v *semanticVisitor) checkInitializer(n *sitter.Node) {
	ann := n.ChildByFieldName("type")
	value := n.ChildByFieldName("value")
	name := n.ChildByFieldName("name")
	if ann == nil || value == nil || name == nil {
		return
	}
	v.checkAssignable(name, v.c.TypeOfExpression(v.f, value), v.c.typeFromTypeNode(v.f, ann))
}

func (v *semanticVisitor) checkReturn(n *sitter.Node) {
	var fn *sitter.Node
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := functionLikeKinds[p.Type()]; ok {
			fn = p
			break
		}
	}
	if fn == nil || hasToken(fn, "async") || hasToken(fn, "*") || fn.Type() == "generator_function_declaration" {
		return
	}
	rt := fn.ChildByFieldName("return_type")
	if rt == nil || rt.Type() != "type_annotation" {
		return
	}
	target := v.c.typeFromTypeNode(v.f, rt)
	var expr *sitter.Node
	for _, x := range namedChildren(n) {
		if x.Type() != "comment" {
			expr = x
			break
		}
	}
	if expr == nil {
		return
	}
	v.checkAssignable(n, v.c.TypeOfExpression(v.f, expr), target)
}

var functionLikeKinds = map[string]struct{}{
	"function_declaration":           {},
	"generator_function_declaration": {},
	"function_expression":            {},
	"function":                       {},
	"generator_function":             {},
	"arrow_function":                 {},
	"method_definition":              {},
}

func (v *semanticVisitor) checkArgumentCount(n *sitter.Node) {
	var calleeNode *sitter.Node
	var sigs []*Signature
	if n.Type() == "new_expression" {
		calleeNode = n.ChildByFieldName("constructor")
		if calleeNode == nil {
			return
		}
		sigs = v.c.ConstructSignatures(v.c.TypeOfExpression(v.f, calleeNode))
	} else {
		calleeNode = n.ChildByFieldName("function")
		if calleeNode == nil || calleeNode.Type() == "import" || calleeNode.Type() == "super" {
			return
		}
		callee := v.c.removeNullable(v.c.TypeOfExpression(v.f, calleeNode))
		sigs = v.c.CallSignatures(v.c.apparentType(callee))
	}
	if len(sigs) != 1 {
		return
	}
	sig := sigs[0]
	args := argumentNodes(n)
	for _, a := range args {
		if a.Type() == "spread_element" {
			return
		}
	}
	if n.ChildByFieldName("arguments") == nil && n.Type() == "new_expression" {
		args = nil
	}
	argc := len(args)
	max := len(sig.Params)
	rest := sig.HasRest()
	if argc >= sig.MinArgs && (rest || argc <= max) {
		v.checkArgumentTypes(sig, args)
		return
	}
	var at *sitter.Node
	if argc > max {
		at = args[max]
	} else {
		at = n
	}
	switch {
	case rest:
		v.report(at, 2555, "Expected at least %d arguments, but got %d.", sig.MinArgs, argc)
	case sig.MinArgs == max:
		v.report(at, 2554, "Expected %d arguments, but got %d.", max, argc)
	default:
		v.report(at, 2554, "Expected %d-%d arguments, but got %d.", sig.MinArgs, max, argc)
	}
}

// checkArgumentTypes reports TS2345 for primitive arguments of a
// non-generic signature. Undefined may always be passed to an optional
// parameter.
func (v *semanticVisitor) checkArgumentTypes(sig *Signature, args []*sitter.Node) {
	if len(sig.TypeParams) > 0 {
		return
	}
	for i, arg := range args {
		target := v.c.paramTypeAt(sig, i)
		if target == nil {
			return
		}
		source := v.c.TypeOfExpression(v.f, arg)
		if i < len(sig.Params) && sig.Params[i].Optional && hasUndefinedMember(source) {
			continue
		}
		if shown := v.unassignable(source, target); shown != nil {
			v.report(arg, 2345, "Argument of type '%s' is not assignable to parameter of type '%s'.",
				v.c.TypeToString(shown), v.c.TypeToString(target))
		}
	}
}

func hasUndefinedMember(t *Type) bool {
	for _, m := range members(t) {
		if m.Flags&TypeUndefined != 0 {
			return true
		}
	}
	return false
}

// primitiveMemberOwner lists the primitives whose members are looked up on
// their wrapper interface. Enums are left out.
const primitiveMemberOwner = TypeString | TypeNumber | TypeBoolean | TypeBigInt | TypeESSymbol |
	TypeStringLiteral | TypeNumberLiteral | TypeBooleanLiteral | TypeBigIntLiteral

func (v *semanticVisitor) checkProperty(n *sitter.Node) {
	prop := n.ChildByFieldName("property")
	object := n.ChildByFieldName("object")
	if prop == nil || object == nil || prop.Type() != "property_identifier" {
		return
	}
	if hasToken(n, "?.") || childOfType(n, "optional_chain") != nil {
		return
	}
	t := v.c.TypeOfExpression(v.f, object)
	name := v.f.NodeText(prop)
	if t.Flags&TypeUnion == 0 && t.Flags&primitiveMemberOwner != 0 && t.Flags&(TypeEnum|TypeEnumLiteral) == 0 {
		if v.c.apparentType(t) != t && v.c.PropertyOfType(t, name) == nil {
			v.report(prop, 2339, "Property '%s' does not exist on type '%s'.", name, v.c.TypeToString(t))
		}
		return
	}
	target := t
	if t.Flags&TypeObject != 0 && t.Object == ObjectReference && t.Target != nil {
		target = t.Target
	}
	if !v.c.isNominal(target) {
		return
	}
	s := v.c.structure(t)
	if s.stringIndex != nil {
		return
	}
	if v.c.PropertyOfType(t, name) == nil {
		v.report(prop, 2339, "Property '%s' does not exist on type '%s'.", name, v.c.TypeToString(t))
	}
}

func (v *semanticVisitor) checkImplicitAny(fn *sitter.Node) {
	if !v.c.program.options.ImplicitAnyErrors() {
		return
	}
	if isFunctionExpression(fn.Type()) && v.c.contextualSignature(v.f, fn) != nil {
		return
	}
	if p := fn.ChildByFieldName("parameter"); p != nil {
		v.report(p, 7006, "Parameter '%s' implicitly has an 'any' type.", v.f.NodeText(p))
		return
	}
	for _, p := range namedChildren(fn.ChildByFieldName("parameters")) {
		if p.Type() != "required_parameter" && p.Type() != "optional_parameter" {
			continue
		}
		if p.ChildByFieldName("type") != nil || p.ChildByFieldName("value") != nil {
			continue
		}
		pattern := p.ChildByFieldName("pattern")
		if pattern == nil || pattern.Type() == "this" {
			continue
		}
		switch pattern.Type() {
		case "identifier":
			v.report(p, 7006, "Parameter '%s' implicitly has an 'any' type.", v.f.NodeText(pattern))
		case "rest_pattern":
			if named := namedChildren(pattern); len(named) > 0 {
				v.report(p, 7019, "Rest parameter '%s' implicitly has an 'any[]' type.", v.f.NodeText(named[0]))
			}
		}
	}
}

// checkMissingReturn reports TS2355 when a function with a declared return
// type has no return statement and its end is reachable.
func (v *semanticVisitor) checkMissingReturn(fn *sitter.Node) {
	body := fn.ChildByFieldName("body")
	rt := fn.ChildByFieldName("return_type")
	if body == nil || body.Type() != "statement_block" || rt == nil || rt.Type() != "type_annotation" {
		return
	}
	if hasToken(fn, "async") || hasToken(fn, "*") || fn.Type() == "generator_function_declaration" ||
		fn.Type() == "generator_function" {
		return
	}
	for _, m := range members(v.c.typeFromTypeNode(v.f, rt)) {
		if m.Flags&(TypeAny|TypeUnknown|TypeVoid|TypeUndefined|TypeNever) != 0 {
			return
		}
	}
	if containsReturn(body) || !v.endReachable(body) {
		return
	}
	at := rt
	for _, x := range namedChildren(rt) {
		if x.Type() != "comment" {
			at = x
			break
		}
	}
	v.report(at, 2355, "A function whose declared type is neither 'undefined', 'void', nor 'any' must return a value.")
}

// containsReturn reports whether n holds a return statement outside nested
// functions and classes.
func containsReturn(n *sitter.Node) bool {
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "return_statement":
			return true
		case "class_declaration", "class", "abstract_class_declaration":
			continue
		}
		if _, ok := functionLikeKinds[c.Type()]; ok {
			continue
		}
		if containsReturn(c) {
			return true
		}
	}
	return false
}

// endReachable reports whether control can run off the end of block. Only
// a trailing throw or an unconditional loop ends it.
func (v *semanticVisitor) endReachable(block *sitter.Node) bool {
	var last *sitter.Node
	for _, c := range namedChildren(block) {
		if c.Type() != "comment" {
			last = c
		}
	}
	if last == nil {
		return true
	}
	switch last.Type() {
	case "throw_statement":
		return false
	case "while_statement":
		cond := last.ChildByFieldName("condition")
		return cond == nil || strings.Trim(v.f.NodeText(cond), "() \t") != "true"
	case "for_statement":
		cond := last.ChildByFieldName("condition")
		return cond != nil && cond.Type() != "empty_statement"
	}
	return true
}
