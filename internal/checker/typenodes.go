package checker

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// firstTypeChild unwraps annotation-like wrappers (": T", "extends T",
// "= T") to the type node they hold.
func firstTypeChild(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "type_annotation", "opting_type_annotation", "omitting_type_annotation",
			"constraint", "default_type", "parenthesized_type":
			named := namedChildren(n)
			if len(named) == 0 {
				return nil
			}
			n = named[0]
		default:
			return n
		}
	}
	return nil
}

func (c *Checker) typeArguments(f *SourceFile, list *sitter.Node) []*Type {
	var out []*Type
	for _, n := range namedChildren(list) {
		if n.Type() == "comment" {
			continue
		}
		out = append(out, c.typeFromTypeNode(f, n))
	}
	return out
}

// typeFromTypeNode resolves a type annotation. Unsupported constructs
// resolve to any.
func (c *Checker) typeFromTypeNode(f *SourceFile, n *sitter.Node) *Type {
	n = firstTypeChild(n)
	if n == nil {
		return c.anyType
	}
	key := exprKey{file: f, key: keyOf(n)}
	if t, ok := c.typeNodes[key]; ok {
		return t
	}
	t := c.resolveTypeNode(f, n)
	c.typeNodes[key] = t
	return t
}

func (c *Checker) resolveTypeNode(f *SourceFile, n *sitter.Node) *Type {
	switch n.Type() {
	case "predefined_type":
		return c.predefined(f.NodeText(n))
	case "literal_type":
		return c.literalTypeNode(f, n)
	case "type_identifier", "identifier":
		name := f.NodeText(n)
		sym := c.resolveName(f, n, name, MeaningType)
		if sym == nil {
			return c.anyType
		}
		return c.typeReference(sym, nil)
	case "nested_type_identifier":
		return c.typeReference(c.resolveQualified(f, n, MeaningType), nil)
	case "generic_type":
		name := n.ChildByFieldName("name")
		if name == nil {
			return c.anyType
		}
		args := c.typeArguments(f, n.ChildByFieldName("type_arguments"))
		var sym *Symbol
		if name.Type() == "nested_type_identifier" {
			sym = c.resolveQualified(f, name, MeaningType)
		} else {
			sym = c.resolveName(f, name, f.NodeText(name), MeaningType)
		}
		return c.typeReference(sym, args)
	case "array_type":
		named := namedChildren(n)
		if len(named) == 0 {
			return c.anyType
		}
		return c.arrayOf(c.typeFromTypeNode(f, named[0]))
	case "readonly_type":
		named := namedChildren(n)
		if len(named) == 0 {
			return c.anyType
		}
		inner := firstTypeChild(named[0])
		switch inner.Type() {
		case "array_type":
			if elems := namedChildren(inner); len(elems) > 0 {
				return c.readonlyArrayOf(c.typeFromTypeNode(f, elems[0]))
			}
		case "tuple_type":
			t := c.tupleFromNode(f, inner)
			t.Readonly = true
			return t
		}
		return c.typeFromTypeNode(f, inner)
	case "tuple_type":
		return c.tupleFromNode(f, n)
	case "union_type":
		var ms []*Type
		for _, m := range namedChildren(n) {
			ms = append(ms, c.typeFromTypeNode(f, m))
		}
		return c.union(ms...)
	case "intersection_type":
		var ms []*Type
		for _, m := range namedChildren(n) {
			ms = append(ms, c.typeFromTypeNode(f, m))
		}
		return c.intersection(ms...)
	case "function_type", "constructor_type", "object_type":
		t := c.newType(TypeObject)
		t.Object = ObjectAnonymous
		t.decl = Decl{File: f, Node: n}
		return t
	case "type_query":
		return c.typeQuery(f, n)
	case "index_type_query":
		return c.keyOf(f, n)
	case "lookup_type":
		named := namedChildren(n)
		if len(named) < 2 {
			return c.anyType
		}
		return c.indexedAccess(c.typeFromTypeNode(f, named[0]), c.typeFromTypeNode(f, named[1]))
	case "conditional_type":
		return c.conditional(f, n)
	case "template_literal_type":
		return c.stringType
	case "this_type":
		return c.thisTypeAt(f, n)
	case "type_predicate", "type_predicate_annotation":
		return c.booleanType
	case "asserts", "asserts_annotation":
		return c.voidType
	case "optional_type", "rest_type":
		if named := namedChildren(n); len(named) > 0 {
			return c.typeFromTypeNode(f, named[0])
		}
	}
	return c.anyType
}

func (c *Checker) predefined(name string) *Type {
	switch name {
	case "any":
		return c.anyType
	case "unknown":
		return c.unknownType
	case "string":
		return c.stringType
	case "number":
		return c.numberType
	case "boolean":
		return c.booleanType
	case "bigint":
		return c.bigintType
	case "symbol", "unique symbol":
		return c.symbolType
	case "void":
		return c.voidType
	case "undefined":
		return c.undefinedType
	case "null":
		return c.nullType
	case "never":
		return c.neverType
	case "object":
		return c.objectType
	}
	return c.anyType
}

func (c *Checker) literalTypeNode(f *SourceFile, n *sitter.Node) *Type {
	named := namedChildren(n)
	if len(named) == 0 {
		return c.anyType
	}
	v := named[0]
	switch v.Type() {
	case "string":
		return c.stringLiteral(stringValue(f, v))
	case "number":
		return c.numberLiteral(f.NodeText(v))
	case "true":
		return c.trueType
	case "false":
		return c.falseType
	case "null":
		return c.nullType
	case "undefined":
		return c.undefinedType
	case "unary_expression":
		if arg := v.ChildByFieldName("argument"); arg != nil && arg.Type() == "number" {
			return c.numberLiteral("-" + f.NodeText(arg))
		}
	}
	return c.anyType
}

// typeReference resolves a type-meaning symbol used with optional type
// arguments.
func (c *Checker) typeReference(sym *Symbol, args []*Type) *Type {
	sym = c.resolveAlias(sym)
	if sym == nil {
		return c.anyType
	}
	sym = c.globalMerged(sym)
	switch {
	case sym.Flags&(SymClass|SymInterface) != 0:
		declared := c.DeclaredTypeOf(sym)
		if len(declared.TypeParams) > 0 {
			return c.reference(declared, c.fillTypeArgs(declared.TypeParams, args))
		}
		return declared
	case sym.Flags&SymTypeAlias != 0:
		t := c.DeclaredTypeOf(sym)
		params := c.aliasParams[sym]
		if len(params) == 0 {
			return t
		}
		filled := c.fillTypeArgs(params, args)
		return c.withAlias(c.instantiate(t, newMapper(params, filled)), sym, filled)
	case sym.Flags&SymEnum != 0:
		return c.DeclaredTypeOf(sym)
	case sym.Flags&SymEnumMember != 0:
		return c.TypeOfSymbol(sym)
	case sym.Flags&SymTypeParameter != 0:
		return c.DeclaredTypeOf(sym)
	}
	return c.anyType
}

func (c *Checker) tupleFromNode(f *SourceFile, n *sitter.Node) *Type {
	t := c.newType(TypeObject)
	t.Object = ObjectTuple
	for _, e := range namedChildren(n) {
		optional := false
		switch e.Type() {
		case "comment":
			continue
		case "optional_type":
			optional = true
		case "optional_parameter":
			optional = true
			e = e.ChildByFieldName("type")
		case "required_parameter":
			e = e.ChildByFieldName("type")
		}
		t.Types = append(t.Types, c.typeFromTypeNode(f, e))
		t.Optional = append(t.Optional, optional)
	}
	return t
}

func (c *Checker) typeQuery(f *SourceFile, n *sitter.Node) *Type {
	named := namedChildren(n)
	if len(named) == 0 {
		return c.anyType
	}
	target := named[0]
	switch target.Type() {
	case "identifier":
		sym := c.resolveName(f, target, f.NodeText(target), MeaningValue)
		if sym == nil {
			return c.anyType
		}
		return c.TypeOfSymbol(sym)
	case "member_expression", "nested_identifier":
		if sym := c.resolveQualified(f, target, MeaningValue); sym != nil {
			return c.TypeOfSymbol(sym)
		}
		return c.TypeOfExpression(f, target)
	case "call_expression":
		// typeof import("x")
		if args := target.ChildByFieldName("arguments"); args != nil {
			if spec := childOfType(args, "string"); spec != nil {
				if mod := c.resolveModuleSymbol(f, stringValue(f, spec)); mod != nil {
					return c.TypeOfSymbol(mod)
				}
			}
		}
	}
	return c.anyType
}

// keyOf resolves keyof T to the union of T's known property names.
func (c *Checker) keyOf(f *SourceFile, n *sitter.Node) *Type {
	named := namedChildren(n)
	if len(named) == 0 {
		return c.anyType
	}
	t := c.typeFromTypeNode(f, named[len(named)-1])
	if t.Flags&TypeObject == 0 {
		return c.union(c.stringType, c.numberType, c.symbolType)
	}
	s := c.structure(t)
	if s.stringIndex != nil {
		return c.union(c.stringType, c.numberType)
	}
	var keys []*Type
	for _, name := range s.names {
		keys = append(keys, c.stringLiteral(name))
	}
	if len(keys) == 0 {
		return c.neverType
	}
	return c.union(keys...)
}

func (c *Checker) indexedAccess(obj, index *Type) *Type {
	var out []*Type
	for _, key := range members(index) {
		switch {
		case key.Flags&TypeStringLiteral != 0:
			name := key.Name[1 : len(key.Name)-1]
			if p := c.PropertyOfType(obj, name); p != nil {
				out = append(out, c.TypeOfProperty(p))
				continue
			}
		case key.Flags&(TypeNumber|TypeNumberLiteral) != 0:
			if obj.Flags&TypeObject != 0 && obj.Object == ObjectTuple && key.Flags&TypeNumberLiteral != 0 {
				if p := c.PropertyOfType(obj, key.Name); p != nil {
					out = append(out, c.TypeOfProperty(p))
					continue
				}
			}
			if e := c.elementType(obj); e != nil {
				out = append(out, e)
				continue
			}
			if obj.Flags&TypeObject != 0 {
				if idx := c.structure(obj).numberIndex; idx != nil {
					out = append(out, idx)
					continue
				}
			}
		}
		if obj.Flags&TypeObject != 0 {
			if idx := c.structure(obj).stringIndex; idx != nil {
				out = append(out, idx)
				continue
			}
		}
		return c.anyType
	}
	if len(out) == 0 {
		return c.anyType
	}
	return c.union(out...)
}

// conditional evaluates a conditional type whose check type is concrete.
// Conditional types over type parameters stay unresolved and become any.
func (c *Checker) conditional(f *SourceFile, n *sitter.Node) *Type {
	check := c.typeFromTypeNode(f, n.ChildByFieldName("left"))
	ext := c.typeFromTypeNode(f, n.ChildByFieldName("right"))
	if c.containsTypeParameter(check, 0) || c.containsTypeParameter(ext, 0) {
		return c.anyType
	}
	if c.isAssignableTo(check, ext) {
		return c.typeFromTypeNode(f, n.ChildByFieldName("consequence"))
	}
	return c.typeFromTypeNode(f, n.ChildByFieldName("alternative"))
}

func (c *Checker) containsTypeParameter(t *Type, depth int) bool {
	if depth > 4 {
		return false
	}
	switch {
	case t.Flags&TypeParameter != 0:
		return true
	case t.Flags&(TypeUnion|TypeIntersection) != 0:
		for _, m := range t.Types {
			if c.containsTypeParameter(m, depth+1) {
				return true
			}
		}
	case t.Flags&TypeObject != 0 && t.Object == ObjectReference:
		for _, a := range t.TypeArgs {
			if c.containsTypeParameter(a, depth+1) {
				return true
			}
		}
	}
	return false
}

// isAssignableTo is a coarse assignability test used where exact
// compatibility does not matter: primitives by kind, objects by
// derivation.
func (c *Checker) isAssignableTo(source, target *Type) bool {
	switch {
	case source == target:
		return true
	case target.Flags&(TypeAny|TypeUnknown) != 0, source.Flags&TypeAny != 0:
		return true
	case source.Flags&TypeNever != 0:
		return true
	case source.Flags&TypeUnion != 0:
		for _, m := range source.Types {
			if !c.isAssignableTo(m, target) {
				return false
			}
		}
		return true
	case target.Flags&TypeUnion != 0:
		for _, m := range target.Types {
			if c.isAssignableTo(source, m) {
				return true
			}
		}
		return false
	case source.Flags&typeNullable != 0 && !c.strictNulls:
		return true
	case source.Flags&TypeUndefined != 0 && target.Flags&TypeVoid != 0:
		return true
	case source.Flags&(TypeStringLiteral|TypeNumberLiteral|TypeBooleanLiteral|TypeBigIntLiteral) != 0 &&
		source.Flags&TypeEnumLiteral == 0:
		return c.widen(source) == target || (source.Flags&TypeBooleanLiteral != 0 && target == c.booleanType)
	case source.Flags&TypeEnumLiteral != 0:
		return source.enumOf == target || (source.Flags&TypeNumberLiteral != 0 && target == c.numberType)
	case source.Flags&TypeEnum != 0:
		return target == c.numberType
	case target.Flags&TypeNonPrimitive != 0:
		return source.Flags&TypeObject != 0
	case source.Flags&TypeObject != 0 && target.Flags&TypeObject != 0:
		if c.isDerivedFrom(source, target) {
			return true
		}
		return !c.isNominal(target)
	}
	return false
}

// isNominal reports whether object assignability to t is worth checking:
// classes and interfaces declared outside the default library.
func (c *Checker) isNominal(t *Type) bool {
	if !t.IsClassOrInterface() || t.Symbol == nil {
		return false
	}
	for _, d := range t.Symbol.Decls {
		if c.program.IsLibFile(d.File) || d.File.IsDeclaration {
			return false
		}
	}
	return true
}

// thisTypeAt resolves the this type inside a class or interface body.
func (c *Checker) thisTypeAt(f *SourceFile, n *sitter.Node) *Type {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "class_declaration", "abstract_class_declaration", "interface_declaration", "class":
			if sym := c.symbolOfDeclaration(f, p); sym != nil {
				return c.instanceType(c.DeclaredTypeOf(sym))
			}
			return c.anyType
		}
	}
	return c.anyType
}
