package checker

import (
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrNoType is returned by TypeAtLocation for nodes that have no type, such
// as keywords and punctuation.
var ErrNoType = errors.New("node has no type")

// TypeOfSymbol returns the type of a value-meaning symbol.
func (c *Checker) TypeOfSymbol(sym *Symbol) *Type {
	sym = c.resolveAlias(sym)
	if sym == nil {
		return c.anyType
	}
	sym = c.globalMerged(sym)
	if t, ok := c.valueTypes[sym]; ok {
		return t
	}
	if c.resolving[sym] {
		return c.anyType
	}
	c.resolving[sym] = true
	t := c.computeTypeOfSymbol(sym)
	delete(c.resolving, sym)
	c.valueTypes[sym] = t
	return t
}

func (c *Checker) computeTypeOfSymbol(sym *Symbol) *Type {
	switch {
	case sym.Flags&SymModule != 0:
		t := c.newType(TypeObject)
		t.Object = ObjectAnonymous
		t.Module = sym.Name
		t.Symbol = sym
		return t
	case sym.Flags&SymClass != 0:
		t := c.newType(TypeObject)
		t.Object = ObjectAnonymous
		t.Static = true
		t.Name = sym.Name
		t.Symbol = sym
		return t
	case sym.Flags&SymEnumMember != 0:
		return c.enumMemberType(sym)
	case sym.Flags&(SymEnum|SymNamespace) != 0 && sym.Flags&(SymFunction|SymVariable) == 0:
		t := c.newType(TypeObject)
		t.Object = ObjectAnonymous
		t.Name = sym.Name
		t.Symbol = sym
		return t
	case sym.Flags&SymFunction != 0:
		return c.functionTypeOf(sym)
	case sym.Flags&(SymVariable|SymParameter) != 0:
		return c.typeOfVariable(sym)
	}
	return c.anyType
}

// functionTypeOf builds the type of a function from all of its overloads,
// plus the exports of a merged namespace.
func (c *Checker) functionTypeOf(sym *Symbol) *Type {
	t := c.newType(TypeObject)
	t.Object = ObjectAnonymous
	s := newStructured()
	var nodes []Decl
	for _, d := range sym.Decls {
		switch d.Node.Type() {
		case "function_declaration", "generator_function_declaration", "function_signature",
			"function_expression", "function", "generator_function":
			nodes = append(nodes, d)
		}
	}
	if len(nodes) > 1 {
		var sigsOnly []Decl
		for _, d := range nodes {
			if d.Node.ChildByFieldName("body") == nil {
				sigsOnly = append(sigsOnly, d)
			}
		}
		if len(sigsOnly) > 0 {
			nodes = sigsOnly
		}
	}
	for _, d := range nodes {
		s.call = append(s.call, c.signatureOf(d.File, d.Node))
	}
	if sym.Exports != nil {
		for _, name := range sym.Exports.Names() {
			if exp := sym.Exports.Get(name); exp.Flags.has(MeaningValue) {
				s.add(&Property{Name: name, Symbol: exp})
			}
		}
	}
	if len(nodes) == 1 {
		t.decl = nodes[0]
	}
	t.resolved = s
	return t
}

func (c *Checker) enumMemberType(sym *Symbol) *Type {
	d := sym.FirstDecl()
	enumNode := d.Node.Parent()
	for enumNode != nil && enumNode.Type() != "enum_declaration" {
		enumNode = enumNode.Parent()
	}
	if enumNode == nil {
		return c.anyType
	}
	enumSym := c.symbolOfDeclaration(d.File, enumNode)
	if enumSym == nil {
		return c.anyType
	}
	enumType := c.DeclaredTypeOf(enumSym)
	flags := TypeEnumLiteral | TypeNumberLiteral
	if d.Node.Type() == "enum_assignment" {
		if v := d.Node.ChildByFieldName("value"); v != nil && (v.Type() == "string" || v.Type() == "template_string") {
			flags = TypeEnumLiteral | TypeStringLiteral
		}
	}
	t := c.literal(flags, enumSym.Name+"."+sym.Name)
	t.enumOf = enumType
	return t
}

func (c *Checker) typeOfVariable(sym *Symbol) *Type {
	d := sym.FirstDecl()
	f, n := d.File, d.Node
	if n == nil {
		return c.anyType
	}
	switch n.Type() {
	case "variable_declarator":
		if ann := n.ChildByFieldName("type"); ann != nil {
			return c.typeFromTypeNode(f, ann)
		}
		if v := n.ChildByFieldName("value"); v != nil {
			t := c.TypeOfExpression(f, v)
			if sym.Flags&SymConst != 0 {
				return t
			}
			return c.widenDeclaration(t)
		}
		return c.iterationVariable(f, n)
	case "required_parameter", "optional_parameter":
		return c.typeOfParameter(f, n)
	case "identifier", "shorthand_property_identifier_pattern":
		parent := n.Parent()
		if parent != nil && (parent.Type() == "arrow_function") {
			sig := c.signatureOf(f, parent)
			if len(sig.Params) > 0 {
				return sig.Params[0].Type
			}
			return c.anyType
		}
		if parent != nil && parent.Type() == "for_in_statement" {
			return c.iterationVariable(f, parent)
		}
		if parent != nil && parent.Type() == "catch_clause" {
			return c.anyType
		}
		return c.typeOfBindingElement(f, n)
	case "export_statement":
		if v := n.ChildByFieldName("value"); v != nil {
			return c.widenDeclaration(c.TypeOfExpression(f, v))
		}
		if named := namedChildren(n); len(named) > 0 {
			return c.widenDeclaration(c.TypeOfExpression(f, named[len(named)-1]))
		}
	}
	return c.anyType
}

// iterationVariable types the variable of a for-in or for-of loop.
func (c *Checker) iterationVariable(f *SourceFile, n *sitter.Node) *Type {
	loop := n
	for loop != nil && loop.Type() != "for_in_statement" {
		loop = loop.Parent()
	}
	if loop == nil {
		return c.anyType
	}
	if hasToken(loop, "in") {
		return c.stringType
	}
	right := loop.ChildByFieldName("right")
	if right == nil {
		return c.anyType
	}
	t := c.TypeOfExpression(f, right)
	if e := c.elementType(t); e != nil {
		return e
	}
	if t.Flags&(TypeString|TypeStringLiteral) != 0 {
		return c.stringType
	}
	return c.anyType
}

func (c *Checker) typeOfParameter(f *SourceFile, p *sitter.Node) *Type {
	list := p.Parent()
	if list == nil || list.Parent() == nil {
		return c.anyType
	}
	sig := c.signatureOf(f, list.Parent())
	for _, param := range sig.Params {
		if sameNode(param.Node, p) {
			return param.Type
		}
	}
	return c.anyType
}

// typeOfBindingElement types an identifier inside a destructuring pattern
// by walking from the declaration's type down the pattern.
func (c *Checker) typeOfBindingElement(f *SourceFile, id *sitter.Node) *Type {
	var path []*sitter.Node
	n := id
	for n.Parent() != nil {
		parent := n.Parent()
		switch parent.Type() {
		case "object_pattern", "array_pattern", "pair_pattern", "rest_pattern",
			"object_assignment_pattern", "assignment_pattern":
			path = append(path, n)
			n = parent
			continue
		}
		break
	}
	var root *Type
	switch owner := n.Parent(); {
	case owner == nil:
		return c.anyType
	case owner.Type() == "variable_declarator":
		if ann := owner.ChildByFieldName("type"); ann != nil {
			root = c.typeFromTypeNode(f, ann)
		} else if v := owner.ChildByFieldName("value"); v != nil {
			root = c.TypeOfExpression(f, v)
		} else {
			root = c.iterationVariable(f, owner)
		}
	case owner.Type() == "required_parameter" || owner.Type() == "optional_parameter":
		root = c.typeOfParameter(f, owner)
	default:
		return c.anyType
	}
	t := root
	pattern := n
	for i := len(path) - 1; i >= 0 && t != nil; i-- {
		child := path[i]
		switch pattern.Type() {
		case "object_pattern":
			var name string
			switch child.Type() {
			case "shorthand_property_identifier_pattern":
				name = f.NodeText(child)
			case "pair_pattern":
				key := child.ChildByFieldName("key")
				name = f.NodeText(key)
				if key != nil && key.Type() == "string" {
					name = stringValue(f, key)
				}
			case "object_assignment_pattern":
				name = f.NodeText(child.ChildByFieldName("left"))
			}
			if name == "" {
				return c.anyType
			}
			p := c.PropertyOfType(t, name)
			if p == nil {
				return c.anyType
			}
			t = c.TypeOfProperty(p)
		case "array_pattern":
			idx := 0
			for _, el := range namedChildren(pattern) {
				if sameNode(el, child) {
					break
				}
				idx++
			}
			if t.Flags&TypeObject != 0 && t.Object == ObjectTuple && idx < len(t.Types) && child.Type() != "rest_pattern" {
				t = t.Types[idx]
			} else if e := c.elementType(t); e != nil {
				if child.Type() == "rest_pattern" {
					t = c.arrayOf(e)
				} else {
					t = e
				}
			} else {
				return c.anyType
			}
		}
		pattern = child
	}
	if t == nil {
		return c.anyType
	}
	return c.widenDeclaration(t)
}

// ---------------------------------------------------------------------------
// Expressions

// TypeOfExpression returns the type of an expression node.
func (c *Checker) TypeOfExpression(f *SourceFile, n *sitter.Node) *Type {
	if n == nil {
		return c.anyType
	}
	key := exprKey{file: f, key: keyOf(n)}
	if t, ok := c.exprTypes[key]; ok {
		return t
	}
	if c.exprBusy[key] {
		return c.anyType
	}
	c.exprBusy[key] = true
	t := c.computeExpression(f, n)
	delete(c.exprBusy, key)
	c.exprTypes[key] = t
	return t
}

func (c *Checker) computeExpression(f *SourceFile, n *sitter.Node) *Type {
	switch n.Type() {
	case "parenthesized_expression", "spread_element":
		if named := namedChildren(n); len(named) > 0 {
			return c.TypeOfExpression(f, named[len(named)-1])
		}
	case "sequence_expression":
		if named := namedChildren(n); len(named) > 0 {
			return c.TypeOfExpression(f, named[len(named)-1])
		}
	case "string":
		return c.stringLiteral(stringValue(f, n))
	case "template_string":
		if childOfType(n, "template_substitution") == nil {
			return c.stringLiteral(stringValue(f, n))
		}
		return c.stringType
	case "number":
		text := f.NodeText(n)
		if strings.HasSuffix(text, "n") && !strings.HasPrefix(text, "0x") {
			return c.literal(TypeBigIntLiteral, text)
		}
		return c.numberLiteral(text)
	case "true":
		return c.trueType
	case "false":
		return c.falseType
	case "null":
		return c.nullType
	case "undefined":
		return c.undefinedType
	case "regex":
		if re := c.globalType("RegExp"); re != nil {
			return re
		}
	case "this":
		return c.thisExpression(f, n)
	case "super":
		if cls := enclosingClass(n); cls != nil {
			if sym := c.symbolOfDeclaration(f, cls); sym != nil {
				if bases := c.BaseTypes(c.DeclaredTypeOf(sym)); len(bases) > 0 {
					return bases[0]
				}
			}
		}
	case "identifier", "shorthand_property_identifier":
		name := f.NodeText(n)
		sym := c.resolveName(f, n, name, MeaningValue)
		if sym == nil {
			if name == "undefined" {
				return c.undefinedType
			}
			return c.anyType
		}
		return c.TypeOfSymbol(sym)
	case "member_expression":
		return c.memberExpression(f, n)
	case "subscript_expression":
		obj := c.TypeOfExpression(f, n.ChildByFieldName("object"))
		index := c.TypeOfExpression(f, n.ChildByFieldName("index"))
		return c.indexedAccess(c.removeNullable(obj), index)
	case "call_expression":
		return c.callExpression(f, n)
	case "new_expression":
		return c.newExpression(f, n)
	case "await_expression":
		if named := namedChildren(n); len(named) > 0 {
			return c.awaited(c.TypeOfExpression(f, named[0]))
		}
	case "as_expression", "type_assertion":
		named := namedChildren(n)
		if len(named) < 2 {
			break
		}
		typeNode := named[len(named)-1]
		expr := named[0]
		if n.Type() == "type_assertion" {
			typeNode, expr = named[0], named[1]
		}
		if f.NodeText(typeNode) == "const" {
			return c.TypeOfExpression(f, expr)
		}
		return c.typeFromTypeNode(f, typeNode)
	case "satisfies_expression":
		if named := namedChildren(n); len(named) > 0 {
			return c.TypeOfExpression(f, named[0])
		}
	case "non_null_expression":
		if named := namedChildren(n); len(named) > 0 {
			return c.removeNullable(c.TypeOfExpression(f, named[0]))
		}
	case "binary_expression":
		return c.binaryExpression(f, n)
	case "assignment_expression":
		return c.TypeOfExpression(f, n.ChildByFieldName("right"))
	case "augmented_assignment_expression":
		return c.widen(c.TypeOfExpression(f, n.ChildByFieldName("left")))
	case "unary_expression":
		return c.unaryExpression(f, n)
	case "update_expression":
		return c.numberType
	case "ternary_expression":
		return c.union(
			c.TypeOfExpression(f, n.ChildByFieldName("consequence")),
			c.TypeOfExpression(f, n.ChildByFieldName("alternative")),
		)
	case "array":
		var elems []*Type
		for _, e := range namedChildren(n) {
			if e.Type() == "comment" {
				continue
			}
			t := c.TypeOfExpression(f, e)
			if e.Type() == "spread_element" {
				if et := c.elementType(t); et != nil {
					t = et
				}
			}
			elems = append(elems, c.widenDeclaration(t))
		}
		if len(elems) == 0 {
			return c.arrayOf(c.anyType)
		}
		return c.arrayOf(c.union(elems...))
	case "object", "arrow_function", "function_expression", "function", "generator_function":
		t := c.newType(TypeObject)
		t.Object = ObjectAnonymous
		t.decl = Decl{File: f, Node: n}
		return t
	case "class":
		return c.TypeOfSymbol(c.classExpressionSymbol(f, n))
	case "yield_expression", "jsx_element", "jsx_self_closing_element", "meta_property", "import":
		return c.anyType
	}
	return c.anyType
}

func (c *Checker) classExpressionSymbol(f *SourceFile, n *sitter.Node) *Symbol {
	if sym := c.symbolOfDeclaration(f, n); sym != nil {
		return sym
	}
	f.scope(n)
	if sym := f.symbolOfDeclaration(n); sym != nil {
		return sym
	}
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()
	sym := &Symbol{Name: "(Anonymous class)", Flags: SymClass, Decls: []Decl{{File: f, Node: n}}}
	f.declSym[keyOf(n)] = sym
	return sym
}

func enclosingClass(n *sitter.Node) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			return p
		}
	}
	return nil
}

func (c *Checker) thisExpression(f *SourceFile, n *sitter.Node) *Type {
	static := false
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_declaration", "generator_function_declaration", "function_expression", "function", "generator_function":
			return c.anyType
		case "method_definition", "public_field_definition":
			static = isStatic(p)
		case "class_declaration", "abstract_class_declaration", "class":
			sym := c.symbolOfDeclaration(f, p)
			if p.Type() == "class" {
				sym = c.classExpressionSymbol(f, p)
			}
			if sym == nil {
				return c.anyType
			}
			if static {
				return c.TypeOfSymbol(sym)
			}
			return c.instanceType(c.DeclaredTypeOf(sym))
		}
	}
	return c.anyType
}

func (c *Checker) memberExpression(f *SourceFile, n *sitter.Node) *Type {
	obj := c.TypeOfExpression(f, n.ChildByFieldName("object"))
	prop := n.ChildByFieldName("property")
	if prop == nil {
		return c.anyType
	}
	name := f.NodeText(prop)
	optional := hasToken(n, "?.") || childOfType(n, "optional_chain") != nil
	base := c.removeNullable(obj)
	var out []*Type
	for _, m := range members(base) {
		if m.Flags&TypeAny != 0 {
			return c.anyType
		}
		if p := c.PropertyOfType(m, name); p != nil {
			t := c.TypeOfProperty(p)
			if p.Optional && c.strictNulls {
				t = c.union(t, c.undefinedType)
			}
			out = append(out, t)
			continue
		}
		if m.Flags&TypeObject != 0 {
			if idx := c.structure(m).stringIndex; idx != nil {
				out = append(out, idx)
				continue
			}
		}
		return c.anyType
	}
	if len(out) == 0 {
		return c.anyType
	}
	t := c.union(out...)
	if optional && base != obj && c.strictNulls {
		t = c.union(t, c.undefinedType)
	}
	return t
}

func (c *Checker) awaited(t *Type) *Type {
	var out []*Type
	for _, m := range members(t) {
		if m.Flags&TypeObject != 0 && m.Object == ObjectReference && m.Target != nil &&
			(m.Target.Name == "Promise" || m.Target.Name == "PromiseLike") && len(m.TypeArgs) == 1 {
			out = append(out, c.awaited(m.TypeArgs[0]))
			continue
		}
		out = append(out, m)
	}
	return c.union(out...)
}

func (c *Checker) binaryExpression(f *SourceFile, n *sitter.Node) *Type {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return c.anyType
	}
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	switch f.NodeText(op) {
	case "+":
		l := c.TypeOfExpression(f, left)
		r := c.TypeOfExpression(f, right)
		switch {
		case isStringLike(l) || isStringLike(r):
			return c.stringType
		case l.Flags&TypeAny != 0 || r.Flags&TypeAny != 0:
			return c.anyType
		case isNumberLike(l) && isNumberLike(r):
			return c.numberType
		case l.Flags&(TypeBigInt|TypeBigIntLiteral) != 0 && r.Flags&(TypeBigInt|TypeBigIntLiteral) != 0:
			return c.bigintType
		}
		return c.anyType
	case "-", "*", "/", "%", "**", "&", "|", "^", "<<", ">>", ">>>":
		l := c.TypeOfExpression(f, left)
		if l.Flags&(TypeBigInt|TypeBigIntLiteral) != 0 {
			return c.bigintType
		}
		return c.numberType
	case "==", "!=", "===", "!==", "<", ">", "<=", ">=", "instanceof", "in":
		return c.booleanType
	case "&&":
		return c.TypeOfExpression(f, right)
	case "||", "??":
		l := c.TypeOfExpression(f, left)
		return c.union(c.removeNullable(l), c.TypeOfExpression(f, right))
	}
	return c.anyType
}

func isStringLike(t *Type) bool {
	return t.Flags&(TypeString|TypeStringLiteral) != 0 && t.Flags&TypeEnumLiteral == 0 ||
		t.Flags&TypeEnumLiteral != 0 && t.Flags&TypeStringLiteral != 0
}

func isNumberLike(t *Type) bool {
	return t.Flags&(TypeNumber|TypeNumberLiteral|TypeEnum) != 0
}

func (c *Checker) unaryExpression(f *SourceFile, n *sitter.Node) *Type {
	op := n.ChildByFieldName("operator")
	arg := n.ChildByFieldName("argument")
	switch f.NodeText(op) {
	case "!", "delete":
		return c.booleanType
	case "typeof":
		return c.stringType
	case "void":
		return c.undefinedType
	case "-":
		if arg != nil && arg.Type() == "number" {
			return c.numberLiteral("-" + f.NodeText(arg))
		}
		if t := c.TypeOfExpression(f, arg); t.Flags&(TypeBigInt|TypeBigIntLiteral) != 0 {
			return c.bigintType
		}
		return c.numberType
	case "+", "~":
		return c.numberType
	}
	return c.anyType
}

// ---------------------------------------------------------------------------
// Calls

func argumentNodes(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() == "template_string" {
		return nil
	}
	var out []*sitter.Node
	for _, a := range namedChildren(args) {
		if a.Type() != "comment" {
			out = append(out, a)
		}
	}
	return out
}

// chooseSignature picks the first signature that accepts argc arguments.
func chooseSignature(sigs []*Signature, argc int) *Signature {
	for _, s := range sigs {
		if argc >= s.MinArgs && (argc <= len(s.Params) || s.HasRest()) {
			return s
		}
	}
	if len(sigs) == 0 {
		return nil
	}
	return sigs[0]
}

func (c *Checker) callExpression(f *SourceFile, n *sitter.Node) *Type {
	callee := n.ChildByFieldName("function")
	if callee == nil {
		return c.anyType
	}
	switch callee.Type() {
	case "import":
		return c.globalGeneric("Promise", c.anyType)
	case "super":
		return c.voidType
	}
	calleeType := c.TypeOfExpression(f, callee)
	base := c.removeNullable(calleeType)
	if base.Flags&TypeAny != 0 {
		return c.anyType
	}
	args := argumentNodes(n)
	sig := chooseSignature(c.CallSignatures(c.apparentType(base)), len(args))
	if sig == nil {
		return c.anyType
	}
	ret := c.resolveCall(f, sig, n, args)
	if (hasToken(n, "?.") || childOfType(n, "optional_chain") != nil) && base != calleeType && c.strictNulls {
		ret = c.union(ret, c.undefinedType)
	}
	return ret
}

func (c *Checker) newExpression(f *SourceFile, n *sitter.Node) *Type {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil {
		return c.anyType
	}
	ctorType := c.TypeOfExpression(f, ctor)
	if ctorType.Flags&TypeAny != 0 {
		return c.anyType
	}
	args := argumentNodes(n)
	sig := chooseSignature(c.ConstructSignatures(ctorType), len(args))
	if sig == nil {
		return c.anyType
	}
	return c.resolveCall(f, sig, n, args)
}

// resolveCall returns the return type of sig applied at call, inferring
// type arguments when none are given.
func (c *Checker) resolveCall(f *SourceFile, sig *Signature, call *sitter.Node, args []*sitter.Node) *Type {
	ret := c.ReturnTypeOfSignature(sig)
	if len(sig.TypeParams) == 0 {
		return ret
	}
	var targets []*Type
	if explicit := call.ChildByFieldName("type_arguments"); explicit != nil {
		targets = c.fillTypeArgs(sig.TypeParams, c.typeArguments(f, explicit))
	} else {
		targets = c.inferTypeArguments(f, sig, args)
	}
	return c.instantiate(ret, newMapper(sig.TypeParams, targets))
}

func (c *Checker) paramTypeAt(sig *Signature, i int) *Type {
	switch {
	case i < len(sig.Params) && !sig.Params[i].Rest:
		return sig.Params[i].Type
	case sig.HasRest():
		rest := sig.Params[len(sig.Params)-1].Type
		if e := c.elementType(rest); e != nil {
			return e
		}
		return c.anyType
	}
	return nil
}

func (c *Checker) inferTypeArguments(f *SourceFile, sig *Signature, args []*sitter.Node) []*Type {
	cands := make(map[*Type][]*Type)
	for i, arg := range args {
		p := c.paramTypeAt(sig, i)
		if p == nil {
			break
		}
		c.inferFrom(p, c.TypeOfExpression(f, arg), sig.TypeParams, cands, 0)
	}
	out := make([]*Type, len(sig.TypeParams))
	for i, tp := range sig.TypeParams {
		switch {
		case len(cands[tp]) > 0:
			out[i] = c.union(cands[tp]...)
		case c.defaultOf(tp) != nil:
			out[i] = c.defaultOf(tp)
		case c.constraintOf(tp) != nil:
			out[i] = c.constraintOf(tp)
		default:
			out[i] = c.unknownType
		}
	}
	return out
}

func (c *Checker) inferFrom(p, a *Type, params []*Type, cands map[*Type][]*Type, depth int) {
	if depth > 5 || p == nil || a == nil {
		return
	}
	if p.Flags&TypeParameter != 0 {
		for _, tp := range params {
			if tp == p {
				cands[tp] = append(cands[tp], a)
				return
			}
		}
		return
	}
	switch {
	case p.Flags&TypeUnion != 0:
		rest := a
		for _, m := range p.Types {
			if m.Flags&typeNullable != 0 {
				rest = c.removeNullable(rest)
			}
		}
		for _, m := range p.Types {
			if m.Flags&TypeParameter != 0 {
				c.inferFrom(m, rest, params, cands, depth+1)
			}
		}
	case p.Flags&TypeObject != 0 && p.Object == ObjectReference:
		switch {
		case a.Flags&TypeObject != 0 && a.Object == ObjectReference && a.Target == p.Target:
			for i := range p.TypeArgs {
				if i < len(a.TypeArgs) {
					c.inferFrom(p.TypeArgs[i], a.TypeArgs[i], params, cands, depth+1)
				}
			}
		case (p.isArray() || p.isReadonlyArray()) && c.elementType(a) != nil:
			c.inferFrom(p.TypeArgs[0], c.elementType(a), params, cands, depth+1)
		}
	case p.Flags&TypeObject != 0 && p.Object == ObjectAnonymous && a.Flags&TypeObject != 0:
		ps := c.CallSignatures(p)
		as := c.CallSignatures(a)
		if len(ps) > 0 && len(as) > 0 {
			pSig, aSig := ps[0], as[0]
			for i := range pSig.Params {
				if i < len(aSig.Params) {
					c.inferFrom(pSig.Params[i].Type, aSig.Params[i].Type, params, cands, depth+1)
				}
			}
			c.inferFrom(c.ReturnTypeOfSignature(pSig), c.ReturnTypeOfSignature(aSig), params, cands, depth+1)
			return
		}
		for _, name := range c.structure(p).names {
			pp := c.structure(p).props[name]
			if ap := c.PropertyOfType(a, name); ap != nil {
				c.inferFrom(c.TypeOfProperty(pp), c.TypeOfProperty(ap), params, cands, depth+1)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Signatures

func isFunctionExpression(kind string) bool {
	switch kind {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

// signatureOf builds the signature declared by a function-like node.
func (c *Checker) signatureOf(f *SourceFile, n *sitter.Node) *Signature {
	key := exprKey{file: f, key: keyOf(n)}
	if sig, ok := c.signatures[key]; ok {
		return sig
	}
	sig := &Signature{Decl: Decl{File: f, Node: n}}
	c.signatures[key] = sig
	sig.TypeParams = c.typeParametersOf(f, n)

	if n.Type() == "method_definition" {
		if name, ok := memberName(f, n); ok && name == "constructor" {
			if cls := enclosingClass(n); cls != nil {
				if sym := c.symbolOfDeclaration(f, cls); sym != nil {
					sig.TypeParams = c.DeclaredTypeOf(sym).TypeParams
				}
			}
			sig.Construct = true
		}
	}
	if n.Type() == "construct_signature" || n.Type() == "constructor_type" {
		sig.Construct = true
	}

	var ctx *Signature
	if isFunctionExpression(n.Type()) {
		ctx = c.contextualSignature(f, n)
	}
	contextual := func(i int) *Type {
		if ctx == nil {
			return nil
		}
		return c.paramTypeAt(ctx, i)
	}

	if p := n.ChildByFieldName("parameter"); p != nil {
		t := contextual(0)
		if t == nil {
			t = c.anyType
		}
		sig.Params = append(sig.Params, &Param{Name: f.NodeText(p), Type: t, Node: p})
		sig.MinArgs = 1
		if ctx != nil && ctx.MinArgs == 0 {
			sig.MinArgs = 0
		}
		return sig
	}

	required := 0
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "required_parameter" && p.Type() != "optional_parameter" {
			continue
		}
		pattern := p.ChildByFieldName("pattern")
		if pattern != nil && pattern.Type() == "this" {
			sig.ThisType = c.typeFromTypeNode(f, p.ChildByFieldName("type"))
			continue
		}
		param := &Param{Node: p, Name: f.NodeText(pattern)}
		if pattern != nil && pattern.Type() == "rest_pattern" {
			param.Rest = true
			if named := namedChildren(pattern); len(named) > 0 {
				param.Name = f.NodeText(named[0])
			}
		}
		value := p.ChildByFieldName("value")
		param.Optional = p.Type() == "optional_parameter" || value != nil
		switch ann := p.ChildByFieldName("type"); {
		case ann != nil:
			param.Type = c.typeFromTypeNode(f, ann)
		case value != nil:
			param.Type = c.widenDeclaration(c.TypeOfExpression(f, value))
		case contextual(len(sig.Params)) != nil && !param.Rest:
			param.Type = contextual(len(sig.Params))
		case param.Rest:
			param.Type = c.arrayOf(c.anyType)
		default:
			param.Type = c.anyType
		}
		sig.Params = append(sig.Params, param)
		if !param.Optional && !param.Rest {
			required = len(sig.Params)
		}
	}
	sig.MinArgs = required
	return sig
}

// contextualSignature finds the signature a function expression is
// expected to satisfy from where it appears.
func (c *Checker) contextualSignature(f *SourceFile, fn *sitter.Node) *Signature {
	child := fn
	parent := fn.Parent()
	for parent != nil && parent.Type() == "parenthesized_expression" {
		child, parent = parent, parent.Parent()
	}
	if parent == nil {
		return nil
	}
	var expected *Type
	switch parent.Type() {
	case "arguments":
		call := parent.Parent()
		if call == nil {
			return nil
		}
		args := argumentNodes(call)
		idx := -1
		for i, a := range args {
			if sameNode(a, child) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		var sigs []*Signature
		if call.Type() == "new_expression" {
			sigs = c.ConstructSignatures(c.TypeOfExpression(f, call.ChildByFieldName("constructor")))
		} else {
			sigs = c.CallSignatures(c.apparentType(c.removeNullable(c.TypeOfExpression(f, call.ChildByFieldName("function")))))
		}
		sig := chooseSignature(sigs, len(args))
		if sig == nil {
			return nil
		}
		expected = c.paramTypeAt(sig, idx)
	case "variable_declarator", "public_field_definition":
		if ann := parent.ChildByFieldName("type"); ann != nil {
			expected = c.typeFromTypeNode(f, ann)
		}
	case "assignment_expression":
		if sameNode(parent.ChildByFieldName("right"), child) {
			expected = c.TypeOfExpression(f, parent.ChildByFieldName("left"))
		}
	}
	if expected == nil {
		return nil
	}
	for _, m := range members(expected) {
		if sigs := c.CallSignatures(m); len(sigs) > 0 {
			return sigs[0]
		}
	}
	return nil
}

// IsOptionalParameter reports whether a parameter may be omitted: it is
// marked with a question mark, or it has an initializer and no required
// parameter follows it.
func (c *Checker) IsOptionalParameter(f *SourceFile, p *sitter.Node) bool {
	if p.Type() == "optional_parameter" {
		return true
	}
	if p.ChildByFieldName("value") == nil {
		return false
	}
	list := p.Parent()
	if list == nil || list.Parent() == nil {
		return false
	}
	sig := c.signatureOf(f, list.Parent())
	for i, param := range sig.Params {
		if sameNode(param.Node, p) {
			return i >= sig.MinArgs
		}
	}
	return false
}

// SignatureOf returns the signature declared by a function-like node.
func (c *Checker) SignatureOf(f *SourceFile, n *sitter.Node) *Signature {
	return c.signatureOf(f, n)
}

// ReturnTypeOfSignature returns the declared or inferred return type.
func (c *Checker) ReturnTypeOfSignature(sig *Signature) *Type {
	if sig.retDone {
		return sig.ret
	}
	if sig.source != nil {
		sig.ret = c.instantiate(c.ReturnTypeOfSignature(sig.source), sig.mapper)
		sig.retDone = true
		return sig.ret
	}
	if sig.retBusy {
		return c.anyType
	}
	sig.retBusy = true
	t := c.computeReturnType(sig)
	sig.retBusy = false
	sig.ret, sig.retDone = t, true
	return t
}

func (c *Checker) computeReturnType(sig *Signature) *Type {
	if sig.fixedRet != nil {
		return sig.fixedRet
	}
	f, n := sig.Decl.File, sig.Decl.Node
	if n == nil {
		return c.anyType
	}
	if n.Type() == "method_definition" && sig.Construct {
		if cls := enclosingClass(n); cls != nil {
			sym := c.symbolOfDeclaration(f, cls)
			if cls.Type() == "class" {
				sym = c.classExpressionSymbol(f, cls)
			}
			if sym != nil {
				return c.instanceType(c.DeclaredTypeOf(sym))
			}
		}
		return c.anyType
	}
	switch n.Type() {
	case "class_declaration", "abstract_class_declaration", "class":
		return c.anyType
	case "constructor_type", "construct_signature":
		if t := n.ChildByFieldName("type"); t != nil {
			return c.typeFromTypeNode(f, t)
		}
		if rt := n.ChildByFieldName("return_type"); rt != nil {
			return c.typeFromTypeNode(f, rt)
		}
		return c.anyType
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		return c.returnAnnotation(f, rt)
	}
	if n.ChildByFieldName("body") == nil {
		return c.anyType
	}
	return c.inferReturnType(f, n)
}

func (c *Checker) returnAnnotation(f *SourceFile, rt *sitter.Node) *Type {
	switch rt.Type() {
	case "type_predicate_annotation", "type_predicate":
		if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(f.NodeText(rt), ":")), "asserts") {
			return c.voidType
		}
		return c.booleanType
	case "asserts_annotation", "asserts":
		return c.voidType
	}
	return c.typeFromTypeNode(f, rt)
}

// inferReturnType computes a return type from the function body: the union
// of returned expressions with literals widened, void when nothing is
// returned, wrapped for async and generator functions.
func (c *Checker) inferReturnType(f *SourceFile, fn *sitter.Node) *Type {
	body := fn.ChildByFieldName("body")
	async := hasToken(fn, "async")
	generator := strings.Contains(fn.Type(), "generator") || hasToken(fn, "*")

	var ret *Type
	if body.Type() != "statement_block" {
		ret = c.widenDeclaration(c.TypeOfExpression(f, body))
	} else {
		var returns, yields []*Type
		bare := false
		walkFunctionBody(body, func(n *sitter.Node) {
			named := namedChildren(n)
			var expr *sitter.Node
			for _, x := range named {
				if x.Type() != "comment" {
					expr = x
					break
				}
			}
			switch n.Type() {
			case "return_statement":
				if expr == nil {
					bare = true
					return
				}
				returns = append(returns, c.TypeOfExpression(f, expr))
			case "yield_expression":
				if expr == nil {
					yields = append(yields, c.undefinedType)
					return
				}
				yields = append(yields, c.TypeOfExpression(f, expr))
			}
		})
		if generator {
			yield := c.neverType
			if len(yields) > 0 {
				yield = c.widenDeclaration(c.union(yields...))
			}
			result := c.voidType
			if len(returns) > 0 {
				result = c.widenDeclaration(c.union(returns...))
			}
			if async {
				return c.globalGeneric("AsyncGenerator", yield, result, c.unknownType)
			}
			return c.globalGeneric("Generator", yield, result, c.unknownType)
		}
		switch {
		case len(returns) == 0:
			ret = c.voidType
		default:
			ret = c.widenDeclaration(c.subtypeReduce(c.union(returns...)))
			if bare && c.strictNulls {
				ret = c.union(ret, c.undefinedType)
			}
		}
	}
	if async {
		return c.globalGeneric("Promise", c.awaited(ret))
	}
	return ret
}

// subtypeReduce drops union members that derive from another member.
func (c *Checker) subtypeReduce(t *Type) *Type {
	if t.Flags&TypeUnion == 0 {
		return t
	}
	var keep []*Type
	for _, m := range t.Types {
		derived := false
		for _, other := range t.Types {
			if other != m && other.IsClassOrInterface() && m.Flags&TypeObject != 0 && c.isDerivedFrom(m, other) {
				derived = true
				break
			}
		}
		if !derived {
			keep = append(keep, m)
		}
	}
	return c.union(keep...)
}

// walkFunctionBody visits the nodes of a body without entering nested
// functions or classes.
func walkFunctionBody(n *sitter.Node, visit func(*sitter.Node)) {
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "function_declaration", "generator_function_declaration", "function_expression", "function",
			"generator_function", "arrow_function", "class_declaration", "class", "method_definition":
			continue
		}
		visit(child)
		walkFunctionBody(child, visit)
	}
}

// ---------------------------------------------------------------------------
// Node types

// TypeAtLocation returns the type of a syntax node: a type annotation's
// type, an expression's type, or the type of the entity a declaration name
// introduces. It fails for nodes that carry no type.
func (c *Checker) TypeAtLocation(f *SourceFile, n *sitter.Node) (*Type, error) {
	if n == nil {
		return nil, ErrNoType
	}
	parent := n.Parent()
	switch kind := n.Type(); kind {
	case "type_annotation", "predefined_type", "literal_type", "generic_type", "nested_type_identifier",
		"array_type", "tuple_type", "union_type", "intersection_type", "function_type", "constructor_type",
		"object_type", "type_query", "index_type_query", "lookup_type", "conditional_type",
		"template_literal_type", "this_type", "readonly_type", "parenthesized_type":
		return c.typeFromTypeNode(f, n), nil
	case "type_identifier":
		if parent != nil && sameNode(parent.ChildByFieldName("name"), n) {
			if sym := c.symbolOfDeclaration(f, parent); sym != nil {
				return c.DeclaredTypeOf(sym), nil
			}
		}
		return c.typeFromTypeNode(f, n), nil
	case "class_declaration", "abstract_class_declaration", "interface_declaration",
		"type_alias_declaration", "enum_declaration", "type_parameter":
		if sym := c.symbolOfDeclaration(f, n); sym != nil {
			return c.DeclaredTypeOf(sym), nil
		}
		return c.anyType, nil
	case "function_declaration", "generator_function_declaration", "function_signature",
		"variable_declarator", "internal_module", "module":
		if sym := c.symbolOfDeclaration(f, n); sym != nil {
			return c.TypeOfSymbol(sym), nil
		}
		return c.anyType, nil
	case "required_parameter", "optional_parameter":
		return c.typeOfParameter(f, n), nil
	case "public_field_definition", "property_signature", "method_signature", "method_definition", "abstract_method_signature":
		return c.typeOfMemberNode(f, n), nil
	case "identifier":
		if parent != nil {
			switch parent.Type() {
			case "enum_declaration", "internal_module", "module":
				if sameNode(parent.ChildByFieldName("name"), n) {
					return c.TypeAtLocation(f, parent)
				}
			case "variable_declarator", "function_declaration", "generator_function_declaration", "function_signature", "class_declaration":
				if sameNode(parent.ChildByFieldName("name"), n) {
					if sym := c.symbolOfDeclaration(f, parent); sym != nil {
						return c.TypeOfSymbol(sym), nil
					}
				}
			}
		}
		if sym := c.symbolOfDeclaration(f, n); sym != nil {
			return c.TypeOfSymbol(sym), nil
		}
		return c.TypeOfExpression(f, n), nil
	case "property_identifier", "private_property_identifier":
		if parent == nil {
			return nil, ErrNoType
		}
		switch parent.Type() {
		case "member_expression":
			return c.TypeOfExpression(f, parent), nil
		case "public_field_definition", "property_signature", "method_signature", "method_definition", "abstract_method_signature":
			return c.typeOfMemberNode(f, parent), nil
		case "pair":
			return c.TypeOfExpression(f, parent.ChildByFieldName("value")), nil
		}
		return nil, ErrNoType
	case "statement_block", "program", "class_body", "formal_parameters", "arguments",
		"expression_statement", "lexical_declaration", "variable_declaration", "export_statement",
		"import_statement", "return_statement", "if_statement", "comment", "type_arguments",
		"type_parameters", "class_heritage", "extends_clause", "implements_clause", "enum_body":
		return nil, ErrNoType
	}
	if !n.IsNamed() {
		return nil, fmt.Errorf("%w: %q", ErrNoType, n.Type())
	}
	return c.TypeOfExpression(f, n), nil
}

// typeOfMemberNode types a class or interface member declaration.
func (c *Checker) typeOfMemberNode(f *SourceFile, n *sitter.Node) *Type {
	key := exprKey{file: f, key: keyOf(n)}
	if t, ok := c.propTypes[key]; ok {
		return t
	}
	p := &Property{Decls: []Decl{{File: f, Node: n}}, Readonly: hasToken(n, "readonly")}
	switch n.Type() {
	case "method_definition", "method_signature", "abstract_method_signature":
		p.Method = !hasToken(n, "get") && !hasToken(n, "set")
	}
	t := c.TypeOfProperty(p)
	c.propTypes[key] = t
	return t
}
