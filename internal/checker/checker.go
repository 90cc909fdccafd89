package checker

import (
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

type exprKey struct {
	file *SourceFile
	key  nodeKey
}

// Checker computes types for one Program. It memoises everything it
// computes, so it is discarded together with its program.
type Checker struct {
	program     *Program
	strictNulls bool
	nextID      int

	anyType       *Type
	unknownType   *Type
	undefinedType *Type
	nullType      *Type
	stringType    *Type
	numberType    *Type
	bigintType    *Type
	falseType     *Type
	trueType      *Type
	booleanType   *Type
	symbolType    *Type
	voidType      *Type
	neverType     *Type
	objectType    *Type

	literals   map[string]*Type
	unions     map[string]*Type
	references map[string]*Type

	declared      map[*Symbol]*Type
	aliasParams   map[*Symbol][]*Type
	valueTypes    map[*Symbol]*Type
	resolving     map[*Symbol]bool
	aliasTargets  map[*Symbol]*Symbol
	moduleSymbols map[string]*Symbol
	fileExports   map[string]*SymbolTable
	exportsBusy   map[string]bool
	bases         map[*Type][]*Type
	basesBusy     map[*Type]bool

	exprTypes  map[exprKey]*Type
	exprBusy   map[exprKey]bool
	typeNodes  map[exprKey]*Type
	signatures map[exprKey]*Signature
	propTypes  map[exprKey]*Type
}

func newChecker(p *Program) *Checker {
	c := &Checker{
		program:       p,
		strictNulls:   p.options.StrictNulls(),
		literals:      make(map[string]*Type),
		unions:        make(map[string]*Type),
		references:    make(map[string]*Type),
		declared:      make(map[*Symbol]*Type),
		aliasParams:   make(map[*Symbol][]*Type),
		valueTypes:    make(map[*Symbol]*Type),
		resolving:     make(map[*Symbol]bool),
		aliasTargets:  make(map[*Symbol]*Symbol),
		moduleSymbols: make(map[string]*Symbol),
		fileExports:   make(map[string]*SymbolTable),
		exportsBusy:   make(map[string]bool),
		bases:         make(map[*Type][]*Type),
		basesBusy:     make(map[*Type]bool),
		exprTypes:     make(map[exprKey]*Type),
		exprBusy:      make(map[exprKey]bool),
		typeNodes:     make(map[exprKey]*Type),
		signatures:    make(map[exprKey]*Signature),
		propTypes:     make(map[exprKey]*Type),
	}
	// Creation order fixes union member order when rendering.
	c.anyType = c.intrinsic(TypeAny, "any")
	c.unknownType = c.intrinsic(TypeUnknown, "unknown")
	c.undefinedType = c.intrinsic(TypeUndefined, "undefined")
	c.nullType = c.intrinsic(TypeNull, "null")
	c.stringType = c.intrinsic(TypeString, "string")
	c.numberType = c.intrinsic(TypeNumber, "number")
	c.bigintType = c.intrinsic(TypeBigInt, "bigint")
	c.falseType = c.intrinsic(TypeBooleanLiteral, "false")
	c.trueType = c.intrinsic(TypeBooleanLiteral, "true")
	c.booleanType = c.intrinsic(TypeBoolean, "boolean")
	c.symbolType = c.intrinsic(TypeESSymbol, "symbol")
	c.voidType = c.intrinsic(TypeVoid, "void")
	c.neverType = c.intrinsic(TypeNever, "never")
	c.objectType = c.intrinsic(TypeNonPrimitive, "object")
	return c
}

// Program returns the program the checker belongs to.
func (c *Checker) Program() *Program { return c.program }

func (c *Checker) newType(flags TypeFlags) *Type {
	c.nextID++
	return &Type{id: c.nextID, Flags: flags}
}

func (c *Checker) intrinsic(flags TypeFlags, name string) *Type {
	t := c.newType(flags)
	t.Name = name
	return t
}

// AnyType returns the any type.
func (c *Checker) AnyType() *Type { return c.anyType }

func (c *Checker) stringLiteral(value string) *Type {
	return c.literal(TypeStringLiteral, strconv.Quote(value))
}

func (c *Checker) numberLiteral(text string) *Type {
	if v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64); err == nil {
		text = strconv.FormatFloat(v, 'f', -1, 64)
	} else if v, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64); err == nil {
		text = strconv.FormatInt(v, 10)
	}
	return c.literal(TypeNumberLiteral, text)
}

func (c *Checker) literal(flags TypeFlags, name string) *Type {
	key := strconv.Itoa(int(flags)) + ":" + name
	if t, ok := c.literals[key]; ok {
		return t
	}
	t := c.intrinsic(flags, name)
	c.literals[key] = t
	return t
}

// ---------------------------------------------------------------------------
// Names and symbols

// resolveName looks name up from the scope enclosing at, then the global
// scope.
func (c *Checker) resolveName(f *SourceFile, at *sitter.Node, name string, meaning Meaning) *Symbol {
	for n := at; n != nil; n = n.Parent() {
		kind := n.Type()
		if scopeContainers[kind] {
			if sym := f.scope(n).Get(name); sym != nil && sym.Flags.has(meaning) {
				return c.globalMerged(sym)
			}
		}
		if kind == "statement_block" {
			if parent := n.Parent(); parent != nil && (parent.Type() == "internal_module" || parent.Type() == "module") {
				if ns := c.symbolOfDeclaration(f, parent); ns != nil {
					if sym := ns.Exports.Get(name); sym != nil && sym.Flags.has(meaning) {
						return sym
					}
				}
			}
		}
		if kind == "program" {
			break
		}
	}
	if sym := c.program.globals.Get(name); sym != nil && sym.Flags.has(meaning) {
		return sym
	}
	return nil
}

// symbolOfDeclaration returns the symbol a declaration node introduced.
func (c *Checker) symbolOfDeclaration(f *SourceFile, n *sitter.Node) *Symbol {
	if sym := f.symbolOfDeclaration(n); sym != nil {
		return c.globalMerged(sym)
	}
	for anc := n.Parent(); anc != nil; anc = anc.Parent() {
		if scopeContainers[anc.Type()] {
			f.scope(anc)
			if sym := f.symbolOfDeclaration(n); sym != nil {
				return c.globalMerged(sym)
			}
		}
	}
	return nil
}

// globalMerged maps a file-level global symbol to its program-wide merge.
func (c *Checker) globalMerged(sym *Symbol) *Symbol {
	if !sym.global {
		return sym
	}
	if merged := c.program.globals.Get(sym.Name); merged != nil {
		for _, d := range merged.Decls {
			for _, own := range sym.Decls {
				if d.File == own.File && sameNode(d.Node, own.Node) {
					return merged
				}
			}
		}
	}
	return sym
}

// resolveAlias follows import and re-export bindings to the symbol they
// name. It returns nil when the target cannot be found.
func (c *Checker) resolveAlias(sym *Symbol) *Symbol {
	if sym == nil || sym.alias == nil {
		return sym
	}
	if target, ok := c.aliasTargets[sym]; ok {
		return target
	}
	c.aliasTargets[sym] = nil
	a := sym.alias
	var target *Symbol
	if a.module == "" {
		target = c.resolveName(a.file, a.file.root, a.name, MeaningValue|MeaningType|MeaningNamespace)
		if target == sym {
			target = nil
		}
	} else if mod := c.resolveModuleSymbol(a.file, a.module); mod != nil {
		target = c.importFromModule(mod, a.name)
	}
	target = c.resolveAlias(target)
	c.aliasTargets[sym] = target
	return target
}

func (c *Checker) importFromModule(mod *Symbol, name string) *Symbol {
	exports := c.exportsOfModule(mod)
	switch name {
	case "*":
		if eq := exports.Get("export="); eq != nil {
			return c.resolveAlias(eq)
		}
		return mod
	case "export=":
		if eq := exports.Get("export="); eq != nil {
			return c.resolveAlias(eq)
		}
		return mod
	}
	if sym := exports.Get(name); sym != nil {
		return sym
	}
	if eq := exports.Get("export="); eq != nil {
		target := c.resolveAlias(eq)
		if name == "default" {
			return target
		}
		if target != nil {
			return target.Exports.Get(name)
		}
	}
	return nil
}

// resolveModuleSymbol returns the symbol of the module spec names when
// imported from f: a file module, an ambient module, or nil.
func (c *Checker) resolveModuleSymbol(f *SourceFile, spec string) *Symbol {
	if path := c.program.ResolvedModule(f.Path, spec); path != "" {
		if target := c.program.SourceFile(path); target != nil {
			return c.moduleSymbolOf(target)
		}
	}
	return c.program.ambient.Get(spec)
}

func (c *Checker) moduleSymbolOf(f *SourceFile) *Symbol {
	if sym, ok := c.moduleSymbols[f.Path]; ok {
		return sym
	}
	sym := &Symbol{
		Name:  `"` + strings.TrimSuffix(f.Path, ".ts") + `"`,
		Flags: SymModule,
		Decls: []Decl{{File: f, Node: f.root}},
	}
	c.moduleSymbols[f.Path] = sym
	sym.Exports = c.exportsOfFile(f)
	return sym
}

func (c *Checker) exportsOfModule(mod *Symbol) *SymbolTable {
	if mod.Exports == nil {
		return NewSymbolTable()
	}
	return mod.Exports
}

// exportsOfFile returns the file's own exports plus those re-exported
// through export-star declarations.
func (c *Checker) exportsOfFile(f *SourceFile) *SymbolTable {
	if t, ok := c.fileExports[f.Path]; ok {
		return t
	}
	t := NewSymbolTable()
	for _, name := range f.exports.Names() {
		t.set(name, f.exports.Get(name))
	}
	c.fileExports[f.Path] = t
	if c.exportsBusy[f.Path] {
		return t
	}
	c.exportsBusy[f.Path] = true
	for _, spec := range f.exportStars {
		mod := c.resolveModuleSymbol(f, spec)
		if mod == nil {
			continue
		}
		other := c.exportsOfModule(mod)
		for _, name := range other.Names() {
			if name == "default" || name == "export=" || t.Get(name) != nil {
				continue
			}
			t.set(name, other.Get(name))
		}
	}
	return t
}

// ---------------------------------------------------------------------------
// Declared types

// DeclaredTypeOf returns the type a type-meaning symbol declares: the
// instance type of a class or interface, the enum type, the aliased type or
// the type parameter.
func (c *Checker) DeclaredTypeOf(sym *Symbol) *Type {
	sym = c.resolveAlias(sym)
	if sym == nil {
		return c.anyType
	}
	sym = c.globalMerged(sym)
	if t, ok := c.declared[sym]; ok {
		return t
	}
	switch {
	case sym.Flags&SymTypeParameter != 0:
		return c.declaredTypeOfTypeParameter(sym)
	case sym.Flags&(SymClass|SymInterface) != 0:
		t := c.newType(TypeObject)
		t.Object = ObjectInterface
		if sym.Flags&SymClass != 0 {
			t.Object = ObjectClass
		}
		t.Name = sym.Name
		t.Symbol = sym
		c.declared[sym] = t
		t.TypeParams = c.ownTypeParameters(sym)
		return t
	case sym.Flags&SymEnum != 0:
		t := c.newType(TypeEnum)
		t.Name = sym.Name
		t.Symbol = sym
		c.declared[sym] = t
		return t
	case sym.Flags&SymTypeAlias != 0:
		c.declared[sym] = c.anyType
		d := c.aliasDecl(sym)
		if d.Node == nil {
			return c.anyType
		}
		c.aliasParams[sym] = c.typeParametersOf(d.File, d.Node)
		value := c.typeFromTypeNode(d.File, d.Node.ChildByFieldName("value"))
		t := c.withAlias(value, sym, nil)
		c.declared[sym] = t
		return t
	}
	return c.anyType
}

func (c *Checker) aliasDecl(sym *Symbol) Decl {
	for _, d := range sym.Decls {
		if d.Node.Type() == "type_alias_declaration" {
			return d
		}
	}
	return Decl{}
}

// withAlias records that t was reached through a type alias so it renders
// by the alias name.
func (c *Checker) withAlias(t *Type, sym *Symbol, args []*Type) *Type {
	aliasable := t.Flags&(TypeUnion|TypeIntersection) != 0 ||
		(t.Flags&TypeObject != 0 && t.Object == ObjectAnonymous && !t.Static && t.Module == "")
	if !aliasable {
		return t
	}
	cp := *t
	c.nextID++
	cp.id = c.nextID
	cp.Alias = sym
	cp.AliasArgs = args
	return &cp
}

// ownTypeParameters creates the type parameters of a class or interface
// from its first declaration that lists any.
func (c *Checker) ownTypeParameters(sym *Symbol) []*Type {
	for _, d := range sym.Decls {
		switch d.Node.Type() {
		case "class_declaration", "abstract_class_declaration", "interface_declaration", "class":
			if d.Node.ChildByFieldName("type_parameters") != nil {
				return c.typeParametersOf(d.File, d.Node)
			}
		}
	}
	return nil
}

// typeParametersOf creates (or returns) the type parameters declared by
// owner.
func (c *Checker) typeParametersOf(f *SourceFile, owner *sitter.Node) []*Type {
	list := owner.ChildByFieldName("type_parameters")
	if list == nil {
		return nil
	}
	f.scope(owner)
	var out []*Type
	for _, tp := range namedChildren(list) {
		if tp.Type() != "type_parameter" {
			continue
		}
		sym := f.symbolOfDeclaration(tp)
		if sym == nil {
			continue
		}
		if t, ok := c.declared[sym]; ok {
			out = append(out, t)
			continue
		}
		t := c.newType(TypeParameter)
		t.Name = sym.Name
		t.Symbol = sym
		t.constraintFile = f
		if cn := tp.ChildByFieldName("constraint"); cn != nil {
			t.constraintNode = firstTypeChild(cn)
		}
		c.declared[sym] = t
		out = append(out, t)
	}
	return out
}

// declaredTypeOfTypeParameter handles type parameters of merged
// declarations, which map by position onto the first declaration's.
func (c *Checker) declaredTypeOfTypeParameter(sym *Symbol) *Type {
	d := sym.FirstDecl()
	if d.Node == nil || d.Node.Parent() == nil || d.Node.Parent().Parent() == nil {
		return c.anyType
	}
	owner := d.Node.Parent().Parent()
	switch owner.Type() {
	case "class_declaration", "abstract_class_declaration", "interface_declaration", "class":
		ownerSym := c.symbolOfDeclaration(d.File, owner)
		if ownerSym != nil {
			dt := c.DeclaredTypeOf(ownerSym)
			if t, ok := c.declared[sym]; ok {
				return t
			}
			idx := 0
			for _, tp := range namedChildren(d.Node.Parent()) {
				if sameNode(tp, d.Node) {
					break
				}
				if tp.Type() == "type_parameter" {
					idx++
				}
			}
			if idx < len(dt.TypeParams) {
				c.declared[sym] = dt.TypeParams[idx]
				return dt.TypeParams[idx]
			}
		}
	}
	c.typeParametersOf(d.File, owner)
	if t, ok := c.declared[sym]; ok {
		return t
	}
	return c.anyType
}

func (c *Checker) constraintOf(t *Type) *Type {
	if !t.constraintDone {
		t.constraintDone = true
		if t.constraintNode != nil {
			t.constraint = c.typeFromTypeNode(t.constraintFile, t.constraintNode)
		}
	}
	return t.constraint
}

// instanceType returns the type of this inside a class or interface: the
// declared type, applied to its own type parameters when generic.
func (c *Checker) instanceType(declared *Type) *Type {
	if len(declared.TypeParams) == 0 {
		return declared
	}
	return c.reference(declared, declared.TypeParams)
}

// reference instantiates a generic class or interface.
func (c *Checker) reference(target *Type, args []*Type) *Type {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(target.id))
	for _, a := range args {
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(a.id))
	}
	key := sb.String()
	if t, ok := c.references[key]; ok {
		return t
	}
	t := c.newType(TypeObject)
	t.Object = ObjectReference
	t.Target = target
	t.TypeArgs = args
	t.Name = target.Name
	t.Symbol = target.Symbol
	c.references[key] = t
	return t
}

// globalType returns the declared type of a global interface or class, or
// nil when the library does not declare it.
func (c *Checker) globalType(name string) *Type {
	sym := c.program.globals.Get(name)
	if sym == nil || sym.Flags&(SymClass|SymInterface) == 0 {
		return nil
	}
	return c.DeclaredTypeOf(sym)
}

func (c *Checker) globalGeneric(name string, args ...*Type) *Type {
	target := c.globalType(name)
	if target == nil {
		return c.anyType
	}
	if len(target.TypeParams) == 0 {
		return target
	}
	full := make([]*Type, len(target.TypeParams))
	for i := range full {
		if i < len(args) {
			full[i] = args[i]
		} else {
			full[i] = c.unknownType
		}
	}
	return c.reference(target, full)
}

func (c *Checker) arrayOf(elem *Type) *Type { return c.globalGeneric("Array", elem) }

func (c *Checker) readonlyArrayOf(elem *Type) *Type {
	if c.globalType("ReadonlyArray") == nil {
		return c.arrayOf(elem)
	}
	return c.globalGeneric("ReadonlyArray", elem)
}

// elementType returns the element type of an array, readonly array or
// tuple, or nil.
func (c *Checker) elementType(t *Type) *Type {
	switch {
	case t.isArray() || t.isReadonlyArray():
		return t.TypeArgs[0]
	case t.Flags&TypeObject != 0 && t.Object == ObjectTuple:
		if len(t.Types) == 0 {
			return c.neverType
		}
		return c.union(t.Types...)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Unions

// union builds a normalised union: flattened, deduplicated, ordered by type
// identity, with literal members absorbed by their base type.
func (c *Checker) union(types ...*Type) *Type {
	var flat []*Type
	seen := map[*Type]bool{}
	var add func(t *Type)
	add = func(t *Type) {
		if t == nil {
			return
		}
		if t.Flags&TypeUnion != 0 {
			for _, m := range t.Types {
				add(m)
			}
			return
		}
		if t.Flags&TypeBoolean != 0 {
			add(c.falseType)
			add(c.trueType)
			return
		}
		if !seen[t] {
			seen[t] = true
			flat = append(flat, t)
		}
	}
	for _, t := range types {
		add(t)
	}

	var has TypeFlags
	for _, t := range flat {
		has |= t.Flags
	}
	switch {
	case has&TypeAny != 0:
		return c.anyType
	case has&TypeUnknown != 0:
		return c.unknownType
	}

	out := flat[:0]
	for _, t := range flat {
		switch {
		case t.Flags&TypeNever != 0:
			continue
		case t.Flags&TypeStringLiteral != 0 && has&TypeString != 0:
			continue
		case t.Flags&TypeNumberLiteral != 0 && t.Flags&TypeEnumLiteral == 0 && has&TypeNumber != 0:
			continue
		case t.Flags&TypeEnumLiteral != 0 && t.enumOf != nil && seen[t.enumOf]:
			continue
		case t.Flags&typeNullable != 0 && !c.strictNulls && has&^typeNullable != 0:
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		if len(flat) == 0 {
			return c.neverType
		}
		return flat[0]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].id < out[j].id })

	// true | false is boolean.
	hasTrue, hasFalse := false, false
	for _, t := range out {
		hasTrue = hasTrue || t == c.trueType
		hasFalse = hasFalse || t == c.falseType
	}
	if hasTrue && hasFalse {
		merged := out[:0]
		for _, t := range out {
			switch t {
			case c.falseType:
				merged = append(merged, c.booleanType)
			case c.trueType:
			default:
				merged = append(merged, t)
			}
		}
		out = merged
	}
	if len(out) == 1 {
		return out[0]
	}

	var sb strings.Builder
	for _, t := range out {
		sb.WriteString(strconv.Itoa(t.id))
		sb.WriteByte('|')
	}
	key := sb.String()
	if u, ok := c.unions[key]; ok {
		return u
	}
	u := c.newType(TypeUnion)
	u.Types = append([]*Type(nil), out...)
	c.unions[key] = u
	return u
}

// members returns the union members, or t itself.
func members(t *Type) []*Type {
	if t.Flags&TypeUnion != 0 {
		return t.Types
	}
	return []*Type{t}
}

func (c *Checker) removeNullable(t *Type) *Type {
	var keep []*Type
	for _, m := range members(t) {
		if m.Flags&typeNullable == 0 {
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return c.neverType
	}
	return c.union(keep...)
}

// widen replaces literal types by their base types.
func (c *Checker) widen(t *Type) *Type {
	switch {
	case t.Flags&TypeUnion != 0:
		ws := make([]*Type, len(t.Types))
		for i, m := range t.Types {
			ws[i] = c.widen(m)
		}
		return c.union(ws...)
	case t.Flags&TypeEnumLiteral != 0 && t.enumOf != nil:
		return t.enumOf
	case t.Flags&TypeStringLiteral != 0:
		return c.stringType
	case t.Flags&TypeNumberLiteral != 0:
		return c.numberType
	case t.Flags&TypeBooleanLiteral != 0:
		return c.booleanType
	case t.Flags&TypeBigIntLiteral != 0:
		return c.bigintType
	}
	return t
}

// widenDeclaration widens a declaration's initializer type; without strict
// null checks a lone null or undefined becomes any.
func (c *Checker) widenDeclaration(t *Type) *Type {
	t = c.widen(t)
	if !c.strictNulls && t.Flags&typeNullable != 0 {
		return c.anyType
	}
	return t
}

// ---------------------------------------------------------------------------
// Base types and members

// BaseTypes returns the declared base types of a class or interface type:
// the extends clause of a class, or every extended type of an interface.
func (c *Checker) BaseTypes(t *Type) []*Type {
	if t == nil || !t.IsClassOrInterface() {
		return nil
	}
	if bs, ok := c.bases[t]; ok {
		return bs
	}
	if c.basesBusy[t] {
		return nil
	}
	c.basesBusy[t] = true
	var out []*Type
	for _, d := range t.Symbol.Decls {
		switch d.Node.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			heritage := childOfType(d.Node, "class_heritage")
			ext := childOfType(heritage, "extends_clause")
			if ext == nil {
				continue
			}
			value := ext.ChildByFieldName("value")
			if value == nil {
				continue
			}
			args := c.typeArguments(d.File, ext.ChildByFieldName("type_arguments"))
			if base := c.baseFromExpression(d.File, value, args); base != nil {
				out = append(out, base)
			}
		case "interface_declaration":
			ext := childOfType(d.Node, "extends_type_clause", "extends_clause")
			for _, tn := range namedChildren(ext) {
				base := c.typeFromTypeNode(d.File, tn)
				if base.Flags&TypeObject != 0 && base.Object != ObjectAnonymous {
					out = append(out, base)
				}
			}
		}
	}
	c.bases[t] = out
	delete(c.basesBusy, t)
	return out
}

// baseFromExpression resolves a class extends expression to an instance
// type.
func (c *Checker) baseFromExpression(f *SourceFile, expr *sitter.Node, args []*Type) *Type {
	var sym *Symbol
	switch expr.Type() {
	case "identifier":
		sym = c.resolveAlias(c.resolveName(f, expr, f.NodeText(expr), MeaningValue))
	case "member_expression":
		sym = c.resolveQualified(f, expr, MeaningValue)
	}
	if sym != nil && sym.Flags&(SymClass|SymInterface) != 0 {
		declared := c.DeclaredTypeOf(sym)
		if len(declared.TypeParams) > 0 {
			return c.reference(declared, c.fillTypeArgs(declared.TypeParams, args))
		}
		return declared
	}
	// A mixin or constructor-typed value: use its construct signature.
	ctor := c.TypeOfExpression(f, expr)
	if sigs := c.ConstructSignatures(ctor); len(sigs) > 0 {
		ret := c.ReturnTypeOfSignature(sigs[0])
		if ret.Flags&TypeObject != 0 && ret.Object != ObjectAnonymous {
			return ret
		}
	}
	return nil
}

func (c *Checker) fillTypeArgs(params, args []*Type) []*Type {
	out := make([]*Type, len(params))
	for i, p := range params {
		switch {
		case i < len(args):
			out[i] = args[i]
		case c.defaultOf(p) != nil:
			out[i] = c.defaultOf(p)
		default:
			out[i] = c.anyType
		}
	}
	return out
}

func (c *Checker) defaultOf(p *Type) *Type {
	if p.Symbol == nil {
		return nil
	}
	d := p.Symbol.FirstDecl()
	if d.Node == nil {
		return nil
	}
	if v := d.Node.ChildByFieldName("value"); v != nil {
		return c.typeFromTypeNode(d.File, firstTypeChild(v))
	}
	return nil
}

// resolveQualified resolves a dotted name such as N.M.C.
func (c *Checker) resolveQualified(f *SourceFile, n *sitter.Node, meaning Meaning) *Symbol {
	switch n.Type() {
	case "identifier", "type_identifier":
		return c.resolveAlias(c.resolveName(f, n, f.NodeText(n), meaning))
	case "member_expression", "nested_identifier", "nested_type_identifier":
		left := n.ChildByFieldName("object")
		right := n.ChildByFieldName("property")
		if n.Type() == "nested_type_identifier" {
			left, right = n.ChildByFieldName("module"), n.ChildByFieldName("name")
		}
		if left == nil || right == nil {
			named := namedChildren(n)
			if len(named) < 2 {
				return nil
			}
			left, right = named[0], named[len(named)-1]
		}
		ns := c.resolveQualified(f, left, MeaningNamespace)
		if ns == nil {
			return nil
		}
		sym := c.exportsOfModule(ns).Get(f.NodeText(right))
		return c.resolveAlias(sym)
	}
	return nil
}

// structure resolves the members of an object type.
func (c *Checker) structure(t *Type) *structured {
	if t.resolved != nil {
		return t.resolved
	}
	s := newStructured()
	t.resolved = s
	if t.Flags&TypeObject == 0 {
		return s
	}
	switch t.Object {
	case ObjectReference:
		target := c.structure(t.Target)
		c.instantiateStructure(s, target, newMapper(t.Target.TypeParams, t.TypeArgs))
	case ObjectClass, ObjectInterface:
		c.resolveDeclaredMembers(t, s)
	case ObjectTuple:
		for i, e := range t.Types {
			s.add(&Property{Name: strconv.Itoa(i), typ: e, done: true, Optional: t.Optional[i]})
		}
		s.add(&Property{Name: "length", typ: c.numberLiteral(strconv.Itoa(len(t.Types))), done: true, Readonly: true})
		if arr := c.arrayOf(c.elementType(t)); arr.Flags&TypeObject != 0 {
			base := c.structure(arr)
			for _, name := range base.names {
				s.addIfAbsent(base.props[name])
			}
			s.numberIndex = c.elementType(t)
		}
	case ObjectAnonymous:
		switch {
		case t.source != nil:
			c.instantiateStructure(s, c.structure(t.source), t.mapper)
		case t.Static:
			c.resolveStaticMembers(t, s)
		case t.Module != "" || (t.Symbol != nil && t.Symbol.Flags&(SymNamespace|SymEnum|SymModule) != 0 && t.decl.Node == nil):
			c.resolveExportMembers(t, s)
		case t.decl.Node != nil:
			c.resolveLiteralMembers(t, s)
		}
	}
	return s
}

func (c *Checker) instantiateStructure(dst, src *structured, m *typeMapper) {
	for _, name := range src.names {
		p := src.props[name]
		dst.add(&Property{
			Name: p.Name, Optional: p.Optional, Readonly: p.Readonly, Method: p.Method,
			Decls: p.Decls, Symbol: p.Symbol, source: p, mapper: m,
		})
	}
	for _, sig := range src.call {
		dst.call = append(dst.call, c.instantiateSignature(sig, m))
	}
	for _, sig := range src.construct {
		dst.construct = append(dst.construct, c.instantiateSignature(sig, m))
	}
	if src.stringIndex != nil {
		dst.stringIndex = c.instantiate(src.stringIndex, m)
	}
	if src.numberIndex != nil {
		dst.numberIndex = c.instantiate(src.numberIndex, m)
	}
}

func isStatic(n *sitter.Node) bool { return hasToken(n, "static") }

// memberName returns the property name of a class or type member.
func memberName(f *SourceFile, n *sitter.Node) (string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return "", false
	}
	switch name.Type() {
	case "string":
		return stringValue(f, name), true
	case "computed_property_name":
		return "", false
	}
	return f.NodeText(name), true
}

func (c *Checker) resolveDeclaredMembers(t *Type, s *structured) {
	for _, d := range t.Symbol.Decls {
		switch d.Node.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			c.addClassMembers(s, d.File, d.Node.ChildByFieldName("body"), false)
		case "interface_declaration":
			c.addTypeMembers(s, d.File, d.Node.ChildByFieldName("body"))
		}
	}
	for _, base := range c.BaseTypes(t) {
		bs := c.structure(base)
		for _, name := range bs.names {
			s.addIfAbsent(bs.props[name])
		}
		if t.Object == ObjectInterface {
			if len(s.call) == 0 {
				s.call = bs.call
			}
			if len(s.construct) == 0 {
				s.construct = bs.construct
			}
		}
		if s.stringIndex == nil {
			s.stringIndex = bs.stringIndex
		}
		if s.numberIndex == nil {
			s.numberIndex = bs.numberIndex
		}
	}
}

func (c *Checker) addClassMembers(s *structured, f *SourceFile, body *sitter.Node, static bool) {
	for _, m := range namedChildren(body) {
		switch m.Type() {
		case "method_definition", "method_signature", "abstract_method_signature":
			name, ok := memberName(f, m)
			if !ok {
				continue
			}
			if name == "constructor" {
				if !static {
					c.addParameterProperties(s, f, m)
				}
				continue
			}
			if isStatic(m) != static {
				continue
			}
			c.addMethodOrAccessor(s, f, m, name)
		case "public_field_definition":
			if isStatic(m) != static {
				continue
			}
			if name, ok := memberName(f, m); ok {
				s.add(&Property{
					Name:     name,
					Optional: hasToken(m, "?"),
					Readonly: hasToken(m, "readonly"),
					Decls:    []Decl{{File: f, Node: m}},
				})
			}
		case "index_signature":
			if !static {
				c.addIndexSignature(s, f, m)
			}
		}
	}
}

func (c *Checker) addMethodOrAccessor(s *structured, f *SourceFile, m *sitter.Node, name string) {
	if hasToken(m, "get") || hasToken(m, "set") {
		if existing := s.props[name]; existing != nil && !existing.Method {
			existing.Decls = append(existing.Decls, Decl{File: f, Node: m})
			return
		}
		s.add(&Property{Name: name, Decls: []Decl{{File: f, Node: m}}})
		return
	}
	if existing := s.props[name]; existing != nil && existing.Method && existing.Decls[0].Node.Parent() != nil &&
		sameNode(existing.Decls[0].Node.Parent(), m.Parent()) {
		existing.Decls = append(existing.Decls, Decl{File: f, Node: m})
		return
	}
	s.add(&Property{Name: name, Method: true, Optional: hasToken(m, "?"), Decls: []Decl{{File: f, Node: m}}})
}

func (c *Checker) addParameterProperties(s *structured, f *SourceFile, ctor *sitter.Node) {
	for _, p := range namedChildren(ctor.ChildByFieldName("parameters")) {
		if childOfType(p, "accessibility_modifier") == nil && !hasToken(p, "readonly") && childOfType(p, "override_modifier") == nil {
			continue
		}
		pattern := p.ChildByFieldName("pattern")
		if pattern == nil || pattern.Type() != "identifier" {
			continue
		}
		s.add(&Property{
			Name:     f.NodeText(pattern),
			Optional: p.Type() == "optional_parameter",
			Readonly: hasToken(p, "readonly"),
			Decls:    []Decl{{File: f, Node: p}},
		})
	}
}

func (c *Checker) addIndexSignature(s *structured, f *SourceFile, m *sitter.Node) {
	valueNode := m.ChildByFieldName("type")
	var value *Type
	if valueNode != nil {
		value = c.typeFromTypeNode(f, valueNode)
	} else {
		value = c.anyType
	}
	if clause := childOfType(m, "mapped_type_clause"); clause != nil {
		s.stringIndex = value
		return
	}
	keyNode := m.ChildByFieldName("index_type")
	if keyNode == nil {
		named := namedChildren(m)
		for _, n := range named {
			if n.Type() == "predefined_type" {
				keyNode = n
				break
			}
		}
	}
	if keyNode != nil && f.NodeText(keyNode) == "number" {
		s.numberIndex = value
	} else {
		s.stringIndex = value
	}
}

// addTypeMembers adds the members of an object type literal or interface
// body.
func (c *Checker) addTypeMembers(s *structured, f *SourceFile, body *sitter.Node) {
	for _, m := range namedChildren(body) {
		switch m.Type() {
		case "property_signature":
			if name, ok := memberName(f, m); ok {
				s.add(&Property{
					Name:     name,
					Optional: hasToken(m, "?"),
					Readonly: hasToken(m, "readonly"),
					Decls:    []Decl{{File: f, Node: m}},
				})
			}
		case "method_signature":
			if name, ok := memberName(f, m); ok {
				if existing := s.props[name]; existing != nil && existing.Method {
					existing.Decls = append(existing.Decls, Decl{File: f, Node: m})
					continue
				}
				c.addMethodOrAccessor(s, f, m, name)
			}
		case "call_signature":
			s.call = append(s.call, c.signatureOf(f, m))
		case "construct_signature":
			sig := c.signatureOf(f, m)
			s.construct = append(s.construct, sig)
		case "index_signature":
			c.addIndexSignature(s, f, m)
		}
	}
}

// resolveStaticMembers builds the constructor side of a class.
func (c *Checker) resolveStaticMembers(t *Type, s *structured) {
	sym := t.Symbol
	var classDecl Decl
	for _, d := range sym.Decls {
		switch d.Node.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			if classDecl.Node == nil {
				classDecl = d
			}
			c.addClassMembers(s, d.File, d.Node.ChildByFieldName("body"), true)
		}
	}
	if sym.Exports != nil {
		for _, name := range sym.Exports.Names() {
			exp := sym.Exports.Get(name)
			if exp.Flags.has(MeaningValue) {
				s.addIfAbsent(&Property{Name: name, Symbol: exp})
			}
		}
	}
	if classDecl.Node == nil {
		return
	}
	body := classDecl.Node.ChildByFieldName("body")
	var ctors []*sitter.Node
	for _, m := range namedChildren(body) {
		if (m.Type() == "method_definition" || m.Type() == "method_signature") && func() bool {
			name, ok := memberName(classDecl.File, m)
			return ok && name == "constructor"
		}() {
			ctors = append(ctors, m)
		}
	}
	ctors = overloadsOnly(ctors)
	for _, ctor := range ctors {
		sig := c.signatureOf(classDecl.File, ctor)
		sig.Construct = true
		s.construct = append(s.construct, sig)
	}
	declared := c.DeclaredTypeOf(sym)
	if len(ctors) == 0 {
		// Inherit the base constructor, or use the default one.
		for _, base := range c.BaseTypes(declared) {
			if base.Symbol == nil {
				continue
			}
			bs := c.structure(c.TypeOfSymbol(base.Symbol))
			for _, sig := range bs.construct {
				inst := *sig
				inst.Decl = classDecl
				inst.TypeParams = declared.TypeParams
				inst.fixedRet = c.instanceType(declared)
				inst.retDone = true
				inst.ret = inst.fixedRet
				s.construct = append(s.construct, &inst)
			}
		}
		if len(s.construct) == 0 {
			sig := &Signature{Decl: classDecl, Construct: true, TypeParams: declared.TypeParams}
			sig.ret = c.instanceType(declared)
			sig.retDone = true
			s.construct = append(s.construct, sig)
		}
	}
	for _, base := range c.BaseTypes(declared) {
		if base.Symbol == nil {
			continue
		}
		bs := c.structure(c.TypeOfSymbol(base.Symbol))
		for _, name := range bs.names {
			s.addIfAbsent(bs.props[name])
		}
	}
}

// overloadsOnly drops the implementation when overload signatures exist.
func overloadsOnly(decls []*sitter.Node) []*sitter.Node {
	if len(decls) < 2 {
		return decls
	}
	var sigs []*sitter.Node
	for _, d := range decls {
		if d.ChildByFieldName("body") == nil {
			sigs = append(sigs, d)
		}
	}
	if len(sigs) == 0 {
		return decls
	}
	return sigs
}

func (c *Checker) resolveExportMembers(t *Type, s *structured) {
	var exports *SymbolTable
	if t.Symbol != nil {
		exports = c.exportsOfModule(t.Symbol)
	}
	for _, name := range exports.Names() {
		if name == "export=" {
			continue
		}
		exp := exports.Get(name)
		target := c.resolveAlias(exp)
		if target == nil {
			s.add(&Property{Name: name, typ: c.anyType, done: true})
			continue
		}
		if !target.Flags.has(MeaningValue) {
			continue
		}
		s.add(&Property{Name: name, Symbol: target, Readonly: true})
	}
}

// resolveLiteralMembers builds the members of a type literal, function
// type, function expression or object literal.
func (c *Checker) resolveLiteralMembers(t *Type, s *structured) {
	f, n := t.decl.File, t.decl.Node
	switch n.Type() {
	case "object_type", "interface_body":
		c.addTypeMembers(s, f, n)
	case "function_type", "arrow_function", "function_expression", "function", "generator_function",
		"function_declaration", "generator_function_declaration", "function_signature",
		"method_definition", "method_signature", "abstract_method_signature":
		s.call = append(s.call, c.signatureOf(f, n))
	case "constructor_type":
		sig := c.signatureOf(f, n)
		sig.Construct = true
		s.construct = append(s.construct, sig)
	case "object":
		c.addObjectLiteralMembers(s, f, n)
	}
}

func (c *Checker) addObjectLiteralMembers(s *structured, f *SourceFile, obj *sitter.Node) {
	for _, m := range namedChildren(obj) {
		switch m.Type() {
		case "pair":
			key := m.ChildByFieldName("key")
			if key == nil || key.Type() == "computed_property_name" {
				continue
			}
			name := f.NodeText(key)
			if key.Type() == "string" {
				name = stringValue(f, key)
			}
			s.add(&Property{Name: name, Decls: []Decl{{File: f, Node: m}}})
		case "shorthand_property_identifier":
			s.add(&Property{Name: f.NodeText(m), Decls: []Decl{{File: f, Node: m}}})
		case "method_definition":
			if name, ok := memberName(f, m); ok {
				c.addMethodOrAccessor(s, f, m, name)
			}
		case "spread_element":
			spread := c.TypeOfExpression(f, m)
			for _, p := range c.Properties(spread) {
				s.add(p)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Properties

// PropertyOfType looks name up on the apparent type of t.
func (c *Checker) PropertyOfType(t *Type, name string) *Property {
	t = c.apparentType(t)
	if t.Flags&TypeObject == 0 {
		return nil
	}
	if p := c.structure(t).props[name]; p != nil {
		return p
	}
	if sigs := c.CallSignatures(t); len(sigs) > 0 || len(c.ConstructSignatures(t)) > 0 {
		if fn := c.globalType("Function"); fn != nil {
			if p := c.structure(fn).props[name]; p != nil {
				return p
			}
		}
	}
	if obj := c.globalType("Object"); obj != nil && obj != t {
		return c.structure(obj).props[name]
	}
	return nil
}

// apparentType maps primitives to their wrapper interfaces and type
// parameters to their constraints.
func (c *Checker) apparentType(t *Type) *Type {
	if t.Flags&TypeParameter != 0 {
		if con := c.constraintOf(t); con != nil {
			return c.apparentType(con)
		}
		return c.unknownType
	}
	var name string
	switch {
	case t.Flags&(TypeString|TypeStringLiteral) != 0:
		name = "String"
	case t.Flags&(TypeNumber|TypeNumberLiteral|TypeEnumLiteral|TypeEnum) != 0:
		name = "Number"
	case t.Flags&(TypeBoolean|TypeBooleanLiteral) != 0:
		name = "Boolean"
	case t.Flags&TypeESSymbol != 0:
		name = "Symbol"
	case t.Flags&TypeBigInt != 0:
		name = "BigInt"
	default:
		return t
	}
	if g := c.globalType(name); g != nil {
		return g
	}
	return t
}

// TypeOfProperty returns the declared type of a property.
func (c *Checker) TypeOfProperty(p *Property) *Type {
	if p.done {
		return p.typ
	}
	if p.busy {
		return c.anyType
	}
	p.busy = true
	var t *Type
	switch {
	case p.source != nil:
		t = c.instantiate(c.TypeOfProperty(p.source), p.mapper)
	case p.typeFn != nil:
		t = p.typeFn()
	case p.Symbol != nil:
		t = c.TypeOfSymbol(p.Symbol)
	case len(p.Decls) > 0:
		t = c.typeOfMemberDecls(p)
	default:
		t = c.anyType
	}
	p.typ, p.done, p.busy = t, true, false
	return t
}

func (c *Checker) typeOfMemberDecls(p *Property) *Type {
	d := p.Decls[0]
	n := d.Node
	switch n.Type() {
	case "property_signature", "public_field_definition":
		if ann := n.ChildByFieldName("type"); ann != nil {
			return c.typeFromTypeNode(d.File, ann)
		}
		if v := n.ChildByFieldName("value"); v != nil {
			if hasToken(n, "readonly") {
				return c.TypeOfExpression(d.File, v)
			}
			return c.widenDeclaration(c.TypeOfExpression(d.File, v))
		}
		return c.anyType
	case "required_parameter", "optional_parameter":
		if ann := n.ChildByFieldName("type"); ann != nil {
			return c.typeFromTypeNode(d.File, ann)
		}
		if v := n.ChildByFieldName("value"); v != nil {
			return c.widenDeclaration(c.TypeOfExpression(d.File, v))
		}
		return c.anyType
	case "pair":
		if v := n.ChildByFieldName("value"); v != nil {
			return c.widenDeclaration(c.TypeOfExpression(d.File, v))
		}
		return c.anyType
	case "shorthand_property_identifier":
		return c.widenDeclaration(c.TypeOfExpression(d.File, n))
	}
	if !p.Method {
		// Accessor: the getter's return type, else the setter's parameter.
		for _, decl := range p.Decls {
			if hasToken(decl.Node, "get") {
				return c.ReturnTypeOfSignature(c.signatureOf(decl.File, decl.Node))
			}
		}
		for _, decl := range p.Decls {
			sig := c.signatureOf(decl.File, decl.Node)
			if len(sig.Params) > 0 {
				return sig.Params[0].Type
			}
		}
		return c.anyType
	}
	var nodes []*sitter.Node
	for _, decl := range p.Decls {
		nodes = append(nodes, decl.Node)
	}
	nodes = overloadsOnly(nodes)
	fn := c.newType(TypeObject)
	fn.Object = ObjectAnonymous
	st := newStructured()
	for _, n := range nodes {
		st.call = append(st.call, c.signatureOf(d.File, n))
	}
	fn.resolved = st
	return fn
}

// CallSignatures returns the call signatures of t.
func (c *Checker) CallSignatures(t *Type) []*Signature {
	if t == nil {
		return nil
	}
	if t.Flags&TypeParameter != 0 {
		if con := c.constraintOf(t); con != nil {
			return c.CallSignatures(con)
		}
	}
	if t.Flags&TypeObject == 0 {
		return nil
	}
	return c.structure(t).call
}

// ConstructSignatures returns the construct signatures of t.
func (c *Checker) ConstructSignatures(t *Type) []*Signature {
	if t == nil || t.Flags&TypeObject == 0 {
		return nil
	}
	return c.structure(t).construct
}

// Properties returns the properties of t in declaration order.
func (c *Checker) Properties(t *Type) []*Property {
	t = c.apparentType(t)
	if t.Flags&TypeObject == 0 {
		return nil
	}
	s := c.structure(t)
	out := make([]*Property, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.props[name])
	}
	return out
}

// ---------------------------------------------------------------------------
// Instantiation

func (c *Checker) instantiate(t *Type, m *typeMapper) *Type {
	if m == nil || t == nil {
		return t
	}
	switch {
	case t.Flags&TypeParameter != 0:
		if r, ok := m.lookup(t); ok {
			return r
		}
		return t
	case t.Flags&TypeUnion != 0:
		ms := make([]*Type, len(t.Types))
		changed := false
		for i, x := range t.Types {
			ms[i] = c.instantiate(x, m)
			changed = changed || ms[i] != x
		}
		if !changed {
			return t
		}
		u := c.union(ms...)
		if t.Alias != nil {
			u = c.withAlias(u, t.Alias, c.instantiateList(t.AliasArgs, m))
		}
		return u
	case t.Flags&TypeIntersection != 0:
		ms := make([]*Type, len(t.Types))
		for i, x := range t.Types {
			ms[i] = c.instantiate(x, m)
		}
		return c.intersection(ms...)
	case t.Flags&TypeObject != 0:
		switch t.Object {
		case ObjectReference:
			args := c.instantiateList(t.TypeArgs, m)
			return c.reference(t.Target, args)
		case ObjectTuple:
			tt := c.newType(TypeObject)
			tt.Object = ObjectTuple
			tt.Types = c.instantiateList(t.Types, m)
			tt.Optional = t.Optional
			tt.Readonly = t.Readonly
			return tt
		case ObjectAnonymous:
			if t.Static || t.Module != "" {
				return t
			}
			if t.decl.Node == nil && t.source == nil && t.resolved == nil {
				return t
			}
			inst := c.newType(TypeObject)
			inst.Object = ObjectAnonymous
			inst.source = t
			inst.mapper = m
			inst.Alias = t.Alias
			inst.AliasArgs = c.instantiateList(t.AliasArgs, m)
			if t.source != nil {
				inst.source = t.source
				inst.mapper = composeMappers(t.mapper, m, c)
			}
			return inst
		}
	}
	return t
}

func composeMappers(first, second *typeMapper, c *Checker) *typeMapper {
	if first == nil {
		return second
	}
	targets := make([]*Type, len(first.targets))
	for i, t := range first.targets {
		targets[i] = c.instantiate(t, second)
	}
	out := &typeMapper{sources: append([]*Type(nil), first.sources...), targets: targets}
	for i, s := range second.sources {
		if _, ok := first.lookup(s); !ok {
			out.sources = append(out.sources, s)
			out.targets = append(out.targets, second.targets[i])
		}
	}
	return out
}

func (c *Checker) instantiateList(ts []*Type, m *typeMapper) []*Type {
	if len(ts) == 0 {
		return ts
	}
	out := make([]*Type, len(ts))
	for i, t := range ts {
		out[i] = c.instantiate(t, m)
	}
	return out
}

func (c *Checker) instantiateSignature(sig *Signature, m *typeMapper) *Signature {
	if m == nil {
		return sig
	}
	inst := &Signature{
		Decl:       sig.Decl,
		TypeParams: sig.TypeParams,
		MinArgs:    sig.MinArgs,
		Construct:  sig.Construct,
		ThisType:   c.instantiate(sig.ThisType, m),
		source:     sig,
		mapper:     m,
	}
	for _, p := range sig.Params {
		inst.Params = append(inst.Params, &Param{
			Name: p.Name, Type: c.instantiate(p.Type, m), Optional: p.Optional, Rest: p.Rest, Node: p.Node,
		})
	}
	return inst
}

func (c *Checker) intersection(types ...*Type) *Type {
	var flat []*Type
	for _, t := range types {
		if t.Flags&TypeIntersection != 0 {
			flat = append(flat, t.Types...)
		} else {
			flat = append(flat, t)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	for _, t := range flat {
		if t.Flags&TypeNever != 0 {
			return c.neverType
		}
		if t.Flags&TypeAny != 0 {
			return c.anyType
		}
	}
	t := c.newType(TypeIntersection)
	t.Types = flat
	return t
}

// isDerivedFrom reports whether t is base or extends it through declared
// base types.
func (c *Checker) isDerivedFrom(t, base *Type) bool {
	seen := map[*Type]bool{}
	var walk func(x *Type) bool
	walk = func(x *Type) bool {
		if x == base {
			return true
		}
		if seen[x] {
			return false
		}
		seen[x] = true
		target := x
		if x.Object == ObjectReference && x.Target != nil {
			if base.Object == ObjectReference && x.Target == base.Target {
				return false
			}
			target = x.Target
		}
		for _, b := range c.BaseTypes(target) {
			if walk(b) {
				return true
			}
		}
		return false
	}
	return t.Flags&TypeObject != 0 && walk(t)
}
