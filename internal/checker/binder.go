package checker

import sitter "github.com/smacker/go-tree-sitter"

// bindFile builds the file-level symbol tables.
func bindFile(f *SourceFile) {
	f.collectReferences()
	f.exports = NewSymbolTable()
	f.globals = NewSymbolTable()
	f.ambientModules = make(map[string]*Symbol)
	for _, stmt := range namedChildren(f.root) {
		switch stmt.Type() {
		case "import_statement", "export_statement":
			f.isModule = true
		}
	}

	b := &binder{file: f}
	var exports *SymbolTable
	if f.isModule {
		exports = f.exports
	}
	f.locals = NewSymbolTable()
	b.bindStatements(f.locals, namedChildren(f.root), exports, f.IsDeclaration, false)
	f.scopes[keyOf(f.root)] = f.locals

	if !f.isModule {
		for _, name := range f.locals.Names() {
			sym := f.locals.Get(name)
			sym.global = true
			f.globals.set(name, sym)
		}
	}
}

type binder struct {
	file *SourceFile
}

func (b *binder) decl(n *sitter.Node) Decl { return Decl{File: b.file, Node: n} }

func (b *binder) record(n *sitter.Node, sym *Symbol) {
	b.file.declSym[keyOf(n)] = sym
}

// bindStatements declares the statements of one block. Exported
// declarations also go to exports; exportAll exports every declaration,
// as inside ambient namespaces and module blocks.
func (b *binder) bindStatements(table *SymbolTable, stmts []*sitter.Node, exports *SymbolTable, ambient, exportAll bool) {
	for _, stmt := range stmts {
		switch stmt.Type() {
		case "export_statement":
			b.bindExport(stmt, table, exports, ambient)
		case "ambient_declaration":
			var ex *SymbolTable
			if exportAll {
				ex = exports
			}
			b.bindAmbient(stmt, table, ex)
		case "import_statement":
			b.bindImport(stmt, table)
		case "expression_statement":
			if inner := childOfType(stmt, "internal_module"); inner != nil {
				b.bindDeclarationInto(inner, table, exports, ambient, exportAll)
			}
		default:
			b.bindDeclarationInto(stmt, table, exports, ambient, exportAll)
		}
	}
}

func (b *binder) bindDeclarationInto(n *sitter.Node, table, exports *SymbolTable, ambient, exported bool) []*Symbol {
	syms := b.bindDeclaration(n, table, ambient)
	if exported && exports != nil {
		for _, sym := range syms {
			exports.set(sym.Name, sym)
		}
	}
	return syms
}

func (b *binder) bindDeclaration(n *sitter.Node, table *SymbolTable, ambient bool) []*Symbol {
	f := b.file
	declare := func(nameNode *sitter.Node, flags SymbolFlags) *Symbol {
		sym := table.declare(f.NodeText(nameNode), flags, b.decl(n))
		sym.ambient = sym.ambient || ambient
		b.record(n, sym)
		return sym
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		if name := n.ChildByFieldName("name"); name != nil {
			return []*Symbol{declare(name, SymFunction)}
		}
	case "class_declaration", "abstract_class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			return []*Symbol{declare(name, SymClass)}
		}
	case "interface_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			return []*Symbol{declare(name, SymInterface)}
		}
	case "type_alias_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			return []*Symbol{declare(name, SymTypeAlias)}
		}
	case "enum_declaration":
		name := n.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		sym := declare(name, SymEnum)
		if sym.Exports == nil {
			sym.Exports = NewSymbolTable()
		}
		for _, m := range namedChildren(n.ChildByFieldName("body")) {
			memberName, _ := enumMember(m)
			if memberName == nil || m.Type() == "comment" {
				continue
			}
			text := f.NodeText(memberName)
			if memberName.Type() == "string" {
				text = stringValue(f, memberName)
			}
			member := sym.Exports.declare(text, SymEnumMember, b.decl(m))
			b.record(m, member)
		}
		return []*Symbol{sym}
	case "lexical_declaration", "variable_declaration":
		flags := SymVariable
		if kind := n.ChildByFieldName("kind"); kind != nil && f.NodeText(kind) == "const" {
			flags |= SymConst
		} else if n.Type() == "lexical_declaration" && n.ChildCount() > 0 && f.NodeText(n.Child(0)) == "const" {
			flags |= SymConst
		}
		var out []*Symbol
		for _, d := range namedChildren(n) {
			if d.Type() != "variable_declarator" {
				continue
			}
			for _, id := range bindingNames(d.ChildByFieldName("name")) {
				declNode := d
				if !sameNode(id, d.ChildByFieldName("name")) {
					declNode = id
				}
				sym := table.declare(f.NodeText(id), flags, b.decl(declNode))
				sym.ambient = sym.ambient || ambient
				b.record(declNode, sym)
				b.record(id, sym)
				out = append(out, sym)
			}
		}
		return out
	case "internal_module", "module":
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() == "string" {
			if name != nil {
				b.bindAmbientModule(n, stringValue(f, name))
			}
			return nil
		}
		return []*Symbol{b.bindNamespace(n, name, table, ambient)}
	}
	return nil
}

// bindNamespace declares a (possibly dotted) namespace and binds its body.
func (b *binder) bindNamespace(n, name *sitter.Node, table *SymbolTable, ambient bool) *Symbol {
	f := b.file
	var parts []*sitter.Node
	var collect func(*sitter.Node)
	collect = func(x *sitter.Node) {
		if x.Type() == "nested_identifier" || x.Type() == "member_expression" {
			for _, c := range namedChildren(x) {
				collect(c)
			}
			return
		}
		parts = append(parts, x)
	}
	collect(name)

	var outer *Symbol
	cur := table
	var sym *Symbol
	for _, part := range parts {
		sym = cur.declare(f.NodeText(part), SymNamespace, b.decl(n))
		sym.ambient = sym.ambient || ambient
		if sym.Exports == nil {
			sym.Exports = NewSymbolTable()
		}
		if outer == nil {
			outer = sym
		}
		cur = sym.Exports
	}
	b.record(n, sym)

	if body := n.ChildByFieldName("body"); body != nil {
		locals := NewSymbolTable()
		b.bindStatements(locals, namedChildren(body), sym.Exports, ambient, ambient)
		f.scopes[keyOf(body)] = locals
	}
	return outer
}

func (b *binder) bindAmbientModule(n *sitter.Node, spec string) {
	f := b.file
	sym := f.ambientModules[spec]
	if sym == nil {
		sym = &Symbol{Name: spec, Flags: SymModule, ambient: true}
		f.ambientModules[spec] = sym
	}
	sym.Decls = append(sym.Decls, b.decl(n))
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	if sym.Exports == nil {
		sym.Exports = NewSymbolTable()
	}
	locals := NewSymbolTable()
	exportAll := true
	for _, stmt := range namedChildren(body) {
		if stmt.Type() == "export_statement" {
			exportAll = false
			break
		}
	}
	b.bindStatements(locals, namedChildren(body), sym.Exports, true, exportAll)
	f.scopes[keyOf(body)] = locals
}

func (b *binder) bindAmbient(n *sitter.Node, table, exports *SymbolTable) []*Symbol {
	f := b.file
	if hasToken(n, "global") {
		if body := childOfType(n, "statement_block"); body != nil {
			locals := NewSymbolTable()
			b.bindStatements(locals, namedChildren(body), nil, true, false)
			for _, name := range locals.Names() {
				sym := locals.Get(name)
				sym.global = true
				f.globals.set(name, sym)
			}
			f.scopes[keyOf(body)] = locals
		}
		return nil
	}
	var out []*Symbol
	for _, d := range namedChildren(n) {
		out = append(out, b.bindDeclarationInto(d, table, exports, true, exports != nil)...)
	}
	return out
}

func (b *binder) bindExport(n *sitter.Node, table, exports *SymbolTable, ambient bool) {
	f := b.file
	if exports == nil {
		exports = NewSymbolTable()
	}
	isDefault := hasToken(n, "default")

	if d := n.ChildByFieldName("declaration"); d != nil {
		var syms []*Symbol
		if d.Type() == "ambient_declaration" {
			syms = b.bindAmbient(d, table, nil)
		} else {
			syms = b.bindDeclaration(d, table, ambient)
		}
		for _, sym := range syms {
			if isDefault {
				exports.set("default", sym)
			} else {
				exports.set(sym.Name, sym)
			}
		}
		return
	}

	source := n.ChildByFieldName("source")
	spec := ""
	if source != nil {
		spec = stringValue(f, source)
		f.specifiers = append(f.specifiers, spec)
	}
	typeOnly := hasToken(n, "type")

	if clause := childOfType(n, "export_clause"); clause != nil {
		for _, s := range namedChildren(clause) {
			if s.Type() != "export_specifier" {
				continue
			}
			name := s.ChildByFieldName("name")
			if name == nil {
				continue
			}
			local := f.NodeText(name)
			exported := local
			if alias := s.ChildByFieldName("alias"); alias != nil {
				exported = f.NodeText(alias)
			}
			sym := &Symbol{
				Name:  exported,
				Flags: SymAlias,
				Decls: []Decl{b.decl(s)},
				alias: &aliasTarget{file: f, module: spec, name: local, node: s, typeOnly: typeOnly || hasToken(s, "type")},
			}
			b.record(s, sym)
			exports.set(exported, sym)
		}
		return
	}

	if spec != "" {
		if ns := childOfType(n, "namespace_export"); ns != nil {
			if id := childOfType(ns, "identifier", "string"); id != nil {
				name := f.NodeText(id)
				sym := &Symbol{Name: name, Flags: SymAlias, Decls: []Decl{b.decl(ns)},
					alias: &aliasTarget{file: f, module: spec, name: "*", node: ns}}
				exports.set(name, sym)
			}
			return
		}
		f.exportStars = append(f.exportStars, spec)
		return
	}

	value := n.ChildByFieldName("value")
	if value == nil && hasToken(n, "=") {
		if named := namedChildren(n); len(named) > 0 {
			value = named[len(named)-1]
		}
	}
	if value == nil {
		return
	}
	name := "default"
	if !isDefault {
		name = "export="
	}
	var sym *Symbol
	if value.Type() == "identifier" {
		sym = &Symbol{Name: name, Flags: SymAlias, Decls: []Decl{b.decl(n)},
			alias: &aliasTarget{file: f, name: f.NodeText(value), node: n}}
	} else {
		sym = &Symbol{Name: name, Flags: SymVariable | SymConst, Decls: []Decl{b.decl(n)}}
	}
	b.record(n, sym)
	exports.set(name, sym)
}

func (b *binder) bindImport(n *sitter.Node, table *SymbolTable) {
	f := b.file
	typeOnly := hasToken(n, "type")
	add := func(local *sitter.Node, spec, name string, spec2 *sitter.Node, typeOnly bool) {
		sym := &Symbol{
			Name:  f.NodeText(local),
			Flags: SymAlias,
			Decls: []Decl{b.decl(spec2)},
			alias: &aliasTarget{file: f, module: spec, name: name, node: spec2, typeOnly: typeOnly},
		}
		table.set(sym.Name, sym)
		b.record(spec2, sym)
		b.record(local, sym)
	}

	if req := childOfType(n, "import_require_clause"); req != nil {
		source := req.ChildByFieldName("source")
		id := childOfType(req, "identifier")
		if source == nil || id == nil {
			return
		}
		spec := stringValue(f, source)
		f.specifiers = append(f.specifiers, spec)
		add(id, spec, "export=", req, typeOnly)
		return
	}

	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	spec := stringValue(f, source)
	f.specifiers = append(f.specifiers, spec)

	clause := childOfType(n, "import_clause")
	if clause == nil {
		return
	}
	for _, c := range namedChildren(clause) {
		switch c.Type() {
		case "identifier":
			add(c, spec, "default", c, typeOnly)
		case "namespace_import":
			if id := childOfType(c, "identifier"); id != nil {
				add(id, spec, "*", c, typeOnly)
			}
		case "named_imports":
			for _, s := range namedChildren(c) {
				if s.Type() != "import_specifier" {
					continue
				}
				name := s.ChildByFieldName("name")
				if name == nil {
					continue
				}
				local := name
				if alias := s.ChildByFieldName("alias"); alias != nil {
					local = alias
				}
				imported := f.NodeText(name)
				if name.Type() == "string" {
					imported = stringValue(f, name)
				}
				add(local, spec, imported, s, typeOnly || hasToken(s, "type"))
			}
		}
	}
}

// bindingNames returns the identifiers a binding pattern declares.
func bindingNames(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []*sitter.Node{n}
	case "pair_pattern":
		return bindingNames(n.ChildByFieldName("value"))
	case "object_assignment_pattern", "assignment_pattern":
		return bindingNames(n.ChildByFieldName("left"))
	case "object_pattern", "array_pattern", "rest_pattern":
		var out []*sitter.Node
		for _, c := range namedChildren(n) {
			out = append(out, bindingNames(c)...)
		}
		return out
	}
	return nil
}

// scopeContainers are the node kinds that introduce a lexical scope.
var scopeContainers = map[string]bool{
	"program":                        true,
	"statement_block":                true,
	"switch_body":                    true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
	"function_signature":             true,
	"method_signature":               true,
	"abstract_method_signature":      true,
	"call_signature":                 true,
	"construct_signature":            true,
	"function_type":                  true,
	"constructor_type":               true,
	"class_declaration":              true,
	"abstract_class_declaration":     true,
	"class":                          true,
	"interface_declaration":          true,
	"type_alias_declaration":         true,
	"for_statement":                  true,
	"for_in_statement":               true,
	"catch_clause":                   true,
}

// scope returns the symbols declared directly by a scope container, binding
// it on first use.
func (f *SourceFile) scope(n *sitter.Node) *SymbolTable {
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()
	key := keyOf(n)
	if t, ok := f.scopes[key]; ok {
		return t
	}
	t := NewSymbolTable()
	f.scopes[key] = t
	b := &binder{file: f}

	bindTypeParams := func() {
		for _, tp := range namedChildren(n.ChildByFieldName("type_parameters")) {
			if tp.Type() != "type_parameter" {
				continue
			}
			if name := tp.ChildByFieldName("name"); name != nil {
				sym := t.declare(f.NodeText(name), SymTypeParameter, b.decl(tp))
				b.record(tp, sym)
			}
		}
	}

	switch n.Type() {
	case "statement_block", "program":
		b.bindStatements(t, namedChildren(n), nil, f.IsDeclaration, false)
	case "switch_body":
		for _, c := range namedChildren(n) {
			var stmts []*sitter.Node
			for _, s := range namedChildren(c) {
				if !sameNode(s, c.ChildByFieldName("value")) {
					stmts = append(stmts, s)
				}
			}
			b.bindStatements(t, stmts, nil, false, false)
		}
	case "class_declaration", "abstract_class_declaration", "interface_declaration", "type_alias_declaration":
		bindTypeParams()
	case "class":
		bindTypeParams()
		if name := n.ChildByFieldName("name"); name != nil {
			sym := t.declare(f.NodeText(name), SymClass, b.decl(n))
			b.record(n, sym)
		}
	case "for_statement":
		if init := n.ChildByFieldName("initializer"); init != nil {
			b.bindDeclaration(init, t, false)
		}
	case "for_in_statement":
		if n.ChildByFieldName("kind") != nil {
			flags := SymVariable
			if f.NodeText(n.ChildByFieldName("kind")) == "const" {
				flags |= SymConst
			}
			for _, id := range bindingNames(n.ChildByFieldName("left")) {
				sym := t.declare(f.NodeText(id), flags, b.decl(id))
				b.record(id, sym)
			}
		}
	case "catch_clause":
		for _, id := range bindingNames(n.ChildByFieldName("parameter")) {
			sym := t.declare(f.NodeText(id), SymVariable, b.decl(id))
			b.record(id, sym)
		}
	default:
		bindTypeParams()
		if name := n.ChildByFieldName("name"); name != nil && (n.Type() == "function_expression" || n.Type() == "function" || n.Type() == "generator_function") {
			sym := t.declare(f.NodeText(name), SymFunction, b.decl(n))
			b.record(n, sym)
		}
		if p := n.ChildByFieldName("parameter"); p != nil {
			sym := t.declare(f.NodeText(p), SymParameter|SymVariable, b.decl(p))
			b.record(p, sym)
		}
		for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
			if p.Type() != "required_parameter" && p.Type() != "optional_parameter" {
				continue
			}
			for _, id := range bindingNames(p.ChildByFieldName("pattern")) {
				declNode := p
				if !sameNode(id, p.ChildByFieldName("pattern")) {
					declNode = id
				}
				sym := t.declare(f.NodeText(id), SymParameter|SymVariable, b.decl(declNode))
				b.record(declNode, sym)
				b.record(id, sym)
			}
		}
	}
	return t
}

// symbolOfDeclaration returns the symbol bound for a declaration node.
func (f *SourceFile) symbolOfDeclaration(n *sitter.Node) *Symbol {
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()
	return f.declSym[keyOf(n)]
}
