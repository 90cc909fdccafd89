package checker

import sitter "github.com/smacker/go-tree-sitter"

// SymbolFlags describe what a symbol declares. A merged symbol carries the
// union of its declarations' flags.
type SymbolFlags uint32

const (
	SymVariable SymbolFlags = 1 << iota
	SymFunction
	SymClass
	SymInterface
	SymTypeAlias
	SymEnum
	SymEnumMember
	SymNamespace
	SymTypeParameter
	SymAlias
	SymConst
	SymParameter
	SymModule
)

// Meaning selects the declaration space a name is looked up in.
type Meaning int

const (
	MeaningValue Meaning = 1 << iota
	MeaningType
	MeaningNamespace
)

func (f SymbolFlags) has(m Meaning) bool {
	if f&SymAlias != 0 {
		return true
	}
	if m&MeaningValue != 0 && f&(SymVariable|SymFunction|SymClass|SymEnum|SymEnumMember|SymNamespace|SymParameter|SymModule) != 0 {
		return true
	}
	if m&MeaningType != 0 && f&(SymClass|SymInterface|SymTypeAlias|SymEnum|SymTypeParameter) != 0 {
		return true
	}
	if m&MeaningNamespace != 0 && f&(SymNamespace|SymEnum|SymModule) != 0 {
		return true
	}
	return false
}

// Decl is a declaration node together with the file it lives in.
type Decl struct {
	File *SourceFile
	Node *sitter.Node
}

// Symbol is a named entity produced by the binder.
type Symbol struct {
	Name    string
	Flags   SymbolFlags
	Decls   []Decl
	Exports *SymbolTable

	// alias describes an import or re-export binding.
	alias *aliasTarget
	// global marks symbols bound from a script file or the default library.
	global bool
	// ambient marks symbols declared in a declaration context.
	ambient bool
}

type aliasTarget struct {
	file   *SourceFile
	module string
	// name is the imported name, "*" for namespace imports, "default", or
	// "export=" for import-equals bindings. When module is empty the alias
	// refers to a local declaration of file.
	name string
	// node is the import or export specifier that created the alias.
	node     *sitter.Node
	typeOnly bool
}

// FirstDecl returns the first declaration, or a zero Decl.
func (s *Symbol) FirstDecl() Decl {
	if len(s.Decls) == 0 {
		return Decl{}
	}
	return s.Decls[0]
}

// IsAlias reports whether the symbol is an import or re-export binding.
func (s *Symbol) IsAlias() bool { return s.Flags&SymAlias != 0 }

// SymbolTable is an insertion-ordered name table.
type SymbolTable struct {
	names []string
	m     map[string]*Symbol
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{m: make(map[string]*Symbol)}
}

// Get returns the symbol named name, or nil.
func (t *SymbolTable) Get(name string) *Symbol {
	if t == nil {
		return nil
	}
	return t.m[name]
}

// Names returns the symbol names in insertion order.
func (t *SymbolTable) Names() []string {
	if t == nil {
		return nil
	}
	return t.names
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

func (t *SymbolTable) set(name string, sym *Symbol) {
	if _, ok := t.m[name]; !ok {
		t.names = append(t.names, name)
	}
	t.m[name] = sym
}

// declare adds a declaration to the table, merging with an existing symbol
// of the same name.
func (t *SymbolTable) declare(name string, flags SymbolFlags, decl Decl) *Symbol {
	if sym := t.m[name]; sym != nil && sym.alias == nil && flags&SymAlias == 0 {
		sym.Flags |= flags
		sym.Decls = append(sym.Decls, decl)
		return sym
	}
	sym := &Symbol{Name: name, Flags: flags, Decls: []Decl{decl}}
	t.set(name, sym)
	return sym
}

// merger combines symbol tables from several files without mutating the
// per-file symbols, which are shared between programs.
type merger struct {
	owned map[*Symbol]bool
}

func newMerger() *merger {
	return &merger{owned: make(map[*Symbol]bool)}
}

func (m *merger) mergeInto(dst, src *SymbolTable) {
	for _, name := range src.Names() {
		s := src.Get(name)
		cur := dst.Get(name)
		if cur == nil {
			dst.set(name, s)
			continue
		}
		if cur.alias != nil || s.alias != nil {
			continue
		}
		if !m.owned[cur] {
			cur = m.clone(cur)
			dst.set(name, cur)
		}
		cur.Flags |= s.Flags
		cur.Decls = append(cur.Decls, s.Decls...)
		cur.global = cur.global || s.global
		cur.ambient = cur.ambient || s.ambient
		if s.Exports.Len() > 0 {
			if cur.Exports == nil {
				cur.Exports = NewSymbolTable()
			}
			m.mergeInto(cur.Exports, s.Exports)
		}
	}
}

func (m *merger) clone(s *Symbol) *Symbol {
	c := &Symbol{
		Name:    s.Name,
		Flags:   s.Flags,
		Decls:   append([]Decl(nil), s.Decls...),
		global:  s.global,
		ambient: s.ambient,
	}
	if s.Exports != nil {
		c.Exports = NewSymbolTable()
		for _, name := range s.Exports.Names() {
			c.Exports.set(name, s.Exports.Get(name))
		}
	}
	m.owned[c] = true
	return c
}
