package checker

import sitter "github.com/smacker/go-tree-sitter"

// TypeFlags classifies a Type. Exactly one of the kind flags is set.
type TypeFlags uint32

const (
	TypeAny TypeFlags = 1 << iota
	TypeUnknown
	TypeString
	TypeNumber
	TypeBoolean
	TypeBigInt
	TypeESSymbol
	TypeVoid
	TypeUndefined
	TypeNull
	TypeNever
	TypeNonPrimitive
	TypeStringLiteral
	TypeNumberLiteral
	TypeBooleanLiteral
	TypeBigIntLiteral
	TypeEnumLiteral
	TypeEnum
	TypeUnion
	TypeIntersection
	TypeObject
	TypeParameter
)

const (
	typePrimitive = TypeString | TypeNumber | TypeBoolean | TypeBigInt | TypeESSymbol |
		TypeVoid | TypeUndefined | TypeNull | TypeStringLiteral | TypeNumberLiteral |
		TypeBooleanLiteral | TypeBigIntLiteral | TypeEnumLiteral | TypeEnum
	typeNullable = TypeUndefined | TypeNull
)

// ObjectKind distinguishes object types.
type ObjectKind int

const (
	ObjectAnonymous ObjectKind = iota
	ObjectClass
	ObjectInterface
	ObjectReference
	ObjectTuple
)

// Type is a resolved type. Types are owned by the Checker that created them
// and compare by identity.
type Type struct {
	id     int
	Flags  TypeFlags
	Object ObjectKind
	// Name is the intrinsic name, the declared name of a class, interface,
	// enum or type parameter, or the rendered value of a literal.
	Name   string
	Symbol *Symbol

	// Types holds union or intersection members and tuple elements.
	Types []*Type
	// Optional marks tuple elements that may be omitted, parallel to Types.
	Optional []bool

	// Target and TypeArgs describe an instantiated generic reference.
	Target   *Type
	TypeArgs []*Type
	// TypeParams lists the type parameters of a generic class or interface.
	TypeParams []*Type
	// Readonly marks readonly array references.
	Readonly bool

	// Alias names the type alias this type was declared through.
	Alias     *Symbol
	AliasArgs []*Type

	// Static marks the constructor side of a class (typeof C), or the object
	// type of a namespace or enum.
	Static bool
	// Module is set on the object type of an imported module namespace.
	Module string

	// Enum literal and enum types.
	enumOf *Type

	// Type parameter constraints resolve lazily.
	constraint     *Type
	constraintNode *sitter.Node
	constraintFile *SourceFile
	constraintDone bool

	// Anonymous object types are either built from a declaration (decl)
	// or instantiated from another anonymous type (source + mapper).
	decl     Decl
	source   *Type
	mapper   *typeMapper
	resolved *structured
}

// ID returns a stable identity for the type within its checker.
func (t *Type) ID() int { return t.id }

// IsLiteral reports whether the type is a string, number, bigint or boolean
// literal. Enum members are not literals in this sense.
func (t *Type) IsLiteral() bool {
	return t.Flags&(TypeStringLiteral|TypeNumberLiteral|TypeBigIntLiteral|TypeBooleanLiteral) != 0 &&
		t.Flags&TypeEnumLiteral == 0
}

// IsUnion reports whether the type is a union.
func (t *Type) IsUnion() bool { return t.Flags&TypeUnion != 0 }

// IsClassOrInterface reports whether the type is a declared (uninstantiated)
// class or interface type.
func (t *Type) IsClassOrInterface() bool {
	return t.Flags&TypeObject != 0 && (t.Object == ObjectClass || t.Object == ObjectInterface)
}

func (t *Type) isArray() bool {
	return t.Flags&TypeObject != 0 && t.Object == ObjectReference && t.Target != nil && t.Target.Name == "Array" && len(t.TypeArgs) == 1 && t.Target.Symbol != nil && t.Target.Symbol.global
}

func (t *Type) isReadonlyArray() bool {
	return t.Flags&TypeObject != 0 && t.Object == ObjectReference && t.Target != nil && t.Target.Name == "ReadonlyArray" && len(t.TypeArgs) == 1 && t.Target.Symbol != nil && t.Target.Symbol.global
}

// Param is a signature parameter.
type Param struct {
	Name     string
	Type     *Type
	Optional bool
	Rest     bool
	Node     *sitter.Node
}

// Signature is a call or construct signature.
type Signature struct {
	Decl       Decl
	TypeParams []*Type
	Params     []*Param
	MinArgs    int
	Construct  bool
	// ThisType is the declared this parameter, nil when absent.
	ThisType *Type

	ret      *Type
	retDone  bool
	retBusy  bool
	mapper   *typeMapper
	source   *Signature
	fixedRet *Type
}

// HasRest reports whether the last parameter is a rest parameter.
func (s *Signature) HasRest() bool {
	return len(s.Params) > 0 && s.Params[len(s.Params)-1].Rest
}

// Property is a named member of an object type.
type Property struct {
	Name     string
	Optional bool
	Readonly bool
	Method   bool
	Decls    []Decl
	// Symbol is set when the property stands for an exported symbol of a
	// namespace, enum or module.
	Symbol *Symbol

	typ    *Type
	done   bool
	busy   bool
	mapper *typeMapper
	source *Property
	typeFn func() *Type
}

// structured holds the resolved members of an object type.
type structured struct {
	names       []string
	props       map[string]*Property
	call        []*Signature
	construct   []*Signature
	stringIndex *Type
	numberIndex *Type
}

func newStructured() *structured {
	return &structured{props: make(map[string]*Property)}
}

func (s *structured) add(p *Property) {
	if _, ok := s.props[p.Name]; !ok {
		s.names = append(s.names, p.Name)
	}
	s.props[p.Name] = p
}

func (s *structured) addIfAbsent(p *Property) {
	if _, ok := s.props[p.Name]; !ok {
		s.names = append(s.names, p.Name)
		s.props[p.Name] = p
	}
}

// typeMapper substitutes type parameters.
type typeMapper struct {
	sources []*Type
	targets []*Type
}

func newMapper(sources, targets []*Type) *typeMapper {
	if len(sources) == 0 {
		return nil
	}
	return &typeMapper{sources: sources, targets: targets}
}

func (m *typeMapper) lookup(t *Type) (*Type, bool) {
	if m == nil {
		return nil, false
	}
	for i, s := range m.sources {
		if s == t {
			if i < len(m.targets) && m.targets[i] != nil {
				return m.targets[i], true
			}
			return nil, false
		}
	}
	return nil, false
}
