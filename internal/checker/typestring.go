package checker

import (
	"strings"
)

// TypeToString renders t the way declaration files and diagnostics spell
// it.
func (c *Checker) TypeToString(t *Type) string {
	var sb strings.Builder
	c.writeType(&sb, t, 0)
	return sb.String()
}

const maxTypeDepth = 6

func (c *Checker) writeType(sb *strings.Builder, t *Type, depth int) {
	if t == nil {
		sb.WriteString("any")
		return
	}
	if depth > maxTypeDepth {
		sb.WriteString("...")
		return
	}
	if t.Alias != nil {
		sb.WriteString(t.Alias.Name)
		c.writeTypeArgs(sb, t.AliasArgs, depth)
		return
	}
	switch {
	case t.Flags&TypeUnion != 0:
		c.writeUnion(sb, t, depth)
	case t.Flags&TypeIntersection != 0:
		for i, m := range t.Types {
			if i > 0 {
				sb.WriteString(" & ")
			}
			c.writeMember(sb, m, depth, TypeUnion)
		}
	case t.Flags&TypeObject != 0:
		c.writeObject(sb, t, depth)
	default:
		sb.WriteString(t.Name)
	}
}

// writeUnion lists members in identity order with null and undefined last
// and a true/false pair collapsed to boolean.
func (c *Checker) writeUnion(sb *strings.Builder, t *Type, depth int) {
	var flags TypeFlags
	var parts []*Type
	for _, m := range t.Types {
		flags |= m.Flags
		if m.Flags&typeNullable == 0 {
			parts = append(parts, m)
		}
	}
	if flags&TypeNull != 0 {
		parts = append(parts, c.nullType)
	}
	if flags&TypeUndefined != 0 {
		parts = append(parts, c.undefinedType)
	}
	for i, m := range parts {
		if i > 0 {
			sb.WriteString(" | ")
		}
		c.writeMember(sb, m, depth, TypeUnion|TypeIntersection)
	}
}

// writeMember parenthesizes function types, and compound types matching
// wrap, when they appear inside another type.
func (c *Checker) writeMember(sb *strings.Builder, t *Type, depth int, wrap TypeFlags) {
	needs := (t.Alias == nil && t.Flags&wrap != 0) || c.isFunctionLike(t)
	if needs {
		sb.WriteByte('(')
	}
	c.writeType(sb, t, depth+1)
	if needs {
		sb.WriteByte(')')
	}
}

// isFunctionLike reports whether t renders as an arrow or constructor type.
func (c *Checker) isFunctionLike(t *Type) bool {
	if t.Alias != nil || t.Flags&TypeObject == 0 || t.Object != ObjectAnonymous || t.Static || t.Module != "" {
		return false
	}
	if t.Symbol != nil && t.Symbol.Flags&(SymNamespace|SymEnum) != 0 && t.decl.Node == nil {
		return false
	}
	s := c.structure(t)
	return len(s.names) == 0 && s.stringIndex == nil && s.numberIndex == nil &&
		len(s.call)+len(s.construct) == 1
}

func (c *Checker) writeTypeArgs(sb *strings.Builder, args []*Type, depth int) {
	if len(args) == 0 {
		return
	}
	sb.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		c.writeType(sb, a, depth+1)
	}
	sb.WriteByte('>')
}

func (c *Checker) writeObject(sb *strings.Builder, t *Type, depth int) {
	switch t.Object {
	case ObjectReference:
		if t.isArray() || t.isReadonlyArray() {
			if t.isReadonlyArray() {
				sb.WriteString("readonly ")
			}
			c.writeMember(sb, t.TypeArgs[0], depth, TypeUnion|TypeIntersection)
			sb.WriteString("[]")
			return
		}
		sb.WriteString(t.Name)
		c.writeTypeArgs(sb, t.TypeArgs, depth)
	case ObjectClass, ObjectInterface:
		sb.WriteString(t.Name)
		c.writeTypeArgs(sb, t.TypeParams, depth)
	case ObjectTuple:
		if t.Readonly {
			sb.WriteString("readonly ")
		}
		sb.WriteByte('[')
		for i, e := range t.Types {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.writeType(sb, e, depth+1)
			if t.Optional[i] {
				sb.WriteByte('?')
			}
		}
		sb.WriteByte(']')
	default:
		c.writeAnonymous(sb, t, depth)
	}
}

func (c *Checker) writeAnonymous(sb *strings.Builder, t *Type, depth int) {
	switch {
	case t.Module != "":
		sb.WriteString(`typeof import(`)
		if strings.HasPrefix(t.Module, `"`) {
			sb.WriteString(t.Module)
		} else {
			sb.WriteString(`"` + t.Module + `"`)
		}
		sb.WriteByte(')')
		return
	case t.Static, t.Symbol != nil && t.Symbol.Flags&(SymNamespace|SymEnum) != 0 && t.decl.Node == nil:
		sb.WriteString("typeof ")
		sb.WriteString(t.Symbol.Name)
		return
	}
	s := c.structure(t)
	if len(s.names) == 0 && s.stringIndex == nil && s.numberIndex == nil {
		switch {
		case len(s.call) == 1 && len(s.construct) == 0:
			c.writeSignature(sb, s.call[0], " => ", depth)
			return
		case len(s.construct) == 1 && len(s.call) == 0:
			sb.WriteString("new ")
			c.writeSignature(sb, s.construct[0], " => ", depth)
			return
		}
	}
	if depth >= maxTypeDepth {
		sb.WriteString("{ ... }")
		return
	}
	var parts []string
	for _, sig := range s.call {
		var b strings.Builder
		c.writeSignature(&b, sig, ": ", depth)
		parts = append(parts, b.String())
	}
	for _, sig := range s.construct {
		var b strings.Builder
		b.WriteString("new ")
		c.writeSignature(&b, sig, ": ", depth)
		parts = append(parts, b.String())
	}
	if s.stringIndex != nil {
		parts = append(parts, "[x: string]: "+c.typeString(s.stringIndex, depth+1))
	}
	if s.numberIndex != nil {
		parts = append(parts, "[x: number]: "+c.typeString(s.numberIndex, depth+1))
	}
	for _, name := range s.names {
		p := s.props[name]
		var b strings.Builder
		if p.Readonly && p.Symbol == nil {
			b.WriteString("readonly ")
		}
		b.WriteString(propertyName(name))
		if p.Optional {
			b.WriteByte('?')
		}
		pt := c.TypeOfProperty(p)
		if p.Method && c.isFunctionLike(pt) {
			c.writeSignature(&b, c.CallSignatures(pt)[0], ": ", depth)
		} else {
			b.WriteString(": ")
			c.writeType(&b, pt, depth+1)
		}
		parts = append(parts, b.String())
	}
	if len(parts) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteString("{ ")
	for _, p := range parts {
		sb.WriteString(p)
		sb.WriteString("; ")
	}
	sb.WriteByte('}')
}

func (c *Checker) typeString(t *Type, depth int) string {
	var sb strings.Builder
	c.writeType(&sb, t, depth)
	return sb.String()
}

func propertyName(name string) string {
	if name == "" {
		return `""`
	}
	for i, r := range name {
		ok := r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 0x7f ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			if isDigits(name) {
				return name
			}
			return `"` + name + `"`
		}
	}
	return name
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// writeSignature renders "<T>(a: A, b?: B) => R"; sep is " => " for
// function types and ": " for members.
func (c *Checker) writeSignature(sb *strings.Builder, sig *Signature, sep string, depth int) {
	if len(sig.TypeParams) > 0 {
		sb.WriteByte('<')
		for i, tp := range sig.TypeParams {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(tp.Name)
			if con := c.constraintOf(tp); con != nil {
				sb.WriteString(" extends ")
				c.writeType(sb, con, depth+1)
			}
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	i := 0
	if sig.ThisType != nil {
		sb.WriteString("this: ")
		c.writeType(sb, sig.ThisType, depth+1)
		i++
	}
	for _, p := range sig.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		i++
		if p.Rest {
			sb.WriteString("...")
		}
		sb.WriteString(p.Name)
		if p.Optional && !p.Rest {
			sb.WriteByte('?')
		}
		sb.WriteString(": ")
		c.writeType(sb, p.Type, depth+1)
	}
	sb.WriteByte(')')
	sb.WriteString(sep)
	c.writeType(sb, c.ReturnTypeOfSignature(sig), depth+1)
}
