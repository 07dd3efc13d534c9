// Package types defines the Thirdlang type model:
// the primitive types, function signatures, and per-class metadata
// shared by the type checker and the code generator.
//
// Classes are nominal; two classes with the same fields are distinct types.
// There is no inheritance, so the class table is a flat registry,
// not a hierarchy.
package types

import (
	"fmt"
	"strings"
)

// Kind identifies which variant of the Type union a Type is.
type Kind int

const (
	// UnknownKind is the inference placeholder assigned to every
	// expression before checking. No Unknown survives a successful check.
	UnknownKind Kind = iota
	IntKind
	BoolKind
	UnitKind
	ClassKind
	FuncKind
)

// A Type is a Thirdlang type.
// The primitive types are singletons (Int, Bool, Unit, Unknown);
// class and function types are created per use.
type Type struct {
	Kind Kind

	// Name is the class name; set only for ClassKind.
	Name string

	// Parms and Ret are set only for FuncKind.
	Parms []*Type
	Ret   *Type
}

var (
	Int     = &Type{Kind: IntKind}
	Bool    = &Type{Kind: BoolKind}
	Unit    = &Type{Kind: UnitKind}
	Unknown = &Type{Kind: UnknownKind}
)

// Class returns the type of instances of the named class.
func Class(name string) *Type {
	return &Type{Kind: ClassKind, Name: name}
}

// Func returns a function type.
func Func(parms []*Type, ret *Type) *Type {
	return &Type{Kind: FuncKind, Parms: parms, Ret: ret}
}

// IsClass reports whether the type is a class type.
func (t *Type) IsClass() bool { return t.Kind == ClassKind }

// Resolved reports whether the type contains no Unknown.
func (t *Type) Resolved() bool {
	switch t.Kind {
	case UnknownKind:
		return false
	case FuncKind:
		for _, p := range t.Parms {
			if !p.Resolved() {
				return false
			}
		}
		return t.Ret.Resolved()
	}
	return true
}

// Eq reports whether two types are the same type.
// Class types compare by name (nominal typing).
func (t *Type) Eq(u *Type) bool {
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case ClassKind:
		return t.Name == u.Name
	case FuncKind:
		if len(t.Parms) != len(u.Parms) || !t.Ret.Eq(u.Ret) {
			return false
		}
		for i := range t.Parms {
			if !t.Parms[i].Eq(u.Parms[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// Unify resolves Unknown placeholders:
// Unknown unifies with anything and resolves to it;
// two concrete types unify only if they are the same type.
func Unify(t, u *Type) (*Type, error) {
	switch {
	case t.Kind == UnknownKind:
		return u, nil
	case u.Kind == UnknownKind:
		return t, nil
	case t.Eq(u):
		return t, nil
	}
	return nil, fmt.Errorf("type mismatch: expected %s, got %s", t, u)
}

func (t *Type) String() string {
	switch t.Kind {
	case IntKind:
		return "int"
	case BoolKind:
		return "bool"
	case UnitKind:
		return "()"
	case UnknownKind:
		return "?"
	case ClassKind:
		return t.Name
	case FuncKind:
		var s strings.Builder
		s.WriteRune('(')
		for i, p := range t.Parms {
			if i > 0 {
				s.WriteString(", ")
			}
			s.WriteString(p.String())
		}
		s.WriteString(") -> ")
		s.WriteString(t.Ret.String())
		return s.String()
	}
	panic(fmt.Sprintf("impossible kind %d", t.Kind))
}

// Reserved method names recognized by the compiler.
const (
	CtorName = "__init__"
	DtorName = "__del__"
)

// WordSize is the byte size of every field slot.
// The language has no sub-word types; every field is one word.
const WordSize = 8

// A Field is a class field: its name and declared type.
type Field struct {
	Name string
	Type *Type
}

// A Parm is a named function or method parameter.
type Parm struct {
	Name string
	Type *Type
}

// A MethodInfo describes one method of a class.
// The receiver is not listed in Parms;
// it is implicitly a pointer to the owning class.
type MethodInfo struct {
	Class string
	Name  string
	Parms []Parm
	Ret   *Type
}

// Sym returns the globally unique lowered symbol for the method.
// Two classes may declare identically-named methods,
// so the class name is part of the symbol.
func (m *MethodInfo) Sym() string { return m.Class + "__" + m.Name }

// A FuncInfo describes a free function's signature.
type FuncInfo struct {
	Name  string
	Parms []Parm
	Ret   *Type
}

// A ClassInfo is the compile-time metadata of one class:
// its fields in declaration order, its methods, and destructor presence.
// Field order is the single source of truth for memory layout.
// ClassInfos are built during registration and read-only afterwards.
type ClassInfo struct {
	Name    string
	Fields  []Field
	Methods map[string]*MethodInfo
	HasDtor bool
}

// NewClassInfo returns an empty ClassInfo for the named class.
func NewClassInfo(name string) *ClassInfo {
	return &ClassInfo{Name: name, Methods: make(map[string]*MethodInfo)}
}

// AddField appends a field, fixing its position in the memory layout.
func (c *ClassInfo) AddField(name string, typ *Type) {
	c.Fields = append(c.Fields, Field{Name: name, Type: typ})
}

// AddMethod records a method signature.
func (c *ClassInfo) AddMethod(m *MethodInfo) {
	if m.Name == DtorName {
		c.HasDtor = true
	}
	c.Methods[m.Name] = m
}

// Field returns the named field and its layout index.
func (c *ClassInfo) Field(name string) (Field, int, bool) {
	for i, f := range c.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// Method returns the named method or nil.
func (c *ClassInfo) Method(name string) *MethodInfo {
	return c.Methods[name]
}

// Ctor returns the constructor method or nil.
func (c *ClassInfo) Ctor() *MethodInfo { return c.Methods[CtorName] }

// Dtor returns the destructor method or nil.
func (c *ClassInfo) Dtor() *MethodInfo { return c.Methods[DtorName] }

// Size returns the byte size of an instance:
// one word per field, in declaration order, at least one word.
func (c *ClassInfo) Size() int {
	if len(c.Fields) == 0 {
		return WordSize
	}
	return len(c.Fields) * WordSize
}

// A Registry maps class names to their ClassInfo.
type Registry map[string]*ClassInfo
