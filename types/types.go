// Package types is the structural type model shared by the analyzer, the
// optimizer and the code generator.
package types

import (
	"strconv"
	"strings"
)

// Kind identifies the variant of a Type.
type Kind int

const (
	KindInteger Kind = iota
	KindReal
	KindBoolean
	KindVoid
	KindArray
	KindRecord
	KindFunction
	KindNamed
)

// Type is one of *Primitive, *Array, *Record, *Function or *Named.
type Type interface {
	Kind() Kind
	String() string
	isType()
}

type Primitive struct {
	kind Kind
	name string
}

func (p *Primitive) Kind() Kind     { return p.kind }
func (p *Primitive) String() string { return p.name }
func (*Primitive) isType()          {}

var (
	Integer Type = &Primitive{kind: KindInteger, name: "integer"}
	Real    Type = &Primitive{kind: KindReal, name: "real"}
	Boolean Type = &Primitive{kind: KindBoolean, name: "boolean"}
	Void    Type = &Primitive{kind: KindVoid, name: "void"}
)

// Array is a fixed-length array. Size is nil when the length is not known
// statically, which is only legal for routine parameters.
type Array struct {
	Elem Type
	Size *int64
}

func (*Array) Kind() Kind { return KindArray }
func (*Array) isType()    {}

func (a *Array) String() string {
	if a.Size == nil {
		return "array[] " + a.Elem.String()
	}
	return "array[" + strconv.FormatInt(*a.Size, 10) + "] " + a.Elem.String()
}

// Len returns the static length of the array.
func (a *Array) Len() (int64, bool) {
	if a.Size == nil {
		return 0, false
	}
	return *a.Size, true
}

// NewArray builds a sized array type. A negative size means unknown.
func NewArray(elem Type, size int64) *Array {
	if size < 0 {
		return &Array{Elem: elem}
	}
	return &Array{Elem: elem, Size: &size}
}

type Field struct {
	Name string
	Type Type
}

// Record keeps its fields in declaration order. Name is the alias the record
// was declared under, or empty for a record written inline.
type Record struct {
	Name   string
	Fields []Field
}

func (*Record) Kind() Kind { return KindRecord }
func (*Record) isType()    {}

func (r *Record) String() string {
	if r.Name != "" {
		return "record " + r.Name
	}
	var b strings.Builder
	b.WriteString("record {")
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Type.String())
	}
	b.WriteString("}")
	return b.String()
}

// Field returns the type and declaration index of the named field.
func (r *Record) Field(name string) (Type, int, bool) {
	for i, f := range r.Fields {
		if f.Name == name {
			return f.Type, i, true
		}
	}
	return nil, -1, false
}

type Function struct {
	Params []Type
	Result Type
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) isType()    {}

func (f *Function) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return "routine(" + strings.Join(parts, ", ") + "): " + f.Result.String()
}

// Named refers to a type alias that has not been resolved yet.
type Named struct {
	Name string
}

func (*Named) Kind() Kind       { return KindNamed }
func (*Named) isType()          {}
func (n *Named) String() string { return n.Name }

func IsNumeric(t Type) bool {
	return t == Integer || t == Real
}

func IsPrimitive(t Type) bool {
	_, ok := t.(*Primitive)
	return ok
}

// IsComposite reports whether values of t live in memory and are handled by
// pointer.
func IsComposite(t Type) bool {
	switch t.(type) {
	case *Array, *Record:
		return true
	}
	return false
}

// Equal compares types structurally. Records with a name compare by name,
// anonymous records field by field.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch a := a.(type) {
	case *Primitive:
		return a == b
	case *Array:
		b, ok := b.(*Array)
		if !ok || !Equal(a.Elem, b.Elem) {
			return false
		}
		if (a.Size == nil) != (b.Size == nil) {
			return false
		}
		return a.Size == nil || *a.Size == *b.Size
	case *Record:
		b, ok := b.(*Record)
		if !ok {
			return false
		}
		if a.Name != "" || b.Name != "" {
			return a.Name == b.Name
		}
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case *Function:
		b, ok := b.(*Function)
		if !ok || len(a.Params) != len(b.Params) || !Equal(a.Result, b.Result) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case *Named:
		b, ok := b.(*Named)
		return ok && a.Name == b.Name
	}
	return false
}
