package codegen

import (
	"github.com/strager/impc/ast"
	"github.com/strager/impc/types"
)

// RecordLayout describes a laid out record. Fields are packed in declaration
// order with no padding.
type RecordLayout struct {
	Size   int
	Fields []FieldLayout
	index  map[string]int
}

type FieldLayout struct {
	Name   string
	Offset int
	Size   int
	Type   types.Type
}

// Field returns the layout of the named field.
func (rl *RecordLayout) Field(name string) (FieldLayout, bool) {
	i, ok := rl.index[name]
	if !ok {
		return FieldLayout{}, false
	}
	return rl.Fields[i], true
}

// Layout computes sizes and offsets of fully resolved types. Record layouts
// are cached by record name; anonymous records by identity.
type Layout struct {
	named map[string]*RecordLayout
	anon  map[*types.Record]*RecordLayout
}

func NewLayout() *Layout {
	return &Layout{
		named: make(map[string]*RecordLayout),
		anon:  make(map[*types.Record]*RecordLayout),
	}
}

// SizeOf returns the number of bytes a value of t takes inside a record.
// Records are inlined; arrays are stored as a pointer to their elements.
func (l *Layout) SizeOf(t types.Type) int {
	switch t := t.(type) {
	case *types.Array:
		return 4
	case *types.Record:
		return l.Record(t).Size
	default:
		return primitiveSize(t)
	}
}

// ElemSize returns the stride of an array with elements of type t. Records
// and sized arrays are stored inline, so a 2-D array is one flat block.
func (l *Layout) ElemSize(t types.Type) int {
	switch t := t.(type) {
	case *types.Array:
		n, ok := t.Len()
		if !ok {
			internalf(ast.Pos{}, "array of unsized arrays")
		}
		return int(n) * l.ElemSize(t.Elem)
	case *types.Record:
		return l.Record(t).Size
	default:
		return primitiveSize(t)
	}
}

// StorageSize returns the number of bytes to allocate for a composite
// variable of type t.
func (l *Layout) StorageSize(t types.Type) int {
	switch t := t.(type) {
	case *types.Array:
		n, ok := t.Len()
		if !ok {
			internalf(ast.Pos{}, "cannot allocate %s", t)
		}
		return int(n) * l.ElemSize(t.Elem)
	case *types.Record:
		return l.Record(t).Size
	default:
		internalf(ast.Pos{}, "cannot allocate %s", t)
		return 0
	}
}

// NeedsInit reports whether storage of type t holds array pointers that must
// be set up after allocation.
func (l *Layout) NeedsInit(t types.Type) bool {
	switch t := t.(type) {
	case *types.Array:
		return types.IsComposite(t.Elem) && l.NeedsInit(t.Elem)
	case *types.Record:
		for _, f := range t.Fields {
			switch ft := f.Type.(type) {
			case *types.Array:
				return true
			case *types.Record:
				if l.NeedsInit(ft) {
					return true
				}
			}
		}
	}
	return false
}

func (l *Layout) Record(r *types.Record) *RecordLayout {
	if r.Name != "" {
		if rl, ok := l.named[r.Name]; ok {
			return rl
		}
	} else if rl, ok := l.anon[r]; ok {
		return rl
	}

	rl := &RecordLayout{
		Fields: make([]FieldLayout, 0, len(r.Fields)),
		index:  make(map[string]int, len(r.Fields)),
	}
	offset := 0
	for _, f := range r.Fields {
		size := l.SizeOf(f.Type)
		rl.index[f.Name] = len(rl.Fields)
		rl.Fields = append(rl.Fields, FieldLayout{Name: f.Name, Offset: offset, Size: size, Type: f.Type})
		offset += size
	}
	rl.Size = offset

	if r.Name != "" {
		l.named[r.Name] = rl
	} else {
		l.anon[r] = rl
	}
	return rl
}

// FieldOffset returns the byte offset of a field inside its record.
func (l *Layout) FieldOffset(r *types.Record, field string) int {
	f, ok := l.Record(r).Field(field)
	if !ok {
		internalf(ast.Pos{}, "%s has no field '%s'", r, field)
	}
	return f.Offset
}

func primitiveSize(t types.Type) int {
	switch t {
	case types.Real:
		return 8
	case types.Integer, types.Boolean:
		return 4
	}
	internalf(ast.Pos{}, "no size for %s", t)
	return 0
}
