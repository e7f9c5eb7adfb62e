package types

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func point() *Record {
	return &Record{Name: "Point", Fields: []Field{{"x", Integer}, {"y", Real}}}
}

func TestString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Integer, "integer"},
		{Real, "real"},
		{Boolean, "boolean"},
		{Void, "void"},
		{NewArray(Integer, 10), "array[10] integer"},
		{NewArray(NewArray(Real, 3), 2), "array[2] array[3] real"},
		{NewArray(Boolean, -1), "array[] boolean"},
		{point(), "record Point"},
		{&Record{Fields: []Field{{"a", Integer}}}, "record {a: integer}"},
		{&Function{Params: []Type{Integer, Real}, Result: Boolean}, "routine(integer, real): boolean"},
		{&Named{Name: "Matrix"}, "Matrix"},
	}
	for _, test := range tests {
		t.Run(test.want, func(t *testing.T) {
			be.Equal(t, test.typ.String(), test.want)
		})
	}
}

func TestEqual(t *testing.T) {
	be.True(t, Equal(Integer, Integer))
	be.True(t, !Equal(Integer, Real))
	be.True(t, Equal(NewArray(Integer, 3), NewArray(Integer, 3)))
	be.True(t, !Equal(NewArray(Integer, 3), NewArray(Integer, 4)))
	be.True(t, !Equal(NewArray(Integer, 3), NewArray(Integer, -1)))
	be.True(t, Equal(NewArray(Integer, -1), NewArray(Integer, -1)))
	be.True(t, !Equal(NewArray(Integer, 3), NewArray(Real, 3)))

	// Records compare by name.
	be.True(t, Equal(point(), &Record{Name: "Point"}))
	be.True(t, !Equal(point(), &Record{Name: "Vec", Fields: point().Fields}))
	anon := &Record{Fields: []Field{{"x", Integer}}}
	be.True(t, Equal(anon, &Record{Fields: []Field{{"x", Integer}}}))
	be.True(t, !Equal(anon, &Record{Fields: []Field{{"y", Integer}}}))

	f := &Function{Params: []Type{Integer}, Result: Void}
	be.True(t, Equal(f, &Function{Params: []Type{Integer}, Result: Void}))
	be.True(t, !Equal(f, &Function{Params: []Type{Real}, Result: Void}))
	be.True(t, !Equal(f, &Function{Params: nil, Result: Void}))
}

func TestIsNumeric(t *testing.T) {
	be.True(t, IsNumeric(Integer))
	be.True(t, IsNumeric(Real))
	be.True(t, !IsNumeric(Boolean))
	be.True(t, !IsNumeric(NewArray(Integer, 1)))
	be.True(t, IsComposite(point()))
	be.True(t, !IsComposite(Integer))
}

func TestRecordField(t *testing.T) {
	typ, index, ok := point().Field("y")
	be.True(t, ok)
	be.Equal(t, index, 1)
	be.Equal(t, typ, Real)

	_, _, ok = point().Field("z")
	be.True(t, !ok)
}

func TestEnvAddAlias(t *testing.T) {
	env := NewEnv()
	be.Err(t, env.AddAlias("Point", point()), nil)

	err := env.AddAlias("Point", Integer)
	be.Equal(t, err.Error(), "type 'Point' already defined")

	typ, ok := env.Resolve("Point")
	be.True(t, ok)
	be.Equal(t, typ.String(), "record Point")

	_, ok = env.Resolve("Nope")
	be.True(t, !ok)
}

func TestEnvResolveIsSingleLevel(t *testing.T) {
	env := NewEnv()
	be.Err(t, env.AddAlias("Row", NewArray(Integer, 3)), nil)
	be.Err(t, env.AddAlias("Line", &Named{Name: "Row"}), nil)

	typ, ok := env.Resolve("Line")
	be.True(t, ok)
	be.Equal(t, typ.Kind(), KindNamed)

	top, err := env.ResolveTop(&Named{Name: "Line"})
	be.Err(t, err, nil)
	be.Equal(t, top.String(), "array[3] integer")
}

func TestEnvResolveDeep(t *testing.T) {
	env := NewEnv()
	be.Err(t, env.AddAlias("Row", NewArray(Integer, 3)), nil)
	be.Err(t, env.AddAlias("Matrix", NewArray(&Named{Name: "Row"}, 2)), nil)
	be.Err(t, env.AddAlias("Shape", &Record{Name: "Shape", Fields: []Field{
		{"m", &Named{Name: "Matrix"}},
		{"n", Integer},
	}}), nil)

	typ, err := env.ResolveDeep(&Named{Name: "Shape"})
	be.Err(t, err, nil)
	shape := typ.(*Record)
	be.Equal(t, shape.Name, "Shape")
	be.Equal(t, shape.Fields[0].Type.String(), "array[2] array[3] integer")
	be.Equal(t, shape.Fields[1].Type, Integer)

	// The registered definition is not modified.
	orig, _ := env.Resolve("Shape")
	be.Equal(t, orig.(*Record).Fields[0].Type.Kind(), KindNamed)
}

func TestEnvResolveDeepErrors(t *testing.T) {
	env := NewEnv()
	be.Err(t, env.AddAlias("A", &Named{Name: "B"}), nil)
	be.Err(t, env.AddAlias("B", NewArray(&Named{Name: "A"}, 2)), nil)
	be.Err(t, env.AddAlias("Node", &Record{Name: "Node", Fields: []Field{{"next", &Named{Name: "Node"}}}}), nil)

	_, err := env.ResolveDeep(&Named{Name: "A"})
	var cycle *CycleError
	be.True(t, errors.As(err, &cycle))
	be.Equal(t, cycle.Name, "A")

	_, err = env.ResolveDeep(&Named{Name: "Node"})
	be.True(t, errors.As(err, &cycle))

	_, err = env.ResolveDeep(NewArray(&Named{Name: "Missing"}, 1))
	var unknown *UnknownTypeError
	be.True(t, errors.As(err, &unknown))
	be.Equal(t, err.Error(), "unknown type 'Missing'")
}
