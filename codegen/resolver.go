package codegen

import (
	"github.com/strager/impc/ast"
	"github.com/strager/impc/types"
)

// TypeResolver recovers the static type of an expression while code is
// generated. It trusts the analyzer: whatever it cannot work out is treated
// as an integer.
type TypeResolver struct {
	scope    *VariableScopeManager
	routines map[string]*types.Function
}

func NewTypeResolver(scope *VariableScopeManager, routines map[string]*types.Function) *TypeResolver {
	return &TypeResolver{scope: scope, routines: routines}
}

// Resolve returns the representation of the value e produces.
func (r *TypeResolver) Resolve(e ast.Expr) Repr {
	return ReprOf(r.TypeOf(e))
}

func (r *TypeResolver) TypeOf(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.Literal:
		return e.Type()
	case *ast.Identifier:
		if info, ok := r.scope.Lookup(e.Name); ok {
			return info.Type
		}
	case *ast.Binary:
		switch {
		case ast.IsArithmetic(e.Op):
			if r.TypeOf(e.Left) == types.Real || r.TypeOf(e.Right) == types.Real {
				return types.Real
			}
			return types.Integer
		default:
			return types.Boolean
		}
	case *ast.Unary:
		if e.Op == "not" {
			return types.Boolean
		}
		return r.TypeOf(e.Operand)
	case *ast.ArrayAccess:
		if a, ok := r.TypeOf(e.Array).(*types.Array); ok {
			return a.Elem
		}
	case *ast.RecordAccess:
		switch obj := r.TypeOf(e.Object).(type) {
		case *types.Array:
			return types.Integer
		case *types.Record:
			if t, _, ok := obj.Field(e.Field); ok {
				return t
			}
		}
	case *ast.Call:
		if fn, ok := r.routines[e.Name]; ok {
			return fn.Result
		}
	}
	return types.Integer
}
