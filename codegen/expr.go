package codegen

import (
	"github.com/strager/impc/ast"
	"github.com/strager/impc/types"
)

// value emits e converted to the representation of target.
func (g *Generator) value(e ast.Expr, target types.Type) {
	g.coerce(g.expr(e), target, e.Position())
}

// coerce converts the value on top of the stack from one primitive type to
// another. Composite values are pointers and need no conversion.
func (g *Generator) coerce(from, to types.Type, pos ast.Pos) {
	if from == to || !types.IsPrimitive(from) || !types.IsPrimitive(to) {
		return
	}
	switch {
	case from == types.Integer && to == types.Real:
		g.fn.Emit("f64.convert_i32_s")
	case from == types.Real && to == types.Integer:
		g.fn.Emit("i32.trunc_f64_s")
	case from == types.Real && to == types.Boolean:
		g.fn.Emit("i32.trunc_f64_s")
		g.fn.Emit("i32.const 0")
		g.fn.Emit("i32.ne")
	case from == types.Integer && to == types.Boolean:
		g.fn.Emit("i32.const 0")
		g.fn.Emit("i32.ne")
	case from == types.Boolean && to == types.Integer:
		// Booleans are already 0 or 1.
	default:
		internalf(pos, "no conversion from %s to %s", from, to)
	}
}

// expr emits e and returns its type.
func (g *Generator) expr(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.Literal:
		switch e.Kind {
		case ast.RealLit:
			g.fn.Emit("f64.const %s", FormatF64(e.Real))
		case ast.BoolLit:
			if e.Bool {
				g.fn.Emit("i32.const 1")
			} else {
				g.fn.Emit("i32.const 0")
			}
		default:
			g.fn.Emit("i32.const %d", int32(e.Int))
		}
		return e.Type()
	case *ast.Identifier:
		info, ok := g.scope.Lookup(e.Name)
		if !ok {
			internalf(e.Pos, "undefined variable '%s'", e.Name)
		}
		g.get(info)
		return info.Type
	case *ast.Binary:
		return g.binary(e)
	case *ast.Unary:
		return g.unary(e)
	case *ast.ArrayAccess, *ast.RecordAccess:
		if ra, ok := e.(*ast.RecordAccess); ok {
			if at, ok := g.resolver.TypeOf(ra.Object).(*types.Array); ok {
				n, ok := at.Len()
				if !ok {
					internalf(ra.Pos, "length of %s", at)
				}
				g.fn.Emit("i32.const %d", n)
				return types.Integer
			}
		}
		t, inline := g.address(e)
		g.load(t, inline)
		return t
	case *ast.Call:
		t := g.call(e)
		if t == types.Void {
			internalf(e.Pos, "routine '%s' used as a value", e.Name)
		}
		return t
	}
	internalf(e.Position(), "unexpected expression %T", e)
	return nil
}

var intOps = map[string]string{
	"+": "i32.add", "-": "i32.sub", "*": "i32.mul", "/": "i32.div_s", "%": "i32.rem_s",
	"<": "i32.lt_s", "<=": "i32.le_s", ">": "i32.gt_s", ">=": "i32.ge_s", "=": "i32.eq", "/=": "i32.ne",
	"and": "i32.and", "or": "i32.or", "xor": "i32.xor",
}

var realOps = map[string]string{
	"+": "f64.add", "-": "f64.sub", "*": "f64.mul", "/": "f64.div",
	"<": "f64.lt", "<=": "f64.le", ">": "f64.gt", ">=": "f64.ge", "=": "f64.eq", "/=": "f64.ne",
}

// binary evaluates both operands in order. Logical operators do not short
// circuit.
func (g *Generator) binary(e *ast.Binary) types.Type {
	operand := types.Integer
	switch {
	case ast.IsLogical(e.Op):
		operand = types.Boolean
	case g.resolver.TypeOf(e.Left) == types.Real || g.resolver.TypeOf(e.Right) == types.Real:
		operand = types.Real
	case g.resolver.TypeOf(e.Left) == types.Boolean && g.resolver.TypeOf(e.Right) == types.Boolean:
		operand = types.Boolean
	}
	g.value(e.Left, operand)
	g.value(e.Right, operand)

	ops := intOps
	if operand == types.Real {
		ops = realOps
	}
	op, ok := ops[e.Op]
	if !ok {
		internalf(e.Pos, "operator '%s' on %s", e.Op, operand)
	}
	g.fn.Emit("%s", op)
	if ast.IsArithmetic(e.Op) {
		return operand
	}
	return types.Boolean
}

func (g *Generator) unary(e *ast.Unary) types.Type {
	switch e.Op {
	case "not":
		g.value(e.Operand, types.Boolean)
		g.fn.Emit("i32.eqz")
		return types.Boolean
	case "-":
		if g.resolver.TypeOf(e.Operand) == types.Real {
			g.expr(e.Operand)
			g.fn.Emit("f64.neg")
			return types.Real
		}
		g.fn.Emit("i32.const 0")
		t := g.expr(e.Operand)
		g.fn.Emit("i32.sub")
		return t
	case "+":
		return g.expr(e.Operand)
	}
	internalf(e.Pos, "unexpected unary operator '%s'", e.Op)
	return nil
}

// call emits a call with its arguments converted to the parameter types
// and returns the result type.
func (g *Generator) call(n *ast.Call) types.Type {
	sig, ok := g.routines[n.Name]
	if !ok {
		internalf(n.Pos, "undefined routine '%s'", n.Name)
	}
	if len(sig.Params) != len(n.Args) {
		internalf(n.Pos, "routine '%s' called with %d argument(s)", n.Name, len(n.Args))
	}
	for i, arg := range n.Args {
		g.value(arg, sig.Params[i])
	}
	g.fn.Emit("call $fn_%s", n.Name)
	return sig.Result
}

// elementOffset turns the 1-based index on top of the stack into a byte
// offset.
func (g *Generator) elementOffset(elem types.Type) {
	g.fn.Emit("i32.const 1")
	g.fn.Emit("i32.sub")
	if size := g.layout.ElemSize(elem); size != 1 {
		g.fn.Emit("i32.const %d", size)
		g.fn.Emit("i32.mul")
	}
}

// address emits the address of an element or field and returns the type
// stored there. inline reports that the storage holds the composite value
// itself rather than a pointer to it.
func (g *Generator) address(e ast.Expr) (t types.Type, inline bool) {
	switch e := e.(type) {
	case *ast.ArrayAccess:
		if t, ok := g.address2D(e); ok {
			return t, types.IsComposite(t)
		}
		at, ok := g.resolver.TypeOf(e.Array).(*types.Array)
		if !ok {
			internalf(e.Pos, "indexing a non-array")
		}
		g.expr(e.Array)
		if lit, ok := e.Index.(*ast.Literal); ok && lit.Kind == ast.IntLit {
			if off := (int64(int32(lit.Int)) - 1) * int64(g.layout.ElemSize(at.Elem)); off != 0 {
				g.fn.Emit("i32.const %d", int32(off))
				g.fn.Emit("i32.add")
			}
		} else {
			g.value(e.Index, types.Integer)
			g.elementOffset(at.Elem)
			g.fn.Emit("i32.add")
		}
		return at.Elem, types.IsComposite(at.Elem)
	case *ast.RecordAccess:
		rt, ok := g.resolver.TypeOf(e.Object).(*types.Record)
		if !ok {
			internalf(e.Pos, "field '%s' of a non-record", e.Field)
		}
		f, ok := g.layout.Record(rt).Field(e.Field)
		if !ok {
			internalf(e.Pos, "%s has no field '%s'", rt, e.Field)
		}
		g.expr(e.Object)
		if f.Offset != 0 {
			g.fn.Emit("i32.const %d", f.Offset)
			g.fn.Emit("i32.add")
		}
		_, isRecord := f.Type.(*types.Record)
		return f.Type, isRecord
	}
	internalf(e.Position(), "%T is not addressable", e)
	return nil, false
}

// address2D handles a[i][j] where a's elements are arrays stored inline:
// the element sits at base + ((i-1)*cols + (j-1)) * elemSize.
func (g *Generator) address2D(e *ast.ArrayAccess) (types.Type, bool) {
	outer, ok := e.Array.(*ast.ArrayAccess)
	if !ok {
		return nil, false
	}
	at, ok := g.resolver.TypeOf(outer.Array).(*types.Array)
	if !ok {
		return nil, false
	}
	row, ok := at.Elem.(*types.Array)
	if !ok {
		return nil, false
	}
	cols, ok := row.Len()
	if !ok {
		return nil, false
	}
	g.expr(outer.Array)
	g.value(outer.Index, types.Integer)
	g.fn.Emit("i32.const 1")
	g.fn.Emit("i32.sub")
	g.fn.Emit("i32.const %d", cols)
	g.fn.Emit("i32.mul")
	g.value(e.Index, types.Integer)
	g.fn.Emit("i32.const 1")
	g.fn.Emit("i32.sub")
	g.fn.Emit("i32.add")
	g.fn.Emit("i32.const %d", g.layout.ElemSize(row.Elem))
	g.fn.Emit("i32.mul")
	g.fn.Emit("i32.add")
	return row.Elem, true
}

// load replaces the address on top of the stack by the value stored there.
func (g *Generator) load(t types.Type, inline bool) {
	if inline {
		return
	}
	if t == types.Real {
		g.fn.Emit("f64.load")
	} else {
		g.fn.Emit("i32.load")
	}
}

// store writes the value on top of the stack to the address below it.
func (g *Generator) store(t types.Type) {
	if t == types.Real {
		g.fn.Emit("f64.store")
	} else {
		g.fn.Emit("i32.store")
	}
}
