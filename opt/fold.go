package opt

import (
	"math"

	"github.com/strager/impc/ast"
)

// FoldConstants replaces every operator applied to literals by its value.
// Integer arithmetic folds in 64 bits. Division or modulo by a literal zero
// folds to zero.
func FoldConstants(p *ast.Program) *ast.Program {
	r := &rewriter{expr: foldExpr}
	return r.program(p)
}

// FoldExpr folds a single expression tree.
func FoldExpr(e ast.Expr) ast.Expr {
	r := &rewriter{expr: foldExpr}
	return r.exprOf(e)
}

func foldExpr(e ast.Expr) ast.Expr {
	switch e := e.(type) {
	case *ast.Binary:
		l, lok := e.Left.(*ast.Literal)
		r, rok := e.Right.(*ast.Literal)
		if !lok || !rok {
			return e
		}
		if lit := foldBinary(e.Op, l, r); lit != nil {
			lit.Pos = e.Pos
			return lit
		}
	case *ast.Unary:
		v, ok := e.Operand.(*ast.Literal)
		if !ok {
			return e
		}
		if lit := foldUnary(e.Op, v); lit != nil {
			lit.Pos = e.Pos
			return lit
		}
	}
	return e
}

func isNumber(l *ast.Literal) bool {
	return l.Kind == ast.IntLit || l.Kind == ast.RealLit
}

func asFloat(l *ast.Literal) float64 {
	if l.Kind == ast.RealLit {
		return l.Real
	}
	return float64(l.Int)
}

// truthy converts a literal the way a store into a boolean does.
func truthy(l *ast.Literal) bool {
	switch l.Kind {
	case ast.BoolLit:
		return l.Bool
	case ast.RealLit:
		return math.Trunc(l.Real) != 0
	default:
		return l.Int != 0
	}
}

// foldBinary returns nil when the operands do not fit the operator; the
// analyzer has reported those already.
func foldBinary(op string, l, r *ast.Literal) *ast.Literal {
	switch {
	case ast.IsArithmetic(op):
		if !isNumber(l) || !isNumber(r) {
			return nil
		}
		if l.Kind == ast.IntLit && r.Kind == ast.IntLit {
			a, b := l.Int, r.Int
			switch op {
			case "+":
				return ast.Int(a + b)
			case "-":
				return ast.Int(a - b)
			case "*":
				return ast.Int(a * b)
			case "/":
				if b == 0 {
					return ast.Int(0)
				}
				return ast.Int(a / b)
			case "%":
				if b == 0 {
					return ast.Int(0)
				}
				return ast.Int(a % b)
			}
		}
		a, b := asFloat(l), asFloat(r)
		switch op {
		case "+":
			return ast.Float(a + b)
		case "-":
			return ast.Float(a - b)
		case "*":
			return ast.Float(a * b)
		case "/":
			if b == 0 {
				return ast.Float(0)
			}
			return ast.Float(a / b)
		}
		return nil
	case ast.IsComparison(op):
		if l.Kind == ast.BoolLit && r.Kind == ast.BoolLit {
			switch op {
			case "=":
				return ast.Bool(l.Bool == r.Bool)
			case "/=":
				return ast.Bool(l.Bool != r.Bool)
			}
			return nil
		}
		if !isNumber(l) || !isNumber(r) {
			return nil
		}
		if l.Kind == ast.IntLit && r.Kind == ast.IntLit {
			return ast.Bool(compare(op, l.Int, r.Int))
		}
		return ast.Bool(compare(op, asFloat(l), asFloat(r)))
	case ast.IsLogical(op):
		if l.Kind != ast.BoolLit || r.Kind != ast.BoolLit {
			return nil
		}
		switch op {
		case "and":
			return ast.Bool(l.Bool && r.Bool)
		case "or":
			return ast.Bool(l.Bool || r.Bool)
		case "xor":
			return ast.Bool(l.Bool != r.Bool)
		}
	}
	return nil
}

func compare[T int64 | float64](op string, a, b T) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "=":
		return a == b
	default:
		return a != b
	}
}

func foldUnary(op string, v *ast.Literal) *ast.Literal {
	switch op {
	case "not":
		return ast.Bool(!truthy(v))
	case "-":
		switch v.Kind {
		case ast.IntLit:
			return ast.Int(-v.Int)
		case ast.RealLit:
			return ast.Float(-v.Real)
		}
	case "+":
		if isNumber(v) {
			lit := *v
			return &lit
		}
	}
	return nil
}
