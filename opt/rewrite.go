// Package opt holds the optional tree-to-tree rewrites run between analysis
// and code generation. Every pass returns a fresh tree and leaves its input
// untouched.
package opt

import (
	"fmt"

	"github.com/strager/impc/ast"
)

// rewriter copies a tree bottom-up. expr sees every expression after its
// children were copied and may replace it. stmt sees every statement after
// its children were copied and returns the statements to put in its place.
type rewriter struct {
	expr func(ast.Expr) ast.Expr
	stmt func(ast.Node) []ast.Node
}

func (r *rewriter) program(p *ast.Program) *ast.Program {
	return &ast.Program{Items: r.nodes(p.Items)}
}

func (r *rewriter) nodes(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	for _, n := range nodes {
		copied := r.node(n)
		if r.stmt != nil {
			out = append(out, r.stmt(copied)...)
		} else {
			out = append(out, copied)
		}
	}
	return out
}

func (r *rewriter) block(b *ast.Block) *ast.Block {
	if b == nil {
		return nil
	}
	return &ast.Block{Pos: b.Pos, Stmts: r.nodes(b.Stmts)}
}

func (r *rewriter) exprs(exprs []ast.Expr) []ast.Expr {
	if exprs == nil {
		return nil
	}
	out := make([]ast.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = r.exprOf(e)
	}
	return out
}

func (r *rewriter) node(n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.VariableDecl:
		return &ast.VariableDecl{Pos: n.Pos, Name: n.Name, Type: n.Type, Init: r.exprOf(n.Init)}
	case *ast.TypeDecl:
		return &ast.TypeDecl{Pos: n.Pos, Name: n.Name, Type: n.Type}
	case *ast.RoutineDecl:
		params := make([]*ast.Param, len(n.Params))
		for i, p := range n.Params {
			params[i] = &ast.Param{Pos: p.Pos, Name: p.Name, Type: p.Type}
		}
		return &ast.RoutineDecl{Pos: n.Pos, Name: n.Name, Params: params, Result: n.Result, Body: r.block(n.Body)}
	case *ast.Assign:
		return &ast.Assign{Pos: n.Pos, Target: r.exprOf(n.Target), Value: r.exprOf(n.Value)}
	case *ast.If:
		return &ast.If{Pos: n.Pos, Cond: r.exprOf(n.Cond), Then: r.block(n.Then), Else: r.block(n.Else)}
	case *ast.While:
		return &ast.While{Pos: n.Pos, Cond: r.exprOf(n.Cond), Body: r.block(n.Body)}
	case *ast.For:
		return &ast.For{
			Pos:     n.Pos,
			Var:     n.Var,
			Start:   r.exprOf(n.Start),
			End:     r.exprOf(n.End),
			Array:   r.exprOf(n.Array),
			Reverse: n.Reverse,
			Body:    r.block(n.Body),
		}
	case *ast.Return:
		return &ast.Return{Pos: n.Pos, Value: r.exprOf(n.Value)}
	case *ast.Print:
		return &ast.Print{Pos: n.Pos, Args: r.exprs(n.Args)}
	case *ast.Block:
		return r.block(n)
	case ast.Expr:
		return r.exprOf(n)
	default:
		panic(fmt.Sprintf("opt: unexpected node %T", n))
	}
}

func (r *rewriter) exprOf(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	var copied ast.Expr
	switch e := e.(type) {
	case *ast.Literal:
		lit := *e
		copied = &lit
	case *ast.Identifier:
		copied = &ast.Identifier{Pos: e.Pos, Name: e.Name}
	case *ast.Binary:
		copied = &ast.Binary{Pos: e.Pos, Op: e.Op, Left: r.exprOf(e.Left), Right: r.exprOf(e.Right)}
	case *ast.Unary:
		copied = &ast.Unary{Pos: e.Pos, Op: e.Op, Operand: r.exprOf(e.Operand)}
	case *ast.ArrayAccess:
		copied = &ast.ArrayAccess{Pos: e.Pos, Array: r.exprOf(e.Array), Index: r.exprOf(e.Index)}
	case *ast.RecordAccess:
		copied = &ast.RecordAccess{Pos: e.Pos, Object: r.exprOf(e.Object), Field: e.Field}
	case *ast.Call:
		copied = &ast.Call{Pos: e.Pos, Name: e.Name, Args: r.exprs(e.Args)}
	default:
		panic(fmt.Sprintf("opt: unexpected expression %T", e))
	}
	if r.expr != nil {
		return r.expr(copied)
	}
	return copied
}
