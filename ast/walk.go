package ast

import "fmt"

// Walk visits n and its children depth-first, parents before children. When
// fn returns false the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *VariableDecl:
		Walk(n.Init, fn)
	case *TypeDecl:
	case *RoutineDecl:
		for _, p := range n.Params {
			Walk(p, fn)
		}
		if n.Body != nil {
			Walk(n.Body, fn)
		}
	case *Param:
	case *Assign:
		Walk(n.Target, fn)
		Walk(n.Value, fn)
	case *If:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		if n.Else != nil {
			Walk(n.Else, fn)
		}
	case *While:
		Walk(n.Cond, fn)
		Walk(n.Body, fn)
	case *For:
		Walk(n.Start, fn)
		Walk(n.End, fn)
		Walk(n.Array, fn)
		Walk(n.Body, fn)
	case *Return:
		Walk(n.Value, fn)
	case *Print:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Block:
		for _, s := range n.Stmts {
			Walk(s, fn)
		}
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Literal, *Identifier:
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Unary:
		Walk(n.Operand, fn)
	case *ArrayAccess:
		Walk(n.Array, fn)
		Walk(n.Index, fn)
	case *RecordAccess:
		Walk(n.Object, fn)
	default:
		panic(fmt.Sprintf("ast.Walk: unexpected node %T", n))
	}
}

// WalkProgram walks every top-level item of p.
func WalkProgram(p *Program, fn func(Node) bool) {
	for _, item := range p.Items {
		Walk(item, fn)
	}
}
