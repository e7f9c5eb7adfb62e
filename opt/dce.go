package opt

import "github.com/strager/impc/ast"

// EliminateDeadCode removes statements guarded by a literal false: an if
// false is replaced by the statements of its else branch, if any, and a while
// false disappears. Conditions that are literally true are left alone.
func EliminateDeadCode(p *ast.Program) *ast.Program {
	r := &rewriter{stmt: eliminate}
	return r.program(p)
}

// Optimize folds constants, then removes the branches folding made dead.
func Optimize(p *ast.Program) *ast.Program {
	return EliminateDeadCode(FoldConstants(p))
}

func isFalse(e ast.Expr) bool {
	lit, ok := e.(*ast.Literal)
	return ok && lit.Kind == ast.BoolLit && !lit.Bool
}

func eliminate(n ast.Node) []ast.Node {
	switch n := n.(type) {
	case *ast.If:
		if !isFalse(n.Cond) {
			break
		}
		if n.Else == nil {
			return nil
		}
		if declares(n.Else.Stmts) {
			// Keep the branch scope so its declarations do not leak.
			return []ast.Node{n.Else}
		}
		return n.Else.Stmts
	case *ast.While:
		if isFalse(n.Cond) {
			return nil
		}
	}
	return []ast.Node{n}
}

func declares(stmts []ast.Node) bool {
	for _, s := range stmts {
		switch s.(type) {
		case *ast.VariableDecl, *ast.TypeDecl:
			return true
		}
	}
	return false
}
