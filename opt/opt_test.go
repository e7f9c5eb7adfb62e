package opt

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/strager/impc/ast"
)

func parseExpr(t *testing.T, src string) ast.Expr {
	t.Helper()
	n, err := ast.ParseNode(src)
	be.Err(t, err, nil)
	return n.(ast.Expr)
}

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p, err := ast.ParseSExpr(src)
	be.Err(t, err, nil)
	return p
}

func TestFoldExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`(binary "-" (binary "+" (integer 2) (binary "*" (integer 3) (integer 4))) (integer 1))`, `(integer 13)`},
		{`(binary "/" (integer 7) (integer 2))`, `(integer 3)`},
		{`(binary "/" (integer -7) (integer 2))`, `(integer -3)`},
		{`(binary "%" (integer 7) (integer 3))`, `(integer 1)`},
		{`(binary "/" (integer 7) (integer 0))`, `(integer 0)`},
		{`(binary "%" (integer 7) (integer 0))`, `(integer 0)`},
		{`(binary "/" (real 1.0) (integer 0))`, `(real 0.0)`},
		{`(binary "+" (integer 1) (real 0.5))`, `(real 1.5)`},
		{`(binary "/" (integer 1) (real 4.0))`, `(real 0.25)`},
		{`(binary "*" (integer 4000000000) (integer 4))`, `(integer 16000000000)`},
		{`(binary "<" (integer 1) (integer 2))`, `(boolean true)`},
		{`(binary ">=" (real 1.5) (integer 2))`, `(boolean false)`},
		{`(binary "=" (integer 2) (real 2.0))`, `(boolean true)`},
		{`(binary "/=" (boolean true) (boolean false))`, `(boolean true)`},
		{`(binary "and" (boolean true) (boolean false))`, `(boolean false)`},
		{`(binary "or" (boolean true) (boolean false))`, `(boolean true)`},
		{`(binary "xor" (boolean true) (boolean true))`, `(boolean false)`},
		{`(unary "not" (boolean false))`, `(boolean true)`},
		{`(unary "not" (integer 0))`, `(boolean true)`},
		{`(unary "not" (real 0.5))`, `(boolean true)`},
		{`(unary "-" (integer 5))`, `(integer -5)`},
		{`(unary "-" (real 2.5))`, `(real -2.5)`},
		{`(unary "+" (integer 5))`, `(integer 5)`},
		{`(unary "-" (binary "*" (integer 2) (integer 3)))`, `(integer -6)`},

		// Not everything folds.
		{`(binary "+" (ident "x") (binary "*" (integer 2) (integer 3)))`, `(binary "+" (ident "x") (integer 6))`},
		{`(binary "+" (binary "+" (ident "x") (integer 1)) (integer 2))`, `(binary "+" (binary "+" (ident "x") (integer 1)) (integer 2))`},
		{`(binary "+" (boolean true) (integer 1))`, `(binary "+" (boolean true) (integer 1))`},
		{`(binary "%" (real 1.0) (integer 1))`, `(binary "%" (real 1.0) (integer 1))`},
		{`(call "f" (binary "+" (integer 1) (integer 1)))`, `(call "f" (integer 2))`},
		{`(index (ident "a") (binary "-" (integer 3) (integer 1)))`, `(index (ident "a") (integer 2))`},
	}
	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			got := FoldExpr(parseExpr(t, test.src))
			be.Equal(t, ast.ToSExpr(got), test.want)
		})
	}
}

func TestFoldKeepsPosition(t *testing.T) {
	e := parseExpr(t, `(binary "+" ^{line: 4, col: 9} (integer 1) (integer 2))`)
	got := FoldExpr(e)
	be.Equal(t, got.Position(), ast.Pos{Line: 4, Col: 9})
}

var programs = []string{
	`(program (var "r" integer (binary "-" (binary "+" (integer 2) (binary "*" (integer 3) (integer 4))) (integer 1))))`,
	`(program
  (var "x" integer (integer 3))
  (if (binary "<" (integer 1) (integer 0))
    (then (print (ident "x")))
    (else (print (binary "*" (ident "x") (binary "+" (integer 1) (integer 1))))))
  (while (binary "and" (boolean true) (boolean false)) (body (print (integer 1)))))`,
	`(program
  (routine "f" (params (param "a" real)) real
    (body (return (binary "*" (ident "a") (binary "/" (integer 1) (real 2.0))))))
  (for "i" (range (unary "-" (integer 1)) (binary "+" (integer 2) (integer 2))) reverse
    (body (print (call "f" (ident "i"))))))`,
}

func TestFoldIsIdempotent(t *testing.T) {
	for _, src := range programs {
		t.Run(src, func(t *testing.T) {
			once := FoldConstants(parseProgram(t, src))
			twice := FoldConstants(once)
			be.Equal(t, ast.ToSExpr(twice), ast.ToSExpr(once))
		})
	}
}

func TestPassesDoNotShareNodes(t *testing.T) {
	for _, src := range programs {
		t.Run(src, func(t *testing.T) {
			in := parseProgram(t, src)
			before := ast.ToSExpr(in)
			out := Optimize(in)

			seen := make(map[ast.Node]bool)
			ast.WalkProgram(in, func(n ast.Node) bool {
				seen[n] = true
				return true
			})
			ast.WalkProgram(out, func(n ast.Node) bool {
				be.True(t, !seen[n])
				return true
			})
			be.Equal(t, ast.ToSExpr(in), before)
		})
	}
}

func TestLiteralArithmeticScenario(t *testing.T) {
	out := Optimize(parseProgram(t, programs[0]))
	be.Equal(t, ast.ToSExpr(out), `(program (var "r" integer (integer 13)))`)
}

func TestEliminateDeadCode(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"if false without else",
			`(program (print (integer 1)) (if (boolean false) (then (print (integer 2)))) (print (integer 3)))`,
			`(program (print (integer 1)) (print (integer 3)))`,
		},
		{
			"if false with else is flattened",
			`(program (if (boolean false) (then (print (integer 2))) (else (print (integer 3)) (print (integer 4)))))`,
			`(program (print (integer 3)) (print (integer 4)))`,
		},
		{
			"else branch with declarations keeps its scope",
			`(program (if (boolean false) (then) (else (var "x" integer (integer 1)) (print (ident "x")))))`,
			`(program (block (var "x" integer (integer 1)) (print (ident "x"))))`,
		},
		{
			"if true is left alone",
			`(program (if (boolean true) (then (print (integer 2))) (else (print (integer 3)))))`,
			`(program (if (boolean true) (then (print (integer 2))) (else (print (integer 3)))))`,
		},
		{
			"while false",
			`(program (while (boolean false) (body (print (integer 2)))))`,
			`(program)`,
		},
		{
			"nested in a routine",
			`(program (routine "f" (params) (body (while (boolean true) (body (if (boolean false) (then (return))))))))`,
			`(program (routine "f" (params) (body (while (boolean true) (body)))))`,
		},
		{
			"non-literal conditions stay",
			`(program (if (binary "<" (integer 1) (integer 0)) (then (print (integer 2)))))`,
			`(program (if (binary "<" (integer 1) (integer 0)) (then (print (integer 2)))))`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := EliminateDeadCode(parseProgram(t, test.src))
			be.Equal(t, ast.ToSExpr(got), test.want)
		})
	}
}

func TestOptimizeFoldsThenEliminates(t *testing.T) {
	got := Optimize(parseProgram(t, programs[1]))
	be.Equal(t, ast.ToSExpr(got), `(program (var "x" integer (integer 3)) (print (binary "*" (ident "x") (integer 2))))`)
}
