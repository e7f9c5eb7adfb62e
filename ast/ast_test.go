package ast

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/strager/impc/types"
)

func TestSExprRoundTrip(t *testing.T) {
	tests := []string{
		`(var "x" integer (integer 5))`,
		`(var "r" (real 2.5))`,
		`(var "b" boolean)`,
		`(var "m" (array 3 (array 4 real)))`,
		`(type "Point" (record (field "x" integer) (field "y" real)))`,
		`(type "Row" (array 3 (named "Point")))`,
		`(routine "f" (params (param "a" integer) (param "v" (array integer))) integer (body (return (ident "a"))))`,
		`(routine "g" (params))`,
		`(routine "h" (params) (body (print)))`,
		`(assign (index (ident "a") (integer 1)) (binary "+" (integer 1) (integer 2)))`,
		`(assign (field (ident "p") "x") (unary "-" (real 1.0)))`,
		`(if (boolean true) (then (print (integer 1))) (else (print (integer 2))))`,
		`(while (binary "<" (ident "i") (integer 10)) (body (assign (ident "i") (binary "+" (ident "i") (integer 1)))))`,
		`(for "j" (range (integer 10) (integer 1)) reverse (body (print (ident "j"))))`,
		`(for "x" (in (ident "a")) (body))`,
		`(return)`,
		`(block (var "y" (boolean false)) (call "f" (integer 1) (unary "not" (boolean true))))`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			n, err := ParseNode(src)
			be.Err(t, err, nil)
			be.Equal(t, ToSExpr(n), src)
		})
	}
}

func TestParseProgram(t *testing.T) {
	prog, err := ParseSExpr(`(program
  (var "x" integer (integer 1))
  (print (ident "x")))`)
	be.Err(t, err, nil)
	be.Equal(t, len(prog.Items), 2)

	decl := prog.Items[0].(*VariableDecl)
	be.Equal(t, decl.Name, "x")
	be.Equal(t, decl.Type, types.Integer)
	be.Equal(t, decl.Position(), Pos{Line: 2, Col: 3})
	be.Equal(t, prog.Items[1].Position(), Pos{Line: 3, Col: 3})

	be.Equal(t, ToSExpr(prog), `(program (var "x" integer (integer 1)) (print (ident "x")))`)
}

func TestParseMetaPositions(t *testing.T) {
	prog, err := ParseSExpr(`(program
  (print ^{line: 7, col: 2} (integer 2))
  (var ^{line: 3, col: 1} "x" (integer 1)))`)
	be.Err(t, err, nil)
	be.Equal(t, prog.Items[0].Position(), Pos{Line: 7, Col: 2})
	be.Equal(t, prog.Items[1].Position(), Pos{Line: 3, Col: 1})

	sorted := Sort(prog.Items)
	_, first := sorted[0].(*VariableDecl)
	be.True(t, first)
	// The input order is not changed.
	_, first = prog.Items[0].(*Print)
	be.True(t, first)
}

func TestSortIsStable(t *testing.T) {
	a := &Print{}
	b := &Print{}
	c := &Print{Pos: Pos{Line: 1, Col: 1}}
	sorted := Sort([]Node{c, a, b})
	be.True(t, sorted[0] == Node(a))
	be.True(t, sorted[1] == Node(b))
	be.True(t, sorted[2] == Node(c))
}

func TestRecordTypeTakesAliasName(t *testing.T) {
	n, err := ParseNode(`(type "Point" (record (field "x" integer)))`)
	be.Err(t, err, nil)
	rec := n.(*TypeDecl).Type.(*types.Record)
	be.Equal(t, rec.Name, "Point")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`(print (integer 1)`, "expected ')'"},
		{`(programme)`, "1:1: expected (program ...)"},
		{`(program (frobnicate))`, "1:10: expected a statement"},
		{`(program (print (binary "**" (integer 1) (integer 2))))`, `unknown binary operator "**"`},
		{`(program (var "x"))`, "variable 'x' needs a type or an initializer"},
		{`(program (var x integer))`, "expected a quoted name"},
		{`(program (block (routine "f" (params))))`, "routines can only be declared at the top level"},
		{`(program (var "a" (array -1 integer)))`, "invalid array size"},
		{`(program (var "r" (record (field "a" integer) (field "a" real))))`, "duplicate field 'a'"},
		{`(program (for "i" (upto (integer 1)) (body)))`, "expected (range ...) or (in ...)"},
		{"(program\n  (print (integer 1.5)))", "2:19: invalid integer literal 1.5"},
	}
	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			_, err := ParseSExpr(test.src)
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), test.want))
		})
	}
}

func TestSyntaxErrorType(t *testing.T) {
	_, err := ParseSExpr(`(program (print (ident 1)))`)
	var syntax *SyntaxError
	be.True(t, errors.As(err, &syntax))
	be.Equal(t, syntax.Pos, Pos{Line: 1, Col: 24})
}

func TestWalk(t *testing.T) {
	prog, err := ParseSExpr(`(program
  (routine "f" (params (param "a" integer)) integer
    (body (if (binary "<" (ident "a") (integer 0))
            (then (return (unary "-" (ident "a"))))
            (else (return (ident "a"))))))
  (for "i" (range (integer 1) (integer 3)) (body (print (call "f" (ident "i"))))))`)
	be.Err(t, err, nil)

	var idents []string
	WalkProgram(prog, func(n Node) bool {
		if id, ok := n.(*Identifier); ok {
			idents = append(idents, id.Name)
		}
		return true
	})
	be.Equal(t, idents, []string{"a", "a", "a", "i"})

	// Returning false prunes the subtree.
	count := 0
	WalkProgram(prog, func(n Node) bool {
		count++
		_, isRoutine := n.(*RoutineDecl)
		return !isRoutine
	})
	be.Equal(t, count, 1+1+1+1+1+1+1+1)
}

func TestOperatorClasses(t *testing.T) {
	be.True(t, IsArithmetic("%"))
	be.True(t, IsComparison("/="))
	be.True(t, IsLogical("xor"))
	be.True(t, IsUnary("not"))
	be.True(t, !IsArithmetic("and"))
	be.True(t, !IsUnary("*"))
}

func TestLiteralType(t *testing.T) {
	be.Equal(t, Int(1).Type(), types.Integer)
	be.Equal(t, Float(1).Type(), types.Real)
	be.Equal(t, Bool(true).Type(), types.Boolean)
	be.Equal(t, ToSExpr(Float(3)), "(real 3.0)")
	be.Equal(t, ToSExpr(Float(-0.25)), "(real -0.25)")
}

func TestNonFiniteReals(t *testing.T) {
	for _, src := range []string{"(real inf)", "(real -inf)", "(real nan)"} {
		n, err := ParseNode(src)
		be.Err(t, err, nil)
		be.Equal(t, ToSExpr(n), src)
	}
	n, err := ParseNode("(real inf)")
	be.Err(t, err, nil)
	be.True(t, math.IsInf(n.(*Literal).Real, 1))
	_, err = ParseNode("(real Inf)")
	be.Err(t, err, "invalid real literal")
}
