// Package ast defines the syntax tree the analyzer, the optimizer and the code
// generator share. The tree is produced outside this repository and read from
// its s-expression form by ParseSExpr.
package ast

import (
	"sort"

	"github.com/strager/impc/types"
)

// Pos is a 1-based source position. The zero Pos means unknown.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) Position() Pos { return p }

func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// Node is implemented by the node structs of this package only.
type Node interface {
	Position() Pos
	node()
}

type Decl interface {
	Node
	decl()
}

type Stmt interface {
	Node
	stmt()
}

type Expr interface {
	Node
	expr()
}

// Program is the root of a compilation unit. Items holds declarations and
// top-level statements.
type Program struct {
	Items []Node
}

// Declarations.

type VariableDecl struct {
	Pos
	Name string
	Type types.Type // nil when inferred from Init
	Init Expr       // nil when absent
}

type TypeDecl struct {
	Pos
	Name string
	Type types.Type
}

type Param struct {
	Pos
	Name string
	Type types.Type
}

// RoutineDecl with a nil Body is a forward declaration. A nil Result means the
// routine returns nothing.
type RoutineDecl struct {
	Pos
	Name   string
	Params []*Param
	Result types.Type
	Body   *Block
}

// Statements.

type Assign struct {
	Pos
	Target Expr
	Value  Expr
}

type If struct {
	Pos
	Cond Expr
	Then *Block
	Else *Block // nil when absent
}

type While struct {
	Pos
	Cond Expr
	Body *Block
}

// For iterates either a range (Start and End set) or an array (Array set).
type For struct {
	Pos
	Var     string
	Start   Expr
	End     Expr
	Array   Expr
	Reverse bool
	Body    *Block
}

func (f *For) IsRange() bool { return f.Array == nil }

type Return struct {
	Pos
	Value Expr // nil for a bare return
}

type Print struct {
	Pos
	Args []Expr
}

// Block is a statement list with its own scope. Stmts may contain variable and
// type declarations.
type Block struct {
	Pos
	Stmts []Node
}

// Call is a routine call, usable as a statement or as an expression.
type Call struct {
	Pos
	Name string
	Args []Expr
}

// Expressions.

type LiteralKind int

const (
	IntLit LiteralKind = iota
	RealLit
	BoolLit
)

type Literal struct {
	Pos
	Kind LiteralKind
	Int  int64
	Real float64
	Bool bool
}

func (l *Literal) Type() types.Type {
	switch l.Kind {
	case RealLit:
		return types.Real
	case BoolLit:
		return types.Boolean
	default:
		return types.Integer
	}
}

func Int(v int64) *Literal    { return &Literal{Kind: IntLit, Int: v} }
func Float(v float64) *Literal { return &Literal{Kind: RealLit, Real: v} }
func Bool(v bool) *Literal     { return &Literal{Kind: BoolLit, Bool: v} }

type Identifier struct {
	Pos
	Name string
}

type Binary struct {
	Pos
	Op    string
	Left  Expr
	Right Expr
}

type Unary struct {
	Pos
	Op      string
	Operand Expr
}

type ArrayAccess struct {
	Pos
	Array Expr
	Index Expr
}

type RecordAccess struct {
	Pos
	Object Expr
	Field  string
}

func (*VariableDecl) node() {}
func (*TypeDecl) node()     {}
func (*RoutineDecl) node()  {}
func (*Param) node()        {}
func (*Assign) node()       {}
func (*If) node()           {}
func (*While) node()        {}
func (*For) node()          {}
func (*Return) node()       {}
func (*Print) node()        {}
func (*Block) node()        {}
func (*Call) node()         {}
func (*Literal) node()      {}
func (*Identifier) node()   {}
func (*Binary) node()       {}
func (*Unary) node()        {}
func (*ArrayAccess) node()  {}
func (*RecordAccess) node() {}

func (*VariableDecl) decl() {}
func (*TypeDecl) decl()     {}
func (*RoutineDecl) decl()  {}

func (*Assign) stmt() {}
func (*If) stmt()     {}
func (*While) stmt()  {}
func (*For) stmt()    {}
func (*Return) stmt() {}
func (*Print) stmt()  {}
func (*Block) stmt()  {}
func (*Call) stmt()   {}

func (*Call) expr()         {}
func (*Literal) expr()      {}
func (*Identifier) expr()   {}
func (*Binary) expr()       {}
func (*Unary) expr()        {}
func (*ArrayAccess) expr()  {}
func (*RecordAccess) expr() {}

// Operator classes.

func IsArithmetic(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%":
		return true
	}
	return false
}

func IsComparison(op string) bool {
	switch op {
	case "<", "<=", ">", ">=", "=", "/=":
		return true
	}
	return false
}

func IsLogical(op string) bool {
	switch op {
	case "and", "or", "xor":
		return true
	}
	return false
}

func IsUnary(op string) bool {
	switch op {
	case "+", "-", "not":
		return true
	}
	return false
}

// Sort returns the top-level items ordered by source position. Items with
// equal positions keep their relative order.
func Sort(items []Node) []Node {
	sorted := append([]Node(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position().Before(sorted[j].Position())
	})
	return sorted
}
