package ast

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/strager/impc/sexy"
	"github.com/strager/impc/types"
)

// ToSExpr renders a node, a *Program or a types.Type in the interchange
// format. Positions are not printed.
func ToSExpr(v any) string {
	switch v := v.(type) {
	case *Program:
		return ProgramNode(v).String()
	case Node:
		return toNode(v).String()
	case types.Type:
		return typeNode(v).String()
	default:
		panic(fmt.Sprintf("ast.ToSExpr: unexpected %T", v))
	}
}

// ProgramNode converts p to its sexy form.
func ProgramNode(p *Program) *sexy.Node {
	items := []*sexy.Node{sexy.NewSymbol("program")}
	for _, item := range p.Items {
		items = append(items, toNode(item))
	}
	return sexy.NewList(items...)
}

func list(head string, items ...*sexy.Node) *sexy.Node {
	return sexy.NewList(append([]*sexy.Node{sexy.NewSymbol(head)}, items...)...)
}

func nodesOf(head string, stmts []Node) *sexy.Node {
	items := make([]*sexy.Node, len(stmts))
	for i, s := range stmts {
		items[i] = toNode(s)
	}
	return list(head, items...)
}

func exprsOf(exprs []Expr) []*sexy.Node {
	items := make([]*sexy.Node, len(exprs))
	for i, e := range exprs {
		items[i] = toNode(e)
	}
	return items
}

func formatReal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func parseReal(n *sexy.Node) (float64, bool) {
	switch n.Type {
	case sexy.NodeFloat, sexy.NodeInteger:
		v, err := strconv.ParseFloat(n.Text, 64)
		return v, err == nil
	case sexy.NodeSymbol:
		switch n.Text {
		case "inf":
			return math.Inf(1), true
		case "-inf":
			return math.Inf(-1), true
		case "nan":
			return math.NaN(), true
		}
	}
	return 0, false
}

func toNode(n Node) *sexy.Node {
	switch n := n.(type) {
	case *VariableDecl:
		items := []*sexy.Node{sexy.NewString(n.Name)}
		if n.Type != nil {
			items = append(items, typeNode(n.Type))
		}
		if n.Init != nil {
			items = append(items, toNode(n.Init))
		}
		return list("var", items...)
	case *TypeDecl:
		return list("type", sexy.NewString(n.Name), typeNode(n.Type))
	case *RoutineDecl:
		params := []*sexy.Node{sexy.NewSymbol("params")}
		for _, p := range n.Params {
			params = append(params, toNode(p))
		}
		items := []*sexy.Node{sexy.NewString(n.Name), sexy.NewList(params...)}
		if n.Result != nil {
			items = append(items, typeNode(n.Result))
		}
		if n.Body != nil {
			items = append(items, nodesOf("body", n.Body.Stmts))
		}
		return list("routine", items...)
	case *Param:
		return list("param", sexy.NewString(n.Name), typeNode(n.Type))
	case *Assign:
		return list("assign", toNode(n.Target), toNode(n.Value))
	case *If:
		items := []*sexy.Node{toNode(n.Cond), nodesOf("then", n.Then.Stmts)}
		if n.Else != nil {
			items = append(items, nodesOf("else", n.Else.Stmts))
		}
		return list("if", items...)
	case *While:
		return list("while", toNode(n.Cond), nodesOf("body", n.Body.Stmts))
	case *For:
		var source *sexy.Node
		if n.IsRange() {
			source = list("range", toNode(n.Start), toNode(n.End))
		} else {
			source = list("in", toNode(n.Array))
		}
		items := []*sexy.Node{sexy.NewString(n.Var), source}
		if n.Reverse {
			items = append(items, sexy.NewSymbol("reverse"))
		}
		items = append(items, nodesOf("body", n.Body.Stmts))
		return list("for", items...)
	case *Return:
		if n.Value == nil {
			return list("return")
		}
		return list("return", toNode(n.Value))
	case *Print:
		return list("print", exprsOf(n.Args)...)
	case *Block:
		return nodesOf("block", n.Stmts)
	case *Call:
		return list("call", append([]*sexy.Node{sexy.NewString(n.Name)}, exprsOf(n.Args)...)...)
	case *Literal:
		switch n.Kind {
		case RealLit:
			if math.IsInf(n.Real, 0) || math.IsNaN(n.Real) {
				return list("real", sexy.NewSymbol(formatReal(n.Real)))
			}
			return list("real", sexy.NewFloat(formatReal(n.Real)))
		case BoolLit:
			return list("boolean", sexy.NewSymbol(strconv.FormatBool(n.Bool)))
		default:
			return list("integer", sexy.NewInteger(strconv.FormatInt(n.Int, 10)))
		}
	case *Identifier:
		return list("ident", sexy.NewString(n.Name))
	case *Binary:
		return list("binary", sexy.NewString(n.Op), toNode(n.Left), toNode(n.Right))
	case *Unary:
		return list("unary", sexy.NewString(n.Op), toNode(n.Operand))
	case *ArrayAccess:
		return list("index", toNode(n.Array), toNode(n.Index))
	case *RecordAccess:
		return list("field", toNode(n.Object), sexy.NewString(n.Field))
	default:
		panic(fmt.Sprintf("ast.ToSExpr: unexpected node %T", n))
	}
}

func typeNode(t types.Type) *sexy.Node {
	switch t := t.(type) {
	case *types.Primitive:
		return sexy.NewSymbol(t.String())
	case *types.Array:
		if t.Size == nil {
			return list("array", typeNode(t.Elem))
		}
		return list("array", sexy.NewInteger(strconv.FormatInt(*t.Size, 10)), typeNode(t.Elem))
	case *types.Record:
		var fields []*sexy.Node
		for _, f := range t.Fields {
			fields = append(fields, list("field", sexy.NewString(f.Name), typeNode(f.Type)))
		}
		return list("record", fields...)
	case *types.Named:
		return list("named", sexy.NewString(t.Name))
	case *types.Function:
		params := []*sexy.Node{sexy.NewSymbol("params")}
		for _, p := range t.Params {
			params = append(params, typeNode(p))
		}
		return list("routine", sexy.NewList(params...), typeNode(t.Result))
	default:
		panic(fmt.Sprintf("ast.ToSExpr: unexpected type %T", t))
	}
}

// SyntaxError is a malformed interchange document.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
}

// ReadProgram reads a whole (program ...) document.
func ReadProgram(r io.Reader) (*Program, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseSExpr(string(src))
}

// ParseSExpr parses a (program ...) document. Lists may carry
// ^{line: N, col: M} metadata; without it a node is positioned at its place
// in src.
func ParseSExpr(src string) (*Program, error) {
	root, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	r := &reader{src: src}
	return r.program(root)
}

// ParseNode parses a single declaration, statement or expression.
func ParseNode(src string) (Node, error) {
	root, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	r := &reader{src: src}
	switch root.Head() {
	case "var", "type", "routine":
		return r.item(root)
	}
	if isStmtHead(root.Head()) {
		return r.stmt(root)
	}
	return r.expr(root)
}

type reader struct {
	src string
}

func (r *reader) pos(n *sexy.Node) Pos {
	line, lok := n.Meta("line")
	col, cok := n.Meta("col")
	if lok && cok {
		l, err1 := strconv.Atoi(line.Text)
		c, err2 := strconv.Atoi(col.Text)
		if err1 == nil && err2 == nil {
			return Pos{Line: l, Col: c}
		}
	}
	l, c := sexy.Position(r.src, n.Offset)
	return Pos{Line: l, Col: c}
}

func (r *reader) errorf(n *sexy.Node, format string, args ...any) error {
	return &SyntaxError{Pos: r.pos(n), Msg: fmt.Sprintf(format, args...)}
}

func (r *reader) expectArgs(n *sexy.Node, min, max int) error {
	got := len(n.Items) - 1
	if got < min || (max >= 0 && got > max) {
		return r.errorf(n, "malformed (%s ...): unexpected number of items", n.Head())
	}
	return nil
}

func (r *reader) name(n *sexy.Node) (string, error) {
	if n.Type != sexy.NodeString {
		return "", r.errorf(n, "expected a quoted name but got %s", n)
	}
	return n.Text, nil
}

func (r *reader) program(n *sexy.Node) (*Program, error) {
	if n.Head() != "program" {
		return nil, r.errorf(n, "expected (program ...)")
	}
	prog := &Program{}
	for _, item := range n.Items[1:] {
		node, err := r.item(item)
		if err != nil {
			return nil, err
		}
		prog.Items = append(prog.Items, node)
	}
	return prog, nil
}

// item reads a top-level declaration or statement.
func (r *reader) item(n *sexy.Node) (Node, error) {
	switch n.Head() {
	case "routine":
		return r.routine(n)
	default:
		return r.stmt(n)
	}
}

func isStmtHead(head string) bool {
	switch head {
	case "var", "type", "assign", "if", "while", "for", "return", "print", "block", "call":
		return true
	}
	return false
}

func (r *reader) routine(n *sexy.Node) (*RoutineDecl, error) {
	if err := r.expectArgs(n, 2, 4); err != nil {
		return nil, err
	}
	name, err := r.name(n.Items[1])
	if err != nil {
		return nil, err
	}
	decl := &RoutineDecl{Pos: r.pos(n), Name: name}
	params := n.Items[2]
	if params.Head() != "params" {
		return nil, r.errorf(params, "expected (params ...)")
	}
	for _, p := range params.Items[1:] {
		if p.Head() != "param" || len(p.Items) != 3 {
			return nil, r.errorf(p, "expected (param \"name\" TYPE)")
		}
		pname, err := r.name(p.Items[1])
		if err != nil {
			return nil, err
		}
		ptype, err := r.typ(p.Items[2])
		if err != nil {
			return nil, err
		}
		decl.Params = append(decl.Params, &Param{Pos: r.pos(p), Name: pname, Type: ptype})
	}
	for _, rest := range n.Items[3:] {
		if rest.Head() == "body" {
			if decl.Body != nil {
				return nil, r.errorf(rest, "duplicate routine body")
			}
			decl.Body, err = r.block(rest)
		} else {
			if decl.Result != nil || decl.Body != nil {
				return nil, r.errorf(rest, "unexpected %s in routine", rest)
			}
			decl.Result, err = r.typ(rest)
		}
		if err != nil {
			return nil, err
		}
	}
	return decl, nil
}

func (r *reader) block(n *sexy.Node) (*Block, error) {
	b := &Block{Pos: r.pos(n)}
	for _, item := range n.Items[1:] {
		s, err := r.stmt(item)
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, s)
	}
	return b, nil
}

func (r *reader) expectBlock(n *sexy.Node, head string) (*Block, error) {
	if n.Head() != head {
		return nil, r.errorf(n, "expected (%s ...)", head)
	}
	return r.block(n)
}

func (r *reader) stmt(n *sexy.Node) (Node, error) {
	pos := r.pos(n)
	switch n.Head() {
	case "var":
		if err := r.expectArgs(n, 1, 3); err != nil {
			return nil, err
		}
		name, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		decl := &VariableDecl{Pos: pos, Name: name}
		rest := n.Items[2:]
		if len(rest) > 0 && isTypeForm(rest[0]) {
			if decl.Type, err = r.typ(rest[0]); err != nil {
				return nil, err
			}
			rest = rest[1:]
		}
		if len(rest) > 1 {
			return nil, r.errorf(n, "malformed (var ...)")
		}
		if len(rest) == 1 {
			if decl.Init, err = r.expr(rest[0]); err != nil {
				return nil, err
			}
		}
		if decl.Type == nil && decl.Init == nil {
			return nil, r.errorf(n, "variable '%s' needs a type or an initializer", name)
		}
		return decl, nil
	case "type":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		name, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		t, err := r.typ(n.Items[2])
		if err != nil {
			return nil, err
		}
		if rec, ok := t.(*types.Record); ok && rec.Name == "" {
			rec.Name = name
		}
		return &TypeDecl{Pos: pos, Name: name, Type: t}, nil
	case "assign":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		target, err := r.expr(n.Items[1])
		if err != nil {
			return nil, err
		}
		value, err := r.expr(n.Items[2])
		if err != nil {
			return nil, err
		}
		return &Assign{Pos: pos, Target: target, Value: value}, nil
	case "if":
		if err := r.expectArgs(n, 2, 3); err != nil {
			return nil, err
		}
		cond, err := r.expr(n.Items[1])
		if err != nil {
			return nil, err
		}
		s := &If{Pos: pos, Cond: cond}
		if s.Then, err = r.expectBlock(n.Items[2], "then"); err != nil {
			return nil, err
		}
		if len(n.Items) == 4 {
			if s.Else, err = r.expectBlock(n.Items[3], "else"); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "while":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		cond, err := r.expr(n.Items[1])
		if err != nil {
			return nil, err
		}
		body, err := r.expectBlock(n.Items[2], "body")
		if err != nil {
			return nil, err
		}
		return &While{Pos: pos, Cond: cond, Body: body}, nil
	case "for":
		return r.forStmt(n)
	case "return":
		if err := r.expectArgs(n, 0, 1); err != nil {
			return nil, err
		}
		s := &Return{Pos: pos}
		if len(n.Items) == 2 {
			value, err := r.expr(n.Items[1])
			if err != nil {
				return nil, err
			}
			s.Value = value
		}
		return s, nil
	case "print":
		args, err := r.exprs(n.Items[1:])
		if err != nil {
			return nil, err
		}
		return &Print{Pos: pos, Args: args}, nil
	case "block":
		return r.block(n)
	case "call":
		return r.call(n)
	case "routine":
		return nil, r.errorf(n, "routines can only be declared at the top level")
	default:
		return nil, r.errorf(n, "expected a statement but got %s", n)
	}
}

func (r *reader) forStmt(n *sexy.Node) (Node, error) {
	if err := r.expectArgs(n, 3, 4); err != nil {
		return nil, err
	}
	name, err := r.name(n.Items[1])
	if err != nil {
		return nil, err
	}
	s := &For{Pos: r.pos(n), Var: name}
	source := n.Items[2]
	switch source.Head() {
	case "range":
		if len(source.Items) != 3 {
			return nil, r.errorf(source, "expected (range LO HI)")
		}
		if s.Start, err = r.expr(source.Items[1]); err != nil {
			return nil, err
		}
		if s.End, err = r.expr(source.Items[2]); err != nil {
			return nil, err
		}
	case "in":
		if len(source.Items) != 2 {
			return nil, r.errorf(source, "expected (in ARRAY)")
		}
		if s.Array, err = r.expr(source.Items[1]); err != nil {
			return nil, err
		}
	default:
		return nil, r.errorf(source, "expected (range ...) or (in ...)")
	}
	rest := n.Items[3:]
	if len(rest) == 2 {
		if rest[0].Type != sexy.NodeSymbol || rest[0].Text != "reverse" {
			return nil, r.errorf(rest[0], "expected reverse")
		}
		s.Reverse = true
		rest = rest[1:]
	}
	if s.Body, err = r.expectBlock(rest[0], "body"); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *reader) call(n *sexy.Node) (*Call, error) {
	if err := r.expectArgs(n, 1, -1); err != nil {
		return nil, err
	}
	name, err := r.name(n.Items[1])
	if err != nil {
		return nil, err
	}
	args, err := r.exprs(n.Items[2:])
	if err != nil {
		return nil, err
	}
	return &Call{Pos: r.pos(n), Name: name, Args: args}, nil
}

func (r *reader) exprs(nodes []*sexy.Node) ([]Expr, error) {
	var exprs []Expr
	for _, item := range nodes {
		e, err := r.expr(item)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (r *reader) expr(n *sexy.Node) (Expr, error) {
	pos := r.pos(n)
	switch n.Head() {
	case "integer":
		if err := r.expectArgs(n, 1, 1); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(n.Items[1].Text, 10, 64)
		if err != nil || n.Items[1].Type != sexy.NodeInteger {
			return nil, r.errorf(n.Items[1], "invalid integer literal %s", n.Items[1])
		}
		return &Literal{Pos: pos, Kind: IntLit, Int: v}, nil
	case "real":
		if err := r.expectArgs(n, 1, 1); err != nil {
			return nil, err
		}
		arg := n.Items[1]
		v, ok := parseReal(arg)
		if !ok {
			return nil, r.errorf(arg, "invalid real literal %s", arg)
		}
		return &Literal{Pos: pos, Kind: RealLit, Real: v}, nil
	case "boolean":
		if err := r.expectArgs(n, 1, 1); err != nil {
			return nil, err
		}
		switch arg := n.Items[1]; {
		case arg.Type == sexy.NodeSymbol && arg.Text == "true":
			return &Literal{Pos: pos, Kind: BoolLit, Bool: true}, nil
		case arg.Type == sexy.NodeSymbol && arg.Text == "false":
			return &Literal{Pos: pos, Kind: BoolLit, Bool: false}, nil
		default:
			return nil, r.errorf(arg, "invalid boolean literal %s", arg)
		}
	case "ident":
		if err := r.expectArgs(n, 1, 1); err != nil {
			return nil, err
		}
		name, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		return &Identifier{Pos: pos, Name: name}, nil
	case "binary":
		if err := r.expectArgs(n, 3, 3); err != nil {
			return nil, err
		}
		op, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		if !IsArithmetic(op) && !IsComparison(op) && !IsLogical(op) {
			return nil, r.errorf(n.Items[1], "unknown binary operator %q", op)
		}
		left, err := r.expr(n.Items[2])
		if err != nil {
			return nil, err
		}
		right, err := r.expr(n.Items[3])
		if err != nil {
			return nil, err
		}
		return &Binary{Pos: pos, Op: op, Left: left, Right: right}, nil
	case "unary":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		op, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		if !IsUnary(op) {
			return nil, r.errorf(n.Items[1], "unknown unary operator %q", op)
		}
		operand, err := r.expr(n.Items[2])
		if err != nil {
			return nil, err
		}
		return &Unary{Pos: pos, Op: op, Operand: operand}, nil
	case "index":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		array, err := r.expr(n.Items[1])
		if err != nil {
			return nil, err
		}
		index, err := r.expr(n.Items[2])
		if err != nil {
			return nil, err
		}
		return &ArrayAccess{Pos: pos, Array: array, Index: index}, nil
	case "field":
		if err := r.expectArgs(n, 2, 2); err != nil {
			return nil, err
		}
		object, err := r.expr(n.Items[1])
		if err != nil {
			return nil, err
		}
		field, err := r.name(n.Items[2])
		if err != nil {
			return nil, err
		}
		return &RecordAccess{Pos: pos, Object: object, Field: field}, nil
	case "call":
		return r.call(n)
	default:
		return nil, r.errorf(n, "expected an expression but got %s", n)
	}
}

func isTypeForm(n *sexy.Node) bool {
	if n.Type == sexy.NodeSymbol {
		switch n.Text {
		case "integer", "real", "boolean", "void":
			return true
		}
		return false
	}
	switch n.Head() {
	case "array", "record", "named":
		return true
	}
	return false
}

func (r *reader) typ(n *sexy.Node) (types.Type, error) {
	if n.Type == sexy.NodeSymbol {
		switch n.Text {
		case "integer":
			return types.Integer, nil
		case "real":
			return types.Real, nil
		case "boolean":
			return types.Boolean, nil
		case "void":
			return types.Void, nil
		}
		return nil, r.errorf(n, "unknown primitive type %s", n.Text)
	}
	switch n.Head() {
	case "array":
		switch len(n.Items) {
		case 2:
			elem, err := r.typ(n.Items[1])
			if err != nil {
				return nil, err
			}
			return &types.Array{Elem: elem}, nil
		case 3:
			size, err := strconv.ParseInt(n.Items[1].Text, 10, 64)
			if err != nil || n.Items[1].Type != sexy.NodeInteger || size < 0 {
				return nil, r.errorf(n.Items[1], "invalid array size %s", n.Items[1])
			}
			elem, err := r.typ(n.Items[2])
			if err != nil {
				return nil, err
			}
			return types.NewArray(elem, size), nil
		}
		return nil, r.errorf(n, "expected (array N? TYPE)")
	case "record":
		rec := &types.Record{}
		for _, f := range n.Items[1:] {
			if f.Head() != "field" || len(f.Items) != 3 {
				return nil, r.errorf(f, "expected (field \"name\" TYPE)")
			}
			name, err := r.name(f.Items[1])
			if err != nil {
				return nil, err
			}
			if _, _, dup := rec.Field(name); dup {
				return nil, r.errorf(f, "duplicate field '%s'", name)
			}
			ft, err := r.typ(f.Items[2])
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, types.Field{Name: name, Type: ft})
		}
		return rec, nil
	case "named":
		if len(n.Items) != 2 {
			return nil, r.errorf(n, "expected (named \"Name\")")
		}
		name, err := r.name(n.Items[1])
		if err != nil {
			return nil, err
		}
		return &types.Named{Name: name}, nil
	}
	return nil, r.errorf(n, "expected a type but got %s", n)
}
