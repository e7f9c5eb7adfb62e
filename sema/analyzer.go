package sema

import (
	"errors"
	"fmt"

	"github.com/strager/impc/ast"
	"github.com/strager/impc/diag"
	"github.com/strager/impc/types"
)

// Result is what Analyze learned about a program. Code generation may only
// run when Diagnostics has no errors.
type Result struct {
	Diagnostics *diag.List
	Env         *types.Env
}

type routineInfo struct {
	decl    *ast.RoutineDecl
	defined bool
	called  bool
}

type Analyzer struct {
	symbols  *SymbolTable
	env      *types.Env
	diags    *diag.List
	routines map[string]*routineInfo
	order    []string
	current  *ast.RoutineDecl
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		symbols:  NewSymbolTable(),
		env:      types.NewEnv(),
		diags:    &diag.List{},
		routines: make(map[string]*routineInfo),
	}
}

// Analyze checks prog. It never stops at the first problem.
func Analyze(prog *ast.Program) *Result {
	a := NewAnalyzer()
	a.collect(prog)
	for _, item := range ast.Sort(prog.Items) {
		a.item(item)
	}
	a.finish()
	return &Result{Diagnostics: a.diags, Env: a.env}
}

// collect declares every top-level type alias and routine so that later items
// can refer to earlier or later ones.
func (a *Analyzer) collect(prog *ast.Program) {
	var aliases []*ast.TypeDecl
	for _, item := range prog.Items {
		switch n := item.(type) {
		case *ast.TypeDecl:
			if a.declareType(n) {
				aliases = append(aliases, n)
			}
		case *ast.RoutineDecl:
			a.declareRoutine(n)
		}
	}
	for _, n := range aliases {
		a.checkAlias(n)
	}
}

func (a *Analyzer) declareType(n *ast.TypeDecl) bool {
	if err := a.symbols.Declare(Symbol{Name: n.Name, Kind: TypeName, Type: n.Type}); err != nil {
		a.diags.Errorf(n.Pos, diag.Redeclared, "%s", err)
		return false
	}
	if err := a.env.AddAlias(n.Name, n.Type); err != nil {
		a.diags.Errorf(n.Pos, diag.Redeclared, "%s", err)
		return false
	}
	return true
}

// checkAlias validates the definition of an alias once all top-level aliases
// are known.
func (a *Analyzer) checkAlias(n *ast.TypeDecl) {
	if !a.checkTypeNames(n.Type, n.Pos) {
		return
	}
	if _, err := a.env.ResolveDeep(&types.Named{Name: n.Name}); err != nil {
		var cycle *types.CycleError
		if errors.As(err, &cycle) {
			a.diags.Errorf(n.Pos, diag.RecursiveType, "%s", err)
		}
		return
	}
	a.checkSized(n.Type, n.Pos, false)
}

func (a *Analyzer) signature(n *ast.RoutineDecl) *types.Function {
	f := &types.Function{Result: types.Void}
	if n.Result != nil {
		f.Result = n.Result
	}
	for _, p := range n.Params {
		f.Params = append(f.Params, p.Type)
	}
	return f
}

func (a *Analyzer) declareRoutine(n *ast.RoutineDecl) {
	sig := a.signature(n)
	if prev, ok := a.routines[n.Name]; ok {
		prevSig := a.signature(prev.decl)
		switch {
		case prev.defined && n.Body != nil:
			a.diags.Errorf(n.Pos, diag.Redeclared, "routine '%s' is already defined", n.Name)
		case !types.Equal(a.normalize(prevSig), a.normalize(sig)):
			a.diags.Errorf(n.Pos, diag.Redeclared, "routine '%s' does not match its earlier declaration %s", n.Name, prevSig)
		case n.Body != nil:
			prev.decl = n
			prev.defined = true
		}
		return
	}
	if err := a.symbols.Declare(Symbol{Name: n.Name, Kind: Function, Type: sig}); err != nil {
		a.diags.Errorf(n.Pos, diag.Redeclared, "%s", err)
		return
	}
	a.routines[n.Name] = &routineInfo{decl: n, defined: n.Body != nil}
	a.order = append(a.order, n.Name)
}

func (a *Analyzer) finish() {
	for _, name := range a.order {
		r := a.routines[name]
		if r.defined {
			continue
		}
		if r.called {
			a.diags.Errorf(r.decl.Pos, diag.UndefinedName, "routine '%s' is called but never defined", name)
		} else {
			a.diags.Infof(r.decl.Pos, diag.ForwardOnly, "routine '%s' is declared but never defined", name)
		}
	}
}

func (a *Analyzer) item(n ast.Node) {
	switch n := n.(type) {
	case *ast.TypeDecl:
		// Declared by collect.
	case *ast.RoutineDecl:
		a.routine(n)
	default:
		a.stmt(n)
	}
}

func (a *Analyzer) routine(n *ast.RoutineDecl) {
	if n.Body == nil {
		for _, p := range n.Params {
			a.checkType(p.Type, p.Pos, true)
		}
		return
	}
	a.symbols.Enter()
	defer a.symbols.Exit()
	for _, p := range n.Params {
		if p.Type == types.Void {
			a.diags.Errorf(p.Pos, diag.TypeMismatch, "parameter '%s' cannot have type void", p.Name)
		} else {
			a.checkType(p.Type, p.Pos, true)
		}
		if err := a.symbols.Declare(Symbol{Name: p.Name, Kind: Variable, Type: p.Type}); err != nil {
			a.diags.Errorf(p.Pos, diag.Redeclared, "%s", err)
		}
	}
	if n.Result != nil {
		a.checkType(n.Result, n.Pos, true)
	}
	saved := a.current
	a.current = n
	a.stmts(n.Body.Stmts)
	a.current = saved
}

// block checks stmts in a new scope.
func (a *Analyzer) block(b *ast.Block) {
	a.symbols.Enter()
	a.stmts(b.Stmts)
	a.symbols.Exit()
}

func (a *Analyzer) stmts(stmts []ast.Node) {
	returned := false
	for _, s := range stmts {
		if returned {
			a.diags.Warnf(s.Position(), diag.UnreachableCode, "statement is unreachable")
			returned = false
		}
		a.stmt(s)
		if _, ok := s.(*ast.Return); ok {
			returned = true
		}
	}
}

func (a *Analyzer) stmt(n ast.Node) {
	switch n := n.(type) {
	case *ast.VariableDecl:
		a.varDecl(n)
	case *ast.TypeDecl:
		if a.declareType(n) {
			a.checkAlias(n)
		}
	case *ast.RoutineDecl:
		a.diags.Errorf(n.Pos, diag.NestedRoutine, "routine '%s' must be declared at the top level", n.Name)
	case *ast.Assign:
		a.assign(n)
	case *ast.If:
		a.condition(n.Cond)
		a.block(n.Then)
		if n.Else != nil {
			a.block(n.Else)
		}
	case *ast.While:
		a.condition(n.Cond)
		a.block(n.Body)
	case *ast.For:
		a.forStmt(n)
	case *ast.Return:
		a.returnStmt(n)
	case *ast.Print:
		for _, arg := range n.Args {
			t := a.expr(arg)
			if t != types.Void && !types.IsPrimitive(t) {
				a.diags.Errorf(arg.Position(), diag.TypeMismatch, "cannot print a value of type %s", t)
			}
		}
	case *ast.Block:
		a.block(n)
	case *ast.Call:
		a.call(n, false)
	default:
		panic(fmt.Sprintf("sema: unexpected statement %T", n))
	}
}

func (a *Analyzer) varDecl(n *ast.VariableDecl) {
	var declared types.Type
	if n.Type != nil {
		declared = a.checkType(n.Type, n.Pos, false)
		if n.Type == types.Void {
			a.diags.Errorf(n.Pos, diag.TypeMismatch, "variable '%s' cannot have type void", n.Name)
		}
	}
	symType := n.Type
	if n.Type != nil && declared == types.Void {
		symType = types.Void
	}
	if n.Init != nil {
		it := a.expr(n.Init)
		if n.Type == nil {
			symType = it
		} else {
			a.assignable(declared, it, n.Init.Position())
		}
	}
	if err := a.symbols.Declare(Symbol{Name: n.Name, Kind: Variable, Type: symType}); err != nil {
		a.diags.Errorf(n.Pos, diag.Redeclared, "%s", err)
	}
}

func (a *Analyzer) assign(n *ast.Assign) {
	var target types.Type
	switch t := n.Target.(type) {
	case *ast.Identifier:
		sym, ok := a.symbols.Lookup(t.Name)
		switch {
		case !ok:
			a.diags.Errorf(t.Pos, diag.UndefinedName, "undefined name '%s'", t.Name)
			target = types.Void
		case sym.Kind != Variable:
			a.diags.Errorf(t.Pos, diag.InvalidTarget, "cannot assign to %s '%s'", sym.Kind, t.Name)
			target = types.Void
		default:
			target = a.resolve(sym.Type)
		}
	case *ast.ArrayAccess:
		target = a.expr(t)
	case *ast.RecordAccess:
		target = a.expr(t)
		if target != types.Void && (t.Field == "size" || t.Field == "length") {
			if _, isArray := a.expr(t.Object).(*types.Array); isArray {
				a.diags.Errorf(t.Pos, diag.InvalidTarget, "cannot assign to the length of an array")
				target = types.Void
			}
		}
	default:
		a.expr(n.Target)
		a.diags.Errorf(n.Target.Position(), diag.InvalidTarget, "cannot assign to this expression")
		target = types.Void
	}
	a.assignable(target, a.expr(n.Value), n.Value.Position())
}

// condition checks the condition of an if or a while.
func (a *Analyzer) condition(e ast.Expr) {
	t := a.expr(e)
	if t != types.Void && !IsAssignmentCompatible(types.Boolean, t) {
		a.diags.Errorf(e.Position(), diag.TypeMismatch, "condition must be boolean, got %s", t)
	}
}

func (a *Analyzer) forStmt(n *ast.For) {
	varType := types.Integer
	if n.IsRange() {
		for _, bound := range []ast.Expr{n.Start, n.End} {
			t := a.expr(bound)
			if t != types.Void && t != types.Integer {
				a.diags.Errorf(bound.Position(), diag.TypeMismatch, "range bound must be integer, got %s", t)
			}
		}
	} else {
		t := a.expr(n.Array)
		switch at := t.(type) {
		case *types.Array:
			if at.Size == nil {
				a.diags.Errorf(n.Array.Position(), diag.UnknownArrayLength, "cannot iterate over %s: its length is not known", at)
			}
			varType = at.Elem
		default:
			if t != types.Void {
				a.diags.Errorf(n.Array.Position(), diag.NotIndexable, "cannot iterate over a value of type %s", t)
			}
		}
	}
	a.symbols.Enter()
	defer a.symbols.Exit()
	if err := a.symbols.Declare(Symbol{Name: n.Var, Kind: Variable, Type: varType}); err != nil {
		a.diags.Errorf(n.Pos, diag.Redeclared, "%s", err)
	}
	a.stmts(n.Body.Stmts)
}

func (a *Analyzer) returnStmt(n *ast.Return) {
	if a.current == nil {
		if n.Value != nil {
			a.expr(n.Value)
		}
		a.diags.Errorf(n.Pos, diag.InvalidReturn, "return outside of a routine")
		return
	}
	result := a.current.Result
	if result == nil || result == types.Void {
		if n.Value != nil {
			a.expr(n.Value)
			a.diags.Errorf(n.Pos, diag.InvalidReturn, "routine '%s' does not return a value", a.current.Name)
		}
		return
	}
	if n.Value == nil {
		a.diags.Errorf(n.Pos, diag.InvalidReturn, "routine '%s' must return a value of type %s", a.current.Name, result)
		return
	}
	a.assignable(a.resolve(result), a.expr(n.Value), n.Value.Position())
}

// assignable reports a mismatch between a location of type target and a
// value of type source. Void on either side means the problem was already
// reported.
func (a *Analyzer) assignable(target, source types.Type, pos ast.Pos) {
	if target == types.Void || source == types.Void {
		return
	}
	t, s := a.normalize(target), a.normalize(source)
	if !IsAssignmentCompatible(t, s) {
		a.diags.Errorf(pos, diag.TypeMismatch, "cannot assign %s to %s", source, target)
		return
	}
	if IsLossy(t, s) {
		a.diags.Warnf(pos, diag.LossyConversion, "%s value converted to %s", source, target)
	}
}

// resolve follows the alias chain at the top level of t. Invalid types were
// reported where they were declared and come back as Void.
func (a *Analyzer) resolve(t types.Type) types.Type {
	r, err := a.env.ResolveTop(t)
	if err != nil {
		return types.Void
	}
	return r
}

// normalize resolves every alias inside t, for comparisons.
func (a *Analyzer) normalize(t types.Type) types.Type {
	r, err := a.env.ResolveDeep(t)
	if err != nil {
		return t
	}
	return r
}

// checkType validates a type written in a declaration and returns it
// resolved at the top level, or Void if it is invalid.
func (a *Analyzer) checkType(t types.Type, pos ast.Pos, allowUnsized bool) types.Type {
	if !a.checkTypeNames(t, pos) {
		return types.Void
	}
	if !a.checkSized(t, pos, allowUnsized) {
		return types.Void
	}
	return a.resolve(t)
}

// checkTypeNames reports every type name inside t that is not an alias.
func (a *Analyzer) checkTypeNames(t types.Type, pos ast.Pos) bool {
	switch t := t.(type) {
	case *types.Named:
		if _, ok := a.env.Resolve(t.Name); ok {
			return true
		}
		if sym, ok := a.symbols.Lookup(t.Name); ok {
			a.diags.Errorf(pos, diag.NotAType, "'%s' is a %s, not a type", t.Name, sym.Kind)
		} else {
			a.diags.Errorf(pos, diag.UndefinedName, "undefined type '%s'", t.Name)
		}
		return false
	case *types.Array:
		return a.checkTypeNames(t.Elem, pos)
	case *types.Record:
		ok := true
		for _, f := range t.Fields {
			if f.Type == types.Void {
				a.diags.Errorf(pos, diag.TypeMismatch, "field '%s' cannot have type void", f.Name)
				ok = false
			}
			ok = a.checkTypeNames(f.Type, pos) && ok
		}
		return ok
	}
	return true
}

// checkSized reports arrays without a length. Only the outermost array of a
// parameter may omit it.
func (a *Analyzer) checkSized(t types.Type, pos ast.Pos, allowUnsized bool) bool {
	switch t := t.(type) {
	case *types.Array:
		if t.Size == nil && !allowUnsized {
			a.diags.Errorf(pos, diag.UnknownArrayLength, "%s needs a static length", t)
			return false
		}
		return a.checkSized(t.Elem, pos, false)
	case *types.Record:
		ok := true
		for _, f := range t.Fields {
			ok = a.checkSized(f.Type, pos, false) && ok
		}
		return ok
	}
	return true
}

func (a *Analyzer) call(n *ast.Call, asValue bool) types.Type {
	var argTypes []types.Type
	for _, arg := range n.Args {
		argTypes = append(argTypes, a.expr(arg))
	}
	sym, ok := a.symbols.Lookup(n.Name)
	if !ok {
		a.diags.Errorf(n.Pos, diag.UndefinedName, "undefined routine '%s'", n.Name)
		return types.Void
	}
	sig, ok := sym.Type.(*types.Function)
	if sym.Kind != Function || !ok {
		a.diags.Errorf(n.Pos, diag.NotCallable, "%s '%s' is not a routine", sym.Kind, n.Name)
		return types.Void
	}
	if r := a.routines[n.Name]; r != nil {
		r.called = true
	}
	if len(n.Args) != len(sig.Params) {
		a.diags.Errorf(n.Pos, diag.ArityMismatch, "routine '%s' expects %d argument(s), got %d", n.Name, len(sig.Params), len(n.Args))
	} else {
		for i, p := range sig.Params {
			a.assignable(a.resolve(p), argTypes[i], n.Args[i].Position())
		}
	}
	result := a.resolve(sig.Result)
	if asValue && sig.Result == types.Void {
		a.diags.Errorf(n.Pos, diag.TypeMismatch, "routine '%s' does not return a value", n.Name)
	}
	return result
}

// expr infers the type of e, resolved at the top level. Void means e is
// invalid and has been reported.
func (a *Analyzer) expr(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.Literal:
		return e.Type()
	case *ast.Identifier:
		sym, ok := a.symbols.Lookup(e.Name)
		if !ok {
			a.diags.Errorf(e.Pos, diag.UndefinedName, "undefined name '%s'", e.Name)
			return types.Void
		}
		if sym.Kind != Variable {
			a.diags.Errorf(e.Pos, diag.TypeMismatch, "%s '%s' cannot be used as a value", sym.Kind, e.Name)
			return types.Void
		}
		return a.resolve(sym.Type)
	case *ast.Binary:
		return a.binary(e)
	case *ast.Unary:
		t := a.expr(e.Operand)
		if t == types.Void {
			return types.Void
		}
		if e.Op == "not" {
			if !IsAssignmentCompatible(types.Boolean, t) {
				a.diags.Errorf(e.Pos, diag.TypeMismatch, "operator 'not' cannot be applied to %s", t)
			}
			return types.Boolean
		}
		if !types.IsNumeric(t) {
			a.diags.Errorf(e.Pos, diag.TypeMismatch, "operator '%s' needs a numeric operand, got %s", e.Op, t)
			return types.Void
		}
		return t
	case *ast.ArrayAccess:
		at := a.expr(e.Array)
		it := a.expr(e.Index)
		if it != types.Void && it != types.Integer {
			a.diags.Errorf(e.Index.Position(), diag.IndexTypeMismatch, "array index must be integer, got %s", it)
		}
		if at == types.Void {
			return types.Void
		}
		arr, ok := at.(*types.Array)
		if !ok {
			a.diags.Errorf(e.Pos, diag.NotIndexable, "cannot index a value of type %s", at)
			return types.Void
		}
		return a.resolve(arr.Elem)
	case *ast.RecordAccess:
		ot := a.expr(e.Object)
		switch t := ot.(type) {
		case *types.Array:
			if e.Field != "size" && e.Field != "length" {
				a.diags.Errorf(e.Pos, diag.UnknownField, "%s has no field '%s'", t, e.Field)
				return types.Void
			}
			if t.Size == nil {
				a.diags.Errorf(e.Pos, diag.UnknownArrayLength, "the length of %s is not known", t)
				return types.Void
			}
			return types.Integer
		case *types.Record:
			ft, _, ok := t.Field(e.Field)
			if !ok {
				a.diags.Errorf(e.Pos, diag.UnknownField, "%s has no field '%s'", t, e.Field)
				return types.Void
			}
			return a.resolve(ft)
		default:
			if ot != types.Void {
				a.diags.Errorf(e.Pos, diag.UnknownField, "a value of type %s has no field '%s'", ot, e.Field)
			}
			return types.Void
		}
	case *ast.Call:
		return a.call(e, true)
	default:
		panic(fmt.Sprintf("sema: unexpected expression %T", e))
	}
}

func (a *Analyzer) binary(e *ast.Binary) types.Type {
	l := a.expr(e.Left)
	r := a.expr(e.Right)
	poisoned := l == types.Void || r == types.Void
	switch {
	case ast.IsArithmetic(e.Op):
		if poisoned {
			return types.Void
		}
		if e.Op == "%" {
			if l != types.Integer || r != types.Integer {
				a.diags.Errorf(e.Pos, diag.TypeMismatch, "operator '%%' needs integer operands, got %s and %s", l, r)
				return types.Void
			}
			return types.Integer
		}
		if !types.IsNumeric(l) || !types.IsNumeric(r) {
			a.diags.Errorf(e.Pos, diag.TypeMismatch, "operator '%s' needs numeric operands, got %s and %s", e.Op, l, r)
			return types.Void
		}
		if l == types.Real || r == types.Real {
			return types.Real
		}
		return types.Integer
	case ast.IsComparison(e.Op):
		if poisoned {
			return types.Boolean
		}
		ok := types.IsNumeric(l) && types.IsNumeric(r)
		if e.Op == "=" || e.Op == "/=" {
			ok = ok || (l == types.Boolean && r == types.Boolean)
		}
		if !ok {
			a.diags.Errorf(e.Pos, diag.TypeMismatch, "cannot compare %s with %s using '%s'", l, r, e.Op)
		}
		return types.Boolean
	case ast.IsLogical(e.Op):
		if !poisoned && (l != types.Boolean || r != types.Boolean) {
			a.diags.Errorf(e.Pos, diag.TypeMismatch, "operator '%s' needs boolean operands, got %s and %s", e.Op, l, r)
		}
		return types.Boolean
	default:
		panic(fmt.Sprintf("sema: unexpected binary operator %q", e.Op))
	}
}
