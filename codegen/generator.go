package codegen

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/strager/impc/ast"
	"github.com/strager/impc/types"
)

type Config struct {
	// HeapBase is the first address the arena hands out. Addresses below it
	// are scratch space for the runtime library.
	HeapBase uint32
}

// Generator lowers one program. It expects a tree the analyzer accepted
// without errors, and the type environment the analyzer filled.
type Generator struct {
	env      *types.Env
	layout   *Layout
	arena    *Arena
	scope    *VariableScopeManager
	resolver *TypeResolver
	routines map[string]*types.Function
	module   *Module

	fn     *Function
	result types.Type // of the routine being generated
	labels int
}

func NewGenerator(env *types.Env, cfg Config) *Generator {
	if cfg.HeapBase == 0 {
		cfg.HeapBase = DefaultHeapBase
	}
	g := &Generator{
		env:      env,
		layout:   NewLayout(),
		arena:    NewArena(cfg.HeapBase),
		scope:    NewVariableScopeManager(),
		routines: make(map[string]*types.Function),
	}
	g.resolver = NewTypeResolver(g.scope, g.routines)
	return g
}

// Generate builds the module for prog. Errors are internal: a program that
// passed analysis always lowers.
func Generate(prog *ast.Program, env *types.Env, cfg Config) (*Module, error) {
	return NewGenerator(env, cfg).Generate(prog)
}

func (g *Generator) Generate(prog *ast.Program) (m *Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			m, err = nil, errors.Wrap(ie, "codegen")
		}
	}()

	g.module = NewModule()
	installImports(g.module)
	g.arena.Install(g.module)

	items := ast.Sort(prog.Items)
	for _, item := range items {
		if r, ok := item.(*ast.RoutineDecl); ok {
			g.routines[r.Name] = g.signature(r)
		}
	}
	for _, item := range items {
		if v, ok := item.(*ast.VariableDecl); ok {
			info := g.scope.DeclareGlobal(v.Name, g.varType(v))
			g.module.AddGlobal(Global{Name: "g_" + v.Name, Type: info.Repr, Init: zero(info.Repr)})
		}
	}
	for _, item := range items {
		if r, ok := item.(*ast.RoutineDecl); ok && r.Body != nil {
			g.routine(r)
		}
	}
	g.start(items)
	for _, f := range runtimeFuncs() {
		g.module.AddFunc(f)
	}
	return g.module, nil
}

// Layout exposes the record layouts computed during generation.
func (g *Generator) Layout() *Layout { return g.layout }

// Arena exposes the allocator, mostly for its statistics.
func (g *Generator) Arena() *Arena { return g.arena }

func (g *Generator) resolve(t types.Type, pos ast.Pos) types.Type {
	if t == nil {
		return types.Void
	}
	rt, err := g.env.ResolveDeep(t)
	if err != nil {
		internalf(pos, "%v", err)
	}
	return rt
}

func (g *Generator) signature(r *ast.RoutineDecl) *types.Function {
	fn := &types.Function{Result: g.resolve(r.Result, r.Pos)}
	for _, p := range r.Params {
		fn.Params = append(fn.Params, g.resolve(p.Type, p.Pos))
	}
	return fn
}

// varType is the declared type of v, or the type of its initializer.
func (g *Generator) varType(v *ast.VariableDecl) types.Type {
	if v.Type != nil {
		return g.resolve(v.Type, v.Pos)
	}
	if v.Init == nil {
		internalf(v.Pos, "variable '%s' has neither type nor initializer", v.Name)
	}
	return g.resolver.TypeOf(v.Init)
}

func (g *Generator) beginFunction(name string, result types.Type) {
	g.scope.EnterFunction()
	g.fn = NewFunction(name, ReprOf(result))
	g.result = result
	g.labels = 0
}

// endFunction declares every local the body used. The target format wants
// them up front, so they are added after the body is known.
func (g *Generator) endFunction() {
	for _, l := range g.scope.Locals()[len(g.fn.Params):] {
		g.fn.Locals = append(g.fn.Locals, Local{Name: l.Name, Type: l.Repr})
	}
	g.module.AddFunc(g.fn)
	g.fn = nil
}

func (g *Generator) routine(r *ast.RoutineDecl) {
	sig := g.routines[r.Name]
	g.beginFunction("fn_"+r.Name, sig.Result)
	for i, p := range r.Params {
		info := g.scope.DeclareVariable(p.Name, sig.Params[i])
		g.fn.Params = append(g.fn.Params, Local{Name: p.Name, Type: info.Repr})
	}
	g.stmts(r.Body.Stmts)
	if sig.Result != types.Void && !endsInReturn(r.Body.Stmts) {
		g.fn.Comment("fell off the end")
		g.fn.Emit("%s", zero(ReprOf(sig.Result)))
		g.fn.Emit("return")
	}
	g.endFunction()
}

func endsInReturn(stmts []ast.Node) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(*ast.Return)
	return ok
}

// start generates the entry point. Storage for composite globals is
// allocated before anything else runs, since a routine called early may use
// a global declared later; initializers and statements then run in position
// order.
func (g *Generator) start(items []ast.Node) {
	g.beginFunction("_start", types.Void)
	g.fn.Export = "_start"
	global := func(n *ast.VariableDecl) VariableInfo {
		info, ok := g.scope.Lookup(n.Name)
		if !ok || !info.Global {
			internalf(n.Pos, "global '%s' was not declared", n.Name)
		}
		return info
	}
	for _, item := range items {
		if n, ok := item.(*ast.VariableDecl); ok && n.Init == nil {
			if info := global(n); types.IsComposite(info.Type) {
				g.allocate(info.Type)
				g.set(info)
			}
		}
	}
	for _, item := range items {
		switch item := item.(type) {
		case *ast.RoutineDecl, *ast.TypeDecl:
		case *ast.VariableDecl:
			if item.Init != nil {
				info := global(item)
				g.value(item.Init, info.Type)
				g.set(info)
			}
		default:
			g.stmt(item)
		}
	}
	g.fn.Emit("i32.const 0")
	g.fn.Emit("call $proc_exit")
	g.endFunction()
}

func (g *Generator) label(kind string) string {
	g.labels++
	return fmt.Sprintf("$%s%d", kind, g.labels)
}

func (g *Generator) block(b *ast.Block) {
	g.scope.EnterScope()
	g.stmts(b.Stmts)
	g.scope.ExitScope()
}

func (g *Generator) stmts(stmts []ast.Node) {
	for _, s := range stmts {
		g.stmt(s)
	}
}

func (g *Generator) stmt(n ast.Node) {
	switch n := n.(type) {
	case *ast.VariableDecl:
		// The initializer sees the enclosing scopes only.
		t := g.varType(n)
		g.initialValue(n, t)
		g.set(g.scope.DeclareVariable(n.Name, t))
	case *ast.TypeDecl:
		// Aliases live in the environment.
	case *ast.RoutineDecl:
		internalf(n.Pos, "nested routine '%s'", n.Name)
	case *ast.Assign:
		g.assign(n)
	case *ast.If:
		g.condition(n.Cond)
		g.fn.Emit("if")
		g.block(n.Then)
		if n.Else != nil {
			g.fn.Emit("else")
			g.block(n.Else)
		}
		g.fn.Emit("end")
	case *ast.While:
		exit, loop := g.label("exit"), g.label("loop")
		g.fn.Emit("block %s", exit)
		g.fn.Emit("loop %s", loop)
		g.condition(n.Cond)
		g.fn.Emit("i32.eqz")
		g.fn.Emit("br_if %s", exit)
		g.block(n.Body)
		g.fn.Emit("br %s", loop)
		g.fn.Emit("end")
		g.fn.Emit("end")
	case *ast.For:
		if n.IsRange() {
			g.rangeFor(n)
		} else {
			g.arrayFor(n)
		}
	case *ast.Return:
		if n.Value != nil {
			g.value(n.Value, g.result)
		}
		g.fn.Emit("return")
	case *ast.Print:
		g.print(n)
	case *ast.Block:
		g.block(n)
	case *ast.Call:
		if g.call(n) != types.Void {
			g.fn.Emit("drop")
		}
	default:
		internalf(n.Position(), "unexpected statement %T", n)
	}
}

func (g *Generator) set(info VariableInfo) {
	if info.Global {
		g.fn.Emit("global.set %s", info.Ref())
	} else {
		g.fn.Emit("local.set %s", info.Ref())
	}
}

func (g *Generator) get(info VariableInfo) {
	if info.Global {
		g.fn.Emit("global.get %s", info.Ref())
	} else {
		g.fn.Emit("local.get %s", info.Ref())
	}
}

// initialValue pushes the initial value of a local variable: its
// initializer, fresh storage for a composite, or zero.
func (g *Generator) initialValue(n *ast.VariableDecl, t types.Type) {
	switch {
	case n.Init != nil:
		g.value(n.Init, t)
	case types.IsComposite(t):
		g.allocate(t)
	default:
		g.fn.Emit("%s", zero(ReprOf(t)))
	}
}

func (g *Generator) assign(n *ast.Assign) {
	if id, ok := n.Target.(*ast.Identifier); ok {
		info, ok := g.scope.Lookup(id.Name)
		if !ok {
			internalf(id.Pos, "undefined variable '%s'", id.Name)
		}
		g.value(n.Value, info.Type)
		g.set(info)
		return
	}
	t, inline := g.address(n.Target)
	if inline {
		g.value(n.Value, t)
		g.fn.Emit("i32.const %d", g.layout.ElemSize(t))
		g.fn.Emit("call $copy")
		return
	}
	g.value(n.Value, t)
	g.store(t)
}

func (g *Generator) condition(e ast.Expr) {
	g.value(e, types.Boolean)
}

// bound evaluates a range bound into a fresh hidden local, or returns its
// value when it is a literal.
func (g *Generator) bound(e ast.Expr, name string) (VariableInfo, int64, bool) {
	if lit, ok := e.(*ast.Literal); ok && lit.Kind == ast.IntLit {
		return VariableInfo{}, int64(int32(lit.Int)), true
	}
	info := g.scope.DeclareHidden(name, types.Integer)
	g.value(e, types.Integer)
	g.set(info)
	return info, 0, false
}

func (g *Generator) rangeFor(n *ast.For) {
	g.scope.EnterScope()
	defer g.scope.ExitScope()

	a, av, aconst := g.bound(n.Start, "for.a")
	b, bv, bconst := g.bound(n.End, "for.b")
	v := g.scope.DeclareVariable(n.Var, types.Integer)

	// A forward range counts from its start bound up to its end bound and
	// is empty when start > end.
	start := func() { g.pushBound(a, av, aconst) }
	limit := func() { g.pushBound(b, bv, bconst) }
	exitTest, step := "i32.gt_s", "i32.add"
	if n.Reverse {
		// A reverse range walks the interval between its bounds from the
		// higher one down to the lower one.
		start, limit = g.rangeEnds(a, av, aconst, b, bv, bconst)
		exitTest, step = "i32.lt_s", "i32.sub"
	}
	start()
	g.set(v)
	exit, loop := g.label("exit"), g.label("loop")
	g.fn.Emit("block %s", exit)
	g.fn.Emit("loop %s", loop)
	g.get(v)
	limit()
	g.fn.Emit("%s", exitTest)
	g.fn.Emit("br_if %s", exit)
	g.block(n.Body)
	g.get(v)
	g.fn.Emit("i32.const 1")
	g.fn.Emit("%s", step)
	g.set(v)
	g.fn.Emit("br %s", loop)
	g.fn.Emit("end")
	g.fn.Emit("end")
}

// rangeEnds returns emitters for the higher and the lower of two bounds.
func (g *Generator) rangeEnds(a VariableInfo, av int64, aconst bool, b VariableInfo, bv int64, bconst bool) (high, low func()) {
	if aconst && bconst {
		high = func() { g.fn.Emit("i32.const %d", max(av, bv)) }
		low = func() { g.fn.Emit("i32.const %d", min(av, bv)) }
		return high, low
	}
	lo := g.scope.DeclareHidden("for.lo", types.Integer)
	hi := g.scope.DeclareHidden("for.hi", types.Integer)
	pushA := func() { g.pushBound(a, av, aconst) }
	pushB := func() { g.pushBound(b, bv, bconst) }
	// select keeps its first operand when the condition is non-zero.
	pushA()
	pushB()
	pushA()
	pushB()
	g.fn.Emit("i32.lt_s")
	g.fn.Emit("select")
	g.set(lo)
	pushB()
	pushA()
	pushA()
	pushB()
	g.fn.Emit("i32.lt_s")
	g.fn.Emit("select")
	g.set(hi)
	return func() { g.get(hi) }, func() { g.get(lo) }
}

func (g *Generator) pushBound(info VariableInfo, v int64, isConst bool) {
	if isConst {
		g.fn.Emit("i32.const %d", v)
	} else {
		g.get(info)
	}
}

func (g *Generator) arrayFor(n *ast.For) {
	at, ok := g.resolver.TypeOf(n.Array).(*types.Array)
	if !ok {
		internalf(n.Pos, "for over a non-array")
	}
	length, ok := at.Len()
	if !ok {
		internalf(n.Pos, "for over %s", at)
	}
	g.scope.EnterScope()
	defer g.scope.ExitScope()

	base := g.scope.DeclareHidden("for.base", at)
	g.expr(n.Array)
	g.set(base)
	idx := g.scope.DeclareHidden("for.index", types.Integer)
	v := g.scope.DeclareVariable(n.Var, at.Elem)

	first, last, exitTest, step := int64(1), length, "i32.gt_s", "i32.add"
	if n.Reverse {
		first, last, exitTest, step = length, 1, "i32.lt_s", "i32.sub"
	}
	g.fn.Emit("i32.const %d", first)
	g.set(idx)
	exit, loop := g.label("exit"), g.label("loop")
	g.fn.Emit("block %s", exit)
	g.fn.Emit("loop %s", loop)
	g.get(idx)
	g.fn.Emit("i32.const %d", last)
	g.fn.Emit("%s", exitTest)
	g.fn.Emit("br_if %s", exit)

	g.get(base)
	g.get(idx)
	g.elementOffset(at.Elem)
	g.fn.Emit("i32.add")
	g.load(at.Elem, types.IsComposite(at.Elem))
	g.set(v)

	g.block(n.Body)
	g.get(idx)
	g.fn.Emit("i32.const 1")
	g.fn.Emit("%s", step)
	g.set(idx)
	g.fn.Emit("br %s", loop)
	g.fn.Emit("end")
	g.fn.Emit("end")
}

func (g *Generator) print(n *ast.Print) {
	for i, arg := range n.Args {
		if i > 0 {
			g.fn.Emit("i32.const 32 ;; ' '")
			g.fn.Emit("call $print_char")
		}
		switch t := g.expr(arg); t {
		case types.Real:
			g.fn.Emit("call $print_real")
		case types.Boolean:
			g.fn.Emit("call $print_bool")
		case types.Integer:
			g.fn.Emit("call $print_int")
		default:
			internalf(arg.Position(), "cannot print %s", t)
		}
	}
	g.fn.Emit("i32.const 10 ;; '\\n'")
	g.fn.Emit("call $print_char")
}

// allocate leaves the address of fresh storage for a value of type t, with
// every array pointer inside it set up.
func (g *Generator) allocate(t types.Type) {
	size := g.layout.StorageSize(t)
	if !g.layout.NeedsInit(t) {
		g.arena.Allocate(g.fn, size)
		return
	}
	at := g.scope.DeclareHidden("alloc", t)
	g.arena.Allocate(g.fn, size)
	g.set(at)
	g.initStorage(t, at)
	g.get(at)
}

// initStorage fills in the array pointers of the storage whose address is
// in local at.
func (g *Generator) initStorage(t types.Type, at VariableInfo) {
	switch t := t.(type) {
	case *types.Record:
		for _, f := range g.layout.Record(t).Fields {
			switch ft := f.Type.(type) {
			case *types.Array:
				g.get(at)
				g.fn.Emit("i32.const %d", f.Offset)
				g.fn.Emit("i32.add")
				g.allocate(ft)
				g.fn.Emit("i32.store")
			case *types.Record:
				if !g.layout.NeedsInit(ft) {
					continue
				}
				inner := g.scope.DeclareHidden("alloc."+f.Name, ft)
				g.get(at)
				g.fn.Emit("i32.const %d", f.Offset)
				g.fn.Emit("i32.add")
				g.set(inner)
				g.initStorage(ft, inner)
			}
		}
	case *types.Array:
		if !types.IsComposite(t.Elem) || !g.layout.NeedsInit(t.Elem) {
			return
		}
		n, _ := t.Len()
		elem := g.scope.DeclareHidden("alloc.elem", t.Elem)
		count := g.scope.DeclareHidden("alloc.count", types.Integer)
		g.get(at)
		g.set(elem)
		g.fn.Emit("i32.const %d", n)
		g.set(count)
		exit, loop := g.label("exit"), g.label("loop")
		g.fn.Emit("block %s", exit)
		g.fn.Emit("loop %s", loop)
		g.get(count)
		g.fn.Emit("i32.eqz")
		g.fn.Emit("br_if %s", exit)
		g.initStorage(t.Elem, elem)
		g.get(elem)
		g.fn.Emit("i32.const %d", g.layout.ElemSize(t.Elem))
		g.fn.Emit("i32.add")
		g.set(elem)
		g.get(count)
		g.fn.Emit("i32.const 1")
		g.fn.Emit("i32.sub")
		g.set(count)
		g.fn.Emit("br %s", loop)
		g.fn.Emit("end")
		g.fn.Emit("end")
	}
}
