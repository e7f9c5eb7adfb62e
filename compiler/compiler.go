// Package compiler runs the phases in order: analysis, then, only when
// analysis found no errors, optimization and code generation.
package compiler

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/strager/impc/ast"
	"github.com/strager/impc/codegen"
	"github.com/strager/impc/diag"
	"github.com/strager/impc/internal/wasmhost"
	"github.com/strager/impc/internal/watvm"
	"github.com/strager/impc/opt"
	"github.com/strager/impc/sema"
)

// ErrDiagnostics is returned, wrapped, when analysis reports errors. The
// diagnostics themselves are in the Result.
var ErrDiagnostics = errors.New("program has errors")

type Result struct {
	Diagnostics *diag.List
	// Program is the tree code was generated from: the optimized one when
	// optimization is on.
	Program *ast.Program
	Module  *codegen.Module
	WAT     string
}

// Compile checks prog and lowers it to a module. When analysis reports
// errors, the returned Result holds them and the error wraps ErrDiagnostics.
func Compile(prog *ast.Program, opts Options) (*Result, error) {
	logger := opts.logger()

	start := time.Now()
	analysis := sema.Analyze(prog)
	res := &Result{Diagnostics: analysis.Diagnostics, Program: prog}
	logger.Printf("analyze: %d items, %d diagnostics in %s", len(prog.Items), analysis.Diagnostics.Len(), time.Since(start))
	if analysis.Diagnostics.HasErrors() {
		return res, errors.Wrapf(ErrDiagnostics, "%d error(s)", analysis.Diagnostics.ErrorCount())
	}

	if opts.Optimize {
		start = time.Now()
		res.Program = opt.Optimize(prog)
		logger.Printf("optimize: done in %s", time.Since(start))
	}

	start = time.Now()
	g := codegen.NewGenerator(analysis.Env, codegen.Config{HeapBase: opts.HeapBase})
	m, err := g.Generate(res.Program)
	if err != nil {
		return res, err
	}
	res.Module = m
	res.WAT = m.String()
	logger.Printf("codegen: %d functions, %d allocation sites, %d bytes in %s",
		len(m.Funcs), g.Arena().Sites, len(res.WAT), time.Since(start))
	return res, nil
}

// CompileSource reads a (program ...) document and compiles it.
func CompileSource(src string, opts Options) (*Result, error) {
	prog, err := ast.ParseSExpr(src)
	if err != nil {
		return nil, errors.Wrap(err, "read program")
	}
	return Compile(prog, opts)
}

// ErrStepLimit is returned, wrapped, when a program runs out of its
// MaxSteps budget. ErrTrap is returned, wrapped, when it faults.
var (
	ErrStepLimit = errors.New("step limit exceeded")
	ErrTrap      = errors.New("program trapped")
)

// Run executes a compiled module with the engine opts selects and returns
// its exit code.
func Run(res *Result, stdout, stderr io.Writer, opts Options) (int, error) {
	if res == nil || res.Module == nil {
		return 0, errors.New("nothing to run")
	}
	steps := opts.MaxSteps
	if steps == 0 {
		steps = DefaultMaxSteps
	}
	engine := opts.Engine
	if engine == "" {
		engine = DefaultEngine()
	}

	start := time.Now()
	var (
		code int
		used uint64
		err  error
	)
	switch engine {
	case EngineWasmtime:
		var r wasmhost.Result
		r, err = wasmhost.Run(res.WAT, wasmhost.Options{Stdout: stdout, Stderr: stderr, Fuel: uint64(max(steps, 0))})
		code, used = r.ExitCode, r.FuelUsed
	case EngineWatvm:
		var mod *watvm.Module
		mod, err = watvm.Parse(res.WAT)
		if err != nil {
			return 0, errors.Wrap(err, "load module")
		}
		m := watvm.New(mod, watvm.Options{Stdout: stdout, Stderr: stderr, MaxSteps: steps})
		code, err = m.Start()
		used = uint64(m.Steps())
	default:
		return 0, errors.Errorf("unknown engine %q", engine)
	}
	opts.logger().Printf("run: exit %d after %d steps on %s in %s", code, used, engine, time.Since(start))
	return code, runError(engine, err)
}

func runError(engine string, err error) error {
	var (
		vmTrap   *watvm.Trap
		hostTrap *wasmhost.Trap
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, watvm.ErrStepLimit), errors.Is(err, wasmhost.ErrStepLimit):
		return errors.Wrap(ErrStepLimit, engine)
	case errors.As(err, &vmTrap):
		return errors.Wrap(ErrTrap, vmTrap.Msg)
	case errors.As(err, &hostTrap):
		return errors.Wrap(ErrTrap, hostTrap.Msg)
	}
	return err
}
