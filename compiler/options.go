package compiler

import (
	"io"
	"log"
	"os"

	"github.com/strager/impc/codegen"
	"github.com/strager/impc/internal/wasmhost"
	"github.com/strager/impc/internal/watvm"
	"github.com/xyproto/env/v2"
)

// Options controls one compilation. The zero value compiles without
// optimizing, at the default heap base, and logs nothing.
type Options struct {
	// Optimize runs constant folding and dead code elimination before code
	// generation.
	Optimize bool
	// HeapBase is the first address handed out by the arena. Zero means
	// codegen.DefaultHeapBase.
	HeapBase uint32
	// MaxSteps bounds execution under Run, in instructions for watvm and
	// in fuel for wasmtime. Zero means DefaultMaxSteps; negative means no
	// limit.
	MaxSteps int
	// Engine selects what Run executes modules with: EngineWasmtime or
	// EngineWatvm. Empty means DefaultEngine.
	Engine string
	// Logger receives phase timings and counts. Nil discards them.
	Logger *log.Logger
}

const (
	EngineWasmtime = "wasmtime"
	EngineWatvm    = "watvm"
)

const DefaultMaxSteps = watvm.DefaultMaxSteps

// DefaultEngine is wasmtime, except in builds without cgo, which fall back
// to the built-in interpreter.
func DefaultEngine() string {
	if wasmhost.Available {
		return EngineWasmtime
	}
	return EngineWatvm
}

func DefaultOptions() Options {
	return Options{
		Optimize: true,
		HeapBase: codegen.DefaultHeapBase,
	}
}

// OptionsFromEnv starts from DefaultOptions and applies IMPC_OPTIMIZE,
// IMPC_HEAP_BASE, IMPC_MAX_STEPS, IMPC_ENGINE and IMPC_VERBOSE.
func OptionsFromEnv() Options {
	opts := DefaultOptions()
	if env.Has("IMPC_OPTIMIZE") {
		opts.Optimize = env.Bool("IMPC_OPTIMIZE")
	}
	if base := env.Int("IMPC_HEAP_BASE", 0); base > 0 {
		opts.HeapBase = uint32(base)
	}
	opts.MaxSteps = env.Int("IMPC_MAX_STEPS", opts.MaxSteps)
	opts.Engine = env.Str("IMPC_ENGINE", opts.Engine)
	if env.Bool("IMPC_VERBOSE") {
		opts.Logger = VerboseLogger(os.Stderr)
	}
	return opts
}

// VerboseLogger is the logger used when verbose output is requested.
func VerboseLogger(w io.Writer) *log.Logger {
	return log.New(w, "impc: ", log.Lmsgprefix)
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return o.Logger
}
