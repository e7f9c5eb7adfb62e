//go:build cgo

package wasmhost

import (
	"io"
	"os"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/pkg/errors"
)

// Available reports whether this build can run modules.
const Available = true

// Validate checks that src is a well-formed, valid module.
func Validate(src string) error {
	_, err := compile(wasmtime.NewEngine(), src)
	return err
}

func compile(engine *wasmtime.Engine, src string) (*wasmtime.Module, error) {
	wasm, err := wasmtime.Wat2Wasm(src)
	if err != nil {
		return nil, errors.Wrap(err, "wasmhost: parse")
	}
	mod, err := wasmtime.NewModule(engine, wasm)
	if err != nil {
		return nil, errors.Wrap(err, "wasmhost: validate")
	}
	return mod, nil
}

// Run instantiates src and calls its _start export.
func Run(src string, opts Options) (Result, error) {
	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(opts.Fuel > 0)
	engine := wasmtime.NewEngineWithConfig(cfg)
	mod, err := compile(engine, src)
	if err != nil {
		return Result{}, err
	}

	stdout, err := os.CreateTemp("", "impc-stdout-*")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(stdout.Name())
	defer stdout.Close()
	stderr, err := os.CreateTemp("", "impc-stderr-*")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(stderr.Name())
	defer stderr.Close()

	wasi := wasmtime.NewWasiConfig()
	if err := wasi.SetStdoutFile(stdout.Name()); err != nil {
		return Result{}, err
	}
	if err := wasi.SetStderrFile(stderr.Name()); err != nil {
		return Result{}, err
	}
	store := wasmtime.NewStore(engine)
	store.SetWasi(wasi)
	if opts.Fuel > 0 {
		if err := store.SetFuel(opts.Fuel); err != nil {
			return Result{}, err
		}
	}

	linker := wasmtime.NewLinker(engine)
	if err := linker.DefineWasi(); err != nil {
		return Result{}, err
	}
	inst, err := linker.Instantiate(store, mod)
	if err != nil {
		return Result{}, errors.Wrap(err, "wasmhost: instantiate")
	}
	start := inst.GetFunc(store, "_start")
	if start == nil {
		return Result{}, errors.New("wasmhost: no _start export")
	}

	var res Result
	_, callErr := start.Call(store)
	if opts.Fuel > 0 {
		if left, err := store.GetFuel(); err == nil {
			res.FuelUsed = opts.Fuel - left
		}
	}
	if err := drain(stdout, opts.Stdout); err != nil {
		return res, err
	}
	if err := drain(stderr, opts.Stderr); err != nil {
		return res, err
	}
	if callErr == nil {
		return res, nil
	}

	var exit *wasmtime.Error
	if errors.As(callErr, &exit) {
		if code, ok := exit.ExitStatus(); ok {
			res.ExitCode = int(code)
			return res, nil
		}
	}
	var trap *wasmtime.Trap
	if errors.As(callErr, &trap) {
		if code := trap.Code(); code != nil && *code == wasmtime.OutOfFuel {
			return res, ErrStepLimit
		}
		return res, &Trap{Msg: strings.TrimSpace(trap.Message())}
	}
	return res, callErr
}

// drain copies what the program wrote to f into w.
func drain(f *os.File, w io.Writer) error {
	if w == nil {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(w, f)
	return err
}
