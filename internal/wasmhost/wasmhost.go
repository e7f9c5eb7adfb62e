// Package wasmhost runs WebAssembly text modules under wasmtime with a WASI
// environment whose standard streams are redirected to Go writers.
package wasmhost

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrStepLimit is returned when a program exhausts its fuel.
var ErrStepLimit = errors.New("wasmhost: fuel exhausted")

// ErrUnavailable is returned by Run and Validate in builds without cgo.
var ErrUnavailable = errors.New("wasmhost: wasmtime needs cgo")

// Trap is a runtime fault reported by wasmtime.
type Trap struct {
	Msg string
}

func (t *Trap) Error() string { return fmt.Sprintf("trap: %s", t.Msg) }

type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// Fuel bounds the work a program may do; wasmtime charges roughly one
	// unit per instruction. Zero means no limit.
	Fuel uint64
}

type Result struct {
	ExitCode int
	FuelUsed uint64
}
