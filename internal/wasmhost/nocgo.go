//go:build !cgo

package wasmhost

const Available = false

func Validate(string) error { return ErrUnavailable }

func Run(string, Options) (Result, error) { return Result{}, ErrUnavailable }
