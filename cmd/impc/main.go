// Command impc compiles Imp programs, given as AST documents, to WebAssembly
// text.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/strager/impc/ast"
	"github.com/strager/impc/compiler"
	"github.com/strager/impc/diag"
	"github.com/xyproto/env/v2"
)

// exitError asks main to exit with a code after the command has reported
// the problem itself.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type globalFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "impc",
		Short: "impc compiles Imp programs to WebAssembly text",
		Long: `impc is the back end of the Imp teaching language. It reads a program as
an AST document, checks it, optimizes it and emits a WebAssembly text module
that imports fd_write and proc_exit from WASI.

Commands:
  build  Compile a program to a .wat module
  check  Report the diagnostics of a program
  run    Compile a program and execute it under wasmtime
  ast    Print the program tree, optionally optimized

Environment:
  IMPC_OPTIMIZE, IMPC_HEAP_BASE, IMPC_MAX_STEPS, IMPC_ENGINE, IMPC_VERBOSE,
  NO_COLOR
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log compilation phases to stderr")
	root.AddCommand(newBuildCmd(flags), newCheckCmd(flags), newRunCmd(flags), newASTCmd(flags))
	return root
}

// options merges the environment with the command line; flags win.
func (f *globalFlags) options(cmd *cobra.Command) compiler.Options {
	opts := compiler.OptionsFromEnv()
	if f.verbose {
		opts.Logger = compiler.VerboseLogger(cmd.ErrOrStderr())
	}
	return opts
}

// readProgram reads a program from a file, or from stdin when name is "-".
func readProgram(cmd *cobra.Command, name string) (*ast.Program, error) {
	var r io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	prog, err := ast.ReadProgram(r)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return prog, nil
}

// compile runs the pipeline and prints diagnostics to stderr.
func compile(cmd *cobra.Command, name string, opts compiler.Options) (*compiler.Result, error) {
	prog, err := readProgram(cmd, name)
	if err != nil {
		return nil, err
	}
	res, err := compiler.Compile(prog, opts)
	printDiagnostics(cmd, name, res.Diagnostics)
	if errors.Is(err, compiler.ErrDiagnostics) {
		return res, &exitError{code: 1}
	}
	return res, err
}

func printDiagnostics(cmd *cobra.Command, name string, l *diag.List) {
	if l == nil || l.Len() == 0 {
		return
	}
	p := diag.NewPrinter(cmd.ErrOrStderr())
	p.Name = name
	p.Color = useColor(cmd.ErrOrStderr())
	p.PrintAll(l)
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || env.Has("NO_COLOR") || strings.EqualFold(env.Str("TERM"), "dumb") {
		return false
	}
	return isTerminal(f)
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "impc: %v\n", err)
	os.Exit(2)
}
