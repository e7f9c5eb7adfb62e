package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/strager/impc/ast"
	"github.com/strager/impc/compiler"
	"github.com/strager/impc/opt"
)

func newBuildCmd(flags *globalFlags) *cobra.Command {
	var (
		output   string
		noOpt    bool
		heapBase uint32
	)
	cmd := &cobra.Command{
		Use:   "build [-o out.wat] FILE",
		Short: "Compile a program to a WebAssembly text module",
		Long: `Compile a program to a WebAssembly text module. FILE is an AST document,
or - for stdin. The module is written next to FILE with a .wat extension
unless -o is given; -o - writes it to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(cmd)
			if noOpt {
				opts.Optimize = false
			}
			if cmd.Flags().Changed("heap-base") {
				opts.HeapBase = heapBase
			}
			res, err := compile(cmd, args[0], opts)
			if err != nil {
				return err
			}

			if output == "" {
				output = "-"
				if args[0] != "-" {
					output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".wat"
				}
			}
			if output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), res.WAT)
				return err
			}
			if err := os.WriteFile(output, []byte(res.WAT), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s (%d bytes)\n", output, len(res.WAT))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: FILE with a .wat extension)")
	cmd.Flags().BoolVar(&noOpt, "no-opt", false, "skip constant folding and dead code elimination")
	cmd.Flags().Uint32Var(&heapBase, "heap-base", 0, "first address handed out by the allocator")
	return cmd
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Report the diagnostics of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(cmd, args[0])
			if err != nil {
				return err
			}
			opts := flags.options(cmd)
			opts.Optimize = false
			res, err := compiler.Compile(prog, opts)
			printDiagnostics(cmd, args[0], res.Diagnostics)
			if res.Diagnostics.HasErrors() {
				return &exitError{code: 1}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no errors found\n", args[0])
			return nil
		},
	}
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		noOpt    bool
		maxSteps int
		engine   string
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Compile a program and execute it",
		Long: `Compile a program and execute it under wasmtime, or under the built-in
interpreter with --engine watvm. impc exits with the program's exit code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(cmd)
			if noOpt {
				opts.Optimize = false
			}
			if cmd.Flags().Changed("max-steps") {
				opts.MaxSteps = maxSteps
			}
			if engine != "" {
				opts.Engine = engine
			}
			res, err := compile(cmd, args[0], opts)
			if err != nil {
				return err
			}
			code, err := compiler.Run(res, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noOpt, "no-opt", false, "skip constant folding and dead code elimination")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "instruction budget; 0 for the default, negative for none")
	cmd.Flags().StringVar(&engine, "engine", "", "wasmtime or watvm (default: wasmtime when built with cgo)")
	return cmd
}

func newASTCmd(flags *globalFlags) *cobra.Command {
	var optimize bool
	cmd := &cobra.Command{
		Use:   "ast FILE",
		Short: "Print the program tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(cmd, args[0])
			if err != nil {
				return err
			}
			if optimize {
				prog = opt.Optimize(prog)
				if l := flags.options(cmd).Logger; l != nil {
					l.Printf("ast: optimized %d top-level items", len(prog.Items))
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ast.ToSExpr(prog))
			return err
		},
	}
	cmd.Flags().BoolVar(&optimize, "opt", false, "fold constants and remove dead code first")
	return cmd
}
