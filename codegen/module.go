// Package codegen lowers an analyzed program to a WebAssembly text module.
//
// Values are represented as i32 (integers, booleans and pointers to composite
// storage) or f64 (reals). Composite storage comes from a bump arena at the
// bottom of linear memory and is never freed.
package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Repr is the machine representation of a value.
type Repr string

const (
	I32  Repr = "i32"
	F64  Repr = "f64"
	None Repr = ""
)

// Import is a host function the module imports.
type Import struct {
	Module  string
	Name    string
	Func    string
	Params  []Repr
	Results []Repr
}

// Global is a mutable module global. Init is the constant initializer
// instruction, like "i32.const 1024".
type Global struct {
	Name    string
	Type    Repr
	Init    string
	Comment string
}

type Local struct {
	Name string
	Type Repr
}

// Function collects the instructions of one function. Params and Locals
// share the index space: parameters come first.
type Function struct {
	Name   string
	Export string
	Params []Local
	Result Repr
	Locals []Local
	Body   []string
	depth  int
}

func NewFunction(name string, result Repr, params ...Local) *Function {
	return &Function{Name: name, Result: result, Params: params, depth: 1}
}

// Emit appends one instruction. Structured instructions indent the
// instructions they enclose.
func (f *Function) Emit(format string, args ...any) {
	instr := format
	if len(args) > 0 {
		instr = fmt.Sprintf(format, args...)
	}
	op, _, _ := strings.Cut(instr, " ")
	switch op {
	case "end":
		f.depth--
	case "else":
		f.depth--
		defer func() { f.depth++ }()
	}
	f.Body = append(f.Body, strings.Repeat("  ", f.depth)+instr)
	switch op {
	case "block", "loop", "if":
		f.depth++
	}
}

// Comment appends a line comment.
func (f *Function) Comment(format string, args ...any) {
	f.Body = append(f.Body, strings.Repeat("  ", f.depth)+";; "+fmt.Sprintf(format, args...))
}

// AddLocal appends a local after the parameters and returns its index.
func (f *Function) AddLocal(name string, typ Repr) int {
	f.Locals = append(f.Locals, Local{Name: name, Type: typ})
	return len(f.Params) + len(f.Locals) - 1
}

func (f *Function) write(b *strings.Builder) {
	fmt.Fprintf(b, "  (func $%s", f.Name)
	if f.Export != "" {
		fmt.Fprintf(b, " (export %q)", f.Export)
	}
	for _, p := range f.Params {
		fmt.Fprintf(b, " (param %s)", p.Type)
	}
	if f.Result != None {
		fmt.Fprintf(b, " (result %s)", f.Result)
	}
	b.WriteString("\n")
	for i, p := range f.Params {
		if p.Name != "" {
			fmt.Fprintf(b, "    ;; param %d: %s\n", i, p.Name)
		}
	}
	for i, l := range f.Locals {
		fmt.Fprintf(b, "    (local %s) ;; %d: %s\n", l.Type, len(f.Params)+i, l.Name)
	}
	for _, instr := range f.Body {
		b.WriteString("  ")
		b.WriteString(instr)
		b.WriteString("\n")
	}
	b.WriteString("  )\n")
}

// Module is a WebAssembly text module under construction.
type Module struct {
	Imports      []Import
	MemoryPages  int
	MemoryExport string
	Globals      []Global
	Funcs        []*Function
}

func NewModule() *Module {
	return &Module{MemoryPages: 1, MemoryExport: "memory"}
}

func (m *Module) AddImport(imp Import) { m.Imports = append(m.Imports, imp) }
func (m *Module) AddGlobal(g Global)   { m.Globals = append(m.Globals, g) }
func (m *Module) AddFunc(f *Function)  { m.Funcs = append(m.Funcs, f) }

// Func returns the function with the given name, without the leading $.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (m *Module) String() string {
	var b strings.Builder
	b.WriteString("(module\n")
	for _, imp := range m.Imports {
		fmt.Fprintf(&b, "  (import %q %q (func $%s", imp.Module, imp.Name, imp.Func)
		for _, p := range imp.Params {
			fmt.Fprintf(&b, " (param %s)", p)
		}
		for _, r := range imp.Results {
			fmt.Fprintf(&b, " (result %s)", r)
		}
		b.WriteString("))\n")
	}
	if m.MemoryExport != "" {
		fmt.Fprintf(&b, "  (memory (export %q) %d)\n", m.MemoryExport, m.MemoryPages)
	} else {
		fmt.Fprintf(&b, "  (memory %d)\n", m.MemoryPages)
	}
	for _, g := range m.Globals {
		fmt.Fprintf(&b, "  (global $%s (mut %s) (%s))", g.Name, g.Type, g.Init)
		if g.Comment != "" {
			fmt.Fprintf(&b, " ;; %s", g.Comment)
		}
		b.WriteString("\n")
	}
	for _, f := range m.Funcs {
		f.write(&b)
	}
	b.WriteString(")\n")
	return b.String()
}

func zero(r Repr) string {
	if r == F64 {
		return "f64.const 0"
	}
	return "i32.const 0"
}

func itoa(v int) string { return strconv.Itoa(v) }

// FormatF64 spells v as a WebAssembly text float literal.
func FormatF64(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
