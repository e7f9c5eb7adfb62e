package codegen

import (
	"bytes"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/pkg/errors"
	"github.com/strager/impc/ast"
	"github.com/strager/impc/internal/wasmhost"
	"github.com/strager/impc/internal/watvm"
	"github.com/strager/impc/opt"
	"github.com/strager/impc/sema"
	"github.com/strager/impc/types"
)

func generate(t *testing.T, src string) *Module {
	t.Helper()
	prog, err := ast.ParseSExpr(src)
	be.Err(t, err, nil)
	res := sema.Analyze(prog)
	if res.Diagnostics.HasErrors() {
		t.Fatalf("analysis failed: %v", res.Diagnostics.Err())
	}
	m, err := Generate(prog, res.Env, Config{})
	be.Err(t, err, nil)
	return m
}

func run(t *testing.T, src string) string {
	t.Helper()
	m := generate(t, src)
	if wasmhost.Available {
		if err := wasmhost.Validate(m.String()); err != nil {
			t.Fatalf("invalid module: %v\n%s", err, m)
		}
	}
	var out bytes.Buffer
	code, err := watvm.Run(m.String(), &out)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, m)
	}
	be.Equal(t, code, 0)
	return out.String()
}

func hasSeq(hay []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(hay); i++ {
		if slices.Equal(hay[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"print separates values",
			`(program (print (integer 1) (real 2.5) (boolean true)))`,
			"1 2 1\n",
		},
		{
			"signed arithmetic",
			`(program
			  (var "x" integer (integer -7))
			  (print (binary "/" (ident "x") (integer 2)) (binary "%" (ident "x") (integer 3)) (unary "-" (ident "x"))))`,
			"-3 -1 7\n",
		},
		{
			"smallest integer",
			`(program (print (integer -2147483648) (integer 0)))`,
			"-2147483648 0\n",
		},
		{
			"mixed arithmetic widens",
			`(program
			  (var "r" real (binary "/" (integer 7) (real 2.0)))
			  (print (ident "r") (binary "*" (ident "r") (integer 2)) (binary "<" (integer 1) (real 1.5))))`,
			"3 7 1\n",
		},
		{
			"logical operators",
			`(program (print
			  (binary "and" (boolean true) (boolean false))
			  (binary "xor" (boolean true) (boolean false))
			  (binary "or" (boolean false) (boolean true))
			  (unary "not" (integer 0))))`,
			"0 1 1 1\n",
		},
		{
			"coercion on declaration",
			`(program
			  (var "b" boolean (real 2.7))
			  (var "i" integer (real 2.7))
			  (var "z" boolean (real 0.5))
			  (var "w" real (integer 3))
			  (print (ident "b") (ident "i") (ident "z") (binary "/" (ident "w") (integer 2))))`,
			"1 2 0 1\n",
		},
		{
			"if else",
			`(program
			  (if (binary ">" (integer 2) (integer 1))
			    (then (print (integer 1)))
			    (else (print (integer 0))))
			  (if (boolean false) (then (print (integer 2)))))`,
			"1\n",
		},
		{
			"while",
			`(program
			  (var "i" integer (integer 1))
			  (var "s" integer (integer 0))
			  (while (binary "<=" (ident "i") (integer 10))
			    (body
			      (assign (ident "s") (binary "+" (ident "s") (ident "i")))
			      (assign (ident "i") (binary "+" (ident "i") (integer 1)))))
			  (print (ident "s")))`,
			"55\n",
		},
		{
			"range",
			`(program (for "i" (range (integer 1) (integer 3)) (body (print (ident "i")))))`,
			"1\n2\n3\n",
		},
		{
			"descending range is empty",
			`(program (for "i" (range (integer 3) (integer 1)) (body (print (ident "i")))))`,
			"",
		},
		{
			"descending range with computed bound is empty",
			`(program
			  (var "n" integer (integer 0))
			  (for "i" (range (integer 2) (ident "n")) (body (print (ident "i"))))
			  (print (ident "n")))`,
			"0\n",
		},
		{
			"single value range",
			`(program (for "i" (range (integer 5) (integer 5)) (body (print (ident "i")))))`,
			"5\n",
		},
		{
			"reverse range written low to high",
			`(program (for "i" (range (integer 1) (integer 3)) reverse (body (print (ident "i")))))`,
			"3\n2\n1\n",
		},
		{
			"reverse range",
			`(program (for "j" (range (integer 10) (integer 1)) reverse (body (print (ident "j")))))`,
			"10\n9\n8\n7\n6\n5\n4\n3\n2\n1\n",
		},
		{
			"reverse range with computed bound",
			`(program
			  (var "n" integer (integer 3))
			  (for "i" (range (ident "n") (integer 1)) reverse (body (print (ident "i")))))`,
			"3\n2\n1\n",
		},
		{
			"loop runs once per value",
			`(program
			  (var "c" integer (integer 0))
			  (for "i" (range (integer 1) (integer 4)) (body (assign (ident "c") (binary "+" (ident "c") (integer 1)))))
			  (print (ident "c")))`,
			"4\n",
		},
		{
			"recursion",
			`(program
			  (routine "fact" (params (param "n" integer)) integer
			    (body
			      (if (binary "<=" (ident "n") (integer 1)) (then (return (integer 1))))
			      (return (binary "*" (ident "n") (call "fact" (binary "-" (ident "n") (integer 1)))))))
			  (print (call "fact" (integer 5))))`,
			"120\n",
		},
		{
			"falling off a routine returns zero",
			`(program
			  (routine "f" (params) integer
			    (body (if (boolean false) (then (return (integer 5))))))
			  (routine "g" (params) real (body))
			  (print (call "f") (call "g")))`,
			"0 0\n",
		},
		{
			"routines see globals",
			`(program
			  (var "counter" integer (integer 0))
			  (routine "bump" (params)
			    (body (assign (ident "counter") (binary "+" (ident "counter") (integer 1)))))
			  (call "bump")
			  (call "bump")
			  (print (ident "counter")))`,
			"2\n",
		},
		{
			"real parameters",
			`(program
			  (routine "avg" (params (param "a" real) (param "b" real)) real
			    (body (return (binary "/" (binary "+" (ident "a") (ident "b")) (integer 2)))))
			  (print (call "avg" (integer 5) (real 7.5))))`,
			"6\n",
		},
		{
			"arrays",
			`(program
			  (var "a" (array 5 integer))
			  (for "i" (range (integer 1) (integer 5))
			    (body (assign (index (ident "a") (ident "i")) (binary "*" (ident "i") (ident "i")))))
			  (for "x" (in (ident "a")) (body (print (ident "x"))))
			  (print (field (ident "a") "size")))`,
			"1\n4\n9\n16\n25\n5\n",
		},
		{
			"reverse array for",
			`(program
			  (var "a" (array 3 integer))
			  (assign (index (ident "a") (integer 1)) (integer 7))
			  (assign (index (ident "a") (integer 3)) (integer 9))
			  (for "x" (in (ident "a")) reverse (body (print (ident "x")))))`,
			"9\n0\n7\n",
		},
		{
			"two-dimensional arrays",
			`(program
			  (var "m" (array 3 (array 4 integer)))
			  (for "i" (range (integer 1) (integer 3))
			    (body (for "j" (range (integer 1) (integer 4))
			      (body (assign (index (index (ident "m") (ident "i")) (ident "j"))
			        (binary "+" (binary "*" (ident "i") (integer 10)) (ident "j")))))))
			  (print
			    (index (index (ident "m") (integer 2)) (integer 3))
			    (index (index (ident "m") (integer 3)) (integer 4))
			    (index (index (ident "m") (integer 1)) (integer 4))
			    (index (index (ident "m") (integer 2)) (integer 1))))`,
			"23 34 14 21\n",
		},
		{
			"records",
			`(program
			  (type "Point" (record (field "x" integer) (field "y" real)))
			  (var "p" (named "Point"))
			  (assign (field (ident "p") "x") (integer 3))
			  (assign (field (ident "p") "y") (real 2.5))
			  (print (field (ident "p") "x") (binary "*" (field (ident "p") "y") (integer 2))))`,
			"3 5\n",
		},
		{
			"nested records and array fields",
			`(program
			  (type "Inner" (record (field "a" integer) (field "b" integer)))
			  (type "Outer" (record (field "tag" integer) (field "in" (named "Inner")) (field "xs" (array 3 integer))))
			  (var "o" (named "Outer"))
			  (assign (field (field (ident "o") "in") "b") (integer 7))
			  (assign (index (field (ident "o") "xs") (integer 2)) (integer 9))
			  (assign (field (ident "o") "tag") (integer 1))
			  (print
			    (field (ident "o") "tag")
			    (field (field (ident "o") "in") "a")
			    (field (field (ident "o") "in") "b")
			    (index (field (ident "o") "xs") (integer 2))))`,
			"1 0 7 9\n",
		},
		{
			"arrays of records copy inline",
			`(program
			  (type "Point" (record (field "x" integer) (field "y" real)))
			  (var "ps" (array 2 (named "Point")))
			  (var "p" (named "Point"))
			  (assign (field (index (ident "ps") (integer 2)) "x") (integer 5))
			  (assign (field (ident "p") "x") (integer 8))
			  (assign (index (ident "ps") (integer 1)) (ident "p"))
			  (assign (field (ident "p") "x") (integer 1))
			  (print (field (index (ident "ps") (integer 1)) "x") (field (index (ident "ps") (integer 2)) "x")))`,
			"8 5\n",
		},
		{
			"array variables share storage",
			`(program
			  (var "a" (array 2 integer))
			  (var "b" (array 2 integer))
			  (assign (ident "b") (ident "a"))
			  (assign (index (ident "a") (integer 1)) (integer 4))
			  (print (index (ident "b") (integer 1))))`,
			"4\n",
		},
		{
			"unsized array parameter",
			`(program
			  (var "xs" (array 3 integer))
			  (assign (index (ident "xs") (integer 1)) (integer 4))
			  (assign (index (ident "xs") (integer 2)) (integer 5))
			  (assign (index (ident "xs") (integer 3)) (integer 6))
			  (routine "sum" (params (param "v" (array integer)) (param "n" integer)) integer
			    (body
			      (var "s" integer (integer 0))
			      (for "i" (range (integer 1) (ident "n"))
			        (body (assign (ident "s") (binary "+" (ident "s") (index (ident "v") (ident "i"))))))
			      (return (ident "s"))))
			  (print (call "sum" (ident "xs") (integer 3))))`,
			"15\n",
		},
		{
			"routine called before the global it fills",
			`(program
			  (call "fill")
			  (var "a" (array 3 integer))
			  (routine "fill" (params) (body (assign (index (ident "a") (integer 2)) (integer 7))))
			  (print (index (ident "a") (integer 2))))`,
			"7\n",
		},
		{
			"local shadows global",
			`(program
			  (var "x" integer (integer 1))
			  (routine "f" (params) integer
			    (body (var "x" integer (binary "+" (ident "x") (integer 10))) (return (ident "x"))))
			  (print (call "f") (ident "x")))`,
			"11 1\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			be.Equal(t, run(t, test.src), test.want)
		})
	}
}

func TestCoercionLowering(t *testing.T) {
	m := generate(t, `(program (var "b" boolean (real 2.7)))`)
	start := body(m.Func("_start"))
	be.True(t, hasSeq(start, "f64.const 2.7", "i32.trunc_f64_s", "i32.const 0", "i32.ne", "global.set $g_b"))
}

func TestReverseRangeLowering(t *testing.T) {
	m := generate(t, `(program (for "j" (range (integer 10) (integer 1)) reverse (body (print (ident "j")))))`)
	start := body(m.Func("_start"))
	be.True(t, hasSeq(start,
		"i32.const 10", "local.set 0",
		"block $exit1", "loop $loop2",
		"local.get 0", "i32.const 1", "i32.lt_s", "br_if $exit1"))
}

func TestForwardRangeLowering(t *testing.T) {
	m := generate(t, `(program (for "i" (range (integer 3) (integer 1)) (body (print (ident "i")))))`)
	start := body(m.Func("_start"))
	be.True(t, hasSeq(start,
		"i32.const 3", "local.set 0",
		"block $exit1", "loop $loop2",
		"local.get 0", "i32.const 1", "i32.gt_s", "br_if $exit1"))
	be.True(t, !slices.Contains(start, "select"))
}

func TestCompositeGlobalsAllocatedFirst(t *testing.T) {
	m := generate(t, `(program
	  (call "fill")
	  (var "a" (array 3 integer))
	  (var "n" integer (integer 2))
	  (routine "fill" (params) (body (assign (index (ident "a") (ident "n")) (integer 7)))))`)
	start := body(m.Func("_start"))
	be.True(t, hasSeq(start, "i32.const 12", "call $alloc", "global.set $g_a", "call $fn_fill"))
	be.True(t, hasSeq(start, "call $fn_fill", "i32.const 2", "global.set $g_n"))
}

func TestInfiniteRealLiteral(t *testing.T) {
	prog, err := ast.ParseSExpr(`(program (var "r" real (binary "*" (real 1e308) (real 10))) (print (binary ">" (ident "r") (real 0))))`)
	be.Err(t, err, nil)
	res := sema.Analyze(prog)
	be.True(t, !res.Diagnostics.HasErrors())
	m, err := Generate(opt.FoldConstants(prog), res.Env, Config{})
	be.Err(t, err, nil)
	be.True(t, hasSeq(body(m.Func("_start")), "f64.const inf", "global.set $g_r"))
	if wasmhost.Available {
		be.Err(t, wasmhost.Validate(m.String()), nil)
	}
	var out bytes.Buffer
	_, err = watvm.Run(m.String(), &out)
	be.Err(t, err, nil)
	be.Equal(t, out.String(), "1\n")
}

func TestFormatF64(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2.5, "2.5"},
		{3, "3"},
		{-0.125, "-0.125"},
		{1e308, "1e+308"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, test := range tests {
		be.Equal(t, FormatF64(test.in), test.want)
	}
}

func TestStartExitsWithZero(t *testing.T) {
	m := generate(t, `(program (var "x" integer (integer 4)))`)
	start := m.Func("_start")
	be.Equal(t, start.Export, "_start")
	instrs := body(start)
	be.Equal(t, instrs[len(instrs)-2:], []string{"i32.const 0", "call $proc_exit"})
}

func TestModuleImportsWASI(t *testing.T) {
	wat := generate(t, `(program (print (integer 1)))`).String()
	be.True(t, strings.Contains(wat, `(import "wasi_snapshot_preview1" "fd_write" (func $fd_write`))
	be.True(t, strings.Contains(wat, `(import "wasi_snapshot_preview1" "proc_exit" (func $proc_exit`))
	be.True(t, strings.Contains(wat, `(memory (export "memory") 1)`))
}

func TestLocalsAreDeclaredUpFront(t *testing.T) {
	m := generate(t, `(program
	  (routine "f" (params (param "a" integer))
	    (body
	      (var "x" integer)
	      (block (var "y" real))
	      (block (var "z" boolean)))))`)
	f := m.Func("fn_f")
	be.Equal(t, f.Params, []Local{{Name: "a", Type: I32}})
	be.Equal(t, f.Locals, []Local{{Name: "x", Type: I32}, {Name: "y", Type: F64}, {Name: "z", Type: I32}})
	be.Equal(t, f.Result, None)
}

func TestHeapBase(t *testing.T) {
	prog, err := ast.ParseSExpr(`(program (var "a" (array 2 integer)))`)
	be.Err(t, err, nil)
	res := sema.Analyze(prog)
	g := NewGenerator(res.Env, Config{HeapBase: 4096})
	m, err := g.Generate(prog)
	be.Err(t, err, nil)
	be.Equal(t, m.Globals[0].Name, "heap_ptr")
	be.Equal(t, m.Globals[0].Init, "i32.const 4096")
	be.Equal(t, g.Arena().Sites, 1)
}

func TestInternalErrorIsReturned(t *testing.T) {
	prog, err := ast.ParseSExpr(`(program (var "p" (named "Ghost")))`)
	be.Err(t, err, nil)
	m, err := Generate(prog, types.NewEnv(), Config{})
	be.True(t, m == nil)
	be.Err(t, err, "unknown type 'Ghost'")
	_, ok := errors.Cause(err).(*InternalError)
	be.True(t, ok)
}
