package codegen

// The runtime library is emitted once per module, independent of the
// program. Output goes through WASI fd_write on stdout, one iovec at a time,
// using the scratch area below the heap.

const wasi = "wasi_snapshot_preview1"

func installImports(m *Module) {
	m.AddImport(Import{Module: wasi, Name: "fd_write", Func: "fd_write", Params: []Repr{I32, I32, I32, I32}, Results: []Repr{I32}})
	m.AddImport(Import{Module: wasi, Name: "proc_exit", Func: "proc_exit", Params: []Repr{I32}})
}

// runtimeFuncs returns the print helpers.
func runtimeFuncs() []*Function {
	return []*Function{
		writeBytesFunc(),
		printCharFunc(),
		printIntFunc(),
		printBoolFunc(),
		printRealFunc(),
		copyFunc(),
	}
}

// $write_bytes (ptr, len) writes len bytes at ptr to stdout.
func writeBytesFunc() *Function {
	f := NewFunction("write_bytes", None, Local{Name: "ptr", Type: I32}, Local{Name: "len", Type: I32})
	f.Emit("i32.const %d", iovecAddr)
	f.Emit("local.get 0")
	f.Emit("i32.store")
	f.Emit("i32.const %d", iovecAddr+4)
	f.Emit("local.get 1")
	f.Emit("i32.store")
	f.Emit("i32.const 1 ;; stdout")
	f.Emit("i32.const %d", iovecAddr)
	f.Emit("i32.const 1")
	f.Emit("i32.const %d", nwrittenAddr)
	f.Emit("call $fd_write")
	f.Emit("drop")
	return f
}

func printCharFunc() *Function {
	f := NewFunction("print_char", None, Local{Name: "c", Type: I32})
	f.Emit("i32.const %d", charBufAddr)
	f.Emit("local.get 0")
	f.Emit("i32.store8")
	f.Emit("i32.const %d", charBufAddr)
	f.Emit("i32.const 1")
	f.Emit("call $write_bytes")
	return f
}

// $print_int writes a signed decimal. The magnitude is handled as unsigned
// so the most negative integer prints correctly.
func printIntFunc() *Function {
	f := NewFunction("print_int", None, Local{Name: "v", Type: I32})
	mag := f.AddLocal("magnitude", I32)
	end := f.AddLocal("end", I32)
	lo := f.AddLocal("lo", I32)
	hi := f.AddLocal("hi", I32)
	tmp := f.AddLocal("tmp", I32)

	f.Emit("local.get 0")
	f.Emit("i32.const 0")
	f.Emit("i32.lt_s")
	f.Emit("if")
	f.Emit("i32.const 45 ;; '-'")
	f.Emit("call $print_char")
	f.Emit("i32.const 0")
	f.Emit("local.get 0")
	f.Emit("i32.sub")
	f.Emit("local.set %d", mag)
	f.Emit("else")
	f.Emit("local.get 0")
	f.Emit("local.set %d", mag)
	f.Emit("end")

	f.Comment("digits, least significant first")
	f.Emit("i32.const %d", digitBufAddr)
	f.Emit("local.set %d", end)
	f.Emit("block $done")
	f.Emit("loop $digit")
	f.Emit("local.get %d", end)
	f.Emit("local.get %d", mag)
	f.Emit("i32.const 10")
	f.Emit("i32.rem_u")
	f.Emit("i32.const 48")
	f.Emit("i32.add")
	f.Emit("i32.store8")
	f.Emit("local.get %d", end)
	f.Emit("i32.const 1")
	f.Emit("i32.add")
	f.Emit("local.set %d", end)
	f.Emit("local.get %d", mag)
	f.Emit("i32.const 10")
	f.Emit("i32.div_u")
	f.Emit("local.tee %d", mag)
	f.Emit("i32.eqz")
	f.Emit("br_if $done")
	f.Emit("br $digit")
	f.Emit("end")
	f.Emit("end")

	f.Comment("reverse in place")
	f.Emit("i32.const %d", digitBufAddr)
	f.Emit("local.set %d", lo)
	f.Emit("local.get %d", end)
	f.Emit("i32.const 1")
	f.Emit("i32.sub")
	f.Emit("local.set %d", hi)
	f.Emit("block $reversed")
	f.Emit("loop $swap")
	f.Emit("local.get %d", lo)
	f.Emit("local.get %d", hi)
	f.Emit("i32.ge_u")
	f.Emit("br_if $reversed")
	f.Emit("local.get %d", lo)
	f.Emit("i32.load8_u")
	f.Emit("local.set %d", tmp)
	f.Emit("local.get %d", lo)
	f.Emit("local.get %d", hi)
	f.Emit("i32.load8_u")
	f.Emit("i32.store8")
	f.Emit("local.get %d", hi)
	f.Emit("local.get %d", tmp)
	f.Emit("i32.store8")
	f.Emit("local.get %d", lo)
	f.Emit("i32.const 1")
	f.Emit("i32.add")
	f.Emit("local.set %d", lo)
	f.Emit("local.get %d", hi)
	f.Emit("i32.const 1")
	f.Emit("i32.sub")
	f.Emit("local.set %d", hi)
	f.Emit("br $swap")
	f.Emit("end")
	f.Emit("end")

	f.Emit("i32.const %d", digitBufAddr)
	f.Emit("local.get %d", end)
	f.Emit("i32.const %d", digitBufAddr)
	f.Emit("i32.sub")
	f.Emit("call $write_bytes")
	return f
}

// $print_bool writes 1 or 0.
func printBoolFunc() *Function {
	f := NewFunction("print_bool", None, Local{Name: "b", Type: I32})
	f.Emit("local.get 0")
	f.Emit("i32.const 0")
	f.Emit("i32.ne")
	f.Emit("i32.const 48")
	f.Emit("i32.add")
	f.Emit("call $print_char")
	return f
}

// $print_real writes the integer part only.
func printRealFunc() *Function {
	f := NewFunction("print_real", None, Local{Name: "r", Type: F64})
	f.Emit("local.get 0")
	f.Emit("i32.trunc_f64_s")
	f.Emit("call $print_int")
	return f
}

// $copy (dst, src, len) copies len bytes, used when a composite value is
// assigned into storage that holds it inline.
func copyFunc() *Function {
	f := NewFunction("copy", None, Local{Name: "dst", Type: I32}, Local{Name: "src", Type: I32}, Local{Name: "len", Type: I32})
	i := f.AddLocal("i", I32)
	f.Emit("i32.const 0")
	f.Emit("local.set %d", i)
	f.Emit("block $copied")
	f.Emit("loop $byte")
	f.Emit("local.get %d", i)
	f.Emit("local.get 2")
	f.Emit("i32.ge_u")
	f.Emit("br_if $copied")
	f.Emit("local.get 0")
	f.Emit("local.get %d", i)
	f.Emit("i32.add")
	f.Emit("local.get 1")
	f.Emit("local.get %d", i)
	f.Emit("i32.add")
	f.Emit("i32.load8_u")
	f.Emit("i32.store8")
	f.Emit("local.get %d", i)
	f.Emit("i32.const 1")
	f.Emit("i32.add")
	f.Emit("local.set %d", i)
	f.Emit("br $byte")
	f.Emit("end")
	f.Emit("end")
	return f
}
