package codegen

import "strconv"

// Scratch memory below the heap, used by the runtime library.
const (
	iovecAddr    = 0
	nwrittenAddr = 8
	charBufAddr  = 16
	digitBufAddr = 32

	// ScratchSize is the lowest legal heap base.
	ScratchSize = 64

	DefaultHeapBase = 1024
)

// Arena is the module's bump allocator. The heap pointer lives in a mutable
// global; nothing is ever freed.
type Arena struct {
	Base uint32

	// Sites counts the allocations emitted so far.
	Sites int
}

func NewArena(base uint32) *Arena {
	if base < ScratchSize {
		base = ScratchSize
	}
	return &Arena{Base: base}
}

func (a *Arena) Global() Global {
	return Global{Name: "heap_ptr", Type: I32, Init: "i32.const " + strconv.FormatUint(uint64(a.Base), 10), Comment: "next free byte"}
}

// AllocFunc returns $alloc: (size) -> address of size fresh bytes.
func (a *Arena) AllocFunc() *Function {
	f := NewFunction("alloc", I32, Local{Name: "size", Type: I32})
	f.Emit("global.get $heap_ptr")
	f.Emit("global.get $heap_ptr")
	f.Emit("local.get 0")
	f.Emit("i32.add")
	f.Emit("global.set $heap_ptr")
	return f
}

// Allocate emits code that leaves the address of size fresh bytes on the
// stack. It is the only way generated code obtains storage.
func (a *Arena) Allocate(f *Function, size int) {
	a.Sites++
	f.Emit("i32.const %d", size)
	f.Emit("call $alloc")
}

// Install adds the heap pointer and $alloc to m.
func (a *Arena) Install(m *Module) {
	m.AddGlobal(a.Global())
	m.AddFunc(a.AllocFunc())
}
