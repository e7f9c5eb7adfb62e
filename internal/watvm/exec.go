package watvm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
)

const (
	pageSize = 65536

	DefaultMaxSteps = 50_000_000
	maxCallDepth    = 10_000
)

// ErrStepLimit is returned when a program runs longer than its budget.
var ErrStepLimit = errors.New("watvm: step limit exceeded")

// Trap is a runtime fault of the program being run.
type Trap struct {
	Func string
	Msg  string
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap in %s: %s", t.Func, t.Msg)
}

type exit struct{ code int }

func (e *exit) Error() string { return fmt.Sprintf("exit %d", e.code) }

type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// MaxSteps bounds the number of instructions executed. Zero means
	// DefaultMaxSteps; negative means no limit.
	MaxSteps int
}

// Machine is one instance of a module: its memory, globals and counters.
type Machine struct {
	mod     *Module
	mem     []byte
	globals map[string]uint64
	stdout  io.Writer
	stderr  io.Writer
	steps   int
	max     int
	depth   int
}

func New(mod *Module, opts Options) *Machine {
	m := &Machine{
		mod:     mod,
		mem:     make([]byte, mod.memPages*pageSize),
		globals: make(map[string]uint64, len(mod.globals)),
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		max:     opts.MaxSteps,
	}
	if m.stdout == nil {
		m.stdout = io.Discard
	}
	if m.stderr == nil {
		m.stderr = io.Discard
	}
	if m.max == 0 {
		m.max = DefaultMaxSteps
	}
	for name, g := range mod.globals {
		m.globals[name] = g.value
	}
	return m
}

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int { return m.steps }

// Memory returns the machine's linear memory.
func (m *Machine) Memory() []byte { return m.mem }

// Start runs the exported _start function and returns the exit code the
// program passed to proc_exit, or 0 if it returned normally.
func (m *Machine) Start() (int, error) {
	name, ok := m.mod.exports["_start"]
	if !ok {
		return 0, errors.New("watvm: no _start export")
	}
	fn, ok := m.mod.funcs[name]
	if !ok {
		return 0, errors.Errorf("watvm: _start refers to unknown %s", name)
	}
	_, err := m.call(fn, nil)
	var e *exit
	if errors.As(err, &e) {
		return e.code, nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}

// Run parses src and runs it with the default step budget.
func Run(src string, stdout io.Writer) (int, error) {
	return RunWith(src, Options{Stdout: stdout})
}

func RunWith(src string, opts Options) (int, error) {
	mod, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return New(mod, opts).Start()
}

func i32bits(v int32) uint64   { return uint64(uint32(v)) }
func f64bits(v float64) uint64 { return math.Float64bits(v) }
func asI32(v uint64) int32     { return int32(uint32(v)) }
func asU32(v uint64) uint32    { return uint32(v) }
func asF64(v uint64) float64   { return math.Float64frombits(v) }

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

type frame struct {
	loop   bool
	name   string
	start  int
	end    int
	height int
}

func (m *Machine) call(fn *function, args []uint64) (uint64, error) {
	if fn.host != nil {
		return fn.host(m, args)
	}
	m.depth++
	defer func() { m.depth-- }()
	if m.depth > maxCallDepth {
		return 0, &Trap{Func: fn.name, Msg: "call stack exhausted"}
	}

	locals := make([]uint64, len(fn.params)+len(fn.locals))
	copy(locals, args)
	var stack []uint64
	var ctrl []frame
	trap := func(format string, args ...any) error {
		return &Trap{Func: fn.name, Msg: fmt.Sprintf(format, args...)}
	}
	pop := func() uint64 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v uint64) { stack = append(stack, v) }

	body := fn.body
	for pc := 0; pc < len(body); pc++ {
		m.steps++
		if m.max > 0 && m.steps > m.max {
			return 0, ErrStepLimit
		}
		in := &body[pc]
		if need := arity[in.op]; len(stack) < need {
			return 0, trap("%s needs %d operand(s), stack has %d", in.op, need, len(stack))
		}
		switch in.op {
		case "nop":
		case "unreachable":
			return 0, trap("unreachable executed")

		case "block", "loop":
			ctrl = append(ctrl, frame{loop: in.op == "loop", name: in.name, start: pc, end: in.end, height: len(stack)})
		case "if":
			cond := pop()
			ctrl = append(ctrl, frame{name: in.name, start: pc, end: in.end, height: len(stack)})
			if asU32(cond) == 0 {
				if in.elseAt >= 0 {
					pc = in.elseAt
				} else {
					pc = in.end - 1
				}
			}
		case "else":
			pc = in.end - 1
		case "end":
			ctrl = ctrl[:len(ctrl)-1]
		case "br", "br_if":
			if in.op == "br_if" && asU32(pop()) == 0 {
				break
			}
			k := len(ctrl) - 1 - int(in.num)
			if in.name != "" {
				for k = len(ctrl) - 1; k >= 0 && ctrl[k].name != in.name; k-- {
				}
			}
			if k < 0 || k >= len(ctrl) {
				return 0, trap("branch to unknown label %s", in.name)
			}
			target := ctrl[k]
			stack = stack[:target.height]
			if target.loop {
				ctrl = ctrl[:k+1]
				pc = target.start
			} else {
				ctrl = ctrl[:k]
				pc = target.end
			}
		case "return":
			if len(fn.results) > 0 {
				if len(stack) == 0 {
					return 0, trap("return without a value")
				}
				return pop(), nil
			}
			return 0, nil
		case "call":
			callee, ok := m.mod.funcs[in.name]
			if !ok {
				return 0, trap("call to unknown function %s", in.name)
			}
			n := len(callee.params)
			if len(stack) < n {
				return 0, trap("call %s needs %d argument(s)", in.name, n)
			}
			args := append([]uint64(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			result, err := m.call(callee, args)
			if err != nil {
				return 0, err
			}
			if len(callee.results) > 0 {
				push(result)
			}
		case "drop":
			pop()
		case "select":
			c := pop()
			b := pop()
			a := pop()
			if asU32(c) != 0 {
				push(a)
			} else {
				push(b)
			}

		case "local.get":
			push(locals[in.num])
		case "local.set":
			locals[in.num] = pop()
		case "local.tee":
			locals[in.num] = stack[len(stack)-1]
		case "global.get":
			v, ok := m.globals[in.name]
			if !ok {
				return 0, trap("unknown global %s", in.name)
			}
			push(v)
		case "global.set":
			if _, ok := m.globals[in.name]; !ok {
				return 0, trap("unknown global %s", in.name)
			}
			m.globals[in.name] = pop()

		case "i32.const":
			push(i32bits(int32(in.num)))
		case "f64.const":
			push(f64bits(in.real))

		case "i32.load", "i32.load8_u", "f64.load":
			addr := asU32(pop())
			size := loadSize[in.op]
			if uint64(addr)+uint64(size) > uint64(len(m.mem)) {
				return 0, trap("out of bounds load of %d byte(s) at %d", size, addr)
			}
			b := m.mem[addr : addr+size]
			switch in.op {
			case "i32.load":
				push(uint64(binary.LittleEndian.Uint32(b)))
			case "i32.load8_u":
				push(uint64(b[0]))
			default:
				push(binary.LittleEndian.Uint64(b))
			}
		case "i32.store", "i32.store8", "f64.store":
			v := pop()
			addr := asU32(pop())
			size := loadSize[in.op]
			if uint64(addr)+uint64(size) > uint64(len(m.mem)) {
				return 0, trap("out of bounds store of %d byte(s) at %d", size, addr)
			}
			b := m.mem[addr : addr+size]
			switch in.op {
			case "i32.store":
				binary.LittleEndian.PutUint32(b, uint32(v))
			case "i32.store8":
				b[0] = byte(v)
			default:
				binary.LittleEndian.PutUint64(b, v)
			}

		case "i32.eqz":
			push(boolBits(asU32(pop()) == 0))
		case "f64.neg":
			push(f64bits(-asF64(pop())))
		case "f64.convert_i32_s":
			push(f64bits(float64(asI32(pop()))))
		case "i32.trunc_f64_s":
			v := math.Trunc(asF64(pop()))
			if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
				return 0, trap("integer overflow converting %v", v)
			}
			push(i32bits(int32(v)))

		default:
			b := pop()
			a := pop()
			v, err := binop(in.op, a, b)
			if err != nil {
				return 0, trap("%s", err)
			}
			push(v)
		}
	}
	if len(fn.results) > 0 {
		if len(stack) == 0 {
			return 0, trap("missing result")
		}
		return stack[len(stack)-1], nil
	}
	return 0, nil
}

var loadSize = map[string]uint32{
	"i32.load": 4, "i32.load8_u": 1, "f64.load": 8,
	"i32.store": 4, "i32.store8": 1, "f64.store": 8,
}

// arity is the number of operands an instruction pops; binary operators are
// the default.
var arity = map[string]int{
	"nop": 0, "unreachable": 0, "block": 0, "loop": 0, "if": 1, "else": 0, "end": 0,
	"br": 0, "br_if": 1, "return": 0, "call": 0, "drop": 1, "select": 3,
	"local.get": 0, "local.set": 1, "local.tee": 1, "global.get": 0, "global.set": 1,
	"i32.const": 0, "f64.const": 0,
	"i32.load": 1, "i32.load8_u": 1, "f64.load": 1,
	"i32.store": 2, "i32.store8": 2, "f64.store": 2,
	"i32.eqz": 1, "f64.neg": 1, "f64.convert_i32_s": 1, "i32.trunc_f64_s": 1,
}

func init() {
	for op := range plainOps {
		if _, ok := arity[op]; !ok {
			arity[op] = 2
		}
	}
}

func binop(op string, a, b uint64) (uint64, error) {
	x, y := asI32(a), asI32(b)
	ux, uy := asU32(a), asU32(b)
	fx, fy := asF64(a), asF64(b)
	switch op {
	case "i32.add":
		return i32bits(x + y), nil
	case "i32.sub":
		return i32bits(x - y), nil
	case "i32.mul":
		return i32bits(x * y), nil
	case "i32.div_s":
		if y == 0 {
			return 0, errors.New("integer divide by zero")
		}
		if x == math.MinInt32 && y == -1 {
			return 0, errors.New("integer overflow")
		}
		return i32bits(x / y), nil
	case "i32.div_u":
		if uy == 0 {
			return 0, errors.New("integer divide by zero")
		}
		return uint64(ux / uy), nil
	case "i32.rem_s":
		if y == 0 {
			return 0, errors.New("integer divide by zero")
		}
		if y == -1 {
			return 0, nil
		}
		return i32bits(x % y), nil
	case "i32.rem_u":
		if uy == 0 {
			return 0, errors.New("integer divide by zero")
		}
		return uint64(ux % uy), nil
	case "i32.and":
		return uint64(ux & uy), nil
	case "i32.or":
		return uint64(ux | uy), nil
	case "i32.xor":
		return uint64(ux ^ uy), nil
	case "i32.eq":
		return boolBits(x == y), nil
	case "i32.ne":
		return boolBits(x != y), nil
	case "i32.lt_s":
		return boolBits(x < y), nil
	case "i32.le_s":
		return boolBits(x <= y), nil
	case "i32.gt_s":
		return boolBits(x > y), nil
	case "i32.ge_s":
		return boolBits(x >= y), nil
	case "i32.lt_u":
		return boolBits(ux < uy), nil
	case "i32.le_u":
		return boolBits(ux <= uy), nil
	case "i32.gt_u":
		return boolBits(ux > uy), nil
	case "i32.ge_u":
		return boolBits(ux >= uy), nil
	case "f64.add":
		return f64bits(fx + fy), nil
	case "f64.sub":
		return f64bits(fx - fy), nil
	case "f64.mul":
		return f64bits(fx * fy), nil
	case "f64.div":
		return f64bits(fx / fy), nil
	case "f64.eq":
		return boolBits(fx == fy), nil
	case "f64.ne":
		return boolBits(fx != fy), nil
	case "f64.lt":
		return boolBits(fx < fy), nil
	case "f64.le":
		return boolBits(fx <= fy), nil
	case "f64.gt":
		return boolBits(fx > fy), nil
	case "f64.ge":
		return boolBits(fx >= fy), nil
	}
	return 0, errors.Errorf("unsupported instruction %s", op)
}
