// Package watvm interprets the subset of the WebAssembly text format the
// compiler emits: flat (unfolded) instructions over i32 and f64, one linear
// memory, mutable globals, and the two WASI imports a program needs to print
// and exit.
package watvm

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/strager/impc/sexy"
)

type valType int

const (
	i32 valType = iota
	f64
)

func parseValType(n *sexy.Node) (valType, error) {
	if n.Type == sexy.NodeSymbol {
		switch n.Text {
		case "i32":
			return i32, nil
		case "f64":
			return f64, nil
		}
	}
	return 0, errors.Errorf("unsupported value type %s", n)
}

type instr struct {
	op   string
	num  int64
	real float64
	name string

	// For block, loop and if: the index of the matching end. For if: the
	// index of its else, or -1. For else: the index of the matching end.
	end    int
	elseAt int
}

type function struct {
	name    string
	params  []valType
	results []valType
	locals  []valType
	body    []instr
	host    func(m *Machine, args []uint64) (uint64, error)
}

type global struct {
	typ   valType
	value uint64
}

// Module is a parsed module, ready to be instantiated any number of times.
type Module struct {
	funcs    map[string]*function
	globals  map[string]global
	exports  map[string]string
	memPages int
}

// Parse reads a module from its text form.
func Parse(src string) (*Module, error) {
	root, err := sexy.Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "watvm")
	}
	if root.Head() != "module" {
		return nil, errors.New("watvm: expected (module ...)")
	}
	mod := &Module{
		funcs:   make(map[string]*function),
		globals: make(map[string]global),
		exports: make(map[string]string),
	}
	for _, item := range root.Items[1:] {
		var err error
		switch item.Head() {
		case "import":
			err = mod.parseImport(item)
		case "memory":
			err = mod.parseMemory(item)
		case "global":
			err = mod.parseGlobal(item)
		case "func":
			err = mod.parseFunc(item)
		case "export":
			err = mod.parseExport(item)
		default:
			err = errors.Errorf("unsupported module field %s", item)
		}
		if err != nil {
			line, col := sexy.Position(src, item.Offset)
			return nil, errors.Wrapf(err, "watvm: %d:%d", line, col)
		}
	}
	return mod, nil
}

func symbol(n *sexy.Node) (string, bool) {
	if n.Type != sexy.NodeSymbol || !strings.HasPrefix(n.Text, "$") {
		return "", false
	}
	return n.Text, true
}

// signature reads the (param ...) and (result ...) lists of a function
// type, skipping parameter names.
func signature(items []*sexy.Node, params, results *[]valType) ([]*sexy.Node, error) {
	for len(items) > 0 {
		dst := params
		switch items[0].Head() {
		case "param":
		case "result":
			dst = results
		default:
			return items, nil
		}
		for _, t := range items[0].Items[1:] {
			if _, ok := symbol(t); ok {
				continue
			}
			vt, err := parseValType(t)
			if err != nil {
				return nil, err
			}
			*dst = append(*dst, vt)
		}
		items = items[1:]
	}
	return items, nil
}

func (mod *Module) parseImport(n *sexy.Node) error {
	if len(n.Items) != 4 || n.Items[1].Type != sexy.NodeString || n.Items[2].Type != sexy.NodeString || n.Items[3].Head() != "func" {
		return errors.Errorf("malformed import %s", n)
	}
	desc := n.Items[3]
	if len(desc.Items) < 2 {
		return errors.Errorf("import without a name %s", n)
	}
	name, ok := symbol(desc.Items[1])
	if !ok {
		return errors.Errorf("import without a name %s", n)
	}
	fn := &function{name: name}
	if _, err := signature(desc.Items[2:], &fn.params, &fn.results); err != nil {
		return err
	}
	host, ok := hostFuncs[n.Items[1].Text+"."+n.Items[2].Text]
	if !ok {
		return errors.Errorf("unknown import %s.%s", n.Items[1].Text, n.Items[2].Text)
	}
	fn.host = host
	mod.funcs[name] = fn
	return nil
}

func (mod *Module) parseMemory(n *sexy.Node) error {
	for _, item := range n.Items[1:] {
		switch {
		case item.Head() == "export":
			if len(item.Items) == 2 {
				mod.exports[item.Items[1].Text] = "memory"
			}
		case item.Type == sexy.NodeInteger:
			pages, err := strconv.Atoi(item.Text)
			if err != nil {
				return err
			}
			mod.memPages = pages
		}
	}
	return nil
}

func (mod *Module) parseGlobal(n *sexy.Node) error {
	if len(n.Items) != 4 {
		return errors.Errorf("malformed global %s", n)
	}
	name, ok := symbol(n.Items[1])
	if !ok {
		return errors.Errorf("global without a name %s", n)
	}
	typ := n.Items[2]
	if typ.Head() == "mut" {
		typ = typ.Items[1]
	}
	vt, err := parseValType(typ)
	if err != nil {
		return err
	}
	init, err := parseInstrs(n.Items[3].Items)
	if err != nil {
		return err
	}
	if len(init) != 1 || (init[0].op != "i32.const" && init[0].op != "f64.const") {
		return errors.Errorf("global initializer must be a constant: %s", n.Items[3])
	}
	g := global{typ: vt}
	if vt == f64 {
		g.value = f64bits(init[0].real)
	} else {
		g.value = i32bits(int32(init[0].num))
	}
	mod.globals[name] = g
	return nil
}

func (mod *Module) parseFunc(n *sexy.Node) error {
	if len(n.Items) < 2 {
		return errors.New("func without a name")
	}
	name, ok := symbol(n.Items[1])
	if !ok {
		return errors.New("func without a name")
	}
	fn := &function{name: name}
	items := n.Items[2:]
	for len(items) > 0 && items[0].Head() == "export" {
		if len(items[0].Items) != 2 {
			return errors.Errorf("malformed export %s", items[0])
		}
		mod.exports[items[0].Items[1].Text] = name
		items = items[1:]
	}
	items, err := signature(items, &fn.params, &fn.results)
	if err != nil {
		return err
	}
	for len(items) > 0 && items[0].Head() == "local" {
		for _, t := range items[0].Items[1:] {
			if _, ok := symbol(t); ok {
				continue
			}
			vt, err := parseValType(t)
			if err != nil {
				return err
			}
			fn.locals = append(fn.locals, vt)
		}
		items = items[1:]
	}
	fn.body, err = parseInstrs(items)
	if err != nil {
		return errors.Wrapf(err, "in %s", name)
	}
	mod.funcs[name] = fn
	return nil
}

func (mod *Module) parseExport(n *sexy.Node) error {
	if len(n.Items) != 3 || n.Items[1].Type != sexy.NodeString || n.Items[2].Head() != "func" || len(n.Items[2].Items) != 2 {
		return errors.Errorf("unsupported export %s", n)
	}
	name, ok := symbol(n.Items[2].Items[1])
	if !ok {
		return errors.Errorf("malformed export %s", n)
	}
	mod.exports[n.Items[1].Text] = name
	return nil
}

// Instructions with a mandatory immediate, by kind of immediate.
var (
	intImmediate = map[string]bool{
		"i32.const": true, "local.get": true, "local.set": true, "local.tee": true,
	}
	nameImmediate = map[string]bool{
		"global.get": true, "global.set": true, "call": true,
	}
	plainOps = map[string]bool{
		"i32.add": true, "i32.sub": true, "i32.mul": true, "i32.div_s": true, "i32.div_u": true,
		"i32.rem_s": true, "i32.rem_u": true, "i32.and": true, "i32.or": true, "i32.xor": true,
		"i32.eq": true, "i32.ne": true, "i32.lt_s": true, "i32.le_s": true, "i32.gt_s": true,
		"i32.ge_s": true, "i32.lt_u": true, "i32.le_u": true, "i32.gt_u": true, "i32.ge_u": true,
		"i32.eqz": true,
		"f64.add": true, "f64.sub": true, "f64.mul": true, "f64.div": true, "f64.neg": true,
		"f64.eq": true, "f64.ne": true, "f64.lt": true, "f64.le": true, "f64.gt": true, "f64.ge": true,
		"f64.convert_i32_s": true, "i32.trunc_f64_s": true,
		"i32.load": true, "i32.store": true, "i32.load8_u": true, "i32.store8": true,
		"f64.load": true, "f64.store": true,
		"drop": true, "select": true, "return": true, "nop": true, "unreachable": true,
		"else": true, "end": true,
	}
)

// parseInstrs reads a flat instruction sequence and matches structured
// instructions with their else and end.
func parseInstrs(items []*sexy.Node) ([]instr, error) {
	var out []instr
	var open []int
	for i := 0; i < len(items); i++ {
		n := items[i]
		if n.Type == sexy.NodeList {
			return nil, errors.Errorf("folded instructions are not supported: %s", n)
		}
		if n.Type != sexy.NodeSymbol {
			return nil, errors.Errorf("expected an instruction, got %s", n)
		}
		in := instr{op: n.Text, end: -1, elseAt: -1}
		next := func() (*sexy.Node, error) {
			if i+1 >= len(items) {
				return nil, errors.Errorf("%s needs an operand", in.op)
			}
			i++
			return items[i], nil
		}
		switch {
		case intImmediate[in.op]:
			arg, err := next()
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseInt(arg.Text, 10, 64)
			if err != nil || arg.Type != sexy.NodeInteger {
				return nil, errors.Errorf("%s: bad operand %s", in.op, arg)
			}
			in.num = v
		case in.op == "f64.const":
			arg, err := next()
			if err != nil {
				return nil, err
			}
			v, ok := floatLiteral(arg)
			if !ok {
				return nil, errors.Errorf("%s: bad operand %s", in.op, arg)
			}
			in.real = v
		case nameImmediate[in.op]:
			arg, err := next()
			if err != nil {
				return nil, err
			}
			name, ok := symbol(arg)
			if !ok {
				return nil, errors.Errorf("%s: bad operand %s", in.op, arg)
			}
			in.name = name
		case in.op == "br" || in.op == "br_if":
			arg, err := next()
			if err != nil {
				return nil, err
			}
			if name, ok := symbol(arg); ok {
				in.name = name
			} else if arg.Type == sexy.NodeInteger {
				v, _ := strconv.ParseInt(arg.Text, 10, 64)
				in.num = v
			} else {
				return nil, errors.Errorf("%s: bad operand %s", in.op, arg)
			}
		case in.op == "block" || in.op == "loop" || in.op == "if":
			if i+1 < len(items) {
				if name, ok := symbol(items[i+1]); ok {
					in.name = name
					i++
				}
			}
		case plainOps[in.op]:
		default:
			return nil, errors.Errorf("unsupported instruction %s", in.op)
		}

		idx := len(out)
		switch in.op {
		case "block", "loop", "if":
			open = append(open, idx)
		case "else":
			if len(open) == 0 || out[open[len(open)-1]].op != "if" {
				return nil, errors.New("else outside if")
			}
			out[open[len(open)-1]].elseAt = idx
		case "end":
			if len(open) == 0 {
				return nil, errors.New("unbalanced end")
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			out[start].end = idx
			if e := out[start].elseAt; e >= 0 {
				out[e].end = idx
			}
		}
		out = append(out, in)
	}
	if len(open) > 0 {
		return nil, errors.Errorf("%s without end", out[open[len(open)-1]].op)
	}
	return out, nil
}

// floatLiteral reads a decimal float or one of the text format's spellings
// of infinity and NaN. Go spellings such as +Inf are rejected.
func floatLiteral(n *sexy.Node) (float64, bool) {
	switch n.Type {
	case sexy.NodeInteger, sexy.NodeFloat:
		v, err := strconv.ParseFloat(n.Text, 64)
		return v, err == nil
	case sexy.NodeSymbol:
		switch n.Text {
		case "inf", "+inf":
			return math.Inf(1), true
		case "-inf":
			return math.Inf(-1), true
		case "nan", "+nan", "-nan":
			return math.NaN(), true
		}
	}
	return 0, false
}
