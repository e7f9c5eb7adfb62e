package codegen

import (
	"github.com/strager/impc/ast"
	"github.com/strager/impc/types"
)

// VariableInfo locates a variable in the generated code. Global variables
// are addressed by name, locals by slot.
type VariableInfo struct {
	Name       string
	Type       types.Type // fully resolved
	Repr       Repr
	ScopeLevel int
	Slot       int
	Global     bool
}

// Ref returns the operand of local.get/global.get for the variable.
func (v VariableInfo) Ref() string {
	if v.Global {
		return "$g_" + v.Name
	}
	return itoa(v.Slot) + " ;; " + v.Name
}

// VariableScopeManager maps names to locals and globals while a function is
// generated. Level 0 holds the module globals and survives EnterFunction.
// Slots are handed out in declaration order and never reused inside a
// function, so sibling scopes get distinct slots.
type VariableScopeManager struct {
	scopes  []map[string]VariableInfo
	locals  []VariableInfo
	globals []VariableInfo
}

func NewVariableScopeManager() *VariableScopeManager {
	return &VariableScopeManager{scopes: []map[string]VariableInfo{{}}}
}

// EnterFunction drops every local scope and starts a new function with no
// locals.
func (m *VariableScopeManager) EnterFunction() {
	m.scopes = append(m.scopes[:1], map[string]VariableInfo{})
	m.locals = nil
}

func (m *VariableScopeManager) EnterScope() {
	if len(m.scopes) < 2 {
		internalf(ast.Pos{}, "block scope outside a function")
	}
	m.scopes = append(m.scopes, map[string]VariableInfo{})
}

func (m *VariableScopeManager) ExitScope() {
	if len(m.scopes) <= 2 {
		internalf(ast.Pos{}, "exiting the function scope")
	}
	m.scopes = m.scopes[:len(m.scopes)-1]
}

// Level returns the current scope level; 0 is the module level.
func (m *VariableScopeManager) Level() int {
	return len(m.scopes) - 1
}

// DeclareVariable gives name the next slot of the current function.
func (m *VariableScopeManager) DeclareVariable(name string, t types.Type) VariableInfo {
	if len(m.scopes) < 2 {
		internalf(ast.Pos{}, "local '%s' outside a function", name)
	}
	info := m.DeclareHidden(name, t)
	m.scopes[len(m.scopes)-1][name] = info
	return info
}

// DeclareHidden allocates a slot that no name resolves to, for values the
// generator synthesizes.
func (m *VariableScopeManager) DeclareHidden(name string, t types.Type) VariableInfo {
	info := VariableInfo{
		Name:       name,
		Type:       t,
		Repr:       ReprOf(t),
		ScopeLevel: m.Level(),
		Slot:       len(m.locals),
	}
	m.locals = append(m.locals, info)
	return info
}

// DeclareGlobal declares a module-level variable.
func (m *VariableScopeManager) DeclareGlobal(name string, t types.Type) VariableInfo {
	info := VariableInfo{
		Name:   name,
		Type:   t,
		Repr:   ReprOf(t),
		Slot:   len(m.globals),
		Global: true,
	}
	m.globals = append(m.globals, info)
	m.scopes[0][name] = info
	return info
}

// Lookup resolves name from the innermost scope outwards.
func (m *VariableScopeManager) Lookup(name string) (VariableInfo, bool) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if info, ok := m.scopes[i][name]; ok {
			return info, true
		}
	}
	return VariableInfo{}, false
}

// Locals returns the slots of the current function in slot order.
func (m *VariableScopeManager) Locals() []VariableInfo {
	return append([]VariableInfo(nil), m.locals...)
}

func (m *VariableScopeManager) Globals() []VariableInfo {
	return append([]VariableInfo(nil), m.globals...)
}

// ReprOf returns the machine representation of a resolved type.
func ReprOf(t types.Type) Repr {
	switch t {
	case types.Real:
		return F64
	case types.Void:
		return None
	}
	return I32
}
