// Package sema checks a program before code generation: it resolves names,
// infers expression types and reports problems as diagnostics.
package sema

import (
	"fmt"

	"github.com/strager/impc/types"
)

type SymbolKind int

const (
	Variable SymbolKind = iota
	TypeName
	Function
)

func (k SymbolKind) String() string {
	switch k {
	case Variable:
		return "variable"
	case TypeName:
		return "type"
	case Function:
		return "routine"
	default:
		return "unknown"
	}
}

type Symbol struct {
	Name string
	Kind SymbolKind
	Type types.Type
}

// SymbolTable is a stack of scopes. Scope 0, the global scope, always exists.
type SymbolTable struct {
	scopes []map[string]Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{scopes: []map[string]Symbol{make(map[string]Symbol)}}
}

func (st *SymbolTable) Enter() {
	st.scopes = append(st.scopes, make(map[string]Symbol))
}

// Exit drops the innermost scope and every symbol declared in it.
func (st *SymbolTable) Exit() {
	if len(st.scopes) == 1 {
		panic("sema: exiting the global scope")
	}
	st.scopes = st.scopes[:len(st.scopes)-1]
}

// Depth is 0 in the global scope.
func (st *SymbolTable) Depth() int {
	return len(st.scopes) - 1
}

// Declare adds sym to the innermost scope. Shadowing a symbol of an outer
// scope is allowed.
func (st *SymbolTable) Declare(sym Symbol) error {
	scope := st.scopes[len(st.scopes)-1]
	if _, exists := scope[sym.Name]; exists {
		return fmt.Errorf("symbol '%s' already declared in this scope", sym.Name)
	}
	scope[sym.Name] = sym
	return nil
}

// Lookup searches from the innermost scope outwards.
func (st *SymbolTable) Lookup(name string) (Symbol, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if sym, ok := st.scopes[i][name]; ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// LookupLocal searches the innermost scope only.
func (st *SymbolTable) LookupLocal(name string) (Symbol, bool) {
	sym, ok := st.scopes[len(st.scopes)-1][name]
	return sym, ok
}
