package types

import "fmt"

// Env is the registry of named type aliases.
type Env struct {
	aliases map[string]Type
	order   []string
}

func NewEnv() *Env {
	return &Env{aliases: make(map[string]Type)}
}

// AddAlias binds name to t. A name can be bound once.
func (e *Env) AddAlias(name string, t Type) error {
	if _, exists := e.aliases[name]; exists {
		return fmt.Errorf("type '%s' already defined", name)
	}
	e.aliases[name] = t
	e.order = append(e.order, name)
	return nil
}

// Resolve is a single lookup: an alias of an alias comes back as *Named.
func (e *Env) Resolve(name string) (Type, bool) {
	t, ok := e.aliases[name]
	return t, ok
}

// Names lists the aliases in definition order.
func (e *Env) Names() []string {
	return append([]string(nil), e.order...)
}

// UnknownTypeError is returned by ResolveDeep for a name with no alias.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type '%s'", e.Name)
}

// CycleError is returned by ResolveDeep when an alias contains itself.
type CycleError struct {
	Name string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("type '%s' is defined in terms of itself", e.Name)
}

// ResolveDeep replaces every *Named inside t by its definition, following
// alias chains through array elements and record fields. The result holds no
// *Named. Types without aliases are returned as is.
func (e *Env) ResolveDeep(t Type) (Type, error) {
	return e.resolveDeep(t, nil)
}

func (e *Env) resolveDeep(t Type, visiting []string) (Type, error) {
	switch t := t.(type) {
	case *Named:
		for _, name := range visiting {
			if name == t.Name {
				return nil, &CycleError{Name: t.Name}
			}
		}
		def, ok := e.aliases[t.Name]
		if !ok {
			return nil, &UnknownTypeError{Name: t.Name}
		}
		return e.resolveDeep(def, append(visiting, t.Name))
	case *Array:
		elem, err := e.resolveDeep(t.Elem, visiting)
		if err != nil {
			return nil, err
		}
		if elem == t.Elem {
			return t, nil
		}
		return &Array{Elem: elem, Size: t.Size}, nil
	case *Record:
		if t.Name != "" {
			visiting = append(visiting, t.Name)
		}
		var fields []Field
		for i, f := range t.Fields {
			ft, err := e.resolveDeep(f.Type, visiting)
			if err != nil {
				return nil, err
			}
			if ft != f.Type && fields == nil {
				fields = append(make([]Field, 0, len(t.Fields)), t.Fields[:i]...)
			}
			if fields != nil {
				fields = append(fields, Field{Name: f.Name, Type: ft})
			}
		}
		if fields == nil {
			return t, nil
		}
		return &Record{Name: t.Name, Fields: fields}, nil
	case *Function:
		params := make([]Type, len(t.Params))
		for i, p := range t.Params {
			rp, err := e.resolveDeep(p, visiting)
			if err != nil {
				return nil, err
			}
			params[i] = rp
		}
		result, err := e.resolveDeep(t.Result, visiting)
		if err != nil {
			return nil, err
		}
		return &Function{Params: params, Result: result}, nil
	default:
		return t, nil
	}
}

// ResolveTop follows alias chains at the top level only, leaving aliases
// inside arrays and records untouched.
func (e *Env) ResolveTop(t Type) (Type, error) {
	var seen []string
	for {
		n, ok := t.(*Named)
		if !ok {
			return t, nil
		}
		for _, name := range seen {
			if name == n.Name {
				return nil, &CycleError{Name: n.Name}
			}
		}
		seen = append(seen, n.Name)
		def, ok := e.aliases[n.Name]
		if !ok {
			return nil, &UnknownTypeError{Name: n.Name}
		}
		t = def
	}
}
