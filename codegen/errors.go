package codegen

import (
	"fmt"

	"github.com/strager/impc/ast"
)

// InternalError reports a broken invariant: a tree that passed analysis but
// cannot be lowered. It always indicates a compiler bug.
type InternalError struct {
	Pos ast.Pos
	Msg string
}

func (e *InternalError) Error() string {
	if e.Pos == (ast.Pos{}) {
		return "internal error: " + e.Msg
	}
	return fmt.Sprintf("%d:%d: internal error: %s", e.Pos.Line, e.Pos.Col, e.Msg)
}

// internalf aborts generation. Generate recovers the panic.
func internalf(pos ast.Pos, format string, args ...any) {
	panic(&InternalError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}
