// Package diag holds the diagnostics produced while checking a program.
package diag

import (
	"fmt"
	"strings"

	"github.com/strager/impc/ast"
)

type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

type Code string

const (
	UndefinedName      Code = "UndefinedName"
	TypeMismatch       Code = "TypeMismatch"
	NotIndexable       Code = "NotIndexable"
	IndexTypeMismatch  Code = "IndexTypeMismatch"
	UnknownField       Code = "UnknownField"
	ArityMismatch      Code = "ArityMismatch"
	Redeclared         Code = "Redeclared"
	NotCallable        Code = "NotCallable"
	NotAType           Code = "NotAType"
	RecursiveType      Code = "RecursiveType"
	InvalidTarget      Code = "InvalidTarget"
	InvalidReturn      Code = "InvalidReturn"
	UnknownArrayLength Code = "UnknownArrayLength"
	NestedRoutine      Code = "NestedRoutine"

	// Warnings
	LossyConversion Code = "LossyConversion"
	UnreachableCode Code = "UnreachableCode"

	// Info
	ForwardOnly Code = "ForwardOnly"
)

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Pos      ast.Pos
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s[%s]: %s", d.Pos.Line, d.Pos.Col, d.Severity, d.Code, d.Message)
}

// List is an ordered, append-only collection of diagnostics.
type List struct {
	items  []Diagnostic
	errors int
}

func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
	if d.Severity == Error {
		l.errors++
	}
}

func (l *List) Errorf(pos ast.Pos, code Code, format string, args ...any) {
	l.Add(Diagnostic{Severity: Error, Code: code, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (l *List) Warnf(pos ast.Pos, code Code, format string, args ...any) {
	l.Add(Diagnostic{Severity: Warning, Code: code, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (l *List) Infof(pos ast.Pos, code Code, format string, args ...any) {
	l.Add(Diagnostic{Severity: Info, Code: code, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (l *List) HasErrors() bool { return l.errors > 0 }
func (l *List) ErrorCount() int { return l.errors }
func (l *List) Len() int        { return len(l.items) }

// Items returns a copy of the diagnostics in the order they were added.
func (l *List) Items() []Diagnostic {
	return append([]Diagnostic(nil), l.items...)
}

// Filter returns the diagnostics carrying code.
func (l *List) Filter(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.items {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Codes lists the code of every diagnostic, in order.
func (l *List) Codes() []Code {
	var codes []Code
	for _, d := range l.items {
		codes = append(codes, d.Code)
	}
	return codes
}

// Err returns the errors of the list as a single error, or nil.
func (l *List) Err() error {
	if l.errors == 0 {
		return nil
	}
	var errs []Diagnostic
	for _, d := range l.items {
		if d.Severity == Error {
			errs = append(errs, d)
		}
	}
	return &ErrorList{Diagnostics: errs}
}

// ErrorList is the error form of the error-severity diagnostics of a List.
type ErrorList struct {
	Diagnostics []Diagnostic
}

func (e *ErrorList) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].String()
	}
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return fmt.Sprintf("%d errors:\n%s", len(e.Diagnostics), strings.Join(lines, "\n"))
}
