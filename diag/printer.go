package diag

import (
	"fmt"
	"io"
)

type color string

const (
	reset      color = "\033[0m"
	boldRed    color = "\033[1;31m"
	boldYellow color = "\033[1;33m"
	boldCyan   color = "\033[1;36m"
	grey       color = "\033[90m"
)

// Printer writes diagnostics one per line, followed by a summary.
type Printer struct {
	w     io.Writer
	Color bool
	// Name is printed in front of each position, usually the input file.
	Name string
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) paint(c color, s string) string {
	if !p.Color {
		return s
	}
	return string(c) + s + string(reset)
}

func severityColor(s Severity) color {
	switch s {
	case Error:
		return boldRed
	case Warning:
		return boldYellow
	default:
		return boldCyan
	}
}

func (p *Printer) Print(d Diagnostic) {
	where := fmt.Sprintf("%d:%d:", d.Pos.Line, d.Pos.Col)
	if p.Name != "" {
		where = p.Name + ":" + where
	}
	label := fmt.Sprintf("%s[%s]:", d.Severity, d.Code)
	fmt.Fprintf(p.w, "%s %s %s\n", p.paint(grey, where), p.paint(severityColor(d.Severity), label), d.Message)
}

// PrintAll prints every diagnostic of l and a summary line when there is at
// least one error or warning.
func (p *Printer) PrintAll(l *List) {
	warnings := 0
	for _, d := range l.items {
		p.Print(d)
		if d.Severity == Warning {
			warnings++
		}
	}
	switch {
	case l.errors > 0 && warnings > 0:
		fmt.Fprintf(p.w, "%s\n", p.paint(boldRed, fmt.Sprintf("compilation failed with %d error(s) and %d warning(s)", l.errors, warnings)))
	case l.errors > 0:
		fmt.Fprintf(p.w, "%s\n", p.paint(boldRed, fmt.Sprintf("compilation failed with %d error(s)", l.errors)))
	case warnings > 0:
		fmt.Fprintf(p.w, "%s\n", p.paint(boldYellow, fmt.Sprintf("compilation succeeded with %d warning(s)", warnings)))
	}
}
