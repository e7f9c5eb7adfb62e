package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputType is the language of a test's input fence.
type InputType string

const (
	// InputTypeProgram is a whole program in the AST interchange format.
	InputTypeProgram InputType = "imp-ast"
)

// AssertionType is the language of an assertion fence.
type AssertionType string

const (
	AssertionTypeExecute     AssertionType = "execute"     // expected stdout of the compiled module
	AssertionTypeDiagnostics AssertionType = "diagnostics" // expected diagnostic codes, one per line
	AssertionTypeOptimized   AssertionType = "optimized"   // pattern for the optimized tree
	AssertionTypeWat         AssertionType = "wat"         // pattern for one function of the module
)

// Assertion is one assertion fence of a test case.
type Assertion struct {
	Type       AssertionType
	Content    string // fence body without the trailing newline
	ParsedSexy *Node  // set for pattern assertions (optimized, wat)
	Line       int
}

// TestCase is a "## Test: name" section of a Markdown suite.
type TestCase struct {
	Name       string
	Input      string
	InputType  InputType
	Line       int // of the input fence
	Assertions []Assertion
}

// ExtractTestCases reads the test cases of a Markdown suite. Every fenced
// block with a language must belong to a test and be a known input or
// assertion fence; unlabeled blocks are prose and are skipped.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	x := &extractor{source: []byte(markdownContent)}
	doc := goldmark.New().Parser().Parse(text.NewReader(x.source))
	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var err error
		switch n := node.(type) {
		case *ast.Heading:
			err = x.heading(n)
		case *ast.FencedCodeBlock:
			err = x.fence(n)
		}
		if err != nil {
			return ast.WalkStop, err
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}
	if err := x.flush(); err != nil {
		return nil, err
	}
	return x.cases, nil
}

type extractor struct {
	source  []byte
	cases   []TestCase
	current *TestCase
}

func (x *extractor) heading(n *ast.Heading) error {
	name, ok := strings.CutPrefix(x.text(n), "Test: ")
	if !ok {
		return nil
	}
	if err := x.flush(); err != nil {
		return err
	}
	x.current = &TestCase{Name: name, Assertions: []Assertion{}}
	return nil
}

func (x *extractor) fence(n *ast.FencedCodeBlock) error {
	language := string(n.Language(x.source))
	line := x.line(n)
	tc := x.current
	switch {
	case language == "":
		return nil
	case tc == nil && (isInputFence(language) || isAssertionFence(language)):
		return fmt.Errorf("line %d: %s fence found outside of test case", line, language)
	case tc == nil:
		return fmt.Errorf("line %d: unknown fence language '%s' found outside of test case", line, language)
	}

	content := strings.TrimRight(x.content(n), "\n")
	switch {
	case isInputFence(language):
		if tc.Input != "" {
			return fmt.Errorf("line %d: multiple input fences found in test '%s'", line, tc.Name)
		}
		tc.Input = content
		tc.InputType = InputType(language)
		tc.Line = line
	case isAssertionFence(language):
		a := Assertion{Type: AssertionType(language), Content: content, Line: line}
		if a.Type == AssertionTypeOptimized || a.Type == AssertionTypeWat {
			parsed, err := Parse(content)
			if err != nil {
				return fmt.Errorf("line %d: failed to parse Sexy assertion in test '%s': %w", line, tc.Name, err)
			}
			a.ParsedSexy = parsed
		}
		tc.Assertions = append(tc.Assertions, a)
	default:
		return fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, language, tc.Name)
	}
	return nil
}

// flush validates the test being collected and saves it.
func (x *extractor) flush() error {
	tc := x.current
	if tc == nil {
		return nil
	}
	x.current = nil
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no input fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	x.cases = append(x.cases, *tc)
	return nil
}

func (x *extractor) text(node ast.Node) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(x.source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func (x *extractor) content(block *ast.FencedCodeBlock) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(x.source))
	}
	return buf.String()
}

// line is the 1-based line of the first content line of node.
func (x *extractor) line(node ast.Node) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	return 1 + bytes.Count(x.source[:node.Lines().At(0).Start], []byte("\n"))
}

func isInputFence(language string) bool {
	return InputType(language) == InputTypeProgram
}

func isAssertionFence(language string) bool {
	switch AssertionType(language) {
	case AssertionTypeExecute, AssertionTypeDiagnostics, AssertionTypeOptimized, AssertionTypeWat:
		return true
	}
	return false
}
