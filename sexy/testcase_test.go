package sexy

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func fence(language, body string) string {
	return "```" + language + "\n" + body + "\n```\n"
}

func TestExtractTestCases(t *testing.T) {
	markdown := "# Loops\n\nSome prose.\n\n" +
		"## Test: count up\n" +
		fence("imp-ast", `(program (for "i" (range (integer 1) (integer 2)) (body (print (ident "i")))))`) +
		fence("execute", "1\n2") +
		"\n## Test: folded\n" +
		fence("imp-ast", `(program (print (binary "+" (integer 1) (integer 2))))`) +
		fence("optimized", `(program (print (integer 3)))`) +
		fence("wat", `(func $_start ... (export "_start") ...)`)

	cases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	tc := cases[0]
	be.Equal(t, tc.Name, "count up")
	be.Equal(t, tc.InputType, InputTypeProgram)
	be.True(t, strings.HasPrefix(tc.Input, `(program (for "i"`))
	be.Equal(t, tc.Line, 7)
	be.Equal(t, len(tc.Assertions), 1)
	be.Equal(t, tc.Assertions[0].Type, AssertionTypeExecute)
	be.Equal(t, tc.Assertions[0].Content, "1\n2")
	be.True(t, tc.Assertions[0].ParsedSexy == nil)

	tc = cases[1]
	be.Equal(t, tc.Name, "folded")
	be.Equal(t, len(tc.Assertions), 2)
	be.Equal(t, tc.Assertions[0].Type, AssertionTypeOptimized)
	be.Equal(t, tc.Assertions[0].ParsedSexy.String(), `(program (print (integer 3)))`)
	be.Equal(t, tc.Assertions[1].Type, AssertionTypeWat)
	be.Equal(t, tc.Assertions[1].ParsedSexy.Head(), "func")
}

func TestExtractTestCasesDiagnosticsFence(t *testing.T) {
	markdown := "## Test: undefined\n" +
		fence("imp-ast", `(program (print (ident "x")))`) +
		fence("diagnostics", "UndefinedName\n")
	cases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, cases[0].Assertions[0].Type, AssertionTypeDiagnostics)
	be.Equal(t, cases[0].Assertions[0].Content, "UndefinedName")
}

func TestExtractTestCasesWithoutTests(t *testing.T) {
	tests := []string{
		"",
		"# Just a title\n\nand prose\n",
		"# Title\n\n```\nunlabeled code is prose\n```\n",
	}
	for _, markdown := range tests {
		cases, err := ExtractTestCases(markdown)
		be.Err(t, err, nil)
		be.Equal(t, len(cases), 0)
	}
}

func TestExtractTestCasesAllowsUnlabeledFencesInTests(t *testing.T) {
	markdown := "## Test: with notes\n" +
		fence("", "just an illustration") +
		fence("imp-ast", `(program)`) +
		fence("execute", "")
	cases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 1)
	be.Equal(t, cases[0].Input, "(program)")
	be.Equal(t, cases[0].Assertions[0].Content, "")
}

func TestExtractTestCasesErrors(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			"input outside test",
			"# Title\nLine 2\n\n" + fence("imp-ast", "(program)"),
			"line 5: imp-ast fence found outside of test case",
		},
		{
			"unknown fence outside test",
			fence("go", "package main"),
			"unknown fence language 'go' found outside of test case",
		},
		{
			"unknown fence in test",
			"## Test: t\n" + fence("imp-ast", "(program)") + fence("stdout", "1"),
			"unknown fence language 'stdout' in test 't'",
		},
		{
			"missing input",
			"## Test: t\n" + fence("execute", "1"),
			"test 't' has no input fence",
		},
		{
			"missing assertion",
			"## Test: t\n" + fence("imp-ast", "(program)"),
			"test 't' has no assertion fences",
		},
		{
			"multiple inputs",
			"## Test: t\n" + fence("imp-ast", "(program)") + fence("imp-ast", "(program)") + fence("execute", ""),
			"multiple input fences found in test 't'",
		},
		{
			"bad pattern",
			"## Test: t\n" + fence("imp-ast", "(program)") + fence("optimized", "(program"),
			"failed to parse Sexy assertion in test 't'",
		},
		{
			"error in a later test",
			"## Test: first\n" + fence("imp-ast", "(program)") + fence("execute", "") +
				"## Test: second\n" + fence("execute", ""),
			"test 'second' has no input fence",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ExtractTestCases(test.markdown)
			be.Err(t, err, test.want)
		})
	}
}
