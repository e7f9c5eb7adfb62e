package sexy

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestParseAtoms(t *testing.T) {
	tests := []struct {
		input string
		typ   NodeType
		text  string
		out   string
	}{
		{"hello", NodeSymbol, "hello", "hello"},
		{"func-name", NodeSymbol, "func-name", "func-name"},
		{"i32.const", NodeSymbol, "i32.const", "i32.const"},
		{"$g_total", NodeSymbol, "$g_total", "$g_total"},
		{"_start", NodeSymbol, "_start", "_start"},
		{"+", NodeSymbol, "+", "+"},
		{"-", NodeSymbol, "-", "-"},
		{`"hello world"`, NodeString, "hello world", `"hello world"`},
		{`""`, NodeString, "", `""`},
		{`"say \"hi\""`, NodeString, `say "hi"`, `"say \"hi\""`},
		{`"a\\b"`, NodeString, `a\b`, `"a\\b"`},
		{"42", NodeInteger, "42", "42"},
		{"-123", NodeInteger, "-123", "-123"},
		{"+456", NodeInteger, "+456", "+456"},
		{"2.5", NodeFloat, "2.5", "2.5"},
		{"-0.125", NodeFloat, "-0.125", "-0.125"},
		{"1e300", NodeFloat, "1e300", "1e300"},
		{"6.02E+23", NodeFloat, "6.02E+23", "6.02E+23"},
		{"...", NodeEllipsis, "", "..."},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			n, err := Parse(test.input)
			be.Err(t, err, nil)
			be.Equal(t, n.Type, test.typ)
			be.Equal(t, n.Text, test.text)
			be.Equal(t, n.String(), test.out)
			be.True(t, n.IsAtom())
		})
	}
}

func TestParseCollections(t *testing.T) {
	tests := []struct {
		input string
		typ   NodeType
		out   string
	}{
		{"()", NodeList, "()"},
		{"(1 2 3)", NodeList, "(1 2 3)"},
		{`(binary "+" (integer 1) (real 2.5))`, NodeList, `(binary "+" (integer 1) (real 2.5))`},
		{"(a (b (c)))", NodeList, "(a (b (c)))"},
		{"{}", NodeMap, "{}"},
		{"{line: 3, col: 7}", NodeMap, "{line: 3, col: 7}"},
		{`{file: "x.imp"}`, NodeMap, `{file: "x.imp"}`},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			n, err := Parse(test.input)
			be.Err(t, err, nil)
			be.Equal(t, n.Type, test.typ)
			be.Equal(t, n.String(), test.out)
			be.True(t, !n.IsAtom())
		})
	}
}

func TestParseMeta(t *testing.T) {
	n, err := Parse(`(var ^{line: 3, col: 1} "x" integer)`)
	be.Err(t, err, nil)
	be.Equal(t, n.Head(), "var")
	be.Equal(t, len(n.Items), 3)
	line, ok := n.Meta("line")
	be.True(t, ok)
	be.Equal(t, line.Text, "3")
	_, ok = n.Meta("file")
	be.True(t, !ok)
	be.Equal(t, n.String(), `(^{line: 3, col: 1} var "x" integer)`)
}

func TestParseMetaMerging(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(^{a: 1} ^{b: 2} foo ^{c: 3})", "(^{a: 1, b: 2, c: 3} foo)"},
		{`(^{key: "first"} ^{key: "second"} item)`, `(^{key: "second"} item)`},
	}
	for _, test := range tests {
		n, err := Parse(test.input)
		be.Err(t, err, nil)
		be.Equal(t, n.String(), test.want)
		be.Equal(t, len(n.MetaKeys), len(n.MetaItems))
	}
}

func TestParseWat(t *testing.T) {
	src := `(module
  ;; runtime
  (global $heap_ptr (mut i32) (i32.const 1024)) ;; next free byte
  (func $_start (export "_start")
    f64.const 2.7
    local.get 0 ;; x
    call $proc_exit
  )
)`
	n, err := Parse(src)
	be.Err(t, err, nil)
	be.Equal(t, n.Head(), "module")
	be.Equal(t, len(n.Items), 3)

	fn := n.Items[2]
	be.Equal(t, fn.Head(), "func")
	be.Equal(t, fn.Items[1].Text, "$_start")
	be.Equal(t, fn.Items[3].Type, NodeSymbol)
	be.Equal(t, fn.Items[4].Type, NodeFloat)
	be.Equal(t, fn.Items[6].Type, NodeInteger)
	be.Equal(t, len(fn.Items), 9)

	line, col := Position(src, fn.Offset)
	be.Equal(t, line, 4)
	be.Equal(t, col, 3)
}

func TestHead(t *testing.T) {
	for input, want := range map[string]string{
		"(print 1)": "print",
		"()":        "",
		"((a) b)":   "",
		`("s")`:     "",
		"sym":       "",
	} {
		n, err := Parse(input)
		be.Err(t, err, nil)
		be.Equal(t, n.Head(), want)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"(a b c)", "(a b c)", true},
		{"(a b c)", "(a b)", false},
		{"(a ...)", "(a)", true},
		{"(a ...)", "(a b c)", true},
		{"(... c)", "(a b c)", true},
		{"(a ... c)", "(a b b c)", true},
		{"(a ... c)", "(a b d)", false},
		{"...", "(anything (at all))", true},
		{"(program (print (integer 3)))", "(program ^{line: 1} (print (integer 3)))", true},
		{"(print (integer 3))", "(print (real 3))", false},
		{`(ident "x")`, `(ident x)`, false},
		{"{a: 1}", "{a: 1}", true},
		{"{a: ...}", "{a: (x y)}", true},
		{"{a: 1}", "{b: 1}", false},
	}
	for _, test := range tests {
		t.Run(test.pattern+" ~ "+test.value, func(t *testing.T) {
			p, err := Parse(test.pattern)
			be.Err(t, err, nil)
			v, err := Parse(test.value)
			be.Err(t, err, nil)
			be.Equal(t, Match(p, v), test.want)
		})
	}
	be.True(t, Match(nil, nil))
	be.True(t, !Match(NewSymbol("a"), nil))
}

func TestConstructors(t *testing.T) {
	n := NewListWithMeta(
		[]*Node{NewSymbol("real"), NewFloat("2.5"), NewInteger("3"), NewString("s"), NewEllipsis(), NewList()},
		[]string{"line"}, []*Node{NewInteger("1")},
	)
	be.Equal(t, n.String(), `(^{line: 1} real 2.5 3 "s" ... ())`)
	be.Equal(t, NewMap([]string{"k"}, []*Node{NewSymbol("v")}).String(), "{k: v}")
}

func TestPosition(t *testing.T) {
	src := "ab\ncd\n\nef"
	tests := []struct{ offset, line, col int }{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{7, 4, 1},
		{100, 4, 3},
	}
	for _, test := range tests {
		line, col := Position(src, test.offset)
		be.Equal(t, line, test.line)
		be.Equal(t, col, test.col)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"unterminated`, "1:1: unterminated string"},
		{`"bad \n escape"`, `invalid escape sequence: \n`},
		{"(a . b)", "1:4: unexpected character '.'"},
		{"(a\n  #)", "2:3: unexpected character '#'"},
		{"(a b", "expected ')' but got EOF"},
		{"a b", "expected EOF but got symbol"},
		{")", "unexpected token: ')'"},
		{"{1: 2}", "expected symbol for map key but got integer"},
		{"{a 2}", "expected ':' after map key but got integer"},
		{"{a: 1 b: 2}", "expected ',' or '}' in map but got symbol"},
		{"(^ x)", "expected '{' after '^' but got symbol"},
		{"", "unexpected token: EOF"},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			_, err := Parse(test.input)
			be.Err(t, err, test.want)
		})
	}
}
