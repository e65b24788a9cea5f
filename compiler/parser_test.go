package compiler

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/chazu/heapsnap/heap"
)

func parseExpr(t *testing.T, input string) Expr {
	t.Helper()
	e, err := ParseExpressionSource(input)
	if err != nil {
		t.Fatalf("ParseExpressionSource(%q) failed: %v", input, err)
	}
	return e
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*NumberLiteral).Value == 42 }, "integer"},
		{"3.14", func(e Expr) bool { return e.(*NumberLiteral).Value == 3.14 }, "float"},
		{"0x1F", func(e Expr) bool { return e.(*NumberLiteral).Value == 31 }, "hex"},
		{"1e400", func(e Expr) bool { return math.IsInf(e.(*NumberLiteral).Value, 1) }, "overflow"},
		{"12n", func(e Expr) bool { return e.(*BigIntLiteral).Digits == "12" }, "bigint"},
		{"'hello'", func(e Expr) bool { return e.(*StringLiteral).Value == "hello" }, "string"},
		{"true", func(e Expr) bool { return e.(*BoolLiteral).Value }, "true"},
		{"null", func(e Expr) bool { _, ok := e.(*NullLiteral); return ok }, "null"},
		{"undefined", func(e Expr) bool { _, ok := e.(*UndefinedLiteral); return ok }, "undefined"},
		{"this", func(e Expr) bool { _, ok := e.(*ThisExpr); return ok }, "this"},
		{"/a+b/gi", func(e Expr) bool {
			re := e.(*RegExpLiteral)
			return re.Pattern == "a+b" && re.Flags == "gi"
		}, "regexp"},
	}

	for _, tc := range tests {
		p := NewParser(tc.input)
		expr := p.ParseExpression()
		if len(p.Errors()) > 0 {
			t.Errorf("%s: parse errors: %v", tc.desc, p.Errors())
			continue
		}
		if expr == nil {
			t.Errorf("%s: nil expression", tc.desc)
			continue
		}
		if !tc.check(expr) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	e := parseExpr(t, "a || b && c == 1 + 2 * 3")
	or, ok := e.(*LogicalExpr)
	if !ok || or.Op != TokenOr {
		t.Fatalf("top = %T, want ||", e)
	}
	and, ok := or.Right.(*LogicalExpr)
	if !ok || and.Op != TokenAnd {
		t.Fatalf("right of || = %T, want &&", or.Right)
	}
	eq, ok := and.Right.(*BinaryExpr)
	if !ok || eq.Op != TokenEq {
		t.Fatalf("right of && = %T, want ==", and.Right)
	}
	sum, ok := eq.Right.(*BinaryExpr)
	if !ok || sum.Op != TokenPlus {
		t.Fatalf("right of == = %T, want +", eq.Right)
	}
	if prod, ok := sum.Right.(*BinaryExpr); !ok || prod.Op != TokenStar {
		t.Fatalf("right of + = %T, want *", sum.Right)
	}

	// Left associativity.
	sub := parseExpr(t, "10 - 4 - 3").(*BinaryExpr)
	if _, ok := sub.Left.(*BinaryExpr); !ok {
		t.Errorf("10 - 4 - 3 did not associate left")
	}
	// Assignment is right associative.
	assign := parseExpr(t, "a = b = 1").(*AssignExpr)
	if _, ok := assign.Value.(*AssignExpr); !ok {
		t.Errorf("a = b = 1 did not associate right")
	}
}

func TestParserMemberAndCall(t *testing.T) {
	call := parseExpr(t, "obj.items[0].get(1, 'x')").(*CallExpr)
	if len(call.Args) != 2 {
		t.Fatalf("args = %d, want 2", len(call.Args))
	}
	get := call.Callee.(*MemberExpr)
	if get.Name != "get" {
		t.Errorf("callee name = %q", get.Name)
	}
	idx := get.Object.(*MemberExpr)
	if idx.Index == nil {
		t.Errorf("items[0] parsed without index")
	}

	// Reserved words are valid property names.
	if m := parseExpr(t, "a.class").(*MemberExpr); m.Name != "class" {
		t.Errorf("a.class name = %q", m.Name)
	}

	n := parseExpr(t, "new Point(1, 2).x").(*MemberExpr)
	if ne, ok := n.Object.(*NewExpr); !ok || len(ne.Args) != 2 {
		t.Errorf("new Point(1, 2).x object = %T", n.Object)
	}
	if ne := parseExpr(t, "new a.B").(*NewExpr); ne.Args != nil {
		t.Errorf("new a.B args = %v", ne.Args)
	}
}

func TestParserArrayAndObject(t *testing.T) {
	arr := parseExpr(t, "[1, , 3,]").(*ArrayLiteral)
	if len(arr.Elements) != 3 || arr.Elements[1] != nil {
		t.Errorf("[1, , 3,] elements = %v", arr.Elements)
	}

	obj := parseExpr(t, "({a: 1, 'b c': 2, 3: x, y, m(p) { return p }, async n() {}})").(*ObjectLiteral)
	keys := []string{"a", "b c", "3", "y", "m", "n"}
	if len(obj.Properties) != len(keys) {
		t.Fatalf("properties = %d, want %d", len(obj.Properties), len(keys))
	}
	for i, k := range keys {
		if obj.Properties[i].Key != k {
			t.Errorf("property[%d] = %q, want %q", i, obj.Properties[i].Key, k)
		}
	}
	if id, ok := obj.Properties[3].Value.(*Identifier); !ok || id.Name != "y" {
		t.Errorf("shorthand value = %T", obj.Properties[3].Value)
	}
	if fn := obj.Properties[4].Value.(*FunctionLiteral); fn.Kind != heap.ConciseMethod {
		t.Errorf("m kind = %v", fn.Kind)
	}
	if fn := obj.Properties[5].Value.(*FunctionLiteral); fn.Kind != heap.AsyncConciseMethod {
		t.Errorf("n kind = %v", fn.Kind)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestParserFunctionKinds(t *testing.T) {
	tests := []struct {
		input string
		kind  heap.FunctionKind
	}{
		{"function f(a, b) { return a }", heap.NormalFunction},
		{"function* g() {}", heap.GeneratorFunction},
		{"async function h() {}", heap.AsyncFunction},
		{"async function* i() {}", heap.AsyncGeneratorFunction},
		{"x => x", heap.ArrowFunction},
		{"(a, b) => { return a }", heap.ArrowFunction},
		{"() => 1", heap.ArrowFunction},
		{"async x => x", heap.AsyncArrowFunction},
		{"async (x) => x", heap.AsyncArrowFunction},
	}

	for _, tc := range tests {
		fn, ok := parseExpr(t, tc.input).(*FunctionLiteral)
		if !ok {
			t.Errorf("%q did not parse as a function", tc.input)
			continue
		}
		if fn.Kind != tc.kind {
			t.Errorf("%q kind = %v, want %v", tc.input, fn.Kind, tc.kind)
		}
		if fn.SpanVal.Start.Offset != 0 || fn.SpanVal.End.Offset != len(tc.input) {
			t.Errorf("%q span = [%d, %d), want the whole text", tc.input,
				fn.SpanVal.Start.Offset, fn.SpanVal.End.Offset)
		}
	}

	// A parenthesized expression is not an arrow.
	if _, ok := parseExpr(t, "(a)").(*Identifier); !ok {
		t.Errorf("(a) did not parse as an identifier")
	}
}

func TestParserFunctionSpans(t *testing.T) {
	src := "let x = 1;\nfunction outer() {\n  return function inner(a) { return a }\n}"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	decl := prog.Body[1].(*FunctionDecl)
	start, end := decl.Func.SpanVal.Start.Offset, decl.Func.SpanVal.End.Offset
	if got := src[start:end]; !strings.HasPrefix(got, "function outer()") || !strings.HasSuffix(got, "}") {
		t.Errorf("outer text = %q", got)
	}
	inner := decl.Func.Body[0].(*ReturnStmt).Value.(*FunctionLiteral)
	start, end = inner.SpanVal.Start.Offset, inner.SpanVal.End.Offset
	if got := src[start:end]; got != "function inner(a) { return a }" {
		t.Errorf("inner text = %q", got)
	}
	if inner.SpanVal.Start.Line != 3 {
		t.Errorf("inner line = %d, want 3", inner.SpanVal.Start.Line)
	}
}

func TestParserClass(t *testing.T) {
	src := "class Point { constructor(x, y) { this.x = x } norm() { return 1 }; async load() {} }"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cls := prog.Body[0].(*ClassDecl).Class
	if cls.Name != "Point" || cls.Ctor == nil || len(cls.Ctor.Params) != 2 {
		t.Fatalf("class = %+v", cls)
	}
	if len(cls.Methods) != 2 || cls.Methods[0].Name != "norm" || cls.Methods[1].Kind != heap.AsyncConciseMethod {
		t.Errorf("methods = %+v", cls.Methods)
	}
	if cls.SpanVal.End.Offset != len(src) {
		t.Errorf("class span ends at %d, want %d", cls.SpanVal.End.Offset, len(src))
	}
	m := cls.Methods[0]
	if got := src[m.SpanVal.Start.Offset:m.SpanVal.End.Offset]; got != "norm() { return 1 }" {
		t.Errorf("method text = %q", got)
	}
}

func TestParseFunctionSource(t *testing.T) {
	tests := []struct {
		src  string
		kind heap.FunctionKind
	}{
		{"function inner(a) { return x + a }", heap.NormalFunction},
		{"(a) => a * 2", heap.ArrowFunction},
		{"norm() { return this.x }", heap.ConciseMethod},
		{"async load() {}", heap.AsyncConciseMethod},
		{"class Point { constructor(x) { this.x = x } }", heap.BaseConstructor},
		{"class Empty {}", heap.DefaultBaseConstructor},
	}
	for _, tc := range tests {
		if _, err := ParseFunctionSource(tc.src, tc.kind); err != nil {
			t.Errorf("ParseFunctionSource(%q, %v) failed: %v", tc.src, tc.kind, err)
		}
	}

	bad := []struct {
		src  string
		kind heap.FunctionKind
	}{
		{"function f() {}", heap.ArrowFunction},
		{"42", heap.NormalFunction},
		{"function f() {} extra", heap.NormalFunction},
		{"norm() {}", heap.BaseConstructor},
	}
	for _, tc := range bad {
		if _, err := ParseFunctionSource(tc.src, tc.kind); err == nil {
			t.Errorf("ParseFunctionSource(%q, %v) succeeded, want error", tc.src, tc.kind)
		}
	}
}

// ---------------------------------------------------------------------------
// Statements and errors
// ---------------------------------------------------------------------------

func TestParserStatements(t *testing.T) {
	src := `
		let a = 1
		const b = 2;
		var c;
		if (a < b) { a += 1 } else a -= 1
		while (a) a = 0;
		{ let inner = 1 }
		;
		function f() { return }
	`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"*compiler.VarDecl", "*compiler.VarDecl", "*compiler.VarDecl",
		"*compiler.IfStmt", "*compiler.WhileStmt", "*compiler.BlockStmt",
		"*compiler.EmptyStmt", "*compiler.FunctionDecl"}
	if len(prog.Body) != len(want) {
		t.Fatalf("statements = %d, want %d", len(prog.Body), len(want))
	}
	for i, s := range prog.Body {
		if got := fmt.Sprintf("%T", s); got != want[i] {
			t.Errorf("statement[%d] = %s, want %s", i, got, want[i])
		}
	}
	ret := prog.Body[7].(*FunctionDecl).Func.Body[0].(*ReturnStmt)
	if ret.Value != nil {
		t.Errorf("bare return has value %T", ret.Value)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
		line  int
	}{
		{"let = 1", "expected variable name", 1},
		{"const x", "missing initializer", 1},
		{"1 +", "unexpected EOF", 1},
		{"f(1 2)", "expected , or )", 1},
		{"class A extends B {}", "inheritance is not supported", 1},
		{"class A { static m() {} }", "static class members", 1},
		{"class A { constructor() {} constructor() {} }", "only have one constructor", 1},
		{"function () {}", "needs a name", 1},
		{"let x = 1\n1 = 2", "invalid assignment target", 2},
		{"'open", "unterminated string", 1},
		{"a @ b", "unexpected character", 1},
		{"{ let a = 1", "expected }", 1},
	}

	for _, tc := range tests {
		_, err := Parse(tc.input)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q) error = %v, want *SyntaxError", tc.input, err)
			continue
		}
		if !strings.Contains(se.Msg, tc.msg) {
			t.Errorf("Parse(%q) message = %q, want it to contain %q", tc.input, se.Msg, tc.msg)
		}
		if se.Pos.Line != tc.line {
			t.Errorf("Parse(%q) line = %d, want %d", tc.input, se.Pos.Line, tc.line)
		}
	}
}
