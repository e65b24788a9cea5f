package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/heapsnap/heap"
)

func newTestInterpreter() (*Interpreter, *bytes.Buffer) {
	var out bytes.Buffer
	in := New()
	in.Out = &out
	return in, &out
}

func run(t *testing.T, in *Interpreter, r *heap.Realm, src string) {
	t.Helper()
	if err := in.Run(r, "test.js", src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func evaluate(t *testing.T, in *Interpreter, r *heap.Realm, expr string) heap.Value {
	t.Helper()
	v, err := in.Evaluate(r, expr)
	if err != nil {
		t.Fatalf("Evaluate(%q) failed: %v", expr, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func TestEvaluateExpressions(t *testing.T) {
	tests := []struct {
		expr string
		want heap.Value
	}{
		{"1 + 2", heap.Smi(3)},
		{"'a' + 1", heap.String("a1")},
		{"1 + '2' + 3", heap.String("123")},
		{"10 / 4", heap.Number(2.5)},
		{"7 % 3", heap.Smi(1)},
		{"2 * (3 + 4)", heap.Smi(14)},
		{"-'3'", heap.Smi(-3)},
		{"1 < 2 && 'b' > 'a'", heap.True},
		{"0 || 'fallback'", heap.String("fallback")},
		{"null == undefined", heap.True},
		{"null === undefined", heap.False},
		{"1 == '1'", heap.True},
		{"0 === -0", heap.True},
		{"NaN === NaN", heap.False},
		{"!0", heap.True},
		{"!''", heap.True},
		{"typeof missing", heap.String("undefined")},
		{"typeof (() => 1)", heap.String("function")},
		{"typeof null", heap.String("object")},
		{"typeof 1n", heap.String("bigint")},
		{"[1, 2].length", heap.Smi(2)},
		{"[1, , 3].join('-')", heap.String("1--3")},
		{"'héllo'.length", heap.Smi(5)},
		{"'abc'[1]", heap.String("b")},
		{"({a: 1, b: {c: 'deep'}}).b.c", heap.String("deep")},
		{"({a: 1})['a']", heap.Smi(1)},
		{"/a+b/.test('xaab')", heap.True},
		{"/a+b/g.flags", heap.String("g")},
		{"(x => x * 2)(21)", heap.Smi(42)},
		{"((a, b) => { return a - b })(5, 3)", heap.Smi(2)},
		{"'' + 0.1", heap.String("0.1")},
		{"'' + 1e21", heap.String("1e+21")},
		{"'' + 1.5e-7", heap.String("1.5e-7")},
		{"'' + [1, [2, 3]]", heap.String("1,2,3")},
	}

	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	for _, tc := range tests {
		got, err := in.Evaluate(r, tc.expr)
		if err != nil {
			t.Errorf("Evaluate(%q) failed: %v", tc.expr, err)
			continue
		}
		if !heap.StrictEquals(got, tc.want) {
			t.Errorf("Evaluate(%q) = %s, want %s", tc.expr, heap.Describe(got), heap.Describe(tc.want))
		}
	}
	if len(r.GlobalNames()) != 0 {
		t.Errorf("expressions created globals %v", r.GlobalNames())
	}
}

func TestEvaluateValues(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()

	arr, ok := evaluate(t, in, r, "[1, , 'x']").(*heap.Array)
	if !ok || arr.Len() != 3 || !arr.HasHole(1) {
		t.Fatalf("array literal = %v", arr)
	}
	re, ok := evaluate(t, in, r, "/a+b/gi").(*heap.RegExp)
	if !ok || re.Pattern() != "a+b" || re.Flags() != "gi" {
		t.Errorf("regexp literal = %v", re)
	}
	if _, err := in.Evaluate(r, "/a/gg"); err == nil {
		t.Errorf("repeated regexp flag accepted")
	}
	if v := evaluate(t, in, r, "12n"); v.Kind() != heap.KindBigInt {
		t.Errorf("bigint literal kind = %v", v.Kind())
	}
	if v := evaluate(t, in, r, "2147483648"); v.Kind() != heap.KindHeapNumber {
		t.Errorf("2^31 kind = %v, want heap-number", v.Kind())
	}
}

// ---------------------------------------------------------------------------
// Scripts
// ---------------------------------------------------------------------------

func TestRunGlobalsAndClosures(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		let counter = makeCounter()
		function makeCounter() {
			let n = 0
			return function next() { n += 1; return n }
		}
	`)

	if got := r.GlobalNames(); strings.Join(got, ",") != "makeCounter,counter" {
		t.Errorf("globals = %v, want hoisted function first", got)
	}
	for want := 1; want <= 3; want++ {
		if got := evaluate(t, in, r, "counter()"); !heap.StrictEquals(got, heap.Smi(want)) {
			t.Errorf("counter() = %s, want %d", heap.Describe(got), want)
		}
	}

	fn := evaluate(t, in, r, "counter").(*heap.Function)
	ctx := fn.Context()
	if ctx == nil || ctx.Type() != heap.FunctionContext {
		t.Fatalf("closure context = %v", ctx)
	}
	if v, ok := ctx.Lookup("n"); !ok || !heap.StrictEquals(v, heap.Smi(3)) {
		t.Errorf("captured n = %v", v)
	}
	if fn.SourceText() != "function next() { n += 1; return n }" {
		t.Errorf("SourceText = %q", fn.SourceText())
	}
}

func TestBlockContexts(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		function outer() { let x = 1; let out = null; { let tag = 'blk'; function inner(a) { return x + a } out = inner } return out }
		let f = outer()
	`)

	f := evaluate(t, in, r, "f").(*heap.Function)
	block := f.Context()
	if block.Type() != heap.BlockContext || block.Len() != 2 || block.Name(0) != "tag" || block.Name(1) != "inner" {
		t.Fatalf("block context = %v %d", block.Type(), block.Len())
	}
	parent := block.Parent()
	if parent == nil || parent.Type() != heap.FunctionContext || parent.IndexOf("x") < 0 {
		t.Fatalf("parent context = %v", parent)
	}
	if parent.Parent() != nil {
		t.Errorf("top-level function context has a parent")
	}
	if got := evaluate(t, in, r, "f(2)"); !heap.StrictEquals(got, heap.Smi(3)) {
		t.Errorf("f(2) = %s", heap.Describe(got))
	}
}

func TestRunControlFlow(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2) }
		let i = 0
		let sum = 0
		while (i < 10) { sum += i; i += 1 }
		let f10 = fib(10)
		let sign = -1
		if (sum > 40) { sign = 1 } else { sign = 0 }
	`)
	for name, want := range map[string]heap.Value{
		"sum": heap.Smi(45), "f10": heap.Smi(55), "sign": heap.Smi(1), "i": heap.Smi(10),
	} {
		if got, _ := r.Global(name); !heap.StrictEquals(got, want) {
			t.Errorf("%s = %s, want %s", name, heap.Describe(got), heap.Describe(want))
		}
	}
}

func TestClasses(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		class Point {
			constructor(x, y) { this.x = x; this.y = y }
			norm() { return this.x * this.x + this.y * this.y }
		}
		class Empty {}
		let p = new Point(3, 4)
	`)

	if got := evaluate(t, in, r, "p.norm()"); !heap.StrictEquals(got, heap.Smi(25)) {
		t.Errorf("p.norm() = %s", heap.Describe(got))
	}
	if got := evaluate(t, in, r, "Point.prototype.constructor === Point"); got != heap.True {
		t.Errorf("constructor back-reference missing")
	}
	if got := evaluate(t, in, r, "Object.keys(p).join()"); !heap.StrictEquals(got, heap.String("x,y")) {
		t.Errorf("Object.keys(p) = %s", heap.Describe(got))
	}
	if got := evaluate(t, in, r, "Object.keys(Point.prototype).length"); !heap.StrictEquals(got, heap.Smi(0)) {
		t.Errorf("methods are enumerable: %s", heap.Describe(got))
	}

	point, _ := r.Global("Point")
	if fn := point.(*heap.Function); fn.FunctionKind() != heap.BaseConstructor || fn.ParamCount() != 2 {
		t.Errorf("Point = %v/%d", fn.FunctionKind(), fn.ParamCount())
	}
	empty, _ := r.Global("Empty")
	if fn := empty.(*heap.Function); fn.FunctionKind() != heap.DefaultBaseConstructor {
		t.Errorf("Empty kind = %v", fn.FunctionKind())
	}
	if _, ok := evaluate(t, in, r, "new Empty()").(*heap.Object); !ok {
		t.Errorf("new Empty() is not an object")
	}

	_, err := in.Evaluate(r, "Point(1, 2)")
	var re *RuntimeError
	if !errors.As(err, &re) || re.Kind != "TypeError" || !strings.Contains(re.Msg, "without 'new'") {
		t.Errorf("calling a class = %v", err)
	}
}

func TestConstructorFunctions(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		function Animal(name) { this.name = name }
		Animal.prototype.speak = function () { return this.name + ' speaks' }
		let a = new Animal('cat')
	`)
	if got := evaluate(t, in, r, "a.speak()"); !heap.StrictEquals(got, heap.String("cat speaks")) {
		t.Errorf("a.speak() = %s", heap.Describe(got))
	}

	fn := evaluate(t, in, r, "Animal").(*heap.Function)
	if _, ok := fn.InstancePrototype(); !ok {
		t.Errorf("new did not materialize the instance prototype")
	}
}

func TestObjectBuiltins(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, `
		let base = { greet() { return 'hi ' + this.who } }
		let o = Object.create(base)
		o.who = 'there'
		Object.defineProperty(o, 'fixed', { value: 1, enumerable: true })
		let bare = Object.create(null)
		let moved = Object.setPrototypeOf({}, base)
		let removed = { a: 1, b: 2 }
		delete removed.b
	`)
	if got := evaluate(t, in, r, "o.greet()"); !heap.StrictEquals(got, heap.String("hi there")) {
		t.Errorf("o.greet() = %s", heap.Describe(got))
	}
	if got := evaluate(t, in, r, "Object.getPrototypeOf(moved) === base"); got != heap.True {
		t.Errorf("setPrototypeOf did not take")
	}
	if got := evaluate(t, in, r, "Object.keys(removed).join()"); !heap.StrictEquals(got, heap.String("a")) {
		t.Errorf("delete left keys %s", heap.Describe(got))
	}

	o, _ := r.Global("o")
	obj := o.(*heap.Object)
	p, _ := obj.PropertyAt(obj.Shape().IndexOf("fixed"))
	if !p.Attributes.IsReadOnly() || !p.Attributes.IsEnumerable() || p.Attributes.IsConfigurable() {
		t.Errorf("fixed attributes = %v", p.Attributes)
	}
	bare, _ := r.Global("bare")
	if bare.(*heap.Object).Prototype() != heap.Null {
		t.Errorf("Object.create(null) prototype = %v", bare.(*heap.Object).Prototype())
	}
	for _, name := range r.GlobalNames() {
		if name == "Object" || name == "print" {
			t.Errorf("builtin %s leaked into globals", name)
		}
	}
}

func TestPrint(t *testing.T) {
	in, out := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, "print('a', 1, [1, 2], {}, null, 2.5)")
	if got, want := out.String(), "a 1 1,2 [object Object] null 2.5\n"; got != want {
		t.Errorf("print output = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind string
		msg  string
	}{
		{"missing + 1", "ReferenceError", "missing is not defined"},
		{"null.x", "TypeError", "Cannot read properties of null"},
		{"let o = {}; o.f()", "TypeError", "is not a function"},
		{"let o = {}; Object.defineProperty(o, 'k', { value: 1 }); o.k = 2", "TypeError", "Cannot assign"},
		{"async function a() {} a()", "TypeError", "async-function"},
		{"let x = 12n + 1", "TypeError", "BigInt"},
		{"let a = () => 1; new a()", "TypeError", "is not a constructor"},
		{"function r() { return r() } r()", "RangeError", "call stack"},
		{"while (true) {}", "RangeError", "step limit"},
		{"let f = function () {}; f.extra = 1", "TypeError", "Cannot add property"},
		{"let c = class {}; c.prototype = {}", "TypeError", "prototype"},
	}

	for _, tc := range tests {
		in, _ := newTestInterpreter()
		in.MaxSteps = 10000
		err := in.Run(heap.NewRealm(), "err.js", tc.src)
		var re *RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("Run(%q) error = %v, want *RuntimeError", tc.src, err)
			continue
		}
		if re.Kind != tc.kind || !strings.Contains(re.Error(), tc.msg) {
			t.Errorf("Run(%q) = %v, want %s containing %q", tc.src, re, tc.kind, tc.msg)
		}
	}

	in, _ := newTestInterpreter()
	var se *SyntaxError
	if err := in.Run(heap.NewRealm(), "bad.js", "let = 1"); !errors.As(err, &se) {
		t.Errorf("syntax error = %v, want *SyntaxError", err)
	}
	if _, err := in.Evaluate(heap.NewRealm(), "1; 2"); !errors.As(err, &se) {
		t.Errorf("statement in Evaluate = %v, want *SyntaxError", err)
	}
}

func TestOutOfMemory(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm(heap.WithMaxObjects(64))
	err := in.Run(r, "oom.js", "let xs = []; while (true) { xs.push({}) }")
	if !errors.Is(err, heap.ErrOutOfMemory) {
		t.Errorf("Run = %v, want ErrOutOfMemory", err)
	}
}

// ---------------------------------------------------------------------------
// Functions created outside the interpreter
// ---------------------------------------------------------------------------

func TestReparseFunction(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	src := "/* header */ (a) => a * k; function mk() { return function (b) { return b + k } }"
	script := &heap.Script{Name: "lib.js", Source: src}

	ctx, err := r.NewContext(heap.FunctionContext, nil, []string{"k"})
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	ctx.SetAt(0, heap.Smi(10))

	arrowStart := strings.Index(src, "(a)")
	arrow, err := r.NewFunction(heap.FunctionInfo{
		Kind: heap.ArrowFunction, Script: script, Start: arrowStart,
		End: strings.Index(src, ";"), ParamCount: 1, Context: ctx,
	})
	if err != nil {
		t.Fatalf("NewFunction failed: %v", err)
	}
	mkStart := strings.Index(src, "function mk")
	mk, err := r.NewFunction(heap.FunctionInfo{
		Kind: heap.NormalFunction, Name: "mk", Script: script, Start: mkStart,
		End: len(src), Context: ctx,
	})
	if err != nil {
		t.Fatalf("NewFunction failed: %v", err)
	}
	r.SetGlobal("times", arrow)
	r.SetGlobal("mk", mk)

	if got := evaluate(t, in, r, "times(4)"); !heap.StrictEquals(got, heap.Smi(40)) {
		t.Errorf("times(4) = %s", heap.Describe(got))
	}
	inner := evaluate(t, in, r, "mk()").(*heap.Function)
	if inner.Script() != script {
		t.Errorf("nested function lost its script")
	}
	if got, want := inner.Start(), strings.Index(src, "function (b)"); got != want {
		t.Errorf("nested function starts at %d, want %d", got, want)
	}
	if got := inner.SourceText(); got != "function (b) { return b + k }" {
		t.Errorf("nested SourceText = %q", got)
	}
	r.SetGlobal("inner", inner)
	if got := evaluate(t, in, r, "inner(5)"); !heap.StrictEquals(got, heap.Smi(15)) {
		t.Errorf("inner(5) = %s", heap.Describe(got))
	}

	// A fresh interpreter has no cached bodies and reparses.
	fresh, _ := newTestInterpreter()
	if got := evaluate(t, fresh, r, "inner(1)"); !heap.StrictEquals(got, heap.Smi(11)) {
		t.Errorf("fresh inner(1) = %s", heap.Describe(got))
	}
	fresh.Release(r)

	broken, _ := r.NewFunction(heap.FunctionInfo{
		Kind: heap.ArrowFunction, Script: script, Start: 0, End: 12,
	})
	r.SetGlobal("broken", broken)
	_, err = in.Evaluate(r, "broken()")
	var re *RuntimeError
	if !errors.As(err, &re) || re.Kind != "SyntaxError" {
		t.Errorf("calling a function with bad source = %v", err)
	}
}
