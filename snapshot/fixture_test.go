package snapshot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/heapsnap/heap"
)

const fixtureSource = "function outer() { let x = 1; { let tag = 'blk'; function inner(a) { return x + a } } return inner }\n" +
	"class Point { constructor(x, y) { this.x = x } }"

// fixture is a small graph covering every record kind: nested contexts,
// a closure with a materialized prototype, a class, an array, a regexp
// and an object that references itself.
type fixture struct {
	realm  *heap.Realm
	script *heap.Script
	outer  *heap.Context
	block  *heap.Context
	inner  *heap.Function
	point  *heap.Function
	array  *heap.Array
	re     *heap.RegExp
	obj    *heap.Object
}

func span(t testing.TB, src, text string) (int, int) {
	t.Helper()
	i := strings.Index(src, text)
	if i < 0 {
		t.Fatalf("%q not found in source", text)
	}
	return i, i + len(text)
}

// must unwraps a setup call.
func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("setup failed: %v", err))
	}
	return v
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	r := heap.NewRealm()
	f := &fixture{realm: r, script: &heap.Script{Name: "fixture.js", Source: fixtureSource}}

	f.outer = must(r.NewContext(heap.FunctionContext, nil, []string{"x"}))
	f.outer.SetAt(0, heap.Smi(1))
	f.block = must(r.NewContext(heap.BlockContext, f.outer, []string{"tag", "owner"}))
	f.block.SetAt(0, heap.String("blk"))

	start, end := span(t, fixtureSource, "function inner(a) { return x + a }")
	f.inner = must(r.NewFunction(heap.FunctionInfo{
		Kind: heap.NormalFunction, Name: "inner", Script: f.script,
		Start: start, End: end, ParamCount: 1, Context: f.block,
	}))
	if _, err := f.inner.Prototype(); err != nil {
		t.Fatalf("Prototype failed: %v", err)
	}

	start, end = span(t, fixtureSource, "class Point { constructor(x, y) { this.x = x } }")
	f.point = must(r.NewFunction(heap.FunctionInfo{
		Kind: heap.BaseConstructor, Name: "Point", Script: f.script,
		Start: start, End: end, ParamCount: 2,
	}))

	f.re = must(r.NewRegExp("a+b", "gi"))
	f.array = must(r.NewArrayFromElements([]heap.Value{
		heap.Smi(1), heap.Number(2.5), heap.String("s"), heap.Null, heap.True,
	}))

	f.obj = must(r.NewObject())
	for _, p := range []struct {
		name string
		v    heap.Value
	}{
		{"fn", f.inner}, {"re", f.re}, {"list", f.array}, {"self", f.obj}, {"cls", f.point},
	} {
		if err := f.obj.Set(p.name, p.v); err != nil {
			t.Fatalf("Set(%q) failed: %v", p.name, err)
		}
	}
	f.block.SetAt(1, f.obj)
	return f
}

func (f *fixture) roots() []Root {
	return []Root{{Name: "obj", Value: f.obj}, {Name: "Point", Value: f.point}}
}

func serialize(t testing.TB, r *heap.Realm, roots []Root, opts ...Option) []byte {
	t.Helper()
	data, err := NewSerializer(r, opts...).Serialize(roots)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	return data
}

// fakeEvaluator resolves export expressions from a fixed table and
// records trailing programs.
type fakeEvaluator struct {
	values map[string]heap.Value
	ran    []string
	seen   []string
	runErr error
}

func (e *fakeEvaluator) Evaluate(_ *heap.Realm, expr string) (heap.Value, error) {
	v, ok := e.values[expr]
	if !ok {
		return nil, fmt.Errorf("%s is not defined", expr)
	}
	return v, nil
}

func (e *fakeEvaluator) Run(r *heap.Realm, _ string, source string) error {
	e.ran = append(e.ran, source)
	e.seen = r.GlobalNames()
	return e.runErr
}

// buildSnapshot writes the magic, the string table and then every other
// field as a raw varint.
func buildSnapshot(strs []string, fields ...uint32) []byte {
	w := NewWriter()
	w.WriteRaw(Magic[:])
	w.WriteUint32(uint32(len(strs)))
	for _, s := range strs {
		w.WriteString(s)
	}
	for _, v := range fields {
		w.WriteUint32(v)
	}
	return w.Bytes()
}
