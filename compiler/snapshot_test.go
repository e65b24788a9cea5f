package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/heapsnap/heap"
	"github.com/chazu/heapsnap/snapshot"
)

const appScript = `
function makeCounter() {
	let n = 0
	return function next() { n += 1; return n }
}
class Point {
	constructor(x, y) { this.x = x; this.y = y }
	norm() { return this.x * this.x + this.y * this.y }
}
let counter = makeCounter()
counter()
let data = { counter: counter, origin: new Point(3, 4), re: /a+b/gi, list: [1, 2.5, 'x'] }
`

// ---------------------------------------------------------------------------
// Snapshot round trips
// ---------------------------------------------------------------------------

func TestSnapshotRoundTrip(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, appScript)

	data, err := snapshot.NewSerializer(r, snapshot.WithEvaluator(in)).TakeSnapshot([]string{"data"})
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}

	in2, _ := newTestInterpreter()
	r2 := heap.NewRealm()
	d := snapshot.NewDeserializer(r2, snapshot.WithEvaluator(in2))
	defer d.Close()
	if err := d.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	tests := []struct {
		expr string
		want heap.Value
	}{
		{"data.counter()", heap.Smi(2)},
		{"data.counter()", heap.Smi(3)},
		{"data.origin.norm()", heap.Smi(25)},
		{"data.re.test('xAAB')", heap.True},
		{"data.re.flags", heap.String("gi")},
		{"data.list.join()", heap.String("1,2.5,x")},
		{"new data.origin.constructor(1, 2).norm()", heap.Smi(5)},
		{"data.origin.constructor.prototype === Object.getPrototypeOf(data.origin)", heap.True},
	}
	for _, tc := range tests {
		got, err := in2.Evaluate(r2, tc.expr)
		if err != nil {
			t.Errorf("Evaluate(%q) failed: %v", tc.expr, err)
			continue
		}
		if !heap.StrictEquals(got, tc.want) {
			t.Errorf("Evaluate(%q) = %s, want %s", tc.expr, heap.Describe(got), heap.Describe(tc.want))
		}
	}

	// The original closure state is untouched by calls in the copy.
	if got := evaluate(t, in, r, "counter()"); !heap.StrictEquals(got, heap.Smi(2)) {
		t.Errorf("original counter() = %s, want 2", heap.Describe(got))
	}
}

func TestSnapshotTrailingProgram(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, appScript)
	data, err := snapshot.NewSerializer(r, snapshot.WithEvaluator(in)).TakeSnapshot([]string{"data"})
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}

	program := "print(data.counter(), data.origin.norm())\nlet restored = true"
	in2, out := newTestInterpreter()
	r2 := heap.NewRealm()
	d := snapshot.NewDeserializer(r2, snapshot.WithEvaluator(in2))
	if err := d.Deserialize(append(data, program...)); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got := out.String(); got != "2 25\n" {
		t.Errorf("trailing program printed %q", got)
	}
	if v, ok := r2.Global("restored"); !ok || v != heap.True {
		t.Errorf("trailing program did not run to completion")
	}
}

func TestSnapshotTrailingProgramSyntaxError(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, "let data = { a: 1 }")
	data, err := snapshot.NewSerializer(r, snapshot.WithEvaluator(in)).TakeSnapshot([]string{"data"})
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}

	r2 := heap.NewRealm()
	d := snapshot.NewDeserializer(r2, snapshot.WithEvaluator(in))
	err = d.Deserialize(append(data, "let = ;"...))
	if err == nil {
		t.Fatalf("Deserialize accepted a broken trailing program")
	}
	if !strings.Contains(err.Error(), "Trailing program failed") {
		t.Errorf("error = %v", err)
	}
	if d.State() != snapshot.StateFailed {
		t.Errorf("state = %v, want failed", d.State())
	}
}

func TestSnapshotExportExpressions(t *testing.T) {
	in, _ := newTestInterpreter()
	r := heap.NewRealm()
	run(t, in, r, appScript)

	s := snapshot.NewSerializer(r, snapshot.WithEvaluator(in))
	data, err := s.TakeSnapshot([]string{"data.origin", "", "counter"})
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}

	in2, _ := newTestInterpreter()
	r2 := heap.NewRealm()
	d := snapshot.NewDeserializer(r2, snapshot.WithEvaluator(in2))
	if err := d.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	var names []string
	for _, e := range d.Exports() {
		names = append(names, e.Name)
	}
	if strings.Join(names, ";") != "data.origin;counter" {
		t.Errorf("exports = %v", names)
	}
	if got := evaluate(t, in2, r2, "counter()"); !heap.StrictEquals(got, heap.Smi(2)) {
		t.Errorf("counter() = %s", heap.Describe(got))
	}

	if _, err := snapshot.NewSerializer(r, snapshot.WithEvaluator(in)).TakeSnapshot([]string{"nope"}); err == nil {
		t.Errorf("TakeSnapshot of an undefined name succeeded")
	}
}
