package heap

import (
	"errors"
	"math"
	"testing"
)

func TestNumberValue(t *testing.T) {
	tests := []struct {
		in   float64
		want Value
	}{
		{0, Smi(0)},
		{42, Smi(42)},
		{-7, Smi(-7)},
		{math.MaxInt32, Smi(math.MaxInt32)},
		{math.MaxInt32 + 1, Number(math.MaxInt32 + 1)},
		{1.5, Number(1.5)},
	}
	for _, tt := range tests {
		if got := NumberValue(tt.in); got != tt.want {
			t.Errorf("NumberValue(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
	negZero := math.Copysign(0, -1)
	if got, ok := NumberValue(negZero).(Number); !ok || !math.Signbit(float64(got)) {
		t.Errorf("NumberValue(-0) = %#v, want Number(-0)", NumberValue(negZero))
	}
}

func TestStrictEquals(t *testing.T) {
	r := NewRealm()
	o1, _ := r.NewObject()
	o2, _ := r.NewObject()
	if !StrictEquals(Smi(1), Number(1)) {
		t.Error("1 === 1.0 should hold")
	}
	if StrictEquals(Number(math.NaN()), Number(math.NaN())) {
		t.Error("NaN === NaN should not hold")
	}
	if !StrictEquals(String("a"), String("a")) {
		t.Error("string equality by content")
	}
	if StrictEquals(o1, o2) || !StrictEquals(o1, o1) {
		t.Error("objects compare by identity")
	}
}

func TestToObject(t *testing.T) {
	r := NewRealm()
	if _, err := ToObject(r, Null); !errors.Is(err, ErrNotObjectCoercible) {
		t.Errorf("ToObject(null) = %v, want ErrNotObjectCoercible", err)
	}
	v, err := ToObject(r, Smi(3))
	if err != nil {
		t.Fatalf("ToObject(3) failed: %v", err)
	}
	w, ok := v.(*Wrapper)
	if !ok || w.Value() != Smi(3) {
		t.Fatalf("ToObject(3) = %#v, want wrapper of 3", v)
	}
	o, _ := r.NewObject()
	if v, _ := ToObject(r, o); v != Value(o) {
		t.Error("ToObject on an object should return it unchanged")
	}
}

func TestGlobals(t *testing.T) {
	r := NewRealm()
	r.SetGlobal("b", Smi(1))
	r.SetGlobal("a", Smi(2))
	r.SetGlobal("b", Smi(3))
	if got := r.GlobalNames(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("GlobalNames() = %v, want [b a]", got)
	}
	if v, _ := r.Global("b"); v != Smi(3) {
		t.Errorf("Global(b) = %v, want 3", v)
	}
	if !r.DeleteGlobal("b") || r.DeleteGlobal("b") {
		t.Error("DeleteGlobal should report existence once")
	}
}

func TestAllocationLimit(t *testing.T) {
	r := NewRealm(WithMaxObjects(2))
	if _, err := r.NewObject(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NewArray(0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NewObject(); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("third allocation = %v, want ErrOutOfMemory", err)
	}
	if r.Allocated() != 2 {
		t.Errorf("Allocated() = %d, want 2", r.Allocated())
	}
}

func TestNoAllocationScope(t *testing.T) {
	r := NewRealm()
	done := r.NoAllocation()
	func() {
		defer func() {
			if rec := recover(); rec != ErrAllocationInScope {
				t.Errorf("recover() = %v, want ErrAllocationInScope", rec)
			}
		}()
		r.NewObject()
	}()
	done()
	done()
	if _, err := r.NewObject(); err != nil {
		t.Errorf("allocation after scope closed failed: %v", err)
	}
}

func TestCollectionHooks(t *testing.T) {
	r := NewRealm()
	calls := 0
	remove := r.AddCollectionHook(func() { calls++ })
	r.Collect()
	remove()
	r.Collect()
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
	if r.Collections() != 2 {
		t.Errorf("Collections() = %d, want 2", r.Collections())
	}
}

func TestContextChain(t *testing.T) {
	r := NewRealm()
	outer, err := r.NewContext(FunctionContext, nil, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	inner, err := r.NewContext(BlockContext, outer, []string{"c"})
	if err != nil {
		t.Fatal(err)
	}
	if !inner.Assign("a", Smi(5)) {
		t.Fatal("Assign(a) should find the outer binding")
	}
	if v, ok := inner.Lookup("a"); !ok || v != Smi(5) {
		t.Errorf("Lookup(a) = %v, %v", v, ok)
	}
	if _, ok := inner.Lookup("zz"); ok {
		t.Error("Lookup(zz) should fail")
	}
	if inner.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", inner.Depth())
	}
	if err := inner.Declare("c", Null); !errors.Is(err, ErrDuplicateVariable) {
		t.Errorf("Declare(c) = %v, want ErrDuplicateVariable", err)
	}
}

func TestRegExpFlags(t *testing.T) {
	r := NewRealm()
	re, err := r.NewRegExp("a+b", "gi")
	if err != nil {
		t.Fatalf("NewRegExp failed: %v", err)
	}
	if ok, _ := re.MatchString("xAAB"); !ok {
		t.Error("case-insensitive match expected")
	}
	for _, flags := range []string{"gg", "x", "iq"} {
		if _, err := r.NewRegExp("a", flags); !errors.Is(err, ErrInvalidRegExp) {
			t.Errorf("NewRegExp(a, %q) = %v, want ErrInvalidRegExp", flags, err)
		}
	}
	if _, err := r.NewRegExp("(", ""); !errors.Is(err, ErrInvalidRegExp) {
		t.Errorf("NewRegExp(\"(\") = %v, want ErrInvalidRegExp", err)
	}
}
