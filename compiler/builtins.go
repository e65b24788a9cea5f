package compiler

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/chazu/heapsnap/heap"
)

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// Builtins are resolved after the context chain and the realm globals.
// They are allocated in the realm on first lookup but never bound as
// globals, so they are not part of any snapshot.

type nativeSpec struct {
	name   string
	params int
	fn     native
}

var globalNatives = []nativeSpec{
	{"print", 1, nativePrint},
}

var objectNatives = []nativeSpec{
	{"create", 1, nativeObjectCreate},
	{"defineProperty", 3, nativeObjectDefineProperty},
	{"getPrototypeOf", 1, nativeObjectGetPrototypeOf},
	{"setPrototypeOf", 2, nativeObjectSetPrototypeOf},
	{"keys", 1, nativeObjectKeys},
}

// methodNatives are reached through property reads on values of the
// keyed kind.
var methodNatives = map[string][]nativeSpec{
	"Array": {
		{"push", 1, nativeArrayPush},
		{"join", 1, nativeArrayJoin},
	},
	"RegExp": {
		{"test", 1, nativeRegExpTest},
	},
}

func (ex *execution) builtin(name string) (heap.Value, bool) {
	if ex.state.builtins == nil {
		b, err := ex.installBuiltins()
		if err != nil {
			log.Errorf("cannot install builtins: %v", err)
			return nil, false
		}
		ex.state.builtins = b
	}
	v, ok := ex.state.builtins[name]
	return v, ok
}

// method returns a native method of a value kind, or Undefined.
func (ex *execution) method(group, name string) heap.Value {
	if v, ok := ex.builtin(group + "#" + name); ok {
		return v
	}
	return heap.Undefined
}

func (ex *execution) newNative(spec nativeSpec) (*heap.Function, error) {
	fn, err := ex.realm.NewFunction(heap.FunctionInfo{
		Kind:       heap.ConciseMethod,
		Name:       spec.name,
		ParamCount: spec.params,
	})
	if err != nil {
		return nil, err
	}
	ex.state.natives[fn] = spec.fn
	return fn, nil
}

func (ex *execution) installBuiltins() (map[string]heap.Value, error) {
	b := map[string]heap.Value{
		"NaN":      heap.Number(math.NaN()),
		"Infinity": heap.Number(math.Inf(1)),
	}
	for _, spec := range globalNatives {
		fn, err := ex.newNative(spec)
		if err != nil {
			return nil, err
		}
		b[spec.name] = fn
	}

	object, err := ex.realm.NewObject()
	if err != nil {
		return nil, err
	}
	for _, spec := range objectNatives {
		fn, err := ex.newNative(spec)
		if err != nil {
			return nil, err
		}
		if err := object.DefineProperty(spec.name, fn, heap.DontEnum); err != nil {
			return nil, err
		}
	}
	b["Object"] = object

	for group, specs := range methodNatives {
		for _, spec := range specs {
			fn, err := ex.newNative(spec)
			if err != nil {
				return nil, err
			}
			b[group+"#"+spec.name] = fn
		}
	}
	return b, nil
}

func arg(args []heap.Value, i int) heap.Value {
	if i < len(args) {
		return args[i]
	}
	return heap.Undefined
}

// ---------------------------------------------------------------------------
// Native implementations
// ---------------------------------------------------------------------------

func nativePrint(ex *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = toString(a)
	}
	out := ex.in.Out
	if out == nil {
		out = io.Discard
	}
	if _, err := fmt.Fprintln(out, strings.Join(parts, " ")); err != nil {
		return nil, &RuntimeError{Kind: "Error", Msg: "print failed", Err: err}
	}
	return heap.Undefined, nil
}

func nativeObjectCreate(ex *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	obj, err := ex.realm.NewObjectWithPrototype(arg(args, 0))
	if err != nil {
		return nil, wrapHeap("Object prototype may only be an Object or null", err)
	}
	return obj, nil
}

func nativeObjectDefineProperty(_ *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	obj, ok := arg(args, 0).(*heap.Object)
	if !ok {
		return nil, throwf("TypeError", "Object.defineProperty called on non-object")
	}
	desc, ok := arg(args, 2).(*heap.Object)
	if !ok {
		return nil, throwf("TypeError", "Property description must be an object")
	}
	var attrs heap.Attributes
	if !truthy(desc.Get("writable")) {
		attrs |= heap.ReadOnly
	}
	if !truthy(desc.Get("enumerable")) {
		attrs |= heap.DontEnum
	}
	if !truthy(desc.Get("configurable")) {
		attrs |= heap.DontDelete
	}
	name := toString(arg(args, 1))
	if err := obj.DefineProperty(name, desc.Get("value"), attrs); err != nil {
		return nil, wrapHeap("Cannot redefine property: "+name, err)
	}
	return obj, nil
}

func nativeObjectGetPrototypeOf(ex *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	switch o := arg(args, 0).(type) {
	case *heap.Object:
		return o.Prototype(), nil
	case *heap.Array, *heap.Function, *heap.RegExp, *heap.Wrapper:
		return ex.realm.ObjectPrototype(), nil
	}
	return nil, throwf("TypeError", "Object.getPrototypeOf called on non-object")
}

func nativeObjectSetPrototypeOf(_ *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	obj, ok := arg(args, 0).(*heap.Object)
	if !ok {
		return nil, throwf("TypeError", "Object.setPrototypeOf is only supported on plain objects")
	}
	if err := obj.SetPrototype(arg(args, 1)); err != nil {
		return nil, wrapHeap("Object prototype may only be an Object or null", err)
	}
	return obj, nil
}

func nativeObjectKeys(ex *execution, _ heap.Value, args []heap.Value) (heap.Value, error) {
	var keys []heap.Value
	switch o := arg(args, 0).(type) {
	case *heap.Object:
		for i := 0; i < o.NumProperties(); i++ {
			if p, _ := o.PropertyAt(i); p.Attributes.IsEnumerable() {
				keys = append(keys, heap.String(p.Name))
			}
		}
	case *heap.Array:
		for i := 0; i < o.Len(); i++ {
			if !o.HasHole(i) {
				keys = append(keys, heap.String(fmt.Sprint(i)))
			}
		}
	default:
		if k := o.Kind(); k == heap.KindUndefined || k == heap.KindNull {
			return nil, throwf("TypeError", "Cannot convert %s to object", k)
		}
	}
	arr, err := ex.realm.NewArrayFromElements(keys)
	if err != nil {
		return nil, wrapHeap("cannot allocate array", err)
	}
	return arr, nil
}

func nativeArrayPush(_ *execution, this heap.Value, args []heap.Value) (heap.Value, error) {
	arr, ok := this.(*heap.Array)
	if !ok {
		return nil, throwf("TypeError", "push called on non-array")
	}
	for _, a := range args {
		if err := arr.Push(a); err != nil {
			return nil, throwf("RangeError", "%v", err)
		}
	}
	return heap.Smi(arr.Len()), nil
}

func nativeArrayJoin(_ *execution, this heap.Value, args []heap.Value) (heap.Value, error) {
	arr, ok := this.(*heap.Array)
	if !ok {
		return nil, throwf("TypeError", "join called on non-array")
	}
	sep := ","
	if s := arg(args, 0); s.Kind() != heap.KindUndefined {
		sep = toString(s)
	}
	parts := make([]string, arr.Len())
	for i := range parts {
		el := arr.At(i)
		if el.Kind() != heap.KindUndefined && el.Kind() != heap.KindNull {
			parts[i] = toString(el)
		}
	}
	return heap.String(strings.Join(parts, sep)), nil
}

func nativeRegExpTest(_ *execution, this heap.Value, args []heap.Value) (heap.Value, error) {
	re, ok := this.(*heap.RegExp)
	if !ok {
		return nil, throwf("TypeError", "test called on non-regexp")
	}
	ok, err := re.MatchString(toString(arg(args, 0)))
	if err != nil {
		return nil, &RuntimeError{Kind: "Error", Msg: "regexp match failed", Err: err}
	}
	return heap.Boolean(ok), nil
}
