package compiler

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/chazu/heapsnap/heap"
)

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func isObjectLike(v heap.Value) bool {
	switch v.(type) {
	case *heap.Object, *heap.Array, *heap.Function, *heap.RegExp, *heap.Wrapper:
		return true
	}
	return false
}

func truthy(v heap.Value) bool {
	switch x := v.(type) {
	case heap.Boolean:
		return bool(x)
	case heap.Smi:
		return x != 0
	case heap.Number:
		f := float64(x)
		return f != 0 && !math.IsNaN(f)
	case heap.String:
		return x != ""
	case *heap.BigInt:
		return x.String() != "0n"
	}
	return v.Kind() != heap.KindUndefined && v.Kind() != heap.KindNull
}

func typeOf(v heap.Value) string {
	switch v.Kind() {
	case heap.KindUndefined:
		return "undefined"
	case heap.KindBoolean:
		return "boolean"
	case heap.KindSmi, heap.KindHeapNumber:
		return "number"
	case heap.KindString:
		return "string"
	case heap.KindBigInt:
		return "bigint"
	case heap.KindFunction, heap.KindClass:
		return "function"
	}
	return "object"
}

// toPrimitive unwraps wrappers and renders other objects as strings.
func toPrimitive(v heap.Value) heap.Value {
	switch x := v.(type) {
	case *heap.Wrapper:
		return x.Value()
	case *heap.Object, *heap.Array, *heap.Function, *heap.RegExp:
		return heap.String(toString(x))
	}
	return v
}

func toNumber(v heap.Value) float64 {
	switch x := v.(type) {
	case heap.Smi:
		return float64(x)
	case heap.Number:
		return float64(x)
	case heap.Boolean:
		if x {
			return 1
		}
		return 0
	case heap.String:
		return stringToNumber(string(x))
	case *heap.Wrapper:
		return toNumber(x.Value())
	case *heap.Array:
		return stringToNumber(toString(x))
	}
	if v.Kind() == heap.KindNull {
		return 0
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789+-.eE", c) {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeError(err) {
		return math.NaN()
	}
	return f
}

func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if a := math.Abs(f); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Go writes e-07 and e+21; scripts expect e-7 and e+21.
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i], s[i+1:]
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		s = mant + "e" + sign + exp
	}
	return s
}

func toString(v heap.Value) string {
	switch x := v.(type) {
	case heap.String:
		return string(x)
	case heap.Smi:
		return strconv.Itoa(int(x))
	case heap.Number:
		return numberToString(float64(x))
	case heap.Boolean:
		return strconv.FormatBool(bool(x))
	case *heap.BigInt:
		return strings.TrimSuffix(x.String(), "n")
	case *heap.Array:
		parts := make([]string, x.Len())
		for i := range parts {
			el := x.At(i)
			if el.Kind() != heap.KindUndefined && el.Kind() != heap.KindNull {
				parts[i] = toString(el)
			}
		}
		return strings.Join(parts, ",")
	case *heap.Function:
		if x.Script() == nil {
			return "function " + x.Name() + "() { [native code] }"
		}
		return x.SourceText()
	case *heap.RegExp:
		return "/" + x.Pattern() + "/" + x.Flags()
	case *heap.Wrapper:
		return toString(x.Value())
	case *heap.Object:
		return "[object Object]"
	}
	return v.Kind().String()
}

// arrayIndex reports whether key names an array element.
func arrayIndex(key heap.Value) (int, bool) {
	switch k := key.(type) {
	case heap.Smi:
		return int(k), k >= 0
	case heap.String:
		n, err := strconv.Atoi(string(k))
		if err != nil || n < 0 || strconv.Itoa(n) != string(k) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

func (ex *execution) getProperty(obj, key heap.Value) (heap.Value, error) {
	name := toString(key)
	switch o := obj.(type) {
	case *heap.Object:
		return o.Get(name), nil
	case *heap.Array:
		if i, ok := arrayIndex(key); ok {
			return o.At(i), nil
		}
		if name == "length" {
			return heap.Smi(o.Len()), nil
		}
		return ex.method("Array", name), nil
	case *heap.Function:
		switch name {
		case "prototype":
			v, err := o.PrototypeValue()
			if err != nil {
				return nil, wrapHeap("cannot read prototype", err)
			}
			return v, nil
		case "name":
			return heap.String(o.Name()), nil
		case "length":
			return heap.Smi(o.ParamCount()), nil
		}
		return heap.Undefined, nil
	case *heap.RegExp:
		switch name {
		case "source":
			return heap.String(o.Pattern()), nil
		case "flags":
			return heap.String(o.Flags()), nil
		}
		return ex.method("RegExp", name), nil
	case heap.String:
		units := utf16.Encode([]rune(string(o)))
		if i, ok := arrayIndex(key); ok {
			if i >= len(units) {
				return heap.Undefined, nil
			}
			return heap.String(string(utf16.Decode(units[i : i+1]))), nil
		}
		if name == "length" {
			return heap.Smi(len(units)), nil
		}
		return heap.Undefined, nil
	case *heap.Wrapper:
		return ex.getProperty(o.Value(), key)
	}
	if k := obj.Kind(); k == heap.KindUndefined || k == heap.KindNull {
		return nil, throwf("TypeError", "Cannot read properties of %s (reading '%s')", k, name)
	}
	return heap.Undefined, nil
}

func (ex *execution) setProperty(obj, key, v heap.Value) error {
	name := toString(key)
	switch o := obj.(type) {
	case *heap.Object:
		if err := o.Set(name, v); err != nil {
			return wrapHeap("Cannot assign to property '"+name+"'", err)
		}
		return nil
	case *heap.Array:
		if i, ok := arrayIndex(key); ok {
			if err := o.SetAt(i, v); err != nil {
				return throwf("RangeError", "%v", err)
			}
			return nil
		}
		return throwf("TypeError", "Cannot add property %s to an array", name)
	case *heap.Function:
		if name == "prototype" {
			if err := o.SetPrototype(v); err != nil {
				return wrapHeap("Cannot assign to prototype of "+heap.Describe(o), err)
			}
			return nil
		}
		return throwf("TypeError", "Cannot add property %s to a function", name)
	}
	return throwf("TypeError", "Cannot set properties of %s (setting '%s')", heap.Describe(obj), name)
}

func (ex *execution) deleteProperty(obj, key heap.Value) (heap.Value, error) {
	name := toString(key)
	switch o := obj.(type) {
	case *heap.Object:
		if err := o.Delete(name); err != nil {
			return nil, wrapHeap("Cannot delete property '"+name+"'", err)
		}
		return heap.True, nil
	case *heap.Array, *heap.Function:
		return nil, throwf("TypeError", "Cannot delete property '%s' of %s", name, heap.Describe(o))
	}
	if k := obj.Kind(); k == heap.KindUndefined || k == heap.KindNull {
		return nil, throwf("TypeError", "Cannot convert %s to object", k)
	}
	return heap.True, nil
}
