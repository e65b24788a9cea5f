package heap

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindSmi        // integer small enough to live in a tagged slot (int32)
	KindHeapNumber // boxed float64
	KindString
	KindBigInt
	KindObject
	KindArray
	KindFunction
	KindClass // function whose kind is a class constructor
	KindRegExp
	KindWrapper // primitive wrapper box (new Number(1), Object("s"), ...)
)

var kindNames = [...]string{
	KindUndefined:  "undefined",
	KindNull:       "null",
	KindBoolean:    "boolean",
	KindSmi:        "smi",
	KindHeapNumber: "heap-number",
	KindString:     "string",
	KindBigInt:     "bigint",
	KindObject:     "object",
	KindArray:      "array",
	KindFunction:   "function",
	KindClass:      "class",
	KindRegExp:     "regexp",
	KindWrapper:    "wrapper",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is anything that can be stored in a property, element, context slot
// or global binding.
//
// Primitives are Go value types (Boolean, Smi, Number, String) or the
// Undefined and Null singletons. Heap records are pointers (*Object, *Array,
// *Function, *RegExp, *Wrapper, *BigInt) and compare by identity.
type Value interface {
	Kind() Kind
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

type undefinedValue struct{}

func (undefinedValue) Kind() Kind     { return KindUndefined }
func (undefinedValue) String() string { return "undefined" }

type nullValue struct{}

func (nullValue) Kind() Kind     { return KindNull }
func (nullValue) String() string { return "null" }

// Pre-defined oddballs.
var (
	Undefined Value = undefinedValue{}
	Null      Value = nullValue{}
)

// Boolean is a true/false oddball.
type Boolean bool

const (
	True  Boolean = true
	False Boolean = false
)

func (Boolean) Kind() Kind { return KindBoolean }

func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

// Smi is a small integer.
type Smi int32

func (Smi) Kind() Kind { return KindSmi }

func (s Smi) String() string { return strconv.Itoa(int(s)) }

// Number is a double that does not fit a Smi (fractional, out of int32
// range, -0, NaN or an infinity).
type Number float64

func (Number) Kind() Kind { return KindHeapNumber }

func (n Number) String() string {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// String is a string primitive.
type String string

func (String) Kind() Kind { return KindString }

// BigInt is an arbitrary precision integer. It is a heap record in the
// runtime but the snapshot format has no encoding for it.
type BigInt struct {
	v *big.Int
}

// NewBigInt parses a decimal or 0x-prefixed integer.
func NewBigInt(text string) (*BigInt, error) {
	v, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return nil, fmt.Errorf("invalid bigint literal %q", text)
	}
	return &BigInt{v: v}, nil
}

func (*BigInt) Kind() Kind { return KindBigInt }

func (b *BigInt) String() string { return b.v.String() + "n" }

// NumberValue returns the canonical representation of f: a Smi when f is an
// integral value inside int32 range (and not -0), a Number otherwise.
func NumberValue(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		if f == 0 && math.Signbit(f) {
			return Number(f)
		}
		return Smi(int32(f))
	}
	return Number(f)
}

// ToFloat returns the numeric value of a Smi or Number.
func ToFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Smi:
		return float64(n), true
	case Number:
		return float64(n), true
	}
	return 0, false
}

// IsPrimitive reports whether v is a primitive (not a heap record).
func IsPrimitive(v Value) bool {
	switch v.Kind() {
	case KindUndefined, KindNull, KindBoolean, KindSmi, KindHeapNumber, KindString:
		return true
	}
	return false
}

// StrictEquals compares two values the way === does: numbers by value,
// strings by content, heap records by identity.
func StrictEquals(a, b Value) bool {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}
	return a == b
}

// ToObject converts v to a heap object, boxing primitives in a Wrapper.
// Undefined and null cannot be converted.
func ToObject(r *Realm, v Value) (Value, error) {
	switch v.Kind() {
	case KindUndefined, KindNull:
		return nil, ErrNotObjectCoercible
	case KindBoolean, KindSmi, KindHeapNumber, KindString, KindBigInt:
		w, err := r.NewWrapper(v)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return v, nil
}

// Describe renders v for diagnostics and the CLI.
func Describe(v Value) string {
	switch x := v.(type) {
	case String:
		return strconv.Quote(string(x))
	case *Object:
		return fmt.Sprintf("[object %d props]", x.NumProperties())
	case *Array:
		return fmt.Sprintf("[array len=%d]", x.Len())
	case *Function:
		if x.Name() != "" {
			return fmt.Sprintf("[%s %s]", x.Kind(), x.Name())
		}
		return fmt.Sprintf("[%s]", x.Kind())
	case *RegExp:
		return "/" + x.Pattern() + "/" + x.Flags()
	case *Wrapper:
		return fmt.Sprintf("[wrapper %s]", Describe(x.Value()))
	case fmt.Stringer:
		return x.String()
	}
	return v.Kind().String()
}
