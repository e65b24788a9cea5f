package heap

import "fmt"

// Wrapper boxes a primitive in an object, as new Number(1) does.
type Wrapper struct {
	value Value
}

func (*Wrapper) Kind() Kind { return KindWrapper }

// NewWrapper boxes v, which must be a boolean, number, string or bigint.
func (r *Realm) NewWrapper(v Value) (*Wrapper, error) {
	switch v.Kind() {
	case KindBoolean, KindSmi, KindHeapNumber, KindString, KindBigInt:
	default:
		return nil, fmt.Errorf("cannot wrap %s", v.Kind())
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	return &Wrapper{value: v}, nil
}

// Value returns the boxed primitive.
func (w *Wrapper) Value() Value { return w.value }
