package heap

import (
	"errors"
	"fmt"
)

// ElementsKind describes how an array stores its elements. Kinds only ever
// generalize: a packed array that gets a hole stays holey even after the
// hole is filled.
type ElementsKind uint8

const (
	PackedSmiElements ElementsKind = iota
	PackedElements
	HoleySmiElements
	HoleyElements
	DictionaryElements
)

var elementsKindNames = [...]string{
	PackedSmiElements:  "packed-smi",
	PackedElements:     "packed",
	HoleySmiElements:   "holey-smi",
	HoleyElements:      "holey",
	DictionaryElements: "dictionary",
}

func (k ElementsKind) String() string {
	if int(k) < len(elementsKindNames) {
		return elementsKindNames[k]
	}
	return fmt.Sprintf("elements(%d)", k)
}

// IsPacked reports whether the kind has no holes.
func (k ElementsKind) IsPacked() bool {
	return k == PackedSmiElements || k == PackedElements
}

// maxElementGap is the largest jump past the end of an array that still
// keeps flat storage.
const maxElementGap = 1024

// MaxArrayLength bounds array lengths.
const MaxArrayLength = 1<<31 - 1

var ErrInvalidArrayIndex = errors.New("invalid array index")

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is an indexed collection. Flat storage uses nil for holes; sparse
// arrays keep their elements in a map.
type Array struct {
	realm  *Realm
	kind   ElementsKind
	elems  []Value
	sparse map[int]Value
	length int
}

func (*Array) Kind() Kind { return KindArray }

// NewArray allocates an array of the given length. A non-zero length
// produces a holey array.
func (r *Realm) NewArray(length int) (*Array, error) {
	if length < 0 || length > MaxArrayLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidArrayIndex, length)
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	a := &Array{realm: r, kind: PackedSmiElements, length: length}
	if length == 0 {
		return a, nil
	}
	a.kind = HoleySmiElements
	if length > maxElementGap {
		a.kind = DictionaryElements
		a.sparse = make(map[int]Value)
		return a, nil
	}
	a.elems = make([]Value, length)
	return a, nil
}

// NewArrayFromElements allocates an array holding elems. Nil entries are
// holes.
func (r *Realm) NewArrayFromElements(elems []Value) (*Array, error) {
	if err := r.allocate(); err != nil {
		return nil, err
	}
	a := &Array{realm: r, kind: PackedSmiElements, length: len(elems)}
	a.elems = make([]Value, len(elems))
	copy(a.elems, elems)
	for _, v := range elems {
		a.generalize(v)
	}
	return a, nil
}

// ElementsKind returns the storage kind.
func (a *Array) ElementsKind() ElementsKind { return a.kind }

// Len returns the array length.
func (a *Array) Len() int { return a.length }

// At returns element i. Holes and out-of-range indices read as Undefined.
func (a *Array) At(i int) Value {
	if i < 0 || i >= a.length {
		return Undefined
	}
	if a.sparse != nil {
		if v, ok := a.sparse[i]; ok {
			return v
		}
		return Undefined
	}
	if v := a.elems[i]; v != nil {
		return v
	}
	return Undefined
}

// SetAt stores v at index i, growing the array if needed. Writing far past
// the end switches the array to dictionary elements.
func (a *Array) SetAt(i int, v Value) error {
	if i < 0 || i >= MaxArrayLength {
		return fmt.Errorf("%w: %d", ErrInvalidArrayIndex, i)
	}
	if v == nil {
		v = Undefined
	}
	if a.sparse == nil && i > a.length+maxElementGap {
		a.toDictionary()
	}
	if a.sparse != nil {
		a.sparse[i] = v
		if i >= a.length {
			a.length = i + 1
		}
		return nil
	}
	if i > a.length {
		a.makeHoley()
	}
	for len(a.elems) <= i {
		a.elems = append(a.elems, nil)
	}
	a.elems[i] = v
	if i >= a.length {
		a.length = i + 1
	}
	a.generalize(v)
	return nil
}

// Push appends v.
func (a *Array) Push(v Value) error {
	return a.SetAt(a.length, v)
}

// Elements returns a copy of the elements with holes read as Undefined.
func (a *Array) Elements() []Value {
	out := make([]Value, a.length)
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// HasHole reports whether index i is a hole.
func (a *Array) HasHole(i int) bool {
	if i < 0 || i >= a.length {
		return false
	}
	if a.sparse != nil {
		_, ok := a.sparse[i]
		return !ok
	}
	return a.elems[i] == nil
}

func (a *Array) generalize(v Value) {
	switch {
	case v == nil:
		a.makeHoley()
	case v.Kind() != KindSmi:
		switch a.kind {
		case PackedSmiElements:
			a.kind = PackedElements
		case HoleySmiElements:
			a.kind = HoleyElements
		}
	}
}

func (a *Array) makeHoley() {
	switch a.kind {
	case PackedSmiElements:
		a.kind = HoleySmiElements
	case PackedElements:
		a.kind = HoleyElements
	}
}

func (a *Array) toDictionary() {
	a.sparse = make(map[int]Value, len(a.elems))
	for i, v := range a.elems {
		if v != nil {
			a.sparse[i] = v
		}
	}
	a.elems = nil
	a.kind = DictionaryElements
}
