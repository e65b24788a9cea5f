package heap

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Heap Error Types
// ---------------------------------------------------------------------------

var (
	ErrOutOfMemory          = errors.New("out of memory")
	ErrNotObjectCoercible   = errors.New("cannot convert undefined or null to object")
	ErrDictionaryMode       = errors.New("object has too many properties for fast mode")
	ErrTooManyProperties    = errors.New("too many properties")
	ErrDuplicateProperty    = errors.New("duplicate property name")
	ErrReadOnly             = errors.New("property is read-only")
	ErrNotConfigurable      = errors.New("property is not configurable")
	ErrNoPrototypeSlot      = errors.New("function has no prototype slot")
	ErrNonInstancePrototype = errors.New("function has a non-instance prototype")
	ErrUnsupportedPrototype = errors.New("prototype must be an object or null")
	ErrPrototypeInUse       = errors.New("prototype object already belongs to another function")
	ErrInvalidRegExp        = errors.New("invalid regular expression")
	ErrInvalidSourceRange   = errors.New("function source range outside script")
	ErrDuplicateVariable    = errors.New("duplicate context variable")
)

// ErrAllocationInScope is the panic value raised when an allocation happens
// inside a NoAllocation scope. It indicates a bug in the caller.
var ErrAllocationInScope = errors.New("allocation inside no-allocation scope")

// DefaultMaxFastProperties is the number of properties an object may carry
// before it is forced into dictionary mode.
const DefaultMaxFastProperties = 1020

// ---------------------------------------------------------------------------
// Realm: one isolated heap with its global bindings
// ---------------------------------------------------------------------------

// Realm owns every record allocated through it, the default object
// prototype, the shape transition tree and the global bindings.
//
// A Realm is not safe for concurrent use.
type Realm struct {
	objectPrototype *Object

	globals     map[string]Value
	globalOrder []string

	// Root shapes of the transition tree, keyed by prototype.
	rootShapes map[Value]*Shape

	maxObjects        int
	maxFastProperties int
	allocated         int
	noAllocDepth      int

	hooks       map[int]func()
	nextHook    int
	collections int
}

// Option configures a Realm.
type Option func(*Realm)

// WithMaxObjects limits the number of records the realm may allocate.
// Zero means unlimited.
func WithMaxObjects(n int) Option {
	return func(r *Realm) { r.maxObjects = n }
}

// WithMaxFastProperties sets the fast-mode property limit.
func WithMaxFastProperties(n int) Option {
	return func(r *Realm) {
		if n > 0 {
			r.maxFastProperties = n
		}
	}
}

// NewRealm creates an empty realm with a fresh default object prototype.
func NewRealm(opts ...Option) *Realm {
	r := &Realm{
		globals:           make(map[string]Value),
		rootShapes:        make(map[Value]*Shape),
		maxFastProperties: DefaultMaxFastProperties,
		hooks:             make(map[int]func()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.objectPrototype = &Object{realm: r, shape: r.rootShape(Null)}
	return r
}

// ObjectPrototype returns the default prototype of plain objects.
func (r *Realm) ObjectPrototype() *Object {
	return r.objectPrototype
}

// MaxFastProperties returns the fast-mode property limit.
func (r *Realm) MaxFastProperties() int {
	return r.maxFastProperties
}

// Allocated returns the number of records allocated so far.
func (r *Realm) Allocated() int {
	return r.allocated
}

func (r *Realm) allocate() error {
	if r.noAllocDepth > 0 {
		panic(ErrAllocationInScope)
	}
	if r.maxObjects > 0 && r.allocated >= r.maxObjects {
		return fmt.Errorf("%w: limit of %d records reached", ErrOutOfMemory, r.maxObjects)
	}
	r.allocated++
	return nil
}

// NoAllocation opens a scope in which any allocation through this realm
// panics with ErrAllocationInScope. Call the returned function to close it.
// Scopes nest.
func (r *Realm) NoAllocation() (done func()) {
	r.noAllocDepth++
	closed := false
	return func() {
		if !closed {
			closed = true
			r.noAllocDepth--
		}
	}
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// Global returns the value bound to name.
func (r *Realm) Global(name string) (Value, bool) {
	v, ok := r.globals[name]
	return v, ok
}

// SetGlobal binds name to v, creating the binding if needed.
func (r *Realm) SetGlobal(name string, v Value) {
	if _, ok := r.globals[name]; !ok {
		r.globalOrder = append(r.globalOrder, name)
	}
	r.globals[name] = v
}

// DeleteGlobal removes a binding. It reports whether the binding existed.
func (r *Realm) DeleteGlobal(name string) bool {
	if _, ok := r.globals[name]; !ok {
		return false
	}
	delete(r.globals, name)
	for i, n := range r.globalOrder {
		if n == name {
			r.globalOrder = append(r.globalOrder[:i], r.globalOrder[i+1:]...)
			break
		}
	}
	return true
}

// GlobalNames returns the global binding names in creation order.
func (r *Realm) GlobalNames() []string {
	out := make([]string, len(r.globalOrder))
	copy(out, r.globalOrder)
	return out
}

// ---------------------------------------------------------------------------
// Collection hooks
// ---------------------------------------------------------------------------

// AddCollectionHook registers fn to run after every Collect. The returned
// function unregisters it; calling it more than once is harmless.
func (r *Realm) AddCollectionHook(fn func()) (remove func()) {
	id := r.nextHook
	r.nextHook++
	r.hooks[id] = fn
	return func() { delete(r.hooks, id) }
}

// Collect drops cached shape transitions and runs the collection hooks.
// Existing objects keep their shapes; objects created afterwards start a
// new transition tree.
func (r *Realm) Collect() {
	r.collections++
	r.rootShapes = make(map[Value]*Shape)
	for _, fn := range r.hooks {
		fn()
	}
}

// Collections returns how many times Collect has run.
func (r *Realm) Collections() int {
	return r.collections
}
