package heap

import "fmt"

// FunctionKind classifies a function the way the parser sees it.
type FunctionKind uint8

const (
	NormalFunction FunctionKind = iota
	ArrowFunction
	GeneratorFunction
	AsyncFunction
	AsyncArrowFunction
	AsyncGeneratorFunction
	ConciseMethod
	AsyncConciseMethod
	ConciseGeneratorMethod
	AsyncConciseGeneratorMethod
	StaticConciseMethod
	BaseConstructor
	DefaultBaseConstructor
	DerivedConstructor
	DefaultDerivedConstructor
	GetterFunction
	SetterFunction
)

var functionKindNames = [...]string{
	NormalFunction:              "function",
	ArrowFunction:               "arrow",
	GeneratorFunction:           "generator",
	AsyncFunction:               "async-function",
	AsyncArrowFunction:          "async-arrow",
	AsyncGeneratorFunction:      "async-generator",
	ConciseMethod:               "method",
	AsyncConciseMethod:          "async-method",
	ConciseGeneratorMethod:      "generator-method",
	AsyncConciseGeneratorMethod: "async-generator-method",
	StaticConciseMethod:         "static-method",
	BaseConstructor:             "class",
	DefaultBaseConstructor:      "default-class",
	DerivedConstructor:          "derived-class",
	DefaultDerivedConstructor:   "default-derived-class",
	GetterFunction:              "getter",
	SetterFunction:              "setter",
}

func (k FunctionKind) String() string {
	if int(k) < len(functionKindNames) {
		return functionKindNames[k]
	}
	return fmt.Sprintf("function-kind(%d)", k)
}

// IsClassConstructor reports whether k is one of the class constructor
// kinds.
func (k FunctionKind) IsClassConstructor() bool {
	switch k {
	case BaseConstructor, DefaultBaseConstructor, DerivedConstructor, DefaultDerivedConstructor:
		return true
	}
	return false
}

// HasPrototypeSlot reports whether functions of kind k carry a
// "prototype" property.
func (k FunctionKind) HasPrototypeSlot() bool {
	switch k {
	case NormalFunction, GeneratorFunction, AsyncGeneratorFunction,
		ConciseGeneratorMethod, AsyncConciseGeneratorMethod:
		return true
	}
	return k.IsClassConstructor()
}

// Script is a unit of source text. Functions point into it by offset.
type Script struct {
	Name   string
	Source string
}

// FunctionInfo describes a function to allocate.
type FunctionInfo struct {
	Kind       FunctionKind
	Name       string
	Script     *Script
	Start      int // offset of the first character of the function text
	End        int // offset one past the last character
	ParamCount int
	Context    *Context
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Function is a closure: source location, kind and the context it closes
// over. Class constructors are functions whose Kind is KindClass.
type Function struct {
	realm *Realm
	info  FunctionInfo

	// prototype is nil until first materialized. An *Object is an instance
	// prototype, anything else a non-instance prototype.
	prototype Value
}

// NewFunction allocates a function. When Script is set, the source range
// must lie inside it. Class constructors get their instance prototype
// immediately.
func (r *Realm) NewFunction(info FunctionInfo) (*Function, error) {
	if s := info.Script; s != nil {
		if info.Start < 0 || info.End < info.Start || info.End > len(s.Source) {
			return nil, fmt.Errorf("%w: [%d, %d) in %d bytes", ErrInvalidSourceRange,
				info.Start, info.End, len(s.Source))
		}
	}
	if info.ParamCount < 0 {
		return nil, fmt.Errorf("negative parameter count %d", info.ParamCount)
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	f := &Function{realm: r, info: info}
	if info.Kind.IsClassConstructor() {
		if _, err := f.Prototype(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Function) Kind() Kind {
	if f.info.Kind.IsClassConstructor() {
		return KindClass
	}
	return KindFunction
}

func (f *Function) FunctionKind() FunctionKind { return f.info.Kind }
func (f *Function) Name() string               { return f.info.Name }
func (f *Function) Script() *Script            { return f.info.Script }
func (f *Function) Start() int                 { return f.info.Start }
func (f *Function) End() int                   { return f.info.End }
func (f *Function) ParamCount() int            { return f.info.ParamCount }
func (f *Function) Context() *Context          { return f.info.Context }

// SourceText returns the function's own source text.
func (f *Function) SourceText() string {
	if f.info.Script == nil {
		return ""
	}
	return f.info.Script.Source[f.info.Start:f.info.End]
}

// Prototype returns the instance prototype, creating it on first use with
// a non-enumerable constructor back-reference.
func (f *Function) Prototype() (*Object, error) {
	if !f.info.Kind.HasPrototypeSlot() {
		return nil, ErrNoPrototypeSlot
	}
	switch p := f.prototype.(type) {
	case *Object:
		return p, nil
	case nil:
	default:
		return nil, ErrNonInstancePrototype
	}
	proto, err := f.realm.NewObject()
	if err != nil {
		return nil, err
	}
	if err := proto.DefineProperty("constructor", f, DontEnum); err != nil {
		return nil, err
	}
	proto.owner = f
	f.prototype = proto
	return proto, nil
}

// PrototypeValue returns the prototype as seen by script code, creating
// an instance prototype if needed. Functions without a slot read
// Undefined.
func (f *Function) PrototypeValue() (Value, error) {
	if !f.info.Kind.HasPrototypeSlot() {
		return Undefined, nil
	}
	if f.prototype != nil {
		return f.prototype, nil
	}
	return f.Prototype()
}

// SetPrototype assigns the prototype property. Objects become the instance
// prototype; any other value leaves the function with a non-instance
// prototype.
func (f *Function) SetPrototype(v Value) error {
	if !f.info.Kind.HasPrototypeSlot() {
		return ErrNoPrototypeSlot
	}
	if f.info.Kind.IsClassConstructor() {
		return fmt.Errorf("%w: class prototype is read-only", ErrReadOnly)
	}
	f.prototype = v
	return nil
}

// BindPrototype makes obj the instance prototype of f. An object can be
// bound to at most one function.
func (f *Function) BindPrototype(obj *Object) error {
	if !f.info.Kind.HasPrototypeSlot() {
		return ErrNoPrototypeSlot
	}
	if obj.owner != nil && obj.owner != f {
		return ErrPrototypeInUse
	}
	obj.owner = f
	f.prototype = obj
	return nil
}

// InstancePrototype returns the instance prototype if one has been
// materialized. It never allocates.
func (f *Function) InstancePrototype() (*Object, bool) {
	p, ok := f.prototype.(*Object)
	return p, ok
}

// HasNonInstancePrototype reports whether the prototype property holds a
// value that is not an object.
func (f *Function) HasNonInstancePrototype() bool {
	if f.prototype == nil {
		return false
	}
	_, ok := f.prototype.(*Object)
	return !ok
}
