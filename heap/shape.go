package heap

import "fmt"

// Attributes are the property attributes of a data property. The zero
// value is a writable, enumerable, configurable property.
type Attributes uint8

const (
	ReadOnly Attributes = 1 << iota
	DontEnum
	DontDelete

	AttributesNone Attributes = 0
	AttributesMask            = ReadOnly | DontEnum | DontDelete
)

func (a Attributes) IsReadOnly() bool     { return a&ReadOnly != 0 }
func (a Attributes) IsEnumerable() bool   { return a&DontEnum == 0 }
func (a Attributes) IsConfigurable() bool { return a&DontDelete == 0 }

func (a Attributes) String() string {
	return fmt.Sprintf("{writable:%t enumerable:%t configurable:%t}",
		!a.IsReadOnly(), a.IsEnumerable(), a.IsConfigurable())
}

// Property describes one named data property of a Shape.
type Property struct {
	Name       string
	Attributes Attributes
}

// ---------------------------------------------------------------------------
// Shape: shared property layout
// ---------------------------------------------------------------------------

// Shape is the layout descriptor shared by objects with the same prototype
// and the same properties added in the same order.
//
// Shapes created by property additions form a transition tree rooted at
// one shape per prototype, so structurally identical objects share the
// same *Shape. Shapes created with Realm.NewShape are detached from the
// tree.
type Shape struct {
	prototype   Value
	props       []Property
	index       map[string]int
	transitions map[transition]*Shape
	detached    bool
}

type transition struct {
	name  string
	attrs Attributes
}

func newShape(proto Value, props []Property) *Shape {
	s := &Shape{
		prototype: proto,
		props:     props,
		index:     make(map[string]int, len(props)),
	}
	for i, p := range props {
		s.index[p.Name] = i
	}
	return s
}

// Prototype returns the prototype of objects with this shape: Null or an
// object.
func (s *Shape) Prototype() Value { return s.prototype }

// SetPrototype replaces the prototype. Every object sharing the shape sees
// the change.
func (s *Shape) SetPrototype(proto Value) { s.prototype = proto }

// NumProperties returns the number of properties in the layout.
func (s *Shape) NumProperties() int { return len(s.props) }

// Property returns the i-th property descriptor.
func (s *Shape) Property(i int) Property { return s.props[i] }

// Properties returns a copy of the layout.
func (s *Shape) Properties() []Property {
	out := make([]Property, len(s.props))
	copy(out, s.props)
	return out
}

// IndexOf returns the slot index of name, or -1.
func (s *Shape) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Detached reports whether the shape lives outside the transition tree.
func (s *Shape) Detached() bool { return s.detached }

// rootShape returns the empty shape for proto, creating it if needed.
func (r *Realm) rootShape(proto Value) *Shape {
	if s, ok := r.rootShapes[proto]; ok {
		return s
	}
	s := newShape(proto, nil)
	r.rootShapes[proto] = s
	return s
}

// transition returns the shape reached from s by appending one property.
func (r *Realm) transition(s *Shape, name string, attrs Attributes) *Shape {
	key := transition{name: name, attrs: attrs}
	if s.transitions != nil {
		if next, ok := s.transitions[key]; ok {
			return next
		}
	}
	props := make([]Property, len(s.props), len(s.props)+1)
	copy(props, s.props)
	props = append(props, Property{Name: name, Attributes: attrs})
	next := newShape(s.prototype, props)
	next.detached = s.detached
	if !s.detached {
		if s.transitions == nil {
			s.transitions = make(map[transition]*Shape)
		}
		s.transitions[key] = next
	}
	return next
}

// shapeFor walks the transition tree from the root for proto through props.
func (r *Realm) shapeFor(proto Value, props []Property) *Shape {
	s := r.rootShape(proto)
	for _, p := range props {
		s = r.transition(s, p.Name, p.Attributes)
	}
	return s
}

// NewShape builds a detached shape from an explicit layout. Names must be
// unique and the layout must fit fast mode.
func (r *Realm) NewShape(proto Value, props []Property) (*Shape, error) {
	if len(props) > r.maxFastProperties {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyProperties, len(props), r.maxFastProperties)
	}
	layout := make([]Property, len(props))
	copy(layout, props)
	s := newShape(proto, layout)
	if len(s.index) != len(layout) {
		for i, p := range layout {
			if s.index[p.Name] != i {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateProperty, p.Name)
			}
		}
	}
	s.detached = true
	return s, nil
}
