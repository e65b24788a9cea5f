package heap

import "fmt"

// ---------------------------------------------------------------------------
// Object: plain heap object with named data properties
// ---------------------------------------------------------------------------

// Object is an ordinary object. In fast mode its layout is described by a
// shared Shape and values are stored positionally. An object that grows
// past the realm's fast property limit, or loses a property from the
// middle of its layout, switches to dictionary mode and owns its layout.
type Object struct {
	realm  *Realm
	shape  *Shape
	values []Value
	dict   *dictionary

	// owner is the function this object is the instance prototype of.
	owner *Function
}

type dictionary struct {
	proto  Value
	props  []Property
	values []Value
	index  map[string]int
}

func (d *dictionary) reindex() {
	d.index = make(map[string]int, len(d.props))
	for i, p := range d.props {
		d.index[p.Name] = i
	}
}

func (*Object) Kind() Kind { return KindObject }

// NewObject allocates an empty object whose prototype is the realm's
// default object prototype.
func (r *Realm) NewObject() (*Object, error) {
	return r.NewObjectWithPrototype(r.objectPrototype)
}

// NewObjectWithPrototype allocates an empty object with the given
// prototype (Null or a heap record).
func (r *Realm) NewObjectWithPrototype(proto Value) (*Object, error) {
	if !validPrototype(proto) {
		return nil, ErrUnsupportedPrototype
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	return &Object{realm: r, shape: r.rootShape(proto)}, nil
}

// NewObjectWithShape allocates an object with layout s. Every slot starts
// out as Undefined.
func (r *Realm) NewObjectWithShape(s *Shape) (*Object, error) {
	if err := r.allocate(); err != nil {
		return nil, err
	}
	values := make([]Value, s.NumProperties())
	for i := range values {
		values[i] = Undefined
	}
	return &Object{realm: r, shape: s, values: values}, nil
}

func validPrototype(v Value) bool {
	if v == nil {
		return false
	}
	return v.Kind() == KindNull || !IsPrimitive(v) && v.Kind() != KindBigInt
}

// Shape returns the object's layout, or nil in dictionary mode.
func (o *Object) Shape() *Shape {
	if o.dict != nil {
		return nil
	}
	return o.shape
}

// IsDictionaryMode reports whether the object owns its layout.
func (o *Object) IsDictionaryMode() bool { return o.dict != nil }

// Prototype returns the object's [[Prototype]].
func (o *Object) Prototype() Value {
	if o.dict != nil {
		return o.dict.proto
	}
	return o.shape.prototype
}

// SetPrototype replaces the object's [[Prototype]]. A fast object moves
// to the transition tree rooted at the new prototype.
func (o *Object) SetPrototype(proto Value) error {
	if !validPrototype(proto) {
		return ErrUnsupportedPrototype
	}
	for p := proto; p != nil; {
		if p == Value(o) {
			return fmt.Errorf("%w: cyclic prototype chain", ErrUnsupportedPrototype)
		}
		po, ok := p.(*Object)
		if !ok {
			break
		}
		p = po.Prototype()
	}
	if o.dict != nil {
		o.dict.proto = proto
		return nil
	}
	o.shape = o.realm.shapeFor(proto, o.shape.props)
	return nil
}

// NumProperties returns the number of own properties.
func (o *Object) NumProperties() int {
	if o.dict != nil {
		return len(o.dict.props)
	}
	return len(o.shape.props)
}

// PropertyAt returns the i-th own property and its value in layout order.
func (o *Object) PropertyAt(i int) (Property, Value) {
	if o.dict != nil {
		return o.dict.props[i], o.dict.values[i]
	}
	return o.shape.props[i], o.values[i]
}

// SetPropertyAt stores v into the i-th slot, ignoring attributes.
func (o *Object) SetPropertyAt(i int, v Value) {
	if o.dict != nil {
		o.dict.values[i] = v
		return
	}
	o.values[i] = v
}

// Keys returns the own property names in layout order.
func (o *Object) Keys() []string {
	n := o.NumProperties()
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		p, _ := o.PropertyAt(i)
		keys[i] = p.Name
	}
	return keys
}

// Values returns a copy of the own property values in layout order.
func (o *Object) Values() []Value {
	src := o.values
	if o.dict != nil {
		src = o.dict.values
	}
	out := make([]Value, len(src))
	copy(out, src)
	return out
}

func (o *Object) indexOf(name string) int {
	if o.dict != nil {
		if i, ok := o.dict.index[name]; ok {
			return i
		}
		return -1
	}
	return o.shape.IndexOf(name)
}

// GetOwn returns the own property name.
func (o *Object) GetOwn(name string) (Value, bool) {
	i := o.indexOf(name)
	if i < 0 {
		return Undefined, false
	}
	_, v := o.PropertyAt(i)
	return v, true
}

// Get looks name up on the object and then along its prototype chain.
// Missing properties read as Undefined.
func (o *Object) Get(name string) Value {
	for cur := o; cur != nil; {
		if v, ok := cur.GetOwn(name); ok {
			return v
		}
		next, ok := cur.Prototype().(*Object)
		if !ok {
			break
		}
		cur = next
	}
	return Undefined
}

// Set assigns an own data property, adding it with default attributes if
// it does not exist.
func (o *Object) Set(name string, v Value) error {
	if i := o.indexOf(name); i >= 0 {
		p, _ := o.PropertyAt(i)
		if p.Attributes.IsReadOnly() {
			return fmt.Errorf("%w: %q", ErrReadOnly, name)
		}
		o.SetPropertyAt(i, v)
		return nil
	}
	o.add(name, v, AttributesNone)
	return nil
}

// DefineProperty creates or redefines an own data property with explicit
// attributes.
func (o *Object) DefineProperty(name string, v Value, attrs Attributes) error {
	attrs &= AttributesMask
	i := o.indexOf(name)
	if i < 0 {
		o.add(name, v, attrs)
		return nil
	}
	p, _ := o.PropertyAt(i)
	if p.Attributes == attrs {
		o.SetPropertyAt(i, v)
		return nil
	}
	if !p.Attributes.IsConfigurable() {
		return fmt.Errorf("%w: %q", ErrNotConfigurable, name)
	}
	if o.dict != nil {
		o.dict.props[i].Attributes = attrs
		o.dict.values[i] = v
		return nil
	}
	props := o.shape.Properties()
	props[i].Attributes = attrs
	o.shape = o.realm.shapeFor(o.shape.prototype, props)
	o.values[i] = v
	return nil
}

// Delete removes an own property. Removing the most recently added
// property keeps the object fast; removing any other one switches it to
// dictionary mode.
func (o *Object) Delete(name string) error {
	i := o.indexOf(name)
	if i < 0 {
		return nil
	}
	p, _ := o.PropertyAt(i)
	if !p.Attributes.IsConfigurable() {
		return fmt.Errorf("%w: %q", ErrNotConfigurable, name)
	}
	if o.dict == nil && i == len(o.shape.props)-1 {
		o.shape = o.realm.shapeFor(o.shape.prototype, o.shape.props[:i])
		o.values = o.values[:i]
		return nil
	}
	o.normalize()
	d := o.dict
	d.props = append(d.props[:i], d.props[i+1:]...)
	d.values = append(d.values[:i], d.values[i+1:]...)
	d.reindex()
	return nil
}

// MigrateToFast moves a dictionary-mode object back onto a shared shape.
// It fails with ErrDictionaryMode when the object has more properties
// than fast mode allows.
func (o *Object) MigrateToFast() error {
	if o.dict == nil {
		return nil
	}
	if len(o.dict.props) > o.realm.maxFastProperties {
		return fmt.Errorf("%w: %d properties", ErrDictionaryMode, len(o.dict.props))
	}
	o.shape = o.realm.shapeFor(o.dict.proto, o.dict.props)
	o.values = o.dict.values
	o.dict = nil
	return nil
}

func (o *Object) add(name string, v Value, attrs Attributes) {
	if o.dict == nil && len(o.shape.props) >= o.realm.maxFastProperties {
		o.normalize()
	}
	if d := o.dict; d != nil {
		d.props = append(d.props, Property{Name: name, Attributes: attrs})
		d.values = append(d.values, v)
		d.index[name] = len(d.props) - 1
		return
	}
	o.shape = o.realm.transition(o.shape, name, attrs)
	o.values = append(o.values, v)
}

// normalize switches a fast object to dictionary mode.
func (o *Object) normalize() {
	if o.dict != nil {
		return
	}
	d := &dictionary{
		proto:  o.shape.prototype,
		props:  o.shape.Properties(),
		values: o.values,
	}
	d.reindex()
	o.dict = d
	o.values = nil
}

// Owner returns the function whose instance prototype this object is.
func (o *Object) Owner() *Function { return o.owner }
