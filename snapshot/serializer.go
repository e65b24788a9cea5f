package snapshot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chazu/heapsnap/heap"
)

// Root is a named export value.
type Root struct {
	Name  string
	Value heap.Value
}

// ---------------------------------------------------------------------------
// Serializer
// ---------------------------------------------------------------------------

// Serializer writes the graph reachable from a set of exports as a
// snapshot. A Serializer is single-use.
type Serializer struct {
	realm *heap.Realm
	opts  Options
	used  bool

	latch
	*session

	queue      []heap.Value
	intervals  []interval
	fullSource *heap.Script

	sourceID      uint32
	sourceOffsets map[int]int

	// One buffer per table; concatenated by assemble.
	stringOut   Writer
	shapeOut    Writer
	contextOut  Writer
	functionOut Writer
	arrayOut    Writer
	objectOut   Writer
	classOut    Writer
	exportOut   Writer
	exportCount int

	// beforeObjectValues runs between capturing an object's shape and
	// reading its values.
	beforeObjectValues func(*heap.Object)
}

// NewSerializer returns a serializer for graphs living in realm.
func NewSerializer(realm *heap.Realm, opts ...Option) *Serializer {
	s := &Serializer{realm: realm, opts: newOptions(opts)}
	s.session = newSession(s.opts)
	s.onLatch = func(e *Error) {
		s.log.Errorf("snapshot %s: %s", s.id, e.Message)
	}
	return s
}

// Err returns the first error the serializer ran into.
func (s *Serializer) Err() error { return s.result() }

// TakeSnapshot evaluates each export expression and serializes the
// results under the expression text. Empty expressions are skipped.
func (s *Serializer) TakeSnapshot(exports []string) ([]byte, error) {
	if s.used {
		return nil, newError(Reuse, "Can't reuse WebSnapshotSerializer")
	}
	if s.opts.Evaluator == nil {
		s.used = true
		s.fail(Internal, "No evaluator configured")
		return nil, s.Err()
	}
	roots := make([]Root, 0, len(exports))
	for _, expr := range exports {
		if expr == "" {
			continue
		}
		v, err := s.opts.Evaluator.Evaluate(s.realm, expr)
		if err != nil {
			s.used = true
			s.failWrap(Unsupported, "Exported object not found", err)
			return nil, s.Err()
		}
		obj, err := heap.ToObject(s.realm, v)
		if err != nil {
			s.used = true
			s.fail(Unsupported, "Exported object not found")
			return nil, s.Err()
		}
		roots = append(roots, Root{Name: expr, Value: obj})
	}
	return s.Serialize(roots)
}

// Serialize writes the snapshot of roots. On failure no bytes are
// returned.
func (s *Serializer) Serialize(roots []Root) ([]byte, error) {
	if s.used {
		return nil, newError(Reuse, "Can't reuse WebSnapshotSerializer")
	}
	s.used = true

	for _, r := range roots {
		if r.Value == nil {
			s.fail(Unsupported, "Exported object not found")
			continue
		}
		s.discover(r.Value)
	}
	s.serializeSource()
	for _, r := range roots {
		s.serializeExport(r)
	}
	s.serializePendingItems()

	out := s.assemble()
	if s.failed() {
		return nil, s.Err()
	}
	s.log.Infof("snapshot %s: serialized %+v into %d bytes in %s",
		s.id, s.counts(s.exportCount), len(out), s.elapsed())
	return out, nil
}

// serializeSource compacts the text of every discovered function into one
// string, registered before any other string.
func (s *Serializer) serializeSource() {
	if len(s.intervals) == 0 || s.fullSource == nil {
		return
	}
	compacted, offsets := compactSource(s.fullSource.Source, s.intervals)
	s.sourceOffsets = offsets
	s.sourceID = s.serializeString(compacted)
}

func (s *Serializer) serializePendingItems() {
	for _, c := range s.contexts.Items() {
		s.serializeContext(c)
	}
	for _, f := range s.functions.Items() {
		s.serializeFunctionInfo(&s.functionOut, f)
	}
	for _, c := range s.classes.Items() {
		s.serializeFunctionInfo(&s.classOut, c)
	}
	for _, a := range s.arrays.Items() {
		s.serializeArray(a)
	}
	for _, o := range s.objects.Items() {
		s.serializeObject(o)
	}
}

// assemble writes the magic number and every table as (count, bytes).
func (s *Serializer) assemble() []byte {
	size := len(Magic) + 8*maxVarInt32Len
	for _, w := range []*Writer{&s.stringOut, &s.shapeOut, &s.contextOut, &s.functionOut,
		&s.arrayOut, &s.objectOut, &s.classOut, &s.exportOut} {
		size += w.Len()
	}
	out := &Writer{buf: make([]byte, 0, size)}
	out.WriteRaw(Magic[:])
	blocks := []struct {
		count int
		w     *Writer
	}{
		{s.strings.Len(), &s.stringOut},
		{s.shapes.Len(), &s.shapeOut},
		{s.contexts.Len(), &s.contextOut},
		{s.functions.Len(), &s.functionOut},
		{s.arrays.Len(), &s.arrayOut},
		{s.objects.Len(), &s.objectOut},
		{s.classes.Len(), &s.classOut},
		{s.exportCount, &s.exportOut},
	}
	for _, b := range blocks {
		out.WriteUint32(uint32(b.count))
		out.WriteRaw(b.w.Bytes())
	}
	return out.Bytes()
}

// ---------------------------------------------------------------------------
// Per-kind encoders
// ---------------------------------------------------------------------------

// serializeString returns the id of str, writing it on first use.
func (s *Serializer) serializeString(str string) uint32 {
	id, existed, err := s.strings.InsertOrGet(str)
	if err != nil {
		s.failWrap(Resource, "Too many objects", err)
		return 0
	}
	if !existed {
		if !utf8.ValidString(str) {
			str = strings.ToValidUTF8(str, string(utf8.RuneError))
		}
		s.stringOut.WriteString(str)
	}
	return id
}

// customAttributes returns the index of the first property with
// non-default attributes (-1 if none) and the flag words of that property
// and every one after it.
func customAttributes(shape *heap.Shape) (int, []uint32) {
	first := -1
	var flags []uint32
	for i := 0; i < shape.NumProperties(); i++ {
		attrs := shape.Property(i).Attributes
		if first < 0 && attrs == heap.AttributesNone {
			continue
		}
		if first < 0 {
			first = i
		}
		flags = append(flags, EncodeAttributes(attrs))
	}
	return first, flags
}

func (s *Serializer) serializeShape(shape *heap.Shape) uint32 {
	id, existed, err := s.shapes.InsertOrGet(shape)
	if err != nil {
		s.failWrap(Resource, "Too many objects", err)
		return 0
	}
	if existed {
		return id
	}
	n := shape.NumProperties()
	if n > s.opts.MaxProperties {
		s.fail(Unsupported, "Too many properties")
	}

	protoRef := s.prototypeRef(shape.Prototype())
	first, flags := customAttributes(shape)
	w := &s.shapeOut
	if first < 0 {
		w.WriteUint32(attributesDefault)
	} else {
		w.WriteUint32(attributesCustom)
	}
	w.WriteUint32(protoRef)
	w.WriteUint32(uint32(n))
	for i := 0; i < n; i++ {
		if first >= 0 {
			if i < first {
				w.WriteUint32(DefaultAttributeFlags)
			} else {
				w.WriteUint32(flags[i-first])
			}
		}
		w.WriteUint32(s.serializeString(shape.Property(i).Name))
	}
	return id
}

// prototypeRef encodes a shape prototype: 0 for the default object
// prototype, 1 + object id otherwise.
func (s *Serializer) prototypeRef(proto heap.Value) uint32 {
	if proto == heap.Value(s.realm.ObjectPrototype()) {
		return 0
	}
	obj, ok := proto.(*heap.Object)
	if !ok {
		s.fail(Unsupported, "Non-JSObject __proto__s not supported")
		return 0
	}
	id, ok := s.objects.Lookup(obj)
	if !ok {
		s.fail(Internal, "Prototype was not discovered")
		return 0
	}
	return id + 1
}

func (s *Serializer) serializeContext(ctx *heap.Context) {
	w := &s.contextOut
	switch ctx.Type() {
	case heap.FunctionContext:
		w.WriteUint32(contextTypeFunction)
	case heap.BlockContext:
		w.WriteUint32(contextTypeBlock)
	default:
		s.fail(Unsupported, "Unsupported context type")
		w.WriteUint32(contextTypeFunction)
	}

	var parentRef uint32
	if p := ctx.Parent(); p != nil {
		id, ok := s.contexts.Lookup(p)
		if !ok {
			s.fail(Internal, "Parent context was not discovered")
		}
		parentRef = id + 1
	}
	w.WriteUint32(parentRef)

	w.WriteUint32(uint32(ctx.Len()))
	for i := 0; i < ctx.Len(); i++ {
		w.WriteUint32(s.serializeString(ctx.Name(i)))
		s.writeValue(w, ctx.At(i))
	}
}

func (s *Serializer) serializeFunctionInfo(w *Writer, f *heap.Function) {
	if f.Script() == nil {
		s.fail(Unsupported, "Function without source code")
		return
	}
	var contextRef uint32
	if ctx := f.Context(); ctx != nil {
		id, ok := s.contexts.Lookup(ctx)
		if !ok {
			s.fail(Internal, "Function context was not discovered")
		}
		contextRef = id + 1
	}
	flags, err := EncodeFunctionKind(f.FunctionKind())
	if err != nil {
		s.failWrap(Unsupported, "Unsupported function kind", err)
	}

	w.WriteUint32(contextRef)
	w.WriteUint32(s.sourceID)
	w.WriteUint32(uint32(s.sourceOffsets[f.Start()]))
	w.WriteUint32(uint32(f.End() - f.Start()))
	w.WriteUint32(uint32(f.ParamCount()))
	w.WriteUint32(flags)

	var protoRef uint32
	if proto, ok := f.InstancePrototype(); ok {
		id, found := s.objects.Lookup(proto)
		if !found {
			s.fail(Internal, "Function prototype was not discovered")
		}
		protoRef = id + 1
	}
	w.WriteUint32(protoRef)
}

func (s *Serializer) serializeArray(a *heap.Array) {
	if !a.ElementsKind().IsPacked() {
		s.fail(Unsupported, "Unsupported array")
		return
	}
	w := &s.arrayOut
	w.WriteUint32(uint32(a.Len()))
	for i := 0; i < a.Len(); i++ {
		s.writeValue(w, a.At(i))
	}
}

func (s *Serializer) serializeObject(o *heap.Object) {
	shape := o.Shape()
	if shape == nil {
		s.fail(Unsupported, "Dictionary mode objects not supported")
		return
	}
	shapeID := s.serializeShape(shape)
	if s.beforeObjectValues != nil {
		s.beforeObjectValues(o)
	}
	if o.Shape() != shape {
		s.fail(Unsupported, "Map changed")
		return
	}
	w := &s.objectOut
	w.WriteUint32(shapeID)
	for i := 0; i < shape.NumProperties(); i++ {
		_, v := o.PropertyAt(i)
		s.writeValue(w, v)
	}
}

// serializeExport writes (name, value). A primitive wrapper exports the
// primitive it boxes.
func (s *Serializer) serializeExport(r Root) {
	if r.Value == nil {
		return
	}
	s.exportCount++
	w := &s.exportOut
	w.WriteUint32(s.serializeString(r.Name))
	if wrapper, ok := r.Value.(*heap.Wrapper); ok {
		s.writeValue(w, wrapper.Value())
		return
	}
	s.writeValue(w, r.Value)
}

// writeValue writes a tagged value. Heap records must already have ids.
func (s *Serializer) writeValue(w *Writer, v heap.Value) {
	switch x := v.(type) {
	case heap.Boolean:
		if x {
			w.WriteUint32(uint32(ValueTrue))
		} else {
			w.WriteUint32(uint32(ValueFalse))
		}
	case heap.Smi:
		w.WriteUint32(uint32(ValueInteger))
		w.WriteZigZag(int32(x))
	case heap.Number:
		w.WriteUint32(uint32(ValueDouble))
		w.WriteDouble(float64(x))
	case heap.String:
		w.WriteUint32(uint32(ValueStringID))
		w.WriteUint32(s.serializeString(string(x)))
	case *heap.Function:
		tag, catalog := ValueFunctionID, s.functions
		if x.Kind() == heap.KindClass {
			tag, catalog = ValueClassID, s.classes
		}
		id, ok := catalog.Lookup(x)
		s.checkDiscovered(ok, x)
		w.WriteUint32(uint32(tag))
		w.WriteUint32(id)
	case *heap.Array:
		id, ok := s.arrays.Lookup(x)
		s.checkDiscovered(ok, x)
		w.WriteUint32(uint32(ValueArrayID))
		w.WriteUint32(id)
	case *heap.Object:
		id, ok := s.objects.Lookup(x)
		s.checkDiscovered(ok, x)
		w.WriteUint32(uint32(ValueObjectID))
		w.WriteUint32(id)
	case *heap.RegExp:
		w.WriteUint32(uint32(ValueRegExp))
		w.WriteUint32(s.serializeString(x.Pattern()))
		w.WriteUint32(s.serializeString(x.Flags()))
	default:
		switch v.Kind() {
		case heap.KindNull:
			w.WriteUint32(uint32(ValueNull))
		case heap.KindUndefined:
			w.WriteUint32(uint32(ValueUndefined))
		default:
			s.fail(Unsupported, "Unsupported object")
			w.WriteUint32(uint32(ValueUndefined))
		}
	}
}

func (s *Serializer) checkDiscovered(ok bool, v heap.Value) {
	if !ok {
		s.fail(Internal, fmt.Sprintf("%s was not discovered", v.Kind()))
	}
}
