package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/heapsnap/heap"
)

// State is the lifecycle of a Deserializer.
type State uint8

const (
	StateCreated State = iota
	StateDeserializing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateDeserializing:
		return "deserializing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ---------------------------------------------------------------------------
// Deferred references
// ---------------------------------------------------------------------------

// containerKind names the table holding a value slot.
type containerKind uint8

const (
	noContainer containerKind = iota
	shapeContainer
	contextContainer
	functionContainer
	classContainer
	arrayContainer
	objectContainer
)

// slotRef addresses a value slot by table index, never by pointer.
type slotRef struct {
	kind  containerKind
	index uint32
	slot  int
}

// deferredRef is a slot whose value references an entity that had not
// been built yet when the slot was read.
type deferredRef struct {
	slotRef
	target ValueType
	id     uint32
}

// ---------------------------------------------------------------------------
// Deserializer
// ---------------------------------------------------------------------------

// Deserializer rebuilds a snapshot inside a realm. It is single-use.
//
// Tables are built in wire order. A value that references an entity not
// built yet is recorded as a deferred reference and patched once every
// table exists. Exports become globals only if the whole snapshot was
// valid, and a trailing program runs only after that.
type Deserializer struct {
	realm *heap.Realm
	opts  Options
	state State
	latch

	id      string
	started time.Time
	log     commonlog.Logger

	r *Reader

	strings   []string
	shapes    []*heap.Shape
	contexts  []*heap.Context
	functions []*heap.Function
	arrays    []*heap.Array
	objects   []*heap.Object
	classes   []*heap.Function

	deferred []deferredRef
	exports  []Root

	script   *heap.Script
	sourceID int

	cached     Counts
	refreshes  int
	removeHook func()
}

// NewDeserializer returns a deserializer that materializes into realm.
func NewDeserializer(realm *heap.Realm, opts ...Option) *Deserializer {
	d := &Deserializer{
		realm:    realm,
		opts:     newOptions(opts),
		id:       uuid.NewString(),
		sourceID: -1,
	}
	d.log = d.opts.Logger
	d.onLatch = d.latched
	return d
}

func (d *Deserializer) State() State { return d.state }

// Err returns the first error the deserializer ran into.
func (d *Deserializer) Err() error { return d.result() }

// Exports returns the exports installed by a successful Deserialize.
func (d *Deserializer) Exports() []Root {
	out := make([]Root, len(d.exports))
	copy(out, d.exports)
	return out
}

// Counts returns the table sizes as last refreshed.
func (d *Deserializer) Counts() Counts { return d.cached }

// Close unregisters the deserializer from the realm.
func (d *Deserializer) Close() error {
	if d.removeHook != nil {
		d.removeHook()
		d.removeHook = nil
	}
	return nil
}

// latched fails closed: every table looks empty and every later read hits
// end of input.
func (d *Deserializer) latched(e *Error) {
	d.log.Errorf("snapshot %s: %s", d.id, e.Message)
	d.strings = nil
	d.shapes = nil
	d.contexts = nil
	d.functions = nil
	d.arrays = nil
	d.objects = nil
	d.classes = nil
	d.deferred = nil
	d.exports = nil
	if d.r != nil {
		d.r.Clamp()
	}
	d.refresh()
}

// refresh re-derives the cached table sizes. It runs after every
// collection of the realm and is idempotent.
func (d *Deserializer) refresh() {
	d.refreshes++
	d.cached = Counts{
		Strings:   len(d.strings),
		Shapes:    len(d.shapes),
		Contexts:  len(d.contexts),
		Functions: len(d.functions),
		Arrays:    len(d.arrays),
		Objects:   len(d.objects),
		Classes:   len(d.classes),
		Exports:   len(d.exports),
	}
}

// Deserialize reads data into the realm. It may be called once.
func (d *Deserializer) Deserialize(data []byte) error {
	if d.state != StateCreated {
		return newError(Reuse, "Can't reuse WebSnapshotDeserializer")
	}
	d.state = StateDeserializing
	d.started = time.Now()
	d.r = NewReader(data)
	if d.removeHook == nil {
		d.removeHook = d.realm.AddCollectionHook(d.refresh)
	}

	d.deserializeTables()
	program, hasProgram := d.trailingProgram()
	if !d.failed() {
		d.installExports()
	}
	if !d.failed() && hasProgram {
		d.runTrailingProgram(program)
	}

	d.refresh()
	if d.failed() {
		d.state = StateFailed
		return d.Err()
	}
	d.state = StateSucceeded
	d.log.Infof("snapshot %s: deserialized %+v from %d bytes in %s",
		d.id, d.cached, len(data), time.Since(d.started))
	return nil
}

func (d *Deserializer) deserializeTables() {
	magic, err := d.r.ReadRaw(len(Magic))
	if err != nil || !bytes.Equal(magic, Magic[:]) {
		d.fail(Malformed, "Invalid data")
		return
	}
	d.deserializeStrings()
	d.deserializeShapes()
	d.deserializeContexts()
	d.deserializeFunctions()
	d.deserializeArrays()
	d.deserializeObjects()
	d.deserializeClasses()
	d.resolveDeferred()
	d.deserializeExports()
}

// readCount reads a table or item count and checks it against the item
// limit.
func (d *Deserializer) readCount(what string) (int, bool) {
	n, err := d.r.ReadUint32()
	if err != nil {
		d.fail(Malformed, "Malformed "+what)
		return 0, false
	}
	if int64(n) > int64(d.opts.MaxItemCount) {
		d.fail(Malformed, "Too many "+what)
		return 0, false
	}
	return int(n), true
}

func (d *Deserializer) readUint32(msg string) uint32 {
	v, err := d.r.ReadUint32()
	if err != nil {
		d.fail(Malformed, msg)
		return 0
	}
	return v
}

func (d *Deserializer) readStringID(msg string) (string, bool) {
	id, err := d.r.ReadUint32()
	if err != nil || int64(id) >= int64(len(d.strings)) {
		d.fail(Malformed, msg)
		return "", false
	}
	return d.strings[id], true
}

func (d *Deserializer) allocFailed(err error) {
	if errors.Is(err, heap.ErrOutOfMemory) {
		d.failWrap(Resource, "Out of memory", err)
		return
	}
	d.failWrap(Malformed, "Allocation failed", err)
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func (d *Deserializer) deserializeStrings() {
	count, ok := d.readCount("strings")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		s, err := d.r.ReadString()
		if err != nil {
			d.fail(Malformed, "Malformed string")
			return
		}
		d.strings = append(d.strings, s)
	}
}

func (d *Deserializer) deserializeShapes() {
	count, ok := d.readCount("maps")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		mode := d.readUint32("Malformed map")
		if mode != attributesDefault && mode != attributesCustom {
			d.fail(Malformed, "Unknown attribute mode")
			return
		}
		protoRef := d.readUint32("Malformed map")
		n := d.readUint32("Malformed map")
		if d.failed() {
			return
		}
		if int64(n) > int64(d.opts.MaxProperties) {
			d.fail(Malformed, "Too many properties")
			return
		}
		props := make([]heap.Property, n)
		for j := range props {
			if mode == attributesCustom {
				attrs, err := DecodeAttributes(d.readUint32("Malformed map"))
				if err != nil {
					d.failWrap(Malformed, "Invalid property attributes", err)
					return
				}
				props[j].Attributes = attrs
			}
			name, ok := d.readStringID("Malformed map")
			if !ok {
				return
			}
			props[j].Name = name
		}

		shape, err := d.realm.NewShape(d.realm.ObjectPrototype(), props)
		if err != nil {
			d.failWrap(Malformed, "Malformed map", err)
			return
		}
		d.shapes = append(d.shapes, shape)
		if protoRef != 0 {
			d.deferObjectRef(slotRef{kind: shapeContainer, index: uint32(i)}, protoRef-1)
		}
	}
}

func (d *Deserializer) deserializeContexts() {
	count, ok := d.readCount("contexts")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		var typ heap.ContextType
		switch d.readUint32("Malformed context") {
		case contextTypeFunction:
			typ = heap.FunctionContext
		case contextTypeBlock:
			typ = heap.BlockContext
		default:
			d.fail(Malformed, "Unknown context type")
			return
		}
		parentRef := d.readUint32("Malformed context")
		if int64(parentRef) > int64(i) {
			d.fail(Malformed, "Invalid parent context")
			return
		}
		var parent *heap.Context
		if parentRef > 0 {
			parent = d.contexts[parentRef-1]
		}
		vars, ok := d.readCount("context variables")
		if !ok {
			return
		}
		ctx, err := d.realm.NewContext(typ, parent, nil)
		if err != nil {
			d.allocFailed(err)
			return
		}
		d.contexts = append(d.contexts, ctx)
		for j := 0; j < vars && !d.failed(); j++ {
			name, ok := d.readStringID("Malformed context variable")
			if !ok {
				return
			}
			if err := ctx.Declare(name, heap.Undefined); err != nil {
				d.failWrap(Malformed, "Duplicate context variable", err)
				return
			}
			ctx.SetAt(j, d.readValue(slotRef{kind: contextContainer, index: uint32(i), slot: j}))
		}
	}
}

func (d *Deserializer) deserializeFunctions() {
	count, ok := d.readCount("functions")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		f := d.readFunction(functionContainer, uint32(i))
		if f == nil {
			return
		}
		d.functions = append(d.functions, f)
	}
}

func (d *Deserializer) deserializeClasses() {
	count, ok := d.readCount("classes")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		c := d.readFunction(classContainer, uint32(i))
		if c == nil {
			return
		}
		d.classes = append(d.classes, c)
	}
}

// readFunction reads one function or class record. Function tables may
// not hold class constructors and class tables may hold nothing else.
func (d *Deserializer) readFunction(kind containerKind, index uint32) *heap.Function {
	contextRef := d.readUint32("Malformed function")
	if int64(contextRef) > int64(len(d.contexts)) {
		d.fail(Malformed, "Malformed function: context id out of range")
		return nil
	}
	sourceID := d.readUint32("Malformed function")
	start := d.readUint32("Malformed function")
	length := d.readUint32("Malformed function")
	params := d.readUint32("Malformed function")
	flags := d.readUint32("Malformed function")
	protoRef := d.readUint32("Malformed function")
	if d.failed() {
		return nil
	}

	if int64(sourceID) >= int64(len(d.strings)) {
		d.fail(Malformed, "Malformed function: invalid source id")
		return nil
	}
	if d.sourceID < 0 {
		d.sourceID = int(sourceID)
		d.script = &heap.Script{Name: d.opts.ScriptName, Source: d.strings[sourceID]}
	} else if d.sourceID != int(sourceID) {
		d.fail(Unsupported, "Cannot use different sources for functions")
		return nil
	}
	end := uint64(start) + uint64(length)
	if end > uint64(len(d.script.Source)) {
		d.fail(Malformed, "Malformed function: source range out of bounds")
		return nil
	}

	fk, err := DecodeFunctionKind(flags)
	if err != nil {
		d.failWrap(Malformed, "Invalid function flags", err)
		return nil
	}
	if fk.IsClassConstructor() != (kind == classContainer) {
		if kind == classContainer {
			d.fail(Malformed, "Malformed class: not a class constructor")
		} else {
			d.fail(Malformed, "Malformed function: unexpected class constructor")
		}
		return nil
	}

	var ctx *heap.Context
	if contextRef > 0 {
		ctx = d.contexts[contextRef-1]
	}
	f, err := d.realm.NewFunction(heap.FunctionInfo{
		Kind:       fk,
		Script:     d.script,
		Start:      int(start),
		End:        int(end),
		ParamCount: int(params),
		Context:    ctx,
	})
	if err != nil {
		d.allocFailed(err)
		return nil
	}
	if protoRef != 0 {
		if !fk.HasPrototypeSlot() {
			d.fail(Malformed, "Malformed function: prototype on a function without a prototype slot")
			return nil
		}
		d.deferObjectRef(slotRef{kind: kind, index: index}, protoRef-1)
	}
	return f
}

func (d *Deserializer) deserializeArrays() {
	count, ok := d.readCount("arrays")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		length, ok := d.readCount("array elements")
		if !ok {
			return
		}
		arr, err := d.realm.NewArray(0)
		if err != nil {
			d.allocFailed(err)
			return
		}
		d.arrays = append(d.arrays, arr)
		for j := 0; j < length && !d.failed(); j++ {
			v := d.readValue(slotRef{kind: arrayContainer, index: uint32(i), slot: j})
			if err := arr.Push(v); err != nil {
				d.failWrap(Malformed, "Malformed array", err)
				return
			}
		}
	}
}

func (d *Deserializer) deserializeObjects() {
	count, ok := d.readCount("objects")
	if !ok {
		return
	}
	for i := 0; i < count && !d.failed(); i++ {
		shapeID := d.readUint32("Malformed object")
		if d.failed() {
			return
		}
		if int64(shapeID) >= int64(len(d.shapes)) {
			d.fail(Malformed, "Malformed object: invalid map id")
			return
		}
		shape := d.shapes[shapeID]
		obj, err := d.realm.NewObjectWithShape(shape)
		if err != nil {
			d.allocFailed(err)
			return
		}
		d.objects = append(d.objects, obj)
		for j := 0; j < shape.NumProperties() && !d.failed(); j++ {
			obj.SetPropertyAt(j, d.readValue(slotRef{kind: objectContainer, index: uint32(i), slot: j}))
		}
	}
}

// deserializeExports reads every export into a pending list. Nothing is
// installed here.
func (d *Deserializer) deserializeExports() {
	count, ok := d.readCount("exports")
	if !ok {
		return
	}
	pending := make([]Root, 0, min(count, 64))
	for i := 0; i < count && !d.failed(); i++ {
		name, ok := d.readStringID("Malformed export")
		if !ok {
			return
		}
		v := d.readValue(slotRef{kind: noContainer})
		pending = append(pending, Root{Name: name, Value: v})
	}
	if !d.failed() {
		d.exports = pending
	}
}

func (d *Deserializer) installExports() {
	for _, e := range d.exports {
		d.realm.SetGlobal(e.Name, e.Value)
	}
}

// trailingProgram takes the bytes after the tables. It is checked before
// any export is installed.
func (d *Deserializer) trailingProgram() (string, bool) {
	if d.failed() || d.r.Remaining() == 0 {
		return "", false
	}
	program := d.r.ReadRest()
	if !utf8.Valid(program) {
		d.fail(Malformed, "Invalid trailing program")
		return "", false
	}
	if d.opts.Evaluator == nil {
		d.fail(Internal, "No evaluator configured for trailing program")
		return "", false
	}
	return string(program), true
}

// runTrailingProgram runs the program suffix once the exports are
// visible as globals.
func (d *Deserializer) runTrailingProgram(program string) {
	if err := d.opts.Evaluator.Run(d.realm, d.opts.ScriptName, program); err != nil {
		d.failWrap(Internal, "Trailing program failed", err)
	}
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// readValue reads one tagged value for slot at. A reference to an entity
// that is not built yet yields Undefined and a deferred reference.
func (d *Deserializer) readValue(at slotRef) heap.Value {
	tag, err := d.r.ReadUint32()
	if err != nil {
		d.fail(Malformed, "Malformed variable")
		return heap.Undefined
	}
	switch t := ValueType(tag); t {
	case ValueFalse:
		return heap.False
	case ValueTrue:
		return heap.True
	case ValueNull:
		return heap.Null
	case ValueUndefined:
		return heap.Undefined
	case ValueInteger:
		n, err := d.r.ReadZigZag()
		if err != nil {
			d.fail(Malformed, "Malformed integer")
			return heap.Undefined
		}
		return heap.Smi(n)
	case ValueDouble:
		f, err := d.r.ReadDouble()
		if err != nil {
			d.fail(Malformed, "Malformed double")
			return heap.Undefined
		}
		return heap.NumberValue(f)
	case ValueStringID:
		s, ok := d.readStringID("Malformed string id")
		if !ok {
			return heap.Undefined
		}
		return heap.String(s)
	case ValueArrayID, ValueObjectID, ValueFunctionID, ValueClassID:
		id, err := d.r.ReadUint32()
		if err != nil || int64(id) >= int64(d.opts.MaxItemCount) {
			d.fail(Malformed, "Malformed variable")
			return heap.Undefined
		}
		if v, ok := d.lookup(t, id); ok {
			return v
		}
		if at.kind == noContainer {
			d.fail(Malformed, "Invalid "+t.String()+" reference")
			return heap.Undefined
		}
		d.deferred = append(d.deferred, deferredRef{slotRef: at, target: t, id: id})
		return heap.Undefined
	case ValueRegExp:
		pattern, ok := d.readStringID("Malformed RegExp")
		if !ok {
			return heap.Undefined
		}
		flags, ok := d.readStringID("Malformed RegExp")
		if !ok {
			return heap.Undefined
		}
		re, err := d.realm.NewRegExp(pattern, flags)
		if err != nil {
			if errors.Is(err, heap.ErrOutOfMemory) {
				d.allocFailed(err)
			} else {
				d.failWrap(Malformed, "Malformed RegExp", err)
			}
			return heap.Undefined
		}
		return re
	default:
		d.fail(Malformed, "Unknown value type")
		return heap.Undefined
	}
}

// lookup returns a built entity of the given type.
func (d *Deserializer) lookup(t ValueType, id uint32) (heap.Value, bool) {
	i := int64(id)
	switch t {
	case ValueArrayID:
		if i < int64(len(d.arrays)) {
			return d.arrays[id], true
		}
	case ValueObjectID:
		if i < int64(len(d.objects)) {
			return d.objects[id], true
		}
	case ValueFunctionID:
		if i < int64(len(d.functions)) {
			return d.functions[id], true
		}
	case ValueClassID:
		if i < int64(len(d.classes)) {
			return d.classes[id], true
		}
	}
	return nil, false
}

func (d *Deserializer) deferObjectRef(at slotRef, id uint32) {
	if int64(id) >= int64(d.opts.MaxItemCount) {
		d.fail(Malformed, "Malformed prototype reference")
		return
	}
	d.deferred = append(d.deferred, deferredRef{slotRef: at, target: ValueObjectID, id: id})
}

// resolveDeferred patches every deferred slot. No allocation may happen
// while it runs.
func (d *Deserializer) resolveDeferred() {
	if d.failed() {
		return
	}
	done := d.realm.NoAllocation()
	defer done()

	for _, ref := range d.deferred {
		if d.failed() {
			return
		}
		target, ok := d.lookup(ref.target, ref.id)
		if !ok {
			d.fail(Malformed, "Invalid "+ref.target.String()+" reference")
			return
		}
		d.place(ref.slotRef, target)
	}
	d.deferred = nil
}

func (d *Deserializer) place(at slotRef, v heap.Value) {
	switch at.kind {
	case objectContainer:
		d.objects[at.index].SetPropertyAt(at.slot, v)
	case arrayContainer:
		if err := d.arrays[at.index].SetAt(at.slot, v); err != nil {
			d.failWrap(Malformed, "Malformed array", err)
		}
	case contextContainer:
		d.contexts[at.index].SetAt(at.slot, v)
	case shapeContainer:
		shape := d.shapes[at.index]
		for p := v; ; {
			o, ok := p.(*heap.Object)
			if !ok {
				break
			}
			if o.Shape() == shape {
				d.fail(Malformed, "Cyclic prototype chain")
				return
			}
			p = o.Prototype()
		}
		shape.SetPrototype(v)
	case functionContainer, classContainer:
		proto, ok := v.(*heap.Object)
		if !ok {
			d.fail(Malformed, "Malformed function prototype")
			return
		}
		f := d.functions
		if at.kind == classContainer {
			f = d.classes
		}
		if err := f[at.index].BindPrototype(proto); err != nil {
			if errors.Is(err, heap.ErrPrototypeInUse) {
				d.fail(Unsupported, "Can't reuse function prototype")
			} else {
				d.failWrap(Malformed, "Malformed function prototype", err)
			}
		}
	default:
		d.fail(Internal, "Deferred reference without a container")
	}
}
