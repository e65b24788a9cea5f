package snapshot

import (
	"github.com/chazu/heapsnap/heap"
)

// ---------------------------------------------------------------------------
// Discovery: assign ids to everything reachable from the exports
// ---------------------------------------------------------------------------

// discover drains a FIFO worklist seeded with root. Entities get their id
// on first visit only, so every entity is expanded once and cycles end.
// Strings are not registered here; they get ids when they are written.
func (s *Serializer) discover(root heap.Value) {
	s.queue = append(s.queue[:0], root)
	for head := 0; head < len(s.queue); head++ {
		s.discoverValue(s.queue[head])
		s.queue[head] = nil
	}
	s.queue = s.queue[:0]
}

func (s *Serializer) enqueue(v heap.Value) {
	s.queue = append(s.queue, v)
}

func (s *Serializer) discoverValue(v heap.Value) {
	switch x := v.(type) {
	case *heap.Function:
		s.discoverFunction(x)
	case *heap.Object:
		s.discoverObject(x)
	case *heap.Array:
		s.discoverArray(x)
	case *heap.Wrapper, *heap.RegExp:
		// Cannot reference other heap records.
	default:
		switch v.Kind() {
		case heap.KindUndefined, heap.KindNull, heap.KindBoolean,
			heap.KindSmi, heap.KindHeapNumber, heap.KindString:
		default:
			s.fail(Unsupported, "Unsupported object")
		}
	}
}

func (s *Serializer) discoverFunction(f *heap.Function) {
	catalog := s.functions
	if f.Kind() == heap.KindClass {
		catalog = s.classes
	}
	_, existed, err := catalog.InsertOrGet(f)
	if err != nil {
		s.failWrap(Resource, "Too many objects", err)
		return
	}
	if existed {
		return
	}

	if ctx := f.Context(); ctx != nil {
		s.discoverContext(ctx)
	}
	if f.HasNonInstancePrototype() {
		s.fail(Unsupported, "Functions with non-instance prototypes not supported")
		return
	}
	if proto, ok := f.InstancePrototype(); ok {
		s.enqueue(proto)
	}
	s.discoverSource(f)
}

// discoverContext registers the chain outermost first so that a parent
// always has a smaller id than its children.
func (s *Serializer) discoverContext(ctx *heap.Context) {
	var chain []*heap.Context
	for c := ctx; c != nil; c = c.Parent() {
		if _, ok := s.contexts.Lookup(c); ok {
			break
		}
		chain = append(chain, c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		if _, _, err := s.contexts.InsertOrGet(c); err != nil {
			s.failWrap(Resource, "Too many objects", err)
			return
		}
		for j := 0; j < c.Len(); j++ {
			s.enqueue(c.At(j))
		}
	}
}

func (s *Serializer) discoverSource(f *heap.Function) {
	script := f.Script()
	if script == nil {
		s.fail(Unsupported, "Function without source code")
		return
	}
	s.intervals = append(s.intervals, interval{start: f.Start(), end: f.End()})
	switch {
	case s.fullSource == nil:
		s.fullSource = script
	case s.fullSource != script && s.fullSource.Source != script.Source:
		s.fail(Unsupported, "Cannot include functions from multiple scripts")
	}
}

func (s *Serializer) discoverArray(a *heap.Array) {
	_, existed, err := s.arrays.InsertOrGet(a)
	if err != nil {
		s.failWrap(Resource, "Too many objects", err)
		return
	}
	if existed {
		return
	}
	if !a.ElementsKind().IsPacked() {
		s.fail(Unsupported, "Unsupported array")
		return
	}
	for i := 0; i < a.Len(); i++ {
		s.enqueue(a.At(i))
	}
}

func (s *Serializer) discoverObject(o *heap.Object) {
	_, existed, err := s.objects.InsertOrGet(o)
	if err != nil {
		s.failWrap(Resource, "Too many objects", err)
		return
	}
	if existed {
		return
	}
	if err := o.MigrateToFast(); err != nil || o.NumProperties() > s.opts.MaxProperties {
		s.fail(Unsupported, "Dictionary mode objects not supported")
		return
	}
	if proto := o.Prototype(); proto != heap.Value(s.realm.ObjectPrototype()) {
		s.enqueue(proto)
	}
	for _, v := range o.Values() {
		s.enqueue(v)
	}
}
