package snapshot

import "math"

// MaxItemCount is the default limit on entries per table, array lengths
// and export counts.
const MaxItemCount = math.MaxInt32/16 - 1

// Catalog maps live references to dense ids, assigned in insertion order,
// and keeps the references in id order.
type Catalog[K comparable] struct {
	index map[K]uint32
	items []K
	max   int
}

// NewCatalog returns an empty catalog holding at most max entries.
func NewCatalog[K comparable](max int) *Catalog[K] {
	if max <= 0 {
		max = MaxItemCount
	}
	return &Catalog[K]{index: make(map[K]uint32), max: max}
}

// InsertOrGet returns the id of k, assigning the next id if k is new.
// existed reports whether k was already present. It fails with a
// resource error once the catalog is full.
func (c *Catalog[K]) InsertOrGet(k K) (id uint32, existed bool, err error) {
	if id, ok := c.index[k]; ok {
		return id, true, nil
	}
	if len(c.items) >= c.max {
		return 0, false, newError(Resource, "Too many objects")
	}
	id = uint32(len(c.items))
	c.index[k] = id
	c.items = append(c.items, k)
	return id, false, nil
}

// Lookup returns the id of k.
func (c *Catalog[K]) Lookup(k K) (uint32, bool) {
	id, ok := c.index[k]
	return id, ok
}

// At returns the entry with the given id.
func (c *Catalog[K]) At(id uint32) K { return c.items[id] }

// Items returns the entries in id order. The slice is shared.
func (c *Catalog[K]) Items() []K { return c.items }

// Len returns the number of entries.
func (c *Catalog[K]) Len() int { return len(c.items) }
