package heap

import "fmt"

// ContextType distinguishes function scopes from block scopes.
type ContextType uint8

const (
	FunctionContext ContextType = iota
	BlockContext
)

func (t ContextType) String() string {
	switch t {
	case FunctionContext:
		return "function"
	case BlockContext:
		return "block"
	}
	return fmt.Sprintf("context(%d)", uint8(t))
}

// Context holds the variables of one scope that are captured by closures.
// A nil parent means the scope hangs directly off the script (global)
// scope.
type Context struct {
	typ    ContextType
	parent *Context
	names  []string
	values []Value
	index  map[string]int
}

// NewContext allocates a context with the given variable names, all
// initialized to Undefined.
func (r *Realm) NewContext(typ ContextType, parent *Context, names []string) (*Context, error) {
	if err := r.allocate(); err != nil {
		return nil, err
	}
	c := &Context{
		typ:    typ,
		parent: parent,
		index:  make(map[string]int, len(names)),
	}
	for _, name := range names {
		if err := c.Declare(name, Undefined); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Context) Type() ContextType { return c.typ }
func (c *Context) Parent() *Context  { return c.parent }
func (c *Context) Len() int          { return len(c.names) }
func (c *Context) Name(i int) string { return c.names[i] }
func (c *Context) At(i int) Value    { return c.values[i] }

func (c *Context) SetAt(i int, v Value) { c.values[i] = v }

// Depth returns the number of ancestors.
func (c *Context) Depth() int {
	d := 0
	for p := c.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// IndexOf returns the slot of name in this context only, or -1.
func (c *Context) IndexOf(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// Declare adds a variable to this context.
func (c *Context) Declare(name string, v Value) error {
	if _, ok := c.index[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateVariable, name)
	}
	c.index[name] = len(c.names)
	c.names = append(c.names, name)
	c.values = append(c.values, v)
	return nil
}

// Lookup resolves name along the context chain.
func (c *Context) Lookup(name string) (Value, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if i, ok := cur.index[name]; ok {
			return cur.values[i], true
		}
	}
	return nil, false
}

// Assign stores v into the nearest context declaring name. It reports
// whether a binding was found.
func (c *Context) Assign(name string, v Value) bool {
	for cur := c; cur != nil; cur = cur.parent {
		if i, ok := cur.index[name]; ok {
			cur.values[i] = v
			return true
		}
	}
	return false
}
