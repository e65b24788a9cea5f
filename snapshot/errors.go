package snapshot

import (
	"errors"
	"fmt"
)

// Category classifies snapshot failures.
type Category uint8

const (
	// Malformed input: bad magic, truncated data, over-limit counts,
	// invalid tags or ids.
	Malformed Category = iota + 1
	// Unsupported input: values the format cannot represent.
	Unsupported
	// Resource exhaustion: too many entities, allocation failure.
	Resource
	// Reuse of a single-use serializer or deserializer.
	Reuse
	// Internal invariant violations and collaborator failures.
	Internal
)

var categoryNames = map[Category]string{
	Malformed:   "malformed",
	Unsupported: "unsupported",
	Resource:    "resource",
	Reuse:       "reuse",
	Internal:    "internal",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Error is the failure reported by a Serializer or Deserializer.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("web snapshot: %s: %v", e.Message, e.Err)
	}
	return "web snapshot: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same category with an empty message,
// which is how the category sentinels below are shaped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Category == e.Category
}

// Category sentinels for errors.Is.
var (
	ErrMalformed   = &Error{Category: Malformed}
	ErrUnsupported = &Error{Category: Unsupported}
	ErrResource    = &Error{Category: Resource}
	ErrReuse       = &Error{Category: Reuse}
	ErrInternal    = &Error{Category: Internal}
)

func newError(c Category, msg string) *Error {
	return &Error{Category: c, Message: msg}
}

// ---------------------------------------------------------------------------
// latch: sticky first-error slot
// ---------------------------------------------------------------------------

// latch holds the first error reported to it. Later reports are dropped.
type latch struct {
	err     *Error
	onLatch func(*Error)
}

func (l *latch) fail(c Category, msg string) {
	l.set(&Error{Category: c, Message: msg})
}

func (l *latch) failWrap(c Category, msg string, err error) {
	var se *Error
	if errors.As(err, &se) {
		l.set(se)
		return
	}
	l.set(&Error{Category: c, Message: msg, Err: err})
}

func (l *latch) set(e *Error) {
	if l.err != nil {
		return
	}
	l.err = e
	if l.onLatch != nil {
		l.onLatch(e)
	}
}

func (l *latch) failed() bool { return l.err != nil }

// result returns the latched error as an error interface, nil if none.
func (l *latch) result() error {
	if l.err == nil {
		return nil
	}
	return l.err
}
