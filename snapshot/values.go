package snapshot

import (
	"fmt"

	"github.com/chazu/heapsnap/heap"
)

// ValueType tags every serialized value. The tag alone determines how
// many payload fields follow.
type ValueType uint32

const (
	ValueFalse ValueType = iota
	ValueTrue
	ValueNull
	ValueUndefined
	ValueInteger
	ValueDouble
	ValueStringID
	ValueArrayID
	ValueObjectID
	ValueFunctionID
	ValueClassID
	ValueRegExp
)

var valueTypeNames = [...]string{
	ValueFalse:      "false",
	ValueTrue:       "true",
	ValueNull:       "null",
	ValueUndefined:  "undefined",
	ValueInteger:    "integer",
	ValueDouble:     "double",
	ValueStringID:   "string",
	ValueArrayID:    "array",
	ValueObjectID:   "object",
	ValueFunctionID: "function",
	ValueClassID:    "class",
	ValueRegExp:     "regexp",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("value-type(%d)", uint32(t))
}

// Wire codes for context types.
const (
	contextTypeFunction uint32 = 0
	contextTypeBlock    uint32 = 1
)

// Wire codes for a shape's attribute mode.
const (
	attributesDefault uint32 = 0
	attributesCustom  uint32 = 1
)

// ---------------------------------------------------------------------------
// Property attribute flags
// ---------------------------------------------------------------------------

// Attribute flag bits on the wire.
const (
	attrFlagReadOnly     uint32 = 1 << 0
	attrFlagConfigurable uint32 = 1 << 1
	attrFlagEnumerable   uint32 = 1 << 2

	// DefaultAttributeFlags is the flag word of a writable, enumerable,
	// configurable property.
	DefaultAttributeFlags = attrFlagConfigurable | attrFlagEnumerable
)

// attributesByFlags decodes every valid flag word.
var attributesByFlags = [8]heap.Attributes{
	0:                                     heap.DontEnum | heap.DontDelete,
	attrFlagReadOnly:                      heap.ReadOnly | heap.DontEnum | heap.DontDelete,
	attrFlagConfigurable:                  heap.DontEnum,
	attrFlagReadOnly | attrFlagConfigurable: heap.ReadOnly | heap.DontEnum,
	attrFlagEnumerable:                    heap.DontDelete,
	attrFlagReadOnly | attrFlagEnumerable: heap.ReadOnly | heap.DontDelete,
	DefaultAttributeFlags:                 heap.AttributesNone,
	attrFlagReadOnly | DefaultAttributeFlags: heap.ReadOnly,
}

// EncodeAttributes returns the wire flag word for attrs.
func EncodeAttributes(attrs heap.Attributes) uint32 {
	for flags, a := range attributesByFlags {
		if a == attrs&heap.AttributesMask {
			return uint32(flags)
		}
	}
	return DefaultAttributeFlags
}

// DecodeAttributes returns the attributes for a wire flag word.
func DecodeAttributes(flags uint32) (heap.Attributes, error) {
	if flags >= uint32(len(attributesByFlags)) {
		return 0, newError(Malformed, "Invalid property attributes")
	}
	return attributesByFlags[flags], nil
}

// ---------------------------------------------------------------------------
// Function kind flags
// ---------------------------------------------------------------------------

// Function flag bits on the wire.
const (
	fnFlagAsync              uint32 = 1 << 0
	fnFlagGenerator          uint32 = 1 << 1
	fnFlagArrow              uint32 = 1 << 2
	fnFlagMethod             uint32 = 1 << 3
	fnFlagStatic             uint32 = 1 << 4
	fnFlagClassConstructor   uint32 = 1 << 5
	fnFlagDefaultConstructor uint32 = 1 << 6
	fnFlagDerivedConstructor uint32 = 1 << 7
)

type functionKindEntry struct {
	kind  heap.FunctionKind
	flags uint32
}

// functionKindTable lists every kind the format can carry.
var functionKindTable = []functionKindEntry{
	{heap.NormalFunction, 0},
	{heap.AsyncFunction, fnFlagAsync},
	{heap.GeneratorFunction, fnFlagGenerator},
	{heap.AsyncGeneratorFunction, fnFlagAsync | fnFlagGenerator},
	{heap.ArrowFunction, fnFlagArrow},
	{heap.AsyncArrowFunction, fnFlagArrow | fnFlagAsync},
	{heap.ConciseMethod, fnFlagMethod},
	{heap.AsyncConciseMethod, fnFlagMethod | fnFlagAsync},
	{heap.BaseConstructor, fnFlagClassConstructor},
	{heap.DefaultBaseConstructor, fnFlagClassConstructor | fnFlagDefaultConstructor},
	{heap.DerivedConstructor, fnFlagClassConstructor | fnFlagDerivedConstructor},
	{heap.DefaultDerivedConstructor, fnFlagClassConstructor | fnFlagDefaultConstructor | fnFlagDerivedConstructor},
}

var (
	flagsByFunctionKind = map[heap.FunctionKind]uint32{}
	functionKindByFlags = map[uint32]heap.FunctionKind{}
)

func init() {
	for _, e := range functionKindTable {
		functionKindByFlags[e.flags] = e.kind
		flagsByFunctionKind[e.kind] = e.flags
	}
	// Derived constructors are accepted on read but never written.
	delete(flagsByFunctionKind, heap.DerivedConstructor)
	delete(flagsByFunctionKind, heap.DefaultDerivedConstructor)
}

// EncodeFunctionKind returns the wire flag word for kind.
func EncodeFunctionKind(kind heap.FunctionKind) (uint32, error) {
	flags, ok := flagsByFunctionKind[kind]
	if !ok {
		return 0, newError(Unsupported, "Unsupported function kind")
	}
	return flags, nil
}

// DecodeFunctionKind returns the function kind for a wire flag word.
func DecodeFunctionKind(flags uint32) (heap.FunctionKind, error) {
	kind, ok := functionKindByFlags[flags]
	if !ok {
		return 0, newError(Malformed, "Invalid function flags")
	}
	return kind, nil
}
