package snapshot

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Dump: structural view of a snapshot
// ---------------------------------------------------------------------------

// Dump is the decoded structure of a snapshot: every table with raw ids
// and offsets, nothing materialized.
type Dump struct {
	Size     int            `json:"size" yaml:"size" cbor:"1,keyasint"`
	Counts   Counts         `json:"counts" yaml:"counts" cbor:"2,keyasint"`
	Strings  []string       `json:"strings" yaml:"strings" cbor:"3,keyasint"`
	Shapes   []ShapeDump    `json:"shapes" yaml:"shapes" cbor:"4,keyasint"`
	Contexts []ContextDump  `json:"contexts" yaml:"contexts" cbor:"5,keyasint"`
	Funcs    []FunctionDump `json:"functions" yaml:"functions" cbor:"6,keyasint"`
	Arrays   []ArrayDump    `json:"arrays" yaml:"arrays" cbor:"7,keyasint"`
	Objects  []ObjectDump   `json:"objects" yaml:"objects" cbor:"8,keyasint"`
	Classes  []FunctionDump `json:"classes" yaml:"classes" cbor:"9,keyasint"`
	Exports  []ExportDump   `json:"exports" yaml:"exports" cbor:"10,keyasint"`

	// Trailing is the program text after the tables, if any.
	Trailing string `json:"trailing,omitempty" yaml:"trailing,omitempty" cbor:"11,keyasint,omitempty"`
}

type ShapeDump struct {
	// FirstCustom is the index of the first property with explicit
	// attributes, or -1.
	FirstCustom int            `json:"first_custom" yaml:"first_custom" cbor:"1,keyasint"`
	ProtoRef    uint32         `json:"proto_ref" yaml:"proto_ref" cbor:"2,keyasint"`
	Properties  []PropertyDump `json:"properties" yaml:"properties" cbor:"3,keyasint"`
}

type PropertyDump struct {
	Name  uint32 `json:"name" yaml:"name" cbor:"1,keyasint"`
	Flags uint32 `json:"flags" yaml:"flags" cbor:"2,keyasint"`
}

type ContextDump struct {
	Type      string    `json:"type" yaml:"type" cbor:"1,keyasint"`
	ParentRef uint32    `json:"parent_ref" yaml:"parent_ref" cbor:"2,keyasint"`
	Vars      []VarDump `json:"vars" yaml:"vars" cbor:"3,keyasint"`
}

type VarDump struct {
	Name  uint32    `json:"name" yaml:"name" cbor:"1,keyasint"`
	Value ValueDump `json:"value" yaml:"value" cbor:"2,keyasint"`
}

type FunctionDump struct {
	ContextRef   uint32 `json:"context_ref" yaml:"context_ref" cbor:"1,keyasint"`
	Source       uint32 `json:"source" yaml:"source" cbor:"2,keyasint"`
	Start        uint32 `json:"start" yaml:"start" cbor:"3,keyasint"`
	Length       uint32 `json:"length" yaml:"length" cbor:"4,keyasint"`
	Params       uint32 `json:"params" yaml:"params" cbor:"5,keyasint"`
	Flags        uint32 `json:"flags" yaml:"flags" cbor:"6,keyasint"`
	Kind         string `json:"kind" yaml:"kind" cbor:"7,keyasint"`
	PrototypeRef uint32 `json:"prototype_ref" yaml:"prototype_ref" cbor:"8,keyasint"`
}

type ArrayDump struct {
	Elements []ValueDump `json:"elements" yaml:"elements" cbor:"1,keyasint"`
}

type ObjectDump struct {
	Shape  uint32      `json:"shape" yaml:"shape" cbor:"1,keyasint"`
	Values []ValueDump `json:"values" yaml:"values" cbor:"2,keyasint"`
}

type ExportDump struct {
	Name  uint32    `json:"name" yaml:"name" cbor:"1,keyasint"`
	Value ValueDump `json:"value" yaml:"value" cbor:"2,keyasint"`
}

// ValueDump is one tagged value. ID holds the table id for reference
// types and the pattern string id for regexps.
type ValueDump struct {
	Type   ValueType `json:"type" yaml:"type" cbor:"1,keyasint"`
	Int    int32     `json:"int,omitempty" yaml:"int,omitempty" cbor:"2,keyasint,omitempty"`
	Double float64   `json:"double,omitempty" yaml:"double,omitempty" cbor:"3,keyasint,omitempty"`
	ID     uint32    `json:"id,omitempty" yaml:"id,omitempty" cbor:"4,keyasint,omitempty"`
	Flags  uint32    `json:"flags,omitempty" yaml:"flags,omitempty" cbor:"5,keyasint,omitempty"`
}

// MarshalYAML renders the type by name.
func (t ValueType) MarshalYAML() (any, error) { return t.String(), nil }

// Summary is the compact description stored next to a snapshot.
type Summary struct {
	Size          int    `json:"size" yaml:"size" cbor:"1,keyasint"`
	Counts        Counts `json:"counts" yaml:"counts" cbor:"2,keyasint"`
	TrailingBytes int    `json:"trailing_bytes" yaml:"trailing_bytes" cbor:"3,keyasint"`
}

func (d *Dump) Summary() Summary {
	return Summary{Size: d.Size, Counts: d.Counts, TrailingBytes: len(d.Trailing)}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

var dumpEncMode cbor.EncMode

func init() {
	var err error
	dumpEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("snapshot: failed to create CBOR enc mode: " + err.Error())
	}
}

// MarshalDump encodes v (a Dump or Summary) as canonical CBOR.
func MarshalDump(v any) ([]byte, error) {
	return dumpEncMode.Marshal(v)
}

// UnmarshalSummary decodes a Summary written by MarshalDump.
func UnmarshalSummary(data []byte) (Summary, error) {
	var s Summary
	err := cbor.Unmarshal(data, &s)
	return s, err
}

// YAML renders the dump as a YAML document.
func (d *Dump) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Inspect
// ---------------------------------------------------------------------------

type inspector struct {
	r    *Reader
	dump *Dump
	err  *Error
}

// Inspect decodes the structure of a snapshot without materializing it.
// Only the framing is checked: tags, counts and limits. Ids are reported
// as written.
func Inspect(data []byte) (*Dump, error) {
	in := &inspector{r: NewReader(data), dump: &Dump{Size: len(data)}}
	in.run()
	if in.err != nil {
		return nil, in.err
	}
	return in.dump, nil
}

func (in *inspector) fail(msg string) {
	if in.err == nil {
		in.err = newError(Malformed, msg)
		in.r.Clamp()
	}
}

func (in *inspector) u32(msg string) uint32 {
	v, err := in.r.ReadUint32()
	if err != nil {
		in.fail(msg)
	}
	return v
}

func (in *inspector) count(what string) int {
	n := in.u32("Malformed " + what)
	if n > MaxItemCount {
		in.fail("Too many " + what)
		return 0
	}
	return int(n)
}

func (in *inspector) run() {
	magic, err := in.r.ReadRaw(len(Magic))
	if err != nil || !bytes.Equal(magic, Magic[:]) {
		in.fail("Invalid data")
		return
	}
	d := in.dump

	n := in.count("strings")
	for i := 0; i < n && in.err == nil; i++ {
		s, err := in.r.ReadString()
		if err != nil {
			in.fail("Malformed string")
			return
		}
		d.Strings = append(d.Strings, s)
	}

	n = in.count("maps")
	for i := 0; i < n && in.err == nil; i++ {
		mode := in.u32("Malformed map")
		if mode != attributesDefault && mode != attributesCustom {
			in.fail("Unknown attribute mode")
			return
		}
		sd := ShapeDump{FirstCustom: -1, ProtoRef: in.u32("Malformed map")}
		props := in.u32("Malformed map")
		if props > MaxProperties {
			in.fail("Too many properties")
			return
		}
		for j := uint32(0); j < props && in.err == nil; j++ {
			p := PropertyDump{Flags: DefaultAttributeFlags}
			if mode == attributesCustom {
				p.Flags = in.u32("Malformed map")
				if p.Flags >= uint32(len(attributesByFlags)) {
					in.fail("Invalid property attributes")
				}
				if sd.FirstCustom < 0 && p.Flags != DefaultAttributeFlags {
					sd.FirstCustom = int(j)
				}
			}
			p.Name = in.u32("Malformed map")
			sd.Properties = append(sd.Properties, p)
		}
		d.Shapes = append(d.Shapes, sd)
	}

	n = in.count("contexts")
	for i := 0; i < n && in.err == nil; i++ {
		cd := ContextDump{}
		switch in.u32("Malformed context") {
		case contextTypeFunction:
			cd.Type = "function"
		case contextTypeBlock:
			cd.Type = "block"
		default:
			in.fail("Unknown context type")
			return
		}
		cd.ParentRef = in.u32("Malformed context")
		vars := in.count("context variables")
		for j := 0; j < vars && in.err == nil; j++ {
			cd.Vars = append(cd.Vars, VarDump{Name: in.u32("Malformed context"), Value: in.value()})
		}
		d.Contexts = append(d.Contexts, cd)
	}

	d.Funcs = in.functions("functions")

	n = in.count("arrays")
	for i := 0; i < n && in.err == nil; i++ {
		ad := ArrayDump{}
		length := in.count("array elements")
		for j := 0; j < length && in.err == nil; j++ {
			ad.Elements = append(ad.Elements, in.value())
		}
		d.Arrays = append(d.Arrays, ad)
	}

	n = in.count("objects")
	for i := 0; i < n && in.err == nil; i++ {
		od := ObjectDump{Shape: in.u32("Malformed object")}
		if int(od.Shape) >= len(d.Shapes) {
			in.fail("Malformed object: invalid map id")
			return
		}
		for range d.Shapes[od.Shape].Properties {
			od.Values = append(od.Values, in.value())
		}
		d.Objects = append(d.Objects, od)
	}

	d.Classes = in.functions("classes")

	n = in.count("exports")
	for i := 0; i < n && in.err == nil; i++ {
		d.Exports = append(d.Exports, ExportDump{Name: in.u32("Malformed export"), Value: in.value()})
	}
	if in.err != nil {
		return
	}
	d.Trailing = string(in.r.ReadRest())
	d.Counts = Counts{
		Strings:   len(d.Strings),
		Shapes:    len(d.Shapes),
		Contexts:  len(d.Contexts),
		Functions: len(d.Funcs),
		Arrays:    len(d.Arrays),
		Objects:   len(d.Objects),
		Classes:   len(d.Classes),
		Exports:   len(d.Exports),
	}
}

func (in *inspector) functions(what string) []FunctionDump {
	var out []FunctionDump
	n := in.count(what)
	for i := 0; i < n && in.err == nil; i++ {
		fd := FunctionDump{
			ContextRef: in.u32("Malformed function"),
			Source:     in.u32("Malformed function"),
			Start:      in.u32("Malformed function"),
			Length:     in.u32("Malformed function"),
			Params:     in.u32("Malformed function"),
			Flags:      in.u32("Malformed function"),
		}
		kind, err := DecodeFunctionKind(fd.Flags)
		if err != nil && in.err == nil {
			in.fail("Invalid function flags")
		}
		fd.Kind = kind.String()
		fd.PrototypeRef = in.u32("Malformed function")
		out = append(out, fd)
	}
	return out
}

func (in *inspector) value() ValueDump {
	v := ValueDump{Type: ValueType(in.u32("Malformed variable"))}
	if in.err != nil {
		return v
	}
	switch v.Type {
	case ValueFalse, ValueTrue, ValueNull, ValueUndefined:
	case ValueInteger:
		n, err := in.r.ReadZigZag()
		if err != nil {
			in.fail("Malformed integer")
		}
		v.Int = n
	case ValueDouble:
		f, err := in.r.ReadDouble()
		if err != nil {
			in.fail("Malformed double")
		}
		v.Double = f
	case ValueStringID, ValueArrayID, ValueObjectID, ValueFunctionID, ValueClassID:
		v.ID = in.u32("Malformed variable")
	case ValueRegExp:
		v.ID = in.u32("Malformed RegExp")
		v.Flags = in.u32("Malformed RegExp")
	default:
		in.fail("Unknown value type")
	}
	return v
}
