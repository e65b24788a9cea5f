package snapshot

import (
	"errors"
	"math"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// ---------------------------------------------------------------------------
// Writer / Reader tests
// ---------------------------------------------------------------------------

func TestUint32VarIntRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16383, 16384, 1 << 28, math.MaxUint32}
	w := NewWriter()
	for _, v := range values {
		w.WriteUint32(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadUint32()
		if err != nil {
			t.Fatalf("ReadUint32 failed: %v", err)
		}
		if got != want {
			t.Errorf("ReadUint32() = %d, want %d", got, want)
		}
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestVarIntEncodingSizes(t *testing.T) {
	tests := []struct {
		v    uint32
		size int
	}{
		{0, 1}, {127, 1}, {128, 2}, {16383, 2}, {16384, 3}, {math.MaxUint32, 5},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteUint32(tt.v)
		if w.Len() != tt.size {
			t.Errorf("WriteUint32(%d) wrote %d bytes, want %d", tt.v, w.Len(), tt.size)
		}
	}
}

func TestReadUint32Overflow(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrVarIntTooLong) {
		t.Errorf("ReadUint32 = %v, want ErrVarIntTooLong", err)
	}
	r = NewReader([]byte{0x80, 0x80})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadUint32 = %v, want ErrUnexpectedEOF", err)
	}
	if r.Position() != 0 {
		t.Errorf("failed read moved the cursor to %d", r.Position())
	}
}

func TestZigZag(t *testing.T) {
	tests := []struct {
		v    int32
		wire uint32
	}{
		{0, 0}, {-1, 1}, {1, 2}, {-2, 3}, {math.MaxInt32, math.MaxUint32 - 1}, {math.MinInt32, math.MaxUint32},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteZigZag(tt.v)
		raw, _ := NewReader(w.Bytes()).ReadUint32()
		if raw != tt.wire {
			t.Errorf("zigzag(%d) = %d, want %d", tt.v, raw, tt.wire)
		}
		got, err := NewReader(w.Bytes()).ReadZigZag()
		if err != nil || got != tt.v {
			t.Errorf("ReadZigZag() = %d, %v, want %d", got, err, tt.v)
		}
	}
}

func TestDoubleAndString(t *testing.T) {
	w := NewWriter()
	w.WriteDouble(math.Inf(-1))
	w.WriteString("héllo")
	w.WriteDouble(0.1)

	r := NewReader(w.Bytes())
	if f, _ := r.ReadDouble(); !math.IsInf(f, -1) {
		t.Errorf("ReadDouble() = %v, want -Inf", f)
	}
	if s, err := r.ReadString(); err != nil || s != "héllo" {
		t.Errorf("ReadString() = %q, %v", s, err)
	}
	if f, _ := r.ReadDouble(); f != 0.1 {
		t.Errorf("ReadDouble() = %v, want 0.1", f)
	}
	if _, err := r.ReadDouble(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadDouble past end = %v, want ErrUnexpectedEOF", err)
	}
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(2)
	w.WriteRaw([]byte{0xC3, 0x28})
	if _, err := NewReader(w.Bytes()).ReadString(); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("ReadString = %v, want ErrInvalidUTF8", err)
	}

	w = NewWriter()
	w.WriteUint32(10)
	w.WriteRaw([]byte("abc"))
	if _, err := NewReader(w.Bytes()).ReadString(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadString truncated = %v, want ErrUnexpectedEOF", err)
	}
}

func TestReaderClamp(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	r.Clamp()
	if _, err := r.ReadUint32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("read after Clamp = %v, want ErrUnexpectedEOF", err)
	}
	if len(r.ReadRest()) != 0 {
		t.Error("ReadRest after Clamp should be empty")
	}
}

func TestWirePrimitiveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("zigzag round trips every int32", prop.ForAll(
		func(v int32) bool {
			w := NewWriter()
			w.WriteZigZag(v)
			got, err := NewReader(w.Bytes()).ReadZigZag()
			return err == nil && got == v
		},
		gen.Int32(),
	))

	properties.Property("uint32 round trips and uses at most five bytes", prop.ForAll(
		func(v uint32) bool {
			w := NewWriter()
			w.WriteUint32(v)
			got, err := NewReader(w.Bytes()).ReadUint32()
			return err == nil && got == v && w.Len() <= maxVarInt32Len
		},
		gen.UInt32(),
	))

	properties.Property("strings round trip", prop.ForAll(
		func(s string) bool {
			w := NewWriter()
			w.WriteString(s)
			got, err := NewReader(w.Bytes()).ReadString()
			if !utf8.ValidString(s) {
				return errors.Is(err, ErrInvalidUTF8)
			}
			return err == nil && got == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
