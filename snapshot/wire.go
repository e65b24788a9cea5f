package snapshot

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// Magic is the four byte prefix of every snapshot.
var Magic = [4]byte{'+', '+', '+', ';'}

var (
	ErrUnexpectedEOF = errors.New("unexpected end of snapshot data")
	ErrVarIntTooLong = errors.New("varint does not fit in 32 bits")
	ErrInvalidUTF8   = errors.New("string is not valid UTF-8")
)

// maxVarInt32Len is the longest LEB128 encoding of a uint32.
const maxVarInt32Len = 5

// ---------------------------------------------------------------------------
// Writer: append-only byte buffer
// ---------------------------------------------------------------------------

// Writer appends typed primitives to a growing byte buffer. Unsigned
// integers are LEB128 varints, signed ones zig-zag encoded first, doubles
// eight little-endian bytes.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

// WriteByte appends one byte. It never fails.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteUint32 appends v as an unsigned varint.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
}

// WriteZigZag appends v as a zig-zag encoded varint.
func (w *Writer) WriteZigZag(v int32) {
	w.WriteUint32(uint32((v << 1) ^ (v >> 31)))
}

// WriteDouble appends f as eight little-endian bytes.
func (w *Writer) WriteDouble(f float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(f))
}

// WriteRaw appends b unchanged.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteString appends a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// ---------------------------------------------------------------------------
// Reader: cursor over an immutable byte slice
// ---------------------------------------------------------------------------

// Reader consumes primitives written by Writer. Every read is bounds
// checked; a failed read leaves the cursor where it was.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Position() int  { return r.pos }
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Clamp moves the cursor to the end so every later read fails.
func (r *Reader) Clamp() { r.pos = len(r.data) }

// ReadUint32 reads an unsigned varint that must fit in 32 bits.
func (r *Reader) ReadUint32() (uint32, error) {
	var v uint32
	for i := 0; i < maxVarInt32Len; i++ {
		if r.pos+i >= len(r.data) {
			return 0, ErrUnexpectedEOF
		}
		b := r.data[r.pos+i]
		if i == maxVarInt32Len-1 && b > 0x0F {
			return 0, ErrVarIntTooLong
		}
		v |= uint32(b&0x7F) << (7 * i)
		if b < 0x80 {
			r.pos += i + 1
			return v, nil
		}
	}
	return 0, ErrVarIntTooLong
}

// ReadZigZag reads a zig-zag encoded varint.
func (r *Reader) ReadZigZag() (int32, error) {
	u, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return int32(u>>1) ^ -int32(u&1), nil
}

// ReadDouble reads eight little-endian bytes as a float64.
func (r *Reader) ReadDouble() (float64, error) {
	if r.Remaining() < 8 {
		return 0, ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadRaw reads n bytes. The result aliases the underlying buffer.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadString reads a length-prefixed string and checks it is valid UTF-8.
func (r *Reader) ReadString() (string, error) {
	start := r.pos
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadRaw(int(n))
	if err != nil {
		r.pos = start
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// ReadRest returns every remaining byte and moves the cursor to the end.
func (r *Reader) ReadRest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}
