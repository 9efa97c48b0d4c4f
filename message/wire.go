package message

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Writer appends little-endian primitives to a growing byte slice.
// Writing to memory cannot fail; Err exists so Serialize implementations read the
// same way as their Deserialize mirror.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }
func (w *Writer) Err() error    { return nil }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteInt8(v int8)     { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) WriteInt16(v int16)   { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) WriteInt32(v int32)   { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *Writer) WriteInt64(v int64)   { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteUvarint writes v as a 7-bit group varint (the .NET "7BitEncodedInt" layout
// for non-negative values).
func (w *Writer) WriteUvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }

// WriteString writes a uvarint byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes a uvarint length followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteRaw appends b with no length prefix.
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes primitives written by Writer. The first failure is sticky: later
// reads return zero values and Err reports the original cause.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }
func (r *Reader) Offset() int    { return r.off }

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte { return r.buf[r.off:] }

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = errors.Wrapf(err, "at offset %d", r.off)
	}
	return r.err
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(ErrShortBuffer)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

func (r *Reader) ReadFloat32() float32 { return math.Float32frombits(r.ReadUint32()) }
func (r *Reader) ReadFloat64() float64 { return math.Float64frombits(r.ReadUint64()) }

func (r *Reader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail(ErrInvalidLength)
		return 0
	}
	r.off += n
	return v
}

// readLen reads a uvarint length and checks it against the unread bytes.
func (r *Reader) readLen() int {
	n := r.ReadUvarint()
	if r.err != nil {
		return 0
	}
	if n > uint64(r.Remaining()) {
		r.fail(ErrInvalidLength)
		return 0
	}
	return int(n)
}

func (r *Reader) ReadString() string {
	n := r.readLen()
	if n == 0 {
		return ""
	}
	return string(r.take(n))
}

// ReadBytes returns a copy of a length-prefixed byte run.
func (r *Reader) ReadBytes() []byte {
	n := r.readLen()
	if r.err != nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.take(n))
	return out
}

// WriteList writes a nullable list: [present bool][count i32][items].
// A nil slice is written as absent; an empty non-nil slice as present with count 0.
func WriteList[T any](w *Writer, items []T, write func(*Writer, T)) {
	if items == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteInt32(int32(len(items)))
	for _, it := range items {
		write(w, it)
	}
}

// ReadList mirrors WriteList. Absent lists come back nil, empty ones as a non-nil
// zero-length slice.
func ReadList[T any](r *Reader, read func(*Reader) T) []T {
	if !r.ReadBool() {
		return nil
	}
	count := r.ReadInt32()
	if r.err != nil {
		return nil
	}
	// every encoded item occupies at least one byte
	if count < 0 || int(count) > r.Remaining() {
		r.fail(ErrInvalidLength)
		return nil
	}
	items := make([]T, 0, count)
	for i := int32(0); i < count; i++ {
		it := read(r)
		if r.err != nil {
			return nil
		}
		items = append(items, it)
	}
	return items
}

// WriteOptional writes a nullable struct: [present bool][fields].
func WriteOptional[T any](w *Writer, v *T, write func(*Writer, *T)) {
	if v == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	write(w, v)
}

// ReadOptional mirrors WriteOptional.
func ReadOptional[T any](r *Reader, read func(*Reader, *T)) *T {
	if !r.ReadBool() {
		return nil
	}
	v := new(T)
	read(r, v)
	if r.err != nil {
		return nil
	}
	return v
}
