package netmsg

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxStringLen bounds every length-delimited string on the wire.
const MaxStringLen = 1 << 12

// Writer serializes positional fields into a caller-owned buffer,
// little-endian. Errors are sticky: after the first failure every write is
// a no-op and Err reports the cause.
type Writer struct {
	buf []byte
	off int
	err error
}

// NewWriter wraps buf for writing. The buffer is typically the payload
// buffer of a pooled packet.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.off }

// Err returns the first write failure, if any.
func (w *Writer) Err() error { return w.err }

func (w *Writer) need(n int) bool {
	if w.err != nil {
		return false
	}
	if w.off+n > len(w.buf) {
		w.err = fmt.Errorf("message encode: buffer full at offset %d (need %d more, have %d)", w.off, n, len(w.buf)-w.off)
		return false
	}
	return true
}

// U8 writes one byte.
func (w *Writer) U8(v byte) {
	if !w.need(1) {
		return
	}
	w.buf[w.off] = v
	w.off++
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	if !w.need(2) {
		return
	}
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	if !w.need(4) {
		return
	}
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

// I64 writes a little-endian int64.
func (w *Writer) I64(v int64) {
	if !w.need(8) {
		return
	}
	binary.LittleEndian.PutUint64(w.buf[w.off:], uint64(v))
	w.off += 8
}

// F32 writes a little-endian IEEE-754 float32.
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// String writes a u16 length prefix followed by the raw bytes.
func (w *Writer) String(s string) {
	if w.err != nil {
		return
	}
	if len(s) > MaxStringLen {
		w.err = fmt.Errorf("message encode: string length %d exceeds max %d", len(s), MaxStringLen)
		return
	}
	if !w.need(2 + len(s)) {
		return
	}
	binary.LittleEndian.PutUint16(w.buf[w.off:], uint16(len(s)))
	w.off += 2
	w.off += copy(w.buf[w.off:], s)
}

// Reader deserializes positional fields from a payload, little-endian,
// with the same sticky-error discipline as Writer.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader wraps data for reading.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first read failure, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("message decode: truncated at offset %d (need %d more, have %d)", r.off, n, len(r.data)-r.off)
		return false
	}
	return true
}

// U8 reads one byte.
func (r *Reader) U8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// I64 reads a little-endian int64.
func (r *Reader) I64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

// F32 reads a little-endian IEEE-754 float32.
func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

// String reads a u16 length prefix followed by that many bytes.
func (r *Reader) String() string {
	n := int(r.U16())
	if r.err != nil {
		return ""
	}
	if n > MaxStringLen {
		r.err = fmt.Errorf("message decode: string length %d exceeds max %d", n, MaxStringLen)
		return ""
	}
	if !r.need(n) {
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// expectKind consumes the leading kind field and checks it.
func (r *Reader) expectKind(want Kind) {
	got := Kind(r.U16())
	if r.err == nil && got != want {
		r.err = fmt.Errorf("message decode: kind mismatch (want %v, got %v)", want, got)
	}
}
