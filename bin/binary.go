package bin

import (
	"encoding/binary"
	"io"
	"math"
)

// Binary parsing/serialization for snapshots and sorted sets.
//
// Decoding is unchecked: reading past the end of the buffer panics, and callers
// that parse untrusted data (snapshot.Decode) recover at their boundary.

// Decoder streams binary data from a byte buffer.
type Decoder struct {
	buf []byte
}

// NewDecoder creates a decoder that parses data from buffer b.
//
// Retains b, which the caller should not use afterward.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b}
}

// RemainingBytes gives the number of bytes remaining in the buffer.
func (r Decoder) RemainingBytes() int {
	return len(r.buf)
}

// Bytes is a primitive decoder that reads a fixed number of bytes.
func (r *Decoder) Bytes(n int) []byte {
	d := r.buf[:n]
	r.buf = r.buf[n:]
	return d
}

// Encoder encodes values to an output stream.
type Encoder struct {
	w io.Writer
	// total bytes written since initialization
	bytesWritten int
}

// NewEncoder creates an encoder that writes data to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, bytesWritten: 0}
}

// BytesWritten returns the number of bytes written to the encoder since this
// encoder was created.
func (w Encoder) BytesWritten() int {
	return w.bytesWritten
}

// Bytes is a primitive encoder that copies bytes.
func (w *Encoder) Bytes(b []byte) {
	for len(b) > 0 {
		n, err := w.w.Write(b)
		if err != nil {
			panic(err)
		}
		w.bytesWritten += n
		b = b[n:]
	}
}

// Uint64 decodes a uint64 (in little endian format).
func (r *Decoder) Uint64() uint64 {
	return binary.LittleEndian.Uint64(r.Bytes(8))
}

// Uint32 decodes a uint32 (in little endian format).
func (r *Decoder) Uint32() uint32 {
	return binary.LittleEndian.Uint32(r.Bytes(4))
}

// Uint8 decodes a uint8
func (r *Decoder) Uint8() uint8 {
	return r.Bytes(1)[0]
}

// Int64 decodes a two's complement int64.
func (r *Decoder) Int64() int64 {
	return int64(r.Uint64())
}

// Float64 decodes an IEEE 754 double.
func (r *Decoder) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Uint64 encodes a uint64 (in little endian format).
func (w *Encoder) Uint64(v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	w.Bytes(b)
}

// Uint32 encodes a uint32 (in little endian format).
func (w *Encoder) Uint32(v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.Bytes(b)
}

// Uint8 encodes a uint8
func (w *Encoder) Uint8(b uint8) {
	w.Bytes([]byte{b})
}

// Int64 encodes an int64 as its two's complement bits.
func (w *Encoder) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Float64 encodes a double so that it round-trips exactly (including NaN
// payloads and infinities).
func (w *Encoder) Float64(f float64) {
	w.Uint64(math.Float64bits(f))
}
