package bin

import "errors"

// MaxVarIntLen is the longest encoding of a uint64.
const MaxVarIntLen = 10

// ErrVarIntOverflow is panicked by Decoder.VarInt on an encoding longer than
// MaxVarIntLen bytes.
var ErrVarIntOverflow = errors.New("bin: varint overflows a 64-bit integer")

// VarInt parses a varint (protocol-buffer base-128 encoding, least
// significant group first).
func (r *Decoder) VarInt() uint64 {
	var n uint64
	for i := 0; i < MaxVarIntLen; i++ {
		b := r.Uint8()
		n |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return n
		}
	}
	panic(ErrVarIntOverflow)
}

// Array decodes a byte array prefixed with its varint length. The result
// aliases the decoder's buffer.
func (r *Decoder) Array() []byte {
	return r.Bytes(int(r.VarInt()))
}

// String decodes an Array, copying it out of the buffer.
func (r *Decoder) String() string {
	return string(r.Array())
}

// VarInt encodes u as a varint.
func (w *Encoder) VarInt(u uint64) {
	var buf [MaxVarIntLen]byte
	n := 0
	for u >= 0x80 {
		buf[n] = byte(u) | 0x80
		u >>= 7
		n++
	}
	buf[n] = byte(u)
	w.Bytes(buf[:n+1])
}

func (w *Encoder) Array(data []byte) {
	w.VarInt(uint64(len(data)))
	w.Bytes(data)
}

// String encodes s like Array.
func (w *Encoder) String(s string) {
	w.VarInt(uint64(len(s)))
	w.Bytes([]byte(s))
}
