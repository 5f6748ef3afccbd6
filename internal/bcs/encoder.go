package bcs

import "encoding/binary"

// Encoder builds a payload by appending values in field order.
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// U8 appends a single byte.
func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// Bool appends a one-byte boolean.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}
	return e.U8(0)
}

// U64 appends a little-endian unsigned 64-bit integer.
func (e *Encoder) U64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// ULEB128 appends a length prefix.
func (e *Encoder) ULEB128(n int) *Encoder {
	v := uint32(n)
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
	return e
}

// Bytes appends a length-prefixed byte vector.
func (e *Encoder) Bytes(b []byte) *Encoder {
	e.ULEB128(len(b))
	e.buf = append(e.buf, b...)
	return e
}

// String appends a length-prefixed string.
func (e *Encoder) String(s string) *Encoder {
	return e.Bytes([]byte(s))
}

// Address appends a fixed 32-byte address.
func (e *Encoder) Address(a [AddressLength]byte) *Encoder {
	e.buf = append(e.buf, a[:]...)
	return e
}

// Raw appends bytes without a length prefix.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Encoded returns the payload built so far.
func (e *Encoder) Encoded() []byte {
	return e.buf
}
