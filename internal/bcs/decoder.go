package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// AddressLength is the size in bytes of an address or object ID.
const AddressLength = 32

// maxLength bounds ULEB128 length prefixes.
const maxLength = 1<<31 - 1

var (
	ErrShortRead      = errors.New("unexpected end of input")
	ErrTrailingBytes  = errors.New("trailing bytes after value")
	ErrInvalidBool    = errors.New("invalid bool byte")
	ErrInvalidUTF8    = errors.New("string is not valid utf-8")
	ErrLengthOverflow = errors.New("length prefix out of range")
)

// Decoder reads values sequentially from a payload.
// It is not safe for concurrent use.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, d.off, d.Remaining(), ErrShortRead)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// U8 reads a single byte.
func (d *Decoder) U8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bool reads a one-byte boolean.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.U8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("byte 0x%02x at offset %d: %w", v, d.off-1, ErrInvalidBool)
	}
}

// U64 reads a little-endian unsigned 64-bit integer.
func (d *Decoder) U64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ULEB128 reads a canonical unsigned LEB128 length prefix.
func (d *Decoder) ULEB128() (int, error) {
	var value uint64
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := d.U8()
		if err != nil {
			return 0, err
		}
		digit := uint64(b & 0x7f)
		value |= digit << shift
		if value > maxLength {
			return 0, fmt.Errorf("value exceeds %d: %w", maxLength, ErrLengthOverflow)
		}
		if b&0x80 == 0 {
			// A zero final byte after the first one is a non-canonical encoding.
			if shift > 0 && digit == 0 {
				return 0, fmt.Errorf("non-canonical encoding: %w", ErrLengthOverflow)
			}
			return int(value), nil
		}
	}
	return 0, fmt.Errorf("prefix longer than 5 bytes: %w", ErrLengthOverflow)
}

// Bytes reads a length-prefixed byte vector. The returned slice aliases the payload.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.ULEB128()
	if err != nil {
		return nil, err
	}
	return d.take(n)
}

// String reads a length-prefixed UTF-8 string.
func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Address reads a fixed 32-byte address or object ID.
func (d *Decoder) Address() ([AddressLength]byte, error) {
	var a [AddressLength]byte
	b, err := d.take(AddressLength)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// Finish reports an error if any bytes remain unread.
func (d *Decoder) Finish() error {
	if n := d.Remaining(); n > 0 {
		return fmt.Errorf("%d bytes: %w", n, ErrTrailingBytes)
	}
	return nil
}
