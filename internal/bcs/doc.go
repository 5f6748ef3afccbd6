// Package bcs implements the compact, field-order-dependent binary encoding used by
// on-chain event payloads.
//
// The encoding has no field names, no padding and no self-description: a payload
// can only be read by a decoder that knows the exact field order and types.
//
//   - u8, bool: one byte (bool must be 0 or 1)
//   - u64: eight bytes, little endian
//   - lengths: ULEB128, canonical, at most 2^31-1
//   - strings, byte vectors: length prefix followed by the raw bytes
//   - addresses and object IDs: 32 raw bytes, no length prefix
//
// Decoding is strict. A payload with missing bytes, extra trailing bytes, a bool
// outside {0,1}, a non-canonical length or invalid UTF-8 in a string is rejected.
package bcs
