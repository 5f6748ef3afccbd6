package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/eventidx/internal/bcs"
)

// Address is a 32-byte account address or object ID.
type Address [bcs.AddressLength]byte

// ParseAddress parses a 0x-prefixed hex address. Short forms such as "0x1"
// are left-padded with zeros to the full 32 bytes.
func ParseAddress(s string) (Address, error) {
	var a Address
	hexPart, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return a, fmt.Errorf("parse address %q: missing 0x prefix", s)
	}
	if len(hexPart) == 0 || len(hexPart) > 2*bcs.AddressLength {
		return a, fmt.Errorf("parse address %q: want 1 to %d hex digits", s, 2*bcs.AddressLength)
	}
	if len(hexPart)%2 == 1 {
		hexPart = "0" + hexPart
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	copy(a[bcs.AddressLength-len(raw):], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the address as 0x followed by 64 lowercase hex digits.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}
