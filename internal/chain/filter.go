package chain

import "strings"

// moduleSeparator splits "package::module::Type" event tags.
const moduleSeparator = "::"

// PackageOf returns the package identifier of a fully qualified event type tag,
// i.e. everything before the first "::". ok is false when the tag has no separator.
func PackageOf(typeTag string) (pkg string, ok bool) {
	i := strings.Index(typeTag, moduleSeparator)
	if i < 0 {
		return "", false
	}
	return typeTag[:i], true
}

// NormalizePackageID strips leading zeros from the hex digits of a 0x-prefixed
// package identifier, so "0x0000abc" and "0xabc" compare equal. Identifiers
// without the 0x prefix are returned unchanged.
//
// The result is not re-padded: an all-zero identifier normalizes to "0x".
func NormalizePackageID(id string) string {
	hexPart, ok := strings.CutPrefix(id, "0x")
	if !ok {
		return id
	}
	return "0x" + strings.TrimLeft(hexPart, "0")
}

// PackageFilter admits events emitted by a single on-chain package.
// The zero value admits nothing that carries a package identifier.
type PackageFilter struct {
	expected string
}

// NewPackageFilter returns a filter for the given package identifier.
func NewPackageFilter(packageID string) PackageFilter {
	return PackageFilter{expected: NormalizePackageID(packageID)}
}

// PackageID returns the normalized identifier the filter admits.
func (f PackageFilter) PackageID() string {
	return f.expected
}

// Admit reports whether the event type tag originates from the filter's package.
// A tag without a module separator is never admitted.
func (f PackageFilter) Admit(typeTag string) bool {
	pkg, ok := PackageOf(typeTag)
	if !ok {
		return false
	}
	return NormalizePackageID(pkg) == f.expected
}
