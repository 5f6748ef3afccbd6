package ir

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed interface for column values.
// Only IRString, IRInt and IRBool implement it.
type IRValue interface {
	irValue() // sealed
}

// IRString is a text column value.
type IRString string

func (IRString) irValue() {}

// IRInt is a BIGINT column value. Never a float.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a BOOLEAN column value.
type IRBool bool

func (IRBool) irValue() {}

// IRObject maps column names to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go string comparison is by UTF-8 bytes, which orders some keys differently.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	return keys
}

// MarshalJSON renders the object with sorted keys and strings as held.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalExact(obj)
}

// Native converts a value to the Go type a database/sql driver accepts.
func Native(v IRValue) (any, error) {
	switch val := v.(type) {
	case IRString:
		return string(val), nil
	case IRInt:
		return int64(val), nil
	case IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}
