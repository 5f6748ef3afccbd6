package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("lamp"), `"lamp"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool", IRBool(true), "true"},
		{"go uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"go int", 7, "7"},
		{"empty object", IRObject{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	row := IRObject{
		"stake_amount": IRInt(1000),
		"agent_id":     IRString("0x1"),
		"active":       IRBool(true),
	}

	result, err := MarshalCanonical(row)
	require.NoError(t, err)
	assert.Equal(t, `{"active":true,"agent_id":"0x1","stake_amount":1000}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// UTF-16 puts the surrogate pair of U+10000 (0xD800) before U+E000; UTF-8 does not.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("https://shop.example/p?a=1&b=<2>"))
	require.NoError(t, err)
	assert.Equal(t, `"https://shop.example/p?a=1&b=<2>"`, string(result))
}

func TestMarshalCanonicalEscapes(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\"b\\c\nd\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001"`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "null"},
		{"float64", float64(3.14), "float"},
		{"float32", float32(3.14), "float"},
		{"nested float", map[string]any{"price": 1.5}, "price"},
		{"slice", []string{"x"}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	r1, err := MarshalCanonical(IRObject{composed: IRString(composed)})
	require.NoError(t, err)
	r2, err := MarshalCanonical(IRObject{decomposed: IRString(decomposed)})
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestMarshalExactKeepsStrings(t *testing.T) {
	decomposed := "cafe\u0301"

	exact, err := MarshalExact(IRObject{"product": IRString(decomposed), "price": IRInt(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"price":3,"product":"`+decomposed+`"}`, string(exact))

	canonical, err := MarshalCanonical(IRString(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(canonical))

	viaJSON, err := IRObject{"product": IRString(decomposed)}.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(viaJSON), decomposed)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	// The text `\u2028` (backslash, u, 2, 0, 2, 8) is not a separator and stays escaped.
	result, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestIRObjectMarshalJSON(t *testing.T) {
	obj := IRObject{"b": IRInt(1), "a": IRString("<x>")}
	data, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":1}`, string(data))
}

func TestNative(t *testing.T) {
	s, err := Native(IRString("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	n, err := Native(IRInt(-3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), n)

	b, err := Native(IRBool(true))
	require.NoError(t, err)
	assert.Equal(t, true, b)

	_, err = Native(nil)
	assert.Error(t, err)
}

func FuzzMarshalCanonicalStable(f *testing.F) {
	f.Add("lamp")
	f.Add("a\u2028b")
	f.Add(`\u2029`)
	f.Fuzz(func(t *testing.T, s string) {
		r1, err1 := MarshalCanonical(IRString(s))
		r2, err2 := MarshalCanonical(IRString(s))
		assert.Equal(t, err1, err2)
		assert.Equal(t, r1, r2)
	})
}
