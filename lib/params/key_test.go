package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncodeDecode(t *testing.T) {
	for _, k := range []Key{
		GlobalKey("timeout"),
		GlobalKey(""),
		ScopedKey("v1", "policy", "alpha"),
		ScopedKey("", "", ""),
		ScopedKey("v/1", "p\x00o", "a/b/c"),
		ScopedKey(string(make([]byte, 300)), "c", "n"),
	} {
		decoded, err := DecodeKey(k.Encode())
		require.NoError(t, err, k.String())
		assert.Equal(t, k, decoded)
	}
}

func TestKeyEncodingIsInjective(t *testing.T) {
	// the same concatenated text must not collide
	a := ScopedKey("ab", "c", "d").Encode()
	b := ScopedKey("a", "bc", "d").Encode()
	c := ScopedKey("a", "b", "cd").Encode()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)

	// a global id that looks like a scoped key stays global
	g := GlobalKey(ScopedKey("v", "c", "n").Encode())
	decoded, err := DecodeKey(g.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.Global)
}

func TestDecodeKeyInvalid(t *testing.T) {
	for _, enc := range []string{
		"",
		"x",
		"s",
		"s\x05ab",
		"s\x01a",
		"s\x01a\x09bc",
		"s\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff",
	} {
		_, err := DecodeKey(enc)
		assert.Error(t, err, "%q", enc)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "global:timeout", GlobalKey("timeout").String())
	assert.Equal(t, "v1/policy/alpha", ScopedKey("v1", "policy", "alpha").String())
}

func TestPatternMatches(t *testing.T) {
	k := ScopedKey("v1", "policy", "alpha")

	tests := []struct {
		pattern Pattern
		match   bool
	}{
		{Pattern{Literal("v1"), Literal("policy"), Literal("alpha")}, true},
		{Pattern{Any, Any, Any}, true},
		{Pattern{Literal("v1"), Any, Any}, true},
		{Pattern{Any, Literal("policy"), Any}, true},
		{Pattern{Any, Any, Literal("alpha")}, true},
		{Pattern{Literal("v2"), Any, Any}, false},
		{Pattern{Any, Literal("queue"), Any}, false},
		{Pattern{Literal("v1"), Literal("policy"), Literal("beta")}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, tt.pattern.Matches(k), tt.pattern.String())
	}

	assert.False(t, Pattern{Any, Any, Any}.Matches(GlobalKey("alpha")), "global keys never match")
}

func TestField(t *testing.T) {
	assert.True(t, ParseField("_").IsAny())
	assert.False(t, ParseField("v1").IsAny())

	v, ok := ParseField("v1").Value()
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = Any.Value()
	assert.False(t, ok)

	// the zero value is the empty literal, not the wildcard
	var zero Field
	assert.True(t, zero.Matches(""))
	assert.False(t, zero.Matches("x"))
	assert.Equal(t, "_/v1/", Pattern{Any, Literal("v1"), Literal("")}.String())
}
