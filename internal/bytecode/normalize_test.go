package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMask(t *testing.T) {
	code := []byte{1, 2, 3, 4, 5, 6}

	tests := []struct {
		name  string
		masks []Range
		want  []byte
	}{
		{"no masks", nil, []byte{1, 2, 3, 4, 5, 6}},
		{"inner range", []Range{{Start: 1, Length: 2}}, []byte{1, 0, 0, 4, 5, 6}},
		{"range past end is clipped", []Range{{Start: 4, Length: 10}}, []byte{1, 2, 3, 4, 0, 0}},
		{"range fully out of bounds", []Range{{Start: 10, Length: 2}}, []byte{1, 2, 3, 4, 5, 6}},
		{"negative start ignored", []Range{{Start: -1, Length: 2}}, []byte{1, 2, 3, 4, 5, 6}},
		{"overlapping ranges", []Range{{Start: 0, Length: 3}, {Start: 2, Length: 2}}, []byte{0, 0, 0, 0, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mask(code, tt.masks)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, code, "input must not be modified")
}

func TestNormalizeIdempotent(t *testing.T) {
	compiled := []byte{0x73, 0xaa, 0xbb, 0xcc, 0x60, 0x01}
	onChain := []byte{0x73, 0x11, 0x22, 0x33, 0x60, 0x01}
	masks := []Range{{Start: 1, Length: 3}}

	c1, o1 := Normalize(compiled, onChain, masks)
	c2, o2 := Normalize(c1, o1, masks)

	assert.Equal(t, c1, c2)
	assert.Equal(t, o1, o2)
	assert.Equal(t, c1, o1)
}

func TestLinkMasks(t *testing.T) {
	refs := LinkReferences{
		"contracts/Math.sol": {
			"Math": {{Start: 10, Length: 20}, {Start: 50, Length: 20}},
		},
	}

	t.Run("resolved by name", func(t *testing.T) {
		masks, err := LinkMasks(refs, map[string]string{"Math": "0x0000000000000000000000000000000000000001"})
		require.NoError(t, err)
		assert.Len(t, masks, 2)
	})

	t.Run("resolved by qualified name", func(t *testing.T) {
		masks, err := LinkMasks(refs, map[string]string{"contracts/Math.sol:Math": "0x01"})
		require.NoError(t, err)
		assert.Equal(t, []Range{{Start: 10, Length: 20}, {Start: 50, Length: 20}}, masks)
	})

	t.Run("unresolved", func(t *testing.T) {
		_, err := LinkMasks(refs, map[string]string{"Other": "0x01"})
		var unresolved *UnresolvedLibraryError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, "contracts/Math.sol:Math", unresolved.Library)
	})

	t.Run("no references", func(t *testing.T) {
		masks, err := LinkMasks(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, masks)
	})
}

func TestImmutableMasks(t *testing.T) {
	masks := ImmutableMasks(ImmutableReferences{
		"7": {{Start: 100, Length: 32}},
		"3": {{Start: 4, Length: 32}, {Start: 40, Length: 32}},
	})
	assert.Equal(t, []Range{{Start: 4, Length: 32}, {Start: 40, Length: 32}, {Start: 100, Length: 32}}, masks)
}

func TestPlaceholderFor(t *testing.T) {
	p := PlaceholderFor("contracts/Math.sol:Math")
	assert.Len(t, p, 40)
	assert.True(t, strings.HasPrefix(p, "__$"))
	assert.True(t, strings.HasSuffix(p, "$__"))
	assert.NotEqual(t, p, PlaceholderFor("contracts/Math.sol:Other"))
}

func TestDecodeLinked(t *testing.T) {
	placeholder := PlaceholderFor("lib/L.sol:L")

	t.Run("plain hex", func(t *testing.T) {
		b, err := DecodeLinked("0x6080")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x80}, b)
	})

	t.Run("hash placeholder is zeroed", func(t *testing.T) {
		b, err := DecodeLinked("73" + placeholder + "6001")
		require.NoError(t, err)
		require.Len(t, b, 23)
		assert.Equal(t, byte(0x73), b[0])
		assert.Equal(t, make([]byte, 20), b[1:21])
		assert.Equal(t, []byte{0x60, 0x01}, b[21:])
	})

	t.Run("legacy placeholder is zeroed", func(t *testing.T) {
		legacy := "__Math" + strings.Repeat("_", 34)
		b, err := DecodeLinked("0x73" + legacy)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, 20), b[1:])
	})

	t.Run("truncated placeholder", func(t *testing.T) {
		_, err := DecodeLinked("73__$abc")
		assert.Error(t, err)
	})

	t.Run("invalid hex", func(t *testing.T) {
		_, err := DecodeLinked("0xzz")
		assert.Error(t, err)
	})
}

func TestFindPlaceholders(t *testing.T) {
	placeholder := PlaceholderFor("lib/L.sol:L")
	want := []Placeholder{{Offset: 1, Token: placeholder}}

	for _, prefix := range []string{"", "0x", "0X", " 0x"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			assert.Equal(t, want, FindPlaceholders(prefix+"73"+placeholder+"6001"))
		})
	}

	assert.Empty(t, FindPlaceholders("0x6080"))
}

func TestPlaceholderMasks(t *testing.T) {
	code := "73" + PlaceholderFor("contracts/Math.sol:Math") + "6001"

	masks, err := PlaceholderMasks(code, map[string]string{"contracts/Math.sol:Math": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, []Range{{Start: 1, Length: 20}}, masks)

	_, err = PlaceholderMasks(code, map[string]string{"Math": "0x01"})
	var unresolved *UnresolvedLibraryError
	assert.True(t, errors.As(err, &unresolved))

	legacy := "73__contracts/Math.sol:Math" + strings.Repeat("_", 15)
	masks, err = PlaceholderMasks(legacy, map[string]string{"Math": "0x01"})
	require.NoError(t, err)
	assert.Len(t, masks, 1)
}
