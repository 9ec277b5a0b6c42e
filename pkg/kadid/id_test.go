package kadid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(b byte) ID {
	var id ID
	for i := range id {
		id[i] = b
	}
	return id
}

// S1: Id(0x61*32) XOR Id(0x62*32) = Id(0x03*32); leading_zero_bits = 6.
func TestXORAndDistance_S1(t *testing.T) {
	a := repeat(0x61)
	b := repeat(0x62)

	got := XOR(a, b)
	want := repeat(0x03)
	assert.Equal(t, want, got)

	assert.Equal(t, 6, LeadingZeroBits(got))
	assert.Equal(t, Bits-1, Distance(a, a))
}

func TestLeadingZeroBits_ZeroID(t *testing.T) {
	assert.Equal(t, Bits-1, LeadingZeroBits(Zero))
}

func TestLeadingZeroBits_FirstSetBit(t *testing.T) {
	var id ID
	id[5] = 0x1f // 0b00011111, msb set at bit index 3 within the byte
	assert.Equal(t, 5*8+3, LeadingZeroBits(id))
}

func TestCompare_TotalOrder(t *testing.T) {
	target := Random()
	a := Random()
	b := Random()

	// antisymmetry
	require.Equal(t, -Compare(target, a, b), Compare(target, b, a))

	// a tie in leading-zero-bits is broken lexicographically, never
	// reported as equal unless a == b.
	if a != b {
		assert.NotEqual(t, 0, Compare(target, a, b))
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	a := HashKey("foo")
	b := HashKey("foo")
	c := HashKey("bar")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEqual(t *testing.T) {
	a := repeat(0x01)
	b := repeat(0x01)
	c := repeat(0x02)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
