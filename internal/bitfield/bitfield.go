// Package bitfield provides the fixed-length bit vector used for availability
// bitfields (one bit per core) and availability vote bitmaps (one bit per
// validator).
//
// The wire form is little-endian bit order within bytes: bit i lives in
// byte i/8 at position i%8. Trailing padding bits must be zero.
package bitfield

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Bitfield is a bit vector whose length is fixed at creation.
type Bitfield struct {
	bits *bitset.BitSet
	n    int
}

// New returns an all-zero bitfield of n bits.
func New(n int) Bitfield {
	if n < 0 {
		n = 0
	}

	return Bitfield{bits: bitset.New(uint(n)), n: n}
}

// FromIndices returns an n-bit bitfield with the given bits set.
// Indices outside [0, n) are ignored.
func FromIndices(n int, indices ...int) Bitfield {
	b := New(n)
	for _, i := range indices {
		b.Set(i, true)
	}

	return b
}

// FromBytes decodes an n-bit bitfield from its wire form.
func FromBytes(data []byte, n int) (Bitfield, error) {
	if n < 0 {
		return Bitfield{}, fmt.Errorf("negative bit length %d", n)
	}

	if len(data) != ByteLen(n) {
		return Bitfield{}, fmt.Errorf("bitfield of %d bits needs %d bytes, got %d", n, ByteLen(n), len(data))
	}

	b := New(n)

	for byteIdx, v := range data {
		for bit := 0; bit < 8; bit++ {
			if v&(1<<bit) == 0 {
				continue
			}

			i := byteIdx*8 + bit
			if i >= n {
				return Bitfield{}, fmt.Errorf("padding bit %d set beyond length %d", i, n)
			}

			b.bits.Set(uint(i))
		}
	}

	return b, nil
}

// ByteLen returns the wire size of an n-bit bitfield.
func ByteLen(n int) int {
	return (n + 7) / 8
}

// Len returns the number of bits.
func (b Bitfield) Len() int {
	return b.n
}

// Get reports whether bit i is set. Out of range bits read as false.
func (b Bitfield) Get(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}

	return b.bits.Test(uint(i))
}

// Set writes bit i and reports whether i was in range.
func (b Bitfield) Set(i int, v bool) bool {
	if i < 0 || i >= b.n {
		return false
	}

	b.bits.SetTo(uint(i), v)

	return true
}

// CountOnes returns the population count.
func (b Bitfield) CountOnes() int {
	if b.bits == nil {
		return 0
	}

	return int(b.bits.Count())
}

// Ones returns the indices of set bits in ascending order.
func (b Bitfield) Ones() []int {
	if b.bits == nil {
		return nil
	}

	var out []int
	for i, ok := b.bits.NextSet(0); ok && int(i) < b.n; i, ok = b.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}

	return out
}

// IsSubsetOf reports whether b has the same length as mask and
// b & mask == b.
func (b Bitfield) IsSubsetOf(mask Bitfield) bool {
	if b.n != mask.n {
		return false
	}

	if b.bits == nil {
		return true
	}

	if mask.bits == nil {
		return b.CountOnes() == 0
	}

	return mask.bits.IsSuperSet(b.bits)
}

// Equal reports whether both bitfields have the same length and bits.
func (b Bitfield) Equal(other Bitfield) bool {
	if b.n != other.n {
		return false
	}

	for i := 0; i < b.n; i++ {
		if b.Get(i) != other.Get(i) {
			return false
		}
	}

	return true
}

// Clone returns an independent copy.
func (b Bitfield) Clone() Bitfield {
	if b.bits == nil {
		return New(b.n)
	}

	return Bitfield{bits: b.bits.Clone(), n: b.n}
}

// Bytes returns the wire form.
func (b Bitfield) Bytes() []byte {
	out := make([]byte, ByteLen(b.n))

	for _, i := range b.Ones() {
		out[i/8] |= 1 << (i % 8)
	}

	return out
}

// String renders the bits as 0/1 characters, lowest index first.
func (b Bitfield) String() string {
	var sb strings.Builder
	sb.Grow(b.n)

	for i := 0; i < b.n; i++ {
		if b.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}
