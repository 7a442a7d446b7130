package romhash

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRom(seed string) *Rom {
	// Small sizes keep the test fast; the mixing/expansion shape is the
	// same as production, only the buffer sizes differ.
	return NewRomWithSizes(seed, 4096, MixingNumbers, 65536)
}

func TestRomDeterministic(t *testing.T) {
	a := testRom("seed-a")
	b := testRom("seed-a")
	require.Equal(t, a.Bytes(), b.Bytes())

	c := testRom("seed-b")
	require.NotEqual(t, a.Bytes(), c.Bytes())
}

func TestHProducesFixedSizeDigest(t *testing.T) {
	rom := testRom("seed")
	d := H([]byte("nonce+suffix"), rom, 8, 256)
	require.Len(t, d, 32)

	d2 := H([]byte("nonce+suffix"), rom, 8, 256)
	require.Equal(t, d, d2, "H must be deterministic for the same inputs")

	d3 := H([]byte("other-preimage"), rom, 8, 256)
	require.NotEqual(t, d, d3)
}

func TestCacheSharesRomByIdentity(t *testing.T) {
	var builds int
	cache := NewCacheWithBuilder(func(seed string) *Rom {
		builds++
		return testRom(seed)
	})

	r1 := cache.GetOrBuild("X")
	r2 := cache.GetOrBuild("X")
	require.Same(t, r1, r2, "two challenges with the same seed must share one Rom")
	require.Equal(t, 1, builds)

	r3 := cache.GetOrBuild("Y")
	require.NotSame(t, r1, r3)
	require.Equal(t, 2, builds)
}

func TestDifficultyPredicateHelper(t *testing.T) {
	// hv is a bitwise subset of difficulty iff (hv | difficulty) == difficulty.
	difficulty := uint32(0xFFFFFFFF)
	hv := binary.BigEndian.Uint32([]byte{0x12, 0x34, 0x56, 0x78})
	require.Equal(t, difficulty, hv|difficulty)

	difficulty = 0
	hv = 1
	require.NotEqual(t, difficulty, hv|difficulty)
}
