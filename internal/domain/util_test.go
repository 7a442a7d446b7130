package domain

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestShortAddress(t *testing.T) {
	short := "abc"
	require.Equal(t, short, ShortAddress(short))

	exactly24 := strings.Repeat("a", 24)
	require.Equal(t, exactly24, ShortAddress(exactly24))

	long := "0x1234567890abcdef1234567890abcdef12345678"
	got := ShortAddress(long)
	require.Equal(t, long[:10]+"..."+long[len(long)-5:], got)
}

func TestShortAddressProperty(t *testing.T) {
	f := func(addr string) bool {
		got := ShortAddress(addr)
		if len(addr) <= 24 {
			return got == addr
		}
		return got == addr[:10]+"..."+addr[len(addr)-5:]
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestFormatDurationRoundTrip(t *testing.T) {
	require.Equal(t, "0s", FormatDuration(0))

	cases := []int32{0, 1, 59, 60, 61, 3599, 3600, 3601, 3725, 86399}
	for _, n := range cases {
		s := FormatDuration(n)
		back, err := ParseDuration(s)
		require.NoError(t, err)
		require.Equalf(t, n, back, "round trip of %d via %q", n, s)
	}
}

func TestSolutionID(t *testing.T) {
	id := SolutionID("C1", "abc")
	require.Equal(t, "C1:abc", id)
}

func TestSolutionInvariant(t *testing.T) {
	s := Solution{Status: StatusFound, Nonce: "n", Hash: "h", Preimage: "p"}
	require.False(t, s.IsEmpty())

	empty := Solution{Status: StatusOnit}
	require.True(t, empty.IsEmpty())
}
