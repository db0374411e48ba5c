package routing

import (
	"math/big"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRing(t *testing.T) {
	_, err := NewRing(0)
	require.Error(t, err)

	r, err := NewRing(8)
	require.NoError(t, err)
	require.Equal(t, 8, r.Bits())
	require.Equal(t, int64(256), r.Size().Int64())
}

func TestRingHash(t *testing.T) {
	r, err := NewRing(16)
	require.NoError(t, err)

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, 0, r.HashString("alpha").Cmp(r.HashString("alpha")))
		require.Equal(t, 0, r.NodeHash(42).Cmp(r.HashString("42")))
	})

	t.Run("in range", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			h := r.HashString("key" + strconv.Itoa(i))
			require.GreaterOrEqual(t, h.Sign(), 0)
			require.Negative(t, h.Cmp(r.Size()), "hash %s exceeds ring", h)
		}
	})

	t.Run("full width", func(t *testing.T) {
		// 160 bits keeps the whole digest
		wide, err := NewRing(160)
		require.NoError(t, err)
		require.LessOrEqual(t, wide.HashString("x").BitLen(), 160)
	})
}

func TestRingDistance(t *testing.T) {
	r, err := NewRing(8)
	require.NoError(t, err)

	tests := []struct {
		a, b int64
		want int64
	}{
		{0, 0, 0},
		{1, 255, 2},
		{255, 1, 2},
		{0, 128, 128},
		{10, 20, 10},
		{200, 10, 66},
	}
	for _, tt := range tests {
		got := r.Distance(big.NewInt(tt.a), big.NewInt(tt.b))
		assert.Equal(t, tt.want, got.Int64(), "d(%d, %d)", tt.a, tt.b)
	}

	// symmetric for arbitrary hashes
	for i := 0; i < 100; i++ {
		a := r.HashString("a" + strconv.Itoa(i))
		b := r.HashString("b" + strconv.Itoa(i))
		require.Equal(t, 0, r.Distance(a, b).Cmp(r.Distance(b, a)))
		require.LessOrEqual(t, r.Distance(a, b).Int64(), int64(128))
	}
}
