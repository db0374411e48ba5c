package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := NewStore(2)
	require.Equal(t, 2, s.Capacity())
	require.False(t, s.IsFull())

	require.NoError(t, s.Store("k", "a"))
	require.True(t, errors.Is(s.Store("k", "a"), ErrDuplicate))
	require.NoError(t, s.Store("k", "b"))
	require.Equal(t, 2, s.Len())
	require.True(t, s.IsFull())

	// full wins over duplicate
	require.True(t, errors.Is(s.Store("k", "a"), ErrFull))
	require.True(t, errors.Is(s.Store("other", "c"), ErrFull))

	items, ok := s.Retrieve("k")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, items)

	// callers get a copy
	items[0] = "mutated"
	again, _ := s.Retrieve("k")
	require.Equal(t, "a", again[0])

	_, ok = s.Retrieve("absent")
	require.False(t, ok)
}

func TestStoreZeroCapacity(t *testing.T) {
	s := NewStore(0)
	require.True(t, s.IsFull())
	require.Equal(t, ErrFull, s.Store("k", "v"))

	require.Equal(t, 0, NewStore(-3).Capacity())
}

func TestReason(t *testing.T) {
	require.Equal(t, "none", ReasonNone.String())
	require.Equal(t, "full", ReasonFull.Error())
	require.True(t, ReasonFull.Retryable())
	require.True(t, ReasonDuplicate.Retryable())
	require.False(t, ReasonIsolated.Retryable())
	require.False(t, ReasonMissing.Retryable())
	require.False(t, ReasonLost.Retryable())

	var err error = ReasonIsolated
	require.True(t, errors.Is(err, ErrIsolated))
}
