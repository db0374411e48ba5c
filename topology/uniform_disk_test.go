package topology

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miretskiy/manetsim/routing"
	"github.com/miretskiy/manetsim/simulator"
)

func newDisk(t *testing.T, width, height int) *UniformDisk {
	t.Helper()
	u, err := NewUniformDisk(Config{Width: width, Height: height})
	require.NoError(t, err)
	return u
}

func loc(x, y int) simulator.Location { return simulator.Location{X: x, Y: y} }

func TestConfigValidate(t *testing.T) {
	_, err := NewUniformDisk(Config{Width: 0, Height: 10})
	require.Error(t, err)
	_, err = NewUniformDisk(Config{Width: 10, Height: -1})
	require.Error(t, err)

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestDistanceWrapsAround(t *testing.T) {
	u := newDisk(t, 100, 100)

	tests := []struct {
		name string
		a, b simulator.Location
		want float64
	}{
		{"same cell", loc(5, 5), loc(5, 5), 0},
		{"straight line", loc(0, 0), loc(3, 4), 5},
		{"across the x edge", loc(0, 0), loc(99, 0), 1},
		{"across both edges", loc(1, 1), loc(98, 97), 5},
		{"half way", loc(0, 0), loc(50, 0), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, u.Distance(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, u.Distance(tt.b, tt.a), 1e-9)
		})
	}
}

func TestAddAt(t *testing.T) {
	u := newDisk(t, 10, 10)

	require.NoError(t, u.AddAt(1, 3, loc(2, 2)))
	require.ErrorIs(t, u.AddAt(2, 3, loc(2, 2)), ErrOccupied)
	require.ErrorIs(t, u.AddAt(2, 3, loc(10, 0)), ErrOutOfBounds)
	require.ErrorIs(t, u.AddAt(2, 3, loc(0, -1)), ErrOutOfBounds)
	require.ErrorIs(t, u.AddAt(1, 3, loc(3, 3)), ErrDuplicate)

	got, ok := u.Locate(1)
	require.True(t, ok)
	require.Equal(t, loc(2, 2), got)
	require.Equal(t, 1, u.Len())
}

// Given: a plane with room for four nodes
// When: five nodes are added at random
// Then: four land on distinct cells and the fifth is refused
func TestAddFillsThePlane(t *testing.T) {
	u := newDisk(t, 2, 2)
	rng := rand.New(rand.NewSource(1))

	seen := make(map[simulator.Location]bool)
	for id := routing.NodeID(1); id <= 4; id++ {
		l, ok := u.Add(id, 1, rng)
		require.True(t, ok)
		require.False(t, seen[l], "cell %s handed out twice", l)
		seen[l] = true
	}
	_, ok := u.Add(5, 1, rng)
	require.False(t, ok)

	require.True(t, u.Remove(3))
	require.False(t, u.Remove(3))
	_, ok = u.Add(6, 1, rng)
	require.True(t, ok)
}

func TestNeighbors(t *testing.T) {
	u := newDisk(t, 20, 20)
	require.NoError(t, u.AddAt(1, 3, loc(0, 0)))
	require.NoError(t, u.AddAt(2, 3, loc(19, 0)))  // 1 away across the edge
	require.NoError(t, u.AddAt(3, 3, loc(0, 3)))   // exactly at radius, not heard
	require.NoError(t, u.AddAt(4, 10, loc(5, 5)))  // hears 1 but is not heard by it
	require.NoError(t, u.AddAt(5, 3, loc(18, 18))) // 2.83 away across both edges

	require.Equal(t, []routing.NodeID{2, 5}, u.Neighbors(1))
	require.Contains(t, u.Neighbors(4), routing.NodeID(1))
	require.Nil(t, u.Neighbors(42))

	require.True(t, u.Remove(2))
	require.Equal(t, []routing.NodeID{5}, u.Neighbors(1))
}

func TestStepRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	t.Run("moves to an adjacent cell", func(t *testing.T) {
		u := newDisk(t, 10, 10)
		require.NoError(t, u.AddAt(1, 1, loc(0, 0)))
		for i := 0; i < 20; i++ {
			before, _ := u.Locate(1)
			require.True(t, u.StepRandom(1, rng))
			after, _ := u.Locate(1)
			require.NotEqual(t, before, after)
			require.LessOrEqual(t, u.Distance(before, after), 1.5)
		}
		require.Equal(t, 1, u.Len())
	})

	t.Run("boxed in", func(t *testing.T) {
		u := newDisk(t, 3, 3)
		id := routing.NodeID(1)
		for x := 0; x < 3; x++ {
			for y := 0; y < 3; y++ {
				require.NoError(t, u.AddAt(id, 1, loc(x, y)))
				id++
			}
		}
		require.False(t, u.StepRandom(5, rng))
		require.False(t, u.StepRandom(42, rng))

		// freeing the only other cell leaves exactly one move
		require.True(t, u.Remove(1))
		require.True(t, u.StepRandom(5, rng))
		got, _ := u.Locate(5)
		require.Equal(t, loc(0, 0), got)
	})
}
