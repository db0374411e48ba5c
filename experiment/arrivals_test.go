package experiment

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/miretskiy/manetsim/simulator"
)

func TestArrivalsValidate(t *testing.T) {
	a := DefaultArrivals()
	require.NoError(t, a.Validate())

	a.Model = ArrivalOnOff
	require.NoError(t, a.Validate())

	bad := a
	bad.Rate = 0
	require.Error(t, bad.Validate())
	bad = a
	bad.ErlangK = 0
	require.Error(t, bad.Validate())
	bad = a
	bad.Model = "poisson"
	require.Error(t, bad.Validate())
	bad = DefaultArrivals()
	bad.Interval = -1
	require.Error(t, bad.Validate())
}

func TestConstantArrivals(t *testing.T) {
	a := DefaultArrivals()
	a.Interval = 3
	p := NewArrivalProcess(a, rand.New(rand.NewSource(1)))
	for i := 0; i < 5; i++ {
		require.Equal(t, int64(3), p.Next())
	}
}

func TestOnOffArrivals(t *testing.T) {
	t.Run("without bursts or jitter the rate is exact", func(t *testing.T) {
		a := DefaultArrivals()
		a.Model = ArrivalOnOff
		a.Rate = 0.5
		a.BurstMultiplier = 1
		a.Sigma = 0
		p := NewArrivalProcess(a, rand.New(rand.NewSource(1)))
		for i := 0; i < 20; i++ {
			require.Equal(t, int64(2), p.Next())
		}
	})

	t.Run("bursts pack requests into shared buckets", func(t *testing.T) {
		a := DefaultArrivals()
		a.Model = ArrivalOnOff
		a.Rate = 1
		a.BurstMultiplier = 8
		p := NewArrivalProcess(a, rand.New(rand.NewSource(5)))
		zero := 0
		for i := 0; i < 2000; i++ {
			gap := p.Next()
			require.GreaterOrEqual(t, gap, int64(0))
			if gap == 0 {
				zero++
			}
		}
		require.Positive(t, zero)
	})
}

func TestRunWithOnOffArrivals(t *testing.T) {
	cfg := smallConfig()
	cfg.Workload.Arrivals.Model = ArrivalOnOff
	cfg.Workload.Arrivals.Rate = 0.5

	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	var puts, gets []int64
	for _, ev := range e.Simulator().Events() {
		switch ev.Event.(type) {
		case *simulator.Put:
			puts = append(puts, ev.Time)
		case *simulator.Get:
			gets = append(gets, ev.Time)
		}
	}
	require.Len(t, puts, cfg.Workload.Puts)
	require.Len(t, gets, cfg.Workload.Gets)
	require.Equal(t, cfg.Workload.Start, puts[0])
	require.Greater(t, gets[0], puts[len(puts)-1]+cfg.Workload.Wait-1)

	res, err := e.Run()
	require.NoError(t, err)
	require.Equal(t, cfg.Workload.Puts*cfg.Workload.Replicas, res.Put.Messages)
	require.Equal(t, cfg.Workload.Gets, res.Get.Messages)
}
