package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miretskiy/manetsim/routing"
	"github.com/miretskiy/manetsim/simulator"
)

// smallConfig is a dense 20x20 plane that runs in a few milliseconds
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Title = "small"
	cfg.Routing.HashBits = 32
	cfg.Routing.WalkMin = 2
	cfg.Routing.WalkRange = 3
	cfg.Simulator.RandomSeed = 1
	cfg.Simulator.BroadcastMin = 5
	cfg.Simulator.BroadcastRange = 3
	cfg.Topology.Width = 20
	cfg.Topology.Height = 20
	cfg.Workload.InitialNodes = 40
	cfg.Workload.Puts = 8
	cfg.Workload.Gets = 6
	cfg.Workload.Replicas = 3
	return cfg
}

func TestParse(t *testing.T) {
	t.Run("yaml over defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
title: movement
routing:
  walkMin: 25
  walkDistribution: geometric
simulator:
  move: 0.3
  randomSeed: 9
topology:
  width: 50
workload:
  initialNodes: 12
sweep:
  param: move
  values: [0, 0.5, 1]
`), ".yaml")
		require.NoError(t, err)

		want := DefaultConfig()
		want.Title = "movement"
		want.Routing.WalkMin = 25
		want.Routing.WalkDistribution = routing.DistGeometric
		want.Simulator.Move = 0.3
		want.Simulator.RandomSeed = 9
		want.Topology.Width = 50
		want.Workload.InitialNodes = 12
		want.Sweep = &Sweep{Param: "move", Values: []float64{0, 0.5, 1}}
		assert.Equal(t, want, cfg)
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := Parse([]byte(`{"routing": {"maxFailures": 2}, "workload": {"replicas": 1}}`), ".JSON")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Routing.MaxFailures)
		assert.Equal(t, 1, cfg.Workload.Replicas)
		assert.Equal(t, 256, cfg.Routing.HashBits)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Parse([]byte("simulator:\n  part: 2\n"), ".yml")
		require.ErrorIs(t, err, simulator.ErrInvalidProbability)

		_, err = Parse([]byte("workload:\n  start: 1\n"), ".yml")
		require.Error(t, err)

		_, err = Parse([]byte("routing:\n  hashBits: 0\n"), ".yml")
		require.ErrorIs(t, err, routing.ErrInvalidConfig)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Parse([]byte("title = 'x'"), ".toml")
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: from disk\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from disk", cfg.Title)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSet(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Set("joinPart", 0.2))
	require.NoError(t, cfg.Set("initialNodes", 50))
	require.NoError(t, cfg.Set("walkMin", 3.9))
	require.Equal(t, 0.2, cfg.Simulator.Join)
	require.Equal(t, 0.2, cfg.Simulator.Part)
	require.Equal(t, 50, cfg.Workload.InitialNodes)
	require.Equal(t, 3, cfg.Routing.WalkMin)

	require.Error(t, cfg.Set("gravity", 9.8))
}

// Given: a static, dense plane
// When: the workload runs to completion
// Then: every replica and every lookup is accounted for
func TestRunAccountsForEveryRequest(t *testing.T) {
	cfg := smallConfig()
	res, err := Run(cfg, zerolog.Nop())
	require.NoError(t, err)

	w := cfg.Workload
	require.Equal(t, w.Puts*w.Replicas, res.Put.Messages)
	require.Equal(t, w.Gets, res.Get.Messages)
	require.Equal(t, w.InitialNodes, res.Population)
	require.Positive(t, res.Put.Success)
	require.Positive(t, res.NeighborUpdates)
	require.GreaterOrEqual(t, res.Time, w.Start+int64(w.Puts)+w.Wait+int64(w.Gets))
	require.NotNil(t, res.Metrics)
	require.Len(t, res.Metrics.History, res.TotalMessages)
}

func TestRunIsReproducible(t *testing.T) {
	cfg := smallConfig()
	cfg.Simulator.Move = 0.2
	cfg.Simulator.Join = 0.01
	cfg.Simulator.Part = 0.01

	a, err := Run(cfg, zerolog.Nop())
	require.NoError(t, err)
	b, err := Run(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// Given: one node on the plane and no random walk
// When: it stores k/v
// Then: it is its own local minimum and the PUT succeeds there
func TestSingleNodeOnPlane(t *testing.T) {
	cfg := smallConfig()
	cfg.Routing.HashBits = 8
	cfg.Routing.WalkMin, cfg.Routing.WalkRange = 0, 0
	cfg.Routing.MaxFailures = 1
	cfg.Workload.InitialNodes, cfg.Workload.Puts, cfg.Workload.Gets = 0, 0, 0

	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	sim := e.Simulator()
	sim.Queue(1, 0, &simulator.AddNodeAt{Location: simulator.Location{X: 4, Y: 4}})
	sim.Queue(2, 0, &simulator.Put{Key: "k", Item: "v", Replicas: 1})

	res, err := e.Run()
	require.NoError(t, err)
	require.Equal(t, simulator.Summary{Messages: 1, Success: 1}, res.Put)
	require.Equal(t, []routing.NodeID{1}, res.Metrics.PutLocations["k"])
}

// Given: two nodes in range of each other with no buffer space
// When: a PUT is issued with maxFailures = 2
// Then: it fails full once, is retried once and then gives up
func TestTwoFullNodesOnPlane(t *testing.T) {
	cfg := smallConfig()
	cfg.Routing.HashBits = 8
	cfg.Routing.WalkMin, cfg.Routing.WalkRange = 0, 0
	cfg.Routing.MaxFailures = 2
	cfg.Simulator.BufferMin, cfg.Simulator.BufferRange = 0, 0
	cfg.Workload.InitialNodes, cfg.Workload.Puts, cfg.Workload.Gets = 0, 0, 0

	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	sim := e.Simulator()
	sim.Queue(1, 0, &simulator.AddNodeAt{Location: simulator.Location{X: 4, Y: 4}})
	sim.Queue(1, 0, &simulator.AddNodeAt{Location: simulator.Location{X: 6, Y: 4}})
	sim.Queue(2, 0, &simulator.Put{Key: "k", Item: "v", Replicas: 1})

	res, err := e.Run()
	require.NoError(t, err)
	require.Equal(t, simulator.Summary{Messages: 1, Full: 1, Retry: 1}, res.Put)
	require.Equal(t, []routing.NodeID{2}, e.Plane().Neighbors(1))
}

func TestRunSweep(t *testing.T) {
	cfg := smallConfig()
	rows, err := RunSweep(cfg, Sweep{Param: "initialNodes", Values: []float64{10, 30}}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, row := range rows {
		require.Equal(t, i, row.Run)
		require.Equal(t, int(row.Value), row.Result.Population)
		require.Nil(t, row.Result.Metrics)
	}

	rows, err = RunSweep(cfg, Sweep{Param: "move", Values: []float64{0.1, 3}}, zerolog.Nop())
	require.ErrorIs(t, err, simulator.ErrInvalidProbability)
	require.Len(t, rows, 1)
}
