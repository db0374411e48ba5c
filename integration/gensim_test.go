package integration

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func singleNodeConfig() *StoreConfig {
	cfg := DefaultStoreConfig()
	cfg.Network.Routing.HashBits = 8
	cfg.Network.Routing.WalkMin, cfg.Network.Routing.WalkRange = 0, 0
	cfg.Network.Routing.MaxFailures = 1
	cfg.Network.Routing.HashFunctions = 1
	cfg.Network.Simulator.RandomSeed = 7
	cfg.Network.Topology.Width, cfg.Network.Topology.Height = 10, 10
	cfg.Network.Workload.InitialNodes = 1
	cfg.Replicas = 1
	return &cfg
}

func TestNewStoreModelValidation(t *testing.T) {
	_, err := NewStoreModel("lms", nil, zerolog.Nop())
	require.Error(t, err)

	cfg := singleNodeConfig()
	cfg.TimeUnitMs = 0
	_, err = NewStoreModel("lms", cfg, zerolog.Nop())
	require.Error(t, err)

	cfg = singleNodeConfig()
	cfg.Replicas = 0
	_, err = NewStoreModel("lms", cfg, zerolog.Nop())
	require.Error(t, err)

	cfg = singleNodeConfig()
	cfg.Network.Simulator.Move = 3
	_, err = NewStoreModel("lms", cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestStoreModelPutThenGet(t *testing.T) {
	m, err := NewStoreModel("lms", singleNodeConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "lms", m.Name())
	require.Equal(t, "ok", m.Health())

	res, err := m.HandleRequest(&GensimRequestContext{Operation: "put", Key: "k", Item: "v"})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Status)
	require.Nil(t, res.ErrorType)
	// neighbour refresh, init, then the local reply: three time units
	require.Equal(t, 30.0, res.DurationMs)
	require.NotEmpty(t, res.Metrics)

	res, err = m.HandleRequest(&GensimRequestContext{Operation: "get", Key: "k"})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Status)

	res, err = m.HandleRequest(&GensimRequestContext{Operation: "get", Key: "absent"})
	require.NoError(t, err)
	require.Equal(t, "error", res.Status)
	require.NotNil(t, res.ErrorType)
	require.Equal(t, "missing", *res.ErrorType)

	// one failure in three requests stays under the warn ratio
	require.Equal(t, "ok", m.Health())
	require.Equal(t, "normal", m.HealthStatus())

	_, err = m.HandleRequest(&GensimRequestContext{Operation: "delete", Key: "k"})
	require.Error(t, err)
}

func TestStoreModelHealthDegrades(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.HealthWindow = 2
	m, err := NewStoreModel("lms", cfg, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := m.HandleRequest(&GensimRequestContext{Operation: "get", Key: "absent"})
		require.NoError(t, err)
		require.Equal(t, "error", res.Status)
	}
	require.Equal(t, "warn", m.Health())
	require.Equal(t, "degraded", m.HealthStatus())

	_, err = m.HandleRequest(&GensimRequestContext{Operation: "put", Key: "k", Item: "v"})
	require.NoError(t, err)
	_, err = m.HandleRequest(&GensimRequestContext{Operation: "put", Key: "j", Item: "v"})
	require.NoError(t, err)
	require.Equal(t, "ok", m.Health(), "old failures fall out of the window")
}

func TestStoreModelWithoutNodes(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Network.Workload.InitialNodes = 0
	m, err := NewStoreModel("lms", cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "error", m.Health())
	require.Equal(t, "no_nodes", m.HealthStatus())

	res, err := m.HandleRequest(&GensimRequestContext{Operation: "put", Key: "k", Item: "v"})
	require.NoError(t, err)
	require.Equal(t, "error", res.Status)
	require.Equal(t, "no_nodes", *res.ErrorType)
}

func TestStoreModelUpdateParameters(t *testing.T) {
	m, err := NewStoreModel("lms", singleNodeConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.UpdateParameters(nil))
	require.NoError(t, m.UpdateParameters(map[string]interface{}{
		"move":     0.25,
		"join":     0,
		"replicas": float64(4),
	}))
	cfg := m.Config()
	require.Equal(t, 0.25, cfg["move"])
	require.Equal(t, 0.0, cfg["join"])
	require.Equal(t, 4, cfg["replicas"])

	require.Error(t, m.UpdateParameters(map[string]interface{}{"part": 1.5}))
	require.Equal(t, 0.0, m.Config()["part"])
	require.Error(t, m.UpdateParameters(map[string]interface{}{"move": "fast"}))
	require.Error(t, m.UpdateParameters(map[string]interface{}{"replicas": 0}))

	params := m.MutableParameters()
	require.Len(t, params, 4)
	for _, p := range params {
		if p.Name == "move" {
			require.Equal(t, 0.25, p.CurrentValue)
		}
	}
}

func TestParseParams(t *testing.T) {
	i, err := parseIntParam(float64(3))
	require.NoError(t, err)
	require.Equal(t, 3, i)
	_, err = parseIntParam("3")
	require.Error(t, err)

	f, err := parseFloatParam(2)
	require.NoError(t, err)
	require.Equal(t, 2.0, f)
	_, err = parseFloatParam(nil)
	require.Error(t, err)
}
