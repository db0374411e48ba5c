package integration

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/miretskiy/manetsim/experiment"
	"github.com/miretskiy/manetsim/simulator"
)

// StoreConfig defines configuration for the MANET key/value store component
// model. The network is described by an experiment whose workload only
// places the initial population; requests arrive through HandleRequest.
type StoreConfig struct {
	Network experiment.Config `yaml:"network" json:"network"`

	// Wall-clock milliseconds represented by one unit of simulated time
	TimeUnitMs float64 `yaml:"time_unit_ms" json:"time_unit_ms"`
	Replicas   int     `yaml:"replicas" json:"replicas"`

	// Health turns to warn when more than this share of the last window of
	// requests failed
	FailureWarnRatio float64 `yaml:"failure_warn_ratio" json:"failure_warn_ratio"`
	HealthWindow     int     `yaml:"health_window" json:"health_window"`
}

// DefaultStoreConfig returns a 200 node network answering in 10ms hops
func DefaultStoreConfig() StoreConfig {
	network := experiment.DefaultConfig()
	network.Title = "store"
	network.Workload.Puts = 0
	network.Workload.Gets = 0
	return StoreConfig{
		Network:          network,
		TimeUnitMs:       10,
		Replicas:         3,
		FailureWarnRatio: 0.5,
		HealthWindow:     20,
	}
}

// GensimRequestContext contains information about the incoming request
type GensimRequestContext struct {
	Component   string
	CurrentTime float64
	Operation   string // "put" or "get"
	Key         string
	Item        string // payload of a put
}

// GensimLogEntry represents a log emitted by the model
type GensimLogEntry struct {
	OffsetMs float64
	Status   string
	Message  string
}

// GensimMetricSample represents a custom metric emitted by the model
type GensimMetricSample struct {
	Name  string
	Type  string
	Value float64
	Tags  map[string]string
}

// GensimParameterDescriptor describes a mutable configuration field
type GensimParameterDescriptor struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	CurrentValue interface{} `json:"current_value"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	Description  string      `json:"description,omitempty"`
}

// GensimResult represents the outcome of the model simulation for a request
type GensimResult struct {
	DurationMs float64
	WaitTimeMs float64
	Status     string
	ErrorType  *string
	ErrorMsg   *string
	Logs       []GensimLogEntry
	Metrics    []GensimMetricSample
}

// StoreModel serves PUT and GET requests from a simulated LMS network. Each
// request is played out to completion before the next one is accepted.
type StoreModel struct {
	component string
	cfg       *StoreConfig
	mu        sync.Mutex
	exp       *experiment.Experiment
	sim       *simulator.Simulator

	// outcome of the most recent requests, true for failures
	recent  []bool
	dynamic struct{ move, join, part float64 }
}

// NewStoreModel creates the network and places its initial population
func NewStoreModel(component string, cfg *StoreConfig, log zerolog.Logger) (*StoreModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}
	if cfg.TimeUnitMs <= 0 {
		return nil, fmt.Errorf("time_unit_ms must be positive, got %f", cfg.TimeUnitMs)
	}
	if cfg.Replicas <= 0 {
		return nil, fmt.Errorf("replicas must be positive, got %d", cfg.Replicas)
	}
	if cfg.HealthWindow <= 0 {
		cfg.HealthWindow = 20
	}

	exp, err := experiment.New(cfg.Network, log.With().Str("component", component).Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	sim := exp.Simulator()
	if err := sim.Run(); err != nil {
		return nil, fmt.Errorf("failed to place nodes: %w", err)
	}

	m := &StoreModel{
		component: component,
		cfg:       cfg,
		exp:       exp,
		sim:       sim,
	}
	s := cfg.Network.Simulator
	m.dynamic.move, m.dynamic.join, m.dynamic.part = s.Move, s.Join, s.Part
	return m, nil
}

// Name returns the component name
func (m *StoreModel) Name() string {
	return m.component
}

// healthLocked derives health from the population and recent failures
func (m *StoreModel) healthLocked() (string, string) {
	if m.sim.Population() == 0 {
		return "error", "no_nodes"
	}
	if len(m.recent) == 0 {
		return "ok", "normal"
	}
	failed := 0
	for _, f := range m.recent {
		if f {
			failed++
		}
	}
	if float64(failed)/float64(len(m.recent)) > m.cfg.FailureWarnRatio {
		return "warn", "degraded"
	}
	return "ok", "normal"
}

// Health returns the generic health status of the store
func (m *StoreModel) Health() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	generic, _ := m.healthLocked()
	return generic
}

// HealthStatus returns the detailed health status of the store
func (m *StoreModel) HealthStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, detailed := m.healthLocked()
	return detailed
}

// HandleRequest issues one PUT or GET and runs the network until it and
// every message it caused have settled
func (m *StoreModel) HandleRequest(ctx *GensimRequestContext) (*GensimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generic, detailed := m.healthLocked(); generic == "error" {
		errType := detailed
		errMsg := fmt.Sprintf("%s has no live nodes", m.component)
		return &GensimResult{Status: "error", ErrorType: &errType, ErrorMsg: &errMsg}, nil
	}

	metrics := m.sim.Metrics()
	beforeTime := m.sim.Now()
	beforePut := metrics.PutSummary()
	beforeGet := metrics.GetSummary()
	beforeMessages := len(metrics.History)

	switch ctx.Operation {
	case "put":
		m.sim.Queue(beforeTime, 0, &simulator.Put{Key: ctx.Key, Item: ctx.Item, Replicas: m.cfg.Replicas})
	case "get":
		m.sim.Queue(beforeTime, 0, &simulator.Get{Key: ctx.Key})
	default:
		return nil, fmt.Errorf("unsupported operation %q", ctx.Operation)
	}
	if err := m.sim.Run(); err != nil {
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}

	elapsed := float64(m.sim.Now() - beforeTime)
	result := &GensimResult{
		DurationMs: elapsed * m.cfg.TimeUnitMs,
		Status:     "ok",
	}

	var outcome simulator.Summary
	if ctx.Operation == "put" {
		outcome = diff(metrics.PutSummary(), beforePut)
	} else {
		outcome = diff(metrics.GetSummary(), beforeGet)
	}
	failed := outcome.Success == 0
	m.recent = append(m.recent, failed)
	if len(m.recent) > m.cfg.HealthWindow {
		m.recent = m.recent[len(m.recent)-m.cfg.HealthWindow:]
	}

	if failed {
		errType := failureType(outcome)
		errMsg := fmt.Sprintf("%s %s of %q failed: %s", m.component, ctx.Operation, ctx.Key, errType)
		result.Status = "error"
		result.ErrorType = &errType
		result.ErrorMsg = &errMsg
	}
	if outcome.Retry > 0 {
		result.Logs = append(result.Logs, GensimLogEntry{
			OffsetMs: 0,
			Status:   "warn",
			Message:  fmt.Sprintf("%s put of %q retried %d times", m.component, ctx.Key, outcome.Retry),
		})
	}
	if outcome.Dropped > 0 {
		result.Logs = append(result.Logs, GensimLogEntry{
			OffsetMs: result.DurationMs,
			Status:   "info",
			Message:  fmt.Sprintf("%s dropped %d messages to departed or out of range nodes", m.component, outcome.Dropped),
		})
	}

	result.Metrics = m.buildMetrics(ctx.Operation, outcome, len(metrics.History)-beforeMessages)
	return result, nil
}

// diff subtracts the counts of before from after
func diff(after, before simulator.Summary) simulator.Summary {
	return simulator.Summary{
		Messages:  after.Messages - before.Messages,
		Dropped:   after.Dropped - before.Dropped,
		Success:   after.Success - before.Success,
		Isolated:  after.Isolated - before.Isolated,
		Lost:      after.Lost - before.Lost,
		Full:      after.Full - before.Full,
		Duplicate: after.Duplicate - before.Duplicate,
		Retry:     after.Retry - before.Retry,
		Missing:   after.Missing - before.Missing,
	}
}

// failureType names the dominant reason a request failed
func failureType(s simulator.Summary) string {
	best, reason := 0, "dropped"
	for _, c := range []struct {
		name string
		n    int
	}{
		{"dropped", s.Dropped},
		{"isolated", s.Isolated},
		{"lost", s.Lost},
		{"full", s.Full},
		{"duplicate", s.Duplicate},
		{"missing", s.Missing},
	} {
		if c.n > best {
			best, reason = c.n, c.name
		}
	}
	return reason
}

// buildMetrics constructs metric samples from simulator state
func (m *StoreModel) buildMetrics(op string, outcome simulator.Summary, messages int) []GensimMetricSample {
	tags := map[string]string{
		"component_model": "lms",
		"operation":       op,
	}
	metrics := m.sim.Metrics()
	return []GensimMetricSample{
		{Name: "manet.population", Type: "gauge", Value: float64(m.sim.Population()), Tags: tags},
		{Name: "manet.avg_neighbors", Type: "gauge", Value: metrics.AvgNeighbors, Tags: tags},
		{Name: "manet.messages", Type: "count", Value: float64(messages), Tags: tags},
		{Name: "manet.probes", Type: "count", Value: float64(outcome.Messages), Tags: tags},
		{Name: "manet.probes.success", Type: "count", Value: float64(outcome.Success), Tags: tags},
		{Name: "manet.probes.retry", Type: "count", Value: float64(outcome.Retry), Tags: tags},
		{Name: "manet.probes.dropped", Type: "count", Value: float64(outcome.Dropped), Tags: tags},
	}
}

// Config returns the current model configuration
func (m *StoreModel) Config() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"nodes":        m.cfg.Network.Workload.InitialNodes,
		"width":        m.cfg.Network.Topology.Width,
		"height":       m.cfg.Network.Topology.Height,
		"replicas":     m.cfg.Replicas,
		"max_failures": m.cfg.Network.Routing.MaxFailures,
		"walk_min":     m.cfg.Network.Routing.WalkMin,
		"walk_range":   m.cfg.Network.Routing.WalkRange,
		"time_unit_ms": m.cfg.TimeUnitMs,
		"move":         m.dynamic.move,
		"join":         m.dynamic.join,
		"part":         m.dynamic.part,
	}
}

// MutableParameters returns descriptors for runtime-adjustable parameters
func (m *StoreModel) MutableParameters() []GensimParameterDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	zero, one := 0.0, 1.0
	minReplicas, maxReplicas := 1.0, 16.0
	return []GensimParameterDescriptor{
		{
			Name:         "move",
			Type:         "float",
			CurrentValue: m.dynamic.move,
			Min:          &zero,
			Max:          &one,
			Description:  "Probability per node per time unit of stepping to an adjacent cell. Movement makes neighbour caches stale and drops messages in flight.",
		},
		{
			Name:         "join",
			Type:         "float",
			CurrentValue: m.dynamic.join,
			Min:          &zero,
			Max:          &one,
			Description:  "New nodes per live node per time unit.",
		},
		{
			Name:         "part",
			Type:         "float",
			CurrentValue: m.dynamic.part,
			Min:          &zero,
			Max:          &one,
			Description:  "Departing nodes per live node per time unit. Items stored on a departed node are gone.",
		},
		{
			Name:         "replicas",
			Type:         "int",
			CurrentValue: m.cfg.Replicas,
			Min:          &minReplicas,
			Max:          &maxReplicas,
			Description:  "Independent probes sent for every PUT. More replicas raise the chance a later GET finds the item.",
		},
	}
}

// UpdateParameters applies runtime configuration changes
func (m *StoreModel) UpdateParameters(params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	move, join, part := m.dynamic.move, m.dynamic.join, m.dynamic.part
	for name, target := range map[string]*float64{"move": &move, "join": &join, "part": &part} {
		raw, ok := params[name]
		if !ok {
			continue
		}
		val, err := parseFloatParam(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*target = val
	}
	if err := m.sim.SetDynamics(move, join, part); err != nil {
		return err
	}
	m.dynamic.move, m.dynamic.join, m.dynamic.part = move, join, part

	if raw, ok := params["replicas"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("replicas: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("replicas must be > 0")
		}
		m.cfg.Replicas = val
	}
	return nil
}

// Helper functions for parameter parsing
func parseIntParam(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func parseFloatParam(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
