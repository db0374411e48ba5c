package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/miretskiy/manetsim/routing"
	"github.com/miretskiy/manetsim/simulator"
	"github.com/miretskiy/manetsim/topology"
)

// Workload is the request pattern of a simple run: a population is placed,
// a series of PUTs is issued, and after a pause the same key is looked up a
// number of times. Arrivals spaces the requests of both series.
type Workload struct {
	InitialNodes int    `json:"initialNodes" yaml:"initialNodes"`
	Puts         int    `json:"puts" yaml:"puts"`
	Gets         int    `json:"gets" yaml:"gets"`
	Start        int64  `json:"start" yaml:"start"` // time of the first PUT
	Wait         int64  `json:"wait" yaml:"wait"`   // pause between the last PUT and the first GET
	Replicas     int    `json:"replicas" yaml:"replicas"`
	Key          string `json:"key" yaml:"key"`
	ItemPrefix   string `json:"itemPrefix" yaml:"itemPrefix"`

	Arrivals Arrivals `json:"arrivals" yaml:"arrivals"`
}

// Sweep reruns an experiment once per value of a single parameter
type Sweep struct {
	Param  string    `json:"param" yaml:"param"`
	Values []float64 `json:"values" yaml:"values"`
}

// Config describes a complete experiment
type Config struct {
	Title     string            `json:"title" yaml:"title"`
	Routing   routing.LMSConfig `json:"routing" yaml:"routing"`
	Simulator simulator.Config  `json:"simulator" yaml:"simulator"`
	Topology  topology.Config   `json:"topology" yaml:"topology"`
	Workload  Workload          `json:"workload" yaml:"workload"`
	Sweep     *Sweep            `json:"sweep,omitempty" yaml:"sweep,omitempty"`
}

// DefaultConfig returns the parameters of the reference "movement only" run,
// without movement
func DefaultConfig() Config {
	return Config{
		Title:     "simple run",
		Routing:   routing.DefaultLMSConfig(),
		Simulator: simulator.DefaultConfig(),
		Topology:  topology.DefaultConfig(),
		Workload: Workload{
			InitialNodes: 200,
			Puts:         200,
			Gets:         200,
			Start:        10,
			Wait:         10,
			Replicas:     5,
			Key:          "tests",
			ItemPrefix:   "hello",
			Arrivals:     DefaultArrivals(),
		},
	}
}

// Validate checks every section of the experiment
func (c *Config) Validate() error {
	if err := c.Routing.Validate(); err != nil {
		return err
	}
	if err := c.Simulator.Validate(); err != nil {
		return err
	}
	if err := c.Topology.Validate(); err != nil {
		return err
	}
	w := c.Workload
	if w.InitialNodes < 0 || w.Puts < 0 || w.Gets < 0 {
		return simulator.ErrInvalidConfig("workload counts must be >= 0")
	}
	if w.Start < 2 {
		// the initial population is placed at t=1
		return simulator.ErrInvalidConfig("workload start must be >= 2")
	}
	if w.Wait < 0 {
		return simulator.ErrInvalidConfig("workload wait must be >= 0")
	}
	if w.Replicas < 1 {
		return simulator.ErrInvalidConfig("workload replicas must be >= 1")
	}
	if err := w.Arrivals.Validate(); err != nil {
		return err
	}
	if c.Sweep != nil && len(c.Sweep.Values) == 0 {
		return simulator.ErrInvalidConfig("sweep needs at least one value")
	}
	return nil
}

// Load reads an experiment file over the defaults. The format follows the
// extension: .yaml and .yml are YAML, .json is JSON.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes an experiment in the format named by ext
func Parse(data []byte, ext string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported experiment format %q", ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Set assigns value to a named parameter. Integer parameters are truncated.
func (c *Config) Set(param string, value float64) error {
	n := int(value)
	switch param {
	case "move":
		c.Simulator.Move = value
	case "join":
		c.Simulator.Join = value
	case "part":
		c.Simulator.Part = value
	case "joinPart":
		c.Simulator.Join, c.Simulator.Part = value, value
	case "broadcastMin":
		c.Simulator.BroadcastMin = n
	case "bufferMin":
		c.Simulator.BufferMin = n
	case "width":
		c.Topology.Width = n
	case "height":
		c.Topology.Height = n
	case "initialNodes":
		c.Workload.InitialNodes = n
	case "walkMin":
		c.Routing.WalkMin = n
	case "walkRange":
		c.Routing.WalkRange = n
	case "maxFailures":
		c.Routing.MaxFailures = n
	case "replyTTL":
		c.Routing.ReplyTTL = n
	case "hashFunctions":
		c.Routing.HashFunctions = n
	case "interval":
		c.Workload.Arrivals.Interval = int64(n)
	case "rate":
		c.Workload.Arrivals.Rate = value
	case "burstMultiplier":
		c.Workload.Arrivals.BurstMultiplier = value
	default:
		return simulator.ErrInvalidConfig(fmt.Sprintf("unknown sweep parameter %q", param))
	}
	return nil
}
