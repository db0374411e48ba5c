package simulator

import "fmt"

// Config holds kernel parameters. Protocol parameters live in
// routing.LMSConfig and the plane in the topology's own config.
type Config struct {
	RandomSeed int64 `json:"randomSeed" yaml:"randomSeed"` // 0 = time-based seed

	// Node radio and storage, drawn per node as min + rand(range)
	BroadcastMin   int `json:"broadcastMin" yaml:"broadcastMin"`
	BroadcastRange int `json:"broadcastRange" yaml:"broadcastRange"`
	BufferMin      int `json:"bufferMin" yaml:"bufferMin"`
	BufferRange    int `json:"bufferRange" yaml:"bufferRange"`

	// Initial dynamics, per node per unit of time
	Move float64 `json:"move" yaml:"move"`
	Join float64 `json:"join" yaml:"join"`
	Part float64 `json:"part" yaml:"part"`

	// SampleInterval > 0 records population samples at this period
	SampleInterval int64 `json:"sampleInterval" yaml:"sampleInterval"`
}

// DefaultConfig returns the node parameters used by the reference experiments
func DefaultConfig() Config {
	return Config{
		RandomSeed:     0,
		BroadcastMin:   15,
		BroadcastRange: 5,
		BufferMin:      10,
		BufferRange:    10,
	}
}

// Validate checks if configuration values are valid
func (c *Config) Validate() error {
	if c.BroadcastMin < 0 {
		return ErrInvalidConfig("broadcastMin must be >= 0")
	}
	if c.BroadcastRange < 0 {
		return ErrInvalidConfig("broadcastRange must be >= 0")
	}
	if c.BufferMin < 0 {
		return ErrInvalidConfig("bufferMin must be >= 0")
	}
	if c.BufferRange < 0 {
		return ErrInvalidConfig("bufferRange must be >= 0")
	}
	if err := validateProbabilities(c.Move, c.Join, c.Part); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SampleInterval < 0 {
		return ErrInvalidConfig("sampleInterval must be >= 0")
	}
	return nil
}

// validateProbabilities checks the three dynamics probabilities
func validateProbabilities(move, join, part float64) error {
	for _, p := range []struct {
		name  string
		value float64
	}{{"move", move}, {"join", join}, {"part", part}} {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("%w: %s=%v must be between 0 and 1", ErrInvalidProbability, p.name, p.value)
		}
	}
	return nil
}
