package routing

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every LMSConfig validation failure
var ErrInvalidConfig = errors.New("invalid LMS config")

// LMSConfig holds the parameters of one LMS installation. It is immutable
// once a factory has been built from it.
type LMSConfig struct {
	HashBits         int              `json:"hashBits" yaml:"hashBits"`                 // λ: identifiers live in [0, 2^λ)
	MaxFailures      int              `json:"maxFailures" yaml:"maxFailures"`           // PUT attempts per (key, item) before giving up
	WalkMin          int              `json:"walkMin" yaml:"walkMin"`                   // shortest random walk
	WalkRange        int              `json:"walkRange" yaml:"walkRange"`               // walk lengths are drawn from [WalkMin, WalkMin+WalkRange)
	WalkDistribution DistributionType `json:"walkDistribution" yaml:"walkDistribution"` // how lengths are drawn from that range
	ReplyTTL         int              `json:"replyTTL" yaml:"replyTTL"`                 // hops a reply may travel before it is lost
	HashFunctions    int              `json:"hashFunctions" yaml:"hashFunctions"`       // number of auxiliary hash tags per key
}

// DefaultLMSConfig returns the parameters used by the reference experiments
func DefaultLMSConfig() LMSConfig {
	return LMSConfig{
		HashBits:         256,
		MaxFailures:      5,
		WalkMin:          5,
		WalkRange:        10,
		WalkDistribution: DistUniform,
		ReplyTTL:         1000,
		HashFunctions:    5,
	}
}

// Validate checks if configuration values are usable
func (c *LMSConfig) Validate() error {
	if c.HashBits < 1 {
		return fmt.Errorf("%w: hashBits must be >= 1", ErrInvalidConfig)
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("%w: maxFailures must be >= 1", ErrInvalidConfig)
	}
	if c.WalkMin < 0 {
		return fmt.Errorf("%w: walkMin must be >= 0", ErrInvalidConfig)
	}
	if c.WalkRange < 0 {
		return fmt.Errorf("%w: walkRange must be >= 0", ErrInvalidConfig)
	}
	if c.ReplyTTL < 1 {
		return fmt.Errorf("%w: replyTTL must be >= 1", ErrInvalidConfig)
	}
	if c.HashFunctions < 1 {
		return fmt.Errorf("%w: hashFunctions must be >= 1", ErrInvalidConfig)
	}
	return nil
}
