package routing

import (
	"fmt"
	"math"
	"math/rand"
)

// DistributionType selects how random-walk lengths are drawn
type DistributionType int

const (
	DistUniform DistributionType = iota
	DistExponential
	DistGeometric
	DistFixed
)

// String returns the string representation of DistributionType
func (dt DistributionType) String() string {
	switch dt {
	case DistUniform:
		return "uniform"
	case DistExponential:
		return "exponential"
	case DistGeometric:
		return "geometric"
	case DistFixed:
		return "fixed"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// ParseDistributionType parses a string into a DistributionType
func ParseDistributionType(s string) (DistributionType, error) {
	switch s {
	case "uniform", "":
		return DistUniform, nil
	case "exponential":
		return DistExponential, nil
	case "geometric":
		return DistGeometric, nil
	case "fixed":
		return DistFixed, nil
	default:
		return DistUniform, fmt.Errorf("invalid DistributionType: %s (must be 'uniform', 'exponential', 'geometric', or 'fixed')", s)
	}
}

// MarshalText implements encoding.TextMarshaler (used by both json and yaml)
func (dt DistributionType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (dt *DistributionType) UnmarshalText(data []byte) error {
	parsed, err := ParseDistributionType(string(data))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Distribution draws a walk length in [min, max]. Every sampler returns
// min when the range is empty.
type Distribution interface {
	Sample(rng *rand.Rand, min, max int) int
}

// shortWalkFraction is the mean number of hops above min, as a share of the
// range, for the samplers that favour short walks. Uniform sits at one half.
const shortWalkFraction = 0.25

// UniformDistribution draws every length in the range with equal odds
type UniformDistribution struct{}

func (d *UniformDistribution) Sample(rng *rand.Rand, min, max int) int {
	if min >= max {
		return min
	}
	return min + rng.Intn(max-min+1)
}

// ExponentialDistribution draws the hops above min from an exponential
// with mean MeanFraction*(max-min), truncated at max
type ExponentialDistribution struct {
	MeanFraction float64
}

func (d *ExponentialDistribution) Sample(rng *rand.Rand, min, max int) int {
	if min >= max || d.MeanFraction <= 0 {
		return min
	}
	mean := d.MeanFraction * float64(max-min)
	extra := int(rng.ExpFloat64() * mean)
	return min + extraHops(extra, max-min)
}

// GeometricDistribution extends the walk one hop at a time, stopping after
// each hop with the probability that gives a mean of MeanFraction*(max-min)
// extra hops
type GeometricDistribution struct {
	MeanFraction float64
}

func (d *GeometricDistribution) Sample(rng *rand.Rand, min, max int) int {
	if min >= max || d.MeanFraction <= 0 {
		return min
	}
	mean := d.MeanFraction * float64(max-min)
	stop := 1 / (1 + mean)

	// inverse transform of the number of failures before the first stop
	u := 1 - rng.Float64() // (0, 1]
	extra := int(math.Floor(math.Log(u) / math.Log(1-stop)))
	return min + extraHops(extra, max-min)
}

// FixedDistribution always walks the same share of the range
type FixedDistribution struct {
	Fraction float64 // clamped to [0, 1]
}

func (d *FixedDistribution) Sample(_ *rand.Rand, min, max int) int {
	if min >= max {
		return min
	}
	f := math.Max(0, math.Min(1, d.Fraction))
	return min + int(math.Round(f*float64(max-min)))
}

func extraHops(extra, limit int) int {
	if extra < 0 {
		return 0
	}
	return min(extra, limit)
}

// NewDistribution returns the sampler for distType. Unknown types walk
// uniformly.
func NewDistribution(distType DistributionType) Distribution {
	switch distType {
	case DistExponential:
		return &ExponentialDistribution{MeanFraction: shortWalkFraction}
	case DistGeometric:
		return &GeometricDistribution{MeanFraction: shortWalkFraction}
	case DistFixed:
		return &FixedDistribution{Fraction: 0.5}
	default:
		return &UniformDistribution{}
	}
}
