package experiment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/miretskiy/manetsim/simulator"
)

const (
	// ArrivalConstant spaces requests a fixed interval apart
	ArrivalConstant = "constant"
	// ArrivalOnOff alternates between a base rate and bursts of it
	ArrivalOnOff = "onoff"
)

// Arrivals describes how the requests of a workload are spaced in time
type Arrivals struct {
	Model    string `json:"model" yaml:"model"`
	Interval int64  `json:"interval" yaml:"interval"` // constant: time units between requests

	// onoff: requests per time unit while OFF, scaled by BurstMultiplier
	// while ON. Sigma is the lognormal jitter applied to the rate.
	Rate            float64 `json:"rate" yaml:"rate"`
	BurstMultiplier float64 `json:"burstMultiplier" yaml:"burstMultiplier"`
	Sigma           float64 `json:"sigma" yaml:"sigma"`
	OnMean          float64 `json:"onMean" yaml:"onMean"`   // Erlang distributed
	OffMean         float64 `json:"offMean" yaml:"offMean"` // exponentially distributed
	ErlangK         int     `json:"erlangK" yaml:"erlangK"`
}

// DefaultArrivals issues one request per time unit
func DefaultArrivals() Arrivals {
	return Arrivals{
		Model:           ArrivalConstant,
		Interval:        1,
		Rate:            0.5,
		BurstMultiplier: 4,
		Sigma:           0.3,
		OnMean:          10,
		OffMean:         30,
		ErlangK:         2,
	}
}

// Validate checks the parameters of the selected model
func (a *Arrivals) Validate() error {
	switch a.Model {
	case ArrivalConstant:
		if a.Interval < 0 {
			return simulator.ErrInvalidConfig("arrivals interval must be >= 0")
		}
	case ArrivalOnOff:
		if a.Rate <= 0 || a.BurstMultiplier <= 0 {
			return simulator.ErrInvalidConfig("arrivals rate and burstMultiplier must be > 0")
		}
		if a.Sigma < 0 {
			return simulator.ErrInvalidConfig("arrivals sigma must be >= 0")
		}
		if a.OnMean <= 0 || a.OffMean <= 0 || a.ErlangK < 1 {
			return simulator.ErrInvalidConfig("arrivals onMean and offMean must be > 0 and erlangK >= 1")
		}
	default:
		return simulator.ErrInvalidConfig(fmt.Sprintf("unknown arrival model %q", a.Model))
	}
	return nil
}

// ArrivalProcess yields the gap before the next request. Gaps may be zero,
// in which case requests share a time bucket.
type ArrivalProcess interface {
	Next() int64
}

// NewArrivalProcess creates the process a describes, drawing from rng
func NewArrivalProcess(a Arrivals, rng *rand.Rand) ArrivalProcess {
	if a.Model == ArrivalOnOff {
		return newOnOffArrivals(a, rng)
	}
	return constantArrivals(a.Interval)
}

type constantArrivals int64

func (c constantArrivals) Next() int64 { return int64(c) }

// onOffArrivals is a two regime process. OFF periods are exponential and ON
// periods Erlang. Fractional gaps accumulate on a continuous clock so the
// long-run rate survives rounding to whole time units.
type onOffArrivals struct {
	cfg  Arrivals
	rng  *rand.Rand
	on   bool
	left float64 // time remaining in the current regime
	now  float64
}

func newOnOffArrivals(a Arrivals, rng *rand.Rand) *onOffArrivals {
	// start OFF
	return &onOffArrivals{
		cfg:  a,
		rng:  rng,
		left: exponentialSample(rng, a.OffMean),
	}
}

func (p *onOffArrivals) rate() float64 {
	rate := p.cfg.Rate
	if p.on {
		rate *= p.cfg.BurstMultiplier
	}
	if s := p.cfg.Sigma; s > 0 {
		// lognormal centred on rate
		rate *= math.Exp(p.rng.NormFloat64()*s - s*s/2)
	}
	return rate
}

func (p *onOffArrivals) Next() int64 {
	gap := 1 / p.rate()
	p.advance(gap)
	prev := p.now
	p.now += gap
	return int64(math.Floor(p.now)) - int64(math.Floor(prev))
}

// advance runs the regime state machine forward by dt
func (p *onOffArrivals) advance(dt float64) {
	for dt > 0 {
		if p.left > dt {
			p.left -= dt
			return
		}
		dt -= p.left
		p.on = !p.on
		if p.on {
			p.left = erlangSample(p.rng, p.cfg.ErlangK, p.cfg.OnMean)
		} else {
			p.left = exponentialSample(p.rng, p.cfg.OffMean)
		}
	}
}

func exponentialSample(rng *rand.Rand, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	u := rng.Float64()
	if u == 0 {
		u = 1e-10 // log(0)
	}
	return -mean * math.Log(u)
}

// erlangSample is the sum of k exponentials with mean mean/k
func erlangSample(rng *rand.Rand, k int, mean float64) float64 {
	if mean <= 0 || k <= 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += exponentialSample(rng, mean/float64(k))
	}
	return sum
}
