// Package topology provides planes that place simulated nodes and answer
// which of them are in radio range of each other.
package topology

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/miretskiy/manetsim/routing"
	"github.com/miretskiy/manetsim/simulator"
)

var (
	ErrOccupied    = errors.New("location is occupied")
	ErrOutOfBounds = errors.New("location is out of bounds")
	ErrDuplicate   = errors.New("node is already placed")
)

// randomProbes is how many random cells Add tries before it falls back to
// scanning for free ones
const randomProbes = 64

// Config holds the plane dimensions
type Config struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// DefaultConfig returns a 100x100 plane
func DefaultConfig() Config {
	return Config{Width: 100, Height: 100}
}

// Validate checks if configuration values are valid
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return simulator.ErrInvalidConfig(fmt.Sprintf("plane must be at least 1x1, got %dx%d", c.Width, c.Height))
	}
	return nil
}

type placement struct {
	loc    simulator.Location
	radius float64
}

// UniformDisk is a 2-D grid with wrap-around edges: a node on the left
// border is next to one on the right border. Each cell holds at most one
// node. A node hears every other node closer than its own broadcast radius,
// so the neighbour relation is not necessarily symmetric.
type UniformDisk struct {
	config   Config
	nodes    map[routing.NodeID]placement
	occupied map[simulator.Location]routing.NodeID
}

var _ simulator.Topology = (*UniformDisk)(nil)

// NewUniformDisk creates an empty plane
func NewUniformDisk(config Config) (*UniformDisk, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &UniformDisk{
		config:   config,
		nodes:    make(map[routing.NodeID]placement),
		occupied: make(map[simulator.Location]routing.NodeID),
	}, nil
}

// Config returns the plane dimensions
func (u *UniformDisk) Config() Config { return u.config }

// Len returns the number of placed nodes
func (u *UniformDisk) Len() int { return len(u.nodes) }

func (u *UniformDisk) area() int { return u.config.Width * u.config.Height }

// Distance is the Euclidean distance between two cells, measured the short
// way around each wrapped axis
func (u *UniformDisk) Distance(a, b simulator.Location) float64 {
	dx := wrapDelta(a.X, b.X, u.config.Width)
	dy := wrapDelta(a.Y, b.Y, u.config.Height)
	return math.Hypot(float64(dx), float64(dy))
}

func wrapDelta(a, b, size int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= size
	return min(d, size-d)
}

func (u *UniformDisk) inBounds(loc simulator.Location) bool {
	return loc.X >= 0 && loc.X < u.config.Width && loc.Y >= 0 && loc.Y < u.config.Height
}

func (u *UniformDisk) Add(id routing.NodeID, radius float64, rng *rand.Rand) (simulator.Location, bool) {
	loc, ok := u.emptySpot(rng)
	if !ok {
		return simulator.Location{}, false
	}
	if err := u.AddAt(id, radius, loc); err != nil {
		return simulator.Location{}, false
	}
	return loc, true
}

// emptySpot picks a free cell uniformly at random. Occupied cells are
// assumed sparse, so random probing almost always succeeds at once.
func (u *UniformDisk) emptySpot(rng *rand.Rand) (simulator.Location, bool) {
	if len(u.occupied) >= u.area() {
		return simulator.Location{}, false
	}
	for i := 0; i < randomProbes; i++ {
		loc := simulator.Location{X: rng.Intn(u.config.Width), Y: rng.Intn(u.config.Height)}
		if _, taken := u.occupied[loc]; !taken {
			return loc, true
		}
	}

	free := make([]simulator.Location, 0, u.area()-len(u.occupied))
	for x := 0; x < u.config.Width; x++ {
		for y := 0; y < u.config.Height; y++ {
			loc := simulator.Location{X: x, Y: y}
			if _, taken := u.occupied[loc]; !taken {
				free = append(free, loc)
			}
		}
	}
	return free[rng.Intn(len(free))], true
}

func (u *UniformDisk) AddAt(id routing.NodeID, radius float64, loc simulator.Location) error {
	if !u.inBounds(loc) {
		return fmt.Errorf("%w: %s on a %dx%d plane", ErrOutOfBounds, loc, u.config.Width, u.config.Height)
	}
	if other, taken := u.occupied[loc]; taken {
		return fmt.Errorf("%w: %s holds node %d", ErrOccupied, loc, other)
	}
	if _, placed := u.nodes[id]; placed {
		return fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	u.nodes[id] = placement{loc: loc, radius: radius}
	u.occupied[loc] = id
	return nil
}

func (u *UniformDisk) Remove(id routing.NodeID) bool {
	p, ok := u.nodes[id]
	if !ok {
		return false
	}
	delete(u.occupied, p.loc)
	delete(u.nodes, id)
	return true
}

// StepRandom moves id to one of the free cells among its 8 neighbours
func (u *UniformDisk) StepRandom(id routing.NodeID, rng *rand.Rand) bool {
	p, ok := u.nodes[id]
	if !ok {
		return false
	}
	steps := u.freeSteps(p.loc)
	if len(steps) == 0 {
		return false
	}
	dst := steps[rng.Intn(len(steps))]
	delete(u.occupied, p.loc)
	u.occupied[dst] = id
	p.loc = dst
	u.nodes[id] = p
	return true
}

// freeSteps lists the unoccupied cells adjacent to loc, diagonals included.
// On planes narrower than 3 cells wrapping makes some offsets coincide; each
// cell is listed once.
func (u *UniformDisk) freeSteps(loc simulator.Location) []simulator.Location {
	var steps []simulator.Location
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			dst := simulator.Location{
				X: mod(loc.X+dx, u.config.Width),
				Y: mod(loc.Y+dy, u.config.Height),
			}
			if _, taken := u.occupied[dst]; taken || slices.Contains(steps, dst) {
				continue
			}
			steps = append(steps, dst)
		}
	}
	return steps
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// Neighbors scans every placed node. Fine for the populations simulated here.
func (u *UniformDisk) Neighbors(id routing.NodeID) []routing.NodeID {
	p, ok := u.nodes[id]
	if !ok {
		return nil
	}
	var nbrs []routing.NodeID
	for other, q := range u.nodes {
		if other != id && u.Distance(p.loc, q.loc) < p.radius {
			nbrs = append(nbrs, other)
		}
	}
	slices.Sort(nbrs)
	return nbrs
}

func (u *UniformDisk) Locate(id routing.NodeID) (simulator.Location, bool) {
	p, ok := u.nodes[id]
	return p.loc, ok
}
