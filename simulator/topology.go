package simulator

import (
	"fmt"
	"math/rand"

	"github.com/miretskiy/manetsim/routing"
)

// Location is a cell of the plane
type Location struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (l Location) String() string { return fmt.Sprintf("(%d, %d)", l.X, l.Y) }

// Topology places nodes in space and answers who can hear whom. The kernel
// owns node identity and routing state; a Topology only knows positions and
// broadcast radii. Randomised operations draw from the kernel's rng so that a
// seeded run is reproducible.
type Topology interface {
	// Add places id on a random free cell. It returns false when the plane
	// is full.
	Add(id routing.NodeID, radius float64, rng *rand.Rand) (Location, bool)
	// AddAt places id on loc. It fails if loc is occupied or out of bounds.
	AddAt(id routing.NodeID, radius float64, loc Location) error
	// Remove frees the cell of id. It returns false if id is unknown.
	Remove(id routing.NodeID) bool
	// StepRandom moves id to a random free adjacent cell. It returns false
	// when no adjacent cell is free.
	StepRandom(id routing.NodeID, rng *rand.Rand) bool
	// Neighbors returns the nodes within the broadcast radius of id, sorted
	// by id.
	Neighbors(id routing.NodeID) []routing.NodeID
	// Locate returns the cell of id
	Locate(id routing.NodeID) (Location, bool)
}
