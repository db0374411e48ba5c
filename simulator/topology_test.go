package simulator

import (
	"errors"
	"math/rand"
	"slices"

	"github.com/miretskiy/manetsim/routing"
)

// fakeTopology is a fully connected plane: every node hears every other node
// unless the pair was severed. It records moves instead of performing them.
type fakeTopology struct {
	capacity int // 0 = unbounded
	placed   map[routing.NodeID]Location
	cut      map[[2]routing.NodeID]bool
	steps    int
	nextX    int
}

func newFakeTopology(capacity int) *fakeTopology {
	return &fakeTopology{
		capacity: capacity,
		placed:   make(map[routing.NodeID]Location),
		cut:      make(map[[2]routing.NodeID]bool),
	}
}

func (f *fakeTopology) Add(id routing.NodeID, _ float64, _ *rand.Rand) (Location, bool) {
	if f.capacity > 0 && len(f.placed) >= f.capacity {
		return Location{}, false
	}
	loc := Location{X: f.nextX}
	f.nextX++
	f.placed[id] = loc
	return loc, true
}

func (f *fakeTopology) AddAt(id routing.NodeID, _ float64, loc Location) error {
	for _, l := range f.placed {
		if l == loc {
			return errors.New("occupied")
		}
	}
	f.placed[id] = loc
	return nil
}

func (f *fakeTopology) Remove(id routing.NodeID) bool {
	if _, ok := f.placed[id]; !ok {
		return false
	}
	delete(f.placed, id)
	return true
}

func (f *fakeTopology) StepRandom(routing.NodeID, *rand.Rand) bool {
	f.steps++
	return true
}

func (f *fakeTopology) Neighbors(id routing.NodeID) []routing.NodeID {
	if _, ok := f.placed[id]; !ok {
		return nil
	}
	var nbrs []routing.NodeID
	for other := range f.placed {
		if other != id && !f.cut[[2]routing.NodeID{id, other}] {
			nbrs = append(nbrs, other)
		}
	}
	slices.Sort(nbrs)
	return nbrs
}

func (f *fakeTopology) Locate(id routing.NodeID) (Location, bool) {
	loc, ok := f.placed[id]
	return loc, ok
}

// sever takes a and b out of each other's range
func (f *fakeTopology) sever(a, b routing.NodeID) {
	f.cut[[2]routing.NodeID{a, b}] = true
	f.cut[[2]routing.NodeID{b, a}] = true
}
