package routing

import (
	"math/rand"
	"slices"
)

// Node is the per-node state a routing protocol works on: identity, storage
// and the neighbour cache. The cache is refreshed by the kernel only; between
// refreshes it may be stale.
type Node struct {
	ID              NodeID
	BroadcastRadius float64
	Store           *Store
	neighbors       []NodeID
}

// NewNode creates a node with an empty neighbour cache
func NewNode(id NodeID, broadcastRadius float64, capacity int) *Node {
	return &Node{
		ID:              id,
		BroadcastRadius: broadcastRadius,
		Store:           NewStore(capacity),
	}
}

// Neighbors returns the cached neighbour list. Callers must not modify it.
func (n *Node) Neighbors() []NodeID { return n.neighbors }

// SetNeighbors replaces the neighbour cache
func (n *Node) SetNeighbors(ids []NodeID) {
	n.neighbors = append(n.neighbors[:0:0], ids...)
}

// HasNeighbor reports whether id is in the cached neighbour list
func (n *Node) HasNeighbor(id NodeID) bool {
	return slices.Contains(n.neighbors, id)
}

// Protocol is the capability a routing protocol grafts onto a node. All
// methods run on the node that currently holds the probe or reply, mutate
// only that node's state and return their decision to the caller.
type Protocol interface {
	// PutInit creates a PUT probe for key/item and takes its first hop at
	// this node. It returns ErrIsolated if a random hop is needed and the
	// node has no neighbours.
	PutInit(key, item string, now int64) (*Probe, error)
	// GetInit is PutInit for retrievals.
	GetInit(key string, now int64) (*Probe, error)
	// ReceiveProbe advances the probe by one hop.
	ReceiveProbe(p *Probe, now int64) (*Probe, error)
	// ForwardPutReply handles a PUT reply travelling to dst.
	ForwardPutReply(dst NodeID, msg Reply, now int64) Response
	// ForwardGetReply handles a GET reply travelling to dst.
	ForwardGetReply(dst NodeID, msg Reply, now int64) Response
}

// ProtocolFactory binds a protocol instance to a freshly created node. The
// rng is owned by the kernel and shared by every node of a simulation.
type ProtocolFactory func(n *Node, rng *rand.Rand) Protocol
