package simulator

import (
	"fmt"

	"github.com/miretskiy/manetsim/routing"
)

// EventType represents the type of simulation event
type EventType int

const (
	EventTypeAddNodes EventType = iota
	EventTypeRemoveNodes
	EventTypeMoveNodes
	EventTypeAddNodeAt
	EventTypeRemoveNode
	EventTypeDynamics
	EventTypeUpdateNeighbors
	EventTypeSample
	EventTypePut
	EventTypeGet
	EventTypePutInit
	EventTypeGetInit
	EventTypeSendProbe
	EventTypePutReply
	EventTypeGetReply
)

func (et EventType) String() string {
	switch et {
	case EventTypeAddNodes:
		return "add_nodes"
	case EventTypeRemoveNodes:
		return "remove_nodes"
	case EventTypeMoveNodes:
		return "move_nodes"
	case EventTypeAddNodeAt:
		return "add_node_at"
	case EventTypeRemoveNode:
		return "remove_node"
	case EventTypeDynamics:
		return "dynamics"
	case EventTypeUpdateNeighbors:
		return "update_nbrs"
	case EventTypeSample:
		return "sample"
	case EventTypePut:
		return "put"
	case EventTypeGet:
		return "get"
	case EventTypePutInit:
		return "put_init"
	case EventTypeGetInit:
		return "get_init"
	case EventTypeSendProbe:
		return "send_probe"
	case EventTypePutReply:
		return "put_probe_reply"
	case EventTypeGetReply:
		return "get_probe_reply"
	default:
		return "unknown"
	}
}

// Event is the base interface for all simulation events. Scheduling data
// (time and event id) lives in the queue, not in the event.
type Event interface {
	Type() EventType
	String() string
}

// AddNodes places Count new nodes on random free cells
type AddNodes struct {
	Count int
}

func (e *AddNodes) Type() EventType { return EventTypeAddNodes }
func (e *AddNodes) String() string  { return fmt.Sprintf("AddNodes(%d)", e.Count) }

// RemoveNodes kills Count random live nodes
type RemoveNodes struct {
	Count int
}

func (e *RemoveNodes) Type() EventType { return EventTypeRemoveNodes }
func (e *RemoveNodes) String() string  { return fmt.Sprintf("RemoveNodes(%d)", e.Count) }

// MoveNodes steps Count distinct random nodes one cell each
type MoveNodes struct {
	Count int
}

func (e *MoveNodes) Type() EventType { return EventTypeMoveNodes }
func (e *MoveNodes) String() string  { return fmt.Sprintf("MoveNodes(%d)", e.Count) }

// AddNodeAt places one new node on a given cell
type AddNodeAt struct {
	Location Location
}

func (e *AddNodeAt) Type() EventType { return EventTypeAddNodeAt }
func (e *AddNodeAt) String() string  { return fmt.Sprintf("AddNodeAt%s", e.Location) }

// RemoveNode kills one node
type RemoveNode struct {
	Node routing.NodeID
}

func (e *RemoveNode) Type() EventType { return EventTypeRemoveNode }
func (e *RemoveNode) String() string  { return fmt.Sprintf("RemoveNode(%d)", e.Node) }

// Dynamics replaces the move/join/part probabilities
type Dynamics struct {
	Move, Join, Part float64
}

func (e *Dynamics) Type() EventType { return EventTypeDynamics }
func (e *Dynamics) String() string {
	return fmt.Sprintf("Dynamics(move=%.3f, join=%.3f, part=%.3f)", e.Move, e.Join, e.Part)
}

// UpdateNeighbors refreshes a node's neighbour cache from the topology
type UpdateNeighbors struct {
	Node routing.NodeID
}

func (e *UpdateNeighbors) Type() EventType { return EventTypeUpdateNeighbors }
func (e *UpdateNeighbors) String() string  { return fmt.Sprintf("UpdateNeighbors(%d)", e.Node) }

// Sample records the population and queue depth
type Sample struct{}

func (e *Sample) Type() EventType { return EventTypeSample }
func (e *Sample) String() string  { return "Sample" }

// Put asks a random live node to store Item under Key, Replicas times
type Put struct {
	Key      string
	Item     string
	Replicas int
}

func (e *Put) Type() EventType { return EventTypePut }
func (e *Put) String() string {
	return fmt.Sprintf("Put(key=%q, item=%q, replicas=%d)", e.Key, e.Item, e.Replicas)
}

// Get asks a random live node to look Key up
type Get struct {
	Key string
}

func (e *Get) Type() EventType { return EventTypeGet }
func (e *Get) String() string  { return fmt.Sprintf("Get(key=%q)", e.Key) }

// PutInit starts the PUT probes of one request at Node
type PutInit struct {
	Node     routing.NodeID
	Key      string
	Item     string
	Replicas int
}

func (e *PutInit) Type() EventType { return EventTypePutInit }
func (e *PutInit) String() string {
	return fmt.Sprintf("PutInit(node=%d, key=%q, replicas=%d)", e.Node, e.Key, e.Replicas)
}

// GetInit starts a GET probe at Node
type GetInit struct {
	Node routing.NodeID
	Key  string
}

func (e *GetInit) Type() EventType { return EventTypeGetInit }
func (e *GetInit) String() string  { return fmt.Sprintf("GetInit(node=%d, key=%q)", e.Node, e.Key) }

// SendProbe delivers Probe from one node to the next hop
type SendProbe struct {
	From  routing.NodeID
	To    routing.NodeID
	Probe *routing.Probe
}

func (e *SendProbe) Type() EventType { return EventTypeSendProbe }
func (e *SendProbe) String() string {
	return fmt.Sprintf("SendProbe(%d->%d, %s)", e.From, e.To, e.Probe)
}

// ProbeReply carries a resolved probe one hop toward Dst. From equals To
// for the first leg, which starts at the node that resolved the probe.
type ProbeReply struct {
	From  routing.NodeID
	To    routing.NodeID
	Dst   routing.NodeID
	Reply routing.Reply
}

func (r ProbeReply) local() bool { return r.From == r.To }

// PutReply is a ProbeReply for a PUT probe
type PutReply struct {
	ProbeReply
}

func (e *PutReply) Type() EventType { return EventTypePutReply }
func (e *PutReply) String() string {
	return fmt.Sprintf("PutReply(%d->%d, dst=%d, hops=%d)", e.From, e.To, e.Dst, e.Reply.Hops)
}

// GetReply is a ProbeReply for a GET probe
type GetReply struct {
	ProbeReply
}

func (e *GetReply) Type() EventType { return EventTypeGetReply }
func (e *GetReply) String() string {
	return fmt.Sprintf("GetReply(%d->%d, dst=%d, hops=%d)", e.From, e.To, e.Dst, e.Reply.Hops)
}

// newReply builds the reply event matching the probe type
func newReply(from, to routing.NodeID, reply routing.Reply) Event {
	r := ProbeReply{From: from, To: to, Dst: reply.Probe.Initiator, Reply: reply}
	if reply.Probe.Type == routing.ProbePut {
		return &PutReply{r}
	}
	return &GetReply{r}
}
