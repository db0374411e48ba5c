package routing

import (
	"fmt"
	"math/big"
	"strings"
)

// NodeID identifies a node for its whole lifetime. IDs are assigned in
// increasing order and never reused.
type NodeID uint64

// ProbeType distinguishes storage from retrieval probes
type ProbeType int

const (
	ProbeGet ProbeType = iota
	ProbePut
)

func (pt ProbeType) String() string {
	switch pt {
	case ProbeGet:
		return "get"
	case ProbePut:
		return "put"
	default:
		return "unknown"
	}
}

// ProbeStatus is the forward-leg outcome of a probe
type ProbeStatus int

const (
	StatusOutbound ProbeStatus = iota
	StatusSuccess
	StatusFailure
)

func (ps ProbeStatus) String() string {
	switch ps {
	case StatusOutbound:
		return "outbound"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Probe is the routing state of one PUT or GET attempt. A probe is owned by
// exactly one node at a time: each hop takes it, mutates it and hands it back
// to the kernel, which schedules delivery to the next hop.
type Probe struct {
	Type      ProbeType
	Initiator NodeID
	// OrigKey is the unhashed key. It names the request for retries and
	// statistics; storage uses HashedKey.
	OrigKey   string
	HashedKey *big.Int
	// WalkLength is the remaining random-hop budget. It is zero for the whole
	// deterministic phase.
	WalkLength int
	// TotalWalkLength is the budget the probe started with.
	TotalWalkLength int
	// Path starts with the initiator; every hop appends the next node it
	// chose. Path[len-1] is the node to process next or, once the probe is
	// resolved, the node that resolved it.
	Path   []NodeID
	Status ProbeStatus
	Err    Reason
	// Item is the payload of a PUT.
	Item string
	// Found holds the items a successful GET retrieved.
	Found     []string
	StartTime int64
	EndTime   int64
}

// NewProbe creates an outbound probe sitting at its initiator
func NewProbe(typ ProbeType, initiator NodeID, key string, hashedKey *big.Int, walkLength int, startTime int64) *Probe {
	if walkLength < 0 {
		walkLength = 0
	}
	return &Probe{
		Type:            typ,
		Initiator:       initiator,
		OrigKey:         key,
		HashedKey:       hashedKey,
		WalkLength:      walkLength,
		TotalWalkLength: walkLength,
		Path:            []NodeID{initiator},
		Status:          StatusOutbound,
		StartTime:       startTime,
	}
}

// NewPutProbe creates an outbound PUT probe carrying item
func NewPutProbe(initiator NodeID, key, item string, hashedKey *big.Int, walkLength int, startTime int64) *Probe {
	p := NewProbe(ProbePut, initiator, key, hashedKey, walkLength, startTime)
	p.Item = item
	return p
}

// RandomWalk returns true while the probe still has random hops to take
func (p *Probe) RandomWalk() bool { return p.WalkLength > 0 }

// Last returns the last node on the path
func (p *Probe) Last() NodeID { return p.Path[len(p.Path)-1] }

// Resolved returns true once the forward leg has an outcome
func (p *Probe) Resolved() bool { return p.Status != StatusOutbound }

func (p *Probe) String() string {
	hops := make([]string, len(p.Path))
	for i, id := range p.Path {
		hops[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("Probe(%s, initiator=%d, key=%q, walk=%d/%d, path=%s, status=%s, err=%s)",
		p.Type, p.Initiator, p.OrigKey, p.WalkLength, p.TotalWalkLength,
		strings.Join(hops, "->"), p.Status, p.Err)
}

// Reply is the message carrying a resolved probe back to its initiator
type Reply struct {
	Probe *Probe
	Hops  int
}

// ReplyStatus is the outcome of one reply-forwarding step
type ReplyStatus int

const (
	ReplyForward ReplyStatus = iota
	ReplySuccess
	ReplyFailure
	ReplyRetry
)

func (rs ReplyStatus) String() string {
	switch rs {
	case ReplyForward:
		return "forward"
	case ReplySuccess:
		return "success"
	case ReplyFailure:
		return "failure"
	case ReplyRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Response is what a node decides when it handles a reply
type Response struct {
	Status ReplyStatus
	Err    Reason
	// Probe is the probe the reply carried.
	Probe *Probe
	// NextHop is where to send Reply (ReplyForward) or Retry (ReplyRetry).
	NextHop NodeID
	// Reply is the message to forward, hop count already incremented.
	Reply Reply
	// Retry is the fresh probe issued when a failed PUT is retried.
	Retry *Probe
}
