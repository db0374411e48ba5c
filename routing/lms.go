package routing

import (
	"math/big"
	"math/rand"
	"slices"
	"strconv"
)

// LMS is the Local-Minimum Search protocol bound to one node. A request
// takes a short random walk, then descends greedily toward the node whose
// hash is closest to the key's hash. Replies retrace the recorded path.
type LMS struct {
	cfg    LMSConfig
	ring   *Ring
	walk   Distribution
	node   *Node
	rng    *rand.Rand
	hashID *big.Int

	// PUT attempts that failed at their destination, per (key, item)
	putFailures map[failureKey]int
}

type failureKey struct {
	key  string
	item string
}

// NewLMSFactory validates cfg and returns a factory installing LMS on nodes
func NewLMSFactory(cfg LMSConfig) (ProtocolFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ring, err := NewRing(cfg.HashBits)
	if err != nil {
		return nil, err
	}
	return func(n *Node, rng *rand.Rand) Protocol {
		return NewLMS(cfg, ring, n, rng)
	}, nil
}

// NewLMS installs LMS on node n. cfg is assumed valid.
func NewLMS(cfg LMSConfig, ring *Ring, n *Node, rng *rand.Rand) *LMS {
	return &LMS{
		cfg:         cfg,
		ring:        ring,
		walk:        NewDistribution(cfg.WalkDistribution),
		node:        n,
		rng:         rng,
		hashID:      ring.NodeHash(n.ID),
		putFailures: make(map[failureKey]int),
	}
}

// HashID returns the ring position of this node
func (l *LMS) HashID() *big.Int { return new(big.Int).Set(l.hashID) }

// Node returns the node this instance is installed on
func (l *LMS) Node() *Node { return l.node }

// Failures returns how many times the PUT of key/item failed so far
func (l *LMS) Failures(key, item string) int {
	return l.putFailures[failureKey{key, item}]
}

func (l *LMS) randWalkLength() int {
	if l.cfg.WalkRange <= 0 {
		return l.cfg.WalkMin
	}
	return l.walk.Sample(l.rng, l.cfg.WalkMin, l.cfg.WalkMin+l.cfg.WalkRange-1)
}

// hashKey hashes key together with one of the auxiliary tags. Different tags
// send the same logical key to different local minima.
func (l *LMS) hashKey(key string) *big.Int {
	tag := strconv.Itoa(l.rng.Intn(l.cfg.HashFunctions) + 1)
	return l.ring.HashString(key + tag)
}

func (l *LMS) GetInit(key string, now int64) (*Probe, error) {
	probe := NewProbe(ProbeGet, l.node.ID, key, l.hashKey(key), l.randWalkLength(), now)
	return l.ReceiveProbe(probe, now)
}

func (l *LMS) PutInit(key, item string, now int64) (*Probe, error) {
	return l.putInit(key, item, now, now, l.randWalkLength())
}

// putInit issues a PUT probe with an explicit walk length. Retries keep the
// original start time so the extra attempts count toward the request.
func (l *LMS) putInit(key, item string, now, startTime int64, walkLength int) (*Probe, error) {
	probe := NewPutProbe(l.node.ID, key, item, l.hashKey(key), walkLength, startTime)
	return l.ReceiveProbe(probe, now)
}

// ReceiveProbe advances p by one hop. The next node is appended to the
// path; if this node is the local minimum the probe is resolved here and
// the path is left unchanged, so p.Last() equals this node.
func (l *LMS) ReceiveProbe(p *Probe, now int64) (*Probe, error) {
	if p.RandomWalk() {
		p.WalkLength--
		nbrs := l.node.Neighbors()
		if len(nbrs) == 0 {
			p.Status = StatusFailure
			p.Err = ReasonIsolated
			p.EndTime = now
			return p, ErrIsolated
		}
		p.Path = append(p.Path, nbrs[l.rng.Intn(len(nbrs))])
		return p, nil
	}

	next := l.LocalMinimum(p.HashedKey)
	if next != l.node.ID {
		p.Path = append(p.Path, next)
		return p, nil
	}

	// the buffer is keyed by the tagged hash, so each tag of a key is a
	// separate slot
	slot := p.HashedKey.String()
	switch p.Type {
	case ProbePut:
		if err := l.node.Store.Store(slot, p.Item); err != nil {
			p.Status = StatusFailure
			p.Err = err.(Reason)
		} else {
			p.Status = StatusSuccess
		}
	case ProbeGet:
		if items, ok := l.node.Store.Retrieve(slot); ok {
			p.Status = StatusSuccess
			p.Found = items
		} else {
			p.Status = StatusFailure
			p.Err = ReasonMissing
		}
	}
	p.EndTime = now
	return p, nil
}

// LocalMinimum returns the node among this one and its cached neighbours
// whose hash is closest to key. Ties go to this node, then to the neighbour
// seen first, so a descent never oscillates between equidistant nodes.
func (l *LMS) LocalMinimum(key *big.Int) NodeID {
	minNode := l.node.ID
	minDist := l.ring.Distance(key, l.hashID)
	for _, id := range l.node.Neighbors() {
		dist := l.ring.Distance(key, l.ring.NodeHash(id))
		if dist.Cmp(minDist) < 0 {
			minDist = dist
			minNode = id
		}
	}
	return minNode
}

func (l *LMS) ForwardGetReply(dst NodeID, msg Reply, now int64) Response {
	if msg.Hops >= l.cfg.ReplyTTL {
		return Response{Status: ReplyFailure, Err: ReasonLost, Probe: msg.Probe}
	}
	probe := msg.Probe
	if dst != l.node.ID {
		return l.smartForward(dst, msg)
	}
	if probe.Status == StatusFailure {
		return Response{Status: ReplyFailure, Err: probe.Err, Probe: probe}
	}
	return Response{Status: ReplySuccess, Probe: probe}
}

func (l *LMS) ForwardPutReply(dst NodeID, msg Reply, now int64) Response {
	if msg.Hops >= l.cfg.ReplyTTL {
		return Response{Status: ReplyFailure, Err: ReasonLost, Probe: msg.Probe}
	}
	probe := msg.Probe
	if dst != l.node.ID {
		return l.smartForward(dst, msg)
	}

	key := failureKey{probe.OrigKey, probe.Item}
	if probe.Status != StatusFailure {
		delete(l.putFailures, key)
		return Response{Status: ReplySuccess, Probe: probe}
	}
	if !probe.Err.Retryable() {
		delete(l.putFailures, key)
		return Response{Status: ReplyFailure, Err: probe.Err, Probe: probe}
	}

	l.putFailures[key]++
	if l.putFailures[key] >= l.cfg.MaxFailures {
		delete(l.putFailures, key)
		return Response{Status: ReplyFailure, Err: probe.Err, Probe: probe}
	}

	// back off by doubling the random walk, which widens the region of the
	// ring the retry can land in
	retry, err := l.putInit(probe.OrigKey, probe.Item, now, probe.StartTime, probe.TotalWalkLength*2)
	if err != nil {
		delete(l.putFailures, key)
		return Response{Status: ReplyFailure, Err: ReasonIsolated, Probe: probe}
	}
	return Response{
		Status:  ReplyRetry,
		Err:     probe.Err,
		Probe:   probe,
		Retry:   retry,
		NextHop: retry.Last(),
	}
}

// smartForward picks the next hop of a reply. The part of the probe path up
// to this node, with the destination in front, is scanned from the
// destination end; the first entry that is a current neighbour wins.
func (l *LMS) smartForward(dst NodeID, msg Reply) Response {
	probe := msg.Probe
	if len(l.node.Neighbors()) == 0 {
		return Response{Status: ReplyFailure, Err: ReasonIsolated, Probe: probe}
	}

	path := probe.Path
	if i := slices.Index(path, l.node.ID); i >= 0 {
		path = path[:i+1]
	}
	wayBack := append([]NodeID{dst}, path...)
	for _, step := range wayBack {
		if l.node.HasNeighbor(step) {
			return Response{
				Status:  ReplyForward,
				Probe:   probe,
				NextHop: step,
				Reply:   Reply{Probe: probe, Hops: msg.Hops + 1},
			}
		}
	}
	return Response{Status: ReplyFailure, Err: ReasonIsolated, Probe: probe}
}
