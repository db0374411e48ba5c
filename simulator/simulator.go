package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/rs/zerolog"

	"github.com/miretskiy/manetsim/routing"
)

// simNode is a node as the kernel holds it: routing state plus the protocol
// bound to it
type simNode struct {
	*routing.Node
	protocol routing.Protocol
}

// periodicEvent is serviced when the kernel advances past next
type periodicEvent struct {
	id       EventID
	interval int64
	next     int64
	event    Event
}

var errPlaneFull = errors.New("no free location")

// Simulator is a PURE discrete event simulator with NO concurrency primitives.
// All state is accessed single-threaded via Step, Run and RunUntil.
// The caller (cmd/server) manages pacing and threading.
type Simulator struct {
	config   Config
	topology Topology
	factory  routing.ProtocolFactory

	nodes    map[routing.NodeID]*simNode
	live     []routing.NodeID // ascending, for reproducible random picks
	nextNode routing.NodeID

	queue    *EventQueue
	periodic []*periodicEvent
	now      int64
	lastID   EventID
	current  EventID // id of the event being dispatched, 0 outside dispatch
	err      error   // fatal error that stopped the run

	move, join, part float64

	metrics *Metrics
	rng     *rand.Rand
	log     zerolog.Logger

	// Event logging callback (optional, for UI/debugging)
	LogEvent func(msg string)
}

// NewSimulator creates a simulator over topology. Nodes cannot be added
// until a protocol is bound with NodeType.
func NewSimulator(config Config, topology Topology) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if topology == nil {
		return nil, ErrInvalidConfig("topology is required")
	}

	var rng *rand.Rand
	if config.RandomSeed == 0 {
		rng = rand.New(rand.NewSource(rand.Int63()))
	} else {
		rng = rand.New(rand.NewSource(config.RandomSeed))
	}

	sim := &Simulator{
		config:   config,
		topology: topology,
		nodes:    make(map[routing.NodeID]*simNode),
		nextNode: 1,
		queue:    NewEventQueue(),
		move:     config.Move,
		join:     config.Join,
		part:     config.Part,
		metrics:  NewMetrics(),
		rng:      rng,
		log:      zerolog.Nop(),
	}
	if config.SampleInterval > 0 {
		sim.Every(config.SampleInterval, &Sample{})
	}
	return sim, nil
}

// NodeType binds the routing protocol installed on every node created from
// now on
func (s *Simulator) NodeType(factory routing.ProtocolFactory) {
	s.factory = factory
}

// SetLogger sets the structured logger. The default discards everything.
func (s *Simulator) SetLogger(log zerolog.Logger) {
	s.log = log
}

// SetDynamics replaces the per-node, per-unit-time probabilities of moving,
// joining and leaving
func (s *Simulator) SetDynamics(move, join, part float64) error {
	if err := validateProbabilities(move, join, part); err != nil {
		return err
	}
	s.move, s.join, s.part = move, join, part
	s.logEvent("[t=%d] dynamics: move=%.3f join=%.3f part=%.3f", s.now, move, join, part)
	return nil
}

// Queue schedules event at time. An id of 0 mints a fresh one. The id used
// is returned so that follow-up events can share it.
func (s *Simulator) Queue(time int64, id EventID, event Event) EventID {
	if id == 0 {
		id = s.newEventID()
	}
	s.queue.Push(time, id, event)
	return id
}

// Every registers a periodic event. Periodic events are serviced when time
// advances, and only while other events are pending, so they never keep a
// run alive on their own.
func (s *Simulator) Every(interval int64, event Event) EventID {
	id := s.newEventID()
	s.periodic = append(s.periodic, &periodicEvent{
		id:       id,
		interval: interval,
		next:     s.now + interval,
		event:    event,
	})
	return id
}

// Deschedule removes future events of id with type typ that satisfy match
// (nil matches all). It returns how many were removed.
func (s *Simulator) Deschedule(id EventID, typ EventType, match func(Event) bool) int {
	return s.queue.Deschedule(id, typ, match)
}

// Put asks a random live node to store item under key. Each replica runs
// through its own probe with an independently chosen hash tag.
func (s *Simulator) Put(key, item string, replicas int) error {
	nodeID, ok := s.randomNode()
	if !ok {
		return dropped("no live node to put %q", key)
	}
	id := s.eventID()
	// the client refreshes its neighbours before it starts
	s.queue.Push(s.now+1, id, &UpdateNeighbors{Node: nodeID})
	s.queue.Push(s.now+2, id, &PutInit{Node: nodeID, Key: key, Item: item, Replicas: max(replicas, 1)})
	return nil
}

// Get asks a random live node to look key up
func (s *Simulator) Get(key string) error {
	nodeID, ok := s.randomNode()
	if !ok {
		return dropped("no live node to get %q", key)
	}
	id := s.eventID()
	s.queue.Push(s.now+1, id, &UpdateNeighbors{Node: nodeID})
	s.queue.Push(s.now+2, id, &GetInit{Node: nodeID, Key: key})
	return nil
}

// Run dispatches events until the queue is drained or a fatal error occurs
func (s *Simulator) Run() error {
	return s.RunUntil(math.MaxInt64)
}

// RunUntil dispatches every bucket due at or before limit
func (s *Simulator) RunUntil(limit int64) error {
	for {
		next, ok := s.queue.PeekTime()
		if !ok || next > limit {
			return s.err
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
}

// Step dispatches the earliest time bucket. It returns the fatal error that
// stopped the run, if any; once failed, the simulator stays failed.
func (s *Simulator) Step() error {
	if s.err != nil {
		return s.err
	}
	time, bucket, ok := s.queue.PopBucket()
	if !ok {
		return nil
	}
	if time < s.now {
		return s.fail(&NonLinearTimeError{Now: s.now, Time: time})
	}
	if err := s.advance(time); err != nil {
		return s.fail(err)
	}
	for _, ev := range bucket {
		if err := s.dispatch(ev.ID, ev.Event); err != nil {
			return s.fail(err)
		}
	}
	s.metrics.Time = s.now
	s.metrics.Population = len(s.live)
	return nil
}

func (s *Simulator) fail(err error) error {
	s.err = err
	s.log.Error().Err(err).Int64("time", s.now).Msg("simulation aborted")
	s.logEvent("[t=%d] ABORTED: %v", s.now, err)
	return err
}

// advance moves the clock to time and applies what happened in between:
// topology dynamics scaled by the elapsed time, then due periodic events
func (s *Simulator) advance(time int64) error {
	dt := time - s.now
	s.now = time
	if dt == 0 {
		return nil
	}
	if err := s.applyDynamics(dt); err != nil {
		return err
	}
	for _, p := range s.periodic {
		if p.next > s.now {
			continue
		}
		p.next = s.now + p.interval
		if err := s.dispatch(p.id, p.event); err != nil {
			return err
		}
	}
	return nil
}

// applyDynamics moves, adds and removes nodes for dt units of time. Moves
// are single steps repeated once per unit, so a long gap is a walk rather
// than a jump. Joins and parts are paired first so the population never
// swings through zero or a full plane on a large gap.
func (s *Simulator) applyDynamics(dt int64) error {
	pop := float64(len(s.live))
	if moves := int(math.Round(s.move * pop)); moves > 0 {
		for i := int64(0); i < dt; i++ {
			s.moveNodes(moves)
		}
	}

	joins := int(math.Round(s.join * pop * float64(dt)))
	parts := int(math.Round(s.part * pop * float64(dt)))
	pairs := min(joins, parts)
	for i := 0; i < pairs; i++ {
		if err := s.addNodes(1); err != nil {
			return err
		}
		s.removeNodes(1)
	}
	if joins > pairs {
		return s.addNodes(joins - pairs)
	}
	s.removeNodes(parts - pairs)
	return nil
}

// dispatch runs one event. A dropped message ends the event and is recorded
// against the request it belonged to; any other error is fatal.
func (s *Simulator) dispatch(id EventID, event Event) error {
	s.current = id
	defer func() { s.current = 0 }()

	s.metrics.RecordDispatch(id, s.now, event.Type())
	s.log.Debug().Int64("time", s.now).Uint64("id", uint64(id)).Str("event", event.String()).Msg("dispatch")

	err := s.processEvent(event)
	if errors.Is(err, ErrMessageDropped) {
		s.metrics.Record(s.current, s.now, LabelDropped)
		s.log.Debug().Int64("time", s.now).Uint64("id", uint64(s.current)).Err(err).Msg("dropped")
		return nil
	}
	return err
}

func (s *Simulator) processEvent(event Event) error {
	switch e := event.(type) {
	case *AddNodes:
		return s.addNodes(e.Count)
	case *RemoveNodes:
		s.removeNodes(e.Count)
	case *MoveNodes:
		s.moveNodes(e.Count)
	case *AddNodeAt:
		_, err := s.addNode(&e.Location)
		return err
	case *RemoveNode:
		if !s.removeNode(e.Node) {
			return dropped("node %d is already gone", e.Node)
		}
	case *Dynamics:
		return s.SetDynamics(e.Move, e.Join, e.Part)
	case *UpdateNeighbors:
		return s.updateNeighbors(e.Node)
	case *Sample:
		s.metrics.Samples = append(s.metrics.Samples, PopulationSample{
			Time:       s.now,
			Population: len(s.live),
			Pending:    s.queue.Len(),
		})
	case *Put:
		return s.Put(e.Key, e.Item, e.Replicas)
	case *Get:
		return s.Get(e.Key)
	case *PutInit:
		return s.processPutInit(e)
	case *GetInit:
		return s.processGetInit(e)
	case *SendProbe:
		return s.processSendProbe(e)
	case *PutReply:
		return s.processPutReply(e)
	case *GetReply:
		return s.processGetReply(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
	return nil
}

func (s *Simulator) processPutInit(e *PutInit) error {
	for i := 0; i < max(e.Replicas, 1); i++ {
		// every replica is tracked as a request of its own
		id := s.newEventID()
		s.current = id
		s.metrics.Record(id, s.now, EventTypePutInit.String())
		s.metrics.PutAttempts++

		n, err := s.node(e.Node)
		if err != nil {
			return err
		}
		probe, err := n.protocol.PutInit(e.Key, e.Item, s.now)
		if err = s.launch(id, e.Node, probe, err); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) processGetInit(e *GetInit) error {
	id := s.newEventID()
	s.current = id
	s.metrics.Record(id, s.now, EventTypeGetInit.String())
	s.metrics.GetAttempts++

	n, err := s.node(e.Node)
	if err != nil {
		return err
	}
	probe, err := n.protocol.GetInit(e.Key, s.now)
	return s.launch(id, e.Node, probe, err)
}

func (s *Simulator) processSendProbe(e *SendProbe) error {
	if err := s.verifyNeighbors(e.From, e.To); err != nil {
		return err
	}
	n, err := s.node(e.To)
	if err != nil {
		return err
	}
	probe, err := n.protocol.ReceiveProbe(e.Probe, s.now)
	return s.launch(s.current, e.To, probe, err)
}

// launch schedules what follows a hop taken at node at
func (s *Simulator) launch(id EventID, at routing.NodeID, probe *routing.Probe, err error) error {
	if errors.Is(err, routing.ErrIsolated) {
		s.metrics.Record(id, s.now, routing.ReasonIsolated.String())
		return nil
	}
	if err != nil {
		return err
	}
	s.forwardProbe(id, at, probe)
	return nil
}

// forwardProbe sends probe to its next hop or, once resolved, starts the
// reply at the resolving node
func (s *Simulator) forwardProbe(id EventID, at routing.NodeID, probe *routing.Probe) {
	if probe.Resolved() {
		s.queue.Push(s.now+1, id, newReply(at, at, routing.Reply{Probe: probe}))
		return
	}
	next := probe.Last()
	s.queue.Push(s.now+1, id, &UpdateNeighbors{Node: next})
	s.queue.Push(s.now+2, id, &SendProbe{From: at, To: next, Probe: probe})
}

// forwardReply sends the reply in resp one hop further
func (s *Simulator) forwardReply(at routing.NodeID, resp routing.Response) {
	next := resp.NextHop
	s.queue.Push(s.now+1, s.current, &UpdateNeighbors{Node: next})
	s.queue.Push(s.now+2, s.current, newReply(at, next, resp.Reply))
}

// replyTarget returns the node a reply is delivered to, dropping the reply
// if the hop that sent it is no longer valid
func (s *Simulator) replyTarget(r ProbeReply) (*simNode, error) {
	if !r.local() {
		if err := s.verifyNeighbors(r.From, r.To); err != nil {
			return nil, err
		}
	}
	return s.node(r.To)
}

func (s *Simulator) processPutReply(e *PutReply) error {
	n, err := s.replyTarget(e.ProbeReply)
	if err != nil {
		return err
	}
	resp := n.protocol.ForwardPutReply(e.Dst, e.Reply, s.now)
	switch resp.Status {
	case routing.ReplyForward:
		s.forwardReply(e.To, resp)
	case routing.ReplyRetry:
		s.metrics.Record(s.current, s.now, LabelRetry)
		s.forwardProbe(s.current, e.To, resp.Retry)
	case routing.ReplyFailure:
		s.metrics.Record(s.current, s.now, resp.Err.String())
	case routing.ReplySuccess:
		s.metrics.Record(s.current, s.now, LabelSuccess)
		s.metrics.RecordPutSuccess(resp.Probe, s.now)
	default:
		return fmt.Errorf("%w: put reply status %s", ErrUnknownEvent, resp.Status)
	}
	return nil
}

func (s *Simulator) processGetReply(e *GetReply) error {
	n, err := s.replyTarget(e.ProbeReply)
	if err != nil {
		return err
	}
	resp := n.protocol.ForwardGetReply(e.Dst, e.Reply, s.now)
	switch resp.Status {
	case routing.ReplyForward:
		s.forwardReply(e.To, resp)
		return nil
	case routing.ReplyFailure:
		s.metrics.Record(s.current, s.now, resp.Err.String())
	case routing.ReplySuccess:
		s.metrics.Record(s.current, s.now, LabelSuccess)
		s.metrics.RecordGetSuccess(resp.Probe, s.now)
	default:
		return fmt.Errorf("%w: get reply status %s", ErrUnknownEvent, resp.Status)
	}
	if resp.Err != routing.ReasonLost {
		s.metrics.RecordGetLocation(resp.Probe)
	}
	return nil
}

func (s *Simulator) updateNeighbors(id routing.NodeID) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	nbrs := s.topology.Neighbors(id)
	n.SetNeighbors(nbrs)
	s.metrics.RecordNeighborUpdate(len(nbrs))
	return nil
}

// verifyNeighbors drops a message from one node to another if either died or
// they moved out of range since it was scheduled
func (s *Simulator) verifyNeighbors(from, to routing.NodeID) error {
	if _, err := s.node(to); err != nil {
		return err
	}
	if _, ok := s.nodes[from]; !ok {
		return dropped("sender %d is gone", from)
	}
	if !slices.Contains(s.topology.Neighbors(from), to) {
		return dropped("node %d is out of range of %d", to, from)
	}
	return nil
}

// node returns a live node. Dead ids are never reused, so a miss means the
// message addressed a node that has left.
func (s *Simulator) node(id routing.NodeID) (*simNode, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, dropped("node %d is gone", id)
	}
	return n, nil
}

func (s *Simulator) addNodes(count int) error {
	for i := 0; i < count; i++ {
		if _, err := s.addNode(nil); err != nil {
			if errors.Is(err, errPlaneFull) {
				s.logEvent("[t=%d] plane full: added %d of %d nodes", s.now, i, count)
				return nil
			}
			return err
		}
	}
	return nil
}

// addNode creates a node at loc, or on a random free cell if loc is nil
func (s *Simulator) addNode(loc *Location) (*routing.Node, error) {
	if s.factory == nil {
		return nil, ErrNoProtocol
	}
	id := s.nextNode
	radius := float64(s.config.BroadcastMin + s.intn(s.config.BroadcastRange))
	capacity := s.config.BufferMin + s.intn(s.config.BufferRange)

	if loc == nil {
		if _, ok := s.topology.Add(id, radius, s.rng); !ok {
			return nil, errPlaneFull
		}
	} else if err := s.topology.AddAt(id, radius, *loc); err != nil {
		return nil, err
	}

	s.nextNode++
	n := routing.NewNode(id, radius, capacity)
	s.nodes[id] = &simNode{Node: n, protocol: s.factory(n, s.rng)}
	s.live = append(s.live, id)
	return n, nil
}

func (s *Simulator) removeNodes(count int) {
	for i := 0; i < count; i++ {
		id, ok := s.randomNode()
		if !ok {
			return
		}
		s.removeNode(id)
	}
}

func (s *Simulator) removeNode(id routing.NodeID) bool {
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	s.topology.Remove(id)
	if i, found := slices.BinarySearch(s.live, id); found {
		s.live = slices.Delete(s.live, i, i+1)
	}
	return true
}

// moveNodes steps count distinct random nodes one cell each
func (s *Simulator) moveNodes(count int) {
	count = min(count, len(s.live))
	for _, i := range s.rng.Perm(len(s.live))[:count] {
		s.topology.StepRandom(s.live[i], s.rng)
	}
}

func (s *Simulator) randomNode() (routing.NodeID, bool) {
	if len(s.live) == 0 {
		return 0, false
	}
	return s.live[s.rng.Intn(len(s.live))], true
}

func (s *Simulator) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rng.Intn(n)
}

func (s *Simulator) newEventID() EventID {
	s.lastID++
	return s.lastID
}

// eventID returns the id of the event being dispatched, or a fresh one
// when called from outside a run
func (s *Simulator) eventID() EventID {
	if s.current != 0 {
		return s.current
	}
	return s.newEventID()
}

func (s *Simulator) logEvent(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.log.Info().Msg(msg)
	if s.LogEvent != nil {
		s.LogEvent(msg)
	}
}

// Now returns the current simulated time
func (s *Simulator) Now() int64 { return s.now }

// Config returns the kernel configuration
func (s *Simulator) Config() Config { return s.config }

// Metrics returns the live statistics sink
func (s *Simulator) Metrics() *Metrics { return s.metrics }

// Pending returns the number of queued events
func (s *Simulator) Pending() int { return s.queue.Len() }

// IsQueueEmpty returns true once the run has drained
func (s *Simulator) IsQueueEmpty() bool { return s.queue.IsEmpty() }

// Population returns the number of live nodes
func (s *Simulator) Population() int { return len(s.live) }

// LiveNodes returns the ids of the live nodes in ascending order
func (s *Simulator) LiveNodes() []routing.NodeID { return slices.Clone(s.live) }

// Node returns the routing state of a live node
func (s *Simulator) Node(id routing.NodeID) (*routing.Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Node, true
}

// Protocol returns the protocol bound to a live node
func (s *Simulator) Protocol(id routing.NodeID) (routing.Protocol, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.protocol, true
}

// Events returns a snapshot of the queued events in dispatch order
func (s *Simulator) Events() []ScheduledEvent { return s.queue.Events() }

// State returns a snapshot for display
func (s *Simulator) State() map[string]interface{} {
	return map[string]interface{}{
		"time":       s.now,
		"population": len(s.live),
		"pending":    s.queue.Len(),
		"move":       s.move,
		"join":       s.join,
		"part":       s.part,
		"put":        s.metrics.PutSummary(),
		"get":        s.metrics.GetSummary(),
	}
}
