// Package experiment builds a simulation from a Config, queues its workload
// and collects the outcome.
package experiment

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/miretskiy/manetsim/routing"
	"github.com/miretskiy/manetsim/simulator"
	"github.com/miretskiy/manetsim/topology"
)

// Result is the outcome of one run
type Result struct {
	Title      string            `json:"title"`
	Time       int64             `json:"time"`
	Population int               `json:"population"`
	Put        simulator.Summary `json:"put"`
	Get        simulator.Summary `json:"get"`

	AvgPutTime      float64 `json:"avgPutTime"`
	AvgPutReplyTime float64 `json:"avgPutReplyTime"`
	AvgGetTime      float64 `json:"avgGetTime"`
	AvgGetReplyTime float64 `json:"avgGetReplyTime"`
	AvgNeighbors    float64 `json:"avgNeighbors"`
	NeighborUpdates int     `json:"neighborUpdates"`
	// TotalMessages counts every event id that was ever dispatched
	TotalMessages int `json:"totalMessages"`

	Metrics *simulator.Metrics `json:"metrics,omitempty"`
}

// Experiment is a simulation wired to a uniform disk and LMS, with its
// workload queued
type Experiment struct {
	config Config
	sim    *simulator.Simulator
	plane  *topology.UniformDisk
}

// New builds the simulation described by cfg and queues its workload
func New(cfg Config, log zerolog.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plane, err := topology.NewUniformDisk(cfg.Topology)
	if err != nil {
		return nil, err
	}
	sim, err := simulator.NewSimulator(cfg.Simulator, plane)
	if err != nil {
		return nil, err
	}
	factory, err := routing.NewLMSFactory(cfg.Routing)
	if err != nil {
		return nil, err
	}
	sim.NodeType(factory)
	sim.SetLogger(log.With().Str("experiment", cfg.Title).Logger())

	e := &Experiment{config: cfg, sim: sim, plane: plane}
	e.queueWorkload()
	return e, nil
}

func (e *Experiment) queueWorkload() {
	s := e.config.Simulator
	w := e.config.Workload
	e.sim.Queue(0, 0, &simulator.Dynamics{Move: s.Move, Join: s.Join, Part: s.Part})
	if w.InitialNodes > 0 {
		e.sim.Queue(1, 0, &simulator.AddNodes{Count: w.InitialNodes})
	}
	arrivals := NewArrivalProcess(w.Arrivals, e.arrivalRand())
	t := w.Start
	for i := 0; i < w.Puts; i++ {
		e.sim.Queue(t, 0, &simulator.Put{
			Key:      w.Key,
			Item:     fmt.Sprintf("%s %d", w.ItemPrefix, i),
			Replicas: w.Replicas,
		})
		t += arrivals.Next()
	}
	t += w.Wait
	for i := 0; i < w.Gets; i++ {
		e.sim.Queue(t, 0, &simulator.Get{Key: w.Key})
		t += arrivals.Next()
	}
}

// arrivalRand is a stream of its own, separate from the kernel's
func (e *Experiment) arrivalRand() *rand.Rand {
	seed := e.config.Simulator.RandomSeed
	if seed == 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

// Simulator returns the underlying kernel, for callers that drive it step by
// step or queue events of their own
func (e *Experiment) Simulator() *simulator.Simulator { return e.sim }

// Plane returns the topology the nodes live on
func (e *Experiment) Plane() *topology.UniformDisk { return e.plane }

// Config returns the experiment description
func (e *Experiment) Config() Config { return e.config }

// Run drains the queue and returns the result
func (e *Experiment) Run() (Result, error) {
	err := e.sim.Run()
	return e.Result(), err
}

// Result summarises the run so far
func (e *Experiment) Result() Result {
	m := e.sim.Metrics()
	return Result{
		Title:           e.config.Title,
		Time:            e.sim.Now(),
		Population:      e.sim.Population(),
		Put:             m.PutSummary(),
		Get:             m.GetSummary(),
		AvgPutTime:      m.AvgPutTime,
		AvgPutReplyTime: m.AvgPutReplyTime,
		AvgGetTime:      m.AvgGetTime,
		AvgGetReplyTime: m.AvgGetReplyTime,
		AvgNeighbors:    m.AvgNeighbors,
		NeighborUpdates: m.NeighborUpdates,
		TotalMessages:   len(m.History),
		Metrics:         m,
	}
}

// Run builds and runs one experiment
func Run(cfg Config, log zerolog.Logger) (Result, error) {
	e, err := New(cfg, log)
	if err != nil {
		return Result{}, err
	}
	return e.Run()
}

// SweepRow is one run of a sweep
type SweepRow struct {
	Run    int     `json:"run"`
	Value  float64 `json:"value"`
	Result Result  `json:"result"`
}

// RunSweep runs base once per value of sweep.Param. Rows carry summaries
// only; full metrics of every run would dwarf the output.
func RunSweep(base Config, sweep Sweep, log zerolog.Logger) ([]SweepRow, error) {
	rows := make([]SweepRow, 0, len(sweep.Values))
	for i, v := range sweep.Values {
		cfg := base
		cfg.Sweep = nil
		if err := cfg.Set(sweep.Param, v); err != nil {
			return rows, err
		}
		log.Info().Int("run", i).Str("param", sweep.Param).Float64("value", v).Msg("sweep run")
		res, err := Run(cfg, log)
		if err != nil {
			return rows, fmt.Errorf("run %d (%s=%v): %w", i, sweep.Param, v, err)
		}
		res.Metrics = nil
		rows = append(rows, SweepRow{Run: i, Value: v, Result: res})
	}
	return rows, nil
}
