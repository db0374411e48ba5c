package simulator

import (
	"cmp"
	"maps"
	"slices"

	"github.com/miretskiy/manetsim/routing"
)

// History labels recorded in addition to event type names
const (
	LabelDropped = "dropped"
	LabelSuccess = "success"
	LabelRetry   = "retry"
)

// HistoryEntry is one step in the life of a request
type HistoryEntry struct {
	Time  int64  `json:"time"`
	Label string `json:"label"`
}

// PopulationSample is recorded by the periodic sampler
type PopulationSample struct {
	Time       int64 `json:"time"`
	Population int   `json:"population"`
	Pending    int   `json:"pending"` // queued events
}

// Summary counts request outcomes over a set of histories
type Summary struct {
	Messages  int `json:"messages"`
	Dropped   int `json:"dropped"`
	Success   int `json:"success"`
	Isolated  int `json:"isolated"`
	Lost      int `json:"lost"`
	Full      int `json:"full"`
	Duplicate int `json:"duplicate"`
	Retry     int `json:"retry"`
	Missing   int `json:"missing"`
}

// Metrics is the statistics sink of a simulation. The kernel writes it;
// nothing in the routing path reads it back.
type Metrics struct {
	Time       int64 `json:"time"`
	Population int   `json:"population"`

	// Per event id: everything that happened to the request, in order
	History map[EventID][]HistoryEntry `json:"history"`

	PutAttempts  int `json:"putAttempts"`
	PutSuccesses int `json:"putSuccesses"`
	GetAttempts  int `json:"getAttempts"`
	GetSuccesses int `json:"getSuccesses"`

	// Running averages over successful requests. Probe time is the forward
	// leg (end - start), reply time the way back (arrival - end).
	AvgPutTime      float64 `json:"avgPutTime"`
	AvgPutReplyTime float64 `json:"avgPutReplyTime"`
	AvgGetTime      float64 `json:"avgGetTime"`
	AvgGetReplyTime float64 `json:"avgGetReplyTime"`

	NeighborUpdates int     `json:"neighborUpdates"`
	AvgNeighbors    float64 `json:"avgNeighbors"`

	// Nodes where a key was stored or where a lookup for it ended
	PutLocations map[string][]routing.NodeID `json:"putLocations"`
	GetLocations map[string][]routing.NodeID `json:"getLocations"`

	EventsPerTime map[int64]int      `json:"eventsPerTime"`
	Samples       []PopulationSample `json:"samples"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		History:       make(map[EventID][]HistoryEntry),
		PutLocations:  make(map[string][]routing.NodeID),
		GetLocations:  make(map[string][]routing.NodeID),
		EventsPerTime: make(map[int64]int),
	}
}

// Record appends label to the history of id
func (m *Metrics) Record(id EventID, time int64, label string) {
	m.History[id] = append(m.History[id], HistoryEntry{Time: time, Label: label})
}

// RecordDispatch notes that an event ran at time
func (m *Metrics) RecordDispatch(id EventID, time int64, et EventType) {
	m.Record(id, time, et.String())
	m.EventsPerTime[time]++
}

// RecordNeighborUpdate folds one neighbour-cache refresh into the average
func (m *Metrics) RecordNeighborUpdate(count int) {
	m.AvgNeighbors = runningAverage(m.AvgNeighbors, m.NeighborUpdates, float64(count))
	m.NeighborUpdates++
}

// RecordPutSuccess folds a PUT that reached its initiator at now
func (m *Metrics) RecordPutSuccess(p *routing.Probe, now int64) {
	m.AvgPutTime = runningAverage(m.AvgPutTime, m.PutSuccesses, float64(p.EndTime-p.StartTime))
	m.AvgPutReplyTime = runningAverage(m.AvgPutReplyTime, m.PutSuccesses, float64(now-p.EndTime))
	m.PutSuccesses++
	m.PutLocations[p.OrigKey] = append(m.PutLocations[p.OrigKey], p.Last())
}

// RecordGetSuccess folds a GET that reached its initiator at now
func (m *Metrics) RecordGetSuccess(p *routing.Probe, now int64) {
	m.AvgGetTime = runningAverage(m.AvgGetTime, m.GetSuccesses, float64(p.EndTime-p.StartTime))
	m.AvgGetReplyTime = runningAverage(m.AvgGetReplyTime, m.GetSuccesses, float64(now-p.EndTime))
	m.GetSuccesses++
}

// RecordGetLocation notes where a lookup for p's key ended
func (m *Metrics) RecordGetLocation(p *routing.Probe) {
	m.GetLocations[p.OrigKey] = append(m.GetLocations[p.OrigKey], p.Last())
}

func runningAverage(avg float64, n int, sample float64) float64 {
	return (avg*float64(n) + sample) / float64(n+1)
}

// PutSummary counts outcomes over the histories of PUT probes
func (m *Metrics) PutSummary() Summary {
	return m.summarize(EventTypePutInit.String())
}

// GetSummary counts outcomes over the histories of GET probes
func (m *Metrics) GetSummary() Summary {
	return m.summarize(EventTypeGetInit.String())
}

// summarize counts labels across histories whose first entry is first
func (m *Metrics) summarize(first string) Summary {
	var s Summary
	for _, history := range m.History {
		if len(history) == 0 || history[0].Label != first {
			continue
		}
		s.Messages++
		for _, entry := range history {
			switch entry.Label {
			case LabelDropped:
				s.Dropped++
			case LabelSuccess:
				s.Success++
			case LabelRetry:
				s.Retry++
			case routing.ReasonIsolated.String():
				s.Isolated++
			case routing.ReasonLost.String():
				s.Lost++
			case routing.ReasonFull.String():
				s.Full++
			case routing.ReasonDuplicate.String():
				s.Duplicate++
			case routing.ReasonMissing.String():
				s.Missing++
			}
		}
	}
	return s
}

// Histories returns the event ids in order of their first entry
func (m *Metrics) Histories() []EventID {
	ids := make([]EventID, 0, len(m.History))
	for id := range m.History {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b EventID) int {
		if c := cmp.Compare(m.History[a][0].Time, m.History[b][0].Time); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

// Clone creates a deep copy of the metrics
func (m *Metrics) Clone() *Metrics {
	clone := *m
	clone.History = make(map[EventID][]HistoryEntry, len(m.History))
	for id, h := range m.History {
		clone.History[id] = slices.Clone(h)
	}
	clone.PutLocations = cloneLocations(m.PutLocations)
	clone.GetLocations = cloneLocations(m.GetLocations)
	clone.EventsPerTime = maps.Clone(m.EventsPerTime)
	clone.Samples = slices.Clone(m.Samples)
	return &clone
}

func cloneLocations(src map[string][]routing.NodeID) map[string][]routing.NodeID {
	dst := make(map[string][]routing.NodeID, len(src))
	for k, v := range src {
		dst[k] = slices.Clone(v)
	}
	return dst
}
