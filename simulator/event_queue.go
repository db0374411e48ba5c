package simulator

import "github.com/google/btree"

// EventID correlates the events of one logical request
type EventID uint64

// ScheduledEvent is an event together with its scheduling data
type ScheduledEvent struct {
	Time  int64
	ID    EventID
	Event Event
}

// bucket holds every event due at one time, in insertion order
type bucket struct {
	time   int64
	events []ScheduledEvent
}

// EventQueue is a time-ordered multimap of events. Events due at the same
// time come out in the order they were pushed.
type EventQueue struct {
	buckets *btree.BTreeG[*bucket]
	size    int
	// byID counts the queued events of each id per bucket time
	byID map[EventID]map[int64]int
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	return &EventQueue{
		buckets: btree.NewG(16, func(a, b *bucket) bool { return a.time < b.time }),
		byID:    make(map[EventID]map[int64]int),
	}
}

// Push adds an event to the bucket for time
func (eq *EventQueue) Push(time int64, id EventID, event Event) {
	b, ok := eq.buckets.Get(&bucket{time: time})
	if !ok {
		b = &bucket{time: time}
		eq.buckets.ReplaceOrInsert(b)
	}
	b.events = append(b.events, ScheduledEvent{Time: time, ID: id, Event: event})
	eq.size++

	times := eq.byID[id]
	if times == nil {
		times = make(map[int64]int)
		eq.byID[id] = times
	}
	times[time]++
}

// PopBucket removes and returns the earliest bucket
func (eq *EventQueue) PopBucket() (int64, []ScheduledEvent, bool) {
	b, ok := eq.buckets.DeleteMin()
	if !ok {
		return 0, nil, false
	}
	eq.size -= len(b.events)
	for _, ev := range b.events {
		eq.untrack(ev.ID, b.time, 1)
	}
	return b.time, b.events, true
}

// PeekTime returns the time of the earliest bucket
func (eq *EventQueue) PeekTime() (int64, bool) {
	b, ok := eq.buckets.Min()
	if !ok {
		return 0, false
	}
	return b.time, true
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	return eq.size == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	return eq.size
}

// Clear removes all events from the queue
func (eq *EventQueue) Clear() {
	eq.buckets.Clear(false)
	eq.size = 0
	eq.byID = make(map[EventID]map[int64]int)
}

// Deschedule removes the queued events of id whose type is typ and for which
// match returns true. A nil match removes every event of that id and type.
// It returns the number of events removed.
func (eq *EventQueue) Deschedule(id EventID, typ EventType, match func(Event) bool) int {
	times := eq.byID[id]
	if len(times) == 0 {
		return 0
	}
	removed := 0
	for time := range times {
		b, ok := eq.buckets.Get(&bucket{time: time})
		if !ok {
			continue
		}
		kept := b.events[:0]
		n := 0
		for _, ev := range b.events {
			if ev.ID == id && ev.Event.Type() == typ && (match == nil || match(ev.Event)) {
				n++
				continue
			}
			kept = append(kept, ev)
		}
		if n == 0 {
			continue
		}
		b.events = kept
		if len(b.events) == 0 {
			eq.buckets.Delete(b)
		}
		eq.size -= n
		removed += n
		eq.untrack(id, time, n)
	}
	return removed
}

func (eq *EventQueue) untrack(id EventID, time int64, n int) {
	times := eq.byID[id]
	times[time] -= n
	if times[time] <= 0 {
		delete(times, time)
	}
	if len(times) == 0 {
		delete(eq.byID, id)
	}
}

// Events returns a snapshot of all queued events in dispatch order
func (eq *EventQueue) Events() []ScheduledEvent {
	events := make([]ScheduledEvent, 0, eq.size)
	eq.buckets.Ascend(func(b *bucket) bool {
		events = append(events, b.events...)
		return true
	})
	return events
}
