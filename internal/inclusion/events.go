package inclusion

import (
	"sync"

	"ShardRelay/internal/primitives"
)

// EventKind tells what happened to a candidate.
type EventKind uint8

const (
	// EventCandidateBacked is emitted when a candidate is admitted as pending.
	EventCandidateBacked EventKind = iota + 1

	// EventCandidateIncluded is emitted when a candidate is enacted.
	EventCandidateIncluded

	// EventCandidateTimedOut is emitted when a pending candidate is evicted.
	EventCandidateTimedOut
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventCandidateBacked:
		return "CandidateBacked"
	case EventCandidateIncluded:
		return "CandidateIncluded"
	case EventCandidateTimedOut:
		return "CandidateTimedOut"
	default:
		return "Unknown"
	}
}

// Event is one entry of the engine's output log.
type Event struct {
	Kind     EventKind                   // Kind of transition
	Receipt  primitives.CandidateReceipt // Receipt is the plain candidate receipt
	HeadData primitives.HeadData         // HeadData is the candidate's head
}

// EventSink receives engine events in emission order.
type EventSink interface {
	Emit(Event)
}

// EventLog is an in-memory EventSink.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends an event.
func (l *EventLog) Emit(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)

	return out
}

// Drain returns the recorded events and clears the log.
func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.events
	l.events = nil

	return out
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
