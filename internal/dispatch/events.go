package dispatch

import (
	"sync"
	"time"
)

// Event names.
const (
	EventDispatchStart  = "dispatch_start"
	EventWaitingForSlot = "waiting_for_slot"
	EventConnecting     = "connecting"
	EventRequestSent    = "request_sent"
	EventGenerating     = "generating"
	EventComplete       = "complete"
	EventFailed         = "failed"

	EventRaceStart    = "race_start"
	EventStrategyDone = "strategy_done"
	EventRaceWon      = "race_won"
	EventRaceFailed   = "race_failed"
)

// Event is one progress record. Progress is a percentage in [0,100].
type Event struct {
	Name     string
	Progress float64
	Fields   map[string]any
	At       time.Time
}

// Sink receives progress events. Within one Dispatch call Publish is invoked
// from a single goroutine, in order, and never after Dispatch returns.
// Events are advisory; a slow sink slows only its own dispatch.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Publish(Event) {}

// MemorySink stores events in-memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Names returns the event names in publish order.
func (s *MemorySink) Names() []string {
	evs := s.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}
