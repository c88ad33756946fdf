package workflow

import "time"

// EventType identifies an engine event.
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_end"
	EventRoute     EventType = "route"
	EventRunEnd    EventType = "run_end"
	EventRunError  EventType = "run_error"
)

// Event is emitted synchronously by the engine while a run progresses.
type Event struct {
	Type     EventType     `json:"type"`
	Graph    string        `json:"graph"`
	RunID    string        `json:"run_id"`
	Node     string        `json:"node,omitempty"`
	Step     int           `json:"step"`
	Label    Label         `json:"label,omitempty"`
	Forced   bool          `json:"forced,omitempty"`
	Guard    string        `json:"guard,omitempty"`
	Next     string        `json:"next,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
	Time     time.Time     `json:"time"`
}

// Observer receives engine events. Implementations must not block for long:
// they run on the run's goroutine between nodes.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
