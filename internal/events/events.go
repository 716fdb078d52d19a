// Package events defines the workflow event stream consumed by external
// subscribers (spec.md §4.5 "Event stream", §6 "Event interface").
package events

import "sync"

// Kind names one of the event types spec.md §4.5 enumerates.
type Kind string

const (
	WorkflowStarted  Kind = "workflow_started"
	NodeStarted      Kind = "node_started"
	ToolStarted      Kind = "tool_started"
	FindingEmitted   Kind = "finding_emitted"
	ToolFinished     Kind = "tool_finished"
	NodeFinished     Kind = "node_finished"
	Progress         Kind = "progress"
	CheckpointSaved  Kind = "checkpoint_saved"
	Paused           Kind = "paused"
	Resumed          Kind = "resumed"
	WorkflowFinished Kind = "workflow_finished"

	// AdapterValidated, AdapterExecuted and AdapterParsed are the three
	// adapter framework stages spec.md §4.1 requires Run to emit.
	AdapterValidated Kind = "validated"
	AdapterExecuted  Kind = "executed"
	AdapterParsed    Kind = "parsed"

	// Diagnostic carries out-of-band notices, such as an unmapped
	// severity token (spec.md §4.3, §8).
	Diagnostic Kind = "diagnostic"
)

// Event is one totally-ordered, idempotent-keyed entry in a workflow's
// event stream. Seq is unique and monotonic per WorkflowID.
type Event struct {
	WorkflowID string
	Seq        uint64
	Kind       Kind
	NodeKind   string
	NodeIndex  int
	ToolID     string
	FindingID  string
	Status     string
	Value      float64
	Detail     string
}

// Sink receives events as they are produced. Implementations must not
// block the caller for long; the in-memory ring buffer below is the
// default.
type Sink interface {
	Publish(e Event)
}

// Ring is an in-memory, replay-from-seq event sink, one per workflow.
// It backs the "subscribers attach to a workflow id ... reconnect is
// supported by providing the last seen sequence number" contract of
// spec.md §6.
type Ring struct {
	mu       sync.Mutex
	capacity int
	next     uint64
	events   []Event
}

// NewRing creates a Ring retaining up to capacity events (older ones are
// dropped once the ring is full; a reconnect asking for a sequence number
// older than the oldest retained event receives all retained events).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Ring{capacity: capacity}
}

// Publish assigns the next sequence number and stores the event.
func (r *Ring) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	e.Seq = r.next
	r.events = append(r.events, e)
	if len(r.events) > r.capacity {
		r.events = r.events[len(r.events)-r.capacity:]
	}
}

// Since returns all retained events with Seq > lastSeen, in order.
func (r *Ring) Since(lastSeen uint64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.Seq > lastSeen {
			out = append(out, e)
		}
	}
	return out
}

// LastSeq returns the highest sequence number published so far.
func (r *Ring) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// NopSink discards every event; useful in tests and one-shot adapter runs
// that do not need observability.
type NopSink struct{}

// Publish implements Sink by discarding e.
func (NopSink) Publish(Event) {}
