// Package trace records what happened during a run, in order.
//
// The Recorder is the instrumented collaborator used to verify scheduling
// guarantees: it observes the event loop, module lifecycle transitions, and
// the steps module bodies execute.
package trace

import (
	"sync"

	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/specifier"
)

// Kind classifies trace events.
type Kind string

const (
	KindModuleState Kind = "module_state"
	KindMicrotask   Kind = "microtask"
	KindMacrotask   Kind = "macrotask"
	KindLoopState   Kind = "loop_state"
	KindStep        Kind = "step"
	KindError       Kind = "error"
)

// Event is one recorded occurrence.
type Event struct {
	Seq       int64  `json:"seq"`
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	Specifier string `json:"specifier,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Recorder is an append-only event log.
//
// Thread-safety: all methods are safe for concurrent use, though in
// practice events are recorded from the loop goroutine.
type Recorder struct {
	clock *loop.Clock

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder with its own logical clock.
func NewRecorder() *Recorder {
	return &Recorder{clock: loop.NewClock()}
}

// Record appends an event and returns it with its assigned seq.
func (r *Recorder) Record(kind Kind, name string, s specifier.Specifier, detail string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := Event{
		Seq:       r.clock.Next(),
		Kind:      kind,
		Name:      name,
		Specifier: s.String(),
		Detail:    detail,
	}
	r.events = append(r.events, e)
	return e
}

// ModuleState records a module lifecycle transition.
func (r *Recorder) ModuleState(s specifier.Specifier, state string) {
	r.Record(KindModuleState, state, s, "")
}

// Step records a step executed by a module body.
func (r *Recorder) Step(s specifier.Specifier, name, detail string) {
	r.Record(KindStep, name, s, detail)
}

// Error records a failure attributed to s.
func (r *Recorder) Error(s specifier.Specifier, err error) {
	r.Record(KindError, "error", s, err.Error())
}

// TaskStarted implements loop.Observer.
func (r *Recorder) TaskStarted(kind loop.TaskKind, owner specifier.Specifier, name string, _ int64) {
	k := KindMacrotask
	if kind == loop.KindMicrotask {
		k = KindMicrotask
	}
	r.Record(k, name, owner, "")
}

// StateChanged implements loop.Observer.
func (r *Recorder) StateChanged(from, to loop.State) {
	r.Record(KindLoopState, to.String(), specifier.Specifier{}, from.String())
}

// Events returns a copy of all recorded events in seq order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Filter returns the events for which keep returns true.
func (r *Recorder) Filter(keep func(Event) bool) []Event {
	var out []Event
	for _, e := range r.Events() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the names of events of the given kinds, in order. With no
// kinds it returns every event's name.
func (r *Recorder) Names(kinds ...Kind) []string {
	var out []string
	for _, e := range r.Filter(func(e Event) bool { return matchKind(e.Kind, kinds) }) {
		out = append(out, e.Name)
	}
	return out
}

func matchKind(k Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
