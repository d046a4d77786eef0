package loop

// State is the event loop's position in its state machine.
type State int

const (
	// StateIdle is the resting state between iterations.
	StateIdle State = iota

	// StateDraining means the microtask queue is being drained.
	StateDraining

	// StateAwaitingMacrotask means the loop is suspended waiting for a
	// timer deadline or an external completion.
	StateAwaitingMacrotask

	// StateTerminated means Run has returned. The loop cannot be restarted.
	StateTerminated
)

// String returns the state name used in logs and traces.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateAwaitingMacrotask:
		return "awaiting_macrotask"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TaskKind distinguishes microtasks from macrotasks.
type TaskKind string

const (
	KindMicrotask TaskKind = "microtask"
	KindMacrotask TaskKind = "macrotask"
)
