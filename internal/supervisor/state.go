// Package supervisor keeps a fixed set of stream rippers alive.
package supervisor

// State represents the lifecycle stage of a Supervisor.
type State int

const (
	// StateIdle is the initial state before any process has started.
	StateIdle State = iota

	// StateRunning indicates the poll/restart loop is active.
	StateRunning

	// StateDraining indicates the loop has ended and processes are being terminated.
	StateDraining

	// StateStopped indicates every process has been terminated. Terminal.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
