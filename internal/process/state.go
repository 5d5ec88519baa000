package process

import "time"

// State represents the termination state of a managed process.
type State string

// Process states.
const (
	StateAlive   State = "alive"   // Running, matchers dispatching
	StateKilling State = "killing" // Termination requested, waiting for exit
	StateDead    State = "dead"    // Exited or killed, terminal
)

// Outcome describes how a process reached StateDead.
type Outcome string

// Termination outcomes.
const (
	OutcomeExited   Outcome = "exited"   // Exited on its own
	OutcomeGraceful Outcome = "graceful" // Exited after the graceful request
	OutcomeForced   Outcome = "forced"   // Killed after the hard timeout
)

// Info contains information about a managed process.
type Info struct {
	ID        string
	Command   string
	PID       int
	State     State
	StartedAt time.Time
}

// ExitInfo is reported once per process when it reaches StateDead.
type ExitInfo struct {
	ID      string
	PID     int
	Code    int // -1 when unknown or terminated by a signal
	Outcome Outcome
}
