package process

import (
	"errors"
	"fmt"
)

// ErrKilled is returned when a matcher is registered on a process that has
// already exited or been killed.
var ErrKilled = errors.New("process has been killed")

// ErrExited is returned by WaitFor when the process ends before either
// pattern matched.
var ErrExited = errors.New("process exited before output matched")

// SpawnError reports an OS-level failure to launch a process.
type SpawnError struct {
	ID      string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.ID, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError reports a non-zero exit code.
type ExitError struct {
	ID   string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %s exited with code %d", e.ID, e.Code)
}

// MatchError is returned by WaitFor when the reject pattern matched.
// Its message is the matched output.
type MatchError struct {
	Text string
}

func (e *MatchError) Error() string {
	return e.Text
}
