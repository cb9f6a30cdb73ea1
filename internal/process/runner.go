// Package process provides abstractions for running external processes.
package process

import (
	"errors"
	"fmt"
	"time"
)

// ErrSpawn is matched by every error returned from a failed Launch.
var ErrSpawn = errors.New("spawn failed")

// SpawnError reports that the executable could not be started
// (missing binary, permission denied, ...).
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSpawn) true for any SpawnError.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// Launcher creates child processes.
// This interface allows the ripper to be decoupled from os/exec.
type Launcher interface {
	// Launch starts argv[0] with the remaining elements as arguments.
	Launch(argv []string) (Process, error)
}

// Process is a handle to a started child process.
type Process interface {
	// Pid returns the OS process id.
	Pid() int

	// Exited reports, without blocking, whether the process has exited and
	// if so how.
	Exited() (bool, ExitStatus)

	// Kill force-terminates the process (and its process group where the
	// platform supports it).
	Kill() error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// ExitStatus captures the outcome of a process execution.
type ExitStatus struct {
	Code    int // 128+N when killed by signal N
	Err     error
	EndedAt time.Time
}

// String returns a short description like "exit code 1".
func (s ExitStatus) String() string {
	if s.Code > 128 {
		return fmt.Sprintf("exit code %d (signal %d)", s.Code, s.Code-128)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}
