package process

import (
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// ErrEmptyArgv is returned when there is no executable to run.
var ErrEmptyArgv = errors.New("empty argument vector")

// ExecLauncher starts processes with os/exec.
type ExecLauncher struct {
	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Launch starts argv in its own process group. The returned handle is reaped
// by a background goroutine, so Exited never blocks.
func (l *ExecLauncher) Launch(argv []string) (Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &SpawnError{Path: "", Err: ErrEmptyArgv}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: argv[0], Err: err}
	}

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.wait()

	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	status ExitStatus // written once before done is closed
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.status = ExitStatus{
		Code:    extractExitCode(err),
		Err:     err,
		EndedAt: time.Now(),
	}
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() (bool, ExitStatus) {
	select {
	case <-p.done:
		return true, p.status
	default:
		return false, ExitStatus{}
	}
}

func (p *execProcess) Kill() error {
	return killProcessGroup(p.cmd)
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
