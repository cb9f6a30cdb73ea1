// Package ripper owns the capture process of a single stream target.
//
// A Ripper is not safe for concurrent use. The supervisor drives every
// Ripper from one goroutine and publishes Snapshots to everyone else.
package ripper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/stream-ripper/internal/cliargs"
	"github.com/randomizedcoder/stream-ripper/internal/process"
	"github.com/randomizedcoder/stream-ripper/internal/template"
)

var (
	// ErrEmptyCommand means the expanded command line has no executable.
	ErrEmptyCommand = errors.New("command line has no executable")

	// ErrAlreadyRunning is returned by Start while a live process is owned.
	ErrAlreadyRunning = errors.New("capture process already running")
)

// reapTimeout bounds how long Terminate waits for a killed process to be reaped.
const reapTimeout = 2 * time.Second

// Callbacks contains optional callback functions for ripper events.
// They run on the supervising goroutine and must not block.
type Callbacks struct {
	// OnStart is called after a capture process has been spawned.
	OnStart func(target string, pid int)

	// OnExit is called when a capture process is observed to have exited.
	OnExit func(target string, status process.ExitStatus, uptime time.Duration)

	// OnRestart is called before a restart attempt.
	OnRestart func(target string, attempt int)

	// OnSpawnError is called when the command line is empty or the
	// executable could not be started.
	OnSpawnError func(target string, err error)

	// OnTerminate is called when Terminate kills a live process. OnExit is
	// not called for it.
	OnTerminate func(target string, uptime time.Duration)
}

// Ripper manages the capture process of one stream target.
type Ripper struct {
	template  string
	target    string
	launcher  process.Launcher
	logger    *slog.Logger
	callbacks Callbacks

	proc      process.Process
	startedAt time.Time
	restarts  int
	lastExit  *process.ExitStatus
	lastErr   error

	closeOnce sync.Once
}

// New creates a Ripper for target. Nothing is spawned until Start.
func New(tmpl, target string, launcher process.Launcher, logger *slog.Logger, cb Callbacks) *Ripper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ripper{
		template:  tmpl,
		target:    target,
		launcher:  launcher,
		logger:    logger,
		callbacks: cb,
	}
}

// Command returns the argument vector the next Start would spawn.
func (r *Ripper) Command() []string {
	return cliargs.Split(template.Expand(r.template, r.target))
}

// Start spawns a new capture process. It refuses to replace a process that
// is still alive so no child is ever orphaned.
func (r *Ripper) Start() error {
	if r.proc != nil {
		if exited, _ := r.proc.Exited(); !exited {
			return ErrAlreadyRunning
		}
	}

	argv := r.Command()
	if len(argv) == 0 || argv[0] == "" {
		r.spawnFailed("", ErrEmptyCommand)
		return fmt.Errorf("start %s: %w", r.target, ErrEmptyCommand)
	}

	proc, err := r.launcher.Launch(argv)
	if err != nil {
		r.spawnFailed(argv[0], err)
		return fmt.Errorf("start %s: %w", r.target, err)
	}

	r.proc = proc
	r.startedAt = time.Now()
	r.lastErr = nil

	r.logger.Debug("ripper_started",
		"target", r.target,
		"pid", proc.Pid(),
		"command", cliargs.Join(argv),
	)

	if r.callbacks.OnStart != nil {
		r.callbacks.OnStart(r.target, proc.Pid())
	}

	return nil
}

// PollAndRestart checks the capture process without blocking. A process that
// has exited, for any reason, is restarted immediately. A target whose last
// spawn failed is retried.
func (r *Ripper) PollAndRestart() error {
	if r.proc != nil {
		exited, status := r.proc.Exited()
		if !exited {
			return nil
		}
		r.observeExit(status)
	}

	r.restarts++
	if r.callbacks.OnRestart != nil {
		r.callbacks.OnRestart(r.target, r.restarts)
	}

	return r.Start()
}

// spawnFailed records a start attempt that produced no process.
func (r *Ripper) spawnFailed(executable string, err error) {
	r.proc = nil
	r.lastErr = err
	r.logger.Error("ripper_spawn_failed",
		"target", r.target,
		"executable", executable,
		"error", err,
	)
	if r.callbacks.OnSpawnError != nil {
		r.callbacks.OnSpawnError(r.target, err)
	}
}

// observeExit releases the handle of an exited process.
func (r *Ripper) observeExit(status process.ExitStatus) {
	pid := r.proc.Pid()
	uptime := status.EndedAt.Sub(r.startedAt)
	r.proc = nil
	r.lastExit = &status

	r.logger.Warn("ripper_exited",
		"target", r.target,
		"pid", pid,
		"exit_code", status.Code,
		"uptime", uptime.String(),
	)

	if r.callbacks.OnExit != nil {
		r.callbacks.OnExit(r.target, status, uptime)
	}
}

// Terminate force-kills the capture process, if any. Kill errors are
// ignored. Calling it without a live process is a no-op. A process that had
// already exited on its own is reported through OnExit as usual.
func (r *Ripper) Terminate() {
	if r.proc == nil {
		return
	}
	proc := r.proc

	if exited, status := proc.Exited(); exited {
		r.observeExit(status)
		return
	}

	_ = proc.Kill()

	select {
	case <-proc.Done():
	case <-time.After(reapTimeout):
		r.logger.Warn("ripper_reap_timeout",
			"target", r.target,
			"pid", proc.Pid(),
			"timeout", reapTimeout.String(),
		)
	}

	uptime := time.Since(r.startedAt)
	if exited, status := proc.Exited(); exited {
		r.lastExit = &status
		uptime = status.EndedAt.Sub(r.startedAt)
	}
	r.proc = nil

	r.logger.Debug("ripper_terminated",
		"target", r.target,
		"pid", proc.Pid(),
		"uptime", uptime.String(),
	)

	if r.callbacks.OnTerminate != nil {
		r.callbacks.OnTerminate(r.target, uptime)
	}
}

// Close terminates the process exactly once. Use it with defer so every exit
// path releases the child.
func (r *Ripper) Close() error {
	r.closeOnce.Do(r.Terminate)
	return nil
}

// Target returns the stream URL.
func (r *Ripper) Target() string {
	return r.target
}

// Running reports whether a process handle is held and not yet observed to exit.
func (r *Ripper) Running() bool {
	if r.proc == nil {
		return false
	}
	exited, _ := r.proc.Exited()
	return !exited
}

// Pid returns the pid of the owned process, or 0.
func (r *Ripper) Pid() int {
	if r.proc == nil {
		return 0
	}
	return r.proc.Pid()
}

// StartedAt returns when the current process was spawned.
func (r *Ripper) StartedAt() time.Time {
	return r.startedAt
}

// Restarts returns the number of restart attempts.
func (r *Ripper) Restarts() int {
	return r.restarts
}

// Snapshot is a point-in-time copy of a Ripper, safe to hand to other goroutines.
type Snapshot struct {
	Target    string
	Running   bool
	Pid       int
	StartedAt time.Time
	Restarts  int
	LastExit  *process.ExitStatus
	LastError string
}

// Uptime returns how long the current process has been running.
func (s Snapshot) Uptime() time.Duration {
	if !s.Running || s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// Snapshot returns the current state.
func (r *Ripper) Snapshot() Snapshot {
	s := Snapshot{
		Target:    r.target,
		Running:   r.Running(),
		Pid:       r.Pid(),
		StartedAt: r.startedAt,
		Restarts:  r.restarts,
	}
	if r.lastExit != nil {
		exit := *r.lastExit
		s.LastExit = &exit
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}
