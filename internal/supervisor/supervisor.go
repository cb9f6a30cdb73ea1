package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/stream-ripper/internal/cliargs"
	"github.com/randomizedcoder/stream-ripper/internal/process"
	"github.com/randomizedcoder/stream-ripper/internal/ripper"
)

// DefaultPollInterval is how long the loop sleeps between liveness checks.
const DefaultPollInterval = 15 * time.Second

var (
	// ErrNoTargets is returned by New when there is nothing to supervise.
	ErrNoTargets = errors.New("no stream targets configured")

	// ErrEmptyTemplate is returned by New when the command template has no executable.
	ErrEmptyTemplate = errors.New("command template has no executable")
)

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Template     string
	Targets      []string
	Launcher     process.Launcher // defaults to process.ExecLauncher
	Logger       *slog.Logger
	PollInterval time.Duration // defaults to DefaultPollInterval

	// Callbacks are passed to every ripper.
	Callbacks ripper.Callbacks

	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(oldState, newState State)

	// OnPoll is called with fresh snapshots after every start, poll and
	// stop pass. The slice is shared and must not be modified.
	OnPoll func(snaps []ripper.Snapshot)
}

// Supervisor starts one ripper per target, restarts any that exit, and
// terminates them all when the RunningFlag is cleared.
//
// Run, Stop and Close must be called from the same goroutine. Other
// goroutines interact through ShutdownHandle, State and Snapshots.
type Supervisor struct {
	rippers       []*ripper.Ripper
	flag          *RunningFlag
	interval      time.Duration
	logger        *slog.Logger
	onStateChange func(oldState, newState State)
	onPoll        func(snaps []ripper.Snapshot)

	state   State
	stateMu sync.RWMutex

	snapshots []ripper.Snapshot
	snapMu    sync.RWMutex
}

// New validates cfg and creates a ripper for every target.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if strings.TrimSpace(cfg.Template) == "" || cliargs.Split(cfg.Template)[0] == "" {
		return nil, fmt.Errorf("%w: %q", ErrEmptyTemplate, cfg.Template)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = &process.ExecLauncher{}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s := &Supervisor{
		flag:          newRunningFlag(),
		interval:      interval,
		logger:        logger,
		onStateChange: cfg.OnStateChange,
		onPoll:        cfg.OnPoll,
		state:         StateIdle,
	}

	for _, target := range cfg.Targets {
		r := ripper.New(cfg.Template, target, launcher, logger, cfg.Callbacks)
		logger.Debug("ripper_initialized", "target", target)
		s.rippers = append(s.rippers, r)
	}
	s.publish()

	return s, nil
}

// Run starts every ripper and polls them until the RunningFlag is cleared or
// ctx is done. Every process is terminated before Run returns, whichever way
// it returns. Spawn failures are logged and retried on the next poll.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.flag.start() {
		s.logger.Debug("supervisor_stopped_before_start")
		s.drain()
		return nil
	}
	s.setState(StateRunning)
	defer s.drain()

	for _, r := range s.rippers {
		if err := r.Start(); err != nil {
			s.logger.Warn("ripper_start_failed", "target", r.Target(), "error", err)
		}
	}
	s.publish()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for s.flag.Running() {
		for _, r := range s.rippers {
			if err := r.PollAndRestart(); err != nil {
				s.logger.Warn("ripper_restart_failed", "target", r.Target(), "error", err)
			}
		}
		s.publish()

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.flag.Stop()
			s.logger.Debug("supervisor_loop_done", "reason", "context_cancelled")
			return ctx.Err()
		case <-s.flag.Wake():
		case <-timer.C:
		}
	}

	s.logger.Debug("supervisor_loop_done", "reason", "flag_cleared")
	return nil
}

// drain terminates every ripper and marks the supervisor stopped.
func (s *Supervisor) drain() {
	s.setState(StateDraining)
	s.Stop()
	s.setState(StateStopped)
}

// Stop terminates every ripper. It is idempotent and does not clear the
// RunningFlag; use ShutdownHandle().Stop() to end Run.
func (s *Supervisor) Stop() {
	for _, r := range s.rippers {
		r.Terminate()
	}
	s.publish()
}

// Close releases every ripper exactly once.
func (s *Supervisor) Close() error {
	s.flag.Stop()
	for _, r := range s.rippers {
		_ = r.Close()
	}
	s.publish()
	return nil
}

// ShutdownHandle exposes the RunningFlag to a shutdown collaborator.
func (s *Supervisor) ShutdownHandle() *RunningFlag {
	return s.flag
}

// Commands returns the argument vector each target would be started with.
func (s *Supervisor) Commands() map[string][]string {
	cmds := make(map[string][]string, len(s.rippers))
	for _, r := range s.rippers {
		cmds[r.Target()] = r.Command()
	}
	return cmds
}

// Targets returns the supervised stream URLs in configuration order.
func (s *Supervisor) Targets() []string {
	targets := make([]string, len(s.rippers))
	for i, r := range s.rippers {
		targets[i] = r.Target()
	}
	return targets
}

// publish copies ripper state for readers on other goroutines.
func (s *Supervisor) publish() {
	snaps := make([]ripper.Snapshot, len(s.rippers))
	for i, r := range s.rippers {
		snaps[i] = r.Snapshot()
	}

	s.snapMu.Lock()
	s.snapshots = snaps
	s.snapMu.Unlock()

	if s.onPoll != nil {
		s.onPoll(snaps)
	}
}

// Snapshots returns the ripper state as of the last poll pass.
func (s *Supervisor) Snapshots() []ripper.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := make([]ripper.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// RunningCount returns how many targets had a live process at the last poll pass.
func (s *Supervisor) RunningCount() int {
	n := 0
	for _, snap := range s.Snapshots() {
		if snap.Running {
			n++
		}
	}
	return n
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.onStateChange != nil && oldState != newState {
		s.onStateChange(oldState, newState)
	}
}
