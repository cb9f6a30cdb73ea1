package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/stream-ripper/internal/process"
	"github.com/randomizedcoder/stream-ripper/internal/ripper"
)

// =============================================================================
// Mock Launcher for testing
// =============================================================================

type mockProcess struct {
	pid   int
	done  chan struct{}
	once  sync.Once
	code  atomic.Int32
	kills atomic.Int32
}

func (p *mockProcess) Pid() int { return p.pid }

func (p *mockProcess) Exited() (bool, process.ExitStatus) {
	select {
	case <-p.done:
		return true, process.ExitStatus{Code: int(p.code.Load()), EndedAt: time.Now()}
	default:
		return false, process.ExitStatus{}
	}
}

func (p *mockProcess) Kill() error {
	p.kills.Add(1)
	p.exit(137)
	return nil
}

func (p *mockProcess) Done() <-chan struct{} { return p.done }

func (p *mockProcess) exit(code int) {
	p.once.Do(func() {
		p.code.Store(int32(code))
		close(p.done)
	})
}

// mockLauncher records every launch. Targets listed in fail cannot be spawned.
type mockLauncher struct {
	mu    sync.Mutex
	procs []*mockProcess
	argvs [][]string
	fail  map[string]bool
}

func (l *mockLauncher) Launch(argv []string) (process.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail[argv[len(argv)-1]] {
		return nil, &process.SpawnError{Path: argv[0], Err: errors.New("permission denied")}
	}
	p := &mockProcess{pid: 100 + len(l.procs), done: make(chan struct{})}
	l.procs = append(l.procs, p)
	l.argvs = append(l.argvs, argv)
	return p, nil
}

func (l *mockLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *mockLauncher) all() []*mockProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*mockProcess, len(l.procs))
	copy(out, l.procs)
	return out
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTargets = []string{"https://x.tv/a", "https://x.tv/b", "https://x.tv/c"}

func newTestSupervisor(t *testing.T, l process.Launcher, interval time.Duration) *Supervisor {
	t.Helper()
	s, err := New(Config{
		Template:     "streamlink --url {url}",
		Targets:      testTargets,
		Launcher:     l,
		Logger:       newTestLogger(),
		PollInterval: interval,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// runAsync runs s in a goroutine and returns a channel with Run's result.
func runAsync(s *Supervisor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	return errCh
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

// =============================================================================
// Table-Driven Tests: New()
// =============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"no targets", Config{Template: "streamlink {url}"}, ErrNoTargets},
		{"empty template", Config{Template: "", Targets: testTargets}, ErrEmptyTemplate},
		{"blank template", Config{Template: "   ", Targets: testTargets}, ErrEmptyTemplate},
		{"quoted empty executable", Config{Template: `""`, Targets: testTargets}, ErrEmptyTemplate},
		{"valid", Config{Template: "streamlink {url}", Targets: testTargets}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = newTestLogger()
			s, err := New(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if s.State() != StateIdle {
					t.Errorf("State() = %v, want idle", s.State())
				}
				if len(s.Snapshots()) != len(testTargets) {
					t.Errorf("Snapshots() len = %d, want %d", len(s.Snapshots()), len(testTargets))
				}
				if s.interval != DefaultPollInterval {
					t.Errorf("interval = %v, want %v", s.interval, DefaultPollInterval)
				}
			}
		})
	}
}

func TestSupervisor_Commands(t *testing.T) {
	s := newTestSupervisor(t, &mockLauncher{}, time.Second)
	cmds := s.Commands()

	for _, target := range testTargets {
		argv := cmds[target]
		if len(argv) != 3 || argv[0] != "streamlink" || argv[2] != target {
			t.Errorf("Commands()[%s] = %q", target, argv)
		}
	}
	if got := s.Targets(); len(got) != 3 || got[0] != testTargets[0] {
		t.Errorf("Targets() = %v", got)
	}
}

// =============================================================================
// Tests: Run lifecycle
// =============================================================================

func TestSupervisor_RunStartsAllAndStops(t *testing.T) {
	l := &mockLauncher{}
	var states []State
	var statesMu sync.Mutex

	s, err := New(Config{
		Template:     "streamlink --url {url}",
		Targets:      testTargets,
		Launcher:     l,
		Logger:       newTestLogger(),
		PollInterval: time.Hour,
		OnStateChange: func(_, newState State) {
			statesMu.Lock()
			states = append(states, newState)
			statesMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := runAsync(s)
	waitFor(t, "all targets started", func() bool { return l.count() == len(testTargets) })
	waitFor(t, "running count", func() bool { return s.RunningCount() == len(testTargets) })

	if !s.ShutdownHandle().Stop() {
		t.Error("first Stop() = false, want true")
	}

	start := time.Now()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("shutdown took %v despite wake-up", elapsed)
	}

	for i, p := range l.all() {
		if p.kills.Load() != 1 {
			t.Errorf("process %d kills = %d, want 1", i, p.kills.Load())
		}
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if s.RunningCount() != 0 {
		t.Errorf("RunningCount() = %d after stop", s.RunningCount())
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	want := []State{StateRunning, StateDraining, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestSupervisor_RestartsExitedProcess(t *testing.T) {
	l := &mockLauncher{}
	s := newTestSupervisor(t, l, 10*time.Millisecond)

	errCh := runAsync(s)
	waitFor(t, "initial start", func() bool { return l.count() == len(testTargets) })

	l.all()[1].exit(1)
	waitFor(t, "restart", func() bool { return l.count() == len(testTargets)+1 })

	if !s.ShutdownHandle().Running() {
		t.Error("restart affected the running flag")
	}

	s.ShutdownHandle().Stop()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	l.mu.Lock()
	restarted := l.argvs[len(testTargets)]
	l.mu.Unlock()
	if restarted[2] != testTargets[1] {
		t.Errorf("restarted target = %s, want %s", restarted[2], testTargets[1])
	}

	for _, snap := range s.Snapshots() {
		if snap.Target == testTargets[1] && snap.Restarts != 1 {
			t.Errorf("restarts for %s = %d, want 1", snap.Target, snap.Restarts)
		}
	}
}

func TestSupervisor_NoSpawnsAfterShutdown(t *testing.T) {
	l := &mockLauncher{}
	s := newTestSupervisor(t, l, 5*time.Millisecond)

	errCh := runAsync(s)
	waitFor(t, "initial start", func() bool { return l.count() == len(testTargets) })

	s.ShutdownHandle().Stop()
	_ = waitRun(t, errCh)

	count := l.count()
	for _, p := range l.all() {
		p.exit(0)
	}
	time.Sleep(50 * time.Millisecond)

	if l.count() != count {
		t.Errorf("spawned %d processes after shutdown", l.count()-count)
	}
	for i, p := range l.all() {
		if p.kills.Load() > 1 {
			t.Errorf("process %d killed %d times", i, p.kills.Load())
		}
	}
}

func TestSupervisor_StopBeforeRun(t *testing.T) {
	l := &mockLauncher{}
	s := newTestSupervisor(t, l, time.Hour)

	s.ShutdownHandle().Stop()
	if err := s.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if l.count() != 0 {
		t.Errorf("launched %d processes, want 0", l.count())
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestSupervisor_ContextCancel(t *testing.T) {
	l := &mockLauncher{}
	s := newTestSupervisor(t, l, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitFor(t, "initial start", func() bool { return l.count() == len(testTargets) })
	cancel()

	if err := waitRun(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if s.ShutdownHandle().Running() {
		t.Error("flag still set after context cancel")
	}
	for i, p := range l.all() {
		if p.kills.Load() != 1 {
			t.Errorf("process %d kills = %d, want 1", i, p.kills.Load())
		}
	}
}

func TestSupervisor_SpawnFailureIsContained(t *testing.T) {
	l := &mockLauncher{fail: map[string]bool{"https://x.tv/b": true}}
	var spawnErrors atomic.Int32
	s, err := New(Config{
		Template:     "streamlink --url {url}",
		Targets:      testTargets,
		Launcher:     l,
		Logger:       newTestLogger(),
		PollInterval: 5 * time.Millisecond,
		Callbacks: ripper.Callbacks{
			OnSpawnError: func(string, error) { spawnErrors.Add(1) },
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := runAsync(s)
	waitFor(t, "retries", func() bool { return spawnErrors.Load() >= 3 })

	if l.count() != 2 {
		t.Errorf("launched %d processes, want 2 healthy targets", l.count())
	}
	if !s.ShutdownHandle().Running() {
		t.Error("spawn failure stopped the supervisor")
	}

	s.ShutdownHandle().Stop()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	l := &mockLauncher{}
	s := newTestSupervisor(t, l, time.Hour)

	errCh := runAsync(s)
	waitFor(t, "initial start", func() bool { return l.count() == len(testTargets) })
	s.ShutdownHandle().Stop()
	_ = waitRun(t, errCh)

	s.Stop()
	s.Stop()
	_ = s.Close()
	_ = s.Close()

	for i, p := range l.all() {
		if p.kills.Load() != 1 {
			t.Errorf("process %d kills = %d, want 1", i, p.kills.Load())
		}
	}
}

func TestSupervisor_OnPoll(t *testing.T) {
	l := &mockLauncher{}

	var (
		mu      sync.Mutex
		calls   int
		running int
	)
	s, err := New(Config{
		Template:     "streamlink --url {url}",
		Targets:      testTargets,
		Launcher:     l,
		Logger:       newTestLogger(),
		PollInterval: 10 * time.Millisecond,
		OnPoll: func(snaps []ripper.Snapshot) {
			n := 0
			for _, snap := range snaps {
				if snap.Running {
					n++
				}
			}
			mu.Lock()
			calls++
			running = n
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := runAsync(s)
	waitFor(t, "poll with every target running", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == len(testTargets)
	})
	s.ShutdownHandle().Stop()
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 3 {
		t.Errorf("OnPoll calls = %d, want at least 3", calls)
	}
	if running != 0 {
		t.Errorf("last OnPoll running = %d, want 0", running)
	}
}

// =============================================================================
// Tests: real processes
// =============================================================================

func TestSupervisor_RealProcessesTerminated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	s, err := New(Config{
		Template:     `sh -c "sleep 30" {url}`,
		Targets:      []string{"1", "2"},
		Logger:       newTestLogger(),
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := runAsync(s)
	waitFor(t, "processes running", func() bool { return s.RunningCount() == 2 })

	pids := make([]int, 0, 2)
	for _, snap := range s.Snapshots() {
		pids = append(pids, snap.Pid)
	}

	s.ShutdownHandle().Stop()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	for _, snap := range s.Snapshots() {
		if snap.Running || snap.Pid != 0 {
			t.Errorf("%s still running after shutdown (pid %d)", snap.Target, snap.Pid)
		}
		if snap.LastExit == nil || snap.LastExit.Code != 137 {
			t.Errorf("%s LastExit = %+v, want SIGKILL", snap.Target, snap.LastExit)
		}
	}
	if len(pids) != 2 || pids[0] == 0 || pids[1] == 0 {
		t.Errorf("pids = %v", pids)
	}
}

// =============================================================================
// Tests: RunningFlag
// =============================================================================

func TestRunningFlag(t *testing.T) {
	f := newRunningFlag()

	if f.Running() {
		t.Error("idle flag reports running")
	}
	if !f.start() {
		t.Fatal("start() = false on idle flag")
	}
	if !f.Running() {
		t.Error("Running() = false after start")
	}

	if !f.Stop() {
		t.Error("first Stop() = false")
	}
	if f.Stop() {
		t.Error("second Stop() = true")
	}
	if f.Running() {
		t.Error("Running() = true after Stop")
	}
	if f.start() {
		t.Error("start() = true after Stop")
	}

	select {
	case <-f.Wake():
	default:
		t.Error("Stop() did not signal Wake")
	}
}

func TestRunningFlag_ConcurrentStop(t *testing.T) {
	f := newRunningFlag()
	f.start()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Stop() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Stop() returned true %d times, want 1", wins.Load())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !StateStopped.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal() mismatch")
	}
}
