// Package orchestrator wires configuration, logging, metrics, the dashboard
// and OS signals around a supervisor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/stream-ripper/internal/config"
	"github.com/randomizedcoder/stream-ripper/internal/metrics"
	"github.com/randomizedcoder/stream-ripper/internal/preflight"
	"github.com/randomizedcoder/stream-ripper/internal/process"
	"github.com/randomizedcoder/stream-ripper/internal/ripper"
	"github.com/randomizedcoder/stream-ripper/internal/supervisor"
	"github.com/randomizedcoder/stream-ripper/internal/tui"
)

// ErrPreflight is returned by Run when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

const shutdownTimeout = 5 * time.Second

// Options holds dependencies that differ between production and tests.
type Options struct {
	Version       string
	SkipPreflight bool

	// Launcher spawns ripper processes. Defaults to an ExecLauncher that
	// inherits stdout and stderr, or discards them when the TUI is on.
	Launcher process.Launcher

	// Registry receives the collector. Defaults to a fresh registry.
	Registry *prometheus.Registry

	// Out receives the preflight report and exit summary. Defaults to stdout.
	Out io.Writer

	// Notify reports service state to the init system. Defaults to
	// daemon.SdNotify, which is a no-op outside systemd.
	Notify func(state string) (bool, error)
}

// Orchestrator coordinates all components for a ripping session.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options

	supervisor    *supervisor.Supervisor
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	registry      *prometheus.Registry

	program *tea.Program
}

// New creates an Orchestrator for cfg. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Notify == nil {
		opts.Notify = func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		}
	}
	if opts.Launcher == nil {
		launcher := &process.ExecLauncher{Stdout: os.Stdout, Stderr: os.Stderr}
		if cfg.TUI {
			launcher = &process.ExecLauncher{}
		}
		opts.Launcher = launcher
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		opts:     opts,
		registry: opts.Registry,
		metrics: metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
			Version: opts.Version,
			Targets: cfg.StreamURLs,
		}, opts.Registry),
	}

	sup, err := supervisor.New(supervisor.Config{
		Template:     cfg.StreamlinkCLI,
		Targets:      cfg.StreamURLs,
		Launcher:     opts.Launcher,
		Logger:       logger,
		PollInterval: cfg.PollInterval.Duration,
		Callbacks: ripper.Callbacks{
			OnStart:      o.onStart,
			OnExit:       o.onExit,
			OnRestart:    o.onRestart,
			OnSpawnError: o.onSpawnError,
			OnTerminate:  o.onTerminate,
		},
		OnStateChange: o.onStateChange,
		OnPoll:        o.onPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor: %w", err)
	}
	o.supervisor = sup

	for _, u := range config.DuplicateURLs(cfg) {
		logger.Warn("duplicate_stream_url", "target", u)
	}

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, o.ready, logger)
	}

	return o, nil
}

// Run supervises every target until SIGINT/SIGTERM, the dashboard is closed,
// or ctx is done. Every ripper process is terminated before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.opts.SkipPreflight {
		result := o.Preflight()
		preflight.PrintResults(o.opts.Out, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	stopSignals := watchSignals(o.supervisor.ShutdownHandle(), o.logger)
	defer stopSignals()

	o.logger.Info("supervisor_starting",
		"targets", len(o.config.StreamURLs),
		"poll_interval", o.config.PollInterval.String(),
		"template", o.config.StreamlinkCLI,
	)

	var err error
	if o.config.TUI {
		err = o.runWithDashboard(ctx)
	} else {
		err = o.supervisor.Run(ctx)
	}
	_ = o.supervisor.Close()

	o.logger.Info("supervisor_stopped")
	o.printExitSummary()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWithDashboard runs the supervisor on its own goroutine while the
// dashboard owns the terminal. Closing the dashboard stops the supervisor.
func (o *Orchestrator) runWithDashboard(ctx context.Context) error {
	model := tui.New(tui.Config{
		Template:     o.config.StreamlinkCLI,
		MetricsAddr:  o.config.MetricsAddr,
		PollInterval: o.config.PollInterval.Duration,
		Source:       o.supervisor,
	})
	o.program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := o.supervisor.Run(ctx)
		tui.SendQuit(o.program)
		done <- err
	}()

	if _, err := o.program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		o.logger.Warn("tui_error", "error", err)
	}
	o.supervisor.ShutdownHandle().Stop()

	err := <-done
	o.program = nil
	return err
}

// Preflight runs the startup checks for the configured command.
func (o *Orchestrator) Preflight() *preflight.Result {
	// Every target shares the template, so the first one names the executable.
	executable := ""
	if argv := o.supervisor.Commands()[o.config.StreamURLs[0]]; len(argv) > 0 {
		executable = argv[0]
	}
	return preflight.RunAll(preflight.Options{
		Targets:    len(o.config.StreamURLs),
		Executable: executable,
		LogsFolder: o.config.LogsFolder,
	})
}

func (o *Orchestrator) ready() bool {
	return o.supervisor.State() == supervisor.StateRunning
}

// Callback handlers

func (o *Orchestrator) onStateChange(oldState, newState supervisor.State) {
	o.logger.Debug("supervisor_state", "from", oldState.String(), "to", newState.String())

	switch newState {
	case supervisor.StateRunning:
		o.notify(daemon.SdNotifyReady)
	case supervisor.StateDraining:
		o.notify(daemon.SdNotifyStopping)
	}
}

func (o *Orchestrator) notify(state string) {
	sent, err := o.opts.Notify(state)
	if err != nil {
		o.logger.Warn("sd_notify_failed", "state", state, "error", err)
		return
	}
	if sent {
		o.logger.Debug("sd_notify_sent", "state", state)
	}
}

func (o *Orchestrator) onPoll(snaps []ripper.Snapshot) {
	running := 0
	for _, s := range snaps {
		if s.Running {
			running++
		}
	}
	o.metrics.SetRunningCount(running)

	if o.program != nil {
		tui.SendSnapshots(o.program, o.supervisor.State(), snaps)
	}
}

func (o *Orchestrator) onStart(target string, pid int) {
	o.metrics.ProcessStarted(target)
}

func (o *Orchestrator) onExit(target string, status process.ExitStatus, uptime time.Duration) {
	o.metrics.RecordExit(target, status.Code, uptime)
}

func (o *Orchestrator) onRestart(target string, attempt int) {
	o.metrics.ProcessRestarted(target)
}

func (o *Orchestrator) onSpawnError(target string, err error) {
	o.metrics.SpawnFailed(target)
}

func (o *Orchestrator) onTerminate(target string, uptime time.Duration) {
	o.metrics.ProcessStopped(target)
}

// printExitSummary prints a summary of the session.
func (o *Orchestrator) printExitSummary() {
	summary := o.metrics.GenerateSummary(len(o.config.StreamURLs))
	w := o.opts.Out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                     stream-ripper Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(w, "Targets:                %d\n", summary.Targets)
	fmt.Fprintf(w, "Peak Running:           %d\n", summary.PeakRunning)
	fmt.Fprintln(w)

	if summary.UptimeP50 > 0 || summary.UptimeP95 > 0 {
		fmt.Fprintln(w, "Uptime Distribution:")
		fmt.Fprintf(w, "  P50 (median):         %s\n", formatDuration(summary.UptimeP50))
		fmt.Fprintf(w, "  P95:                  %s\n", formatDuration(summary.UptimeP95))
		fmt.Fprintf(w, "  P99:                  %s\n", formatDuration(summary.UptimeP99))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Lifecycle:")
	fmt.Fprintf(w, "  Total Starts:         %d\n", summary.TotalStarts)
	fmt.Fprintf(w, "  Total Restarts:       %d\n", summary.TotalRestarts)
	fmt.Fprintf(w, "  Spawn Failures:       %d\n", summary.SpawnFailures)
	fmt.Fprintln(w)

	if len(summary.ExitCodes) > 0 {
		fmt.Fprintln(w, "Exit Codes:")
		for _, code := range summary.SortedExitCodes() {
			fmt.Fprintf(w, "  %3d %-16s %d\n", code, exitCodeLabel(code), summary.ExitCodes[code])
		}
		fmt.Fprintln(w)
	}

	if o.metricsServer != nil {
		fmt.Fprintf(w, "Metrics endpoint was: http://%s/metrics\n", o.metricsServer.Addr())
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}
