// Package main provides the stream-ripper CLI entry point.
//
// stream-ripper keeps one recorder process (streamlink by default) running
// per configured stream URL, restarting any that exit, until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/stream-ripper/internal/cliargs"
	"github.com/randomizedcoder/stream-ripper/internal/config"
	"github.com/randomizedcoder/stream-ripper/internal/logging"
	"github.com/randomizedcoder/stream-ripper/internal/metrics"
	"github.com/randomizedcoder/stream-ripper/internal/orchestrator"
	"github.com/randomizedcoder/stream-ripper/internal/preflight"
	"github.com/randomizedcoder/stream-ripper/internal/supervisor"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/stream-ripper
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var flags config.Flags

	root := &cobra.Command{
		Use:   "stream-ripper",
		Short: "Keep a recorder process running for every configured stream",
		Long: `stream-ripper starts the configured command (streamlink by default) once per
stream URL in the config file and restarts any process that exits. SIGINT or
SIGTERM stops every process and exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			return runSupervisor(cmd.Context(), cfg, flags.SkipPreflight, stdout)
		},
	}
	config.BindFlags(root.PersistentFlags(), &flags)

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(stdout, "stream-ripper %s\n", version)
			},
		},
		&cobra.Command{
			Use:   "print-cmd",
			Short: "Print the command that would be run for each stream",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, &flags)
				if err != nil {
					return err
				}
				return printCommands(stdout, cfg)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the config file and run preflight checks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, &flags)
				if err != nil {
					return err
				}
				return checkConfig(stdout, cfg)
			},
		},
		newStatusCmd(stdout, &flags),
	)

	return root
}

// loadConfig reads the config file, applies flag overrides and validates
// the result.
func loadConfig(cmd *cobra.Command, flags *config.Flags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	flags.Apply(cmd.Flags(), cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration error in %s:\n%w", flags.ConfigPath, err)
	}
	return cfg, nil
}

// readConfig loads path without creating or rewriting it. A missing file
// yields the defaults.
func readConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

func runSupervisor(ctx context.Context, cfg *config.Config, skipPreflight bool, stdout io.Writer) error {
	// The dashboard owns the terminal, so logs only go to the file.
	var console io.Writer = os.Stderr
	if cfg.TUI {
		console = nil
	}
	logger, closer, err := logging.Open(logging.Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Dir:     cfg.LogsFolder,
		Console: console,
		Program: "stream-ripper",
	}, time.Now())
	if err != nil {
		return err
	}
	defer closer.Close()
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"targets", len(cfg.StreamURLs),
		"poll_interval", cfg.PollInterval.String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version:       version,
		SkipPreflight: skipPreflight,
		Out:           stdout,
	})
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return err
	}
	return nil
}

// printCommands prints the argument vector each stream would be started with.
func printCommands(w io.Writer, cfg *config.Config) error {
	sup, err := supervisor.New(supervisor.Config{
		Template: cfg.StreamlinkCLI,
		Targets:  cfg.StreamURLs,
		Logger:   logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel),
	})
	if err != nil {
		return err
	}

	cmds := sup.Commands()
	fmt.Fprintln(w, "# Command that would be run for each stream:")
	for _, target := range sup.Targets() {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# %s\n", target)
		fmt.Fprintln(w, cliargs.Join(cmds[target]))
	}
	return nil
}

func newStatusCmd(stdout io.Writer, flags *config.Flags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-stream state from a running instance's metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := flags.MetricsAddr
			if !cmd.Flags().Changed("metrics") {
				cfg, err := readConfig(flags.ConfigPath)
				if err != nil {
					return err
				}
				addr = cfg.MetricsAddr
			}
			if addr == "" {
				return errors.New("metrics endpoint disabled (set metrics_addr or --metrics)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := metrics.Scrape(ctx, nil, addr)
			if err != nil {
				return fmt.Errorf("scrape %s: %w", addr, err)
			}
			printStatus(stdout, status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout for the metrics request")
	return cmd
}

func printStatus(w io.Writer, s *metrics.Status) {
	fmt.Fprintf(w, "stream-ripper %s, up %s\n", s.Version, s.Elapsed.Truncate(time.Second))
	fmt.Fprintf(w, "Running: %d/%d  Starts: %d  Restarts: %d  Spawn failures: %d\n",
		s.Running, len(s.Targets), s.TotalStarts, s.TotalRestarts, s.SpawnFailures)
	fmt.Fprintln(w)
	for _, t := range s.Targets {
		state := "down"
		if t.Up {
			state = "up"
		}
		fmt.Fprintf(w, "  %-4s %4d restarts  %s\n", state, t.Restarts, t.Target)
	}
}

var errCheckFailed = errors.New("preflight checks failed")

// checkConfig runs the preflight checks for an already validated config.
func checkConfig(w io.Writer, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel)
	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version: version,
		Out:     w,
	})
	if err != nil {
		return err
	}

	result := orch.Preflight()
	preflight.PrintResults(w, result)
	if !result.Passed {
		return errCheckFailed
	}
	fmt.Fprintf(w, "\nconfig OK: %d streams\n", len(cfg.StreamURLs))
	return nil
}
