// Package metrics provides Prometheus metrics for stream-ripper.
//
// Metrics are organized into two groups:
//   - Aggregate metrics: totals across every target
//   - Per-target metrics: one series per configured stream URL
//
// Targets come from the config file and are few, so per-target series are
// always enabled.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

// Exit categories used by the exits counter.
const (
	ExitSuccess = "success"
	ExitError   = "error"
	ExitSignal  = "signal"
)

// Collector manages all Prometheus metrics for the supervisor.
type Collector struct {
	// --- Aggregate ---
	info           *prometheus.GaugeVec
	targets        prometheus.Gauge
	running        prometheus.Gauge
	startsTotal    prometheus.Counter
	restartsTotal  prometheus.Counter
	spawnFailures  prometheus.Counter
	exitsTotal     *prometheus.CounterVec
	uptimeSeconds  prometheus.Histogram
	uptimeP50      prometheus.Gauge
	uptimeP95      prometheus.Gauge
	uptimeP99      prometheus.Gauge
	elapsedSeconds prometheus.Gauge

	// --- Per-target ---
	targetUp       *prometheus.GaugeVec
	targetRestarts *prometheus.CounterVec

	startTime time.Time

	// For summary generation
	mu            sync.Mutex
	peakRunning   int
	totalStarts   int64
	totalRestarts int64
	totalFailures int64
	exitCodes     map[int]int64
	uptimes       *tdigest.TDigest
	uptimeCount   int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Targets []string
}

// NewCollectorWithRegistry creates a collector registered on registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stream_ripper_info",
				Help: "Information about the running supervisor (value always 1)",
			},
			[]string{"version"},
		),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_targets",
			Help: "Number of configured stream targets",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_running_processes",
			Help: "Ripper processes currently alive",
		}),
		startsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_ripper_process_starts_total",
			Help: "Total ripper processes spawned",
		}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_ripper_process_restarts_total",
			Help: "Total restart attempts after a process exited or failed to spawn",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_ripper_spawn_failures_total",
			Help: "Total attempts where the ripper executable could not be started",
		}),
		exitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_ripper_process_exits_total",
				Help: "Process exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		uptimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stream_ripper_process_uptime_seconds",
			Help:    "Process uptime before exit",
			Buckets: []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 7200, 21600},
		}),
		uptimeP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_uptime_p50_seconds",
			Help: "Process uptime 50th percentile",
		}),
		uptimeP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_uptime_p95_seconds",
			Help: "Process uptime 95th percentile",
		}),
		uptimeP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_uptime_p99_seconds",
			Help: "Process uptime 99th percentile",
		}),
		elapsedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_ripper_elapsed_seconds",
			Help: "Seconds since the supervisor started",
		}),
		targetUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stream_ripper_target_up",
				Help: "1 while the target's ripper process is alive",
			},
			[]string{"target"},
		),
		targetRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_ripper_target_restarts_total",
				Help: "Restart attempts per target",
			},
			[]string{"target"},
		),
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		uptimes:   tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.info,
		c.targets,
		c.running,
		c.startsTotal,
		c.restartsTotal,
		c.spawnFailures,
		c.exitsTotal,
		c.uptimeSeconds,
		c.uptimeP50,
		c.uptimeP95,
		c.uptimeP99,
		c.elapsedSeconds,
		c.targetUp,
		c.targetRestarts,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version).Set(1)
	c.targets.Set(float64(len(cfg.Targets)))
	for _, t := range cfg.Targets {
		c.targetUp.WithLabelValues(t).Set(0)
		c.targetRestarts.WithLabelValues(t)
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ProcessStarted records a successful spawn for target.
func (c *Collector) ProcessStarted(target string) {
	c.startsTotal.Inc()
	c.targetUp.WithLabelValues(target).Set(1)

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// ProcessRestarted records a restart attempt for target.
func (c *Collector) ProcessRestarted(target string) {
	c.restartsTotal.Inc()
	c.targetRestarts.WithLabelValues(target).Inc()

	c.mu.Lock()
	c.totalRestarts++
	c.mu.Unlock()
}

// SpawnFailed records a failed spawn for target.
func (c *Collector) SpawnFailed(target string) {
	c.spawnFailures.Inc()
	c.targetUp.WithLabelValues(target).Set(0)

	c.mu.Lock()
	c.totalFailures++
	c.mu.Unlock()
}

// ProcessStopped records a deliberate kill during shutdown. It is not an
// exit and does not touch the exit counters or uptime percentiles.
func (c *Collector) ProcessStopped(target string) {
	c.targetUp.WithLabelValues(target).Set(0)
}

// RecordExit records a process exit event.
func (c *Collector) RecordExit(target string, exitCode int, uptime time.Duration) {
	c.exitsTotal.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.uptimeSeconds.Observe(uptime.Seconds())
	c.targetUp.WithLabelValues(target).Set(0)

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimes.Add(uptime.Seconds(), 1)
	c.uptimeCount++
	p50 := c.uptimes.Quantile(0.50)
	p95 := c.uptimes.Quantile(0.95)
	p99 := c.uptimes.Quantile(0.99)
	c.mu.Unlock()

	c.uptimeP50.Set(p50)
	c.uptimeP95.Set(p95)
	c.uptimeP99.Set(p99)
}

// SetRunningCount updates the number of live processes.
func (c *Collector) SetRunningCount(count int) {
	c.running.Set(float64(count))
	c.elapsedSeconds.Set(time.Since(c.startTime).Seconds())

	c.mu.Lock()
	if count > c.peakRunning {
		c.peakRunning = count
	}
	c.mu.Unlock()
}

// ExitCategory classifies an exit code. Codes above 128 mean the process was
// killed by signal code-128.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return ExitSuccess
	case exitCode > 128:
		return ExitSignal
	default:
		return ExitError
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration      time.Duration
	Targets       int
	PeakRunning   int
	TotalStarts   int64
	TotalRestarts int64
	SpawnFailures int64
	ExitCodes     map[int]int64
	UptimeP50     time.Duration
	UptimeP95     time.Duration
	UptimeP99     time.Duration
}

// SortedExitCodes returns the exit codes seen, in ascending order.
func (s *Summary) SortedExitCodes() []int {
	codes := make([]int, 0, len(s.ExitCodes))
	for code := range s.ExitCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary(targets int) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:      time.Since(c.startTime),
		Targets:       targets,
		PeakRunning:   c.peakRunning,
		TotalStarts:   c.totalStarts,
		TotalRestarts: c.totalRestarts,
		SpawnFailures: c.totalFailures,
		ExitCodes:     make(map[int]int64, len(c.exitCodes)),
	}

	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if c.uptimeCount > 0 {
		s.UptimeP50 = secondsToDuration(c.uptimes.Quantile(0.50))
		s.UptimeP95 = secondsToDuration(c.uptimes.Quantile(0.95))
		s.UptimeP99 = secondsToDuration(c.uptimes.Quantile(0.99))
	}

	return s
}

// PeakRunning returns the peak live process count.
func (c *Collector) PeakRunning() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakRunning
}

// TotalStarts returns the total number of process starts.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// TotalRestarts returns the total number of restarts.
func (c *Collector) TotalRestarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRestarts
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
