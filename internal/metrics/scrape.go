package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// TargetStatus is one target as reported by a running supervisor.
type TargetStatus struct {
	Target   string
	Up       bool
	Restarts int64
}

// Status is what Scrape reads back from a running supervisor's /metrics.
type Status struct {
	Version       string
	Elapsed       time.Duration
	Running       int
	TotalStarts   int64
	TotalRestarts int64
	SpawnFailures int64
	UptimeP50     time.Duration
	Targets       []TargetStatus
}

// Scrape fetches and decodes the metrics endpoint at addr (host:port or a
// full URL).
func Scrape(ctx context.Context, client *http.Client, addr string) (*Status, error) {
	if client == nil {
		client = http.DefaultClient
	}
	url := addr
	if !strings.Contains(url, "://") {
		url = "http://" + url + "/metrics"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}

	return statusFromFamilies(families), nil
}

func statusFromFamilies(families map[string]*dto.MetricFamily) *Status {
	s := &Status{
		Elapsed:       secondsToDuration(scalar(families["stream_ripper_elapsed_seconds"])),
		Running:       int(scalar(families["stream_ripper_running_processes"])),
		TotalStarts:   int64(scalar(families["stream_ripper_process_starts_total"])),
		TotalRestarts: int64(scalar(families["stream_ripper_process_restarts_total"])),
		SpawnFailures: int64(scalar(families["stream_ripper_spawn_failures_total"])),
		UptimeP50:     secondsToDuration(scalar(families["stream_ripper_uptime_p50_seconds"])),
	}

	if mf := families["stream_ripper_info"]; mf != nil && len(mf.GetMetric()) > 0 {
		s.Version = labelValue(mf.GetMetric()[0], "version")
	}

	byTarget := make(map[string]*TargetStatus)
	get := func(target string) *TargetStatus {
		ts, ok := byTarget[target]
		if !ok {
			ts = &TargetStatus{Target: target}
			byTarget[target] = ts
		}
		return ts
	}
	if mf := families["stream_ripper_target_up"]; mf != nil {
		for _, m := range mf.GetMetric() {
			get(labelValue(m, "target")).Up = sampleValue(m) == 1
		}
	}
	if mf := families["stream_ripper_target_restarts_total"]; mf != nil {
		for _, m := range mf.GetMetric() {
			get(labelValue(m, "target")).Restarts = int64(sampleValue(m))
		}
	}

	for _, ts := range byTarget {
		s.Targets = append(s.Targets, *ts)
	}
	sort.Slice(s.Targets, func(i, j int) bool { return s.Targets[i].Target < s.Targets[j].Target })
	return s
}

// scalar returns the value of the first series in mf, or 0.
func scalar(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return sampleValue(mf.GetMetric()[0])
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
