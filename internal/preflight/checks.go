// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the supervisor is about to run.
type Options struct {
	Targets    int    // number of stream URLs
	Executable string // argv[0] of the expanded command template
	LogsFolder string // where logs and recordings are written
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkExecutable(opts.Executable))
	add(checkFileDescriptors(opts.Targets))
	add(checkProcessLimit(opts.Targets))
	add(checkLogsFolder(opts.LogsFolder))

	return result
}

// checkExecutable verifies the ripper executable can be found.
func checkExecutable(name string) Check {
	if name == "" {
		return Check{
			Name:    "executable",
			Passed:  false,
			Message: "command template names no executable",
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "executable",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", name, err),
		}
	}

	return Check{
		Name:    "executable",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// requiredFDs estimates descriptors for n targets. Each ripper holds a few
// pipes and sockets; the supervisor needs its own for logging and metrics.
func requiredFDs(targets int) int {
	return targets*16 + 64
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(targets int) Check {
	// Ripper tools like streamlink spawn an ffmpeg child of their own.
	required := targets*2 + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from the
// contents of /proc/self/limits. Returns 0 when absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkLogsFolder verifies the logs folder exists (or can be created) and
// is writable.
func checkLogsFolder(dir string) Check {
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "logs_folder",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "logs_folder",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return Check{
		Name:    "logs_folder",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", abs),
	}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "executable":
		return "install streamlink (pipx install streamlink) or fix streamlink_cli in the config"
	case "logs_folder":
		return "fix logs_folder in the config or the folder's permissions"
	default:
		return "see documentation"
	}
}
