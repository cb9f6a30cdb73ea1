//go:build !windows

package preflight

import (
	"fmt"
	"syscall"
)

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(targets int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	required := requiredFDs(targets)
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d targets)", actual, required, targets),
	}
}
