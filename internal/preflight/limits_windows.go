//go:build windows

package preflight

// checkFileDescriptors is a no-op on Windows, which has no descriptor rlimit.
func checkFileDescriptors(targets int) Check {
	return Check{
		Name:    "file_descriptors",
		Passed:  true,
		Message: "not limited on windows",
	}
}
