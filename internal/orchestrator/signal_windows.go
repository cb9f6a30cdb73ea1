//go:build windows

package orchestrator

import "os"

// Console Ctrl+C and Ctrl+Break both arrive as os.Interrupt.
var shutdownSignals = []os.Signal{os.Interrupt}
