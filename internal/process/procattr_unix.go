//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group so that tools which
// fork helpers (streamlink spawning ffmpeg) can be killed as a unit.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcessGroup(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}
