//go:build windows

package process

import "os/exec"

func setProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
