//go:build unix

package mediatool

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the subprocess in its own process group so that
// cancellation can kill the whole tree (the tool itself may spawn helper
// processes), satisfying spec.md §5/§9's subprocess-lifecycle requirement.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
