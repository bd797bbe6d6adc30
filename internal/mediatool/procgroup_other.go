//go:build !unix

package mediatool

import "os/exec"

// setProcessGroup is a no-op on platforms without POSIX process groups;
// ctx cancellation still kills the direct child via exec.CommandContext.
func setProcessGroup(cmd *exec.Cmd) {}
