//go:build !windows

package services

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child into its own session. The child
// becomes its own process-group leader, which also gives the kill primitive
// a group to target.
func configureSysProcAttr(cmd *exec.Cmd, detached bool) {
	if detached {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}
