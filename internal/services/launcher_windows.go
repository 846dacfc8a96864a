//go:build windows

package services

import "os/exec"

// configureSysProcAttr is a no-op on Windows: detached child-tree signaling
// is unreliable there, so the manager never requests detachment.
func configureSysProcAttr(_ *exec.Cmd, _ bool) {
}
