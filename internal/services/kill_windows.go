//go:build windows

package services

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// treeKiller terminates a pid and its descendants via taskkill /T.
type treeKiller struct{}

// NewKiller returns the platform tree-kill primitive.
func NewKiller() Killer {
	return treeKiller{}
}

// KillTree forcefully terminates pid and its descendants. A pid that no
// longer exists counts as success.
func (treeKiller) KillTree(ctx context.Context, pid int) error {
	out, err := exec.CommandContext(ctx, "taskkill", "/pid", strconv.Itoa(pid), "/T", "/F").CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "not found") {
			return nil
		}
		return fmt.Errorf("taskkill for pid %d: %w", pid, err)
	}
	return nil
}
