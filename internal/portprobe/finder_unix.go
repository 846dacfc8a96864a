//go:build !windows

package portprobe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// systemFinder shells out to lsof, which is available on both Linux and
// macOS. Any exec failure (missing binary, non-zero exit with no matches,
// permission error) surfaces as an error and the prober maps it to "free".
type systemFinder struct{}

func newSystemFinder() Finder {
	return systemFinder{}
}

// ByPort returns the processes listening on the given TCP port.
func (systemFinder) ByPort(ctx context.Context, port int) ([]PortOwner, error) {
	// -F pc emits machine-readable "p<pid>" / "c<command>" lines per process
	cmd := exec.CommandContext(ctx, "lsof",
		"-nP",
		"-iTCP:"+strconv.Itoa(port),
		"-sTCP:LISTEN",
		"-Fpc",
	)
	out, err := cmd.Output()
	if err != nil {
		// lsof exits 1 when nothing matches; that is a free port, not a failure
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 && len(out) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof lookup for port %d: %w", port, err)
	}

	return parseLsofOutput(string(out)), nil
}

// parseLsofOutput parses -Fpc field output into owners, one per process.
func parseLsofOutput(out string) []PortOwner {
	var owners []PortOwner
	var current *PortOwner

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			if current != nil {
				owners = append(owners, *current)
			}
			pid, err := strconv.Atoi(line[1:])
			if err != nil {
				current = nil
				continue
			}
			current = &PortOwner{PID: pid}
		case 'c':
			if current != nil {
				current.Name = line[1:]
			}
		}
	}
	if current != nil {
		owners = append(owners, *current)
	}
	return owners
}
