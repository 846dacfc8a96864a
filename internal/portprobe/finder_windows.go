//go:build windows

package portprobe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// systemFinder parses netstat output on Windows, where lsof is unavailable.
type systemFinder struct{}

func newSystemFinder() Finder {
	return systemFinder{}
}

// ByPort returns the processes listening on the given TCP port.
func (systemFinder) ByPort(ctx context.Context, port int) ([]PortOwner, error) {
	cmd := exec.CommandContext(ctx, "netstat", "-ano", "-p", "TCP")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("netstat lookup for port %d: %w", port, err)
	}

	return parseNetstatOutput(string(out), port), nil
}

// parseNetstatOutput extracts LISTENING entries for the port from
// "netstat -ano" output. Process names are not resolved on Windows; the
// lifecycle manager only needs the pid for kill targeting.
func parseNetstatOutput(out string, port int) []PortOwner {
	suffix := ":" + strconv.Itoa(port)
	seen := make(map[int]bool)
	var owners []PortOwner

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		// Proto LocalAddress ForeignAddress State PID
		if len(fields) < 5 || fields[3] != "LISTENING" {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		owners = append(owners, PortOwner{PID: pid})
	}
	return owners
}
