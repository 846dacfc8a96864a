// Package portprobe answers one question: is a TCP port currently bound by
// any process? Lookup failures (permission errors, missing tooling) are
// deliberately mapped to "not in use" so that a restricted environment never
// blocks startup; EnsurePortsFree and the readiness gate depend on this
// conservative default.
package portprobe

import (
	"context"
	"time"

	"lightkeeper/internal/logging"
)

// PortOwner describes a process currently bound to a port.
type PortOwner struct {
	PID  int
	Name string
}

// Finder looks up the processes that own a TCP port.
type Finder interface {
	ByPort(ctx context.Context, port int) ([]PortOwner, error)
}

const (
	portPollInterval = 1 * time.Second
	freePollInterval = 500 * time.Millisecond
)

// Prober probes TCP port ownership.
type Prober struct {
	finder Finder
	logger logging.Logger
}

// New creates a prober backed by the platform port-ownership lookup.
func New(logger logging.Logger) *Prober {
	return NewWithFinder(newSystemFinder(), logger)
}

// NewWithFinder creates a prober with a custom finder. Used by the lifecycle
// manager tests and by anything that already has its own process table view.
func NewWithFinder(finder Finder, logger logging.Logger) *Prober {
	return &Prober{finder: finder, logger: logger}
}

// InUse reports whether any process is bound to the port. It never fails:
// a lookup error is logged at debug and treated as "not in use".
func (p *Prober) InUse(ctx context.Context, port int) bool {
	owners, err := p.finder.ByPort(ctx, port)
	if err != nil {
		p.logger.Debug("Port lookup failed, treating as free", "port", port, "error", err)
		return false
	}
	return len(owners) > 0
}

// Owner returns the first process bound to the port, if any.
func (p *Prober) Owner(ctx context.Context, port int) (PortOwner, bool) {
	owners, err := p.finder.ByPort(ctx, port)
	if err != nil || len(owners) == 0 {
		return PortOwner{}, false
	}
	return owners[0], true
}

// WaitForPort polls until the port is in use or the timeout elapses.
// Returns true if the port came up in time. Timeouts are a boolean, not an
// error; callers decide what a timeout means.
func (p *Prober) WaitForPort(ctx context.Context, port int, timeout time.Duration) bool {
	return p.poll(ctx, port, timeout, portPollInterval, true)
}

// WaitForPortFree is the inverse of WaitForPort, polling at a shorter
// interval. Used during teardown.
func (p *Prober) WaitForPortFree(ctx context.Context, port int, timeout time.Duration) bool {
	return p.poll(ctx, port, timeout, freePollInterval, false)
}

// poll checks the port immediately and then at the given interval until the
// desired state is observed or the deadline passes.
func (p *Prober) poll(ctx context.Context, port int, timeout, interval time.Duration, wantInUse bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if p.InUse(ctx, port) == wantInUse {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
