// Package services starts, health-checks, and tears down the external
// dev-service processes that measurement targets need. There is no
// background supervisor: liveness is only ever re-sampled on demand through
// the port prober.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/portprobe"
	"lightkeeper/internal/scenarios"
)

// State represents the lifecycle state of a declared service.
type State string

// Service states. There is no automatic Running -> Stopped transition;
// a service only leaves Running through StopAll.
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// Killer terminates a full descendant process tree. "No such process" is
// treated as success.
type Killer interface {
	KillTree(ctx context.Context, pid int) error
}

const (
	defaultReadyTimeout = 120 * time.Second
	defaultFreeTimeout  = 5 * time.Second
)

// Options configures a Manager. Registry, Prober, and Logger are required;
// everything else defaults to the platform implementation.
type Options struct {
	Registry *Registry
	Prober   *portprobe.Prober
	Launcher Launcher
	Killer   Killer
	Logger   logging.Logger
	Bus      *events.Bus

	// ReadyTimeout is the per-port readiness wait for WaitForServices.
	ReadyTimeout time.Duration
	// FreeTimeout is the per-port wait for ports to release during StopAll.
	FreeTimeout time.Duration
}

// Manager is the process lifecycle manager for declared services.
type Manager struct {
	registry *Registry
	prober   *portprobe.Prober
	launcher Launcher
	killer   Killer
	logger   logging.Logger
	bus      *events.Bus

	readyTimeout time.Duration
	freeTimeout  time.Duration
}

// NewManager creates a Manager.
func NewManager(opts *Options) *Manager {
	if opts == nil || opts.Registry == nil || opts.Prober == nil || opts.Logger == nil {
		panic("services.Options with Registry, Prober, and Logger is required")
	}

	m := &Manager{
		registry:     opts.Registry,
		prober:       opts.Prober,
		launcher:     opts.Launcher,
		killer:       opts.Killer,
		logger:       opts.Logger,
		bus:          opts.Bus,
		readyTimeout: opts.ReadyTimeout,
		freeTimeout:  opts.FreeTimeout,
	}
	if m.launcher == nil {
		m.launcher = NewLauncher()
	}
	if m.killer == nil {
		m.killer = NewKiller()
	}
	if m.readyTimeout == 0 {
		m.readyTimeout = defaultReadyTimeout
	}
	if m.freeTimeout == 0 {
		m.freeTimeout = defaultFreeTimeout
	}
	return m
}

// StartAll spawns every declared service. A missing working directory is
// logged and skipped without aborting the remaining services. Each
// successful spawn is appended to the registry and persisted synchronously.
func (m *Manager) StartAll(ctx context.Context, services []scenarios.Service) error {
	// Detachment keeps children alive past our exit on POSIX platforms;
	// on Windows detached child-tree signaling is unreliable, so it is off.
	detached := runtime.GOOS != "windows"

	for _, svc := range services {
		if _, err := os.Stat(svc.Dir); err != nil {
			m.logger.Warn("Service directory missing, skipping", "service", svc.Name, "dir", svc.Dir)
			continue
		}

		m.notifyState(svc, 0, StateStopped, StateStarting, nil)
		m.logger.Info("Starting service", "service", svc.Name, "dir", svc.Dir, "port", svc.Port)

		pid, err := m.launcher.Spawn(ctx, svc.Command, svc.Dir, detached)
		if err != nil {
			m.notifyState(svc, 0, StateStarting, StateStopped, err)
			return fmt.Errorf("failed to start service %q: %w", svc.Name, err)
		}

		if err := m.registry.Append(TrackedProcess{Name: svc.Name, Port: svc.Port, PID: pid}); err != nil {
			return err
		}

		m.notifyState(svc, pid, StateStarting, StateRunning, nil)
		m.logger.Info("Service started", "service", svc.Name, "pid", pid)
	}
	return nil
}

// EnsurePortsFree invokes a full teardown if and only if at least one
// declared port currently answers. A stale run holding a port would
// otherwise stack a duplicate service instance on top of it.
func (m *Manager) EnsurePortsFree(ctx context.Context, services []scenarios.Service) error {
	for _, svc := range services {
		if m.prober.InUse(ctx, svc.Port) {
			m.logger.Warn("Port already in use, assuming stale run and cleaning up",
				"service", svc.Name, "port", svc.Port)
			return m.StopAll(ctx, services)
		}
	}
	return nil
}

// WaitForServices is the sequential readiness gate: each declared port must
// accept connections within the per-port timeout. Fails fast at the first
// port that does not come up; the caller is responsible for tearing down
// partially started services on failure.
func (m *Manager) WaitForServices(ctx context.Context, services []scenarios.Service) bool {
	for _, svc := range services {
		m.logger.Info("Waiting for service", "service", svc.Name, "port", svc.Port, "timeout", m.readyTimeout)
		if !m.prober.WaitForPort(ctx, svc.Port, m.readyTimeout) {
			m.logger.Error("Service did not become ready", "service", svc.Name, "port", svc.Port)
			return false
		}
		m.logger.Info("Service ready", "service", svc.Name, "port", svc.Port)
	}
	return true
}

// StopAll is the two-phase, idempotent teardown. Phase one kills every pid
// recorded in the registry and clears it; phase two independently re-probes
// each declared port and kills whatever currently holds it, covering
// orphans from a crashed prior run; phase three waits for the ports to go
// free. Safe to call when nothing is running.
func (m *Manager) StopAll(ctx context.Context, services []scenarios.Service) error {
	var errs []error

	tracked, err := m.registry.Load()
	if err != nil {
		// An unreadable registry must not block port-based cleanup
		m.logger.Warn("Failed to load process registry", "error", err)
	}
	for _, p := range tracked {
		m.logger.Info("Stopping tracked process", "service", p.Name, "pid", p.PID)
		if killErr := m.killer.KillTree(ctx, p.PID); killErr != nil {
			// Best effort: surface the error for this pid, keep going
			errs = append(errs, fmt.Errorf("service %q (pid %d): %w", p.Name, p.PID, killErr))
			continue
		}
		m.notifyState(scenarios.Service{Name: p.Name, Port: p.Port}, p.PID, StateRunning, StateStopped, nil)
	}
	if clearErr := m.registry.Clear(); clearErr != nil {
		errs = append(errs, clearErr)
	}

	for _, svc := range services {
		owner, inUse := m.prober.Owner(ctx, svc.Port)
		if !inUse {
			continue
		}
		m.logger.Info("Killing current port owner", "service", svc.Name, "port", svc.Port,
			"pid", owner.PID, "name", owner.Name)
		if killErr := m.killer.KillTree(ctx, owner.PID); killErr != nil {
			errs = append(errs, fmt.Errorf("port %d owner (pid %d): %w", svc.Port, owner.PID, killErr))
		}
	}

	for _, svc := range services {
		if !m.prober.WaitForPortFree(ctx, svc.Port, m.freeTimeout) {
			m.logger.Warn("Port still in use after teardown", "service", svc.Name, "port", svc.Port)
		}
	}

	return errors.Join(errs...)
}

// ServiceStatus is an on-demand liveness sample for one declared service.
type ServiceStatus struct {
	Service scenarios.Service
	State   State
	PID     int
}

// Status re-samples each declared service: port bound means running, and a
// registry entry supplies the pid when the names match.
func (m *Manager) Status(ctx context.Context, services []scenarios.Service) []ServiceStatus {
	tracked, err := m.registry.Load()
	if err != nil {
		m.logger.Warn("Failed to load process registry", "error", err)
	}
	pidByName := make(map[string]int, len(tracked))
	for _, p := range tracked {
		pidByName[p.Name] = p.PID
	}

	statuses := make([]ServiceStatus, 0, len(services))
	for _, svc := range services {
		st := ServiceStatus{Service: svc, State: StateStopped, PID: pidByName[svc.Name]}
		if m.prober.InUse(ctx, svc.Port) {
			st.State = StateRunning
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (m *Manager) notifyState(svc scenarios.Service, pid int, oldState, newState State, err error) {
	if m.bus == nil {
		return
	}
	ev := events.ServiceStateChangedEvent{
		Name:     svc.Name,
		Port:     svc.Port,
		PID:      pid,
		OldState: string(oldState),
		NewState: string(newState),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.bus.Publish(ev)
}
