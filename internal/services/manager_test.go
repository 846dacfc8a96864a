package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lightkeeper/internal/portprobe"
	"lightkeeper/internal/scenarios"
)

func managerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// portTable is a mutable fake port-ownership view shared between the fake
// launcher, killer, and prober.
type portTable struct {
	mu     sync.Mutex
	owners map[int]portprobe.PortOwner
	err    error
}

func newPortTable() *portTable {
	return &portTable{owners: make(map[int]portprobe.PortOwner)}
}

func (p *portTable) bind(port, pid int, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[port] = portprobe.PortOwner{PID: pid, Name: name}
}

func (p *portTable) releasePid(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port, owner := range p.owners {
		if owner.PID == pid {
			delete(p.owners, port)
		}
	}
}

func (p *portTable) ByPort(_ context.Context, port int) ([]portprobe.PortOwner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if owner, ok := p.owners[port]; ok {
		return []portprobe.PortOwner{owner}, nil
	}
	return nil, nil
}

// fakeLauncher hands out sequential pids and binds the declared port.
type fakeLauncher struct {
	table   *portTable
	nextPid int
	spawned []string
	err     error
	// portFor maps working dir to the port the fake binds on spawn
	portFor map[string]int
}

func (l *fakeLauncher) Spawn(_ context.Context, command, dir string, _ bool) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.nextPid++
	l.spawned = append(l.spawned, command)
	if port, ok := l.portFor[dir]; ok {
		l.table.bind(port, l.nextPid, "fake")
	}
	return l.nextPid, nil
}

// fakeKiller records kills and releases ports held by the killed pid.
type fakeKiller struct {
	table  *portTable
	killed []int
	errFor map[int]error
}

func (k *fakeKiller) KillTree(_ context.Context, pid int) error {
	k.killed = append(k.killed, pid)
	if err, ok := k.errFor[pid]; ok {
		return err
	}
	k.table.releasePid(pid)
	return nil
}

type managerFixture struct {
	manager  *Manager
	registry *Registry
	table    *portTable
	launcher *fakeLauncher
	killer   *fakeKiller
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	table := newPortTable()
	launcher := &fakeLauncher{table: table, portFor: make(map[string]int)}
	killer := &fakeKiller{table: table, errFor: make(map[int]error)}
	registry := NewRegistry(filepath.Join(t.TempDir(), "services.json"))

	manager := NewManager(&Options{
		Registry:     registry,
		Prober:       portprobe.NewWithFinder(table, managerTestLogger()),
		Launcher:     launcher,
		Killer:       killer,
		Logger:       managerTestLogger(),
		ReadyTimeout: 200 * time.Millisecond,
		FreeTimeout:  50 * time.Millisecond,
	})

	return &managerFixture{manager: manager, registry: registry, table: table, launcher: launcher, killer: killer}
}

func declareService(t *testing.T, name string, port int) scenarios.Service {
	t.Helper()
	dir := t.TempDir()
	return scenarios.Service{Name: name, Dir: dir, Command: "npm run dev", Port: port}
}

func TestStartAllTracksProcesses(t *testing.T) {
	f := newManagerFixture(t)
	web := declareService(t, "web", 3000)
	api := declareService(t, "api", 4000)
	f.launcher.portFor[web.Dir] = 3000
	f.launcher.portFor[api.Dir] = 4000

	if err := f.manager.StartAll(context.Background(), []scenarios.Service{web, api}); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	tracked, err := f.registry.Load()
	if err != nil {
		t.Fatalf("registry load failed: %v", err)
	}
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked processes, got %d", len(tracked))
	}
	if tracked[0].Name != "web" || tracked[0].Port != 3000 || tracked[0].PID == 0 {
		t.Errorf("unexpected tracked entry %+v", tracked[0])
	}
}

func TestStartAllSkipsMissingDirectory(t *testing.T) {
	f := newManagerFixture(t)
	missing := scenarios.Service{Name: "gone", Dir: filepath.Join(os.TempDir(), "does-not-exist-lightkeeper"), Command: "npm start", Port: 5000}
	ok := declareService(t, "web", 3000)

	if err := f.manager.StartAll(context.Background(), []scenarios.Service{missing, ok}); err != nil {
		t.Fatalf("StartAll should not fail on a missing directory: %v", err)
	}

	if len(f.launcher.spawned) != 1 {
		t.Errorf("expected only the existing service to spawn, got %d spawns", len(f.launcher.spawned))
	}
	tracked, _ := f.registry.Load()
	if len(tracked) != 1 || tracked[0].Name != "web" {
		t.Errorf("expected only web tracked, got %+v", tracked)
	}
}

func TestWaitForServicesFailsFast(t *testing.T) {
	f := newManagerFixture(t)
	up := declareService(t, "up", 3000)
	down := declareService(t, "down", 4000)
	f.table.bind(3000, 10, "node")

	if !f.manager.WaitForServices(context.Background(), []scenarios.Service{up}) {
		t.Error("expected bound port to be ready")
	}
	if f.manager.WaitForServices(context.Background(), []scenarios.Service{up, down}) {
		t.Error("expected readiness gate to fail on the unbound port")
	}
}

func TestStopAllKillsRegistryAndPortOwners(t *testing.T) {
	f := newManagerFixture(t)
	web := declareService(t, "web", 3000)

	// One tracked process, plus an orphan from a "crashed prior run" that
	// holds the declared port but is not in the registry
	if err := f.registry.Append(TrackedProcess{Name: "web", Port: 3000, PID: 77}); err != nil {
		t.Fatal(err)
	}
	f.table.bind(3000, 88, "orphan")

	if err := f.manager.StopAll(context.Background(), []scenarios.Service{web}); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}

	if len(f.killer.killed) != 2 || f.killer.killed[0] != 77 || f.killer.killed[1] != 88 {
		t.Errorf("expected registry pid then port owner killed, got %v", f.killer.killed)
	}
	tracked, _ := f.registry.Load()
	if len(tracked) != 0 {
		t.Errorf("expected registry cleared, got %+v", tracked)
	}
}

func TestStopAllIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	web := declareService(t, "web", 3000)

	for i := 0; i < 2; i++ {
		if err := f.manager.StopAll(context.Background(), []scenarios.Service{web}); err != nil {
			t.Fatalf("StopAll call %d failed: %v", i+1, err)
		}
		tracked, err := f.registry.Load()
		if err != nil {
			t.Fatalf("registry load failed: %v", err)
		}
		if len(tracked) != 0 {
			t.Errorf("expected empty registry after call %d", i+1)
		}
	}
}

func TestStopAllSurfacesKillErrorsWithoutAborting(t *testing.T) {
	f := newManagerFixture(t)
	if err := f.registry.Append(TrackedProcess{Name: "a", Port: 3000, PID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Append(TrackedProcess{Name: "b", Port: 4000, PID: 2}); err != nil {
		t.Fatal(err)
	}
	f.killer.errFor[1] = errors.New("kill rejected")

	err := f.manager.StopAll(context.Background(), nil)
	if err == nil {
		t.Fatal("expected the failed kill to surface")
	}
	if len(f.killer.killed) != 2 {
		t.Errorf("expected both pids attempted, got %v", f.killer.killed)
	}
}

func TestEnsurePortsFreeTriggersTeardownOnlyWhenBound(t *testing.T) {
	f := newManagerFixture(t)
	web := declareService(t, "web", 3000)

	// Nothing bound: no teardown
	if err := f.manager.EnsurePortsFree(context.Background(), []scenarios.Service{web}); err != nil {
		t.Fatalf("EnsurePortsFree failed: %v", err)
	}
	if len(f.killer.killed) != 0 {
		t.Errorf("expected no kills with free ports, got %v", f.killer.killed)
	}

	// Stale run holding the port: full teardown
	f.table.bind(3000, 99, "stale")
	if err := f.manager.EnsurePortsFree(context.Background(), []scenarios.Service{web}); err != nil {
		t.Fatalf("EnsurePortsFree failed: %v", err)
	}
	if len(f.killer.killed) != 1 || f.killer.killed[0] != 99 {
		t.Errorf("expected stale owner killed, got %v", f.killer.killed)
	}
}

func TestEnsurePortsFreeNoServices(t *testing.T) {
	f := newManagerFixture(t)
	if err := f.manager.EnsurePortsFree(context.Background(), nil); err != nil {
		t.Fatalf("EnsurePortsFree failed: %v", err)
	}
	if len(f.killer.killed) != 0 {
		t.Error("expected no teardown with zero services declared")
	}
}

func TestStatus(t *testing.T) {
	f := newManagerFixture(t)
	web := declareService(t, "web", 3000)
	api := declareService(t, "api", 4000)
	if err := f.registry.Append(TrackedProcess{Name: "web", Port: 3000, PID: 55}); err != nil {
		t.Fatal(err)
	}
	f.table.bind(3000, 55, "node")

	statuses := f.manager.Status(context.Background(), []scenarios.Service{web, api})
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].State != StateRunning || statuses[0].PID != 55 {
		t.Errorf("unexpected web status %+v", statuses[0])
	}
	if statuses[1].State != StateStopped {
		t.Errorf("unexpected api status %+v", statuses[1])
	}
}
