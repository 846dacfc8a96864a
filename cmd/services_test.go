package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lightkeeper/internal/portprobe"
	"lightkeeper/internal/scenarios"
	"lightkeeper/internal/services"
)

// flakyLauncher spawns successfully until failAfter spawns have happened,
// then fails every call.
type flakyLauncher struct {
	failAfter int
	spawned   []int
	nextPID   int
}

func (l *flakyLauncher) Spawn(_ context.Context, _, _ string, _ bool) (int, error) {
	if len(l.spawned) >= l.failAfter {
		return 0, errors.New("spawn refused")
	}
	l.nextPID++
	pid := 1000 + l.nextPID
	l.spawned = append(l.spawned, pid)
	return pid, nil
}

// recordingKiller records every pid it is asked to terminate.
type recordingKiller struct {
	mu     sync.Mutex
	killed []int
}

func (k *recordingKiller) KillTree(_ context.Context, pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, pid)
	return nil
}

// freePortFinder reports every port as unbound.
type freePortFinder struct{}

func (freePortFinder) ByPort(_ context.Context, _ int) ([]portprobe.PortOwner, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServices(t *testing.T, n int) []scenarios.Service {
	t.Helper()
	svcs := make([]scenarios.Service, n)
	for i := range svcs {
		svcs[i] = scenarios.Service{
			Name:    "svc" + string(rune('a'+i)),
			Dir:     t.TempDir(),
			Command: "sleep 60",
			Port:    4000 + i,
		}
	}
	return svcs
}

func newFakeManager(t *testing.T, launcher services.Launcher, killer services.Killer, finder portprobe.Finder, registryPath string) *services.Manager {
	t.Helper()
	return services.NewManager(&services.Options{
		Registry:     services.NewRegistry(registryPath),
		Prober:       portprobe.NewWithFinder(finder, discardLogger()),
		Launcher:     launcher,
		Killer:       killer,
		Logger:       discardLogger(),
		ReadyTimeout: time.Millisecond,
		FreeTimeout:  time.Millisecond,
	})
}

// A spawn failure partway through the list must tear down the services
// started before it and leave the registry empty.
func TestStartServicesTearsDownAfterPartialStart(t *testing.T) {
	launcher := &flakyLauncher{failAfter: 1}
	killer := &recordingKiller{}
	registryPath := filepath.Join(t.TempDir(), "registry.json")
	manager := newFakeManager(t, launcher, killer, freePortFinder{}, registryPath)

	_, err := startServices(context.Background(), manager, testServices(t, 2), discardLogger())
	if err == nil {
		t.Fatal("expected an error from the refused spawn")
	}

	if len(launcher.spawned) != 1 {
		t.Fatalf("spawned pids = %v, want exactly one", launcher.spawned)
	}
	if len(killer.killed) != 1 || killer.killed[0] != launcher.spawned[0] {
		t.Errorf("killed pids = %v, want %v", killer.killed, launcher.spawned)
	}

	tracked, loadErr := services.NewRegistry(registryPath).Load()
	if loadErr != nil {
		t.Fatalf("registry load: %v", loadErr)
	}
	if len(tracked) != 0 {
		t.Errorf("registry still tracks %v after teardown", tracked)
	}
}

// A readiness timeout after all services spawned must also tear everything
// down.
func TestStartServicesTearsDownWhenNeverReady(t *testing.T) {
	launcher := &flakyLauncher{failAfter: 2}
	killer := &recordingKiller{}
	registryPath := filepath.Join(t.TempDir(), "registry.json")
	manager := newFakeManager(t, launcher, killer, freePortFinder{}, registryPath)

	_, err := startServices(context.Background(), manager, testServices(t, 2), discardLogger())
	if err == nil {
		t.Fatal("expected a readiness error: no port ever binds")
	}

	if len(launcher.spawned) != 2 {
		t.Fatalf("spawned pids = %v, want two", launcher.spawned)
	}
	if len(killer.killed) != len(launcher.spawned) {
		t.Errorf("killed %v of spawned %v", killer.killed, launcher.spawned)
	}
	tracked, loadErr := services.NewRegistry(registryPath).Load()
	if loadErr != nil {
		t.Fatalf("registry load: %v", loadErr)
	}
	if len(tracked) != 0 {
		t.Errorf("registry still tracks %v after teardown", tracked)
	}
}

// fakeHost simulates one service process: its port binds when the launcher
// spawns it and frees when the killer takes the pid down.
type fakeHost struct {
	mu    sync.Mutex
	pid   int
	bound bool
	kills []int
}

func (h *fakeHost) Spawn(_ context.Context, _, _ string, _ bool) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pid = 4321
	h.bound = true
	return h.pid, nil
}

func (h *fakeHost) KillTree(_ context.Context, pid int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kills = append(h.kills, pid)
	h.bound = false
	return nil
}

func (h *fakeHost) ByPort(_ context.Context, _ int) ([]portprobe.PortOwner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.bound {
		return nil, nil
	}
	return []portprobe.PortOwner{{PID: h.pid, Name: "svca"}}, nil
}

// A successful start returns a stop function that performs the teardown.
func TestStartServicesStopFunction(t *testing.T) {
	host := &fakeHost{}
	registryPath := filepath.Join(t.TempDir(), "registry.json")
	manager := newFakeManager(t, host, host, host, registryPath)

	stop, err := startServices(context.Background(), manager, testServices(t, 1), discardLogger())
	if err != nil {
		t.Fatalf("startServices: %v", err)
	}
	if len(host.kills) != 0 {
		t.Fatalf("teardown ran before stop: %v", host.kills)
	}

	stop()
	if len(host.kills) != 1 || host.kills[0] != host.pid {
		t.Errorf("killed pids = %v, want [%d]", host.kills, host.pid)
	}

	tracked, loadErr := services.NewRegistry(registryPath).Load()
	if loadErr != nil {
		t.Fatalf("registry load: %v", loadErr)
	}
	if len(tracked) != 0 {
		t.Errorf("registry still tracks %v after stop", tracked)
	}
}
