package services

import (
	"os"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "services.json"))
}

func TestRegistryLoadMissingFile(t *testing.T) {
	r := testRegistry(t)
	tracked, err := r.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tracked) != 0 {
		t.Errorf("expected empty registry, got %+v", tracked)
	}
}

func TestRegistryAppendAndLoad(t *testing.T) {
	r := testRegistry(t)

	if err := r.Append(TrackedProcess{Name: "web", Port: 3000, PID: 101}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := r.Append(TrackedProcess{Name: "api", Port: 4000, PID: 102}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	tracked, err := r.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked processes, got %d", len(tracked))
	}
	if tracked[0].Name != "web" || tracked[0].PID != 101 {
		t.Errorf("unexpected first entry %+v", tracked[0])
	}
	if tracked[1].Name != "api" || tracked[1].Port != 4000 {
		t.Errorf("unexpected second entry %+v", tracked[1])
	}
}

func TestRegistryClear(t *testing.T) {
	r := testRegistry(t)

	if err := r.Append(TrackedProcess{Name: "web", Port: 3000, PID: 101}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := r.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	tracked, err := r.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tracked) != 0 {
		t.Errorf("expected empty registry after Clear, got %+v", tracked)
	}

	// Clearing twice is fine
	if err := r.Clear(); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestRegistryRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(path).Load(); err == nil {
		t.Error("expected parse error for corrupt registry")
	}
}
