package services

import (
	"encoding/json"
	"fmt"
	"os"
)

// TrackedProcess is the durable record of a spawned service process. The
// registry survives tool exits so that a later invocation can find and kill
// processes it did not itself spawn.
type TrackedProcess struct {
	Name string `json:"name"`
	Port int    `json:"port"`
	PID  int    `json:"pid"`
}

// Registry persists tracked processes to a side file as a JSON array.
// Every write rewrites the file wholesale under read-modify-write; there is
// no file lock, so concurrent tool invocations racing on the same file are
// out of scope (single operator, single invocation at a time).
type Registry struct {
	path string
}

// NewRegistry creates a registry handle for the given side file.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the side file location.
func (r *Registry) Path() string {
	return r.path
}

// Load reads all tracked processes. A missing file is an empty registry.
func (r *Registry) Load() ([]TrackedProcess, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read process registry: %w", err)
	}

	var tracked []TrackedProcess
	if err := json.Unmarshal(data, &tracked); err != nil {
		return nil, fmt.Errorf("failed to parse process registry: %w", err)
	}
	return tracked, nil
}

// Append records a newly spawned process and persists the whole registry
// synchronously.
func (r *Registry) Append(p TrackedProcess) error {
	tracked, err := r.Load()
	if err != nil {
		return err
	}
	tracked = append(tracked, p)
	return r.write(tracked)
}

// Clear empties the registry. Called during teardown after registered pids
// have been killed.
func (r *Registry) Clear() error {
	return r.write([]TrackedProcess{})
}

func (r *Registry) write(tracked []TrackedProcess) error {
	data, err := json.MarshalIndent(tracked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal process registry: %w", err)
	}
	if writeErr := os.WriteFile(r.path, data, 0o644); writeErr != nil {
		return fmt.Errorf("failed to write process registry: %w", writeErr)
	}
	return nil
}
