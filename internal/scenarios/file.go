package scenarios

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File represents the complete scenarios declaration file. Scenarios and
// services are array tables so that file order is preserved; under
// sequential batch execution scenarios run in declared order.
type File struct {
	Version   int        `toml:"version"`
	Services  []Service  `toml:"services,omitempty"`
	Scenarios []Scenario `toml:"scenarios,omitempty"`
}

// LoadFile loads scenario and service declarations from a TOML file.
// A missing file yields an empty declaration set; whether that is an error
// depends on the operation and is decided by the caller.
func LoadFile(path string) (*File, error) {
	f := &File{Version: 1}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file: %w", err)
	}

	if unmarshalErr := toml.Unmarshal(data, f); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse scenarios file: %w", unmarshalErr)
	}

	if f.Version == 0 {
		f.Version = 1
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// Validate checks the declarations for configuration errors: duplicate
// scenario ids, scenarios without a URL, duplicate service names.
func (f *File) Validate() error {
	seenScenarios := make(map[string]bool, len(f.Scenarios))
	for _, s := range f.Scenarios {
		if s.ID == "" {
			return fmt.Errorf("scenario with url %q has no id", s.URL)
		}
		if seenScenarios[s.ID] {
			return fmt.Errorf("duplicate scenario id %q", s.ID)
		}
		seenScenarios[s.ID] = true
		if s.URL == "" {
			return fmt.Errorf("scenario %q has no url", s.ID)
		}
	}

	seenServices := make(map[string]bool, len(f.Services))
	for _, svc := range f.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with command %q has no name", svc.Command)
		}
		if seenServices[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seenServices[svc.Name] = true
	}

	return nil
}

// Filter applies the caller-side scenario selection: disabled scenarios are
// dropped, a tag filter keeps only scenarios whose tag set is a superset of
// the filter, and a non-empty only id narrows the result to that single
// scenario. Declared order is preserved.
func Filter(all []Scenario, tags []string, only string) []Scenario {
	out := make([]Scenario, 0, len(all))
	for _, s := range all {
		if !s.IsEnabled() {
			continue
		}
		if len(tags) > 0 && !s.HasTags(tags) {
			continue
		}
		if only != "" && s.ID != only {
			continue
		}
		out = append(out, s)
	}
	return out
}
