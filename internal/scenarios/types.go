package scenarios

// Service declares an external process that must be running for measurement
// targets to be reachable. Declarations are immutable; lifecycle is handled
// by the services package. The port is used only for health checks and
// cleanup, never for traffic routing.
type Service struct {
	Name    string `toml:"name" json:"name"`
	Dir     string `toml:"dir" json:"dir"`
	Command string `toml:"command" json:"command"`
	Port    int    `toml:"port" json:"port"`
}

// Scenario is a named, reusable measurement job definition. Scenarios are
// declared in the scenarios file and read-only to the rest of the tool.
type Scenario struct {
	ID   string `toml:"id" json:"id"`
	Note string `toml:"note,omitempty" json:"note,omitempty"`
	URL  string `toml:"url" json:"url"`

	// Runs overrides the shared run count when > 0.
	Runs int `toml:"runs,omitempty" json:"runs,omitempty"`

	// ApplyOverrides overrides the shared flag when set.
	ApplyOverrides *bool `toml:"apply_overrides,omitempty" json:"apply_overrides,omitempty"`

	// Enabled defaults to true when absent.
	Enabled *bool `toml:"enabled,omitempty" json:"enabled,omitempty"`

	Tags []string `toml:"tags,omitempty" json:"tags,omitempty"`
}

// IsEnabled reports whether the scenario participates in batch runs.
func (s Scenario) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// HasTags reports whether the scenario's tag set is a superset of want.
func (s Scenario) HasTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, tag := range s.Tags {
			if tag == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
