package events

// Event type constants for kelindar/event.
const (
	TypeServiceStateChanged uint32 = iota + 1
	TypeRunCompleted
	TypeScenarioCompleted
	TypeBatchCompleted
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ServiceStateChangedEvent is published when a managed service transitions
// between lifecycle states (stopped, starting, running).
type ServiceStateChangedEvent struct {
	Name     string `json:"name"`
	Port     int    `json:"port"`
	PID      int    `json:"pid"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Error    string `json:"error,omitempty"`
}

// Type returns the event type identifier for ServiceStateChangedEvent.
func (e ServiceStateChangedEvent) Type() uint32 { return TypeServiceStateChanged }

// RunCompletedEvent is published after each individual audit run within a
// measurement session.
type RunCompletedEvent struct {
	URL   string  `json:"url"`
	Run   int     `json:"run"`
	Total int     `json:"total"`
	Score float64 `json:"score"`
}

// Type returns the event type identifier for RunCompletedEvent.
func (e RunCompletedEvent) Type() uint32 { return TypeRunCompleted }

// ScenarioCompletedEvent is published when a scenario within a batch resolves,
// whether it succeeded or failed.
type ScenarioCompletedEvent struct {
	BatchID    string  `json:"batch_id"`
	ScenarioID string  `json:"scenario_id"`
	Succeeded  bool    `json:"succeeded"`
	Score      float64 `json:"score,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Type returns the event type identifier for ScenarioCompletedEvent.
func (e ScenarioCompletedEvent) Type() uint32 { return TypeScenarioCompleted }

// BatchCompletedEvent is published once every scenario in a batch has resolved.
type BatchCompletedEvent struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Duration  string `json:"duration"`
}

// Type returns the event type identifier for BatchCompletedEvent.
func (e BatchCompletedEvent) Type() uint32 { return TypeBatchCompleted }
