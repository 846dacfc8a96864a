package batch

import (
	"time"

	"lightkeeper/internal/measure"
	"lightkeeper/internal/scenarios"
)

// Outcome is one scenario's resolution inside a batch: success carries a
// summary, failure carries the error message. Exactly one of the two is set.
type Outcome struct {
	Scenario    scenarios.Scenario `json:"scenario"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
	Summary     *measure.Summary   `json:"summary,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Succeeded reports whether the scenario produced a summary.
func (o Outcome) Succeeded() bool {
	return o.Summary != nil
}

// Result is the unit of record for one scheduler invocation.
// Invariant once finished: Completed + Failed == TotalScenarios == len(Results).
type Result struct {
	BatchID        string    `json:"batchId"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
	TagFilter      []string  `json:"tagFilter,omitempty"`
	TotalScenarios int       `json:"totalScenarios"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	DurationMS     int64     `json:"durationMs"`
	Results        []Outcome `json:"results"`
}
