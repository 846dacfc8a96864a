// Package batch runs a filtered scenario list through the measurement
// runner under a bounded concurrency, isolating failures per scenario.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/measure"
	"lightkeeper/internal/scenarios"
)

// MeasureRunner is the slice of the measurement runner the scheduler needs.
type MeasureRunner interface {
	Run(ctx context.Context, opts measure.Options) (*measure.Summary, error)
}

// Options configures one scheduler invocation. Shared measurement options
// are inherited by every scenario unless the scenario overrides them.
type Options struct {
	// Concurrency bounds the number of scenarios in flight. Defaults to 1:
	// concurrent measurement sessions compete for CPU and measurably
	// distort scores, so sequential is the safe default.
	Concurrency int

	// Shared supplies the default run count, override flag, and note.
	// The URL always comes from the scenario.
	Shared measure.Options

	// TagFilter is recorded on the result; filtering itself happens in
	// scenarios.Filter before the scheduler is invoked.
	TagFilter []string
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Runner MeasureRunner
	Logger logging.Logger
	Bus    *events.Bus
}

// Scheduler admits scenarios from a FIFO queue through a fixed-size permit
// pool. Admission follows declared order; completion order is unspecified
// when Concurrency > 1.
type Scheduler struct {
	runner MeasureRunner
	logger logging.Logger
	bus    *events.Bus
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts *SchedulerOptions) *Scheduler {
	if opts == nil || opts.Runner == nil || opts.Logger == nil {
		panic("batch.SchedulerOptions with Runner and Logger is required")
	}
	return &Scheduler{runner: opts.Runner, logger: opts.Logger, bus: opts.Bus}
}

// Run executes every scenario and aggregates the batch result. A scenario
// failure is recorded as a failed outcome and never aborts its siblings.
func (s *Scheduler) Run(ctx context.Context, scens []scenarios.Scenario, opts Options) *Result {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	result := &Result{
		BatchID:        uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		TagFilter:      opts.TagFilter,
		TotalScenarios: len(scens),
		Results:        make([]Outcome, len(scens)),
	}

	s.logger.Info("Starting batch", "batch_id", result.BatchID,
		"scenarios", len(scens), "concurrency", concurrency)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		permits = make(chan struct{}, concurrency)
	)

	for i, sc := range scens {
		// Blocking acquire keeps admission strictly in queue order
		permits <- struct{}{}
		wg.Add(1)

		go func(idx int, sc scenarios.Scenario) {
			defer wg.Done()
			defer func() { <-permits }()

			outcome := s.runScenario(ctx, sc, opts.Shared)
			mu.Lock()
			result.Results[idx] = outcome
			if outcome.Succeeded() {
				result.Completed++
			} else {
				result.Failed++
			}
			mu.Unlock()

			s.notifyScenario(result.BatchID, outcome)
		}(i, sc)
	}

	wg.Wait()

	result.CompletedAt = time.Now().UTC()
	result.DurationMS = result.CompletedAt.Sub(result.StartedAt).Milliseconds()

	s.logger.Info("Batch complete", "batch_id", result.BatchID,
		"completed", result.Completed, "failed", result.Failed,
		"duration_ms", result.DurationMS)

	if s.bus != nil {
		s.bus.Publish(events.BatchCompletedEvent{
			BatchID:   result.BatchID,
			Total:     result.TotalScenarios,
			Completed: result.Completed,
			Failed:    result.Failed,
			Duration:  time.Duration(result.DurationMS * int64(time.Millisecond)).String(),
		})
	}

	return result
}

// runScenario resolves per-scenario option overrides and runs one session.
func (s *Scheduler) runScenario(ctx context.Context, sc scenarios.Scenario, shared measure.Options) Outcome {
	opts := measure.Options{
		URL:            sc.URL,
		Runs:           shared.Runs,
		Note:           shared.Note,
		ApplyOverrides: shared.ApplyOverrides,
	}
	if sc.Runs > 0 {
		opts.Runs = sc.Runs
	}
	if sc.Note != "" {
		opts.Note = sc.Note
	}
	if sc.ApplyOverrides != nil {
		opts.ApplyOverrides = *sc.ApplyOverrides
	}

	outcome := Outcome{Scenario: sc, StartedAt: time.Now().UTC()}

	s.logger.Info("Running scenario", "scenario", sc.ID, "url", sc.URL, "runs", opts.Runs)
	summary, err := s.runner.Run(ctx, opts)
	outcome.CompletedAt = time.Now().UTC()

	if err != nil {
		outcome.Error = err.Error()
		s.logger.Error("Scenario failed", "scenario", sc.ID, "error", err)
		return outcome
	}

	outcome.Summary = summary
	s.logger.Info("Scenario complete", "scenario", sc.ID, "score", summary.Averages.Score)
	return outcome
}

func (s *Scheduler) notifyScenario(batchID string, outcome Outcome) {
	if s.bus == nil {
		return
	}
	ev := events.ScenarioCompletedEvent{
		BatchID:    batchID,
		ScenarioID: outcome.Scenario.ID,
		Succeeded:  outcome.Succeeded(),
		Error:      outcome.Error,
	}
	if outcome.Summary != nil {
		ev.Score = outcome.Summary.Averages.Score
	}
	s.bus.Publish(ev)
}
