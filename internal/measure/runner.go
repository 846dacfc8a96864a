// Package measure drives the external audit engine N times against one URL
// and reduces the raw samples into an averaged summary.
package measure

import (
	"context"
	"fmt"
	"time"

	"lightkeeper/internal/engine"
	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
)

// Pacing gap between consecutive runs, not applied before the first or
// after the last. Back-to-back audits measurably skew results under
// transient load.
const defaultPace = 2 * time.Second

// OverrideFunc is an optional caller-supplied side effect applied to a live
// page before audits run (cookie seeding, local-storage toggles, etc.).
// Absence is a legitimate, logged, non-error state.
type OverrideFunc func(ctx context.Context, page engine.Page) error

// Options describes one measurement session.
type Options struct {
	URL            string
	Runs           int
	Note           string
	ApplyOverrides bool
}

// RunnerOptions configures a Runner. Launcher, Engine, and Logger are
// required.
type RunnerOptions struct {
	Launcher engine.Launcher
	Engine   engine.Engine
	Override OverrideFunc
	Logger   logging.Logger
	Bus      *events.Bus

	// Pace overrides the gap between runs; used by tests.
	Pace time.Duration
}

// Runner executes measurement sessions.
type Runner struct {
	launcher engine.Launcher
	engine   engine.Engine
	override OverrideFunc
	logger   logging.Logger
	bus      *events.Bus
	pace     time.Duration
}

// NewRunner creates a Runner.
func NewRunner(opts *RunnerOptions) *Runner {
	if opts == nil || opts.Launcher == nil || opts.Engine == nil || opts.Logger == nil {
		panic("measure.RunnerOptions with Launcher, Engine, and Logger is required")
	}
	pace := opts.Pace
	if pace == 0 {
		pace = defaultPace
	}
	return &Runner{
		launcher: opts.Launcher,
		engine:   opts.Engine,
		override: opts.Override,
		logger:   opts.Logger,
		bus:      opts.Bus,
		pace:     pace,
	}
}

// Run acquires a host, optionally applies the override step, executes the
// audit exactly opts.Runs times sequentially, and reduces the samples.
// The host is always released, including when a step fails; the error then
// propagates after cleanup.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	host, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire measurement host: %w", err)
	}
	defer host.Close()

	if opts.ApplyOverrides {
		r.applyOverrides(ctx, host, opts.URL)
	}

	samples := make([]Metrics, 0, opts.Runs)
	for i := 0; i < opts.Runs; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.pace):
			}
		}

		r.logger.Info("Running audit", "url", opts.URL, "run", i+1, "total", opts.Runs)
		report, auditErr := r.engine.Audit(ctx, opts.URL, host)
		if auditErr != nil {
			return nil, fmt.Errorf("run %d of %d: %w", i+1, opts.Runs, auditErr)
		}

		m := fromReport(report)
		samples = append(samples, m)
		r.logger.Info("Audit complete", "url", opts.URL, "run", i+1, "score", m.Score)

		if r.bus != nil {
			r.bus.Publish(events.RunCompletedEvent{URL: opts.URL, Run: i + 1, Total: opts.Runs, Score: m.Score})
		}
	}

	avg, minScore, maxScore, raw := reduce(samples)

	return &Summary{
		URL:              opts.URL,
		Runs:             opts.Runs,
		Timestamp:        time.Now().UTC(),
		OverridesApplied: opts.ApplyOverrides && r.override != nil,
		Note:             opts.Note,
		Averages:         avg,
		MinScore:         minScore,
		MaxScore:         maxScore,
		RawScores:        raw,
	}, nil
}

// applyOverrides runs the optional override step on an auxiliary page.
// Override failures are reported but never abort the session.
func (r *Runner) applyOverrides(ctx context.Context, host engine.Host, url string) {
	if r.override == nil {
		r.logger.Info("Overrides requested but none configured, skipping", "url", url)
		return
	}

	page, err := host.NewPage(ctx)
	if err != nil {
		r.logger.Warn("Failed to open override page", "url", url, "error", err)
		return
	}
	defer page.Close()

	if err := page.Navigate(ctx, url); err != nil {
		r.logger.Warn("Failed to navigate override page", "url", url, "error", err)
		return
	}
	if err := r.override(ctx, page); err != nil {
		r.logger.Warn("Override step failed, continuing without it", "url", url, "error", err)
		return
	}
	r.logger.Info("Overrides applied", "url", url)
}
