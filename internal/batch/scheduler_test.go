package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lightkeeper/internal/measure"
	"lightkeeper/internal/scenarios"
)

func schedulerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner succeeds for every URL unless the URL contains "fail". It
// tracks admission order and the high-water mark of concurrent sessions.
type fakeRunner struct {
	mu        sync.Mutex
	order     []string
	inFlight  int32
	highWater int32
	delay     time.Duration
}

func (r *fakeRunner) Run(_ context.Context, opts measure.Options) (*measure.Summary, error) {
	cur := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		high := atomic.LoadInt32(&r.highWater)
		if cur <= high || atomic.CompareAndSwapInt32(&r.highWater, high, cur) {
			break
		}
	}

	r.mu.Lock()
	r.order = append(r.order, opts.URL)
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if strings.Contains(opts.URL, "fail") {
		return nil, errors.New("audit engine exploded")
	}
	return &measure.Summary{
		URL:       opts.URL,
		Runs:      opts.Runs,
		Timestamp: time.Now().UTC(),
		Averages:  measure.Metrics{Score: 90},
		RawScores: []float64{90},
	}, nil
}

func newTestScheduler(r MeasureRunner) *Scheduler {
	return NewScheduler(&SchedulerOptions{Runner: r, Logger: schedulerTestLogger()})
}

func makeScenarios(n int) []scenarios.Scenario {
	scens := make([]scenarios.Scenario, n)
	for i := range scens {
		scens[i] = scenarios.Scenario{
			ID:  fmt.Sprintf("s%d", i),
			URL: fmt.Sprintf("http://localhost:3000/%d", i),
		}
	}
	return scens
}

func TestRunSequentialPreservesOrder(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := newTestScheduler(runner)
	scens := makeScenarios(5)

	result := scheduler.Run(context.Background(), scens, Options{Shared: measure.Options{Runs: 3}})

	if result.Completed != 5 || result.Failed != 0 {
		t.Errorf("counters = %d/%d, want 5/0", result.Completed, result.Failed)
	}
	for i, url := range runner.order {
		if url != scens[i].URL {
			t.Fatalf("sequential order violated at %d: %v", i, runner.order)
		}
	}
	if runner.highWater != 1 {
		t.Errorf("sequential batch reached concurrency %d", runner.highWater)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	scheduler := newTestScheduler(runner)

	result := scheduler.Run(context.Background(), makeScenarios(8), Options{
		Concurrency: 3,
		Shared:      measure.Options{Runs: 1},
	})

	if result.Completed != 8 {
		t.Errorf("completed = %d, want 8", result.Completed)
	}
	if runner.highWater > 3 {
		t.Errorf("concurrency bound exceeded: %d", runner.highWater)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := newTestScheduler(runner)
	scens := []scenarios.Scenario{
		{ID: "ok1", URL: "http://localhost:3000/a"},
		{ID: "bad", URL: "http://localhost:3000/fail"},
		{ID: "ok2", URL: "http://localhost:3000/b"},
	}

	result := scheduler.Run(context.Background(), scens, Options{Shared: measure.Options{Runs: 1}})

	if result.Completed != 2 || result.Failed != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", result.Completed, result.Failed)
	}
	bad := result.Results[1]
	if bad.Succeeded() {
		t.Fatal("expected failed outcome for the bad scenario")
	}
	if bad.Error != "audit engine exploded" {
		t.Errorf("failed outcome carries %q", bad.Error)
	}
	if !result.Results[2].Succeeded() {
		t.Error("scenario after the failure must still run to completion")
	}
}

func TestRunCountersInvariant(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := newTestScheduler(runner)
	scens := []scenarios.Scenario{
		{ID: "a", URL: "http://x/fail"},
		{ID: "b", URL: "http://x/ok"},
	}

	result := scheduler.Run(context.Background(), scens, Options{Shared: measure.Options{Runs: 1}})
	if result.Completed+result.Failed != result.TotalScenarios ||
		result.TotalScenarios != len(result.Results) {
		t.Errorf("invariant violated: %d + %d != %d (len %d)",
			result.Completed, result.Failed, result.TotalScenarios, len(result.Results))
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("completedAt precedes startedAt")
	}
}

func TestRunPerScenarioOverrides(t *testing.T) {
	var got []measure.Options
	var mu sync.Mutex
	runner := runnerFunc(func(_ context.Context, opts measure.Options) (*measure.Summary, error) {
		mu.Lock()
		got = append(got, opts)
		mu.Unlock()
		return &measure.Summary{URL: opts.URL, RawScores: []float64{}}, nil
	})
	scheduler := newTestScheduler(runner)

	yes := true
	scens := []scenarios.Scenario{
		{ID: "default", URL: "http://x/a"},
		{ID: "custom", URL: "http://x/b", Runs: 7, ApplyOverrides: &yes, Note: "warm cache"},
	}
	scheduler.Run(context.Background(), scens, Options{
		Shared: measure.Options{Runs: 3, Note: "nightly sweep"},
	})

	if got[0].Runs != 3 || got[0].ApplyOverrides {
		t.Errorf("default scenario options %+v", got[0])
	}
	if got[0].Note != "nightly sweep" {
		t.Errorf("scenario without a note must inherit the batch note, got %q", got[0].Note)
	}
	if got[1].Runs != 7 || !got[1].ApplyOverrides || got[1].Note != "warm cache" {
		t.Errorf("custom scenario options %+v", got[1])
	}
}

func TestRunEmptyScenarioList(t *testing.T) {
	scheduler := newTestScheduler(&fakeRunner{})
	result := scheduler.Run(context.Background(), nil, Options{})
	if result.TotalScenarios != 0 || len(result.Results) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.BatchID == "" {
		t.Error("batch id must always be assigned")
	}
}

// runnerFunc adapts a function to MeasureRunner.
type runnerFunc func(ctx context.Context, opts measure.Options) (*measure.Summary, error)

func (f runnerFunc) Run(ctx context.Context, opts measure.Options) (*measure.Summary, error) {
	return f(ctx, opts)
}
