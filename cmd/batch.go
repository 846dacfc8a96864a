package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"lightkeeper/internal/batch"
	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/measure"
	"lightkeeper/internal/results"
	"lightkeeper/internal/scenarios"
)

// batchOptions are the settings for running a filtered scenario batch.
type batchOptions struct {
	Config string

	Scenarios      string   `toml:"batch.scenario_file" env:"SCENARIO_FILE"`
	Tags           []string `toml:"batch.tags" env:"TAGS"`
	Only           string
	Concurrency    int `toml:"batch.concurrency" env:"CONCURRENCY"`
	Runs           int `toml:"measure.runs" env:"RUNS"`
	Note           string
	ApplyOverrides bool          `toml:"measure.apply_overrides" env:"APPLY_OVERRIDES"`
	OverrideScript string        `toml:"measure.override_script" env:"OVERRIDE_SCRIPT"`
	Headful        bool          `toml:"measure.headful" env:"HEADFUL"`
	ChromePath     string        `toml:"measure.chrome_path" env:"CHROME_PATH"`
	ResultsDir     string        `toml:"results.dir" env:"RESULTS_DIR"`
	Services       bool          `toml:"batch.services" env:"SERVICES"`
	Registry       string        `toml:"services.registry_file" env:"REGISTRY_FILE"`
	ReadyTimeout   time.Duration `toml:"services.ready_timeout" env:"READY_TIMEOUT"`
}

// CreateBatchCmd creates the batch command.
func CreateBatchCmd() *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the declared scenarios as a batch",
		Long: `Loads the scenario file, filters by tags or a single id, runs each ` +
			`scenario through the measurement runner under the concurrency bound, and ` +
			`stores every successful session plus the batch report. With --services, ` +
			`declared dev services are started first and torn down afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			return runBatch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addBatchFlags(cmd, opts)
	return cmd
}

func addBatchFlags(cmd *cobra.Command, opts *batchOptions) {
	cmd.Flags().StringVar(&opts.Scenarios, "scenarios", defaultScenarioFile, "Scenario declaration file")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil, "Only run scenarios carrying all of these tags")
	cmd.Flags().StringVar(&opts.Only, "only", "", "Run a single scenario by id")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 1, "Scenarios measured in parallel")
	cmd.Flags().IntVar(&opts.Runs, "runs", 3, "Default audit runs per scenario")
	cmd.Flags().StringVar(&opts.Note, "note", "", "Note stored with every session in the batch")
	cmd.Flags().BoolVar(&opts.ApplyOverrides, "apply-overrides", false, "Default override behavior for scenarios that do not set their own")
	cmd.Flags().StringVar(&opts.OverrideScript, "override-script", "", "JavaScript file evaluated on a live page before audits")
	cmd.Flags().BoolVar(&opts.Headful, "headful", false, "Run the browser with a visible window")
	cmd.Flags().StringVar(&opts.ChromePath, "chrome-path", "", "Chrome executable path (auto-detected when empty)")
	cmd.Flags().StringVar(&opts.ResultsDir, "results-dir", defaultResultsDir, "Results log root directory")
	cmd.Flags().BoolVar(&opts.Services, "services", false, "Start declared services first and tear them down afterwards")
	cmd.Flags().StringVar(&opts.Registry, "registry", defaultRegistryFile, "Tracked process registry file")
	cmd.Flags().DurationVar(&opts.ReadyTimeout, "ready-timeout", 2*time.Minute, "Per-port readiness wait when starting services")
}

// runBatch executes one filtered batch, including the optional service
// lifecycle around it. Shared by batch and watch.
func runBatch(ctx context.Context, out io.Writer, opts *batchOptions) error {
	logger := logging.GetLogger("batch")
	bus := events.New()

	// Progress annotation goes to stdout; structured logs stay on stderr.
	unsub := bus.Subscribe(func(ev events.RunCompletedEvent) {
		fmt.Fprintf(out, "  run %d/%d %-40s score %.1f\n", ev.Run, ev.Total, ev.URL, ev.Score)
	})
	defer unsub()

	file, err := loadScenarioFile(opts.Scenarios)
	if err != nil {
		return err
	}

	selected := scenarios.Filter(file.Scenarios, opts.Tags, opts.Only)
	if len(selected) == 0 {
		if opts.Only != "" {
			return fmt.Errorf("scenario %q not found or not enabled", opts.Only)
		}
		logger.Warn("No scenarios matched the filter", "tags", opts.Tags)
		return nil
	}

	if opts.Services {
		manager := newServiceManager(opts.Registry, opts.ReadyTimeout, bus, logging.GetLogger("services"))
		stop, err := startServices(ctx, manager, file.Services, logging.GetLogger("services"))
		if err != nil {
			return err
		}
		defer stop()
	}

	runner, err := newMeasureRunner(opts.Headful, opts.ChromePath, opts.OverrideScript, bus)
	if err != nil {
		return err
	}

	scheduler := batch.NewScheduler(&batch.SchedulerOptions{
		Runner: runner,
		Logger: logger,
		Bus:    bus,
	})

	result := scheduler.Run(ctx, selected, batch.Options{
		Concurrency: opts.Concurrency,
		Shared: measure.Options{
			Runs:           opts.Runs,
			Note:           opts.Note,
			ApplyOverrides: opts.ApplyOverrides,
		},
		TagFilter: opts.Tags,
	})

	store := results.NewStore(opts.ResultsDir, logging.GetLogger("results"))
	for i := range result.Results {
		outcome := &result.Results[i]
		if !outcome.Succeeded() {
			continue
		}
		sc := outcome.Scenario
		if _, saveErr := store.SaveSummary(outcome.Summary, sc.Tags, sc.ID); saveErr != nil {
			logger.Error("Failed to store session", "scenario", sc.ID, "error", saveErr)
		}
	}
	if err := store.SaveBatch(result); err != nil {
		logger.Error("Failed to store batch report", "batch_id", result.BatchID, "error", err)
	}

	renderBatch(out, result)

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.Failed, result.TotalScenarios)
	}
	return nil
}

func renderBatch(w io.Writer, r *batch.Result) {
	fmt.Fprintf(w, "Batch %s: %d scenarios, %d completed, %d failed (%.1fs)\n",
		r.BatchID, r.TotalScenarios, r.Completed, r.Failed, float64(r.DurationMS)/1000)

	for i := range r.Results {
		outcome := &r.Results[i]
		switch {
		case outcome.Succeeded():
			fmt.Fprintf(w, "  ok   %-24s score %.1f\n", outcome.Scenario.ID, outcome.Summary.Averages.Score)
		default:
			fmt.Fprintf(w, "  FAIL %-24s %s\n", outcome.Scenario.ID, outcome.Error)
		}
	}
}
