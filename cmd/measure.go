package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/measure"
	"lightkeeper/internal/results"
)

// measureOptions are the settings for a one-off measurement session.
type measureOptions struct {
	Config string

	URL            string
	Runs           int `toml:"measure.runs" env:"RUNS"`
	Note           string
	ApplyOverrides bool     `toml:"measure.apply_overrides" env:"APPLY_OVERRIDES"`
	OverrideScript string   `toml:"measure.override_script" env:"OVERRIDE_SCRIPT"`
	Headful        bool     `toml:"measure.headful" env:"HEADFUL"`
	ChromePath     string   `toml:"measure.chrome_path" env:"CHROME_PATH"`
	ResultsDir     string   `toml:"results.dir" env:"RESULTS_DIR"`
	Tags           []string `toml:"measure.tags" env:"TAGS"`
}

// CreateMeasureCmd creates the measure command.
func CreateMeasureCmd() *cobra.Command {
	opts := &measureOptions{}

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Measure one URL and store the session",
		Long: `Runs the audit engine N times against a single URL, averages the ` +
			`results, prints the summary, and stores the session in the results log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			logger := logging.GetLogger("measure")
			bus := events.New()

			unsub := bus.Subscribe(func(ev events.RunCompletedEvent) {
				fmt.Fprintf(cmd.OutOrStdout(), "  run %d/%d score %.1f\n", ev.Run, ev.Total, ev.Score)
			})
			defer unsub()

			runner, err := newMeasureRunner(opts.Headful, opts.ChromePath, opts.OverrideScript, bus)
			if err != nil {
				return err
			}

			summary, err := runner.Run(cmd.Context(), measure.Options{
				URL:            opts.URL,
				Runs:           opts.Runs,
				Note:           opts.Note,
				ApplyOverrides: opts.ApplyOverrides,
			})
			if err != nil {
				return fmt.Errorf("measurement failed: %w", err)
			}

			store := results.NewStore(opts.ResultsDir, logging.GetLogger("results"))
			dir, err := store.SaveSummary(summary, opts.Tags, "")
			if err != nil {
				return err
			}
			logger.Info("Session stored", "dir", dir, "tags", strings.Join(opts.Tags, ","))

			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "URL to measure")
	cmd.Flags().IntVar(&opts.Runs, "runs", 3, "Number of audit runs to average")
	cmd.Flags().StringVar(&opts.Note, "note", "", "Free-form note stored with the session")
	cmd.Flags().BoolVar(&opts.ApplyOverrides, "apply-overrides", false, "Run the override script before auditing")
	cmd.Flags().StringVar(&opts.OverrideScript, "override-script", "", "JavaScript file evaluated on a live page before audits")
	cmd.Flags().BoolVar(&opts.Headful, "headful", false, "Run the browser with a visible window")
	cmd.Flags().StringVar(&opts.ChromePath, "chrome-path", "", "Chrome executable path (auto-detected when empty)")
	cmd.Flags().StringVar(&opts.ResultsDir, "results-dir", defaultResultsDir, "Results log root directory")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil, "Tags stored with the session")

	if err := cmd.MarkFlagRequired("url"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	return cmd
}
