package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"lightkeeper/internal/config"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/scenarios"
)

// CreateWatchCmd creates the watch command: run the filtered batch once,
// then re-run it whenever the scenario file changes.
func CreateWatchCmd() *cobra.Command {
	opts := &batchOptions{}
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the batch whenever the scenario file changes",
		Long: `Runs the filtered batch once, then watches the scenario file and ` +
			`re-runs the batch after each change settles. Interrupt to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			logger := logging.GetLogger("watch")
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if err := runBatch(ctx, out, opts); err != nil {
				logger.Warn("Initial batch reported errors", "error", err)
			}

			// Changes are queued while a batch is running so edits made
			// mid-batch are not lost.
			trigger := make(chan struct{}, 1)
			loader := func(path string) (*scenarios.File, error) {
				return loadScenarioFile(path)
			}

			watcher := config.NewWatcher(opts.Scenarios, loader, logger,
				config.WithDebounce[*scenarios.File](debounce))
			watcher.OnReload(func(*scenarios.File) {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("Watch stopped")
					return nil
				case <-trigger:
					logger.Info("Scenario file changed, re-running batch", "path", opts.Scenarios)
					if err := runBatch(ctx, out, opts); err != nil {
						logger.Warn("Batch reported errors", "error", err)
					}
				}
			}
		},
	}

	addBatchFlags(cmd, opts)
	cmd.Flags().DurationVar(&debounce, "debounce", time.Second, "How long changes must settle before a re-run")

	return cmd
}
