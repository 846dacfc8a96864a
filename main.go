package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lightkeeper/cmd"
	"lightkeeper/internal/config"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/version"
)

// Options are the root-level settings shared by every subcommand.
type Options struct {
	Config string `help:"Path to configuration file"`

	LoggingLevel    string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingServices string `toml:"logging.services" env:"LOGGING_SERVICES"`
	LoggingMeasure  string `toml:"logging.measure" env:"LOGGING_MEASURE"`
	LoggingBatch    string `toml:"logging.batch" env:"LOGGING_BATCH"`
	LoggingResults  string `toml:"logging.results" env:"LOGGING_RESULTS"`
	LoggingEngine   string `toml:"logging.engine" env:"LOGGING_ENGINE"`
}

func newRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "lightkeeper",
		Short: "Web performance measurement orchestrator",
		Long: `lightkeeper runs repeated, comparable browser performance audits ` +
			`against named scenarios, manages the dev services those pages need, ` +
			`and appends every measurement to a multi-index result log.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(c *cobra.Command, _ []string) {
			if err := config.LoadConfig(opts, c); err != nil {
				slog.Warn("Failed to load config", "error", err)
			}

			// The config file may set levels for modules that have no
			// dedicated flag; those apply as-is. Flag-backed fields win
			// because LoadConfig already resolved their precedence.
			cfg := config.LoadLoggingConfig(opts.Config)
			cfg.Level = opts.LoggingLevel
			cfg.Format = opts.LoggingFormat
			cfg.Modules["services"] = opts.LoggingServices
			cfg.Modules["measure"] = opts.LoggingMeasure
			cfg.Modules["batch"] = opts.LoggingBatch
			cfg.Modules["results"] = opts.LoggingResults
			cfg.Modules["engine"] = opts.LoggingEngine
			logging.Initialize(cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.Config, "config", "config.toml", "Path to configuration file")
	pf.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	pf.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
	pf.StringVar(&opts.LoggingServices, "logging-services", "info", "Service manager logging level")
	pf.StringVar(&opts.LoggingMeasure, "logging-measure", "info", "Measurement runner logging level")
	pf.StringVar(&opts.LoggingBatch, "logging-batch", "info", "Batch scheduler logging level")
	pf.StringVar(&opts.LoggingResults, "logging-results", "info", "Results store logging level")
	pf.StringVar(&opts.LoggingEngine, "logging-engine", "info", "Audit engine logging level")

	root.AddCommand(cmd.CreateMeasureCmd())
	root.AddCommand(cmd.CreateBatchCmd())
	root.AddCommand(cmd.CreateServicesCmd())
	root.AddCommand(cmd.CreateResultsCmd())
	root.AddCommand(cmd.CreateWatchCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		logging.GetLogger("main").Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
