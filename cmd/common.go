// Package cmd holds the lightkeeper subcommands. Each Create*Cmd factory
// builds a self-contained cobra command that resolves its own settings
// through config.LoadConfig before running.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lightkeeper/internal/config"
	"lightkeeper/internal/engine"
	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/measure"
	"lightkeeper/internal/portprobe"
	"lightkeeper/internal/results"
	"lightkeeper/internal/scenarios"
	"lightkeeper/internal/services"
)

const (
	defaultScenarioFile = "scenarios.toml"
	defaultResultsDir   = "perf-results"
	defaultRegistryFile = ".lightkeeper-services.json"
)

// loadScenarioFile reads and validates the scenario declaration file.
func loadScenarioFile(path string) (*scenarios.File, error) {
	file, err := scenarios.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario file %s: %w", path, err)
	}
	return file, nil
}

// loadOverrideScript turns a JavaScript file into an override step that
// evaluates it on the live page. An empty path yields no override.
func loadOverrideScript(path string) (measure.OverrideFunc, error) {
	if path == "" {
		return nil, nil
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read override script: %w", err)
	}
	expr := string(script)
	return func(ctx context.Context, page engine.Page) error {
		return page.Evaluate(ctx, expr)
	}, nil
}

// newServiceManager wires a lifecycle manager around the real launcher,
// killer, and port prober.
func newServiceManager(registryPath string, readyTimeout time.Duration, bus *events.Bus, logger *slog.Logger) *services.Manager {
	return services.NewManager(&services.Options{
		Registry:     services.NewRegistry(registryPath),
		Prober:       portprobe.New(logging.GetLogger("portprobe")),
		Launcher:     services.NewLauncher(),
		Killer:       services.NewKiller(),
		Logger:       logger,
		Bus:          bus,
		ReadyTimeout: readyTimeout,
	})
}

// startServices frees the declared ports, starts every service, and waits
// for readiness. It returns a stop function that tears the services down.
// On any error the services started so far are already torn down; partial
// starts never leak processes or registry entries.
func startServices(ctx context.Context, manager *services.Manager, svcs []scenarios.Service, logger *slog.Logger) (func(), error) {
	stop := func() {
		if err := manager.StopAll(context.Background(), svcs); err != nil {
			logger.Warn("Service teardown reported errors", "error", err)
		}
	}

	if err := manager.EnsurePortsFree(ctx, svcs); err != nil {
		return nil, fmt.Errorf("failed to free declared ports: %w", err)
	}
	if err := manager.StartAll(ctx, svcs); err != nil {
		stop()
		return nil, fmt.Errorf("failed to start services: %w", err)
	}
	if !manager.WaitForServices(ctx, svcs) {
		stop()
		return nil, errors.New("services did not become ready in time")
	}
	return stop, nil
}

// newMeasureRunner wires a measurement runner around the Chrome host and
// the Lighthouse CLI engine.
func newMeasureRunner(headful bool, chromePath, overrideScript string, bus *events.Bus) (*measure.Runner, error) {
	override, err := loadOverrideScript(overrideScript)
	if err != nil {
		return nil, err
	}

	var chromeOpts []engine.ChromeOption
	if headful {
		chromeOpts = append(chromeOpts, engine.WithHeadful())
	}
	if chromePath != "" {
		chromeOpts = append(chromeOpts, engine.WithExecPath(chromePath))
	}

	return measure.NewRunner(&measure.RunnerOptions{
		Launcher: engine.NewChromeLauncher(logging.GetLogger("engine"), chromeOpts...),
		Engine:   engine.NewLighthouseCLI(logging.GetLogger("engine")),
		Override: override,
		Logger:   logging.GetLogger("measure"),
		Bus:      bus,
	}), nil
}

// loadCommandConfig applies env and TOML settings beneath explicit flags,
// logging instead of failing so a broken config file never masks a
// working command line. The config file path comes from the root command's
// persistent --config flag.
func loadCommandConfig(opts any, cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("config"); f != nil {
		if field := reflect.ValueOf(opts).Elem().FieldByName("Config"); field.IsValid() {
			field.SetString(f.Value.String())
		}
	}
	if err := config.LoadConfig(opts, cmd); err != nil {
		slog.Warn("Failed to load config", "error", err)
	}
}

func renderSummary(w io.Writer, s *measure.Summary) {
	fmt.Fprintf(w, "URL:        %s\n", s.URL)
	fmt.Fprintf(w, "Runs:       %d\n", s.Runs)
	fmt.Fprintf(w, "Timestamp:  %s\n", s.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if s.Note != "" {
		fmt.Fprintf(w, "Note:       %s\n", s.Note)
	}
	fmt.Fprintf(w, "Overrides:  %v\n", s.OverridesApplied)
	fmt.Fprintf(w, "Score:      %.1f (min %.1f, max %.1f)\n", s.Averages.Score, s.MinScore, s.MaxScore)
	fmt.Fprintf(w, "FCP:        %.1f ms\n", s.Averages.FirstContentfulPaint)
	fmt.Fprintf(w, "LCP:        %.1f ms\n", s.Averages.LargestContentfulPaint)
	fmt.Fprintf(w, "TBT:        %.1f ms\n", s.Averages.TotalBlockingTime)
	fmt.Fprintf(w, "CLS:        %.3f\n", s.Averages.CumulativeLayoutShift)
	fmt.Fprintf(w, "SI:         %.1f ms\n", s.Averages.SpeedIndex)
}

func renderComparison(w io.Writer, c *results.Comparison) {
	fmt.Fprintf(w, "Before: %s (%s)\n", c.Before.URL, c.Before.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "After:  %s (%s)\n\n", c.After.URL, c.After.Timestamp.Format("2006-01-02 15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tBEFORE\tAFTER\tDIFF\tCHANGE\t")
	for _, m := range c.Metrics {
		marker := "regressed"
		if m.Improved {
			marker = "improved"
		}
		if m.Diff == 0 {
			marker = "unchanged"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%+.2f\t%+.1f%% %s\t\n",
			m.Metric, m.Before, m.After, m.Diff, m.PercentChange, marker)
	}
	tw.Flush()
}
