package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lightkeeper/internal/events"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/scenarios"
	"lightkeeper/internal/services"
)

// servicesOptions are the settings shared by the services subcommands.
type servicesOptions struct {
	Config string

	Scenarios    string        `toml:"batch.scenario_file" env:"SCENARIO_FILE"`
	Registry     string        `toml:"services.registry_file" env:"REGISTRY_FILE"`
	ReadyTimeout time.Duration `toml:"services.ready_timeout" env:"READY_TIMEOUT"`
}

// CreateServicesCmd creates the services command group.
func CreateServicesCmd() *cobra.Command {
	opts := &servicesOptions{}

	cmd := &cobra.Command{
		Use:   "services",
		Short: "Manage declared dev services",
	}

	cmd.PersistentFlags().StringVar(&opts.Scenarios, "scenarios", defaultScenarioFile, "Scenario declaration file")
	cmd.PersistentFlags().StringVar(&opts.Registry, "registry", defaultRegistryFile, "Tracked process registry file")
	cmd.PersistentFlags().DurationVar(&opts.ReadyTimeout, "ready-timeout", 2*time.Minute, "Per-port readiness wait")

	cmd.AddCommand(createServicesStartCmd(opts))
	cmd.AddCommand(createServicesStopCmd(opts))
	cmd.AddCommand(createServicesStatusCmd(opts))
	return cmd
}

func createServicesStartCmd(opts *servicesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start all declared services and wait for their ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			file, manager, err := servicesSetup(opts)
			if err != nil {
				return err
			}
			// Services stay up after a successful start, so the stop
			// function is dropped here.
			if _, err := startServices(cmd.Context(), manager, file.Services, logging.GetLogger("services")); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d services running\n", len(file.Services))
			return nil
		},
	}
}

func createServicesStopCmd(opts *servicesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop tracked services and free their ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			file, manager, err := servicesSetup(opts)
			if err != nil {
				return err
			}

			if err := manager.StopAll(cmd.Context(), file.Services); err != nil {
				return fmt.Errorf("teardown incomplete: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all services stopped")
			return nil
		},
	}
}

func createServicesStatusCmd(opts *servicesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each declared service's current state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			file, manager, err := servicesSetup(opts)
			if err != nil {
				return err
			}

			for _, st := range manager.Status(cmd.Context(), file.Services) {
				line := fmt.Sprintf("%-20s port %-6d %s", st.Service.Name, st.Service.Port, st.State)
				if st.PID > 0 {
					line += fmt.Sprintf(" (pid %d)", st.PID)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func servicesSetup(opts *servicesOptions) (*scenarios.File, *services.Manager, error) {
	file, err := loadScenarioFile(opts.Scenarios)
	if err != nil {
		return nil, nil, err
	}
	if len(file.Services) == 0 {
		return nil, nil, fmt.Errorf("no services declared in %s", opts.Scenarios)
	}
	manager := newServiceManager(opts.Registry, opts.ReadyTimeout, events.New(), logging.GetLogger("services"))
	return file, manager, nil
}
