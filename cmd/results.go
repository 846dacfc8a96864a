package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lightkeeper/internal/logging"
	"lightkeeper/internal/results"
)

// resultsOptions are the settings shared by the results subcommands.
type resultsOptions struct {
	Config string

	ResultsDir string `toml:"results.dir" env:"RESULTS_DIR"`
}

// CreateResultsCmd creates the results command group.
func CreateResultsCmd() *cobra.Command {
	opts := &resultsOptions{}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect stored measurement sessions",
	}

	cmd.PersistentFlags().StringVar(&opts.ResultsDir, "results-dir", defaultResultsDir, "Results log root directory")

	cmd.AddCommand(createResultsListCmd(opts))
	cmd.AddCommand(createResultsShowCmd(opts))
	cmd.AddCommand(createResultsLastCmd(opts))
	cmd.AddCommand(createResultsCompareCmd(opts))
	return cmd
}

func resultsStore(opts *resultsOptions) *results.Store {
	return results.NewStore(opts.ResultsDir, logging.GetLogger("results"))
}

func createResultsListCmd(opts *resultsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			sessions, err := resultsStore(opts).List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintln(cmd.OutOrStdout(), s.Name)
			}
			return nil
		},
	}
}

func createResultsShowCmd(opts *resultsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Render one stored session by name or path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadCommandConfig(opts, cmd)
			summary, err := resultsStore(opts).Load(args[0])
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func createResultsLastCmd(opts *resultsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Render the most recent session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadCommandConfig(opts, cmd)
			store := resultsStore(opts)

			latest, err := store.Latest()
			if err != nil {
				if errors.Is(err, results.ErrNoSessions) {
					return fmt.Errorf("no sessions recorded under %s", store.Root())
				}
				return err
			}

			summary, err := store.Load(latest.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session:    %s\n", latest.Name)
			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func createResultsCompareCmd(opts *resultsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <before> <after>",
		Short: "Compare two stored sessions metric by metric",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadCommandConfig(opts, cmd)
			comparison, err := resultsStore(opts).CompareByID(args[0], args[1])
			if err != nil {
				return err
			}
			renderComparison(cmd.OutOrStdout(), comparison)
			return nil
		},
	}
}
