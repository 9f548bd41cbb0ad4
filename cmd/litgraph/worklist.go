package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/config"
	"github.com/athapong/litgraph/pkg/worklist"
	"github.com/athapong/litgraph/services"
)

var worklistSampled bool

var worklistCmd = &cobra.Command{
	Use:   "worklist",
	Short: "Manage the DOI worklist used as default seeds",
}

var worklistAddCmd = &cobra.Command{
	Use:   "add <doi>...",
	Short: "Add DOIs to the worklist; known DOIs are ignored",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wl, err := openWorklist()
		if err != nil {
			return err
		}
		defer wl.Close()

		source := worklist.ManuallyAdded
		if worklistSampled {
			source = worklist.RandomlySampled
		}
		added, err := wl.Add(cmd.Context(), source, args...)
		if err != nil {
			return err
		}
		logger.WithField("added", added).Info("Worklist updated")
		return nil
	},
}

var worklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every DOI in the worklist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wl, err := openWorklist()
		if err != nil {
			return err
		}
		defer wl.Close()

		dois, err := wl.All(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range dois {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

// openWorklist needs only the configuration, not the graph or table backends.
func openWorklist() (*worklist.Worklist, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	return services.OpenWorklist(cfg)
}

func init() {
	rootCmd.AddCommand(worklistCmd)
	worklistCmd.AddCommand(worklistAddCmd, worklistListCmd)
	worklistAddCmd.Flags().BoolVar(&worklistSampled, "sampled", false, "Mark the DOIs as randomly sampled instead of manually added")
}
