package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tablePurge bool

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Inspect or drop the publication table",
}

var tableStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the resumable state of the publication table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		if err := stack.Publications.LoadState(ctx); err != nil {
			return err
		}
		st := stack.Publications.State()
		fmt.Fprintf(cmd.OutOrStdout(), "location:       %s\n", stack.Publications.Location())
		fmt.Fprintf(cmd.OutOrStdout(), "table exists:   %t\n", st.TableExists)
		fmt.Fprintf(cmd.OutOrStdout(), "last partition: %d\n", st.LastPartition)
		fmt.Fprintf(cmd.OutOrStdout(), "max row id:     %d\n", st.MaxRowID)
		fmt.Fprintf(cmd.OutOrStdout(), "known DOIs:     %d\n", st.KnownCount)
		return nil
	},
}

var tableDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the publication table definition",
	Long: `Drop the publication table definition. Partition objects are kept unless
--purge is given, so a later run can rebuild the table from them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		if err := stack.Publications.Drop(ctx, tablePurge); err != nil {
			return err
		}
		logger.WithField("purge", tablePurge).Info("Publication table dropped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableStateCmd, tableDropCmd)
	tableDropCmd.Flags().BoolVar(&tablePurge, "purge", false, "Also delete every partition object")
}
