package main

import (
	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/ingest"
)

var (
	rangeFrom int
	rangeTo   int
)

var integrateCmd = &cobra.Command{
	Use:   "integrate",
	Short: "Push committed partitions into the graph without contacting the API",
	Long: `Push already committed partitions into the knowledge graph. Partitions
past the last committed one are ignored. Sentences are linked against
every lexical form in the graph.

Examples:
  litgraph integrate --from 0 --to 12
  litgraph integrate --from 3 --to 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		sum, err := stack.Orchestrator().Run(ctx, ingest.Options{
			IntegrateOnly: true,
			From:          rangeFrom,
			To:            rangeTo,
		})
		if err != nil {
			return err
		}
		logSummary(sum)
		return nil
	},
}

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Rederive cooccurrence and synonymy relationships",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		logSummary(stack.Orchestrator().Materialize(ctx))
		return nil
	},
}

var relinkCmd = &cobra.Command{
	Use:   "relink",
	Short: "Rebuild the lexical index and relink the sentences of a partition range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		sum, err := stack.Orchestrator().Relink(ctx, rangeFrom, rangeTo)
		if err != nil {
			return err
		}
		logSummary(sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(integrateCmd, materializeCmd, relinkCmd)
	for _, c := range []*cobra.Command{integrateCmd, relinkCmd} {
		c.Flags().IntVar(&rangeFrom, "from", 0, "First partition")
		c.Flags().IntVar(&rangeTo, "to", 0, "Last partition, inclusive")
		_ = c.MarkFlagRequired("to")
	}
}
