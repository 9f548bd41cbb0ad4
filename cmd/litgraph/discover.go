package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/ingest"
)

var (
	discoverMaxRefs int
	discoverMaxCits int
)

var discoverCmd = &cobra.Command{
	Use:   "discover [doi...]",
	Short: "Expand the frontier around seed DOIs and integrate the new partition",
	Long: `Expand the frontier around seed DOIs, fetch metadata for every
publication not yet in the table, commit them as a new partition and
integrate that partition into the graph. Sentences are linked against
every lexical form in the graph.

Without arguments the seeds are read from the DOI worklist.

Examples:
  litgraph discover 10.1038/nature12373
  litgraph discover --max-refs 20 --max-cits 20`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverMaxRefs, "max-refs", 0, "References kept per seed, -1 for all (default MAX_REFS_PER_PUB)")
	discoverCmd.Flags().IntVar(&discoverMaxCits, "max-cits", 0, "Citations kept per seed, -1 for all (default MAX_CITS_PER_PUB)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stack, closeAll, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	seeds := args
	if len(seeds) == 0 {
		wl, err := stack.Worklist()
		if err != nil {
			return err
		}
		seeds, err = wl.All(ctx)
		wl.Close()
		if err != nil {
			return err
		}
	}
	if len(seeds) == 0 {
		return fmt.Errorf("no seeds given and the worklist is empty")
	}

	opts := ingest.Options{
		Seeds:         seeds,
		MaxRefsPerPub: stack.Config.MaxRefsPerPub,
		MaxCitsPerPub: stack.Config.MaxCitsPerPub,
	}
	if cmd.Flags().Changed("max-refs") {
		opts.MaxRefsPerPub = discoverMaxRefs
	}
	if cmd.Flags().Changed("max-cits") {
		opts.MaxCitsPerPub = discoverMaxCits
	}

	sum, err := stack.Orchestrator().Run(ctx, opts)
	if err != nil {
		return err
	}
	logSummary(sum)
	return nil
}
