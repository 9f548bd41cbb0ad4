package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/facts"
)

var (
	factsSchemaPath string
	factsLimit      int
)

var loadFactsCmd = &cobra.Command{
	Use:   "load-facts <file>",
	Short: "Attach extracted subject-relation-object facts to the graph",
	Long: `Load facts produced by open information extraction. Each fact becomes a
FACT node linked from the lexical forms of its subject and object, to its
polarity, modality and attribution, and to the sentence it was read from.

Without --schema the file is read as
  subject,relation,object,polarity,modality,attribution,sentence,sentence_uid
with a header line.

Examples:
  litgraph load-facts triples.csv
  litgraph load-facts --schema facts.yaml --limit 100 triples.tsv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		schema := facts.DefaultSchema()
		if factsSchemaPath != "" {
			var err error
			if schema, err = facts.LoadSchema(factsSchemaPath); err != nil {
				return err
			}
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		res, err := facts.NewLoader(stack.Upserter, logger, facts.WithLimit(factsLimit)).Load(ctx, schema, f)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"rows":              res.Rows,
			"skipped":           res.Skipped,
			"facts":             res.Facts,
			"form_links":        res.FormLinks,
			"sentence_links":    res.SentenceLinks,
			"missing_sentences": res.MissingSentences,
		}).Info("Facts loaded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadFactsCmd)
	loadFactsCmd.Flags().StringVar(&factsSchemaPath, "schema", "", "YAML schema describing the columns")
	loadFactsCmd.Flags().IntVar(&factsLimit, "limit", 0, "Stop after this many rows, 0 for all")
}
