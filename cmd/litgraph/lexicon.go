package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/lexicon"
)

var lexiconNoLink bool

var loadLexiconCmd = &cobra.Command{
	Use:   "load-lexicon <schema.yaml> <file>",
	Short: "Load named entities and their lexical forms from a delimited file",
	Long: `Load named entities and their lexical forms from a delimited file whose
layout is described by a YAML schema.

Example schema:
  source: plant_ontology
  delimiter: "\t"
  skip_header: true
  columns: [id, name, synonyms]
  uid_field: id
  lexical_form_fields: [name, synonyms]
  secondary_label: TRAIT

After loading, the new lexical forms are linked to every sentence already
in the graph unless --no-link is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		schema, err := lexicon.LoadSchema(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		stack, closeAll, err := openStack(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		res, err := lexicon.NewLoader(stack.Upserter, logger).Load(ctx, schema, f)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"rows":          res.Rows,
			"skipped":       res.Skipped,
			"entities":      res.Entities,
			"lexical_forms": res.LexicalForms,
			"relationships": res.Relationships,
		}).Info("Lexicon loaded")

		if lexiconNoLink {
			return nil
		}
		sum, err := stack.Orchestrator().LinkNewForms(ctx)
		if err != nil {
			return err
		}
		logSummary(sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadLexiconCmd)
	loadLexiconCmd.Flags().BoolVar(&lexiconNoLink, "no-link", false, "Skip linking the new lexical forms to existing sentences")
}
