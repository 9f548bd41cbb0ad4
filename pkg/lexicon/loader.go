package lexicon

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/graph"
)

// Entity properties written by the loader.
const (
	PropSource     = "source"
	PropIdentifier = "identifier"
)

// Result counts what one load touched.
type Result struct {
	Rows          int
	Skipped       int
	Entities      int
	LexicalForms  int
	Relationships int
}

// Loader turns lexicon rows into named entities and their lexical forms.
type Loader struct {
	upserter *graph.Upserter
	logger   logrus.FieldLogger
}

// NewLoader creates a Loader writing through upserter.
func NewLoader(upserter *graph.Upserter, logger logrus.FieldLogger) *Loader {
	return &Loader{upserter: upserter, logger: logger}
}

// Load reads r according to schema. A row whose entity cannot be written is
// logged and skipped; only a malformed file stops the load.
func (l *Loader) Load(ctx context.Context, schema *Schema, r io.Reader) (*Result, error) {
	if schema.comma == 0 {
		if err := schema.Validate(); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(r)
	reader.Comma = schema.comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	res := &Result{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading lexicon line %d: %w", line+1, err)
		}
		line++
		if line == 1 && schema.SkipHeader {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rows++
		l.loadRow(ctx, schema, record, line, res)
	}

	l.logger.WithFields(logrus.Fields{
		"source":        schema.Source,
		"rows":          res.Rows,
		"skipped":       res.Skipped,
		"entities":      res.Entities,
		"lexical_forms": res.LexicalForms,
	}).Info("Lexicon loaded")
	return res, nil
}

func cell(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (l *Loader) loadRow(ctx context.Context, schema *Schema, record []string, line int, res *Result) {
	id := cell(record, schema.uidIdx)
	if id == "" {
		l.logger.WithField("line", line).Warn("Lexicon row has no identifier, skipping")
		res.Skipped++
		return
	}

	entity := l.upserter.UpsertNode(ctx, graph.LabelNamedEntity, schema.Source+"/"+id)
	if entity == nil {
		res.Skipped++
		return
	}
	res.Entities++
	l.upserter.SetProperty(ctx, entity, PropSource, schema.Source)
	l.upserter.SetProperty(ctx, entity, PropIdentifier, id)
	if schema.SecondaryLabel != "" {
		l.upserter.AddLabel(ctx, entity, schema.SecondaryLabel)
	}

	for _, idx := range schema.formIdx {
		for _, form := range strings.Split(cell(record, idx), schema.ValueSeparator) {
			form = strings.TrimSpace(form)
			if form == "" {
				continue
			}
			lf := l.upserter.UpsertNode(ctx, graph.LabelLexicalForm, form)
			if lf == nil {
				continue
			}
			if _, seen := lf.Props[graph.PropInitialized]; !seen {
				l.upserter.SetProperty(ctx, lf, graph.PropInitialized, false)
				res.LexicalForms++
			}
			if l.upserter.UpsertRelationship(ctx, entity, lf, graph.RelHasLexicalForm) != nil {
				res.Relationships++
			}
		}
	}
}
