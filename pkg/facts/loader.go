package facts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/graph"
)

// Fact node properties.
const (
	PropSubject     = "subject"
	PropRelation    = "relation"
	PropObject      = "object"
	PropPolarity    = "polarity"
	PropModality    = "modality"
	PropAttribution = "attribution"
	PropSource      = "source"
)

var (
	polarities = mapset.NewSet("POSITIVE", "NEGATIVE")
	modalities = mapset.NewSet("CERTAINTY", "POSSIBILITY")
)

// Result counts what one load touched.
type Result struct {
	Rows             int
	Skipped          int
	Facts            int
	FormLinks        int
	SentenceLinks    int
	MissingSentences int
}

// Loader attaches extracted subject-relation-object facts to the lexical
// forms and sentences already in the graph.
type Loader struct {
	upserter *graph.Upserter
	logger   logrus.FieldLogger
	limit    int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLimit stops the load after n rows. Zero or less reads everything.
func WithLimit(n int) Option {
	return func(l *Loader) {
		l.limit = n
	}
}

// NewLoader creates a Loader writing through upserter.
func NewLoader(upserter *graph.Upserter, logger logrus.FieldLogger, opts ...Option) *Loader {
	l := &Loader{upserter: upserter, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads r according to schema. A row that cannot be written is logged
// and skipped; only a malformed file stops the load.
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
	for l.limit <= 0 || res.Rows < l.limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading facts line %d: %w", line+1, err)
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
		"source":            schema.Source,
		"rows":              res.Rows,
		"skipped":           res.Skipped,
		"facts":             res.Facts,
		"form_links":        res.FormLinks,
		"sentence_links":    res.SentenceLinks,
		"missing_sentences": res.MissingSentences,
	}).Info("Facts loaded")
	return res, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// category upper-cases v and checks it against allowed. Empty is accepted.
func category(v string, allowed mapset.Set[string]) (string, bool) {
	v = strings.ToUpper(v)
	return v, v == "" || allowed.Contains(v)
}

func (l *Loader) loadRow(ctx context.Context, schema *Schema, record []string, line int, res *Result) {
	log := l.logger.WithField("line", line)
	subject := cell(record, schema.subjectIdx)
	relation := cell(record, schema.relationIdx)
	object := cell(record, schema.objectIdx)
	if subject == "" || relation == "" || object == "" {
		log.Warn("Fact row lacks subject, relation or object, skipping")
		res.Skipped++
		return
	}
	polarity, ok := category(cell(record, schema.polarityIdx), polarities)
	if !ok {
		log.WithField("polarity", polarity).Warn("Unknown polarity, skipping")
		res.Skipped++
		return
	}
	modality, ok := category(cell(record, schema.modalityIdx), modalities)
	if !ok {
		log.WithField("modality", modality).Warn("Unknown modality, skipping")
		res.Skipped++
		return
	}
	attribution := cell(record, schema.attributionIdx)

	subj := l.upserter.FindNodeFold(ctx, graph.LabelLexicalForm, subject)
	obj := l.upserter.FindNodeFold(ctx, graph.LabelLexicalForm, object)
	if subj != nil && obj != nil && subj.UID == obj.UID {
		log.WithField("form", subj.UID).Debug("Subject and object are the same lexical form, skipping")
		res.Skipped++
		return
	}

	fact := l.upserter.UpsertNode(ctx, graph.LabelFact, subject+"/"+relation+"/"+object)
	if fact == nil {
		res.Skipped++
		return
	}
	res.Facts++
	props := []struct {
		key   string
		value string
	}{
		{PropSubject, subject},
		{PropRelation, relation},
		{PropObject, object},
		{PropPolarity, polarity},
		{PropModality, modality},
		{PropAttribution, attribution},
		{PropSource, schema.Source},
	}
	for _, p := range props {
		l.upserter.SetProperty(ctx, fact, p.key, p.value)
	}

	for _, lf := range []*graph.Node{subj, obj} {
		if lf == nil {
			continue
		}
		if _, created := l.upserter.EnsureRelationship(ctx, lf, fact, graph.RelHasFact); created {
			res.FormLinks++
		}
	}
	if subj != nil && obj != nil {
		l.upserter.UpsertRelationship(ctx, subj, obj, graph.RelOpenRelatedWith)
		l.upserter.UpsertRelationship(ctx, obj, subj, graph.RelOpenRelatedWith)
	}

	qualifiers := []struct {
		label, rel, uid string
	}{
		{graph.LabelPolarity, graph.RelHasPolarity, polarity},
		{graph.LabelModality, graph.RelHasModality, modality},
		{graph.LabelAttribution, graph.RelHasAttribution, attribution},
	}
	for _, q := range qualifiers {
		if q.uid == "" {
			continue
		}
		if n := l.upserter.UpsertNode(ctx, q.label, q.uid); n != nil {
			l.upserter.UpsertRelationship(ctx, fact, n, q.rel)
		}
	}

	sentenceUID := cell(record, schema.sentenceIdx)
	if sentenceUID == "" {
		return
	}
	sentence := l.upserter.FindNode(ctx, graph.LabelSentence, sentenceUID)
	if sentence == nil {
		log.WithField("sentence", sentenceUID).Debug("Sentence not in the graph")
		res.MissingSentences++
		return
	}
	if _, created := l.upserter.EnsureRelationship(ctx, fact, sentence, graph.RelFactAppearsIn); created {
		res.SentenceLinks++
	}
}
