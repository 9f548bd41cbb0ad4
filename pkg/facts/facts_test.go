package facts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/litgraph/pkg/graph"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// seeded returns a graph holding the forms iron, Ferritin and zinc and one sentence.
func seeded(t *testing.T) *graph.Upserter {
	t.Helper()
	ctx := context.Background()
	u := graph.NewUpserter(graph.NewMemoryStore(), graph.WithLogger(quietLogger()))
	for _, uid := range []string{"iron", "Ferritin", "zinc"} {
		require.NotNil(t, u.UpsertNode(ctx, graph.LabelLexicalForm, uid))
	}
	require.NotNil(t, u.UpsertNode(ctx, graph.LabelSentence, "10.1/a/1"))
	return u
}

var extracted = strings.Join([]string{
	"subject,relation,object,polarity,modality,attribution,sentence,sentence_uid",
	"iron,binds,ferritin,positive,certainty,,Iron binds ferritin,10.1/a/1",
	"Iron,binds,IRON,POSITIVE,CERTAINTY,,Iron binds iron,10.1/a/1",
	`zinc,inhibits,uptake,NEGATIVE,POSSIBILITY,"Smith, 2020",Zinc inhibits uptake,10.1/zz/4`,
	",binds,ferritin,POSITIVE,CERTAINTY,,,10.1/a/1",
	"iron,binds,ferritin,maybe,CERTAINTY,,,10.1/a/1",
	"iron,binds",
}, "\n")

func TestLoadAttachesFactsToFormsAndSentences(t *testing.T) {
	ctx := context.Background()
	u := seeded(t)

	res, err := NewLoader(u, quietLogger()).Load(ctx, DefaultSchema(), strings.NewReader(extracted))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Rows)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, 2, res.Facts)
	assert.Equal(t, 3, res.FormLinks)
	assert.Equal(t, 1, res.SentenceLinks)
	assert.Equal(t, 1, res.MissingSentences)

	assert.Equal(t, int64(2), u.CountByLabel(ctx, graph.LabelFact))
	assert.Equal(t, int64(2), u.CountByLabel(ctx, graph.LabelPolarity))
	assert.Equal(t, int64(2), u.CountByLabel(ctx, graph.LabelModality))
	assert.Equal(t, int64(1), u.CountByLabel(ctx, graph.LabelAttribution))
	assert.Equal(t, int64(3), u.CountByType(ctx, graph.RelHasFact))
	assert.Equal(t, int64(1), u.CountByType(ctx, graph.RelFactAppearsIn))
	assert.Equal(t, int64(2), u.CountByType(ctx, graph.RelOpenRelatedWith))
	assert.Equal(t, int64(2), u.CountByType(ctx, graph.RelHasPolarity))
	assert.Equal(t, int64(2), u.CountByType(ctx, graph.RelHasModality))
	assert.Equal(t, int64(1), u.CountByType(ctx, graph.RelHasAttribution))

	fact := u.FindNode(ctx, graph.LabelFact, "iron/binds/ferritin")
	require.NotNil(t, fact)
	assert.Equal(t, "POSITIVE", fact.StringProp(PropPolarity))
	assert.Equal(t, "CERTAINTY", fact.StringProp(PropModality))
	assert.Equal(t, "openie", fact.StringProp(PropSource))

	store := u.Store()
	rels, err := store.FindRelationships(ctx,
		graph.NodeRef{Label: graph.LabelLexicalForm, UID: "Ferritin"},
		graph.NodeRef{Label: graph.LabelFact, UID: "iron/binds/ferritin"},
		graph.RelHasFact)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	rels, err = store.FindRelationships(ctx,
		graph.NodeRef{Label: graph.LabelFact, UID: "zinc/inhibits/uptake"},
		graph.NodeRef{Label: graph.LabelAttribution, UID: "Smith, 2020"},
		graph.RelHasAttribution)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestLoadIsRepeatable(t *testing.T) {
	ctx := context.Background()
	u := seeded(t)
	loader := NewLoader(u, quietLogger())

	_, err := loader.Load(ctx, DefaultSchema(), strings.NewReader(extracted))
	require.NoError(t, err)
	res, err := loader.Load(ctx, DefaultSchema(), strings.NewReader(extracted))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Facts)
	assert.Zero(t, res.FormLinks)
	assert.Zero(t, res.SentenceLinks)
	assert.Equal(t, int64(2), u.CountByLabel(ctx, graph.LabelFact))
	assert.Equal(t, int64(3), u.CountByType(ctx, graph.RelHasFact))
	assert.Equal(t, int64(2), u.CountByType(ctx, graph.RelOpenRelatedWith))
}

func TestLoadStopsAtLimit(t *testing.T) {
	res, err := NewLoader(seeded(t), quietLogger(), WithLimit(1)).
		Load(context.Background(), DefaultSchema(), strings.NewReader(extracted))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, res.Facts)
}

func TestLoadWithCustomSchema(t *testing.T) {
	doc := `
source: curated
delimiter: "\t"
columns: [s, r, o, where]
subject_field: s
relation_field: r
object_field: o
sentence_field: where
`
	path := filepath.Join(t.TempDir(), "facts.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	schema, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, -1, schema.polarityIdx)

	ctx := context.Background()
	u := seeded(t)
	res, err := NewLoader(u, quietLogger()).Load(ctx, schema, strings.NewReader("zinc\tregulates\tiron\t10.1/a/1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Facts)
	assert.Equal(t, 2, res.FormLinks)
	assert.Equal(t, 1, res.SentenceLinks)
	assert.Equal(t, int64(0), u.CountByLabel(ctx, graph.LabelPolarity))

	fact := u.FindNode(ctx, graph.LabelFact, "zinc/regulates/iron")
	require.NotNil(t, fact)
	assert.Equal(t, "curated", fact.StringProp(PropSource))
}

func TestFactSchemaValidation(t *testing.T) {
	cases := map[string]string{
		"no source":        "columns: [s, r, o]\nsubject_field: s\nrelation_field: r\nobject_field: o",
		"no columns":       "source: x\nsubject_field: s\nrelation_field: r\nobject_field: o",
		"missing object":   "source: x\ncolumns: [s, r, o]\nsubject_field: s\nrelation_field: r",
		"unknown polarity": "source: x\ncolumns: [s, r, o]\nsubject_field: s\nrelation_field: r\nobject_field: o\npolarity_field: p",
		"duplicate column": "source: x\ncolumns: [s, s, o]\nsubject_field: s\nrelation_field: s\nobject_field: o",
		"long delimiter":   "source: x\ndelimiter: '::'\ncolumns: [s, r, o]\nsubject_field: s\nrelation_field: r\nobject_field: o",
		"not yaml at all":  "source: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema([]byte(doc))
			assert.Error(t, err)
		})
	}
}
