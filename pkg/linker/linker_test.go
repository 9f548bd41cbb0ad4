package linker

import (
	"context"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/litgraph/pkg/graph"
)

// fixedExtractor returns the candidates registered for a sentence text.
type fixedExtractor map[string][]string

func (f fixedExtractor) ExtractCandidates(sentence string) mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(f[sentence]...)
}

type fixture struct {
	ctx      context.Context
	store    *graph.MemoryStore
	upserter *graph.Upserter
	linker   *Linker
}

func newFixture(t *testing.T, extractor fixedExtractor, forms ...string) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{ctx: context.Background(), store: graph.NewMemoryStore()}
	f.upserter = graph.NewUpserter(f.store, graph.WithLogger(logger))
	for _, form := range forms {
		n := f.upserter.UpsertNode(f.ctx, graph.LabelLexicalForm, form)
		require.NotNil(t, n)
		require.True(t, f.upserter.SetProperty(f.ctx, n, graph.PropInitialized, false))
	}
	f.linker = New(f.upserter, extractor, logger)
	return f
}

func (f *fixture) sentence(t *testing.T, uid, text string) *graph.Node {
	t.Helper()
	n := f.upserter.UpsertNode(f.ctx, graph.LabelSentence, uid)
	require.NotNil(t, n)
	require.True(t, f.upserter.SetProperty(f.ctx, n, PropText, text))
	return n
}

func (f *fixture) linked(t *testing.T, form string, sentence *graph.Node, relType string) bool {
	t.Helper()
	rels, err := f.store.FindRelationships(f.ctx,
		graph.NodeRef{Label: graph.LabelLexicalForm, UID: form}, sentence.Ref(), relType)
	require.NoError(t, err)
	return len(rels) > 0
}

func TestCaseFoldedTierForLowercaseCandidate(t *testing.T) {
	f := newFixture(t, fixedExtractor{"s": {"gene1"}}, "Gene1")
	require.Equal(t, 1, f.linker.BuildIndex(f.ctx, ScopeFull))
	s := f.sentence(t, "p/0", "s")

	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s))
	assert.True(t, f.linked(t, "Gene1", s, graph.RelAppearsInLowercase))
	assert.False(t, f.linked(t, "Gene1", s, graph.RelAppearsIn))
	assert.Equal(t, Linked, f.linker.State())
}

func TestExactTiers(t *testing.T) {
	extractor := fixedExtractor{
		"s1": {"Iron"},        // uncapitalized form is indexed
		"s2": {"Arabidopsis"}, // only the capitalized form is indexed
		"s3": {"  zinc  "},
	}
	f := newFixture(t, extractor, "iron", "Arabidopsis", "zinc")
	f.linker.BuildIndex(f.ctx, ScopeFull)

	s1, s2, s3 := f.sentence(t, "p/0", "s1"), f.sentence(t, "p/1", "s2"), f.sentence(t, "p/2", "s3")
	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s1))
	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s2))
	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s3))

	assert.True(t, f.linked(t, "iron", s1, graph.RelAppearsIn))
	assert.True(t, f.linked(t, "Arabidopsis", s2, graph.RelAppearsIn))
	assert.True(t, f.linked(t, "zinc", s3, graph.RelAppearsIn))
}

func TestShortCandidatesSkipCaseFolding(t *testing.T) {
	f := newFixture(t, fixedExtractor{"s": {"fe2", "zn"}}, "FE2", "Zn")
	f.linker.BuildIndex(f.ctx, ScopeFull)
	s := f.sentence(t, "p/0", "s")

	assert.Equal(t, 0, f.linker.LinkSentence(f.ctx, s))
	assert.Equal(t, IndexBuilt, f.linker.State())
}

func TestLinkSentenceIsIdempotent(t *testing.T) {
	f := newFixture(t, fixedExtractor{"s": {"iron"}}, "iron")
	f.linker.BuildIndex(f.ctx, ScopeFull)
	s := f.sentence(t, "p/0", "s")

	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s))
	assert.Equal(t, 0, f.linker.LinkSentence(f.ctx, s))
	assert.Equal(t, int64(1), f.upserter.CountByType(f.ctx, graph.RelAppearsIn))
}

func TestLinkSentenceCountsOnlyNewLinks(t *testing.T) {
	// both candidates resolve to the same form through the same tier
	f := newFixture(t, fixedExtractor{"s": {"Iron", "iron"}}, "iron")
	f.linker.BuildIndex(f.ctx, ScopeFull)
	s := f.sentence(t, "p/0", "s")

	assert.Equal(t, 1, f.linker.LinkSentence(f.ctx, s))
	assert.Equal(t, int64(1), f.upserter.CountByType(f.ctx, graph.RelAppearsIn))
}

func TestBuildIndexTwiceIsNoop(t *testing.T) {
	f := newFixture(t, fixedExtractor{}, "iron")
	assert.Equal(t, 1, f.linker.BuildIndex(f.ctx, ScopeFull))

	f.upserter.UpsertNode(f.ctx, graph.LabelLexicalForm, "zinc")
	assert.Equal(t, 0, f.linker.BuildIndex(f.ctx, ScopeIncremental))
	assert.Equal(t, 1, f.linker.IndexSize())

	f.linker.Reset()
	assert.Equal(t, Uninitialized, f.linker.State())
	// iron was claimed by the first build
	assert.Equal(t, 1, f.linker.BuildIndex(f.ctx, ScopeIncremental))
	assert.Equal(t, 1, f.linker.IndexSize())
}

func TestRelinkSentenceReplacesLinks(t *testing.T) {
	extractor := fixedExtractor{"s": {"iron"}}
	f := newFixture(t, extractor, "iron", "zinc")
	f.linker.BuildIndex(f.ctx, ScopeFull)
	s := f.sentence(t, "p/0", "s")
	f.linker.LinkSentence(f.ctx, s)

	// a stale link the current index would not produce
	zinc := f.upserter.FindNode(f.ctx, graph.LabelLexicalForm, "zinc")
	f.upserter.UpsertRelationship(f.ctx, zinc, s, graph.RelAppearsInLowercase)

	assert.Equal(t, 1, f.linker.RelinkSentence(f.ctx, s))
	assert.True(t, f.linked(t, "iron", s, graph.RelAppearsIn))
	assert.False(t, f.linked(t, "zinc", s, graph.RelAppearsInLowercase))
}

func TestCooccurrenceAcrossPublications(t *testing.T) {
	extractor := fixedExtractor{
		"Iron and zinc uptake.": {"iron", "zinc"},
		"Iron binds ferritin.":  {"iron", "ferritin"},
	}
	f := newFixture(t, extractor, "iron", "zinc", "ferritin")
	f.linker.BuildIndex(f.ctx, ScopeFull)
	f.linker.LinkSentence(f.ctx, f.sentence(t, "10.1/a/0", "Iron and zinc uptake."))
	f.linker.LinkSentence(f.ctx, f.sentence(t, "10.1/b/0", "Iron binds ferritin."))

	assert.Equal(t, int64(4), f.linker.MaterializeCooccurrence(f.ctx))

	ref := func(uid string) graph.NodeRef { return graph.NodeRef{Label: graph.LabelLexicalForm, UID: uid} }
	cooccurs := func(a, b string) bool {
		rels, err := f.store.FindRelationships(f.ctx, ref(a), ref(b), graph.RelCooccursWith)
		require.NoError(t, err)
		return len(rels) > 0
	}
	assert.True(t, cooccurs("iron", "zinc"))
	assert.True(t, cooccurs("zinc", "iron"))
	assert.True(t, cooccurs("iron", "ferritin"))
	assert.True(t, cooccurs("ferritin", "iron"))
	assert.False(t, cooccurs("iron", "iron"))
	assert.False(t, cooccurs("zinc", "ferritin"))
}

func TestMaterializeSynonymy(t *testing.T) {
	f := newFixture(t, fixedExtractor{}, "FER1", "ferritin")
	ne := f.upserter.UpsertNode(f.ctx, graph.LabelNamedEntity, "onto/1")
	for _, form := range []string{"FER1", "ferritin"} {
		f.upserter.UpsertRelationship(f.ctx, ne, f.upserter.FindNode(f.ctx, graph.LabelLexicalForm, form), graph.RelHasLexicalForm)
	}

	assert.Equal(t, int64(2), f.linker.MaterializeSynonymy(f.ctx))
}

func TestUncapitalize(t *testing.T) {
	assert.Equal(t, "iron", uncapitalize("Iron"))
	assert.Equal(t, "éclair", uncapitalize("Éclair"))
	assert.Equal(t, "", uncapitalize(""))
	assert.True(t, startsUpper("Zn"))
	assert.False(t, startsUpper("zn"))
}
