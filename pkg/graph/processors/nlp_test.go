package processors

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor() *NLPProcessor {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return NewNLPProcessor(l)
}

func TestSegmentNumbersSentencesFromOne(t *testing.T) {
	sents, err := newTestProcessor().Segment("Iron deficiency causes chlorosis. Roots take up iron from the soil.")
	require.NoError(t, err)
	require.Len(t, sents, 2)

	assert.Equal(t, 1, sents[0].Index)
	assert.Equal(t, "Iron deficiency causes chlorosis.", sents[0].Text)
	assert.Contains(t, sents[0].Tokens, "chlorosis")
	assert.Equal(t, 2, sents[1].Index)
}

func TestSegmentEmptyText(t *testing.T) {
	sents, err := newTestProcessor().Segment("")
	require.NoError(t, err)
	assert.Empty(t, sents)
}

func TestExtractCandidatesFindsNouns(t *testing.T) {
	got := newTestProcessor().ExtractCandidates("Plants need iron and zinc.")
	assert.True(t, got.Contains("iron"), "candidates: %v", got.ToSlice())
	assert.True(t, got.Contains("zinc"), "candidates: %v", got.ToSlice())
	assert.False(t, got.Contains(""))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "plain text", StripMarkup("plain text"))
	assert.Equal(t, "Iron uptake in roots.", StripMarkup("<jats:p>Iron uptake <i>in</i> roots.</jats:p>"))
	assert.Equal(t, "Fe & Zn", StripMarkup("Fe &amp; Zn"))
}
