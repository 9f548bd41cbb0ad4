package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/litgraph/pkg/graph"
)

func TestDeriveQuery(t *testing.T) {
	assert.Equal(t,
		"MATCH (a:LEXICAL_FORM)-[:APPEARS_IN]->(h:SENTENCE)<-[:APPEARS_IN]-(b:LEXICAL_FORM) WHERE a <> b WITH DISTINCT a, b MERGE (a)-[:COOCCURS_WITH]->(b)",
		deriveQuery(graph.CooccurrenceRule))
	assert.Equal(t,
		"MATCH (a:LEXICAL_FORM)<-[:HAS_LF]-(h:NAMED_ENTITY)-[:HAS_LF]->(b:LEXICAL_FORM) WHERE a <> b AND NOT h:TRAIT WITH DISTINCT a, b MERGE (a)-[:SYNONYM_WITH]->(b)",
		deriveQuery(graph.SynonymyRule))
}

func TestDeleteQuery(t *testing.T) {
	ref := graph.NodeRef{Label: graph.LabelSentence, UID: "s"}

	q, err := deleteQuery(ref, graph.Incoming, []string{graph.RelAppearsIn, graph.RelAppearsInLowercase})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:SENTENCE {uid: $uid}) MATCH (n)<-[r:APPEARS_IN|APPEARS_IN_LOWERCASE]-() DELETE r", q)

	q, err = deleteQuery(ref, graph.Both, nil)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:SENTENCE {uid: $uid}) MATCH (n)-[r]-() DELETE r", q)

	_, err = deleteQuery(ref, graph.Outgoing, []string{"BAD TYPE"})
	assert.Error(t, err)
}

func TestClaimQuery(t *testing.T) {
	assert.Equal(t, "MATCH (n:LEXICAL_FORM) WHERE n.initialized IS NULL OR n.initialized = false SET n.initialized = true RETURN n ORDER BY id(n)",
		claimQuery(graph.LabelLexicalForm, true))
	assert.Equal(t, "MATCH (n:LEXICAL_FORM) SET n.initialized = true RETURN n ORDER BY id(n)",
		claimQuery(graph.LabelLexicalForm, false))
}

func TestJSONSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.json")
	snapshots := NewJSONSnapshotStore(path)

	empty := graph.NewMemoryStore()
	require.NoError(t, snapshots.Load(ctx, empty))

	g := graph.NewMemoryStore()
	a := graph.NodeRef{Label: graph.LabelLexicalForm, UID: "iron"}
	s := graph.NodeRef{Label: graph.LabelSentence, UID: "p/0"}
	_, err := g.CreateNode(ctx, a)
	require.NoError(t, err)
	_, err = g.CreateNode(ctx, s)
	require.NoError(t, err)
	_, err = g.CreateRelationship(ctx, a, s, graph.RelAppearsIn)
	require.NoError(t, err)
	require.NoError(t, snapshots.Save(ctx, g))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded := graph.NewMemoryStore()
	require.NoError(t, snapshots.Load(ctx, loaded))
	n, err := loaded.CountByType(ctx, graph.RelAppearsIn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
