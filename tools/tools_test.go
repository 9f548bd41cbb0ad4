package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/litgraph/pkg/columnar"
	"github.com/athapong/litgraph/pkg/graph"
	"github.com/athapong/litgraph/pkg/objectstore"
	"github.com/athapong/litgraph/pkg/publications"
	"github.com/athapong/litgraph/util"
)

func request(t *testing.T, name string, args map[string]any) mcp.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"params": map[string]any{"name": name, "arguments": args}})
	require.NoError(t, err)
	var req mcp.CallToolRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func publicationStore(t *testing.T) *publications.Store {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	objects, err := objectstore.NewDirStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	engine, err := columnar.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"), objects, logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	store := publications.NewStore(objects, engine, "publications", "kg/", logger)
	require.NoError(t, store.LoadState(ctx))
	store.Buffer(publications.Record{DOI: "10.1/a", Source: publications.Seed, Title: "Iron uptake", Year: "2020", Authors: "A. Author", Abstract: "Roots take up iron."})
	store.Buffer(publications.Record{DOI: "10.1/b", Source: publications.ReferenceDerived, Title: "Zinc uptake"})
	_, err = store.CommitPartition(ctx)
	require.NoError(t, err)
	return store
}

func TestPublicationLookup(t *testing.T) {
	ctx := context.Background()
	h := util.ErrorGuard(publicationLookupHandler(publicationStore(t)))

	res, err := h(ctx, request(t, "publication_lookup", map[string]any{"doi": "https://doi.org/10.1/A"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "10.1/a (partition 0, seed)")
	assert.Contains(t, out, "Iron uptake (2020)")
	assert.Contains(t, out, "Roots take up iron.")

	res, err = h(ctx, request(t, "publication_lookup", map[string]any{"doi": "10.1/zzz"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "No publication")

	res, err = h(ctx, request(t, "publication_lookup", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestPublicationPartition(t *testing.T) {
	ctx := context.Background()
	h := publicationPartitionHandler(publicationStore(t))

	res, err := h(ctx, request(t, "publication_partition", map[string]any{"partition": 0}))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, "Partition 0: 2 publications")
	assert.Contains(t, out, "[1] 10.1/b (partition 0, reference)")

	res, err = h(ctx, request(t, "publication_partition", map[string]any{"partition": 7}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "empty or missing")

	res, err = h(ctx, request(t, "publication_partition", map[string]any{"partition": "zero"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGraphTools(t *testing.T) {
	ctx := context.Background()
	u := graph.NewUpserter(graph.NewMemoryStore())
	pub := u.UpsertNode(ctx, graph.LabelPublication, "10.1/a")
	s := u.UpsertNode(ctx, graph.LabelSentence, "10.1/a/1")
	u.SetProperty(ctx, s, "text", "Roots take up iron.")
	u.UpsertRelationship(ctx, s, pub, graph.RelPartOfSentence)

	res, err := graphCountsHandler(u)(ctx, request(t, "graph_counts", nil))
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, "- PUBLICATION: 1\n")
	assert.Contains(t, out, "- SENTENCE: 1\n")
	assert.Contains(t, out, "- IS_PART_OF_SENTENCE: 1\n")
	assert.Contains(t, out, "- COOCCURS_WITH: 0\n")
	assert.Contains(t, out, "- FACT: 0\n")
	assert.Contains(t, out, "- FACT_APPEARS_IN: 0\n")

	node := graphNodeHandler(u)
	res, err = node(ctx, request(t, "graph_node", map[string]any{"label": "SENTENCE", "uid": "10.1/a/1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "text: Roots take up iron.")

	res, err = node(ctx, request(t, "graph_node", map[string]any{"label": "BAD LABEL", "uid": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestErrorGuardRecoversPanics(t *testing.T) {
	h := util.ErrorGuard(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("boom")
	})
	res, err := h(context.Background(), request(t, "x", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "boom")
}

func TestEnabledTools(t *testing.T) {
	t.Setenv("ENABLE_TOOLS", "")
	assert.True(t, EnabledTools("graph"))

	t.Setenv("ENABLE_TOOLS", "publications")
	assert.True(t, EnabledTools("publications"))
	assert.False(t, EnabledTools("graph"))

	res, err := toolManagerHandler(nil)
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "- graph (")
	assert.Contains(t, text(t, res), "[disabled]")
}
