package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCooccurrence(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryStore()
	mk := func(label, uid string) NodeRef {
		ref := NodeRef{Label: label, UID: uid}
		_, err := g.CreateNode(ctx, ref)
		require.NoError(t, err)
		return ref
	}
	iron, zinc, roots := mk(LabelLexicalForm, "iron"), mk(LabelLexicalForm, "zinc"), mk(LabelLexicalForm, "roots")
	s1, s2 := mk(LabelSentence, "p/0"), mk(LabelSentence, "p/1")
	for _, link := range [][2]NodeRef{{iron, s1}, {zinc, s1}, {iron, s2}, {roots, s2}} {
		_, err := g.CreateRelationship(ctx, link[0], link[1], RelAppearsIn)
		require.NoError(t, err)
	}
	// lowercase matches do not count toward cooccurrence
	_, err := g.CreateRelationship(ctx, zinc, s2, RelAppearsInLowercase)
	require.NoError(t, err)

	created, err := g.Derive(ctx, CooccurrenceRule)
	require.NoError(t, err)
	assert.Equal(t, int64(4), created)

	for _, pair := range [][2]NodeRef{{iron, zinc}, {zinc, iron}, {iron, roots}, {roots, iron}} {
		found, err := g.FindRelationships(ctx, pair[0], pair[1], RelCooccursWith)
		require.NoError(t, err)
		assert.Len(t, found, 1, "%s -> %s", pair[0], pair[1])
	}
	for _, ref := range []NodeRef{iron, zinc, roots} {
		self, err := g.FindRelationships(ctx, ref, ref, RelCooccursWith)
		require.NoError(t, err)
		assert.Empty(t, self)
	}
	none, err := g.FindRelationships(ctx, zinc, roots, RelCooccursWith)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeriveRejectsInvalidRule(t *testing.T) {
	_, err := NewMemoryStore().Derive(context.Background(), DerivationRule{Derived: "X-Y", Label: "A", Via: "B", HubLabel: "C"})
	assert.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryStore()
	pub := NodeRef{Label: LabelPublication, UID: "10.1/a"}
	sent := NodeRef{Label: LabelSentence, UID: "10.1/a/0"}
	_, err := g.CreateNode(ctx, pub)
	require.NoError(t, err)
	_, err = g.CreateNode(ctx, sent)
	require.NoError(t, err)
	require.NoError(t, g.SetProperty(ctx, sent, "text", "Iron uptake."))
	require.NoError(t, g.AddLabel(ctx, pub, LabelTrait))
	_, err = g.CreateRelationship(ctx, sent, pub, RelPartOfSentence)
	require.NoError(t, err)

	data, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.WithinDuration(t, time.Now(), snap.SavedAt, time.Minute)

	restored := NewMemoryStore()
	require.NoError(t, restored.Restore(&snap))

	nodes, err := restored.FindNodes(ctx, sent)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Iron uptake.", nodes[0].StringProp("text"))
	assert.Equal(t, "10.1/a/0", nodes[0].StringProp(PropUID))

	traits, err := restored.CountByLabel(ctx, LabelTrait)
	require.NoError(t, err)
	assert.Equal(t, int64(1), traits)

	rels, err := restored.FindRelationships(ctx, sent, pub, RelPartOfSentence)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestRestoreRejectsDanglingEdge(t *testing.T) {
	snap := &Snapshot{
		Nodes: []SnapshotNode{{Labels: []string{LabelSentence}, UID: "s"}},
		Edges: []SnapshotEdge{{Type: RelAppearsIn, Source: 0, Target: 3}},
	}
	assert.Error(t, NewMemoryStore().Restore(snap))
}

func TestLocalLockerSerializesAndCleansUp(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, l.held())

	acquired := make(chan struct{})
	go func() {
		u, _ := l.Lock(ctx, "k")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	assert.Eventually(t, func() bool { return l.held() == 0 }, time.Second, 5*time.Millisecond)
}
