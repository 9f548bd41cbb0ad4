package publications

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/litgraph/pkg/columnar"
	"github.com/athapong/litgraph/pkg/objectstore"
)

type fixture struct {
	objects *objectstore.DirStore
	engine  *columnar.SQLiteEngine
	logger  *logrus.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	objects, err := objectstore.NewDirStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	engine, err := columnar.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"), objects, logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return &fixture{objects: objects, engine: engine, logger: logger}
}

func (f *fixture) store(t *testing.T) *Store {
	t.Helper()
	s := NewStore(f.objects, f.engine, "publications", "kg/", f.logger)
	require.NoError(t, s.LoadState(context.Background()))
	return s
}

func rec(doi string, source Provenance, abstract string) Record {
	return Record{DOI: doi, Source: source, Title: "Title " + doi, Year: "2020", Authors: "A. Author", Abstract: abstract}
}

func TestEmptyStoreCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store(t)

	assert.Equal(t, State{LastPartition: NoPartition, MaxRowID: -1}, s.State())

	for i := 0; i < 2; i++ {
		part, err := s.CommitPartition(ctx)
		require.NoError(t, err)
		assert.Equal(t, NoPartition, part)
	}
	keys, err := f.objects.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCommitThenEmptyCommitReturnsNone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store(t)

	assert.True(t, s.Buffer(rec("10.1/a", Seed, "Iron matters.")))
	assert.True(t, s.Buffer(rec("10.1/b", ReferenceDerived, "")))
	assert.False(t, s.Buffer(rec("10.1/a", CitationDerived, "dup")))

	part, err := s.CommitPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, part)

	part, err = s.CommitPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoPartition, part)

	keys, err := f.objects.List(ctx, s.Location())
	require.NoError(t, err)
	assert.Equal(t, []string{"kg/publications/0/publications_part-0.csv"}, keys)

	recs, err := s.QueryByPartition(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(0), recs[0].ID)
	assert.Equal(t, "10.1/a", recs[0].DOI)
	assert.Equal(t, Seed, recs[0].Source)
	assert.Equal(t, int64(1), recs[1].ID)
	assert.Equal(t, ReferenceDerived, recs[1].Source)
	assert.Equal(t, "", recs[1].Abstract)

	assert.Equal(t, State{TableExists: true, LastPartition: 0, MaxRowID: 1, KnownCount: 2}, s.State())
}

func TestResumeFromCommittedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.store(t)
	for _, d := range []string{"A", "B", "C"} {
		require.True(t, first.Buffer(rec(d, Seed, "x")))
	}
	_, err := first.CommitPartition(ctx)
	require.NoError(t, err)

	s := f.store(t)
	assert.Equal(t, State{TableExists: true, LastPartition: 0, MaxRowID: 2, KnownCount: 3}, s.State())
	assert.True(t, s.Known().Contains("A"))

	assert.False(t, s.Buffer(rec("A", Seed, "x")))
	assert.False(t, s.Buffer(rec("B", ReferenceDerived, "x")))
	assert.True(t, s.Buffer(rec("D", CitationDerived, "x")))

	part, err := s.CommitPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, part)

	got, err := s.QueryByID(ctx, "D")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, 1, got.Part)
}

func TestLoadStateTakesLargerOfListingAndTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.store(t)
	require.True(t, first.Buffer(rec("A", Seed, "x")))
	_, err := first.CommitPartition(ctx)
	require.NoError(t, err)

	// an object for partition 3 whose rows never made it into the table
	require.NoError(t, f.objects.Put(ctx, "kg/publications/3/publications_part-3.csv", nil))

	s := f.store(t)
	assert.Equal(t, 3, s.State().LastPartition)

	require.True(t, s.Buffer(rec("B", Seed, "x")))
	part, err := s.CommitPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, part)
}

func TestQueryAbstractAndMissingID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store(t)
	require.True(t, s.Buffer(rec("A", Seed, "<jats:p>Iron \"uptake\"\tin roots.</jats:p>")))
	_, err := s.CommitPartition(ctx)
	require.NoError(t, err)

	abstract, err := s.QueryAbstract(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Iron  uptake  in roots.", abstract)

	missing, err := s.QueryByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBufferSanitizesTextFields(t *testing.T) {
	f := newFixture(t)
	s := f.store(t)
	r := rec("A", Seed, "a\r\nb")
	r.Title = "Line one\nline \"two\""
	require.True(t, s.Buffer(r))

	assert.Equal(t, "Line one line  two", s.buffer[0].Title)
	assert.Equal(t, "a b", s.buffer[0].Abstract)
}

func TestDropWithPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store(t)
	require.True(t, s.Buffer(rec("A", Seed, "x")))
	_, err := s.CommitPartition(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Drop(ctx, true))
	keys, err := f.objects.List(ctx, s.Location())
	require.NoError(t, err)
	assert.Empty(t, keys)

	fresh := f.store(t)
	assert.Equal(t, State{LastPartition: NoPartition, MaxRowID: -1}, fresh.State())
}

func TestDropWithoutPurgeRecreatesTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store(t)
	require.True(t, s.Buffer(rec("A", Seed, "x")))
	require.True(t, s.Buffer(rec("B", CitationDerived, "y")))
	_, err := s.CommitPartition(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Drop(ctx, false))
	assert.False(t, s.State().TableExists)

	fresh := f.store(t)
	assert.Equal(t, State{TableExists: true, LastPartition: 0, MaxRowID: 1, KnownCount: 2}, fresh.State())

	require.True(t, fresh.Buffer(rec("C", Seed, "z")))
	part, err := fresh.CommitPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, part)

	got, err := fresh.QueryByID(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)
}
