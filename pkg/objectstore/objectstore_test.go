package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "p/publications/1/a.csv", []byte("one")))
	require.NoError(t, s.Put(ctx, "p/publications/0/a.csv", []byte("zero")))
	require.NoError(t, s.Put(ctx, "other/x", []byte("x")))

	keys, err := s.List(ctx, "p/publications/")
	require.NoError(t, err)
	assert.Equal(t, []string{"p/publications/0/a.csv", "p/publications/1/a.csv"}, keys)

	data, err := s.Get(ctx, "p/publications/1/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, s.Put(ctx, "p/publications/1/a.csv", []byte("again")))
	data, err = s.Get(ctx, "p/publications/1/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))

	require.NoError(t, s.Delete(ctx, "p/publications/1/a.csv", "missing"))
	_, err = s.Get(ctx, "p/publications/1/a.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}
