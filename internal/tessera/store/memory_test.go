package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/pkg/component/minio"
)

func seedMemoryStore(t *testing.T, s *MemoryVectorStore) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, &CollectionConfig{Name: "col", Dimension: 3}))
	_, err := s.Insert(ctx, "col", []*Chunk{
		{ID: "c1", DocumentID: "d1", DocumentName: "a.txt", Content: "first", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", DocumentName: "a.txt", Content: "second", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "d2", DocumentName: "b.txt", Content: "third", Embedding: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)
}

func TestMemoryVectorStore_SearchOrdersBySimilarity(t *testing.T) {
	s := NewMemoryVectorStore()
	seedMemoryStore(t, s)

	results, err := s.Search(context.Background(), "col", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, "third", results[1].Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryVectorStore_DeleteByDocument(t *testing.T) {
	s := NewMemoryVectorStore()
	seedMemoryStore(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteByDocument(ctx, "col", "d1"))

	count, err := s.Count(ctx, "col")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Deleting an absent document is not an error.
	require.NoError(t, s.DeleteByDocument(ctx, "col", "d1"))
}

func TestMemoryVectorStore_AllStripsEmbeddings(t *testing.T) {
	s := NewMemoryVectorStore()
	seedMemoryStore(t, s)

	chunks, err := s.All(context.Background(), "col")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Nil(t, c.Embedding)
	}
}

func TestMemoryVectorStore_DropCollection(t *testing.T) {
	s := NewMemoryVectorStore()
	seedMemoryStore(t, s)
	ctx := context.Background()

	require.NoError(t, s.DropCollection(ctx, "col"))

	count, err := s.Count(ctx, "col")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryBlobStore_Basics(t *testing.T) {
	s := NewMemoryBlobStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("payload"), "text/plain"))

	data, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, minio.ErrObjectNotFound)

	require.NoError(t, s.Delete(ctx, "k1"))
	require.NoError(t, s.Delete(ctx, "k1"))
	assert.Zero(t, s.Len())
}
