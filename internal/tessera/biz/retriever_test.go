package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/llm"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := f.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)

func setupRetriever(t *testing.T) (*Retriever, store.VectorStore, *SparseStore, CollectionRef) {
	t.Helper()

	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"tcp handshake": {1, 0, 0},
	}}
	r := NewRetriever(vectors, sparse, embedder, nil, &RetrieverConfig{TopK: 3, DenseWeight: 0.5})

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	require.NoError(t, vectors.EnsureCollection(context.Background(), &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))
	return r, vectors, sparse, ref
}

func seedVectors(t *testing.T, vectors store.VectorStore, collection string) {
	t.Helper()

	_, err := vectors.Insert(context.Background(), collection, []*store.Chunk{
		{ID: "c1", DocumentID: "d1", DocumentName: "net.md", Seq: 0, Content: "TCP handshake opens a connection", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", DocumentName: "net.md", Seq: 1, Content: "UDP sends datagrams without setup", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "d2", DocumentName: "misc.md", Seq: 0, Content: "Unrelated storage trivia", Embedding: []float32{0, 0, 1}},
	})
	require.NoError(t, err)
}

func TestRetriever_DenseOnlyWhenNoSnapshot(t *testing.T) {
	r, vectors, _, ref := setupRetriever(t)
	seedVectors(t, vectors, ref.VectorName)

	results, err := r.Retrieve(context.Background(), ref, "tcp handshake")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "TCP handshake opens a connection", results[0].Content)
}

func TestRetriever_HybridFusion(t *testing.T) {
	r, vectors, sparse, ref := setupRetriever(t)
	seedVectors(t, vectors, ref.VectorName)

	require.NoError(t, sparse.Save(context.Background(), ref.ID, BuildBM25([]SparseChunk{
		{ID: "c1", DocumentID: "d1", DocumentName: "net.md", Content: "TCP handshake opens a connection"},
		{ID: "c2", DocumentID: "d1", DocumentName: "net.md", Content: "UDP sends datagrams without setup"},
		{ID: "c3", DocumentID: "d2", DocumentName: "misc.md", Content: "Unrelated storage trivia"},
	})))

	results, err := r.Retrieve(context.Background(), ref, "tcp handshake")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// Top ranked by both legs wins the fused ranking.
	assert.Equal(t, "TCP handshake opens a connection", results[0].Content)
	assert.LessOrEqual(t, len(results), 3)
}

func TestRetriever_FusionDeduplicatesByContent(t *testing.T) {
	r, vectors, sparse, ref := setupRetriever(t)
	seedVectors(t, vectors, ref.VectorName)

	// The sparse snapshot indexes the same passages under different IDs, as
	// happens after a rebuild reassigns chunk IDs.
	require.NoError(t, sparse.Save(context.Background(), ref.ID, BuildBM25([]SparseChunk{
		{ID: "x1", DocumentID: "d1", DocumentName: "net.md", Content: "TCP handshake opens a connection"},
		{ID: "x2", DocumentID: "d1", DocumentName: "net.md", Content: "UDP sends datagrams without setup"},
	})))

	results, err := r.Retrieve(context.Background(), ref, "tcp handshake")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, res := range results {
		seen[res.Content]++
	}
	for content, n := range seen {
		assert.Equal(t, 1, n, "duplicate fused result for %q", content)
	}
}

func TestRetriever_EmptyCollection(t *testing.T) {
	r, _, _, ref := setupRetriever(t)

	results, err := r.Retrieve(context.Background(), ref, "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	r := NewRetriever(vectors, sparse, &fakeEmbedder{fail: true}, nil, nil)

	_, err := r.Retrieve(context.Background(), CollectionRef{ID: "col1", VectorName: "col_1"}, "query")
	assert.Error(t, err)
}

func TestRetriever_TopKLimit(t *testing.T) {
	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	embedder := &fakeEmbedder{}
	r := NewRetriever(vectors, sparse, embedder, nil, &RetrieverConfig{TopK: 2, DenseWeight: 0.5})

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	ctx := context.Background()
	require.NoError(t, vectors.EnsureCollection(ctx, &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))

	chunks := []*store.Chunk{
		{ID: "c1", Content: "first passage about retrieval", Embedding: []float32{1, 0, 0}},
		{ID: "c2", Content: "second passage about retrieval", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "c3", Content: "third passage about retrieval", Embedding: []float32{0.8, 0.2, 0}},
	}
	_, err := vectors.Insert(ctx, ref.VectorName, chunks)
	require.NoError(t, err)

	sparseChunks := make([]SparseChunk, 0, len(chunks))
	for _, c := range chunks {
		sparseChunks = append(sparseChunks, SparseChunk{ID: c.ID, Content: c.Content})
	}
	require.NoError(t, sparse.Save(ctx, ref.ID, BuildBM25(sparseChunks)))

	results, err := r.Retrieve(ctx, ref, "passage retrieval")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}
