package biz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/pool"
)

type indexerFixture struct {
	indexer *Indexer
	docs    *store.DocumentStore
	vectors store.VectorStore
	blobs   *store.MemoryBlobStore
	sparse  *SparseStore
	ref     CollectionRef
}

func setupIndexer(t *testing.T) *indexerFixture {
	t.Helper()

	db, err := store.NewDB(":memory:")
	require.NoError(t, err)

	pools := pool.NewManager()
	require.NoError(t, pools.Register(pool.IngestPool, pool.IngestPoolConfig()))
	require.NoError(t, pools.Register(pool.RebuildPool, pool.RebuildPoolConfig()))
	t.Cleanup(func() { pools.ReleaseAll(time.Second) })

	vectors := store.NewMemoryVectorStore()
	blobs := store.NewMemoryBlobStore()
	sparse := NewSparseStore(blobs)
	docs := store.NewDocumentStore(db)

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	require.NoError(t, vectors.EnsureCollection(context.Background(), &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))

	ix := NewIndexer(
		docs, vectors, blobs, sparse,
		NewAnswerCache(nil, nil),
		&fakeEmbedder{},
		NewChunker(200, 40),
		NewLoader(),
		pools,
	)
	return &indexerFixture{indexer: ix, docs: docs, vectors: vectors, blobs: blobs, sparse: sparse, ref: ref}
}

func longText() string {
	return strings.Repeat("Tessera indexes documents into collections for retrieval. ", 20)
}

func waitForStatus(t *testing.T, docs *store.DocumentStore, id, status string) *model.Document {
	t.Helper()

	var doc *model.Document
	require.Eventually(t, func() bool {
		d, err := docs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		doc = d
		return d.Status == status
	}, 5*time.Second, 10*time.Millisecond, "document %s never reached status %s", id, status)
	return doc
}

func TestIndexer_IngestUpload(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, &IngestRequest{
		Collection: f.ref,
		Title:      "guide.txt",
		Source:     "guide.txt",
		MediaType:  "text/plain",
		Data:       []byte(longText()),
	})
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusPending, doc.Status)
	assert.NotEmpty(t, doc.Hash)

	done := waitForStatus(t, f.docs, doc.ID, model.DocStatusCompleted)
	assert.Greater(t, done.ChunkNum, 0)
	assert.Empty(t, done.Error)

	count, err := f.vectors.Count(ctx, f.ref.VectorName)
	require.NoError(t, err)
	assert.EqualValues(t, done.ChunkNum, count)

	// The sparse snapshot is rebuilt in the background after ingestion.
	require.Eventually(t, func() bool {
		idx, err := f.sparse.Load(ctx, f.ref.ID)
		return err == nil && idx != nil && idx.Len() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIndexer_Ingest_RejectsEmptyRequest(t *testing.T) {
	f := setupIndexer(t)

	_, err := f.indexer.Ingest(context.Background(), &IngestRequest{
		Collection: f.ref,
		Title:      "nothing",
		Source:     "not-a-url",
	})
	assert.Error(t, err)
}

func TestIndexer_IngestFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(longText()))
	}))
	defer srv.Close()

	f := setupIndexer(t)
	doc, err := f.indexer.Ingest(context.Background(), &IngestRequest{
		Collection: f.ref,
		Source:     srv.URL,
	})
	require.NoError(t, err)
	// Untitled remote documents take their source as title.
	assert.Equal(t, srv.URL, doc.Title)

	waitForStatus(t, f.docs, doc.ID, model.DocStatusCompleted)
}

func TestIndexer_ProcessFailureMarksDocumentFailed(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	// A record whose upload is missing from blob storage.
	doc := &model.Document{
		ID:           uuid.NewString(),
		CollectionID: f.ref.ID,
		Title:        "ghost.txt",
		Source:       "docs/col1/missing",
		Status:       model.DocStatusPending,
	}
	require.NoError(t, f.docs.Create(ctx, doc))

	f.indexer.process(f.ref, doc.ID)

	got, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestIndexer_EmptyDocumentCompletesWithoutChunks(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, &IngestRequest{
		Collection: f.ref,
		Title:      "blank.txt",
		Source:     "blank.txt",
		MediaType:  "text/plain",
		Data:       []byte("   \n   "),
	})
	require.NoError(t, err)

	got := waitForStatus(t, f.docs, doc.ID, model.DocStatusCompleted)
	assert.Empty(t, got.Error)
	assert.Zero(t, got.ChunkNum)

	count, err := f.vectors.Count(ctx, f.ref.VectorName)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexer_TinyDocumentCompletes(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, &IngestRequest{
		Collection: f.ref,
		Title:      "sky.txt",
		Source:     "sky.txt",
		MediaType:  "text/plain",
		Data:       []byte("The sky is blue."),
	})
	require.NoError(t, err)

	got := waitForStatus(t, f.docs, doc.ID, model.DocStatusCompleted)
	assert.Equal(t, 1, got.ChunkNum)

	count, err := f.vectors.Count(ctx, f.ref.VectorName)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestIndexer_Remove(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, &IngestRequest{
		Collection: f.ref,
		Title:      "guide.txt",
		Source:     "guide.txt",
		MediaType:  "text/plain",
		Data:       []byte(longText()),
	})
	require.NoError(t, err)
	waitForStatus(t, f.docs, doc.ID, model.DocStatusCompleted)

	require.NoError(t, f.indexer.Remove(ctx, f.ref, doc.ID))

	count, err := f.vectors.Count(ctx, f.ref.VectorName)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.docs.Get(ctx, doc.ID)
	assert.Error(t, err)

	// The emptied collection eventually loses its sparse snapshot.
	require.Eventually(t, func() bool {
		idx, err := f.sparse.Load(ctx, f.ref.ID)
		return err == nil && idx == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIndexer_Remove_WrongCollection(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	doc := &model.Document{
		ID:           uuid.NewString(),
		CollectionID: "another-collection",
		Title:        "other.txt",
		Source:       "other.txt",
		Status:       model.DocStatusCompleted,
	}
	require.NoError(t, f.docs.Create(ctx, doc))

	err := f.indexer.Remove(ctx, f.ref, doc.ID)
	assert.Error(t, err)
}

func TestIndexer_Rebuild(t *testing.T) {
	f := setupIndexer(t)
	ctx := context.Background()

	_, err := f.vectors.Insert(ctx, f.ref.VectorName, []*store.Chunk{
		{ID: "c1", DocumentID: "d1", DocumentName: "a.txt", Content: "alpha passage body", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", DocumentName: "a.txt", Content: "beta passage body", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, f.indexer.Rebuild(ctx, f.ref))

	idx, err := f.sparse.Load(ctx, f.ref.ID)
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, 2, idx.Len())

	// Rebuilding an emptied collection removes the snapshot.
	require.NoError(t, f.vectors.DeleteByDocument(ctx, f.ref.VectorName, "d1"))
	require.NoError(t, f.indexer.Rebuild(ctx, f.ref))

	idx, err = f.sparse.Load(ctx, f.ref.ID)
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestIndexer_EmbeddingFailureMarksFailed(t *testing.T) {
	db, err := store.NewDB(":memory:")
	require.NoError(t, err)

	pools := pool.NewManager()
	t.Cleanup(func() { pools.ReleaseAll(time.Second) })

	docs := store.NewDocumentStore(db)
	vectors := store.NewMemoryVectorStore()
	blobs := store.NewMemoryBlobStore()
	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	require.NoError(t, vectors.EnsureCollection(context.Background(), &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))

	ix := NewIndexer(docs, vectors, blobs, NewSparseStore(blobs), NewAnswerCache(nil, nil),
		&fakeEmbedder{fail: true}, NewChunker(200, 40), NewLoader(), pools)

	doc, err := ix.Ingest(context.Background(), &IngestRequest{
		Collection: ref,
		Title:      "doc.txt",
		Source:     "doc.txt",
		MediaType:  "text/plain",
		Data:       []byte(longText()),
	})
	require.NoError(t, err)

	got := waitForStatus(t, docs, doc.ID, model.DocStatusFailed)
	assert.NotEmpty(t, got.Error)
}
