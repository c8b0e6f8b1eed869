package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/errors"
	"github.com/tessera-ai/tessera/pkg/llm"
	"github.com/tessera-ai/tessera/pkg/pool"
)

// processTimeout bounds one background ingestion run.
const processTimeout = 10 * time.Minute

// embedBatchSize caps how many chunks go into one embedding request.
const embedBatchSize = 32

// IngestRequest describes a document to ingest. Either Data carries the raw
// document bytes, or Source is a URL to fetch. Raw bytes are kept in blob
// storage so a document can be reprocessed without the original upload.
type IngestRequest struct {
	Collection CollectionRef
	Title      string
	Source     string
	MediaType  string
	Data       []byte
}

// Indexer runs the ingestion pipeline: load, chunk, embed, index.
//
// Ingest registers the document and returns immediately; the heavy work runs
// on the ingest pool. The document's status field tracks progress, and the
// terminal status write (completed or failed) is always the last write to the
// record. Every mutation invalidates the collection's cached answers before
// it is reported successful, and schedules a sparse index rebuild afterwards.
type Indexer struct {
	docs     *store.DocumentStore
	vectors  store.VectorStore
	blobs    store.BlobStore
	sparse   *SparseStore
	cache    *AnswerCache
	embedder llm.EmbeddingProvider
	chunker  *Chunker
	loader   *Loader
	pools    *pool.Manager
}

// NewIndexer creates an ingestion indexer.
func NewIndexer(
	docs *store.DocumentStore,
	vectors store.VectorStore,
	blobs store.BlobStore,
	sparse *SparseStore,
	cache *AnswerCache,
	embedder llm.EmbeddingProvider,
	chunker *Chunker,
	loader *Loader,
	pools *pool.Manager,
) *Indexer {
	return &Indexer{
		docs:     docs,
		vectors:  vectors,
		blobs:    blobs,
		sparse:   sparse,
		cache:    cache,
		embedder: embedder,
		chunker:  chunker,
		loader:   loader,
		pools:    pools,
	}
}

func uploadKey(collectionID, documentID string) string {
	return fmt.Sprintf("docs/%s/%s", collectionID, documentID)
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Ingest registers the document as pending and schedules processing. The
// returned record reflects the pending state; callers poll document status
// for the outcome.
func (ix *Indexer) Ingest(ctx context.Context, req *IngestRequest) (*model.Document, error) {
	if len(req.Data) == 0 && !isURL(req.Source) {
		return nil, errors.ErrInvalidRequest.WithMessage("document has no content and source %q is not a URL", req.Source)
	}

	doc := &model.Document{
		ID:           uuid.NewString(),
		CollectionID: req.Collection.ID,
		Title:        req.Title,
		Source:       req.Source,
		MediaType:    req.MediaType,
		Status:       model.DocStatusPending,
	}
	if doc.Title == "" {
		doc.Title = req.Source
	}

	if len(req.Data) > 0 {
		sum := sha256.Sum256(req.Data)
		doc.Hash = hex.EncodeToString(sum[:])
		key := uploadKey(req.Collection.ID, doc.ID)
		if err := ix.blobs.Put(ctx, key, req.Data, req.MediaType); err != nil {
			return nil, errors.ErrIngestFailed.WithMessage("failed to store document upload").WithCause(err)
		}
		doc.Source = key
	} else {
		sum := sha256.Sum256([]byte(req.Source))
		doc.Hash = hex.EncodeToString(sum[:])
	}

	if err := ix.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	ref := req.Collection
	ix.pools.Submit(pool.IngestPool, func() {
		ix.process(ref, doc.ID)
	})

	logger.Infow("document ingestion scheduled",
		"collection", ref.ID, "document", doc.ID, "title", doc.Title)
	return doc, nil
}

// process runs the pipeline for one document on the ingest pool. Failures
// land in the document record, never in a return value.
func (ix *Indexer) process(ref CollectionRef, documentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if err := ix.docs.UpdateStatus(ctx, documentID, model.DocStatusProcessing, ""); err != nil {
		logger.Errorw("failed to mark document processing",
			"document", documentID, "error", err.Error())
		return
	}

	chunkCount, err := ix.index(ctx, ref, documentID)
	if err != nil {
		logger.Errorw("document ingestion failed",
			"collection", ref.ID, "document", documentID, "error", err.Error())
		if uerr := ix.docs.UpdateStatus(ctx, documentID, model.DocStatusFailed, err.Error()); uerr != nil {
			logger.Errorw("failed to mark document failed",
				"document", documentID, "error", uerr.Error())
		}
		return
	}

	if err := ix.docs.SetChunkNum(ctx, documentID, chunkCount); err != nil {
		logger.Warnw("failed to record chunk count",
			"document", documentID, "error", err.Error())
	}
	if err := ix.docs.UpdateStatus(ctx, documentID, model.DocStatusCompleted, ""); err != nil {
		logger.Errorw("failed to mark document completed",
			"document", documentID, "error", err.Error())
		return
	}

	logger.Infow("document ingestion completed",
		"collection", ref.ID, "document", documentID, "chunks", chunkCount)

	ix.scheduleRebuild(ref)
}

// index loads, chunks, embeds and stores the document, then invalidates the
// collection's answer cache. Returns the number of chunks indexed.
func (ix *Indexer) index(ctx context.Context, ref CollectionRef, documentID string) (int, error) {
	doc, err := ix.docs.Get(ctx, documentID)
	if err != nil {
		return 0, err
	}

	text, err := ix.loadText(ctx, doc)
	if err != nil {
		return 0, err
	}

	pieces := ix.chunker.Split(text)
	if len(pieces) == 0 {
		// Nothing to index is not a failure, the document just carries no
		// searchable text.
		logger.Warnw("document produced no indexable text, skipping indexing",
			"collection", ref.ID, "document", doc.ID)
		return 0, nil
	}

	chunks := make([]*store.Chunk, 0, len(pieces))
	for seq, content := range pieces {
		chunks = append(chunks, &store.Chunk{
			DocumentID:   doc.ID,
			DocumentName: doc.Title,
			Seq:          seq,
			Content:      content,
		})
	}

	if err := ix.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}

	// Replace any chunks from a previous run before inserting, so a
	// reprocessed document never double-indexes.
	if err := ix.vectors.DeleteByDocument(ctx, ref.VectorName, doc.ID); err != nil {
		return 0, errors.ErrIngestFailed.WithMessage("failed to clear previous chunks").WithCause(err)
	}
	if _, err := ix.vectors.Insert(ctx, ref.VectorName, chunks); err != nil {
		return 0, errors.ErrIngestFailed.WithMessage("failed to index chunks").WithCause(err)
	}

	if err := ix.cache.Invalidate(ctx, ref.ID); err != nil {
		logger.Warnw("failed to invalidate answer cache after ingest",
			"collection", ref.ID, "document", doc.ID, "error", err.Error())
	}

	return len(chunks), nil
}

func (ix *Indexer) loadText(ctx context.Context, doc *model.Document) (string, error) {
	if isURL(doc.Source) {
		text, _, err := ix.loader.LoadURL(ctx, doc.Source)
		if err != nil {
			return "", errors.ErrIngestFailed.WithMessage("failed to fetch document").WithCause(err)
		}
		return text, nil
	}

	data, err := ix.blobs.Get(ctx, doc.Source)
	if err != nil {
		return "", errors.ErrIngestFailed.WithMessage("failed to read document upload").WithCause(err)
	}
	text, err := ix.loader.Load(data, doc.MediaType)
	if err != nil {
		return "", errors.ErrIngestFailed.WithMessage("failed to extract document text").WithCause(err)
	}
	return text, nil
}

func (ix *Indexer) embedChunks(ctx context.Context, chunks []*store.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			batch = append(batch, c.Content)
		}
		vectors, err := ix.embedder.Embed(ctx, batch)
		if err != nil {
			return errors.ErrIngestFailed.WithMessage("failed to embed chunks").WithCause(err)
		}
		if len(vectors) != len(batch) {
			return errors.ErrIngestFailed.WithMessage("embedding provider returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// Remove deletes a document's chunks and record. The dense index and cache
// are updated synchronously; the sparse index rebuild runs in the background,
// so sparse results may briefly include the removed document.
func (ix *Indexer) Remove(ctx context.Context, ref CollectionRef, documentID string) error {
	doc, err := ix.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.CollectionID != ref.ID {
		return errors.ErrDocumentNotFound
	}

	if err := ix.vectors.DeleteByDocument(ctx, ref.VectorName, documentID); err != nil {
		return errors.ErrDatabase.WithMessage("failed to delete document chunks").WithCause(err)
	}

	if !isURL(doc.Source) && doc.Source != "" {
		if err := ix.blobs.Delete(ctx, doc.Source); err != nil {
			logger.Warnw("failed to delete document upload",
				"document", documentID, "key", doc.Source, "error", err.Error())
		}
	}

	if err := ix.docs.Delete(ctx, documentID); err != nil {
		return err
	}

	if err := ix.cache.Invalidate(ctx, ref.ID); err != nil {
		logger.Warnw("failed to invalidate answer cache after removal",
			"collection", ref.ID, "document", documentID, "error", err.Error())
	}

	logger.Infow("document removed",
		"collection", ref.ID, "document", documentID)

	ix.scheduleRebuild(ref)
	return nil
}

// Rebuild regenerates the sparse index from the dense store's current
// contents and swaps in the new snapshot.
func (ix *Indexer) Rebuild(ctx context.Context, ref CollectionRef) error {
	chunks, err := ix.vectors.All(ctx, ref.VectorName)
	if err != nil {
		return fmt.Errorf("failed to list chunks for sparse rebuild: %w", err)
	}

	passages := make([]SparseChunk, 0, len(chunks))
	for _, c := range chunks {
		passages = append(passages, SparseChunk{
			ID:           c.ID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Content:      c.Content,
		})
	}

	return ix.sparse.Save(ctx, ref.ID, BuildBM25(passages))
}

func (ix *Indexer) scheduleRebuild(ref CollectionRef) {
	ix.pools.Submit(pool.RebuildPool, func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := ix.Rebuild(ctx, ref); err != nil {
			logger.Errorw("sparse index rebuild failed",
				"collection", ref.ID, "error", err.Error())
		}
	})
}
