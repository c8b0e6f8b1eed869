package biz

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/llm"
)

// rrfC dampens the rank contribution in reciprocal rank fusion.
const rrfC = 60

// CollectionRef addresses one collection across the index backends.
type CollectionRef struct {
	// ID is the logical collection ID. It keys the answer cache and the
	// sparse snapshot.
	ID string
	// VectorName is the Milvus collection name.
	VectorName string
}

// RetrieverConfig configures hybrid retrieval.
type RetrieverConfig struct {
	// TopK is the number of chunks to return.
	TopK int
	// DenseWeight is the dense leg's share of the ensemble score. The sparse
	// leg gets the complement. 0.5 splits evenly.
	DenseWeight float64
}

// DefaultRetrieverConfig returns the default retrieval configuration.
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		TopK:        5,
		DenseWeight: 0.5,
	}
}

// Retriever performs hybrid dense+sparse retrieval with query rewriting.
type Retriever struct {
	vectors  store.VectorStore
	sparse   *SparseStore
	embedder llm.EmbeddingProvider
	rewriter *Rewriter
	cfg      *RetrieverConfig
}

// NewRetriever creates a hybrid retriever.
func NewRetriever(vectors store.VectorStore, sparse *SparseStore, embedder llm.EmbeddingProvider, rewriter *Rewriter, cfg *RetrieverConfig) *Retriever {
	if cfg == nil {
		cfg = DefaultRetrieverConfig()
	}
	return &Retriever{
		vectors:  vectors,
		sparse:   sparse,
		embedder: embedder,
		rewriter: rewriter,
		cfg:      cfg,
	}
}

// Retrieve returns the top chunks for the query from the collection.
//
// The dense leg always runs, searching with the embedding of the rewritten
// query. The sparse leg runs when a snapshot exists; an absent or failing
// snapshot only drops the sparse contribution. Both ranked lists are fused
// with weighted reciprocal rank scores and deduplicated by chunk text.
func (r *Retriever) Retrieve(ctx context.Context, ref CollectionRef, query string) ([]*store.SearchResult, error) {
	embedText := query
	if r.rewriter != nil {
		embedText = r.rewriter.Rewrite(ctx, query)
	}

	embedding, err := r.embedder.EmbedSingle(ctx, embedText)
	if err != nil {
		if embedText == query {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		// The rewritten passage failed to embed, retry with the raw query.
		logger.Warnw("failed to embed rewritten query, retrying with raw query",
			"error", err.Error())
		embedding, err = r.embedder.EmbedSingle(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
	}

	var (
		denseResults  []*store.SearchResult
		sparseResults []SparseHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseResults, err = r.vectors.Search(gctx, ref.VectorName, embedding, r.cfg.TopK)
		if err != nil {
			return fmt.Errorf("dense search failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		idx, err := r.sparse.Load(gctx, ref.ID)
		if err != nil {
			// Sparse is a derived index, losing it degrades rather than fails.
			logger.Warnw("failed to load sparse snapshot, dense-only retrieval",
				"collection", ref.ID, "error", err.Error())
			return nil
		}
		if idx != nil {
			sparseResults = idx.Search(query, r.cfg.TopK)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(sparseResults) == 0 {
		return denseResults, nil
	}
	return r.fuse(denseResults, sparseResults), nil
}

// fuse combines both ranked lists with weighted reciprocal rank scores.
// Identical chunk text counts as the same citation, keeping whichever
// occurrence came first and summing the leg contributions.
func (r *Retriever) fuse(dense []*store.SearchResult, sparse []SparseHit) []*store.SearchResult {
	denseWeight := r.cfg.DenseWeight
	sparseWeight := 1 - denseWeight

	type fused struct {
		result *store.SearchResult
		score  float64
		order  int
	}
	byContent := make(map[string]*fused, len(dense)+len(sparse))
	order := 0

	add := func(result *store.SearchResult, rank int, weight float64) {
		score := weight / float64(rank+rrfC)
		if f, ok := byContent[result.Content]; ok {
			f.score += score
			return
		}
		byContent[result.Content] = &fused{result: result, score: score, order: order}
		order++
	}

	for rank, result := range dense {
		add(result, rank, denseWeight)
	}
	for rank, hit := range sparse {
		add(&store.SearchResult{
			ID:           hit.Chunk.ID,
			DocumentID:   hit.Chunk.DocumentID,
			DocumentName: hit.Chunk.DocumentName,
			Content:      hit.Chunk.Content,
			Score:        hit.Score,
		}, rank, sparseWeight)
	}

	merged := make([]*fused, 0, len(byContent))
	for _, f := range byContent {
		merged = append(merged, f)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].order < merged[j].order
	})

	results := make([]*store.SearchResult, 0, r.cfg.TopK)
	for _, f := range merged {
		f.result.Score = f.score
		results = append(results, f.result)
		if len(results) == r.cfg.TopK {
			break
		}
	}
	return results
}
