package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/component/minio"
)

// BM25 ranking parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// SparseChunk is one indexed passage in the sparse index.
type SparseChunk struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	Content      string `json:"content"`
}

// SparseHit is one sparse search result.
type SparseHit struct {
	Chunk SparseChunk
	Score float64
}

// BM25Index ranks passages with BM25 over lowercase alphanumeric tokens.
// An index is immutable after construction.
type BM25Index struct {
	chunks  []SparseChunk
	tf      []map[string]int
	docLen  []int
	df      map[string]int
	avgLen  float64
	builtAt time.Time
}

// BuildBM25 constructs an index over the given chunks.
func BuildBM25(chunks []SparseChunk) *BM25Index {
	idx := &BM25Index{
		chunks:  chunks,
		tf:      make([]map[string]int, len(chunks)),
		docLen:  make([]int, len(chunks)),
		df:      make(map[string]int),
		builtAt: time.Now(),
	}

	total := 0
	for i, chunk := range chunks {
		tokens := tokenize(chunk.Content)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		idx.tf[i] = freq
		idx.docLen[i] = len(tokens)
		total += len(tokens)
		for tok := range freq {
			idx.df[tok]++
		}
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *BM25Index) Len() int {
	return len(idx.chunks)
}

// Chunks returns the indexed chunks.
func (idx *BM25Index) Chunks() []SparseChunk {
	return idx.chunks
}

// Search returns the top-k chunks for the query by BM25 score.
// Chunks scoring zero are omitted.
func (idx *BM25Index) Search(query string, topK int) []SparseHit {
	tokens := tokenize(query)
	if len(tokens) == 0 || len(idx.chunks) == 0 {
		return nil
	}

	n := float64(len(idx.chunks))
	scores := make([]float64, len(idx.chunks))
	for _, tok := range tokens {
		df, ok := idx.df[tok]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i := range idx.chunks {
			f := float64(idx.tf[i][tok])
			if f == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLen[i])/idx.avgLen
			scores[i] += idf * f * (bm25K1 + 1) / (f + bm25K1*norm)
		}
	}

	hits := make([]SparseHit, 0, len(idx.chunks))
	for i, score := range scores {
		if score > 0 {
			hits = append(hits, SparseHit{Chunk: idx.chunks[i], Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// sparseSnapshot is the persisted form of a BM25 index. Term statistics are
// recomputed on load, only the passages and build metadata are stored.
type sparseSnapshot struct {
	Version string        `json:"version"`
	BuiltAt time.Time     `json:"built_at"`
	Chunks  []SparseChunk `json:"chunks"`
}

// SparseStore persists BM25 snapshots in blob storage.
//
// Writes are versioned: the snapshot body goes to a fresh version key first,
// then a fixed pointer key is swapped to reference it, so a concurrent reader
// either sees the previous complete snapshot or the new one, never a partial
// write.
type SparseStore struct {
	blobs store.BlobStore
}

// NewSparseStore creates a sparse snapshot store.
func NewSparseStore(blobs store.BlobStore) *SparseStore {
	return &SparseStore{blobs: blobs}
}

func sparsePointerKey(collection string) string {
	return fmt.Sprintf("bm25/%s/current", collection)
}

func sparseVersionKey(collection, version string) string {
	return fmt.Sprintf("bm25/%s/%s.json", collection, version)
}

// Save persists the index for a collection. An index with no chunks removes
// the stored snapshot instead, so an emptied collection never serves stale
// sparse results.
func (s *SparseStore) Save(ctx context.Context, collection string, idx *BM25Index) error {
	if idx == nil || idx.Len() == 0 {
		return s.Delete(ctx, collection)
	}

	version := uuid.NewString()
	snapshot := sparseSnapshot{
		Version: version,
		BuiltAt: idx.builtAt,
		Chunks:  idx.Chunks(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal sparse snapshot: %w", err)
	}

	prev := s.currentVersion(ctx, collection)

	versionKey := sparseVersionKey(collection, version)
	if err := s.blobs.Put(ctx, versionKey, data, "application/json"); err != nil {
		return fmt.Errorf("failed to write sparse snapshot: %w", err)
	}
	if err := s.blobs.Put(ctx, sparsePointerKey(collection), []byte(version), "text/plain"); err != nil {
		return fmt.Errorf("failed to swap sparse snapshot pointer: %w", err)
	}

	// The old version is unreachable once the pointer moved.
	if prev != "" && prev != version {
		if err := s.blobs.Delete(ctx, sparseVersionKey(collection, prev)); err != nil {
			logger.Warnw("failed to delete previous sparse snapshot",
				"collection", collection, "version", prev, "error", err.Error())
		}
	}

	logger.Infow("sparse snapshot saved",
		"collection", collection, "version", version, "chunks", idx.Len())
	return nil
}

// Load returns the current index for a collection, or nil when no snapshot
// exists. A corrupt snapshot is treated as absent and logged, never surfaced
// as an error.
func (s *SparseStore) Load(ctx context.Context, collection string) (*BM25Index, error) {
	version := s.currentVersion(ctx, collection)
	if version == "" {
		return nil, nil
	}

	data, err := s.blobs.Get(ctx, sparseVersionKey(collection, version))
	if err != nil {
		if errors.Is(err, minio.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sparse snapshot: %w", err)
	}

	var snapshot sparseSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		logger.Warnw("corrupt sparse snapshot treated as absent",
			"collection", collection, "version", version, "error", err.Error())
		return nil, nil
	}

	return BuildBM25(snapshot.Chunks), nil
}

// Delete removes the snapshot and its pointer for a collection.
func (s *SparseStore) Delete(ctx context.Context, collection string) error {
	version := s.currentVersion(ctx, collection)
	if err := s.blobs.Delete(ctx, sparsePointerKey(collection)); err != nil {
		return fmt.Errorf("failed to delete sparse snapshot pointer: %w", err)
	}
	if version != "" {
		if err := s.blobs.Delete(ctx, sparseVersionKey(collection, version)); err != nil {
			logger.Warnw("failed to delete sparse snapshot body",
				"collection", collection, "version", version, "error", err.Error())
		}
	}
	return nil
}

// currentVersion reads the pointer key, returning "" when absent or unreadable.
func (s *SparseStore) currentVersion(ctx context.Context, collection string) string {
	data, err := s.blobs.Get(ctx, sparsePointerKey(collection))
	if err != nil {
		if !errors.Is(err, minio.ErrObjectNotFound) {
			logger.Warnw("failed to read sparse snapshot pointer",
				"collection", collection, "error", err.Error())
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}
