package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tessera-ai/tessera/pkg/component/minio"
)

// MemoryVectorStore is an in-memory VectorStore used in tests and for
// single-node development without Milvus.
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string][]*Chunk
	nextID      int64
}

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		collections: make(map[string][]*Chunk),
	}
}

var _ VectorStore = (*MemoryVectorStore)(nil)

// EnsureCollection creates the collection if it does not exist.
func (s *MemoryVectorStore) EnsureCollection(_ context.Context, config *CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[config.Name]; !ok {
		s.collections[config.Name] = nil
	}
	return nil
}

// DropCollection removes the collection and its chunks.
func (s *MemoryVectorStore) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Insert adds chunks and assigns them IDs.
func (s *MemoryVectorStore) Insert(_ context.Context, collection string, chunks []*Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		s.nextID++
		stored := *chunk
		stored.ID = fmt.Sprintf("%d", s.nextID)
		s.collections[collection] = append(s.collections[collection], &stored)
		ids[i] = stored.ID
	}
	return ids, nil
}

// DeleteByDocument removes every chunk of a document.
func (s *MemoryVectorStore) DeleteByDocument(_ context.Context, collection, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.collections[collection]
	kept := chunks[:0]
	for _, chunk := range chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	if len(chunks) > 0 {
		s.collections[collection] = kept
	}
	return nil
}

// Search ranks chunks by cosine similarity to the query embedding.
func (s *MemoryVectorStore) Search(_ context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.collections[collection]
	results := make([]*SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, &SearchResult{
			ID:           chunk.ID,
			DocumentID:   chunk.DocumentID,
			DocumentName: chunk.DocumentName,
			Content:      chunk.Content,
			Score:        cosine(embedding, chunk.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// All returns every chunk in the collection.
func (s *MemoryVectorStore) All(_ context.Context, collection string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.collections[collection]
	out := make([]*Chunk, len(chunks))
	for i, chunk := range chunks {
		copied := *chunk
		copied.Embedding = nil
		out[i] = &copied
	}
	return out, nil
}

// Count returns the number of chunks in the collection.
func (s *MemoryVectorStore) Count(_ context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collection])), nil
}

// Close is a no-op.
func (s *MemoryVectorStore) Close(_ context.Context) error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MemoryBlobStore is an in-memory BlobStore used in tests.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string][]byte),
	}
}

var _ BlobStore = (*MemoryBlobStore)(nil)

// The MinIO component client satisfies BlobStore directly.
var _ BlobStore = (*minio.Client)(nil)

// Put stores an object, replacing any existing one under the key.
func (s *MemoryBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

// Get retrieves an object by key.
func (s *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, minio.ErrObjectNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Delete removes an object by key.
func (s *MemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
