package store

import (
	"context"
)

// Chunk represents a contiguous piece of a document.
type Chunk struct {
	// ID is the chunk ID assigned by the vector store.
	ID string
	// DocumentID is the owning document ID.
	DocumentID string
	// DocumentName is the owning document title.
	DocumentName string
	// Seq is the chunk's position within the document.
	Seq int
	// Content is the chunk text.
	Content string
	// Embedding is the dense vector for the chunk.
	Embedding []float32
}

// SearchResult represents one retrieved chunk.
type SearchResult struct {
	// ID is the chunk ID.
	ID string
	// DocumentID is the owning document ID.
	DocumentID string
	// DocumentName is the owning document title.
	DocumentName string
	// Content is the chunk text.
	Content string
	// Score is the similarity score, larger is better.
	Score float64
}

// CollectionConfig describes a vector collection.
type CollectionConfig struct {
	// Name is the vector collection name.
	Name string
	// Description is a human readable description.
	Description string
	// Dimension is the embedding dimension.
	Dimension int
}

// VectorStore defines the dense vector storage interface.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, config *CollectionConfig) error

	// DropCollection removes the collection and all its vectors.
	DropCollection(ctx context.Context, collection string) error

	// Insert adds chunks with their embeddings.
	Insert(ctx context.Context, collection string, chunks []*Chunk) ([]string, error)

	// DeleteByDocument removes every chunk of a document.
	// Deleting a document with no chunks is not an error.
	DeleteByDocument(ctx context.Context, collection, documentID string) error

	// Search performs a vector similarity search.
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error)

	// All returns every chunk in the collection, without embeddings.
	// Used when rebuilding the sparse index.
	All(ctx context.Context, collection string) ([]*Chunk, error)

	// Count returns the number of chunks in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// Close closes the underlying connection.
	Close(ctx context.Context) error
}

// BlobStore defines the object storage interface for snapshots and uploads.
type BlobStore interface {
	// Put stores an object, replacing any existing one under the key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves an object. Missing keys yield minio.ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}
