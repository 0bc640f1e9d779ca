// Package vectorstore defines the interface for vector index operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document represents a term document to be stored in the vector index.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the embedded text.
	Content string

	// Metadata contains string key-value pairs returned with search
	// results. The catalog loader stores term fields and the synonym
	// string here so queries need no second repository lookup.
	Metadata map[string]string
}

// SearchResult represents a nearest-neighbor hit.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the cosine similarity (higher = more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]string
}

// Store is the interface for the vector index.
//
// The classification engine treats the index as an opaque nearest-neighbor
// provider: upsert documents, query by text, delete by id.
type Store interface {
	// Upsert adds or replaces documents in the index.
	Upsert(ctx context.Context, docs []Document) error

	// Query returns up to k results ordered by similarity (highest first).
	// An empty index yields an empty slice, not an error.
	Query(ctx context.Context, query string, k int) ([]SearchResult, error)

	// Delete removes documents by id. With no ids it clears the whole index.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
