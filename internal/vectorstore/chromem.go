package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("termmapd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the index
	// in memory only.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	// Default: "termmapd_terms"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "termmapd_terms"
	}
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, optional gob persistence.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	// mu guards collection, which is recreated on a full clear.
	mu         sync.Mutex
	collection *chromem.Collection
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		expandedPath, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expandedPath, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
		}
		db, err = chromem.NewPersistentDB(expandedPath, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, store.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}
	store.collection = collection

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder interface to chromem.EmbeddingFunc.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Upsert adds or replaces documents in the index.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}

	s.mu.Lock()
	collection := s.collection
	s.mu.Unlock()

	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	s.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

// Query returns up to k results ordered by similarity (highest first).
func (s *ChromemStore) Query(ctx context.Context, query string, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.Lock()
	collection := s.collection
	s.mu.Unlock()

	// chromem rejects nResults greater than the collection size.
	count := collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	return searchResults, nil
}

// Delete removes documents by id. With no ids it clears the whole index by
// recreating the collection.
func (s *ChromemStore) Delete(ctx context.Context, ids ...string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) > 0 {
		if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deleting documents: %w", err)
		}
		return nil
	}

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting collection: %w", err)
	}
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("recreating collection: %w", err)
	}
	s.collection = collection

	s.logger.Debug("index cleared", zap.String("collection", s.config.Collection))
	return nil
}

// Count returns the number of indexed documents.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count(), nil
}

// Close releases resources. chromem-go persists incrementally, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}
