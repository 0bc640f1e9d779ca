package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEmbedder returns deterministic normalized vectors for testing.
type testEmbedder struct {
	vectorSize int
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a normalized embedding based on text hash.
func (e *testEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.vectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	// chromem requires normalized vectors.
	if sumSq > 0 {
		norm := 1.0 / sqrt32(sumSq)
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func newTestStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(
		vectorstore.ChromemConfig{Collection: "test_terms"},
		&testEmbedder{vectorSize: 64},
		zap.NewNop(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewChromemStoreRequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestUpsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []vectorstore.Document{
		{ID: "1", Content: "Account Number - A unique customer account identifier", Metadata: map[string]string{"id": "1", "name": "Account Number"}},
		{ID: "2", Content: "Interest Rate - Annual percentage applied to a balance", Metadata: map[string]string{"id": "2", "name": "Interest Rate"}},
	}
	require.NoError(t, store.Upsert(ctx, docs))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Query(ctx, "Account Number - A unique customer account identifier", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "Account Number", results[0].Metadata["name"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestUpsertEmptyDocuments(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(context.Background(), nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestQueryEmptyIndexReturnsEmpty(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryClampsKToCollectionSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Document{
		{ID: "1", Content: "only document"},
	}))

	results, err := store.Query(ctx, "only document", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDeleteByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Document{
		{ID: "1", Content: "first"},
		{ID: "2", Content: "second"},
	}))
	require.NoError(t, store.Delete(ctx, "1"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteAllClearsIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []vectorstore.Document{
		{ID: "1", Content: "first"},
		{ID: "2", Content: "second"},
	}))
	require.NoError(t, store.Delete(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The store remains usable after a clear.
	require.NoError(t, store.Upsert(ctx, []vectorstore.Document{
		{ID: "3", Content: "third"},
	}))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
