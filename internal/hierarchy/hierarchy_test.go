package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorEmbedder returns preset vectors keyed by text.
type vectorEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *vectorEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectors[text]
	}
	return out, nil
}

func (e *vectorEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vectors[text], nil
}

func term(id, name, definition string) catalog.BusinessTerm {
	return catalog.BusinessTerm{ID: id, Name: name, Definition: definition}
}

func TestRebuildSelectsShortGeneralNames(t *testing.T) {
	// Five terms: "Account" is short and similar to everything, so it must
	// land in the broader set (ceil(0.2*5) = 1 slot).
	terms := []catalog.BusinessTerm{
		term("1", "Account", "Any customer account"),
		term("2", "Drawdown Client Account Number", "Numeric identifier for a drawdown account"),
		term("3", "Customer Account Reference Code", "Reference code for customer accounts"),
		term("4", "Account Interest Accrual Date", "Date interest accrues on an account"),
		term("5", "Savings Account Opening Balance", "Opening balance of a savings account"),
	}

	vectors := map[string][]float32{}
	// "Account" points along both axes; the specific terms cluster near it.
	vectors[terms[0].EmbeddingText()] = []float32{0.7, 0.7, 0}
	vectors[terms[1].EmbeddingText()] = []float32{1, 0.2, 0}
	vectors[terms[2].EmbeddingText()] = []float32{0.9, 0.4, 0}
	vectors[terms[3].EmbeddingText()] = []float32{0.3, 1, 0}
	vectors[terms[4].EmbeddingText()] = []float32{0.5, 0.9, 0}

	b := NewBuilder(&vectorEmbedder{vectors: vectors}, nil)
	b.Rebuild(context.Background(), terms)

	h := b.Current()
	require.Len(t, h.BroaderTerms, 1)
	assert.Equal(t, "1", h.BroaderTerms[0])

	g := h.Generality["1"]
	assert.Greater(t, g.AvgSimilarity, 0.0)
	assert.Equal(t, 1, g.NameLength)
	// Name length 1 of max 4 keeps most of the average similarity.
	assert.InDelta(t, g.AvgSimilarity*(1-0.25), g.GeneralityScore, 1e-9)
}

func TestRebuildBroaderCountIsCeil20Percent(t *testing.T) {
	var terms []catalog.BusinessTerm
	vectors := map[string][]float32{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		tm := term(id, "Term "+id, "Definition "+id)
		terms = append(terms, tm)
		vectors[tm.EmbeddingText()] = []float32{1, float32(len(vectors))}
	}

	b := NewBuilder(&vectorEmbedder{vectors: vectors}, nil)
	b.Rebuild(context.Background(), terms)

	// ceil(0.2 * 6) = 2.
	assert.Len(t, b.Current().BroaderTerms, 2)
}

func TestRebuildAvgSimilarityIsMeanOverOtherTerms(t *testing.T) {
	terms := []catalog.BusinessTerm{
		term("1", "Account", "Any account"),
		term("2", "Balance", "Any balance"),
		term("3", "Rate", "Any rate"),
	}
	vectors := map[string][]float32{
		terms[0].EmbeddingText(): {1, 0},
		terms[1].EmbeddingText(): {0, 1},
		terms[2].EmbeddingText(): {1, 0},
	}

	b := NewBuilder(&vectorEmbedder{vectors: vectors}, nil)
	b.Rebuild(context.Background(), terms)

	// Term 1 sees similarities {0, 1} against the two other terms: mean 0.5.
	assert.InDelta(t, 0.5, b.Current().Generality["1"].AvgSimilarity, 1e-9)
}

func TestRebuildSingleTerm(t *testing.T) {
	tm := term("1", "Account", "Any account")
	b := NewBuilder(&vectorEmbedder{vectors: map[string][]float32{
		tm.EmbeddingText(): {1, 0},
	}}, nil)
	b.Rebuild(context.Background(), []catalog.BusinessTerm{tm})

	// Minimum of one broader term even for a single-term catalog.
	assert.Equal(t, []string{"1"}, b.Current().BroaderTerms)
}

func TestRebuildFailureFallsBackToEmpty(t *testing.T) {
	terms := []catalog.BusinessTerm{
		term("1", "Account", "Any account"),
		term("2", "Balance", "Any balance"),
	}

	b := NewBuilder(&vectorEmbedder{vectors: map[string][]float32{
		terms[0].EmbeddingText(): {1, 0},
		terms[1].EmbeddingText(): {0, 1},
	}}, nil)
	b.Rebuild(context.Background(), terms)
	require.NotEmpty(t, b.Current().BroaderTerms)

	// A failing provider wipes the hierarchy rather than erroring out.
	b.embedder = &vectorEmbedder{err: errors.New("provider down")}
	b.Rebuild(context.Background(), terms)
	assert.Empty(t, b.Current().BroaderTerms)
}

func TestRebuildEmptyCatalog(t *testing.T) {
	b := NewBuilder(&vectorEmbedder{}, nil)
	b.Rebuild(context.Background(), nil)
	assert.Empty(t, b.Current().BroaderTerms)
	assert.NotNil(t, b.Current().Generality)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
