package ranker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/fyrsmithlabs/termmapd/internal/hierarchy"
	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns canned search results and records the requested k.
type fakeIndex struct {
	results []vectorstore.SearchResult
	err     error
	lastK   int
}

func (f *fakeIndex) Query(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fixedHierarchy serves a preset hierarchy.
type fixedHierarchy struct {
	h *hierarchy.Hierarchy
}

func (f *fixedHierarchy) Current() *hierarchy.Hierarchy {
	if f.h == nil {
		return &hierarchy.Hierarchy{Generality: map[string]hierarchy.Generality{}}
	}
	return f.h
}

func result(id, name, definition, category, synonyms string, score float32) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:    id,
		Score: score,
		Metadata: map[string]string{
			catalog.MetaID:         id,
			catalog.MetaName:       name,
			catalog.MetaDefinition: definition,
			catalog.MetaCategory:   category,
			catalog.MetaSynonyms:   synonyms,
		},
	}
}

func newRepo(terms ...catalog.BusinessTerm) *catalog.Repository {
	repo := catalog.NewRepository()
	repo.Replace(terms)
	return repo
}

func TestFindSimilarSynonymBoost(t *testing.T) {
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "Account Number", "A unique customer account identifier", "", "account no, acct number", 0.70),
		result("2", "Interest Rate", "Annual percentage applied", "", "apr", 0.80),
	}}
	r := ranker.New(index, newRepo(), &fixedHierarchy{}, nil)

	matches, err := r.FindSimilar(context.Background(), "drawdown client account number", 2, false)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// "account no" intersects the query tokens, so term 1 gets the flat
	// 20% boost and overtakes term 2.
	assert.Equal(t, "1", matches[0].TermID)
	assert.True(t, matches[0].SynonymMatched)
	assert.Equal(t, "account no", matches[0].MatchedSynonym)
	assert.InDelta(t, 0.70*1.20, matches[0].SimilarityScore, 1e-9)

	assert.Equal(t, "2", matches[1].TermID)
	assert.False(t, matches[1].SynonymMatched)
	assert.InDelta(t, 0.80, matches[1].SimilarityScore, 1e-9)
}

func TestFindSimilarBoostAppliedOnce(t *testing.T) {
	// Two synonyms intersect the query; the boost must not compound and the
	// first matching synonym wins.
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "Account Number", "A unique identifier", "", "account no, client account", 0.5),
	}}
	r := ranker.New(index, newRepo(), &fixedHierarchy{}, nil)

	matches, err := r.FindSimilar(context.Background(), "client account number", 1, false)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.5*1.20, matches[0].SimilarityScore, 1e-9)
	assert.Equal(t, "account no", matches[0].MatchedSynonym)
}

func TestFindSimilarOverFetchesAndTruncates(t *testing.T) {
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "A", "d", "", "", 0.9),
		result("2", "B", "d", "", "", 0.8),
		result("3", "C", "d", "", "", 0.7),
		result("4", "D", "d", "", "", 0.6),
	}}
	r := ranker.New(index, newRepo(), &fixedHierarchy{}, nil)

	matches, err := r.FindSimilar(context.Background(), "query", 2, false)
	require.NoError(t, err)

	assert.Equal(t, 4, index.lastK, "retrieves 2*topN candidates")
	require.Len(t, matches, 2)
	assert.Equal(t, "1", matches[0].TermID)
	assert.Equal(t, "2", matches[1].TermID)
}

func TestFindSimilarDeterministicTieBreak(t *testing.T) {
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("9", "Z", "d", "", "", 0.5),
		result("3", "Y", "d", "", "", 0.5),
		result("1", "X", "d", "", "", 0.5),
	}}
	r := ranker.New(index, newRepo(), &fixedHierarchy{}, nil)

	matches, err := r.FindSimilar(context.Background(), "query", 3, false)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"1", "3", "9"},
		[]string{matches[0].TermID, matches[1].TermID, matches[2].TermID})
}

func TestFindSimilarEmptyIndex(t *testing.T) {
	r := ranker.New(&fakeIndex{}, newRepo(), &fixedHierarchy{}, nil)

	matches, err := r.FindSimilar(context.Background(), "query", 5, true)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilarIndexError(t *testing.T) {
	r := ranker.New(&fakeIndex{err: errors.New("index down")}, newRepo(), &fixedHierarchy{}, nil)

	_, err := r.FindSimilar(context.Background(), "query", 5, false)
	assert.Error(t, err)
}

func TestFindSimilarBroaderMatches(t *testing.T) {
	repo := newRepo(
		catalog.BusinessTerm{ID: "10", Name: "Account", Definition: "Any account"},
		catalog.BusinessTerm{ID: "11", Name: "Customer Account Reference", Definition: "Reference"},
		catalog.BusinessTerm{ID: "12", Name: "Identifier", Definition: "Any identifier"},
		catalog.BusinessTerm{ID: "13", Name: "Code", Definition: "Any code"},
		catalog.BusinessTerm{ID: "14", Name: "Reference Data", Definition: "Reference data"},
	)
	h := &fixedHierarchy{h: &hierarchy.Hierarchy{
		Generality: map[string]hierarchy.Generality{},
		// "1" duplicates a specific match and must be excluded; the rest
		// sort by name token count then id, capped at 3.
		BroaderTerms: []string{"1", "11", "10", "14", "12", "13"},
	}}

	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "Account Number", "A unique identifier", "", "", 0.9),
	}}
	r := ranker.New(index, repo, h, nil)

	matches, err := r.FindSimilar(context.Background(), "account number", 5, true)
	require.NoError(t, err)
	require.Len(t, matches, 4)

	assert.Equal(t, ranker.MatchSpecific, matches[0].MatchType)

	broader := matches[1:]
	for _, m := range broader {
		assert.Equal(t, ranker.MatchBroader, m.MatchType)
		assert.InDelta(t, 0.5, m.SimilarityScore, 1e-9)
	}
	// One-token names first (id tie-break), never more than 3.
	assert.Equal(t, []string{"10", "12", "13"},
		[]string{broader[0].TermID, broader[1].TermID, broader[2].TermID})
}

func TestFindSimilarBroaderSkippedWhenDisabled(t *testing.T) {
	repo := newRepo(catalog.BusinessTerm{ID: "10", Name: "Account", Definition: "Any account"})
	h := &fixedHierarchy{h: &hierarchy.Hierarchy{BroaderTerms: []string{"10"}}}
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "Account Number", "A unique identifier", "", "", 0.9),
	}}
	r := ranker.New(index, repo, h, nil)

	matches, err := r.FindSimilar(context.Background(), "account number", 5, false)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, ranker.MatchSpecific, matches[0].MatchType)
}

func TestFindSimilarDeterministicMembership(t *testing.T) {
	index := &fakeIndex{results: []vectorstore.SearchResult{
		result("1", "Account Number", "A unique identifier", "", "account no", 0.7),
		result("2", "Account Identifier", "A general identifier", "Identification", "", 0.6),
	}}
	r := ranker.New(index, newRepo(), &fixedHierarchy{}, nil)

	first, err := r.FindSimilar(context.Background(), "drawdown client account number", 2, false)
	require.NoError(t, err)
	second, err := r.FindSimilar(context.Background(), "drawdown client account number", 2, false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
