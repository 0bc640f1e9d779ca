package confidence

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func candidate() ranker.MatchCandidate {
	return ranker.MatchCandidate{
		TermID:     "42",
		Name:       "Customer Identifier",
		Definition: "Unique identifier assigned to a customer.",
		Category:   "Customer",
		MatchType:  ranker.MatchSpecific,
	}
}

func newEvaluator(t *testing.T, gen *fakeGenerator) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator(gen, 16, zap.NewNop())
	require.NoError(t, err)
	return eval
}

func TestEvaluateParsesStrictJSON(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": 85, "explanation": "Strong semantic overlap."}`}
	eval := newEvaluator(t, gen)

	score := eval.Evaluate(context.Background(), "cust id", candidate())

	assert.Equal(t, 85.0, score.Score)
	assert.Equal(t, "Strong semantic overlap.", score.Explanation)
}

func TestEvaluateExtractsEmbeddedJSON(t *testing.T) {
	gen := &fakeGenerator{response: "Here is my evaluation:\n{\"score\": 72, \"explanation\": \"Good match\"}\nHope that helps."}
	eval := newEvaluator(t, gen)

	score := eval.Evaluate(context.Background(), "cust id", candidate())

	assert.Equal(t, 72.0, score.Score)
	assert.Equal(t, "Good match", score.Explanation)
}

func TestEvaluateStringScoreCoerced(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": "64", "explanation": "stringly"}`}
	eval := newEvaluator(t, gen)

	score := eval.Evaluate(context.Background(), "cust id", candidate())

	assert.Equal(t, 64.0, score.Score)
}

func TestEvaluateGarbageFallsBackToDefault(t *testing.T) {
	gen := &fakeGenerator{response: "I cannot evaluate this match."}
	eval := newEvaluator(t, gen)

	score := eval.Evaluate(context.Background(), "cust id", candidate())

	assert.Equal(t, 50.0, score.Score)
	assert.Contains(t, score.Explanation, "Could not parse")
}

func TestEvaluateProviderErrorFallsBackToDefault(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	eval := newEvaluator(t, gen)

	score := eval.Evaluate(context.Background(), "cust id", candidate())

	assert.Equal(t, 50.0, score.Score)
	assert.Contains(t, score.Explanation, "unavailable")
}

func TestEvaluateClampsOutOfRangeScores(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"above range", `{"score": 130, "explanation": "x"}`, 100},
		{"below range", `{"score": -5, "explanation": "x"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newEvaluator(t, &fakeGenerator{response: tt.response})
			score := eval.Evaluate(context.Background(), "q", candidate())
			assert.Equal(t, tt.want, score.Score)
		})
	}
}

func TestEvaluateCachesByNormalizedQuery(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": 90, "explanation": "cached"}`}
	eval := newEvaluator(t, gen)

	first := eval.Evaluate(context.Background(), "Customer ID", candidate())
	second := eval.Evaluate(context.Background(), "  customer id  ", candidate())

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls)
}

func TestEvaluateCacheKeyDoesNotCollideOnColons(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": 90, "explanation": "x"}`}
	eval := newEvaluator(t, gen)

	first := candidate()
	first.TermID = "2"
	second := candidate()
	second.TermID = "1:2"

	// Naive "query:termID" concatenation would key both as "foo:1:2".
	eval.Evaluate(context.Background(), "foo:1", first)
	eval.Evaluate(context.Background(), "foo", second)

	assert.Equal(t, 2, gen.calls)
}

func TestEvaluateCacheEvictsLeastRecentlyUsed(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": 90, "explanation": "x"}`}
	eval, err := NewEvaluator(gen, 2, zap.NewNop())
	require.NoError(t, err)

	a, b, c := candidate(), candidate(), candidate()
	a.TermID, b.TermID, c.TermID = "a", "b", "c"

	eval.Evaluate(context.Background(), "q", a)
	eval.Evaluate(context.Background(), "q", b)
	eval.Evaluate(context.Background(), "q", c)
	assert.Equal(t, 3, gen.calls)

	// c is the most recent entry and still cached.
	eval.Evaluate(context.Background(), "q", c)
	assert.Equal(t, 3, gen.calls)

	// a was evicted at capacity 2 and must be re-scored.
	eval.Evaluate(context.Background(), "q", a)
	assert.Equal(t, 4, gen.calls)
}

func TestEvaluateCacheDistinguishesTerms(t *testing.T) {
	gen := &fakeGenerator{response: `{"score": 90, "explanation": "x"}`}
	eval := newEvaluator(t, gen)

	other := candidate()
	other.TermID = "43"

	eval.Evaluate(context.Background(), "customer id", candidate())
	eval.Evaluate(context.Background(), "customer id", other)

	assert.Equal(t, 2, gen.calls)
}
