// Package confidence scores the quality of a (query, matched-term) pair on
// a 0-100 scale via a text generation capability.
package confidence

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/termmapd/internal/llm"
	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// defaultScore is the midpoint fallback when the provider response is
// unusable.
const defaultScore = 50

// scorePrompt asks for a strict JSON object; the parser still tolerates
// prose around it.
const scorePrompt = `You are an expert system that evaluates the confidence of matches between user-provided terms and standard Preferred Business Terms (PBT). Analyze the semantic similarity, contextual relevance, and overall appropriateness of the match.

Provide a confidence score between 0 and 100, where:
- 0-20: Very low confidence. The match seems arbitrary or incorrect.
- 21-40: Low confidence. There's a vague relationship but likely not the best match.
- 41-60: Moderate confidence. There's a reasonable connection but potentially better alternatives.
- 61-80: High confidence. The match is strong and likely appropriate.
- 81-100: Very high confidence. The match is excellent and almost certainly correct.

Return your evaluation as a JSON object with the following fields:
- score: (number between 0-100)
- explanation: (string explaining your reasoning)

User Input: %s

Matched term:
ID: %s
Name: %s
Definition: %s
Category: %s

Additional Information:
- Match Type: %s
- Was matched via synonym: %s

Evaluate the confidence of this match.`

// jsonBlockPattern extracts the outermost {...} block from a response that
// wraps its JSON in prose.
var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Score is a calibrated confidence estimate. Score is always in [0,100].
type Score struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Evaluator scores matches with a memoization cache keyed by the normalized
// query and term id.
//
// Evaluate never returns an error: any internal failure degrades to a
// midpoint score with an explanatory message.
type Evaluator struct {
	generator llm.Generator
	cache     *lru.Cache[string, Score]
	logger    *zap.Logger
}

// NewEvaluator creates an evaluator with a bounded LRU cache.
func NewEvaluator(generator llm.Generator, cacheSize int, logger *zap.Logger) (*Evaluator, error) {
	if cacheSize < 1 {
		cacheSize = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, Score](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating confidence cache: %w", err)
	}
	return &Evaluator{
		generator: generator,
		cache:     cache,
		logger:    logger.Named("confidence"),
	}, nil
}

// Evaluate scores how well candidate answers the query.
//
// Cache hits return the stored score unchanged; entries live for the
// process lifetime (no TTL), which keeps repeated identical queries from
// re-invoking the provider.
func (e *Evaluator) Evaluate(ctx context.Context, query string, candidate ranker.MatchCandidate) Score {
	key := cacheKey(query, candidate.TermID)
	if cached, ok := e.cache.Get(key); ok {
		e.logger.Debug("confidence cache hit", zap.String("term_id", candidate.TermID))
		return cached
	}

	score := e.evaluate(ctx, query, candidate)

	// Fallbacks are cached too: a flaky provider should not be retried on
	// every identical request.
	e.cache.Add(key, score)
	return score
}

// evaluate invokes the provider and parses its response.
func (e *Evaluator) evaluate(ctx context.Context, query string, candidate ranker.MatchCandidate) Score {
	synonymNote := "No"
	if candidate.SynonymMatched {
		synonymNote = "Yes"
	}
	category := candidate.Category
	if category == "" {
		category = "N/A"
	}

	prompt := fmt.Sprintf(scorePrompt,
		query,
		candidate.TermID,
		candidate.Name,
		candidate.Definition,
		category,
		candidate.MatchType,
		synonymNote,
	)

	response, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("confidence generation failed",
			zap.String("term_id", candidate.TermID),
			zap.Error(err))
		return Score{
			Score:       defaultScore,
			Explanation: fmt.Sprintf("Confidence provider unavailable: %v. Using default medium confidence.", err),
		}
	}

	return parseScore(response)
}

// parseScore recovers a Score from the provider response: strict JSON
// first, then the outermost {...} block, then the midpoint default.
func parseScore(response string) Score {
	if score, ok := decodeScorePayload([]byte(response)); ok {
		return clamp(score)
	}

	if block := jsonBlockPattern.FindString(response); block != "" {
		if score, ok := decodeScorePayload([]byte(block)); ok {
			return clamp(score)
		}
	}

	return Score{
		Score:       defaultScore,
		Explanation: "Could not parse confidence score from provider output. Using default medium confidence.",
	}
}

// decodeScorePayload unmarshals a {score, explanation} object, coercing a
// stringly-typed score.
func decodeScorePayload(data []byte) (Score, bool) {
	var payload struct {
		Score       any    `json:"score"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Score{}, false
	}

	var value float64
	switch v := payload.Score.(type) {
	case float64:
		value = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			value = defaultScore
		} else {
			value = parsed
		}
	case nil:
		value = defaultScore
	default:
		value = defaultScore
	}

	explanation := payload.Explanation
	if explanation == "" {
		explanation = "No explanation provided"
	}

	return Score{Score: value, Explanation: explanation}, true
}

// clamp enforces the [0,100] invariant at construction time; providers are
// not trusted to respect the range.
func clamp(s Score) Score {
	if s.Score < 0 {
		s.Score = 0
	}
	if s.Score > 100 {
		s.Score = 100
	}
	return s
}

// cacheKey normalizes the query before keying: leading/trailing space and
// case differences must not cause re-scoring. The NUL separator cannot
// appear in user text, so (query, term id) pairs never collide.
func cacheKey(query, termID string) string {
	return strings.ToLower(strings.TrimSpace(query)) + "\x00" + termID
}
