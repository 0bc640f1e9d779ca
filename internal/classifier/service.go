package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/termmapd/internal/confidence"
	"github.com/fyrsmithlabs/termmapd/internal/llm"
	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultTopN      = 5
	defaultCacheSize = 1000
	defaultMaxTurns  = 4
)

// selectionPrompt asks the provider to pick one candidate id from a
// similarity shortlist. %s slots: name, description, rendered candidates.
const selectionPrompt = `You are an expert in business terminology. You need to select the most appropriate Preferred Business Term (PBT) for the following input:

Input Name: %s
Input Description: %s

Here are the candidate terms:
%s
Select the BEST match based on conceptual alignment, not just keyword similarity.
Return ONLY the ID of the best match without any explanation.`

// Matcher produces ranked candidates for a query.
type Matcher interface {
	FindSimilar(ctx context.Context, query string, topN int, includeBroader bool) ([]ranker.MatchCandidate, error)
}

// Scorer produces a confidence score for a (query, candidate) pair.
type Scorer interface {
	Evaluate(ctx context.Context, query string, candidate ranker.MatchCandidate) confidence.Score
}

// Options tunes the service; zero values take defaults.
type Options struct {
	CacheSize     int
	AgentMaxTurns int
}

// Service routes classification requests to one of three strategies and
// memoizes results.
//
// Classify never returns a Go error: every failure is encoded as an
// error-status Result so the transport layer has one shape to serialize.
type Service struct {
	matcher   Matcher
	scorer    Scorer
	generator llm.Generator
	cache     *lru.Cache[string, Result]
	memory    *memoryStore
	maxTurns  int
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates the classification service.
func New(matcher Matcher, scorer Scorer, generator llm.Generator, opts Options, logger *zap.Logger) (*Service, error) {
	if opts.CacheSize < 1 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.AgentMaxTurns < 1 {
		opts.AgentMaxTurns = defaultMaxTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, Result](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Service{
		matcher:   matcher,
		scorer:    scorer,
		generator: generator,
		cache:     cache,
		memory:    newMemoryStore(),
		maxTurns:  opts.AgentMaxTurns,
		logger:    logger.Named("classifier"),
		tracer:    otel.Tracer("termmapd.classifier"),
	}, nil
}

// Classify runs one classification request.
//
// Cached results are returned with a fresh request id; the match payload is
// shared, so callers must treat results as read-only.
func (s *Service) Classify(ctx context.Context, req Request) Result {
	ctx, span := s.tracer.Start(ctx, "classifier.Classify",
		trace.WithAttributes(
			attribute.String("method", req.Method),
			attribute.Int("top_n", req.TopN),
		))
	defer span.End()

	requestID := uuid.NewString()
	if req.Method == "" {
		req.Method = MethodAgent
	}
	if req.TopN < 1 {
		req.TopN = defaultTopN
	}

	key := cacheKey(req)
	if cached, ok := s.cache.Get(key); ok {
		s.logger.Info("result cache hit",
			zap.String("name", req.Name),
			zap.String("method", req.Method))
		cached.RequestID = requestID
		return cached
	}

	var result Result
	switch req.Method {
	case MethodEmbeddings:
		result = s.classifyEmbeddings(ctx, req)
	case MethodLLM:
		result = s.classifyLLM(ctx, req)
	case MethodAgent:
		result = s.classifyAgent(ctx, req)
	default:
		s.logger.Error("invalid classification method", zap.String("method", req.Method))
		return Result{
			Status:          StatusError,
			SpecificMatches: []ranker.MatchCandidate{},
			BroaderMatches:  []ranker.MatchCandidate{},
			RequestID:       requestID,
			Message:         fmt.Sprintf("%v: %q", ErrInvalidMethod, req.Method),
		}
	}
	result.RequestID = requestID

	// Error-status results are not cached: provider outages are transient
	// and should not be pinned for the process lifetime.
	if result.Status == StatusSuccess {
		s.cache.Add(key, result)
	}
	return result
}

// classifyEmbeddings picks the top-ranked candidate by vector similarity.
func (s *Service) classifyEmbeddings(ctx context.Context, req Request) Result {
	query := queryText(req)
	candidates, err := s.matcher.FindSimilar(ctx, query, req.TopN, req.IncludeBroader)
	if err != nil {
		s.logger.Error("similarity search failed", zap.String("name", req.Name), zap.Error(err))
		return errorResult(fmt.Sprintf("similarity search failed: %v", err))
	}
	if len(candidates) == 0 {
		s.logger.Warn("no similar terms found", zap.String("name", req.Name))
		return errorResult("No similar terms found")
	}

	best := candidates[0]
	score := s.scorer.Evaluate(ctx, query, best)
	return successResult(best, candidates, &score, "")
}

// classifyLLM asks the generation provider to choose from a similarity
// shortlist. An id outside the shortlist falls back to the top candidate.
func (s *Service) classifyLLM(ctx context.Context, req Request) Result {
	query := queryText(req)
	candidates, err := s.matcher.FindSimilar(ctx, query, req.TopN, req.IncludeBroader)
	if err != nil {
		s.logger.Error("similarity search failed", zap.String("name", req.Name), zap.Error(err))
		return errorResult(fmt.Sprintf("similarity search failed: %v", err))
	}
	if len(candidates) == 0 {
		s.logger.Warn("no similar terms found", zap.String("name", req.Name))
		return errorResult("No similar terms found")
	}

	prompt := fmt.Sprintf(selectionPrompt, req.Name, req.Description, renderCandidates(candidates))
	response, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("candidate selection failed", zap.String("name", req.Name), zap.Error(err))
		return errorResult(fmt.Sprintf("candidate selection failed: %v", err))
	}

	selectionID := strings.TrimSpace(response)
	best, found := candidateByID(candidates, selectionID)
	if !found {
		s.logger.Warn("provider selected unknown candidate id, using top match",
			zap.String("selection_id", selectionID),
			zap.String("fallback_id", candidates[0].TermID))
		best = candidates[0]
	}

	score := s.scorer.Evaluate(ctx, query, best)
	return successResult(best, candidates, &score, "")
}

// queryText is the combined embedding/search text for a request.
func queryText(req Request) string {
	return req.Name + " - " + req.Description
}

// cacheKey joins the request identity fields with a separator that cannot
// appear in user text.
func cacheKey(req Request) string {
	return req.Name + "\x00" + req.Description + "\x00" + req.Method
}

// renderCandidates formats a shortlist for the selection prompt.
func renderCandidates(candidates []ranker.MatchCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		category := c.Category
		if category == "" {
			category = "N/A"
		}
		fmt.Fprintf(&b, "\nOption %d:\n- ID: %s\n- Name: %s\n- Definition: %s\n- Category: %s\n- Match Type: %s\n- Similarity Score: %.2f\n",
			i+1, c.TermID, c.Name, c.Definition, category, c.MatchType, c.SimilarityScore)
		if c.SynonymMatched {
			fmt.Fprintf(&b, "- Matched via synonym: %s\n", c.MatchedSynonym)
		}
	}
	return b.String()
}

func candidateByID(candidates []ranker.MatchCandidate, id string) (ranker.MatchCandidate, bool) {
	for _, c := range candidates {
		if c.TermID == id {
			return c, true
		}
	}
	return ranker.MatchCandidate{}, false
}

// partition splits a ranked candidate list into specific and broader
// sequences, preserving order within each.
func partition(candidates []ranker.MatchCandidate) (specific, broader []ranker.MatchCandidate) {
	specific = []ranker.MatchCandidate{}
	broader = []ranker.MatchCandidate{}
	for _, c := range candidates {
		if c.MatchType == ranker.MatchBroader {
			broader = append(broader, c)
		} else {
			specific = append(specific, c)
		}
	}
	return specific, broader
}

func successResult(best ranker.MatchCandidate, candidates []ranker.MatchCandidate, score *confidence.Score, narrative string) Result {
	specific, broader := partition(candidates)
	return Result{
		Status:          StatusSuccess,
		BestMatch:       &best,
		SpecificMatches: specific,
		BroaderMatches:  broader,
		Confidence:      score,
		Narrative:       narrative,
	}
}

func errorResult(message string) Result {
	return Result{
		Status:          StatusError,
		SpecificMatches: []ranker.MatchCandidate{},
		BroaderMatches:  []ranker.MatchCandidate{},
		Message:         message,
	}
}
