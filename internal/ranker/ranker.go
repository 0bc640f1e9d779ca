package ranker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/fyrsmithlabs/termmapd/internal/hierarchy"
	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var rankerTracer = otel.Tracer("termmapd.ranker")

const (
	// synonymBoost is the flat multiplier applied once per candidate on
	// the first synonym hit, never compounded.
	synonymBoost = 1.20

	// broaderScore is the fixed placeholder score for hierarchy matches.
	broaderScore = 0.5

	// maxBroaderMatches caps hierarchy matches per query.
	maxBroaderMatches = 3
)

// Index is the slice of the vector store the ranker needs.
type Index interface {
	Query(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
}

// HierarchySource supplies the active concept hierarchy.
type HierarchySource interface {
	Current() *hierarchy.Hierarchy
}

// Ranker finds and re-ranks candidate terms for a free-text query.
type Ranker struct {
	index     Index
	repo      *catalog.Repository
	hierarchy HierarchySource
	logger    *zap.Logger
}

// New creates a ranker.
func New(index Index, repo *catalog.Repository, h HierarchySource, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		index:     index,
		repo:      repo,
		hierarchy: h,
		logger:    logger.Named("ranker"),
	}
}

// FindSimilar returns ranked specific matches followed by broader matches.
//
// An empty candidate set from the index yields an empty slice, not an
// error; callers decide how to interpret "no match".
func (r *Ranker) FindSimilar(ctx context.Context, query string, topN int, includeBroader bool) ([]MatchCandidate, error) {
	ctx, span := rankerTracer.Start(ctx, "Ranker.FindSimilar")
	defer span.End()
	span.SetAttributes(attribute.Int("top_n", topN), attribute.Bool("include_broader", includeBroader))

	if topN < 1 {
		topN = 1
	}

	// Over-fetch so the synonym boost can reorder beyond the cut line.
	results, err := r.index.Query(ctx, query, 2*topN)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	if len(results) == 0 {
		return []MatchCandidate{}, nil
	}

	queryTokens := tokenSet(query)

	candidates := make([]MatchCandidate, 0, len(results))
	for _, res := range results {
		candidate := MatchCandidate{
			TermID:          res.Metadata[catalog.MetaID],
			Name:            res.Metadata[catalog.MetaName],
			Definition:      res.Metadata[catalog.MetaDefinition],
			Category:        res.Metadata[catalog.MetaCategory],
			MatchType:       MatchSpecific,
			SimilarityScore: float64(res.Score),
		}
		if candidate.TermID == "" {
			candidate.TermID = res.ID
		}

		if synonym, ok := firstSynonymHit(queryTokens, res.Metadata[catalog.MetaSynonyms]); ok {
			candidate.SynonymMatched = true
			candidate.MatchedSynonym = synonym
			candidate.SimilarityScore *= synonymBoost
		}

		candidates = append(candidates, candidate)
	}

	// Descending score with term id as the deterministic tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].SimilarityScore != candidates[j].SimilarityScore {
			return candidates[i].SimilarityScore > candidates[j].SimilarityScore
		}
		return candidates[i].TermID < candidates[j].TermID
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	if !includeBroader {
		return candidates, nil
	}

	return append(candidates, r.broaderMatches(candidates)...), nil
}

// broaderMatches converts the hierarchy's broader terms into candidates,
// excluding ids already in the specific set.
func (r *Ranker) broaderMatches(specific []MatchCandidate) []MatchCandidate {
	current := r.hierarchy.Current()
	if len(current.BroaderTerms) == 0 {
		return nil
	}

	inSpecific := make(map[string]bool, len(specific))
	for _, c := range specific {
		inSpecific[c.TermID] = true
	}

	var broader []MatchCandidate
	for _, id := range current.BroaderTerms {
		if inSpecific[id] {
			continue
		}
		term, err := r.repo.Get(id)
		if err != nil {
			// Hierarchy lagging a reload; skip the stale id.
			r.logger.Debug("broader term missing from repository", zap.String("term_id", id))
			continue
		}
		broader = append(broader, MatchCandidate{
			TermID:          term.ID,
			Name:            term.Name,
			Definition:      term.Definition,
			Category:        term.Category,
			MatchType:       MatchBroader,
			SimilarityScore: broaderScore,
		})
	}

	// Shorter names first: a proxy for generality.
	sort.SliceStable(broader, func(i, j int) bool {
		li, lj := len(strings.Fields(broader[i].Name)), len(strings.Fields(broader[j].Name))
		if li != lj {
			return li < lj
		}
		return broader[i].TermID < broader[j].TermID
	})
	if len(broader) > maxBroaderMatches {
		broader = broader[:maxBroaderMatches]
	}
	return broader
}

// firstSynonymHit reports the first stored synonym whose token set
// intersects the query's token set.
func firstSynonymHit(queryTokens map[string]bool, synonyms string) (string, bool) {
	if synonyms == "" || len(queryTokens) == 0 {
		return "", false
	}
	for _, synonym := range strings.Split(synonyms, ",") {
		synonym = strings.TrimSpace(synonym)
		if synonym == "" {
			continue
		}
		for token := range tokenSet(synonym) {
			if queryTokens[token] {
				return synonym, true
			}
		}
	}
	return "", false
}

// tokenSet lowercases and whitespace-splits text into a set.
func tokenSet(text string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		set[token] = true
	}
	return set
}
