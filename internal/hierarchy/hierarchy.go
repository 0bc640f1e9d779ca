// Package hierarchy derives "broader" terms from pairwise similarity over
// the whole catalog, supporting 2-tier (specific + broader) result sets.
package hierarchy

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
	"go.uber.org/zap"
)

// broaderFraction of the catalog (by generality score) becomes broader terms.
const broaderFraction = 0.2

// Generality holds the derived generality metrics for one term.
type Generality struct {
	AvgSimilarity   float64 `json:"avg_similarity"`
	NameLength      int     `json:"name_length"`
	GeneralityScore float64 `json:"generality_score"`
}

// Hierarchy is one immutable generation of the concept hierarchy. Rebuilt
// wholesale on each catalog load, never partially mutated.
type Hierarchy struct {
	// Generality maps term id to its derived metrics.
	Generality map[string]Generality

	// BroaderTerms are the ids of the most general terms, ordered by
	// descending generality score.
	BroaderTerms []string
}

var emptyHierarchy = &Hierarchy{Generality: map[string]Generality{}}

// Builder computes the concept hierarchy from term embeddings.
//
// The pairwise similarity pass is O(N²) in term count, which is acceptable
// for catalogs in the hundreds to low thousands.
type Builder struct {
	embedder vectorstore.Embedder
	logger   *zap.Logger
	current  atomic.Pointer[Hierarchy]
}

// NewBuilder creates a builder with an empty hierarchy.
func NewBuilder(embedder vectorstore.Embedder, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		embedder: embedder,
		logger:   logger.Named("hierarchy"),
	}
	b.current.Store(emptyHierarchy)
	return b
}

// Current returns the active hierarchy. Never nil; empty before the first
// successful rebuild.
func (b *Builder) Current() *Hierarchy {
	return b.current.Load()
}

// Rebuild recomputes the hierarchy for the given terms.
//
// A failure (typically the embedding provider) degrades to an empty
// hierarchy: ranking falls back to specific-only results instead of
// surfacing an error to the load.
func (b *Builder) Rebuild(ctx context.Context, terms []catalog.BusinessTerm) {
	if len(terms) == 0 {
		b.current.Store(emptyHierarchy)
		return
	}

	texts := make([]string, len(terms))
	for i, t := range terms {
		texts[i] = t.EmbeddingText()
	}

	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil || len(vectors) != len(terms) {
		b.logger.Warn("hierarchy rebuild failed, using empty hierarchy", zap.Error(err))
		b.current.Store(emptyHierarchy)
		return
	}

	b.current.Store(build(terms, vectors))

	b.logger.Info("concept hierarchy rebuilt",
		zap.Int("terms", len(terms)),
		zap.Int("broader_terms", len(b.Current().BroaderTerms)))
}

// build derives the hierarchy from terms and their embeddings.
func build(terms []catalog.BusinessTerm, vectors [][]float32) *Hierarchy {
	n := len(terms)

	// mean similarity to every other term; a single-term catalog has no
	// other terms, so its average stays zero.
	avgSimilarity := make([]float64, n)
	if n > 1 {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				sum += cosineSimilarity(vectors[i], vectors[j])
			}
			avgSimilarity[i] = sum / float64(n-1)
		}
	}

	maxLength := 1
	nameLengths := make([]int, n)
	for i, t := range terms {
		nameLengths[i] = len(strings.Fields(t.Name))
		if nameLengths[i] > maxLength {
			maxLength = nameLengths[i]
		}
	}

	generality := make(map[string]Generality, n)
	ids := make([]string, n)
	for i, t := range terms {
		ids[i] = t.ID
		generality[t.ID] = Generality{
			AvgSimilarity: avgSimilarity[i],
			NameLength:    nameLengths[i],
			// Shorter, broadly-similar names score as more general.
			GeneralityScore: avgSimilarity[i] * (1 - float64(nameLengths[i])/float64(maxLength)),
		}
	}

	sort.SliceStable(ids, func(i, j int) bool {
		gi, gj := generality[ids[i]].GeneralityScore, generality[ids[j]].GeneralityScore
		if gi != gj {
			return gi > gj
		}
		return ids[i] < ids[j]
	})

	broaderCount := int(math.Ceil(broaderFraction * float64(n)))
	if broaderCount < 1 {
		broaderCount = 1
	}

	return &Hierarchy{
		Generality:   generality,
		BroaderTerms: ids[:broaderCount],
	}
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
