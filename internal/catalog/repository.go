package catalog

import (
	"sort"
	"sync/atomic"
)

// snapshot is one immutable generation of the catalog. Readers always see a
// fully-loaded generation, never a partial one.
type snapshot struct {
	terms []BusinessTerm
	byID  map[string]int
}

var emptySnapshot = &snapshot{byID: map[string]int{}}

// Repository is the source of truth for loaded business terms.
//
// The term set is swapped wholesale via an atomic pointer; in-flight readers
// keep the old generation until they finish.
type Repository struct {
	current atomic.Pointer[snapshot]
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	r := &Repository{}
	r.current.Store(emptySnapshot)
	return r
}

// Replace swaps the entire term set atomically.
func (r *Repository) Replace(terms []BusinessTerm) {
	snap := &snapshot{
		terms: terms,
		byID:  make(map[string]int, len(terms)),
	}
	for i, t := range terms {
		snap.byID[t.ID] = i
	}
	r.current.Store(snap)
}

// Get returns the term with the given id, or ErrNotFound.
func (r *Repository) Get(id string) (BusinessTerm, error) {
	snap := r.current.Load()
	i, ok := snap.byID[id]
	if !ok {
		return BusinessTerm{}, ErrNotFound
	}
	return snap.terms[i], nil
}

// All returns a read-only snapshot of all terms in load order.
func (r *Repository) All() []BusinessTerm {
	return r.current.Load().terms
}

// Len returns the number of loaded terms.
func (r *Repository) Len() int {
	return len(r.current.Load().terms)
}

// Statistics summarizes the current catalog. indexedCount is supplied by the
// caller from the vector index, which may lag the repository briefly during
// a reload.
func (r *Repository) Statistics(indexedCount int) Statistics {
	terms := r.All()

	stats := Statistics{
		TotalCount:     len(terms),
		IndexedCount:   indexedCount,
		CategoryCounts: make(map[string]int),
	}

	totalSynonyms := 0
	for _, t := range terms {
		category := t.Category
		if category == "" {
			category = UncategorizedLabel
		}
		stats.CategoryCounts[category]++

		if len(t.Synonyms) > 0 {
			stats.SynonymCoverage++
			totalSynonyms += len(t.Synonyms)
		}
	}

	if len(terms) > 0 {
		stats.AverageSynonymsPerTerm = float64(totalSynonyms) / float64(len(terms))
	}

	for category, count := range stats.CategoryCounts {
		stats.TopCategories = append(stats.TopCategories, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(stats.TopCategories, func(i, j int) bool {
		if stats.TopCategories[i].Count != stats.TopCategories[j].Count {
			return stats.TopCategories[i].Count > stats.TopCategories[j].Count
		}
		return stats.TopCategories[i].Category < stats.TopCategories[j].Category
	})
	if len(stats.TopCategories) > 5 {
		stats.TopCategories = stats.TopCategories[:5]
	}

	return stats
}
