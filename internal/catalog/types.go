// Package catalog holds the Preferred Business Term catalog and its
// loading pipeline.
package catalog

import (
	"errors"
	"time"
)

// Sentinel errors for catalog operations.
var (
	// ErrSchema is returned when a catalog source is missing required fields.
	ErrSchema = errors.New("catalog source missing required fields")

	// ErrNotFound is returned when a term id is not in the catalog.
	ErrNotFound = errors.New("term not found")
)

// UncategorizedLabel is the bucket for terms without a category.
const UncategorizedLabel = "Uncategorized"

// BusinessTerm is a canonical Preferred Business Term entry.
//
// Terms are immutable once loaded; the whole set is replaced atomically on
// reload. Synonyms are regenerated on each load.
type BusinessTerm struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Definition string     `json:"definition"`
	Category   string     `json:"category,omitempty"`
	Synonyms   []string   `json:"synonyms,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// EmbeddingText is the canonical document text embedded for a term:
// "name - definition[ - category]".
func (t BusinessTerm) EmbeddingText() string {
	text := t.Name + " - " + t.Definition
	if t.Category != "" {
		text += " - " + t.Category
	}
	return text
}

// CategoryCount is one entry of the top-categories ranking.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Statistics summarizes the loaded catalog.
type Statistics struct {
	TotalCount             int            `json:"total_count"`
	IndexedCount           int            `json:"indexed_count"`
	CategoryCounts         map[string]int `json:"category_counts"`
	SynonymCoverage        int            `json:"synonym_coverage"`
	AverageSynonymsPerTerm float64        `json:"average_synonyms_per_term"`
	TopCategories          []CategoryCount `json:"top_categories"`
}

// LoadResult reports the outcome of a catalog load.
type LoadResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TotalLoaded int    `json:"total_loaded"`
}
