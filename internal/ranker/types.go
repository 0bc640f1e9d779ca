// Package ranker retrieves and re-ranks candidate terms for a query.
package ranker

// MatchType classifies how a candidate relates to the query.
type MatchType string

const (
	// MatchSpecific is a direct nearest-neighbor hit.
	MatchSpecific MatchType = "specific"
	// MatchBroader is a more general term surfaced via the concept hierarchy.
	MatchBroader MatchType = "broader"
	// MatchSynonym marks a hit made through an alternative phrasing.
	MatchSynonym MatchType = "synonym"
	// MatchExact marks a verbatim name hit.
	MatchExact MatchType = "exact"
)

// MatchCandidate is one ranked candidate. Fields are denormalized snapshots
// taken at match time; candidates are never mutated after construction and
// never persisted.
type MatchCandidate struct {
	TermID     string `json:"term_id"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
	Category   string `json:"category,omitempty"`

	MatchType MatchType `json:"match_type"`

	// SimilarityScore is nominally 0-1 from the index, unbounded above
	// after the synonym boost.
	SimilarityScore float64 `json:"similarity_score"`

	SynonymMatched bool   `json:"synonym_matched"`
	MatchedSynonym string `json:"matched_synonym,omitempty"`
}
