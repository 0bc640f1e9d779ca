// Package classifier orchestrates term classification across three
// strategies and a bounded-concurrency batch controller.
package classifier

import (
	"errors"

	"github.com/fyrsmithlabs/termmapd/internal/confidence"
	"github.com/fyrsmithlabs/termmapd/internal/ranker"
)

// Classification strategies.
const (
	// MethodEmbeddings ranks by vector similarity only.
	MethodEmbeddings = "embeddings"

	// MethodLLM builds a shortlist by similarity and asks the generation
	// provider to pick the best candidate.
	MethodLLM = "llm"

	// MethodAgent runs a tool-calling loop where the provider drives term
	// searches itself.
	MethodAgent = "agent"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrInvalidMethod is returned inside an error-status result when the
// requested strategy is not one of embeddings, llm, or agent.
var ErrInvalidMethod = errors.New("invalid classification method")

// Request is a single classification request.
type Request struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Method         string `json:"method,omitempty"`
	IncludeBroader bool   `json:"include_broader_terms"`
	TopN           int    `json:"top_n,omitempty"`
}

// Result is an immutable classification outcome. Cached results are shared
// across callers, so nothing mutates a Result after construction except the
// RequestID stamped fresh per call.
type Result struct {
	Status          string                  `json:"status"`
	BestMatch       *ranker.MatchCandidate  `json:"best_match,omitempty"`
	SpecificMatches []ranker.MatchCandidate `json:"specific_matches"`
	BroaderMatches  []ranker.MatchCandidate `json:"broader_matches"`
	Confidence      *confidence.Score       `json:"confidence,omitempty"`
	Narrative       string                  `json:"narrative,omitempty"`
	RequestID       string                  `json:"request_id"`
	Message         string                  `json:"message,omitempty"`
}
