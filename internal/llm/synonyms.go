package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// synonymPrompt asks for a bare comma-separated list so parsing stays
// trivial even with chatty models.
const synonymPrompt = `Generate %d alternative terms, phrases or synonyms that business users might use when referring to this business term:

Term: %s
Definition: %s

Provide ONLY a comma-separated list of alternative terms or phrases that a user might use when referring to this concept.
These should be different ways to express the same concept, including industry jargon, abbreviations, and common variations.
DO NOT provide explanations - ONLY the comma-separated list of terms.`

// SynonymGenerator produces alternative phrasings for catalog terms at load
// time.
type SynonymGenerator struct {
	generator   Generator
	maxSynonyms int
	logger      *zap.Logger
}

// NewSynonymGenerator creates a synonym generator. maxSynonyms caps the
// number requested per term.
func NewSynonymGenerator(generator Generator, maxSynonyms int, logger *zap.Logger) *SynonymGenerator {
	if maxSynonyms <= 0 {
		maxSynonyms = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynonymGenerator{
		generator:   generator,
		maxSynonyms: maxSynonyms,
		logger:      logger.Named("synonyms"),
	}
}

// Synonyms generates synonyms for a term. Provider failures surface as
// errors; callers treat synonyms as an enrichment and continue without them.
func (g *SynonymGenerator) Synonyms(ctx context.Context, name, definition string) ([]string, error) {
	prompt := fmt.Sprintf(synonymPrompt, g.maxSynonyms, name, definition)

	response, err := g.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	synonyms := ParseSynonymList(response)
	if len(synonyms) > g.maxSynonyms {
		synonyms = synonyms[:g.maxSynonyms]
	}

	g.logger.Debug("generated synonyms",
		zap.String("term", name),
		zap.Int("count", len(synonyms)))

	return synonyms, nil
}

// ParseSynonymList splits a comma-separated response into a deduplicated
// list, preserving first-occurrence order and dropping empties.
func ParseSynonymList(response string) []string {
	var synonyms []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(response, ",") {
		synonym := strings.TrimSpace(part)
		if synonym == "" {
			continue
		}
		key := strings.ToLower(synonym)
		if seen[key] {
			continue
		}
		seen[key] = true
		synonyms = append(synonyms, synonym)
	}
	return synonyms
}
