package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
	"go.uber.org/zap"
)

// Index is the slice of the vector store the loader needs.
type Index interface {
	Upsert(ctx context.Context, docs []vectorstore.Document) error
	Delete(ctx context.Context, ids ...string) error
}

// SynonymGenerator produces alternative phrasings for a term.
type SynonymGenerator interface {
	Synonyms(ctx context.Context, name, definition string) ([]string, error)
}

// Rebuilder rebuilds the concept hierarchy after a catalog load.
type Rebuilder interface {
	Rebuild(ctx context.Context, terms []BusinessTerm)
}

// Metadata keys stored index-side so the ranker can recover synonym-match
// signals without a repository lookup.
const (
	MetaID           = "id"
	MetaName         = "name"
	MetaDefinition   = "definition"
	MetaCategory     = "category"
	MetaSynonyms     = "synonyms"
	MetaSynonymCount = "synonym_count"
)

// Loader runs the catalog load pipeline: source records -> synonym
// generation -> vector index upsert -> repository swap -> hierarchy rebuild.
type Loader struct {
	repo      *Repository
	index     Index
	synonyms  SynonymGenerator
	hierarchy Rebuilder
	logger    *zap.Logger

	// mu serializes loads. Reads are unaffected; they see the old snapshot
	// until the swap.
	mu sync.Mutex
}

// NewLoader creates a loader. synonyms and hierarchy may be nil, which
// disables synonym generation and hierarchy rebuilds respectively.
func NewLoader(repo *Repository, index Index, synonyms SynonymGenerator, hierarchy Rebuilder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		repo:      repo,
		index:     index,
		synonyms:  synonyms,
		hierarchy: hierarchy,
		logger:    logger,
	}
}

// Load replaces the catalog from the given source.
//
// If the repository already holds terms and reload is false, the load is
// skipped. On any failure before the snapshot swap the prior catalog is
// retained untouched.
func (l *Loader) Load(ctx context.Context, src Source, reload bool) (LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !reload && l.repo.Len() > 0 {
		l.logger.Info("catalog already loaded, skipping", zap.Int("terms", l.repo.Len()))
		return LoadResult{
			Status:      "success",
			Message:     "catalog already loaded",
			TotalLoaded: l.repo.Len(),
		}, nil
	}

	records, err := src.Records(ctx)
	if err != nil {
		return LoadResult{Status: "error", Message: err.Error()}, err
	}

	terms := make([]BusinessTerm, 0, len(records))
	docs := make([]vectorstore.Document, 0, len(records))

	for _, rec := range records {
		term := BusinessTerm{
			ID:         rec.ID,
			Name:       rec.Name,
			Definition: rec.Definition,
			Category:   rec.Category,
		}

		if l.synonyms != nil {
			syns, err := l.synonyms.Synonyms(ctx, rec.Name, rec.Definition)
			if err != nil {
				// Synonyms are an enrichment; a provider hiccup must not
				// abort the load.
				l.logger.Warn("synonym generation failed",
					zap.String("term_id", rec.ID),
					zap.Error(err))
			} else {
				term.Synonyms = syns
			}
		}

		terms = append(terms, term)
		docs = append(docs, vectorstore.Document{
			ID:      term.ID,
			Content: term.EmbeddingText(),
			Metadata: map[string]string{
				MetaID:           term.ID,
				MetaName:         term.Name,
				MetaDefinition:   term.Definition,
				MetaCategory:     term.Category,
				MetaSynonyms:     strings.Join(term.Synonyms, ", "),
				MetaSynonymCount: strconv.Itoa(len(term.Synonyms)),
			},
		})
	}

	if err := l.index.Delete(ctx); err != nil {
		return LoadResult{Status: "error", Message: err.Error()},
			fmt.Errorf("clearing index: %w", err)
	}
	if len(docs) > 0 {
		if err := l.index.Upsert(ctx, docs); err != nil {
			return LoadResult{Status: "error", Message: err.Error()},
				fmt.Errorf("indexing terms: %w", err)
		}
	}

	l.repo.Replace(terms)

	if l.hierarchy != nil {
		l.hierarchy.Rebuild(ctx, terms)
	}

	l.logger.Info("catalog loaded", zap.Int("terms", len(terms)))

	return LoadResult{
		Status:      "success",
		Message:     fmt.Sprintf("loaded %d terms", len(terms)),
		TotalLoaded: len(terms),
	}, nil
}
