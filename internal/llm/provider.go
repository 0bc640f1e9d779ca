// Package llm provides embedding and text generation via an
// OpenAI-compatible API.
//
// Both capabilities are treated as unreliable and slow: call sites must
// tolerate malformed or delayed responses without crashing a request.
package llm

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
)

// Sentinel errors for provider operations.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid provider configuration")

	// ErrProviderUnavailable indicates the remote provider call failed.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Embedder generates vector embeddings. Alias of the vectorstore contract so
// a single implementation serves both the index and the hierarchy builder.
type Embedder = vectorstore.Embedder

// Generator produces a free-text completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds provider configuration.
type Config struct {
	// BaseURL is an OpenAI-compatible API endpoint.
	BaseURL string

	// APIKey authenticates against the provider. Use "none" for local
	// services that skip auth.
	APIKey string

	// Model is the chat model for text generation.
	Model string

	// EmbeddingModel generates vectors.
	EmbeddingModel string

	// RequestsPerMinute rate-limits generation calls. Zero disables
	// limiting.
	RequestsPerMinute int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.Join(ErrInvalidConfig, errors.New("base URL required"))
	}
	return nil
}
