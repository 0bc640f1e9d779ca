package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// generationTemperature keeps classifications and scores consistent
// across repeated calls.
const generationTemperature = 0.2

// OpenAIProvider implements Embedder and Generator against any
// OpenAI-compatible endpoint (OpenAI, Azure front-door, Ollama, vLLM).
type OpenAIProvider struct {
	client   *openai.LLM
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 5)
	}

	return &OpenAIProvider{
		client:   client,
		embedder: embedder,
		limiter:  limiter,
		logger:   logger.Named("llm"),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding documents: %v", ErrProviderUnavailable, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrProviderUnavailable, err)
	}
	return vector, nil
}

// Complete produces a completion for the prompt, honoring the rate limit.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, p.client, prompt,
		llms.WithTemperature(generationTemperature))
	if err != nil {
		p.logger.Warn("generation call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return response, nil
}
