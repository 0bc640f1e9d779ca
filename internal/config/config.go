// Package config provides configuration loading for termmapd.
//
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables. Defaults are applied last for anything unset.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/termmapd/internal/logging"
)

// Config holds the complete termmapd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        logging.Config   `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Index      IndexConfig      `koanf:"index"`
	Classifier ClassifierConfig `koanf:"classifier"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LLMConfig holds provider configuration for embeddings and text generation.
type LLMConfig struct {
	// BaseURL is an OpenAI-compatible API endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the provider. "none" works for local
	// services that skip auth.
	APIKey Secret `koanf:"api_key"`

	// Model is the chat model used for selection, confidence scoring and
	// synonym generation.
	Model string `koanf:"model"`

	// EmbeddingModel generates term and query vectors.
	EmbeddingModel string `koanf:"embedding_model"`

	// RequestsPerMinute rate-limits generation calls. Zero disables limiting.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// CatalogConfig holds term catalog configuration.
type CatalogConfig struct {
	// Path is the CSV file loaded at startup. Empty skips the initial load.
	Path string `koanf:"path"`

	// MaxSynonyms caps the synonyms requested per term.
	MaxSynonyms int `koanf:"max_synonyms"`

	// Watch reloads the catalog when the CSV file changes on disk.
	Watch bool `koanf:"watch"`
}

// IndexConfig holds embedded vector index configuration.
type IndexConfig struct {
	// Path is the directory for persistent storage. Empty keeps the index
	// in memory only.
	Path string `koanf:"path"`

	// Collection is the chromem collection name.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// ClassifierConfig holds classification engine configuration.
type ClassifierConfig struct {
	// CacheSize bounds the classification result cache.
	CacheSize int `koanf:"cache_size"`

	// ConfidenceCacheSize bounds the confidence score cache.
	ConfidenceCacheSize int `koanf:"confidence_cache_size"`

	// BatchWorkers bounds concurrent classifications in a batch.
	BatchWorkers int `koanf:"batch_workers"`

	// AgentMaxTurns bounds the agentic tool loop.
	AgentMaxTurns int `koanf:"agent_max_turns"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.RequestsPerMinute == 0 {
		cfg.LLM.RequestsPerMinute = 50
	}
	if cfg.Catalog.MaxSynonyms == 0 {
		cfg.Catalog.MaxSynonyms = 10
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "termmapd_terms"
	}
	if cfg.Classifier.CacheSize == 0 {
		cfg.Classifier.CacheSize = 1000
	}
	if cfg.Classifier.ConfidenceCacheSize == 0 {
		cfg.Classifier.ConfidenceCacheSize = 2000
	}
	if cfg.Classifier.BatchWorkers == 0 {
		cfg.Classifier.BatchWorkers = 5
	}
	if cfg.Classifier.AgentMaxTurns == 0 {
		cfg.Classifier.AgentMaxTurns = 4
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.Classifier.CacheSize < 1 {
		return fmt.Errorf("classifier cache_size must be positive")
	}
	if c.Classifier.BatchWorkers < 1 {
		return fmt.Errorf("classifier batch_workers must be positive")
	}
	return nil
}
