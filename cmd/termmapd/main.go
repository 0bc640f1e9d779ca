// Termmapd maps free-text business terms to a Preferred Business Term (PBT)
// catalog over an HTTP API.
//
// The daemon embeds its vector index in-process, loads the term catalog from
// CSV, and classifies requests with one of three strategies (embeddings,
// llm, agent).
//
// Configuration comes from an optional YAML file plus TERMMAP_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	termmapd
//
//	# Configure via flags and environment
//	TERMMAP_SERVER_PORT=9090 termmapd -config termmapd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/fyrsmithlabs/termmapd/internal/classifier"
	"github.com/fyrsmithlabs/termmapd/internal/confidence"
	"github.com/fyrsmithlabs/termmapd/internal/config"
	"github.com/fyrsmithlabs/termmapd/internal/hierarchy"
	"github.com/fyrsmithlabs/termmapd/internal/llm"
	"github.com/fyrsmithlabs/termmapd/internal/logging"
	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"github.com/fyrsmithlabs/termmapd/internal/server"
	"github.com/fyrsmithlabs/termmapd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  termmapd           Start the termmapd daemon\n")
			fmt.Fprintf(os.Stderr, "  termmapd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("termmapd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all services and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting termmapd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.LLM.Model))

	provider, err := llm.NewOpenAIProvider(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey.Value(),
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing provider: %w", err)
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.Index.Path,
		Collection: cfg.Index.Collection,
		Compress:   cfg.Index.Compress,
	}, provider, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("vector store close failed", zap.Error(err))
		}
	}()

	logger.Info("Vector store initialized",
		zap.String("path", cfg.Index.Path),
		zap.String("collection", cfg.Index.Collection))

	repo := catalog.NewRepository()
	builder := hierarchy.NewBuilder(provider, logger)
	rank := ranker.New(store, repo, builder, logger)

	scorer, err := confidence.NewEvaluator(provider, cfg.Classifier.ConfidenceCacheSize, logger)
	if err != nil {
		return fmt.Errorf("initializing confidence evaluator: %w", err)
	}

	svc, err := classifier.New(rank, scorer, provider, classifier.Options{
		CacheSize:     cfg.Classifier.CacheSize,
		AgentMaxTurns: cfg.Classifier.AgentMaxTurns,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing classifier: %w", err)
	}

	batch := classifier.NewBatchController(svc, cfg.Classifier.BatchWorkers, logger)
	synonyms := llm.NewSynonymGenerator(provider, cfg.Catalog.MaxSynonyms, logger)
	loader := catalog.NewLoader(repo, store, synonyms, builder, logger)

	if cfg.Catalog.Path != "" {
		result, err := loader.Load(ctx, catalog.NewCSVSource(cfg.Catalog.Path), false)
		if err != nil {
			return fmt.Errorf("loading catalog from %s: %w", cfg.Catalog.Path, err)
		}
		logger.Info("Catalog loaded",
			zap.String("path", cfg.Catalog.Path),
			zap.Int("terms", result.TotalLoaded))

		if cfg.Catalog.Watch {
			watcher, err := catalog.NewWatcher(cfg.Catalog.Path, loader, logger)
			if err != nil {
				return fmt.Errorf("initializing catalog watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("starting catalog watcher: %w", err)
			}
			defer watcher.Stop()
		}
	}

	srv, err := server.New(svc, batch, loader, repo, store, server.NewMetrics(nil), logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
