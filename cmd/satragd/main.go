package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitalmind/satrag/internal/auth"
	"github.com/orbitalmind/satrag/internal/cache"
	"github.com/orbitalmind/satrag/internal/config"
	"github.com/orbitalmind/satrag/internal/embedder"
	"github.com/orbitalmind/satrag/internal/llm"
	"github.com/orbitalmind/satrag/internal/server"
	"github.com/orbitalmind/satrag/internal/service"
	"github.com/orbitalmind/satrag/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting retrieval service",
		"http_port", cfg.HTTPPort,
		"candidate_source", cfg.CandidateSource,
		"llm_backend", cfg.LLMBackend,
		"environment", cfg.Environment,
	)

	// Initialize the candidate source
	readiness := make(map[string]server.Pinger)

	var source vectorstore.CandidateSource
	switch cfg.CandidateSource {
	case "pgvector":
		pg, err := vectorstore.NewPgVectorSource(ctx, vectorstore.PgVectorConfig{
			DatabaseURL: cfg.DatabaseURL,
			IVFProbes:   cfg.IVFProbes,
			HNSWEf:      cfg.HNSWEf,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		defer pg.Close()
		source = pg
		readiness["pgvector"] = pg
		slog.Info("connected to pgvector")
	case "qdrant":
		qd, err := vectorstore.NewQdrantSource(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer qd.Close()
		source = qd
		readiness["qdrant"] = qd
		slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)
	default:
		return fmt.Errorf("unknown candidate source %q", cfg.CandidateSource)
	}

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	readiness["ollama"] = embed
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Initialize the generation backend
	llmClient, err := llm.New(llm.BackendConfig{
		Backend:       cfg.LLMBackend,
		OllamaURL:     cfg.OllamaURL,
		OllamaModel:   cfg.OllamaLLMModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize LLM backend: %w", err)
	}
	slog.Info("initialized LLM backend", "backend", cfg.LLMBackend)

	// Initialize the retrieval service
	svc := service.NewRetrievalService(embed, source, llmClient, cfg,
		service.WithContextCache(cache.NewContextSlot()),
		service.WithLogger(slog.Default()),
	)

	// Optional authentication
	var authMw *auth.Middleware
	if cfg.APIKey != "" || cfg.JWTSecret != "" {
		var jwtManager *auth.JWTManager
		if cfg.JWTSecret != "" {
			jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
			jwtCfg.Expiry = cfg.JWTExpiry
			jwtManager = auth.NewJWTManager(jwtCfg)
		}
		authMw = auth.NewMiddleware(cfg.APIKey, jwtManager)
		slog.Info("authentication enabled")
	}

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		Auth:           authMw,
		Readiness:      readiness,
	}, svc)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ vectorstore.CandidateSource = (*vectorstore.PgVectorSource)(nil)
	_ vectorstore.CandidateSource = (*vectorstore.QdrantSource)(nil)
	_ embedder.Embedder           = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                     = (*llm.OllamaClient)(nil)
	_ llm.LLM                     = (*llm.OpenAIClient)(nil)
)
