package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go/v2"
	openaiopt "github.com/openai/openai-go/v2/option"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"rag-service/internal/chat"
	"rag-service/internal/config"
	"rag-service/internal/document"
	"rag-service/internal/embed"
	"rag-service/internal/ingest"
	"rag-service/internal/llm"
	"rag-service/internal/logging"
	"rag-service/internal/rag"
	"rag-service/internal/retry"
	"rag-service/internal/server"
	"rag-service/internal/store"
	"rag-service/internal/vector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database pool: %w", err)
	}
	defer pool.Close()

	retryer := retry.New(cfg.RetryMaxAttempts, cfg.RetryMinBackoff, cfg.RetryMaxBackoff, log)

	qdrantClient, err := newQdrantClient(cfg.QdrantURL)
	if err != nil {
		return err
	}
	vectors := vector.NewStore(qdrantClient, cfg.QdrantCollection, retryer, log)
	if err := vectors.EnsureCollection(ctx, cfg.EmbeddingDim); err != nil {
		// The collection also gets created lazily on the first upsert;
		// startup proceeds so the service can come up before Qdrant.
		log.Warn().Err(err).Msg("vector collection not ready at startup")
	}

	var cache embed.Cache
	if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
		cache = embed.NewRedisCache(redis.NewClient(opts), log)
	} else {
		log.Warn().Err(err).Msg("invalid REDIS_URL, embedding cache disabled")
	}

	openaiClient := openai.NewClient(openaiopt.WithAPIKey(cfg.OpenAIAPIKey))
	embedder := embed.NewEmbedder(
		embed.NewOpenAIProvider(&openaiClient), cache, cfg.EmbeddingModel, retryer, log)

	providers := []llm.Provider{llm.NewOpenAI(&openaiClient)}
	if cfg.AnthropicAPIKey != "" {
		anthropicClient := anthropic.NewClient(anthropicopt.WithAPIKey(cfg.AnthropicAPIKey))
		providers = append(providers, llm.NewAnthropic(&anthropicClient))
	}
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}
		providers = append(providers, llm.NewGemini(geminiClient))
	}
	router := llm.NewRouter(cfg.LLMModel, providers...)

	docs := store.NewDocumentStore(pool)
	chunks := store.NewChunkStore(pool)
	memory := chat.NewMemory(store.NewChatStore(pool))

	pipeline := ingest.NewPipeline(docs, chunks, embedder, vectors, document.NewExtractor(), log)
	retriever := rag.NewRetriever(embedder, vectors, log)
	answerer := rag.NewAnswerer(retriever, router, memory, docs, retryer, log)

	srv := server.New(pipeline, docs, chunks, vectors, retriever, answerer, memory, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newQdrantClient parses the Qdrant URL into host/port/TLS settings the
// gRPC client takes.
func newQdrantClient(rawURL string) (*qdrant.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid QDRANT_URL %q: %w", rawURL, err)
	}
	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid QDRANT_URL port %q: %w", p, err)
		}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}
