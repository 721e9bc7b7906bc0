package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/smart-librarian/server/internal/catalog"
	"github.com/smart-librarian/server/internal/core"
	"github.com/smart-librarian/server/internal/index"
	"github.com/smart-librarian/server/internal/librarian/graph"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/retrieve"
	"github.com/smart-librarian/server/internal/media"
	"github.com/smart-librarian/server/internal/moderation"
	"github.com/smart-librarian/server/internal/repo"
	"github.com/smart-librarian/server/internal/server"
	logx "github.com/smart-librarian/server/pkg/logger"
	pkgredis "github.com/smart-librarian/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  server.Config

	// LLM providers
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Gate      model.GateModelConfig
	Answer    model.AnswerModelConfig
	Retrieval model.RetrievalConfig
	Catalog   model.CatalogConfig
	Audit     model.AuditConfig

	Moderation moderation.Config
	Embedder   index.EmbedderConfig
	Index      index.StoreConfig
	Media      media.Config
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	// Catalogs
	store, err := catalog.Load(cfg.Catalog.BooksPath, cfg.Catalog.ExtendedPath)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load catalogs")
	}
	logx.Info().
		Int("books", len(store.Books())).
		Int("extended", store.ExtendedCount()).
		Msg("Catalogs loaded")

	// Vector index, rebuilt from the catalog on every start
	embedder, err := index.NewEmbedder(cfg.Embedder)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create embedder")
	}
	vectorIndex, err := index.NewVectorIndex(cfg.Index, embedder)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to open vector index")
	}

	auditLog, err := buildAuditLog(cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to set up audit trail")
	}

	runner, err := buildRunner(ctx, cfg, store, vectorIndex, auditLog)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build turn pipeline")
	}

	mediaClient := media.NewClient(cfg.Media)
	var auditReader server.AuditReader
	if auditLog != nil {
		auditReader = auditLog
	}
	srv, err := server.New(cfg.HTTP, runner, mediaClient, auditReader)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create HTTP server")
	}

	go func() {
		if err := srv.Run(); err != nil {
			logx.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
	logx.Info().Msg("Server stopped")
}

// buildAuditLog connects the optional Redis audit trail; an empty REDIS_URL
// yields nil.
func buildAuditLog(cfg AppConfig) (*repo.RedisTurnLog, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	rdb, err := cfg.Redis.New()
	if err != nil {
		return nil, err
	}
	ttl, err := time.ParseDuration(cfg.Audit.TTL)
	if err != nil {
		return nil, err
	}
	logx.Info().Dur("ttl", ttl).Msg("Turn audit trail enabled")
	return repo.NewRedisTurnLog(rdb, ttl), nil
}

// buildRunner populates the index and assembles the pipeline runner.
func buildRunner(ctx context.Context, cfg AppConfig, store *catalog.Store, vectorIndex *index.VectorIndex, auditLog *repo.RedisTurnLog) (graph.Runner, error) {
	graphCfg := graph.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		GateModel:   cfg.Gate,
		AnswerModel: cfg.Answer,
		Retrieval:   cfg.Retrieval,
		Store:       store,
		Searcher:    vectorIndex,
		Classifier:  moderation.NewClient(cfg.Moderation),
	}
	if auditLog != nil {
		graphCfg.Audit = auditLog
	}

	// Theme synonyms come from the answer model once per start; failures fall
	// back to indexing the tags as-is.
	vocabModel, err := graph.NewVocabModel(ctx, graphCfg)
	if err != nil {
		return nil, err
	}
	synonyms := retrieve.ExpandThemeVocab(ctx, vocabModel, store.Themes(), cfg.Retrieval.SynonymsPerTheme)
	if err := vectorIndex.Populate(ctx, store.Books(), synonyms); err != nil {
		return nil, err
	}

	return graph.BuildTurnGraph(ctx, graphCfg)
}
