package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/assessment"
	"github.com/ent0n29/anees/internal/config"
	"github.com/ent0n29/anees/internal/generate"
	"github.com/ent0n29/anees/internal/httpapi"
	"github.com/ent0n29/anees/internal/llm"
	"github.com/ent0n29/anees/internal/observability"
	"github.com/ent0n29/anees/internal/report"
	"github.com/ent0n29/anees/internal/retrieval"
	"github.com/ent0n29/anees/internal/safety"
	"github.com/ent0n29/anees/internal/session"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Engine  *assessment.Engine
	Store   *session.Store
	Metrics *observability.Metrics
	// Backend names the generation backend, e.g. "openai:gpt-4o-mini".
	Backend string

	// Cleanup should be called on shutdown to release external resources (DB pools, sqlite handles).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	completer, err := llm.New(llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.OpenAIModel,
		BaseURL:  cfg.OpenAIBaseURL,
		HTTPURL:  cfg.LLMHTTPURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	backend := llm.Name(completer)

	retriever, err := retrieval.New(ctx, retrieval.Options{
		Backend:       cfg.RetrievalBackend,
		Embedder:      cfg.Embedder,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		EmbedModel:    cfg.OpenAIEmbeddingModel,
		DatabaseURL:   cfg.DatabaseURL,
		Table:         cfg.PGVectorTable,
		WeaviateURL:   cfg.WeaviateURL,
		WeaviateClass: cfg.WeaviateClass,
		CorpusPaths:   cfg.CorpusPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval init failed: %w", err)
	}

	archive, err := report.NewArchive(ctx, report.Options{
		Store:       cfg.ReportStore,
		Dir:         cfg.ReportDir,
		PerSession:  cfg.ReportFilePerSession,
		SQLitePath:  cfg.ReportSQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedactPII:   cfg.ReportRedactPII,
	})
	if err != nil {
		_ = retriever.Close()
		return nil, fmt.Errorf("report archive init failed: %w", err)
	}

	store := session.NewStore(cfg.SessionInactivityTimeout)
	store.SetExpireHook(func(info session.Info) {
		metrics.SessionEvent("expired")
		metrics.SetActiveSessions(store.ActiveCount())
		logger.Info("session expired",
			zap.String("user_id", info.UserID),
			zap.String("step", info.CurrentStep),
			zap.Time("last_activity_at", info.LastActivityAt),
		)
	})

	engine := assessment.NewEngine(
		store,
		safety.NewGate(safety.DefaultDirectory()),
		generate.New(retriever, completer, logger.Named("generate"), metrics),
		report.NewSynthesizer(retriever, completer, archive, logger.Named("report"), metrics),
		logger.Named("assessment"),
		metrics,
	)

	api := httpapi.New(cfg, engine, metrics, logger.Named("http"), backend)

	logger.Info("assessment service built",
		zap.String("generation_backend", backend),
		zap.String("retrieval_backend", cfg.RetrievalBackend),
		zap.String("report_store", cfg.ReportStore),
	)

	cleanup := func() error {
		return errors.Join(archive.Close(), retriever.Close())
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Engine:  engine,
		Store:   store,
		Metrics: metrics,
		Backend: backend,
		Cleanup: cleanup,
	}, nil
}
