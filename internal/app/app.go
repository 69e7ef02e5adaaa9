// Package app wires configuration to the pipeline and owns the process
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"ragresearch/internal/config"
	"ragresearch/internal/costs"
	"ragresearch/internal/domain"
	"ragresearch/internal/infrastructure/embeddings"
	"ragresearch/internal/infrastructure/feed"
	"ragresearch/internal/infrastructure/llm"
	"ragresearch/internal/infrastructure/pdf"
	"ragresearch/internal/infrastructure/scheduler"
	"ragresearch/internal/infrastructure/storage"
	"ragresearch/internal/infrastructure/telegram"
	"ragresearch/internal/logging"
	"ragresearch/internal/ports"
	"ragresearch/internal/scanner"
	"ragresearch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	store    *storage.Store
	pipeline *usecase.Orchestrator
	runner   *usecase.ScheduledRunner
}

// New builds a fully wired application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Pipeline.Timeout()}

	registry := scanner.NewRegistry()
	registry.Register(feed.NewArxivAPISource(httpClient))
	registry.Register(feed.NewArxivListingSource(httpClient))
	registry.Register(feed.NewRSSSource(httpClient))

	source, err := registry.Resolve(cfg.Fetch.Source)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("resolve feed source: %w", err)
	}

	embedder, err := embeddings.New(cfg.Embeddings, httpClient)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	ledger := costs.NewLedger(store)
	fetcher := usecase.NewFetcher(source, store, baseLogger)
	chunker := usecase.NewChunker(cfg.Chunking.Size, cfg.Chunking.OverlapFraction)
	parser := usecase.NewParser(
		store,
		pdf.NewDownloader(cfg.Data.PDFDir, httpClient),
		pdf.NewExtractor(),
		chunker,
		cfg.Pipeline.Workers,
		baseLogger,
	)
	index := usecase.NewEmbeddingIndex(
		store,
		embedder,
		ledger,
		cfg.Embeddings.BatchSize,
		cfg.Embeddings.PricePer1KTokens,
		cfg.Pipeline.Workers,
		baseLogger,
	)

	var summarizer *usecase.Summarizer
	if cfg.Summaries.Enabled {
		generator := llm.NewClient(
			cfg.Summaries.Endpoint,
			cfg.Summaries.APIKey,
			cfg.Summaries.Model,
			cfg.Summaries.MaxTokens,
			httpClient,
		)
		summarizer = usecase.NewSummarizer(
			store,
			generator,
			ledger,
			cfg.Summaries.ContextBudget,
			cfg.Summaries.PricePer1KTokens,
			cfg.Summaries.MaxTokens,
			baseLogger,
		)
	}

	request := usecase.RequestSpec{
		Topic:     cfg.Fetch.Topic,
		DaysBack:  cfg.Fetch.DaysBack,
		MaxPapers: cfg.Fetch.MaxPapers,
		FeedURLs:  cfg.Fetch.FeedURLs,
	}
	pipeline := usecase.NewOrchestrator(
		store, fetcher, parser, index, summarizer,
		ledger, request, cfg.Summaries.BatchLimit, baseLogger,
	)

	cronSched := scheduler.NewCronScheduler(
		cfg.Scheduler.CronExpression,
		cfg.Scheduler.Location(),
		baseLogger,
	)

	var notifier ports.Notifier
	if cfg.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	runner := usecase.NewScheduledRunner(cronSched, pipeline, notifier, baseLogger)

	return &Application{
		cfg:      cfg,
		log:      baseLogger,
		store:    store,
		pipeline: pipeline,
		runner:   runner,
	}, nil
}

// Pipeline exposes the orchestrator for one-shot commands.
func (a *Application) Pipeline() *usecase.Orchestrator { return a.pipeline }

// ResetCosts clears the persisted cumulative spend. Administrative
// use only; pipeline runs never reset the ledger.
func (a *Application) ResetCosts(ctx context.Context) error {
	return a.store.ResetCumulativeCost(ctx)
}

// RunOnce performs a single full pipeline execution.
func (a *Application) RunOnce(ctx context.Context) (domain.PipelineRun, error) {
	return a.pipeline.RunPipeline(ctx)
}

// Start begins scheduled operation, optionally running once immediately.
func (a *Application) Start(ctx context.Context) error {
	if a.cfg.Scheduler.RunOnStart {
		if _, err := a.pipeline.RunPipeline(ctx); err != nil {
			a.log.Error("initial run failed", slog.String("error", err.Error()))
		}
	}
	return a.runner.Start(ctx)
}

// Stop shuts the scheduler down and closes the store.
func (a *Application) Stop(ctx context.Context) error {
	if err := a.runner.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop", slog.String("error", err.Error()))
	}
	return a.store.Close()
}
