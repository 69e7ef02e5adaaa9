package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragresearch/internal/costs"
	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// Orchestrator drives the full pipeline and fronts the query surface.
// Stages run strictly in order; concurrency lives inside each stage.
type Orchestrator struct {
	store      ports.PaperStore
	fetcher    *Fetcher
	parser     *Parser
	index      *EmbeddingIndex
	summarizer *Summarizer // nil when summaries are disabled
	ledger     *costs.Ledger
	request    RequestSpec
	batchLimit int
	log        *slog.Logger
}

func NewOrchestrator(
	store ports.PaperStore,
	fetcher *Fetcher,
	parser *Parser,
	index *EmbeddingIndex,
	summarizer *Summarizer,
	ledger *costs.Ledger,
	request RequestSpec,
	batchLimit int,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		parser:     parser,
		index:      index,
		summarizer: summarizer,
		ledger:     ledger,
		request:    request,
		batchLimit: batchLimit,
		log:        log.With(slog.String("component", "pipeline")),
	}
}

// RunPipeline executes fetch, parse, embed and, when enabled,
// summarize, recording one run row. Individual paper failures inside a
// stage do not fail the run; only a stage-fatal error does. The run
// record is finalized exactly once either way.
func (o *Orchestrator) RunPipeline(ctx context.Context) (domain.PipelineRun, error) {
	startedAt := time.Now().UTC()
	runID, err := o.store.StartRun(ctx, startedAt)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("start run: %w", err)
	}

	run := domain.PipelineRun{ID: runID, StartedAt: startedAt}
	costBefore := o.ledger.TotalUSD()
	runErr := o.runStages(ctx, &run)

	run.FinishedAt = time.Now().UTC()
	run.CostUSD = o.ledger.TotalUSD() - costBefore
	if runErr != nil {
		run.Status = domain.RunFailure
		run.Error = runErr.Error()
	} else {
		run.Status = domain.RunSuccess
	}

	if err := o.store.FinishRun(ctx, run); err != nil {
		o.log.Error("finalize run failed",
			slog.Int64("run", runID),
			slog.String("error", err.Error()),
		)
	}

	o.log.Info("pipeline finished",
		slog.Int64("run", runID),
		slog.String("status", string(run.Status)),
		slog.Int("stored", run.PapersStored),
		slog.Int("parsed", run.PapersParsed),
		slog.Int("embedded", run.PapersEmbedded),
		slog.Int("summarized", run.PapersSummarized),
		slog.Float64("costUsd", run.CostUSD),
		slog.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, runErr
}

func (o *Orchestrator) runStages(ctx context.Context, run *domain.PipelineRun) error {
	o.log.Info("fetching", slog.Int64("run", run.ID))
	fetched, err := o.fetcher.FetchRecent(ctx, o.request.Build(time.Now()))
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}
	run.PapersStored = fetched.PapersStored

	o.log.Info("parsing", slog.Int64("run", run.ID))
	parsed, err := o.parser.ParseAllUnprocessed(ctx)
	if err != nil {
		return fmt.Errorf("parse stage: %w", err)
	}
	run.PapersParsed = parsed.Success

	o.log.Info("embedding", slog.Int64("run", run.ID))
	embedded, err := o.index.ProcessAllPapers(ctx)
	if err != nil {
		return fmt.Errorf("embed stage: %w", err)
	}
	run.PapersEmbedded = embedded.Success

	if o.summarizer != nil {
		o.log.Info("summarizing", slog.Int64("run", run.ID))
		summarized, err := o.summarizer.GenerateBatch(ctx, o.batchLimit)
		if err != nil {
			return fmt.Errorf("summarize stage: %w", err)
		}
		run.PapersSummarized = summarized.Success
	}
	return nil
}

// FetchRecent runs only the fetch stage.
func (o *Orchestrator) FetchRecent(ctx context.Context) (domain.FetchResult, error) {
	return o.fetcher.FetchRecent(ctx, o.request.Build(time.Now()))
}

// ParseAllUnprocessed runs only the parse stage.
func (o *Orchestrator) ParseAllUnprocessed(ctx context.Context) (domain.ParseResult, error) {
	return o.parser.ParseAllUnprocessed(ctx)
}

// ProcessAllPapers runs only the embedding stage.
func (o *Orchestrator) ProcessAllPapers(ctx context.Context) (domain.EmbedResult, error) {
	return o.index.ProcessAllPapers(ctx)
}

// SummarizeBatch runs only the summarization stage.
func (o *Orchestrator) SummarizeBatch(ctx context.Context) (domain.SummaryBatchResult, error) {
	if o.summarizer == nil {
		return domain.SummaryBatchResult{}, fmt.Errorf("summaries are disabled")
	}
	return o.summarizer.GenerateBatch(ctx, o.batchLimit)
}

// SearchPapers answers a similarity query against the embedded corpus.
func (o *Orchestrator) SearchPapers(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	return o.index.Search(ctx, query, k)
}

// GetStatus reports the aggregate corpus counters and the last run.
func (o *Orchestrator) GetStatus(ctx context.Context) (domain.CorpusStatus, error) {
	return o.store.Status(ctx)
}

// GetRecentPapers lists stored papers newest first.
func (o *Orchestrator) GetRecentPapers(ctx context.Context, limit int) ([]domain.Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	return o.store.ListRecent(ctx, limit)
}

// GetPaperSummary returns the stored summary for one paper, reporting
// whether one exists.
func (o *Orchestrator) GetPaperSummary(ctx context.Context, id string) (domain.Summary, bool, error) {
	if _, err := o.store.GetPaper(ctx, id); err != nil {
		return domain.Summary{}, false, err
	}
	return o.store.GetSummary(ctx, id)
}
