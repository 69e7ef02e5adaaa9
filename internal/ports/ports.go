package ports

import (
	"context"
	"time"

	"ragresearch/internal/domain"
)

// PaperStore is the single source of truth for papers and every derived
// artifact. All writes are scoped to one paper's record.
type PaperStore interface {
	// UpsertPaper inserts the paper if its id is unseen, otherwise merges
	// non-empty fields without ever regressing the stage. Returns true
	// when a new row was created. Idempotent for identical input.
	UpsertPaper(ctx context.Context, p domain.Paper) (bool, error)

	// GetPaper returns domain.ErrPaperNotFound for unknown ids.
	GetPaper(ctx context.Context, id string) (domain.Paper, error)

	// ListRecent returns papers newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Paper, error)

	// ListInStageRange returns papers whose stage is in [min, below).
	ListInStageRange(ctx context.Context, min, below domain.Stage) ([]domain.Paper, error)

	// AdvanceStage moves the paper forward to stage. Without force it
	// fails with domain.ErrInvalidTransition if the paper is already at
	// or past the stage; with force an already-reached stage is a no-op.
	AdvanceStage(ctx context.Context, id string, stage domain.Stage, force bool) error

	// StoreParsedText persists the extracted text, the local PDF path and
	// the replacement chunk set in one transaction, superseding any
	// previous chunks.
	StoreParsedText(ctx context.Context, id, text, pdfPath string, chunks []domain.Chunk) error

	// ChunksForPaper returns the paper's chunks in sequence order.
	ChunksForPaper(ctx context.Context, id string) ([]domain.Chunk, error)

	// GetChunk returns one chunk by paper id and sequence index.
	GetChunk(ctx context.Context, id string, seq int) (domain.Chunk, error)

	// SaveVectors persists chunk embeddings keyed by (paper, seq, model).
	SaveVectors(ctx context.Context, model string, vectors []domain.ChunkVector) error

	// LoadVectors returns every persisted vector for the given model tag.
	LoadVectors(ctx context.Context, model string) ([]domain.ChunkVector, error)

	// IndexModels lists the distinct model tags present in the index.
	IndexModels(ctx context.Context) ([]string, error)

	// ReplaceSummary atomically replaces the paper's summary. Readers
	// never observe a half-written record.
	ReplaceSummary(ctx context.Context, s domain.Summary) error

	// GetSummary returns (summary, true, nil) when one exists.
	GetSummary(ctx context.Context, id string) (domain.Summary, bool, error)

	// HasSummary reports whether a summary exists for the paper.
	HasSummary(ctx context.Context, id string) (bool, error)

	// Status returns the aggregate counters for status queries.
	Status(ctx context.Context) (domain.CorpusStatus, error)

	// StartRun opens a pipeline run record and returns its id.
	StartRun(ctx context.Context, startedAt time.Time) (int64, error)

	// FinishRun finalizes a run exactly once.
	FinishRun(ctx context.Context, run domain.PipelineRun) error

	// LastRun returns the most recently started run, or nil.
	LastRun(ctx context.Context) (*domain.PipelineRun, error)

	// AddCost accumulates persisted cumulative spend for one call kind.
	AddCost(ctx context.Context, kind string, units int64, usd float64) error

	// ResetCumulativeCost is the explicit administrative reset; the
	// pipeline itself never clears the ledger.
	ResetCumulativeCost(ctx context.Context) error
}

// Embedder turns texts into fixed-dimension vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Generator produces a completion for a summarization prompt.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// PDFFetcher retrieves the paper's PDF into the local cache and returns
// its path. A cached file is returned without a network call.
type PDFFetcher interface {
	Fetch(ctx context.Context, paper domain.Paper) (string, error)
}

// TextExtractor pulls plain text out of a local PDF file.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// Notifier publishes the outcome of a finished pipeline run to an
// external channel.
type Notifier interface {
	PublishRunReport(ctx context.Context, run domain.PipelineRun) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
