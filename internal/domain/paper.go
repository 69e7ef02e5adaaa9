package domain

import (
	"strings"
	"time"
)

// Stage is the ordered processing state of a paper. Advancement is
// monotonic: a paper never moves back to an earlier stage.
type Stage int

const (
	StageFetched Stage = iota
	StageDownloaded
	StageParsed
	StageEmbedded
)

func (s Stage) String() string {
	switch s {
	case StageFetched:
		return "fetched"
	case StageDownloaded:
		return "downloaded"
	case StageParsed:
		return "parsed"
	case StageEmbedded:
		return "embedded"
	}
	return "unknown"
}

// Paper is the core entity tracked through the pipeline. The ArxivID is
// the stable external identifier used for deduplication across fetches.
type Paper struct {
	ArxivID     string
	Title       string
	Abstract    string
	Authors     []string
	URL         string
	PDFURL      string
	PublishedAt time.Time
	FullText    string
	PDFPath     string
	Stage       Stage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Downloaded reports whether the PDF has been retrieved.
func (p Paper) Downloaded() bool { return p.Stage >= StageDownloaded }

// Parsed reports whether full text has been extracted and chunked.
func (p Paper) Parsed() bool { return p.Stage >= StageParsed }

// Embedded reports whether chunk vectors exist for this paper.
func (p Paper) Embedded() bool { return p.Stage >= StageEmbedded }

// AuthorsLine renders authors the way feeds and summaries echo them.
func (p Paper) AuthorsLine() string {
	return strings.Join(p.Authors, ", ")
}

// Chunk is one contiguous span of a paper's extracted text. Chunks are
// immutable once written; a re-parse replaces the whole set.
type Chunk struct {
	PaperID string
	Seq     int
	Content string
}

// ChunkVector is a persisted embedding for one chunk under one model tag.
type ChunkVector struct {
	PaperID     string
	Seq         int
	Vector      []float32
	PublishedAt time.Time
}

// Summary is the structured LLM condensation of one paper. At most one
// summary exists per paper; regeneration replaces it atomically.
type Summary struct {
	PaperID         string
	AbstractSummary string
	Methodology     string
	Results         string
	RelatedWork     string
	Authors         string
	PublishedAt     time.Time
	StructureScore  int
	GeneratedAt     time.Time
}

// Sections returns the four expected summary sections in a fixed order.
func (s Summary) Sections() []string {
	return []string{s.AbstractSummary, s.Methodology, s.Results, s.RelatedWork}
}

// PopulatedSections counts sections with any content at all.
func (s Summary) PopulatedSections() int {
	n := 0
	for _, sec := range s.Sections() {
		if strings.TrimSpace(sec) != "" {
			n++
		}
	}
	return n
}

// RunStatus is the terminal state of one pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunFailure RunStatus = "FAILURE"
)

// PipelineRun records one orchestrated execution. Finalized exactly once.
type PipelineRun struct {
	ID               int64
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           RunStatus
	Error            string
	PapersStored     int
	PapersParsed     int
	PapersEmbedded   int
	PapersSummarized int
	CostUSD          float64
}

// FetchResult reports one fetch stage execution.
type FetchResult struct {
	PapersStored  int
	PapersSkipped int
}

// ParseResult reports one parse stage execution. Failed holds the ids of
// papers whose PDF could not be retrieved or read this run.
type ParseResult struct {
	Success int
	Failed  []string
}

// EmbedResult reports one embedding stage execution.
type EmbedResult struct {
	Success       int
	Failed        []string
	EstimatedCost float64
}

// SummaryBatchResult reports one summarization stage execution.
type SummaryBatchResult struct {
	Success       int
	Failed        []string
	EstimatedCost float64
}

// SearchResult is one ranked hit: the paper, its single best-scoring
// chunk, and the exact cosine similarity in [-1, 1].
type SearchResult struct {
	Paper      Paper
	BestChunk  string
	Similarity float64
}

// CorpusStatus is the aggregate surfaced to status queries.
type CorpusStatus struct {
	TotalPapers       int
	ProcessedPapers   int
	PapersWithVectors int
	TotalChunks       int
	TotalSummaries    int
	AvgStructureScore float64
	CumulativeCostUSD float64
	LastRun           *PipelineRun
}
