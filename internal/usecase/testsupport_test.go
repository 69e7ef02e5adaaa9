package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
	"ragresearch/internal/scanner"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory PaperStore with the same semantics as the
// sqlite implementation, used to exercise the use cases in isolation.
type memStore struct {
	mu        sync.Mutex
	papers    map[string]domain.Paper
	chunks    map[string][]domain.Chunk
	vectors   map[string][]domain.ChunkVector // keyed by model
	summaries map[string]domain.Summary
	runs      []domain.PipelineRun
	costUnits map[string]int64
	costUSD   map[string]float64
	nextRunID int64
}

var _ ports.PaperStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		papers:    map[string]domain.Paper{},
		chunks:    map[string][]domain.Chunk{},
		vectors:   map[string][]domain.ChunkVector{},
		summaries: map[string]domain.Summary{},
		costUnits: map[string]int64{},
		costUSD:   map[string]float64{},
	}
}

func (m *memStore) UpsertPaper(_ context.Context, p domain.Paper) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.papers[p.ArxivID]
	if !ok {
		m.papers[p.ArxivID] = p
		return true, nil
	}
	if p.Title != "" {
		existing.Title = p.Title
	}
	if p.Abstract != "" {
		existing.Abstract = p.Abstract
	}
	m.papers[p.ArxivID] = existing
	return false, nil
}

func (m *memStore) GetPaper(_ context.Context, id string) (domain.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[id]
	if !ok {
		return domain.Paper{}, domain.ErrPaperNotFound
	}
	return p, nil
}

func (m *memStore) ListRecent(_ context.Context, limit int) ([]domain.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Paper, 0, len(m.papers))
	for _, p := range m.papers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ArxivID > out[j].ArxivID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListInStageRange(_ context.Context, min, below domain.Stage) ([]domain.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Paper
	for _, p := range m.papers {
		if p.Stage >= min && p.Stage < below {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArxivID < out[j].ArxivID })
	return out, nil
}

func (m *memStore) AdvanceStage(_ context.Context, id string, stage domain.Stage, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[id]
	if !ok {
		return domain.ErrPaperNotFound
	}
	if p.Stage >= stage {
		if force {
			return nil
		}
		return domain.ErrInvalidTransition
	}
	p.Stage = stage
	m.papers[id] = p
	return nil
}

func (m *memStore) StoreParsedText(_ context.Context, id, text, pdfPath string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[id]
	if !ok {
		return domain.ErrPaperNotFound
	}
	p.FullText = text
	p.PDFPath = pdfPath
	m.papers[id] = p
	m.chunks[id] = append([]domain.Chunk(nil), chunks...)
	return nil
}

func (m *memStore) ChunksForPaper(_ context.Context, id string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Chunk(nil), m.chunks[id]...), nil
}

func (m *memStore) GetChunk(_ context.Context, id string, seq int) (domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks[id] {
		if c.Seq == seq {
			return c, nil
		}
	}
	return domain.Chunk{}, fmt.Errorf("chunk %s/%d not found", id, seq)
}

func (m *memStore) SaveVectors(_ context.Context, model string, vectors []domain.ChunkVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(vectors) == 0 {
		return nil
	}
	kept := m.vectors[model][:0]
	for _, v := range m.vectors[model] {
		if v.PaperID != vectors[0].PaperID {
			kept = append(kept, v)
		}
	}
	m.vectors[model] = append(kept, vectors...)
	return nil
}

func (m *memStore) LoadVectors(_ context.Context, model string) ([]domain.ChunkVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChunkVector(nil), m.vectors[model]...), nil
}

func (m *memStore) IndexModels(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var models []string
	for model, vecs := range m.vectors {
		if len(vecs) > 0 {
			models = append(models, model)
		}
	}
	sort.Strings(models)
	return models, nil
}

func (m *memStore) ReplaceSummary(_ context.Context, s domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.PaperID] = s
	return nil
}

func (m *memStore) GetSummary(_ context.Context, id string) (domain.Summary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	return s, ok, nil
}

func (m *memStore) HasSummary(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.summaries[id]
	return ok, nil
}

func (m *memStore) Status(_ context.Context) (domain.CorpusStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := domain.CorpusStatus{TotalPapers: len(m.papers), TotalSummaries: len(m.summaries)}
	for _, p := range m.papers {
		if p.Stage >= domain.StageParsed {
			status.ProcessedPapers++
		}
		if p.Stage >= domain.StageEmbedded {
			status.PapersWithVectors++
		}
	}
	for _, c := range m.chunks {
		status.TotalChunks += len(c)
	}
	for _, usd := range m.costUSD {
		status.CumulativeCostUSD += usd
	}
	return status, nil
}

func (m *memStore) StartRun(_ context.Context, startedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRunID++
	m.runs = append(m.runs, domain.PipelineRun{ID: m.nextRunID, StartedAt: startedAt})
	return m.nextRunID, nil
}

func (m *memStore) FinishRun(_ context.Context, run domain.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == run.ID {
			if r.Status != "" {
				return fmt.Errorf("run %d already finalized", run.ID)
			}
			m.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("run %d not found", run.ID)
}

func (m *memStore) LastRun(_ context.Context) (*domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	run := m.runs[len(m.runs)-1]
	return &run, nil
}

func (m *memStore) AddCost(_ context.Context, kind string, units int64, usd float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costUnits[kind] += units
	m.costUSD[kind] += usd
	return nil
}

func (m *memStore) ResetCumulativeCost(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costUnits = map[string]int64{}
	m.costUSD = map[string]float64{}
	return nil
}

// fakeEmbedder returns deterministic vectors and can be set to fail a
// number of calls.
type fakeEmbedder struct {
	mu       sync.Mutex
	model    string
	failures int
	calls    [][]string
	vector   func(text string) []float32
}

func newFakeEmbedder(model string) *fakeEmbedder {
	return &fakeEmbedder{model: model}
}

func (f *fakeEmbedder) Model() string { return f.model }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("embedder unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.vector != nil {
			out[i] = f.vector(text)
			continue
		}
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

// fakeGenerator returns a canned completion.
type fakeGenerator struct {
	model    string
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Model() string { return f.model }

func (f *fakeGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakePDFFetcher maps paper ids to paths and failures.
type fakePDFFetcher struct {
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func newFakePDFFetcher() *fakePDFFetcher {
	return &fakePDFFetcher{fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakePDFFetcher) Fetch(_ context.Context, paper domain.Paper) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[paper.ArxivID]++
	if err := f.fail[paper.ArxivID]; err != nil {
		return "", err
	}
	return "/tmp/" + paper.ArxivID + ".pdf", nil
}

// fakeExtractor maps paths to canned text.
type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeSource returns a fixed paper slice and records the requests it
// was scanned with.
type fakeSource struct {
	mu     sync.Mutex
	name   string
	papers []domain.Paper
	err    error
	reqs   []scanner.Request
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Scan(_ context.Context, req scanner.Request) ([]domain.Paper, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.papers, f.err
}

func (f *fakeSource) requests() []scanner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scanner.Request(nil), f.reqs...)
}
