package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ragresearch/internal/costs"
	"ragresearch/internal/domain"
)

func seedParsed(t *testing.T, store *memStore, id string, published time.Time, chunkTexts ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.UpsertPaper(ctx, domain.Paper{
		ArxivID:     id,
		Title:       "Paper " + id,
		PublishedAt: published,
		Stage:       domain.StageFetched,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	chunks := make([]domain.Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = domain.Chunk{PaperID: id, Seq: i, Content: text}
	}
	if err := store.StoreParsedText(ctx, id, "full text", "/tmp/p.pdf", chunks); err != nil {
		t.Fatalf("seed chunks %s: %v", id, err)
	}
	if err := store.AdvanceStage(ctx, id, domain.StageParsed, false); err != nil {
		t.Fatalf("seed stage %s: %v", id, err)
	}
}

func TestProcessAllPapersEmbedsAndAdvances(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	published := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	seedParsed(t, store, "2408.10001", published, "chunk one", "chunk two")

	embedder := newFakeEmbedder("test-model")
	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 2, discardLogger())

	result, err := index.ProcessAllPapers(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Success != 1 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.EstimatedCost <= 0 {
		t.Fatal("expected a positive cost estimate")
	}

	paper, _ := store.GetPaper(context.Background(), "2408.10001")
	if paper.Stage != domain.StageEmbedded {
		t.Fatalf("stage %s, want embedded", paper.Stage)
	}

	vectors, _ := store.LoadVectors(context.Background(), "test-model")
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
}

func TestEmbedBatchHalvesOnFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	published := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	seedParsed(t, store, "2408.10002", published, "a", "b", "c", "d")

	embedder := newFakeEmbedder("test-model")
	embedder.failures = 1 // first full-batch call fails, halves succeed

	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 1, discardLogger())

	result, err := index.ProcessAllPapers(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Success != 1 {
		t.Fatalf("expected success after half-size retry: %+v", result)
	}

	// One failed full batch plus two half batches.
	if len(embedder.calls) != 3 {
		t.Fatalf("expected 3 embed calls, got %d", len(embedder.calls))
	}
	if len(embedder.calls[1]) != 2 || len(embedder.calls[2]) != 2 {
		t.Fatalf("halving not applied: %v", embedder.calls)
	}
}

func TestEmbedChargesCostOnFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	published := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	seedParsed(t, store, "2408.10003", published, "only chunk")

	embedder := newFakeEmbedder("test-model")
	embedder.failures = 10 // single-chunk batch cannot halve, paper fails

	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 1, discardLogger())

	result, err := index.ProcessAllPapers(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected failure: %+v", result)
	}
	if ledger.TotalUSD() <= 0 {
		t.Fatal("failed attempt must still be charged")
	}

	paper, _ := store.GetPaper(context.Background(), "2408.10003")
	if paper.Stage != domain.StageParsed {
		t.Fatalf("failed paper advanced to %s", paper.Stage)
	}
}

func TestSearchRanksByBestChunk(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	older := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC)
	seedParsed(t, store, "2408.20001", older, "close match", "far away")
	seedParsed(t, store, "2408.20002", newer, "medium match")
	seedParsed(t, store, "2408.20003", newer, "no match at all")

	// Hand-built vectors: similarity to the query (1,0,0) is the first
	// component after normalization.
	byText := map[string][]float32{
		"close match":     {1, 0.1, 0},
		"far away":        {0, 1, 0},
		"medium match":    {1, 1, 0},
		"no match at all": {0, 0, 1},
		"query":           {1, 0, 0},
	}
	embedder := newFakeEmbedder("test-model")
	embedder.vector = func(text string) []float32 { return byText[text] }

	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 1, discardLogger())

	if _, err := index.ProcessAllPapers(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	results, err := index.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	// Three papers indexed, so at most three results regardless of k.
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Paper.ArxivID != "2408.20001" {
		t.Fatalf("best paper wrong: %s", results[0].Paper.ArxivID)
	}
	if results[0].BestChunk != "close match" {
		t.Fatalf("best chunk wrong: %q", results[0].BestChunk)
	}
	if results[1].Paper.ArxivID != "2408.20002" {
		t.Fatalf("second paper wrong: %s", results[1].Paper.ArxivID)
	}
	if results[0].Similarity < results[1].Similarity ||
		results[1].Similarity < results[2].Similarity {
		t.Fatal("results not sorted by similarity")
	}
}

func TestSearchCapsAtK(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	published := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"2408.30001", "2408.30002", "2408.30003"} {
		seedParsed(t, store, id, published, "text for "+id)
	}

	embedder := newFakeEmbedder("test-model")
	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 1, discardLogger())

	if _, err := index.ProcessAllPapers(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	results, err := index.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestSearchModelMismatch(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	published := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	seedParsed(t, store, "2408.40001", published, "chunk")

	// Index with one model, query with another.
	oldEmbedder := newFakeEmbedder("model-v1")
	ledger := costs.NewLedger(store)
	if _, err := NewEmbeddingIndex(store, oldEmbedder, ledger, 64, 0.02, 1, discardLogger()).
		ProcessAllPapers(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	newEmbedder := newFakeEmbedder("model-v2")
	index := NewEmbeddingIndex(store, newEmbedder, ledger, 64, 0.02, 1, discardLogger())

	_, err := index.Search(context.Background(), "query", 5)
	if !errors.Is(err, domain.ErrModelVersionMismatch) {
		t.Fatalf("expected ErrModelVersionMismatch, got %v", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	embedder := newFakeEmbedder("test-model")
	ledger := costs.NewLedger(store)
	index := NewEmbeddingIndex(store, embedder, ledger, 64, 0.02, 1, discardLogger())

	results, err := index.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposite vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 0}); got != 0 {
		t.Fatalf("zero vector: %f", got)
	}
	if got := cosineSimilarity([]float32{1}, []float32{1, 0}); got != 0 {
		t.Fatalf("length mismatch: %f", got)
	}
}
