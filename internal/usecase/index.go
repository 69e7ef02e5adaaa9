package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"ragresearch/internal/costs"
	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// EmbeddingIndex embeds parsed chunks and answers similarity queries.
// Every vector is tagged with the model that produced it; queries only
// run against vectors from the active model.
type EmbeddingIndex struct {
	store     ports.PaperStore
	embedder  ports.Embedder
	ledger    *costs.Ledger
	batchSize int
	price1K   float64
	workers   int
	log       *slog.Logger
}

func NewEmbeddingIndex(
	store ports.PaperStore,
	embedder ports.Embedder,
	ledger *costs.Ledger,
	batchSize int,
	pricePer1KTokens float64,
	workers int,
	log *slog.Logger,
) *EmbeddingIndex {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 4
	}
	return &EmbeddingIndex{
		store:     store,
		embedder:  embedder,
		ledger:    ledger,
		batchSize: batchSize,
		price1K:   pricePer1KTokens,
		workers:   workers,
		log:       log.With(slog.String("component", "index")),
	}
}

// ProcessAllPapers embeds every parsed-but-unembedded paper. A failing
// batch is retried once at half size; a paper whose chunks still cannot
// be embedded is recorded as failed and the stage moves on.
func (x *EmbeddingIndex) ProcessAllPapers(ctx context.Context) (domain.EmbedResult, error) {
	papers, err := x.store.ListInStageRange(ctx, domain.StageParsed, domain.StageEmbedded)
	if err != nil {
		return domain.EmbedResult{}, fmt.Errorf("list unembedded papers: %w", err)
	}

	var (
		mu     sync.Mutex
		result domain.EmbedResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, x.workers)
	)

	for _, paper := range papers {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(paper domain.Paper) {
			defer wg.Done()
			defer func() { <-sem }()

			cost, err := x.embedOne(ctx, paper)
			mu.Lock()
			defer mu.Unlock()
			result.EstimatedCost += cost
			if err != nil {
				x.log.Warn("embedding failed",
					slog.String("paper", paper.ArxivID),
					slog.String("error", err.Error()),
				)
				result.Failed = append(result.Failed, paper.ArxivID)
				return
			}
			result.Success++
		}(paper)
	}
	wg.Wait()

	sort.Strings(result.Failed)
	x.log.Info("embedding complete",
		slog.Int("success", result.Success),
		slog.Int("failed", len(result.Failed)),
		slog.Float64("estimatedCost", result.EstimatedCost),
	)
	return result, ctx.Err()
}

// embedOne embeds all chunks of one paper and returns the estimated
// cost of every attempt made, charged whether or not the paper succeeds.
func (x *EmbeddingIndex) embedOne(ctx context.Context, paper domain.Paper) (float64, error) {
	chunks, err := x.store.ChunksForPaper(ctx, paper.ArxivID)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("paper %s has no chunks", paper.ArxivID)
	}

	var (
		total   float64
		vectors []domain.ChunkVector
	)
	for start := 0; start < len(chunks); start += x.batchSize {
		end := start + x.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embedded, cost, err := x.embedBatch(ctx, batch)
		total += cost
		if err != nil {
			return total, err
		}
		for i, vec := range embedded {
			vectors = append(vectors, domain.ChunkVector{
				PaperID:     paper.ArxivID,
				Seq:         batch[i].Seq,
				Vector:      vec,
				PublishedAt: paper.PublishedAt,
			})
		}
	}

	if err := x.store.SaveVectors(ctx, x.embedder.Model(), vectors); err != nil {
		return total, fmt.Errorf("save vectors: %w", err)
	}
	if err := x.store.AdvanceStage(ctx, paper.ArxivID, domain.StageEmbedded, false); err != nil &&
		!errors.Is(err, domain.ErrInvalidTransition) {
		return total, fmt.Errorf("advance to embedded: %w", err)
	}
	return total, nil
}

// embedBatch embeds one batch, retrying once at half size on failure.
// Cost is charged per attempt, before any error is returned.
func (x *EmbeddingIndex) embedBatch(ctx context.Context, batch []domain.Chunk) ([][]float32, float64, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	cost := x.charge(ctx, texts)
	vecs, err := x.embedder.Embed(ctx, texts)
	if err == nil {
		return vecs, cost, nil
	}
	if len(batch) <= 1 {
		return nil, cost, fmt.Errorf("embed batch: %w", err)
	}

	// Half-size retry covers payload-too-large style failures without a
	// full backoff loop.
	half := len(batch) / 2
	var out [][]float32
	for _, sub := range [][]domain.Chunk{batch[:half], batch[half:]} {
		subTexts := make([]string, len(sub))
		for i, c := range sub {
			subTexts[i] = c.Content
		}
		cost += x.charge(ctx, subTexts)
		vecs, err := x.embedder.Embed(ctx, subTexts)
		if err != nil {
			return nil, cost, fmt.Errorf("embed batch retry: %w", err)
		}
		out = append(out, vecs...)
	}
	return out, cost, nil
}

// charge estimates and books the cost of one embedding call.
func (x *EmbeddingIndex) charge(ctx context.Context, texts []string) float64 {
	var tokens int64
	for _, t := range texts {
		tokens += estimateTokens(t)
	}
	usd := float64(tokens) / 1000 * x.price1K
	if err := x.ledger.Add(ctx, costs.KindEmbedding, tokens, usd); err != nil {
		x.log.Warn("cost write-through failed", slog.String("error", err.Error()))
	}
	return usd
}

// Search embeds the query with the active model and returns up to k
// papers ranked by the cosine similarity of their single best chunk.
func (x *EmbeddingIndex) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = 5
	}

	model := x.embedder.Model()
	models, err := x.store.IndexModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index models: %w", err)
	}
	if len(models) == 0 {
		return []domain.SearchResult{}, nil
	}
	indexed := false
	for _, m := range models {
		if m == model {
			indexed = true
			break
		}
	}
	if !indexed {
		return nil, fmt.Errorf("index built with %v, query model is %s: %w",
			models, model, domain.ErrModelVersionMismatch)
	}

	x.charge(ctx, []string{query})
	qvecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qvec := qvecs[0]

	vectors, err := x.store.LoadVectors(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	type best struct {
		seq         int
		similarity  float64
		publishedAt int64
	}
	bests := make(map[string]best)
	for _, v := range vectors {
		sim := cosineSimilarity(qvec, v.Vector)
		cur, ok := bests[v.PaperID]
		if !ok || sim > cur.similarity {
			bests[v.PaperID] = best{
				seq:         v.Seq,
				similarity:  sim,
				publishedAt: v.PublishedAt.Unix(),
			}
		}
	}

	ids := make([]string, 0, len(bests))
	for id := range bests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := bests[ids[i]], bests[ids[j]]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.publishedAt != b.publishedAt {
			return a.publishedAt > b.publishedAt
		}
		return ids[i] < ids[j]
	})
	if len(ids) > k {
		ids = ids[:k]
	}

	results := make([]domain.SearchResult, 0, len(ids))
	for _, id := range ids {
		paper, err := x.store.GetPaper(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load paper %s: %w", id, err)
		}
		chunk, err := x.store.GetChunk(ctx, id, bests[id].seq)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s/%d: %w", id, bests[id].seq, err)
		}
		results = append(results, domain.SearchResult{
			Paper:      paper,
			BestChunk:  chunk.Content,
			Similarity: bests[id].similarity,
		})
	}
	return results, nil
}

// cosineSimilarity computes exact cosine similarity; mismatched or zero
// vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// estimateTokens approximates the provider tokenizer at four characters
// per token, the standard rule of thumb for English text.
func estimateTokens(text string) int64 {
	n := int64(len(text)) / 4
	if n < 1 {
		n = 1
	}
	return n
}
