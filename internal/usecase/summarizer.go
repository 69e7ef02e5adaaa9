package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ragresearch/internal/costs"
	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

const summarySystemPrompt = `You are a research assistant that condenses ` +
	`machine learning papers. Respond with a single JSON object with exactly ` +
	`these keys: "abstract_summary", "methodology", "results", "related_work". ` +
	`Each value is a concise paragraph grounded only in the provided text. ` +
	`Leave a key's value empty when the paper gives no material for it.`

// minSectionLength is the shortest section content that counts toward
// the structure score; anything shorter is treated as filler.
const minSectionLength = 40

// Summarizer generates structured per-paper summaries through the
// completion API. At most one summary exists per paper.
type Summarizer struct {
	store     ports.PaperStore
	generator ports.Generator
	ledger    *costs.Ledger
	budget    int
	price1K   float64
	maxTokens int
	log       *slog.Logger
}

func NewSummarizer(
	store ports.PaperStore,
	generator ports.Generator,
	ledger *costs.Ledger,
	contextBudget int,
	pricePer1KTokens float64,
	maxTokens int,
	log *slog.Logger,
) *Summarizer {
	if contextBudget <= 0 {
		contextBudget = 12000
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Summarizer{
		store:     store,
		generator: generator,
		ledger:    ledger,
		budget:    contextBudget,
		price1K:   pricePer1KTokens,
		maxTokens: maxTokens,
		log:       log.With(slog.String("component", "summarizer")),
	}
}

// GenerateSummary produces and stores the summary for one parsed paper.
// Prerequisite checks run before any API spend: an unparsed paper costs
// nothing. An existing summary without force fails with
// domain.ErrInvalidTransition; with force it is replaced.
func (s *Summarizer) GenerateSummary(ctx context.Context, id string, force bool) (domain.Summary, error) {
	paper, err := s.store.GetPaper(ctx, id)
	if err != nil {
		return domain.Summary{}, err
	}
	if !paper.Parsed() {
		return domain.Summary{}, fmt.Errorf("paper %s is %s, needs parsed text: %w",
			id, paper.Stage, domain.ErrPrereqNotMet)
	}

	exists, err := s.store.HasSummary(ctx, id)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("check summary %s: %w", id, err)
	}
	if exists && !force {
		return domain.Summary{}, fmt.Errorf("paper %s already summarized: %w",
			id, domain.ErrInvalidTransition)
	}

	user := s.buildPrompt(paper)
	s.charge(ctx, user)

	raw, err := s.generator.Complete(ctx, summarySystemPrompt, user)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize %s: %w", id, err)
	}

	summary, err := s.parseResponse(paper, raw)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize %s: %w", id, err)
	}

	if err := s.store.ReplaceSummary(ctx, summary); err != nil {
		return domain.Summary{}, fmt.Errorf("store summary %s: %w", id, err)
	}
	return summary, nil
}

// Regenerate replaces an existing summary unconditionally.
func (s *Summarizer) Regenerate(ctx context.Context, id string) (domain.Summary, error) {
	return s.GenerateSummary(ctx, id, true)
}

// GenerateBatch summarizes up to limit parsed papers that have no
// summary yet. Per-paper failures are collected; papers failing their
// prerequisite are skipped silently since the listing already filters
// for parsed papers.
func (s *Summarizer) GenerateBatch(ctx context.Context, limit int) (domain.SummaryBatchResult, error) {
	papers, err := s.store.ListInStageRange(ctx, domain.StageParsed, domain.StageEmbedded+1)
	if err != nil {
		return domain.SummaryBatchResult{}, fmt.Errorf("list parsed papers: %w", err)
	}

	var result domain.SummaryBatchResult
	before := s.ledger.TotalUSD()
	for _, paper := range papers {
		if ctx.Err() != nil {
			break
		}
		if limit > 0 && result.Success+len(result.Failed) >= limit {
			break
		}

		_, err := s.GenerateSummary(ctx, paper.ArxivID, false)
		switch {
		case err == nil:
			result.Success++
		case errors.Is(err, domain.ErrInvalidTransition):
			// Already summarized, not a failure and not counted
			// against the batch limit.
			continue
		default:
			s.log.Warn("summary failed",
				slog.String("paper", paper.ArxivID),
				slog.String("error", err.Error()),
			)
			result.Failed = append(result.Failed, paper.ArxivID)
		}
	}
	result.EstimatedCost = s.ledger.TotalUSD() - before

	sort.Strings(result.Failed)
	s.log.Info("summarization complete",
		slog.Int("success", result.Success),
		slog.Int("failed", len(result.Failed)),
		slog.Float64("estimatedCost", result.EstimatedCost),
	)
	return result, ctx.Err()
}

// buildPrompt assembles the user message, truncating the full text to
// the configured context budget so long papers never blow the window.
func (s *Summarizer) buildPrompt(paper domain.Paper) string {
	text := paper.FullText
	if runes := []rune(text); len(runes) > s.budget {
		text = string(runes[:s.budget])
	}

	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(paper.Title)
	b.WriteString("\nAuthors: ")
	b.WriteString(paper.AuthorsLine())
	b.WriteString("\nAbstract: ")
	b.WriteString(paper.Abstract)
	b.WriteString("\n\nFull text (may be truncated):\n")
	b.WriteString(text)
	return b.String()
}

// charge books the estimated prompt plus completion cost. Charged per
// attempt; a failed completion is still paid for.
func (s *Summarizer) charge(ctx context.Context, prompt string) {
	tokens := estimateTokens(prompt) + int64(s.maxTokens)
	usd := float64(tokens) / 1000 * s.price1K
	if err := s.ledger.Add(ctx, costs.KindGeneration, tokens, usd); err != nil {
		s.log.Warn("cost write-through failed", slog.String("error", err.Error()))
	}
}

// parseResponse decodes the model output into a scored summary record.
func (s *Summarizer) parseResponse(paper domain.Paper, raw string) (domain.Summary, error) {
	var parsed struct {
		AbstractSummary string `json:"abstract_summary"`
		Methodology     string `json:"methodology"`
		Results         string `json:"results"`
		RelatedWork     string `json:"related_work"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return domain.Summary{}, fmt.Errorf("decode summary response: %w", err)
	}

	summary := domain.Summary{
		PaperID:         paper.ArxivID,
		AbstractSummary: strings.TrimSpace(parsed.AbstractSummary),
		Methodology:     strings.TrimSpace(parsed.Methodology),
		Results:         strings.TrimSpace(parsed.Results),
		RelatedWork:     strings.TrimSpace(parsed.RelatedWork),
		Authors:         paper.AuthorsLine(),
		PublishedAt:     paper.PublishedAt,
		GeneratedAt:     time.Now().UTC(),
	}
	summary.StructureScore = scoreSummary(summary, paper)
	return summary, nil
}

// scoreSummary awards 25 points per section that carries real content:
// long enough to say something and not just the abstract echoed back.
func scoreSummary(s domain.Summary, paper domain.Paper) int {
	abstract := normalizeForCompare(paper.Abstract)
	score := 0
	for _, section := range s.Sections() {
		trimmed := strings.TrimSpace(section)
		if len(trimmed) < minSectionLength {
			continue
		}
		if abstract != "" && normalizeForCompare(trimmed) == abstract {
			continue
		}
		score += 25
	}
	return score
}

func normalizeForCompare(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stripFences removes a markdown code fence wrapper if the model added
// one around the JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
