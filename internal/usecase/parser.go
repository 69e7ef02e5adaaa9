package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
	"ragresearch/internal/retry"
)

// Parser downloads paper PDFs, extracts their text and persists the
// chunked result. One worker owns one paper at a time, so per-paper
// state never races.
type Parser struct {
	store     ports.PaperStore
	fetcher   ports.PDFFetcher
	extractor ports.TextExtractor
	chunker   *Chunker
	workers   int
	retry     retry.Config
	log       *slog.Logger
}

func NewParser(
	store ports.PaperStore,
	fetcher ports.PDFFetcher,
	extractor ports.TextExtractor,
	chunker *Chunker,
	workers int,
	log *slog.Logger,
) *Parser {
	if workers <= 0 {
		workers = 4
	}
	return &Parser{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		chunker:   chunker,
		workers:   workers,
		retry:     retry.DefaultConfig(),
		log:       log.With(slog.String("component", "parser")),
	}
}

// ParseAllUnprocessed processes every paper below the parsed stage.
// Individual paper failures are collected, not fatal; the stage only
// errors when the store itself cannot be read.
func (p *Parser) ParseAllUnprocessed(ctx context.Context) (domain.ParseResult, error) {
	papers, err := p.store.ListInStageRange(ctx, domain.StageFetched, domain.StageParsed)
	if err != nil {
		return domain.ParseResult{}, fmt.Errorf("list unparsed papers: %w", err)
	}

	var (
		mu     sync.Mutex
		result domain.ParseResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, p.workers)
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

			if err := p.parseOne(ctx, paper); err != nil {
				p.log.Warn("paper failed",
					slog.String("paper", paper.ArxivID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				result.Failed = append(result.Failed, paper.ArxivID)
				mu.Unlock()
				return
			}
			mu.Lock()
			result.Success++
			mu.Unlock()
		}(paper)
	}
	wg.Wait()

	sort.Strings(result.Failed)
	p.log.Info("parse complete",
		slog.Int("success", result.Success),
		slog.Int("failed", len(result.Failed)),
	)
	return result, ctx.Err()
}

func (p *Parser) parseOne(ctx context.Context, paper domain.Paper) error {
	var path string
	err := retry.WithBackoff(ctx, p.retry, func(ctx context.Context) error {
		var err error
		path, err = p.fetcher.Fetch(ctx, paper)
		return err
	})
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	text, err := p.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	chunks := p.chunker.Split(paper.ArxivID, text)
	if len(chunks) == 0 {
		return fmt.Errorf("paper %s produced no chunks", paper.ArxivID)
	}

	if err := p.store.StoreParsedText(ctx, paper.ArxivID, text, path, chunks); err != nil {
		return fmt.Errorf("store parsed text: %w", err)
	}

	// Stage flags are recorded only after the path and chunks are
	// persisted, so a paper marked downloaded always has its pdf_path.
	if !paper.Downloaded() {
		if err := p.store.AdvanceStage(ctx, paper.ArxivID, domain.StageDownloaded, false); err != nil &&
			!errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("advance to downloaded: %w", err)
		}
	}
	if err := p.store.AdvanceStage(ctx, paper.ArxivID, domain.StageParsed, false); err != nil &&
		!errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("advance to parsed: %w", err)
	}
	return nil
}
