package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
	"ragresearch/internal/scanner"
)

// Fetcher pulls recent paper metadata from a feed source and stores it,
// deduplicating against both the corpus and the current call.
type Fetcher struct {
	source scanner.Source
	store  ports.PaperStore
	log    *slog.Logger
}

func NewFetcher(source scanner.Source, store ports.PaperStore, log *slog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		store:  store,
		log:    log.With(slog.String("component", "fetcher")),
	}
}

// FetchRecent scans the source for papers matching the request and
// upserts them at the fetched stage. Papers already known, or repeated
// within the same feed response, are counted as skipped.
func (f *Fetcher) FetchRecent(ctx context.Context, req scanner.Request) (domain.FetchResult, error) {
	papers, err := f.source.Scan(ctx, req)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("scan %s: %w", f.source.Name(), err)
	}

	var result domain.FetchResult
	seen := make(map[string]struct{}, len(papers))
	for _, p := range papers {
		if p.ArxivID == "" {
			continue
		}
		if _, dup := seen[p.ArxivID]; dup {
			result.PapersSkipped++
			continue
		}
		seen[p.ArxivID] = struct{}{}

		p.Stage = domain.StageFetched
		created, err := f.store.UpsertPaper(ctx, p)
		if err != nil {
			return result, fmt.Errorf("store paper %s: %w", p.ArxivID, err)
		}
		if created {
			result.PapersStored++
		} else {
			result.PapersSkipped++
		}
	}

	f.log.Info("fetch complete",
		slog.String("source", f.source.Name()),
		slog.Int("stored", result.PapersStored),
		slog.Int("skipped", result.PapersSkipped),
	)
	return result, nil
}

// RequestSpec describes the scan window in relative terms. The lower
// bound is resolved per run, so a scheduled trigger always covers the
// last DaysBack days counted from that trigger, not from process start.
type RequestSpec struct {
	Topic     string
	DaysBack  int
	MaxPapers int
	FeedURLs  []string
}

// Build resolves the spec against now into a concrete scan request.
func (s RequestSpec) Build(now time.Time) scanner.Request {
	daysBack := s.DaysBack
	if daysBack <= 0 {
		daysBack = 7
	}
	return scanner.Request{
		Topic:      s.Topic,
		From:       now.UTC().AddDate(0, 0, -daysBack),
		MaxResults: s.MaxPapers,
		FeedURLs:   s.FeedURLs,
	}
}
