package usecase

import (
	"context"
	"testing"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/scanner"
)

func TestFetchRecentStoresNewSkipsKnown(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()

	known := domain.Paper{ArxivID: "2408.11111", Title: "Known", Stage: domain.StageFetched}
	if _, err := store.UpsertPaper(ctx, known); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	source := &fakeSource{name: "fake", papers: []domain.Paper{
		{ArxivID: "2408.11111", Title: "Known"},
		{ArxivID: "2408.22222", Title: "Fresh A"},
		{ArxivID: "2408.33333", Title: "Fresh B"},
	}}

	f := NewFetcher(source, store, discardLogger())
	result, err := f.FetchRecent(ctx, scanner.Request{Topic: "rag"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if result.PapersStored != 2 {
		t.Fatalf("expected 2 stored, got %d", result.PapersStored)
	}
	if result.PapersSkipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", result.PapersSkipped)
	}
}

func TestFetchRecentDeduplicatesWithinFeed(t *testing.T) {
	t.Parallel()

	source := &fakeSource{name: "fake", papers: []domain.Paper{
		{ArxivID: "2408.44444", Title: "Dup"},
		{ArxivID: "2408.44444", Title: "Dup"},
	}}

	f := NewFetcher(source, newMemStore(), discardLogger())
	result, err := f.FetchRecent(context.Background(), scanner.Request{Topic: "rag"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.PapersStored != 1 || result.PapersSkipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFetchRecentSourceFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{name: "fake", err: context.DeadlineExceeded}
	f := NewFetcher(source, newMemStore(), discardLogger())

	if _, err := f.FetchRecent(context.Background(), scanner.Request{Topic: "rag"}); err == nil {
		t.Fatal("expected error when the whole feed is unreachable")
	}
}

func TestRequestSpecWindow(t *testing.T) {
	t.Parallel()

	spec := RequestSpec{Topic: "rag", DaysBack: 7, MaxPapers: 50}

	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	req := spec.Build(now)
	if req.Topic != "rag" || req.MaxResults != 50 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !req.From.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("window lower bound %v, want %v", req.From, now.AddDate(0, 0, -7))
	}

	// The window follows the build time, so a later run covers later days.
	later := now.AddDate(0, 0, 21)
	if got := spec.Build(later).From; !got.Equal(later.AddDate(0, 0, -7)) {
		t.Fatalf("window lower bound %v, want %v", got, later.AddDate(0, 0, -7))
	}
}

func TestRequestSpecDefaultsDaysBack(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	req := RequestSpec{Topic: "rag"}.Build(now)
	if !req.From.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("default window lower bound %v, want 7 days back", req.From)
	}
}
