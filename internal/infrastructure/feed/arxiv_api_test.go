package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ragresearch/internal/scanner"
)

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2408.12345v2</id>
    <title>Retrieval  Augmented
      Generation Revisited</title>
    <summary>We revisit RAG
      pipelines.</summary>
    <published>2026-08-24T12:00:00Z</published>
    <author><name>Alice Example</name></author>
    <author><name>Bob Example</name></author>
    <link rel="alternate" type="text/html" href="http://arxiv.org/abs/2408.12345v2"/>
    <link title="pdf" type="application/pdf" href="http://arxiv.org/pdf/2408.12345v2"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2301.00001v1</id>
    <title>Old Paper</title>
    <summary>Stale.</summary>
    <published>2023-01-01T00:00:00Z</published>
    <author><name>Carol Example</name></author>
  </entry>
</feed>`

func TestArxivIDFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://arxiv.org/abs/2408.12345v2":  "2408.12345",
		"https://arxiv.org/abs/2408.12345":   "2408.12345",
		"https://arxiv.org/abs/hep-th/99011": "hep-th/99011",
		"https://example.com/other":          "",
	}
	for raw, want := range cases {
		if got := arxivIDFromURL(raw); got != want {
			t.Fatalf("arxivIDFromURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestBuildSearchQuery(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	q := buildSearchQuery("retrieval augmented generation", from)

	if !strings.HasPrefix(q, `all:"retrieval augmented generation"`) {
		t.Fatalf("unexpected query prefix: %s", q)
	}
	if !strings.Contains(q, "submittedDate:[202608200000 TO ") {
		t.Fatalf("date window missing: %s", q)
	}

	if q := buildSearchQuery("rag", time.Time{}); strings.Contains(q, "submittedDate") {
		t.Fatalf("zero from must not add a window: %s", q)
	}
}

func TestArxivAPISourceScan(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	source := NewArxivAPISource(server.Client())
	source.baseURL = server.URL

	papers, err := source.Scan(context.Background(), scanner.Request{
		Topic:      "retrieval augmented generation",
		From:       time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC),
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if !strings.Contains(gotQuery, "retrieval augmented generation") {
		t.Fatalf("topic not forwarded: %s", gotQuery)
	}

	// The 2023 entry falls outside the window.
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}

	p := papers[0]
	if p.ArxivID != "2408.12345" {
		t.Fatalf("version suffix kept: %s", p.ArxivID)
	}
	if p.Title != "Retrieval Augmented Generation Revisited" {
		t.Fatalf("whitespace not collapsed: %q", p.Title)
	}
	if len(p.Authors) != 2 || p.Authors[0] != "Alice Example" {
		t.Fatalf("authors wrong: %v", p.Authors)
	}
	if p.PDFURL != "http://arxiv.org/pdf/2408.12345v2" {
		t.Fatalf("pdf link wrong: %s", p.PDFURL)
	}
	if p.PublishedAt.IsZero() {
		t.Fatal("published date missing")
	}
}

func TestArxivAPISourceRequiresTopic(t *testing.T) {
	t.Parallel()

	source := NewArxivAPISource(nil)
	if _, err := source.Scan(context.Background(), scanner.Request{}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestArxivAPISourceServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := NewArxivAPISource(server.Client())
	source.baseURL = server.URL

	_, err := source.Scan(context.Background(), scanner.Request{Topic: "rag"})
	if err == nil {
		t.Fatal("expected error on 503")
	}
}
