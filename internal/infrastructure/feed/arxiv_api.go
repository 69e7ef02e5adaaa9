package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/scanner"
)

const defaultAPIBaseURL = "http://export.arxiv.org/api/query"

var versionSuffix = regexp.MustCompile(`v\d+$`)

// Atom feed structures returned by the arXiv API.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string         `xml:"id"`
	Title     string         `xml:"title"`
	Summary   string         `xml:"summary"`
	Authors   []atomAuthor   `xml:"author"`
	Links     []atomLink     `xml:"link"`
	Published string         `xml:"published"`
	Category  []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// ArxivAPISource fetches recent papers from the arXiv Atom query API.
type ArxivAPISource struct {
	client  *http.Client
	baseURL string
}

var _ scanner.Source = (*ArxivAPISource)(nil)

// NewArxivAPISource wires an HTTP client; a nil client gets a 30s timeout.
func NewArxivAPISource(client *http.Client) *ArxivAPISource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ArxivAPISource{client: client, baseURL: defaultAPIBaseURL}
}

// Name identifies the strategy inside the registry.
func (s *ArxivAPISource) Name() string {
	return "arxiv-api"
}

// Scan queries the API for papers matching the topic submitted since
// req.From, newest first, capped at req.MaxResults.
func (s *ArxivAPISource) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	if req.Topic == "" {
		return nil, fmt.Errorf("arxiv api: topic is required")
	}

	query := url.Values{}
	query.Set("search_query", buildSearchQuery(req.Topic, req.From))
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(req.MaxResults))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	reqURL := fmt.Sprintf("%s?%s", s.baseURL, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv api: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "ragresearch/1.0")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, domain.Transient("arxiv api request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Transient("arxiv api request", fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient("arxiv api read", err)
	}

	var parsed atomFeed
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("arxiv api: parse feed: %w", err)
	}

	papers := make([]domain.Paper, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		paper, ok := entryToPaper(entry, req.From)
		if !ok {
			continue
		}
		papers = append(papers, paper)
	}

	return papers, nil
}

func buildSearchQuery(topic string, from time.Time) string {
	q := fmt.Sprintf("all:%q", topic)
	if !from.IsZero() {
		q = fmt.Sprintf("%s AND submittedDate:[%s TO %s]",
			q,
			from.UTC().Format("200601021504"),
			time.Now().UTC().Format("200601021504"))
	}
	return q
}

func entryToPaper(entry atomEntry, from time.Time) (domain.Paper, bool) {
	id := arxivIDFromURL(entry.ID)
	if id == "" {
		return domain.Paper{}, false
	}

	published, _ := time.Parse(time.RFC3339, entry.Published)
	if !from.IsZero() && !published.IsZero() && published.Before(from) {
		return domain.Paper{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var absURL, pdfURL string
	for _, link := range entry.Links {
		switch {
		case link.Type == "application/pdf":
			pdfURL = link.Href
		case link.Rel == "alternate" || (link.Type == "text/html" && absURL == ""):
			absURL = link.Href
		}
	}
	if absURL == "" {
		absURL = "https://arxiv.org/abs/" + id
	}

	return domain.Paper{
		ArxivID:     id,
		Title:       collapseWhitespace(entry.Title),
		Abstract:    collapseWhitespace(entry.Summary),
		Authors:     authors,
		URL:         absURL,
		PDFURL:      pdfURL,
		PublishedAt: published.UTC(),
	}, true
}

// arxivIDFromURL extracts the bare identifier from an abs URL, dropping
// any version suffix so re-announced revisions dedupe to the same paper.
func arxivIDFromURL(raw string) string {
	idx := strings.Index(raw, "/abs/")
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(raw[idx+len("/abs/"):])
	return versionSuffix.ReplaceAllString(id, "")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
