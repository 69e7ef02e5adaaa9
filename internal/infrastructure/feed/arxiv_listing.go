package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ragresearch/internal/domain"
	"ragresearch/internal/scanner"
)

const (
	arxivBaseURL       = "https://arxiv.org"
	defaultListingURL  = "https://arxiv.org/list/cs.CL/recent"
	listingURLOption   = "listingUrl"
	defaultListingPage = 100
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivListingSource crawls the human-facing category listing pages. It is
// the fallback strategy for when the query API is unavailable; the listing
// carries no abstract-level search, so the topic is ignored.
type ArxivListingSource struct {
	client   *http.Client
	pageSize int
}

var _ scanner.Source = (*ArxivListingSource)(nil)

// NewArxivListingSource wires an HTTP client; pageSize defaults to 100.
func NewArxivListingSource(client *http.Client) *ArxivListingSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArxivListingSource{client: client, pageSize: defaultListingPage}
}

// Name identifies the strategy inside the registry.
func (s *ArxivListingSource) Name() string {
	return "arxiv-listing"
}

// Scan pages through the listing and returns papers announced on or after
// req.From, stopping as soon as an older entry appears.
func (s *ArxivListingSource) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	listingURL := req.Options[listingURLOption]
	if listingURL == "" {
		listingURL = defaultListingURL
	}

	from := req.From.UTC().Truncate(24 * time.Hour)
	results := make([]domain.Paper, 0)
	seen := map[string]struct{}{}

	skip := 0
	for {
		pageURL, err := buildListingURL(listingURL, skip, s.pageSize)
		if err != nil {
			return nil, err
		}

		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			// Keep whatever earlier pages produced; the fetcher stores
			// them and reports a partial count.
			if len(results) > 0 {
				return results, nil
			}
			return nil, err
		}

		pagePapers, shouldContinue := s.extractPapers(doc, from)
		for _, paper := range pagePapers {
			if _, ok := seen[paper.ArxivID]; ok {
				continue
			}
			seen[paper.ArxivID] = struct{}{}
			results = append(results, paper)
			if req.MaxResults > 0 && len(results) >= req.MaxResults {
				return results, nil
			}
		}

		if !shouldContinue {
			break
		}
		skip += s.pageSize
	}

	return results, nil
}

func (s *ArxivListingSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ragresearch/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.Transient("arxiv listing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Transient("arxiv listing request", fmt.Errorf("arxiv returned %s", resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (s *ArxivListingSource) extractPapers(doc *goquery.Document, from time.Time) ([]domain.Paper, bool) {
	var (
		collected    []domain.Paper
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		paper, announcedDay, err := parseListingEntry(dt, dd)
		if err != nil {
			return true
		}

		if !announcedDay.Before(from) {
			collected = append(collected, paper)
			return true
		}

		continueScan = false
		return false
	})

	if processed < s.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseListingEntry(dt, dd *goquery.Selection) (domain.Paper, time.Time, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()

	id := strings.TrimSpace(link.Text())
	id = strings.TrimPrefix(id, "arXiv:")
	href, _ := link.Attr("href")
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	id = versionSuffix.ReplaceAllString(strings.TrimSpace(id), "")
	if id == "" {
		return domain.Paper{}, time.Time{}, fmt.Errorf("listing entry without identifier")
	}

	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))

	var authors []string
	dd.Find(".list-authors a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}
	announced := time.Now().UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			announced = parsed
		}
	}
	announcedDay := announced.UTC().Truncate(24 * time.Hour)

	paper := domain.Paper{
		ArxivID:     id,
		Title:       title,
		Abstract:    abstract,
		Authors:     authors,
		URL:         href,
		PDFURL:      strings.TrimSuffix(arxivBaseURL, "/") + "/pdf/" + id,
		PublishedAt: announcedDay,
	}

	return paper, announcedDay, nil
}

func buildListingURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
