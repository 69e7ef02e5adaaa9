package pdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// Downloader retrieves paper PDFs into a local content-addressed cache
// keyed by arXiv id. A file already on disk is never fetched again, so
// re-parsing a paper costs no bandwidth.
type Downloader struct {
	dir    string
	client *http.Client
}

var _ ports.PDFFetcher = (*Downloader)(nil)

// NewDownloader wires the cache directory and an HTTP client; a nil
// client gets a 60s timeout suited to multi-megabyte PDFs.
func NewDownloader(dir string, client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Downloader{dir: dir, client: client}
}

// Fetch returns the local PDF path, downloading it first when absent.
func (d *Downloader) Fetch(ctx context.Context, paper domain.Paper) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create pdf dir: %w", err)
	}

	path := filepath.Join(d.dir, sanitizeID(paper.ArxivID)+".pdf")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	pdfURL := paper.PDFURL
	if pdfURL == "" {
		pdfURL = "https://arxiv.org/pdf/" + paper.ArxivID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", fmt.Errorf("build pdf request %s: %w", paper.ArxivID, err)
	}
	req.Header.Set("User-Agent", "ragresearch/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.Transient("download pdf "+paper.ArxivID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.Transient("download pdf "+paper.ArxivID,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	// Write to a temp file first and rename, so a partial download never
	// masquerades as a cached PDF on the next run.
	tmp, err := os.CreateTemp(d.dir, "download-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf %s: %w", paper.ArxivID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", domain.Transient("read pdf "+paper.ArxivID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf %s: %w", paper.ArxivID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store pdf %s: %w", paper.ArxivID, err)
	}

	return path, nil
}

// sanitizeID makes an arXiv id filesystem safe ("hep-th/9901001").
func sanitizeID(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(id)
}
