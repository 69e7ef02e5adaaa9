package pdf

import (
	"bytes"
	"fmt"
	"strings"

	ldpdf "github.com/ledongthuc/pdf"

	"ragresearch/internal/ports"
)

// Extractor pulls plain text out of a downloaded PDF.
type Extractor struct{}

var _ ports.TextExtractor = (*Extractor)(nil)

func NewExtractor() *Extractor { return &Extractor{} }

// Extract returns the full plain text of the PDF at path. Scanned or
// image-only PDFs yield no text and are reported as an error so the
// caller can mark the paper failed instead of storing an empty body.
func (e *Extractor) Extract(path string) (string, error) {
	f, r, err := ldpdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("read text %s: %w", path, err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fmt.Errorf("pdf %s contains no extractable text", path)
	}
	return text, nil
}
