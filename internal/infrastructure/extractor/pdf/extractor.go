package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/care-records/internal/core/domain"
)

const mimeType = "application/pdf"

// Extractor concatenates the plain text of every page in page order.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string { return "pdf" }

func (e *Extractor) Supports(mime string) bool {
	return mime == mimeType
}

func (e *Extractor) Extract(ctx context.Context, _ string, body io.Reader) (extraction domain.Extraction, err error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrStorage, "read pdf", err)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			extraction = domain.Extraction{}
			err = domain.WrapError(domain.ErrExtraction, "parse pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}

	pages := reader.NumPage()
	if pages == 0 {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open pdf", errors.New("document has no pages"))
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "read pdf page", fmt.Errorf("page %d: %w", i, err))
		}
		// Fonts with unknown encodings pass raw bytes through.
		text = strings.TrimSpace(domain.SanitizeText(text))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	return domain.Extraction{Text: sb.String(), PageCount: pages}, nil
}
