package plaintext

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// Extractor reads UTF-8 text documents as they are.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string { return "plaintext" }

func (e *Extractor) Supports(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}

func (e *Extractor) Extract(_ context.Context, _ string, body io.Reader) (domain.Extraction, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrStorage, "read text document", err)
	}

	if !utf8.Valid(raw) {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "decode text document", errors.New("content is not valid utf-8"))
	}

	return domain.Extraction{Text: strings.TrimSpace(domain.SanitizeText(string(raw)))}, nil
}
