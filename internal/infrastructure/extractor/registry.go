package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

// Format is a single-format extractor that the Registry dispatches to.
type Format interface {
	ports.TextExtractor
	Name() string
}

// Registry routes extraction by MIME type to the first format that
// supports it.
type Registry struct {
	formats []Format
}

func NewRegistry(formats ...Format) *Registry {
	return &Registry{formats: formats}
}

func (r *Registry) Supports(mimeType string) bool {
	return r.lookup(mimeType) != nil
}

func (r *Registry) Extract(ctx context.Context, mimeType string, body io.Reader) (domain.Extraction, error) {
	format := r.lookup(mimeType)
	if format == nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "extract text", fmt.Errorf("no extractor for %s", mimeType))
	}
	return format.Extract(ctx, mimeType, body)
}

// Names lists the registered formats in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		names = append(names, f.Name())
	}
	return names
}

func (r *Registry) lookup(mimeType string) Format {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, f := range r.formats {
		if f.Supports(mimeType) {
			return f
		}
	}
	return nil
}
