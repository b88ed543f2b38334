package sniff

import (
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// DefaultSampleSize matches the read limit of the mimetype detector.
const DefaultSampleSize = 3072

// Classifier derives MIME type and category from leading file bytes only.
type Classifier struct {
	sampleSize int
}

func NewClassifier(sampleSize int) *Classifier {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Classifier{sampleSize: sampleSize}
}

func (c *Classifier) SampleSize() int {
	return c.sampleSize
}

func (c *Classifier) Classify(sample []byte) (string, domain.Category, error) {
	if len(sample) == 0 {
		return "", "", domain.WrapError(domain.ErrClassification, "classify content", errors.New("empty sample"))
	}
	if len(sample) > c.sampleSize {
		sample = sample[:c.sampleSize]
	}

	mimeType := baseType(mimetype.Detect(sample).String())
	return mimeType, domain.CategoryForMimeType(mimeType), nil
}

// baseType drops parameters such as "; charset=utf-8".
func baseType(raw string) string {
	base, _, _ := strings.Cut(raw, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
