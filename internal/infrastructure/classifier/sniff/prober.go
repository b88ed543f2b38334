package sniff

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// ImageProber reads image dimensions from the header bytes of a sample.
// Formats whose header does not fit in the sample yield no metadata.
type ImageProber struct{}

func (ImageProber) Probe(category domain.Category, sample []byte) *domain.FileMetadata {
	if category != domain.CategoryImage || len(sample) == 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(sample))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil
	}
	width, height := cfg.Width, cfg.Height
	return &domain.FileMetadata{Width: &width, Height: &height}
}
