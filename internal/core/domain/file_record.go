package domain

import (
	"fmt"
	"io"
	"strings"
	"time"
)

type Category string

const (
	CategoryPDF      Category = "PDF"
	CategoryImage    Category = "IMAGE"
	CategoryAudio    Category = "AUDIO"
	CategoryVideo    Category = "VIDEO"
	CategoryDocument Category = "DOCUMENT"
	CategoryOther    Category = "OTHER"
)

// CategoryForMimeType maps a sniffed MIME type to its coarse category.
// Order matters: "document"/"text" substrings are broad and checked last.
func CategoryForMimeType(mimeType string) Category {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case mimeType == "application/pdf":
		return CategoryPDF
	case strings.Contains(mimeType, "document"), strings.Contains(mimeType, "text"):
		return CategoryDocument
	default:
		return CategoryOther
	}
}

func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CategoryPDF, CategoryImage, CategoryAudio, CategoryVideo, CategoryDocument, CategoryOther:
		return c, nil
	default:
		return "", WrapError(ErrValidation, "parse category", fmt.Errorf("unknown category %q", raw))
	}
}

// AudienceMode selects the summary instruction sent to the text generator.
type AudienceMode string

const (
	AudienceStandard AudienceMode = "standard"
	AudienceSimple   AudienceMode = "simple"
)

func ParseAudienceMode(raw string) (AudienceMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(AudienceStandard):
		return AudienceStandard, nil
	case string(AudienceSimple):
		return AudienceSimple, nil
	default:
		return "", WrapError(ErrValidation, "parse audience", fmt.Errorf("unknown audience %q", raw))
	}
}

// FileMetadata holds optional type-specific attributes. Every field is best effort.
type FileMetadata struct {
	Width           *int   `json:"width,omitempty"`
	Height          *int   `json:"height,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
	Codec           string `json:"codec,omitempty"`
	Bitrate         *int   `json:"bitrate,omitempty"`
	PageCount       *int   `json:"page_count,omitempty"`
	Author          string `json:"author,omitempty"`
	Title           string `json:"title,omitempty"`
}

func (m *FileMetadata) clone() *FileMetadata {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

// FileRecord is an immutable snapshot of stored file metadata. Changes
// produce a new value that is persisted explicitly.
type FileRecord struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	StoredName    string        `json:"stored_name"`
	OriginalName  string        `json:"original_name"`
	MimeType      string        `json:"mime_type"`
	SizeBytes     int64         `json:"size_bytes"`
	Category      Category      `json:"category"`
	BlobHandle    string        `json:"-"`
	Description   string        `json:"description,omitempty"`
	ExtractedText string        `json:"extracted_text,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	Metadata      *FileMetadata `json:"metadata,omitempty"`
	UploadedAt    time.Time     `json:"uploaded_at"`
	Processed     bool          `json:"processed"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
}

// Extraction is the output of a text extractor.
type Extraction struct {
	Text      string
	PageCount int
}

// WithProcessing returns the processed successor of r. Text, summary and
// the processed timestamp are always set together; both texts are
// sanitized for storage.
func (r FileRecord) WithProcessing(extraction Extraction, summary string, at time.Time) FileRecord {
	next := r
	next.ExtractedText = SanitizeText(extraction.Text)
	next.Summary = SanitizeText(summary)
	next.Processed = true
	processedAt := at.UTC()
	next.ProcessedAt = &processedAt
	next.Metadata = r.Metadata.clone()
	if extraction.PageCount > 0 {
		if next.Metadata == nil {
			next.Metadata = &FileMetadata{}
		}
		pages := extraction.PageCount
		next.Metadata.PageCount = &pages
	}
	return next
}

// Download pairs a record with an open blob stream. The caller closes Body.
type Download struct {
	Record FileRecord
	Body   io.ReadCloser
}
