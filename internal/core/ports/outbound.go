package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// FileRepository persists file metadata records.
type FileRepository interface {
	Create(ctx context.Context, record domain.FileRecord) error
	GetByID(ctx context.Context, id string) (domain.FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.FileRecord, error)
	ListByOwnerAndCategory(ctx context.Context, ownerID string, category domain.Category) ([]domain.FileRecord, error)
	ListUnprocessed(ctx context.Context) ([]domain.FileRecord, error)
	ListByOwnerAndProcessed(ctx context.Context, ownerID string, processed bool) ([]domain.FileRecord, error)
	// MarkProcessed writes the processing fields of record in one statement.
	MarkProcessed(ctx context.Context, record domain.FileRecord) error
	Delete(ctx context.Context, id string) error
}

// BlobStore keeps raw file bytes addressed by opaque handles.
type BlobStore interface {
	Store(ctx context.Context, body io.Reader, suggestedName, mimeType string) (StoredBlob, error)
	Fetch(ctx context.Context, handle string) (io.ReadCloser, error)
	Delete(ctx context.Context, handle string) error
}

// StoredBlob describes a blob that is fully written and readable.
type StoredBlob struct {
	Handle   string
	Size     int64
	Checksum string
}

// ContentClassifier sniffs a leading byte sample.
type ContentClassifier interface {
	Classify(sample []byte) (mimeType string, category domain.Category, err error)
	// SampleSize is how many leading bytes Classify wants to see.
	SampleSize() int
}

// MetadataProber derives best-effort attributes from a leading sample.
type MetadataProber interface {
	Probe(category domain.Category, sample []byte) *domain.FileMetadata
}

// TextExtractor extracts plain text from document bytes.
type TextExtractor interface {
	Supports(mimeType string) bool
	Extract(ctx context.Context, mimeType string, body io.Reader) (domain.Extraction, error)
}

// Summarizer asks the external text generator for a summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string, audience domain.AudienceMode) (string, error)
}

// EventPublisher announces stored uploads to background workers.
type EventPublisher interface {
	PublishFileUploaded(ctx context.Context, fileID string) error
}

// EventSubscriber delivers upload announcements to a handler.
type EventSubscriber interface {
	SubscribeFileUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// Clock is injected so processing timestamps are testable.
type Clock func() time.Time
