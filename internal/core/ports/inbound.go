package ports

import (
	"context"
	"io"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// UploadInput carries one caller-supplied upload. Body is consumed.
type UploadInput struct {
	Filename    string
	Description string
	Body        io.Reader
}

// FileUploader is the inbound contract for upload orchestration.
type FileUploader interface {
	Upload(ctx context.Context, caller domain.Caller, input UploadInput) (domain.FileRecord, error)
}

// FileReader is the owner-scoped read and delete surface.
type FileReader interface {
	Get(ctx context.Context, caller domain.Caller, id string) (domain.FileRecord, error)
	ListByOwner(ctx context.Context, caller domain.Caller) ([]domain.FileRecord, error)
	ListByOwnerAndCategory(ctx context.Context, caller domain.Caller, category domain.Category) ([]domain.FileRecord, error)
	ListByOwnerAndProcessed(ctx context.Context, caller domain.Caller, processed bool) ([]domain.FileRecord, error)
	Download(ctx context.Context, caller domain.Caller, id string) (*domain.Download, error)
	Delete(ctx context.Context, caller domain.Caller, id string) error
}

// FileProcessor drives the unprocessed -> processed transition.
type FileProcessor interface {
	ProcessByID(ctx context.Context, id string) (domain.FileRecord, error)
	ProcessForCaller(ctx context.Context, caller domain.Caller, id string, audience domain.AudienceMode) (domain.FileRecord, error)
	ProcessPending(ctx context.Context) (PendingResult, error)
}

// PendingResult summarises one sweep over the unprocessed worklist.
type PendingResult struct {
	Processed int
	Failed    int
	Skipped   int
}
