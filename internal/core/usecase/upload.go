package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

type UploadFileUseCase struct {
	repo       ports.FileRepository
	blobs      ports.BlobStore
	classifier ports.ContentClassifier
	prober     ports.MetadataProber
	events     ports.EventPublisher
	now        ports.Clock
	logger     *slog.Logger
}

type UploadOption func(*UploadFileUseCase)

// WithUploadEvents publishes an event after each stored upload.
func WithUploadEvents(events ports.EventPublisher) UploadOption {
	return func(uc *UploadFileUseCase) { uc.events = events }
}

func WithMetadataProber(prober ports.MetadataProber) UploadOption {
	return func(uc *UploadFileUseCase) { uc.prober = prober }
}

func WithUploadClock(now ports.Clock) UploadOption {
	return func(uc *UploadFileUseCase) { uc.now = now }
}

func NewUploadFileUseCase(
	repo ports.FileRepository,
	blobs ports.BlobStore,
	classifier ports.ContentClassifier,
	logger *slog.Logger,
	opts ...UploadOption,
) *UploadFileUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &UploadFileUseCase{
		repo:       repo,
		blobs:      blobs,
		classifier: classifier,
		now:        time.Now,
		logger:     logger.With("component", "upload"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UploadFileUseCase) Upload(ctx context.Context, caller domain.Caller, input ports.UploadInput) (domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		closeQuietly(input.Body)
		return domain.FileRecord{}, err
	}
	if input.Body == nil {
		return domain.FileRecord{}, domain.WrapError(domain.ErrValidation, "upload", errors.New("empty file"))
	}

	sample, body, err := readSample(input.Body, uc.classifier.SampleSize())
	if err != nil {
		closeQuietly(input.Body)
		return domain.FileRecord{}, domain.WrapError(domain.ErrStorage, "read upload", err)
	}
	if len(sample) == 0 {
		closeQuietly(input.Body)
		return domain.FileRecord{}, domain.WrapError(domain.ErrValidation, "upload", errors.New("empty file"))
	}

	mimeType, category, err := uc.classifier.Classify(sample)
	if err != nil {
		closeQuietly(input.Body)
		return domain.FileRecord{}, fmt.Errorf("classify upload: %w", err)
	}

	blob, err := uc.blobs.Store(ctx, body, input.Filename, mimeType)
	if err != nil {
		return domain.FileRecord{}, storageError("store blob", err)
	}

	now := uc.now().UTC()
	record := domain.FileRecord{
		ID:           uuid.NewString(),
		OwnerID:      caller.ID,
		StoredName:   storedName(now, input.Filename),
		OriginalName: input.Filename,
		MimeType:     mimeType,
		SizeBytes:    blob.Size,
		Category:     category,
		BlobHandle:   blob.Handle,
		Description:  strings.TrimSpace(input.Description),
		UploadedAt:   now,
	}
	if uc.prober != nil {
		record.Metadata = uc.prober.Probe(category, sample)
	}

	if err := uc.repo.Create(ctx, record); err != nil {
		return domain.FileRecord{}, uc.compensate(ctx, record, err)
	}

	uc.logger.Info("file_uploaded",
		"file_id", record.ID,
		"owner_id", record.OwnerID,
		"category", string(record.Category),
		"mime_type", record.MimeType,
		"size_bytes", record.SizeBytes,
		"checksum", blob.Checksum,
	)
	uc.publish(ctx, record.ID)
	return record, nil
}

// compensate removes the blob of a record whose metadata write failed.
func (uc *UploadFileUseCase) compensate(ctx context.Context, record domain.FileRecord, createErr error) error {
	createErr = storageError("create file metadata", createErr)
	cleanupCtx := context.WithoutCancel(ctx)
	if err := uc.blobs.Delete(cleanupCtx, record.BlobHandle); err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		uc.logger.Error("orphaned_blob",
			"blob_handle", record.BlobHandle,
			"file_id", record.ID,
			"error", err,
		)
		return errors.Join(createErr, storageError("delete orphaned blob", err))
	}
	return createErr
}

func (uc *UploadFileUseCase) publish(ctx context.Context, fileID string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishFileUploaded(ctx, fileID); err != nil {
		// The sweep over unprocessed records picks the file up later.
		uc.logger.Warn("publish_upload_event_failed", "file_id", fileID, "error", err)
	}
}

// readSample reads up to n leading bytes and returns a reader that
// replays them before the rest of body.
func readSample(body io.Reader, n int) ([]byte, io.Reader, error) {
	if n <= 0 {
		n = 512
	}
	sample := make([]byte, n)
	read, err := io.ReadFull(body, sample)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	sample = sample[:read]

	var rest io.Reader = io.MultiReader(bytes.NewReader(sample), body)
	if closer, ok := body.(io.Closer); ok {
		rest = readCloser{Reader: rest, Closer: closer}
	}
	return sample, rest, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func closeQuietly(body io.Reader) {
	if closer, ok := body.(io.Closer); ok {
		_ = closer.Close()
	}
}

func storedName(at time.Time, originalName string) string {
	return fmt.Sprintf("%d_%s", at.UnixMilli(), sanitizeFilename(originalName))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "file.bin"
	}
	return base
}
