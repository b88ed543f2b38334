package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

type FileService struct {
	repo   ports.FileRepository
	blobs  ports.BlobStore
	logger *slog.Logger
}

func NewFileService(repo ports.FileRepository, blobs ports.BlobStore, logger *slog.Logger) *FileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileService{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With("component", "files"),
	}
}

func (s *FileService) Get(ctx context.Context, caller domain.Caller, id string) (domain.FileRecord, error) {
	return s.loadOwned(ctx, caller, id)
}

func (s *FileService) ListByOwner(ctx context.Context, caller domain.Caller) ([]domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByOwner(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list files by owner: %w", err)
	}
	return records, nil
}

func (s *FileService) ListByOwnerAndCategory(ctx context.Context, caller domain.Caller, category domain.Category) ([]domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByOwnerAndCategory(ctx, caller.ID, category)
	if err != nil {
		return nil, fmt.Errorf("list files by category: %w", err)
	}
	return records, nil
}

func (s *FileService) ListByOwnerAndProcessed(ctx context.Context, caller domain.Caller, processed bool) ([]domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByOwnerAndProcessed(ctx, caller.ID, processed)
	if err != nil {
		return nil, fmt.Errorf("list files by processed state: %w", err)
	}
	return records, nil
}

func (s *FileService) Download(ctx context.Context, caller domain.Caller, id string) (*domain.Download, error) {
	record, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	body, err := s.blobs.Fetch(ctx, record.BlobHandle)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("fetch blob: %w", err)
		}
		return nil, storageError("fetch blob", err)
	}
	return &domain.Download{Record: record, Body: body}, nil
}

// Delete removes the blob first and the record second, so a surviving
// blob always has its record.
func (s *FileService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	record, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, record.BlobHandle); err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		return &domain.DeleteError{
			FileID: record.ID,
			Err:    storageError("delete blob", err),
		}
	}

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		s.logger.Error("record_delete_failed_after_blob_delete",
			"file_id", record.ID,
			"blob_handle", record.BlobHandle,
			"error", err,
		)
		return &domain.DeleteError{
			FileID:      record.ID,
			BlobDeleted: true,
			Err:         storageError("delete file metadata", err),
		}
	}

	s.logger.Info("file_deleted", "file_id", record.ID, "owner_id", record.OwnerID)
	return nil
}

func (s *FileService) loadOwned(ctx context.Context, caller domain.Caller, id string) (domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		return domain.FileRecord{}, err
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("fetch file by id: %w", err)
	}
	if err := Authorize(record, caller); err != nil {
		return domain.FileRecord{}, err
	}
	return record, nil
}

// storageError keeps an existing typed kind and tags anything else as a
// storage failure.
func storageError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrStorage) || domain.IsKind(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrStorage, operation, err)
}
