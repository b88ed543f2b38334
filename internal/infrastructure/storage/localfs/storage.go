package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

// Storage keeps blobs as flat files named by UUID handles.
type Storage struct {
	basePath string
	logger   *slog.Logger
}

func New(basePath string, logger *slog.Logger) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "create storage dir", err)
	}
	return &Storage{basePath: basePath, logger: logger.With("component", "localfs")}, nil
}

// Store writes body to a temp file, syncs it and renames it into place.
// The blob is visible under its handle only once fully written. body is
// closed if it implements io.Closer.
func (s *Storage) Store(ctx context.Context, body io.Reader, suggestedName, mimeType string) (ports.StoredBlob, error) {
	if closer, ok := body.(io.Closer); ok {
		defer closer.Close()
	}
	if err := ctx.Err(); err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "store blob", err)
	}

	handle := uuid.NewString()
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "create temp file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), body)
	if err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "write blob", err)
	}
	if err := tmp.Sync(); err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "sync blob", err)
	}
	if err := tmp.Close(); err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "close blob", err)
	}
	if err := os.Rename(tmpPath, s.path(handle)); err != nil {
		return ports.StoredBlob{}, domain.WrapError(domain.ErrStorage, "commit blob", err)
	}
	committed = true

	checksum := hex.EncodeToString(hash.Sum(nil))
	s.logger.Debug("blob_stored",
		"handle", handle,
		"suggested_name", suggestedName,
		"mime_type", mimeType,
		"size_bytes", size,
		"sha256", checksum,
	)
	return ports.StoredBlob{Handle: handle, Size: size, Checksum: checksum}, nil
}

func (s *Storage) Fetch(_ context.Context, handle string) (io.ReadCloser, error) {
	if !validHandle(handle) {
		return nil, notFound("fetch blob", handle)
	}
	f, err := os.Open(s.path(handle))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("fetch blob", handle)
		}
		return nil, domain.WrapError(domain.ErrStorage, "open blob", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, handle string) error {
	if !validHandle(handle) {
		return notFound("delete blob", handle)
	}
	if err := os.Remove(s.path(handle)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound("delete blob", handle)
		}
		return domain.WrapError(domain.ErrStorage, "delete blob", err)
	}
	return nil
}

func (s *Storage) path(handle string) string {
	return filepath.Join(s.basePath, handle)
}

// validHandle keeps arbitrary strings from escaping basePath.
func validHandle(handle string) bool {
	_, err := uuid.Parse(handle)
	return err == nil && len(handle) == 36
}

func notFound(op, handle string) error {
	return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("handle=%s", handle))
}
