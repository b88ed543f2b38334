package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("access denied")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrStorage         = errors.New("storage failure")
	ErrClassification  = errors.New("classification failed")
	ErrExtraction      = errors.New("text extraction failed")
	ErrExternalService = errors.New("external service failure")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// DeleteError reports a partially applied delete so callers can tell
// which half of the blob+record pair is already gone.
type DeleteError struct {
	FileID        string
	BlobDeleted   bool
	RecordDeleted bool
	Err           error
}

func (e *DeleteError) Error() string {
	if e == nil {
		return "delete error"
	}
	return fmt.Sprintf("delete file %s (blob_deleted=%t record_deleted=%t): %v",
		e.FileID, e.BlobDeleted, e.RecordDeleted, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
