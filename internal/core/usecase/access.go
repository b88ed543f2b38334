package usecase

import (
	"errors"

	"github.com/kirillkom/care-records/internal/core/domain"
)

// Authorize allows only the owner of record. The returned error never
// says more than "access denied".
func Authorize(record domain.FileRecord, caller domain.Caller) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	if record.OwnerID != caller.ID {
		return domain.WrapError(domain.ErrForbidden, "authorize", errors.New("owner mismatch"))
	}
	return nil
}
