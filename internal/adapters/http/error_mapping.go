package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/care-records/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation), domain.IsKind(err, domain.ErrClassification):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is what a client may see. Ownership failures never reveal
// more than "access denied" and server-side failures carry no internals.
func publicMessage(err error, status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return err.Error()
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized.Error()
	case http.StatusForbidden:
		return domain.ErrForbidden.Error()
	case http.StatusNotFound:
		return domain.ErrNotFound.Error()
	case http.StatusServiceUnavailable:
		return domain.ErrTemporary.Error()
	case http.StatusBadGateway:
		return domain.ErrExternalService.Error()
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]any{"error": publicMessage(err, status)}

	var delErr *domain.DeleteError
	if errors.As(err, &delErr) {
		body["blob_deleted"] = delErr.BlobDeleted
		body["record_deleted"] = delErr.RecordDeleted
	}
	writeJSON(w, status, body)
}
