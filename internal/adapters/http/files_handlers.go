package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

// multipartMemory is how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

func (rt *Router) uploadFile(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadMaxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form body is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}

	record, err := rt.uploader.Upload(r.Context(), caller, ports.UploadInput{
		Filename:    fileHeader.Filename,
		Description: r.FormValue("description"),
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, string(record.Category), record.SizeBytes)
	}

	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) listFiles(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())
	query := r.URL.Query()
	rawCategory := strings.TrimSpace(query.Get("category"))
	rawProcessed := strings.TrimSpace(query.Get("processed"))

	var (
		records []domain.FileRecord
		err     error
	)
	switch {
	case rawCategory != "" && rawProcessed != "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filter by either category or processed"})
		return
	case rawCategory != "":
		category, parseErr := domain.ParseCategory(rawCategory)
		if parseErr != nil {
			writeError(w, parseErr)
			return
		}
		records, err = rt.files.ListByOwnerAndCategory(r.Context(), caller, category)
	case rawProcessed != "":
		processed, parseErr := strconv.ParseBool(rawProcessed)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "processed must be true or false"})
			return
		}
		records, err = rt.files.ListByOwnerAndProcessed(r.Context(), caller, processed)
	default:
		records, err = rt.files.ListByOwner(r.Context(), caller)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": records})
}

func (rt *Router) getFile(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())
	record, err := rt.files.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) downloadFile(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())
	download, err := rt.files.Download(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer download.Body.Close()

	record := download.Record
	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": record.OriginalName}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, download.Body); err != nil {
		rt.logger.Warn("download_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"file_id", record.ID,
			"error", err,
		)
	}
}

func (rt *Router) deleteFile(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())
	err := rt.files.Delete(r.Context(), caller, chi.URLParam(r, "id"))
	if rt.metrics != nil {
		rt.metrics.RecordDelete(serviceName, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) processFile(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFromContext(r.Context())

	var audience domain.AudienceMode
	if raw := r.URL.Query().Get("audience"); strings.TrimSpace(raw) != "" {
		parsed, err := domain.ParseAudienceMode(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		audience = parsed
	}

	record, err := rt.processor.ProcessForCaller(r.Context(), caller, chi.URLParam(r, "id"), audience)
	if rt.metrics != nil {
		rt.metrics.RecordProcessRequest(serviceName, string(audience), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
