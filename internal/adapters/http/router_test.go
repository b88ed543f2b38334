package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/care-records/internal/config"
	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

const testSecret = "test-secret"

func token(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type uploaderFake struct {
	caller      domain.Caller
	filename    string
	description string
	body        string
	err         error
}

func (f *uploaderFake) Upload(_ context.Context, caller domain.Caller, input ports.UploadInput) (domain.FileRecord, error) {
	f.caller = caller
	f.filename = input.Filename
	f.description = input.Description
	raw, _ := io.ReadAll(input.Body)
	f.body = string(raw)
	if f.err != nil {
		return domain.FileRecord{}, f.err
	}
	return domain.FileRecord{
		ID:           "f-1",
		OwnerID:      caller.ID,
		OriginalName: input.Filename,
		MimeType:     "application/pdf",
		SizeBytes:    int64(len(raw)),
		Category:     domain.CategoryPDF,
		BlobHandle:   "secret-handle",
	}, nil
}

type filesFake struct {
	records  map[string]domain.FileRecord
	blobs    map[string]string
	lastCall string
	deleteFn func(id string) error
}

func newFilesFake() *filesFake {
	return &filesFake{
		records: map[string]domain.FileRecord{
			"f-1": {ID: "f-1", OwnerID: "user-1", OriginalName: "lab résumé.pdf", MimeType: "application/pdf", SizeBytes: 5, Category: domain.CategoryPDF},
		},
		blobs: map[string]string{"f-1": "%PDF-"},
	}
}

func (f *filesFake) owned(caller domain.Caller, id string) (domain.FileRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return domain.FileRecord{}, domain.WrapError(domain.ErrNotFound, "get file", errors.New(id))
	}
	if record.OwnerID != caller.ID {
		return domain.FileRecord{}, domain.WrapError(domain.ErrForbidden, "authorize", errors.New("owner mismatch"))
	}
	return record, nil
}

func (f *filesFake) Get(_ context.Context, caller domain.Caller, id string) (domain.FileRecord, error) {
	return f.owned(caller, id)
}

func (f *filesFake) ListByOwner(_ context.Context, caller domain.Caller) ([]domain.FileRecord, error) {
	f.lastCall = "owner:" + caller.ID
	return []domain.FileRecord{}, nil
}

func (f *filesFake) ListByOwnerAndCategory(_ context.Context, caller domain.Caller, category domain.Category) ([]domain.FileRecord, error) {
	f.lastCall = "category:" + string(category)
	return []domain.FileRecord{}, nil
}

func (f *filesFake) ListByOwnerAndProcessed(_ context.Context, caller domain.Caller, processed bool) ([]domain.FileRecord, error) {
	if processed {
		f.lastCall = "processed:true"
	} else {
		f.lastCall = "processed:false"
	}
	return []domain.FileRecord{}, nil
}

func (f *filesFake) Download(_ context.Context, caller domain.Caller, id string) (*domain.Download, error) {
	record, err := f.owned(caller, id)
	if err != nil {
		return nil, err
	}
	return &domain.Download{Record: record, Body: io.NopCloser(strings.NewReader(f.blobs[id]))}, nil
}

func (f *filesFake) Delete(_ context.Context, caller domain.Caller, id string) error {
	if _, err := f.owned(caller, id); err != nil {
		return err
	}
	if f.deleteFn != nil {
		return f.deleteFn(id)
	}
	delete(f.records, id)
	return nil
}

type processorFake struct {
	audience domain.AudienceMode
	err      error
}

func (f *processorFake) ProcessForCaller(_ context.Context, caller domain.Caller, id string, audience domain.AudienceMode) (domain.FileRecord, error) {
	f.audience = audience
	if f.err != nil {
		return domain.FileRecord{}, f.err
	}
	return domain.FileRecord{ID: id, OwnerID: caller.ID, Processed: true, Summary: "ok"}, nil
}

type fixture struct {
	handler   http.Handler
	uploader  *uploaderFake
	files     *filesFake
	processor *processorFake
}

func newFixture(cfg config.Config) fixture {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	if cfg.UploadMaxBytes == 0 {
		cfg.UploadMaxBytes = 1 << 20
	}
	f := fixture{uploader: &uploaderFake{}, files: newFilesFake(), processor: &processorFake{}}
	f.handler = NewRouter(cfg, f.uploader, f.files, f.processor).Handler()
	return f
}

func (f fixture) do(t *testing.T, method, path, subject string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, subject))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}

func multipartBody(t *testing.T, filename, content, description string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if description != "" {
		if err := mw.WriteField("description", description); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthzNeedsNoToken(t *testing.T) {
	f := newFixture(config.Config{})
	res := f.do(t, http.MethodGet, "/healthz", "", nil, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestFilesRequireBearerToken(t *testing.T) {
	f := newFixture(config.Config{})
	res := f.do(t, http.MethodGet, "/v1/files", "", nil, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	f := newFixture(config.Config{})
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other"))

	req := httptest.NewRequest(http.MethodGet, "/v1/files/f-1", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestUploadPassesCallerAndFields(t *testing.T) {
	f := newFixture(config.Config{})
	body, ctype := multipartBody(t, "scan.pdf", "%PDF-1.7 data", "annual checkup")

	res := f.do(t, http.MethodPost, "/v1/files", "user-1", body, ctype)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if f.uploader.caller.ID != "user-1" || f.uploader.filename != "scan.pdf" || f.uploader.description != "annual checkup" || f.uploader.body != "%PDF-1.7 data" {
		t.Fatalf("unexpected upload input: %+v", f.uploader)
	}
	if strings.Contains(res.Body.String(), "secret-handle") {
		t.Fatalf("blob handle must not be exposed: %s", res.Body.String())
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	f := newFixture(config.Config{UploadMaxBytes: 64})
	body, ctype := multipartBody(t, "big.bin", strings.Repeat("x", 1024), "")

	res := f.do(t, http.MethodPost, "/v1/files", "user-1", body, ctype)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestUploadMapsValidationTo400(t *testing.T) {
	f := newFixture(config.Config{})
	f.uploader.err = domain.WrapError(domain.ErrValidation, "upload", errors.New("empty file"))
	body, ctype := multipartBody(t, "empty.txt", "", "")

	res := f.do(t, http.MethodPost, "/v1/files", "user-1", body, ctype)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(decodeBody(t, res)["error"].(string), "empty file") {
		t.Fatalf("expected validation detail in body")
	}
}

func TestForeignRecordIsForbiddenWithoutDetails(t *testing.T) {
	f := newFixture(config.Config{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/files/f-1"},
		{http.MethodGet, "/v1/files/f-1/download"},
		{http.MethodDelete, "/v1/files/f-1"},
	} {
		res := f.do(t, tc.method, tc.path, "user-2", nil, "")
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", tc.method, tc.path, res.Code)
		}
		if got := decodeBody(t, res)["error"]; got != "access denied" {
			t.Fatalf("%s %s: expected bare access denied, got %v", tc.method, tc.path, got)
		}
	}
	if res := f.do(t, http.MethodGet, "/v1/files/missing", "user-2", nil, ""); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing record, got %d", res.Code)
	}
}

func TestDownloadSetsHeadersFromRecord(t *testing.T) {
	f := newFixture(config.Config{})
	res := f.do(t, http.MethodGet, "/v1/files/f-1/download", "user-1", nil, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "application/pdf" || res.Header().Get("Content-Length") != "5" {
		t.Fatalf("unexpected headers: %v", res.Header())
	}
	if cd := res.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "filename*=utf-8''lab%20r%C3%A9sum%C3%A9.pdf") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if res.Body.String() != "%PDF-" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestDeleteReturns204ThenNotFound(t *testing.T) {
	f := newFixture(config.Config{})
	if res := f.do(t, http.MethodDelete, "/v1/files/f-1", "user-1", nil, ""); res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if res := f.do(t, http.MethodDelete, "/v1/files/f-1", "user-1", nil, ""); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestPartialDeleteReportsHalves(t *testing.T) {
	f := newFixture(config.Config{})
	f.files.deleteFn = func(id string) error {
		return &domain.DeleteError{
			FileID:      id,
			BlobDeleted: true,
			Err:         domain.WrapError(domain.ErrStorage, "delete file metadata", errors.New("db down")),
		}
	}

	res := f.do(t, http.MethodDelete, "/v1/files/f-1", "user-1", nil, "")
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["blob_deleted"] != true || body["record_deleted"] != false || body["error"] != "internal error" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(config.Config{})
	cases := map[string]string{
		"/v1/files":                 "owner:user-1",
		"/v1/files?category=pdf":    "category:PDF",
		"/v1/files?processed=false": "processed:false",
	}
	for path, want := range cases {
		res := f.do(t, http.MethodGet, path, "user-1", nil, "")
		if res.Code != http.StatusOK || f.files.lastCall != want {
			t.Fatalf("%s: status %d call %q", path, res.Code, f.files.lastCall)
		}
	}
	for _, path := range []string{"/v1/files?category=spreadsheet", "/v1/files?processed=maybe", "/v1/files?category=PDF&processed=true"} {
		if res := f.do(t, http.MethodGet, path, "user-1", nil, ""); res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, res.Code)
		}
	}
}

func TestProcessPassesAudience(t *testing.T) {
	f := newFixture(config.Config{})
	res := f.do(t, http.MethodPost, "/v1/files/f-1/process?audience=simple", "user-1", nil, "")
	if res.Code != http.StatusOK || f.processor.audience != domain.AudienceSimple {
		t.Fatalf("status %d audience %q", res.Code, f.processor.audience)
	}

	res = f.do(t, http.MethodPost, "/v1/files/f-1/process", "user-1", nil, "")
	if res.Code != http.StatusOK || f.processor.audience != "" {
		t.Fatalf("expected default audience to be left to the processor, got %q", f.processor.audience)
	}

	if res := f.do(t, http.MethodPost, "/v1/files/f-1/process?audience=kids", "user-1", nil, ""); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown audience, got %d", res.Code)
	}
}

func TestProcessErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrExtraction, "extract text", errors.New("bad xref")), http.StatusUnprocessableEntity},
		{domain.WrapError(domain.ErrExternalService, "summarize", errors.New("400 bad request")), http.StatusBadGateway},
		{domain.WrapError(domain.ErrExternalService, "summarize", domain.WrapError(domain.ErrTemporary, "summarize", errors.New("503"))), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrValidation, "process file", errors.New("extraction not supported")), http.StatusBadRequest},
	}
	for _, tc := range cases {
		f := newFixture(config.Config{})
		f.processor.err = tc.err
		res := f.do(t, http.MethodPost, "/v1/files/f-1/process", "user-1", nil, "")
		if res.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}
