package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

var owner = domain.Caller{ID: "user-1"}

func newUploadUC(repo *memoryRepo, blobs *memoryBlobs, mimeType string, opts ...UploadOption) *UploadFileUseCase {
	return NewUploadFileUseCase(repo, blobs, classifierFake{mimeType: mimeType}, discardLogger(), opts...)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestUploadSuccess(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	events := &publisherFake{}
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	uc := newUploadUC(repo, blobs, "application/pdf", WithUploadEvents(events), WithUploadClock(func() time.Time { return fixed }))

	payload := strings.Repeat("%PDF-1.4 body ", 10)
	body := &closeTracker{Reader: strings.NewReader(payload)}
	record, err := uc.Upload(context.Background(), owner, ports.UploadInput{
		Filename:    "lab results 1.pdf",
		Description: " quarterly ",
		Body:        body,
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if record.ID == "" || record.BlobHandle == "" {
		t.Fatalf("expected id and blob handle, got %+v", record)
	}
	if record.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), record.SizeBytes)
	}
	if record.Category != domain.CategoryPDF || record.MimeType != "application/pdf" {
		t.Fatalf("unexpected classification: %s %s", record.MimeType, record.Category)
	}
	if record.StoredName != "1777888800000_lab_results_1.pdf" {
		t.Fatalf("unexpected stored name %s", record.StoredName)
	}
	if record.Description != "quarterly" || record.OwnerID != owner.ID || record.Processed {
		t.Fatalf("unexpected record fields: %+v", record)
	}
	if !body.closed {
		t.Fatalf("expected upload body to be closed")
	}

	stored, err := repo.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.OriginalName != "lab results 1.pdf" || stored.SizeBytes != record.SizeBytes {
		t.Fatalf("persisted record mismatch: %+v", stored)
	}
	raw, _ := io.ReadAll(mustFetch(t, blobs, record.BlobHandle))
	if string(raw) != payload {
		t.Fatalf("blob content mismatch")
	}
	if len(events.ids) != 1 || events.ids[0] != record.ID {
		t.Fatalf("expected upload event for %s, got %v", record.ID, events.ids)
	}
}

func TestUploadEmptyFileTouchesNoStorage(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	uc := newUploadUC(repo, blobs, "text/plain")

	_, err := uc.Upload(context.Background(), owner, ports.UploadInput{Filename: "empty.txt", Body: bytes.NewReader(nil)})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "empty file") {
		t.Fatalf("expected empty file message, got %v", err)
	}
	if blobs.stores != 0 || blobs.count() != 0 {
		t.Fatalf("expected no blob writes, got %d", blobs.stores)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected no metadata writes")
	}
}

func TestUploadRequiresCaller(t *testing.T) {
	uc := newUploadUC(newMemoryRepo(), newMemoryBlobs(), "text/plain")
	body := &closeTracker{Reader: strings.NewReader("x")}
	_, err := uc.Upload(context.Background(), domain.Caller{}, ports.UploadInput{Filename: "a.txt", Body: body})
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !body.closed {
		t.Fatalf("rejected upload must still close its body")
	}
}

func TestUploadStorageFailureSkipsMetadata(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	blobs.storeErr = errors.New("disk full")
	uc := newUploadUC(repo, blobs, "text/plain")

	_, err := uc.Upload(context.Background(), owner, ports.UploadInput{Filename: "a.txt", Body: strings.NewReader("hello")})
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected no metadata write after storage failure")
	}
}

func TestUploadReadFailureIsStorageFailure(t *testing.T) {
	repo := newMemoryRepo()
	blobs := newMemoryBlobs()
	uc := newUploadUC(repo, blobs, "text/plain")

	_, err := uc.Upload(context.Background(), owner, ports.UploadInput{
		Filename: "a.txt",
		Body:     iotest.ErrReader(errors.New("connection reset")),
	})
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if blobs.stores != 0 {
		t.Fatalf("expected no blob write")
	}
}

func TestUploadMetadataFailureDeletesBlob(t *testing.T) {
	repo := newMemoryRepo()
	repo.createErr = errors.New("db down")
	blobs := newMemoryBlobs()
	events := &publisherFake{}
	uc := newUploadUC(repo, blobs, "text/plain", WithUploadEvents(events))

	_, err := uc.Upload(context.Background(), owner, ports.UploadInput{Filename: "a.txt", Body: strings.NewReader("hello")})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "create file metadata") {
		t.Fatalf("expected metadata error, got %v", err)
	}
	if blobs.count() != 0 {
		t.Fatalf("expected compensating blob delete, %d blobs left", blobs.count())
	}
	if len(events.ids) != 0 {
		t.Fatalf("expected no upload event")
	}
}

func TestUploadReportsFailedCompensation(t *testing.T) {
	repo := newMemoryRepo()
	repo.createErr = errors.New("db down")
	blobs := newMemoryBlobs()
	blobs.deleteErr = errors.New("permission denied")
	uc := newUploadUC(repo, blobs, "text/plain")

	_, err := uc.Upload(context.Background(), owner, ports.UploadInput{Filename: "a.txt", Body: strings.NewReader("hello")})
	if err == nil || !strings.Contains(err.Error(), "delete orphaned blob") {
		t.Fatalf("expected orphaned blob error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestUploadPublishFailureKeepsRecord(t *testing.T) {
	repo := newMemoryRepo()
	uc := newUploadUC(repo, newMemoryBlobs(), "text/plain", WithUploadEvents(&publisherFake{err: errors.New("nats down")}))

	record, err := uc.Upload(context.Background(), owner, ports.UploadInput{Filename: "a.txt", Body: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := repo.GetByID(context.Background(), record.ID); err != nil {
		t.Fatalf("expected persisted record, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report 1.txt":     "report_1.txt",
		"../../etc/passwd": "passwd",
		"анализ.pdf":       "______.pdf",
		"":                 "file.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func mustFetch(t *testing.T, blobs *memoryBlobs, handle string) io.Reader {
	t.Helper()
	rc, err := blobs.Fetch(context.Background(), handle)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	return rc
}
