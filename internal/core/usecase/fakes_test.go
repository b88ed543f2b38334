package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRepo struct {
	mu        sync.Mutex
	records   map[string]domain.FileRecord
	order     []string
	createErr error
	markErr   error
	deleteErr error
	marks     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[string]domain.FileRecord{}}
}

func (r *memoryRepo) Create(_ context.Context, record domain.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return domain.FileRecord{}, domain.WrapError(domain.ErrNotFound, "get file", fmt.Errorf("id=%s", id))
	}
	return record, nil
}

func (r *memoryRepo) list(match func(domain.FileRecord) bool) []domain.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.FileRecord{}
	for _, id := range r.order {
		record, ok := r.records[id]
		if ok && match(record) {
			out = append(out, record)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.FileRecord, error) {
	return r.list(func(rec domain.FileRecord) bool { return rec.OwnerID == ownerID }), nil
}

func (r *memoryRepo) ListByOwnerAndCategory(_ context.Context, ownerID string, category domain.Category) ([]domain.FileRecord, error) {
	return r.list(func(rec domain.FileRecord) bool { return rec.OwnerID == ownerID && rec.Category == category }), nil
}

func (r *memoryRepo) ListUnprocessed(context.Context) ([]domain.FileRecord, error) {
	return r.list(func(rec domain.FileRecord) bool { return !rec.Processed }), nil
}

func (r *memoryRepo) ListByOwnerAndProcessed(_ context.Context, ownerID string, processed bool) ([]domain.FileRecord, error) {
	return r.list(func(rec domain.FileRecord) bool { return rec.OwnerID == ownerID && rec.Processed == processed }), nil
}

func (r *memoryRepo) MarkProcessed(_ context.Context, record domain.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	current, ok := r.records[record.ID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "mark processed", fmt.Errorf("id=%s", record.ID))
	}
	current.ExtractedText = record.ExtractedText
	current.Summary = record.Summary
	current.Metadata = record.Metadata
	current.Processed = true
	current.ProcessedAt = record.ProcessedAt
	r.records[record.ID] = current
	r.marks++
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.records[id]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete file", fmt.Errorf("id=%s", id))
	}
	delete(r.records, id)
	return nil
}

type memoryBlobs struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	seq       int
	storeErr  error
	deleteErr error
	stores    int
	deletes   int
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{blobs: map[string][]byte{}}
}

func (b *memoryBlobs) Store(_ context.Context, body io.Reader, _, _ string) (ports.StoredBlob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores++
	if closer, ok := body.(io.Closer); ok {
		defer closer.Close()
	}
	if b.storeErr != nil {
		return ports.StoredBlob{}, b.storeErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return ports.StoredBlob{}, err
	}
	b.seq++
	handle := fmt.Sprintf("blob-%d", b.seq)
	b.blobs[handle] = raw
	return ports.StoredBlob{Handle: handle, Size: int64(len(raw))}, nil
}

func (b *memoryBlobs) Fetch(_ context.Context, handle string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.blobs[handle]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch blob", fmt.Errorf("handle=%s", handle))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memoryBlobs) Delete(_ context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.blobs[handle]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete blob", fmt.Errorf("handle=%s", handle))
	}
	delete(b.blobs, handle)
	return nil
}

func (b *memoryBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

type classifierFake struct {
	mimeType string
	err      error
}

func (f classifierFake) Classify(sample []byte) (string, domain.Category, error) {
	if len(sample) == 0 {
		return "", "", domain.WrapError(domain.ErrClassification, "classify", errors.New("empty sample"))
	}
	if f.err != nil {
		return "", "", f.err
	}
	return f.mimeType, domain.CategoryForMimeType(f.mimeType), nil
}

func (f classifierFake) SampleSize() int { return 16 }

type extractorFake struct {
	mimeTypes map[string]bool
	result    domain.Extraction
	err       error
	calls     int
}

func (f *extractorFake) Supports(mimeType string) bool { return f.mimeTypes[mimeType] }

func (f *extractorFake) Extract(_ context.Context, _ string, body io.Reader) (domain.Extraction, error) {
	f.calls++
	if _, err := io.ReadAll(body); err != nil {
		return domain.Extraction{}, err
	}
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return f.result, nil
}

type summarizerFake struct {
	mu        sync.Mutex
	summary   string
	err       error
	calls     int
	audiences []domain.AudienceMode
}

func (f *summarizerFake) Summarize(_ context.Context, _ string, audience domain.AudienceMode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.audiences = append(f.audiences, audience)
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

type publisherFake struct {
	ids []string
	err error
}

func (f *publisherFake) PublishFileUploaded(_ context.Context, fileID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, fileID)
	return nil
}
