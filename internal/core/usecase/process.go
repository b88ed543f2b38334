package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

// ProcessFileUseCase moves records from unprocessed to processed. It holds
// no per-record lock: two workers may process the same record, in which
// case both issue the AI call and the last MarkProcessed wins. Every write
// sets text, summary and timestamp together, so neither write is partial.
type ProcessFileUseCase struct {
	repo       ports.FileRepository
	blobs      ports.BlobStore
	extractor  ports.TextExtractor
	summarizer ports.Summarizer
	audience   domain.AudienceMode
	timeout    time.Duration
	hook       ProcessHook
	now        ports.Clock
	logger     *slog.Logger
}

// ProcessHook is called when a tracked run over record starts; the
// returned func receives the run's outcome.
type ProcessHook func(record domain.FileRecord) (done func(err error))

type ProcessOption func(*ProcessFileUseCase)

// WithDefaultAudience sets the audience used by ProcessByID and ProcessPending.
func WithDefaultAudience(audience domain.AudienceMode) ProcessOption {
	return func(uc *ProcessFileUseCase) { uc.audience = audience }
}

// WithProcessTimeout bounds every tracked run (ProcessByID,
// ProcessForCaller and each record of ProcessPending). Zero means no bound.
func WithProcessTimeout(timeout time.Duration) ProcessOption {
	return func(uc *ProcessFileUseCase) { uc.timeout = timeout }
}

func WithProcessHook(hook ProcessHook) ProcessOption {
	return func(uc *ProcessFileUseCase) { uc.hook = hook }
}

func WithProcessClock(now ports.Clock) ProcessOption {
	return func(uc *ProcessFileUseCase) { uc.now = now }
}

func NewProcessFileUseCase(
	repo ports.FileRepository,
	blobs ports.BlobStore,
	extractor ports.TextExtractor,
	summarizer ports.Summarizer,
	logger *slog.Logger,
	opts ...ProcessOption,
) *ProcessFileUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &ProcessFileUseCase{
		repo:       repo,
		blobs:      blobs,
		extractor:  extractor,
		summarizer: summarizer,
		audience:   domain.AudienceStandard,
		now:        time.Now,
		logger:     logger.With("component", "process"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ProcessFileUseCase) ProcessByID(ctx context.Context, id string) (domain.FileRecord, error) {
	record, err := uc.loadRecord(ctx, id)
	if err != nil {
		return domain.FileRecord{}, err
	}
	return uc.processTracked(ctx, record, uc.audience)
}

func (uc *ProcessFileUseCase) ProcessForCaller(
	ctx context.Context,
	caller domain.Caller,
	id string,
	audience domain.AudienceMode,
) (domain.FileRecord, error) {
	if err := caller.Validate(); err != nil {
		return domain.FileRecord{}, err
	}
	record, err := uc.loadRecord(ctx, id)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if err := Authorize(record, caller); err != nil {
		return domain.FileRecord{}, err
	}
	if audience == "" {
		audience = uc.audience
	}
	return uc.processTracked(ctx, record, audience)
}

// Process extracts, summarizes and persists. Nothing is written unless
// both steps succeed, so a failed record stays on the worklist.
func (uc *ProcessFileUseCase) Process(ctx context.Context, record domain.FileRecord, audience domain.AudienceMode) (domain.FileRecord, error) {
	if record.Processed {
		return record, nil
	}
	if !uc.extractor.Supports(record.MimeType) {
		return domain.FileRecord{}, domain.WrapError(
			domain.ErrValidation,
			"process file",
			fmt.Errorf("extraction not supported for %s", record.MimeType),
		)
	}

	extraction, err := uc.extract(ctx, record)
	if err != nil {
		return domain.FileRecord{}, err
	}

	summary, err := uc.summarize(ctx, extraction.Text, audience)
	if err != nil {
		return domain.FileRecord{}, err
	}

	updated := record.WithProcessing(extraction, summary, uc.now())
	if err := uc.repo.MarkProcessed(ctx, updated); err != nil {
		return domain.FileRecord{}, storageError("mark processed", err)
	}

	uc.logger.Info("file_processed",
		"file_id", updated.ID,
		"audience", string(audience),
		"text_chars", len([]rune(updated.ExtractedText)),
	)
	return updated, nil
}

// ProcessPending sweeps the unprocessed worklist once. Individual failures
// are logged and counted; only a failing worklist query aborts the sweep.
func (uc *ProcessFileUseCase) ProcessPending(ctx context.Context) (ports.PendingResult, error) {
	var result ports.PendingResult

	records, err := uc.repo.ListUnprocessed(ctx)
	if err != nil {
		return result, fmt.Errorf("list unprocessed files: %w", err)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !uc.extractor.Supports(record.MimeType) {
			result.Skipped++
			continue
		}
		if _, err := uc.processTracked(ctx, record, uc.audience); err != nil {
			result.Failed++
			uc.logger.Warn("file_process_failed", "file_id", record.ID, "error", err)
			continue
		}
		result.Processed++
	}
	return result, nil
}

// processTracked is Process under the configured timeout and hook. Records
// that need no work bypass both.
func (uc *ProcessFileUseCase) processTracked(ctx context.Context, record domain.FileRecord, audience domain.AudienceMode) (domain.FileRecord, error) {
	if record.Processed || !uc.extractor.Supports(record.MimeType) {
		return uc.Process(ctx, record, audience)
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}
	var done func(error)
	if uc.hook != nil {
		done = uc.hook(record)
	}

	updated, err := uc.Process(ctx, record, audience)
	if done != nil {
		done(err)
	}
	return updated, err
}

// Supports reports whether records of mimeType can be processed.
func (uc *ProcessFileUseCase) Supports(mimeType string) bool {
	return uc.extractor.Supports(mimeType)
}

func (uc *ProcessFileUseCase) loadRecord(ctx context.Context, id string) (domain.FileRecord, error) {
	record, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("fetch file by id: %w", err)
	}
	return record, nil
}

func (uc *ProcessFileUseCase) extract(ctx context.Context, record domain.FileRecord) (domain.Extraction, error) {
	body, err := uc.blobs.Fetch(ctx, record.BlobHandle)
	if err != nil {
		return domain.Extraction{}, storageError("open blob for extraction", err)
	}
	defer body.Close()

	extraction, err := uc.extractor.Extract(ctx, record.MimeType, body)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtraction) {
			return domain.Extraction{}, fmt.Errorf("extract text: %w", err)
		}
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract text", err)
	}
	if extraction.Text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract text", errors.New("empty extracted text"))
	}
	return extraction, nil
}

func (uc *ProcessFileUseCase) summarize(ctx context.Context, text string, audience domain.AudienceMode) (string, error) {
	summary, err := uc.summarizer.Summarize(ctx, text, audience)
	if err != nil {
		if domain.IsKind(err, domain.ErrExternalService) {
			return "", fmt.Errorf("summarize: %w", err)
		}
		return "", domain.WrapError(domain.ErrExternalService, "summarize", err)
	}
	return summary, nil
}
