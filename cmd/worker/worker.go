package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
	"github.com/kirillkom/care-records/internal/observability/metrics"
)

// fileProcessor is the slice of the processing use case the worker drives.
type fileProcessor interface {
	ProcessByID(ctx context.Context, id string) (domain.FileRecord, error)
	ProcessPending(ctx context.Context) (ports.PendingResult, error)
}

type worker struct {
	processor fileProcessor
	metrics   *metrics.WorkerMetrics
	logger    *slog.Logger
}

// trackFile feeds worker metrics from every bounded run, whether it came
// from an upload event or a sweep.
func (w *worker) trackFile(record domain.FileRecord) func(error) {
	w.metrics.ObserveQueueLag(service, time.Since(record.UploadedAt))
	w.metrics.StartFile()
	start := time.Now()
	return func(err error) {
		w.metrics.FinishFile(service, time.Since(start), err)
	}
}

// handleUploaded processes one announced upload. Types without an
// extractor are left alone.
func (w *worker) handleUploaded(ctx context.Context, fileID string) error {
	_, err := w.processor.ProcessByID(ctx, fileID)
	if domain.IsKind(err, domain.ErrValidation) {
		w.logger.Debug("upload_event_skipped", "file_id", fileID, "reason", err.Error())
		return nil
	}
	return err
}

// sweepLoop retries everything still unprocessed, covering lost events
// and earlier failures.
func (w *worker) sweepLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *worker) sweep(ctx context.Context) {
	start := time.Now()
	result, err := w.processor.ProcessPending(ctx)
	if err != nil {
		w.logger.Warn("sweep_failed", "error", err)
		return
	}
	w.metrics.RecordSweep(service, result.Processed, result.Failed, result.Skipped)
	if result.Processed+result.Failed > 0 {
		w.logger.Info("sweep_complete",
			"processed", result.Processed,
			"failed", result.Failed,
			"skipped", result.Skipped,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}
