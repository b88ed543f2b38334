package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/care-records/internal/config"
	"github.com/kirillkom/care-records/internal/core/usecase"
	"github.com/kirillkom/care-records/internal/infrastructure/classifier/sniff"
	"github.com/kirillkom/care-records/internal/infrastructure/extractor"
	"github.com/kirillkom/care-records/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/care-records/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/care-records/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/care-records/internal/infrastructure/llm/openai"
	"github.com/kirillkom/care-records/internal/infrastructure/queue/nats"
	"github.com/kirillkom/care-records/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/care-records/internal/infrastructure/resilience"
	"github.com/kirillkom/care-records/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Repo      *postgres.FileRepository
	UploadUC  *usecase.UploadFileUseCase
	Files     *usecase.FileService
	ProcessUC *usecase.ProcessFileUseCase

	closeFn func()
}

type Option func(*options)

type options struct {
	breakerObserver resilience.StateObserver
	processHook     usecase.ProcessHook
}

// WithBreakerObserver reports circuit breaker transitions, usually to metrics.
func WithBreakerObserver(observer resilience.StateObserver) Option {
	return func(o *options) { o.breakerObserver = observer }
}

// WithProcessHook observes every bounded processing run, usually for
// worker metrics.
func WithProcessHook(hook usecase.ProcessHook) Option {
	return func(o *options) { o.processHook = hook }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewFileRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	var executorOpts []resilience.ExecutorOption
	if o.breakerObserver != nil {
		executorOpts = append(executorOpts, resilience.WithStateObserver(o.breakerObserver))
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), logger, executorOpts...)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	summarizer := openai.New(openai.Options{
		BaseURL:            cfg.SummarizerBaseURL,
		APIKey:             cfg.SummarizerAPIKey,
		Model:              cfg.SummarizerModel,
		RequestTimeout:     cfg.SummarizerTimeout,
		ResilienceExecutor: executor,
	})
	extractors := extractor.NewRegistry(
		pdf.NewExtractor(),
		plaintext.NewExtractor(),
		spreadsheet.NewExtractor(),
	)

	uploadUC := usecase.NewUploadFileUseCase(
		repo,
		storage,
		sniff.NewClassifier(sniff.DefaultSampleSize),
		logger,
		usecase.WithUploadEvents(queue),
		usecase.WithMetadataProber(sniff.ImageProber{}),
	)
	files := usecase.NewFileService(repo, storage, logger)
	processUC := usecase.NewProcessFileUseCase(
		repo,
		storage,
		extractors,
		summarizer,
		logger,
		usecase.WithDefaultAudience(cfg.DefaultAudience),
		usecase.WithProcessTimeout(cfg.ProcessTimeout),
		usecase.WithProcessHook(o.processHook),
	)

	logger.Info("bootstrap_complete",
		"storage_path", cfg.StoragePath,
		"nats_subject", cfg.NATSSubject,
		"extractors", extractors.Names(),
		"default_audience", string(cfg.DefaultAudience),
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Repo:      repo,
		UploadUC:  uploadUC,
		Files:     files,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			closeDB(db, logger)
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
			Multiplier:     cfg.RetryMultiplier,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:          cfg.BreakerEnabled,
			MinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
			FailureRatio:     cfg.BreakerFailureRatio,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			HalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
		},
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("postgres_close_failed", "error", err)
	}
}
